package resilience

import (
	"errors"
	"fmt"
)

// Kind separates failures the run survives from failures it cannot.
type Kind int

const (
	// Soft failures are recorded and counted; processing continues.
	Soft Kind = iota
	// Fatal failures abort the unit of work they occurred in.
	Fatal
)

func (k Kind) String() string {
	if k == Fatal {
		return "fatal"
	}
	return "soft"
}

// Failure is the result of a failed call at an I/O boundary. Every
// connector and sink error is converted into one before it leaves the
// component that observed it, so nothing is dropped uncounted.
type Failure struct {
	Kind Kind
	Op   string
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s (%s): %v", f.Op, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// SoftFailure wraps err as a soft failure of op.
func SoftFailure(op string, err error) *Failure {
	return &Failure{Kind: Soft, Op: op, Err: err}
}

// FatalFailure wraps err as a fatal failure of op.
func FatalFailure(op string, err error) *Failure {
	return &Failure{Kind: Fatal, Op: op, Err: err}
}

// IsFatal reports whether err carries a fatal Failure.
func IsFatal(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == Fatal
}

// PanicError is produced when a recovered panic is converted to an error.
type PanicError struct {
	Value any
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

package connector

import "context"

// Null returns an empty finding for every organisation.
type Null struct {
	name string
}

// NewNull creates a null connector.
func NewNull(name string) *Null {
	if name == "" {
		name = NullName
	}
	return &Null{name: name}
}

func (n *Null) Name() string { return n.name }

func (n *Null) Lookup(ctx context.Context, _ Request) (*Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Finding{}, nil
}

package resilience

import (
	"time"
)

// RetryEntry describes a row whose decisions were computed but could not
// be published. The row can be re-run later without losing the outcome.
type RetryEntry struct {
	RowID     string    `json:"row_id"`
	Error     string    `json:"error"`
	ErrorType string    `json:"error_type"` // "transient" or "permanent"
	Attempts  int       `json:"attempts"`
	FailedAt  time.Time `json:"failed_at"`
}

// NewRetryEntry builds an entry for rowID from the final publication error.
func NewRetryEntry(rowID string, err error, attempts int, now time.Time) RetryEntry {
	return RetryEntry{
		RowID:     rowID,
		Error:     err.Error(),
		ErrorType: ClassifyError(err),
		Attempts:  attempts,
		FailedAt:  now.UTC(),
	}
}

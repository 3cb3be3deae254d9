package agrisage

import "errors"

// Sentinel errors for common failure modes.
var (
	// ErrEmptyQuestion is returned when a query has no question text.
	ErrEmptyQuestion = errors.New("agrisage: empty question")

	// ErrInvalidConfig is returned when the configuration is unusable.
	ErrInvalidConfig = errors.New("agrisage: invalid configuration")
)

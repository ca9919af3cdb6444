package reconcile

import "errors"

var (
	// ErrMissingKeyColumn aborts a pass before any join when a source lacks the
	// party or invoice number column.
	ErrMissingKeyColumn  = errors.New("required key column missing")
	ErrNilTable          = errors.New("source table is nil")
	ErrInvalidOptions    = errors.New("invalid reconciliation options")
	ErrUnknownNormalizer = errors.New("unknown key normalizer")
)

package sentinel

import "errors"

// Store-level facts. Stores return these (optionally wrapped) and services
// translate them into domain errors:
//   - ErrNotFound: record does not exist
//   - ErrConflict: a uniqueness or serialization race was lost; the operation may be retried
//   - ErrUnavailable: the backing store or upstream could not be reached
//
// Validation failures use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)

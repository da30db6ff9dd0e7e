package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Ledger backends return these
// (optionally wrapped) so the registry service can translate them into domain errors.
//
// These represent factual states about records, not validation failures:
// - ErrNotFound: no record at the address
// - ErrAlreadyExists: insert-if-absent found the address occupied
// - ErrInvalidState: record at the address has an unexpected kind
// - ErrUnavailable: backend temporarily unavailable or contention not resolved
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidState  = errors.New("invalid state")
	ErrUnavailable   = errors.New("unavailable")
)

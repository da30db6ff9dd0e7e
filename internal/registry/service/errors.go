package service

import (
	"errors"

	dErrors "certreg/pkg/domain-errors"
	"certreg/pkg/platform/sentinel"
)

// translateLedgerErr passes registry errors through untouched and maps
// substrate failures onto coded errors.
func translateLedgerErr(err error) error {
	var de *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger unavailable, retry later")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger failure")
	}
}

// wrapLoadErr maps a failed read: a missing record becomes notFound, anything
// else is internal.
func wrapLoadErr(err error, notFound *dErrors.Error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return notFound
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// wrapCreateErr maps a failed insert-if-absent.
func wrapCreateErr(err error, taken *dErrors.Error, msg string) error {
	if errors.Is(err, sentinel.ErrAlreadyExists) {
		return taken
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func wrapDerivationErr(err error) error {
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive address")
}

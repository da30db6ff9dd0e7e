package models

import (
	"unicode/utf8"

	"certreg/pkg/domain"
)

const (
	MaxNameLen    = 100
	MaxDetailsLen = 500
)

// Issuer is an authority allowed to mint certificates.
//
// Invariants:
//   - At most one per authority key (its address is derived from the key)
//   - Name is 1-100 bytes, Details at most 500 bytes, both valid UTF-8
//   - RegistrationDate is immutable after construction
//   - TotalIssued only increases
//   - Never deleted; Active=false is the retirement mechanism
type Issuer struct {
	Authority        domain.PublicKey `json:"authority"`
	Name             string           `json:"name"`
	Details          string           `json:"details"`
	Active           bool             `json:"active"`
	RegistrationDate int64            `json:"registration_date"`
	TotalIssued      uint64           `json:"total_issued"`
	Bump             uint8            `json:"bump"`
}

// ValidateIssuerFields checks name then details, in that order. Both must be
// valid UTF-8.
func ValidateIssuerFields(name, details string) error {
	if len(name) == 0 || len(name) > MaxNameLen || !utf8.ValidString(name) {
		return ErrInvalidName
	}
	if len(details) > MaxDetailsLen || !utf8.ValidString(details) {
		return ErrInvalidDetails
	}
	return nil
}

func NewIssuer(authority domain.PublicKey, name, details string, now int64, bump uint8) (*Issuer, error) {
	if err := ValidateIssuerFields(name, details); err != nil {
		return nil, err
	}
	return &Issuer{
		Authority:        authority,
		Name:             name,
		Details:          details,
		Active:           true,
		RegistrationDate: now,
		Bump:             bump,
	}, nil
}

// SetActive toggles issuance capability. Setting the current value is a no-op.
func (i *Issuer) SetActive(active bool) {
	i.Active = active
}

func (i *Issuer) RecordIssued() {
	i.TotalIssued++
}

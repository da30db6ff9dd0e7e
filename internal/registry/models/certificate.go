package models

import (
	"unicode/utf8"

	"certreg/pkg/domain"
)

const (
	MaxCertificateIDLen = 64
	MaxMetadataURILen   = 200

	// NoExpiry marks a certificate that never expires.
	NoExpiry int64 = 0
)

// Certificate asserts that Recipient holds a credential from Issuer.
//
// Invariants:
//   - CertificateID is 1-64 bytes of UTF-8 and unique across the whole registry
//   - Issuer is a copy of the issuing authority's key at issuance time
//   - IssueDate, ExpiryDate and MetadataURI are immutable
//   - Revoked transitions false -> true exactly once and never back
//
// Expiry is not stored as a state. Verifiers evaluate it at read time, so a
// certificate can be expired and not revoked at once.
type Certificate struct {
	CertificateID string           `json:"certificate_id"`
	Issuer        domain.PublicKey `json:"issuer"`
	Recipient     domain.PublicKey `json:"recipient"`
	IssueDate     int64            `json:"issue_date"`
	ExpiryDate    int64            `json:"expiry_date"`
	Revoked       bool             `json:"revoked"`
	MetadataURI   string           `json:"metadata_uri"`
	Bump          uint8            `json:"bump"`
}

// ValidateCertificateID checks the id is 1-64 bytes of valid UTF-8. Stored
// records are JSON, which would rewrite invalid bytes.
func ValidateCertificateID(certificateID string) error {
	if len(certificateID) == 0 || len(certificateID) > MaxCertificateIDLen || !utf8.ValidString(certificateID) {
		return ErrInvalidCertificateID
	}
	return nil
}

// ValidateIssuance runs the input checks of issuance in their fixed order:
// certificate id, metadata uri, expiry.
func ValidateIssuance(certificateID, metadataURI string, expiryDate, now int64) error {
	if err := ValidateCertificateID(certificateID); err != nil {
		return err
	}
	if len(metadataURI) > MaxMetadataURILen || !utf8.ValidString(metadataURI) {
		return ErrInvalidMetadataURI
	}
	if expiryDate != NoExpiry && expiryDate <= now {
		return ErrInvalidExpiryDate
	}
	return nil
}

func NewCertificate(
	certificateID string,
	issuer domain.PublicKey,
	recipient domain.PublicKey,
	metadataURI string,
	issueDate int64,
	expiryDate int64,
	bump uint8,
) *Certificate {
	return &Certificate{
		CertificateID: certificateID,
		Issuer:        issuer,
		Recipient:     recipient,
		IssueDate:     issueDate,
		ExpiryDate:    expiryDate,
		MetadataURI:   metadataURI,
		Bump:          bump,
	}
}

// CanRevoke reports whether the one-way revocation is still available.
func (c *Certificate) CanRevoke() error {
	if c.Revoked {
		return ErrAlreadyRevoked
	}
	return nil
}

// ApplyRevocation marks the certificate revoked.
// Must only be called after CanRevoke returns nil.
func (c *Certificate) ApplyRevocation() {
	c.Revoked = true
}

func (c *Certificate) IsExpired(now int64) bool {
	return c.ExpiryDate != NoExpiry && now >= c.ExpiryDate
}

// Status is a verifier's evaluation of a certificate at a point in time.
type Status struct {
	Revoked bool `json:"revoked"`
	Expired bool `json:"expired"`
	Valid   bool `json:"valid"`
}

func (c *Certificate) Status(now int64) Status {
	expired := c.IsExpired(now)
	return Status{
		Revoked: c.Revoked,
		Expired: expired,
		Valid:   !c.Revoked && !expired,
	}
}

package models

import dErrors "certreg/pkg/domain-errors"

// Registry error kinds. Every failure the service reports is one of these,
// optionally wrapped; match with errors.Is.
var (
	ErrAlreadyInitialized = dErrors.NewWithReason(dErrors.CodeConflict, "already_initialized", "registry already initialized")
	ErrNotInitialized     = dErrors.NewWithReason(dErrors.CodeNotFound, "not_initialized", "registry not initialized")
	ErrUnauthorized       = dErrors.NewWithReason(dErrors.CodeForbidden, "unauthorized", "signer is not the registry admin")
	ErrAlreadyExists      = dErrors.NewWithReason(dErrors.CodeConflict, "already_exists", "record already exists")
	ErrNotFound           = dErrors.NewWithReason(dErrors.CodeNotFound, "not_found", "record not found")
	ErrInvalidKey         = dErrors.NewWithReason(dErrors.CodeValidation, "invalid_key", "invalid public key")

	ErrInvalidName    = dErrors.NewWithReason(dErrors.CodeValidation, "invalid_name", "invalid name length")
	ErrInvalidDetails = dErrors.NewWithReason(dErrors.CodeValidation, "invalid_details", "invalid details length")

	ErrInvalidCertificateID = dErrors.NewWithReason(dErrors.CodeValidation, "invalid_certificate_id", "invalid certificate id")
	ErrInvalidMetadataURI   = dErrors.NewWithReason(dErrors.CodeValidation, "invalid_metadata_uri", "invalid metadata uri")
	ErrInvalidExpiryDate    = dErrors.NewWithReason(dErrors.CodeValidation, "invalid_expiry_date", "invalid expiry date")
	ErrUnauthorizedIssuer   = dErrors.NewWithReason(dErrors.CodeForbidden, "unauthorized_issuer", "unauthorized issuer")
	ErrIssuerNotActive      = dErrors.NewWithReason(dErrors.CodeConflict, "issuer_not_active", "issuer is not active")
	ErrAlreadyRevoked       = dErrors.NewWithReason(dErrors.CodeConflict, "already_revoked", "certificate already revoked")
	ErrUnauthorizedRevoke   = dErrors.NewWithReason(dErrors.CodeForbidden, "unauthorized_revoke", "unauthorized to revoke certificate")
)

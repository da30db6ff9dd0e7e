package service

import (
	"certreg/internal/registry/models"
	"certreg/pkg/domain"
)

// Guard clauses binding roles to mutations. Each returns the exact error
// kind the caller reports; none of them touch the ledger.

func requireAdmin(reg *models.Registry, signer domain.PublicKey) error {
	if !reg.IsAdmin(signer) {
		return models.ErrUnauthorized
	}
	return nil
}

// requireIssuerAuthority checks that the issuer found at the signer's issuer
// address really belongs to the signer.
func requireIssuerAuthority(issuer *models.Issuer, signer domain.PublicKey) error {
	if issuer == nil || signer.IsZero() || issuer.Authority != signer {
		return models.ErrUnauthorizedIssuer
	}
	return nil
}

func requireActiveIssuer(issuer *models.Issuer) error {
	if !issuer.Active {
		return models.ErrIssuerNotActive
	}
	return nil
}

// requireRevoker checks the certificate really came from issuer and that
// signer is either that issuer or the registry admin.
func requireRevoker(reg *models.Registry, issuer *models.Issuer, cert *models.Certificate, signer domain.PublicKey) error {
	if issuer == nil || cert.Issuer != issuer.Authority {
		return models.ErrUnauthorizedRevoke
	}
	if signer.IsZero() {
		return models.ErrUnauthorizedRevoke
	}
	if signer != issuer.Authority && !reg.IsAdmin(signer) {
		return models.ErrUnauthorizedRevoke
	}
	return nil
}

package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"certreg/internal/registry/models"
	"certreg/internal/registry/store"
	"certreg/pkg/domain"
)

// IssueCertificate mints certificateID for recipient on behalf of signer.
//
// The first failing check wins: id length, metadata uri length, expiry, the
// signer's issuer record, issuer active, then insert-if-absent at the
// certificate address.
func (s *Service) IssueCertificate(
	ctx context.Context,
	signer domain.PublicKey,
	certificateID string,
	recipient domain.PublicKey,
	metadataURI string,
	expiryDate int64,
) (_ *models.Certificate, err error) {
	ctx, finish := s.startOperation(ctx, "issue_certificate",
		attribute.String("certificate_id", certificateID),
		attribute.String("issuer", signer.String()),
	)
	defer func() { finish(err) }()

	now := s.now(ctx)
	if err := models.ValidateIssuance(certificateID, metadataURI, expiryDate, now); err != nil {
		return nil, err
	}

	var cert *models.Certificate
	batch, err := s.runInTx(ctx, func(ctx context.Context, tx *store.Tx, batch *eventBatch) error {
		// Registry first: every mutation locks registry, issuer, certificate
		// in that order. Without a registry no issuer can exist.
		reg, err := s.loadRegistry(ctx, tx)
		if err != nil {
			if errors.Is(err, models.ErrNotInitialized) {
				return models.ErrUnauthorizedIssuer
			}
			return err
		}

		issuerAddr, _, err := s.deriver.Issuer(signer)
		if err != nil {
			return wrapDerivationErr(err)
		}
		issuer, err := tx.Issuer(ctx, issuerAddr)
		if err != nil {
			// an unregistered signer is not an issuer
			return wrapLoadErr(err, models.ErrUnauthorizedIssuer, "failed to load issuer")
		}
		if err := requireIssuerAuthority(issuer, signer); err != nil {
			return err
		}
		if err := requireActiveIssuer(issuer); err != nil {
			return err
		}
		if recipient.IsZero() {
			return models.ErrInvalidKey
		}

		certAddr, bump, err := s.deriver.Certificate(certificateID)
		if err != nil {
			return wrapDerivationErr(err)
		}
		c := models.NewCertificate(certificateID, issuer.Authority, recipient, metadataURI, now, expiryDate, bump)
		if err := tx.CreateCertificate(ctx, certAddr, c); err != nil {
			return wrapCreateErr(err, models.ErrAlreadyExists, "failed to create certificate")
		}

		issuer.RecordIssued()
		if err := tx.PutIssuer(ctx, issuerAddr, issuer); err != nil {
			return wrapLoadErr(err, models.ErrUnauthorizedIssuer, "failed to save issuer")
		}
		reg.RecordCertificateIssued()
		if err := s.saveRegistry(ctx, tx, reg); err != nil {
			return err
		}

		batch.add(certAddr, models.CertificateIssued{
			CertificateID: certificateID,
			Issuer:        issuer.Authority,
			Recipient:     recipient,
			IssueDate:     now,
			MetadataURI:   metadataURI,
		})
		cert = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, batch)
	if s.metrics != nil {
		s.metrics.IncrementCertificatesIssued()
	}
	s.logger.InfoContext(ctx, "certificate issued",
		"certificate_id", certificateID,
		"issuer", signer.String(),
		"recipient", recipient.String(),
	)
	return cert, nil
}

// RevokeCertificate permanently revokes certificateID. The issuing authority
// and the registry admin may revoke; nobody else can.
func (s *Service) RevokeCertificate(ctx context.Context, signer domain.PublicKey, certificateID string) (_ *models.Certificate, err error) {
	ctx, finish := s.startOperation(ctx, "revoke_certificate",
		attribute.String("certificate_id", certificateID),
		attribute.String("signer", signer.String()),
	)
	defer func() { finish(err) }()

	if err := models.ValidateCertificateID(certificateID); err != nil {
		return nil, err
	}

	now := s.now(ctx)
	var cert *models.Certificate
	batch, err := s.runInTx(ctx, func(ctx context.Context, tx *store.Tx, batch *eventBatch) error {
		certAddr, _, err := s.deriver.Certificate(certificateID)
		if err != nil {
			return wrapDerivationErr(err)
		}
		c, err := tx.Certificate(ctx, certAddr)
		if err != nil {
			return wrapLoadErr(err, models.ErrNotFound, "failed to load certificate")
		}
		reg, err := s.loadRegistry(ctx, tx)
		if err != nil {
			return err
		}

		issuerAddr, _, err := s.deriver.Issuer(c.Issuer)
		if err != nil {
			return wrapDerivationErr(err)
		}
		issuer, err := tx.Issuer(ctx, issuerAddr)
		if err != nil {
			return wrapLoadErr(err, models.ErrUnauthorizedRevoke, "failed to load issuer")
		}
		if err := requireRevoker(reg, issuer, c, signer); err != nil {
			return err
		}
		if err := c.CanRevoke(); err != nil {
			return err
		}

		c.ApplyRevocation()
		if err := tx.PutCertificate(ctx, certAddr, c); err != nil {
			return wrapLoadErr(err, models.ErrNotFound, "failed to save certificate")
		}

		batch.add(certAddr, models.CertificateRevoked{
			CertificateID: certificateID,
			Issuer:        c.Issuer,
			Timestamp:     now,
		})
		cert = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, batch)
	if s.metrics != nil {
		s.metrics.IncrementCertificatesRevoked()
	}
	s.logger.InfoContext(ctx, "certificate revoked",
		"certificate_id", certificateID,
		"signer", signer.String(),
	)
	return cert, nil
}

// VerifyCertificate returns the stored certificate. Expiry is not judged
// here; callers evaluate Certificate.Status at their own clock.
func (s *Service) VerifyCertificate(ctx context.Context, certificateID string) (_ *models.Certificate, err error) {
	ctx, finish := s.startOperation(ctx, "verify_certificate", attribute.String("certificate_id", certificateID))
	defer func() { finish(err) }()

	if err := models.ValidateCertificateID(certificateID); err != nil {
		return nil, err
	}
	addr, _, err := s.deriver.Certificate(certificateID)
	if err != nil {
		return nil, wrapDerivationErr(err)
	}
	cert, err := s.reader.Certificate(ctx, addr)
	if err != nil {
		return nil, wrapLoadErr(err, models.ErrNotFound, "failed to load certificate")
	}
	return cert, nil
}

func (s *Service) ListCertificatesByIssuer(ctx context.Context, issuer domain.PublicKey) (_ []*models.Certificate, err error) {
	ctx, finish := s.startOperation(ctx, "list_certificates_by_issuer")
	defer func() { finish(err) }()

	certs, err := s.reader.CertificatesByIssuer(ctx, issuer)
	if err != nil {
		return nil, translateLedgerErr(err)
	}
	return certs, nil
}

func (s *Service) ListCertificatesByRecipient(ctx context.Context, recipient domain.PublicKey) (_ []*models.Certificate, err error) {
	ctx, finish := s.startOperation(ctx, "list_certificates_by_recipient")
	defer func() { finish(err) }()

	certs, err := s.reader.CertificatesByRecipient(ctx, recipient)
	if err != nil {
		return nil, translateLedgerErr(err)
	}
	return certs, nil
}

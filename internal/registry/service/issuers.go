package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"certreg/internal/registry/models"
	"certreg/internal/registry/store"
	"certreg/pkg/domain"
)

// RegisterIssuer admits authority as an active issuer. Only the registry
// admin may call it.
//
// Checks run in a fixed order: registry present, signer is admin, name,
// details, then insert-if-absent at the authority's issuer address.
func (s *Service) RegisterIssuer(ctx context.Context, signer, authority domain.PublicKey, name, details string) (_ *models.Issuer, err error) {
	ctx, finish := s.startOperation(ctx, "register_issuer", attribute.String("issuer", authority.String()))
	defer func() { finish(err) }()

	now := s.now(ctx)
	var issuer *models.Issuer
	batch, err := s.runInTx(ctx, func(ctx context.Context, tx *store.Tx, batch *eventBatch) error {
		reg, err := s.loadRegistry(ctx, tx)
		if err != nil {
			return err
		}
		if err := requireAdmin(reg, signer); err != nil {
			return err
		}
		if err := models.ValidateIssuerFields(name, details); err != nil {
			return err
		}
		if authority.IsZero() {
			return models.ErrInvalidKey
		}

		addr, bump, err := s.deriver.Issuer(authority)
		if err != nil {
			return wrapDerivationErr(err)
		}
		iss, err := models.NewIssuer(authority, name, details, now, bump)
		if err != nil {
			return err
		}
		if err := tx.CreateIssuer(ctx, addr, iss); err != nil {
			return wrapCreateErr(err, models.ErrAlreadyExists, "failed to create issuer")
		}

		reg.RecordIssuerRegistered()
		if err := s.saveRegistry(ctx, tx, reg); err != nil {
			return err
		}

		batch.add(addr, models.IssuerRegistered{Issuer: authority, Name: name, Timestamp: now})
		issuer = iss
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, batch)
	if s.metrics != nil {
		s.metrics.IncrementIssuersRegistered()
	}
	s.logger.InfoContext(ctx, "issuer registered", "issuer", authority.String(), "name", name)
	return issuer, nil
}

// UpdateIssuerStatus sets an issuer's active flag. Only the admin may call
// it. Setting the current value succeeds and still emits an event.
//
// Checks run in a fixed order: registry present, signer is admin, authority
// key, then the issuer record.
func (s *Service) UpdateIssuerStatus(ctx context.Context, signer, authority domain.PublicKey, active bool) (_ *models.Issuer, err error) {
	ctx, finish := s.startOperation(ctx, "update_issuer_status",
		attribute.String("issuer", authority.String()),
		attribute.Bool("active", active),
	)
	defer func() { finish(err) }()

	var issuer *models.Issuer
	batch, err := s.runInTx(ctx, func(ctx context.Context, tx *store.Tx, batch *eventBatch) error {
		reg, err := s.loadRegistry(ctx, tx)
		if err != nil {
			return err
		}
		if err := requireAdmin(reg, signer); err != nil {
			return err
		}
		if authority.IsZero() {
			return models.ErrInvalidKey
		}

		addr, _, err := s.deriver.Issuer(authority)
		if err != nil {
			return wrapDerivationErr(err)
		}
		iss, err := tx.Issuer(ctx, addr)
		if err != nil {
			return wrapLoadErr(err, models.ErrNotFound, "failed to load issuer")
		}
		iss.SetActive(active)
		if err := tx.PutIssuer(ctx, addr, iss); err != nil {
			return wrapLoadErr(err, models.ErrNotFound, "failed to save issuer")
		}

		batch.add(addr, models.IssuerStatusUpdated{Issuer: authority, Active: active})
		issuer = iss
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, batch)
	s.logger.InfoContext(ctx, "issuer status updated", "issuer", authority.String(), "active", active)
	return issuer, nil
}

// GetIssuer returns the committed issuer record for authority.
func (s *Service) GetIssuer(ctx context.Context, authority domain.PublicKey) (_ *models.Issuer, err error) {
	ctx, finish := s.startOperation(ctx, "get_issuer")
	defer func() { finish(err) }()

	addr, _, err := s.deriver.Issuer(authority)
	if err != nil {
		return nil, wrapDerivationErr(err)
	}
	issuer, err := s.reader.Issuer(ctx, addr)
	if err != nil {
		return nil, wrapLoadErr(err, models.ErrNotFound, "failed to load issuer")
	}
	return issuer, nil
}

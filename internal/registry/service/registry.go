package service

import (
	"context"

	"certreg/internal/registry/models"
	"certreg/internal/registry/store"
	"certreg/pkg/domain"
)

// Initialize creates the registry singleton with caller as its admin.
// Exactly one call per deployment succeeds; every later call reports
// ErrAlreadyInitialized.
func (s *Service) Initialize(ctx context.Context, caller domain.PublicKey) (_ *models.Registry, err error) {
	ctx, finish := s.startOperation(ctx, "initialize")
	defer func() { finish(err) }()

	if caller.IsZero() {
		return nil, models.ErrInvalidKey
	}
	addr, bump, err := s.deriver.Registry()
	if err != nil {
		return nil, wrapDerivationErr(err)
	}

	now := s.now(ctx)
	var reg *models.Registry
	batch, err := s.runInTx(ctx, func(ctx context.Context, tx *store.Tx, batch *eventBatch) error {
		r := models.NewRegistry(caller, bump)
		if err := tx.CreateRegistry(ctx, addr, r); err != nil {
			return wrapCreateErr(err, models.ErrAlreadyInitialized, "failed to create registry")
		}
		batch.add(addr, models.RegistryInitialized{Admin: caller, Timestamp: now})
		reg = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, batch)
	s.logger.InfoContext(ctx, "registry initialized", "admin", caller.String(), "address", addr.String())
	return reg, nil
}

// GetRegistry returns the committed registry record.
func (s *Service) GetRegistry(ctx context.Context) (_ *models.Registry, err error) {
	ctx, finish := s.startOperation(ctx, "get_registry")
	defer func() { finish(err) }()

	addr, _, err := s.deriver.Registry()
	if err != nil {
		return nil, wrapDerivationErr(err)
	}
	reg, err := s.reader.Registry(ctx, addr)
	if err != nil {
		return nil, wrapLoadErr(err, models.ErrNotInitialized, "failed to load registry")
	}
	return reg, nil
}

// loadRegistry reads the registry inside a transaction.
func (s *Service) loadRegistry(ctx context.Context, tx *store.Tx) (*models.Registry, error) {
	addr, _, err := s.deriver.Registry()
	if err != nil {
		return nil, wrapDerivationErr(err)
	}
	reg, err := tx.Registry(ctx, addr)
	if err != nil {
		return nil, wrapLoadErr(err, models.ErrNotInitialized, "failed to load registry")
	}
	return reg, nil
}

func (s *Service) saveRegistry(ctx context.Context, tx *store.Tx, reg *models.Registry) error {
	addr, _, err := s.deriver.Registry()
	if err != nil {
		return wrapDerivationErr(err)
	}
	if err := tx.PutRegistry(ctx, addr, reg); err != nil {
		return wrapLoadErr(err, models.ErrNotInitialized, "failed to save registry")
	}
	return nil
}

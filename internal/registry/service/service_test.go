package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/mock/gomock"

	"certreg/internal/events"
	eventlog "certreg/internal/events/memory"
	"certreg/internal/ledger"
	"certreg/internal/ledger/memory"
	registrymetrics "certreg/internal/registry/metrics"
	"certreg/internal/registry/models"
	"certreg/internal/registry/service/mocks"
	"certreg/internal/registry/store"
	"certreg/pkg/address"
	"certreg/pkg/domain"
	dErrors "certreg/pkg/domain-errors"
	"certreg/pkg/platform/sentinel"
	"certreg/pkg/requestcontext"
	certtest "certreg/pkg/testutil"
)

var fixedNow = time.Unix(1_700_000_000, 0)

// =============================================================================
// Registry Service Test Suite
// =============================================================================
// Runs against the in-memory ledger and event log. Backend-specific
// transaction behaviour is covered by the ledger integration suites.

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	ledger  *memory.Ledger
	events  *eventlog.Log
	metrics *registrymetrics.Metrics
	service *Service

	admin  certtest.Signer
	issuer certtest.Signer
	other  certtest.Signer
	alice  certtest.Signer
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), fixedNow)
	s.ledger = memory.New()
	s.events = eventlog.New()
	s.metrics = registrymetrics.NewWithRegistry(prometheus.NewRegistry())

	s.admin = certtest.NewSigner(s.T(), "admin")
	s.issuer = certtest.NewSigner(s.T(), "issuer")
	s.other = certtest.NewSigner(s.T(), "other")
	s.alice = certtest.NewSigner(s.T(), "alice")

	program := certtest.NewSigner(s.T(), "program").Public
	svc, err := New(s.ledger, address.NewDeriver(program),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithPublisher(s.events),
		WithMetrics(s.metrics),
		WithTracer(noop.NewTracerProvider().Tracer("test")),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *ServiceSuite) initialize() {
	_, err := s.service.Initialize(s.ctx, s.admin.Public)
	s.Require().NoError(err)
}

func (s *ServiceSuite) registerIssuer(authority domain.PublicKey) {
	_, err := s.service.RegisterIssuer(s.ctx, s.admin.Public, authority, "Acme U", "")
	s.Require().NoError(err)
}

func (s *ServiceSuite) issue(certificateID string) *models.Certificate {
	cert, err := s.service.IssueCertificate(s.ctx, s.issuer.Public, certificateID, s.alice.Public, "ipfs://meta", models.NoExpiry)
	s.Require().NoError(err)
	return cert
}

func (s *ServiceSuite) registry() *models.Registry {
	reg, err := s.service.GetRegistry(s.ctx)
	s.Require().NoError(err)
	return reg
}

// seed writes records straight into the ledger, bypassing the service checks.
func (s *ServiceSuite) seed(fn func(ctx context.Context, tx *store.Tx) error) {
	s.Require().NoError(s.ledger.RunInTx(s.ctx, func(ctx context.Context, tx ledger.Tx) error {
		return fn(ctx, store.WrapTx(tx))
	}))
}

func (s *ServiceSuite) eventTypes() []string {
	var out []string
	for _, e := range s.events.List() {
		out = append(out, e.Type)
	}
	return out
}

// =============================================================================
// Constructor
// =============================================================================

func (s *ServiceSuite) TestNew() {
	s.Run("nil ledger returns error", func() {
		_, err := New(nil, address.NewDeriver(s.admin.Public))
		s.ErrorContains(err, "ledger is required")
	})

	s.Run("nil deriver returns error", func() {
		_, err := New(s.ledger, nil)
		s.ErrorContains(err, "address deriver is required")
	})

	s.Run("defaults are applied", func() {
		svc, err := New(s.ledger, address.NewDeriver(s.admin.Public))
		s.Require().NoError(err)
		s.NotNil(svc.logger)
		s.NotNil(svc.tracer)
		s.IsType(events.Discard{}, svc.publisher)
	})
}

// =============================================================================
// Registry
// =============================================================================

func (s *ServiceSuite) TestInitialize() {
	s.Run("before initialization the registry is missing", func() {
		_, err := s.service.GetRegistry(s.ctx)
		s.ErrorIs(err, models.ErrNotInitialized)
	})

	s.Run("first call creates the registry with zero counters", func() {
		reg, err := s.service.Initialize(s.ctx, s.admin.Public)
		s.Require().NoError(err)
		s.Equal(s.admin.Public, reg.Admin)
		s.Zero(reg.TotalIssuers)
		s.Zero(reg.TotalCertificates)
		s.Equal(reg, s.registry())
	})

	s.Run("second call fails and keeps the original admin", func() {
		_, err := s.service.Initialize(s.ctx, s.other.Public)
		s.ErrorIs(err, models.ErrAlreadyInitialized)
		s.Equal(s.admin.Public, s.registry().Admin)
	})

	s.Run("zero caller is rejected", func() {
		_, err := s.service.Initialize(s.ctx, domain.PublicKey{})
		s.ErrorIs(err, models.ErrInvalidKey)
	})

	s.Equal([]string{"RegistryInitialized"}, s.eventTypes())
}

// =============================================================================
// Issuer directory
// =============================================================================

func (s *ServiceSuite) TestRegisterIssuer() {
	s.Run("fails before initialization", func() {
		_, err := s.service.RegisterIssuer(s.ctx, s.admin.Public, s.issuer.Public, "Acme U", "")
		s.ErrorIs(err, models.ErrNotInitialized)
	})

	s.initialize()

	s.Run("non-admin signer is unauthorized even with invalid fields", func() {
		_, err := s.service.RegisterIssuer(s.ctx, s.other.Public, s.issuer.Public, "", "")
		s.ErrorIs(err, models.ErrUnauthorized)
	})

	s.Run("name is checked before details", func() {
		_, err := s.service.RegisterIssuer(s.ctx, s.admin.Public, s.issuer.Public, strings.Repeat("n", 101), strings.Repeat("d", 501))
		s.ErrorIs(err, models.ErrInvalidName)
	})

	s.Run("details over the limit", func() {
		_, err := s.service.RegisterIssuer(s.ctx, s.admin.Public, s.issuer.Public, "Acme U", strings.Repeat("d", 501))
		s.ErrorIs(err, models.ErrInvalidDetails)
	})

	s.Run("boundary lengths succeed", func() {
		iss, err := s.service.RegisterIssuer(s.ctx, s.admin.Public, s.issuer.Public, strings.Repeat("n", 100), strings.Repeat("d", 500))
		s.Require().NoError(err)
		s.True(iss.Active)
		s.Equal(fixedNow.Unix(), iss.RegistrationDate)
		s.Zero(iss.TotalIssued)
		s.Equal(uint64(1), s.registry().TotalIssuers)
	})

	s.Run("second registration of the same authority fails", func() {
		_, err := s.service.RegisterIssuer(s.ctx, s.admin.Public, s.issuer.Public, "Other", "")
		s.ErrorIs(err, models.ErrAlreadyExists)
		s.Equal(uint64(1), s.registry().TotalIssuers)

		got, err := s.service.GetIssuer(s.ctx, s.issuer.Public)
		s.Require().NoError(err)
		s.Equal(strings.Repeat("n", 100), got.Name)
	})

	s.Equal([]string{"RegistryInitialized", "IssuerRegistered"}, s.eventTypes())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.IssuersRegistered))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.OperationErrors.WithLabelValues("register_issuer", "already_exists")))
}

func (s *ServiceSuite) TestUpdateIssuerStatus() {
	s.initialize()
	s.registerIssuer(s.issuer.Public)

	s.Run("non-admin is unauthorized", func() {
		_, err := s.service.UpdateIssuerStatus(s.ctx, s.issuer.Public, s.issuer.Public, false)
		s.ErrorIs(err, models.ErrUnauthorized)
	})

	s.Run("zero authority is an invalid key, after the admin check", func() {
		_, err := s.service.UpdateIssuerStatus(s.ctx, s.admin.Public, domain.PublicKey{}, false)
		s.ErrorIs(err, models.ErrInvalidKey)

		_, err = s.service.UpdateIssuerStatus(s.ctx, s.issuer.Public, domain.PublicKey{}, false)
		s.ErrorIs(err, models.ErrUnauthorized)
	})

	s.Run("unknown issuer is not found", func() {
		_, err := s.service.UpdateIssuerStatus(s.ctx, s.admin.Public, s.other.Public, false)
		s.ErrorIs(err, models.ErrNotFound)
	})

	s.Run("deactivation is idempotent", func() {
		for i := 0; i < 2; i++ {
			iss, err := s.service.UpdateIssuerStatus(s.ctx, s.admin.Public, s.issuer.Public, false)
			s.Require().NoError(err)
			s.False(iss.Active)
		}
		got, err := s.service.GetIssuer(s.ctx, s.issuer.Public)
		s.Require().NoError(err)
		s.False(got.Active)
		s.Equal("Acme U", got.Name)
		s.Equal(fixedNow.Unix(), got.RegistrationDate)
	})

	s.Run("inactive issuer cannot issue and reactivation restores it", func() {
		_, err := s.service.IssueCertificate(s.ctx, s.issuer.Public, "C-1", s.alice.Public, "", 0)
		s.ErrorIs(err, models.ErrIssuerNotActive)

		_, err = s.service.UpdateIssuerStatus(s.ctx, s.admin.Public, s.issuer.Public, true)
		s.Require().NoError(err)
		s.issue("C-1")
	})

	s.Len(s.events.ListByType("IssuerStatusUpdated"), 3)
}

// =============================================================================
// Certificate ledger
// =============================================================================

func (s *ServiceSuite) TestIssueCertificate() {
	s.initialize()
	s.registerIssuer(s.issuer.Public)

	s.Run("issued fields read back identically", func() {
		expiry := fixedNow.Add(24 * time.Hour).Unix()
		_, err := s.service.IssueCertificate(s.ctx, s.issuer.Public, "CERT-7", s.alice.Public, "https://example.org/c7", expiry)
		s.Require().NoError(err)

		got, err := s.service.VerifyCertificate(s.ctx, "CERT-7")
		s.Require().NoError(err)
		s.Equal("CERT-7", got.CertificateID)
		s.Equal(s.issuer.Public, got.Issuer)
		s.Equal(s.alice.Public, got.Recipient)
		s.Equal(fixedNow.Unix(), got.IssueDate)
		s.Equal(expiry, got.ExpiryDate)
		s.Equal("https://example.org/c7", got.MetadataURI)
		s.False(got.Revoked)
	})

	s.Run("counters advance together", func() {
		s.Equal(uint64(1), s.registry().TotalCertificates)
		iss, err := s.service.GetIssuer(s.ctx, s.issuer.Public)
		s.Require().NoError(err)
		s.Equal(uint64(1), iss.TotalIssued)
	})

	s.Run("past or present expiry is rejected without side effects", func() {
		for _, expiry := range []int64{fixedNow.Unix() - 1, fixedNow.Unix()} {
			_, err := s.service.IssueCertificate(s.ctx, s.issuer.Public, "CERT-PAST", s.alice.Public, "", expiry)
			s.ErrorIs(err, models.ErrInvalidExpiryDate)
		}
		_, err := s.service.VerifyCertificate(s.ctx, "CERT-PAST")
		s.ErrorIs(err, models.ErrNotFound)
		s.Equal(uint64(1), s.registry().TotalCertificates)
	})

	s.Run("validation order: id, uri, expiry, issuer", func() {
		longID := strings.Repeat("x", 65)
		longURI := strings.Repeat("u", 201)
		past := fixedNow.Unix() - 10

		_, err := s.service.IssueCertificate(s.ctx, s.other.Public, longID, s.alice.Public, longURI, past)
		s.ErrorIs(err, models.ErrInvalidCertificateID)

		_, err = s.service.IssueCertificate(s.ctx, s.other.Public, "", s.alice.Public, longURI, past)
		s.ErrorIs(err, models.ErrInvalidCertificateID)

		_, err = s.service.IssueCertificate(s.ctx, s.other.Public, "ok", s.alice.Public, longURI, past)
		s.ErrorIs(err, models.ErrInvalidMetadataURI)

		_, err = s.service.IssueCertificate(s.ctx, s.other.Public, "ok", s.alice.Public, "", past)
		s.ErrorIs(err, models.ErrInvalidExpiryDate)

		_, err = s.service.IssueCertificate(s.ctx, s.other.Public, "ok", s.alice.Public, "", 0)
		s.ErrorIs(err, models.ErrUnauthorizedIssuer)
	})

	s.Run("boundary lengths succeed", func() {
		_, err := s.service.IssueCertificate(s.ctx, s.issuer.Public, strings.Repeat("i", 64), s.alice.Public, strings.Repeat("u", 200), 0)
		s.NoError(err)
	})

	s.Run("certificate ids are global across issuers", func() {
		second := certtest.NewSigner(s.T(), "issuer-2")
		s.registerIssuer(second.Public)

		_, err := s.service.IssueCertificate(s.ctx, second.Public, "CERT-7", s.alice.Public, "", 0)
		s.ErrorIs(err, models.ErrAlreadyExists)

		iss, err := s.service.GetIssuer(s.ctx, second.Public)
		s.Require().NoError(err)
		s.Zero(iss.TotalIssued)
	})
}

func (s *ServiceSuite) TestIssueWithoutRegistry() {
	_, err := s.service.IssueCertificate(s.ctx, s.issuer.Public, "CERT-1", s.alice.Public, "", 0)
	s.ErrorIs(err, models.ErrUnauthorizedIssuer)
	s.Zero(s.events.Len())
}

func (s *ServiceSuite) TestRevokeCertificate() {
	s.initialize()
	s.registerIssuer(s.issuer.Public)
	s.issue("CERT-1")
	s.issue("CERT-2")

	s.Run("unknown certificate is not found", func() {
		_, err := s.service.RevokeCertificate(s.ctx, s.issuer.Public, "missing")
		s.ErrorIs(err, models.ErrNotFound)
	})

	s.Run("recipient cannot revoke", func() {
		_, err := s.service.RevokeCertificate(s.ctx, s.alice.Public, "CERT-1")
		s.ErrorIs(err, models.ErrUnauthorizedRevoke)
	})

	s.Run("issuer revokes once", func() {
		cert, err := s.service.RevokeCertificate(s.ctx, s.issuer.Public, "CERT-1")
		s.Require().NoError(err)
		s.True(cert.Revoked)

		_, err = s.service.RevokeCertificate(s.ctx, s.issuer.Public, "CERT-1")
		s.ErrorIs(err, models.ErrAlreadyRevoked)

		got, err := s.service.VerifyCertificate(s.ctx, "CERT-1")
		s.Require().NoError(err)
		s.True(got.Revoked)
	})

	s.Run("outsider revoking a revoked certificate is unauthorized, not a conflict", func() {
		_, err := s.service.RevokeCertificate(s.ctx, s.alice.Public, "CERT-1")
		s.ErrorIs(err, models.ErrUnauthorizedRevoke)

		_, err = s.service.RevokeCertificate(s.ctx, s.other.Public, "CERT-1")
		s.ErrorIs(err, models.ErrUnauthorizedRevoke)
	})

	s.Run("admin may revoke any certificate", func() {
		_, err := s.service.RevokeCertificate(s.ctx, s.admin.Public, "CERT-2")
		s.NoError(err)
	})

	s.Run("revocation leaves counters unchanged", func() {
		reg := s.registry()
		s.Equal(uint64(2), reg.TotalCertificates)
		s.Equal(uint64(1), reg.TotalIssuers)
	})

	s.Len(s.events.ListByType("CertificateRevoked"), 2)
	s.Equal(2.0, testutil.ToFloat64(s.metrics.CertificatesRevoked))
}

// TestRevokeRevalidatesIssuer covers certificates whose stored issuer copy no
// longer lines up with an issuer record. Even the admin cannot revoke them.
func (s *ServiceSuite) TestRevokeRevalidatesIssuer() {
	s.initialize()
	ghost := certtest.NewSigner(s.T(), "ghost")

	certAddr, certBump, err := s.service.Deriver().Certificate("ORPHAN")
	s.Require().NoError(err)
	s.seed(func(ctx context.Context, tx *store.Tx) error {
		cert := models.NewCertificate("ORPHAN", ghost.Public, s.alice.Public, "", fixedNow.Unix(), models.NoExpiry, certBump)
		return tx.CreateCertificate(ctx, certAddr, cert)
	})

	assertUnchanged := func(eventsBefore int) {
		cert, err := s.service.VerifyCertificate(s.ctx, "ORPHAN")
		s.Require().NoError(err)
		s.False(cert.Revoked)
		s.Len(s.events.List(), eventsBefore)
	}

	s.Run("issuer record is missing", func() {
		before := len(s.events.List())
		for _, signer := range []domain.PublicKey{s.admin.Public, ghost.Public} {
			_, err := s.service.RevokeCertificate(s.ctx, signer, "ORPHAN")
			s.ErrorIs(err, models.ErrUnauthorizedRevoke)
		}
		assertUnchanged(before)
	})

	s.Run("issuer record names another authority", func() {
		issuerAddr, issuerBump, err := s.service.Deriver().Issuer(ghost.Public)
		s.Require().NoError(err)
		s.seed(func(ctx context.Context, tx *store.Tx) error {
			impostor, err := models.NewIssuer(s.other.Public, "Impostor", "", fixedNow.Unix(), issuerBump)
			if err != nil {
				return err
			}
			return tx.CreateIssuer(ctx, issuerAddr, impostor)
		})

		before := len(s.events.List())
		for _, signer := range []domain.PublicKey{s.admin.Public, ghost.Public, s.other.Public} {
			_, err := s.service.RevokeCertificate(s.ctx, signer, "ORPHAN")
			s.ErrorIs(err, models.ErrUnauthorizedRevoke)
		}
		assertUnchanged(before)
	})
}

// TestInvalidUTF8IsRejected verifies text fields are stored exactly as
// supplied: invalid UTF-8 is refused rather than rewritten.
func (s *ServiceSuite) TestInvalidUTF8IsRejected() {
	s.initialize()

	s.Run("issuer name", func() {
		_, err := s.service.RegisterIssuer(s.ctx, s.admin.Public, s.issuer.Public, "Acme \xff", "")
		s.ErrorIs(err, models.ErrInvalidName)
	})

	s.registerIssuer(s.issuer.Public)

	s.Run("certificate id", func() {
		_, err := s.service.IssueCertificate(s.ctx, s.issuer.Public, "CERT-\xff", s.alice.Public, "", models.NoExpiry)
		s.ErrorIs(err, models.ErrInvalidCertificateID)

		_, err = s.service.VerifyCertificate(s.ctx, "CERT-\xff")
		s.ErrorIs(err, models.ErrInvalidCertificateID)
		_, err = s.service.RevokeCertificate(s.ctx, s.issuer.Public, "CERT-\xff")
		s.ErrorIs(err, models.ErrInvalidCertificateID)
	})

	s.Run("metadata uri", func() {
		_, err := s.service.IssueCertificate(s.ctx, s.issuer.Public, "CERT-U", s.alice.Public, "ipfs://\xc3", models.NoExpiry)
		s.ErrorIs(err, models.ErrInvalidMetadataURI)
	})

	s.Equal(uint64(0), s.registry().TotalCertificates)

	s.Run("multibyte text round-trips unchanged", func() {
		id := "CERT-ü-証明"
		uri := "https://example.com/ü"
		_, err := s.service.IssueCertificate(s.ctx, s.issuer.Public, id, s.alice.Public, uri, models.NoExpiry)
		s.Require().NoError(err)

		got, err := s.service.VerifyCertificate(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(id, got.CertificateID)
		s.Equal(uri, got.MetadataURI)
	})
}

func (s *ServiceSuite) TestVerifyCertificate() {
	s.Run("invalid id length", func() {
		_, err := s.service.VerifyCertificate(s.ctx, "")
		s.ErrorIs(err, models.ErrInvalidCertificateID)
	})

	s.Run("expired certificates are still returned", func() {
		s.initialize()
		s.registerIssuer(s.issuer.Public)
		expiry := fixedNow.Add(time.Hour).Unix()
		_, err := s.service.IssueCertificate(s.ctx, s.issuer.Public, "SHORT", s.alice.Public, "", expiry)
		s.Require().NoError(err)

		later := requestcontext.WithTime(context.Background(), fixedNow.Add(2*time.Hour))
		cert, err := s.service.VerifyCertificate(later, "SHORT")
		s.Require().NoError(err)
		s.Equal(models.Status{Revoked: false, Expired: true, Valid: false}, cert.Status(fixedNow.Add(2*time.Hour).Unix()))
	})
}

func (s *ServiceSuite) TestListings() {
	s.initialize()
	s.registerIssuer(s.issuer.Public)
	bob := certtest.NewSigner(s.T(), "bob")

	s.issue("A-1")
	_, err := s.service.IssueCertificate(s.ctx, s.issuer.Public, "B-1", bob.Public, "", 0)
	s.Require().NoError(err)

	byIssuer, err := s.service.ListCertificatesByIssuer(s.ctx, s.issuer.Public)
	s.Require().NoError(err)
	s.Len(byIssuer, 2)

	byRecipient, err := s.service.ListCertificatesByRecipient(s.ctx, bob.Public)
	s.Require().NoError(err)
	s.Require().Len(byRecipient, 1)
	s.Equal("B-1", byRecipient[0].CertificateID)

	none, err := s.service.ListCertificatesByIssuer(s.ctx, s.other.Public)
	s.Require().NoError(err)
	s.Empty(none)
}

// TestScenario walks the lifecycle end to end.
func (s *ServiceSuite) TestScenario() {
	t := s.T()
	x := certtest.NewSigner(t, "x")
	svc := s.service

	registry := func(t *testing.T) *models.Registry {
		reg, err := svc.GetRegistry(s.ctx)
		require.NoError(t, err)
		return reg
	}
	snapshot := func(t *testing.T) string {
		addr, _, err := svc.Deriver().Certificate("CERT-001")
		require.NoError(t, err)
		rec, err := s.ledger.Get(s.ctx, addr)
		require.NoError(t, err)
		return string(rec.Data)
	}

	certtest.Given(t, "an initialized registry with issuer I", func(t *testing.T) {
		reg, err := svc.Initialize(s.ctx, s.admin.Public)
		require.NoError(t, err)
		assert.Zero(t, reg.TotalCertificates)
		assert.Zero(t, reg.TotalIssuers)

		iss, err := svc.RegisterIssuer(s.ctx, s.admin.Public, s.issuer.Public, "Acme U", "")
		require.NoError(t, err)
		assert.True(t, iss.Active)
		assert.Equal(t, uint64(1), registry(t).TotalIssuers)
	})

	certtest.When(t, "I issues CERT-001 to R without expiry", func(t *testing.T) {
		cert, err := svc.IssueCertificate(s.ctx, s.issuer.Public, "CERT-001", s.alice.Public, "", 0)
		require.NoError(t, err)
		assert.False(t, cert.Revoked)
		assert.Equal(t, uint64(1), registry(t).TotalCertificates)

		iss, err := svc.GetIssuer(s.ctx, s.issuer.Public)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), iss.TotalIssued)
	})

	certtest.Then(t, "a non-issuer cannot revoke it", func(t *testing.T) {
		before := snapshot(t)
		_, err := svc.RevokeCertificate(s.ctx, x.Public, "CERT-001")
		assert.ErrorIs(t, err, models.ErrUnauthorizedRevoke)
		assert.Equal(t, before, snapshot(t))
	})

	certtest.Then(t, "I revokes it and counters stay put", func(t *testing.T) {
		_, err := svc.RevokeCertificate(s.ctx, s.issuer.Public, "CERT-001")
		require.NoError(t, err)

		reg := registry(t)
		assert.Equal(t, uint64(1), reg.TotalCertificates)
		assert.Equal(t, uint64(1), reg.TotalIssuers)

		cert, err := svc.VerifyCertificate(s.ctx, "CERT-001")
		require.NoError(t, err)
		assert.True(t, cert.Revoked)
		assert.Equal(t, models.NoExpiry, cert.ExpiryDate)
	})

	s.Equal([]string{
		"RegistryInitialized",
		"IssuerRegistered",
		"CertificateIssued",
		"CertificateRevoked",
	}, s.eventTypes())
}

// =============================================================================
// Concurrency
// =============================================================================

func (s *ServiceSuite) TestConcurrentIssueSameID() {
	s.initialize()
	s.registerIssuer(s.issuer.Public)

	const goroutines = 30
	var wg sync.WaitGroup
	var ok, conflict atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.IssueCertificate(s.ctx, s.issuer.Public, "RACE", s.alice.Public, "", 0)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, models.ErrAlreadyExists):
				conflict.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), ok.Load())
	s.Equal(int32(goroutines-1), conflict.Load())
	s.Equal(uint64(1), s.registry().TotalCertificates)
	s.Len(s.events.ListByType("CertificateIssued"), 1)
}

func (s *ServiceSuite) TestConcurrentRevoke() {
	s.initialize()
	s.registerIssuer(s.issuer.Public)
	s.issue("RACE")

	const goroutines = 10
	var wg sync.WaitGroup
	var ok, already atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.RevokeCertificate(s.ctx, s.issuer.Public, "RACE")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, models.ErrAlreadyRevoked):
				already.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), ok.Load())
	s.Equal(int32(goroutines-1), already.Load())
}

func (s *ServiceSuite) TestConcurrentDistinctIssuesKeepCountersExact() {
	s.initialize()
	s.registerIssuer(s.issuer.Public)

	const goroutines = 25
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.service.IssueCertificate(s.ctx, s.issuer.Public, fmt.Sprintf("C-%d", i), s.alice.Public, "", 0)
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	s.Equal(uint64(goroutines), s.registry().TotalCertificates)
	iss, err := s.service.GetIssuer(s.ctx, s.issuer.Public)
	s.Require().NoError(err)
	s.Equal(uint64(goroutines), iss.TotalIssued)
}

// =============================================================================
// Ledger failures
// =============================================================================

type failingLedger struct {
	ledger.Ledger
	err error
}

func (f failingLedger) RunInTx(context.Context, func(context.Context, ledger.Tx) error) error {
	return f.err
}

func (s *ServiceSuite) TestLedgerFailuresAreCoded() {
	program := certtest.NewSigner(s.T(), "program").Public

	s.Run("contention maps to unavailable", func() {
		svc, err := New(failingLedger{Ledger: s.ledger, err: fmt.Errorf("lost race: %w", sentinel.ErrUnavailable)}, address.NewDeriver(program))
		s.Require().NoError(err)
		_, err = svc.Initialize(s.ctx, s.admin.Public)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	s.Run("unknown failures are internal", func() {
		svc, err := New(failingLedger{Ledger: s.ledger, err: errors.New("disk on fire")}, address.NewDeriver(program))
		s.Require().NoError(err)
		_, err = svc.Initialize(s.ctx, s.admin.Public)
		s.Equal(dErrors.CodeInternal, dErrors.CodeOf(err))
	})
}

// =============================================================================
// Event publishing
// =============================================================================

type PublisherSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	publisher *mocks.MockPublisher
	metrics   *registrymetrics.Metrics
	service   *Service
	ctx       context.Context
	admin     certtest.Signer
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.metrics = registrymetrics.NewWithRegistry(prometheus.NewRegistry())
	s.ctx = requestcontext.WithTime(context.Background(), fixedNow)
	s.admin = certtest.NewSigner(s.T(), "admin")

	svc, err := New(memory.New(), address.NewDeriver(certtest.NewSigner(s.T(), "program").Public),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithPublisher(s.publisher),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *PublisherSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *PublisherSuite) TestPublishesEnvelopeAfterCommit() {
	regAddr, _, err := s.service.Deriver().Registry()
	s.Require().NoError(err)

	s.publisher.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, env events.Envelope) error {
			s.Equal("RegistryInitialized", env.Type)
			s.Equal(regAddr.String(), env.Address)
			s.True(fixedNow.Equal(env.Timestamp))
			s.JSONEq(fmt.Sprintf(`{"admin":%q,"timestamp":%d}`, s.admin.Public.String(), fixedNow.Unix()), string(env.Payload))

			// the record is already committed when the event goes out
			_, err := s.service.GetRegistry(s.ctx)
			s.NoError(err)
			return nil
		})

	_, err = s.service.Initialize(s.ctx, s.admin.Public)
	s.NoError(err)
}

func (s *PublisherSuite) TestFailedOperationPublishesNothing() {
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	_, err := s.service.Initialize(s.ctx, s.admin.Public)
	s.Require().NoError(err)
	_, err = s.service.Initialize(s.ctx, s.admin.Public)
	s.ErrorIs(err, models.ErrAlreadyInitialized)
}

func (s *PublisherSuite) TestPublishFailureDoesNotFailCommittedOperation() {
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	reg, err := s.service.Initialize(s.ctx, s.admin.Public)
	s.Require().NoError(err)
	s.NotNil(reg)

	_, err = s.service.GetRegistry(s.ctx)
	s.NoError(err)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.EventPublishFailures))
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"certreg/internal/registry/models"
	"certreg/pkg/address"
	"certreg/pkg/domain"
	dErrors "certreg/pkg/domain-errors"
	"certreg/pkg/platform/httputil"
	"certreg/pkg/requestcontext"
)

// Service is the registry surface the HTTP layer drives.
type Service interface {
	Initialize(ctx context.Context, caller domain.PublicKey) (*models.Registry, error)
	GetRegistry(ctx context.Context) (*models.Registry, error)
	RegisterIssuer(ctx context.Context, signer, authority domain.PublicKey, name, details string) (*models.Issuer, error)
	UpdateIssuerStatus(ctx context.Context, signer, authority domain.PublicKey, active bool) (*models.Issuer, error)
	GetIssuer(ctx context.Context, authority domain.PublicKey) (*models.Issuer, error)
	IssueCertificate(ctx context.Context, signer domain.PublicKey, certificateID string, recipient domain.PublicKey, metadataURI string, expiryDate int64) (*models.Certificate, error)
	RevokeCertificate(ctx context.Context, signer domain.PublicKey, certificateID string) (*models.Certificate, error)
	VerifyCertificate(ctx context.Context, certificateID string) (*models.Certificate, error)
	ListCertificatesByIssuer(ctx context.Context, issuer domain.PublicKey) ([]*models.Certificate, error)
	ListCertificatesByRecipient(ctx context.Context, recipient domain.PublicKey) ([]*models.Certificate, error)
}

// Handler serves the registry routes. Signed routes sit behind
// requireSigner, which must put the signer key into the request context.
type Handler struct {
	svc           Service
	deriver       *address.Deriver
	requireSigner func(http.Handler) http.Handler
	logger        *slog.Logger
}

func New(svc Service, deriver *address.Deriver, requireSigner func(http.Handler) http.Handler, logger *slog.Logger) *Handler {
	return &Handler{
		svc:           svc,
		deriver:       deriver,
		requireSigner: requireSigner,
		logger:        logger,
	}
}

// Register registers the registry routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/registry", h.handleGetRegistry)
	r.Get("/issuers/{authority}", h.handleGetIssuer)
	r.Get("/issuers/{authority}/certificates", h.handleListByIssuer)
	r.Get("/certificates/{id}", h.handleVerifyCertificate)
	r.Get("/recipients/{recipient}/certificates", h.handleListByRecipient)
	r.Get("/addresses/{namespace}/{key}", h.handleDeriveAddress)

	r.Group(func(r chi.Router) {
		r.Use(h.requireSigner)
		r.Post("/registry/initialize", h.handleInitialize)
		r.Post("/issuers", h.handleRegisterIssuer)
		r.Patch("/issuers/{authority}/status", h.handleUpdateIssuerStatus)
		r.Post("/certificates", h.handleIssueCertificate)
		r.Post("/certificates/{id}/revoke", h.handleRevokeCertificate)
	})
}

func (h *Handler) handleInitialize(w http.ResponseWriter, r *http.Request) {
	signer, ok := h.signer(w, r)
	if !ok {
		return
	}
	reg, err := h.svc.Initialize(r.Context(), signer)
	if err != nil {
		h.fail(w, r, "initialize registry", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, h.registryResponse(reg))
}

func (h *Handler) handleGetRegistry(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.GetRegistry(r.Context())
	if err != nil {
		h.fail(w, r, "get registry", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.registryResponse(reg))
}

func (h *Handler) handleRegisterIssuer(w http.ResponseWriter, r *http.Request) {
	signer, ok := h.signer(w, r)
	if !ok {
		return
	}
	req, ok := decode[RegisterIssuerRequest](w, r)
	if !ok {
		return
	}
	issuer, err := h.svc.RegisterIssuer(r.Context(), signer, bodyKey(req.Authority), req.Name, req.Details)
	if err != nil {
		h.fail(w, r, "register issuer", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, h.issuerResponse(issuer))
}

func (h *Handler) handleUpdateIssuerStatus(w http.ResponseWriter, r *http.Request) {
	signer, ok := h.signer(w, r)
	if !ok {
		return
	}
	req, ok := decode[UpdateIssuerStatusRequest](w, r)
	if !ok {
		return
	}
	if req.Active == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "active is required"))
		return
	}
	authority := bodyKey(chi.URLParam(r, "authority"))
	issuer, err := h.svc.UpdateIssuerStatus(r.Context(), signer, authority, *req.Active)
	if err != nil {
		h.fail(w, r, "update issuer status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.issuerResponse(issuer))
}

func (h *Handler) handleGetIssuer(w http.ResponseWriter, r *http.Request) {
	authority, err := parseKey(chi.URLParam(r, "authority"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	issuer, err := h.svc.GetIssuer(r.Context(), authority)
	if err != nil {
		h.fail(w, r, "get issuer", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.issuerResponse(issuer))
}

func (h *Handler) handleIssueCertificate(w http.ResponseWriter, r *http.Request) {
	signer, ok := h.signer(w, r)
	if !ok {
		return
	}
	req, ok := decode[IssueCertificateRequest](w, r)
	if !ok {
		return
	}
	cert, err := h.svc.IssueCertificate(r.Context(), signer, req.CertificateID, bodyKey(req.Recipient), req.MetadataURI, req.ExpiryDate)
	if err != nil {
		h.fail(w, r, "issue certificate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, h.certificateResponse(cert))
}

func (h *Handler) handleRevokeCertificate(w http.ResponseWriter, r *http.Request) {
	signer, ok := h.signer(w, r)
	if !ok {
		return
	}
	id, err := certificateIDParam(r)
	if err != nil {
		h.fail(w, r, "revoke certificate", err)
		return
	}
	cert, err := h.svc.RevokeCertificate(r.Context(), signer, id)
	if err != nil {
		h.fail(w, r, "revoke certificate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.certificateResponse(cert))
}

func (h *Handler) handleVerifyCertificate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := certificateIDParam(r)
	if err != nil {
		h.fail(w, r, "verify certificate", err)
		return
	}
	cert, err := h.svc.VerifyCertificate(ctx, id)
	if err != nil {
		h.fail(w, r, "verify certificate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VerifyResponse{
		CertificateResponse: h.certificateResponse(cert),
		Status:              cert.Status(requestcontext.Now(ctx).Unix()),
	})
}

func (h *Handler) handleListByIssuer(w http.ResponseWriter, r *http.Request) {
	issuer, err := parseKey(chi.URLParam(r, "authority"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	certs, err := h.svc.ListCertificatesByIssuer(r.Context(), issuer)
	if err != nil {
		h.fail(w, r, "list certificates by issuer", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.listResponse(certs))
}

func (h *Handler) handleListByRecipient(w http.ResponseWriter, r *http.Request) {
	recipient, err := parseKey(chi.URLParam(r, "recipient"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	certs, err := h.svc.ListCertificatesByRecipient(r.Context(), recipient)
	if err != nil {
		h.fail(w, r, "list certificates by recipient", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.listResponse(certs))
}

// handleDeriveAddress exposes address derivation so clients can check where
// a record lives. The registry namespace ignores its key segment.
func (h *Handler) handleDeriveAddress(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	key, err := pathParam(r, "key")
	if err != nil {
		h.fail(w, r, "derive address", dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed path escape"))
		return
	}

	var (
		addr address.Address
		bump uint8
	)
	switch namespace {
	case address.NamespaceRegistry:
		addr, bump, err = h.deriver.Registry()
	case address.NamespaceIssuer:
		var authority domain.PublicKey
		if authority, err = parseKey(key); err == nil {
			addr, bump, err = h.deriver.Issuer(authority)
		}
	case address.NamespaceCertificate:
		if err = models.ValidateCertificateID(key); err == nil {
			addr, bump, err = h.deriver.Certificate(key)
		}
	default:
		err = dErrors.New(dErrors.CodeNotFound, "unknown namespace")
	}
	if err != nil {
		h.fail(w, r, "derive address", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AddressResponse{
		Namespace: namespace,
		Address:   addr.String(),
		Bump:      bump,
	})
}

func (h *Handler) signer(w http.ResponseWriter, r *http.Request) (domain.PublicKey, bool) {
	pk, ok := requestcontext.Signer(r.Context())
	if !ok {
		h.logger.ErrorContext(r.Context(), "signer missing from context despite signer middleware",
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "signer required"))
		return domain.PublicKey{}, false
	}
	return pk, true
}

// fail writes err. Coded client errors are logged at warn level, anything
// that maps to a 5xx at error level.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	ctx := r.Context()
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "failed to "+action,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	} else {
		h.logger.WarnContext(ctx, "rejected "+action,
			"reason", dErrors.Reason(err),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}

func decode[T any](w http.ResponseWriter, r *http.Request) (*T, bool) {
	body, err := httputil.ReadBody(r)
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	req, err := httputil.DecodeJSON[T](body)
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	return req, true
}

// pathParam returns a decoded route parameter. chi matches on RawPath when
// the request carries escapes such as %2F, and the captured segment is then
// still escaped.
func pathParam(r *http.Request, name string) (string, error) {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}

func certificateIDParam(r *http.Request) (string, error) {
	id, err := pathParam(r, "id")
	if err != nil {
		return "", models.ErrInvalidCertificateID
	}
	return id, nil
}

// bodyKey parses a key the service validates itself. A malformed key becomes
// the zero key, which the service rejects as InvalidKey at its own point in
// the check order.
func bodyKey(s string) domain.PublicKey {
	pk, err := domain.ParsePublicKey(s)
	if err != nil {
		return domain.PublicKey{}
	}
	return pk
}

// parseKey maps any malformed key to the registry's invalid-key error.
func parseKey(s string) (domain.PublicKey, error) {
	pk, err := domain.ParsePublicKey(s)
	if err != nil {
		return domain.PublicKey{}, models.ErrInvalidKey
	}
	return pk, nil
}

func (h *Handler) registryResponse(reg *models.Registry) RegistryResponse {
	addr, _, _ := h.deriver.Registry()
	return RegistryResponse{Address: addr.String(), Registry: reg}
}

func (h *Handler) issuerResponse(issuer *models.Issuer) IssuerResponse {
	addr, _, _ := h.deriver.Issuer(issuer.Authority)
	return IssuerResponse{Address: addr.String(), Issuer: issuer}
}

func (h *Handler) certificateResponse(cert *models.Certificate) CertificateResponse {
	addr, _, _ := h.deriver.Certificate(cert.CertificateID)
	return CertificateResponse{Address: addr.String(), Certificate: cert}
}

func (h *Handler) listResponse(certs []*models.Certificate) CertificateListResponse {
	out := CertificateListResponse{
		Certificates: make([]CertificateResponse, 0, len(certs)),
		Count:        len(certs),
	}
	for _, cert := range certs {
		out.Certificates = append(out.Certificates, h.certificateResponse(cert))
	}
	return out
}

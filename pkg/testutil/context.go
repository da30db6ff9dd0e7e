package testutil

import (
	"net/http"
	"time"

	"certreg/pkg/domain"
	"certreg/pkg/requestcontext"
)

// WithSigner marks the request as authenticated by signer, as the signer
// middleware would.
func WithSigner(req *http.Request, signer domain.PublicKey) *http.Request {
	return req.WithContext(requestcontext.WithSigner(req.Context(), signer))
}

// WithRequestTime pins the request clock.
func WithRequestTime(req *http.Request, at time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), at))
}

package httpserver

import (
	"net/http"
	"time"

	"certreg/pkg/platform/httputil"
)

// New builds the API server. Request bodies are capped by the handlers, so
// only header and idle limits live here.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    httputil.MaxBodyBytes,
	}
}

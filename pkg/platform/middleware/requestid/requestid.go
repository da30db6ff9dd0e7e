// Package requestid tags every request with an identifier that follows it
// through logs, error responses and spans.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"certreg/pkg/requestcontext"
)

// Header carries the request id in both directions.
const Header = "X-Request-ID"

const maxInboundLen = 128

// Middleware reuses a caller-supplied id when it is reasonably short and
// otherwise generates a UUID. The id is echoed in the response header.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if id == "" || len(id) > maxInboundLen {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		ctx := requestcontext.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

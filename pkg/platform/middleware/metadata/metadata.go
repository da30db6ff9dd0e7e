// Package metadata records where a request came from.
package metadata

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"certreg/pkg/requestcontext"
)

// ClientResolver works out the caller IP. Forwarding headers are only read
// when the socket peer is one of the trusted proxies.
type ClientResolver struct {
	trusted []netip.Prefix
}

func NewClientResolver(trustedProxies []netip.Prefix) *ClientResolver {
	return &ClientResolver{trusted: trustedProxies}
}

// ClientMetadata stores the client IP in the request context. Apply it early
// so access logs and signer failures can report the caller.
func (c *ClientResolver) ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientIP(r.Context(), c.ClientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP resolves the caller IP. Behind a trusted proxy, X-Forwarded-For is
// walked from the right and the first hop that is not a trusted proxy wins;
// X-Real-IP is the fallback. Anything else gets the socket address.
func (c *ClientResolver) ClientIP(r *http.Request) string {
	remote := remoteHost(r.RemoteAddr)
	if !c.isTrusted(remote) {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !c.isTrusted(hop) {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return remote
}

func (c *ClientResolver) isTrusted(ip string) bool {
	if len(c.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range c.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteHost(remoteAddr string) string {
	if remoteAddr == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

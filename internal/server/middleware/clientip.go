package middleware

import (
	"net"
	"net/http"
	"net/netip"

	"github.com/chi-middleware/proxy"
)

// ClientIPResolver derives the client address of a request. Forwarding headers are honoured
// only when the direct peer is one of the trusted proxies.
type ClientIPResolver struct {
	forwarded func(http.Handler) http.Handler
}

// NewClientIPResolver returns a resolver trusting the given proxy networks. With none,
// the remote address is always used. Behind a trusted proxy the client is the last
// X-Forwarded-For hop, or X-Real-IP.
func NewClientIPResolver(trusted []netip.Prefix) *ClientIPResolver {
	opt := proxy.NewForwardedHeadersOptions().
		WithForwardLimit(1).
		ClearTrustedProxies()
	for _, p := range trusted {
		if p.IsSingleIP() {
			opt.AddTrustedProxy(p.Addr().String())
		} else {
			opt.AddTrustedNetwork(p.String())
		}
	}
	return &ClientIPResolver{forwarded: proxy.ForwardedHeaders(opt)}
}

// Middleware rewrites the remote address from trusted forwarding headers and stores the
// client IP in the request context for rate limiting and audit.
func (c *ClientIPResolver) Middleware(next http.Handler) http.Handler {
	return c.forwarded(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := remoteIP(r)
		if ip == "" {
			ip = "unknown"
		}
		next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
	}))
}

// remoteIP is the host part of RemoteAddr.
func remoteIP(r *http.Request) string {
	if r.RemoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap().String()
	}
	return host
}

// requestIP is the IP stored by Middleware, or the remote address when none was stored.
func requestIP(r *http.Request) string {
	if v, ok := r.Context().Value(clientIPKey).(string); ok && v != "" {
		return v
	}
	if ip := remoteIP(r); ip != "" {
		return ip
	}
	return "unknown"
}

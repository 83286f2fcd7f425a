// Package device resolves raw request headers into a device and location context.
package device

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mileusna/useragent"

	"sessionguard/internal/device/domain"
	"sessionguard/internal/geo"
)

// Resolver turns request headers and the remote address into a RequestContext.
// Implementations must return a degraded context (unknown fields) rather than erroring
// the caller when parsing or geo lookup fails.
type Resolver interface {
	Resolve(ctx context.Context, headers http.Header, remoteAddr string) domain.RequestContext
}

// HeaderResolver parses User-Agent with mileusna/useragent and resolves location
// through a geo.Resolver with a bounded timeout.
type HeaderResolver struct {
	geo        geo.Resolver
	geoTimeout time.Duration
}

// NewHeaderResolver returns a resolver using the given geo lookup. timeout bounds each
// geo call (5s when zero); geoResolver may be nil, then location is always unknown.
func NewHeaderResolver(geoResolver geo.Resolver, timeout time.Duration) *HeaderResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HeaderResolver{geo: geoResolver, geoTimeout: timeout}
}

// Resolve builds the request context. The client IP prefers X-Forwarded-For (first hop)
// over the socket address so the fingerprint is stable behind a proxy.
func (r *HeaderResolver) Resolve(ctx context.Context, headers http.Header, remoteAddr string) domain.RequestContext {
	ua := useragent.Parse(headers.Get("User-Agent"))

	deviceName := ua.Device
	if deviceName == "" {
		if ua.Mobile || ua.Tablet {
			deviceName = "mobile"
		} else {
			deviceName = "desktop"
		}
	}

	out := domain.RequestContext{
		Device: domain.Device{
			Browser:    firstNonEmpty(ua.Name, "unknown"),
			OS:         firstNonEmpty(ua.OS, "unknown"),
			DeviceName: deviceName,
			IsMobile:   ua.Mobile || ua.Tablet,
		},
		IP:       clientIP(headers, remoteAddr),
		Location: geo.Unknown(),
	}

	if r.geo != nil && out.IP != "" {
		lookupCtx, cancel := context.WithTimeout(ctx, r.geoTimeout)
		defer cancel()
		out.Location = r.geo.Lookup(lookupCtx, out.IP)
	}
	return out
}

// clientIP returns the first X-Forwarded-For hop, or the host part of remoteAddr.
func clientIP(headers http.Header, remoteAddr string) string {
	if fwd := headers.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		if ip := strings.TrimSpace(fwd); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

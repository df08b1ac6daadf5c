package middleware

// Security headers for the hub's JSON API behind a reverse proxy. HSTS is
// opt-in and only sent on HTTPS requests. No CSP: the only HTML served is the
// Swagger UI.

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS emits Strict-Transport-Security on HTTPS requests. Only turn
	// it on when the proxy-to-app hop is HTTPS too.
	EnableHSTS bool
	// HSTSMaxAge defaults to 180 days when <= 0.
	HSTSMaxAge time.Duration
	// EnablePolicy adds Permissions-Policy and X-Permitted-Cross-Domain-Policies.
	EnablePolicy bool

	// NoStorePrefixes are path prefixes whose responses carry contact data and
	// must not be cached (Cache-Control: no-store). "/" covers everything.
	NoStorePrefixes []string

	// ExposeHeaders lists response headers browser clients may read besides
	// X-Request-ID (ETag, Idempotency-Replayed).
	ExposeHeaders []string
}

// SecurityHeaders always sets nosniff, DENY framing and no-referrer, then the
// optional headers selected by opt.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.Itoa(maxAge) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if hasPrefix(c.Request.URL.Path, opt.NoStorePrefixes) {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		if h.Get(requestIDHeader) != "" {
			exposeHeader(h, requestIDHeader)
		}
		for _, name := range opt.ExposeHeaders {
			exposeHeader(h, name)
		}

		c.Next()
	}
}

func hasPrefix(p string, prefixes []string) bool {
	for _, pre := range prefixes {
		if pre == "/" || strings.HasPrefix(p, pre) {
			return true
		}
	}
	return false
}

// isHTTPS is true for direct TLS or X-Forwarded-Proto: https from the proxy.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// exposeHeader appends name to Access-Control-Expose-Headers unless it is
// already listed (case-insensitive).
func exposeHeader(h http.Header, name string) {
	const hdr = "Access-Control-Expose-Headers"
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	cur := h.Get(hdr)
	if cur == "" {
		h.Set(hdr, name)
		return
	}
	for _, p := range strings.Split(cur, ",") {
		if strings.EqualFold(strings.TrimSpace(p), name) {
			return
		}
	}
	h.Set(hdr, cur+", "+name)
}

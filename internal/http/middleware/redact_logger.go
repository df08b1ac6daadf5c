package middleware

// This file implements RedactingLogger, the structured access logger of the
// hub API. Request and response bodies are never logged; identifiers that
// point at a person (WeChat ids, mobile numbers, emails, UUIDs) are scrubbed
// from the query string and header values before the line is emitted.
//
// Usage:
//
//	r := gin.New()
//	r.Use(middleware.RequestID())
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{"X-Api-Key"},
//	}))

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-customer-hub/internal/observability"
)

// loggerKey is the Gin context key holding the request-scoped logger.
const loggerKey = "logger"

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders specifies extra HTTP header names whose values will be fully
// replaced with "[REDACTED]". Matching is case-insensitive and merged with
// built-in sensitive headers ("Authorization", "Cookie", "Set-Cookie").
type RedactOptions struct {
	MaskHeaders []string
}

var (
	wxidRE    = regexp.MustCompile(`wxid_[A-Za-z0-9_\-]+`)
	wxParamRE = regexp.MustCompile(`(?i)\b(wx_id|wechat_id)=[^&\s]*`)
	uuidRE    = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE   = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Mainland mobile numbers: 11 digits starting with 13-19.
	mobileRE = regexp.MustCompile(`\b1[3-9]\d{9}\b`)
	// Digits only, so the hex groups of a UUID never match.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// Redact scrubs personal identifiers from s. Replacement runs from the most
// specific pattern to the loosest one (phone).
func Redact(s string) string {
	if s == "" {
		return s
	}
	out := wxParamRE.ReplaceAllString(s, "${1}=[REDACTED:wxid]")
	out = wxidRE.ReplaceAllString(out, "[REDACTED:wxid]")
	out = uuidRE.ReplaceAllString(out, "[REDACTED:id]")
	out = emailRE.ReplaceAllString(out, "[REDACTED:email]")
	out = mobileRE.ReplaceAllString(out, "[REDACTED:mobile]")
	out = phoneRE.ReplaceAllString(out, "[REDACTED:phone]")
	return out
}

// RedactingLogger returns a Gin middleware that logs HTTP requests and
// responses with sensitive values scrubbed.
//
// Behavior:
//   - Attaches a request-scoped logger (request_id, trace_id) retrievable via
//     LoggerFrom for handlers further down the chain.
//   - Logs method, route, query string (capped at maxQueryLogLength), status,
//     response size, latency and request headers after Redact.
//   - Fully masks built-in sensitive headers and any additional headers
//     provided in opts.MaskHeaders.
//   - INFO by default, WARN for 4xx, ERROR for 5xx or when handlers recorded
//     errors on the context.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := truncate(Redact(c.Request.URL.RawQuery), maxQueryLogLength)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = Redact(strings.Join(vv, ", "))
		}

		lctx := log.With().Str("request_id", requestID(c))
		if tid := observability.TraceID(c.Request.Context()); tid != "" {
			lctx = lctx.Str("trace_id", tid)
		}
		reqLogger := lctx.Logger()
		c.Set(loggerKey, &reqLogger)

		c.Next()

		status := c.Writer.Status()

		reqID := requestID(c)
		if reqID == "" {
			reqID = c.Writer.Header().Get(requestIDHeader)
		}
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}

		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case len(c.Errors) > 0:
			ev = log.Error().Str("errors", c.Errors.String())
		case status >= 400:
			ev = log.Warn()
		}
		if tid := observability.TraceID(c.Request.Context()); tid != "" {
			ev = ev.Str("trace_id", tid)
		}

		ev.
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}

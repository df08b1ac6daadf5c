// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the delivery key of inbound webhook calls. The
// messaging adapter may retry a delivery; it tags each one with an
// Idempotency-Key header (or a message_id in the body, which the handler
// reads). The middleware checks the header shape, stashes the key for the
// handler and, when the dedup store already knows the key, marks the request
// as a replay so the rate limiter lets it through.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the delivery key of a webhook call.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderReplayed is set on responses answered from an earlier delivery.
const HeaderReplayed = "Idempotency-Replayed"

const (
	ctxKeyDeliveryKey = "delivery.key"
	ctxKeyReplay      = "delivery.replay"
	ctxKeyRateBypass  = "rate.bypass"
)

// defaultKeyPattern accepts token characters plus the separators upstream
// message ids use.
var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:@/=+]+$`)

// GetDeliveryKey returns the key stashed by DeliveryKey.
func GetDeliveryKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyDeliveryKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the key was already remembered when the request
// arrived.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// DeliveryOptions configures DeliveryKey.
type DeliveryOptions struct {
	// MaxLen caps the key length. Values <= 0 default to 200, the width of
	// the dedup column.
	MaxLen int
	// Pattern restricts allowed characters; nil uses defaultKeyPattern.
	Pattern *regexp.Regexp
}

// DeliveryLookup reports whether key was already processed. Errors are
// treated as a miss.
type DeliveryLookup func(ctx context.Context, key string) (seen bool, err error)

// DeliveryKey validates the Idempotency-Key header when present. A malformed
// key is rejected with 400; a valid one is stashed for GetDeliveryKey and,
// when lookup finds it, the request is flagged as a replay.
func DeliveryKey(opts DeliveryOptions, lookup DeliveryLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_request",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyDeliveryKey, key)

		if lookup != nil {
			if seen, err := lookup(c.Request.Context(), key); err == nil && seen {
				c.Set(ctxKeyReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

// Package handlers provides the HTTP handlers of the customer hub API.
//
// Every error leaves through fail() with an ErrorResponse carrying a stable
// code; failFor() maps service errors onto status and code with errors.Is so
// handlers never compare error strings.
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "thread not found"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-customer-hub/internal/http/middleware"
	"github.com/tbourn/go-customer-hub/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"thread not found"`
}

// fail aborts the request with a structured error. Server errors (>=500) are
// logged with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for the router (NoRoute, health).
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failFor translates a service error. Errors without a sentinel become 500
// with the operation-specific fallback code.
func failFor(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrThreadNotFound),
		errors.Is(err, services.ErrContactNotFound),
		errors.Is(err, services.ErrTriggerOutputNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrUnknownTriggerType):
		fail(c, http.StatusBadRequest, ErrCodeUnknownTriggerType, err.Error())
	case errors.Is(err, services.ErrInvalidInput):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrAlreadyPromoted),
		errors.Is(err, services.ErrConcurrentUpdate),
		errors.Is(err, services.ErrDeliveryInProgress):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrUpstream):
		fail(c, http.StatusBadGateway, ErrCodeUpstreamFailed, err.Error())
	default:
		// the cause goes to the access log, never to the client
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, fallback, "internal error")
	}
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

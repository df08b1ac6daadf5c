// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable: clients branch on them. Generic
// codes mirror HTTP status semantics; operation-specific codes are reserved
// for server-side failures that the status alone cannot describe.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "conflict",
//	  "message": "contact already promoted"
//	}
package handlers

const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeConflict           = "conflict"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeInternal           = "internal_error"
	ErrCodeUnknownTriggerType = "unknown_trigger_type"
	ErrCodeUpstreamFailed     = "upstream_failed"
	ErrCodeMethodNotAllowed   = "method_not_allowed"
	ErrCodeUnavailable        = "unavailable"

	// Operation-specific:
	ErrCodeProcessFailed = "process_failed"
	ErrCodeListFailed    = "list_failed"
	ErrCodeStatsFailed   = "stats_failed"
	ErrCodeContactFailed = "contact_failed"
	ErrCodePromoteFailed = "promote_failed"
	ErrCodeThreadFailed  = "thread_failed"
	ErrCodeTriggerFailed = "trigger_failed"
	ErrCodeRecalcFailed  = "recalc_failed"
)

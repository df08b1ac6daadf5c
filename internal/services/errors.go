// Package services holds the customer hub's business logic.
// This file centralizes the service-level error values so that handlers can
// map them to HTTP results with errors.Is. Collaborator errors are wrapped
// with %w and keep their identity.
package services

import "errors"

var (
	// ErrThreadNotFound indicates that the requested thread does not exist.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrContactNotFound indicates that the requested contact does not exist.
	ErrContactNotFound = errors.New("contact not found")

	// ErrTriggerOutputNotFound is returned when a thread has no unused
	// trigger output, or an output id is unknown.
	ErrTriggerOutputNotFound = errors.New("trigger output not found")

	// ErrUnknownTriggerType is returned for a trigger type outside
	// PRE_SALES, AFTER_SALES and BIZDEV.
	ErrUnknownTriggerType = errors.New("unknown trigger type")

	// ErrInvalidInput wraps every request validation failure.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyPromoted is returned when promoting a contact that already
	// holds a customer code.
	ErrAlreadyPromoted = errors.New("contact already promoted")

	// ErrConcurrentUpdate is returned when a thread kept changing under us
	// and the compare-and-swap retries ran out.
	ErrConcurrentUpdate = errors.New("concurrent update")

	// ErrDeliveryInProgress is returned when the same message id is still
	// being processed by another request after ClaimWait.
	ErrDeliveryInProgress = errors.New("delivery in progress")

	// ErrUpstream wraps failures of the trigger engine (LLM provider errors
	// and timeouts).
	ErrUpstream = errors.New("upstream failure")
)

package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SnoozeRequest defers a thread. Zero or omitted uses the configured default.
type SnoozeRequest struct {
	SnoozeMinutes int `json:"snooze_minutes" example:"60"`
}

// WaitingRequest starts the follow-up window. Omitted uses the configured
// default.
type WaitingRequest struct {
	FollowUpHours *int `json:"follow_up_hours" example:"24"`
}

// bindOptionalJSON binds the body into dst; an empty body is accepted.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// GetThread godoc
// @ID          getThread
// @Summary     Get a thread
// @Description Returns the thread and its newest signal.
// @Tags        Threads
// @Produce     json
// @Param       id   path  string  true  "Thread ID"
// @Success     200  {object}  services.ThreadView
// @Failure     404  {object}  handlers.ErrorResponse "Thread not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /threads/{id} [get]
func (h *Handlers) GetThread(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	v, err := h.svc.GetThread(c.Request.Context(), id)
	if err != nil {
		failFor(c, err, ErrCodeThreadFailed)
		return
	}
	ok(c, http.StatusOK, v)
}

// SnoozeThread godoc
// @ID          snoozeThread
// @Summary     Snooze a thread
// @Tags        Threads
// @Accept      json
// @Produce     json
// @Param       id    path  string  true   "Thread ID"
// @Param       body  body  handlers.SnoozeRequest  false  "Snooze duration"
// @Success     200  {object}  services.ThreadState
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Thread not found"
// @Failure     409  {object}  handlers.ErrorResponse "Concurrent update"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /threads/{id}/snooze [post]
func (h *Handlers) SnoozeThread(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req SnoozeRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if req.SnoozeMinutes < 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "snooze_minutes must be >= 0")
		return
	}
	st, err := h.svc.SnoozeThread(c.Request.Context(), id, req.SnoozeMinutes)
	if err != nil {
		failFor(c, err, ErrCodeThreadFailed)
		return
	}
	ok(c, http.StatusOK, st)
}

// ResolveThread godoc
// @ID          resolveThread
// @Summary     Resolve a thread
// @Tags        Threads
// @Produce     json
// @Param       id   path  string  true  "Thread ID"
// @Success     200  {object}  services.ThreadState
// @Failure     404  {object}  handlers.ErrorResponse "Thread not found"
// @Failure     409  {object}  handlers.ErrorResponse "Concurrent update"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /threads/{id}/resolve [post]
func (h *Handlers) ResolveThread(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	st, err := h.svc.ResolveThread(c.Request.Context(), id)
	if err != nil {
		failFor(c, err, ErrCodeThreadFailed)
		return
	}
	ok(c, http.StatusOK, st)
}

// MarkWaiting godoc
// @ID          markWaiting
// @Summary     Mark a thread as waiting on the customer
// @Tags        Threads
// @Accept      json
// @Produce     json
// @Param       id    path  string  true   "Thread ID"
// @Param       body  body  handlers.WaitingRequest  false  "Follow-up window"
// @Success     200  {object}  services.ThreadState
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Thread not found"
// @Failure     409  {object}  handlers.ErrorResponse "Concurrent update"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /threads/{id}/waiting [post]
func (h *Handlers) MarkWaiting(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req WaitingRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if req.FollowUpHours != nil && *req.FollowUpHours < 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "follow_up_hours must be >= 0")
		return
	}
	st, err := h.svc.MarkWaiting(c.Request.Context(), id, req.FollowUpHours)
	if err != nil {
		failFor(c, err, ErrCodeThreadFailed)
		return
	}
	ok(c, http.StatusOK, st)
}

// RecalcThread godoc
// @ID          recalcThread
// @Summary     Recalculate a thread's status
// @Description Re-derives timers and status at the current time; writes only on change.
// @Tags        Threads
// @Produce     json
// @Param       id   path  string  true  "Thread ID"
// @Success     200  {object}  services.RecalcResult
// @Failure     404  {object}  handlers.ErrorResponse "Thread not found"
// @Failure     409  {object}  handlers.ErrorResponse "Concurrent update"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /threads/{id}/recalc [post]
func (h *Handlers) RecalcThread(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	res, err := h.svc.RecalcThreadStatus(c.Request.Context(), id)
	if err != nil {
		failFor(c, err, ErrCodeRecalcFailed)
		return
	}
	ok(c, http.StatusOK, res)
}

// RecalcAll godoc
// @ID          recalcAll
// @Summary     Sweep all open threads
// @Description Recalculates every unresolved, non-snoozed thread. Also runs on the server's sweep interval.
// @Tags        Cron
// @Produce     json
// @Success     200  {object}  services.RecalcSummary
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /cron/recalc [post]
func (h *Handlers) RecalcAll(c *gin.Context) {
	sum, err := h.svc.RecalcAllThreads(c.Request.Context())
	if err != nil {
		failFor(c, err, ErrCodeRecalcFailed)
		return
	}
	ok(c, http.StatusOK, sum)
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TriggerRequest runs a reply workflow on a thread.
type TriggerRequest struct {
	Text string `json:"text" binding:"required" example:"桩子报E103，重启也不行"`
	// TriggerType is PRE_SALES, AFTER_SALES or BIZDEV.
	TriggerType string `json:"trigger_type" binding:"required" example:"AFTER_SALES"`
}

// RefusalResponse is returned with 200 when policy blocks a workflow.
type RefusalResponse struct {
	Refused bool   `json:"refused" example:"true"`
	Reason  string `json:"reason" example:"blacklist_thread"`
	Message string `json:"message" example:"thread is blacklisted; workflows are disabled"`
}

// TriggerScenario godoc
// @ID          triggerScenario
// @Summary     Run a reply workflow
// @Description Produces a structured form and a draft reply. Blacklisted threads are refused with 200 and refused=true.
// @Tags        Triggers
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Thread ID"
// @Param       body  body  handlers.TriggerRequest  true  "Workflow input"
// @Success     201  {object}  domain.TriggerOutput
// @Success     200  {object}  handlers.RefusalResponse
// @Failure     400  {object}  handlers.ErrorResponse "Bad request or unknown trigger type"
// @Failure     404  {object}  handlers.ErrorResponse "Thread not found"
// @Failure     502  {object}  handlers.ErrorResponse "Workflow engine failed"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /threads/{id}/trigger [post]
func (h *Handlers) TriggerScenario(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text and trigger_type required")
		return
	}
	res, err := h.svc.TriggerScenario(c.Request.Context(), id, req.Text, req.TriggerType)
	if err != nil {
		failFor(c, err, ErrCodeTriggerFailed)
		return
	}
	if res.Refused {
		ok(c, http.StatusOK, RefusalResponse{Refused: true, Reason: res.Reason, Message: res.Message})
		return
	}
	ok(c, http.StatusCreated, res.Output)
}

// GetTriggerOutput godoc
// @ID          getTriggerOutput
// @Summary     Latest unused workflow output
// @Tags        Triggers
// @Produce     json
// @Param       id   path  string  true  "Thread ID"
// @Success     200  {object}  domain.TriggerOutput
// @Failure     404  {object}  handlers.ErrorResponse "Thread or output not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /threads/{id}/trigger-output [get]
func (h *Handlers) GetTriggerOutput(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	out, err := h.svc.GetTriggerOutput(c.Request.Context(), id)
	if err != nil {
		failFor(c, err, ErrCodeTriggerFailed)
		return
	}
	ok(c, http.StatusOK, out)
}

// MarkTriggerUsed godoc
// @ID          markTriggerUsed
// @Summary     Mark a workflow output as used
// @Description Idempotent.
// @Tags        Triggers
// @Param       id   path  string  true  "Trigger output ID"
// @Success     204  {string}  string "No Content"
// @Failure     404  {object}  handlers.ErrorResponse "Output not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /trigger-outputs/{id}/used [post]
func (h *Handlers) MarkTriggerUsed(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.svc.MarkTriggerUsed(c.Request.Context(), id); err != nil {
		failFor(c, err, ErrCodeTriggerFailed)
		return
	}
	noContent(c)
}

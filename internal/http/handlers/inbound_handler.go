package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-customer-hub/internal/domain"
	"github.com/tbourn/go-customer-hub/internal/http/middleware"
)

const maxMessageIDLen = 128

// ProcessMessageRequest is one inbound WeChat message relayed by the bridge.
type ProcessMessageRequest struct {
	// MessageID is the upstream id used for dedup. Falls back to the
	// Idempotency-Key header.
	MessageID string `json:"message_id" example:"wxmsg-20260302-0001"`
	// WxID is the sender's WeChat id.
	WxID   string `json:"wx_id" binding:"required" example:"wxid_ab12cd34"`
	Remark string `json:"remark" example:"张工 华东 充电桩"`
	Text   string `json:"text" example:"你好，320kW双枪的报价多少？"`
	// FileTypes lists attachment kinds (image, pdf, video ...).
	FileTypes []string `json:"file_types" example:"image"`
	// LastSpeaker is "me" or "them".
	LastSpeaker string `json:"last_speaker" binding:"required" example:"them"`
	// Timestamp (RFC3339) of the message; defaults to now.
	Timestamp *time.Time `json:"timestamp" example:"2026-03-02T10:00:00+08:00"`
	// KBMatched overrides the knowledge-base matcher when set.
	KBMatched *bool `json:"kb_matched" example:"false"`
}

// ProcessMessage godoc
// @ID          processMessage
// @Summary     Process an inbound message
// @Description Scores the message, upserts contact and thread, advances the thread status and stores a signal.
// @Description A delivery already seen is answered from the stored signal with duplicate=true and the Idempotency-Replayed header.
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Delivery key (used when message_id is empty)"  example(wxmsg-20260302-0001)
// @Param       body             body    handlers.ProcessMessageRequest  true  "Inbound message"
//
// @Success     200  {object}  services.ProcessResult
// @Header      200  {string}  Idempotency-Replayed  "true when answered from an earlier delivery"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Concurrent update or delivery in progress"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /messages/process [post]
func (h *Handlers) ProcessMessage(c *gin.Context) {
	var req ProcessMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: wx_id and last_speaker are required")
		return
	}

	speaker, valid := domain.ParseParty(req.LastSpeaker)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "last_speaker must be me or them")
		return
	}

	msgID := strings.TrimSpace(req.MessageID)
	if msgID == "" {
		msgID, _ = middleware.GetDeliveryKey(c)
	}
	if len(msgID) > maxMessageIDLen {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message_id too long")
		return
	}

	msg := domain.InboundMessage{
		MessageID:   msgID,
		ExternalID:  req.WxID,
		Remark:      strings.TrimSpace(req.Remark),
		Text:        req.Text,
		FileTypes:   req.FileTypes,
		LastSpeaker: speaker,
	}
	if req.Timestamp != nil {
		msg.Timestamp = *req.Timestamp
	}

	res, err := h.svc.ProcessInboundMessage(c.Request.Context(), msg, req.KBMatched)
	if err != nil {
		failFor(c, err, ErrCodeProcessFailed)
		return
	}
	if res.Duplicate {
		c.Header(middleware.HeaderReplayed, "true")
	}
	ok(c, http.StatusOK, res)
}

// Customer hub HTTP handlers: service contract, wiring and shared helpers.
//
// Handlers are transport-thin: they bind and validate input, call the
// CustomerHubService and translate results into HTTP responses, including
// conditional responses on the list endpoints.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-customer-hub/internal/domain"
	"github.com/tbourn/go-customer-hub/internal/services"
	"github.com/tbourn/go-customer-hub/internal/utils"
)

// HubService is the slice of *services.CustomerHubService the handlers use.
//
// Implementations must be safe for concurrent use and honor ctx.
type HubService interface {
	ProcessInboundMessage(ctx context.Context, msg domain.InboundMessage, kbMatched *bool) (*services.ProcessResult, error)

	GetUnknownPool(ctx context.Context, limit int) ([]domain.UnknownPoolItem, error)
	GetTodayTodo(ctx context.Context, limit int) ([]domain.TodoItem, error)
	GetStatistics(ctx context.Context) (domain.ThreadStatistics, error)
	GetDailyMetrics(ctx context.Context, day time.Time) (domain.DailyMetrics, error)
	// ThreadsStats feeds the weak ETags of the list endpoints.
	ThreadsStats(ctx context.Context) (int64, *time.Time, error)

	GetContact(ctx context.Context, id string) (*domain.Contact, error)
	UpdateContact(ctx context.Context, id string, remark, owner *string) (*domain.Contact, error)
	PromoteToCustomer(ctx context.Context, contactID string, in services.PromoteInput) (*services.PromoteResult, error)

	GetThread(ctx context.Context, id string) (*services.ThreadView, error)
	SnoozeThread(ctx context.Context, threadID string, minutes int) (*services.ThreadState, error)
	ResolveThread(ctx context.Context, threadID string) (*services.ThreadState, error)
	MarkWaiting(ctx context.Context, threadID string, hours *int) (*services.ThreadState, error)
	RecalcThreadStatus(ctx context.Context, threadID string) (*services.RecalcResult, error)
	RecalcAllThreads(ctx context.Context) (*services.RecalcSummary, error)

	TriggerScenario(ctx context.Context, threadID, text, triggerType string) (*services.TriggerResult, error)
	GetTriggerOutput(ctx context.Context, threadID string) (*domain.TriggerOutput, error)
	MarkTriggerUsed(ctx context.Context, id string) error
}

var _ HubService = (*services.CustomerHubService)(nil)

// Handlers groups the hub endpoints.
type Handlers struct {
	svc HubService
}

// New constructs Handlers bound to svc.
func New(svc HubService) *Handlers {
	return &Handlers{svc: svc}
}

// pathID returns the trimmed :id path parameter, or fails with 400.
func pathID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" || len(id) > 64 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id path parameter required")
		return "", false
	}
	return id, true
}

// queryLimit reads ?limit=; the service clamps it.
func queryLimit(c *gin.Context) int {
	return utils.ParseLimit(c.Query("limit"))
}

// notModified sets a weak ETag derived from the thread table stats and
// reports whether the client copy is current. Errors skip the ETag and let
// the request through.
func (h *Handlers) notModified(c *gin.Context, list string, limit int) bool {
	count, maxTS, err := h.svc.ThreadsStats(c.Request.Context())
	if err != nil {
		return false
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	etag := utils.WeakETag(list, strconv.Itoa(limit), strconv.FormatInt(count, 10), strconv.FormatInt(ts, 10))
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

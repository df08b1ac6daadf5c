package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-customer-hub/internal/domain"
)

// UnknownPoolResponse wraps the gray conversations awaiting classification.
type UnknownPoolResponse struct {
	Items []domain.UnknownPoolItem `json:"items"`
	Count int                      `json:"count"`
}

// TodayTodoResponse wraps the action queue, most urgent first.
type TodayTodoResponse struct {
	Items []domain.TodoItem `json:"items"`
	Count int               `json:"count"`
}

// GetUnknownPool godoc
// @ID          getUnknownPool
// @Summary     List the unknown pool
// @Description Gray conversations from unclassified contacts, highest score first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Queues
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"unknown-pool:50:12:1767225600\")
// @Param       limit          query   int     false "Max items"  minimum(1) maximum(200) default(50)
//
// @Success     200  {object}  handlers.UnknownPoolResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /unknown-pool [get]
func (h *Handlers) GetUnknownPool(c *gin.Context) {
	limit := queryLimit(c)
	if h.notModified(c, "unknown-pool", limit) {
		return
	}
	items, err := h.svc.GetUnknownPool(c.Request.Context(), limit)
	if err != nil {
		failFor(c, err, ErrCodeListFailed)
		return
	}
	if items == nil {
		items = []domain.UnknownPoolItem{}
	}
	ok(c, http.StatusOK, UnknownPoolResponse{Items: items, Count: len(items)})
}

// GetTodayTodo godoc
// @ID          getTodayTodo
// @Summary     List today's action queue
// @Description Threads in OVERDUE, NEED_REPLY or gray, ordered by priority then age. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Queues
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       limit          query   int     false "Max items"  minimum(1) maximum(200) default(50)
//
// @Success     200  {object}  handlers.TodayTodoResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /today-todo [get]
func (h *Handlers) GetTodayTodo(c *gin.Context) {
	limit := queryLimit(c)
	if h.notModified(c, "today-todo", limit) {
		return
	}
	items, err := h.svc.GetTodayTodo(c.Request.Context(), limit)
	if err != nil {
		failFor(c, err, ErrCodeListFailed)
		return
	}
	if items == nil {
		items = []domain.TodoItem{}
	}
	ok(c, http.StatusOK, TodayTodoResponse{Items: items, Count: len(items)})
}

// GetStatistics godoc
// @ID          getStatistics
// @Summary     Thread counts per status
// @Tags        Statistics
// @Produce     json
// @Success     200  {object}  domain.ThreadStatistics
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /statistics [get]
func (h *Handlers) GetStatistics(c *gin.Context) {
	st, err := h.svc.GetStatistics(c.Request.Context())
	if err != nil {
		failFor(c, err, ErrCodeStatsFailed)
		return
	}
	ok(c, http.StatusOK, st)
}

// GetDailyMetrics godoc
// @ID          getDailyMetrics
// @Summary     Daily metrics
// @Description Unknown-pool size, overdue count, resolved count and clear rate for one calendar day in the scoring timezone.
// @Tags        Statistics
// @Produce     json
// @Param       date  query  string  false "Day as YYYY-MM-DD (default today)"  example(2026-03-02)
// @Success     200  {object}  domain.DailyMetrics
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /statistics/daily [get]
func (h *Handlers) GetDailyMetrics(c *gin.Context) {
	var day time.Time
	if raw := strings.TrimSpace(c.Query("date")); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "date must be YYYY-MM-DD")
			return
		}
		// Noon UTC lands on the same calendar date in every zone within ±12h.
		day = d.Add(12 * time.Hour)
	}
	m, err := h.svc.GetDailyMetrics(c.Request.Context(), day)
	if err != nil {
		failFor(c, err, ErrCodeStatsFailed)
		return
	}
	ok(c, http.StatusOK, m)
}

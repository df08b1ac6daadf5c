package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-customer-hub/internal/domain"
	"github.com/tbourn/go-customer-hub/internal/http/middleware"
	"github.com/tbourn/go-customer-hub/internal/services"
)

// ---------- fake service ----------

// fakeHub records the arguments it received; zero-value fields give happy
// defaults.
type fakeHub struct {
	processErr error
	processRes *services.ProcessResult
	gotMsg     domain.InboundMessage
	gotKB      *bool

	listCalls  int
	statsCount int64
	statsTS    *time.Time
	gotLimit   int
	gotDay     time.Time

	contactErr error
	promoteErr error
	gotPromote services.PromoteInput
	gotRemark  *string
	gotOwner   *string

	threadErr  error
	gotMinutes int
	gotHours   *int

	triggerRes *services.TriggerResult
	triggerErr error
	usedErr    error
	gotUsedID  string
}

func (f *fakeHub) ProcessInboundMessage(_ context.Context, msg domain.InboundMessage, kb *bool) (*services.ProcessResult, error) {
	f.gotMsg, f.gotKB = msg, kb
	if f.processErr != nil {
		return nil, f.processErr
	}
	if f.processRes != nil {
		return f.processRes, nil
	}
	return &services.ProcessResult{ContactID: "c1", ThreadID: "t1", Bucket: domain.BucketGray, Status: domain.StatusNeedReply}, nil
}

func (f *fakeHub) GetUnknownPool(_ context.Context, limit int) ([]domain.UnknownPoolItem, error) {
	f.listCalls++
	f.gotLimit = limit
	return []domain.UnknownPoolItem{{ThreadID: "t1", TotalScore: 40}}, nil
}

func (f *fakeHub) GetTodayTodo(_ context.Context, limit int) ([]domain.TodoItem, error) {
	f.listCalls++
	f.gotLimit = limit
	return nil, nil
}

func (f *fakeHub) GetStatistics(context.Context) (domain.ThreadStatistics, error) {
	return domain.ThreadStatistics{Total: 3, Overdue: 1}, nil
}

func (f *fakeHub) GetDailyMetrics(_ context.Context, day time.Time) (domain.DailyMetrics, error) {
	f.gotDay = day
	return domain.DailyMetrics{Date: "2026-03-02"}, nil
}

func (f *fakeHub) ThreadsStats(context.Context) (int64, *time.Time, error) {
	return f.statsCount, f.statsTS, nil
}

func (f *fakeHub) GetContact(_ context.Context, id string) (*domain.Contact, error) {
	if f.contactErr != nil {
		return nil, f.contactErr
	}
	return &domain.Contact{ID: id, ExternalID: "wxid_x"}, nil
}

func (f *fakeHub) UpdateContact(_ context.Context, id string, remark, owner *string) (*domain.Contact, error) {
	f.gotRemark, f.gotOwner = remark, owner
	if remark == nil && owner == nil {
		return nil, fmt.Errorf("%w: nothing to update", services.ErrInvalidInput)
	}
	return &domain.Contact{ID: id}, nil
}

func (f *fakeHub) PromoteToCustomer(_ context.Context, contactID string, in services.PromoteInput) (*services.PromoteResult, error) {
	f.gotPromote = in
	if f.promoteErr != nil {
		return nil, f.promoteErr
	}
	return &services.PromoteResult{ContactID: contactID, CustomerCode: "K0001-华东-张三", Type: domain.ContactCustomer, Confidence: 100}, nil
}

func (f *fakeHub) GetThread(_ context.Context, id string) (*services.ThreadView, error) {
	if f.threadErr != nil {
		return nil, f.threadErr
	}
	return &services.ThreadView{Thread: &domain.Thread{ID: id}}, nil
}

func (f *fakeHub) state(id string) (*services.ThreadState, error) {
	if f.threadErr != nil {
		return nil, f.threadErr
	}
	return &services.ThreadState{ThreadID: id, Status: domain.StatusSnoozed}, nil
}

func (f *fakeHub) SnoozeThread(_ context.Context, id string, minutes int) (*services.ThreadState, error) {
	f.gotMinutes = minutes
	return f.state(id)
}

func (f *fakeHub) ResolveThread(_ context.Context, id string) (*services.ThreadState, error) {
	return f.state(id)
}

func (f *fakeHub) MarkWaiting(_ context.Context, id string, hours *int) (*services.ThreadState, error) {
	f.gotHours = hours
	return f.state(id)
}

func (f *fakeHub) RecalcThreadStatus(_ context.Context, id string) (*services.RecalcResult, error) {
	if f.threadErr != nil {
		return nil, f.threadErr
	}
	return &services.RecalcResult{ThreadID: id, OldStatus: domain.StatusNeedReply, NewStatus: domain.StatusOverdue, Changed: true}, nil
}

func (f *fakeHub) RecalcAllThreads(context.Context) (*services.RecalcSummary, error) {
	return &services.RecalcSummary{Scanned: 2, Changed: 1, NewlyOverdue: 1}, nil
}

func (f *fakeHub) TriggerScenario(_ context.Context, threadID, _, triggerType string) (*services.TriggerResult, error) {
	if f.triggerErr != nil {
		return nil, f.triggerErr
	}
	if f.triggerRes != nil {
		return f.triggerRes, nil
	}
	typ := domain.TriggerType(triggerType)
	return &services.TriggerResult{TriggerType: typ, Output: &domain.TriggerOutput{ID: "o1", ThreadID: threadID, TriggerType: typ, ReplyDraft: "draft"}}, nil
}

func (f *fakeHub) GetTriggerOutput(_ context.Context, threadID string) (*domain.TriggerOutput, error) {
	if f.triggerErr != nil {
		return nil, f.triggerErr
	}
	return &domain.TriggerOutput{ID: "o1", ThreadID: threadID}, nil
}

func (f *fakeHub) MarkTriggerUsed(_ context.Context, id string) error {
	f.gotUsedID = id
	return f.usedErr
}

// ---------- harness ----------

func newTestRouter(f *fakeHub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(f)
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.DeliveryKey(middleware.DeliveryOptions{}, nil))

	r.POST("/messages/process", h.ProcessMessage)
	r.GET("/unknown-pool", h.GetUnknownPool)
	r.GET("/today-todo", h.GetTodayTodo)
	r.GET("/statistics", h.GetStatistics)
	r.GET("/statistics/daily", h.GetDailyMetrics)
	r.GET("/contacts/:id", h.GetContact)
	r.PATCH("/contacts/:id", h.UpdateContact)
	r.POST("/contacts/promote", h.PromoteContact)
	r.GET("/threads/:id", h.GetThread)
	r.POST("/threads/:id/snooze", h.SnoozeThread)
	r.POST("/threads/:id/resolve", h.ResolveThread)
	r.POST("/threads/:id/waiting", h.MarkWaiting)
	r.POST("/threads/:id/recalc", h.RecalcThread)
	r.POST("/threads/:id/trigger", h.TriggerScenario)
	r.GET("/threads/:id/trigger-output", h.GetTriggerOutput)
	r.POST("/trigger-outputs/:id/used", h.MarkTriggerUsed)
	r.POST("/cron/recalc", h.RecalcAll)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("error body: %v (%s)", err, w.Body.String())
	}
	if er.RequestID == "" {
		t.Fatalf("error envelope missing request_id: %s", w.Body.String())
	}
	return er.Code
}

// ---------- messages ----------

func TestProcessMessage_BindsAndForwards(t *testing.T) {
	f := &fakeHub{}
	r := newTestRouter(f)

	w := doJSON(t, r, http.MethodPost, "/messages/process", map[string]any{
		"wx_id":        "wxid_abc",
		"remark":       "  张工  ",
		"text":         "报价",
		"file_types":   []string{"pdf"},
		"last_speaker": "THEM",
		"timestamp":    "2026-03-02T10:00:00+08:00",
		"kb_matched":   true,
	}, map[string]string{middleware.HeaderIdempotencyKey: "wxmsg-1"})

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if f.gotMsg.MessageID != "wxmsg-1" {
		t.Fatalf("message id should fall back to Idempotency-Key, got %q", f.gotMsg.MessageID)
	}
	if f.gotMsg.LastSpeaker != domain.PartyThem || f.gotMsg.Remark != "张工" {
		t.Fatalf("unexpected message: %+v", f.gotMsg)
	}
	if !f.gotMsg.Timestamp.Equal(time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)) {
		t.Fatalf("timestamp = %v", f.gotMsg.Timestamp)
	}
	if f.gotKB == nil || !*f.gotKB {
		t.Fatalf("kb_matched override not forwarded")
	}
	if w.Header().Get(middleware.HeaderReplayed) != "" {
		t.Fatalf("fresh delivery must not be flagged as replay")
	}
}

func TestProcessMessage_BodyIDWinsAndDuplicateHeader(t *testing.T) {
	f := &fakeHub{processRes: &services.ProcessResult{ThreadID: "t1", Duplicate: true}}
	r := newTestRouter(f)

	w := doJSON(t, r, http.MethodPost, "/messages/process",
		map[string]any{"wx_id": "wxid_abc", "last_speaker": "me", "message_id": "body-id"},
		map[string]string{middleware.HeaderIdempotencyKey: "header-id"})

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if f.gotMsg.MessageID != "body-id" {
		t.Fatalf("message_id = %q; want body-id", f.gotMsg.MessageID)
	}
	if f.gotKB != nil {
		t.Fatalf("absent kb_matched must stay nil")
	}
	if w.Header().Get(middleware.HeaderReplayed) != "true" {
		t.Fatalf("duplicate should set %s", middleware.HeaderReplayed)
	}
}

func TestProcessMessage_Validation(t *testing.T) {
	cases := []struct {
		name string
		body any
		err  error
		code int
	}{
		{"bad json", "{", nil, http.StatusBadRequest},
		{"missing wx_id", map[string]any{"last_speaker": "me"}, nil, http.StatusBadRequest},
		{"bad speaker", map[string]any{"wx_id": "w", "last_speaker": "bot"}, nil, http.StatusBadRequest},
		{"long id", map[string]any{"wx_id": "w", "last_speaker": "me", "message_id": string(bytes.Repeat([]byte("x"), maxMessageIDLen+1))}, nil, http.StatusBadRequest},
		{"service invalid", map[string]any{"wx_id": "w", "last_speaker": "me"}, fmt.Errorf("%w: wx_id", services.ErrInvalidInput), http.StatusBadRequest},
		{"service conflict", map[string]any{"wx_id": "w", "last_speaker": "me"}, services.ErrConcurrentUpdate, http.StatusConflict},
		{"service boom", map[string]any{"wx_id": "w", "last_speaker": "me"}, fmt.Errorf("tx: disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(&fakeHub{processErr: tc.err})
			w := doJSON(t, r, http.MethodPost, "/messages/process", tc.body, nil)
			if w.Code != tc.code {
				t.Fatalf("status=%d want %d body=%s", w.Code, tc.code, w.Body.String())
			}
			if tc.code == http.StatusInternalServerError && errCode(t, w) != ErrCodeProcessFailed {
				t.Fatalf("500 should carry %s", ErrCodeProcessFailed)
			}
		})
	}
}

// ---------- queues ----------

func TestUnknownPool_ETagRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	f := &fakeHub{statsCount: 4, statsTS: &ts}
	r := newTestRouter(f)

	w := doJSON(t, r, http.MethodGet, "/unknown-pool?limit=10", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	etag := w.Header().Get("ETag")
	if etag == "" || etag[:2] != "W/" {
		t.Fatalf("expected weak ETag, got %q", etag)
	}
	var resp UnknownPoolResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Count != 1 || f.gotLimit != 10 {
		t.Fatalf("unexpected body %s (limit %d)", w.Body.String(), f.gotLimit)
	}

	w = doJSON(t, r, http.MethodGet, "/unknown-pool?limit=10", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}
	if f.listCalls != 1 {
		t.Fatalf("304 must not hit the list query, calls=%d", f.listCalls)
	}

	// a different limit is a different representation
	w = doJSON(t, r, http.MethodGet, "/unknown-pool?limit=5", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for other limit, got %d", w.Code)
	}

	// any thread write moves the ETag
	later := ts.Add(time.Second)
	f.statsTS = &later
	w = doJSON(t, r, http.MethodGet, "/unknown-pool?limit=10", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK || w.Header().Get("ETag") == etag {
		t.Fatalf("expected fresh ETag after change, got %d %q", w.Code, w.Header().Get("ETag"))
	}
}

func TestTodayTodo_EmptyListIsArray(t *testing.T) {
	r := newTestRouter(&fakeHub{})
	w := doJSON(t, r, http.MethodGet, "/today-todo", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"items":[]`)) {
		t.Fatalf("expected empty array, got %s", w.Body.String())
	}
}

func TestStatisticsAndDaily(t *testing.T) {
	f := &fakeHub{}
	r := newTestRouter(f)

	w := doJSON(t, r, http.MethodGet, "/statistics", nil, nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"overdue":1`)) {
		t.Fatalf("statistics: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/statistics/daily?date=2026-03-02", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("daily status=%d", w.Code)
	}
	if y, m, d := f.gotDay.Date(); y != 2026 || m != time.March || d != 2 {
		t.Fatalf("day = %v", f.gotDay)
	}

	w = doJSON(t, r, http.MethodGet, "/statistics/daily", nil, nil)
	if w.Code != http.StatusOK || !f.gotDay.IsZero() {
		t.Fatalf("no date should pass zero day, got %v", f.gotDay)
	}

	w = doJSON(t, r, http.MethodGet, "/statistics/daily?date=03/02/2026", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad date status=%d", w.Code)
	}
}

// ---------- contacts ----------

func TestContacts(t *testing.T) {
	f := &fakeHub{}
	r := newTestRouter(f)

	if w := doJSON(t, r, http.MethodGet, "/contacts/c1", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("get status=%d", w.Code)
	}

	w := doJSON(t, r, http.MethodPatch, "/contacts/c1", map[string]any{"owner": ""}, nil)
	if w.Code != http.StatusOK || f.gotOwner == nil || *f.gotOwner != "" || f.gotRemark != nil {
		t.Fatalf("patch owner: %d owner=%v remark=%v", w.Code, f.gotOwner, f.gotRemark)
	}

	w = doJSON(t, r, http.MethodPatch, "/contacts/c1", map[string]any{}, nil)
	if w.Code != http.StatusBadRequest || errCode(t, w) != ErrCodeBadRequest {
		t.Fatalf("empty patch: %d %s", w.Code, w.Body.String())
	}

	f.contactErr = services.ErrContactNotFound
	w = doJSON(t, r, http.MethodGet, "/contacts/missing", nil, nil)
	if w.Code != http.StatusNotFound || errCode(t, w) != ErrCodeNotFound {
		t.Fatalf("missing contact: %d", w.Code)
	}
}

func TestPromoteContact(t *testing.T) {
	f := &fakeHub{}
	r := newTestRouter(f)

	w := doJSON(t, r, http.MethodPost, "/contacts/promote",
		map[string]any{"contact_id": "c1", "name": "张三", "region": "华东", "level": "A"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if f.gotPromote.Name != "张三" || f.gotPromote.Region != "华东" || f.gotPromote.Level != "A" {
		t.Fatalf("promote input = %+v", f.gotPromote)
	}

	if w := doJSON(t, r, http.MethodPost, "/contacts/promote", map[string]any{"name": "张三"}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing contact_id status=%d", w.Code)
	}

	f.promoteErr = services.ErrAlreadyPromoted
	w = doJSON(t, r, http.MethodPost, "/contacts/promote", map[string]any{"contact_id": "c1", "name": "张三"}, nil)
	if w.Code != http.StatusConflict || errCode(t, w) != ErrCodeConflict {
		t.Fatalf("already promoted: %d", w.Code)
	}
}

// ---------- threads ----------

func TestThreadCommands(t *testing.T) {
	f := &fakeHub{}
	r := newTestRouter(f)

	if w := doJSON(t, r, http.MethodGet, "/threads/t1", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("get thread status=%d", w.Code)
	}

	// empty body uses the default snooze
	w := doJSON(t, r, http.MethodPost, "/threads/t1/snooze", nil, nil)
	if w.Code != http.StatusOK || f.gotMinutes != 0 {
		t.Fatalf("snooze default: %d minutes=%d", w.Code, f.gotMinutes)
	}
	w = doJSON(t, r, http.MethodPost, "/threads/t1/snooze", map[string]any{"snooze_minutes": 120}, nil)
	if w.Code != http.StatusOK || f.gotMinutes != 120 {
		t.Fatalf("snooze 120: %d minutes=%d", w.Code, f.gotMinutes)
	}
	if w := doJSON(t, r, http.MethodPost, "/threads/t1/snooze", map[string]any{"snooze_minutes": -5}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("negative snooze status=%d", w.Code)
	}
	if w := doJSON(t, r, http.MethodPost, "/threads/t1/snooze", "{oops", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed snooze body status=%d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/threads/t1/waiting", map[string]any{"follow_up_hours": 2}, nil)
	if w.Code != http.StatusOK || f.gotHours == nil || *f.gotHours != 2 {
		t.Fatalf("waiting: %d hours=%v", w.Code, f.gotHours)
	}
	w = doJSON(t, r, http.MethodPost, "/threads/t1/waiting", nil, nil)
	if w.Code != http.StatusOK || f.gotHours != nil {
		t.Fatalf("waiting default: %d hours=%v", w.Code, f.gotHours)
	}

	if w := doJSON(t, r, http.MethodPost, "/threads/t1/resolve", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("resolve status=%d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/threads/t1/recalc", nil, nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"new_status":"OVERDUE"`)) {
		t.Fatalf("recalc: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/cron/recalc", nil, nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"newly_overdue":1`)) {
		t.Fatalf("cron: %d %s", w.Code, w.Body.String())
	}
}

func TestThreadCommands_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrThreadNotFound, http.StatusNotFound, ErrCodeNotFound},
		{fmt.Errorf("snooze thread t1: %w", services.ErrConcurrentUpdate), http.StatusConflict, ErrCodeConflict},
		{fmt.Errorf("save: locked"), http.StatusInternalServerError, ErrCodeThreadFailed},
	}
	for _, tc := range cases {
		r := newTestRouter(&fakeHub{threadErr: tc.err})
		w := doJSON(t, r, http.MethodPost, "/threads/t1/resolve", nil, nil)
		if w.Code != tc.status || errCode(t, w) != tc.code {
			t.Fatalf("%v: %d %s", tc.err, w.Code, w.Body.String())
		}
	}
}

// ---------- triggers ----------

func TestTriggerScenario(t *testing.T) {
	f := &fakeHub{}
	r := newTestRouter(f)

	w := doJSON(t, r, http.MethodPost, "/threads/t1/trigger", map[string]any{"text": "E103", "trigger_type": "AFTER_SALES"}, nil)
	if w.Code != http.StatusCreated || !bytes.Contains(w.Body.Bytes(), []byte(`"trigger_type":"AFTER_SALES"`)) {
		t.Fatalf("trigger: %d %s", w.Code, w.Body.String())
	}

	if w := doJSON(t, r, http.MethodPost, "/threads/t1/trigger", map[string]any{"trigger_type": "PRE_SALES"}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing text status=%d", w.Code)
	}

	f.triggerRes = &services.TriggerResult{Refused: true, Reason: services.ReasonBlacklistThread, Message: "thread is blacklisted"}
	w = doJSON(t, r, http.MethodPost, "/threads/t1/trigger", map[string]any{"text": "x", "trigger_type": "BIZDEV"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("refusal status=%d", w.Code)
	}
	var ref RefusalResponse
	if err := json.Unmarshal(w.Body.Bytes(), &ref); err != nil || !ref.Refused || ref.Reason != "blacklist_thread" {
		t.Fatalf("refusal body: %s", w.Body.String())
	}
}

func TestTriggerScenario_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: %q", services.ErrUnknownTriggerType, "MARKETING"), http.StatusBadRequest, ErrCodeUnknownTriggerType},
		{fmt.Errorf("%w: PRE_SALES: %w", services.ErrUpstream, context.DeadlineExceeded), http.StatusBadGateway, ErrCodeUpstreamFailed},
		{services.ErrThreadNotFound, http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tc := range cases {
		r := newTestRouter(&fakeHub{triggerErr: tc.err})
		w := doJSON(t, r, http.MethodPost, "/threads/t1/trigger", map[string]any{"text": "x", "trigger_type": "MARKETING"}, nil)
		if w.Code != tc.status || errCode(t, w) != tc.code {
			t.Fatalf("%v: %d %s", tc.err, w.Code, w.Body.String())
		}
	}
}

func TestTriggerOutputAndMarkUsed(t *testing.T) {
	f := &fakeHub{}
	r := newTestRouter(f)

	if w := doJSON(t, r, http.MethodGet, "/threads/t1/trigger-output", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("get output status=%d", w.Code)
	}

	w := doJSON(t, r, http.MethodPost, "/trigger-outputs/o1/used", nil, nil)
	if w.Code != http.StatusNoContent || f.gotUsedID != "o1" {
		t.Fatalf("mark used: %d id=%q", w.Code, f.gotUsedID)
	}

	f.usedErr = services.ErrTriggerOutputNotFound
	w = doJSON(t, r, http.MethodPost, "/trigger-outputs/nope/used", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown output status=%d", w.Code)
	}

	f.triggerErr = services.ErrTriggerOutputNotFound
	if w := doJSON(t, r, http.MethodGet, "/threads/t1/trigger-output", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("no output status=%d", w.Code)
	}
}

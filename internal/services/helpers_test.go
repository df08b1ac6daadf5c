package services

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-customer-hub/internal/domain"
	"github.com/tbourn/go-customer-hub/internal/notify"
	"github.com/tbourn/go-customer-hub/internal/repo"
	"github.com/tbourn/go-customer-hub/internal/scoring"
	"github.com/tbourn/go-customer-hub/internal/statemachine"
	"github.com/tbourn/go-customer-hub/internal/triggers"
)

// Monday 2026-03-02 10:00 UTC: inside the work window.
var base = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// ----- real repo passthrough -----

type dbRepo struct{}

func (dbRepo) CreateContact(ctx context.Context, db *gorm.DB, externalID, remark string) (*domain.Contact, error) {
	return repo.CreateContact(ctx, db, externalID, remark)
}
func (dbRepo) GetContact(ctx context.Context, db *gorm.DB, id string) (*domain.Contact, error) {
	return repo.GetContact(ctx, db, id)
}
func (dbRepo) GetContactByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Contact, error) {
	return repo.GetContactByExternalID(ctx, db, externalID)
}
func (dbRepo) UpdateContactProfile(ctx context.Context, db *gorm.DB, id string, remark, owner *string) error {
	return repo.UpdateContactProfile(ctx, db, id, remark, owner)
}
func (dbRepo) PromoteContact(ctx context.Context, db *gorm.DB, id string, p repo.Promotion) error {
	return repo.PromoteContact(ctx, db, id, p)
}
func (dbRepo) NextCustomerSeq(ctx context.Context, db *gorm.DB, contactID string) (uint, error) {
	return repo.NextCustomerSeq(ctx, db, contactID)
}
func (dbRepo) CreateThread(ctx context.Context, db *gorm.DB, t *domain.Thread) error {
	return repo.CreateThread(ctx, db, t)
}
func (dbRepo) GetThread(ctx context.Context, db *gorm.DB, id string) (*domain.Thread, error) {
	return repo.GetThread(ctx, db, id)
}
func (dbRepo) GetThreadByContact(ctx context.Context, db *gorm.DB, contactID string) (*domain.Thread, error) {
	return repo.GetThreadByContact(ctx, db, contactID)
}
func (dbRepo) SaveThread(ctx context.Context, db *gorm.DB, t *domain.Thread) error {
	return repo.SaveThread(ctx, db, t)
}
func (dbRepo) ListSweepableThreads(ctx context.Context, db *gorm.DB, now time.Time, afterID string, limit int) ([]domain.Thread, error) {
	return repo.ListSweepableThreads(ctx, db, now, afterID, limit)
}
func (dbRepo) CreateSignal(ctx context.Context, db *gorm.DB, s *domain.Signal) error {
	return repo.CreateSignal(ctx, db, s)
}
func (dbRepo) GetSignal(ctx context.Context, db *gorm.DB, id string) (*domain.Signal, error) {
	return repo.GetSignal(ctx, db, id)
}
func (dbRepo) ListSignals(ctx context.Context, db *gorm.DB, threadID string, limit int) ([]domain.Signal, error) {
	return repo.ListSignals(ctx, db, threadID, limit)
}
func (dbRepo) SaveTriggerOutput(ctx context.Context, db *gorm.DB, o *domain.TriggerOutput) error {
	return repo.SaveTriggerOutput(ctx, db, o)
}
func (dbRepo) GetTriggerOutput(ctx context.Context, db *gorm.DB, threadID string, includeUsed bool) (*domain.TriggerOutput, error) {
	return repo.GetTriggerOutput(ctx, db, threadID, includeUsed)
}
func (dbRepo) MarkTriggerUsed(ctx context.Context, db *gorm.DB, id string) error {
	return repo.MarkTriggerUsed(ctx, db, id)
}
func (dbRepo) UnknownPool(ctx context.Context, db *gorm.DB, limit int) ([]domain.UnknownPoolItem, error) {
	return repo.UnknownPool(ctx, db, limit)
}
func (dbRepo) TodayTodo(ctx context.Context, db *gorm.DB, limit int) ([]domain.TodoItem, error) {
	return repo.TodayTodo(ctx, db, limit)
}
func (dbRepo) ThreadStatistics(ctx context.Context, db *gorm.DB) (domain.ThreadStatistics, error) {
	return repo.ThreadStatistics(ctx, db)
}
func (dbRepo) DailyMetrics(ctx context.Context, db *gorm.DB, day time.Time, loc *time.Location) (domain.DailyMetrics, error) {
	return repo.DailyMetrics(ctx, db, day, loc)
}
func (dbRepo) ThreadsStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error) {
	return repo.ThreadsStats(ctx, db)
}

// flakyRepo loses the first staleLeft thread saves to a phantom writer.
type flakyRepo struct {
	dbRepo
	mu        sync.Mutex
	staleLeft int
	saves     int
}

func (r *flakyRepo) SaveThread(ctx context.Context, db *gorm.DB, t *domain.Thread) error {
	r.mu.Lock()
	r.saves++
	stale := r.staleLeft > 0
	if stale {
		r.staleLeft--
	}
	r.mu.Unlock()
	if stale {
		return repo.ErrStaleThread
	}
	return r.dbRepo.SaveThread(ctx, db, t)
}

// ----- fakes -----

type fakeEngine struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (f *fakeEngine) run(ctx context.Context, t domain.TriggerType) (*triggers.Output, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &triggers.Output{
		Type:       t,
		Form:       map[string]any{"数量": 2},
		ReplyDraft: "draft for " + string(t),
		Labels:     []domain.TriggerLabel{t.Label()},
	}, nil
}

func (f *fakeEngine) PreSales(ctx context.Context, _ string) (*triggers.Output, error) {
	return f.run(ctx, domain.TriggerPreSales)
}
func (f *fakeEngine) AfterSales(ctx context.Context, _ string) (*triggers.Output, error) {
	return f.run(ctx, domain.TriggerAfterSales)
}
func (f *fakeEngine) BizDev(ctx context.Context, _ string) (*triggers.Output, error) {
	return f.run(ctx, domain.TriggerBizDev)
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []notify.Escalation
}

func (n *recordingNotifier) Notify(_ context.Context, e notify.Escalation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, e)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.got)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ----- wiring -----

type hubFixture struct {
	svc      *CustomerHubService
	db       *gorm.DB
	clock    *testClock
	engine   *fakeEngine
	notifier *recordingNotifier
}

func newHubDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.Open(repo.Options{Path: filepath.Join(t.TempDir(), "hub.db"), Silent: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// testRules uses thresholds 30/70 and a kb weight of 10.
func testRules() scoring.Rules {
	r := scoring.DefaultRules()
	r.WhiteThreshold = 70
	r.GrayLower = 30
	r.KBMatchWeight = 10
	return r
}

func newHub(t *testing.T) *hubFixture {
	t.Helper()
	db := newHubDB(t)
	clock := &testClock{now: base}
	engine := &fakeEngine{}
	n := &recordingNotifier{}

	svc := NewCustomerHubService(db, dbRepo{}, scoring.NewEngine(testRules(), nil), statemachine.New(statemachine.DefaultSLAConfig()), engine)
	svc.Now = clock.Now
	svc.Notifier = n
	return &hubFixture{svc: svc, db: db, clock: clock, engine: engine, notifier: n}
}

func boolPtr(b bool) *bool { return &b }

func inbound(wx, text string, speaker domain.Party, ts time.Time) domain.InboundMessage {
	return domain.InboundMessage{ExternalID: wx, Remark: "remark " + wx, Text: text, LastSpeaker: speaker, Timestamp: ts}
}

func mustProcess(t *testing.T, f *hubFixture, msg domain.InboundMessage, kb *bool) *ProcessResult {
	t.Helper()
	res, err := f.svc.ProcessInboundMessage(context.Background(), msg, kb)
	if err != nil {
		t.Fatalf("ProcessInboundMessage(%s): %v", msg.ExternalID, err)
	}
	return res
}

func countSignals(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&domain.Signal{}).Count(&n).Error; err != nil {
		t.Fatalf("count signals: %v", err)
	}
	return n
}

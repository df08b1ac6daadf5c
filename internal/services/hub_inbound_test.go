package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-customer-hub/internal/dedup"
	"github.com/tbourn/go-customer-hub/internal/domain"
	"github.com/tbourn/go-customer-hub/internal/repo"
)

func TestProcessInbound_SmallTalkOffHours(t *testing.T) {
	f := newHub(t)
	// Sunday 23:00, outside the work window.
	ts := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	f.clock.now = ts.Add(time.Minute)

	res := mustProcess(t, f, inbound("wx-a", "你好", domain.PartyThem, ts), nil)
	if res.TotalScore != 0 || res.Bucket != domain.BucketBlack {
		t.Fatalf("want 0/BLACK, got %d/%s", res.TotalScore, res.Bucket)
	}
	if res.Status != domain.StatusNeedReply || !res.StatusChanged {
		t.Fatalf("want NEED_REPLY changed, got %s changed=%v", res.Status, res.StatusChanged)
	}
	if res.TriggerType != nil {
		t.Fatalf("no trigger expected, got %v", *res.TriggerType)
	}
	if res.Duplicate {
		t.Fatalf("first delivery must not be a duplicate")
	}

	c, err := repo.GetContact(context.Background(), f.db, res.ContactID)
	if err != nil {
		t.Fatalf("GetContact: %v", err)
	}
	if c.Type != domain.ContactUnknown || c.Confidence != 0 || c.Source != domain.SourceWeChat || c.Remark != "remark wx-a" {
		t.Fatalf("unexpected new contact: %+v", c)
	}
	th, err := repo.GetThread(context.Background(), f.db, res.ThreadID)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if th.SLAAt == nil || !th.SLAAt.Equal(ts.Add(30*time.Minute)) {
		t.Fatalf("sla_at should be ts+30m, got %v", th.SLAAt)
	}
}

func TestProcessInbound_PreSalesInquiryIsGray(t *testing.T) {
	f := newHub(t)

	res := mustProcess(t, f, inbound("wx-b", "报价报价报价", domain.PartyThem, base), boolPtr(true))
	if res.TotalScore != 40 || res.Bucket != domain.BucketGray {
		t.Fatalf("want 40/GRAY, got %d/%s (%+v)", res.TotalScore, res.Bucket, res.ScoreDetails)
	}
	if res.ScoreDetails.KeywordScore != 18 || res.ScoreDetails.WorktimeScore != 12 || res.ScoreDetails.KBMatchScore != 10 {
		t.Fatalf("unexpected breakdown: %+v", res.ScoreDetails)
	}
	if res.TriggerType == nil || *res.TriggerType != domain.TriggerPreSales {
		t.Fatalf("want PRE_SALES trigger, got %v", res.TriggerType)
	}

	th, _ := repo.GetThread(context.Background(), f.db, res.ThreadID)
	if th.Topic != string(domain.LabelPreSales) || th.Bucket != domain.BucketGray {
		t.Fatalf("thread topic/bucket not updated: %+v", th)
	}
}

func TestProcessInbound_KBMatcherDecidesWhenUnset(t *testing.T) {
	f := newHub(t)
	f.svc.KB = matchAll{}

	res := mustProcess(t, f, inbound("wx-kb", "报价", domain.PartyThem, base), nil)
	if res.ScoreDetails.KBMatchScore != 10 {
		t.Fatalf("matcher should have been consulted: %+v", res.ScoreDetails)
	}
	res = mustProcess(t, f, inbound("wx-kb", "报价", domain.PartyThem, base.Add(time.Second)), boolPtr(false))
	if res.ScoreDetails.KBMatchScore != 0 {
		t.Fatalf("explicit false must win over matcher: %+v", res.ScoreDetails)
	}
}

type matchAll struct{}

func (matchAll) Match(string) bool { return true }

func TestProcessInbound_BlacklistDominates(t *testing.T) {
	f := newHub(t)
	res := mustProcess(t, f, inbound("wx-c", "报价 含税 周末一起吃饭", domain.PartyThem, base), boolPtr(true))
	if res.TotalScore != 0 || res.Bucket != domain.BucketBlack || res.TriggerType != nil {
		t.Fatalf("blacklist should dominate, got %+v", res)
	}
	if res.ScoreDetails.MatchedBlacklist != "吃饭" {
		t.Fatalf("matched blacklist not reported: %+v", res.ScoreDetails)
	}
}

func TestProcessInbound_Validation(t *testing.T) {
	f := newHub(t)
	ctx := context.Background()

	if _, err := f.svc.ProcessInboundMessage(ctx, inbound("  ", "hi", domain.PartyThem, base), nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank wx_id: want ErrInvalidInput, got %v", err)
	}
	if _, err := f.svc.ProcessInboundMessage(ctx, inbound("wx", "hi", "bot", base), nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad speaker: want ErrInvalidInput, got %v", err)
	}
	if n := countSignals(t, f.db); n != 0 {
		t.Fatalf("invalid input must not write, got %d signals", n)
	}
}

func TestProcessInbound_ZeroTimestampUsesClock(t *testing.T) {
	f := newHub(t)
	res := mustProcess(t, f, inbound("wx-z", "hi", domain.PartyMe, time.Time{}), nil)
	th, _ := repo.GetThread(context.Background(), f.db, res.ThreadID)
	if !th.LastMsgAt.Equal(base) {
		t.Fatalf("last_msg_at = %v, want %v", th.LastMsgAt, base)
	}
	if th.Status != domain.StatusWaitingThem {
		t.Fatalf("want WAITING_THEM, got %s", th.Status)
	}
}

func TestProcessInbound_ReusesThreadAndWakesSnooze(t *testing.T) {
	f := newHub(t)
	ctx := context.Background()

	first := mustProcess(t, f, inbound("wx-d", "在吗", domain.PartyThem, base), nil)
	if _, err := f.svc.SnoozeThread(ctx, first.ThreadID, 60); err != nil {
		t.Fatalf("SnoozeThread: %v", err)
	}

	f.clock.Advance(5 * time.Minute)
	second := mustProcess(t, f, inbound("wx-d", "还在吗", domain.PartyThem, f.clock.Now()), nil)
	if second.ThreadID != first.ThreadID || second.ContactID != first.ContactID {
		t.Fatalf("expected same contact/thread")
	}
	if second.Status != domain.StatusNeedReply || !second.StatusChanged {
		t.Fatalf("new message should wake the snooze, got %s", second.Status)
	}
	th, _ := repo.GetThread(ctx, f.db, second.ThreadID)
	if th.SnoozeAt != nil {
		t.Fatalf("snooze_at should be cleared, got %v", th.SnoozeAt)
	}

	f.clock.Advance(time.Minute)
	third := mustProcess(t, f, inbound("wx-d", "好的我看看", domain.PartyMe, f.clock.Now()), nil)
	if third.Status != domain.StatusWaitingThem {
		t.Fatalf("our reply should move to WAITING_THEM, got %s", third.Status)
	}
	if n := countSignals(t, f.db); n != 3 {
		t.Fatalf("want 3 signals, got %d", n)
	}
}

func TestProcessInbound_OlderMessageDoesNotRewindThread(t *testing.T) {
	f := newHub(t)
	res := mustProcess(t, f, inbound("wx-o", "hi", domain.PartyMe, base), nil)
	mustProcess(t, f, inbound("wx-o", "late", domain.PartyThem, base.Add(-time.Hour)), nil)

	th, _ := repo.GetThread(context.Background(), f.db, res.ThreadID)
	if th.LastSpeaker != domain.PartyMe || !th.LastMsgAt.Equal(base) {
		t.Fatalf("thread rewound: speaker=%s at=%v", th.LastSpeaker, th.LastMsgAt)
	}
}

func TestProcessInbound_DuplicateDelivery(t *testing.T) {
	f := newHub(t)
	f.svc.Dedup = dedup.NewDBStore(f.db)

	msg := inbound("wx-e", "报价报价报价", domain.PartyThem, base)
	msg.MessageID = "m-1"
	first := mustProcess(t, f, msg, boolPtr(true))
	second := mustProcess(t, f, msg, boolPtr(true))

	if !second.Duplicate || first.Duplicate {
		t.Fatalf("duplicate flags wrong: first=%v second=%v", first.Duplicate, second.Duplicate)
	}
	if second.SignalID != first.SignalID || second.ThreadID != first.ThreadID || second.TotalScore != first.TotalScore {
		t.Fatalf("replay should return the stored signal: %+v vs %+v", first, second)
	}
	if second.TriggerType == nil || *second.TriggerType != domain.TriggerPreSales {
		t.Fatalf("replay should recompute trigger type, got %v", second.TriggerType)
	}
	if n := countSignals(t, f.db); n != 1 {
		t.Fatalf("want 1 signal, got %d", n)
	}
}

// gatedStore holds every Claim until two callers have arrived, so both
// deliveries of a message race for the key.
type gatedStore struct {
	dedup.Store
	mu      sync.Mutex
	arrived int
	ready   chan struct{}
}

func (g *gatedStore) Claim(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	g.mu.Lock()
	g.arrived++
	if g.arrived == 2 {
		close(g.ready)
	}
	g.mu.Unlock()
	<-g.ready
	return g.Store.Claim(ctx, key, ttl)
}

func TestProcessInbound_ConcurrentDuplicateDelivery(t *testing.T) {
	f := newHub(t)
	sqlDB, err := f.db.DB()
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	f.svc.Dedup = &gatedStore{Store: dedup.NewDBStore(f.db), ready: make(chan struct{})}

	msg := inbound("wx-dup", "报价报价", domain.PartyThem, base)
	msg.MessageID = "m-dup"

	var wg sync.WaitGroup
	results := make([]*ProcessResult, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.ProcessInboundMessage(context.Background(), msg, nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if n := countSignals(t, f.db); n != 1 {
		t.Fatalf("want 1 signal, got %d", n)
	}
	if results[0].Duplicate == results[1].Duplicate {
		t.Fatalf("exactly one delivery should be a duplicate: %v %v", results[0].Duplicate, results[1].Duplicate)
	}
	if results[0].SignalID != results[1].SignalID {
		t.Fatalf("both deliveries should report one signal: %s vs %s", results[0].SignalID, results[1].SignalID)
	}
}

func TestProcessInbound_InFlightDeliveryTimesOut(t *testing.T) {
	f := newHub(t)
	store := dedup.NewDBStore(f.db)
	f.svc.Dedup = store
	f.svc.ClaimWait = 50 * time.Millisecond

	if _, claimed, err := store.Claim(context.Background(), "m-busy", time.Minute); err != nil || !claimed {
		t.Fatalf("claim: claimed=%v err=%v", claimed, err)
	}
	msg := inbound("wx-busy", "hi", domain.PartyThem, base)
	msg.MessageID = "m-busy"
	_, err := f.svc.ProcessInboundMessage(context.Background(), msg, nil)
	if !errors.Is(err, ErrDeliveryInProgress) {
		t.Fatalf("want ErrDeliveryInProgress, got %v", err)
	}
	if n := countSignals(t, f.db); n != 0 {
		t.Fatalf("nothing should be written, got %d signals", n)
	}
}

func TestProcessInbound_FailedDeliveryReleasesClaim(t *testing.T) {
	f := newHub(t)
	f.svc.Dedup = dedup.NewDBStore(f.db)
	f.svc.ClaimWait = 50 * time.Millisecond
	mustProcess(t, f, inbound("wx-rel", "hi", domain.PartyThem, base), nil)

	f.svc.Repo = &flakyRepo{staleLeft: 100}
	f.svc.MaxRetries = 0
	msg := inbound("wx-rel", "again", domain.PartyThem, base.Add(time.Minute))
	msg.MessageID = "m-rel"
	if _, err := f.svc.ProcessInboundMessage(context.Background(), msg, nil); !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("want ErrConcurrentUpdate, got %v", err)
	}

	// the upstream retry of the same message is scored normally
	f.svc.Repo = dbRepo{}
	res := mustProcess(t, f, msg, nil)
	if res.Duplicate {
		t.Fatalf("retry after a failed delivery must not be a duplicate")
	}
	if n := countSignals(t, f.db); n != 2 {
		t.Fatalf("want 2 signals, got %d", n)
	}
}

func TestProcessInbound_OverdueOnArrivalNotifies(t *testing.T) {
	f := newHub(t)
	res := mustProcess(t, f, inbound("wx-f", "设备报错了", domain.PartyThem, base.Add(-2*time.Hour)), nil)
	if res.Status != domain.StatusOverdue {
		t.Fatalf("want OVERDUE, got %s", res.Status)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("want 1 escalation, got %d", f.notifier.count())
	}
	if got := f.notifier.got[0]; got.ThreadID != res.ThreadID || got.ContactName != "remark wx-f" {
		t.Fatalf("unexpected escalation: %+v", got)
	}
}

func TestProcessInbound_RetriesStaleThread(t *testing.T) {
	f := newHub(t)
	mustProcess(t, f, inbound("wx-g", "hi", domain.PartyThem, base), nil)

	flaky := &flakyRepo{staleLeft: 1}
	f.svc.Repo = flaky
	res := mustProcess(t, f, inbound("wx-g", "again", domain.PartyMe, base.Add(time.Minute)), nil)
	if flaky.saves != 2 {
		t.Fatalf("want 2 save attempts, got %d", flaky.saves)
	}
	if res.Status != domain.StatusWaitingThem {
		t.Fatalf("want WAITING_THEM, got %s", res.Status)
	}
	if n := countSignals(t, f.db); n != 2 {
		t.Fatalf("rolled-back attempt must not leave a signal, got %d", n)
	}
}

func TestProcessInbound_RetriesExhausted(t *testing.T) {
	f := newHub(t)
	mustProcess(t, f, inbound("wx-h", "hi", domain.PartyThem, base), nil)

	flaky := &flakyRepo{staleLeft: 100}
	f.svc.Repo = flaky
	f.svc.MaxRetries = 2
	_, err := f.svc.ProcessInboundMessage(context.Background(), inbound("wx-h", "again", domain.PartyThem, base), nil)
	if !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("want ErrConcurrentUpdate, got %v", err)
	}
	if flaky.saves != 3 {
		t.Fatalf("want 3 attempts, got %d", flaky.saves)
	}
}

func TestProcessInbound_ConcurrentContacts(t *testing.T) {
	f := newHub(t)
	sqlDB, err := f.db.DB()
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	// One connection: SQLite serializes writers anyway, and this keeps
	// concurrent transactions queued instead of failing with SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	const contacts, perContact = 4, 5
	var wg sync.WaitGroup
	errs := make(chan error, contacts*perContact)
	for c := 0; c < contacts; c++ {
		for m := 0; m < perContact; m++ {
			wg.Add(1)
			go func(c, m int) {
				defer wg.Done()
				msg := inbound(fmt.Sprintf("wx-%d", c), "报价", domain.PartyThem, base.Add(time.Duration(m)*time.Second))
				if _, err := f.svc.ProcessInboundMessage(context.Background(), msg, nil); err != nil {
					errs <- err
				}
			}(c, m)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent process: %v", err)
	}

	st, err := f.svc.GetStatistics(context.Background())
	if err != nil {
		t.Fatalf("GetStatistics: %v", err)
	}
	if st.Total != contacts {
		t.Fatalf("want %d threads, got %d", contacts, st.Total)
	}
	if n := countSignals(t, f.db); n != contacts*perContact {
		t.Fatalf("want %d signals, got %d", contacts*perContact, n)
	}
}

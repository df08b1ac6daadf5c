package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-customer-hub/internal/domain"
	"github.com/tbourn/go-customer-hub/internal/repo"
)

func TestThreadCommands(t *testing.T) {
	f := newHub(t)
	ctx := context.Background()
	res := mustProcess(t, f, inbound("wx-s1", "在吗", domain.PartyThem, base), nil)

	st, err := f.svc.SnoozeThread(ctx, res.ThreadID, 0)
	if err != nil {
		t.Fatalf("SnoozeThread: %v", err)
	}
	if st.Status != domain.StatusSnoozed || st.SnoozeAt == nil || !st.SnoozeAt.Equal(base.Add(60*time.Minute)) {
		t.Fatalf("default snooze wrong: %+v", st)
	}

	hours := 2
	st, err = f.svc.MarkWaiting(ctx, res.ThreadID, &hours)
	if err != nil {
		t.Fatalf("MarkWaiting: %v", err)
	}
	if st.Status != domain.StatusWaitingThem || st.FollowUpAt == nil || !st.FollowUpAt.Equal(base.Add(2*time.Hour)) || st.SnoozeAt != nil {
		t.Fatalf("mark waiting wrong: %+v", st)
	}

	st, err = f.svc.ResolveThread(ctx, res.ThreadID)
	if err != nil {
		t.Fatalf("ResolveThread: %v", err)
	}
	if st.Status != domain.StatusResolved || st.SLAAt != nil || st.SnoozeAt != nil || st.FollowUpAt != nil {
		t.Fatalf("resolve must clear timers: %+v", st)
	}

	th, _ := repo.GetThread(ctx, f.db, res.ThreadID)
	if th.Status != domain.StatusResolved || th.Version != 4 {
		t.Fatalf("stored thread: status=%s version=%d", th.Status, th.Version)
	}
}

func TestThreadCommands_NotFound(t *testing.T) {
	f := newHub(t)
	ctx := context.Background()
	if _, err := f.svc.SnoozeThread(ctx, "missing", 10); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("snooze: %v", err)
	}
	if _, err := f.svc.ResolveThread(ctx, "missing"); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := f.svc.MarkWaiting(ctx, "missing", nil); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("waiting: %v", err)
	}
	if _, err := f.svc.RecalcThreadStatus(ctx, "missing"); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("recalc: %v", err)
	}
	if _, err := f.svc.GetThread(ctx, "missing"); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("get: %v", err)
	}
}

func TestResolveThread_RetriesStale(t *testing.T) {
	f := newHub(t)
	res := mustProcess(t, f, inbound("wx-s2", "hi", domain.PartyThem, base), nil)
	flaky := &flakyRepo{staleLeft: 1}
	f.svc.Repo = flaky

	st, err := f.svc.ResolveThread(context.Background(), res.ThreadID)
	if err != nil {
		t.Fatalf("ResolveThread: %v", err)
	}
	if st.Status != domain.StatusResolved || flaky.saves != 2 {
		t.Fatalf("status=%s saves=%d", st.Status, flaky.saves)
	}
}

func TestRecalcThreadStatus_GoesOverdueOnce(t *testing.T) {
	f := newHub(t)
	ctx := context.Background()
	res := mustProcess(t, f, inbound("wx-r1", "在吗", domain.PartyThem, base), nil)

	f.clock.Advance(29 * time.Minute)
	r, err := f.svc.RecalcThreadStatus(ctx, res.ThreadID)
	if err != nil {
		t.Fatalf("RecalcThreadStatus: %v", err)
	}
	if r.Changed || r.NewStatus != domain.StatusNeedReply {
		t.Fatalf("29m: want NEED_REPLY unchanged, got %+v", r)
	}

	f.clock.Advance(2 * time.Minute)
	r, err = f.svc.RecalcThreadStatus(ctx, res.ThreadID)
	if err != nil {
		t.Fatalf("RecalcThreadStatus: %v", err)
	}
	if !r.Changed || r.OldStatus != domain.StatusNeedReply || r.NewStatus != domain.StatusOverdue {
		t.Fatalf("31m: want NEED_REPLY->OVERDUE, got %+v", r)
	}
	if r.SLAAt == nil || !r.SLAAt.Equal(base.Add(30*time.Minute)) {
		t.Fatalf("sla_at = %v", r.SLAAt)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("want 1 escalation, got %d", f.notifier.count())
	}

	r, err = f.svc.RecalcThreadStatus(ctx, res.ThreadID)
	if err != nil || r.Changed {
		t.Fatalf("second recalc should be a no-op: %+v %v", r, err)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("no repeat escalation expected")
	}
}

func TestMarkWaiting_CustomWindowSurvivesRecalc(t *testing.T) {
	f := newHub(t)
	ctx := context.Background()
	res := mustProcess(t, f, inbound("wx-w1", "我考虑一下", domain.PartyThem, base), nil)

	hours := 1
	if _, err := f.svc.MarkWaiting(ctx, res.ThreadID, &hours); err != nil {
		t.Fatalf("MarkWaiting: %v", err)
	}

	f.clock.Advance(30 * time.Minute)
	r, err := f.svc.RecalcThreadStatus(ctx, res.ThreadID)
	if err != nil || r.Changed || r.NewStatus != domain.StatusWaitingThem {
		t.Fatalf("30m: want WAITING_THEM unchanged, got %+v %v", r, err)
	}

	f.clock.Advance(90 * time.Minute)
	sum, err := f.svc.RecalcAllThreads(ctx)
	if err != nil || sum.Changed != 1 {
		t.Fatalf("sweep at 2h: %+v %v", sum, err)
	}
	th, _ := repo.GetThread(ctx, f.db, res.ThreadID)
	if th.Status != domain.StatusNeedReply || th.FollowUpAt == nil || !th.FollowUpAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("want NEED_REPLY with the 1h follow-up kept, got %s %v", th.Status, th.FollowUpAt)
	}
}

func TestProcessInbound_NewReplyRestartsFollowUp(t *testing.T) {
	f := newHub(t)
	ctx := context.Background()
	res := mustProcess(t, f, inbound("wx-w2", "在吗", domain.PartyThem, base), nil)

	hours := 1
	if _, err := f.svc.MarkWaiting(ctx, res.ThreadID, &hours); err != nil {
		t.Fatalf("MarkWaiting: %v", err)
	}

	// our next message lands after the old follow-up expired
	f.clock.Advance(3 * time.Hour)
	out := mustProcess(t, f, inbound("wx-w2", "资料已发您邮箱", domain.PartyMe, f.clock.Now()), nil)
	if out.Status != domain.StatusWaitingThem {
		t.Fatalf("fresh reply: want WAITING_THEM, got %s", out.Status)
	}
	th, _ := repo.GetThread(ctx, f.db, res.ThreadID)
	if want := f.clock.Now().Add(48 * time.Hour); th.FollowUpAt == nil || !th.FollowUpAt.Equal(want) {
		t.Fatalf("follow_up_at = %v, want %v", th.FollowUpAt, want)
	}
}

func TestRecalcAllThreads(t *testing.T) {
	f := newHub(t)
	ctx := context.Background()

	overdue := mustProcess(t, f, inbound("wx-a1", "在吗", domain.PartyThem, base), nil)
	resolved := mustProcess(t, f, inbound("wx-a2", "在吗", domain.PartyThem, base), nil)
	mustProcess(t, f, inbound("wx-a3", "发您了", domain.PartyMe, base), nil)
	snoozed := mustProcess(t, f, inbound("wx-a4", "在吗", domain.PartyThem, base), nil)

	if _, err := f.svc.ResolveThread(ctx, resolved.ThreadID); err != nil {
		t.Fatalf("ResolveThread: %v", err)
	}
	if _, err := f.svc.SnoozeThread(ctx, snoozed.ThreadID, 120); err != nil {
		t.Fatalf("SnoozeThread: %v", err)
	}

	f.clock.Advance(31 * time.Minute)
	sum, err := f.svc.RecalcAllThreads(ctx)
	if err != nil {
		t.Fatalf("RecalcAllThreads: %v", err)
	}
	if sum.Scanned != 2 || sum.Changed != 1 || sum.NewlyOverdue != 1 || sum.Errors != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	th, _ := repo.GetThread(ctx, f.db, overdue.ThreadID)
	if th.Status != domain.StatusOverdue {
		t.Fatalf("want OVERDUE, got %s", th.Status)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("want 1 escalation, got %d", f.notifier.count())
	}

	sum, err = f.svc.RecalcAllThreads(ctx)
	if err != nil || sum.Changed != 0 {
		t.Fatalf("second sweep should change nothing: %+v %v", sum, err)
	}
}

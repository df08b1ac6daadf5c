package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-customer-hub/internal/domain"
	"github.com/tbourn/go-customer-hub/internal/observability"
	"github.com/tbourn/go-customer-hub/internal/repo"
)

// ThreadState is the lifecycle snapshot returned by thread commands.
type ThreadState struct {
	ThreadID   string              `json:"thread_id"`
	Status     domain.ThreadStatus `json:"status"`
	SLAAt      *time.Time          `json:"sla_at"`
	SnoozeAt   *time.Time          `json:"snooze_at"`
	FollowUpAt *time.Time          `json:"follow_up_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

func stateOf(t *domain.Thread) *ThreadState {
	return &ThreadState{
		ThreadID:   t.ID,
		Status:     t.Status,
		SLAAt:      t.SLAAt,
		SnoozeAt:   t.SnoozeAt,
		FollowUpAt: t.FollowUpAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

// RecalcResult reports one status recalculation.
type RecalcResult struct {
	ThreadID   string              `json:"thread_id"`
	OldStatus  domain.ThreadStatus `json:"old_status"`
	NewStatus  domain.ThreadStatus `json:"new_status"`
	Changed    bool                `json:"changed"`
	SLAAt      *time.Time          `json:"sla_at"`
	FollowUpAt *time.Time          `json:"follow_up_at"`
}

// RecalcSummary reports a sweep over every open thread.
type RecalcSummary struct {
	Scanned      int `json:"scanned"`
	Changed      int `json:"changed"`
	NewlyOverdue int `json:"newly_overdue"`
	Errors       int `json:"errors"`
}

// mutateThread is the compare-and-swap read-modify-write shared by the
// thread commands. fn reports whether t needs saving. It returns the thread
// as stored and the status it had before fn ran.
func (s *CustomerHubService) mutateThread(ctx context.Context, op, id string, fn func(t *domain.Thread, now time.Time) bool) (*domain.Thread, domain.ThreadStatus, error) {
	var (
		out *domain.Thread
		old domain.ThreadStatus
	)
	err := s.withRetry(ctx, op, func() error {
		t, err := s.Repo.GetThread(ctx, s.DB, id)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrThreadNotFound
		}
		if err != nil {
			return err
		}
		old = t.Status
		if fn(t, s.now()) {
			if err := s.Repo.SaveThread(ctx, s.DB, t); err != nil {
				return err
			}
		}
		out = t
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrThreadNotFound), errors.Is(err, ErrConcurrentUpdate):
		return nil, "", err
	default:
		return nil, "", fmt.Errorf("%s %s: %w", op, id, err)
	}

	if out.Status != old {
		observability.RecordTransition(old, out.Status)
		if out.Status == domain.StatusOverdue {
			s.notifyOverdue(ctx, out, nil)
		}
		log.Info().
			Str("thread_id", out.ID).
			Str("from", string(old)).
			Str("to", string(out.Status)).
			Msg("thread status changed")
	}
	return out, old, nil
}

// SnoozeThread defers a thread for minutes (<= 0 means the configured
// default).
func (s *CustomerHubService) SnoozeThread(ctx context.Context, threadID string, minutes int) (*ThreadState, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "SnoozeThread",
		trace.WithAttributes(
			attribute.String("thread.id", threadID),
			attribute.Int("snooze.minutes", minutes),
		),
	)
	defer span.End()

	t, _, err := s.mutateThread(ctx, "snooze thread", threadID, func(t *domain.Thread, now time.Time) bool {
		s.Machine.Snooze(t, minutes, now)
		return true
	})
	if err != nil {
		return nil, err
	}
	return stateOf(t), nil
}

// ResolveThread closes a thread and clears its timers.
func (s *CustomerHubService) ResolveThread(ctx context.Context, threadID string) (*ThreadState, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "ResolveThread",
		trace.WithAttributes(attribute.String("thread.id", threadID)),
	)
	defer span.End()

	t, _, err := s.mutateThread(ctx, "resolve thread", threadID, func(t *domain.Thread, now time.Time) bool {
		s.Machine.Resolve(t, now)
		return true
	})
	if err != nil {
		return nil, err
	}
	return stateOf(t), nil
}

// MarkWaiting records that we replied and now wait on the customer for
// hours (nil or <= 0 means the configured follow-up window).
func (s *CustomerHubService) MarkWaiting(ctx context.Context, threadID string, hours *int) (*ThreadState, error) {
	tr := otel.Tracer(tracerName)
	attrs := []attribute.KeyValue{attribute.String("thread.id", threadID)}
	if hours != nil {
		attrs = append(attrs, attribute.Int("follow_up.hours", *hours))
	}
	ctx, span := tr.Start(ctx, "MarkWaiting", trace.WithAttributes(attrs...))
	defer span.End()

	t, _, err := s.mutateThread(ctx, "mark waiting", threadID, func(t *domain.Thread, now time.Time) bool {
		s.Machine.MarkWaiting(t, hours, now)
		return true
	})
	if err != nil {
		return nil, err
	}
	return stateOf(t), nil
}

// RecalcThreadStatus re-derives a thread's timers and status at the current
// time. The row is written only when the status changed.
func (s *CustomerHubService) RecalcThreadStatus(ctx context.Context, threadID string) (*RecalcResult, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "RecalcThreadStatus",
		trace.WithAttributes(attribute.String("thread.id", threadID)),
	)
	defer span.End()

	t, old, err := s.mutateThread(ctx, "recalc thread", threadID, func(t *domain.Thread, now time.Time) bool {
		return s.Machine.UpdateThreadStatus(t, now)
	})
	if err != nil {
		return nil, err
	}
	return &RecalcResult{
		ThreadID:   t.ID,
		OldStatus:  old,
		NewStatus:  t.Status,
		Changed:    old != t.Status,
		SLAAt:      t.SLAAt,
		FollowUpAt: t.FollowUpAt,
	}, nil
}

// RecalcAllThreads sweeps every open thread (skipping RESOLVED ones and
// those snoozed into the future) and recalculates its status. Per-thread
// failures are counted and logged; only a failure to list threads aborts
// the sweep.
func (s *CustomerHubService) RecalcAllThreads(ctx context.Context) (*RecalcSummary, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "RecalcAllThreads")
	defer span.End()

	sum := &RecalcSummary{}
	now := s.now()
	after := ""
	for {
		page, err := s.Repo.ListSweepableThreads(ctx, s.DB, now, after, sweepPageSize)
		if err != nil {
			span.RecordError(err)
			return sum, fmt.Errorf("list sweepable threads: %w", err)
		}
		for i := range page {
			t := &page[i]
			after = t.ID
			sum.Scanned++

			old := t.Status
			if !s.Machine.UpdateThreadStatus(t, now) {
				continue
			}
			err := s.Repo.SaveThread(ctx, s.DB, t)
			if errors.Is(err, repo.ErrStaleThread) {
				// Someone wrote the thread since the page was read; redo it
				// through the retrying path.
				res, rerr := s.RecalcThreadStatus(ctx, t.ID)
				if rerr != nil {
					sum.Errors++
					log.Warn().Err(rerr).Str("thread_id", t.ID).Msg("recalc failed")
					continue
				}
				if res.Changed {
					sum.Changed++
					if res.NewStatus == domain.StatusOverdue {
						sum.NewlyOverdue++
					}
				}
				continue
			}
			if err != nil {
				sum.Errors++
				log.Warn().Err(err).Str("thread_id", t.ID).Msg("recalc failed")
				continue
			}

			sum.Changed++
			observability.RecordTransition(old, t.Status)
			if t.Status == domain.StatusOverdue {
				sum.NewlyOverdue++
				s.notifyOverdue(ctx, t, nil)
			}
		}
		if len(page) < sweepPageSize || ctx.Err() != nil {
			break
		}
	}

	span.SetAttributes(
		attribute.Int("recalc.scanned", sum.Scanned),
		attribute.Int("recalc.changed", sum.Changed),
	)
	log.Info().
		Int("scanned", sum.Scanned).
		Int("changed", sum.Changed).
		Int("newly_overdue", sum.NewlyOverdue).
		Int("errors", sum.Errors).
		Msg("thread sweep finished")
	return sum, ctx.Err()
}

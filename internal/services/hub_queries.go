package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-customer-hub/internal/domain"
	"github.com/tbourn/go-customer-hub/internal/repo"
	"github.com/tbourn/go-customer-hub/internal/utils"
)

// ThreadView is a thread together with its recent Signal history, newest
// first. LatestSignal is nil when the thread has none.
type ThreadView struct {
	Thread        *domain.Thread  `json:"thread"`
	LatestSignal  *domain.Signal  `json:"latest_signal,omitempty"`
	RecentSignals []domain.Signal `json:"recent_signals"`
}

// GetUnknownPool lists gray conversations from unclassified contacts.
// limit is clamped to 1..200 (default 50).
func (s *CustomerHubService) GetUnknownPool(ctx context.Context, limit int) ([]domain.UnknownPoolItem, error) {
	limit = utils.ClampLimit(limit, defaultListLimit, maxListLimit)
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "GetUnknownPool",
		trace.WithAttributes(attribute.Int("limit", limit)),
	)
	defer span.End()

	items, err := s.Repo.UnknownPool(ctx, s.DB, limit)
	if err != nil {
		return nil, fmt.Errorf("unknown pool: %w", err)
	}
	return items, nil
}

// GetTodayTodo lists threads awaiting action, most urgent first.
// limit is clamped to 1..200 (default 50).
func (s *CustomerHubService) GetTodayTodo(ctx context.Context, limit int) ([]domain.TodoItem, error) {
	limit = utils.ClampLimit(limit, defaultListLimit, maxListLimit)
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "GetTodayTodo",
		trace.WithAttributes(attribute.Int("limit", limit)),
	)
	defer span.End()

	items, err := s.Repo.TodayTodo(ctx, s.DB, limit)
	if err != nil {
		return nil, fmt.Errorf("today todo: %w", err)
	}
	return items, nil
}

// GetStatistics counts threads per status.
func (s *CustomerHubService) GetStatistics(ctx context.Context) (domain.ThreadStatistics, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "GetStatistics")
	defer span.End()

	st, err := s.Repo.ThreadStatistics(ctx, s.DB)
	if err != nil {
		return st, fmt.Errorf("thread statistics: %w", err)
	}
	return st, nil
}

// GetDailyMetrics summarizes the calendar day containing day in the
// service's Location. A zero day means today.
func (s *CustomerHubService) GetDailyMetrics(ctx context.Context, day time.Time) (domain.DailyMetrics, error) {
	if day.IsZero() {
		day = s.now()
	}
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "GetDailyMetrics",
		trace.WithAttributes(attribute.String("day", day.Format("2006-01-02"))),
	)
	defer span.End()

	m, err := s.Repo.DailyMetrics(ctx, s.DB, day, s.Location)
	if err != nil {
		return m, fmt.Errorf("daily metrics: %w", err)
	}
	return m, nil
}

// GetContact fetches a contact by id.
func (s *CustomerHubService) GetContact(ctx context.Context, id string) (*domain.Contact, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "GetContact",
		trace.WithAttributes(attribute.String("contact.id", id)),
	)
	defer span.End()

	c, err := s.Repo.GetContact(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contact %s: %w", id, err)
	}
	return c, nil
}

// UpdateContact edits the manual fields of a contact. A nil field is left
// alone; an empty owner clears the assignment.
func (s *CustomerHubService) UpdateContact(ctx context.Context, id string, remark, owner *string) (*domain.Contact, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "UpdateContact",
		trace.WithAttributes(attribute.String("contact.id", id)),
	)
	defer span.End()

	if remark == nil && owner == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if remark != nil {
		r := strings.TrimSpace(*remark)
		remark = &r
	}
	if owner != nil {
		o := strings.TrimSpace(*owner)
		owner = &o
	}

	err := s.Repo.UpdateContactProfile(ctx, s.DB, id, remark, owner)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update contact %s: %w", id, err)
	}
	return s.GetContact(ctx, id)
}

// GetThread returns a thread with its last recentSignalLimit Signals.
func (s *CustomerHubService) GetThread(ctx context.Context, id string) (*ThreadView, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "GetThread",
		trace.WithAttributes(attribute.String("thread.id", id)),
	)
	defer span.End()

	t, err := s.Repo.GetThread(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get thread %s: %w", id, err)
	}
	recent, err := s.Repo.ListSignals(ctx, s.DB, id, recentSignalLimit)
	if err != nil {
		return nil, fmt.Errorf("list signals %s: %w", id, err)
	}
	v := &ThreadView{Thread: t, RecentSignals: recent}
	if len(recent) > 0 {
		v.LatestSignal = &recent[0]
	}
	span.SetAttributes(attribute.Int("thread.signals", len(recent)))
	return v, nil
}

// ThreadsStats returns the thread count and the latest modification time
// across threads and contacts; list handlers derive ETags from it.
func (s *CustomerHubService) ThreadsStats(ctx context.Context) (int64, *time.Time, error) {
	return s.Repo.ThreadsStats(ctx, s.DB)
}

// MatchKnowledgeBase reports whether text is covered by the knowledge base.
func (s *CustomerHubService) MatchKnowledgeBase(text string) bool {
	if s.KB == nil {
		return false
	}
	return s.KB.Match(text)
}

// Package services – CustomerHubService
//
// This file defines CustomerHubService, the application component that ties
// scoring, the thread state machine, persistence, dedup, notifications and
// the trigger workflows together. Every public method is traced with
// OpenTelemetry; thread writes use optimistic concurrency (a version column)
// and are retried with linear backoff when another writer got there first.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-customer-hub/internal/dedup"
	"github.com/tbourn/go-customer-hub/internal/domain"
	"github.com/tbourn/go-customer-hub/internal/kb"
	"github.com/tbourn/go-customer-hub/internal/notify"
	"github.com/tbourn/go-customer-hub/internal/repo"
	"github.com/tbourn/go-customer-hub/internal/scoring"
	"github.com/tbourn/go-customer-hub/internal/statemachine"
	"github.com/tbourn/go-customer-hub/internal/triggers"
)

const (
	tracerName = "services/CustomerHubService"

	defaultMaxRetries     = 3
	defaultTriggerTimeout = 30 * time.Second
	defaultCodeSource     = "微信"
	retryBackoff          = 20 * time.Millisecond
	defaultClaimWait      = 5 * time.Second
	claimPoll             = 25 * time.Millisecond

	defaultListLimit = 50
	maxListLimit     = 200
	sweepPageSize    = 200

	recentSignalLimit = 10
)

// HubRepo defines the repository contract required by CustomerHubService.
// Every method takes the handle to run on, so the service can pass either
// its DB or an open transaction.
type HubRepo interface {
	CreateContact(ctx context.Context, db *gorm.DB, externalID, remark string) (*domain.Contact, error)
	GetContact(ctx context.Context, db *gorm.DB, id string) (*domain.Contact, error)
	GetContactByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Contact, error)
	UpdateContactProfile(ctx context.Context, db *gorm.DB, id string, remark, owner *string) error
	PromoteContact(ctx context.Context, db *gorm.DB, id string, p repo.Promotion) error
	NextCustomerSeq(ctx context.Context, db *gorm.DB, contactID string) (uint, error)

	CreateThread(ctx context.Context, db *gorm.DB, t *domain.Thread) error
	GetThread(ctx context.Context, db *gorm.DB, id string) (*domain.Thread, error)
	GetThreadByContact(ctx context.Context, db *gorm.DB, contactID string) (*domain.Thread, error)
	SaveThread(ctx context.Context, db *gorm.DB, t *domain.Thread) error
	ListSweepableThreads(ctx context.Context, db *gorm.DB, now time.Time, afterID string, limit int) ([]domain.Thread, error)

	CreateSignal(ctx context.Context, db *gorm.DB, s *domain.Signal) error
	GetSignal(ctx context.Context, db *gorm.DB, id string) (*domain.Signal, error)
	ListSignals(ctx context.Context, db *gorm.DB, threadID string, limit int) ([]domain.Signal, error)

	SaveTriggerOutput(ctx context.Context, db *gorm.DB, o *domain.TriggerOutput) error
	GetTriggerOutput(ctx context.Context, db *gorm.DB, threadID string, includeUsed bool) (*domain.TriggerOutput, error)
	MarkTriggerUsed(ctx context.Context, db *gorm.DB, id string) error

	UnknownPool(ctx context.Context, db *gorm.DB, limit int) ([]domain.UnknownPoolItem, error)
	TodayTodo(ctx context.Context, db *gorm.DB, limit int) ([]domain.TodoItem, error)
	ThreadStatistics(ctx context.Context, db *gorm.DB) (domain.ThreadStatistics, error)
	DailyMetrics(ctx context.Context, db *gorm.DB, day time.Time, loc *time.Location) (domain.DailyMetrics, error)
	ThreadsStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error)
}

// CustomerHubService scores inbound messages, keeps thread state and runs
// the reply workflows.
type CustomerHubService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the repository used by this service.
	Repo HubRepo

	Scorer   *scoring.Engine
	Machine  *statemachine.Machine
	Triggers triggers.Engine

	// Dedup remembers processed message ids; nil disables replay detection.
	Dedup     dedup.Store
	DedupTTL  time.Duration
	// ClaimWait is how long a duplicate waits for an in-flight delivery of
	// the same message before giving up with ErrDeliveryInProgress.
	ClaimWait time.Duration

	Notifier notify.Notifier
	KB       kb.Matcher

	// Now is the clock; tests pin it.
	Now func() time.Time
	// Location is the calendar zone used for daily metrics (UTC when nil).
	Location *time.Location

	// MaxRetries bounds compare-and-swap retries per operation.
	MaxRetries int
	// TriggerTimeout caps one workflow run; 0 disables the cap.
	TriggerTimeout time.Duration
	// CustomerCodeSource is the last segment of generated customer codes.
	CustomerCodeSource string
}

// NewCustomerHubService wires the required collaborators and fills the
// optional ones with defaults: no dedup, log notifications, no knowledge
// base, UTC wall clock.
func NewCustomerHubService(db *gorm.DB, r HubRepo, scorer *scoring.Engine, machine *statemachine.Machine, engine triggers.Engine) *CustomerHubService {
	return &CustomerHubService{
		DB:                 db,
		Repo:               r,
		Scorer:             scorer,
		Machine:            machine,
		Triggers:           engine,
		DedupTTL:           dedup.DefaultTTL,
		ClaimWait:          defaultClaimWait,
		Notifier:           notify.LogNotifier{},
		KB:                 kb.Nop{},
		Now:                func() time.Time { return time.Now().UTC() },
		MaxRetries:         defaultMaxRetries,
		TriggerTimeout:     defaultTriggerTimeout,
		CustomerCodeSource: defaultCodeSource,
	}
}

func (s *CustomerHubService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// retryable reports whether err came from losing a write race. A stale
// thread version and a unique violation on insert both mean another writer
// committed first; re-reading resolves either.
func retryable(err error) bool {
	return errors.Is(err, repo.ErrStaleThread) || errors.Is(err, repo.ErrDuplicate)
}

// withRetry runs fn until it succeeds, fails with a non-retryable error or
// MaxRetries extra attempts are spent.
func (s *CustomerHubService) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}
		if err = fn(); !retryable(err) {
			return err
		}
		log.Debug().Err(err).Str("op", op).Int("attempt", attempt+1).Msg("write conflict, retrying")
	}
	log.Warn().Err(err).Str("op", op).Msg("write conflict retries exhausted")
	return fmt.Errorf("%s: %w", op, ErrConcurrentUpdate)
}

// notifyOverdue sends an escalation. c may be nil, in which case the
// contact is looked up; failures are logged and never returned.
func (s *CustomerHubService) notifyOverdue(ctx context.Context, t *domain.Thread, c *domain.Contact) {
	if s.Notifier == nil {
		return
	}
	if c == nil {
		if got, err := s.Repo.GetContact(ctx, s.DB, t.ContactID); err == nil {
			c = got
		}
	}
	e := notify.Escalation{
		ThreadID:  t.ID,
		ContactID: t.ContactID,
		Bucket:    t.Bucket,
		Topic:     t.Topic,
		LastMsgAt: t.LastMsgAt,
		SLAAt:     t.SLAAt,
	}
	if c != nil {
		e.ContactName = c.Remark
		if c.Owner != nil {
			e.Owner = *c.Owner
		}
	}
	if err := s.Notifier.Notify(ctx, e); err != nil {
		log.Warn().Err(err).Str("thread_id", t.ID).Msg("overdue notification failed")
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-customer-hub/internal/dedup"
	"github.com/tbourn/go-customer-hub/internal/domain"
	"github.com/tbourn/go-customer-hub/internal/observability"
	"github.com/tbourn/go-customer-hub/internal/repo"
	"github.com/tbourn/go-customer-hub/internal/scoring"
)

// ProcessResult is the outcome of one inbound message.
type ProcessResult struct {
	ContactID     string              `json:"contact_id"`
	ThreadID      string              `json:"thread_id"`
	SignalID      string              `json:"signal_id"`
	Bucket        domain.Bucket       `json:"bucket"`
	TotalScore    int                 `json:"total_score"`
	Status        domain.ThreadStatus `json:"status"`
	StatusChanged bool                `json:"status_changed"`
	TriggerType   *domain.TriggerType `json:"trigger_type"`
	ScoreDetails  scoring.Details     `json:"score_details"`
	Duplicate     bool                `json:"duplicate"`
}

// ProcessInboundMessage scores msg, upserts its contact and thread, advances
// the thread status and appends a Signal, all in one transaction.
//
// kbMatched overrides the knowledge-base matcher when non-nil. A message id
// already seen within the dedup TTL is answered from the stored Signal with
// Duplicate set and nothing is written. Concurrent deliveries of one message
// id are serialized by a dedup claim, so only one of them scores.
func (s *CustomerHubService) ProcessInboundMessage(ctx context.Context, msg domain.InboundMessage, kbMatched *bool) (*ProcessResult, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "ProcessInboundMessage",
		trace.WithAttributes(
			attribute.String("message.id", msg.MessageID),
			attribute.String("message.speaker", string(msg.LastSpeaker)),
		),
	)
	defer span.End()

	msg.ExternalID = strings.TrimSpace(msg.ExternalID)
	if msg.ExternalID == "" {
		return nil, fmt.Errorf("%w: wx_id is required", ErrInvalidInput)
	}
	if !msg.LastSpeaker.Valid() {
		return nil, fmt.Errorf("%w: last_speaker must be me or them", ErrInvalidInput)
	}
	now := s.now()
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = now
	}
	ts = ts.UTC()

	key := strings.TrimSpace(msg.MessageID)
	claimed := false
	if key != "" && s.Dedup != nil {
		res, ok, err := s.claimDelivery(ctx, key)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if res != nil {
			span.SetAttributes(attribute.Bool("message.duplicate", true))
			return res, nil
		}
		claimed = ok
	}

	matched := false
	if kbMatched != nil {
		matched = *kbMatched
	} else if s.KB != nil {
		matched = s.KB.Match(msg.Text)
	}
	sig, details := s.Scorer.Score(msg.Text, msg.FileTypes, ts, matched)

	var trig *domain.TriggerType
	if sig.Bucket != domain.BucketBlack {
		if t, ok := s.Scorer.IdentifyTriggerType(sig.KeywordHits); ok {
			trig = &t
		}
	}

	var (
		contact   *domain.Contact
		thread    *domain.Thread
		saved     domain.Signal
		oldStatus domain.ThreadStatus
		changed   bool
	)
	err := s.withRetry(ctx, "process message", func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			c, err := s.contactFor(ctx, tx, msg)
			if err != nil {
				return err
			}
			t, created, err := s.threadFor(ctx, tx, c.ID, msg.LastSpeaker, ts)
			if err != nil {
				return err
			}

			old := t.Status
			t.Bucket = sig.Bucket
			if trig != nil && t.Topic == "" {
				t.Topic = string(trig.Label())
			}
			ch := s.Machine.UpdateThreadStatus(t, now)
			if created {
				err = s.Repo.CreateThread(ctx, tx, t)
			} else {
				err = s.Repo.SaveThread(ctx, tx, t)
			}
			if err != nil {
				return err
			}

			row := sig
			row.ThreadID = t.ID
			row.CreatedAt = now
			if err := s.Repo.CreateSignal(ctx, tx, &row); err != nil {
				return err
			}

			contact, thread, saved, oldStatus, changed = c, t, row, old, ch
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		if claimed {
			if rerr := s.Dedup.Release(context.WithoutCancel(ctx), key); rerr != nil {
				log.Warn().Err(rerr).Msg("release delivery claim failed")
			}
		}
		if errors.Is(err, ErrConcurrentUpdate) {
			return nil, err
		}
		return nil, fmt.Errorf("process message: %w", err)
	}

	span.SetAttributes(
		attribute.String("contact.id", contact.ID),
		attribute.String("thread.id", thread.ID),
		attribute.String("signal.bucket", string(saved.Bucket)),
	)

	if claimed {
		if err := s.Dedup.Complete(context.WithoutCancel(ctx), key, saved.ID, s.DedupTTL); err != nil {
			log.Warn().Err(err).Str("thread_id", thread.ID).Msg("complete delivery failed")
		}
	}
	observability.RecordSignal(saved.Bucket)
	if changed {
		observability.RecordTransition(oldStatus, thread.Status)
		if thread.Status == domain.StatusOverdue {
			s.notifyOverdue(ctx, thread, contact)
		}
	}

	log.Info().
		Str("contact_id", contact.ID).
		Str("thread_id", thread.ID).
		Str("bucket", string(saved.Bucket)).
		Int("score", saved.TotalScore).
		Str("status", string(thread.Status)).
		Msg("message processed")

	return &ProcessResult{
		ContactID:     contact.ID,
		ThreadID:      thread.ID,
		SignalID:      saved.ID,
		Bucket:        saved.Bucket,
		TotalScore:    saved.TotalScore,
		Status:        thread.Status,
		StatusChanged: changed,
		TriggerType:   trig,
		ScoreDetails:  details,
	}, nil
}

// claimDelivery reserves key for this request. A key another request has
// completed is answered from its Signal; one still in flight is polled until
// it completes, is released or ClaimWait runs out. Store errors and dangling
// records fall through to normal processing without a claim.
func (s *CustomerHubService) claimDelivery(ctx context.Context, key string) (*ProcessResult, bool, error) {
	wait := s.ClaimWait
	if wait <= 0 {
		wait = defaultClaimWait
	}
	deadline := time.Now().Add(wait)
	for {
		sigID, claimed, err := s.Dedup.Claim(ctx, key, dedup.ClaimTTL)
		if err != nil {
			log.Warn().Err(err).Msg("dedup claim failed, scoring anyway")
			return nil, false, nil
		}
		if claimed {
			return nil, true, nil
		}
		if sigID != "" {
			return s.replayDelivery(ctx, sigID), false, nil
		}
		if time.Now().After(deadline) {
			return nil, false, fmt.Errorf("%w: message %s", ErrDeliveryInProgress, key)
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(claimPoll):
		}
	}
}

// replayDelivery rebuilds the result of an already processed delivery from
// its stored Signal, or returns nil when the Signal or its thread is gone.
func (s *CustomerHubService) replayDelivery(ctx context.Context, sigID string) *ProcessResult {
	sig, err := s.Repo.GetSignal(ctx, s.DB, sigID)
	if err != nil {
		log.Warn().Err(err).Str("signal_id", sigID).Msg("remembered signal missing, scoring anyway")
		return nil
	}
	t, err := s.Repo.GetThread(ctx, s.DB, sig.ThreadID)
	if err != nil {
		log.Warn().Err(err).Str("thread_id", sig.ThreadID).Msg("remembered thread missing, scoring anyway")
		return nil
	}

	res := &ProcessResult{
		ContactID:  t.ContactID,
		ThreadID:   t.ID,
		SignalID:   sig.ID,
		Bucket:     sig.Bucket,
		TotalScore: sig.TotalScore,
		Status:     t.Status,
		ScoreDetails: scoring.Details{
			KeywordScore:  sig.KeywordScore,
			FileScore:     sig.FileScore,
			WorktimeScore: sig.WorktimeScore,
			KBMatchScore:  sig.KBMatchScore,
			TotalScore:    sig.TotalScore,
			Bucket:        sig.Bucket,
			Timestamp:     sig.CreatedAt,
		},
		Duplicate: true,
	}
	if sig.Bucket != domain.BucketBlack {
		if tt, ok := s.Scorer.IdentifyTriggerType(sig.KeywordHits); ok {
			res.TriggerType = &tt
		}
	}
	observability.RecordDuplicate()
	log.Info().Str("thread_id", t.ID).Str("signal_id", sig.ID).Msg("duplicate delivery")
	return res
}

// contactFor returns the contact for msg, creating an unknown WeChat contact
// on first sight. A blank stored remark is filled from the message.
func (s *CustomerHubService) contactFor(ctx context.Context, tx *gorm.DB, msg domain.InboundMessage) (*domain.Contact, error) {
	c, err := s.Repo.GetContactByExternalID(ctx, tx, msg.ExternalID)
	if errors.Is(err, repo.ErrNotFound) {
		return s.Repo.CreateContact(ctx, tx, msg.ExternalID, strings.TrimSpace(msg.Remark))
	}
	if err != nil {
		return nil, err
	}
	if remark := strings.TrimSpace(msg.Remark); c.Remark == "" && remark != "" {
		if err := s.Repo.UpdateContactProfile(ctx, tx, c.ID, &remark, nil); err != nil {
			return nil, err
		}
		c.Remark = remark
	}
	return c, nil
}

// threadFor returns the contact's current thread with the new message
// applied, or a fresh UNSEEN thread (created reports which). An older
// message than the one on record does not move the speaker or time back.
// Any pending snooze is cleared: a new message wakes the thread. A newer
// message also drops the SLA and follow-up timers so they restart from it.
func (s *CustomerHubService) threadFor(ctx context.Context, tx *gorm.DB, contactID string, speaker domain.Party, ts time.Time) (*domain.Thread, bool, error) {
	t, err := s.Repo.GetThreadByContact(ctx, tx, contactID)
	if errors.Is(err, repo.ErrNotFound) {
		return &domain.Thread{
			ContactID:   contactID,
			LastSpeaker: speaker,
			LastMsgAt:   ts,
			Status:      domain.StatusUnseen,
			Bucket:      domain.BucketBlack,
		}, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !ts.Before(t.LastMsgAt) {
		t.LastSpeaker = speaker
		t.LastMsgAt = ts
		t.SLAAt = nil
		t.FollowUpAt = nil
	}
	t.SnoozeAt = nil
	return t, false, nil
}

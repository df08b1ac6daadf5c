package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/tbourn/go-customer-hub/internal/domain"
	"github.com/tbourn/go-customer-hub/internal/observability"
	"github.com/tbourn/go-customer-hub/internal/repo"
	"github.com/tbourn/go-customer-hub/internal/triggers"
)

// ReasonBlacklistThread is the refusal reason for triggers on BLACK threads.
const ReasonBlacklistThread = "blacklist_thread"

// TriggerResult is either a persisted output or a policy refusal.
type TriggerResult struct {
	TriggerType domain.TriggerType    `json:"trigger_type"`
	Refused     bool                  `json:"refused"`
	Reason      string                `json:"reason,omitempty"`
	Message     string                `json:"message,omitempty"`
	Output      *domain.TriggerOutput `json:"output,omitempty"`
}

// TriggerScenario runs the workflow named by triggerType over text for a
// thread and stores its output. A BLACK thread is refused without calling
// the engine or writing anything; the refusal is a result, not an error.
// Engine failures and timeouts are wrapped in ErrUpstream and leave no
// partial writes.
func (s *CustomerHubService) TriggerScenario(ctx context.Context, threadID, text, triggerType string) (*TriggerResult, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "TriggerScenario",
		trace.WithAttributes(
			attribute.String("thread.id", threadID),
			attribute.String("trigger.type", triggerType),
		),
	)
	defer span.End()

	typ, ok := domain.ParseTriggerType(triggerType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTriggerType, triggerType)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}

	t, err := s.Repo.GetThread(ctx, s.DB, threadID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get thread %s: %w", threadID, err)
	}

	if t.Bucket == domain.BucketBlack {
		observability.RecordTriggerRun(typ, observability.OutcomeRefused)
		log.Info().Str("thread_id", t.ID).Str("trigger_type", string(typ)).Msg("trigger refused on blacklisted thread")
		return &TriggerResult{
			TriggerType: typ,
			Refused:     true,
			Reason:      ReasonBlacklistThread,
			Message:     "thread is blacklisted; workflows are disabled",
		}, nil
	}

	runCtx := ctx
	if s.TriggerTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.TriggerTimeout)
		defer cancel()
	}
	out, err := triggers.Dispatch(runCtx, s.Triggers, typ, text)
	if err == nil && out == nil {
		err = errors.New("engine returned no output")
	}
	if err != nil {
		observability.RecordTriggerRun(typ, observability.OutcomeError)
		span.RecordError(err)
		log.Warn().Err(err).Str("thread_id", t.ID).Str("trigger_type", string(typ)).Msg("trigger workflow failed")
		return nil, fmt.Errorf("%w: %s: %w", ErrUpstream, typ, err)
	}

	row := &domain.TriggerOutput{
		ThreadID:    t.ID,
		TriggerType: typ,
		Form:        datatypes.JSONMap(out.Form),
		ReplyDraft:  out.ReplyDraft,
		Labels:      out.Labels,
		Confidence:  out.Confidence,
	}
	if err := s.Repo.SaveTriggerOutput(ctx, s.DB, row); err != nil {
		return nil, fmt.Errorf("save trigger output for %s: %w", t.ID, err)
	}
	observability.RecordTriggerRun(typ, observability.OutcomeOK)
	span.SetAttributes(attribute.String("trigger.output_id", row.ID))

	return &TriggerResult{TriggerType: typ, Output: row}, nil
}

// GetTriggerOutput returns the newest unused output of a thread.
func (s *CustomerHubService) GetTriggerOutput(ctx context.Context, threadID string) (*domain.TriggerOutput, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "GetTriggerOutput",
		trace.WithAttributes(attribute.String("thread.id", threadID)),
	)
	defer span.End()

	if _, err := s.Repo.GetThread(ctx, s.DB, threadID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, fmt.Errorf("get thread %s: %w", threadID, err)
	}
	o, err := s.Repo.GetTriggerOutput(ctx, s.DB, threadID, false)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTriggerOutputNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trigger output %s: %w", threadID, err)
	}
	return o, nil
}

// MarkTriggerUsed flags an output as used. Repeating the call is a no-op.
func (s *CustomerHubService) MarkTriggerUsed(ctx context.Context, id string) error {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "MarkTriggerUsed",
		trace.WithAttributes(attribute.String("trigger.output_id", id)),
	)
	defer span.End()

	err := s.Repo.MarkTriggerUsed(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrTriggerOutputNotFound
	}
	if err != nil {
		return fmt.Errorf("mark trigger output %s: %w", id, err)
	}
	return nil
}

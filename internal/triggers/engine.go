// Package triggers runs the specialized reply workflows (pre-sales inquiry,
// after-sales ticket, lead development) that turn a conversation excerpt into
// a structured form and a draft reply.
package triggers

import (
	"context"
	"errors"

	"github.com/tbourn/go-customer-hub/internal/domain"
)

// ErrUnknownTriggerType is returned by Dispatch for a type outside the
// three workflows.
var ErrUnknownTriggerType = errors.New("unknown trigger type")

// Output is the structured result of one workflow run.
type Output struct {
	Type       domain.TriggerType    `json:"trigger_type"`
	Form       map[string]any        `json:"form"`
	ReplyDraft string                `json:"reply_draft"`
	Labels     []domain.TriggerLabel `json:"labels"`
	Confidence *float64              `json:"confidence,omitempty"`
}

// Engine produces workflow outputs. Implementations may call remote models
// and must honor ctx cancellation.
type Engine interface {
	PreSales(ctx context.Context, text string) (*Output, error)
	AfterSales(ctx context.Context, text string) (*Output, error)
	BizDev(ctx context.Context, text string) (*Output, error)
}

// Dispatch routes text to the workflow named by t.
func Dispatch(ctx context.Context, e Engine, t domain.TriggerType, text string) (*Output, error) {
	switch t {
	case domain.TriggerPreSales:
		return e.PreSales(ctx, text)
	case domain.TriggerAfterSales:
		return e.AfterSales(ctx, text)
	case domain.TriggerBizDev:
		return e.BizDev(ctx, text)
	}
	return nil, ErrUnknownTriggerType
}

// finalize fills the type and label and guarantees a non-nil form.
func finalize(o *Output, t domain.TriggerType) *Output {
	o.Type = t
	o.Labels = []domain.TriggerLabel{t.Label()}
	if o.Form == nil {
		o.Form = map[string]any{}
	}
	return o
}

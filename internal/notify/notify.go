// Package notify delivers escalations for threads that missed their reply
// deadline.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/tbourn/go-customer-hub/internal/domain"
)

// Escalation describes a thread that just became OVERDUE.
type Escalation struct {
	ThreadID    string
	ContactID   string
	ContactName string
	Owner       string
	Bucket      domain.Bucket
	Topic       string
	LastMsgAt   time.Time
	SLAAt       *time.Time
}

// Notifier delivers escalations. Implementations must be safe for concurrent
// use; callers log failures and carry on.
type Notifier interface {
	Notify(ctx context.Context, e Escalation) error
}

// LogNotifier writes escalations to the global logger. It is the default when
// no mail provider is configured.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(_ context.Context, e Escalation) error {
	ev := log.Warn().
		Str("thread_id", e.ThreadID).
		Str("contact_id", e.ContactID).
		Str("bucket", string(e.Bucket)).
		Time("last_msg_at", e.LastMsgAt)
	if e.SLAAt != nil {
		ev = ev.Time("sla_at", *e.SLAAt)
	}
	ev.Msg("thread overdue")
	return nil
}

// Nop discards escalations.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Escalation) error { return nil }

const (
	defaultSendGridHost = "https://api.sendgrid.com"
	sendEndpoint        = "/v3/mail/send"
)

// SendGrid mails escalations through the SendGrid v3 API.
type SendGrid struct {
	APIKey string
	From   string
	To     []string
	Host   string // overrides the API host; tests point this at httptest
}

var _ Notifier = (*SendGrid)(nil)

// NewSendGrid returns a notifier sending from `from` to every address in to.
func NewSendGrid(apiKey, from string, to []string) *SendGrid {
	return &SendGrid{APIKey: apiKey, From: from, To: to, Host: defaultSendGridHost}
}

// Notify implements Notifier.
func (s *SendGrid) Notify(ctx context.Context, e Escalation) error {
	if s.APIKey == "" {
		return errors.New("sendgrid: API key not configured")
	}
	if len(s.To) == 0 {
		return errors.New("sendgrid: no recipients configured")
	}

	host := s.Host
	if host == "" {
		host = defaultSendGridHost
	}
	req := sendgrid.GetRequest(s.APIKey, sendEndpoint, host)
	req.Method = "POST"
	req.Body = mail.GetRequestBody(s.message(e))

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid: send escalation %s: %w", e.ThreadID, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func (s *SendGrid) message(e Escalation) *mail.SGMailV3 {
	name := e.ContactName
	if name == "" {
		name = e.ContactID
	}
	subject := fmt.Sprintf("[客户中枢] 会话超时未回复：%s", name)
	body := Body(e)

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail("Customer Hub", s.From))
	m.Subject = subject
	p := mail.NewPersonalization()
	for _, addr := range s.To {
		p.AddTos(mail.NewEmail("", addr))
	}
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/plain", body))
	return m
}

// Body renders the plain-text escalation summary.
func Body(e Escalation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "会话 %s 已超过回复时限。\n\n", e.ThreadID)
	fmt.Fprintf(&b, "联系人: %s (%s)\n", e.ContactName, e.ContactID)
	if e.Owner != "" {
		fmt.Fprintf(&b, "负责人: %s\n", e.Owner)
	}
	fmt.Fprintf(&b, "分级: %s\n", e.Bucket)
	if e.Topic != "" {
		fmt.Fprintf(&b, "主题: %s\n", e.Topic)
	}
	fmt.Fprintf(&b, "最后消息: %s\n", e.LastMsgAt.Format(time.RFC3339))
	if e.SLAAt != nil {
		fmt.Fprintf(&b, "回复时限: %s\n", e.SLAAt.Format(time.RFC3339))
	}
	return b.String()
}

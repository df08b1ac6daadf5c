// Package statemachine drives the thread lifecycle from the last speaker and
// the SLA clocks. Every function here is total and does no I/O; callers pass
// the current time explicitly.
package statemachine

import (
	"time"

	"github.com/tbourn/go-customer-hub/internal/domain"
)

// SLAConfig holds the timing knobs of the lifecycle.
type SLAConfig struct {
	// NeedReplyMinutes is how long a customer may wait for our reply before
	// the thread turns OVERDUE.
	NeedReplyMinutes int
	// FollowUpHours is how long we wait for the customer before the thread
	// rebounds to NEED_REPLY.
	FollowUpHours int
	// DefaultSnoozeMinutes is used when a snooze asks for <= 0 minutes.
	DefaultSnoozeMinutes int
}

// DefaultSLAConfig returns 30 minutes / 48 hours / 60 minutes.
func DefaultSLAConfig() SLAConfig {
	return SLAConfig{NeedReplyMinutes: 30, FollowUpHours: 48, DefaultSnoozeMinutes: 60}
}

// Machine applies an SLAConfig to threads.
type Machine struct {
	cfg SLAConfig
}

// New returns a Machine. Non-positive fields fall back to the defaults.
func New(cfg SLAConfig) *Machine {
	def := DefaultSLAConfig()
	if cfg.NeedReplyMinutes <= 0 {
		cfg.NeedReplyMinutes = def.NeedReplyMinutes
	}
	if cfg.FollowUpHours <= 0 {
		cfg.FollowUpHours = def.FollowUpHours
	}
	if cfg.DefaultSnoozeMinutes <= 0 {
		cfg.DefaultSnoozeMinutes = def.DefaultSnoozeMinutes
	}
	return &Machine{cfg: cfg}
}

// Config returns the effective configuration.
func (m *Machine) Config() SLAConfig { return m.cfg }

// ComputeStatus derives the status t should have at now without modifying t.
func (m *Machine) ComputeStatus(t *domain.Thread, now time.Time) domain.ThreadStatus {
	// A pending snooze holds until it wakes or something else touches the
	// thread.
	if t.Status == domain.StatusSnoozed && t.SnoozeAt != nil && t.SnoozeAt.After(now) {
		return domain.StatusSnoozed
	}
	if t.SnoozeAt != nil && !t.SnoozeAt.After(now) {
		return domain.StatusNeedReply
	}
	if t.FollowUpAt != nil && now.After(*t.FollowUpAt) {
		return domain.StatusNeedReply
	}

	switch t.LastSpeaker {
	case domain.PartyThem:
		if now.Sub(t.LastMsgAt) > time.Duration(m.cfg.NeedReplyMinutes)*time.Minute {
			return domain.StatusOverdue
		}
		return domain.StatusNeedReply
	case domain.PartyMe:
		// a scheduled follow-up (MarkWaiting) overrides the default window
		due := t.LastMsgAt.Add(time.Duration(m.cfg.FollowUpHours) * time.Hour)
		if t.FollowUpAt != nil {
			due = *t.FollowUpAt
		}
		if now.After(due) {
			return domain.StatusNeedReply
		}
		return domain.StatusWaitingThem
	}
	return t.Status
}

// ComputeNextTimes sets the SLA deadline or follow-up time implied by the
// last speaker. A follow-up already scheduled (MarkWaiting with a custom
// window) is kept; callers clear it when a new message arrives. A thread
// with no speaker is left alone.
func (m *Machine) ComputeNextTimes(t *domain.Thread) {
	switch t.LastSpeaker {
	case domain.PartyThem:
		sla := t.LastMsgAt.Add(time.Duration(m.cfg.NeedReplyMinutes) * time.Minute)
		t.SLAAt = &sla
		t.FollowUpAt = nil
	case domain.PartyMe:
		if t.FollowUpAt == nil {
			fu := t.LastMsgAt.Add(time.Duration(m.cfg.FollowUpHours) * time.Hour)
			t.FollowUpAt = &fu
		}
		t.SLAAt = nil
	}
}

// UpdateThreadStatus computes the status from the timers as stored, then
// refreshes the timers, and reports whether the status changed. Calling it
// twice with the same now is a no-op the second time.
func (m *Machine) UpdateThreadStatus(t *domain.Thread, now time.Time) bool {
	next := m.ComputeStatus(t, now)
	m.ComputeNextTimes(t)
	changed := next != t.Status
	t.Status = next
	t.UpdatedAt = now
	return changed
}

// Snooze defers the thread. minutes <= 0 means the configured default.
func (m *Machine) Snooze(t *domain.Thread, minutes int, now time.Time) {
	if minutes <= 0 {
		minutes = m.cfg.DefaultSnoozeMinutes
	}
	at := now.Add(time.Duration(minutes) * time.Minute)
	t.Status = domain.StatusSnoozed
	t.SnoozeAt = &at
	t.UpdatedAt = now
}

// Resolve closes the thread and clears every timer.
func (m *Machine) Resolve(t *domain.Thread, now time.Time) {
	t.Status = domain.StatusResolved
	t.SLAAt = nil
	t.SnoozeAt = nil
	t.FollowUpAt = nil
	t.UpdatedAt = now
}

// MarkWaiting records that we just replied and are waiting on the customer.
// hours nil or <= 0 means the configured follow-up window.
func (m *Machine) MarkWaiting(t *domain.Thread, hours *int, now time.Time) {
	h := m.cfg.FollowUpHours
	if hours != nil && *hours > 0 {
		h = *hours
	}
	fu := now.Add(time.Duration(h) * time.Hour)
	t.Status = domain.StatusWaitingThem
	t.LastSpeaker = domain.PartyMe
	t.LastMsgAt = now
	t.FollowUpAt = &fu
	t.SLAAt = nil
	t.SnoozeAt = nil
	t.UpdatedAt = now
}

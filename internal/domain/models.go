// Package domain defines the persistence models of the customer hub:
// contacts, conversation threads, scoring signals and trigger outputs. These
// types are mapped with GORM and shared by the repository and service layers.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Contact is a person or account identified by a messaging-platform ID.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ExternalID: WeChat ID; unique.
//   - Remark: display remark from the messaging client (optional).
//   - CustomerCode: assigned once on promotion, then immutable; unique.
//   - Source / Type: see ContactSource and ContactType.
//   - Confidence: 0 while unknown, forced to 100 on promotion.
//   - Owner: assigned sales rep (optional).
//   - Region / Level: captured on promotion (optional).
//   - PromotedAt: when the contact became a customer.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Contact struct {
	ID           string        `json:"id"                      gorm:"type:char(36);primaryKey"`
	ExternalID   string        `json:"wx_id"                   gorm:"type:varchar(128);not null;uniqueIndex:ux_contacts_external"`
	Remark       string        `json:"remark"                  gorm:"type:varchar(255)"`
	CustomerCode *string       `json:"customer_code,omitempty"  gorm:"type:varchar(255);uniqueIndex:ux_contacts_code"`
	Source       ContactSource `json:"source"                  gorm:"type:varchar(16);not null;default:'wechat'"`
	Type         ContactType   `json:"type"                    gorm:"type:varchar(16);not null;default:'unknown';index"`
	Confidence   int           `json:"confidence"              gorm:"not null;default:0;check:confidence BETWEEN 0 AND 100"`
	Owner        *string       `json:"owner,omitempty"         gorm:"type:varchar(64)"`
	Region       *string       `json:"region,omitempty"        gorm:"type:varchar(64)"`
	Level        *string       `json:"level,omitempty"         gorm:"type:varchar(32)"`
	PromotedAt   *time.Time    `json:"promoted_at,omitempty"   gorm:"index"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Contact.
func (Contact) TableName() string { return "contacts" }

// Thread is one evolving conversation with a Contact. Status and the three
// wake-up timestamps are driven by the state machine; Bucket is copied from
// the latest Signal (or forced WHITE on promotion).
//
// Version is bumped on every successful save and used for compare-and-swap
// updates, so two writers racing on the same thread never silently overwrite
// each other.
type Thread struct {
	ID          string       `json:"id"                     gorm:"type:char(36);primaryKey"`
	ContactID   string       `json:"contact_id"             gorm:"type:char(36);not null;index:idx_thread_contact,priority:1"`
	LastSpeaker Party        `json:"last_speaker"           gorm:"type:varchar(8)"`
	LastMsgAt   time.Time    `json:"last_msg_at"            gorm:"not null;index:idx_thread_contact,priority:2"`
	Status      ThreadStatus `json:"status"                 gorm:"type:varchar(16);not null;default:'UNSEEN';index"`
	Bucket      Bucket       `json:"bucket"                 gorm:"type:varchar(8);not null;default:'BLACK';index"`
	SLAAt       *time.Time   `json:"sla_at,omitempty"       gorm:"column:sla_at"`
	SnoozeAt    *time.Time   `json:"snooze_at,omitempty"`
	FollowUpAt  *time.Time   `json:"follow_up_at,omitempty" gorm:"column:follow_up_at"`
	Topic       string       `json:"topic,omitempty"        gorm:"type:varchar(255)"`
	Version     int          `json:"version"                gorm:"not null;default:1"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`

	Contact Contact `json:"-" gorm:"foreignKey:ContactID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Thread.
func (Thread) TableName() string { return "threads" }

// Signal is the immutable scoring record of one inbound message.
// TotalScore = min(100, KeywordScore+FileScore+WorktimeScore+KBMatchScore).
type Signal struct {
	ID            string         `json:"id"              gorm:"type:char(36);primaryKey"`
	ThreadID      string         `json:"thread_id"       gorm:"type:char(36);not null;index:idx_signal_thread,priority:1"`
	KeywordHits   map[string]int `json:"keyword_hits"    gorm:"type:text;serializer:json"`
	FileTypes     []string       `json:"file_types"      gorm:"type:text;serializer:json"`
	KeywordScore  int            `json:"keyword_score"   gorm:"not null;default:0"`
	FileScore     int            `json:"file_score"      gorm:"not null;default:0"`
	WorktimeScore int            `json:"worktime_score"  gorm:"not null;default:0"`
	KBMatchScore  int            `json:"kb_match_score"  gorm:"not null;default:0"`
	TotalScore    int            `json:"total_score"     gorm:"not null;default:0"`
	Bucket        Bucket         `json:"bucket"          gorm:"type:varchar(8);not null"`
	CreatedAt     time.Time      `json:"created_at"      gorm:"index:idx_signal_thread,priority:2"`

	Thread Thread `json:"-" gorm:"foreignKey:ThreadID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Signal.
func (Signal) TableName() string { return "signals" }

// TriggerOutput is the structured result of a specialized workflow run.
// Used only ever moves from false to true.
type TriggerOutput struct {
	ID          string            `json:"id"                   gorm:"type:char(36);primaryKey"`
	ThreadID    string            `json:"thread_id"            gorm:"type:char(36);not null;index:idx_trigger_thread,priority:1"`
	TriggerType TriggerType       `json:"trigger_type"         gorm:"type:varchar(16);not null"`
	Form        datatypes.JSONMap `json:"form"`
	ReplyDraft  string            `json:"reply_draft"          gorm:"type:text"`
	Labels      []TriggerLabel    `json:"labels"               gorm:"type:text;serializer:json"`
	Confidence  *float64          `json:"confidence,omitempty"`
	Used        bool              `json:"used"                 gorm:"not null;default:false"`
	CreatedAt   time.Time         `json:"created_at"           gorm:"index:idx_trigger_thread,priority:2"`

	Thread Thread `json:"-" gorm:"foreignKey:ThreadID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for TriggerOutput.
func (TriggerOutput) TableName() string { return "trigger_outputs" }

// CustomerCodeSequence hands out durable, monotonic customer sequence
// numbers: one auto-increment row per promotion.
type CustomerCodeSequence struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	ContactID string    `gorm:"type:char(36);not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the database table name for CustomerCodeSequence.
func (CustomerCodeSequence) TableName() string { return "customer_code_seq" }

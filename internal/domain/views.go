package domain

import "time"

// InboundMessage is one message delivered by the messaging adapter.
// Text may be empty for attachment-only messages.
type InboundMessage struct {
	MessageID   string    `json:"message_id,omitempty"`
	ExternalID  string    `json:"wx_id"`
	Remark      string    `json:"remark,omitempty"`
	Text        string    `json:"text"`
	FileTypes   []string  `json:"file_types"`
	Timestamp   time.Time `json:"timestamp"`
	LastSpeaker Party     `json:"last_speaker"`
}

// ThreadStatistics counts threads per status.
type ThreadStatistics struct {
	Total       int64 `json:"total"`
	Unseen      int64 `json:"unseen"`
	NeedReply   int64 `json:"need_reply"`
	WaitingThem int64 `json:"waiting_them"`
	Overdue     int64 `json:"overdue"`
	Resolved    int64 `json:"resolved"`
	Snoozed     int64 `json:"snoozed"`
}

// Add records n threads with status s.
func (st *ThreadStatistics) Add(s ThreadStatus, n int64) {
	st.Total += n
	switch s {
	case StatusUnseen:
		st.Unseen += n
	case StatusNeedReply:
		st.NeedReply += n
	case StatusWaitingThem:
		st.WaitingThem += n
	case StatusOverdue:
		st.Overdue += n
	case StatusResolved:
		st.Resolved += n
	case StatusSnoozed:
		st.Snoozed += n
	}
}

// DailyMetrics summarizes hub activity for one calendar day.
type DailyMetrics struct {
	Date             string  `json:"date"`
	UnknownPoolCount int64   `json:"unknown_pool_count"`
	PromotedCount    int64   `json:"promoted_count"`
	OverdueCount     int64   `json:"overdue_count"`
	ResolvedCount    int64   `json:"resolved_count"`
	ClearRate        float64 `json:"clear_rate"`
}

// UnknownPoolItem is a gray conversation from a not-yet-classified contact,
// together with its latest score.
type UnknownPoolItem struct {
	ThreadID    string         `json:"thread_id"`
	ContactID   string         `json:"contact_id"`
	ExternalID  string         `json:"wx_id"`
	Remark      string         `json:"remark"`
	LastSpeaker Party          `json:"last_speaker"`
	LastMsgAt   time.Time      `json:"last_msg_at"`
	Status      ThreadStatus   `json:"status"`
	Topic       string         `json:"topic,omitempty"`
	TotalScore  int            `json:"total_score"`
	KeywordHits map[string]int `json:"keyword_hits"`
	FileTypes   []string       `json:"file_types"`
}

// TodoItem is a thread a rep has to act on. Lower Priority is more urgent.
type TodoItem struct {
	ThreadID     string       `json:"thread_id"`
	ContactID    string       `json:"contact_id"`
	ExternalID   string       `json:"wx_id"`
	Remark       string       `json:"remark"`
	CustomerCode *string      `json:"customer_code,omitempty"`
	LastSpeaker  Party        `json:"last_speaker"`
	LastMsgAt    time.Time    `json:"last_msg_at"`
	Status       ThreadStatus `json:"status"`
	Bucket       Bucket       `json:"bucket"`
	SLAAt        *time.Time   `json:"sla_at,omitempty" gorm:"column:sla_at"`
	Topic        string       `json:"topic,omitempty"`
	Priority     int          `json:"priority"`
}

package domain

import "strings"

// Party identifies who sent the latest message in a thread, relative to the
// operator running the hub.
type Party string

const (
	PartyMe   Party = "me"
	PartyThem Party = "them"
)

// Valid reports whether p is one of the known parties.
func (p Party) Valid() bool { return p == PartyMe || p == PartyThem }

// ParseParty accepts "me"/"them" in any case.
func ParseParty(s string) (Party, bool) {
	p := Party(strings.ToLower(strings.TrimSpace(s)))
	return p, p.Valid()
}

// ThreadStatus is the lifecycle state of a conversation thread.
type ThreadStatus string

const (
	StatusUnseen      ThreadStatus = "UNSEEN"
	StatusNeedReply   ThreadStatus = "NEED_REPLY"
	StatusWaitingThem ThreadStatus = "WAITING_THEM"
	StatusOverdue     ThreadStatus = "OVERDUE"
	StatusResolved    ThreadStatus = "RESOLVED"
	StatusSnoozed     ThreadStatus = "SNOOZED"
)

// AllStatuses lists every thread status in display order.
var AllStatuses = []ThreadStatus{
	StatusUnseen, StatusNeedReply, StatusWaitingThem,
	StatusOverdue, StatusResolved, StatusSnoozed,
}

// Valid reports whether s is a known status.
func (s ThreadStatus) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// NeedsAttention reports whether a rep owes the thread some action.
func (s ThreadStatus) NeedsAttention() bool {
	return s == StatusNeedReply || s == StatusOverdue || s == StatusUnseen
}

// Bucket is the trust tier assigned to a conversation by its latest signal.
type Bucket string

const (
	BucketWhite Bucket = "WHITE"
	BucketGray  Bucket = "GRAY"
	BucketBlack Bucket = "BLACK"
)

// Valid reports whether b is a known bucket.
func (b Bucket) Valid() bool {
	return b == BucketWhite || b == BucketGray || b == BucketBlack
}

// ParseBucket accepts bucket names in any case.
func ParseBucket(s string) (Bucket, bool) {
	b := Bucket(strings.ToUpper(strings.TrimSpace(s)))
	return b, b.Valid()
}

// ContactType classifies a contact. Only unknown, lead and customer are
// produced by the hub itself; vendor and personal come from manual edits.
type ContactType string

const (
	ContactUnknown  ContactType = "unknown"
	ContactLead     ContactType = "lead"
	ContactCustomer ContactType = "customer"
	ContactVendor   ContactType = "vendor"
	ContactPersonal ContactType = "personal"
)

// Valid reports whether t is a known contact type.
func (t ContactType) Valid() bool {
	switch t {
	case ContactUnknown, ContactLead, ContactCustomer, ContactVendor, ContactPersonal:
		return true
	}
	return false
}

// ContactSource records where a contact was first seen.
type ContactSource string

const (
	SourceWeChat ContactSource = "wechat"
	SourceManual ContactSource = "manual"
	SourceImport ContactSource = "import"
)

// TriggerType selects one of the specialized workflows.
type TriggerType string

const (
	TriggerPreSales   TriggerType = "PRE_SALES"
	TriggerAfterSales TriggerType = "AFTER_SALES"
	TriggerBizDev     TriggerType = "BIZDEV"
)

// TriggerLabel is the human-facing tag attached to trigger outputs.
type TriggerLabel string

const (
	LabelPreSales   TriggerLabel = "售前"
	LabelAfterSales TriggerLabel = "售后"
	LabelBizDev     TriggerLabel = "客户开发"
)

// Valid reports whether t is one of the three workflows.
func (t TriggerType) Valid() bool {
	return t == TriggerPreSales || t == TriggerAfterSales || t == TriggerBizDev
}

// Label returns the label for t, or "" for an unknown type.
func (t TriggerType) Label() TriggerLabel {
	switch t {
	case TriggerPreSales:
		return LabelPreSales
	case TriggerAfterSales:
		return LabelAfterSales
	case TriggerBizDev:
		return LabelBizDev
	}
	return ""
}

// ParseTriggerType accepts the enum name in any case ("pre_sales",
// "PRE_SALES") as well as the Chinese label ("售前").
func ParseTriggerType(s string) (TriggerType, bool) {
	s = strings.TrimSpace(s)
	switch TriggerLabel(s) {
	case LabelPreSales:
		return TriggerPreSales, true
	case LabelAfterSales:
		return TriggerAfterSales, true
	case LabelBizDev:
		return TriggerBizDev, true
	}
	t := TriggerType(strings.ToUpper(strings.ReplaceAll(s, "-", "_")))
	return t, t.Valid()
}

package domain

import "time"

// DeliveryRecord remembers that an inbound message delivery (identified by
// the upstream message id or an Idempotency-Key) has already been scored, and
// which Signal it produced. SignalID is empty while the delivery is still
// being processed. Records expire after the configured dedup TTL.
type DeliveryRecord struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	MessageKey string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_delivery_key"`
	SignalID   string    `gorm:"type:char(36);not null"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (DeliveryRecord) TableName() string { return "delivery_records" }

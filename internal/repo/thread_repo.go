package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-customer-hub/internal/domain"
)

// ErrStaleThread is returned by SaveThread when the row changed since it was
// read (its version no longer matches).
var ErrStaleThread = errors.New("stale thread version")

// CreateThread inserts t. A blank ID is filled with a UUID, a zero Version
// becomes 1 and missing timestamps are set to now (UTC).
func CreateThread(ctx context.Context, db *gorm.DB, t *domain.Thread) error {
	now := time.Now().UTC()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Version == 0 {
		t.Version = 1
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	return db.WithContext(ctx).Omit("Contact").Create(t).Error
}

// GetThread fetches a thread by ID.
func GetThread(ctx context.Context, db *gorm.DB, id string) (*domain.Thread, error) {
	var t domain.Thread
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetThreadByContact returns the contact's most recent thread by last
// message time.
func GetThreadByContact(ctx context.Context, db *gorm.DB, contactID string) (*domain.Thread, error) {
	var t domain.Thread
	err := db.WithContext(ctx).
		Where("contact_id = ?", contactID).
		Order("last_msg_at desc").
		Order("created_at desc").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveThread writes every mutable column of t, provided the stored version
// still equals t.Version. On success t.Version is bumped to match the row.
// A version mismatch yields ErrStaleThread; a missing row ErrNotFound.
func SaveThread(ctx context.Context, db *gorm.DB, t *domain.Thread) error {
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}
	res := db.WithContext(ctx).
		Model(&domain.Thread{}).
		Where("id = ? AND version = ?", t.ID, t.Version).
		Updates(map[string]any{
			"last_speaker": t.LastSpeaker,
			"last_msg_at":  t.LastMsgAt,
			"status":       t.Status,
			"bucket":       t.Bucket,
			"sla_at":       t.SLAAt,
			"snooze_at":    t.SnoozeAt,
			"follow_up_at": t.FollowUpAt,
			"topic":        t.Topic,
			"version":      t.Version + 1,
			"updated_at":   t.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		t.Version++
		return nil
	}

	var n int64
	if err := db.WithContext(ctx).Model(&domain.Thread{}).Where("id = ?", t.ID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return gorm.ErrRecordNotFound
	}
	return ErrStaleThread
}

// ListSweepableThreads returns up to limit threads with id > afterID that a
// periodic recalculation should visit: anything not RESOLVED, except
// threads still snoozed into the future. Ordered by id for keyset paging.
func ListSweepableThreads(ctx context.Context, db *gorm.DB, now time.Time, afterID string, limit int) ([]domain.Thread, error) {
	var out []domain.Thread
	err := db.WithContext(ctx).
		Where("id > ?", afterID).
		Where("status <> ?", domain.StatusResolved).
		Where("NOT (status = ? AND snooze_at IS NOT NULL AND snooze_at > ?)", domain.StatusSnoozed, now).
		Order("id asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

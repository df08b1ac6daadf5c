package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-customer-hub/internal/domain"
)

// SaveTriggerOutput inserts a fresh, unused trigger output.
func SaveTriggerOutput(ctx context.Context, db *gorm.DB, o *domain.TriggerOutput) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	o.Used = false
	return db.WithContext(ctx).Omit("Thread").Create(o).Error
}

// GetTriggerOutput returns the newest output of a thread. With includeUsed
// false, outputs already marked used are skipped.
func GetTriggerOutput(ctx context.Context, db *gorm.DB, threadID string, includeUsed bool) (*domain.TriggerOutput, error) {
	q := db.WithContext(ctx).Where("thread_id = ?", threadID)
	if !includeUsed {
		q = q.Where("used = ?", false)
	}
	var o domain.TriggerOutput
	if err := q.Order("created_at desc").First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// MarkTriggerUsed flips used to true. Marking an already-used output again
// is a no-op; an unknown id yields ErrNotFound.
func MarkTriggerUsed(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.TriggerOutput{}).
		Where("id = ?", id).
		Update("used", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := db.WithContext(ctx).Model(&domain.TriggerOutput{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

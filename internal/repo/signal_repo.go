package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-customer-hub/internal/domain"
)

// CreateSignal appends a scoring record. Signals are never updated.
func CreateSignal(ctx context.Context, db *gorm.DB, s *domain.Signal) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.KeywordHits == nil {
		s.KeywordHits = map[string]int{}
	}
	if s.FileTypes == nil {
		s.FileTypes = []string{}
	}
	return db.WithContext(ctx).Omit("Thread").Create(s).Error
}

// GetSignal fetches a signal by ID.
func GetSignal(ctx context.Context, db *gorm.DB, id string) (*domain.Signal, error) {
	var s domain.Signal
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSignals returns up to limit signals of a thread, newest first. Signals
// written in the same instant keep a stable order by id.
func ListSignals(ctx context.Context, db *gorm.DB, threadID string, limit int) ([]domain.Signal, error) {
	var out []domain.Signal
	err := db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at desc").
		Order("id desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

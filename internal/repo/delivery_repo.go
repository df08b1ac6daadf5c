// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for DeliveryRecord,
// the database fallback used to recognize replayed inbound deliveries.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-customer-hub/internal/domain"
)

// GetDeliveryRecord returns a non-expired record or ErrNotFound.
func GetDeliveryRecord(ctx context.Context, db *gorm.DB, key string, now time.Time) (*domain.DeliveryRecord, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.DeliveryRecord
	err := db.WithContext(ctx).
		Where("message_key = ? AND expires_at > ?", key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateDeliveryRecord inserts a record and returns ErrDuplicate on unique
// violation. An expired record with the same key is replaced.
func CreateDeliveryRecord(ctx context.Context, db *gorm.DB, key, signalID string, ttl time.Duration) (*domain.DeliveryRecord, error) {
	now := time.Now().UTC()
	if err := db.WithContext(ctx).
		Where("message_key = ? AND expires_at <= ?", key, now).
		Delete(&domain.DeliveryRecord{}).Error; err != nil {
		return nil, err
	}

	rec := &domain.DeliveryRecord{
		ID:         uuid.NewString(),
		MessageKey: key,
		SignalID:   signalID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// CompleteDeliveryRecord stores the Signal a claimed delivery produced and
// extends the record to ttl. A claim that expired in the meantime is
// recreated; if another worker claimed the key since, its record is kept.
func CompleteDeliveryRecord(ctx context.Context, db *gorm.DB, key, signalID string, ttl time.Duration) error {
	res := db.WithContext(ctx).
		Model(&domain.DeliveryRecord{}).
		Where("message_key = ? AND signal_id = ?", key, "").
		Updates(map[string]any{
			"signal_id":  signalID,
			"expires_at": time.Now().UTC().Add(ttl),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	_, err := CreateDeliveryRecord(ctx, db, key, signalID, ttl)
	if errors.Is(err, ErrDuplicate) {
		return nil
	}
	return err
}

// ReleaseDeliveryRecord drops a pending claim so the delivery can be retried.
// Completed records are left alone.
func ReleaseDeliveryRecord(ctx context.Context, db *gorm.DB, key string) error {
	return db.WithContext(ctx).
		Where("message_key = ? AND signal_id = ?", key, "").
		Delete(&domain.DeliveryRecord{}).Error
}

// PurgeExpiredDeliveries deletes records that expired at or before now and
// reports how many were removed.
func PurgeExpiredDeliveries(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.DeliveryRecord{})
	return res.RowsAffected, res.Error
}

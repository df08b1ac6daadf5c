// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Contact
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They do no business logic: promotion
// rules such as "code is assigned once" are enforced by the WHERE clause
// only, and the service decides what to do with the result.
//
// Error semantics:
//   - A missing contact is reported as ErrNotFound (gorm.ErrRecordNotFound).
//   - Inserting a second contact for the same external ID returns ErrDuplicate.
//   - PromoteContact on an already-coded contact returns ErrAlreadyPromoted.
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

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates a unique-constraint violation on insert.
var ErrDuplicate = errors.New("duplicate")

// ErrAlreadyPromoted indicates the contact already carries a customer code.
var ErrAlreadyPromoted = errors.New("contact already promoted")

// CreateContact inserts a new unknown contact first seen on WeChat.
func CreateContact(ctx context.Context, db *gorm.DB, externalID, remark string) (*domain.Contact, error) {
	now := time.Now().UTC()
	c := &domain.Contact{
		ID:         uuid.NewString(),
		ExternalID: externalID,
		Remark:     remark,
		Source:     domain.SourceWeChat,
		Type:       domain.ContactUnknown,
		Confidence: 0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return c, nil
}

// GetContact fetches a contact by ID.
func GetContact(ctx context.Context, db *gorm.DB, id string) (*domain.Contact, error) {
	var c domain.Contact
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetContactByExternalID fetches a contact by its WeChat ID.
func GetContactByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Contact, error) {
	var c domain.Contact
	if err := db.WithContext(ctx).Where("external_id = ?", externalID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateContactProfile applies manual edits. Nil fields are left alone; an
// empty owner clears the assignment.
func UpdateContactProfile(ctx context.Context, db *gorm.DB, id string, remark, owner *string) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if remark != nil {
		updates["remark"] = *remark
	}
	if owner != nil {
		if strings.TrimSpace(*owner) == "" {
			updates["owner"] = nil
		} else {
			updates["owner"] = *owner
		}
	}
	res := db.WithContext(ctx).
		Model(&domain.Contact{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Promotion carries the fields written when a contact becomes a customer.
type Promotion struct {
	Code   string
	Owner  *string
	Region *string
	Level  *string
	At     time.Time
}

// PromoteContact turns an uncoded contact into a customer with confidence
// 100. Only rows whose customer_code is still NULL are touched, so a code
// can never be overwritten.
func PromoteContact(ctx context.Context, db *gorm.DB, id string, p Promotion) error {
	updates := map[string]any{
		"customer_code": p.Code,
		"type":          domain.ContactCustomer,
		"confidence":    100,
		"region":        p.Region,
		"level":         p.Level,
		"promoted_at":   p.At,
		"updated_at":    p.At,
	}
	if p.Owner != nil {
		updates["owner"] = *p.Owner
	}
	res := db.WithContext(ctx).
		Model(&domain.Contact{}).
		Where("id = ? AND customer_code IS NULL", id).
		Updates(updates)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var n int64
	if err := db.WithContext(ctx).Model(&domain.Contact{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return gorm.ErrRecordNotFound
	}
	return ErrAlreadyPromoted
}

// isUniqueViolation recognizes unique-constraint errors across drivers.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate entry") ||
		strings.Contains(low, "duplicate key value")
}

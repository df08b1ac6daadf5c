package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-customer-hub/internal/domain"
)

// NextCustomerSeq allocates the next customer sequence number for
// contactID. Numbers are durable and strictly increasing; a contact can
// hold at most one (a second call returns ErrDuplicate).
func NextCustomerSeq(ctx context.Context, db *gorm.DB, contactID string) (uint, error) {
	row := &domain.CustomerCodeSequence{
		ContactID: contactID,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(row).Error; err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	return row.ID, nil
}

package repo

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-customer-hub/internal/domain"
)

var dbSeq atomic.Int64

// newTestDB opens a private in-memory database. With migrate true every hub
// table is created.
func newTestDB(t *testing.T, migrate bool) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", name, dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if migrate {
		if err := AutoMigrate(db); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func mustContact(t *testing.T, db *gorm.DB, externalID string) *domain.Contact {
	t.Helper()
	c, err := CreateContact(context.Background(), db, externalID, "remark "+externalID)
	if err != nil {
		t.Fatalf("CreateContact(%s): %v", externalID, err)
	}
	return c
}

func mustThread(t *testing.T, db *gorm.DB, contactID string, status domain.ThreadStatus, bucket domain.Bucket, lastMsgAt time.Time) *domain.Thread {
	t.Helper()
	th := &domain.Thread{
		ContactID:   contactID,
		LastSpeaker: domain.PartyThem,
		LastMsgAt:   lastMsgAt,
		Status:      status,
		Bucket:      bucket,
	}
	if err := CreateThread(context.Background(), db, th); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	return th
}

func ptr[T any](v T) *T { return &v }

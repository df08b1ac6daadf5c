package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-customer-hub/internal/domain"
)

// attentionStatuses are the statuses that put a thread on the to-do list.
var attentionStatuses = []domain.ThreadStatus{
	domain.StatusNeedReply, domain.StatusOverdue, domain.StatusUnseen,
}

const todoPriority = `CASE threads.status WHEN 'OVERDUE' THEN 1 WHEN 'NEED_REPLY' THEN 2 ELSE 3 END`

// unknownPoolScope selects gray, open threads of unclassified contacts.
func unknownPoolScope(db *gorm.DB) *gorm.DB {
	return db.Table("threads").
		Joins("JOIN contacts ON contacts.id = threads.contact_id").
		Where("threads.bucket = ?", domain.BucketGray).
		Where("contacts.type = ?", domain.ContactUnknown).
		Where("threads.status <> ?", domain.StatusResolved)
}

// UnknownPool lists gray conversations of unknown contacts, newest first,
// each with its latest signal.
func UnknownPool(ctx context.Context, db *gorm.DB, limit int) ([]domain.UnknownPoolItem, error) {
	var rows []struct {
		ThreadID    string
		ContactID   string
		ExternalID  string
		Remark      string
		LastSpeaker domain.Party
		LastMsgAt   time.Time
		Status      domain.ThreadStatus
		Topic       string
	}
	err := unknownPoolScope(db.WithContext(ctx)).
		Select(`threads.id AS thread_id, threads.contact_id AS contact_id,
			contacts.external_id AS external_id, contacts.remark AS remark,
			threads.last_speaker AS last_speaker, threads.last_msg_at AS last_msg_at,
			threads.status AS status, threads.topic AS topic`).
		Order("threads.last_msg_at desc").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []domain.UnknownPoolItem{}, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ThreadID
	}
	latest, err := latestSignals(ctx, db, ids)
	if err != nil {
		return nil, err
	}

	out := make([]domain.UnknownPoolItem, 0, len(rows))
	for _, r := range rows {
		item := domain.UnknownPoolItem{
			ThreadID:    r.ThreadID,
			ContactID:   r.ContactID,
			ExternalID:  r.ExternalID,
			Remark:      r.Remark,
			LastSpeaker: r.LastSpeaker,
			LastMsgAt:   r.LastMsgAt,
			Status:      r.Status,
			Topic:       r.Topic,
			KeywordHits: map[string]int{},
			FileTypes:   []string{},
		}
		if s, ok := latest[r.ThreadID]; ok {
			item.TotalScore = s.TotalScore
			if s.KeywordHits != nil {
				item.KeywordHits = s.KeywordHits
			}
			if s.FileTypes != nil {
				item.FileTypes = s.FileTypes
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// latestSignals returns the newest signal for each of the given threads.
func latestSignals(ctx context.Context, db *gorm.DB, threadIDs []string) (map[string]domain.Signal, error) {
	var sigs []domain.Signal
	err := db.WithContext(ctx).
		Where("thread_id IN ?", threadIDs).
		Order("created_at desc").
		Order("id desc").
		Find(&sigs).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Signal, len(threadIDs))
	for _, s := range sigs {
		if _, seen := out[s.ThreadID]; !seen {
			out[s.ThreadID] = s
		}
	}
	return out, nil
}

// TodayTodo lists threads that need a rep's action: OVERDUE first, then
// NEED_REPLY, then UNSEEN; within a priority by SLA deadline (unset last)
// and then by last message time.
func TodayTodo(ctx context.Context, db *gorm.DB, limit int) ([]domain.TodoItem, error) {
	out := []domain.TodoItem{}
	err := db.WithContext(ctx).
		Table("threads").
		Joins("JOIN contacts ON contacts.id = threads.contact_id").
		Where("threads.status IN ?", attentionStatuses).
		Select(`threads.id AS thread_id, threads.contact_id AS contact_id,
			contacts.external_id AS external_id, contacts.remark AS remark,
			contacts.customer_code AS customer_code,
			threads.last_speaker AS last_speaker, threads.last_msg_at AS last_msg_at,
			threads.status AS status, threads.bucket AS bucket,
			threads.sla_at AS sla_at, threads.topic AS topic, ` + todoPriority + ` AS priority`).
		Order(todoPriority).
		Order("threads.sla_at IS NULL").
		Order("threads.sla_at asc").
		Order("threads.last_msg_at asc").
		Limit(limit).
		Scan(&out).Error
	return out, err
}

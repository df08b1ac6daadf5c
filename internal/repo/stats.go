// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides aggregate queries: per-status thread
// counts, daily activity metrics, and the count/last-modified pair used for
// weak ETags in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-customer-hub/internal/domain"
)

// ThreadStatistics counts threads per status.
func ThreadStatistics(ctx context.Context, db *gorm.DB) (domain.ThreadStatistics, error) {
	var rows []struct {
		Status domain.ThreadStatus
		N      int64
	}
	var st domain.ThreadStatistics
	err := db.WithContext(ctx).
		Model(&domain.Thread{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return st, err
	}
	for _, r := range rows {
		st.Add(r.Status, r.N)
	}
	return st, nil
}

// DailyMetrics summarizes the calendar day containing day, in loc (UTC when
// nil). Pool size and overdue count are current snapshots; promotions and
// resolutions are those that happened within the day.
func DailyMetrics(ctx context.Context, db *gorm.DB, day time.Time, loc *time.Location) (domain.DailyMetrics, error) {
	if loc == nil {
		loc = time.UTC
	}
	d := day.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	startUTC, endUTC := start.UTC(), end.UTC()

	m := domain.DailyMetrics{Date: start.Format("2006-01-02")}
	q := db.WithContext(ctx)

	if err := unknownPoolScope(q).Count(&m.UnknownPoolCount).Error; err != nil {
		return m, err
	}
	if err := q.Model(&domain.Contact{}).
		Where("promoted_at >= ? AND promoted_at < ?", startUTC, endUTC).
		Count(&m.PromotedCount).Error; err != nil {
		return m, err
	}
	if err := q.Model(&domain.Thread{}).
		Where("status = ?", domain.StatusOverdue).
		Count(&m.OverdueCount).Error; err != nil {
		return m, err
	}
	if err := q.Model(&domain.Thread{}).
		Where("status = ? AND updated_at >= ? AND updated_at < ?", domain.StatusResolved, startUTC, endUTC).
		Count(&m.ResolvedCount).Error; err != nil {
		return m, err
	}

	var open int64
	if err := q.Model(&domain.Thread{}).
		Where("status IN ?", attentionStatuses).
		Count(&open).Error; err != nil {
		return m, err
	}
	if total := m.ResolvedCount + open; total > 0 {
		m.ClearRate = float64(m.ResolvedCount) / float64(total)
	}
	return m, nil
}

// ThreadsStats returns the number of threads and the latest modification
// time across threads and contacts. When nothing exists, count is 0 and
// maxUpdatedAt is nil.
func ThreadsStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx)
	if err = q.Model(&domain.Thread{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Profile edits change only the contact row; list ETags follow both tables.
	latest, err := newestUpdate(q, &domain.Thread{})
	if err != nil {
		return 0, nil, err
	}
	contactAt, err := newestUpdate(q, &domain.Contact{})
	if err != nil {
		return 0, nil, err
	}
	if contactAt.After(latest) {
		latest = contactAt
	}
	return count, &latest, nil
}

// newestUpdate reads the most recent updated_at of model's table. The row is
// ordered and scanned rather than aggregated so the sqlite driver hands back
// a time value instead of MAX()'s text.
func newestUpdate(q *gorm.DB, model any) (time.Time, error) {
	var row struct {
		UpdatedAt time.Time
	}
	err := q.Model(model).Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error
	return row.UpdatedAt, err
}

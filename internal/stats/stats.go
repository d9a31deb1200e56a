// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package stats maintains per-page visit analytics. Every mutation is a
// short transaction of single-statement atomic upserts (counter = counter + 1
// in SQL), never a read-modify-write in Go, so concurrent recorders can
// never lose increments.
package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sharecrate/sharecrate/internal/model"
)

// ErrPageNotFound is returned when recording against a page that has no
// stats row. The stats row is created with the page, so this means the
// page itself does not exist.
var ErrPageNotFound = errors.New("stats: page not found")

// MinVisitDuration is the shortest visit worth recording. Sub-second
// reports are bounce noise from immediate tab closes.
const MinVisitDuration = 1.0

// Store records and reads per-page analytics aggregates.
type Store struct {
	db *sql.DB
}

// NewStore creates a stats store over the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// View describes one page view to record.
type View struct {
	PageID      int64
	VisitorHash string
	Location    string
	Time        time.Time
}

// RecordView records one view: total, daily, hourly, and location
// counters all bump atomically, and the visitor hash is deduplicated
// into the unique-visitor counters in the same transaction.
func (s *Store) RecordView(ctx context.Context, v View) error {
	if v.Time.IsZero() {
		v.Time = time.Now()
	}
	date := v.Time.Format(model.DateFormat)
	hour := v.Time.Hour()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE share_stats
		SET total_views = total_views + 1, last_updated = ?
		WHERE page_id = ?
	`, v.Time, v.PageID)
	if err != nil {
		return fmt.Errorf("bumping total views: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrPageNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO share_stats_daily (page_id, date, views) VALUES (?, ?, 1)
		ON CONFLICT(page_id, date) DO UPDATE SET views = views + 1
	`, v.PageID, date); err != nil {
		return fmt.Errorf("bumping daily views: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO share_stats_hourly (page_id, hour, views) VALUES (?, ?, 1)
		ON CONFLICT(page_id, hour) DO UPDATE SET views = views + 1
	`, v.PageID, hour); err != nil {
		return fmt.Errorf("bumping hourly views: %w", err)
	}

	if v.Location != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO share_stats_locations (page_id, location, views, last_view) VALUES (?, ?, 1, ?)
			ON CONFLICT(page_id, location) DO UPDATE SET views = views + 1, last_view = excluded.last_view
		`, v.PageID, v.Location, v.Time); err != nil {
			return fmt.Errorf("bumping location views: %w", err)
		}
	}

	if v.VisitorHash != "" {
		if err := s.recordVisitor(ctx, tx, v.PageID, v.VisitorHash, date); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing view: %w", err)
	}
	return nil
}

// recordVisitor deduplicates the visitor hash. The INSERT OR IGNORE
// plus RowsAffected pattern makes "first time seen" and "bump counter"
// one atomic decision inside the caller's transaction.
func (s *Store) recordVisitor(ctx context.Context, tx *sql.Tx, pageID int64, hash, date string) error {
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO share_visitors (page_id, visitor_hash) VALUES (?, ?)
	`, pageID, hash)
	if err != nil {
		return fmt.Errorf("inserting visitor: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE share_stats SET total_unique_visitors = total_unique_visitors + 1 WHERE page_id = ?
		`, pageID); err != nil {
			return fmt.Errorf("bumping unique visitors: %w", err)
		}
	}

	res, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO share_visitor_days (page_id, visitor_hash, date) VALUES (?, ?, ?)
	`, pageID, hash, date)
	if err != nil {
		return fmt.Errorf("inserting visitor day: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		// The daily row exists: RecordView upserted it before we got here.
		if _, err := tx.ExecContext(ctx, `
			UPDATE share_stats_daily SET unique_visitors = unique_visitors + 1
			WHERE page_id = ? AND date = ?
		`, pageID, date); err != nil {
			return fmt.Errorf("bumping daily unique visitors: %w", err)
		}
	}
	return nil
}

// RecordVisitDuration records one completed visit. Durations under
// MinVisitDuration are dropped without error.
func (s *Store) RecordVisitDuration(ctx context.Context, pageID int64, seconds float64, location string, at time.Time) error {
	if seconds < MinVisitDuration {
		return nil
	}
	if at.IsZero() {
		at = time.Now()
	}
	date := at.Format(model.DateFormat)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE share_stats
		SET total_duration_seconds = total_duration_seconds + ?,
		    duration_count = duration_count + 1,
		    last_updated = ?
		WHERE page_id = ?
	`, seconds, at, pageID)
	if err != nil {
		return fmt.Errorf("bumping duration totals: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrPageNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO share_visit_durations (page_id, date, duration_seconds, location, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, pageID, date, seconds, location, at); err != nil {
		return fmt.Errorf("inserting visit duration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing duration: %w", err)
	}
	return nil
}

// Totals is the headline counter subset embedded in the granted page
// payload. The full snapshot stays owner-only.
type Totals struct {
	TotalViews           int64   `json:"total_views"`
	TotalUniqueVisitors  int64   `json:"total_unique_visitors"`
	TotalComments        int64   `json:"total_comments"`
	AverageVisitDuration float64 `json:"average_visit_duration"`
}

// Totals reads a page's headline counters without assembling the full
// snapshot.
func (s *Store) Totals(ctx context.Context, pageID int64) (Totals, error) {
	var t Totals
	var totalDuration float64
	var durationCount int64
	err := s.db.QueryRowContext(ctx, `
		SELECT total_views, total_unique_visitors, total_comments,
		       total_duration_seconds, duration_count
		FROM share_stats WHERE page_id = ?
	`, pageID).Scan(&t.TotalViews, &t.TotalUniqueVisitors, &t.TotalComments,
		&totalDuration, &durationCount)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrPageNotFound
	}
	if err != nil {
		return t, fmt.Errorf("reading stats totals: %w", err)
	}
	if durationCount > 0 {
		t.AverageVisitDuration = totalDuration / float64(durationCount)
	}
	return t, nil
}

// RecordCommentDelta adjusts the comment counter by delta. The counter
// floors at zero: excess decrements clamp rather than go negative.
func (s *Store) RecordCommentDelta(ctx context.Context, pageID int64, delta int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE share_stats
		SET total_comments = MAX(0, total_comments + ?), last_updated = ?
		WHERE page_id = ?
	`, delta, time.Now(), pageID)
	if err != nil {
		return fmt.Errorf("adjusting comment count: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrPageNotFound
	}
	return nil
}

// RecordDownload bumps the download counter for one file name.
func (s *Store) RecordDownload(ctx context.Context, pageID int64, fileName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE share_stats SET last_updated = ? WHERE page_id = ?
	`, time.Now(), pageID)
	if err != nil {
		return fmt.Errorf("touching stats row: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrPageNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO share_downloads (page_id, file_name, downloads) VALUES (?, ?, 1)
		ON CONFLICT(page_id, file_name) DO UPDATE SET downloads = downloads + 1
	`, pageID, fileName); err != nil {
		return fmt.Errorf("bumping download count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing download: %w", err)
	}
	return nil
}

// Snapshot assembles a page's full analytics record under one read
// transaction, so the counters in the result are mutually consistent.
func (s *Store) Snapshot(ctx context.Context, pageID int64) (model.StatsRecord, error) {
	rec := model.StatsRecord{
		PageID:              pageID,
		DailyViews:          map[string]int64{},
		HourlyViews:         map[int]int64{},
		LocationViews:       map[string]model.LocationStat{},
		UniqueVisitors:      map[string]int64{},
		FileDownloads:       map[string]int64{},
		DailyVisitDurations: map[string][]model.DurationEntry{},
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return rec, fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var totalDuration float64
	var durationCount int64
	err = tx.QueryRowContext(ctx, `
		SELECT total_views, total_unique_visitors, total_comments,
		       total_duration_seconds, duration_count, last_updated
		FROM share_stats WHERE page_id = ?
	`, pageID).Scan(&rec.TotalViews, &rec.TotalUniqueVisitors, &rec.TotalComments,
		&totalDuration, &durationCount, &rec.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, ErrPageNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("reading stats row: %w", err)
	}
	if durationCount > 0 {
		rec.AverageVisitDuration = totalDuration / float64(durationCount)
	}

	if err := s.readDaily(ctx, tx, pageID, &rec); err != nil {
		return rec, err
	}
	if err := s.readHourly(ctx, tx, pageID, &rec); err != nil {
		return rec, err
	}
	if err := s.readLocations(ctx, tx, pageID, &rec); err != nil {
		return rec, err
	}
	if err := s.readDownloads(ctx, tx, pageID, &rec); err != nil {
		return rec, err
	}
	if err := s.readDurations(ctx, tx, pageID, &rec); err != nil {
		return rec, err
	}

	if err := tx.Commit(); err != nil {
		return rec, fmt.Errorf("committing snapshot: %w", err)
	}
	return rec, nil
}

func (s *Store) readDaily(ctx context.Context, tx *sql.Tx, pageID int64, rec *model.StatsRecord) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT date, views, unique_visitors FROM share_stats_daily WHERE page_id = ?
	`, pageID)
	if err != nil {
		return fmt.Errorf("reading daily views: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var date string
		var views, unique int64
		if err := rows.Scan(&date, &views, &unique); err != nil {
			return err
		}
		rec.DailyViews[date] = views
		if unique > 0 {
			rec.UniqueVisitors[date] = unique
		}
	}
	return rows.Err()
}

func (s *Store) readHourly(ctx context.Context, tx *sql.Tx, pageID int64, rec *model.StatsRecord) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT hour, views FROM share_stats_hourly WHERE page_id = ?
	`, pageID)
	if err != nil {
		return fmt.Errorf("reading hourly views: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var hour int
		var views int64
		if err := rows.Scan(&hour, &views); err != nil {
			return err
		}
		rec.HourlyViews[hour] = views
	}
	return rows.Err()
}

func (s *Store) readLocations(ctx context.Context, tx *sql.Tx, pageID int64, rec *model.StatsRecord) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT location, views, last_view FROM share_stats_locations WHERE page_id = ?
	`, pageID)
	if err != nil {
		return fmt.Errorf("reading location views: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var location string
		var stat model.LocationStat
		if err := rows.Scan(&location, &stat.Views, &stat.LastView); err != nil {
			return err
		}
		rec.LocationViews[location] = stat
	}
	return rows.Err()
}

func (s *Store) readDownloads(ctx context.Context, tx *sql.Tx, pageID int64, rec *model.StatsRecord) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT file_name, downloads FROM share_downloads WHERE page_id = ?
	`, pageID)
	if err != nil {
		return fmt.Errorf("reading downloads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return err
		}
		rec.FileDownloads[name] = count
	}
	return rows.Err()
}

func (s *Store) readDurations(ctx context.Context, tx *sql.Tx, pageID int64, rec *model.StatsRecord) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT date, duration_seconds, location, created_at
		FROM share_visit_durations WHERE page_id = ? ORDER BY created_at, id
	`, pageID)
	if err != nil {
		return fmt.Errorf("reading visit durations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var date string
		var entry model.DurationEntry
		if err := rows.Scan(&date, &entry.Duration, &entry.Location, &entry.Timestamp); err != nil {
			return err
		}
		rec.DailyVisitDurations[date] = append(rec.DailyVisitDurations[date], entry)
	}
	return rows.Err()
}

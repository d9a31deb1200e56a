// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package store provides database access for share pages, files,
// annotations and the event log, plus schema migrations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sharecrate/sharecrate/internal/model"
	"github.com/sharecrate/sharecrate/internal/util"
)

// Queries wraps a database handle with typed query methods.
type Queries struct {
	db *sql.DB
}

// New creates a Queries instance bound to the given database.
func New(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// DB returns the underlying database handle.
func (q *Queries) DB() *sql.DB {
	return q.db
}

// CreateShareFileParams describes one file on a new share page.
type CreateShareFileParams struct {
	Name        string
	Size        int64
	ContentType string
	StorageKey  string
}

// CreateSharePageParams holds the fields for creating a share page.
type CreateSharePageParams struct {
	OwnerID      int64
	Title        string
	Description  string
	Slug         string
	PasswordHash sql.NullString
	ExpiresAt    sql.NullTime
	Files        []CreateShareFileParams
}

// CreateSharePage inserts a page, its file list, and its stats row in a
// single transaction. The stats row existing iff the page exists is an
// invariant the rest of the system relies on.
func (q *Queries) CreateSharePage(ctx context.Context, arg CreateSharePageParams) (model.SharePage, error) {
	var page model.SharePage

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return page, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if arg.Slug == "" {
		// Random suffix keeps generated slugs unguessable even for
		// pages with identical titles.
		arg.Slug = util.Slugify(arg.Title) + "-" + util.RandomSlugSuffix()
	}

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO share_pages (owner_id, title, description, slug, password_hash, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, arg.OwnerID, arg.Title, arg.Description, arg.Slug, arg.PasswordHash, arg.ExpiresAt, now, now)
	if err != nil {
		return page, fmt.Errorf("inserting share page: %w", err)
	}

	pageID, err := res.LastInsertId()
	if err != nil {
		return page, fmt.Errorf("reading page id: %w", err)
	}

	for i, f := range arg.Files {
		storageKey := f.StorageKey
		if storageKey == "" {
			// Unguessable on-disk name, decoupled from the display name.
			storageKey = uuid.NewString() + strings.ToLower(filepath.Ext(f.Name))
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO share_files (page_id, position, name, size, content_type, storage_key)
			VALUES (?, ?, ?, ?, ?, ?)
		`, pageID, i, f.Name, f.Size, f.ContentType, storageKey); err != nil {
			return page, fmt.Errorf("inserting share file %q: %w", f.Name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO share_stats (page_id, last_updated) VALUES (?, ?)
	`, pageID, now); err != nil {
		return page, fmt.Errorf("inserting stats row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return page, fmt.Errorf("committing: %w", err)
	}

	page = model.SharePage{
		ID:           pageID,
		OwnerID:      arg.OwnerID,
		Title:        arg.Title,
		Description:  arg.Description,
		Slug:         arg.Slug,
		PasswordHash: arg.PasswordHash,
		ExpiresAt:    arg.ExpiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return page, nil
}

const sharePageColumns = `id, owner_id, title, description, slug, password_hash, expires_at, created_at, updated_at`

func scanSharePage(row *sql.Row) (model.SharePage, error) {
	var p model.SharePage
	err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Description, &p.Slug,
		&p.PasswordHash, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// GetSharePageBySlug returns the page with the given slug.
func (q *Queries) GetSharePageBySlug(ctx context.Context, slug string) (model.SharePage, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+sharePageColumns+` FROM share_pages WHERE slug = ?`, slug)
	return scanSharePage(row)
}

// GetSharePageByID returns the page with the given id.
func (q *Queries) GetSharePageByID(ctx context.Context, id int64) (model.SharePage, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+sharePageColumns+` FROM share_pages WHERE id = ?`, id)
	return scanSharePage(row)
}

// CountSharePagesBySlug returns how many pages use the given slug.
func (q *Queries) CountSharePagesBySlug(ctx context.Context, slug string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM share_pages WHERE slug = ?`, slug).Scan(&count)
	return count, err
}

// DeleteSharePage removes a page. Stats, per-day buckets, durations,
// downloads, and annotations cascade via foreign keys.
func (q *Queries) DeleteSharePage(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM share_pages WHERE id = ?`, id)
	return err
}

// ListShareFiles returns a page's files in position order.
func (q *Queries) ListShareFiles(ctx context.Context, pageID int64) ([]model.ShareFile, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, page_id, position, name, size, content_type, storage_key
		FROM share_files WHERE page_id = ? ORDER BY position
	`, pageID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var files []model.ShareFile
	for rows.Next() {
		var f model.ShareFile
		if err := rows.Scan(&f.ID, &f.PageID, &f.Position, &f.Name, &f.Size, &f.ContentType, &f.StorageKey); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// CountShareFiles returns the number of files on a page.
func (q *Queries) CountShareFiles(ctx context.Context, pageID int64) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM share_files WHERE page_id = ?`, pageID).Scan(&count)
	return count, err
}

// GetShareFile returns one file by its position within a page.
func (q *Queries) GetShareFile(ctx context.Context, pageID, position int64) (model.ShareFile, error) {
	var f model.ShareFile
	err := q.db.QueryRowContext(ctx, `
		SELECT id, page_id, position, name, size, content_type, storage_key
		FROM share_files WHERE page_id = ? AND position = ?
	`, pageID, position).Scan(&f.ID, &f.PageID, &f.Position, &f.Name, &f.Size, &f.ContentType, &f.StorageKey)
	return f, err
}

// CreateAnnotationParams holds the fields for creating an annotation.
type CreateAnnotationParams struct {
	PageID    int64
	FileIndex int64
	UserID    sql.NullInt64
	GuestName sql.NullString
	Content   string
	CreatedAt time.Time
}

// CreateAnnotation inserts an annotation row. A zero CreatedAt is
// stamped with the current time.
func (q *Queries) CreateAnnotation(ctx context.Context, arg CreateAnnotationParams) (model.Annotation, error) {
	var a model.Annotation
	if arg.CreatedAt.IsZero() {
		arg.CreatedAt = time.Now()
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO annotations (page_id, file_index, user_id, guest_name, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, arg.PageID, arg.FileIndex, arg.UserID, arg.GuestName, arg.Content, arg.CreatedAt)
	if err != nil {
		return a, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return a, err
	}

	a = model.Annotation{
		ID:        id,
		PageID:    arg.PageID,
		FileIndex: arg.FileIndex,
		Content:   arg.Content,
		CreatedAt: arg.CreatedAt,
	}
	if arg.UserID.Valid {
		a.Author = model.AuthenticatedAuthor(arg.UserID.Int64)
	} else {
		a.Author = model.GuestAuthor(arg.GuestName.String)
	}
	return a, nil
}

func scanAnnotation(scan func(dest ...any) error) (model.Annotation, error) {
	var a model.Annotation
	var userID sql.NullInt64
	var guestName sql.NullString
	if err := scan(&a.ID, &a.PageID, &a.FileIndex, &userID, &guestName, &a.Content, &a.CreatedAt); err != nil {
		return a, err
	}
	if userID.Valid {
		a.Author = model.AuthenticatedAuthor(userID.Int64)
	} else {
		a.Author = model.GuestAuthor(guestName.String)
	}
	return a, nil
}

// GetAnnotationByID returns one annotation.
func (q *Queries) GetAnnotationByID(ctx context.Context, id int64) (model.Annotation, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, page_id, file_index, user_id, guest_name, content, created_at
		FROM annotations WHERE id = ?
	`, id)
	return scanAnnotation(row.Scan)
}

// DeleteAnnotation removes an annotation row.
func (q *Queries) DeleteAnnotation(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM annotations WHERE id = ?`, id)
	return err
}

// ListAnnotations returns a file's annotations in creation order.
func (q *Queries) ListAnnotations(ctx context.Context, pageID, fileIndex int64) ([]model.Annotation, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, page_id, file_index, user_id, guest_name, content, created_at
		FROM annotations WHERE page_id = ? AND file_index = ?
		ORDER BY created_at, id
	`, pageID, fileIndex)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var annotations []model.Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows.Scan)
		if err != nil {
			return nil, err
		}
		annotations = append(annotations, a)
	}
	return annotations, rows.Err()
}

// CreateEventParams holds the fields for creating an event log entry.
type CreateEventParams struct {
	Level     string
	Category  string
	Message   string
	UserID    sql.NullInt64
	Metadata  string
	IPAddress string
	CreatedAt time.Time
}

// CreateEvent inserts an event log entry.
func (q *Queries) CreateEvent(ctx context.Context, arg CreateEventParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO events (level, category, message, user_id, metadata, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, arg.Level, arg.Category, arg.Message, arg.UserID, arg.Metadata, arg.IPAddress, arg.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListEventsParams holds pagination for event listing.
type ListEventsParams struct {
	Limit  int64
	Offset int64
}

// ListEvents returns event log entries, newest first.
func (q *Queries) ListEvents(ctx context.Context, arg ListEventsParams) ([]model.Event, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, level, category, message, user_id, metadata, ip_address, created_at
		FROM events ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?
	`, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.Level, &e.Category, &e.Message, &e.UserID,
			&e.Metadata, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountEvents returns the total number of event log entries.
func (q *Queries) CountEvents(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count)
	return count, err
}

// DeleteOldEvents removes event log entries created before the cutoff.
func (q *Queries) DeleteOldEvents(ctx context.Context, cutoff time.Time) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, cutoff)
	return err
}

// DeleteOldVisitorDays removes per-day visitor dedup rows for dates
// before the cutoff date. Lifetime dedup rows and daily unique counts
// are untouched.
func (q *Queries) DeleteOldVisitorDays(ctx context.Context, cutoffDate string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM share_visitor_days WHERE date < ?`, cutoffDate)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteOldVisitDurations removes raw visit duration rows recorded
// before the cutoff. Aggregate duration totals live in share_stats and
// are unaffected.
func (q *Queries) DeleteOldVisitDurations(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM share_visit_durations WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

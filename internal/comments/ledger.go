// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package comments manages per-file annotations on share pages and
// keeps the page's comment counter in step with the annotation rows.
package comments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/sharecrate/sharecrate/internal/model"
	"github.com/sharecrate/sharecrate/internal/stats"
	"github.com/sharecrate/sharecrate/internal/store"
)

// contentSanitizer strips dangerous markup from annotation bodies.
// UGCPolicy allows basic formatting while removing scripts and event
// handlers.
var contentSanitizer = bluemonday.UGCPolicy()

// MaxContentLength caps annotation bodies.
const MaxContentLength = 4000

var (
	// ErrNotFound: no such annotation.
	ErrNotFound = errors.New("comments: annotation not found")
	// ErrInvalidFileIndex: the file index is outside the page's file list.
	ErrInvalidFileIndex = errors.New("comments: file index out of range")
	// ErrEmptyContent: the body is empty after sanitization.
	ErrEmptyContent = errors.New("comments: content is empty")
	// ErrContentTooLong: the body exceeds MaxContentLength.
	ErrContentTooLong = errors.New("comments: content too long")
	// ErrInvalidAuthor: the author value was not built by a constructor.
	ErrInvalidAuthor = errors.New("comments: invalid author")
	// ErrNotAuthor: the deleting party did not write the annotation.
	ErrNotAuthor = errors.New("comments: only the author may delete")
)

// Ledger creates, lists, and deletes annotations. Every create and
// delete adjusts the page's comment counter through the stats store.
type Ledger struct {
	queries *store.Queries
	stats   *stats.Store
}

// NewLedger creates a Ledger.
func NewLedger(queries *store.Queries, statsStore *stats.Store) *Ledger {
	return &Ledger{queries: queries, stats: statsStore}
}

// Create validates, sanitizes, and stores an annotation, then bumps the
// page's comment counter.
func (l *Ledger) Create(ctx context.Context, pageID, fileIndex int64, author model.Author, content string) (model.Annotation, error) {
	var a model.Annotation

	if !author.IsValid() {
		return a, ErrInvalidAuthor
	}
	if name, ok := author.GuestName(); ok && strings.TrimSpace(name) == "" {
		return a, ErrInvalidAuthor
	}

	content = strings.TrimSpace(contentSanitizer.Sanitize(content))
	if content == "" {
		return a, ErrEmptyContent
	}
	if len(content) > MaxContentLength {
		return a, ErrContentTooLong
	}

	count, err := l.queries.CountShareFiles(ctx, pageID)
	if err != nil {
		return a, fmt.Errorf("counting files: %w", err)
	}
	if fileIndex < 0 || fileIndex >= count {
		return a, ErrInvalidFileIndex
	}

	params := store.CreateAnnotationParams{
		PageID:    pageID,
		FileIndex: fileIndex,
		Content:   content,
	}
	if id, ok := author.UserID(); ok {
		params.UserID = sql.NullInt64{Int64: id, Valid: true}
	} else if name, ok := author.GuestName(); ok {
		params.GuestName = sql.NullString{String: strings.TrimSpace(name), Valid: true}
	}

	a, err = l.queries.CreateAnnotation(ctx, params)
	if err != nil {
		return a, fmt.Errorf("creating annotation: %w", err)
	}

	if err := l.stats.RecordCommentDelta(ctx, pageID, 1); err != nil {
		return a, fmt.Errorf("bumping comment count: %w", err)
	}
	return a, nil
}

// Delete removes an annotation if the requester is its authenticated
// author, then decrements the page's comment counter. Guest names carry
// no stable identity, so guest-authored annotations cannot be deleted
// at all, and page owners do not get to delete their visitors'
// annotations.
func (l *Ledger) Delete(ctx context.Context, annotationID int64, requester model.Author) error {
	a, err := l.queries.GetAnnotationByID(ctx, annotationID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("loading annotation: %w", err)
	}

	if !mayDelete(a.Author, requester) {
		return ErrNotAuthor
	}

	if err := l.queries.DeleteAnnotation(ctx, annotationID); err != nil {
		return fmt.Errorf("deleting annotation: %w", err)
	}

	if err := l.stats.RecordCommentDelta(ctx, a.PageID, -1); err != nil {
		return fmt.Errorf("decrementing comment count: %w", err)
	}
	return nil
}

// List returns a file's annotations in creation order.
func (l *Ledger) List(ctx context.Context, pageID, fileIndex int64) ([]model.Annotation, error) {
	return l.queries.ListAnnotations(ctx, pageID, fileIndex)
}

// mayDelete reports whether requester may delete an annotation written
// by author. Only an authenticated requester matching the annotation's
// user id qualifies; guest identity is just a display name and proves
// nothing.
func mayDelete(author, requester model.Author) bool {
	authorID, ok := author.UserID()
	if !ok {
		return false
	}
	requesterID, ok := requester.UserID()
	return ok && authorID == requesterID
}

// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sharecrate/sharecrate/internal/model"
	"github.com/sharecrate/sharecrate/internal/store"
	"github.com/sharecrate/sharecrate/internal/testutil"
)

func TestCreateSharePage_CreatesStatsRow(t *testing.T) {
	db := testutil.TestDB(t)
	q := store.New(db)

	page, err := q.CreateSharePage(context.Background(), store.CreateSharePageParams{
		OwnerID: 1,
		Title:   "Holiday photos",
		Slug:    "holiday-photos",
	})
	if err != nil {
		t.Fatalf("CreateSharePage: %v", err)
	}

	// The stats row must exist the moment the page does.
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM share_stats WHERE page_id = ?`, page.ID).Scan(&count); err != nil {
		t.Fatalf("counting stats rows: %v", err)
	}
	if count != 1 {
		t.Errorf("stats rows = %d, want 1", count)
	}
}

func TestCreateSharePage_FilePositionsAndStorageKeys(t *testing.T) {
	db := testutil.TestDB(t)
	q := store.New(db)

	page, err := q.CreateSharePage(context.Background(), store.CreateSharePageParams{
		OwnerID: 1,
		Title:   "Mixed files",
		Slug:    "mixed-files",
		Files: []store.CreateShareFileParams{
			{Name: "Report.PDF", Size: 10},
			{Name: "clip.mp4", Size: 20, StorageKey: "existing-key"},
		},
	})
	if err != nil {
		t.Fatalf("CreateSharePage: %v", err)
	}

	files, err := q.ListShareFiles(context.Background(), page.ID)
	if err != nil {
		t.Fatalf("ListShareFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %d, want 2", len(files))
	}

	if files[0].Position != 0 || files[1].Position != 1 {
		t.Errorf("positions = %d, %d", files[0].Position, files[1].Position)
	}

	// Empty storage key gets a generated one with the lowercased extension.
	if files[0].StorageKey == "" || !strings.HasSuffix(files[0].StorageKey, ".pdf") {
		t.Errorf("generated StorageKey = %q", files[0].StorageKey)
	}
	if files[0].StorageKey == "Report.PDF" {
		t.Error("storage key must not be the display name")
	}
	// A provided storage key is kept.
	if files[1].StorageKey != "existing-key" {
		t.Errorf("StorageKey = %q, want existing-key", files[1].StorageKey)
	}
}

func TestCreateSharePage_GeneratesSlugWhenEmpty(t *testing.T) {
	db := testutil.TestDB(t)
	q := store.New(db)

	page, err := q.CreateSharePage(context.Background(), store.CreateSharePageParams{
		OwnerID: 1,
		Title:   "Café Photos 2026",
	})
	if err != nil {
		t.Fatalf("CreateSharePage: %v", err)
	}

	if !strings.HasPrefix(page.Slug, "cafe-photos-2026-") {
		t.Errorf("Slug = %q, want cafe-photos-2026-<suffix>", page.Slug)
	}
	if len(page.Slug) != len("cafe-photos-2026-")+8 {
		t.Errorf("Slug = %q, want 8-char random suffix", page.Slug)
	}
}

func TestGetSharePage_BySlugAndID(t *testing.T) {
	db := testutil.TestDB(t)
	q := store.New(db)

	created, err := q.CreateSharePage(context.Background(), store.CreateSharePageParams{
		OwnerID:      3,
		Title:        "Protected",
		Slug:         "protected",
		PasswordHash: sql.NullString{String: "$argon2id$fake", Valid: true},
	})
	if err != nil {
		t.Fatalf("CreateSharePage: %v", err)
	}

	bySlug, err := q.GetSharePageBySlug(context.Background(), "protected")
	if err != nil {
		t.Fatalf("GetSharePageBySlug: %v", err)
	}
	if bySlug.ID != created.ID || !bySlug.IsPasswordProtected() {
		t.Errorf("bySlug = %+v", bySlug)
	}

	byID, err := q.GetSharePageByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetSharePageByID: %v", err)
	}
	if byID.Slug != "protected" {
		t.Errorf("Slug = %q", byID.Slug)
	}

	if _, err := q.GetSharePageBySlug(context.Background(), "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("missing slug: err = %v, want sql.ErrNoRows", err)
	}
}

func TestDeleteSharePage_CascadesFilesAndStats(t *testing.T) {
	db := testutil.TestDB(t)
	q := store.New(db)

	page, err := q.CreateSharePage(context.Background(), store.CreateSharePageParams{
		OwnerID: 1,
		Title:   "Short lived",
		Slug:    "short-lived",
		Files:   []store.CreateShareFileParams{{Name: "x.txt", StorageKey: "x"}},
	})
	if err != nil {
		t.Fatalf("CreateSharePage: %v", err)
	}

	if err := q.DeleteSharePage(context.Background(), page.ID); err != nil {
		t.Fatalf("DeleteSharePage: %v", err)
	}

	for _, table := range []string{"share_files", "share_stats"} {
		var count int
		if err := db.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE page_id = ?`, page.ID).Scan(&count); err != nil {
			t.Fatalf("counting %s: %v", table, err)
		}
		if count != 0 {
			t.Errorf("%s rows = %d, want 0 after delete", table, count)
		}
	}
}

func TestAnnotations_AuthorRoundTrip(t *testing.T) {
	db := testutil.TestDB(t)
	q := store.New(db)

	page, err := q.CreateSharePage(context.Background(), store.CreateSharePageParams{
		OwnerID: 1,
		Title:   "Annotated",
		Slug:    "annotated",
		Files:   []store.CreateShareFileParams{{Name: "a.png", StorageKey: "a"}},
	})
	if err != nil {
		t.Fatalf("CreateSharePage: %v", err)
	}

	guest, err := q.CreateAnnotation(context.Background(), store.CreateAnnotationParams{
		PageID:    page.ID,
		FileIndex: 0,
		GuestName: sql.NullString{String: "Dana", Valid: true},
		Content:   "nice",
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateAnnotation (guest): %v", err)
	}

	user, err := q.CreateAnnotation(context.Background(), store.CreateAnnotationParams{
		PageID:    page.ID,
		FileIndex: 0,
		UserID:    sql.NullInt64{Int64: 42, Valid: true},
		Content:   "agreed",
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateAnnotation (user): %v", err)
	}

	got, err := q.GetAnnotationByID(context.Background(), guest.ID)
	if err != nil {
		t.Fatalf("GetAnnotationByID: %v", err)
	}
	if name, ok := got.Author.GuestName(); !ok || name != "Dana" {
		t.Errorf("guest author = %+v", got.Author)
	}

	got, err = q.GetAnnotationByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetAnnotationByID: %v", err)
	}
	if id, ok := got.Author.UserID(); !ok || id != 42 {
		t.Errorf("user author = %+v", got.Author)
	}

	list, err := q.ListAnnotations(context.Background(), page.ID, 0)
	if err != nil {
		t.Fatalf("ListAnnotations: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("annotations = %d, want 2", len(list))
	}
}

func TestEvents_ListCountAndPrune(t *testing.T) {
	db := testutil.TestDB(t)
	q := store.New(db)

	old := time.Now().Add(-48 * time.Hour)
	for i, msg := range []string{"first", "second", "third"} {
		createdAt := time.Now()
		if i == 0 {
			createdAt = old
		}
		if _, err := q.CreateEvent(context.Background(), store.CreateEventParams{
			Level:     model.EventLevelWarning,
			Category:  model.EventCategorySystem,
			Message:   msg,
			Metadata:  "{}",
			CreatedAt: createdAt,
		}); err != nil {
			t.Fatalf("CreateEvent: %v", err)
		}
	}

	events, err := q.ListEvents(context.Background(), store.ListEventsParams{Limit: 10})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[0].Message == "first" {
		t.Error("events not newest first")
	}

	if err := q.DeleteOldEvents(context.Background(), time.Now().Add(-24*time.Hour)); err != nil {
		t.Fatalf("DeleteOldEvents: %v", err)
	}

	count, err := q.CountEvents(context.Background())
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if count != 2 {
		t.Errorf("CountEvents = %d, want 2", count)
	}
}

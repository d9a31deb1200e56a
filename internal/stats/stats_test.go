// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package stats

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sharecrate/sharecrate/internal/model"
	"github.com/sharecrate/sharecrate/internal/store"
	"github.com/sharecrate/sharecrate/internal/testutil"
)

func createTestPage(t *testing.T, db *sql.DB, slug string) model.SharePage {
	t.Helper()
	q := store.New(db)
	page, err := q.CreateSharePage(context.Background(), store.CreateSharePageParams{
		OwnerID: 1,
		Title:   "Test Page",
		Slug:    slug,
		Files: []store.CreateShareFileParams{
			{Name: "photo.jpg", Size: 1024, ContentType: "image/jpeg", StorageKey: "k1"},
		},
	})
	if err != nil {
		t.Fatalf("CreateSharePage: %v", err)
	}
	return page
}

func TestRecordView_Aggregates(t *testing.T) {
	db := testutil.TestDB(t)
	page := createTestPage(t, db, "aggregates")
	s := NewStore(db)
	ctx := context.Background()

	at := time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := s.RecordView(ctx, View{
			PageID:      page.ID,
			VisitorHash: fmt.Sprintf("visitor-%d", i),
			Location:    "Berlin, Berlin, Germany",
			Time:        at,
		})
		if err != nil {
			t.Fatalf("RecordView: %v", err)
		}
	}

	rec, err := s.Snapshot(ctx, page.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if rec.TotalViews != 3 {
		t.Errorf("TotalViews = %d, want 3", rec.TotalViews)
	}
	if got := rec.DailyViews["2026-02-10"]; got != 3 {
		t.Errorf("DailyViews[2026-02-10] = %d, want 3", got)
	}
	if got := rec.HourlyViews[14]; got != 3 {
		t.Errorf("HourlyViews[14] = %d, want 3", got)
	}
	loc := rec.LocationViews["Berlin, Berlin, Germany"]
	if loc.Views != 3 {
		t.Errorf("LocationViews = %d, want 3", loc.Views)
	}
	if rec.TotalUniqueVisitors != 3 {
		t.Errorf("TotalUniqueVisitors = %d, want 3", rec.TotalUniqueVisitors)
	}
}

func TestRecordView_ConcurrentWritersLoseNothing(t *testing.T) {
	db := testutil.TestDB(t)
	page := createTestPage(t, db, "concurrent")
	s := NewStore(db)

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.RecordView(context.Background(), View{
				PageID:      page.ID,
				VisitorHash: fmt.Sprintf("visitor-%d", i%10),
				Location:    "Germany",
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("RecordView: %v", err)
		}
	}

	rec, err := s.Snapshot(context.Background(), page.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if rec.TotalViews != n {
		t.Errorf("TotalViews = %d, want %d (lost increments)", rec.TotalViews, n)
	}
	if rec.TotalUniqueVisitors != 10 {
		t.Errorf("TotalUniqueVisitors = %d, want 10", rec.TotalUniqueVisitors)
	}
}

func TestRecordView_VisitorDedup(t *testing.T) {
	db := testutil.TestDB(t)
	page := createTestPage(t, db, "dedup")
	s := NewStore(db)
	ctx := context.Background()

	day1 := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC)

	// Same visitor three times on day 1, once on day 2.
	for _, at := range []time.Time{day1, day1, day1, day2} {
		if err := s.RecordView(ctx, View{PageID: page.ID, VisitorHash: "abc", Time: at}); err != nil {
			t.Fatalf("RecordView: %v", err)
		}
	}

	rec, err := s.Snapshot(ctx, page.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if rec.TotalViews != 4 {
		t.Errorf("TotalViews = %d, want 4", rec.TotalViews)
	}
	if rec.TotalUniqueVisitors != 1 {
		t.Errorf("TotalUniqueVisitors = %d, want 1", rec.TotalUniqueVisitors)
	}
	if got := rec.UniqueVisitors["2026-02-10"]; got != 1 {
		t.Errorf("UniqueVisitors[day1] = %d, want 1", got)
	}
	if got := rec.UniqueVisitors["2026-02-11"]; got != 1 {
		t.Errorf("UniqueVisitors[day2] = %d, want 1", got)
	}
}

func TestRecordView_UnknownPage(t *testing.T) {
	db := testutil.TestDB(t)
	s := NewStore(db)

	err := s.RecordView(context.Background(), View{PageID: 9999})
	if err != ErrPageNotFound {
		t.Errorf("RecordView(unknown) = %v, want ErrPageNotFound", err)
	}
}

func TestRecordVisitDuration(t *testing.T) {
	db := testutil.TestDB(t)
	page := createTestPage(t, db, "durations")
	s := NewStore(db)
	ctx := context.Background()

	at := time.Date(2026, 2, 10, 16, 0, 0, 0, time.UTC)

	// Sub-second reports are dropped silently.
	if err := s.RecordVisitDuration(ctx, page.ID, 0.4, "Germany", at); err != nil {
		t.Fatalf("RecordVisitDuration(0.4): %v", err)
	}

	for _, d := range []float64{10, 20, 60} {
		if err := s.RecordVisitDuration(ctx, page.ID, d, "Germany", at); err != nil {
			t.Fatalf("RecordVisitDuration(%v): %v", d, err)
		}
	}

	rec, err := s.Snapshot(ctx, page.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	entries := rec.DailyVisitDurations["2026-02-10"]
	if len(entries) != 3 {
		t.Fatalf("len(DailyVisitDurations) = %d, want 3 (sub-second not dropped?)", len(entries))
	}
	if rec.AverageVisitDuration != 30 {
		t.Errorf("AverageVisitDuration = %v, want 30", rec.AverageVisitDuration)
	}
}

func TestRecordCommentDelta_FloorsAtZero(t *testing.T) {
	db := testutil.TestDB(t)
	page := createTestPage(t, db, "comments")
	s := NewStore(db)
	ctx := context.Background()

	if err := s.RecordCommentDelta(ctx, page.ID, 1); err != nil {
		t.Fatalf("RecordCommentDelta(+1): %v", err)
	}
	if err := s.RecordCommentDelta(ctx, page.ID, -1); err != nil {
		t.Fatalf("RecordCommentDelta(-1): %v", err)
	}
	// Decrement below zero clamps.
	if err := s.RecordCommentDelta(ctx, page.ID, -1); err != nil {
		t.Fatalf("RecordCommentDelta(-1): %v", err)
	}

	rec, err := s.Snapshot(ctx, page.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if rec.TotalComments != 0 {
		t.Errorf("TotalComments = %d, want 0", rec.TotalComments)
	}
}

func TestRecordDownload(t *testing.T) {
	db := testutil.TestDB(t)
	page := createTestPage(t, db, "downloads")
	s := NewStore(db)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := s.RecordDownload(ctx, page.ID, "photo.jpg"); err != nil {
			t.Fatalf("RecordDownload: %v", err)
		}
	}
	if err := s.RecordDownload(ctx, page.ID, "notes.txt"); err != nil {
		t.Fatalf("RecordDownload: %v", err)
	}

	rec, err := s.Snapshot(ctx, page.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if got := rec.FileDownloads["photo.jpg"]; got != 2 {
		t.Errorf("FileDownloads[photo.jpg] = %d, want 2", got)
	}
	if got := rec.FileDownloads["notes.txt"]; got != 1 {
		t.Errorf("FileDownloads[notes.txt] = %d, want 1", got)
	}
}

func TestTotals(t *testing.T) {
	db := testutil.TestDB(t)
	page := createTestPage(t, db, "totals")
	s := NewStore(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.RecordView(ctx, View{PageID: page.ID, VisitorHash: "v1"}); err != nil {
			t.Fatalf("RecordView: %v", err)
		}
	}
	if err := s.RecordVisitDuration(ctx, page.ID, 30, "", time.Now()); err != nil {
		t.Fatalf("RecordVisitDuration: %v", err)
	}
	if err := s.RecordCommentDelta(ctx, page.ID, 1); err != nil {
		t.Fatalf("RecordCommentDelta: %v", err)
	}

	totals, err := s.Totals(ctx, page.ID)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	want := Totals{
		TotalViews:           3,
		TotalUniqueVisitors:  1,
		TotalComments:        1,
		AverageVisitDuration: 30,
	}
	if totals != want {
		t.Errorf("Totals = %+v, want %+v", totals, want)
	}

	if _, err := s.Totals(ctx, 9999); err != ErrPageNotFound {
		t.Errorf("Totals(unknown) = %v, want ErrPageNotFound", err)
	}
}

func TestSnapshot_UnknownPage(t *testing.T) {
	db := testutil.TestDB(t)
	s := NewStore(db)

	if _, err := s.Snapshot(context.Background(), 12345); err != ErrPageNotFound {
		t.Errorf("Snapshot(unknown) = %v, want ErrPageNotFound", err)
	}
}

func TestHourlyHistogram_CumulativeAcrossDays(t *testing.T) {
	db := testutil.TestDB(t)
	page := createTestPage(t, db, "hourly")
	s := NewStore(db)
	ctx := context.Background()

	// Same hour on two different days accumulates into one bucket.
	for _, at := range []time.Time{
		time.Date(2026, 2, 10, 14, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 11, 14, 0, 0, 0, time.UTC),
	} {
		if err := s.RecordView(ctx, View{PageID: page.ID, Time: at}); err != nil {
			t.Fatalf("RecordView: %v", err)
		}
	}

	rec, err := s.Snapshot(ctx, page.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if got := rec.HourlyViews[14]; got != 2 {
		t.Errorf("HourlyViews[14] = %d, want 2", got)
	}
}

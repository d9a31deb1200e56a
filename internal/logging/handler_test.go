package logging

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/sharecrate/sharecrate/internal/model"
	"github.com/sharecrate/sharecrate/internal/store"
	"github.com/sharecrate/sharecrate/internal/testutil"
)

// discardHandler is a slog.Handler that discards all logs.
type discardHandler struct{}

func (h discardHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (h discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return h }
func (h discardHandler) WithGroup(string) slog.Handler             { return h }

func lastEvent(t *testing.T, q *store.Queries) model.Event {
	t.Helper()
	events, err := q.ListEvents(context.Background(), store.ListEventsParams{Limit: 1})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	return events[0]
}

func TestEventLogHandler_ErrorCaptured(t *testing.T) {
	db := testutil.TestDB(t)
	logger := slog.New(NewEventLogHandler(discardHandler{}, db))

	logger.Error("database connection failed", "host", "localhost", "port", 5432)

	e := lastEvent(t, store.New(db))
	if e.Level != model.EventLevelError {
		t.Errorf("Level = %q, want %q", e.Level, model.EventLevelError)
	}
	if e.Message != "database connection failed" {
		t.Errorf("Message = %q", e.Message)
	}
	if !strings.Contains(e.Metadata, "host") || !strings.Contains(e.Metadata, "port") {
		t.Errorf("Metadata missing attributes: %s", e.Metadata)
	}
}

func TestEventLogHandler_WarnCaptured(t *testing.T) {
	db := testutil.TestDB(t)
	logger := slog.New(NewEventLogHandler(discardHandler{}, db))

	logger.Warn("slow query detected", "duration_ms", 5000)

	e := lastEvent(t, store.New(db))
	if e.Level != model.EventLevelWarning {
		t.Errorf("Level = %q, want %q", e.Level, model.EventLevelWarning)
	}
}

func TestEventLogHandler_InfoNotCaptured(t *testing.T) {
	db := testutil.TestDB(t)
	logger := slog.New(NewEventLogHandler(discardHandler{}, db))

	logger.Info("server started", "port", 8080)
	logger.Debug("handling request")

	count, err := store.New(db).CountEvents(context.Background())
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if count != 0 {
		t.Errorf("CountEvents = %d, want 0", count)
	}
}

func TestEventLogHandler_CustomLevel(t *testing.T) {
	db := testutil.TestDB(t)
	logger := slog.New(NewEventLogHandlerWithLevel(discardHandler{}, db, slog.LevelInfo))

	logger.Info("server started", "port", 8080)

	e := lastEvent(t, store.New(db))
	if e.Level != model.EventLevelInfo {
		t.Errorf("Level = %q, want %q", e.Level, model.EventLevelInfo)
	}
}

func TestEventLogHandler_CategoryInference(t *testing.T) {
	db := testutil.TestDB(t)
	logger := slog.New(NewEventLogHandler(discardHandler{}, db))
	q := store.New(db)

	tests := []struct {
		message  string
		expected string
	}{
		{"password verification throttled", model.EventCategoryAccess},
		{"page not found for slug", model.EventCategoryPage},
		{"failed to record view", model.EventCategoryStats},
		{"annotation rejected", model.EventCategoryComment},
		{"cache invalidation failed", model.EventCategoryCache},
		{"unexpected shutdown", model.EventCategorySystem},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			if _, err := db.Exec("DELETE FROM events"); err != nil {
				t.Fatalf("clearing events: %v", err)
			}
			logger.Error(tt.message)
			e := lastEvent(t, q)
			if e.Category != tt.expected {
				t.Errorf("Category = %q, want %q", e.Category, tt.expected)
			}
		})
	}
}

func TestEventLogHandler_ExplicitCategory(t *testing.T) {
	db := testutil.TestDB(t)
	logger := slog.New(NewEventLogHandler(discardHandler{}, db))

	logger.Error("something happened", "category", model.EventCategoryComment)

	e := lastEvent(t, store.New(db))
	if e.Category != model.EventCategoryComment {
		t.Errorf("Category = %q, want %q (explicit attribute wins)", e.Category, model.EventCategoryComment)
	}
}

func TestEventLogHandler_WithAttrsAndGroup(t *testing.T) {
	db := testutil.TestDB(t)
	base := NewEventLogHandler(discardHandler{}, db)

	logger := slog.New(base.WithAttrs([]slog.Attr{slog.String("service", "share")}))
	logger.Error("service error")

	e := lastEvent(t, store.New(db))
	if e.Message != "service error" {
		t.Errorf("Message = %q", e.Message)
	}

	grouped := slog.New(base.WithGroup("request"))
	grouped.Error("request error", "id", "abc123")

	count, err := store.New(db).CountEvents(context.Background())
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if count != 2 {
		t.Errorf("CountEvents = %d, want 2", count)
	}
}

func TestEscapeJSON(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`hello`, `hello`},
		{`hello "world"`, `hello \"world\"`},
		{`path\to\file`, `path\\to\\file`},
		{"line1\nline2", `line1\nline2`},
		{"col1\tcol2", `col1\tcol2`},
		{"return\rhere", `return\rhere`},
	}

	for _, tt := range tests {
		if got := escapeJSON(tt.input); got != tt.expected {
			t.Errorf("escapeJSON(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestSlogLevelToEventLevel(t *testing.T) {
	tests := []struct {
		level    slog.Level
		expected string
	}{
		{slog.LevelDebug, model.EventLevelInfo},
		{slog.LevelInfo, model.EventLevelInfo},
		{slog.LevelWarn, model.EventLevelWarning},
		{slog.LevelError, model.EventLevelError},
		{slog.LevelError + 4, model.EventLevelError},
	}

	for _, tt := range tests {
		if got := slogLevelToEventLevel(tt.level); got != tt.expected {
			t.Errorf("slogLevelToEventLevel(%v) = %q, want %q", tt.level, got, tt.expected)
		}
	}
}

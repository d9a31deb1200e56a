// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package maintenance runs the background jobs: GeoIP database reloads
// and pruning of aged analytics detail rows.
package maintenance

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sharecrate/sharecrate/internal/geoip"
	"github.com/sharecrate/sharecrate/internal/model"
	"github.com/sharecrate/sharecrate/internal/store"
)

// Retention windows for detail rows. Aggregate counters in share_stats
// are kept forever.
const (
	visitorDayRetention = 90 * 24 * time.Hour
	durationRetention   = 30 * 24 * time.Hour
	eventRetention      = 90 * 24 * time.Hour
)

// Maintenance owns the cron runner and its jobs.
type Maintenance struct {
	db     *sql.DB
	geo    *geoip.Resolver
	cron   *cron.Cron
	logger *slog.Logger
}

// New creates a maintenance runner.
func New(db *sql.DB, geo *geoip.Resolver, logger *slog.Logger) *Maintenance {
	return &Maintenance{
		db:     db,
		geo:    geo,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start registers the jobs and starts the cron runner.
func (m *Maintenance) Start() error {
	// Hourly: pick up a replaced GeoIP database file.
	if _, err := m.cron.AddFunc("0 * * * *", func() {
		if !m.geo.IsEnabled() {
			return
		}
		if err := m.geo.Reload(); err != nil {
			m.logger.Error("geoip reload failed", "error", err)
		}
	}); err != nil {
		return err
	}

	// Nightly: prune aged detail rows.
	if _, err := m.cron.AddFunc("30 3 * * *", func() {
		if err := m.Prune(context.Background()); err != nil {
			m.logger.Error("maintenance prune failed", "error", err)
		}
	}); err != nil {
		return err
	}

	m.cron.Start()
	m.logger.Info("maintenance started", "jobs", len(m.cron.Entries()))
	return nil
}

// Stop gracefully stops the cron runner, waiting for running jobs.
func (m *Maintenance) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.logger.Info("maintenance stopped")
}

// Prune removes detail rows past their retention windows. Lifetime
// visitor dedup rows and all aggregate counters are kept.
func (m *Maintenance) Prune(ctx context.Context) error {
	queries := store.New(m.db)
	now := time.Now()

	dayCutoff := now.Add(-visitorDayRetention).Format(model.DateFormat)
	days, err := queries.DeleteOldVisitorDays(ctx, dayCutoff)
	if err != nil {
		return err
	}

	durations, err := queries.DeleteOldVisitDurations(ctx, now.Add(-durationRetention))
	if err != nil {
		return err
	}

	if err := queries.DeleteOldEvents(ctx, now.Add(-eventRetention)); err != nil {
		return err
	}

	if days > 0 || durations > 0 {
		m.logger.Info("pruned analytics detail rows",
			"visitor_days", days,
			"visit_durations", durations,
		)
	}
	return nil
}

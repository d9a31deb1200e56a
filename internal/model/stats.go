// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import "time"

// DateFormat is the canonical key format for daily buckets.
const DateFormat = "2006-01-02"

// LocationStat aggregates views from one location.
type LocationStat struct {
	Views    int64     `json:"views"`
	LastView time.Time `json:"last_view"`
}

// DurationEntry is one completed visit duration report.
type DurationEntry struct {
	Duration  float64   `json:"duration"`
	Timestamp time.Time `json:"timestamp"`
	Location  string    `json:"location,omitempty"`
}

// StatsRecord is a point-in-time snapshot of a page's analytics
// aggregates. It is assembled from the stats tables under a read
// transaction, so counters within one snapshot are mutually consistent.
type StatsRecord struct {
	PageID int64 `json:"page_id"`

	TotalViews  int64            `json:"total_views"`
	DailyViews  map[string]int64 `json:"daily_views"`
	HourlyViews map[int]int64    `json:"hourly_views"`

	LocationViews map[string]LocationStat `json:"location_views"`

	// UniqueVisitors maps date to the count of visitors first seen that day.
	UniqueVisitors      map[string]int64 `json:"unique_visitors"`
	TotalUniqueVisitors int64            `json:"total_unique_visitors"`

	TotalComments int64            `json:"total_comments"`
	FileDownloads map[string]int64 `json:"file_downloads"`

	DailyVisitDurations  map[string][]DurationEntry `json:"daily_visit_durations"`
	AverageVisitDuration float64                    `json:"average_visit_duration"`

	LastUpdated time.Time `json:"last_updated"`
}

// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package model defines the core domain types for share pages,
// their analytics aggregates, and visitor annotations.
package model

import (
	"database/sql"
	"time"
)

// SharePage represents a published, URL-addressable collection of files.
// Identity (ID, Slug) is immutable for the lifetime of the page.
type SharePage struct {
	ID           int64          `json:"id"`
	OwnerID      int64          `json:"owner_id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Slug         string         `json:"slug"`
	PasswordHash sql.NullString `json:"-"`
	ExpiresAt    sql.NullTime   `json:"expires_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// IsPasswordProtected returns true if the page requires a password.
func (p *SharePage) IsPasswordProtected() bool {
	return p.PasswordHash.Valid && p.PasswordHash.String != ""
}

// IsExpired returns true if the page has an expiry in the past.
func (p *SharePage) IsExpired(now time.Time) bool {
	return p.ExpiresAt.Valid && p.ExpiresAt.Time.Before(now)
}

// ShareFile is one entry in a page's curated file list. Position is the
// zero-based file index used by annotations and download URLs.
type ShareFile struct {
	ID          int64  `json:"id"`
	PageID      int64  `json:"page_id"`
	Position    int64  `json:"position"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	StorageKey  string `json:"-"`
}

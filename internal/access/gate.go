// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package access decides whether a visitor may see a share page. The
// gate is the single authority for the locked/expired/granted state
// machine; handlers render whatever it decides and never re-derive
// access on their own.
package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sharecrate/sharecrate/internal/auth"
	"github.com/sharecrate/sharecrate/internal/model"
)

// State is the outcome of an access check.
type State int

const (
	// NotFound: no page exists for the slug.
	NotFound State = iota
	// Granted: the visitor may see the full page.
	Granted
	// PasswordRequired: the page is locked for this visitor.
	PasswordRequired
	// IncorrectPassword: a verification attempt failed.
	IncorrectPassword
	// Expired: the page's expiry has passed. Expiry is authoritative:
	// it wins over any previously cached grant or correct password.
	Expired
)

func (s State) String() string {
	switch s {
	case NotFound:
		return "not_found"
	case Granted:
		return "granted"
	case PasswordRequired:
		return "password_required"
	case IncorrectPassword:
		return "incorrect_password"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Decision is the result of a gate check. Page is populated for every
// state except NotFound.
type Decision struct {
	State State
	Page  model.SharePage
}

// PageFinder loads pages by slug.
type PageFinder interface {
	GetSharePageBySlug(ctx context.Context, slug string) (model.SharePage, error)
}

// Grants is the per-visitor view of the session's access state.
type Grants interface {
	IsAuthorized(pageID int64) bool
	Authorize(pageID int64)
}

// Gate evaluates page access for visitors.
type Gate struct {
	pages PageFinder
	now   func() time.Time
}

// NewGate creates a Gate over the given page store.
func NewGate(pages PageFinder) *Gate {
	return &Gate{pages: pages, now: time.Now}
}

// NewGateWithClock creates a Gate with an injected clock, for tests
// that exercise expiry boundaries.
func NewGateWithClock(pages PageFinder, now func() time.Time) *Gate {
	return &Gate{pages: pages, now: now}
}

// Check evaluates access for a visitor without a password attempt.
// Order matters: existence, then expiry, then protection, then the
// visitor's cached grant.
func (g *Gate) Check(ctx context.Context, slug string, visitor Grants) (Decision, error) {
	page, err := g.pages.GetSharePageBySlug(ctx, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return Decision{State: NotFound}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("loading page %q: %w", slug, err)
	}

	if page.IsExpired(g.now()) {
		return Decision{State: Expired, Page: page}, nil
	}

	if !page.IsPasswordProtected() {
		return Decision{State: Granted, Page: page}, nil
	}

	if visitor.IsAuthorized(page.ID) {
		return Decision{State: Granted, Page: page}, nil
	}

	return Decision{State: PasswordRequired, Page: page}, nil
}

// Verify evaluates a password attempt. On success the grant is stored
// on the visitor's session so later Checks pass without a password.
// An expired page rejects even the correct password.
func (g *Gate) Verify(ctx context.Context, slug, password string, visitor Grants) (Decision, error) {
	page, err := g.pages.GetSharePageBySlug(ctx, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return Decision{State: NotFound}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("loading page %q: %w", slug, err)
	}

	if page.IsExpired(g.now()) {
		return Decision{State: Expired, Page: page}, nil
	}

	if !page.IsPasswordProtected() {
		// Verifying an unprotected page is a harmless no-op.
		return Decision{State: Granted, Page: page}, nil
	}

	ok, err := auth.CheckPassword(password, page.PasswordHash.String)
	if err != nil {
		return Decision{}, fmt.Errorf("verifying password for page %q: %w", slug, err)
	}
	if !ok {
		return Decision{State: IncorrectPassword, Page: page}, nil
	}

	visitor.Authorize(page.ID)
	return Decision{State: Granted, Page: page}, nil
}

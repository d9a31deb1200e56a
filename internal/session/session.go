// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package session manages visitor sessions backed by SQLite, and exposes
// the per-visitor access grants as an explicit capability value rather
// than ad-hoc session key reads scattered through handlers.
package session

import (
	"context"
	"database/sql"
	"encoding/gob"
	"net/http"
	"slices"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
)

// Session keys. All access-control state lives under these two keys.
const (
	keyAuthorizedPages = "authorized_pages"
	keyOwnerID         = "owner_id"
)

func init() {
	// scs gob-encodes session data for the SQLite store.
	gob.Register([]int64{})
}

// NewManager creates a session manager configured with the SQLite store.
func NewManager(db *sql.DB, isDev bool) *scs.SessionManager {
	sm := scs.New()
	sm.Store = sqlite3store.New(db)

	sm.Lifetime = 24 * time.Hour
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = !isDev
	if !isDev {
		// __Host- prefix pins the cookie to this host over HTTPS.
		sm.Cookie.Name = "__Host-session"
		sm.Cookie.Path = "/"
	}

	return sm
}

// Visitor is the capability handle for one visitor's session. Handlers
// receive a Visitor and can only ask the questions it answers; they
// never touch raw session keys.
type Visitor struct {
	sm  *scs.SessionManager
	ctx context.Context
}

// CurrentVisitor returns the Visitor for a request. The request must
// have passed through the manager's LoadAndSave middleware.
func CurrentVisitor(sm *scs.SessionManager, r *http.Request) Visitor {
	return Visitor{sm: sm, ctx: r.Context()}
}

// IsAuthorized reports whether this visitor has previously passed the
// access gate for the given page.
func (v Visitor) IsAuthorized(pageID int64) bool {
	pages, _ := v.sm.Get(v.ctx, keyAuthorizedPages).([]int64)
	return slices.Contains(pages, pageID)
}

// Authorize grants this visitor access to a page. Grants accumulate:
// authorizing one page never revokes another.
func (v Visitor) Authorize(pageID int64) {
	pages, _ := v.sm.Get(v.ctx, keyAuthorizedPages).([]int64)
	if slices.Contains(pages, pageID) {
		return
	}
	v.sm.Put(v.ctx, keyAuthorizedPages, append(pages, pageID))
}

// OwnerID returns the authenticated account id bound to this session,
// if any.
func (v Visitor) OwnerID() (int64, bool) {
	if !v.sm.Exists(v.ctx, keyOwnerID) {
		return 0, false
	}
	id, ok := v.sm.Get(v.ctx, keyOwnerID).(int64)
	return id, ok
}

// SetOwnerID binds an authenticated account id to this session and
// rotates the session token to prevent fixation.
func (v Visitor) SetOwnerID(id int64) error {
	if err := v.sm.RenewToken(v.ctx); err != nil {
		return err
	}
	v.sm.Put(v.ctx, keyOwnerID, id)
	return nil
}

// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sharecrate/sharecrate/internal/model"
	"github.com/sharecrate/sharecrate/internal/store"
)

// PageCache provides cached access to share pages over any Cacher
// backend. Pages are JSON-encoded so memory and Redis behave the same.
// Access decisions (password, expiry) are always re-evaluated by the
// caller; only the page record itself is cached.
type PageCache struct {
	cache   Cacher
	queries *store.Queries
	ttl     time.Duration
}

// NewPageCache creates a page cache over the given backend.
func NewPageCache(backend Cacher, queries *store.Queries, ttl time.Duration) *PageCache {
	return &PageCache{cache: backend, queries: queries, ttl: ttl}
}

// cachedPage is the wire form of a page inside the cache. The model
// type hides the password hash from API JSON; the cache is internal
// and must round-trip it.
type cachedPage struct {
	ID           int64      `json:"id"`
	OwnerID      int64      `json:"owner_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Slug         string     `json:"slug"`
	PasswordHash *string    `json:"password_hash,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func encodePage(page model.SharePage) ([]byte, error) {
	cp := cachedPage{
		ID:          page.ID,
		OwnerID:     page.OwnerID,
		Title:       page.Title,
		Description: page.Description,
		Slug:        page.Slug,
		CreatedAt:   page.CreatedAt,
		UpdatedAt:   page.UpdatedAt,
	}
	if page.PasswordHash.Valid {
		cp.PasswordHash = &page.PasswordHash.String
	}
	if page.ExpiresAt.Valid {
		t := page.ExpiresAt.Time
		cp.ExpiresAt = &t
	}
	return json.Marshal(cp)
}

func decodePage(data []byte) (model.SharePage, error) {
	var cp cachedPage
	if err := json.Unmarshal(data, &cp); err != nil {
		return model.SharePage{}, err
	}
	page := model.SharePage{
		ID:          cp.ID,
		OwnerID:     cp.OwnerID,
		Title:       cp.Title,
		Description: cp.Description,
		Slug:        cp.Slug,
		CreatedAt:   cp.CreatedAt,
		UpdatedAt:   cp.UpdatedAt,
	}
	if cp.PasswordHash != nil {
		page.PasswordHash = sql.NullString{String: *cp.PasswordHash, Valid: true}
	}
	if cp.ExpiresAt != nil {
		page.ExpiresAt = sql.NullTime{Time: *cp.ExpiresAt, Valid: true}
	}
	return page, nil
}

func slugKey(slug string) string { return "page:slug:" + slug }
func idKey(id int64) string      { return fmt.Sprintf("page:id:%d", id) }

// GetBySlug retrieves a page by slug, from cache when possible.
// Misses fall through to the database and populate both keys.
func (c *PageCache) GetBySlug(ctx context.Context, slug string) (model.SharePage, error) {
	if data, err := c.cache.Get(ctx, slugKey(slug)); err == nil {
		if page, err := decodePage(data); err == nil {
			return page, nil
		}
		// Corrupt entry: drop it and fall through.
		_ = c.cache.Delete(ctx, slugKey(slug))
	}

	page, err := c.queries.GetSharePageBySlug(ctx, slug)
	if err != nil {
		return page, err // including sql.ErrNoRows, which callers map to NotFound
	}

	c.storePage(ctx, page)
	return page, nil
}

// GetSharePageBySlug is GetBySlug under the name the access gate's
// PageFinder expects, so the cache can sit in front of the gate.
func (c *PageCache) GetSharePageBySlug(ctx context.Context, slug string) (model.SharePage, error) {
	return c.GetBySlug(ctx, slug)
}

// GetByID retrieves a page by id, from cache when possible.
func (c *PageCache) GetByID(ctx context.Context, id int64) (model.SharePage, error) {
	if data, err := c.cache.Get(ctx, idKey(id)); err == nil {
		if page, err := decodePage(data); err == nil {
			return page, nil
		}
		_ = c.cache.Delete(ctx, idKey(id))
	}

	page, err := c.queries.GetSharePageByID(ctx, id)
	if err != nil {
		return page, err
	}

	c.storePage(ctx, page)
	return page, nil
}

// storePage writes both lookup keys. Cache write failures are not
// fatal; the next lookup just misses.
func (c *PageCache) storePage(ctx context.Context, page model.SharePage) {
	data, err := encodePage(page)
	if err != nil {
		return
	}
	_ = c.cache.Set(ctx, slugKey(page.Slug), data, c.ttl)
	_ = c.cache.Set(ctx, idKey(page.ID), data, c.ttl)
}

// Invalidate removes both cached keys for a page.
func (c *PageCache) Invalidate(ctx context.Context, page model.SharePage) {
	_ = c.cache.Delete(ctx, slugKey(page.Slug))
	_ = c.cache.Delete(ctx, idKey(page.ID))
}

// Stats exposes backend statistics when the backend tracks them.
func (c *PageCache) Stats() (CacheStats, bool) {
	if sp, ok := c.cache.(StatsProvider); ok {
		return sp.Stats(), true
	}
	return CacheStats{}, false
}

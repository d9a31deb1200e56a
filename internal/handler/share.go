// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"

	"github.com/sharecrate/sharecrate/internal/access"
	"github.com/sharecrate/sharecrate/internal/comments"
	"github.com/sharecrate/sharecrate/internal/model"
	"github.com/sharecrate/sharecrate/internal/recorder"
	"github.com/sharecrate/sharecrate/internal/session"
	"github.com/sharecrate/sharecrate/internal/stats"
	"github.com/sharecrate/sharecrate/internal/store"
)

// ShareHandler serves the public share page surface. Every route that
// exposes page content goes through the access gate first; the handler
// never re-derives access on its own.
type ShareHandler struct {
	gate     *access.Gate
	byID     PageByIDFinder
	queries  *store.Queries
	stats    *stats.Store
	recorder *recorder.Recorder
	ledger   *comments.Ledger
	sm       *scs.SessionManager
	filesDir string
	log      *slog.Logger
}

// PageByIDFinder loads pages by id, typically through the page cache.
type PageByIDFinder interface {
	GetByID(ctx context.Context, id int64) (model.SharePage, error)
}

// NewShareHandler creates a ShareHandler.
func NewShareHandler(
	gate *access.Gate,
	byID PageByIDFinder,
	queries *store.Queries,
	statsStore *stats.Store,
	rec *recorder.Recorder,
	ledger *comments.Ledger,
	sm *scs.SessionManager,
	filesDir string,
	log *slog.Logger,
) *ShareHandler {
	return &ShareHandler{
		gate:     gate,
		byID:     byID,
		queries:  queries,
		stats:    statsStore,
		recorder: rec,
		ledger:   ledger,
		sm:       sm,
		filesDir: filesDir,
		log:      log,
	}
}

// lockedPageResponse is everything a visitor without a grant may see.
// Nothing else about the page leaks through it.
type lockedPageResponse struct {
	ID                  int64   `json:"id"`
	Title               string  `json:"title"`
	IsPasswordProtected bool    `json:"is_password_protected"`
	ExpiresAt           *string `json:"expires_at,omitempty"`
}

// fileResponse is one entry in the full page payload.
type fileResponse struct {
	Index       int64  `json:"index"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// pageResponse is the full page payload for granted visitors. Stats
// carries the headline counters only; the full snapshot stays behind
// the owner-only analytics endpoint.
type pageResponse struct {
	ID                  int64          `json:"id"`
	Title               string         `json:"title"`
	Description         string         `json:"description"`
	Slug                string         `json:"slug"`
	IsPasswordProtected bool           `json:"is_password_protected"`
	ExpiresAt           *string        `json:"expires_at,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	Files               []fileResponse `json:"files"`
	Stats               stats.Totals   `json:"stats"`
}

func expiresAtString(page model.SharePage) *string {
	if !page.ExpiresAt.Valid {
		return nil
	}
	s := page.ExpiresAt.Time.UTC().Format(time.RFC3339)
	return &s
}

func newLockedPageResponse(page model.SharePage) lockedPageResponse {
	return lockedPageResponse{
		ID:                  page.ID,
		Title:               page.Title,
		IsPasswordProtected: page.IsPasswordProtected(),
		ExpiresAt:           expiresAtString(page),
	}
}

func newPageResponse(page model.SharePage, files []model.ShareFile, totals stats.Totals) pageResponse {
	resp := pageResponse{
		ID:                  page.ID,
		Title:               page.Title,
		Description:         page.Description,
		Slug:                page.Slug,
		IsPasswordProtected: page.IsPasswordProtected(),
		ExpiresAt:           expiresAtString(page),
		CreatedAt:           page.CreatedAt,
		Files:               make([]fileResponse, 0, len(files)),
		Stats:               totals,
	}
	for _, f := range files {
		resp.Files = append(resp.Files, fileResponse{
			Index:       f.Position,
			Name:        f.Name,
			Size:        f.Size,
			ContentType: f.ContentType,
		})
	}
	return resp
}

// writeExpired writes the 403 for an expired page, including when the
// page stopped being available.
func writeExpired(w http.ResponseWriter, page model.SharePage) {
	details := map[string]string{}
	if s := expiresAtString(page); s != nil {
		details["expires_at"] = *s
	}
	WriteError(w, http.StatusForbidden, "expired", "This page has expired.", details)
}

// checkAccess runs the gate for the request's slug and writes the
// response for every state except Granted. Returns the page and true
// only when the caller should proceed.
func (h *ShareHandler) checkAccess(w http.ResponseWriter, r *http.Request) (model.SharePage, bool) {
	visitor := session.CurrentVisitor(h.sm, r)
	slug := chi.URLParam(r, "slug")

	decision, err := h.gate.Check(r.Context(), slug, visitor)
	if err != nil {
		h.log.Error("access check failed", "slug", slug, "error", err)
		WriteInternalError(w, "Failed to check page access")
		return model.SharePage{}, false
	}

	switch decision.State {
	case access.Granted:
		return decision.Page, true
	case access.NotFound:
		WriteNotFound(w, "Page not found")
	case access.Expired:
		writeExpired(w, decision.Page)
	default:
		WriteError(w, http.StatusUnauthorized, "password_required",
			"This page is password protected.", nil)
	}
	return model.SharePage{}, false
}

// grantedPayload assembles the full page response: the file list plus
// the headline stats counters.
func (h *ShareHandler) grantedPayload(ctx context.Context, page model.SharePage) (pageResponse, error) {
	files, err := h.queries.ListShareFiles(ctx, page.ID)
	if err != nil {
		return pageResponse{}, err
	}
	totals, err := h.stats.Totals(ctx, page.ID)
	if err != nil {
		return pageResponse{}, err
	}
	return newPageResponse(page, files, totals), nil
}

// GetPage handles GET /page/{slug}. Visitors without a grant get the
// locked teaser; granted visitors get the full payload and count as a
// view.
func (h *ShareHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	visitor := session.CurrentVisitor(h.sm, r)
	slug := chi.URLParam(r, "slug")

	decision, err := h.gate.Check(r.Context(), slug, visitor)
	if err != nil {
		h.log.Error("access check failed", "slug", slug, "error", err)
		WriteInternalError(w, "Failed to check page access")
		return
	}

	switch decision.State {
	case access.NotFound:
		WriteNotFound(w, "Page not found")

	case access.Expired:
		writeExpired(w, decision.Page)

	case access.PasswordRequired:
		WriteSuccess(w, newLockedPageResponse(decision.Page), nil)

	case access.Granted:
		if err := h.recorder.RecordView(r.Context(), decision.Page.ID, r); err != nil {
			// A lost view never blocks the page render.
			h.log.Warn("failed to record view", "page_id", decision.Page.ID, "error", err)
		}
		resp, err := h.grantedPayload(r.Context(), decision.Page)
		if err != nil {
			h.log.Error("assembling page payload failed", "slug", slug, "error", err)
			WriteInternalError(w, "Failed to load page")
			return
		}
		WriteSuccess(w, resp, nil)
	}
}

// VerifyPassword handles POST /page/{slug}/verify. On success the grant
// is stored in the visitor's session and the full page comes back
// immediately, saving the client a round trip. The view itself is
// counted by the granted GET, not here.
func (h *ShareHandler) VerifyPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	visitor := session.CurrentVisitor(h.sm, r)
	slug := chi.URLParam(r, "slug")

	decision, err := h.gate.Verify(r.Context(), slug, req.Password, visitor)
	if err != nil {
		h.log.Error("password verification failed", "slug", slug, "error", err)
		WriteInternalError(w, "Failed to verify password")
		return
	}

	switch decision.State {
	case access.NotFound:
		WriteNotFound(w, "Page not found")
	case access.Expired:
		writeExpired(w, decision.Page)
	case access.IncorrectPassword:
		WriteError(w, http.StatusUnauthorized, "incorrect_password", "Incorrect password.", nil)
	case access.Granted:
		resp, err := h.grantedPayload(r.Context(), decision.Page)
		if err != nil {
			h.log.Error("assembling page payload failed", "slug", slug, "error", err)
			WriteInternalError(w, "Failed to load page")
			return
		}
		WriteSuccess(w, resp, nil)
	}
}

// RecordVisitDuration handles POST /page/{slug}/visit-duration, the
// intake for the tracker script. Sub-second reports are dropped
// downstream without an error.
func (h *ShareHandler) RecordVisitDuration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Duration float64 `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if req.Duration < 0 {
		WriteValidationError(w, map[string]string{"duration": "must not be negative"})
		return
	}

	page, ok := h.checkAccess(w, r)
	if !ok {
		return
	}

	if err := h.recorder.RecordDuration(r.Context(), page.ID, req.Duration, r); err != nil {
		if errors.Is(err, stats.ErrPageNotFound) {
			WriteNotFound(w, "Page not found")
			return
		}
		h.log.Error("failed to record visit duration", "page_id", page.ID, "error", err)
		WriteInternalError(w, "Failed to record visit duration")
		return
	}

	WriteSuccess(w, map[string]any{"status": "ok"}, nil)
}

// DownloadFile handles GET /page/{slug}/files/{fileIndex}/download.
// Each successful download counts in the page's per-file stats.
func (h *ShareHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	page, ok := h.checkAccess(w, r)
	if !ok {
		return
	}

	index, err := ParseIndexParam(r, "fileIndex")
	if err != nil {
		WriteBadRequest(w, "Invalid file index", nil)
		return
	}

	file, err := h.queries.GetShareFile(r.Context(), page.ID, index)
	if errors.Is(err, sql.ErrNoRows) {
		WriteNotFound(w, "File not found")
		return
	}
	if err != nil {
		h.log.Error("loading file failed", "page_id", page.ID, "index", index, "error", err)
		WriteInternalError(w, "Failed to load file")
		return
	}

	// Storage keys are generated server-side, but never trust them to
	// stay inside the files directory.
	if !filepath.IsLocal(file.StorageKey) {
		WriteNotFound(w, "File not found")
		return
	}

	if err := h.stats.RecordDownload(r.Context(), page.ID, file.Name); err != nil {
		h.log.Warn("failed to record download", "page_id", page.ID, "file", file.Name, "error", err)
	}

	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}))
	if file.ContentType != "" {
		w.Header().Set("Content-Type", file.ContentType)
	}
	http.ServeFile(w, r, filepath.Join(h.filesDir, file.StorageKey))
}

// annotationResponse is one annotation in the API payload.
type annotationResponse struct {
	ID        int64     `json:"id"`
	FileIndex int64     `json:"file_index"`
	Author    string    `json:"author"`
	IsGuest   bool      `json:"is_guest"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func newAnnotationResponse(a model.Annotation) annotationResponse {
	_, isGuest := a.Author.GuestName()
	return annotationResponse{
		ID:        a.ID,
		FileIndex: a.FileIndex,
		Author:    a.Author.DisplayName(),
		IsGuest:   isGuest,
		Content:   a.Content,
		CreatedAt: a.CreatedAt,
	}
}

// requestAuthor builds the annotation author for a request: the
// session's account when signed in, otherwise a guest with the provided
// display name.
func (h *ShareHandler) requestAuthor(r *http.Request, guestName string) model.Author {
	visitor := session.CurrentVisitor(h.sm, r)
	if ownerID, ok := visitor.OwnerID(); ok {
		return model.AuthenticatedAuthor(ownerID)
	}
	return model.GuestAuthor(guestName)
}

// ListAnnotations handles GET /page/{slug}/files/{fileIndex}/annotations.
func (h *ShareHandler) ListAnnotations(w http.ResponseWriter, r *http.Request) {
	page, ok := h.checkAccess(w, r)
	if !ok {
		return
	}

	index, err := ParseIndexParam(r, "fileIndex")
	if err != nil {
		WriteBadRequest(w, "Invalid file index", nil)
		return
	}

	annotations, err := h.ledger.List(r.Context(), page.ID, index)
	if err != nil {
		h.log.Error("listing annotations failed", "page_id", page.ID, "error", err)
		WriteInternalError(w, "Failed to load annotations")
		return
	}

	resp := make([]annotationResponse, 0, len(annotations))
	for _, a := range annotations {
		resp = append(resp, newAnnotationResponse(a))
	}
	WriteSuccess(w, resp, &Meta{Total: int64(len(resp))})
}

// CreateAnnotation handles POST /page/{slug}/files/{fileIndex}/annotations.
func (h *ShareHandler) CreateAnnotation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content   string `json:"content"`
		GuestName string `json:"guest_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	page, ok := h.checkAccess(w, r)
	if !ok {
		return
	}

	index, err := ParseIndexParam(r, "fileIndex")
	if err != nil {
		WriteBadRequest(w, "Invalid file index", nil)
		return
	}

	author := h.requestAuthor(r, req.GuestName)
	a, err := h.ledger.Create(r.Context(), page.ID, index, author, req.Content)
	switch {
	case errors.Is(err, comments.ErrInvalidAuthor):
		WriteValidationError(w, map[string]string{"guest_name": "Guest name is required"})
	case errors.Is(err, comments.ErrEmptyContent):
		WriteValidationError(w, map[string]string{"content": "Content is required"})
	case errors.Is(err, comments.ErrContentTooLong):
		WriteValidationError(w, map[string]string{"content": "Content is too long"})
	case errors.Is(err, comments.ErrInvalidFileIndex):
		WriteNotFound(w, "File not found")
	case err != nil:
		h.log.Error("creating annotation failed", "page_id", page.ID, "error", err)
		WriteInternalError(w, "Failed to create annotation")
	default:
		WriteCreated(w, newAnnotationResponse(a))
	}
}

// DeleteAnnotation handles DELETE /annotations/{id}. The requester's
// identity comes from the session alone; only the authenticated author
// may delete, so guests and page owners both get a 403.
func (h *ShareHandler) DeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIDParam(r)
	if err != nil {
		WriteBadRequest(w, "Invalid annotation ID", nil)
		return
	}

	err = h.ledger.Delete(r.Context(), id, h.requestAuthor(r, ""))
	switch {
	case errors.Is(err, comments.ErrNotFound):
		WriteNotFound(w, "Annotation not found")
	case errors.Is(err, comments.ErrNotAuthor):
		WriteForbidden(w, "Only the author may delete an annotation")
	case err != nil:
		h.log.Error("deleting annotation failed", "annotation_id", id, "error", err)
		WriteInternalError(w, "Failed to delete annotation")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// Analytics handles GET /pages/{id}/analytics. The snapshot is only
// visible to the page's owner.
func (h *ShareHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	visitor := session.CurrentVisitor(h.sm, r)
	ownerID, ok := visitor.OwnerID()
	if !ok {
		WriteUnauthorized(w, "Sign in to view analytics")
		return
	}

	id, err := ParseIDParam(r)
	if err != nil {
		WriteBadRequest(w, "Invalid page ID", nil)
		return
	}

	page, err := h.byID.GetByID(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		WriteNotFound(w, "Page not found")
		return
	}
	if err != nil {
		h.log.Error("loading page failed", "page_id", id, "error", err)
		WriteInternalError(w, "Failed to load page")
		return
	}

	if page.OwnerID != ownerID {
		WriteForbidden(w, "Only the page owner may view analytics")
		return
	}

	snapshot, err := h.stats.Snapshot(r.Context(), id)
	if errors.Is(err, stats.ErrPageNotFound) {
		WriteNotFound(w, "Page not found")
		return
	}
	if err != nil {
		h.log.Error("loading analytics failed", "page_id", id, "error", err)
		WriteInternalError(w, "Failed to load analytics")
		return
	}

	WriteSuccess(w, snapshot, nil)
}

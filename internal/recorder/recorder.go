// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package recorder turns HTTP requests into analytics events: it
// extracts the client IP, filters bots, resolves the location bucket,
// and hashes the visitor identity before anything reaches storage. Raw
// IPs and user agents are never persisted.
package recorder

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mileusna/useragent"

	"github.com/sharecrate/sharecrate/internal/geoip"
	"github.com/sharecrate/sharecrate/internal/stats"
)

// Recorder records page views and visit durations.
type Recorder struct {
	stats *stats.Store
	geo   *geoip.Resolver
	salt  string
	log   *slog.Logger
}

// New creates a Recorder. An empty salt gets a random per-boot value,
// which still dedups visitors within a deployment's lifetime.
func New(statsStore *stats.Store, geo *geoip.Resolver, salt string, log *slog.Logger) *Recorder {
	if salt == "" {
		b := make([]byte, 16)
		_, _ = rand.Read(b)
		salt = hex.EncodeToString(b)
	}
	return &Recorder{stats: statsStore, geo: geo, salt: salt, log: log}
}

// RecordView records one view of a page from the given request.
// Bot traffic is dropped before it touches any counter.
func (rec *Recorder) RecordView(ctx context.Context, pageID int64, r *http.Request) error {
	ua := useragent.Parse(r.UserAgent())
	if ua.Bot {
		return nil
	}

	ip := RealIP(r)
	view := stats.View{
		PageID:      pageID,
		VisitorHash: rec.VisitorHash(ip, r.UserAgent()),
		Location:    rec.geo.Resolve(ip),
		Time:        time.Now(),
	}
	return rec.stats.RecordView(ctx, view)
}

// RecordDuration records a completed visit duration reported by the
// page's tracker script. Sub-second reports are dropped downstream.
func (rec *Recorder) RecordDuration(ctx context.Context, pageID int64, seconds float64, r *http.Request) error {
	ua := useragent.Parse(r.UserAgent())
	if ua.Bot {
		return nil
	}

	location := rec.geo.Resolve(RealIP(r))
	return rec.stats.RecordVisitDuration(ctx, pageID, seconds, location, time.Now())
}

// VisitorHash creates an anonymized visitor fingerprint from IP, user
// agent, and the deployment salt. Truncated sha256: enough to dedup,
// not enough to reverse.
func (rec *Recorder) VisitorHash(ip, userAgent string) string {
	hasher := sha256.New()
	hasher.Write([]byte(ip + userAgent + rec.salt))
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

// RealIP extracts the real client IP from the request.
// It respects X-Real-IP and X-Forwarded-For headers set by reverse proxies.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in the list (client IP)
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	// Fall back to RemoteAddr
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx > 0 {
		ip = ip[:idx]
	}
	// Handle IPv6 addresses in brackets
	ip = strings.TrimPrefix(ip, "[")
	ip = strings.TrimSuffix(ip, "]")

	return ip
}

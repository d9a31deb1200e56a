// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package geoip resolves visitor IP addresses to coarse locations using
// the MaxMind GeoLite2-City database. Lookups degrade gracefully: with
// no database configured every public IP maps to the unknown bucket.
package geoip

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/oschwald/maxminddb-golang"

	"github.com/sharecrate/sharecrate/internal/util"
)

// Location buckets used when no finer answer is available.
const (
	LocationUnknown = "Unknown"
	LocationLocal   = "Local Network"
)

// Location is a resolved visitor location. Empty fields are omitted
// from the bucket key.
type Location struct {
	City    string
	Region  string
	Country string
}

// Key returns the stats bucket key, e.g. "Berlin, Berlin, Germany" or
// "Germany" when only the country resolved. Empty locations map to the
// unknown bucket.
func (l Location) Key() string {
	key := ""
	for _, part := range []string{l.City, l.Region, l.Country} {
		if part == "" {
			continue
		}
		if key != "" {
			key += ", "
		}
		key += part
	}
	if key == "" {
		return LocationUnknown
	}
	return key
}

// Resolver handles IP-to-location lookup with hot reload of the
// underlying database file.
type Resolver struct {
	db          *maxminddb.Reader
	dbPath      string
	dbModTime   time.Time
	initialized bool
	enabled     bool
	mu          sync.RWMutex
}

// cityRecord matches the GeoLite2-City database structure.
type cityRecord struct {
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Subdivisions []struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"subdivisions"`
	Country struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
}

// NewResolver creates an uninitialized Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Init initializes the resolver from the given database path.
// If path is empty, lookups are disabled (graceful degradation).
func (g *Resolver) Init(dbPath string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.initialized = true
	g.dbPath = dbPath

	if dbPath == "" {
		g.enabled = false
		return nil
	}

	return g.loadDatabase()
}

// loadDatabase loads or reloads the MaxMind database.
// Caller must hold g.mu write lock.
func (g *Resolver) loadDatabase() error {
	info, err := os.Stat(g.dbPath)
	if err != nil {
		g.enabled = false
		if os.IsNotExist(err) {
			return fmt.Errorf("GeoIP database not found: %s", g.dbPath)
		}
		return fmt.Errorf("GeoIP database stat error: %w", err)
	}

	// Skip reload if not modified
	if g.db != nil && info.ModTime().Equal(g.dbModTime) {
		return nil
	}

	if g.db != nil {
		_ = g.db.Close()
		g.db = nil
	}

	db, err := maxminddb.Open(g.dbPath)
	if err != nil {
		g.enabled = false
		return fmt.Errorf("failed to open GeoIP database: %w", err)
	}

	g.db = db
	g.dbModTime = info.ModTime()
	g.enabled = true

	return nil
}

// Reload reloads the database if the file has been replaced.
// Safe to call periodically from a cron job.
func (g *Resolver) Reload() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dbPath == "" {
		return nil
	}

	return g.loadDatabase()
}

// Resolve returns the location bucket key for an IP address.
// Private and loopback addresses resolve to the local bucket; anything
// the database cannot place resolves to the unknown bucket.
func (g *Resolver) Resolve(ip string) string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return LocationUnknown
	}

	if parsedIP.IsLoopback() || util.IsPrivateIP(parsedIP) {
		return LocationLocal
	}

	if !g.initialized || !g.enabled || g.db == nil {
		return LocationUnknown
	}

	var record cityRecord
	if err := g.db.Lookup(parsedIP, &record); err != nil {
		return LocationUnknown
	}

	loc := Location{
		City:    record.City.Names["en"],
		Country: record.Country.Names["en"],
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].Names["en"]
	}
	return loc.Key()
}

// IsEnabled returns whether database lookups are available.
func (g *Resolver) IsEnabled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.enabled
}

// Close closes the underlying database.
func (g *Resolver) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.db != nil {
		err := g.db.Close()
		g.db = nil
		g.enabled = false
		return err
	}
	return nil
}

// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// knownWeakSecrets contains default/example secrets that must be rejected in production.
var knownWeakSecrets = []string{
	"change-me-to-32-byte-secret-key!",
	"REPLACE_WITH_YOUR_OWN_SECRET_KEY!",
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBPath        string `env:"SHARECRATE_DB_PATH" envDefault:"./data/sharecrate.db"`
	SessionSecret string `env:"SHARECRATE_SESSION_SECRET,required"`
	ServerHost    string `env:"SHARECRATE_SERVER_HOST" envDefault:"localhost"`
	ServerPort    int    `env:"SHARECRATE_SERVER_PORT" envDefault:"8080"`
	Env           string `env:"SHARECRATE_ENV" envDefault:"development"`
	LogLevel      string `env:"SHARECRATE_LOG_LEVEL" envDefault:"info"`
	FilesDir      string `env:"SHARECRATE_FILES_DIR" envDefault:"./data/files"`

	// Cache configuration
	RedisURL     string `env:"SHARECRATE_REDIS_URL"`                         // Optional Redis URL for distributed caching
	CachePrefix  string `env:"SHARECRATE_CACHE_PREFIX" envDefault:"crate:"`  // Redis key prefix
	CacheTTL     int    `env:"SHARECRATE_CACHE_TTL" envDefault:"300"`        // Page cache TTL in seconds
	CacheMaxSize int    `env:"SHARECRATE_CACHE_MAX_SIZE" envDefault:"10000"` // Max memory cache entries

	// GeoIP configuration
	GeoIPDBPath string `env:"SHARECRATE_GEOIP_DB_PATH"` // Path to GeoLite2-City.mmdb file

	// Analytics configuration
	VisitorSalt string `env:"SHARECRATE_VISITOR_SALT"` // Salt for visitor hashing; random per boot when empty

	// Password verification throttling
	VerifyRateLimit float64 `env:"SHARECRATE_VERIFY_RATE_LIMIT" envDefault:"0.5"` // Requests per second per IP
	VerifyBurst     int     `env:"SHARECRATE_VERIFY_BURST" envDefault:"5"`        // Burst size per IP
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// GeoIPEnabled returns true if GeoIP database is configured.
func (c Config) GeoIPEnabled() bool {
	return c.GeoIPDBPath != ""
}

// MinSessionSecretLength is the minimum required length for the session secret.
const MinSessionSecretLength = 32

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Validate session secret length
	if len(cfg.SessionSecret) < MinSessionSecretLength {
		return nil, fmt.Errorf("SHARECRATE_SESSION_SECRET must be at least %d bytes long, got %d bytes; "+
			"generate a secure secret with: openssl rand -base64 32",
			MinSessionSecretLength, len(cfg.SessionSecret))
	}

	// Reject known weak/default secrets
	for _, weak := range knownWeakSecrets {
		if cfg.SessionSecret == weak {
			return nil, fmt.Errorf("SHARECRATE_SESSION_SECRET is a known default value and must not be used; " +
				"generate a secure secret with: openssl rand -base64 32")
		}
	}

	// Warn about low-entropy secrets
	if !hasMinimumEntropy(cfg.SessionSecret) {
		slog.Warn("SHARECRATE_SESSION_SECRET has low character diversity; " +
			"consider generating a random secret with: openssl rand -base64 32")
	}

	return cfg, nil
}

// hasMinimumEntropy checks that a secret contains at least 3 character classes
// (lowercase, uppercase, digits, special characters).
func hasMinimumEntropy(s string) bool {
	charTypes := 0
	if strings.ContainsAny(s, "abcdefghijklmnopqrstuvwxyz") {
		charTypes++
	}
	if strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		charTypes++
	}
	if strings.ContainsAny(s, "0123456789") {
		charTypes++
	}
	if strings.ContainsAny(s, "!@#$%^&*()-_=+[]{}|;:,.<>?/~`'\"\\") {
		charTypes++
	}
	return charTypes >= 3
}

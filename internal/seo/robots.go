// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package seo serves the crawler policy. Share pages are private links;
// nothing on this host should be indexed.
package seo

import (
	"net/http"
	"strings"
)

// RobotsConfig holds configuration for robots.txt generation.
type RobotsConfig struct {
	// ExtraRules appends custom rules verbatim.
	ExtraRules string
}

// BuildRobots generates robots.txt content disallowing all crawlers.
// Share page URLs are unguessable; keeping crawlers out also keeps the
// analytics free of whatever bots the user-agent filter misses.
func BuildRobots(config RobotsConfig) string {
	var sb strings.Builder
	sb.WriteString("User-agent: *\n")
	sb.WriteString("Disallow: /\n")

	if config.ExtraRules != "" {
		sb.WriteString("\n")
		sb.WriteString(config.ExtraRules)
		if !strings.HasSuffix(config.ExtraRules, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// RobotsHandler returns the robots.txt handler.
func RobotsHandler(config RobotsConfig) http.HandlerFunc {
	body := []byte(BuildRobots(config))
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(body)
	}
}

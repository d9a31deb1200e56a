package util

import (
	"net"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "simple title", input: "Vacation Photos", expected: "vacation-photos"},
		{name: "with special characters", input: "Q3 Report, Final!", expected: "q3-report-final"},
		{name: "with accents", input: "Café résumé", expected: "cafe-resume"},
		{name: "with multiple spaces", input: "Team   Offsite", expected: "team-offsite"},
		{name: "with hyphens", input: "Design - Drafts", expected: "design-drafts"},
		{name: "leading and trailing spaces", input: "  Shared Files  ", expected: "shared-files"},
		{name: "all special characters", input: "!@#$%^&*()", expected: ""},
		{name: "unicode characters", input: "日本語タイトル", expected: ""},
		{name: "german umlauts", input: "Über München", expected: "uber-munchen"},
		{name: "empty string", input: "", expected: ""},
		{name: "mixed case", input: "HeLLo WoRLd", expected: "hello-world"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Slugify(tt.input)
			if result != tt.expected {
				t.Errorf("Slugify(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestIsValidSlug(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{name: "valid simple slug", input: "vacation-photos", expected: true},
		{name: "valid slug with numbers", input: "report-2026", expected: true},
		{name: "valid single word", input: "drafts", expected: true},
		{name: "valid numbers only", input: "123", expected: true},
		{name: "invalid - empty", input: "", expected: false},
		{name: "invalid - uppercase", input: "Vacation-Photos", expected: false},
		{name: "invalid - spaces", input: "vacation photos", expected: false},
		{name: "invalid - special chars", input: "photos!2026", expected: false},
		{name: "invalid - starts with hyphen", input: "-photos", expected: false},
		{name: "invalid - ends with hyphen", input: "photos-", expected: false},
		{name: "invalid - consecutive hyphens", input: "vacation--photos", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidSlug(tt.input)
			if result != tt.expected {
				t.Errorf("IsValidSlug(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRandomSlugSuffix(t *testing.T) {
	a := RandomSlugSuffix()
	b := RandomSlugSuffix()
	if len(a) != 8 {
		t.Errorf("RandomSlugSuffix() length = %d, want 8", len(a))
	}
	if a == b {
		t.Error("RandomSlugSuffix() returned the same value twice")
	}
	if !IsValidSlug(a) {
		t.Errorf("RandomSlugSuffix() = %q is not a valid slug fragment", a)
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"192.168.1.1", true},
		{"169.254.10.10", true},
		{"::1", true},
		{"fe80::1", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"2001:4860:4860::8888", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			ip := net.ParseIP(tt.ip)
			if ip == nil {
				t.Fatalf("failed to parse IP %q", tt.ip)
			}
			if got := IsPrivateIP(ip); got != tt.private {
				t.Errorf("IsPrivateIP(%s) = %v, want %v", tt.ip, got, tt.private)
			}
		})
	}

	if !IsPrivateIP(nil) {
		t.Error("IsPrivateIP(nil) = false, want true")
	}
}

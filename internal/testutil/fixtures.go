// Package testutil provides common testing utilities, fixtures, and helpers
// shared by the session service test suites.
package testutil

import (
	"strings"
	"time"

	"github.com/cvperfect/SessionService/internal/models"
)

// TestPhoto is a tiny but valid PNG data URL.
const TestPhoto = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg=="

// TestSession creates a session with default values and the given id.
func TestSession(sessionID string) *models.Session {
	now := time.Now().UTC()
	return &models.Session{
		SessionID:  sessionID,
		Email:      "test@example.com",
		CVData:     "Jan Kowalski\nSenior Go Developer\n10 years of experience",
		JobPosting: "Backend engineer, Warsaw",
		Plan:       models.PlanPremium,
		Template:   "modern",
		Photo:      TestPhoto,
		Metadata: models.Metadata{
			DeviceInfo: "Chrome 120 · Windows 10 · Desktop",
			IPAddress:  IPAddresses.Public,
			Language:   "pl",
			Source:     "web",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TestSessionAged creates a session whose last write was age ago.
func TestSessionAged(sessionID string, age time.Duration) *models.Session {
	session := TestSession(sessionID)
	session.CreatedAt = time.Now().UTC().Add(-age)
	session.UpdatedAt = session.CreatedAt
	return session
}

// LargeCV returns a CV body of exactly n bytes with line breaks and
// multi-byte characters, to catch truncation and re-encoding.
func LargeCV(n int) string {
	const line = "Doświadczenie: projektowanie systemów rozproszonych.\n"
	var b strings.Builder
	for b.Len()+len(line) <= n {
		b.WriteString(line)
	}
	b.WriteString(strings.Repeat("X", n-b.Len()))
	return b.String()
}

// UserAgents provides common user agent strings for testing
var UserAgents = struct {
	Chrome       string
	Safari       string
	MobileChrome string
	Unknown      string
}{
	Chrome:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	Safari:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	MobileChrome: "Mozilla/5.0 (Linux; Android 13) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.144 Mobile Safari/537.36",
	Unknown:      "",
}

// IPAddresses provides test IP addresses
var IPAddresses = struct {
	Public    string
	Private   string
	Localhost string
}{
	Public:    "203.0.113.42",
	Private:   "192.168.1.100",
	Localhost: "127.0.0.1",
}

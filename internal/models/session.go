// Package models defines the domain types persisted by the session store:
// CV sessions, the email recovery index, and the reports produced by the
// cleanup and metrics jobs.
//
// All models carry JSON tags matching the public API, which is also the
// on-disk format used by the file and Redis backends.
package models

import (
	"strings"
	"time"
)

// Plan is the purchased plan tier. It decides downstream feature access in
// the optimization and export layers; the session store only records it.
type Plan string

const (
	PlanBasic   Plan = "basic"
	PlanGold    Plan = "gold"
	PlanPremium Plan = "premium"
)

// Plans lists every valid plan in display order.
var Plans = []Plan{PlanBasic, PlanGold, PlanPremium}

// ParsePlan normalizes a user-supplied plan name. Matching is
// case-insensitive and an empty value selects PlanBasic.
func ParsePlan(s string) (Plan, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PlanBasic, true
	}
	for _, p := range Plans {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// Templates are the CV rendering templates a session may select.
var Templates = []string{"simple", "modern", "executive", "creative", "tech", "luxury", "minimal"}

// Session is one user's in-flight CV optimization job, keyed by an opaque
// identifier issued by checkout.
//
// CVData and Photo are stored exactly as submitted; no backend may trim,
// re-encode or truncate them.
//
// JSON example:
//
//	{
//	  "sessionId": "cs_test_a1b2c3",
//	  "email": "jan@example.com",
//	  "cvData": "Jan Kowalski\nSenior Developer...",
//	  "plan": "premium",
//	  "template": "modern",
//	  "photo": "data:image/png;base64,iVBORw0...",
//	  "metadata": {"deviceInfo": "Chrome 120 · Windows 10 · Desktop", "language": "pl"},
//	  "createdAt": "2025-01-15T10:30:00Z",
//	  "updatedAt": "2025-01-15T10:31:12Z"
//	}
type Session struct {
	SessionID  string    `json:"sessionId"`
	Email      string    `json:"email,omitempty"`
	CVData     string    `json:"cvData"`
	JobPosting string    `json:"jobPosting,omitempty"`
	Plan       Plan      `json:"plan"`
	Template   string    `json:"template,omitempty"`
	Photo      string    `json:"photo,omitempty"`
	Metadata   Metadata  `json:"metadata"`
	CreatedAt  time.Time `json:"createdAt"` // first write
	UpdatedAt  time.Time `json:"updatedAt"` // latest write, drives expiry
}

// Metadata describes the request that produced the latest write.
type Metadata struct {
	DeviceInfo string `json:"deviceInfo,omitempty"`
	IPAddress  string `json:"ipAddress,omitempty"`
	Language   string `json:"language,omitempty"`
	Source     string `json:"source,omitempty"`
}

// SizeBytes approximates the storage footprint of the session payload.
func (s *Session) SizeBytes() int {
	return len(s.CVData) + len(s.JobPosting) + len(s.Photo)
}

// Age returns how long ago the session was last written.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.UpdatedAt)
}

// Summary strips the payload for listing endpoints.
func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		SessionID: s.SessionID,
		Plan:      s.Plan,
		Template:  s.Template,
		HasEmail:  s.Email != "",
		HasPhoto:  s.Photo != "",
		CVLength:  len(s.CVData),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// SessionSummary is a payload-free view of a session for admin listings.
type SessionSummary struct {
	SessionID string    `json:"sessionId"`
	Plan      Plan      `json:"plan"`
	Template  string    `json:"template,omitempty"`
	HasEmail  bool      `json:"hasEmail"`
	HasPhoto  bool      `json:"hasPhoto"`
	CVLength  int       `json:"cvLength"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EmailIndexEntry points a hashed email at the most recently saved session
// for that address. The plaintext email is never part of the entry.
type EmailIndexEntry struct {
	EmailHash string    `json:"emailHash"`
	SessionID string    `json:"sessionId"`
	Plan      Plan      `json:"plan"`
	CreatedAt time.Time `json:"createdAt"`
}

package models

import "time"

// Health statuses reported by MetricsSnapshot.
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

// CleanupReport summarizes one cleanup run. Errors holds per-record failures;
// a non-empty list means the run was only partially applied.
type CleanupReport struct {
	Timestamp   time.Time `json:"timestamp"`
	Cutoff      time.Time `json:"cutoff"`
	MaxAgeHours float64   `json:"maxAgeHours"`
	DryRun      bool      `json:"dryRun"`
	Backup      bool      `json:"backup"`

	Scanned    int      `json:"scanned"`
	Expired    int      `json:"expired"`
	Candidates []string `json:"candidates"`
	Deleted    int      `json:"deleted"`
	Archived   int      `json:"archived"`
	Remaining  int      `json:"remaining"`

	IndexesScanned  int `json:"indexesScanned"`
	IndexesOrphaned int `json:"indexesOrphaned"`
	IndexesDeleted  int `json:"indexesDeleted"`

	Errors []string `json:"errors"`
}

// MetricsSnapshot is a read-only health summary of the session population.
type MetricsSnapshot struct {
	Timestamp       time.Time    `json:"timestamp"`
	Sessions        SessionStats `json:"sessions"`
	EmailIndexes    IndexStats   `json:"emailIndexes"`
	Health          HealthScore  `json:"health"`
	Recommendations []string     `json:"recommendations"`
}

// SessionStats counts sessions by freshness, age bucket and plan.
type SessionStats struct {
	Total           int            `json:"total"`
	Active          int            `json:"active"`
	Expired         int            `json:"expired"`
	WithPhoto       int            `json:"withPhoto"`
	TotalBytes      int64          `json:"totalBytes"`
	AvgSessionBytes int64          `json:"avgSessionBytes"`
	ByAge           AgeBuckets     `json:"byAge"`
	ByPlan          map[string]int `json:"byPlan"`
}

// AgeBuckets are disjoint: each session lands in exactly one bucket.
type AgeBuckets struct {
	Last1Hour   int `json:"last1Hour"`
	Last6Hours  int `json:"last6Hours"`
	Last24Hours int `json:"last24Hours"`
	Last48Hours int `json:"last48Hours"`
	Older       int `json:"older"`
}

// IndexStats counts email index entries and those whose session is gone.
type IndexStats struct {
	Total    int `json:"total"`
	Valid    int `json:"valid"`
	Orphaned int `json:"orphaned"`
}

// HealthScore holds the component scores in [0,1] and the derived status.
type HealthScore struct {
	SessionScore float64 `json:"sessionScore"`
	IndexScore   float64 `json:"indexScore"`
	Score        float64 `json:"score"`
	Status       string  `json:"status"`
}

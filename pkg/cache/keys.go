// Package cache provides standardized Redis key generation functions.
// All keys follow the pattern "prefix:identifier" so that the session
// store, the email index and auxiliary data can share one Redis database
// without colliding.
package cache

import "fmt"

// Key prefixes for every kind of data the service keeps in Redis.
const (
	SessionPrefix    = "cvsession:"
	EmailIndexPrefix = "email_index:"
	CachedPrefix     = "cache:session:"
	BlacklistPrefix  = "blacklist:"
	RateLimitPrefix  = "ratelimit:"
	MetricsPrefix    = "metrics:"
	LockPrefix       = "lock:"
)

// SessionKey is the primary key of a session record in the Redis backend.
//
// Example: "cvsession:cs_test_a1b2c3"
func SessionKey(sessionID string) string {
	return SessionPrefix + sessionID
}

// SessionPattern matches every session record, for SCAN.
func SessionPattern() string {
	return SessionPrefix + "*"
}

// EmailIndexKey is keyed by the email hash, never the plaintext address.
//
// Example: "email_index:5d41402abc4b2a76"
func EmailIndexKey(emailHash string) string {
	return EmailIndexPrefix + emailHash
}

// EmailIndexPattern matches every email index entry, for SCAN.
func EmailIndexPattern() string {
	return EmailIndexPrefix + "*"
}

// CachedSessionKey is the read-through cache entry for a session whose
// primary copy lives in another backend (file, Postgres, SQLite).
//
// Example: "cache:session:sess_1700000000_abc"
func CachedSessionKey(sessionID string) string {
	return CachedPrefix + sessionID
}

// BlacklistKey marks a revoked admin token by its JTI.
func BlacklistKey(jti string) string {
	return BlacklistPrefix + jti
}

// RateLimitKey counts requests per client IP and endpoint group.
//
// Example: "ratelimit:203.0.113.42:recover"
func RateLimitKey(ip, endpoint string) string {
	return fmt.Sprintf("%s%s:%s", RateLimitPrefix, ip, endpoint)
}

// MetricsSnapshotKey holds the most recent metrics snapshot.
func MetricsSnapshotKey() string {
	return MetricsPrefix + "snapshot"
}

// CleanupLockKey serializes scheduled cleanups across replicas.
func CleanupLockKey() string {
	return LockPrefix + "cleanup"
}

package domain

import "time"

// Default digest delivery time for new users (local report time).
const (
	DefaultHour   = 9
	DefaultMinute = 0
)

// User represents a chat that receives block-hit alerts and the daily digest.
type User struct {
	ChatID       int64
	Username     string // best-effort, may be empty
	FirstName    string // best-effort, may be empty
	Hour         int    // digest hour, 0..23
	Minute       int    // digest minute, 0..59
	Active       bool   // false: no daily digest
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastActiveAt *time.Time // UTC, nullable
}

// Worker is a monitored (label, address) pair owned by one user.
type Worker struct {
	ID        int64
	ChatID    int64
	Label     string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HitState remembers the highest best share a worker was already alerted for.
type HitState struct {
	WorkerID              int64
	LastNotifiedBestShare float64
	LastHitAt             *time.Time // UTC, nullable
}

// IsHit reports whether a share meets the network difficulty.
// An unknown (non-positive) difficulty never produces a hit.
func IsHit(bestShare, difficulty float64) bool {
	return difficulty > 0 && bestShare >= difficulty
}

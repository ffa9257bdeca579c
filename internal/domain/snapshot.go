package domain

import "time"

// Snapshot is the point-in-time pool view of one worker address.
// Missing values from the pool are zero.
type Snapshot struct {
	Hashrate1m  float64
	Hashrate5m  float64
	Hashrate1hr float64
	Hashrate1d  float64
	Hashrate7d  float64
	Shares      int64
	BestShare   float64
	BestEver    float64
	LastShare   time.Time // zero if the pool never saw a share
	Authorised  time.Time // zero if unknown
}

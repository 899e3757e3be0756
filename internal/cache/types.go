package cache

import (
	"context"
	"time"
)

// Status is the state of a prefetch entry. Failed loads are removed rather
// than kept, so there is no failed status.
type Status int

const (
	// StatusLoading means a load is in progress.
	StatusLoading Status = iota

	// StatusReady means the decoded audio is available.
	StatusReady
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	default:
		return "unknown"
	}
}

// LoadFunc loads and decodes the audio for a token.
type LoadFunc func(ctx context.Context, token string) ([]byte, error)

// Stats holds prefetch cache metrics
type Stats struct {
	// Current state
	Ready   int   // Entries ready for playback
	Loading int   // Entries still loading
	Bytes   int64 // Decoded PCM held by ready entries

	// Performance metrics
	Hits     int64   // Lookups served from a ready entry
	Misses   int64   // Lookups that found nothing ready
	Loads    int64   // Loads started
	Failures int64   // Loads that failed and were evicted
	HitRate  float64 // hits / (hits + misses)

	LastLoad time.Time // Completion time of the most recent load
}

// Config holds prefetch settings.
type Config struct {
	// Concurrency bounds simultaneous loads.
	Concurrency int

	// Timeout bounds a single load.
	Timeout time.Duration
}

// DefaultConfig returns the default prefetch configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency: 4,
		Timeout:     5 * time.Second,
	}
}

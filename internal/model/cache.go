package model

import "time"

const (
	// FoundTTL is how long a positive reputation result stays fresh.
	FoundTTL = 30 * 24 * time.Hour
	// NotFoundTTL is how long a "not found" result stays fresh.
	NotFoundTTL = 7 * 24 * time.Hour
)

// CacheEntry is a cached reputation lookup. Found is false when the remote
// service did not know the hash, in which case Score is meaningless.
type CacheEntry struct {
	Found     bool
	Score     uint8
	EntryTime int64 // seconds since the Unix epoch
}

func NewFoundEntry(score uint8, now time.Time) CacheEntry {
	return CacheEntry{Found: true, Score: score, EntryTime: now.Unix()}
}

func NewNotFoundEntry(now time.Time) CacheEntry {
	return CacheEntry{EntryTime: now.Unix()}
}

// TTL returns the freshness window for this entry.
func (e CacheEntry) TTL() time.Duration {
	if e.Found {
		return FoundTTL
	}
	return NotFoundTTL
}

// Expired reports whether the entry is older than its TTL at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return now.Unix()-e.EntryTime > int64(e.TTL()/time.Second)
}

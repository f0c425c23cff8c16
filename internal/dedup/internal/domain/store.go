package domain

import (
	"time"
)

// Store maps row fingerprints to the UTC instant they were last seen and
// answers duplicate checks against a sliding time window.
//
// Store is not safe for concurrent use. The detector service serializes the
// full check-record-prune-persist sequence around it.
type Store struct {
	window  time.Duration
	entries map[string]time.Time
}

// NewStore creates an empty fingerprint store with the given sliding window.
func NewStore(window time.Duration) *Store {
	return &Store{
		window:  window,
		entries: make(map[string]time.Time),
	}
}

// Restore replaces the store contents with the given entries, typically
// loaded from disk at construction.
func (s *Store) Restore(entries map[string]time.Time) {
	s.entries = make(map[string]time.Time, len(entries))
	for hash, seen := range entries {
		s.entries[hash] = seen
	}
}

// Seen reports whether the fingerprint was recorded within the window
// relative to now. An expired entry is treated as not seen; the caller is
// expected to Record it again, refreshing its timestamp.
func (s *Store) Seen(hash string, now time.Time) bool {
	seen, ok := s.entries[hash]
	if !ok {
		return false
	}
	return now.Sub(seen) <= s.window
}

// Record stores the fingerprint with the given observation time, replacing
// any previous timestamp.
func (s *Store) Record(hash string, now time.Time) {
	s.entries[hash] = now
}

// Prune removes entries whose timestamp falls outside the window relative
// to now and returns the number of entries removed.
func (s *Store) Prune(now time.Time) int {
	removed := 0
	for hash, seen := range s.entries {
		if now.Sub(seen) > s.window {
			delete(s.entries, hash)
			removed++
		}
	}
	return removed
}

// Len returns the total number of stored fingerprints, expired or not.
func (s *Store) Len() int {
	return len(s.entries)
}

// ActiveCount returns the number of fingerprints still within the window
// relative to now. It does not prune.
func (s *Store) ActiveCount(now time.Time) int {
	active := 0
	for _, seen := range s.entries {
		if now.Sub(seen) <= s.window {
			active++
		}
	}
	return active
}

// Snapshot returns a copy of the stored entries for serialization.
func (s *Store) Snapshot() map[string]time.Time {
	out := make(map[string]time.Time, len(s.entries))
	for hash, seen := range s.entries {
		out[hash] = seen
	}
	return out
}

// Clear removes all entries.
func (s *Store) Clear() {
	s.entries = make(map[string]time.Time)
}

// Window returns the configured detection window.
func (s *Store) Window() time.Duration {
	return s.window
}

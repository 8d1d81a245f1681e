package explore

import (
	"math/rand"
)

// === SessionKey ===

// SessionKey identifies a reproducible exploration session.
// Episode i of a session always runs with seed SessionKey+i, so two sessions
// with the same key, catalog and target produce identical action sequences
// for as long as their policy statistics agree.
type SessionKey int64

// NewSessionKey creates a SessionKey from a seed value.
func NewSessionKey(seed int64) SessionKey {
	return SessionKey(seed)
}

// EpisodeSeed returns the seed for the episode at index idx.
func (k SessionKey) EpisodeSeed(idx int) int64 {
	return int64(k) + int64(idx)
}

// NewEpisodeRNG returns the random source for one episode.
//
// Every random draw made on behalf of an episode (epsilon coin, template
// choice, tie breaks, parameter sampling) must come from this source and
// nothing else. Global math/rand is never consulted.
//
// Thread-safety: NOT thread-safe. Owned by the goroutine running the episode.
func NewEpisodeRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

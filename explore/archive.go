package explore

import (
	"github.com/spaolacci/murmur3"
)

// digest is a 128-bit murmur3 hash of a signature or marker combination.
type digest [2]uint64

func digestOf(s string) digest {
	h1, h2 := murmur3.Sum128([]byte(s))
	return digest{h1, h2}
}

// NoveltyArchive remembers which state signatures and anomaly combinations
// an episode has already produced. It is scoped to a single episode and is
// not safe for concurrent use.
type NoveltyArchive struct {
	states    map[digest]struct{}
	anomalies map[digest]struct{}
}

// NewNoveltyArchive creates an empty archive.
func NewNoveltyArchive() *NoveltyArchive {
	return &NoveltyArchive{
		states:    make(map[digest]struct{}),
		anomalies: make(map[digest]struct{}),
	}
}

// Update records obs's signature and, if it has markers, its marker
// combination.
func (a *NoveltyArchive) Update(obs Observation) {
	a.states[digestOf(obs.Signature)] = struct{}{}
	if key := obs.AnomalyKey(); key != "" {
		a.anomalies[digestOf(key)] = struct{}{}
	}
}

// IsNewState reports whether obs's signature has not been recorded yet.
func (a *NoveltyArchive) IsNewState(obs Observation) bool {
	_, seen := a.states[digestOf(obs.Signature)]
	return !seen
}

// IsNewAnomaly reports whether obs carries markers whose combination has not
// been recorded yet. Observations without markers are never new anomalies.
func (a *NoveltyArchive) IsNewAnomaly(obs Observation) bool {
	key := obs.AnomalyKey()
	if key == "" {
		return false
	}
	_, seen := a.anomalies[digestOf(key)]
	return !seen
}

// States returns the number of distinct signatures recorded.
func (a *NoveltyArchive) States() int { return len(a.states) }

// Anomalies returns the number of distinct marker combinations recorded.
func (a *NoveltyArchive) Anomalies() int { return len(a.anomalies) }

// Package rng abstracts the engine's randomness behind a seedable
// source so property tests can replay exact rolls.
package rng

import (
	"math/rand"
	"sync"
)

// Source supplies the uniform primitives the engines build on.
type Source interface {
	// IntN returns a uniform int in [0, n).
	IntN(n int) int
}

// Roll returns a uniform integer in [lo, hi], both inclusive.
func Roll(s Source, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + s.IntN(hi-lo+1)
}

// Shuffle permutes n elements via Fisher-Yates using swap.
func Shuffle(s Source, n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := s.IntN(i + 1)
		swap(i, j)
	}
}

// lockedSource wraps math/rand for concurrent use.
type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

// New returns a concurrency-safe Source seeded with seed.
func New(seed int64) Source {
	return &lockedSource{r: rand.New(rand.NewSource(seed))}
}

func (s *lockedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Intn(n)
}

// Scripted is a test Source that replays a fixed sequence of IntN
// results, then falls back to zeros.
type Scripted struct {
	mu   sync.Mutex
	Vals []int
	pos  int
}

func (s *Scripted) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.Vals) {
		return 0
	}
	v := s.Vals[s.pos] % n
	s.pos++
	return v
}

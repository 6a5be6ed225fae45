// Package random provides the uniform draws used by weather, encounters,
// conditions and dice. Production code uses a seeded PCG generator; tests
// script draws with Fixed.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"
)

// Source produces uniform draws.
type Source interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
	// IntN returns a value in [0, n).
	IntN(n int) int
}

// New returns a locked PCG source seeded with seed.
func New(seed int64) Source {
	u := uint64(seed)
	return &locked{rng: rand.New(rand.NewPCG(u, u^0x9e3779b97f4a7c15))}
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

type locked struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (l *locked) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64()
}

func (l *locked) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.IntN(n)
}

// Fixed replays scripted Float64 draws in order, cycling when exhausted.
// IntN maps the next draw onto [0, n).
type Fixed struct {
	mu    sync.Mutex
	draws []float64
	next  int
}

func NewFixed(draws ...float64) *Fixed {
	if len(draws) == 0 {
		draws = []float64{0}
	}
	return &Fixed{draws: draws}
}

func (f *Fixed) Float64() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.draws[f.next%len(f.draws)]
	f.next++
	return v
}

func (f *Fixed) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	v := int(f.Float64() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

// Calls returns how many draws have been taken.
func (f *Fixed) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next
}

// Weighted picks an index from weights with a single draw. Non-positive
// weights are never picked; -1 is returned when all are.
func Weighted(src Source, weights []float64) int {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return -1
	}
	r := src.Float64() * total
	acc := 0.0
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		last = i
		if r < acc {
			return i
		}
	}
	return last
}

package sizing

import (
	"math/rand"
	"sync"
	"time"
)

// LeverageSource chooses the leverage for the next open.
type LeverageSource interface {
	Leverage() int
}

// FixedLeverage always returns the same value.
type FixedLeverage int

func (f FixedLeverage) Leverage() int { return int(f) }

// RandomLeverage draws uniformly from [Min, Max]. The zero source is seeded
// from the clock on first use, so a struct literal is usable as is.
type RandomLeverage struct {
	Min, Max int

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRandomLeverage(min, max int, seed int64) *RandomLeverage {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if max < min {
		min, max = max, min
	}
	return &RandomLeverage{Min: min, Max: max, rnd: rand.New(rand.NewSource(seed))}
}

func (r *RandomLeverage) Leverage() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rnd == nil {
		r.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	lo, hi := r.Min, r.Max
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + r.rnd.Intn(hi-lo+1)
}

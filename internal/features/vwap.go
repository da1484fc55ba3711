// Package features computes rolling indicators over a stream of candles.
package features

import (
	"container/ring"
	"math"
	"sync"
)

type sample struct {
	p, v float64
}

// VWAP is a volume-weighted average price over the last n samples, with the
// population standard deviation of their prices.
type VWAP struct {
	ring *ring.Ring
	n    int
	mu   sync.RWMutex
}

func NewVWAP(size int) *VWAP {
	if size <= 0 {
		size = 1
	}
	return &VWAP{ring: ring.New(size)}
}

func (v *VWAP) Add(price, volume float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ring.Value == nil {
		v.n++
	}
	v.ring.Value = sample{price, volume}
	v.ring = v.ring.Next()
}

// Len is the number of samples currently in the window.
func (v *VWAP) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.n
}

// Calc returns 0, 0 until the window holds volume.
func (v *VWAP) Calc() (value, std float64) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var pv, vv float64
	var count int
	var sum, sumSquared float64

	v.ring.Do(func(x any) {
		if s, ok := x.(sample); ok {
			pv += s.p * s.v
			vv += s.v
			sum += s.p
			sumSquared += s.p * s.p
			count++
		}
	})

	if vv == 0 || count == 0 {
		return 0, 0
	}

	value = pv / vv
	mean := sum / float64(count)
	variance := (sumSquared / float64(count)) - (mean * mean)
	if variance > 0 {
		std = math.Sqrt(variance)
	}
	return
}

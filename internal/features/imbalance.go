package features

import "sync"

// TickImb is the mean of the last n tick signs (+1 up, -1 down, 0 flat).
type TickImb struct {
	buf []int8
	max int
	mu  sync.RWMutex
}

func NewTickImb(n int) *TickImb { return &TickImb{max: n} }

func (t *TickImb) Add(sign int8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.max <= 0 {
		return
	}
	if len(t.buf) == t.max {
		t.buf = t.buf[1:]
	}
	t.buf = append(t.buf, sign)
}

// AddMove records the sign of prev -> cur.
func (t *TickImb) AddMove(prev, cur float64) {
	switch {
	case cur > prev:
		t.Add(1)
	case cur < prev:
		t.Add(-1)
	default:
		t.Add(0)
	}
}

func (t *TickImb) Ratio() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.buf) == 0 {
		return 0
	}
	var s int
	for _, v := range t.buf {
		s += int(v)
	}
	return float64(s) / float64(len(t.buf))
}

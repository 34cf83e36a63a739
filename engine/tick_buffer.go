package engine

import "quantumfx/types"

// tickBuffer keeps a bounded, time-ordered window of observed ticks for one
// symbol. Once capacity is reached the oldest tick is evicted on every
// append, so the window length stays constant.
type tickBuffer struct {
	max int
	buf []types.Tick
}

func newTickBuffer(max int) *tickBuffer {
	if max <= 0 {
		max = 100
	}
	return &tickBuffer{max: max, buf: make([]types.Tick, 0, max)}
}

func (b *tickBuffer) Append(t types.Tick) {
	b.buf = append(b.buf, t)
	if len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
	}
}

func (b *tickBuffer) Len() int {
	return len(b.buf)
}

func (b *tickBuffer) Last() (types.Tick, bool) {
	if len(b.buf) == 0 {
		return types.Tick{}, false
	}
	return b.buf[len(b.buf)-1], true
}

// Ticks returns a copy of the whole window, oldest first.
func (b *tickBuffer) Ticks() []types.Tick {
	out := make([]types.Tick, len(b.buf))
	copy(out, b.buf)
	return out
}

// Tail returns a copy of the most recent n ticks (or fewer).
func (b *tickBuffer) Tail(n int) []types.Tick {
	if n <= 0 {
		return nil
	}
	if n > len(b.buf) {
		n = len(b.buf)
	}
	out := make([]types.Tick, n)
	copy(out, b.buf[len(b.buf)-n:])
	return out
}

package engine

import (
	"math"

	"quantumfx/types"
)

// negligibleDelta is the magnitude below which a price delta is treated as
// noise and excluded from the entropy input.
const negligibleDelta = 1e-10

// epsGuard protects the log/division terms against zero arguments.
const epsGuard = 1e-10

// Entropy measures the disorder of a delta sequence in [0,1]. Magnitudes are
// normalized to a probability distribution and fed through Shannon entropy,
// normalized by ln(N) over the valid probabilities. Near 1.0 the moves are
// roughly uniform in magnitude; near 0 a single move dominates. An empty or
// fully degenerate input yields 0.
func Entropy(deltas []float64) float64 {
	if len(deltas) == 0 {
		return 0
	}
	sumAbs := epsGuard
	for _, d := range deltas {
		sumAbs += math.Abs(d)
	}
	var h float64
	valid := 0
	for _, d := range deltas {
		p := math.Abs(d) / sumAbs
		if p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p) {
			h -= p * math.Log(p+epsGuard)
			valid++
		}
	}
	if valid == 0 {
		return 0
	}
	h /= math.Log(float64(valid) + epsGuard)
	return clamp(h, 0, 1)
}

// FilterDeltas extracts the non-negligible deltas from a tick window,
// preserving order.
func FilterDeltas(ticks []types.Tick) []float64 {
	out := make([]float64, 0, len(ticks))
	for _, t := range ticks {
		if math.Abs(t.Delta) > negligibleDelta {
			out = append(out, t.Delta)
		}
	}
	return out
}

// Spin returns the directional imbalance of a tick window in [-1,1] together
// with a confidence in [0,1] that grows with both the imbalance and the
// sample count. Windows shorter than five ticks, or with fewer than three
// directional ticks, carry no information and yield (0,0).
func Spin(ticks []types.Tick) (spin, confidence float64) {
	if len(ticks) < 5 {
		return 0, 0
	}
	var positive, negative int
	for _, t := range ticks {
		switch {
		case t.Direction > 0:
			positive++
		case t.Direction < 0:
			negative++
		}
	}
	total := positive + negative
	if total < 3 {
		return 0, 0
	}
	n := float64(total)
	spin = float64(positive-negative) / n
	deviation := math.Abs(float64(positive-negative)) / n
	confidence = math.Min(1.0, deviation*math.Sqrt(n))
	return spin, confidence
}

// windowEntropy is the volatility variant of the entropy measure: it keeps
// every delta (zero moves contribute nothing) and normalizes by ln(window)
// rather than by the count of valid probabilities.
func windowEntropy(ticks []types.Tick, window int) float64 {
	if window < 2 || len(ticks) < window {
		return 0
	}
	tail := ticks[len(ticks)-window:]
	sumAbs := epsGuard
	for _, t := range tail {
		sumAbs += math.Abs(t.Delta)
	}
	var h float64
	for _, t := range tail {
		p := math.Abs(t.Delta) / sumAbs
		h -= p * math.Log(p+epsGuard)
	}
	return h / math.Log(float64(window))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// coveragePad extends the materialized index range a few rungs past the
// series extremes so sells spawned one rung above the highest fill (and the
// progressive trend-chase buy above that) always have a valid rung.
const coveragePad = 3

// Ladder derives the grid's rung prices from a spacing model and anchor and
// answers nearest-rung lookups. Rung prices are snapped to the tick size with
// round-half-up at tick granularity. A ladder is immutable once built.
type Ladder struct {
	spacing SpacingModel
	anchor  float64
	step    float64 // dollars per rung (fixed) or percent per rung
	tick    decimal.Decimal
	eps     float64

	minIdx int
	maxIdx int

	// rungs is the pre-materialized table for percent spacing, where the
	// index mapping is not invertible in closed form once prices are snapped
	// to ticks. rungs[i] is the price of rung index minIdx+i.
	rungs []float64
}

// NewLadder builds a ladder covering [minPrice, maxPrice].
func NewLadder(cfg Config, minPrice, maxPrice float64) (*Ladder, error) {
	if cfg.GridSize <= 0 {
		return nil, &ConfigError{Field: "grid_size", Reason: "must be > 0"}
	}
	if cfg.TickSize <= 0 {
		return nil, &ConfigError{Field: "tick_size", Reason: "must be > 0"}
	}
	if cfg.Anchor <= 0 {
		return nil, &ConfigError{Field: "anchor", Reason: "must be > 0"}
	}
	if minPrice <= 0 || maxPrice < minPrice {
		return nil, &ConfigError{Field: "bars", Reason: "bad price range for ladder"}
	}

	l := &Ladder{
		spacing: cfg.Spacing,
		step:    cfg.GridSize,
		tick:    decimal.NewFromFloat(cfg.TickSize),
	}
	l.eps = cfg.TickSize / 1000
	l.anchor = l.snap(cfg.Anchor)

	switch cfg.Spacing {
	case SpacingFixed:
		l.minIdx = int(math.Floor((minPrice-l.anchor)/l.step)) - coveragePad
		l.maxIdx = int(math.Ceil((maxPrice-l.anchor)/l.step)) + coveragePad
	case SpacingPercent:
		if err := l.materialize(minPrice, maxPrice); err != nil {
			return nil, err
		}
	default:
		return nil, &ConfigError{Field: "spacing_model", Reason: "unknown model"}
	}
	return l, nil
}

// materialize walks outward from n=0 until the table covers the run's price
// range, then snaps every rung. Percent rungs must stay strictly increasing
// after snapping; a spacing finer than the tick at the low end of the range
// collapses rungs and is rejected up front.
func (l *Ladder) materialize(minPrice, maxPrice float64) error {
	factor := 1 + l.step/100

	down := 0
	for l.anchor*math.Pow(factor, float64(down)) >= minPrice && down > -1_000_000 {
		down--
	}
	up := 0
	for l.anchor*math.Pow(factor, float64(up)) <= maxPrice && up < 1_000_000 {
		up++
	}
	l.minIdx = down - coveragePad
	l.maxIdx = up + coveragePad

	l.rungs = make([]float64, 0, l.maxIdx-l.minIdx+1)
	for n := l.minIdx; n <= l.maxIdx; n++ {
		r := l.snap(l.anchor * math.Pow(factor, float64(n)))
		if len(l.rungs) > 0 && r <= l.rungs[len(l.rungs)-1] {
			return &ConfigError{
				Field:  "grid_size",
				Reason: fmt.Sprintf("percent spacing collapses rungs at tick granularity near %.4f", r),
			}
		}
		l.rungs = append(l.rungs, r)
	}
	return nil
}

func (l *Ladder) snap(v float64) float64 {
	return decimal.NewFromFloat(v).DivRound(l.tick, 0).Mul(l.tick).InexactFloat64()
}

// MinIndex and MaxIndex bound the rung indices covered by this ladder.
func (l *Ladder) MinIndex() int { return l.minIdx }
func (l *Ladder) MaxIndex() int { return l.maxIdx }

// RungAt returns the price of rung n, or false when n is outside coverage.
func (l *Ladder) RungAt(n int) (float64, bool) {
	if n < l.minIdx || n > l.maxIdx {
		return 0, false
	}
	if l.spacing == SpacingPercent {
		return l.rungs[n-l.minIdx], true
	}
	return l.snap(l.anchor + float64(n)*l.step), true
}

// BelowOrAt returns the highest rung with price <= p.
func (l *Ladder) BelowOrAt(p float64) (int, float64, bool) {
	if l.spacing == SpacingPercent {
		i := sort.SearchFloat64s(l.rungs, p+l.eps) // first rung strictly above p
		if i == 0 {
			return 0, 0, false
		}
		return l.minIdx + i - 1, l.rungs[i-1], true
	}
	n0 := int(math.Floor((p - l.anchor) / l.step))
	if n0 > l.maxIdx {
		n0 = l.maxIdx
	}
	// snapping slack can shift the answer by one either way
	for n := n0 + 1; n >= n0-1; n-- {
		if n < l.minIdx || n > l.maxIdx {
			continue
		}
		if r, ok := l.RungAt(n); ok && r <= p+l.eps {
			return n, r, true
		}
	}
	return 0, 0, false
}

// AboveOrAt returns the lowest rung with price >= p.
func (l *Ladder) AboveOrAt(p float64) (int, float64, bool) {
	if l.spacing == SpacingPercent {
		i := sort.SearchFloat64s(l.rungs, p-l.eps)
		if i == len(l.rungs) {
			return 0, 0, false
		}
		return l.minIdx + i, l.rungs[i], true
	}
	n0 := int(math.Ceil((p - l.anchor) / l.step))
	if n0 < l.minIdx {
		n0 = l.minIdx
	}
	for n := n0 - 1; n <= n0+1; n++ {
		if n < l.minIdx || n > l.maxIdx {
			continue
		}
		if r, ok := l.RungAt(n); ok && r >= p-l.eps {
			return n, r, true
		}
	}
	return 0, 0, false
}

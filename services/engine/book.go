package engine

import (
	"fmt"
	"sort"
	"strings"
)

// Side of a resting limit order.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideSell {
		return "sell"
	}
	return "buy"
}

// RestingOrder is an unfilled limit order waiting at a rung. Orders are
// created and destroyed only by the matching engine.
type RestingOrder struct {
	Side  Side
	Rung  int
	Price float64

	// Delayed marks a buy that is inactive until the path trades at
	// ActivationRung (buy-the-dip re-buy suppression).
	Delayed        bool
	ActivationRung int

	// PairRung points at the sibling of a progressive two-buy pair; the
	// sibling is cancelled when this order fills.
	PairRung int
	HasPair  bool
}

// OpenLeg is a filled buy awaiting its pairing sell one rung above.
type OpenLeg struct {
	Rung         int
	BuyTimestamp int64
	BuyPrice     float64
	BuyQty       float64
}

// Book holds all per-run mutable order state, indexed by rung so lookups in
// the hot loop never scan the whole order set. Each run owns its Book; there
// is no shared state across runs.
type Book struct {
	buys  map[int]*RestingOrder
	sells map[int]*RestingOrder
	legs  map[int]*OpenLeg

	// delayed maps activation rung -> delayed buy rung.
	delayed map[int]int

	// topSeeded is the highest-seeded-buy watermark for run-up coverage.
	topSeeded    int
	hasTopSeeded bool

	runHigh float64
}

func newBook() *Book {
	return &Book{
		buys:    make(map[int]*RestingOrder),
		sells:   make(map[int]*RestingOrder),
		legs:    make(map[int]*OpenLeg),
		delayed: make(map[int]int),
	}
}

func (b *Book) side(s Side) map[int]*RestingOrder {
	if s == SideSell {
		return b.sells
	}
	return b.buys
}

// place inserts a resting order. At most one order may rest per (side, rung);
// a duplicate is an error condition, not a silent overwrite.
func (b *Book) place(o *RestingOrder) error {
	m := b.side(o.Side)
	if _, exists := m[o.Rung]; exists {
		return fmt.Errorf("duplicate resting %s order at rung %d", o.Side, o.Rung)
	}
	m[o.Rung] = o
	if o.Delayed {
		b.delayed[o.ActivationRung] = o.Rung
	}
	if o.Side == SideBuy {
		b.noteSeeded(o.Rung)
	}
	return nil
}

func (b *Book) remove(s Side, rung int) {
	m := b.side(s)
	if o, ok := m[rung]; ok && o.Delayed {
		delete(b.delayed, o.ActivationRung)
	}
	delete(m, rung)
}

func (b *Book) order(s Side, rung int) (*RestingOrder, bool) {
	o, ok := b.side(s)[rung]
	return o, ok
}

func (b *Book) has(s Side, rung int) bool {
	_, ok := b.side(s)[rung]
	return ok
}

// activate clears the delayed flag on the buy whose activation rung was
// touched by the path.
func (b *Book) activate(activationRung int) {
	rung, ok := b.delayed[activationRung]
	if !ok {
		return
	}
	delete(b.delayed, activationRung)
	if o, ok := b.buys[rung]; ok {
		o.Delayed = false
	}
}

func (b *Book) noteSeeded(rung int) {
	if !b.hasTopSeeded || rung > b.topSeeded {
		b.topSeeded = rung
		b.hasTopSeeded = true
	}
}

// dump renders the full book for invariant-violation diagnostics.
func (b *Book) dump() string {
	var sb strings.Builder
	writeRungs := func(name string, m map[int]*RestingOrder) {
		keys := make([]int, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		fmt.Fprintf(&sb, "%s:", name)
		for _, k := range keys {
			o := m[k]
			if o.Delayed {
				fmt.Fprintf(&sb, " %d@%.4f(delayed until %d)", k, o.Price, o.ActivationRung)
			} else {
				fmt.Fprintf(&sb, " %d@%.4f", k, o.Price)
			}
		}
		sb.WriteByte('\n')
	}
	writeRungs("buys", b.buys)
	writeRungs("sells", b.sells)

	legKeys := make([]int, 0, len(b.legs))
	for k := range b.legs {
		legKeys = append(legKeys, k)
	}
	sort.Ints(legKeys)
	sb.WriteString("legs:")
	for _, k := range legKeys {
		l := b.legs[k]
		fmt.Fprintf(&sb, " %d qty=%.6f @%.4f", k, l.BuyQty, l.BuyPrice)
	}
	sb.WriteByte('\n')
	if b.hasTopSeeded {
		fmt.Fprintf(&sb, "topSeeded=%d runHigh=%.4f\n", b.topSeeded, b.runHigh)
	}
	return sb.String()
}

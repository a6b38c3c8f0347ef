package engine

import "math"

// matcher advances the order book against one bar at a time. Everything it
// owns is per-run; nothing is shared across runs.
type matcher struct {
	cfg     Config
	bars    []Bar
	ladder  *Ladder
	book    *Book
	filter  *smaFilter
	variant gridVariant
	acc     *accumulator

	// seedFloor is the lowest rung index worth seeding, one rung inside the
	// series low.
	seedFloor int
}

func (m *matcher) invariant(barIdx int, reason string) error {
	return &InvariantViolation{
		BarIndex:  barIdx,
		Timestamp: m.bars[barIdx].Timestamp,
		Reason:    reason,
		State:     m.book.dump(),
	}
}

// place inserts a resting order, promoting a duplicate to an invariant
// failure with full book state.
func (m *matcher) place(barIdx int, o *RestingOrder) error {
	if err := m.book.place(o); err != nil {
		return m.invariant(barIdx, err.Error())
	}
	return nil
}

func (m *matcher) processBar(i int) error {
	bar := m.bars[i]
	if bar.High > m.book.runHigh {
		m.book.runHigh = bar.High
	}
	for _, seg := range bar.pathSegments() {
		if err := m.sweepSegment(i, bar, seg); err != nil {
			return err
		}
	}
	// run-up coverage and any other per-bar variant work happens after the
	// sweep, so orders seeded here are first touchable on the next bar
	if err := m.variant.eachBar(m, i); err != nil {
		return err
	}
	m.acc.markBar(bar.Timestamp, bar.Close)
	return nil
}

// sweepSegment fills every resting order whose rung lies inside one monotone
// path segment, in price order from the segment's start toward its end.
// Rungs are visited by index, so the cost is proportional to the rungs the
// segment spans, never to the total number of resting orders.
func (m *matcher) sweepSegment(barIdx int, bar Bar, seg segment) error {
	lo := math.Min(seg.From, seg.To)
	hi := math.Max(seg.From, seg.To)
	ascending := seg.To >= seg.From

	startIdx, _, okLo := m.ladder.AboveOrAt(lo)
	endIdx, _, okHi := m.ladder.BelowOrAt(hi)
	if !okLo || !okHi || startIdx > endIdx {
		return nil
	}

	visit := func(n int) error {
		// a delayed buy wakes up the moment the path trades its
		// activation rung; on a down segment that happens before the buy
		// rung itself is reached
		m.book.activate(n)

		// at the same price level a sell closes its leg before a buy opens
		// a new one
		if o, ok := m.book.order(SideSell, n); ok {
			if err := m.fillSell(barIdx, bar, o); err != nil {
				return err
			}
		}
		if o, ok := m.book.order(SideBuy, n); ok && !o.Delayed {
			if err := m.fillBuy(barIdx, bar, o); err != nil {
				return err
			}
		}
		return nil
	}

	if ascending {
		for n := startIdx; n <= endIdx; n++ {
			if err := visit(n); err != nil {
				return err
			}
		}
		return nil
	}
	for n := endIdx; n >= startIdx; n-- {
		if err := visit(n); err != nil {
			return err
		}
	}
	return nil
}

func (m *matcher) fillBuy(barIdx int, bar Bar, o *RestingOrder) error {
	price := o.Price

	// a rejected buy is skipped, not cancelled; the order rests until the
	// filter passes on a later touch
	if m.filter != nil && !m.filter.Allows(barIdx, price) {
		m.acc.filterRejections++
		return nil
	}

	qty := m.cfg.TradeValue / price
	if !m.cfg.FractionalShares {
		qty = math.Floor(qty)
		if qty <= 0 {
			return nil
		}
	}
	cost := qty * price

	if cost > m.acc.cash {
		if m.cfg.Funding == FundingStrict {
			m.acc.fundingRejections++
			return nil
		}
		// autofund/margin: log a capital contribution instead of blocking
		for cost > m.acc.cash {
			m.acc.deposit(m.cfg.TradeValue)
		}
	}

	if _, exists := m.book.legs[o.Rung]; exists {
		return m.invariant(barIdx, "buy fill at rung with open leg")
	}

	m.book.remove(SideBuy, o.Rung)
	m.acc.applyBuy(price, qty)
	m.book.legs[o.Rung] = &OpenLeg{
		Rung:         o.Rung,
		BuyTimestamp: bar.Timestamp,
		BuyPrice:     price,
		BuyQty:       qty,
	}
	return m.variant.afterBuyFill(m, barIdx, o)
}

func (m *matcher) fillSell(barIdx int, bar Bar, o *RestingOrder) error {
	leg, ok := m.book.legs[o.Rung-1]
	if !ok {
		return m.invariant(barIdx, "sell fill without paired open leg one rung below")
	}
	if o.Price <= leg.BuyPrice {
		return m.invariant(barIdx, "sell price not above paired buy price")
	}

	sellQty := SellQuantity(leg.BuyPrice, o.Price, leg.BuyQty, m.cfg.Retention)
	if !m.cfg.FractionalShares {
		sellQty = math.Floor(sellQty)
	}
	if leg.BuyQty-sellQty < 0 {
		return m.invariant(barIdx, "negative retained quantity")
	}

	m.book.remove(SideSell, o.Rung)
	delete(m.book.legs, o.Rung-1)
	m.acc.applySell(leg, bar.Timestamp, o.Price, sellQty)
	return m.variant.afterSellFill(m, barIdx, o)
}

package engine

// gridVariant is the post-fill order-creation policy that differentiates the
// three grid types. The matching loop itself is shared; variants only decide
// which orders appear after a fill and what runs once per bar.
type gridVariant interface {
	seed(m *matcher) error
	afterBuyFill(m *matcher, barIdx int, o *RestingOrder) error
	afterSellFill(m *matcher, barIdx int, o *RestingOrder) error
	eachBar(m *matcher, barIdx int) error
}

func variantFor(g GridType) gridVariant {
	switch g {
	case GridBuyTheDip:
		return &buyTheDipVariant{}
	case GridProgressive:
		return &progressiveVariant{}
	default:
		return &pullbackVariant{}
	}
}

// seedBuysBelow rests a buy on every rung strictly below the first bar's
// open, down to the lowest rung the series will reach.
func seedBuysBelow(m *matcher) error {
	open := m.bars[0].Open
	n, price, ok := m.ladder.BelowOrAt(open)
	if !ok {
		return nil
	}
	if price >= open-m.ladder.eps {
		n--
	}
	for ; n >= m.seedFloor; n-- {
		p, ok := m.ladder.RungAt(n)
		if !ok {
			break
		}
		if err := m.place(0, &RestingOrder{Side: SideBuy, Rung: n, Price: p}); err != nil {
			return err
		}
	}
	return nil
}

// placeSellAbove rests the pairing sell one rung above a filled buy.
func placeSellAbove(m *matcher, barIdx, buyRung int) error {
	p, ok := m.ladder.RungAt(buyRung + 1)
	if !ok {
		return m.invariant(barIdx, "sell rung above ladder coverage")
	}
	return m.place(barIdx, &RestingOrder{Side: SideSell, Rung: buyRung + 1, Price: p})
}

// pullbackVariant re-arms the rung a sell just vacated: buy below every sell
// fill, sell above every buy fill.
type pullbackVariant struct{}

func (v *pullbackVariant) seed(m *matcher) error { return seedBuysBelow(m) }

func (v *pullbackVariant) afterBuyFill(m *matcher, barIdx int, o *RestingOrder) error {
	return placeSellAbove(m, barIdx, o.Rung)
}

func (v *pullbackVariant) afterSellFill(m *matcher, barIdx int, o *RestingOrder) error {
	n := o.Rung - 1
	if m.book.has(SideBuy, n) {
		return nil
	}
	p, ok := m.ladder.RungAt(n)
	if !ok {
		return nil
	}
	return m.place(barIdx, &RestingOrder{Side: SideBuy, Rung: n, Price: p})
}

func (v *pullbackVariant) eachBar(*matcher, int) error { return nil }

// buyTheDipVariant extends pullback with two refinements: re-buys below a
// sell stay inactive until price trades one rung above the sell (no
// immediate re-buy at the level the sell just vacated), and fresh buy rungs
// are seeded upward whenever the running high pulls two or more rung-steps
// ahead of the highest seeded buy.
type buyTheDipVariant struct{}

func (v *buyTheDipVariant) seed(m *matcher) error {
	if err := seedBuysBelow(m); err != nil {
		return err
	}
	// in a series that never trades below its first open no buys seed at all;
	// start the watermark at the rung under the open so the run-up check in
	// eachBar still has a reference level
	if !m.book.hasTopSeeded {
		if n, _, ok := m.ladder.BelowOrAt(m.bars[0].Open); ok {
			m.book.noteSeeded(n)
		}
	}
	return nil
}

func (v *buyTheDipVariant) afterBuyFill(m *matcher, barIdx int, o *RestingOrder) error {
	return placeSellAbove(m, barIdx, o.Rung)
}

func (v *buyTheDipVariant) afterSellFill(m *matcher, barIdx int, o *RestingOrder) error {
	n := o.Rung - 1
	if m.book.has(SideBuy, n) {
		return nil
	}
	p, ok := m.ladder.RungAt(n)
	if !ok {
		return nil
	}
	return m.place(barIdx, &RestingOrder{
		Side:           SideBuy,
		Rung:           n,
		Price:          p,
		Delayed:        true,
		ActivationRung: o.Rung + 1,
	})
}

// eachBar is the ladder-extension check: it runs once per bar regardless of
// fills and closes the gap between the highest seeded buy and the running
// high one rung at a time.
func (v *buyTheDipVariant) eachBar(m *matcher, barIdx int) error {
	if !m.book.hasTopSeeded {
		return nil
	}
	for {
		gate, ok := m.ladder.RungAt(m.book.topSeeded + 2)
		if !ok || m.book.runHigh < gate {
			return nil
		}
		next := m.book.topSeeded + 1
		// each insertion is subject to the funding rule
		if m.cfg.Funding == FundingStrict && m.acc.cash < m.cfg.TradeValue {
			return nil
		}
		if m.book.has(SideBuy, next) {
			m.book.noteSeeded(next)
			continue
		}
		if _, open := m.book.legs[next]; open {
			m.book.noteSeeded(next)
			continue
		}
		p, ok := m.ladder.RungAt(next)
		if !ok {
			return nil
		}
		if err := m.place(barIdx, &RestingOrder{Side: SideBuy, Rung: next, Price: p}); err != nil {
			return err
		}
	}
}

// progressiveVariant is the ratchet: each sell spawns a trend-chase buy one
// rung above and a dip-catch buy one rung below; whichever fills first
// cancels its sibling, so exactly one sell is active at any time.
type progressiveVariant struct{}

func (v *progressiveVariant) seed(m *matcher) error {
	n, p, ok := m.ladder.BelowOrAt(m.bars[0].Open)
	if !ok {
		return nil
	}
	return m.place(0, &RestingOrder{Side: SideBuy, Rung: n, Price: p})
}

func (v *progressiveVariant) afterBuyFill(m *matcher, barIdx int, o *RestingOrder) error {
	if o.HasPair {
		m.book.remove(SideBuy, o.PairRung)
	}
	if len(m.book.sells) != 0 {
		return m.invariant(barIdx, "progressive grid with more than one active sell")
	}
	return placeSellAbove(m, barIdx, o.Rung)
}

func (v *progressiveVariant) afterSellFill(m *matcher, barIdx int, o *RestingOrder) error {
	up, down := o.Rung+1, o.Rung-1
	if p, ok := m.ladder.RungAt(up); ok && !m.book.has(SideBuy, up) {
		if err := m.place(barIdx, &RestingOrder{
			Side: SideBuy, Rung: up, Price: p,
			PairRung: down, HasPair: true,
		}); err != nil {
			return err
		}
	}
	if p, ok := m.ladder.RungAt(down); ok && !m.book.has(SideBuy, down) {
		if err := m.place(barIdx, &RestingOrder{
			Side: SideBuy, Rung: down, Price: p,
			PairRung: up, HasPair: true,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (v *progressiveVariant) eachBar(*matcher, int) error { return nil }

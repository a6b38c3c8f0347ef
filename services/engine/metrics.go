package engine

import "math"

const msPerYear = 365.25 * 24 * 60 * 60 * 1000

// accumulator folds fill events and per-bar mark-to-market equity into the
// running statistics that become the Report. It is mutated once per bar and
// once per fill, and owned by exactly one run.
type accumulator struct {
	initialCash float64
	cash        float64
	shares      float64
	contributed float64

	peakEquity float64
	hasPeak    bool
	maxDD      float64
	maxDDPct   float64

	// netFlow is cumulative sell proceeds minus buy costs; its minimum is
	// the bankroll a strict-funding run would have needed.
	netFlow    float64
	minNetFlow float64

	sumROI      float64
	cumRetained float64

	fundingRejections int
	filterRejections  int

	equity []EquityPoint
	trades []TradeRecord
}

func newAccumulator(initialCash float64) *accumulator {
	return &accumulator{initialCash: initialCash, cash: initialCash}
}

// deposit records an autofund/margin capital contribution.
func (a *accumulator) deposit(amount float64) {
	a.cash += amount
	a.contributed += amount
}

func (a *accumulator) applyBuy(price, qty float64) {
	cost := qty * price
	a.cash -= cost
	a.shares += qty
	a.netFlow -= cost
	if a.netFlow < a.minNetFlow {
		a.minNetFlow = a.netFlow
	}
}

func (a *accumulator) applySell(leg *OpenLeg, sellTs int64, sellPrice, sellQty float64) {
	proceeds := sellQty * sellPrice
	a.cash += proceeds
	a.shares -= sellQty
	a.netFlow += proceeds

	retained := leg.BuyQty - sellQty
	a.cumRetained += retained

	cost := leg.BuyQty * leg.BuyPrice
	profit := proceeds - cost
	roi := 0.0
	if cost > 0 {
		roi = profit / cost * 100
	}
	a.sumROI += roi

	a.trades = append(a.trades, TradeRecord{
		BuyTimestamp:          leg.BuyTimestamp,
		BuyPrice:              leg.BuyPrice,
		BuyQty:                leg.BuyQty,
		SellTimestamp:         sellTs,
		SellPrice:             sellPrice,
		SellQty:               sellQty,
		QtyRetained:           retained,
		CumulativeQtyRetained: a.cumRetained,
		RealizedProfit:        profit,
		ROIPct:                roi,
	})
}

// markBar samples equity = cash + shares × close and advances the monotone
// peak/drawdown pair. A trough is never revised upward except by a new peak.
func (a *accumulator) markBar(ts int64, close float64) {
	eq := a.cash + a.shares*close
	a.equity = append(a.equity, EquityPoint{Timestamp: ts, Equity: eq})

	if !a.hasPeak || eq > a.peakEquity {
		a.peakEquity = eq
		a.hasPeak = true
		return
	}
	dd := a.peakEquity - eq
	if dd > a.maxDD {
		a.maxDD = dd
		if a.peakEquity > 0 {
			a.maxDDPct = dd / a.peakEquity * 100
		}
	}
}

func (a *accumulator) report(cfg Config) *Report {
	s := Summary{
		TotalTrades:        len(a.trades),
		FinalCash:          a.cash,
		FinalShares:        a.shares,
		RetainedShares:     a.cumRetained,
		MaxDrawdown:        a.maxDD,
		MaxDrawdownPct:     a.maxDDPct,
		CapitalContributed: a.contributed,
		FundingRejections:  a.fundingRejections,
		FilterRejections:   a.filterRejections,
		BarsProcessed:      len(a.equity),
	}
	for _, t := range a.trades {
		s.NetRealizedProfit += t.RealizedProfit
	}
	if len(a.trades) > 0 {
		s.AverageROIPct = a.sumROI / float64(len(a.trades))
	}
	if len(a.equity) > 0 {
		s.FinalEquity = a.equity[len(a.equity)-1].Equity
	}
	if a.minNetFlow < 0 {
		s.RequiredCapital = -a.minNetFlow
	}
	s.CAGRPct = a.cagr(s)

	return &Report{
		Config:  cfg,
		Trades:  a.trades,
		Equity:  a.equity,
		Summary: s,
	}
}

// cagr annualizes the run's total return against peak deployed capital. Runs
// that never deployed capital, or spanned no time, report zero.
func (a *accumulator) cagr(s Summary) float64 {
	base := s.RequiredCapital
	if base <= 0 || len(a.equity) < 2 {
		return 0
	}
	years := float64(a.equity[len(a.equity)-1].Timestamp-a.equity[0].Timestamp) / msPerYear
	if years <= 0 {
		return 0
	}
	totalReturn := s.FinalEquity - a.initialCash - a.contributed
	growth := (base + totalReturn) / base
	if growth <= 0 {
		return -100
	}
	return (math.Pow(growth, 1/years) - 1) * 100
}

package engine

import (
	"context"
	"errors"
	"testing"
)

func mustExecute(t *testing.T, cfg Config, bars []Bar) *Report {
	t.Helper()
	rep, err := Execute(context.Background(), cfg, bars)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return rep
}

func TestPullbackRoundTrip(t *testing.T) {
	bars := flatBars(100, 95, 90, 95, 100)
	rep := mustExecute(t, baseConfig(), bars)

	if got := rep.Summary.TotalTrades; got != 2 {
		t.Fatalf("trades = %d want 2", got)
	}
	if !approx(rep.Summary.FinalShares, 0, 1e-9) {
		t.Fatalf("final shares = %v want 0", rep.Summary.FinalShares)
	}

	// first trade closes the 90 leg at 95, second the 95 leg at 100
	t1, t2 := rep.Trades[0], rep.Trades[1]
	if t1.BuyPrice != 90 || t1.SellPrice != 95 {
		t.Fatalf("trade 1 = %v/%v want 90/95", t1.BuyPrice, t1.SellPrice)
	}
	if t2.BuyPrice != 95 || t2.SellPrice != 100 {
		t.Fatalf("trade 2 = %v/%v want 95/100", t2.BuyPrice, t2.SellPrice)
	}

	wantProfit := 1000.0/90*5 + 1000.0/95*5
	if !approx(rep.Summary.NetRealizedProfit, wantProfit, 1e-9) {
		t.Fatalf("net profit = %v want %v", rep.Summary.NetRealizedProfit, wantProfit)
	}
	if !approx(rep.Summary.FinalCash, 10_000+wantProfit, 1e-9) {
		t.Fatalf("final cash = %v want %v", rep.Summary.FinalCash, 10_000+wantProfit)
	}
	// two legs were open at once, never more
	if rep.Summary.RequiredCapital != 2000 {
		t.Fatalf("required capital = %v want 2000", rep.Summary.RequiredCapital)
	}
}

func TestPullbackRetention(t *testing.T) {
	cfg := baseConfig()
	cfg.Retention = RetainProfit
	// anchored at 95, the only seeded buy sits at 90; the final bar touches
	// 95 with nothing else resting there
	bars := flatBars(95, 90, 95)
	rep := mustExecute(t, cfg, bars)

	if rep.Summary.TotalTrades != 1 {
		t.Fatalf("trades = %d want 1", rep.Summary.TotalTrades)
	}
	tr := rep.Trades[0]
	buyQty := 1000.0 / 90
	if !approx(tr.SellQty, buyQty*90/95, 1e-9) {
		t.Fatalf("sell qty = %v want %v", tr.SellQty, buyQty*90/95)
	}
	if !approx(tr.QtyRetained, 0.585, 0.001) {
		t.Fatalf("retained = %v want ~0.585", tr.QtyRetained)
	}
	// the retained sliver stays in the position and in the cumulative total
	if !approx(rep.Summary.RetainedShares, tr.QtyRetained, 1e-12) {
		t.Fatalf("retained shares = %v want %v", rep.Summary.RetainedShares, tr.QtyRetained)
	}
	if !approx(rep.Summary.FinalShares, tr.QtyRetained, 1e-9) {
		t.Fatalf("final shares = %v want %v", rep.Summary.FinalShares, tr.QtyRetained)
	}
	// proceeds exactly recover the cost basis, so realized profit is zero
	if !approx(tr.RealizedProfit, 0, 1e-9) {
		t.Fatalf("realized profit = %v want 0", tr.RealizedProfit)
	}
}

func TestIntrabarPathOrdering(t *testing.T) {
	// the third bar sweeps down through 90 first (up bar: open, low, high,
	// close), fills the resting buy, then takes out both sells on the way up
	bars := flatBars(100, 95)
	ts := bars[1].Timestamp + 60_000
	bars = append(bars, Bar{Timestamp: ts, Open: 98, High: 101, Low: 89, Close: 100})

	rep := mustExecute(t, baseConfig(), bars)

	if rep.Summary.TotalTrades != 2 {
		t.Fatalf("trades = %d want 2", rep.Summary.TotalTrades)
	}
	t1, t2 := rep.Trades[0], rep.Trades[1]
	if t1.SellTimestamp != ts || t2.SellTimestamp != ts {
		t.Fatal("both sells should fill within the final bar")
	}
	// ascending leg fills the 95 sell before the 100 sell
	if t1.SellPrice != 95 || t2.SellPrice != 100 {
		t.Fatalf("sell order = %v, %v want 95, 100", t1.SellPrice, t2.SellPrice)
	}
	if t1.BuyTimestamp != ts {
		t.Fatal("the 90 buy should fill on the same bar's opening leg")
	}
	if !approx(rep.Summary.FinalShares, 0, 1e-9) {
		t.Fatalf("final shares = %v want 0", rep.Summary.FinalShares)
	}
}

func TestBuyTheDipSuppressesImmediateRebuy(t *testing.T) {
	cfg := baseConfig()
	cfg.GridType = GridBuyTheDip

	bars := flatBars(100, 95, 100, 95)
	ts := bars[3].Timestamp + 60_000
	// the run-up bar trades the activation rung one above the previous sell
	bars = append(bars,
		Bar{Timestamp: ts, Open: 100, High: 105, Low: 100, Close: 100},
		Bar{Timestamp: ts + 60_000, Open: 95, High: 95, Low: 95, Close: 95},
	)

	rep := mustExecute(t, cfg, bars)

	// the second touch of 95 (bar 3) must not fill: the re-buy is dormant
	// until 105 trades, so only the final bar re-opens the position
	if rep.Summary.TotalTrades != 1 {
		t.Fatalf("trades = %d want 1", rep.Summary.TotalTrades)
	}
	eq := rep.Equity
	if eq[2].Equity != eq[3].Equity {
		t.Fatalf("equity moved across the suppressed touch: %v -> %v", eq[2].Equity, eq[3].Equity)
	}
	if !approx(rep.Summary.FinalShares, 1000.0/95, 1e-9) {
		t.Fatalf("final shares = %v want %v", rep.Summary.FinalShares, 1000.0/95)
	}
}

func TestPullbackRebuysImmediately(t *testing.T) {
	// same tape as the suppression test; the pullback grid re-buys the second
	// touch of 95 right away and rides the run-up into a second trade
	bars := flatBars(100, 95, 100, 95)
	ts := bars[3].Timestamp + 60_000
	bars = append(bars,
		Bar{Timestamp: ts, Open: 100, High: 105, Low: 100, Close: 100},
		Bar{Timestamp: ts + 60_000, Open: 95, High: 95, Low: 95, Close: 95},
	)

	rep := mustExecute(t, baseConfig(), bars)
	if rep.Summary.TotalTrades != 2 {
		t.Fatalf("trades = %d want 2", rep.Summary.TotalTrades)
	}
	if !approx(rep.Summary.FinalShares, 1000.0/95, 1e-9) {
		t.Fatalf("final shares = %v want %v", rep.Summary.FinalShares, 1000.0/95)
	}
}

func TestBuyTheDipRunUpSeeding(t *testing.T) {
	cfg := baseConfig()
	cfg.GridType = GridBuyTheDip

	// the series never trades below its first open, so no buys seed at start;
	// the run-up to 112 must seed a fresh buy at 105 which the dip then fills
	bars := flatBars(100, 112, 105, 110)
	rep := mustExecute(t, cfg, bars)

	if rep.Summary.TotalTrades != 1 {
		t.Fatalf("trades = %d want 1", rep.Summary.TotalTrades)
	}
	tr := rep.Trades[0]
	if tr.BuyPrice != 105 || tr.SellPrice != 110 {
		t.Fatalf("trade = %v/%v want 105/110", tr.BuyPrice, tr.SellPrice)
	}
	if !approx(rep.Summary.FinalShares, 0, 1e-9) {
		t.Fatalf("final shares = %v want 0", rep.Summary.FinalShares)
	}
	wantCash := 10_000 + 1000.0/105*5
	if !approx(rep.Summary.FinalCash, wantCash, 1e-9) {
		t.Fatalf("final cash = %v want %v", rep.Summary.FinalCash, wantCash)
	}
}

func TestBuyTheDipRunUpSeedingRespectsStrictFunding(t *testing.T) {
	cfg := baseConfig()
	cfg.GridType = GridBuyTheDip
	cfg.InitialCash = 500 // below one trade's value

	bars := flatBars(100, 112, 105, 110)
	rep := mustExecute(t, cfg, bars)

	// no rung is seeded on the way up, so nothing ever fills
	if rep.Summary.TotalTrades != 0 || rep.Summary.FinalShares != 0 {
		t.Fatalf("trades/shares = %d/%v want 0/0",
			rep.Summary.TotalTrades, rep.Summary.FinalShares)
	}
	if rep.Summary.FinalCash != 500 {
		t.Fatalf("final cash = %v want 500", rep.Summary.FinalCash)
	}
}

func TestProgressiveRatchet(t *testing.T) {
	cfg := baseConfig()
	cfg.GridType = GridProgressive

	bars := flatBars(100, 95, 105, 100)
	ts := bars[3].Timestamp + 60_000
	bars = append(bars, Bar{Timestamp: ts, Open: 100, High: 110, Low: 100, Close: 110})

	rep := mustExecute(t, cfg, bars)

	// trade 1: the seed buy at 100 closes at 105; trade 2: the dip-catch buy
	// at 100 closes at 105 on the final run-up, whose trend-chase sibling at
	// 110 then fills on the same ascending leg
	if rep.Summary.TotalTrades != 2 {
		t.Fatalf("trades = %d want 2", rep.Summary.TotalTrades)
	}
	for i, tr := range rep.Trades {
		if tr.BuyPrice != 100 || tr.SellPrice != 105 {
			t.Fatalf("trade %d = %v/%v want 100/105", i, tr.BuyPrice, tr.SellPrice)
		}
	}
	if !approx(rep.Summary.FinalShares, 1000.0/110, 1e-9) {
		t.Fatalf("final shares = %v want %v", rep.Summary.FinalShares, 1000.0/110)
	}
	wantCash := 10_000 + 2*(10.0*5) - 1000 // two 50-profit trades, one open leg
	if !approx(rep.Summary.FinalCash, wantCash, 1e-9) {
		t.Fatalf("final cash = %v want %v", rep.Summary.FinalCash, wantCash)
	}
}

func TestStrictFundingRejectsBuy(t *testing.T) {
	cfg := baseConfig()
	cfg.InitialCash = 1500

	rep := mustExecute(t, cfg, flatBars(100, 95, 90))

	if rep.Summary.FundingRejections == 0 {
		t.Fatal("expected funding rejections")
	}
	if rep.Summary.TotalTrades != 0 {
		t.Fatalf("trades = %d want 0", rep.Summary.TotalTrades)
	}
	// only the 95 buy fills; the 90 buy is rejected but keeps resting
	if !approx(rep.Summary.FinalShares, 1000.0/95, 1e-9) {
		t.Fatalf("final shares = %v want %v", rep.Summary.FinalShares, 1000.0/95)
	}
	if rep.Summary.CapitalContributed != 0 {
		t.Fatalf("contributed = %v want 0", rep.Summary.CapitalContributed)
	}
}

func TestAutofundContributesCapital(t *testing.T) {
	cfg := baseConfig()
	cfg.InitialCash = 1500
	cfg.Funding = FundingAutofund

	rep := mustExecute(t, cfg, flatBars(100, 95, 90))

	if rep.Summary.FundingRejections != 0 {
		t.Fatalf("funding rejections = %d want 0", rep.Summary.FundingRejections)
	}
	if rep.Summary.CapitalContributed != 1000 {
		t.Fatalf("contributed = %v want 1000", rep.Summary.CapitalContributed)
	}
	wantShares := 1000.0/95 + 1000.0/90
	if !approx(rep.Summary.FinalShares, wantShares, 1e-9) {
		t.Fatalf("final shares = %v want %v", rep.Summary.FinalShares, wantShares)
	}
	if rep.Summary.RequiredCapital != 2000 {
		t.Fatalf("required capital = %v want 2000", rep.Summary.RequiredCapital)
	}
}

func TestWholeSharesFloor(t *testing.T) {
	cfg := baseConfig()
	cfg.FractionalShares = false

	rep := mustExecute(t, cfg, flatBars(100, 95, 100))

	if rep.Summary.TotalTrades != 1 {
		t.Fatalf("trades = %d want 1", rep.Summary.TotalTrades)
	}
	tr := rep.Trades[0]
	if tr.BuyQty != 10 { // floor(1000/95)
		t.Fatalf("buy qty = %v want 10", tr.BuyQty)
	}
	if tr.SellQty != 10 {
		t.Fatalf("sell qty = %v want 10", tr.SellQty)
	}
	if !approx(tr.RealizedProfit, 50, 1e-9) {
		t.Fatalf("profit = %v want 50", tr.RealizedProfit)
	}
}

func TestWholeSharesZeroQtySkips(t *testing.T) {
	cfg := baseConfig()
	cfg.FractionalShares = false
	cfg.TradeValue = 50 // floors to zero shares at every rung

	rep := mustExecute(t, cfg, flatBars(100, 95, 90))
	if rep.Summary.TotalTrades != 0 || rep.Summary.FinalShares != 0 {
		t.Fatalf("trades/shares = %d/%v want 0/0",
			rep.Summary.TotalTrades, rep.Summary.FinalShares)
	}
	if rep.Summary.FinalCash != 10_000 {
		t.Fatalf("final cash = %v want untouched 10000", rep.Summary.FinalCash)
	}
}

func TestBookRejectsDuplicateOrder(t *testing.T) {
	b := newBook()
	if err := b.place(&RestingOrder{Side: SideBuy, Rung: 1, Price: 105}); err != nil {
		t.Fatalf("first place: %v", err)
	}
	if err := b.place(&RestingOrder{Side: SideBuy, Rung: 1, Price: 105}); err == nil {
		t.Fatal("expected duplicate order error")
	}
	// the other side of the same rung is fine
	if err := b.place(&RestingOrder{Side: SideSell, Rung: 1, Price: 105}); err != nil {
		t.Fatalf("opposite side place: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero trade value", func(c *Config) { c.TradeValue = 0 }},
		{"negative cash", func(c *Config) { c.InitialCash = -1 }},
		{"grid below tick", func(c *Config) { c.GridSize = 0.001 }},
		{"bad filter window", func(c *Config) { c.FilterWindow = 7 }},
		{"negative chunk", func(c *Config) { c.ChunkSize = -1 }},
	}
	for _, c := range cases {
		cfg := baseConfig()
		c.mutate(&cfg)
		_, err := Execute(context.Background(), cfg, flatBars(100))
		var configErr *ConfigError
		if !errors.As(err, &configErr) {
			t.Fatalf("%s: expected ConfigError, got %v", c.name, err)
		}
	}
}

func TestSeriesValidation(t *testing.T) {
	cfg := baseConfig()

	var configErr *ConfigError
	if _, err := Execute(context.Background(), cfg, nil); !errors.As(err, &configErr) {
		t.Fatalf("empty series: expected ConfigError, got %v", err)
	}

	bars := flatBars(100, 95)
	bars[1].Timestamp = bars[0].Timestamp
	if _, err := Execute(context.Background(), cfg, bars); !errors.As(err, &configErr) {
		t.Fatalf("duplicate timestamps: expected ConfigError, got %v", err)
	}

	bars = flatBars(100)
	bars[0].Low = 101
	if _, err := Execute(context.Background(), cfg, bars); !errors.As(err, &configErr) {
		t.Fatalf("inverted OHLC: expected ConfigError, got %v", err)
	}
}

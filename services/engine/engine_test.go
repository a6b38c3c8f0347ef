package engine

import "math"

// test helpers shared across the package tests

const t0 = int64(1700000000000)

// flatBars builds one flat bar per price, one minute apart.
func flatBars(prices ...float64) []Bar {
	bars := make([]Bar, len(prices))
	for i, p := range prices {
		bars[i] = Bar{Timestamp: t0 + int64(i)*60_000, Open: p, High: p, Low: p, Close: p}
	}
	return bars
}

// dayBars builds one flat bar per close, one day apart.
func dayBars(closes ...float64) []Bar {
	bars := make([]Bar, len(closes))
	for i, p := range closes {
		bars[i] = Bar{Timestamp: t0 + int64(i)*86_400_000, Open: p, High: p, Low: p, Close: p}
	}
	return bars
}

func baseConfig() Config {
	return Config{
		GridType:         GridPullback,
		Spacing:          SpacingFixed,
		GridSize:         5,
		TradeValue:       1000,
		InitialCash:      10_000,
		FractionalShares: true,
		Retention:        RetainNone,
		TickSize:         0.01,
		Funding:          FundingStrict,
	}
}

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

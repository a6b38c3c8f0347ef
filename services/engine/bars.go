package engine

// Bar is a single OHLCV bar. Timestamps are unix milliseconds, ascending,
// supplied already parsed and sorted by the ingestion layer.
type Bar struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// segment is one monotone leg of the synthetic intrabar path.
type segment struct {
	From float64
	To   float64
}

// pathSegments returns the deterministic intrabar path as three monotone
// segments: open → low → high → close on up bars, open → high → low → close
// on down bars. Without tick data this approximates the more conservative
// touch order.
func (b Bar) pathSegments() [3]segment {
	if b.Close >= b.Open {
		return [3]segment{
			{From: b.Open, To: b.Low},
			{From: b.Low, To: b.High},
			{From: b.High, To: b.Close},
		}
	}
	return [3]segment{
		{From: b.Open, To: b.High},
		{From: b.High, To: b.Low},
		{From: b.Low, To: b.Close},
	}
}

// validateSeries checks the structural assumptions the engine relies on.
// Violations are configuration-time failures, never mid-run.
func validateSeries(bars []Bar) error {
	if len(bars) == 0 {
		return &ConfigError{Field: "bars", Reason: "empty series"}
	}
	var prev int64 = -1
	for _, b := range bars {
		if b.Timestamp <= prev {
			return &ConfigError{Field: "bars", Reason: "timestamps not strictly ascending"}
		}
		prev = b.Timestamp
		if b.Low <= 0 || b.High < b.Low {
			return &ConfigError{Field: "bars", Reason: "bad OHLC range"}
		}
		if b.Open < b.Low || b.Open > b.High || b.Close < b.Low || b.Close > b.High {
			return &ConfigError{Field: "bars", Reason: "open/close outside [low,high]"}
		}
	}
	return nil
}

// seriesRange returns the lowest low and highest high over the series.
func seriesRange(bars []Bar) (lo, hi float64) {
	lo, hi = bars[0].Low, bars[0].High
	for _, b := range bars[1:] {
		if b.Low < lo {
			lo = b.Low
		}
		if b.High > hi {
			hi = b.High
		}
	}
	return lo, hi
}

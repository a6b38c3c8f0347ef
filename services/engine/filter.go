package engine

import (
	"math"
	"time"
)

// smaFilter gates buy fills on a simple moving average of daily closing
// prices. The value available at any bar is the SMA over the last W calendar
// days completed strictly before that bar's day, so the gate never looks
// ahead into the forming day.
type smaFilter struct {
	window int
	// perBar[i] is the SMA visible to bar i, NaN while fewer than window
	// days have completed.
	perBar []float64
}

// newSMAFilter precomputes the daily SMA series. It fails fast with
// InsufficientDataError when the series spans fewer calendar days than the
// window, before any bar is processed.
func newSMAFilter(bars []Bar, window int) (*smaFilter, error) {
	if window <= 0 {
		return nil, nil
	}

	// Day key of each bar; the ingestion layer has already disambiguated
	// timestamps, so the calendar day in UTC is the trading day.
	dayOf := func(ts int64) int {
		t := time.UnixMilli(ts).UTC()
		return t.Year()*10000 + int(t.Month())*100 + t.Day()
	}

	var dailyCloses []float64
	dayIdx := make([]int, len(bars)) // completed days before bar i's day
	curDay := dayOf(bars[0].Timestamp)
	for i, b := range bars {
		d := dayOf(b.Timestamp)
		if d != curDay {
			curDay = d
			dailyCloses = append(dailyCloses, bars[i-1].Close)
		}
		dayIdx[i] = len(dailyCloses)
	}
	dailyCloses = append(dailyCloses, bars[len(bars)-1].Close)

	if len(dailyCloses) < window {
		return nil, &InsufficientDataError{Window: window, DailyCloses: len(dailyCloses)}
	}

	// Prefix sums over daily closes, then one SMA lookup per bar.
	prefix := make([]float64, len(dailyCloses)+1)
	for i, c := range dailyCloses {
		prefix[i+1] = prefix[i] + c
	}
	perBar := make([]float64, len(bars))
	for i := range bars {
		d := dayIdx[i]
		if d < window {
			perBar[i] = math.NaN()
			continue
		}
		perBar[i] = (prefix[d] - prefix[d-window]) / float64(window)
	}
	return &smaFilter{window: window, perBar: perBar}, nil
}

// Allows reports whether a buy at price may fill during bar i: the latest
// available SMA must sit at or below the fill price.
func (f *smaFilter) Allows(i int, price float64) bool {
	v := f.perBar[i]
	if math.IsNaN(v) {
		return false
	}
	return v <= price
}

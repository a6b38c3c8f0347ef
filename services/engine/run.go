package engine

import "context"

// Run is one in-progress backtest. All state lives in the Run, so execution
// may be chunked into bar-range slices and resumed at any point; chunking
// never changes results. A Run is not safe for concurrent use, but distinct
// Runs share nothing and may execute in parallel.
type Run struct {
	cfg  Config
	bars []Bar
	m    *matcher
	next int
}

// NewRun validates the configuration and bar series, builds the ladder and
// entry filter, and seeds the initial order book. Configuration and data
// errors surface here, before any bar is processed.
func NewRun(cfg Config, bars []Bar) (*Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateSeries(bars); err != nil {
		return nil, err
	}
	if cfg.Anchor == 0 {
		cfg.Anchor = bars[0].Open
	}

	lo, hi := seriesRange(bars)
	ladder, err := NewLadder(cfg, lo, hi)
	if err != nil {
		return nil, err
	}
	filter, err := newSMAFilter(bars, cfg.FilterWindow)
	if err != nil {
		return nil, err
	}

	book := newBook()
	book.runHigh = bars[0].Open

	m := &matcher{
		cfg:     cfg,
		bars:    bars,
		ladder:  ladder,
		book:    book,
		filter:  filter,
		variant: variantFor(cfg.GridType),
		acc:     newAccumulator(cfg.InitialCash),
	}
	if n, _, ok := ladder.AboveOrAt(lo); ok {
		m.seedFloor = n
	} else {
		m.seedFloor = ladder.MinIndex()
	}

	if err := m.variant.seed(m); err != nil {
		return nil, err
	}
	return &Run{cfg: cfg, bars: bars, m: m}, nil
}

// Step processes up to n bars (n <= 0 processes all remaining) and reports
// whether the run is complete.
func (r *Run) Step(n int) (bool, error) {
	if n <= 0 {
		n = len(r.bars) - r.next
	}
	for i := 0; i < n && r.next < len(r.bars); i++ {
		if err := r.m.processBar(r.next); err != nil {
			return false, err
		}
		r.next++
	}
	return r.Done(), nil
}

func (r *Run) Done() bool { return r.next >= len(r.bars) }

// Report produces the final report. Call after Done; the result is immutable.
func (r *Run) Report() *Report {
	return r.m.acc.report(r.cfg)
}

// Execute runs a full backtest: bars in, report out. Cancellation is
// cooperative, checked only between chunks; a cancelled run discards all
// partial state and returns no report.
func Execute(ctx context.Context, cfg Config, bars []Bar) (*Report, error) {
	run, err := NewRun(cfg, bars)
	if err != nil {
		return nil, err
	}
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = len(bars)
	}
	for !run.Done() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := run.Step(chunk); err != nil {
			return nil, err
		}
	}
	return run.Report(), nil
}

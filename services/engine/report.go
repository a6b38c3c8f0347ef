package engine

// TradeRecord is one completed buy→sell cycle. Records are appended in fill
// order and never mutated.
type TradeRecord struct {
	BuyTimestamp  int64   `json:"buy_timestamp"`
	BuyPrice      float64 `json:"buy_price"`
	BuyQty        float64 `json:"buy_qty"`
	SellTimestamp int64   `json:"sell_timestamp"`
	SellPrice     float64 `json:"sell_price"`
	SellQty       float64 `json:"sell_qty"`

	// QtyRetained = BuyQty - SellQty; CumulativeQtyRetained is its prefix
	// sum over the log up to and including this record.
	QtyRetained           float64 `json:"qty_retained"`
	CumulativeQtyRetained float64 `json:"cumulative_qty_retained"`

	// RealizedProfit is the net cash flow of the cycle:
	// SellQty×SellPrice − BuyQty×BuyPrice. Under profit-retention modes it
	// is near zero and the gain is carried as retained shares instead.
	RealizedProfit float64 `json:"realized_profit"`
	ROIPct         float64 `json:"roi_pct"`
}

// EquityPoint is one mark-to-market sample, one per bar.
type EquityPoint struct {
	Timestamp int64   `json:"timestamp"`
	Equity    float64 `json:"equity"`
}

// Summary holds the scalar end-of-run metrics.
type Summary struct {
	TotalTrades       int     `json:"total_trades"`
	NetRealizedProfit float64 `json:"net_realized_profit"`
	FinalEquity       float64 `json:"final_equity"`
	FinalCash         float64 `json:"final_cash"`
	FinalShares       float64 `json:"final_shares"`
	RetainedShares    float64 `json:"retained_shares"`
	AverageROIPct     float64 `json:"average_roi_pct"`
	MaxDrawdown       float64 `json:"max_drawdown"`
	MaxDrawdownPct    float64 `json:"max_drawdown_pct"`

	// CapitalContributed is the sum of autofund/margin deposits.
	CapitalContributed float64 `json:"capital_contributed"`

	// RequiredCapital is the maximum observed negative net trade cash-flow:
	// the minimum bankroll that would sustain the run under strict funding.
	RequiredCapital float64 `json:"required_capital"`

	// CAGRPct is annualized growth measured against peak deployed capital.
	CAGRPct float64 `json:"cagr_pct"`

	FundingRejections int `json:"funding_rejections"`
	FilterRejections  int `json:"filter_rejections"`
	BarsProcessed     int `json:"bars_processed"`
}

// Report is the sole handoff to presentation, persistence and optimizer
// collaborators. Produced once at the end of a run, immutable.
type Report struct {
	Config  Config        `json:"config"`
	Trades  []TradeRecord `json:"trades"`
	Equity  []EquityPoint `json:"equity"`
	Summary Summary       `json:"summary"`
}

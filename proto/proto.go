// Package proto defines the wire types of the backtest service, shared by the
// gRPC surface and the JSON REST handlers.
package proto

import "context"

// BacktestRequest describes one grid backtest. Numeric knobs mirror the
// engine configuration; enums travel as their string names so the request is
// readable in both JSON and gRPC form.
type BacktestRequest struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	FromMs   int64  `json:"from_ms"`
	ToMs     int64  `json:"to_ms"`

	GridType         string  `json:"grid_type"`
	SpacingModel     string  `json:"spacing_model"`
	GridSize         float64 `json:"grid_size"`
	Anchor           float64 `json:"anchor,omitempty"`
	TradeValue       float64 `json:"trade_value"`
	InitialCash      float64 `json:"initial_cash"`
	FractionalShares bool    `json:"fractional_shares"`
	RetentionMode    string  `json:"retention_mode"`
	EntryFilter      string  `json:"entry_filter,omitempty"`
	TickSize         float64 `json:"tick_size"`
	FundingMode      string  `json:"funding_mode"`
}

type TradeRecord struct {
	BuyTimeMs      int64   `json:"buy_time_ms"`
	BuyPrice       float64 `json:"buy_price"`
	BuyQty         float64 `json:"buy_qty"`
	SellTimeMs     int64   `json:"sell_time_ms"`
	SellPrice      float64 `json:"sell_price"`
	SellQty        float64 `json:"sell_qty"`
	QtyRetained    float64 `json:"qty_retained"`
	RealizedProfit float64 `json:"realized_profit"`
	ROIPct         float64 `json:"roi_pct"`
}

type EquityPoint struct {
	TimeMs int64   `json:"time_ms"`
	Equity float64 `json:"equity"`
}

type RunSummary struct {
	TotalTrades        int     `json:"total_trades"`
	NetRealizedProfit  float64 `json:"net_realized_profit"`
	FinalEquity        float64 `json:"final_equity"`
	FinalCash          float64 `json:"final_cash"`
	FinalShares        float64 `json:"final_shares"`
	RetainedShares     float64 `json:"retained_shares"`
	AverageROIPct      float64 `json:"avg_roi_pct"`
	MaxDrawdown        float64 `json:"max_drawdown"`
	MaxDrawdownPct     float64 `json:"max_drawdown_pct"`
	CapitalContributed float64 `json:"capital_contributed"`
	RequiredCapital    float64 `json:"required_capital"`
	CAGRPct            float64 `json:"cagr_pct"`
	FundingRejections  int     `json:"funding_rejections"`
	FilterRejections   int     `json:"filter_rejections"`
	BarsProcessed      int     `json:"bars_processed"`
}

type BacktestResponse struct {
	RunID           string        `json:"run_id"`
	Symbol          string        `json:"symbol"`
	ExecutionTimeMs int64         `json:"execution_time_ms"`
	Summary         *RunSummary   `json:"summary"`
	Trades          []TradeRecord `json:"trades,omitempty"`
	Equity          []EquityPoint `json:"equity,omitempty"`
}

// SweepRequest runs the same data through many grid configurations.
type SweepRequest struct {
	Symbol     string            `json:"symbol"`
	Interval   string            `json:"interval"`
	FromMs     int64             `json:"from_ms"`
	ToMs       int64             `json:"to_ms"`
	Candidates []BacktestRequest `json:"candidates"`
}

type SweepResponse struct {
	SweepID string              `json:"sweep_id"`
	Results []*BacktestResponse `json:"results"`
}

// gRPC server interface stub

type UnimplementedBacktestServiceServer struct{}

func RegisterBacktestServiceServer(_ any, _ BacktestServiceServer) {}

type BacktestServiceServer interface {
	ExecuteBacktest(context.Context, *BacktestRequest) (*BacktestResponse, error)
	ExecuteSweep(context.Context, *SweepRequest) (*SweepResponse, error)
}

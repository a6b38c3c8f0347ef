// Command run_grid backtests one grid configuration against a CSV bar file
// and writes the trade log, equity curve, and summary.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"gridbacktest/services/engine"
	"gridbacktest/services/loader"
)

func main() {
	csvPath := flag.String("csv", "", "Path to bars CSV (timestamp,open,high,low,close,volume)")
	stepMs := flag.Int64("step-ms", 0, "Expected bar interval in ms for gap warnings (0 disables)")
	gridType := flag.String("grid-type", "pullback", "Grid type: pullback|buy_the_dip|progressive")
	spacing := flag.String("spacing", "fixed", "Spacing model: fixed|percent_fixed")
	gridSize := flag.Float64("grid-size", 1, "Dollars per rung (fixed) or percent per rung (percent_fixed)")
	anchor := flag.Float64("anchor", 0, "Ladder anchor price (0 anchors at the first open)")
	tradeValue := flag.Float64("trade-value", 1000, "Target dollar value per buy")
	initialCash := flag.Float64("cash", 10000, "Initial cash")
	fractional := flag.Bool("fractional", true, "Allow fractional share quantities")
	retention := flag.String("retention", "none", "Retention mode: none|profit|profit_plus_5|profit_plus_10")
	filter := flag.String("entry-filter", "none", "Entry filter: none|sma10|sma20|sma50|sma100")
	tickSize := flag.Float64("tick", 0.01, "Price tick size")
	funding := flag.String("funding", "strict", "Funding mode: strict|autofund|margin")
	chunkSize := flag.Int("chunk", 100000, "Bars per chunk between cancellation checks")
	outPrefix := flag.String("out", "./grid_run", "Output path prefix for <prefix>_trades.csv / _equity.csv / _summary.json")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *csvPath == "" {
		logger.Fatal("missing -csv")
	}

	cfg, err := buildConfig(*gridType, *spacing, *retention, *filter, *funding)
	if err != nil {
		logger.Fatal("bad configuration", zap.Error(err))
	}
	cfg.GridSize = *gridSize
	cfg.Anchor = *anchor
	cfg.TradeValue = *tradeValue
	cfg.InitialCash = *initialCash
	cfg.FractionalShares = *fractional
	cfg.TickSize = *tickSize
	cfg.ChunkSize = *chunkSize

	bars, err := loader.LoadCSV(*csvPath, loader.Options{ExpectedStepMs: *stepMs, Logger: logger})
	if err != nil {
		logger.Fatal("load bars", zap.Error(err))
	}
	logger.Info("loaded bars", zap.String("path", *csvPath), zap.Int("count", len(bars)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rep, err := engine.Execute(ctx, cfg, bars)
	if err != nil {
		logger.Fatal("backtest failed", zap.Error(err))
	}

	if err := writeOutputs(*outPrefix, rep); err != nil {
		logger.Fatal("write outputs", zap.Error(err))
	}

	s := rep.Summary
	logger.Info("backtest complete",
		zap.Int("trades", s.TotalTrades),
		zap.Float64("net_profit", s.NetRealizedProfit),
		zap.Float64("final_equity", s.FinalEquity),
		zap.Float64("max_drawdown", s.MaxDrawdown),
		zap.Float64("required_capital", s.RequiredCapital),
		zap.Float64("cagr_pct", s.CAGRPct),
	)
}

func buildConfig(gridType, spacing, retention, filter, funding string) (engine.Config, error) {
	var cfg engine.Config
	var err error
	if cfg.GridType, err = engine.ParseGridType(gridType); err != nil {
		return cfg, err
	}
	if cfg.Spacing, err = engine.ParseSpacingModel(spacing); err != nil {
		return cfg, err
	}
	if cfg.Retention, err = engine.ParseRetentionMode(retention); err != nil {
		return cfg, err
	}
	if cfg.FilterWindow, err = engine.ParseEntryFilter(filter); err != nil {
		return cfg, err
	}
	if cfg.Funding, err = engine.ParseFundingMode(funding); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func writeOutputs(prefix string, rep *engine.Report) error {
	if err := writeTradesCSV(prefix+"_trades.csv", rep); err != nil {
		return err
	}
	if err := writeEquityCSV(prefix+"_equity.csv", rep); err != nil {
		return err
	}
	return writeSummaryJSON(prefix+"_summary.json", rep)
}

func writeTradesCSV(path string, rep *engine.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"buy_time_ms", "buy_price", "buy_qty",
		"sell_time_ms", "sell_price", "sell_qty",
		"qty_retained", "cum_qty_retained", "realized_profit", "roi_pct",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, t := range rep.Trades {
		row := []string{
			strconv.FormatInt(t.BuyTimestamp, 10),
			fmtF(t.BuyPrice), fmtF(t.BuyQty),
			strconv.FormatInt(t.SellTimestamp, 10),
			fmtF(t.SellPrice), fmtF(t.SellQty),
			fmtF(t.QtyRetained), fmtF(t.CumulativeQtyRetained),
			fmtF(t.RealizedProfit), fmtF(t.ROIPct),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeEquityCSV(path string, rep *engine.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"time_ms", "equity"}); err != nil {
		return err
	}
	for _, p := range rep.Equity {
		if err := w.Write([]string{strconv.FormatInt(p.Timestamp, 10), fmtF(p.Equity)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeSummaryJSON(path string, rep *engine.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(rep.Summary)
}

func fmtF(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

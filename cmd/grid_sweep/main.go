// Command grid_sweep runs many grid configurations against one CSV bar file
// in parallel and ranks the results.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gridbacktest/services/engine"
	"gridbacktest/services/loader"
)

// candidate is one sweep entry as it appears in the candidates JSON file.
type candidate struct {
	Name             string  `json:"name"`
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

type sweepResult struct {
	RunID   string          `json:"run_id"`
	Name    string          `json:"name"`
	Error   string          `json:"error,omitempty"`
	Summary *engine.Summary `json:"summary,omitempty"`
}

func (c candidate) toConfig(chunkSize int) (engine.Config, error) {
	var cfg engine.Config
	var err error
	if cfg.GridType, err = engine.ParseGridType(c.GridType); err != nil {
		return cfg, err
	}
	if cfg.Spacing, err = engine.ParseSpacingModel(c.SpacingModel); err != nil {
		return cfg, err
	}
	if cfg.Retention, err = engine.ParseRetentionMode(c.RetentionMode); err != nil {
		return cfg, err
	}
	if cfg.FilterWindow, err = engine.ParseEntryFilter(c.EntryFilter); err != nil {
		return cfg, err
	}
	if cfg.Funding, err = engine.ParseFundingMode(c.FundingMode); err != nil {
		return cfg, err
	}
	cfg.GridSize = c.GridSize
	cfg.Anchor = c.Anchor
	cfg.TradeValue = c.TradeValue
	cfg.InitialCash = c.InitialCash
	cfg.FractionalShares = c.FractionalShares
	cfg.TickSize = c.TickSize
	cfg.ChunkSize = chunkSize
	return cfg, nil
}

func main() {
	csvPath := flag.String("csv", "", "Path to bars CSV")
	candidatesPath := flag.String("candidates", "", "Path to candidates JSON array")
	workers := flag.Int("workers", 0, "Parallel workers (0 = NumCPU)")
	chunkSize := flag.Int("chunk", 100000, "Bars per chunk between cancellation checks")
	outPath := flag.String("out", "./sweep_results.json", "Results output path")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	if *csvPath == "" || *candidatesPath == "" {
		logger.Fatal("missing -csv or -candidates")
	}

	raw, err := os.ReadFile(*candidatesPath)
	if err != nil {
		logger.Fatal("read candidates", zap.Error(err))
	}
	var candidates []candidate
	if err := json.Unmarshal(raw, &candidates); err != nil {
		logger.Fatal("parse candidates", zap.Error(err))
	}
	if len(candidates) == 0 {
		logger.Fatal("no candidates to sweep")
	}

	bars, err := loader.LoadCSV(*csvPath, loader.Options{Logger: logger})
	if err != nil {
		logger.Fatal("load bars", zap.Error(err))
	}

	numWorkers := *workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	logger.Info("starting sweep",
		zap.Int("candidates", len(candidates)),
		zap.Int("workers", numWorkers),
		zap.Int("bars", len(bars)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobs := make(chan int, len(candidates))
	results := make([]sweepResult, len(candidates))

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = runCandidate(ctx, logger, candidates[i], bars, *chunkSize)
			}
		}()
	}
	for i := range candidates {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	// rank finished runs by net realized profit, errors last
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].Summary, results[j].Summary
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.NetRealizedProfit > b.NetRealizedProfit
	})

	out, err := os.Create(*outPath)
	if err != nil {
		logger.Fatal("create results file", zap.Error(err))
	}
	defer out.Close()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		logger.Fatal("write results", zap.Error(err))
	}

	for i, r := range results {
		if i >= 5 {
			break
		}
		if r.Summary == nil {
			continue
		}
		logger.Info("sweep leader",
			zap.Int("rank", i+1),
			zap.String("name", r.Name),
			zap.Float64("net_profit", r.Summary.NetRealizedProfit),
			zap.Float64("max_drawdown", r.Summary.MaxDrawdown),
			zap.Float64("cagr_pct", r.Summary.CAGRPct),
		)
	}
}

func runCandidate(ctx context.Context, logger *zap.Logger, c candidate, bars []engine.Bar, chunkSize int) sweepResult {
	runID := uuid.New().String()
	res := sweepResult{RunID: runID, Name: c.Name}

	cfg, err := c.toConfig(chunkSize)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	start := time.Now()
	rep, err := engine.Execute(ctx, cfg, bars)
	if err != nil {
		logger.Warn("candidate failed",
			zap.String("run_id", runID),
			zap.String("name", c.Name),
			zap.Error(err),
		)
		res.Error = err.Error()
		return res
	}

	logger.Debug("candidate complete",
		zap.String("run_id", runID),
		zap.String("name", c.Name),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("trades", rep.Summary.TotalTrades),
	)
	res.Summary = &rep.Summary
	return res
}

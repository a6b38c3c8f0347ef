// Package clickhouse loads bar series from and persists run results to a
// ClickHouse cluster.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"gridbacktest/services/engine"
)

// Config selects the cluster and database.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
}

// Client wraps one native-protocol connection pool.
type Client struct {
	conn   driver.Conn
	db     string
	logger *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to ClickHouse: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{conn: conn, db: cfg.Database, logger: logger}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) Ping(ctx context.Context) error { return c.conn.Ping(ctx) }

// LoadBars reads the bar series for one symbol and interval, ascending.
func (c *Client) LoadBars(ctx context.Context, symbol, interval string, fromMs, toMs int64) ([]engine.Bar, error) {
	query := fmt.Sprintf(`
		SELECT
			open_time_ms,
			toFloat64(open),
			toFloat64(high),
			toFloat64(low),
			toFloat64(close),
			toFloat64(volume_base)
		FROM %s.ohlcv_raw
		WHERE symbol = ?
		  AND interval = ?
		  AND open_time_ms >= ?
		  AND open_time_ms < ?
		ORDER BY open_time_ms`, c.db)

	rows, err := c.conn.Query(ctx, query, symbol, interval, fromMs, toMs)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []engine.Bar
	for rows.Next() {
		var (
			ts                     int64
			open, high, low, close float64
			volume                 float64
		)
		if err := rows.Scan(&ts, &open, &high, &low, &close, &volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		bars = append(bars, engine.Bar{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read bars: %w", err)
	}

	c.logger.Info("loaded bars from ClickHouse",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("count", len(bars)),
	)
	return bars, nil
}

// SaveReport persists one run's trades and summary. Trades are batched; the
// summary goes into its own table keyed by run id.
func (c *Client) SaveReport(ctx context.Context, runID, symbol string, rep *engine.Report) error {
	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf(`
		INSERT INTO %s.grid_trades (
			run_id, symbol, buy_time_ms, buy_price, buy_qty,
			sell_time_ms, sell_price, sell_qty,
			qty_retained, realized_profit, roi_pct
		)`, c.db))
	if err != nil {
		return fmt.Errorf("prepare trade batch: %w", err)
	}
	for _, t := range rep.Trades {
		if err := batch.Append(
			runID, symbol,
			t.BuyTimestamp, t.BuyPrice, t.BuyQty,
			t.SellTimestamp, t.SellPrice, t.SellQty,
			t.QtyRetained, t.RealizedProfit, t.ROIPct,
		); err != nil {
			return fmt.Errorf("append trade: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send trade batch: %w", err)
	}

	equityBatch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf(`
		INSERT INTO %s.grid_equity (run_id, time_ms, equity)`, c.db))
	if err != nil {
		return fmt.Errorf("prepare equity batch: %w", err)
	}
	for _, p := range rep.Equity {
		if err := equityBatch.Append(runID, p.Timestamp, p.Equity); err != nil {
			return fmt.Errorf("append equity point: %w", err)
		}
	}
	if err := equityBatch.Send(); err != nil {
		return fmt.Errorf("send equity batch: %w", err)
	}

	s := rep.Summary
	err = c.conn.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s.grid_runs (
			run_id, symbol, grid_type, spacing_model, grid_size,
			total_trades, net_realized_profit, final_equity, final_cash,
			final_shares, retained_shares, avg_roi_pct,
			max_drawdown, max_drawdown_pct, capital_contributed,
			required_capital, cagr_pct, funding_rejections, filter_rejections,
			bars_processed, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, c.db),
		runID, symbol,
		rep.Config.GridType.String(), rep.Config.Spacing.String(), rep.Config.GridSize,
		s.TotalTrades, s.NetRealizedProfit, s.FinalEquity, s.FinalCash,
		s.FinalShares, s.RetainedShares, s.AverageROIPct,
		s.MaxDrawdown, s.MaxDrawdownPct, s.CapitalContributed,
		s.RequiredCapital, s.CAGRPct, s.FundingRejections, s.FilterRejections,
		s.BarsProcessed, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run summary: %w", err)
	}

	c.logger.Info("saved run to ClickHouse",
		zap.String("run_id", runID),
		zap.Int("trades", len(rep.Trades)),
	)
	return nil
}

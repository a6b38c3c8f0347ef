// Package arrowexport serializes run results to Apache Arrow IPC streams so
// analysis tools can consume them without CSV round-trips.
package arrowexport

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"go.uber.org/zap"

	"gridbacktest/services/engine"
)

// Exporter converts reports into Arrow record batches.
type Exporter struct {
	alloc  memory.Allocator
	logger *zap.Logger
}

func NewExporter(logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{alloc: memory.NewGoAllocator(), logger: logger}
}

var tradeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "buy_time_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "buy_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "buy_qty", Type: arrow.PrimitiveTypes.Float64},
	{Name: "sell_time_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "sell_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "sell_qty", Type: arrow.PrimitiveTypes.Float64},
	{Name: "qty_retained", Type: arrow.PrimitiveTypes.Float64},
	{Name: "realized_profit", Type: arrow.PrimitiveTypes.Float64},
	{Name: "roi_pct", Type: arrow.PrimitiveTypes.Float64},
}, nil)

var equitySchema = arrow.NewSchema([]arrow.Field{
	{Name: "time_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "equity", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// Trades serializes the trade log as one IPC stream.
func (e *Exporter) Trades(rep *engine.Report) ([]byte, error) {
	n := len(rep.Trades)
	buyTimes := make([]int64, n)
	buyPrices := make([]float64, n)
	buyQtys := make([]float64, n)
	sellTimes := make([]int64, n)
	sellPrices := make([]float64, n)
	sellQtys := make([]float64, n)
	retained := make([]float64, n)
	profits := make([]float64, n)
	rois := make([]float64, n)
	for i, t := range rep.Trades {
		buyTimes[i] = t.BuyTimestamp
		buyPrices[i] = t.BuyPrice
		buyQtys[i] = t.BuyQty
		sellTimes[i] = t.SellTimestamp
		sellPrices[i] = t.SellPrice
		sellQtys[i] = t.SellQty
		retained[i] = t.QtyRetained
		profits[i] = t.RealizedProfit
		rois[i] = t.ROIPct
	}

	cols := make([]arrow.Array, 0, 9)
	cols = append(cols, e.int64Array(buyTimes))
	cols = append(cols, e.float64Array(buyPrices))
	cols = append(cols, e.float64Array(buyQtys))
	cols = append(cols, e.int64Array(sellTimes))
	cols = append(cols, e.float64Array(sellPrices))
	cols = append(cols, e.float64Array(sellQtys))
	cols = append(cols, e.float64Array(retained))
	cols = append(cols, e.float64Array(profits))
	cols = append(cols, e.float64Array(rois))

	return e.serialize(tradeSchema, cols, int64(n))
}

// Equity serializes the equity curve as one IPC stream.
func (e *Exporter) Equity(rep *engine.Report) ([]byte, error) {
	n := len(rep.Equity)
	times := make([]int64, n)
	values := make([]float64, n)
	for i, p := range rep.Equity {
		times[i] = p.Timestamp
		values[i] = p.Equity
	}
	cols := []arrow.Array{e.int64Array(times), e.float64Array(values)}
	return e.serialize(equitySchema, cols, int64(n))
}

func (e *Exporter) int64Array(values []int64) arrow.Array {
	b := array.NewInt64Builder(e.alloc)
	defer b.Release()
	b.AppendValues(values, nil)
	return b.NewInt64Array()
}

func (e *Exporter) float64Array(values []float64) arrow.Array {
	b := array.NewFloat64Builder(e.alloc)
	defer b.Release()
	b.AppendValues(values, nil)
	return b.NewFloat64Array()
}

func (e *Exporter) serialize(schema *arrow.Schema, cols []arrow.Array, rows int64) ([]byte, error) {
	record := array.NewRecord(schema, cols, rows)
	defer record.Release()
	for _, c := range cols {
		defer c.Release()
	}

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(e.alloc))
	if err := w.Write(record); err != nil {
		w.Close()
		return nil, fmt.Errorf("write Arrow record: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close Arrow writer: %w", err)
	}

	e.logger.Debug("serialized Arrow stream",
		zap.Int64("rows", rows),
		zap.Int("bytes", buf.Len()),
	)
	return buf.Bytes(), nil
}

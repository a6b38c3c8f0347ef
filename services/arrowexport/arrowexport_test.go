package arrowexport

import (
	"bytes"
	"testing"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"

	"gridbacktest/services/engine"
)

func sampleReport() *engine.Report {
	return &engine.Report{
		Trades: []engine.TradeRecord{
			{BuyTimestamp: 1, BuyPrice: 90, BuyQty: 11, SellTimestamp: 2, SellPrice: 95, SellQty: 11, RealizedProfit: 55, ROIPct: 5.5},
			{BuyTimestamp: 3, BuyPrice: 95, BuyQty: 10, SellTimestamp: 4, SellPrice: 100, SellQty: 10, RealizedProfit: 50, ROIPct: 5.2},
		},
		Equity: []engine.EquityPoint{
			{Timestamp: 1, Equity: 10_000},
			{Timestamp: 2, Equity: 10_055},
			{Timestamp: 4, Equity: 10_105},
		},
	}
}

func readSingleRecord(t *testing.T, data []byte) (int64, *ipc.Reader) {
	t.Helper()
	r, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open IPC stream: %v", err)
	}
	if !r.Next() {
		t.Fatal("stream has no record")
	}
	return r.Record().NumRows(), r
}

func TestExportTrades(t *testing.T) {
	e := NewExporter(nil)
	data, err := e.Trades(sampleReport())
	if err != nil {
		t.Fatalf("Trades: %v", err)
	}

	rows, r := readSingleRecord(t, data)
	defer r.Release()
	if rows != 2 {
		t.Fatalf("rows = %d want 2", rows)
	}

	rec := r.Record()
	sellPrices := rec.Column(4).(*array.Float64)
	if sellPrices.Value(0) != 95 || sellPrices.Value(1) != 100 {
		t.Fatalf("sell prices = %v, %v", sellPrices.Value(0), sellPrices.Value(1))
	}
}

func TestExportEquity(t *testing.T) {
	e := NewExporter(nil)
	data, err := e.Equity(sampleReport())
	if err != nil {
		t.Fatalf("Equity: %v", err)
	}

	rows, r := readSingleRecord(t, data)
	defer r.Release()
	if rows != 3 {
		t.Fatalf("rows = %d want 3", rows)
	}
	values := r.Record().Column(1).(*array.Float64)
	if values.Value(2) != 10_105 {
		t.Fatalf("equity[2] = %v want 10105", values.Value(2))
	}
}

func TestExportEmptyReport(t *testing.T) {
	e := NewExporter(nil)
	data, err := e.Trades(&engine.Report{})
	if err != nil {
		t.Fatalf("Trades on empty report: %v", err)
	}
	rows, r := readSingleRecord(t, data)
	defer r.Release()
	if rows != 0 {
		t.Fatalf("rows = %d want 0", rows)
	}
}

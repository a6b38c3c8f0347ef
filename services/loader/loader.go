// Package loader reads OHLCV bar series from CSV files into the engine's
// bar format, normalizing encoding quirks the files show up with in practice.
package loader

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"gridbacktest/services/engine"
)

// Options tune CSV ingestion. The zero value is usable.
type Options struct {
	// ExpectedStepMs, when > 0, enables gap warnings for consecutive bars
	// further apart than this interval.
	ExpectedStepMs int64

	Logger *zap.Logger
}

// LoadCSV reads a timestamp,open,high,low,close,volume file. Rows are
// tolerated out of order and duplicated; the result is sorted ascending with
// the last occurrence of each timestamp winning. Malformed rows are skipped
// with a warning rather than failing the whole file.
func LoadCSV(path string, opts Options) ([]engine.Bar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bars file: %w", err)
	}
	defer file.Close()

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bars := readBars(decodeReader(file), logger)
	if len(bars) == 0 {
		return nil, fmt.Errorf("read %s: no usable rows", path)
	}

	bars = normalize(bars)
	if opts.ExpectedStepMs > 0 {
		warnGaps(bars, opts.ExpectedStepMs, logger)
	}
	return bars, nil
}

// decodeReader wraps the input with a UTF-16 decoder when a BOM is present.
// Exports from spreadsheet tools regularly arrive UTF-16LE encoded.
func decodeReader(f *os.File) io.Reader {
	br := bufio.NewReader(f)
	head, _ := br.Peek(2)
	if len(head) >= 2 && ((head[0] == 0xFF && head[1] == 0xFE) || (head[0] == 0xFE && head[1] == 0xFF)) {
		f.Seek(0, io.SeekStart)
		return transform.NewReader(f, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	}
	return br
}

func readBars(r io.Reader, logger *zap.Logger) []engine.Bar {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var bars []engine.Bar
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			logger.Warn("skipping unreadable row", zap.Int("line", line), zap.Error(err))
			continue
		}
		if len(rec) < 5 {
			logger.Warn("skipping short row", zap.Int("line", line), zap.Int("fields", len(rec)))
			continue
		}

		tsStr := strings.TrimPrefix(strings.TrimSpace(rec[0]), "\uFEFF")
		if line == 1 && (strings.EqualFold(tsStr, "timestamp") || strings.EqualFold(tsStr, "timestamp_ms")) {
			continue
		}
		ts, err := parseTimestamp(tsStr)
		if err != nil {
			logger.Warn("skipping row with bad timestamp", zap.Int("line", line), zap.String("value", tsStr))
			continue
		}

		open, err1 := parsePrice(rec[1])
		high, err2 := parsePrice(rec[2])
		low, err3 := parsePrice(rec[3])
		closePx, err4 := parsePrice(rec[4])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			logger.Warn("skipping row with bad prices", zap.Int("line", line))
			continue
		}

		volume := 0.0
		if len(rec) > 5 {
			if v, err := parsePrice(rec[5]); err == nil {
				volume = v
			}
		}

		bars = append(bars, engine.Bar{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Volume:    volume,
		})
	}
	return bars
}

// parseTimestamp accepts unix milliseconds or RFC 3339.
func parseTimestamp(s string) (int64, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

// parsePrice goes through decimal so values like "95.10" survive exactly as
// written before they hit the float domain.
func parsePrice(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(strings.Trim(s, `"`)))
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// normalize sorts ascending and collapses duplicate timestamps, keeping the
// last occurrence of each (re-downloads supersede earlier rows).
func normalize(bars []engine.Bar) []engine.Bar {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp < bars[j].Timestamp
	})
	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Timestamp == b.Timestamp {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

func warnGaps(bars []engine.Bar, stepMs int64, logger *zap.Logger) {
	gaps := 0
	for i := 1; i < len(bars); i++ {
		if d := bars[i].Timestamp - bars[i-1].Timestamp; d > stepMs {
			gaps++
			if gaps <= 10 {
				logger.Warn("gap in bar series",
					zap.Int64("after_ms", bars[i-1].Timestamp),
					zap.Int64("missing_ms", d-stepMs),
				)
			}
		}
	}
	if gaps > 10 {
		logger.Warn("further gaps suppressed", zap.Int("total", gaps))
	}
}

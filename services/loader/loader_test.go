package loader

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/text/encoding/unicode"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCSV(t *testing.T) {
	csvData := "timestamp,open,high,low,close,volume\n" +
		"1700000060000,101,102,100,101.5,20\n" +
		"1700000000000,100,101,99,100.5,10\n" +
		"1700000060000,101,103,100,102,25\n" // duplicate, supersedes the first

	path := writeFile(t, "bars.csv", []byte(csvData))
	bars, err := LoadCSV(path, Options{})
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}

	if len(bars) != 2 {
		t.Fatalf("bars = %d want 2 after dedupe", len(bars))
	}
	if bars[0].Timestamp != 1700000000000 || bars[1].Timestamp != 1700000060000 {
		t.Fatalf("bars not sorted: %d, %d", bars[0].Timestamp, bars[1].Timestamp)
	}
	// the later duplicate wins
	if bars[1].High != 103 || bars[1].Volume != 25 {
		t.Fatalf("dedupe kept the wrong row: high=%v volume=%v", bars[1].High, bars[1].Volume)
	}
	if bars[0].Open != 100 || bars[0].Close != 100.5 {
		t.Fatalf("bar 0 = %+v", bars[0])
	}
}

func TestLoadCSVSkipsMalformedRows(t *testing.T) {
	csvData := "1700000000000,100,101,99,100.5,10\n" +
		"not-a-timestamp,1,2,3,4,5\n" +
		"1700000060000,abc,102,100,101,20\n" +
		"1700000120000,101,102,100,101.5\n" // missing volume is fine

	path := writeFile(t, "bars.csv", []byte(csvData))
	bars, err := LoadCSV(path, Options{})
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("bars = %d want 2", len(bars))
	}
	if bars[1].Volume != 0 {
		t.Fatalf("missing volume = %v want 0", bars[1].Volume)
	}
}

func TestLoadCSVRFC3339Timestamps(t *testing.T) {
	csvData := "2023-11-14T22:13:20Z,100,101,99,100.5,10\n" +
		"2023-11-14T22:14:20Z,100.5,101,100,100.8,12\n"
	path := writeFile(t, "bars_rfc3339.csv", []byte(csvData))
	bars, err := LoadCSV(path, Options{})
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("bars = %d want 2", len(bars))
	}
	if bars[0].Timestamp != 1700000000000 {
		t.Fatalf("timestamp = %d want 1700000000000", bars[0].Timestamp)
	}
	if bars[1].Timestamp-bars[0].Timestamp != 60_000 {
		t.Fatalf("spacing = %d want 60000", bars[1].Timestamp-bars[0].Timestamp)
	}
}

func TestLoadCSVUTF16(t *testing.T) {
	text := "timestamp,open,high,low,close,volume\n" +
		"1700000000000,100,101,99,100.5,10\n"
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	data, err := enc.Bytes([]byte(text))
	if err != nil {
		t.Fatal(err)
	}

	path := writeFile(t, "bars_utf16.csv", data)
	bars, err := LoadCSV(path, Options{})
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(bars) != 1 || bars[0].Open != 100 {
		t.Fatalf("bars = %+v", bars)
	}
}

func TestLoadCSVEmpty(t *testing.T) {
	path := writeFile(t, "empty.csv", []byte("timestamp,open,high,low,close,volume\n"))
	if _, err := LoadCSV(path, Options{}); err == nil {
		t.Fatal("expected error for file with no usable rows")
	}
	if _, err := LoadCSV(filepath.Join(t.TempDir(), "missing.csv"), Options{}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadCSV reads OHLCV bars from a CSV file. Column headers are matched
// case-insensitively; a timestamp column is optional.
func LoadCSV(path string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses bars from r. The first row must be a header containing at
// least open, high, low, close, and volume columns.
func ReadCSV(r io.Reader) ([]Bar, error) {
	rd := csv.NewReader(r)
	header, err := rd.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	idx := map[string]int{}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "open":
			idx["open"] = i
		case "high":
			idx["high"] = i
		case "low":
			idx["low"] = i
		case "close":
			idx["close"] = i
		case "volume", "vol":
			idx["volume"] = i
		case "timestamp", "time", "date":
			idx["timestamp"] = i
		}
	}
	for _, col := range []string{"open", "high", "low", "close", "volume"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("csv missing column %q", col)
		}
	}

	var bars []Bar
	for line := 2; ; line++ {
		rec, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		bar, err := parseRow(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseRow(rec []string, idx map[string]int) (Bar, error) {
	field := func(col string) (float64, error) {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx[col]]), 64)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", col, err)
		}
		return v, nil
	}
	var bar Bar
	var err error
	if bar.Open, err = field("open"); err != nil {
		return Bar{}, err
	}
	if bar.High, err = field("high"); err != nil {
		return Bar{}, err
	}
	if bar.Low, err = field("low"); err != nil {
		return Bar{}, err
	}
	if bar.Close, err = field("close"); err != nil {
		return Bar{}, err
	}
	if bar.Volume, err = field("volume"); err != nil {
		return Bar{}, err
	}
	if i, ok := idx["timestamp"]; ok {
		bar.Start = parseTimestamp(strings.TrimSpace(rec[i]))
	}
	return bar, nil
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}

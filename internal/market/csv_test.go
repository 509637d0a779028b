package market

import (
	"strings"
	"testing"
)

func TestReadCSVFlexibleHeaders(t *testing.T) {
	in := "timestamp,OPEN,High,low,Close,Volume\n" +
		"2024-05-01T09:00:00Z,100,105,95,101,6\n" +
		"2024-05-01T09:01:00Z,101,102,100,100,3\n"
	bars, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	if bars[0].Open != 100 || bars[0].High != 105 || bars[0].Low != 95 || bars[0].Close != 101 {
		t.Fatalf("unexpected first bar %+v", bars[0])
	}
	if bars[0].Start.IsZero() {
		t.Fatalf("timestamp not parsed")
	}
}

func TestReadCSVMissingColumn(t *testing.T) {
	in := "open,high,low,close\n1,2,3,4\n"
	if _, err := ReadCSV(strings.NewReader(in)); err == nil {
		t.Fatalf("expected error for missing volume column")
	}
}

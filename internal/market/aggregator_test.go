package market

import (
	"testing"
	"time"
)

func at(min, sec int) time.Time {
	return time.Date(2024, 5, 1, 9, min, sec, 0, time.UTC)
}

func TestAggregatorFinalizesOnNewMinute(t *testing.T) {
	agg := NewAggregator()

	if _, ok := agg.Update(at(0, 10), 100, 1); ok {
		t.Fatalf("first tick must only seed a bucket")
	}
	if _, ok := agg.Update(at(0, 40), 105, 2); ok {
		t.Fatalf("same-minute tick must not finalize")
	}
	if _, ok := agg.Update(at(0, 55), 95, 3); ok {
		t.Fatalf("same-minute tick must not finalize")
	}

	bar, ok := agg.Update(at(1, 5), 101, 4)
	if !ok {
		t.Fatalf("tick in next minute must finalize previous bucket")
	}
	if !bar.Start.Equal(at(0, 0)) {
		t.Fatalf("bar start = %v, want %v", bar.Start, at(0, 0))
	}
	if bar.Open != 100 || bar.High != 105 || bar.Low != 95 || bar.Close != 95 || bar.Volume != 6 {
		t.Fatalf("unexpected bar %+v", bar)
	}

	// the finalizing tick seeded a fresh bucket
	next, ok := agg.Finalize()
	if !ok {
		t.Fatalf("expected open bucket after finalize tick")
	}
	if next.Open != 101 || next.Volume != 4 || !next.Start.Equal(at(1, 0)) {
		t.Fatalf("unexpected seeded bucket %+v", next)
	}
}

func TestAggregatorGapProducesSingleBar(t *testing.T) {
	agg := NewAggregator()
	agg.Update(at(0, 30), 100, 1)

	bar, ok := agg.Update(at(3, 0), 110, 1)
	if !ok {
		t.Fatalf("expected exactly one finalized bar across the gap")
	}
	if !bar.Start.Equal(at(0, 0)) || bar.Close != 100 {
		t.Fatalf("unexpected bar %+v", bar)
	}
	// no synthetic bars for minutes 1-2: the only open bucket is minute 3
	next, ok := agg.Finalize()
	if !ok || !next.Start.Equal(at(3, 0)) {
		t.Fatalf("expected bucket seeded at minute 3, got %+v ok=%v", next, ok)
	}
}

func TestAggregatorFinalizeEmpty(t *testing.T) {
	agg := NewAggregator()
	if _, ok := agg.Finalize(); ok {
		t.Fatalf("finalize with no bucket must report none")
	}
}

func TestFloorMinuteNormalizesToUTC(t *testing.T) {
	kst := time.FixedZone("KST", 9*3600)
	ts := time.Date(2024, 5, 1, 18, 30, 45, 123, kst)
	got := FloorMinute(ts)
	want := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("FloorMinute = %v, want %v", got, want)
	}
}

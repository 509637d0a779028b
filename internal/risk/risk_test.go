package risk

import "testing"

func TestBudgetUsesMaxFraction(t *testing.T) {
	s := NewState(1000, Config{MaxFraction: 0.25, MaxDailyLoss: 0.1})
	if got := s.Budget(800); got != 200 {
		t.Fatalf("Budget(800) = %v, want 200", got)
	}
}

func TestMaxFractionDefaultsToFull(t *testing.T) {
	s := NewState(1000, Config{MaxFraction: 0})
	if got := s.MaxFraction(); got != 1.0 {
		t.Fatalf("MaxFraction = %v, want 1.0", got)
	}
	s = NewState(1000, Config{MaxFraction: 3})
	if got := s.MaxFraction(); got != 1.0 {
		t.Fatalf("out-of-range MaxFraction = %v, want 1.0", got)
	}
}

func TestCheckEquityTripsLatchOnce(t *testing.T) {
	s := NewState(1000, Config{MaxFraction: 1, MaxDailyLoss: 0.1})
	if s.CheckEquity(950) {
		t.Fatalf("5%% drawdown should not halt a 10%% stop")
	}
	if s.Halted() {
		t.Fatalf("latch tripped early")
	}
	if !s.CheckEquity(900) {
		t.Fatalf("10%% drawdown should trip the latch")
	}
	if !s.Halted() {
		t.Fatalf("latch not set")
	}
	if s.Reason() != ReasonDailyLoss {
		t.Fatalf("reason = %q, want %q", s.Reason(), ReasonDailyLoss)
	}
	// subsequent checks report false since it already tripped
	if s.CheckEquity(100) {
		t.Fatalf("second trip reported")
	}
}

func TestCheckEquityDisabledStop(t *testing.T) {
	s := NewState(1000, Config{MaxFraction: 1, MaxDailyLoss: 0})
	if s.CheckEquity(1) {
		t.Fatalf("disabled stop must never halt")
	}
	if s.Halted() {
		t.Fatalf("latch set with stop disabled")
	}
}

func TestAllowEntryWhileHalted(t *testing.T) {
	s := NewState(1000, Config{MaxFraction: 1, MaxDailyLoss: 0.1})
	if !s.AllowEntry() {
		t.Fatalf("entries should be allowed before halt")
	}
	s.Halt("")
	if s.AllowEntry() {
		t.Fatalf("entries allowed after halt")
	}
	if s.Reason() != ReasonManual {
		t.Fatalf("reason = %q, want %q", s.Reason(), ReasonManual)
	}
}

func TestHaltPreservesFirstReason(t *testing.T) {
	s := NewState(1000, Config{MaxFraction: 1})
	if !s.Halt(ReasonDailyLoss) {
		t.Fatalf("first halt should report the trip")
	}
	if s.Halt("later") {
		t.Fatalf("second halt should be a no-op")
	}
	if s.Reason() != ReasonDailyLoss {
		t.Fatalf("reason overwritten: %q", s.Reason())
	}
}

package strategy

import (
	"strings"
	"testing"
)

func TestDefaultRegistryBuildsEveryName(t *testing.T) {
	reg := DefaultRegistry()
	names := reg.Names()
	if len(names) != 5 {
		t.Fatalf("registered %d strategies, want 5: %v", len(names), names)
	}
	for _, name := range names {
		s, err := reg.New(name, nil)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if s.Name() == "" {
			t.Fatalf("strategy %q has empty name", name)
		}
	}
}

func TestRegistryUnknownName(t *testing.T) {
	reg := DefaultRegistry()
	_, err := reg.New("momentum-9000", nil)
	if err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
	if !strings.Contains(err.Error(), "momentum-9000") {
		t.Fatalf("error does not name the strategy: %v", err)
	}
}

func TestRegistryAppliesOverrides(t *testing.T) {
	reg := DefaultRegistry()
	s, err := reg.New("sma-crossover", Params{"fast": 3, "slow": 30})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := RequiredBars(s); got != 31 {
		t.Fatalf("RequiredBars = %d, want 31 from slow=30 override", got)
	}
}

func TestRegistryRejectsInvalidOverrides(t *testing.T) {
	reg := DefaultRegistry()
	if _, err := reg.New("sma-crossover", Params{"fast": 50, "slow": 5}); err == nil {
		t.Fatalf("expected validation error for fast >= slow")
	}
}

func TestRegistryNameLookupIsCaseInsensitive(t *testing.T) {
	reg := DefaultRegistry()
	if _, err := reg.New("  SMA-Crossover ", nil); err != nil {
		t.Fatalf("New with padded mixed case: %v", err)
	}
}

func TestParseParams(t *testing.T) {
	p, err := ParseParams([]string{"fast=5", "tp_pct=0.01", "exit_to_mid=1"})
	if err != nil {
		t.Fatalf("ParseParams: %v", err)
	}
	if p.intOr("fast", 0) != 5 {
		t.Fatalf("fast = %v", p["fast"])
	}
	if p.floatOr("tp_pct", 0) != 0.01 {
		t.Fatalf("tp_pct = %v", p["tp_pct"])
	}
	if !p.boolOr("exit_to_mid", false) {
		t.Fatalf("exit_to_mid should be true")
	}
}

func TestParseParamsRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"fast", "fast=", "=5", "fast=abc", "fast=1x"} {
		if _, err := ParseParams([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestParseParamsEmpty(t *testing.T) {
	p, err := ParseParams(nil)
	if err != nil {
		t.Fatalf("ParseParams(nil): %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil params, got %v", p)
	}
}

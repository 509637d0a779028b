// Package risk holds the portfolio-wide risk state shared by every market
// trader in a live or paper session.
package risk

import (
	"sync"
	"sync/atomic"
)

// Halt reasons recorded when the latch trips.
const (
	ReasonDailyLoss = "max_daily_loss"
	ReasonManual    = "manual"
)

// Config carries the risk knobs a session starts with.
type Config struct {
	MaxFraction  float64 // capital fraction committed per entry
	MaxDailyLoss float64 // drawdown fraction from session-start equity, 0 disables
	CooldownBars int
}

// State tracks equity against the session-start baseline and latches HALTED
// once the daily-loss stop is breached. Once halted, entries are refused in
// every market; exits stay allowed so open positions can unwind.
type State struct {
	cfg         Config
	startEquity float64

	halted atomic.Bool

	mu     sync.Mutex
	reason string
}

// NewState captures the session-start equity baseline.
func NewState(startEquity float64, cfg Config) *State {
	if cfg.MaxFraction <= 0 || cfg.MaxFraction > 1 {
		cfg.MaxFraction = 1.0
	}
	return &State{cfg: cfg, startEquity: startEquity}
}

// StartEquity returns the baseline captured at construction.
func (s *State) StartEquity() float64 { return s.startEquity }

// MaxFraction returns the per-entry capital fraction.
func (s *State) MaxFraction() float64 { return s.cfg.MaxFraction }

// CooldownBars returns the minimum bar gap between trades.
func (s *State) CooldownBars() int { return s.cfg.CooldownBars }

// Budget sizes an entry from available cash.
func (s *State) Budget(cash float64) float64 {
	return cash * s.cfg.MaxFraction
}

// CheckEquity compares the current portfolio equity estimate against the
// baseline and trips the halt latch when the configured daily loss is
// breached. It reports whether this call tripped the latch.
func (s *State) CheckEquity(equity float64) bool {
	if s.cfg.MaxDailyLoss <= 0 || s.startEquity <= 0 || s.halted.Load() {
		return false
	}
	if equity > s.startEquity*(1-s.cfg.MaxDailyLoss) {
		return false
	}
	return s.halt(ReasonDailyLoss)
}

// Halt trips the latch with an explicit reason, returning false when it was
// already tripped.
func (s *State) Halt(reason string) bool {
	if reason == "" {
		reason = ReasonManual
	}
	return s.halt(reason)
}

func (s *State) halt(reason string) bool {
	if s.halted.Swap(true) {
		return false
	}
	s.mu.Lock()
	s.reason = reason
	s.mu.Unlock()
	return true
}

// Halted reports whether the latch has tripped.
func (s *State) Halted() bool { return s.halted.Load() }

// Reason returns the halt reason, empty while running.
func (s *State) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// AllowEntry gates new positions. Exits are never gated here.
func (s *State) AllowEntry() bool { return !s.halted.Load() }

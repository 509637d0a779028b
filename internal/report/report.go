// Package report persists run artifacts: a metrics record with provenance,
// a state snapshot, a human-readable summary, and a JSONL event stream.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anc5557/upbit-auto/internal/engine"
)

// Provenance identifies where a run's bars came from.
type Provenance struct {
	DataSource string    `json:"data_source"` // "exchange", "csv:<path>", "live"
	Rows       int       `json:"rows"`
	TimeFrom   time.Time `json:"time_from"`
	TimeTo     time.Time `json:"time_to"`
}

// Metrics is the persisted record of one run: the engine's output plus
// provenance and the effective parameters that produced it.
type Metrics struct {
	engine.Result
	Provenance Provenance         `json:"provenance"`
	Strategy   string             `json:"strategy"`
	Params     map[string]float64 `json:"params,omitempty"`
	Config     engine.Config      `json:"config"`
	CreatedAt  time.Time          `json:"created_at"`
}

// Snapshot captures what a run was, independent of how it scored.
type Snapshot struct {
	Mode         string    `json:"mode"` // backtest | paper | live
	Strategy     string    `json:"strategy"`
	Markets      []string  `json:"markets"`
	MaxFraction  float64   `json:"max_fraction"`
	MaxDailyLoss float64   `json:"max_daily_loss"`
	CooldownBars int       `json:"cooldown_bars"`
	StopDrawdown float64   `json:"stop_drawdown"`
	HaltReason   string    `json:"halt_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// WriteJSON writes any artifact as indented JSON, creating parent dirs.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Summary renders a run as Markdown for quick reading.
func Summary(m Metrics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run Summary\n\n")
	fmt.Fprintf(&b, "- Strategy: %s\n", m.Strategy)
	fmt.Fprintf(&b, "- Data: %s (%d bars", m.Provenance.DataSource, m.Provenance.Rows)
	if !m.Provenance.TimeFrom.IsZero() {
		fmt.Fprintf(&b, ", %s to %s",
			m.Provenance.TimeFrom.Format("2006-01-02 15:04"),
			m.Provenance.TimeTo.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&b, ")\n\n")
	fmt.Fprintf(&b, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Final equity | %.2f |\n", m.EquityFinal)
	fmt.Fprintf(&b, "| Return | %.2f%% |\n", m.ReturnPct)
	fmt.Fprintf(&b, "| Max drawdown | %.2f%% |\n", m.MaxDrawdownPct)
	fmt.Fprintf(&b, "| Trades | %d |\n", m.Trades)
	fmt.Fprintf(&b, "| Win rate | %.2f%% |\n", m.WinRatePct)
	fmt.Fprintf(&b, "| Avg trade | %.2f%% |\n", m.AvgTradePct)
	fmt.Fprintf(&b, "| Sharpe | %.2f |\n", m.Sharpe)
	fmt.Fprintf(&b, "| Stopped | %s |\n", m.StoppedReason)
	return b.String()
}

// WriteSummary writes the Markdown summary next to the other artifacts.
func WriteSummary(path string, m Metrics) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(Summary(m)), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

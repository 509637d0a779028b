package main

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/anc5557/upbit-auto/internal/config"
	"github.com/anc5557/upbit-auto/internal/engine"
	"github.com/anc5557/upbit-auto/internal/market"
	"github.com/anc5557/upbit-auto/internal/report"
	"github.com/anc5557/upbit-auto/internal/strategy"
	"github.com/anc5557/upbit-auto/internal/upbit"
	"github.com/anc5557/upbit-auto/internal/util"
)

func main() {
	var (
		cfgPath   = flag.String("config", "config.yaml", "path to the YAML config")
		csvPath   = flag.String("csv", "", "load bars from a CSV file instead of the exchange")
		marketArg = flag.String("market", "", "market code to fetch, e.g. KRW-BTC (overrides config)")
		count     = flag.Int("count", 1000, "number of 1-minute bars to fetch")
		stratName = flag.String("strategy", "", "strategy name (overrides config)")
		params    multiFlag
		runDir    = flag.String("out", "runs", "directory for run artifacts")
	)
	flag.Var(&params, "param", "strategy override as key=value, repeatable")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fallback := util.NewLogger("info")
		fallback.Fatal().Err(err).Msg("load config")
	}
	if *stratName != "" {
		cfg.Strategy.Name = *stratName
	}
	if err := cfg.Validate(); err != nil {
		fallback := util.NewLogger("info")
		fallback.Fatal().Err(err).Msg("invalid config")
	}

	runPath := filepath.Join(*runDir, time.Now().UTC().Format("20060102-150405"))
	log, closer, err := util.NewRunLogger(cfg.App.LogLevel, filepath.Join(runPath, "run.log"))
	if err != nil {
		fallback := util.NewLogger("info")
		fallback.Fatal().Err(err).Msg("open run log")
	}
	defer closer.Close()

	overrides, err := strategy.ParseParams(params)
	if err != nil {
		log.Fatal().Err(err).Msg("bad strategy params")
	}
	merged := strategy.Params(cfg.Strategy.Params)
	if merged == nil && len(overrides) > 0 {
		merged = strategy.Params{}
	}
	for k, v := range overrides {
		merged[k] = v
	}

	strat, err := strategy.DefaultRegistry().New(cfg.Strategy.Name, merged)
	if err != nil {
		log.Fatal().Err(err).Msg("build strategy")
	}

	bars, source, err := loadBars(cfg, *csvPath, *marketArg, *count)
	if err != nil {
		log.Fatal().Err(err).Msg("load bars")
	}
	if len(bars) == 0 {
		log.Fatal().Msg("no bars to backtest")
	}
	log.Info().Str("source", source).Int("bars", len(bars)).Str("strategy", strat.Name()).Msg("backtest.start")

	result := engine.RunBacktest(bars, strat, engine.Config{
		Cash:         cfg.Trading.Cash,
		Fee:          cfg.Trading.Fee,
		Slippage:     cfg.Trading.Slippage,
		MaxFraction:  cfg.Risk.MaxFraction,
		CooldownBars: cfg.Risk.CooldownBars,
		StopDrawdown: cfg.Risk.StopDrawdown,
	})

	metricsRec := report.Metrics{
		Result: result,
		Provenance: report.Provenance{
			DataSource: source,
			Rows:       len(bars),
			TimeFrom:   bars[0].Start,
			TimeTo:     bars[len(bars)-1].Start,
		},
		Strategy:  strat.Name(),
		Params:    merged,
		Config:    engine.Config{Cash: cfg.Trading.Cash, Fee: cfg.Trading.Fee, Slippage: cfg.Trading.Slippage, MaxFraction: cfg.Risk.MaxFraction, CooldownBars: cfg.Risk.CooldownBars, StopDrawdown: cfg.Risk.StopDrawdown},
		CreatedAt: time.Now().UTC(),
	}
	if err := report.WriteJSON(filepath.Join(runPath, "metrics.json"), metricsRec); err != nil {
		log.Error().Err(err).Msg("write metrics")
	}
	if err := report.WriteSummary(filepath.Join(runPath, "summary.md"), metricsRec); err != nil {
		log.Error().Err(err).Msg("write summary")
	}

	log.Info().
		Float64("equity_final", result.EquityFinal).
		Float64("return_pct", result.ReturnPct).
		Float64("mdd_pct", result.MaxDrawdownPct).
		Int("trades", result.Trades).
		Float64("sharpe", result.Sharpe).
		Str("stopped", result.StoppedReason).
		Str("run_dir", runPath).
		Msg("backtest.done")
}

func loadBars(cfg *config.Config, csvPath, marketArg string, count int) ([]market.Bar, string, error) {
	if csvPath != "" {
		bars, err := market.LoadCSV(csvPath)
		return bars, "csv:" + csvPath, err
	}
	code := marketArg
	if code == "" && len(cfg.Live.Markets) > 0 {
		code = cfg.Live.Markets[0]
	}
	if code == "" {
		return nil, "", fmt.Errorf("no market given: pass -market or set live.markets")
	}
	client := upbit.New(cfg.Exchange.AccessKey, cfg.Exchange.SecretKey, upbit.WithBaseURL(baseURLOr(cfg)))
	bars, err := client.MinuteCandles(context.Background(), code, 1, count)
	return bars, "exchange:" + code, err
}

func baseURLOr(cfg *config.Config) string {
	if cfg.Exchange.BaseURL != "" {
		return cfg.Exchange.BaseURL
	}
	return "https://api.upbit.com/v1"
}

// multiFlag collects repeated -param flags.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/anc5557/upbit-auto/internal/config"
	"github.com/anc5557/upbit-auto/internal/live"
	"github.com/anc5557/upbit-auto/internal/metrics"
	"github.com/anc5557/upbit-auto/internal/report"
	"github.com/anc5557/upbit-auto/internal/risk"
	"github.com/anc5557/upbit-auto/internal/strategy"
	"github.com/anc5557/upbit-auto/internal/upbit"
	"github.com/anc5557/upbit-auto/internal/util"
)

func main() {
	var (
		cfgPath   = flag.String("config", "config.yaml", "path to the YAML config")
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
	if err := cfg.ValidateLive(); err != nil {
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

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

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
	registry := strategy.DefaultRegistry()
	// fail fast on a bad name or params before touching the exchange
	if _, err := registry.New(cfg.Strategy.Name, merged); err != nil {
		log.Fatal().Err(err).Msg("build strategy")
	}

	hours, err := live.ParseHourWindows(cfg.Live.AllowedHours)
	if err != nil {
		log.Fatal().Err(err).Msg("parse allowed hours")
	}

	var clientOpts []upbit.Option
	if cfg.Exchange.BaseURL != "" {
		clientOpts = append(clientOpts, upbit.WithBaseURL(cfg.Exchange.BaseURL))
	}
	clientOpts = append(clientOpts, upbit.WithLogger(log))
	client := upbit.New(cfg.Exchange.AccessKey, cfg.Exchange.SecretKey, clientOpts...)

	recorder, err := report.NewJSONLRecorder(filepath.Join(runPath, "events.jsonl"))
	if err != nil {
		log.Fatal().Err(err).Msg("open event recorder")
	}
	defer recorder.Close()

	portfolio, err := live.NewPortfolio(live.PortfolioConfig{
		Session: live.SessionConfig{URL: cfg.Exchange.WSURL},
		Trader: live.TraderConfig{
			CandleUnit:     cfg.Live.CandleUnit,
			ATRTrailMult:   cfg.Live.ATRTrailMult,
			ATRPeriod:      cfg.Live.ATRPeriod,
			PartialTPPct:   cfg.Live.PartialTPPct,
			PartialTPRatio: cfg.Live.PartialTPRatio,
			Hours:          hours,
			PrefetchBars:   cfg.Live.PrefetchBars,
		},
		Markets: cfg.Live.Markets,
		Risk: risk.Config{
			MaxFraction:  cfg.Risk.MaxFraction,
			MaxDailyLoss: cfg.Risk.MaxDailyLoss,
			CooldownBars: cfg.Risk.CooldownBars,
		},
		Recorder: recorder,
	}, func() (strategy.Strategy, error) {
		return registry.New(cfg.Strategy.Name, merged)
	}, client, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build portfolio")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info().Strs("markets", cfg.Live.Markets).Str("strategy", cfg.Strategy.Name).Msg("live.start")
	result, err := portfolio.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("live.stopped")
	}

	snap := report.Snapshot{
		Mode:         "live",
		Strategy:     cfg.Strategy.Name,
		Markets:      cfg.Live.Markets,
		MaxFraction:  cfg.Risk.MaxFraction,
		MaxDailyLoss: cfg.Risk.MaxDailyLoss,
		CooldownBars: cfg.Risk.CooldownBars,
		HaltReason:   result.Reason,
		CreatedAt:    time.Now().UTC(),
	}
	if err := report.WriteJSON(filepath.Join(runPath, "state.json"), snap); err != nil {
		log.Error().Err(err).Msg("write state snapshot")
	}
	if err := report.WriteJSON(filepath.Join(runPath, "result.json"), result); err != nil {
		log.Error().Err(err).Msg("write result")
	}

	log.Info().
		Str("reason", result.Reason).
		Float64("start_equity", result.StartEquity).
		Float64("final_equity", result.FinalEquity).
		Str("run_dir", runPath).
		Msg("live.done")
}

// multiFlag collects repeated -param flags.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"quantumfx/broker"
	"quantumfx/config"
	"quantumfx/engine"
	"quantumfx/feed"
	"quantumfx/journal"
	"quantumfx/logger"
	"quantumfx/risk"
	"quantumfx/system"
	"quantumfx/types"
)

func main() {
	var cfgPath string
	var paperEquity float64

	root := &cobra.Command{
		Use:   "quantumfx",
		Short: "Tick-statistics trading engine with drawdown-aware risk sizing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfgPath, paperEquity)
		},
	}
	root.Flags().StringVarP(&cfgPath, "config", "c", "config.yaml", "path to the YAML configuration")
	root.Flags().Float64Var(&paperEquity, "paper-equity", 10_000, "starting equity for the paper broker")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfgPath string, paperEquity float64) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	log, err := logger.NewWithFile(cfg.App.LogLevel, logger.FileConfig{Path: cfg.App.LogFile})
	if err != nil {
		return err
	}
	log.Info("starting", logger.String("app", cfg.App.Name))

	brk := broker.NewPaper(paperEquity, 100, log)
	for _, symbol := range cfg.SymbolNames() {
		r := cfg.RiskFor(symbol)
		brk.SeedSymbol(types.SymbolInfo{
			Name:         symbol,
			PipSize:      r.PipSize,
			ContractSize: r.ContractSize,
			Digits:       5,
			VolumeStep:   0.01,
			VolumeMin:    0.01,
			VolumeMax:    100,
		})
	}

	eng := engine.New(cfg, log)
	tracker := risk.NewDrawdownTracker(paperEquity, cfg.Drawdown, log)
	sizer := risk.NewSizer(cfg, eng, brk, log)
	confirm := engine.NewConfirmationFilter(5, log)

	var orders system.OrderRecorder
	if cfg.Journal.Enabled && cfg.Journal.Path != "" {
		jrn, err := journal.Open(cfg.Journal.Path, log)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer jrn.Close()
		eng.SetRecorder(jrn)
		orders = jrn
	}

	sys := system.New(cfg, eng, tracker, sizer, brk, confirm, orders, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.App.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.App.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics_server_failed", logger.Err(err))
			}
		}()
		defer srv.Close()
	}

	if cfg.Feed.URL != "" {
		src := feed.NewSource(cfg.Feed, sys, log)
		go func() {
			if err := src.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("feed_stopped", logger.Err(err))
			}
		}()
	} else {
		log.Warn("no_feed_configured")
	}

	err = sys.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

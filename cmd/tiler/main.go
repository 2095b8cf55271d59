package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"terraintiles/internal/assets"
	"terraintiles/internal/config"
	"terraintiles/internal/metrics"
	"terraintiles/internal/pipeline"
	"terraintiles/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/tiler.yaml", "config path")
		envPath    = flag.String("env", ".env", "credentials env file (optional)")
		gridName   = flag.String("grid", "", "process only this grid")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[tiler] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	s, err := store.Open(cfg.DSN)
	if err != nil {
		logger.Fatalf("store: %v", err)
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Init(ctx); err != nil {
		logger.Fatalf("store: %v", err)
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Printf("metrics listener: %v", err)
			}
		}()
	}

	if cfg.AssetDir != "" {
		if err := os.MkdirAll(cfg.AssetDir, 0o755); err != nil {
			logger.Fatalf("asset dir: %v", err)
		}
	}

	pass := &pipeline.Pass{
		Store:        s,
		Generator:    &assets.FileGenerator{Dir: cfg.AssetDir, Prefix: cfg.AssetPrefix},
		Checker:      &assets.Checker{BaseURL: cfg.AssetBaseURL},
		Levels:       cfg.Levels,
		CornersTouch: cfg.CornersTouch,
		Logger:       logger,
	}

	grids := cfg.Grids
	if *gridName != "" {
		grids = []string{*gridName}
	}
	if err := pass.Run(ctx, grids); err != nil {
		logger.Printf("pass failed (%s): %v", pipeline.ErrorCode(err), err)
		os.Exit(1)
	}
	logger.Printf("pass complete")
}

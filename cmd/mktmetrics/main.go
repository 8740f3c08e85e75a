package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"mktmetrics/internal/application/usecase/monitor"
	"mktmetrics/internal/infrastructure/config"
	"mktmetrics/internal/infrastructure/logger"
	"mktmetrics/internal/infrastructure/svc"
	"mktmetrics/internal/interfaces/console"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	once := flag.Bool("once", false, "collect one sample per market, print it and exit")
	flag.Parse()

	closeLog := logger.Setup(logger.Options{})
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error().Err(err).Str("config", *configPath).Msg("load config failed")
		return 1
	}
	_ = closeLog()
	closeLog = logger.Setup(logger.Options{Level: cfg.App.LogLevel, File: cfg.App.LogFile})
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("service initialization failed")
		return 1
	}
	defer sc.Close()

	log.Info().
		Str("config", *configPath).
		Strs("markets", cfg.Markets.List).
		Dur("interval", cfg.MonitoringInterval()).
		Dur("poll_interval", cfg.PollInterval()).
		Msg("market metrics monitor initialized")

	sc.StartBookFeed()
	service := monitor.NewService(sc.BuildMonitorServiceDeps())

	if *once {
		if err := collectOnce(ctx, sc, service); err != nil {
			log.Error().Err(err).Msg("single collection failed")
			return 1
		}
		return 0
	}

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("monitor service exited")
		return 1
	}
	log.Info().Msg("shutdown complete")
	return 0
}

func collectOnce(ctx context.Context, sc *svc.ServiceContext, service *monitor.Service) error {
	if err := sc.PriceFeed().Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("price feed unavailable, sampling without it")
	}
	if missing := sc.WaitForBooks(ctx, 5*time.Second); len(missing) > 0 {
		log.Warn().Strs("markets", missing).Msg("no order book snapshot yet")
	}

	out := console.NewSink(true)
	for _, coin := range sc.Config.Markets.List {
		if err := sc.Store().EnsureTable(ctx, coin); err != nil {
			return fmt.Errorf("provision %s: %w", coin, err)
		}
		m, err := service.CollectOnce(ctx, coin)
		if err != nil {
			return fmt.Errorf("collect %s: %w", coin, err)
		}
		if !sc.Config.App.Console {
			_ = out.Publish(ctx, m)
		}

		if lite := sc.SQLite(); lite != nil {
			if n, err := lite.Count(ctx, coin); err == nil {
				log.Info().Str("coin", coin).Int64("rows", n).Msg("sqlite table size")
			}
		}
	}
	return nil
}

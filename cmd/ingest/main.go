package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/newsrec/internal/app"
	"github.com/timmy/newsrec/internal/config"
	"github.com/timmy/newsrec/internal/logger"
	"github.com/timmy/newsrec/internal/service"
)

func main() {
	appLogger := logger.New(logger.LoadFromEnv("newsrec-ingest"))
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	configPath := flag.String("config", "", "Path to config file")
	interval := flag.Duration("interval", 0, "Run periodically at this interval (0 runs once; overrides pipeline.interval)")
	retryPending := flag.Bool("retry", false, "Only retry articles left pending by earlier runs")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	every := cfg.Pipeline.Interval
	if *interval > 0 {
		every = *interval
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	application, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer application.Close()

	appLogger.WithFields(logger.Fields{
		"feeds":    len(cfg.Feeds.Categories),
		"retry":    *retryPending,
		"interval": every.String(),
	}).Info("Starting ingestion")

	run := func() error {
		var (
			res *service.RunResult
			err error
		)
		if *retryPending {
			res, err = application.Pipeline.RetryPending(ctx)
		} else {
			res, err = application.Pipeline.Run(ctx)
		}
		if err != nil {
			return err
		}
		appLogger.WithFields(logger.Fields{
			"run_id":  res.RunID,
			"fetched": res.Stats.Fetched,
			"indexed": res.Stats.Indexed,
			"failed":  res.Stats.Failed,
		}).Info("Ingestion completed")
		return nil
	}

	if every <= 0 {
		if err := run(); err != nil {
			appLogger.WithError(err).Error("Pipeline run failed")
			application.Close()
			os.Exit(1)
		}
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if err := run(); err != nil {
			appLogger.WithError(err).Error("Pipeline run failed")
		}
		select {
		case <-ctx.Done():
			appLogger.Info("Ingest loop stopped")
			return
		case <-ticker.C:
		}
	}
}

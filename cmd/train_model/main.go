package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"sentimentlab/config"
	"sentimentlab/logging"
	"sentimentlab/tracking"
	"sentimentlab/trainer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "training failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.DefaultPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := tracking.Open(cfg.Tracking.URI)
	if err != nil {
		return fmt.Errorf("open tracking store: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := trainer.Run(ctx, tracking.NewClient(store), trainer.Config{
		DataPath:      cfg.Training.DataPath,
		Experiment:    cfg.Tracking.Experiment,
		PositiveLabel: cfg.Training.PositiveLabel,
		TestRatio:     cfg.Training.TestRatio,
		RandomState:   cfg.Training.RandomState,
	}, logger)
	if err != nil {
		logger.Error("training failed", zap.Error(err))
		return err
	}

	fmt.Printf("Model Accuracy: %v\n", result.Accuracy)
	fmt.Printf("run %s logged to %s\n", result.RunID, tracking.ModelURI(result.RunID))
	return nil
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"sentimentlab/config"
	shttp "sentimentlab/http"
	"sentimentlab/logging"
	"sentimentlab/registry"
	"sentimentlab/tracking"
)

func main() {
	// 1. Load config
	cfg, err := config.Load(config.DefaultPath)
	if err != nil {
		logging.Must(logging.Options{}).Fatal("failed to load config", zap.Error(err))
	}

	logger := logging.Must(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logger.Sync()

	// 2. Open tracking store and load the newest model
	store, err := tracking.Open(cfg.Tracking.URI)
	if err != nil {
		logger.Fatal("failed to open tracking store", zap.String("uri", cfg.Tracking.URI), zap.Error(err))
	}
	defer store.Close()

	loaded, err := registry.LoadLatest(context.Background(), store)
	switch {
	case errors.Is(err, tracking.ErrNoActiveExperiments), errors.Is(err, tracking.ErrNoRuns):
		logger.Fatal("no model to serve; run the trainer first", zap.String("uri", cfg.Tracking.URI), zap.Error(err))
	case err != nil:
		logger.Fatal("failed to load model", zap.Error(err))
	}
	logger.Info("model loaded",
		zap.String("run_id", loaded.RunID()),
		zap.String("model_uri", loaded.URI()),
		zap.String("flavor", loaded.Flavor),
		zap.Strings("experiments", experimentNames(loaded.Selection.Experiments)))

	// 3. Start HTTP server
	metrics := shttp.NewMetrics()
	metrics.SetModel(loaded.RunID(), loaded.Flavor)
	info := shttp.ModelInfo{RunID: loaded.RunID(), URI: loaded.URI(), Flavor: loaded.Flavor}
	handler, err := shttp.NewHandler(loaded.Model, info, cfg.Cache.Size, metrics, logger)
	if err != nil {
		logger.Fatal("failed to create handler", zap.Error(err))
	}
	server := shttp.NewServer(shttp.ServerConfig{
		Port:         cfg.Http.Port,
		Timeout:      cfg.Http.Timeout,
		MaxBodyBytes: cfg.Http.MaxBodyBytes,
	}, handler, metrics, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 4. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}

	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
}

func experimentNames(exps []tracking.Experiment) []string {
	names := make([]string, 0, len(exps))
	for _, e := range exps {
		names = append(names, e.Name)
	}
	return names
}

// Package trainer fits the sentiment pipeline on a CSV dataset and records
// the result as one tracked run.
package trainer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"sentimentlab/ml"
	"sentimentlab/tracking"
)

type Config struct {
	DataPath      string
	Experiment    string
	PositiveLabel string
	TestRatio     float64
	RandomState   int64
}

type Result struct {
	RunID        string
	ExperimentID string
	Accuracy     float64
	TrainSize    int
	TestSize     int
	Load         ml.LoadStats
	Fit          ml.FitReport
}

// Run executes one training invocation end to end. On any failure the run
// is discarded and nothing is written to the store.
func Run(ctx context.Context, client *tracking.Client, config Config, logger *zap.Logger) (Result, error) {
	if config.DataPath == "" {
		return Result{}, errors.New("data path is required")
	}
	if config.Experiment == "" {
		return Result{}, errors.New("experiment name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	exp, err := client.SetExperiment(ctx, config.Experiment)
	if err != nil {
		return Result{}, fmt.Errorf("set experiment: %w", err)
	}
	run := client.StartRun(exp.ID, "")
	committed := false
	defer func() {
		if !committed {
			run.Abort()
		}
	}()
	logger = logger.With(zap.String("run_id", run.ID()), zap.String("experiment", exp.Name))
	logger.Info("training run started")

	ds, stats, err := ml.LoadReviews(config.DataPath, config.PositiveLabel)
	if err != nil {
		return Result{}, err
	}
	logger.Info("dataset loaded",
		zap.String("path", config.DataPath),
		zap.Int("rows", stats.RowsRead),
		zap.Int("dropped", stats.RowsDropped))

	split, err := ml.TrainTestSplit(ds, config.TestRatio, config.RandomState)
	if err != nil {
		return Result{}, err
	}

	model := ml.NewPipeline()
	report, err := model.Fit(split.TrainX, split.TrainY)
	if err != nil {
		return Result{}, err
	}
	if !report.Converged {
		logger.Warn("optimizer did not converge",
			zap.Int("iterations", report.Iterations),
			zap.String("status", report.Status))
	}

	pred, err := model.Predict(split.TestX)
	if err != nil {
		return Result{}, err
	}
	accuracy, err := ml.Accuracy(split.TestY, pred)
	if err != nil {
		return Result{}, err
	}
	logger.Info("model evaluated",
		zap.Float64("accuracy", accuracy),
		zap.Int("train_size", len(split.TrainX)),
		zap.Int("test_size", len(split.TestX)))

	payload, err := ml.EncodeModel(model)
	if err != nil {
		return Result{}, fmt.Errorf("encode model: %w", err)
	}
	if err := run.LogParam("model_type", ml.ModelFamily); err != nil {
		return Result{}, err
	}
	if err := run.LogMetric("accuracy", accuracy); err != nil {
		return Result{}, err
	}
	if err := tracking.LogModel(run, model.Flavor(), payload); err != nil {
		return Result{}, err
	}
	if _, err := run.End(ctx); err != nil {
		return Result{}, err
	}
	committed = true

	logger.Info("model trained and logged", zap.String("model_uri", tracking.ModelURI(run.ID())))
	return Result{
		RunID:        run.ID(),
		ExperimentID: exp.ID,
		Accuracy:     accuracy,
		TrainSize:    len(split.TrainX),
		TestSize:     len(split.TestX),
		Load:         stats,
		Fit:          report,
	}, nil
}

package trainer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sentimentlab/ml"
	"sentimentlab/registry"
	"sentimentlab/tracking"
)

func writeDataset(t *testing.T) string {
	t.Helper()
	positive := []string{"great", "excellent", "love", "wonderful", "amazing"}
	negative := []string{"terrible", "awful", "hate", "broken", "poor"}
	var b strings.Builder
	b.WriteString("review,sentiment\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, "\"%s item, %s value\",positive\n", positive[i%5], positive[(i+2)%5])
		fmt.Fprintf(&b, "\"%s item, %s value\",negative\n", negative[i%5], negative[(i+3)%5])
	}
	b.WriteString(",positive\n")
	b.WriteString("no label here,\n")

	path := filepath.Join(t.TempDir(), "data", "reviews.csv")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func newClient(t *testing.T) *tracking.Client {
	t.Helper()
	store, err := tracking.NewFileStore(filepath.Join(t.TempDir(), "model_store"))
	if err != nil {
		t.Fatal(err)
	}
	return tracking.NewClient(store)
}

func testConfig(path string) Config {
	return Config{
		DataPath:      path,
		Experiment:    "Sentiment Analysis",
		PositiveLabel: ml.DefaultPositive,
		TestRatio:     ml.DefaultTestRatio,
		RandomState:   ml.DefaultRandomState,
	}
}

func TestRunLogsOneRun(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)
	result, err := Run(ctx, client, testConfig(writeDataset(t)), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Load.RowsDropped != 2 || result.TrainSize+result.TestSize != 50 {
		t.Fatalf("unexpected sizes: %+v", result)
	}

	run, err := client.Store().GetRun(ctx, result.RunID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if len(run.Params) != 1 || run.Params["model_type"] != "LogisticRegression" {
		t.Fatalf("unexpected params: %v", run.Params)
	}
	if len(run.Metrics) != 1 || run.Metrics["accuracy"].Value != result.Accuracy {
		t.Fatalf("unexpected metrics: %v", run.Metrics)
	}
	if run.Status != tracking.StatusFinished {
		t.Fatalf("unexpected status %s", run.Status)
	}
}

func TestRunIsReproducible(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)
	cfg := testConfig(writeDataset(t))
	first, err := Run(ctx, client, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Run(ctx, client, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if first.Accuracy != second.Accuracy {
		t.Fatalf("accuracy differs: %v vs %v", first.Accuracy, second.Accuracy)
	}
	if first.RunID == second.RunID {
		t.Fatal("expected distinct run ids")
	}
}

func TestLoggedModelReproducesAccuracy(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)
	path := writeDataset(t)
	result, err := Run(ctx, client, testConfig(path), nil)
	if err != nil {
		t.Fatal(err)
	}

	loaded, err := registry.LoadLatest(ctx, client.Store())
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	if loaded.RunID() != result.RunID {
		t.Fatalf("expected run %s, got %s", result.RunID, loaded.RunID())
	}

	ds, _, err := ml.LoadReviews(path, ml.DefaultPositive)
	if err != nil {
		t.Fatal(err)
	}
	split, err := ml.TrainTestSplit(ds, ml.DefaultTestRatio, ml.DefaultRandomState)
	if err != nil {
		t.Fatal(err)
	}
	pred, err := loaded.Model.Predict(split.TestX)
	if err != nil {
		t.Fatal(err)
	}
	acc, _ := ml.Accuracy(split.TestY, pred)
	run, _ := client.Store().GetRun(ctx, result.RunID)
	if acc != run.Metrics["accuracy"].Value {
		t.Fatalf("reloaded accuracy %v != logged %v", acc, run.Metrics["accuracy"].Value)
	}
}

func TestRunFailureCommitsNothing(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)
	cfg := testConfig(filepath.Join(t.TempDir(), "missing.csv"))
	if _, err := Run(ctx, client, cfg, nil); err == nil {
		t.Fatal("expected error for missing dataset")
	}

	exp, err := client.Store().GetExperimentByName(ctx, cfg.Experiment)
	if err != nil {
		t.Fatalf("experiment should exist: %v", err)
	}
	runs, err := client.Store().SearchRuns(ctx, []string{exp.ID}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs after failure, got %d", len(runs))
	}
}

func TestRunSingleClassFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reviews.csv")
	content := "review,sentiment\ngood one,positive\nnice one,positive\nfine one,positive\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Run(context.Background(), newClient(t), testConfig(path), nil); err == nil {
		t.Fatal("expected fit error for single-class data")
	}
}

func TestRunOnShippedDataset(t *testing.T) {
	cfg := testConfig(filepath.Join("..", "data", "reviews.csv"))
	result, err := Run(context.Background(), newClient(t), cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TestSize != 60 {
		t.Fatalf("expected 60 held-out rows, got %d", result.TestSize)
	}
	if result.Accuracy < 0.9 {
		t.Fatalf("expected accuracy >= 0.9 on the bundled reviews, got %v", result.Accuracy)
	}
}

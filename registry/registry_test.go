package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"sentimentlab/ml"
	"sentimentlab/tracking"
)

func newStore(t *testing.T) tracking.Store {
	t.Helper()
	store, err := tracking.NewFileStore(filepath.Join(t.TempDir(), "model_store"))
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestLoadLatestNoRuns(t *testing.T) {
	if _, err := LoadLatest(context.Background(), newStore(t)); !errors.Is(err, tracking.ErrNoRuns) {
		t.Fatalf("expected ErrNoRuns, got %v", err)
	}
}

func TestLoadLatestDecodesModel(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	client := tracking.NewClient(store)

	model := ml.NewPipeline()
	texts := []string{"great product", "love it", "awful thing", "broken junk"}
	if _, err := model.Fit(texts, []int{1, 1, 0, 0}); err != nil {
		t.Fatal(err)
	}
	payload, err := ml.EncodeModel(model)
	if err != nil {
		t.Fatal(err)
	}

	run := client.StartRun(tracking.DefaultExperimentID, "")
	if err := tracking.LogModel(run, model.Flavor(), payload); err != nil {
		t.Fatal(err)
	}
	if _, err := run.End(ctx); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadLatest(ctx, store)
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	if loaded.RunID() != run.ID() || loaded.Flavor != ml.FlavorTFIDFLogReg {
		t.Fatalf("unexpected model: %+v", loaded)
	}
	if loaded.URI() != "runs:/"+run.ID()+"/model" {
		t.Fatalf("unexpected uri %s", loaded.URI())
	}
	for _, text := range texts {
		want, _ := model.PredictOne(text)
		got, err := loaded.Model.PredictOne(text)
		if err != nil || got != want {
			t.Fatalf("prediction mismatch for %q: %d vs %d (%v)", text, got, want, err)
		}
	}
}

func TestLoadUnknownFlavor(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	run := tracking.NewClient(store).StartRun(tracking.DefaultExperimentID, "")
	if err := tracking.LogModel(run, "onnx", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := run.End(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadLatest(ctx, store); err == nil {
		t.Fatal("expected error for unsupported flavor")
	}
}

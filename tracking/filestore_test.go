package tracking

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreFailedDeleteKeepsStage(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "model_store"))
	if err != nil {
		t.Fatal(err)
	}
	exp, err := store.CreateExperiment(ctx, "Sentiment Analysis")
	if err != nil {
		t.Fatal(err)
	}

	// A non-empty directory at the trash target makes the rename fail.
	blocker := filepath.Join(store.Root(), trashDir, exp.ID)
	if err := os.MkdirAll(blocker, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(blocker, "stale"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteExperiment(ctx, exp.ID); err == nil {
		t.Fatal("expected delete to fail")
	}
	got, err := readExperimentMeta(filepath.Join(store.Root(), exp.ID))
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}
	if !got.Active() {
		t.Fatalf("experiment left in the live tree must stay active, got %s", got.LifecycleStage)
	}
}

package tracking

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFindLatestRunSkipsDeletedExperiments(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			store := f.open(t)
			a, _ := store.CreateExperiment(ctx, "A")
			b, _ := store.CreateExperiment(ctx, "B")
			commitRun(t, store, "a-old", a.ID, base)
			commitRun(t, store, "a-new", a.ID, base.Add(time.Hour))
			commitRun(t, store, "b-newest", b.ID, base.Add(48*time.Hour))
			if err := store.DeleteExperiment(ctx, b.ID); err != nil {
				t.Fatal(err)
			}

			sel, err := FindLatestRun(ctx, store)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sel.Run.ID != "a-new" {
				t.Fatalf("expected a-new, got %s", sel.Run.ID)
			}
			if sel.ModelURI() != "runs:/a-new/model" {
				t.Fatalf("unexpected model uri %s", sel.ModelURI())
			}
			for _, exp := range sel.Experiments {
				if exp.ID == b.ID {
					t.Fatal("deleted experiment listed as candidate")
				}
			}
		})
	}
}

func TestFindLatestRunNoActiveExperiments(t *testing.T) {
	ctx := context.Background()
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			store := f.open(t)
			exp, _ := store.CreateExperiment(ctx, "A")
			commitRun(t, store, "r1", exp.ID, time.Now())
			for _, id := range []string{DefaultExperimentID, exp.ID} {
				if err := store.DeleteExperiment(ctx, id); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := FindLatestRun(ctx, store); !errors.Is(err, ErrNoActiveExperiments) {
				t.Fatalf("expected ErrNoActiveExperiments, got %v", err)
			}
		})
	}
}

func TestFindLatestRunNoRuns(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			store := f.open(t)
			if _, err := FindLatestRun(context.Background(), store); !errors.Is(err, ErrNoRuns) {
				t.Fatalf("expected ErrNoRuns, got %v", err)
			}
		})
	}
}

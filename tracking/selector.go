package tracking

import (
	"context"
	"errors"
	"fmt"
)

const ModelArtifactPath = "model"

var (
	ErrNoActiveExperiments = errors.New("could not find any active experiments in the tracking store")
	ErrNoRuns              = errors.New("found active experiments, but they contain no runs")
)

// Selection is the run chosen for serving.
type Selection struct {
	Run         Run
	Experiments []Experiment
}

// ModelURI addresses the model artifact of the selected run.
func (s Selection) ModelURI() string {
	return ModelURI(s.Run.ID)
}

func ModelURI(runID string) string {
	return fmt.Sprintf("runs:/%s/%s", runID, ModelArtifactPath)
}

// FindLatestRun picks the most recently started run across all active
// experiments.
func FindLatestRun(ctx context.Context, store Store) (Selection, error) {
	experiments, err := store.ListExperiments(ctx)
	if err != nil {
		return Selection{}, fmt.Errorf("list experiments: %w", err)
	}
	var (
		active []Experiment
		ids    []string
	)
	for _, exp := range experiments {
		if exp.Active() {
			active = append(active, exp)
			ids = append(ids, exp.ID)
		}
	}
	if len(active) == 0 {
		return Selection{}, ErrNoActiveExperiments
	}

	runs, err := store.SearchRuns(ctx, ids, 1)
	if err != nil {
		return Selection{}, fmt.Errorf("search runs: %w", err)
	}
	if len(runs) == 0 {
		return Selection{Experiments: active}, ErrNoRuns
	}
	return Selection{Run: runs[0], Experiments: active}, nil
}

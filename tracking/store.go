// Package tracking records training runs and their artifacts, and selects
// the run a server should load at startup.
package tracking

import (
	"context"
	"errors"
	"sort"
	"time"
)

// LifecycleStage marks whether an experiment or run is visible to searches.
type LifecycleStage string

const (
	StageActive  LifecycleStage = "active"
	StageDeleted LifecycleStage = "deleted"
)

// RunStatus is the terminal state recorded for a run.
type RunStatus string

const (
	StatusRunning  RunStatus = "RUNNING"
	StatusFinished RunStatus = "FINISHED"
	StatusFailed   RunStatus = "FAILED"
)

const (
	DefaultExperimentID   = "0"
	DefaultExperimentName = "Default"
)

var (
	ErrNotFound          = errors.New("tracking: not found")
	ErrExperimentExists  = errors.New("tracking: experiment already exists")
	ErrExperimentDeleted = errors.New("tracking: experiment is deleted")
)

// Experiment groups runs under a name.
type Experiment struct {
	ID               string
	Name             string
	ArtifactLocation string
	LifecycleStage   LifecycleStage
	CreationTime     time.Time
	LastUpdateTime   time.Time
}

func (e Experiment) Active() bool { return e.LifecycleStage == StageActive }

// Metric is one logged metric value.
type Metric struct {
	Key       string
	Value     float64
	Timestamp time.Time
	Step      int64
}

// Run is one training invocation with everything it logged.
type Run struct {
	ID             string
	Name           string
	ExperimentID   string
	Status         RunStatus
	StartTime      time.Time
	EndTime        time.Time
	LifecycleStage LifecycleStage
	ArtifactURI    string
	Params         map[string]string
	Metrics        map[string]Metric
}

// Store persists experiments and runs. Implementations commit a run and its
// artifacts atomically: after a failed CommitRun the run does not exist.
type Store interface {
	ListExperiments(ctx context.Context) ([]Experiment, error)
	GetExperimentByName(ctx context.Context, name string) (Experiment, error)
	CreateExperiment(ctx context.Context, name string) (Experiment, error)
	DeleteExperiment(ctx context.Context, id string) error
	RestoreExperiment(ctx context.Context, id string) error
	CommitRun(ctx context.Context, run Run, artifacts map[string][]byte) error
	SearchRuns(ctx context.Context, experimentIDs []string, maxResults int) ([]Run, error)
	GetRun(ctx context.Context, runID string) (Run, error)
	ReadArtifact(ctx context.Context, runID, path string) ([]byte, error)
	Close() error
}

// sortRunsByStart orders newest first; ties break on run id for stability.
func sortRunsByStart(runs []Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].StartTime.Equal(runs[j].StartTime) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].StartTime.After(runs[j].StartTime)
	})
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client is the write-side API used by training jobs.
type Client struct {
	store Store
	now   func() time.Time
}

func NewClient(store Store) *Client {
	return &Client{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (c *Client) Store() Store { return c.store }

// SetExperiment returns the active experiment called name, creating it when
// it does not exist yet. A deleted experiment with that name is an error.
func (c *Client) SetExperiment(ctx context.Context, name string) (Experiment, error) {
	exp, err := c.store.GetExperimentByName(ctx, name)
	switch {
	case err == nil:
		if !exp.Active() {
			return Experiment{}, fmt.Errorf("cannot set experiment %q: %w", name, ErrExperimentDeleted)
		}
		return exp, nil
	case errors.Is(err, ErrNotFound):
		return c.store.CreateExperiment(ctx, name)
	default:
		return Experiment{}, err
	}
}

// StartRun opens an in-memory run. Nothing reaches the store until End.
func (c *Client) StartRun(experimentID, name string) *ActiveRun {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return &ActiveRun{
		client: c,
		run: Run{
			ID:             id,
			Name:           name,
			ExperimentID:   experimentID,
			Status:         StatusRunning,
			StartTime:      c.now(),
			LifecycleStage: StageActive,
			Params:         map[string]string{},
			Metrics:        map[string]Metric{},
		},
		artifacts: map[string][]byte{},
	}
}

// ActiveRun buffers params, metrics and artifacts of a run in progress.
type ActiveRun struct {
	client    *Client
	mu        sync.Mutex
	run       Run
	artifacts map[string][]byte
	closed    bool
}

func (r *ActiveRun) ID() string { return r.run.ID }

func (r *ActiveRun) ExperimentID() string { return r.run.ExperimentID }

func (r *ActiveRun) StartTime() time.Time { return r.run.StartTime }

func (r *ActiveRun) LogParam(key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(key); err != nil {
		return err
	}
	if old, ok := r.run.Params[key]; ok && old != value {
		return fmt.Errorf("param %q already logged with value %q", key, old)
	}
	r.run.Params[key] = value
	return nil
}

func (r *ActiveRun) LogMetric(key string, value float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(key); err != nil {
		return err
	}
	step := int64(0)
	if prev, ok := r.run.Metrics[key]; ok {
		step = prev.Step + 1
	}
	r.run.Metrics[key] = Metric{Key: key, Value: value, Timestamp: r.client.now(), Step: step}
	return nil
}

func (r *ActiveRun) LogArtifact(path string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("run already ended")
	}
	rel, err := cleanRelative(path)
	if err != nil {
		return err
	}
	r.artifacts[rel] = append([]byte(nil), payload...)
	return nil
}

func (r *ActiveRun) check(key string) error {
	if r.closed {
		return errors.New("run already ended")
	}
	if _, err := cleanRelative(key); err != nil {
		return fmt.Errorf("invalid key: %w", err)
	}
	return nil
}

// End commits the run as FINISHED and returns the stored record.
func (r *ActiveRun) End(ctx context.Context) (Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Run{}, errors.New("run already ended")
	}
	r.closed = true

	run := r.run
	run.Status = StatusFinished
	run.EndTime = r.client.now()
	if err := r.client.store.CommitRun(ctx, run, r.artifacts); err != nil {
		return Run{}, fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return r.client.store.GetRun(ctx, run.ID)
}

// Abort discards the run. It is a no-op after End.
func (r *ActiveRun) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.artifacts = nil
}

package tracking

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

const (
	metaFile      = "meta.yaml"
	trashDir      = ".trash"
	stagingPrefix = ".staging-"
	paramsDir     = "params"
	metricsDir    = "metrics"
	artifactsDir  = "artifacts"
)

type experimentMeta struct {
	ArtifactLocation string `yaml:"artifact_location"`
	CreationTime     int64  `yaml:"creation_time"`
	ExperimentID     string `yaml:"experiment_id"`
	LastUpdateTime   int64  `yaml:"last_update_time"`
	LifecycleStage   string `yaml:"lifecycle_stage"`
	Name             string `yaml:"name"`
}

type runMeta struct {
	ArtifactURI    string `yaml:"artifact_uri"`
	EndTime        int64  `yaml:"end_time"`
	ExperimentID   string `yaml:"experiment_id"`
	LifecycleStage string `yaml:"lifecycle_stage"`
	RunID          string `yaml:"run_id"`
	RunName        string `yaml:"run_name"`
	StartTime      int64  `yaml:"start_time"`
	Status         string `yaml:"status"`
}

// FileStore keeps experiments and runs in a directory tree:
//
//	<root>/<experiment>/meta.yaml
//	<root>/<experiment>/<run>/meta.yaml
//	<root>/<experiment>/<run>/params/<key>
//	<root>/<experiment>/<run>/metrics/<key>
//	<root>/<experiment>/<run>/artifacts/...
//
// Deleted experiments are moved under <root>/.trash.
type FileStore struct {
	root string
	mu   sync.Mutex
}

// NewFileStore opens (creating if needed) a store rooted at dir and makes
// sure the Default experiment exists.
func NewFileStore(dir string) (*FileStore, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve store root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	s := &FileStore{root: root}
	if err := s.ensureDefaultExperiment(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Root() string { return s.root }

func (s *FileStore) Close() error { return nil }

func (s *FileStore) ensureDefaultExperiment() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, _, err := s.findExperiment(DefaultExperimentID)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return err
	}
	_, err = s.writeExperiment(DefaultExperimentID, DefaultExperimentName)
	return err
}

func (s *FileStore) ListExperiments(ctx context.Context) ([]Experiment, error) {
	var experiments []Experiment
	for _, base := range []string{s.root, filepath.Join(s.root, trashDir)} {
		found, err := s.readExperimentsIn(base)
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, found...)
	}
	return experiments, nil
}

func (s *FileStore) readExperimentsIn(base string) ([]Experiment, error) {
	entries, err := os.ReadDir(base)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	var experiments []Experiment
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		exp, err := readExperimentMeta(filepath.Join(base, entry.Name()))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, exp)
	}
	return experiments, nil
}

func (s *FileStore) GetExperimentByName(ctx context.Context, name string) (Experiment, error) {
	experiments, err := s.ListExperiments(ctx)
	if err != nil {
		return Experiment{}, err
	}
	for _, exp := range experiments {
		if exp.Name == name {
			return exp, nil
		}
	}
	return Experiment{}, fmt.Errorf("experiment %q: %w", name, ErrNotFound)
}

func (s *FileStore) CreateExperiment(ctx context.Context, name string) (Experiment, error) {
	if strings.TrimSpace(name) == "" {
		return Experiment{}, errors.New("experiment name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	experiments, err := s.ListExperiments(ctx)
	if err != nil {
		return Experiment{}, err
	}
	next := 0
	for _, exp := range experiments {
		if exp.Name == name {
			return Experiment{}, fmt.Errorf("experiment %q: %w", name, ErrExperimentExists)
		}
		if id, err := strconv.Atoi(exp.ID); err == nil && id >= next {
			next = id + 1
		}
	}
	return s.writeExperiment(strconv.Itoa(next), name)
}

func (s *FileStore) writeExperiment(id, name string) (Experiment, error) {
	dir := filepath.Join(s.root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Experiment{}, fmt.Errorf("create experiment dir: %w", err)
	}
	now := time.Now().UTC()
	meta := experimentMeta{
		ArtifactLocation: "file:" + dir,
		CreationTime:     toMillis(now),
		ExperimentID:     id,
		LastUpdateTime:   toMillis(now),
		LifecycleStage:   string(StageActive),
		Name:             name,
	}
	if err := writeYAML(filepath.Join(dir, metaFile), meta); err != nil {
		return Experiment{}, err
	}
	return meta.experiment(), nil
}

func (s *FileStore) DeleteExperiment(ctx context.Context, id string) error {
	return s.moveExperiment(id, StageDeleted)
}

func (s *FileStore) RestoreExperiment(ctx context.Context, id string) error {
	return s.moveExperiment(id, StageActive)
}

func (s *FileStore) moveExperiment(id string, stage LifecycleStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, exp, err := s.findExperiment(id)
	if err != nil {
		return err
	}
	if exp.LifecycleStage == stage {
		return nil
	}
	target := filepath.Join(s.root, id)
	if stage == StageDeleted {
		if err := os.MkdirAll(filepath.Join(s.root, trashDir), 0o755); err != nil {
			return fmt.Errorf("create trash: %w", err)
		}
		target = filepath.Join(s.root, trashDir, id)
	}
	meta := metaFromExperiment(exp)
	meta.LifecycleStage = string(stage)
	meta.LastUpdateTime = toMillis(time.Now().UTC())
	meta.ArtifactLocation = "file:" + target
	// Move first so a failed rename leaves the stage on disk unchanged.
	if err := os.Rename(dir, target); err != nil {
		return fmt.Errorf("move experiment %s: %w", id, err)
	}
	if err := writeYAML(filepath.Join(target, metaFile), meta); err != nil {
		return multierr.Append(err, os.Rename(target, dir))
	}
	return nil
}

// findExperiment looks in the live tree first, then in the trash.
func (s *FileStore) findExperiment(id string) (string, Experiment, error) {
	if !validName(id) {
		return "", Experiment{}, fmt.Errorf("invalid experiment id %q", id)
	}
	for _, dir := range []string{filepath.Join(s.root, id), filepath.Join(s.root, trashDir, id)} {
		exp, err := readExperimentMeta(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", Experiment{}, err
		}
		return dir, exp, nil
	}
	return "", Experiment{}, fmt.Errorf("experiment %s: %w", id, ErrNotFound)
}

func (s *FileStore) CommitRun(ctx context.Context, run Run, artifacts map[string][]byte) (err error) {
	if !validName(run.ID) {
		return fmt.Errorf("invalid run id %q", run.ID)
	}
	expDir, exp, err := s.findExperiment(run.ExperimentID)
	if err != nil {
		return err
	}
	if !exp.Active() {
		return fmt.Errorf("experiment %s: %w", exp.ID, ErrExperimentDeleted)
	}
	final := filepath.Join(expDir, run.ID)
	if _, statErr := os.Stat(final); statErr == nil {
		return fmt.Errorf("run %s already exists", run.ID)
	}

	staging := filepath.Join(expDir, stagingPrefix+run.ID)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("create run staging dir: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, os.RemoveAll(staging))
		}
	}()

	for key, value := range run.Params {
		if err := writeRunFile(staging, paramsDir, key, []byte(value)); err != nil {
			return err
		}
	}
	for key, metric := range run.Metrics {
		line := fmt.Sprintf("%d %s %d\n", toMillis(metric.Timestamp), strconv.FormatFloat(metric.Value, 'g', -1, 64), metric.Step)
		if err := writeRunFile(staging, metricsDir, key, []byte(line)); err != nil {
			return err
		}
	}
	for name, payload := range artifacts {
		if err := writeRunFile(staging, artifactsDir, name, payload); err != nil {
			return err
		}
	}

	meta := runMeta{
		ArtifactURI:    "file:" + filepath.Join(final, artifactsDir),
		EndTime:        toMillis(run.EndTime),
		ExperimentID:   run.ExperimentID,
		LifecycleStage: string(StageActive),
		RunID:          run.ID,
		RunName:        run.Name,
		StartTime:      toMillis(run.StartTime),
		Status:         string(run.Status),
	}
	if err := writeYAML(filepath.Join(staging, metaFile), meta); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(staging, final); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return nil
}

func (s *FileStore) SearchRuns(ctx context.Context, experimentIDs []string, maxResults int) ([]Run, error) {
	var runs []Run
	for _, id := range experimentIDs {
		expDir, _, err := s.findExperiment(id)
		if err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(expDir)
		if err != nil {
			return nil, fmt.Errorf("list runs of experiment %s: %w", id, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			run, err := readRun(filepath.Join(expDir, entry.Name()))
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if run.LifecycleStage != StageActive {
				continue
			}
			runs = append(runs, run)
		}
	}
	sortRunsByStart(runs)
	if maxResults > 0 && len(runs) > maxResults {
		runs = runs[:maxResults]
	}
	return runs, nil
}

func (s *FileStore) GetRun(ctx context.Context, runID string) (Run, error) {
	dir, err := s.runDir(ctx, runID)
	if err != nil {
		return Run{}, err
	}
	return readRun(dir)
}

func (s *FileStore) ReadArtifact(ctx context.Context, runID, name string) ([]byte, error) {
	rel, err := cleanRelative(name)
	if err != nil {
		return nil, err
	}
	dir, err := s.runDir(ctx, runID)
	if err != nil {
		return nil, err
	}
	payload, err := os.ReadFile(filepath.Join(dir, artifactsDir, filepath.FromSlash(rel)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("artifact %s of run %s: %w", rel, runID, ErrNotFound)
	}
	return payload, err
}

func (s *FileStore) runDir(ctx context.Context, runID string) (string, error) {
	if !validName(runID) {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	experiments, err := s.ListExperiments(ctx)
	if err != nil {
		return "", err
	}
	for _, exp := range experiments {
		expDir, _, err := s.findExperiment(exp.ID)
		if err != nil {
			return "", err
		}
		dir := filepath.Join(expDir, runID)
		if _, err := os.Stat(filepath.Join(dir, metaFile)); err == nil {
			return dir, nil
		}
	}
	return "", fmt.Errorf("run %s: %w", runID, ErrNotFound)
}

func readExperimentMeta(dir string) (Experiment, error) {
	var meta experimentMeta
	if err := readYAML(filepath.Join(dir, metaFile), &meta); err != nil {
		return Experiment{}, err
	}
	return meta.experiment(), nil
}

func readRun(dir string) (Run, error) {
	var meta runMeta
	if err := readYAML(filepath.Join(dir, metaFile), &meta); err != nil {
		return Run{}, err
	}
	run := Run{
		ID:             meta.RunID,
		Name:           meta.RunName,
		ExperimentID:   meta.ExperimentID,
		Status:         RunStatus(meta.Status),
		StartTime:      fromMillis(meta.StartTime),
		EndTime:        fromMillis(meta.EndTime),
		LifecycleStage: LifecycleStage(meta.LifecycleStage),
		ArtifactURI:    meta.ArtifactURI,
		Params:         map[string]string{},
		Metrics:        map[string]Metric{},
	}

	err := walkRunFiles(filepath.Join(dir, paramsDir), func(key string, payload []byte) error {
		run.Params[key] = string(payload)
		return nil
	})
	if err != nil {
		return Run{}, err
	}
	err = walkRunFiles(filepath.Join(dir, metricsDir), func(key string, payload []byte) error {
		metric, err := parseMetricHistory(key, payload)
		if err != nil {
			return err
		}
		run.Metrics[key] = metric
		return nil
	})
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

func walkRunFiles(dir string, fn func(key string, payload []byte) error) error {
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		payload, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), payload)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// parseMetricHistory keeps the last "<ts> <value> <step>" line.
func parseMetricHistory(key string, payload []byte) (Metric, error) {
	var (
		metric Metric
		found  bool
	)
	scanner := bufio.NewScanner(bytes.NewReader(payload))
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		if len(parts) < 2 {
			return Metric{}, fmt.Errorf("malformed metric %s: %q", key, scanner.Text())
		}
		ts, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return Metric{}, fmt.Errorf("metric %s timestamp: %w", key, err)
		}
		value, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return Metric{}, fmt.Errorf("metric %s value: %w", key, err)
		}
		var step int64
		if len(parts) > 2 {
			if step, err = strconv.ParseInt(parts[2], 10, 64); err != nil {
				return Metric{}, fmt.Errorf("metric %s step: %w", key, err)
			}
		}
		metric = Metric{Key: key, Value: value, Timestamp: fromMillis(ts), Step: step}
		found = true
	}
	if err := scanner.Err(); err != nil {
		return Metric{}, err
	}
	if !found {
		return Metric{}, fmt.Errorf("metric %s has no values", key)
	}
	return metric, nil
}

func writeRunFile(runDir, kind, name string, payload []byte) error {
	rel, err := cleanRelative(name)
	if err != nil {
		return err
	}
	target := filepath.Join(runDir, kind, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create %s dir: %w", kind, err)
	}
	if err := os.WriteFile(target, payload, 0o644); err != nil {
		return fmt.Errorf("write %s %s: %w", kind, rel, err)
	}
	return nil
}

// cleanRelative rejects absolute paths and anything escaping its parent.
func cleanRelative(name string) (string, error) {
	slashed := filepath.ToSlash(name)
	if slashed == "" || strings.HasPrefix(slashed, "/") {
		return "", fmt.Errorf("invalid path %q", name)
	}
	cleaned := path.Clean(slashed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid path %q", name)
	}
	return cleaned, nil
}

func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\`) && !strings.HasPrefix(name, ".")
}

func writeYAML(target string, v interface{}) error {
	payload, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(target), err)
	}
	if err := os.WriteFile(target, payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}

func readYAML(source string, v interface{}) error {
	payload, err := os.ReadFile(source)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode %s: %w", source, err)
	}
	return nil
}

func (m experimentMeta) experiment() Experiment {
	return Experiment{
		ID:               m.ExperimentID,
		Name:             m.Name,
		ArtifactLocation: m.ArtifactLocation,
		LifecycleStage:   LifecycleStage(m.LifecycleStage),
		CreationTime:     fromMillis(m.CreationTime),
		LastUpdateTime:   fromMillis(m.LastUpdateTime),
	}
}

func metaFromExperiment(e Experiment) experimentMeta {
	return experimentMeta{
		ArtifactLocation: e.ArtifactLocation,
		CreationTime:     toMillis(e.CreationTime),
		ExperimentID:     e.ID,
		LastUpdateTime:   toMillis(e.LastUpdateTime),
		LifecycleStage:   string(e.LifecycleStage),
		Name:             e.Name,
	}
}

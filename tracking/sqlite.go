package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"
)

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    experiment_id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    artifact_location TEXT,
    lifecycle_stage TEXT NOT NULL,
    creation_time INTEGER,
    last_update_time INTEGER
);
CREATE TABLE IF NOT EXISTS runs (
    run_uuid TEXT PRIMARY KEY,
    name TEXT,
    experiment_id INTEGER NOT NULL REFERENCES experiments(experiment_id),
    status TEXT NOT NULL,
    start_time INTEGER NOT NULL,
    end_time INTEGER,
    lifecycle_stage TEXT NOT NULL,
    artifact_uri TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_experiment_start ON runs (experiment_id, start_time DESC);
CREATE TABLE IF NOT EXISTS params (
    run_uuid TEXT NOT NULL REFERENCES runs(run_uuid),
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (run_uuid, key)
);
CREATE TABLE IF NOT EXISTS metrics (
    run_uuid TEXT NOT NULL REFERENCES runs(run_uuid),
    key TEXT NOT NULL,
    value REAL NOT NULL,
    timestamp INTEGER NOT NULL,
    step INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (run_uuid, key, timestamp, step)
);
CREATE TABLE IF NOT EXISTS artifacts (
    run_uuid TEXT NOT NULL REFERENCES runs(run_uuid),
    path TEXT NOT NULL,
    content BLOB NOT NULL,
    PRIMARY KEY (run_uuid, path)
);
`

// SQLiteStore keeps the tracking data, artifacts included, in one SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		return nil, multierr.Append(fmt.Errorf("create tables failed: %w", err), db.Close())
	}
	now := toMillis(time.Now().UTC())
	_, err = db.Exec(`
        INSERT OR IGNORE INTO experiments (experiment_id, name, artifact_location, lifecycle_stage, creation_time, last_update_time)
        VALUES (?, ?, ?, ?, ?, ?)`,
		0, DefaultExperimentName, "sqlite:"+path+"#0", string(StageActive), now, now)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("create default experiment: %w", err), db.Close())
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]Experiment, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT experiment_id, name, artifact_location, lifecycle_stage, creation_time, last_update_time
        FROM experiments
        ORDER BY experiment_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	experiments := make([]Experiment, 0)
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, exp)
	}
	return experiments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExperiment(row rowScanner) (Experiment, error) {
	var (
		id                int64
		exp               Experiment
		stage             string
		location          sql.NullString
		created, modified sql.NullInt64
	)
	if err := row.Scan(&id, &exp.Name, &location, &stage, &created, &modified); err != nil {
		return Experiment{}, err
	}
	exp.ID = strconv.FormatInt(id, 10)
	exp.ArtifactLocation = location.String
	exp.LifecycleStage = LifecycleStage(stage)
	exp.CreationTime = fromMillis(created.Int64)
	exp.LastUpdateTime = fromMillis(modified.Int64)
	return exp, nil
}

func (s *SQLiteStore) GetExperimentByName(ctx context.Context, name string) (Experiment, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT experiment_id, name, artifact_location, lifecycle_stage, creation_time, last_update_time
        FROM experiments
        WHERE name = ?`, name)
	exp, err := scanExperiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Experiment{}, fmt.Errorf("experiment %q: %w", name, ErrNotFound)
	}
	return exp, err
}

func (s *SQLiteStore) CreateExperiment(ctx context.Context, name string) (Experiment, error) {
	if strings.TrimSpace(name) == "" {
		return Experiment{}, errors.New("experiment name is required")
	}
	if _, err := s.GetExperimentByName(ctx, name); err == nil {
		return Experiment{}, fmt.Errorf("experiment %q: %w", name, ErrExperimentExists)
	} else if !errors.Is(err, ErrNotFound) {
		return Experiment{}, err
	}

	now := toMillis(time.Now().UTC())
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO experiments (name, lifecycle_stage, creation_time, last_update_time)
        VALUES (?, ?, ?, ?)`, name, string(StageActive), now, now)
	if err != nil {
		return Experiment{}, fmt.Errorf("insert experiment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Experiment{}, err
	}
	location := fmt.Sprintf("sqlite:%s#%d", s.path, id)
	if _, err := s.db.ExecContext(ctx, `UPDATE experiments SET artifact_location = ? WHERE experiment_id = ?`, location, id); err != nil {
		return Experiment{}, fmt.Errorf("set artifact location: %w", err)
	}
	return s.GetExperimentByName(ctx, name)
}

func (s *SQLiteStore) DeleteExperiment(ctx context.Context, id string) error {
	return s.setExperimentStage(ctx, id, StageDeleted)
}

func (s *SQLiteStore) RestoreExperiment(ctx context.Context, id string) error {
	return s.setExperimentStage(ctx, id, StageActive)
}

func (s *SQLiteStore) setExperimentStage(ctx context.Context, id string, stage LifecycleStage) error {
	expID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid experiment id %q", id)
	}
	res, err := s.db.ExecContext(ctx, `
        UPDATE experiments SET lifecycle_stage = ?, last_update_time = ?
        WHERE experiment_id = ?`, string(stage), toMillis(time.Now().UTC()), expID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("experiment %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) CommitRun(ctx context.Context, run Run, artifacts map[string][]byte) error {
	expID, err := strconv.ParseInt(run.ExperimentID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid experiment id %q", run.ExperimentID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	rollback := func(cause error) error {
		return multierr.Append(cause, tx.Rollback())
	}

	var stage string
	err = tx.QueryRowContext(ctx, `SELECT lifecycle_stage FROM experiments WHERE experiment_id = ?`, expID).Scan(&stage)
	if errors.Is(err, sql.ErrNoRows) {
		return rollback(fmt.Errorf("experiment %s: %w", run.ExperimentID, ErrNotFound))
	}
	if err != nil {
		return rollback(err)
	}
	if LifecycleStage(stage) != StageActive {
		return rollback(fmt.Errorf("experiment %s: %w", run.ExperimentID, ErrExperimentDeleted))
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO runs (run_uuid, name, experiment_id, status, start_time, end_time, lifecycle_stage, artifact_uri)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, expID, string(run.Status), toMillis(run.StartTime), toMillis(run.EndTime),
		string(StageActive), fmt.Sprintf("sqlite:%s#%s/artifacts", s.path, run.ID))
	if err != nil {
		return rollback(fmt.Errorf("insert run: %w", err))
	}
	for key, value := range run.Params {
		if _, err := tx.ExecContext(ctx, `INSERT INTO params (run_uuid, key, value) VALUES (?, ?, ?)`, run.ID, key, value); err != nil {
			return rollback(fmt.Errorf("insert param %s: %w", key, err))
		}
	}
	for key, metric := range run.Metrics {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO metrics (run_uuid, key, value, timestamp, step) VALUES (?, ?, ?, ?, ?)`,
			run.ID, key, metric.Value, toMillis(metric.Timestamp), metric.Step)
		if err != nil {
			return rollback(fmt.Errorf("insert metric %s: %w", key, err))
		}
	}
	for name, payload := range artifacts {
		rel, err := cleanRelative(name)
		if err != nil {
			return rollback(err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO artifacts (run_uuid, path, content) VALUES (?, ?, ?)`, run.ID, rel, payload); err != nil {
			return rollback(fmt.Errorf("insert artifact %s: %w", rel, err))
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) SearchRuns(ctx context.Context, experimentIDs []string, maxResults int) ([]Run, error) {
	if len(experimentIDs) == 0 {
		return nil, nil
	}
	args := make([]interface{}, 0, len(experimentIDs)+2)
	for _, id := range experimentIDs {
		expID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid experiment id %q", id)
		}
		args = append(args, expID)
	}
	args = append(args, string(StageActive))
	query := `
        SELECT run_uuid, name, experiment_id, status, start_time, end_time, lifecycle_stage, artifact_uri
        FROM runs
        WHERE experiment_id IN (?` + strings.Repeat(", ?", len(experimentIDs)-1) + `) AND lifecycle_stage = ?
        ORDER BY start_time DESC, run_uuid DESC`
	if maxResults > 0 {
		query += ` LIMIT ?`
		args = append(args, maxResults)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, multierr.Append(err, rows.Close())
		}
		runs = append(runs, run)
	}
	if err := multierr.Append(rows.Err(), rows.Close()); err != nil {
		return nil, err
	}

	for i := range runs {
		if err := s.loadRunData(ctx, &runs[i]); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run        Run
		expID      int64
		name, uri  sql.NullString
		status, st string
		start      int64
		end        sql.NullInt64
	)
	if err := row.Scan(&run.ID, &name, &expID, &status, &start, &end, &st, &uri); err != nil {
		return Run{}, err
	}
	run.Name = name.String
	run.ExperimentID = strconv.FormatInt(expID, 10)
	run.Status = RunStatus(status)
	run.StartTime = fromMillis(start)
	run.EndTime = fromMillis(end.Int64)
	run.LifecycleStage = LifecycleStage(st)
	run.ArtifactURI = uri.String
	return run, nil
}

func (s *SQLiteStore) loadRunData(ctx context.Context, run *Run) error {
	run.Params = map[string]string{}
	run.Metrics = map[string]Metric{}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM params WHERE run_uuid = ?`, run.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return multierr.Append(err, rows.Close())
		}
		run.Params[key] = value
	}
	if err := multierr.Append(rows.Err(), rows.Close()); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `
        SELECT key, value, timestamp, step FROM metrics
        WHERE run_uuid = ?
        ORDER BY timestamp, step`, run.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			m  Metric
			ts int64
		)
		if err := rows.Scan(&m.Key, &m.Value, &ts, &m.Step); err != nil {
			return multierr.Append(err, rows.Close())
		}
		m.Timestamp = fromMillis(ts)
		run.Metrics[m.Key] = m
	}
	return multierr.Append(rows.Err(), rows.Close())
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT run_uuid, name, experiment_id, status, start_time, end_time, lifecycle_stage, artifact_uri
        FROM runs WHERE run_uuid = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return Run{}, err
	}
	if err := s.loadRunData(ctx, &run); err != nil {
		return Run{}, err
	}
	return run, nil
}

func (s *SQLiteStore) ReadArtifact(ctx context.Context, runID, name string) ([]byte, error) {
	rel, err := cleanRelative(name)
	if err != nil {
		return nil, err
	}
	var payload []byte
	err = s.db.QueryRowContext(ctx, `SELECT content FROM artifacts WHERE run_uuid = ? AND path = ?`, runID, rel).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artifact %s of run %s: %w", rel, runID, ErrNotFound)
	}
	return payload, err
}

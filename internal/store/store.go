// Package store keeps FORM run results in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	_ "modernc.org/sqlite"

	"github.com/alexshd/reliability"
	"github.com/alexshd/reliability/optim"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	study         TEXT NOT NULL,
	solver        TEXT NOT NULL,
	state         TEXT NOT NULL,
	beta          REAL,
	generalised   REAL,
	pf            REAL,
	origin_fails  INTEGER NOT NULL DEFAULT 0,
	evaluations   INTEGER NOT NULL DEFAULT 0,
	names_json    TEXT NOT NULL,
	design_json   TEXT,
	factors_json  TEXT,
	history_json  TEXT NOT NULL,
	error         TEXT,
	duration_ns   INTEGER NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS runs_study ON runs(study, created_at);
`

// timeLayout is fixed width so that created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Run is one stored FORM analysis. Result fields are zero unless State is
// CONVERGED.
type Run struct {
	ID          string
	Study       string
	Solver      string
	State       reliability.State
	Beta        float64
	Generalised float64
	Pf          float64
	OriginFails bool
	Evaluations int
	Names       []string
	Design      reliability.DesignPoint
	Factors     []float64
	History     []optim.Iteration
	Error       string
	Duration    time.Duration
	CreatedAt   time.Time
}

// FromBatch converts a runner result.
func FromBatch(solver string, r reliability.BatchResult) Run {
	run := Run{
		Study:    r.Name,
		Solver:   solver,
		State:    r.State,
		History:  r.History,
		Duration: r.Duration,
	}
	if r.Err != nil {
		run.Error = r.Err.Error()
	}
	if res := r.Result; res != nil {
		run.Beta = res.HasoferReliabilityIndex()
		run.Generalised = res.GeneralisedReliabilityIndex()
		run.Pf = res.EventProbability()
		run.OriginFails = res.IsStandardPointOriginInFailureSpace()
		run.Evaluations = res.Evaluations()
		run.Names = res.Names()
		run.Design = res.DesignPoint()
		run.Factors = res.ImportanceFactors()
	}
	return run
}

// Store manages run records in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database and creates the schema.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts run with a fresh id and creation time and returns the stored
// record.
func (s *Store) Save(ctx context.Context, run Run) (Run, error) {
	run.ID = uuid.New().String()
	run.CreatedAt = time.Now().UTC()

	names, err := json.Marshal(nonNil(run.Names))
	if err != nil {
		return Run{}, fmt.Errorf("marshal names: %w", err)
	}
	history, err := json.Marshal(run.History)
	if err != nil {
		return Run{}, fmt.Errorf("marshal history: %w", err)
	}

	var (
		beta, generalised, pf sql.NullFloat64
		design, factors       sql.NullString
	)
	if run.State == reliability.StateConverged {
		beta = sql.NullFloat64{Float64: run.Beta, Valid: true}
		generalised = sql.NullFloat64{Float64: run.Generalised, Valid: true}
		pf = sql.NullFloat64{Float64: run.Pf, Valid: true}
		b, err := json.Marshal(run.Design)
		if err != nil {
			return Run{}, fmt.Errorf("marshal design point: %w", err)
		}
		design = sql.NullString{String: string(b), Valid: true}
		if b, err = json.Marshal(run.Factors); err != nil {
			return Run{}, fmt.Errorf("marshal importance factors: %w", err)
		}
		factors = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, study, solver, state, beta, generalised, pf, origin_fails,
		                   evaluations, names_json, design_json, factors_json, history_json,
		                   error, duration_ns, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Study, run.Solver, string(run.State), beta, generalised, pf, run.OriginFails,
		run.Evaluations, string(names), design, factors, string(history),
		run.Error, int64(run.Duration), run.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

const selectRun = `SELECT run_id, study, solver, state, beta, generalised, pf, origin_fails,
       evaluations, names_json, design_json, factors_json, history_json,
       error, duration_ns, created_at
  FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run                   Run
		state, names, history string
		created               string
		runErr                sql.NullString
		beta, generalised, pf sql.NullFloat64
		design, factors       sql.NullString
		duration              int64
	)
	err := row.Scan(&run.ID, &run.Study, &run.Solver, &state, &beta, &generalised, &pf, &run.OriginFails,
		&run.Evaluations, &names, &design, &factors, &history, &runErr, &duration, &created)
	if err != nil {
		return Run{}, err
	}
	run.State = reliability.State(state)
	run.Beta, run.Generalised, run.Pf = beta.Float64, generalised.Float64, pf.Float64
	run.Error = runErr.String
	run.Duration = time.Duration(duration)
	if run.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return Run{}, fmt.Errorf("parse created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(names), &run.Names); err != nil {
		return Run{}, fmt.Errorf("unmarshal names: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &run.History); err != nil {
		return Run{}, fmt.Errorf("unmarshal history: %w", err)
	}
	if design.Valid {
		if err := json.Unmarshal([]byte(design.String), &run.Design); err != nil {
			return Run{}, fmt.Errorf("unmarshal design point: %w", err)
		}
	}
	if factors.Valid {
		if err := json.Unmarshal([]byte(factors.String), &run.Factors); err != nil {
			return Run{}, fmt.Errorf("unmarshal importance factors: %w", err)
		}
	}
	return run, nil
}

// Get returns the run with the given id.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, selectRun+` WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// List returns the most recent runs first. An empty study lists every study;
// limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, study string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		selectRun+` WHERE (? = '' OR study = ?) ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		study, study, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Delete removes a run.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

/*
Package sqlite provides a SQLite-backed implementation of evm.Store.

PURPOSE:
  Persists the current input dataset and the output of every pipeline run, so
  the API can serve fact tables without recomputing them and the scheduler can
  tell whether the latest run is stale.

KEY TABLES:
  dataset_meta:        Single row holding the dataset revision
  sov_budget, labor_logs, material_deliveries, billing_history,
  billing_line_items:  Input streams, replaced wholesale on every save
  runs:                One audit row per pipeline execution
  sov_line_week_snapshot, sov_line_closeout, project_calibration_scale,
  last_period_end, project_week_snapshot:
                       Output rows per run, stored as row_json with their key
                       columns alongside for lookups

NUMERICS:
  Input quantities are stored as TEXT decimals (shortest exact rendering), so
  a saved dataset loads back bit-identical.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, so ":memory:"
  databases behave like files.

USAGE:
  store, err := sqlite.New("./data/burn.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  runner := evm.NewRunner(store, pipeline, logger)

SEE ALSO:
  - evm/store.go: Interface definition
  - evm/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/burn-engine/evm"
)

// Store implements evm.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ evm.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS dataset_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		revision INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Input streams (row_num keeps file order)
	CREATE TABLE IF NOT EXISTS sov_budget (
		row_num INTEGER PRIMARY KEY,
		project_id TEXT NOT NULL,
		sov_line_id TEXT NOT NULL,
		estimated_labor_hours TEXT NOT NULL,
		estimated_labor_cost TEXT NOT NULL,
		estimated_material_cost TEXT NOT NULL,
		productivity_factor TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS labor_logs (
		row_num INTEGER PRIMARY KEY,
		project_id TEXT NOT NULL,
		sov_line_id TEXT NOT NULL,
		date TEXT NOT NULL,
		hours_st TEXT NOT NULL,
		hours_ot TEXT NOT NULL,
		hourly_rate TEXT NOT NULL,
		burden_multiplier TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS material_deliveries (
		row_num INTEGER PRIMARY KEY,
		project_id TEXT NOT NULL,
		sov_line_id TEXT NOT NULL,
		date TEXT NOT NULL,
		quantity TEXT NOT NULL,
		total_cost TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS billing_history (
		row_num INTEGER PRIMARY KEY,
		project_id TEXT NOT NULL,
		application_number INTEGER NOT NULL,
		period_end TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS billing_line_items (
		row_num INTEGER PRIMARY KEY,
		project_id TEXT NOT NULL,
		sov_line_id TEXT NOT NULL,
		application_number INTEGER NOT NULL,
		pct_complete TEXT NOT NULL,
		total_billed TEXT NOT NULL,
		scheduled_value TEXT NOT NULL,
		description TEXT
	);

	-- Runs
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		dataset_revision INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL,
		projects INTEGER NOT NULL DEFAULT 0,
		weekly_rows INTEGER NOT NULL DEFAULT 0,
		closeout_rows INTEGER NOT NULL DEFAULT 0,
		project_week_rows INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

	-- Outputs (seq keeps result order)
	CREATE TABLE IF NOT EXISTS sov_line_week_snapshot (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		project_id TEXT NOT NULL,
		sov_line_id TEXT NOT NULL,
		week_end TEXT NOT NULL,
		row_json TEXT NOT NULL,
		PRIMARY KEY (run_id, seq),
		UNIQUE (run_id, project_id, sov_line_id, week_end)
	);

	CREATE TABLE IF NOT EXISTS sov_line_closeout (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		project_id TEXT NOT NULL,
		sov_line_id TEXT NOT NULL,
		row_json TEXT NOT NULL,
		PRIMARY KEY (run_id, seq),
		UNIQUE (run_id, project_id, sov_line_id)
	);

	CREATE TABLE IF NOT EXISTS project_calibration_scale (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		project_id TEXT NOT NULL,
		row_json TEXT NOT NULL,
		PRIMARY KEY (run_id, seq),
		UNIQUE (run_id, project_id)
	);

	CREATE TABLE IF NOT EXISTS last_period_end (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		project_id TEXT NOT NULL,
		row_json TEXT NOT NULL,
		PRIMARY KEY (run_id, seq),
		UNIQUE (run_id, project_id)
	);

	CREATE TABLE IF NOT EXISTS project_week_snapshot (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		project_id TEXT NOT NULL,
		week_end TEXT NOT NULL,
		row_json TEXT NOT NULL,
		PRIMARY KEY (run_id, seq),
		UNIQUE (run_id, project_id, week_end)
	);

	CREATE INDEX IF NOT EXISTS idx_week_snapshot_project
		ON sov_line_week_snapshot(run_id, project_id);
	CREATE INDEX IF NOT EXISTS idx_project_week_project
		ON project_week_snapshot(run_id, project_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// DATASET
// =============================================================================

// SaveDataset replaces all input streams and bumps the revision atomically.
func (s *Store) SaveDataset(ctx context.Context, ds *evm.Dataset) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range inputTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return 0, fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for i, r := range ds.SOV {
		if err := insert(ctx, tx, evm.TableSOV,
			[]string{"row_num", "project_id", "sov_line_id", "estimated_labor_hours",
				"estimated_labor_cost", "estimated_material_cost", "productivity_factor"},
			i, r.ProjectID, r.LineID, dec(r.EstimatedLaborHours), dec(r.EstimatedLaborCost),
			dec(r.EstimatedMaterialCost), dec(r.ProductivityFactor)); err != nil {
			return 0, err
		}
	}
	for i, r := range ds.Labor {
		if err := insert(ctx, tx, evm.TableLabor,
			[]string{"row_num", "project_id", "sov_line_id", "date", "hours_st", "hours_ot",
				"hourly_rate", "burden_multiplier"},
			i, r.ProjectID, r.LineID, r.Date.String(), dec(r.HoursST), dec(r.HoursOT),
			dec(r.HourlyRate), dec(r.BurdenMultiplier)); err != nil {
			return 0, err
		}
	}
	for i, r := range ds.Materials {
		if err := insert(ctx, tx, evm.TableMaterials,
			[]string{"row_num", "project_id", "sov_line_id", "date", "quantity", "total_cost"},
			i, r.ProjectID, r.LineID, r.Date.String(), dec(r.Quantity), dec(r.TotalCost)); err != nil {
			return 0, err
		}
	}
	for i, r := range ds.Periods {
		if err := insert(ctx, tx, evm.TablePeriods,
			[]string{"row_num", "project_id", "application_number", "period_end"},
			i, r.ProjectID, r.ApplicationNumber, r.PeriodEnd.String()); err != nil {
			return 0, err
		}
	}
	for i, r := range ds.LineItems {
		if err := insert(ctx, tx, evm.TableLineItems,
			[]string{"row_num", "project_id", "sov_line_id", "application_number", "pct_complete",
				"total_billed", "scheduled_value", "description"},
			i, r.ProjectID, r.LineID, r.ApplicationNumber, dec(r.PctComplete), dec(r.TotalBilled),
			dec(r.ScheduledValue), nullString(r.Description)); err != nil {
			return 0, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dataset_meta (id, revision, updated_at) VALUES (1, 1, ?)
		ON CONFLICT(id) DO UPDATE SET
			revision = dataset_meta.revision + 1,
			updated_at = excluded.updated_at
	`, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to bump dataset revision: %w", err)
	}

	var revision int64
	if err := tx.QueryRowContext(ctx, "SELECT revision FROM dataset_meta WHERE id = 1").Scan(&revision); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit dataset: %w", err)
	}
	return revision, nil
}

var inputTables = []string{
	evm.TableSOV, evm.TableLabor, evm.TableMaterials, evm.TablePeriods, evm.TableLineItems,
}

// LoadDataset returns the stored dataset in its saved record order.
func (s *Store) LoadDataset(ctx context.Context) (*evm.Dataset, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	revision, err := s.revision(ctx)
	if err != nil {
		return nil, 0, err
	}
	if revision == 0 {
		return nil, 0, evm.ErrNoDataset
	}

	ds := &evm.Dataset{}
	if err := s.loadSOV(ctx, ds); err != nil {
		return nil, 0, err
	}
	if err := s.loadLabor(ctx, ds); err != nil {
		return nil, 0, err
	}
	if err := s.loadMaterials(ctx, ds); err != nil {
		return nil, 0, err
	}
	if err := s.loadPeriods(ctx, ds); err != nil {
		return nil, 0, err
	}
	if err := s.loadLineItems(ctx, ds); err != nil {
		return nil, 0, err
	}
	return ds, revision, nil
}

func (s *Store) DatasetRevision(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision(ctx)
}

func (s *Store) revision(ctx context.Context) (int64, error) {
	var revision int64
	err := s.db.QueryRowContext(ctx, "SELECT revision FROM dataset_meta WHERE id = 1").Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read dataset revision: %w", err)
	}
	return revision, nil
}

func (s *Store) loadSOV(ctx context.Context, ds *evm.Dataset) error {
	return s.queryEach(ctx, `
		SELECT project_id, sov_line_id, estimated_labor_hours, estimated_labor_cost,
		       estimated_material_cost, productivity_factor
		FROM sov_budget ORDER BY row_num`,
		func(rows *sql.Rows) error {
			var r evm.SOVLine
			var hours, labor, material, factor string
			var num decimals
			if err := rows.Scan(&r.ProjectID, &r.LineID, &hours, &labor, &material, &factor); err != nil {
				return err
			}
			r.EstimatedLaborHours = num.parse("estimated_labor_hours", hours)
			r.EstimatedLaborCost = num.parse("estimated_labor_cost", labor)
			r.EstimatedMaterialCost = num.parse("estimated_material_cost", material)
			r.ProductivityFactor = num.parse("productivity_factor", factor)
			if num.err != nil {
				return num.err
			}
			ds.SOV = append(ds.SOV, r)
			return nil
		})
}

func (s *Store) loadLabor(ctx context.Context, ds *evm.Dataset) error {
	return s.queryEach(ctx, `
		SELECT project_id, sov_line_id, date, hours_st, hours_ot, hourly_rate, burden_multiplier
		FROM labor_logs ORDER BY row_num`,
		func(rows *sql.Rows) error {
			var r evm.LaborLogEntry
			var date, st, ot, rate, burden string
			var num decimals
			if err := rows.Scan(&r.ProjectID, &r.LineID, &date, &st, &ot, &rate, &burden); err != nil {
				return err
			}
			var err error
			if r.Date, err = evm.ParseTimePoint(date); err != nil {
				return err
			}
			r.HoursST = num.parse("hours_st", st)
			r.HoursOT = num.parse("hours_ot", ot)
			r.HourlyRate = num.parse("hourly_rate", rate)
			r.BurdenMultiplier = num.parse("burden_multiplier", burden)
			if num.err != nil {
				return num.err
			}
			ds.Labor = append(ds.Labor, r)
			return nil
		})
}

func (s *Store) loadMaterials(ctx context.Context, ds *evm.Dataset) error {
	return s.queryEach(ctx, `
		SELECT project_id, sov_line_id, date, quantity, total_cost
		FROM material_deliveries ORDER BY row_num`,
		func(rows *sql.Rows) error {
			var r evm.MaterialDelivery
			var date, qty, cost string
			var num decimals
			if err := rows.Scan(&r.ProjectID, &r.LineID, &date, &qty, &cost); err != nil {
				return err
			}
			var err error
			if r.Date, err = evm.ParseTimePoint(date); err != nil {
				return err
			}
			r.Quantity = num.parse("quantity", qty)
			r.TotalCost = num.parse("total_cost", cost)
			if num.err != nil {
				return num.err
			}
			ds.Materials = append(ds.Materials, r)
			return nil
		})
}

func (s *Store) loadPeriods(ctx context.Context, ds *evm.Dataset) error {
	return s.queryEach(ctx, `
		SELECT project_id, application_number, period_end
		FROM billing_history ORDER BY row_num`,
		func(rows *sql.Rows) error {
			var r evm.BillingPeriod
			var end string
			if err := rows.Scan(&r.ProjectID, &r.ApplicationNumber, &end); err != nil {
				return err
			}
			var err error
			if r.PeriodEnd, err = evm.ParseTimePoint(end); err != nil {
				return err
			}
			ds.Periods = append(ds.Periods, r)
			return nil
		})
}

func (s *Store) loadLineItems(ctx context.Context, ds *evm.Dataset) error {
	return s.queryEach(ctx, `
		SELECT project_id, sov_line_id, application_number, pct_complete, total_billed,
		       scheduled_value, description
		FROM billing_line_items ORDER BY row_num`,
		func(rows *sql.Rows) error {
			var r evm.BillingLineItem
			var pct, billed, scheduled string
			var num decimals
			var description sql.NullString
			if err := rows.Scan(&r.ProjectID, &r.LineID, &r.ApplicationNumber, &pct, &billed,
				&scheduled, &description); err != nil {
				return err
			}
			r.PctComplete = num.parse("pct_complete", pct)
			r.TotalBilled = num.parse("total_billed", billed)
			r.ScheduledValue = num.parse("scheduled_value", scheduled)
			r.Description = description.String
			if num.err != nil {
				return num.err
			}
			ds.LineItems = append(ds.LineItems, r)
			return nil
		})
}

// =============================================================================
// RUNS
// =============================================================================

// SaveRun records a run and its output rows in one transaction.
func (s *Store) SaveRun(ctx context.Context, run evm.Run, result *evm.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, dataset_revision, status, error, started_at, completed_at,
		                  projects, weekly_rows, closeout_rows, project_week_rows)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.DatasetRevision, string(run.Status), nullString(run.Error),
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.CompletedAt.UTC().Format(time.RFC3339Nano),
		run.Projects, run.WeeklyRows, run.CloseoutRows, run.ProjectWeekRows,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if result != nil {
		if err := saveResult(ctx, tx, run.ID, result); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func saveResult(ctx context.Context, tx *sql.Tx, runID string, r *evm.Result) error {
	if err := insertRows(ctx, tx, "sov_line_week_snapshot", []string{"project_id", "sov_line_id", "week_end"},
		runID, r.Weekly, func(w *evm.WeeklySnapshot) []any {
			return []any{w.ProjectID, w.LineID, w.WeekEnd.String()}
		}); err != nil {
		return err
	}
	if err := insertRows(ctx, tx, "sov_line_closeout", []string{"project_id", "sov_line_id"},
		runID, r.Closeouts, func(c *evm.CloseoutRecord) []any {
			return []any{c.ProjectID, c.LineID}
		}); err != nil {
		return err
	}
	if err := insertRows(ctx, tx, "project_calibration_scale", []string{"project_id"},
		runID, r.Scales, func(c *evm.CalibrationScale) []any {
			return []any{c.ProjectID}
		}); err != nil {
		return err
	}
	if err := insertRows(ctx, tx, "last_period_end", []string{"project_id"},
		runID, r.LastPeriods, func(l *evm.LastPeriodEnd) []any {
			return []any{l.ProjectID}
		}); err != nil {
		return err
	}
	return insertRows(ctx, tx, "project_week_snapshot", []string{"project_id", "week_end"},
		runID, r.ProjectWeek, func(p *evm.ProjectWeekSnapshot) []any {
			return []any{p.ProjectID, p.WeekEnd.String()}
		})
}

func insertRows[T any](ctx context.Context, tx *sql.Tx, table string, keyCols []string,
	runID string, rows []T, keys func(*T) []any) error {
	if len(rows) == 0 {
		return nil
	}
	cols := append([]string{"run_id", "seq"}, keyCols...)
	cols = append(cols, "row_json")
	stmt, err := tx.PrepareContext(ctx, insertQuery(table, cols))
	if err != nil {
		return fmt.Errorf("failed to prepare %s insert: %w", table, err)
	}
	defer stmt.Close()

	for i := range rows {
		body, err := json.Marshal(&rows[i])
		if err != nil {
			return fmt.Errorf("failed to encode %s row: %w", table, err)
		}
		args := append([]any{runID, i}, keys(&rows[i])...)
		args = append(args, string(body))
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert %s row: %w", table, err)
		}
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*evm.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRun(ctx, runSelect+" WHERE id = ?", id)
}

// LatestRun returns the most recently recorded completed run.
func (s *Store) LatestRun(ctx context.Context) (*evm.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRun(ctx, runSelect+" WHERE status = ? ORDER BY rowid DESC LIMIT 1", string(evm.RunCompleted))
}

// ListRuns returns runs newest first; limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]evm.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := runSelect + " ORDER BY rowid DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var runs []evm.Run
	err := s.queryEach(ctx, query, func(rows *sql.Rows) error {
		run, err := scanRun(rows)
		if err != nil {
			return err
		}
		runs = append(runs, *run)
		return nil
	}, args...)
	return runs, err
}

// LoadResult reads back every output row of a run in its saved order.
func (s *Store) LoadResult(ctx context.Context, runID string) (*evm.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.queryRun(ctx, runSelect+" WHERE id = ?", runID); err != nil {
		return nil, err
	}

	r := &evm.Result{}
	var err error
	if r.Weekly, err = loadRows[evm.WeeklySnapshot](ctx, s, "sov_line_week_snapshot", runID); err != nil {
		return nil, err
	}
	if r.Closeouts, err = loadRows[evm.CloseoutRecord](ctx, s, "sov_line_closeout", runID); err != nil {
		return nil, err
	}
	if r.Scales, err = loadRows[evm.CalibrationScale](ctx, s, "project_calibration_scale", runID); err != nil {
		return nil, err
	}
	if r.LastPeriods, err = loadRows[evm.LastPeriodEnd](ctx, s, "last_period_end", runID); err != nil {
		return nil, err
	}
	if r.ProjectWeek, err = loadRows[evm.ProjectWeekSnapshot](ctx, s, "project_week_snapshot", runID); err != nil {
		return nil, err
	}
	return r, nil
}

func loadRows[T any](ctx context.Context, s *Store, table, runID string) ([]T, error) {
	var out []T
	err := s.queryEach(ctx, "SELECT row_json FROM "+table+" WHERE run_id = ? ORDER BY seq",
		func(rows *sql.Rows) error {
			var body string
			if err := rows.Scan(&body); err != nil {
				return err
			}
			var v T
			if err := json.Unmarshal([]byte(body), &v); err != nil {
				return fmt.Errorf("failed to decode %s row: %w", table, err)
			}
			out = append(out, v)
			return nil
		}, runID)
	return out, err
}

const runSelect = `
	SELECT id, dataset_revision, status, error, started_at, completed_at,
	       projects, weekly_rows, closeout_rows, project_week_rows
	FROM runs`

func (s *Store) queryRun(ctx context.Context, query string, args ...any) (*evm.Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, evm.ErrRunNotFound
	}
	return scanRun(rows)
}

func scanRun(rows *sql.Rows) (*evm.Run, error) {
	var (
		run         evm.Run
		status      string
		runErr      sql.NullString
		startedAt   string
		completedAt string
	)
	err := rows.Scan(&run.ID, &run.DatasetRevision, &status, &runErr, &startedAt, &completedAt,
		&run.Projects, &run.WeeklyRows, &run.CloseoutRows, &run.ProjectWeekRows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.Status = evm.RunStatus(status)
	run.Error = runErr.String
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	run.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt)
	return &run, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

func (s *Store) queryEach(ctx context.Context, query string, fn func(*sql.Rows) error, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func insert(ctx context.Context, db execer, table string, cols []string, args ...any) error {
	if _, err := db.ExecContext(ctx, insertQuery(table, cols), args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

func insertQuery(table string, cols []string) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), marks)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// dec renders a quantity as its shortest exact decimal.
func dec(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// decimals reads stored quantities back and keeps the first failure.
type decimals struct {
	err error
}

func (d *decimals) parse(col, s string) float64 {
	v, err := decimal.NewFromString(s)
	if err != nil {
		if d.err == nil {
			d.err = fmt.Errorf("corrupt %s value %q: %w", col, s, err)
		}
		return 0
	}
	return v.InexactFloat64()
}

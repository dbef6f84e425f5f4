package evm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// STORE INTERFACE - Persistence for datasets and computed runs
// =============================================================================

// Store persists the current input dataset and the results of pipeline runs.
// Saving a dataset replaces the previous one and bumps the revision.
// Implementations:
//   - evm/store.Memory: For testing
//   - store/sqlite.Store: SQLite
type Store interface {
	SaveDataset(ctx context.Context, ds *Dataset) (revision int64, err error)
	// LoadDataset returns ErrNoDataset before the first SaveDataset.
	LoadDataset(ctx context.Context) (*Dataset, int64, error)
	DatasetRevision(ctx context.Context) (int64, error)

	SaveRun(ctx context.Context, run Run, result *Result) error
	GetRun(ctx context.Context, id string) (*Run, error)
	// LatestRun returns ErrRunNotFound when no run completed yet.
	LatestRun(ctx context.Context) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	LoadResult(ctx context.Context, runID string) (*Result, error)
}

// =============================================================================
// RUN - Audit record of one pipeline execution
// =============================================================================

type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

type Run struct {
	ID              string    `json:"id"`
	DatasetRevision int64     `json:"dataset_revision"`
	Status          RunStatus `json:"status"`
	Error           string    `json:"error,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	Projects        int       `json:"projects"`
	WeeklyRows      int       `json:"weekly_rows"`
	CloseoutRows    int       `json:"closeout_rows"`
	ProjectWeekRows int       `json:"project_week_rows"`
}

// =============================================================================
// RUNNER - Load, compute, persist
// =============================================================================

// Runner executes the pipeline against the stored dataset and records the
// outcome. Failed runs are recorded too, without result rows.
type Runner struct {
	Store    Store
	Pipeline *Pipeline
	Logger   *slog.Logger
	// Now is overridable for tests.
	Now func() time.Time
}

func NewRunner(store Store, pipeline *Pipeline, logger *slog.Logger) *Runner {
	return &Runner{Store: store, Pipeline: pipeline, Logger: logger, Now: time.Now}
}

// Execute runs the pipeline once and returns the persisted run.
func (r *Runner) Execute(ctx context.Context) (*Run, error) {
	ds, revision, err := r.Store.LoadDataset(ctx)
	if err != nil {
		return nil, err
	}

	run := Run{
		ID:              uuid.NewString(),
		DatasetRevision: revision,
		StartedAt:       r.Now().UTC(),
	}
	result, runErr := r.Pipeline.Run(ctx, ds)
	run.CompletedAt = r.Now().UTC()
	if runErr != nil {
		run.Status = RunFailed
		run.Error = runErr.Error()
		result = &Result{}
	} else {
		run.Status = RunCompleted
		run.Projects = len(result.Projects())
		run.WeeklyRows = len(result.Weekly)
		run.CloseoutRows = len(result.Closeouts)
		run.ProjectWeekRows = len(result.ProjectWeek)
	}

	// Failed runs are recorded even when ctx was cancelled.
	if err := r.Store.SaveRun(context.WithoutCancel(ctx), run, result); err != nil {
		return nil, fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	if r.Logger != nil {
		r.Logger.Info("run recorded",
			slog.String("run_id", run.ID),
			slog.String("status", string(run.Status)),
			slog.Int64("dataset_revision", revision),
			slog.Int("weekly_rows", run.WeeklyRows))
	}
	if runErr != nil {
		return &run, runErr
	}
	return &run, nil
}

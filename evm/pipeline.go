/*
pipeline.go - Orchestration of the component chain

PURPOSE:
  Runs the components in order for every project and merges the output:

    Cutoff -> Aggregate -> Fuse -> Roll -> Sign -> Closeouts -> Calibrate
                                                 \-> Rollup

PARTITIONING:
  No component crosses a project boundary, so the dataset is split by
  project_id and each partition runs the whole chain on its own. Partitions
  run concurrently on a bounded errgroup; each writes only its own result
  slot, and slots are concatenated in project order. Output is therefore
  identical for every worker count.

SEE ALSO:
  - store.go: Runner persists pipeline results
  - cmd/burnreport: Batch entry point
*/
package evm

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// =============================================================================
// PARAMS - Formula constants
// =============================================================================

// Params are the constants of the signature formulas.
type Params struct {
	// OvertimePremium multiplies overtime hours before rate and burden.
	OvertimePremium float64
	// ProgressGate is the pct_complete_td (0-100) below which burn
	// multipliers stay undefined.
	ProgressGate float64
	// Epsilon guards ratio denominators.
	Epsilon float64
}

func DefaultParams() Params {
	return Params{
		OvertimePremium: 1.5,
		ProgressGate:    5,
		Epsilon:         1e-9,
	}
}

// =============================================================================
// PIPELINE
// =============================================================================

type Pipeline struct {
	Params Params
	// Workers bounds concurrent project partitions; <= 0 means GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

func NewPipeline(params Params) *Pipeline {
	return &Pipeline{Params: params}
}

// Run computes every output table for ds. It only fails when ctx is done
// before all partitions finish.
func (p *Pipeline) Run(ctx context.Context, ds *Dataset) (*Result, error) {
	logger := p.logger()
	parts := ds.Partition()
	projects := ds.Projects()
	results := make([]*Result, len(projects))

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, project := range projects {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = p.RunProject(parts[project])
			logger.Debug("project computed",
				slog.String("project_id", string(project)),
				slog.Int("weekly_rows", len(results[i].Weekly)),
				slog.Int("lines", len(results[i].Closeouts)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Result{}
	for _, r := range results {
		out.append(r)
	}
	logger.Info("pipeline complete",
		slog.Int("projects", len(projects)),
		slog.Int("weekly_rows", len(out.Weekly)),
		slog.Int("closeouts", len(out.Closeouts)),
		slog.Int("project_weeks", len(out.ProjectWeek)))
	return out, nil
}

// RunProject runs the full chain on a dataset holding a single project (or
// any dataset, sequentially).
func (p *Pipeline) RunProject(ds *Dataset) *Result {
	cutoff := LastPeriodEnds(ds.Periods)
	labor := AggregateLabor(CutoffLabor(ds.Labor, cutoff), p.Params)
	materials := AggregateMaterials(CutoffMaterials(ds.Materials, cutoff))
	billing := AggregateBilling(ds.LineItems, ds.Periods)

	weekly := Fuse(labor, materials, billing)
	Roll(weekly)
	Sign(weekly, BudgetIndex(ds.SOV), p.Params)

	closeouts := Closeouts(weekly)
	scales := Calibrate(closeouts)

	return &Result{
		Weekly:      weekly,
		Closeouts:   closeouts,
		Scales:      scales,
		LastPeriods: lastPeriodTable(cutoff),
		ProjectWeek: Rollup(weekly, p.Params),
	}
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p.Logger
}

func sortedProjects(set map[ProjectID]bool) []ProjectID {
	out := make([]ProjectID, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

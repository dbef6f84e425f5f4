package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/burn-engine/evm"
	"github.com/warp/burn-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func day(m time.Month, d int) evm.TimePoint { return evm.NewTimePoint(2025, m, d) }

func testDataset() *evm.Dataset {
	return &evm.Dataset{
		SOV: []evm.SOVLine{
			{ProjectID: "P1", LineID: "L1", EstimatedLaborHours: 120, EstimatedLaborCost: 7200.5,
				EstimatedMaterialCost: 3000, ProductivityFactor: 1.1},
			{ProjectID: "P1", LineID: "L2", EstimatedLaborHours: 40, EstimatedLaborCost: 2400},
		},
		Labor: []evm.LaborLogEntry{
			{ProjectID: "P1", LineID: "L1", Date: day(time.January, 6), HoursST: 8, HoursOT: 1.5,
				HourlyRate: 52.35, BurdenMultiplier: 1.32},
			{ProjectID: "P1", LineID: "L2", Date: day(time.January, 15), HoursST: 6, HourlyRate: 48,
				BurdenMultiplier: 1.3},
		},
		Materials: []evm.MaterialDelivery{
			{ProjectID: "P1", LineID: "L1", Date: day(time.January, 7), Quantity: 12, TotalCost: 845.1},
		},
		Periods: []evm.BillingPeriod{
			{ProjectID: "P1", ApplicationNumber: 1, PeriodEnd: day(time.January, 17)},
		},
		LineItems: []evm.BillingLineItem{
			{ProjectID: "P1", LineID: "L1", ApplicationNumber: 1, PctComplete: 12.5, TotalBilled: 900,
				ScheduledValue: 10500, Description: "Supply ductwork"},
			{ProjectID: "P1", LineID: "L2", ApplicationNumber: 1, PctComplete: 10, TotalBilled: 300,
				ScheduledValue: 3000},
		},
	}
}

func TestStore_EmptyDatabase(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, _, err := store.LoadDataset(ctx)
	assert.ErrorIs(t, err, evm.ErrNoDataset)

	rev, err := store.DatasetRevision(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rev)

	_, err = store.LatestRun(ctx)
	assert.ErrorIs(t, err, evm.ErrRunNotFound)

	_, err = store.LoadResult(ctx, "missing")
	assert.ErrorIs(t, err, evm.ErrRunNotFound)
}

func TestStore_DatasetRoundTrip(t *testing.T) {
	// GIVEN: A dataset with fractional quantities
	// WHEN: Saving it twice and loading it back
	// THEN: Records come back identical and in order, revision is bumped

	store := newStore(t)
	ctx := context.Background()
	ds := testDataset()

	rev, err := store.SaveDataset(ctx, ds)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev)

	rev, err = store.SaveDataset(ctx, ds)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rev)

	loaded, loadedRev, err := store.LoadDataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), loadedRev)
	assert.Equal(t, ds, loaded)
}

func TestStore_RunnerPersistsResult(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_, err := store.SaveDataset(ctx, testDataset())
	require.NoError(t, err)

	pipeline := evm.NewPipeline(evm.DefaultParams())
	runner := evm.NewRunner(store, pipeline, nil)

	run, err := runner.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, evm.RunCompleted, run.Status)
	assert.Equal(t, int64(1), run.DatasetRevision)

	want, err := pipeline.Run(ctx, testDataset())
	require.NoError(t, err)

	got, err := store.LoadResult(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, want.Weekly, got.Weekly)
	assert.Equal(t, want.Closeouts, got.Closeouts)
	assert.Equal(t, want.Scales, got.Scales)
	assert.Equal(t, want.LastPeriods, got.LastPeriods)
	assert.Equal(t, want.ProjectWeek, got.ProjectWeek)

	stored, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.WeeklyRows, stored.WeeklyRows)
	assert.Equal(t, run.StartedAt, stored.StartedAt)
}

func TestStore_LatestRunSkipsFailures(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	ok := evm.Run{ID: "run-1", DatasetRevision: 1, Status: evm.RunCompleted, StartedAt: start, CompletedAt: start}
	failed := evm.Run{ID: "run-2", DatasetRevision: 2, Status: evm.RunFailed, Error: "context canceled",
		StartedAt: start.Add(time.Minute), CompletedAt: start.Add(time.Minute)}
	require.NoError(t, store.SaveRun(ctx, ok, &evm.Result{}))
	require.NoError(t, store.SaveRun(ctx, failed, nil))

	latest, err := store.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", latest.ID)

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID, "newest first")
	assert.Equal(t, "context canceled", runs[0].Error)

	runs, err = store.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	empty, err := store.LoadResult(ctx, "run-2")
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
}

func TestStore_CorruptDecimalIsAnError(t *testing.T) {
	// GIVEN: A stored dataset whose hours_st cell was damaged outside the store
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "burn.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	_, err = store.SaveDataset(ctx, testDataset())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.Exec("UPDATE labor_logs SET hours_st = 'eight'")
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	// WHEN
	store, err = sqlite.New(path)
	require.NoError(t, err)
	defer store.Close()
	_, _, err = store.LoadDataset(ctx)

	// THEN: The damage surfaces instead of reading back as zero
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hours_st")
	assert.Contains(t, err.Error(), "eight")
}

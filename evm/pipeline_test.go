package evm_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/burn-engine/evm"
	"github.com/warp/burn-engine/evm/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func day(y int, m time.Month, d int) evm.TimePoint {
	return evm.NewTimePoint(y, m, d)
}

func labor(project, line string, date evm.TimePoint, st, ot float64) evm.LaborLogEntry {
	return evm.LaborLogEntry{
		ProjectID:        evm.ProjectID(project),
		LineID:           evm.LineID(line),
		Date:             date,
		HoursST:          st,
		HoursOT:          ot,
		HourlyRate:       50,
		BurdenMultiplier: 1.2,
	}
}

func material(project, line string, date evm.TimePoint, qty, cost float64) evm.MaterialDelivery {
	return evm.MaterialDelivery{
		ProjectID: evm.ProjectID(project),
		LineID:    evm.LineID(line),
		Date:      date,
		Quantity:  qty,
		TotalCost: cost,
	}
}

func period(project string, app int, end evm.TimePoint) evm.BillingPeriod {
	return evm.BillingPeriod{ProjectID: evm.ProjectID(project), ApplicationNumber: app, PeriodEnd: end}
}

func billed(project, line string, app int, pct, total float64) evm.BillingLineItem {
	return evm.BillingLineItem{
		ProjectID:         evm.ProjectID(project),
		LineID:            evm.LineID(line),
		ApplicationNumber: app,
		PctComplete:       pct,
		TotalBilled:       total,
		ScheduledValue:    10000,
		Description:       "Ductwork " + line,
	}
}

func sov(project, line string, hours, laborCost, matCost, productivity float64) evm.SOVLine {
	return evm.SOVLine{
		ProjectID:             evm.ProjectID(project),
		LineID:                evm.LineID(line),
		EstimatedLaborHours:   hours,
		EstimatedLaborCost:    laborCost,
		EstimatedMaterialCost: matCost,
		ProductivityFactor:    productivity,
	}
}

// sampleDataset has three projects: P1 with two active lines, P2 with a
// single line, and P3 without billing periods.
func sampleDataset() *evm.Dataset {
	return &evm.Dataset{
		SOV: []evm.SOVLine{
			sov("P1", "L1", 200, 12000, 8000, 1.25),
			sov("P1", "L2", 100, 6000, 0, 0),
			sov("P2", "L1", 50, 3000, 1000, 1),
			sov("P3", "L1", 10, 500, 500, 0),
		},
		Labor: []evm.LaborLogEntry{
			labor("P1", "L1", day(2025, time.January, 6), 40, 5),
			labor("P1", "L1", day(2025, time.January, 8), 8, 0),
			labor("P1", "L2", day(2025, time.January, 21), 16, 2),
			labor("P1", "L1", day(2025, time.February, 3), 20, 0),
			labor("P1", "L1", day(2025, time.February, 20), 99, 0), // after cutoff
			labor("P2", "L1", day(2025, time.March, 4), 10, 0),
			labor("P3", "L1", day(2025, time.March, 4), 10, 0), // no periods
		},
		Materials: []evm.MaterialDelivery{
			material("P1", "L1", day(2025, time.January, 14), 10, 2500),
			material("P1", "L1", day(2025, time.January, 30), 4, 900),
			material("P2", "L1", day(2025, time.March, 5), 1, 400),
		},
		Periods: []evm.BillingPeriod{
			period("P1", 1, day(2025, time.January, 8)),
			period("P1", 2, day(2025, time.January, 22)),
			period("P1", 3, day(2025, time.February, 5)),
			period("P2", 1, day(2025, time.March, 9)),
		},
		LineItems: []evm.BillingLineItem{
			billed("P1", "L1", 1, 10, 1500),
			billed("P1", "L1", 2, 35, 4500),
			billed("P1", "L1", 3, 30, 4200), // under-reported
			billed("P1", "L2", 2, 20, 1000),
			billed("P1", "L2", 3, 120, 6000),
			billed("P2", "L1", 1, 60, 2500),
		},
	}
}

func weeklyFor(t *testing.T, rows []evm.WeeklySnapshot, project, line string) []evm.WeeklySnapshot {
	t.Helper()
	var out []evm.WeeklySnapshot
	for _, r := range rows {
		if r.ProjectID == evm.ProjectID(project) && r.LineID == evm.LineID(line) {
			out = append(out, r)
		}
	}
	require.NotEmpty(t, out, "no weekly rows for %s/%s", project, line)
	return out
}

// =============================================================================
// TIME BUCKETING
// =============================================================================

func TestWeekEnd(t *testing.T) {
	tests := []struct {
		name string
		in   evm.TimePoint
		want evm.TimePoint
	}{
		{"wednesday maps four days ahead", day(2025, time.January, 1), day(2025, time.January, 5)},
		{"sunday maps to itself", day(2025, time.January, 5), day(2025, time.January, 5)},
		{"monday maps to the next sunday", day(2025, time.January, 6), day(2025, time.January, 12)},
		{"saturday maps to the next day", day(2025, time.January, 11), day(2025, time.January, 12)},
		{"week crossing a year boundary", day(2024, time.December, 30), day(2025, time.January, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.WeekEnd()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, time.Sunday, got.Weekday())
		})
	}
}

func TestParseTimePoint_DropsTimeOfDay(t *testing.T) {
	got, err := evm.ParseTimePoint("2025-03-04 17:30:00")
	require.NoError(t, err)
	assert.Equal(t, day(2025, time.March, 4), got)

	_, err = evm.ParseTimePoint("03/04/2025")
	assert.Error(t, err)
}

// =============================================================================
// COMPONENTS
// =============================================================================

func TestLaborTotalCost_OvertimePremiumBeforeRateAndBurden(t *testing.T) {
	e := evm.LaborLogEntry{HoursST: 40, HoursOT: 5, HourlyRate: 50, BurdenMultiplier: 1.2}
	assert.InDelta(t, 2850.0, evm.LaborTotalCost(e, evm.DefaultParams()), 1e-9)
}

func TestClipPercent(t *testing.T) {
	assert.Equal(t, 100.0, evm.ClipPercent(150))
	assert.Equal(t, 0.0, evm.ClipPercent(-10))
	assert.Equal(t, 42.5, evm.ClipPercent(42.5))
}

func TestCutoff_ProjectsWithoutPeriodsKeepNothing(t *testing.T) {
	ds := sampleDataset()
	cutoff := evm.LastPeriodEnds(ds.Periods)

	assert.Equal(t, day(2025, time.February, 5), cutoff["P1"])
	assert.NotContains(t, cutoff, evm.ProjectID("P3"))

	kept := evm.CutoffLabor(ds.Labor, cutoff)
	for _, e := range kept {
		assert.NotEqual(t, evm.ProjectID("P3"), e.ProjectID)
		assert.True(t, e.Date.BeforeOrEqual(cutoff[e.ProjectID]))
	}
	assert.Len(t, kept, 5)

	// Cutoff day itself is retained.
	onCutoff := []evm.MaterialDelivery{material("P1", "L1", day(2025, time.February, 5), 1, 1)}
	assert.Len(t, evm.CutoffMaterials(onCutoff, cutoff), 1)
}

func TestAggregateBilling_MaxPerWeekAndFirstDescription(t *testing.T) {
	// GIVEN: Two applications whose periods end in the same week, listed
	//        out of application order, plus an item with no period
	periods := []evm.BillingPeriod{
		period("P1", 1, day(2025, time.January, 6)),
		period("P1", 2, day(2025, time.January, 10)),
	}
	first := billed("P1", "L1", 1, 40, 900)
	first.Description = ""
	second := billed("P1", "L1", 2, 35, 1200)
	second.Description = "second"
	second.ScheduledValue = 12000
	orphan := billed("P1", "L1", 9, 99, 9999)

	// WHEN
	weeks := evm.AggregateBilling([]evm.BillingLineItem{second, orphan, first}, periods)

	// THEN: One bucket holding the maxima and the first non-empty description
	require.Len(t, weeks, 1)
	w := weeks[evm.WeekKey{ProjectID: "P1", LineID: "L1", WeekEnd: day(2025, time.January, 12)}]
	assert.Equal(t, 40.0, w.PctComplete)
	assert.Equal(t, 1200.0, w.TotalBilled)
	assert.Equal(t, 12000.0, w.ScheduledValue)
	assert.Equal(t, "second", w.Description)
}

func TestAggregateMaterials_SumsCostAndQuantityPerWeek(t *testing.T) {
	weeks := evm.AggregateMaterials([]evm.MaterialDelivery{
		material("P1", "L1", day(2025, time.January, 6), 10, 2500),
		material("P1", "L1", day(2025, time.January, 12), 4, 900),
		material("P1", "L1", day(2025, time.January, 13), 1, 100),
	})

	require.Len(t, weeks, 2)
	w := weeks[evm.WeekKey{ProjectID: "P1", LineID: "L1", WeekEnd: day(2025, time.January, 12)}]
	assert.Equal(t, 14.0, w.MaterialQty)
	assert.Equal(t, 3400.0, w.MaterialCost)
}

func TestFuse_BillingOnlyWeekProducesZeroFilledRow(t *testing.T) {
	key := evm.WeekKey{ProjectID: "P1", LineID: "L1", WeekEnd: day(2025, time.January, 12)}
	rows := evm.Fuse(nil, nil, map[evm.WeekKey]evm.BillingWeek{
		key: {PctComplete: 150, TotalBilled: 500},
	})

	require.Len(t, rows, 1)
	assert.Equal(t, 0.0, rows[0].LaborCostW)
	assert.Equal(t, 0.0, rows[0].MaterialCostW)
	assert.Equal(t, 100.0, rows[0].PctComplete, "clipped before use")
	assert.Equal(t, "", rows[0].Description)
}

func TestMedian(t *testing.T) {
	assert.False(t, evm.Median(nil).Valid)
	assert.Equal(t, evm.Some(1.0), evm.Median([]float64{1.3, 0.8, 1.0}))
	assert.Equal(t, evm.Some(2.5), evm.Median([]float64{4, 1, 3, 2}))
}

// =============================================================================
// PIPELINE PROPERTIES
// =============================================================================

func TestPipeline_CumulativeFieldsNeverDecrease(t *testing.T) {
	result, err := evm.NewPipeline(evm.DefaultParams()).Run(context.Background(), sampleDataset())
	require.NoError(t, err)

	for i := 1; i < len(result.Weekly); i++ {
		prev, cur := result.Weekly[i-1], result.Weekly[i]
		if prev.Line() != cur.Line() {
			continue
		}
		assert.True(t, prev.WeekEnd.Before(cur.WeekEnd), "weeks strictly increase within a line")
		assert.GreaterOrEqual(t, cur.LaborCostTD, prev.LaborCostTD)
		assert.GreaterOrEqual(t, cur.MaterialCostTD, prev.MaterialCostTD)
		assert.GreaterOrEqual(t, cur.PctCompleteTD, prev.PctCompleteTD)
		assert.GreaterOrEqual(t, cur.TotalBilledTD, prev.TotalBilledTD)
	}

	// P1/L1 reported 35% then 30%: the running max holds at 35.
	l1 := weeklyFor(t, result.Weekly, "P1", "L1")
	last := l1[len(l1)-1]
	assert.Equal(t, 30.0, last.PctComplete)
	assert.Equal(t, 35.0, last.PctCompleteTD)
	assert.Equal(t, 4500.0, last.TotalBilledTD)
}

func TestPipeline_CutoffAndSparseWeeks(t *testing.T) {
	result, err := evm.NewPipeline(evm.DefaultParams()).Run(context.Background(), sampleDataset())
	require.NoError(t, err)

	l1 := weeklyFor(t, result.Weekly, "P1", "L1")
	var weeks []evm.TimePoint
	for _, r := range l1 {
		weeks = append(weeks, r.WeekEnd)
	}
	// Only weeks with an event in some stream exist. The Feb 20 entry is
	// past P1's cutoff, so its week never appears and its hours never count.
	assert.Equal(t, []evm.TimePoint{
		day(2025, time.January, 12),
		day(2025, time.January, 19),
		day(2025, time.January, 26),
		day(2025, time.February, 2),
		day(2025, time.February, 9),
	}, weeks)
	assert.InDelta(t, 40+5+8+20, l1[len(l1)-1].LaborHoursTD, 1e-9)

	for _, r := range result.Weekly {
		assert.NotEqual(t, evm.ProjectID("P3"), r.ProjectID)
	}
	assert.Equal(t, []evm.LastPeriodEnd{
		{ProjectID: "P1", LastPeriodEnd: day(2025, time.February, 5)},
		{ProjectID: "P2", LastPeriodEnd: day(2025, time.March, 9)},
	}, result.LastPeriods)
}

func TestPipeline_BudgetConstantAcrossLineRows(t *testing.T) {
	result, err := evm.NewPipeline(evm.DefaultParams()).Run(context.Background(), sampleDataset())
	require.NoError(t, err)

	for _, r := range weeklyFor(t, result.Weekly, "P1", "L1") {
		assert.Equal(t, 12000.0, r.EstimatedLaborCost)
		assert.Equal(t, 1.25, r.ProductivityFactor)
		assert.InDelta(t, 160.0, r.BudgetHoursAdj, 1e-9)
	}
	for _, r := range weeklyFor(t, result.Weekly, "P1", "L2") {
		assert.Equal(t, 100.0, r.BudgetHoursAdj, "zero productivity factor leaves hours unchanged")
		assert.False(t, r.MaterialBurnMultCost.Valid, "no material budget")
	}
}

func TestSignature_ProgressGate(t *testing.T) {
	run := func(pct float64) evm.WeeklySnapshot {
		ds := &evm.Dataset{
			SOV:     []evm.SOVLine{sov("P1", "L1", 100, 10000, 0, 0)},
			Labor:   []evm.LaborLogEntry{labor("P1", "L1", day(2025, time.January, 6), 10, 0)}, // 10*50*1.2 = 600
			Periods: []evm.BillingPeriod{period("P1", 1, day(2025, time.January, 10))},
			LineItems: []evm.BillingLineItem{
				billed("P1", "L1", 1, pct, 0),
			},
		}
		result := evm.NewPipeline(evm.DefaultParams()).RunProject(ds)
		require.Len(t, result.Weekly, 1)
		return result.Weekly[0]
	}

	t.Run("below gate is undefined, not zero", func(t *testing.T) {
		row := run(3)
		assert.False(t, row.LaborBurnMultCost.Valid)
		assert.False(t, row.LaborBurnMultHours.Valid)
		assert.InDelta(t, 300.0, row.EarnedLaborCostTD, 1e-9, "earned value is still computed")
	})

	t.Run("at gate is defined", func(t *testing.T) {
		row := run(5)
		require.True(t, row.LaborBurnMultCost.Valid)
		assert.InDelta(t, 600.0, row.LaborCostTD, 1e-9)
		assert.InDelta(t, 500.0, row.EarnedLaborCostTD, 1e-9)
		assert.InDelta(t, 1.2, row.LaborBurnMultCost.Float64, 1e-9)
	})

	t.Run("billing lag needs billed amount", func(t *testing.T) {
		row := run(50)
		assert.False(t, row.BillingLagRatio.Valid)
		assert.InDelta(t, 0.0, row.OTRatioTD, 1e-12)
	})
}

func TestSignature_DefinedValues(t *testing.T) {
	// GIVEN: P1/L1 at its last week (2025-02-09): 73 hours (68 ST, 5 OT),
	//        labor cost 4530, material cost 3400, pct 35, billed 4500,
	//        budget 200 h / 12000 labor / 8000 material, productivity 1.25
	result, err := evm.NewPipeline(evm.DefaultParams()).Run(context.Background(), sampleDataset())
	require.NoError(t, err)
	rows := weeklyFor(t, result.Weekly, "P1", "L1")
	row := rows[len(rows)-1]
	require.Equal(t, "2025-02-09", row.WeekEnd.String())

	defined := func(n evm.NullFloat) float64 {
		t.Helper()
		require.True(t, n.Valid)
		return n.Float64
	}

	// THEN
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"budget_hours_adj", row.BudgetHoursAdj, 160},
		{"labor_hours_td", row.LaborHoursTD, 73},
		{"earned_labor_hours_td", row.EarnedLaborHoursTD, 56},
		{"earned_labor_cost_td", row.EarnedLaborCostTD, 4200},
		{"earned_material_cost_td", row.EarnedMaterialCostTD, 2800},
		{"labor_burn_mult_hours", defined(row.LaborBurnMultHours), 73.0 / 56},
		{"labor_burn_mult_cost", defined(row.LaborBurnMultCost), 4530.0 / 4200},
		{"material_burn_mult_cost", defined(row.MaterialBurnMultCost), 3400.0 / 2800},
		{"ot_ratio_td", row.OTRatioTD, 5.0 / 73},
		{"billing_lag_ratio", defined(row.BillingLagRatio), (4530.0 + 3400) / 4500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.got, 1e-9)
		})
	}
}

func TestPipeline_MaterialQuantityPerWeek(t *testing.T) {
	result, err := evm.NewPipeline(evm.DefaultParams()).Run(context.Background(), sampleDataset())
	require.NoError(t, err)

	qty := map[string]float64{}
	for _, r := range weeklyFor(t, result.Weekly, "P1", "L1") {
		qty[r.WeekEnd.String()] = r.MaterialQtyW
	}
	assert.Equal(t, map[string]float64{
		"2025-01-12": 0,
		"2025-01-19": 10,
		"2025-01-26": 0,
		"2025-02-02": 4,
		"2025-02-09": 0,
	}, qty)
}

func TestCalibration_MedianOverEligibleLines(t *testing.T) {
	// GIVEN: Closeout ratios 0.8, 1.0, 1.3 and one line with no labor budget
	closeouts := []evm.CloseoutRecord{
		closeout("P1", "A", 800, 1000),
		closeout("P1", "B", 1000, 1000),
		closeout("P1", "C", 2600, 2000),
		closeout("P1", "D", 5000, 0),
		closeout("P2", "A", 0, 1000), // no actual cost: not eligible
	}

	// WHEN
	scales := evm.Calibrate(closeouts)

	// THEN
	require.Len(t, scales, 2)
	assert.Equal(t, evm.Some(1.0), scales[0].LaborScale)
	assert.False(t, scales[0].MatScale.Valid, "no material budget anywhere")
	assert.False(t, closeouts[3].LaborCostRatio.Valid, "zero budget has no ratio")

	assert.InDelta(t, 2600-2000*1.0, closeouts[2].VarLaborScaled.Float64, 1e-9)
	assert.False(t, closeouts[2].VarTotalScaled.Valid, "undefined material scale propagates")

	assert.False(t, scales[1].LaborScale.Valid)
	assert.Equal(t, evm.Some(0.0), closeouts[4].LaborCostRatio)
	assert.False(t, closeouts[4].VarLaborScaled.Valid, "no fallback to the unscaled budget")
}

func closeout(project, line string, laborCost, budget float64) evm.CloseoutRecord {
	var c evm.CloseoutRecord
	c.ProjectID = evm.ProjectID(project)
	c.LineID = evm.LineID(line)
	c.LaborCostTD = laborCost
	c.EstimatedLaborCost = budget
	return c
}

func TestCloseout_IsLastWeekOfLine(t *testing.T) {
	result, err := evm.NewPipeline(evm.DefaultParams()).Run(context.Background(), sampleDataset())
	require.NoError(t, err)

	require.Len(t, result.Closeouts, 3)
	l1 := weeklyFor(t, result.Weekly, "P1", "L1")
	c := result.Closeouts[0]
	assert.Equal(t, l1[len(l1)-1], c.WeeklySnapshot)
	assert.True(t, c.LaborScale.Valid)
	assert.True(t, c.VarTotalScaled.Valid)
}

func TestRollup_BillingLagFromSums(t *testing.T) {
	// GIVEN: Two lines in one week, lag 2.0 on a small line and 0.9 on a big one
	rows := []evm.WeeklySnapshot{
		{ProjectID: "P1", LineID: "A", WeekEnd: day(2025, time.January, 12), LaborCostTD: 100, TotalBilledTD: 50},
		{ProjectID: "P1", LineID: "B", WeekEnd: day(2025, time.January, 12), LaborCostTD: 600, MaterialCostTD: 300, TotalBilledTD: 1000},
	}
	params := evm.DefaultParams()
	average := (100.0/50 + 900.0/1000) / 2

	// WHEN
	weeks := evm.Rollup(rows, params)

	// THEN: Ratio of sums, not average of ratios
	require.Len(t, weeks, 1)
	w := weeks[0]
	assert.Equal(t, 1000.0, w.TotalCostTD)
	require.True(t, w.BillingLagRatio.Valid)
	assert.InDelta(t, 1000.0/1050.0, w.BillingLagRatio.Float64, 1e-9)
	assert.NotEqual(t, average, w.BillingLagRatio.Float64)
	assert.False(t, w.BurnMultCost.Valid, "no earned value to compare against")
}

func TestPipeline_DeterministicAcrossWorkerCounts(t *testing.T) {
	ctx := context.Background()
	serial := &evm.Pipeline{Params: evm.DefaultParams(), Workers: 1}
	parallel := &evm.Pipeline{Params: evm.DefaultParams(), Workers: 8}

	first, err := serial.Run(ctx, sampleDataset())
	require.NoError(t, err)
	second, err := parallel.Run(ctx, sampleDataset())
	require.NoError(t, err)
	again, err := parallel.Run(ctx, sampleDataset())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, second, again)
}

func TestPipeline_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := evm.NewPipeline(evm.DefaultParams()).Run(ctx, sampleDataset())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunner_CountsProjectsWithOnlyBillingPeriods(t *testing.T) {
	// GIVEN: The sample plus P4, which has a billing period and nothing else
	ctx := context.Background()
	ds := sampleDataset()
	ds.Periods = append(ds.Periods, period("P4", 1, day(2025, time.March, 31)))
	st := store.NewMemory()
	_, err := st.SaveDataset(ctx, ds)
	require.NoError(t, err)

	// WHEN
	run, err := evm.NewRunner(st, evm.NewPipeline(evm.DefaultParams()), nil).Execute(ctx)

	// THEN: P4 counts through its last_period_end row; P3 has no rows at all
	require.NoError(t, err)
	result, err := st.LoadResult(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []evm.ProjectID{"P1", "P2", "P4"}, result.Projects())
	assert.Equal(t, 3, run.Projects)
	assert.Len(t, result.Scales, 2)
}

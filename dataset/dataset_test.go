package dataset_test

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/burn-engine/dataset"
	"github.com/warp/burn-engine/evm"
)

const (
	sovCSV = `project_id,sov_line_id,estimated_labor_hours,estimated_labor_cost,estimated_material_cost,productivity_factor,line_description
P1,L1,100,5000,2000,1.1,Supply ductwork
P1,L2,40,2000,,,Controls
`
	laborCSV = `date,project_id,sov_line_id,hours_st,hours_ot,hourly_rate,burden_multiplier,crew
2025-01-06,P1,L1,8,2,50,1.2,A
2025-01-08 07:30:00,P1,L1,8,0,50,1.2,A
2025-02-20,P1,L1,8,0,50,1.2,B
`
	materialsCSV = `project_id,sov_line_id,date,quantity,total_cost
P1,L1,2025-01-07,10,800
`
	periodsCSV = `project_id,application_number,period_end
P1,1,2025-01-31
P1,2.0,2025-02-14
`
	lineItemsCSV = `project_id,sov_line_id,application_number,pct_complete,total_billed,scheduled_value,description
P1,L1,1,20,1000,10000,Ductwork
P1,L1,2,35,1800,10000,
`
)

func writeDataset(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		dataset.FileSOV:       sovCSV,
		dataset.FileLabor:     laborCSV,
		dataset.FileMaterials: materialsCSV,
		dataset.FilePeriods:   periodsCSV,
		dataset.FileLineItems: lineItemsCSV,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestLoadDir_ParsesAllStreams(t *testing.T) {
	// GIVEN: A dataset directory with shuffled and extra columns
	// WHEN: Loading it
	// THEN: Every stream is typed, extra columns are ignored

	ds, err := dataset.NewLoader(nil).LoadDir(writeDataset(t))
	require.NoError(t, err)

	require.Len(t, ds.SOV, 2)
	assert.Equal(t, 1.1, ds.SOV[0].ProductivityFactor)
	assert.Equal(t, 0.0, ds.SOV[1].EstimatedMaterialCost, "empty numeric cell reads as 0")

	require.Len(t, ds.Labor, 3)
	assert.Equal(t, evm.NewTimePoint(2025, 1, 6), ds.Labor[0].Date)
	assert.Equal(t, evm.NewTimePoint(2025, 1, 8), ds.Labor[1].Date, "time of day is dropped")
	assert.Equal(t, 2.0, ds.Labor[0].HoursOT)

	require.Len(t, ds.Periods, 2)
	assert.Equal(t, 2, ds.Periods[1].ApplicationNumber)

	require.Len(t, ds.LineItems, 2)
	assert.Equal(t, "Ductwork", ds.LineItems[0].Description)
	assert.Empty(t, ds.LineItems[1].Description)
}

func TestReadLabor_BadNumberIsRecordError(t *testing.T) {
	in := "project_id,sov_line_id,date,hours_st,hours_ot,hourly_rate,burden_multiplier\n" +
		"P1,L1,2025-01-06,8,0,50,1.2\n" +
		"P1,L1,2025-01-07,eight,0,50,1.2\n"

	_, err := dataset.NewLoader(nil).ReadLabor(strings.NewReader(in))

	require.Error(t, err)
	assert.ErrorIs(t, err, evm.ErrInvalidRecord)
	var recErr *evm.RecordError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, evm.TableLabor, recErr.Table)
	assert.Equal(t, 2, recErr.Row)
	assert.Equal(t, "hours_st", recErr.Field)
}

func TestReadPeriods_MissingColumn(t *testing.T) {
	in := "project_id,application_number\nP1,1\n"

	_, err := dataset.NewLoader(nil).ReadPeriods(strings.NewReader(in))

	var recErr *evm.RecordError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, "period_end", recErr.Field)
}

func TestReadPeriods_BadDate(t *testing.T) {
	in := "project_id,application_number,period_end\nP1,1,31/01/2025\n"

	_, err := dataset.NewLoader(nil).ReadPeriods(strings.NewReader(in))

	assert.ErrorIs(t, err, evm.ErrInvalidRecord)
}

func TestValidate_RejectsNegativeAndMissing(t *testing.T) {
	tests := []struct {
		name  string
		ds    *evm.Dataset
		table string
		field string
	}{
		{
			name: "negative hours",
			ds: &evm.Dataset{Labor: []evm.LaborLogEntry{{
				ProjectID: "P1", LineID: "L1", Date: evm.NewTimePoint(2025, 1, 6), HoursST: -1,
			}}},
			table: evm.TableLabor,
			field: "hours_st",
		},
		{
			name:  "missing project",
			ds:    &evm.Dataset{SOV: []evm.SOVLine{{LineID: "L1"}}},
			table: evm.TableSOV,
			field: "project_id",
		},
		{
			name: "missing date",
			ds: &evm.Dataset{Materials: []evm.MaterialDelivery{{
				ProjectID: "P1", LineID: "L1", TotalCost: 10,
			}}},
			table: evm.TableMaterials,
			field: "date",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := dataset.NewLoader(nil).Validate(tt.ds)

			var recErr *evm.RecordError
			require.ErrorAs(t, err, &recErr)
			assert.Equal(t, tt.table, recErr.Table)
			assert.Equal(t, tt.field, recErr.Field)
			assert.Equal(t, 1, recErr.Row)
		})
	}
}

func TestValidate_AcceptsNegativePercent(t *testing.T) {
	// pct_complete is clipped downstream, not rejected.
	ds := &evm.Dataset{LineItems: []evm.BillingLineItem{{
		ProjectID: "P1", LineID: "L1", ApplicationNumber: 1, PctComplete: -5,
	}}}

	assert.NoError(t, dataset.NewLoader(nil).Validate(ds))
}

func TestRead_RejectsNonFiniteCells(t *testing.T) {
	loader := dataset.NewLoader(nil)
	tests := []struct {
		name  string
		read  func(string) error
		in    string
		table string
		field string
	}{
		{
			name: "NaN percent",
			read: func(in string) error { _, err := loader.ReadLineItems(strings.NewReader(in)); return err },
			in: "project_id,sov_line_id,application_number,pct_complete,total_billed,scheduled_value,description\n" +
				"P1,L1,1,NaN,1000,10000,Ductwork\n",
			table: evm.TableLineItems,
			field: "pct_complete",
		},
		{
			name: "Inf hours",
			read: func(in string) error { _, err := loader.ReadLabor(strings.NewReader(in)); return err },
			in: "project_id,sov_line_id,date,hours_st,hours_ot,hourly_rate,burden_multiplier\n" +
				"P1,L1,2025-01-06,Inf,0,50,1.2\n",
			table: evm.TableLabor,
			field: "hours_st",
		},
		{
			name: "negative infinity cost",
			read: func(in string) error { _, err := loader.ReadMaterials(strings.NewReader(in)); return err },
			in: "project_id,sov_line_id,date,quantity,total_cost\n" +
				"P1,L1,2025-01-07,10,-inf\n",
			table: evm.TableMaterials,
			field: "total_cost",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.read(tt.in)

			assert.ErrorIs(t, err, evm.ErrInvalidRecord)
			var recErr *evm.RecordError
			require.ErrorAs(t, err, &recErr)
			assert.Equal(t, tt.table, recErr.Table)
			assert.Equal(t, tt.field, recErr.Field)
			assert.Equal(t, 1, recErr.Row)
		})
	}
}

func TestValidate_RejectsNonFiniteValues(t *testing.T) {
	// GIVEN: Records built in code, bypassing the CSV reader
	withInfHours := &evm.Dataset{Labor: []evm.LaborLogEntry{{
		ProjectID: "P1", LineID: "L1", Date: evm.NewTimePoint(2025, 1, 6), HoursST: math.Inf(1),
	}}}
	withNaNPercent := &evm.Dataset{LineItems: []evm.BillingLineItem{{
		ProjectID: "P1", LineID: "L1", ApplicationNumber: 1, PctComplete: math.NaN(),
	}}}

	// WHEN / THEN: Both are rejected on the offending field
	var recErr *evm.RecordError
	require.ErrorAs(t, dataset.NewLoader(nil).Validate(withInfHours), &recErr)
	assert.Equal(t, "hours_st", recErr.Field)

	require.ErrorAs(t, dataset.NewLoader(nil).Validate(withNaNPercent), &recErr)
	assert.Equal(t, "pct_complete", recErr.Field)
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "2850", dataset.FormatFloat(2850))
	assert.Equal(t, "0.1", dataset.FormatFloat(0.1))
	assert.Equal(t, "0", dataset.FormatFloat(0))
	assert.Equal(t, "", dataset.FormatNull(evm.None()))
	assert.Equal(t, "1.25", dataset.FormatNull(evm.Some(1.25)))
}

func computeSample(t *testing.T) *evm.Result {
	t.Helper()
	ds, err := dataset.NewLoader(nil).LoadDir(writeDataset(t))
	require.NoError(t, err)
	result, err := evm.NewPipeline(evm.DefaultParams()).Run(context.Background(), ds)
	require.NoError(t, err)
	return result
}

func TestWriteDir_ByteIdenticalAcrossRuns(t *testing.T) {
	// GIVEN: The same dataset computed twice
	// WHEN: Writing both results
	// THEN: Every output file is byte-identical

	first, second := t.TempDir(), t.TempDir()
	require.NoError(t, dataset.WriteDir(first, computeSample(t)))
	require.NoError(t, dataset.WriteDir(second, computeSample(t)))

	for _, name := range []string{
		dataset.FileWeekly, dataset.FileCloseouts, dataset.FileScales,
		dataset.FileLastPeriods, dataset.FileProjectWeek,
	} {
		a, err := os.ReadFile(filepath.Join(first, name))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(second, name))
		require.NoError(t, err)
		assert.Equal(t, a, b, name)
	}
}

func TestWriteCSV_UndefinedIsEmptyCell(t *testing.T) {
	result := computeSample(t)
	tables := dataset.Tables(result)
	weekly := tables[0]
	require.Equal(t, "sov_line_week_snapshot", weekly.Name)

	col := -1
	for i, h := range weekly.Header {
		if h == "labor_burn_mult_cost" {
			col = i
		}
	}
	require.GreaterOrEqual(t, col, 0)

	// The first week of L1 has no billing yet, so progress is under the gate.
	require.NotEmpty(t, weekly.Rows)
	assert.Equal(t, "", weekly.Rows[0][col])

	var buf bytes.Buffer
	require.NoError(t, dataset.WriteCSV(&buf, weekly))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, len(weekly.Rows)+1)
	assert.True(t, strings.HasPrefix(lines[0], "project_id,sov_line_id,week_end,"))
}

func TestWriteXLSX_OneSheetPerTable(t *testing.T) {
	result := computeSample(t)

	var buf bytes.Buffer
	require.NoError(t, dataset.WriteXLSX(&buf, result))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{
		"sov_line_week_snapshot", "sov_line_closeout", "project_calibration_scale",
		"last_period_end", "project_week_snapshot",
	}, f.GetSheetList())

	v, err := f.GetCellValue("last_period_end", "B2")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-14", v)

	rows, err := f.GetRows("sov_line_week_snapshot")
	require.NoError(t, err)
	assert.Len(t, rows, len(result.Weekly)+1)
}

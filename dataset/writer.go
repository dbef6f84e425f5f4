package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"github.com/warp/burn-engine/evm"
)

// Output file names, one per fact table.
const (
	FileWeekly      = "sov_line_week_snapshot.csv"
	FileCloseouts   = "sov_line_closeout.csv"
	FileScales      = "project_calibration_scale.csv"
	FileLastPeriods = "last_period_end.csv"
	FileProjectWeek = "project_week_snapshot.csv"
)

// Table is a rendered fact table: a header and string cells.
type Table struct {
	Name    string
	File    string
	Header  []string
	Numeric []bool // per column
	Rows    [][]string
}

// FormatFloat renders v as its shortest exact decimal, without exponent.
func FormatFloat(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// FormatNull renders an undefined value as an empty cell.
func FormatNull(v evm.NullFloat) string {
	if !v.Valid {
		return ""
	}
	return FormatFloat(v.Float64)
}

// =============================================================================
// COLUMN LAYOUTS
// =============================================================================

type column[T any] struct {
	name    string
	value   func(*T) string
	numeric bool
}

func text[T any](name string, get func(*T) string) column[T] {
	return column[T]{name: name, value: get}
}

func num[T any](name string, get func(*T) float64) column[T] {
	return column[T]{name: name, value: func(r *T) string { return FormatFloat(get(r)) }, numeric: true}
}

func null[T any](name string, get func(*T) evm.NullFloat) column[T] {
	return column[T]{name: name, value: func(r *T) string { return FormatNull(get(r)) }, numeric: true}
}

var weeklyColumns = []column[evm.WeeklySnapshot]{
	text("project_id", func(r *evm.WeeklySnapshot) string { return string(r.ProjectID) }),
	text("sov_line_id", func(r *evm.WeeklySnapshot) string { return string(r.LineID) }),
	text("week_end", func(r *evm.WeeklySnapshot) string { return r.WeekEnd.String() }),
	num("labor_hours_w", func(r *evm.WeeklySnapshot) float64 { return r.LaborHoursW }),
	num("labor_cost_w", func(r *evm.WeeklySnapshot) float64 { return r.LaborCostW }),
	num("st_hours_w", func(r *evm.WeeklySnapshot) float64 { return r.STHoursW }),
	num("ot_hours_w", func(r *evm.WeeklySnapshot) float64 { return r.OTHoursW }),
	num("material_cost_w", func(r *evm.WeeklySnapshot) float64 { return r.MaterialCostW }),
	num("material_qty_w", func(r *evm.WeeklySnapshot) float64 { return r.MaterialQtyW }),
	num("pct_complete", func(r *evm.WeeklySnapshot) float64 { return r.PctComplete }),
	num("total_billed", func(r *evm.WeeklySnapshot) float64 { return r.TotalBilled }),
	num("scheduled_value", func(r *evm.WeeklySnapshot) float64 { return r.ScheduledValue }),
	text("description", func(r *evm.WeeklySnapshot) string { return r.Description }),
	num("labor_hours_td", func(r *evm.WeeklySnapshot) float64 { return r.LaborHoursTD }),
	num("labor_cost_td", func(r *evm.WeeklySnapshot) float64 { return r.LaborCostTD }),
	num("material_cost_td", func(r *evm.WeeklySnapshot) float64 { return r.MaterialCostTD }),
	num("st_hours_td", func(r *evm.WeeklySnapshot) float64 { return r.STHoursTD }),
	num("ot_hours_td", func(r *evm.WeeklySnapshot) float64 { return r.OTHoursTD }),
	num("pct_complete_td", func(r *evm.WeeklySnapshot) float64 { return r.PctCompleteTD }),
	num("total_billed_td", func(r *evm.WeeklySnapshot) float64 { return r.TotalBilledTD }),
	num("estimated_labor_hours", func(r *evm.WeeklySnapshot) float64 { return r.EstimatedLaborHours }),
	num("estimated_labor_cost", func(r *evm.WeeklySnapshot) float64 { return r.EstimatedLaborCost }),
	num("estimated_material_cost", func(r *evm.WeeklySnapshot) float64 { return r.EstimatedMaterialCost }),
	num("productivity_factor", func(r *evm.WeeklySnapshot) float64 { return r.ProductivityFactor }),
	num("budget_hours_adj", func(r *evm.WeeklySnapshot) float64 { return r.BudgetHoursAdj }),
	num("earned_labor_cost_td", func(r *evm.WeeklySnapshot) float64 { return r.EarnedLaborCostTD }),
	num("earned_labor_hours_td", func(r *evm.WeeklySnapshot) float64 { return r.EarnedLaborHoursTD }),
	num("earned_material_cost_td", func(r *evm.WeeklySnapshot) float64 { return r.EarnedMaterialCostTD }),
	null("labor_burn_mult_cost", func(r *evm.WeeklySnapshot) evm.NullFloat { return r.LaborBurnMultCost }),
	null("labor_burn_mult_hours", func(r *evm.WeeklySnapshot) evm.NullFloat { return r.LaborBurnMultHours }),
	null("material_burn_mult_cost", func(r *evm.WeeklySnapshot) evm.NullFloat { return r.MaterialBurnMultCost }),
	num("ot_ratio_td", func(r *evm.WeeklySnapshot) float64 { return r.OTRatioTD }),
	null("billing_lag_ratio", func(r *evm.WeeklySnapshot) evm.NullFloat { return r.BillingLagRatio }),
}

// closeoutColumns reuses the weekly layout for the embedded snapshot.
var closeoutColumns = func() []column[evm.CloseoutRecord] {
	cols := make([]column[evm.CloseoutRecord], 0, len(weeklyColumns)+7)
	for _, wc := range weeklyColumns {
		get := wc.value
		cols = append(cols, column[evm.CloseoutRecord]{
			name:    wc.name,
			value:   func(r *evm.CloseoutRecord) string { return get(&r.WeeklySnapshot) },
			numeric: wc.numeric,
		})
	}
	return append(cols,
		null("labor_cost_ratio", func(r *evm.CloseoutRecord) evm.NullFloat { return r.LaborCostRatio }),
		null("mat_cost_ratio", func(r *evm.CloseoutRecord) evm.NullFloat { return r.MatCostRatio }),
		null("labor_scale", func(r *evm.CloseoutRecord) evm.NullFloat { return r.LaborScale }),
		null("mat_scale", func(r *evm.CloseoutRecord) evm.NullFloat { return r.MatScale }),
		null("var_labor_scaled", func(r *evm.CloseoutRecord) evm.NullFloat { return r.VarLaborScaled }),
		null("var_material_scaled", func(r *evm.CloseoutRecord) evm.NullFloat { return r.VarMaterialScaled }),
		null("var_total_scaled", func(r *evm.CloseoutRecord) evm.NullFloat { return r.VarTotalScaled }),
	)
}()

var scaleColumns = []column[evm.CalibrationScale]{
	text("project_id", func(r *evm.CalibrationScale) string { return string(r.ProjectID) }),
	null("labor_scale", func(r *evm.CalibrationScale) evm.NullFloat { return r.LaborScale }),
	null("mat_scale", func(r *evm.CalibrationScale) evm.NullFloat { return r.MatScale }),
}

var lastPeriodColumns = []column[evm.LastPeriodEnd]{
	text("project_id", func(r *evm.LastPeriodEnd) string { return string(r.ProjectID) }),
	text("last_period_end", func(r *evm.LastPeriodEnd) string { return r.LastPeriodEnd.String() }),
}

var projectWeekColumns = []column[evm.ProjectWeekSnapshot]{
	text("project_id", func(r *evm.ProjectWeekSnapshot) string { return string(r.ProjectID) }),
	text("week_end", func(r *evm.ProjectWeekSnapshot) string { return r.WeekEnd.String() }),
	num("labor_cost_td", func(r *evm.ProjectWeekSnapshot) float64 { return r.LaborCostTD }),
	num("material_cost_td", func(r *evm.ProjectWeekSnapshot) float64 { return r.MaterialCostTD }),
	num("earned_labor_cost_td", func(r *evm.ProjectWeekSnapshot) float64 { return r.EarnedLaborCostTD }),
	num("earned_material_cost_td", func(r *evm.ProjectWeekSnapshot) float64 { return r.EarnedMaterialCostTD }),
	num("total_billed_td", func(r *evm.ProjectWeekSnapshot) float64 { return r.TotalBilledTD }),
	num("ot_hours_td", func(r *evm.ProjectWeekSnapshot) float64 { return r.OTHoursTD }),
	num("st_hours_td", func(r *evm.ProjectWeekSnapshot) float64 { return r.STHoursTD }),
	num("total_cost_td", func(r *evm.ProjectWeekSnapshot) float64 { return r.TotalCostTD }),
	num("earned_cost_td", func(r *evm.ProjectWeekSnapshot) float64 { return r.EarnedCostTD }),
	null("burn_mult_cost", func(r *evm.ProjectWeekSnapshot) evm.NullFloat { return r.BurnMultCost }),
	null("labor_burn_mult_cost", func(r *evm.ProjectWeekSnapshot) evm.NullFloat { return r.LaborBurnMultCost }),
	null("material_burn_mult_cost", func(r *evm.ProjectWeekSnapshot) evm.NullFloat { return r.MaterialBurnMultCost }),
	num("ot_ratio_td", func(r *evm.ProjectWeekSnapshot) float64 { return r.OTRatioTD }),
	null("billing_lag_ratio", func(r *evm.ProjectWeekSnapshot) evm.NullFloat { return r.BillingLagRatio }),
}

func render[T any](name, file string, cols []column[T], rows []T) Table {
	t := Table{
		Name:    name,
		File:    file,
		Header:  make([]string, len(cols)),
		Numeric: make([]bool, len(cols)),
		Rows:    make([][]string, len(rows)),
	}
	for i, c := range cols {
		t.Header[i] = c.name
		t.Numeric[i] = c.numeric
	}
	for i := range rows {
		cells := make([]string, len(cols))
		for j, c := range cols {
			cells[j] = c.value(&rows[i])
		}
		t.Rows[i] = cells
	}
	return t
}

// Tables renders the five fact tables of r in a fixed order.
func Tables(r *evm.Result) []Table {
	return []Table{
		render("sov_line_week_snapshot", FileWeekly, weeklyColumns, r.Weekly),
		render("sov_line_closeout", FileCloseouts, closeoutColumns, r.Closeouts),
		render("project_calibration_scale", FileScales, scaleColumns, r.Scales),
		render("last_period_end", FileLastPeriods, lastPeriodColumns, r.LastPeriods),
		render("project_week_snapshot", FileProjectWeek, projectWeekColumns, r.ProjectWeek),
	}
}

// =============================================================================
// CSV OUTPUT
// =============================================================================

// WriteCSV writes one table with a header row.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", t.Name, err)
	}
	return nil
}

// WriteDir writes every table of r into dir, creating it if needed.
func WriteDir(dir string, r *evm.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	for _, t := range Tables(r) {
		if err := writeTableFile(filepath.Join(dir, t.File), t); err != nil {
			return err
		}
	}
	return nil
}

func writeTableFile(path string, t Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteCSV(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

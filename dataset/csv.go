/*
Package dataset reads the raw construction datasets and writes fact tables.

PURPOSE:
  The engine consumes typed records; this package is the boundary that turns
  files into those records and results back into files. It owns column
  typing, record validation, and output encoding.

INPUT FILES (one directory):
  sov_budget.csv           project_id, sov_line_id, estimated_labor_hours,
                           estimated_labor_cost, estimated_material_cost,
                           productivity_factor
  labor_logs.csv           project_id, sov_line_id, date, hours_st, hours_ot,
                           hourly_rate, burden_multiplier
  material_deliveries.csv  project_id, sov_line_id, date, quantity, total_cost
  billing_history.csv      project_id, application_number, period_end
  billing_line_items.csv   project_id, sov_line_id, application_number,
                           pct_complete, total_billed, scheduled_value,
                           description

  Columns are matched by header name; order is free and extra columns are
  ignored. An empty numeric cell reads as 0. Dates are YYYY-MM-DD, with any
  time-of-day part dropped.

SEE ALSO:
  - validate.go: Struct-tag validation of parsed records
  - writer.go: CSV output of the five fact tables
  - xlsx.go: Workbook output
*/
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/warp/burn-engine/evm"
)

// Input file names inside a dataset directory.
const (
	FileSOV       = "sov_budget.csv"
	FileLabor     = "labor_logs.csv"
	FileMaterials = "material_deliveries.csv"
	FilePeriods   = "billing_history.csv"
	FileLineItems = "billing_line_items.csv"
)

// Loader parses and validates input tables.
type Loader struct {
	validator *Validator
	logger    *slog.Logger
}

func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{validator: NewValidator(), logger: logger}
}

// LoadDir reads all five input files from dir and validates the result.
func (l *Loader) LoadDir(dir string) (*evm.Dataset, error) {
	ds := &evm.Dataset{}
	steps := []struct {
		file string
		read func(io.Reader) error
	}{
		{FileSOV, func(r io.Reader) (err error) { ds.SOV, err = l.ReadSOV(r); return }},
		{FileLabor, func(r io.Reader) (err error) { ds.Labor, err = l.ReadLabor(r); return }},
		{FileMaterials, func(r io.Reader) (err error) { ds.Materials, err = l.ReadMaterials(r); return }},
		{FilePeriods, func(r io.Reader) (err error) { ds.Periods, err = l.ReadPeriods(r); return }},
		{FileLineItems, func(r io.Reader) (err error) { ds.LineItems, err = l.ReadLineItems(r); return }},
	}
	for _, step := range steps {
		path := filepath.Join(dir, step.file)
		if err := readFile(path, step.read); err != nil {
			return nil, err
		}
	}

	if err := l.validator.Dataset(ds); err != nil {
		return nil, err
	}
	l.logger.Info("dataset loaded",
		slog.String("dir", dir),
		slog.Int("sov_lines", len(ds.SOV)),
		slog.Int("labor_logs", len(ds.Labor)),
		slog.Int("material_deliveries", len(ds.Materials)),
		slog.Int("billing_periods", len(ds.Periods)),
		slog.Int("billing_line_items", len(ds.LineItems)))
	return ds, nil
}

// Validate checks records that did not come through a CSV reader, such as
// a JSON request body.
func (l *Loader) Validate(ds *evm.Dataset) error {
	return l.validator.Dataset(ds)
}

func readFile(path string, read func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	if err := read(f); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

// =============================================================================
// TABLE READERS
// =============================================================================

func (l *Loader) ReadSOV(r io.Reader) ([]evm.SOVLine, error) {
	return readTable(r, evm.TableSOV,
		[]string{"project_id", "sov_line_id", "estimated_labor_hours", "estimated_labor_cost",
			"estimated_material_cost", "productivity_factor"},
		func(row *row) evm.SOVLine {
			return evm.SOVLine{
				ProjectID:             evm.ProjectID(row.str("project_id")),
				LineID:                evm.LineID(row.str("sov_line_id")),
				EstimatedLaborHours:   row.float("estimated_labor_hours"),
				EstimatedLaborCost:    row.float("estimated_labor_cost"),
				EstimatedMaterialCost: row.float("estimated_material_cost"),
				ProductivityFactor:    row.float("productivity_factor"),
			}
		})
}

func (l *Loader) ReadLabor(r io.Reader) ([]evm.LaborLogEntry, error) {
	return readTable(r, evm.TableLabor,
		[]string{"project_id", "sov_line_id", "date", "hours_st", "hours_ot", "hourly_rate", "burden_multiplier"},
		func(row *row) evm.LaborLogEntry {
			return evm.LaborLogEntry{
				ProjectID:        evm.ProjectID(row.str("project_id")),
				LineID:           evm.LineID(row.str("sov_line_id")),
				Date:             row.date("date"),
				HoursST:          row.float("hours_st"),
				HoursOT:          row.float("hours_ot"),
				HourlyRate:       row.float("hourly_rate"),
				BurdenMultiplier: row.float("burden_multiplier"),
			}
		})
}

func (l *Loader) ReadMaterials(r io.Reader) ([]evm.MaterialDelivery, error) {
	return readTable(r, evm.TableMaterials,
		[]string{"project_id", "sov_line_id", "date", "quantity", "total_cost"},
		func(row *row) evm.MaterialDelivery {
			return evm.MaterialDelivery{
				ProjectID: evm.ProjectID(row.str("project_id")),
				LineID:    evm.LineID(row.str("sov_line_id")),
				Date:      row.date("date"),
				Quantity:  row.float("quantity"),
				TotalCost: row.float("total_cost"),
			}
		})
}

func (l *Loader) ReadPeriods(r io.Reader) ([]evm.BillingPeriod, error) {
	return readTable(r, evm.TablePeriods,
		[]string{"project_id", "application_number", "period_end"},
		func(row *row) evm.BillingPeriod {
			return evm.BillingPeriod{
				ProjectID:         evm.ProjectID(row.str("project_id")),
				ApplicationNumber: row.int("application_number"),
				PeriodEnd:         row.date("period_end"),
			}
		})
}

func (l *Loader) ReadLineItems(r io.Reader) ([]evm.BillingLineItem, error) {
	return readTable(r, evm.TableLineItems,
		[]string{"project_id", "sov_line_id", "application_number", "pct_complete",
			"total_billed", "scheduled_value"},
		func(row *row) evm.BillingLineItem {
			return evm.BillingLineItem{
				ProjectID:         evm.ProjectID(row.str("project_id")),
				LineID:            evm.LineID(row.str("sov_line_id")),
				ApplicationNumber: row.int("application_number"),
				PctComplete:       row.float("pct_complete"),
				TotalBilled:       row.float("total_billed"),
				ScheduledValue:    row.float("scheduled_value"),
				Description:       row.str("description"),
			}
		})
}

// readTable maps the header, then parses every data row with parse. The
// first cell error of a row aborts the read.
func readTable[T any](r io.Reader, table string, required []string, parse func(*row) T) ([]T, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &evm.RecordError{Table: table, Row: 0, Err: errors.New("missing header")}
	}
	if err != nil {
		return nil, fmt.Errorf("%s header: %w", table, err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		index[strings.ToLower(name)] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return nil, &evm.RecordError{Table: table, Row: 0, Field: col, Err: errors.New("missing column")}
		}
	}

	var out []T
	for n := 1; ; n++ {
		cells, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, &evm.RecordError{Table: table, Row: n, Err: err}
		}
		rw := &row{table: table, n: n, index: index, cells: cells}
		rec := parse(rw)
		if rw.err != nil {
			return nil, rw.err
		}
		out = append(out, rec)
	}
}

// row gives typed access to one CSV record and keeps the first cell error.
type row struct {
	table string
	n     int
	index map[string]int
	cells []string
	err   error
}

func (r *row) str(col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[i])
}

func (r *row) fail(col string, err error) {
	if r.err == nil {
		r.err = &evm.RecordError{Table: r.table, Row: r.n, Field: col, Err: err}
	}
}

func (r *row) float(col string) float64 {
	s := r.str(col)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		r.fail(col, err)
		return 0
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		r.fail(col, fmt.Errorf("non-finite number %q", s))
		return 0
	}
	return v
}

func (r *row) int(col string) int {
	s := r.str(col)
	v, err := strconv.Atoi(s)
	if err != nil {
		// Spreadsheets export integers as "3.0".
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int(f)) {
			r.fail(col, err)
			return 0
		}
		v = int(f)
	}
	return v
}

func (r *row) date(col string) evm.TimePoint {
	tp, err := evm.ParseTimePoint(r.str(col))
	if err != nil {
		r.fail(col, err)
	}
	return tp
}

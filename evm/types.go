/*
Package evm provides the earned-value and cost-burn engine.

PURPOSE:
  Turns raw, irregularly-timed construction transactions (labor logs, material
  deliveries, payment applications) into weekly fact tables used for progress
  monitoring and overrun detection. The engine is a pure function of its
  inputs: the same Dataset always yields the same Result.

KEY CONCEPTS IN THIS FILE (types.go):
  - ProjectID / LineID: Type-safe identifiers for projects and SOV lines
  - Input records: SOVLine, LaborLogEntry, MaterialDelivery, BillingPeriod,
    BillingLineItem, bundled in a Dataset
  - NullFloat: An explicit optional number for ratios that may be undefined

DESIGN PRINCIPLES:
  1. Purity: No persisted mutable state, everything is recomputed per run
  2. Explicit absence: Undefined ratios are NullFloat{Valid: false}, never 0
  3. Type Safety: Every derived table is a named struct, joined by key

USAGE:
  p := evm.NewPipeline(evm.DefaultParams())
  result, err := p.Run(ctx, dataset)

SEE ALSO:
  - snapshot.go: Derived table types
  - pipeline.go: Orchestration of the component chain
  - store.go: Persistence interface for datasets and runs
*/
package evm

import (
	"encoding/json"
	"strconv"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ProjectID string
type LineID string

// LineKey identifies one SOV line within a project.
type LineKey struct {
	ProjectID ProjectID
	LineID    LineID
}

// WeekKey identifies one weekly bucket of an SOV line.
type WeekKey struct {
	ProjectID ProjectID
	LineID    LineID
	WeekEnd   TimePoint
}

func (k WeekKey) Line() LineKey { return LineKey{ProjectID: k.ProjectID, LineID: k.LineID} }

// =============================================================================
// INPUT RECORDS
// =============================================================================

// SOVLine is a budgeted scope item of a contract. Immutable reference data.
type SOVLine struct {
	ProjectID             ProjectID `json:"project_id" validate:"required"`
	LineID                LineID    `json:"sov_line_id" validate:"required"`
	EstimatedLaborHours   float64   `json:"estimated_labor_hours" validate:"finite,gte=0"`
	EstimatedLaborCost    float64   `json:"estimated_labor_cost" validate:"finite,gte=0"`
	EstimatedMaterialCost float64   `json:"estimated_material_cost" validate:"finite,gte=0"`
	ProductivityFactor    float64   `json:"productivity_factor" validate:"finite,gte=0"` // 0 means no adjustment
}

// LaborLogEntry is one logged labor event.
type LaborLogEntry struct {
	ProjectID        ProjectID `json:"project_id" validate:"required"`
	LineID           LineID    `json:"sov_line_id" validate:"required"`
	Date             TimePoint `json:"date" validate:"required"`
	HoursST          float64   `json:"hours_st" validate:"finite,gte=0"`
	HoursOT          float64   `json:"hours_ot" validate:"finite,gte=0"`
	HourlyRate       float64   `json:"hourly_rate" validate:"finite,gte=0"`
	BurdenMultiplier float64   `json:"burden_multiplier" validate:"finite,gte=0"`
}

// MaterialDelivery is one delivery event.
type MaterialDelivery struct {
	ProjectID ProjectID `json:"project_id" validate:"required"`
	LineID    LineID    `json:"sov_line_id" validate:"required"`
	Date      TimePoint `json:"date" validate:"required"`
	Quantity  float64   `json:"quantity" validate:"finite,gte=0"`
	TotalCost float64   `json:"total_cost" validate:"finite,gte=0"`
}

// BillingPeriod places a payment application on the calendar.
type BillingPeriod struct {
	ProjectID         ProjectID `json:"project_id" validate:"required"`
	ApplicationNumber int       `json:"application_number"`
	PeriodEnd         TimePoint `json:"period_end" validate:"required"`
}

// BillingLineItem is the per-line content of a payment application.
// An empty Description is treated as a missing description.
type BillingLineItem struct {
	ProjectID         ProjectID `json:"project_id" validate:"required"`
	LineID            LineID    `json:"sov_line_id" validate:"required"`
	ApplicationNumber int       `json:"application_number"`
	PctComplete       float64   `json:"pct_complete" validate:"finite"`
	TotalBilled       float64   `json:"total_billed" validate:"finite,gte=0"`
	ScheduledValue    float64   `json:"scheduled_value" validate:"finite,gte=0"`
	Description       string    `json:"description"`
}

// Dataset bundles the five raw input streams.
type Dataset struct {
	SOV       []SOVLine          `json:"sov_lines"`
	Labor     []LaborLogEntry    `json:"labor_logs"`
	Materials []MaterialDelivery `json:"material_deliveries"`
	Periods   []BillingPeriod    `json:"billing_periods"`
	LineItems []BillingLineItem  `json:"billing_line_items"`
}

// Projects returns every project referenced by any stream, sorted.
func (d *Dataset) Projects() []ProjectID {
	seen := make(map[ProjectID]bool)
	add := func(p ProjectID) { seen[p] = true }
	for _, r := range d.SOV {
		add(r.ProjectID)
	}
	for _, r := range d.Labor {
		add(r.ProjectID)
	}
	for _, r := range d.Materials {
		add(r.ProjectID)
	}
	for _, r := range d.Periods {
		add(r.ProjectID)
	}
	for _, r := range d.LineItems {
		add(r.ProjectID)
	}
	return sortedProjects(seen)
}

// Partition splits the dataset by project. Record order within each stream is
// preserved.
func (d *Dataset) Partition() map[ProjectID]*Dataset {
	parts := make(map[ProjectID]*Dataset)
	get := func(p ProjectID) *Dataset {
		part, ok := parts[p]
		if !ok {
			part = &Dataset{}
			parts[p] = part
		}
		return part
	}
	for _, r := range d.SOV {
		part := get(r.ProjectID)
		part.SOV = append(part.SOV, r)
	}
	for _, r := range d.Labor {
		part := get(r.ProjectID)
		part.Labor = append(part.Labor, r)
	}
	for _, r := range d.Materials {
		part := get(r.ProjectID)
		part.Materials = append(part.Materials, r)
	}
	for _, r := range d.Periods {
		part := get(r.ProjectID)
		part.Periods = append(part.Periods, r)
	}
	for _, r := range d.LineItems {
		part := get(r.ProjectID)
		part.LineItems = append(part.LineItems, r)
	}
	return parts
}

// Counts reports the row count of each stream, keyed by table name.
func (d *Dataset) Counts() map[string]int {
	return map[string]int{
		TableSOV:       len(d.SOV),
		TableLabor:     len(d.Labor),
		TableMaterials: len(d.Materials),
		TablePeriods:   len(d.Periods),
		TableLineItems: len(d.LineItems),
	}
}

// Table names shared by loaders, stores and error reporting.
const (
	TableSOV       = "sov_budget"
	TableLabor     = "labor_logs"
	TableMaterials = "material_deliveries"
	TablePeriods   = "billing_history"
	TableLineItems = "billing_line_items"
)

// =============================================================================
// NULLFLOAT - Optional number
// =============================================================================

// NullFloat is a float64 that may be undefined. The zero value is undefined.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

func Some(v float64) NullFloat { return NullFloat{Float64: v, Valid: true} }
func None() NullFloat          { return NullFloat{} }

// Get returns the value and whether it is defined.
func (n NullFloat) Get() (float64, bool) { return n.Float64, n.Valid }

// Add is undefined when either operand is undefined.
func (n NullFloat) Add(o NullFloat) NullFloat {
	if !n.Valid || !o.Valid {
		return None()
	}
	return Some(n.Float64 + o.Float64)
}

func (n NullFloat) String() string {
	if !n.Valid {
		return ""
	}
	return strconv.FormatFloat(n.Float64, 'g', -1, 64)
}

func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

func (n *NullFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = None()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Some(v)
	return nil
}

package evm

// =============================================================================
// WEEKLY SNAPSHOT - One row per (project, line, week)
// =============================================================================

// WeeklySnapshot is a line's state at the end of one week: that week's
// activity, running totals, budget figures and burn signatures.
type WeeklySnapshot struct {
	ProjectID ProjectID `json:"project_id"`
	LineID    LineID    `json:"sov_line_id"`
	WeekEnd   TimePoint `json:"week_end"`

	// Weekly activity
	LaborHoursW    float64 `json:"labor_hours_w"`
	LaborCostW     float64 `json:"labor_cost_w"`
	STHoursW       float64 `json:"st_hours_w"`
	OTHoursW       float64 `json:"ot_hours_w"`
	MaterialCostW  float64 `json:"material_cost_w"`
	MaterialQtyW   float64 `json:"material_qty_w"`
	PctComplete    float64 `json:"pct_complete"` // clipped to [0,100]
	TotalBilled    float64 `json:"total_billed"`
	ScheduledValue float64 `json:"scheduled_value"`
	Description    string  `json:"description"`

	// To-date
	LaborHoursTD   float64 `json:"labor_hours_td"`
	LaborCostTD    float64 `json:"labor_cost_td"`
	MaterialCostTD float64 `json:"material_cost_td"`
	STHoursTD      float64 `json:"st_hours_td"`
	OTHoursTD      float64 `json:"ot_hours_td"`
	PctCompleteTD  float64 `json:"pct_complete_td"`
	TotalBilledTD  float64 `json:"total_billed_td"`

	Budget

	// Signatures
	EarnedLaborCostTD    float64   `json:"earned_labor_cost_td"`
	EarnedLaborHoursTD   float64   `json:"earned_labor_hours_td"`
	EarnedMaterialCostTD float64   `json:"earned_material_cost_td"`
	LaborBurnMultCost    NullFloat `json:"labor_burn_mult_cost"`
	LaborBurnMultHours   NullFloat `json:"labor_burn_mult_hours"`
	MaterialBurnMultCost NullFloat `json:"material_burn_mult_cost"`
	OTRatioTD            float64   `json:"ot_ratio_td"`
	BillingLagRatio      NullFloat `json:"billing_lag_ratio"`
}

func (s *WeeklySnapshot) Line() LineKey {
	return LineKey{ProjectID: s.ProjectID, LineID: s.LineID}
}

// Budget holds the SOV figures joined onto every weekly row of a line.
type Budget struct {
	EstimatedLaborHours   float64 `json:"estimated_labor_hours"`
	EstimatedLaborCost    float64 `json:"estimated_labor_cost"`
	EstimatedMaterialCost float64 `json:"estimated_material_cost"`
	ProductivityFactor    float64 `json:"productivity_factor"`
	BudgetHoursAdj        float64 `json:"budget_hours_adj"`
}

// =============================================================================
// CLOSEOUT - One row per (project, line)
// =============================================================================

// CloseoutRecord is the last weekly snapshot of a line plus its calibration
// inputs and scaled variance.
type CloseoutRecord struct {
	WeeklySnapshot

	LaborCostRatio    NullFloat `json:"labor_cost_ratio"`
	MatCostRatio      NullFloat `json:"mat_cost_ratio"`
	LaborScale        NullFloat `json:"labor_scale"`
	MatScale          NullFloat `json:"mat_scale"`
	VarLaborScaled    NullFloat `json:"var_labor_scaled"`
	VarMaterialScaled NullFloat `json:"var_material_scaled"`
	VarTotalScaled    NullFloat `json:"var_total_scaled"`
}

// CalibrationScale is a project's median actual/budget cost ratio.
type CalibrationScale struct {
	ProjectID  ProjectID `json:"project_id"`
	LaborScale NullFloat `json:"labor_scale"`
	MatScale   NullFloat `json:"mat_scale"`
}

// LastPeriodEnd is the cutoff date applied to a project's cost streams.
type LastPeriodEnd struct {
	ProjectID     ProjectID `json:"project_id"`
	LastPeriodEnd TimePoint `json:"last_period_end"`
}

// =============================================================================
// PROJECT WEEK - One row per (project, week)
// =============================================================================

// ProjectWeekSnapshot sums a project's line rows for one week. Its ratios are
// recomputed from the sums, never averaged from line ratios.
type ProjectWeekSnapshot struct {
	ProjectID ProjectID `json:"project_id"`
	WeekEnd   TimePoint `json:"week_end"`

	LaborCostTD          float64 `json:"labor_cost_td"`
	MaterialCostTD       float64 `json:"material_cost_td"`
	EarnedLaborCostTD    float64 `json:"earned_labor_cost_td"`
	EarnedMaterialCostTD float64 `json:"earned_material_cost_td"`
	TotalBilledTD        float64 `json:"total_billed_td"`
	OTHoursTD            float64 `json:"ot_hours_td"`
	STHoursTD            float64 `json:"st_hours_td"`
	TotalCostTD          float64 `json:"total_cost_td"`
	EarnedCostTD         float64 `json:"earned_cost_td"`

	BurnMultCost         NullFloat `json:"burn_mult_cost"`
	LaborBurnMultCost    NullFloat `json:"labor_burn_mult_cost"`
	MaterialBurnMultCost NullFloat `json:"material_burn_mult_cost"`
	OTRatioTD            float64   `json:"ot_ratio_td"`
	BillingLagRatio      NullFloat `json:"billing_lag_ratio"`
}

// =============================================================================
// RESULT - The five output tables of one run
// =============================================================================

// Result holds every derived table. Rows are sorted by their keys.
type Result struct {
	Weekly      []WeeklySnapshot      `json:"weekly"`
	Closeouts   []CloseoutRecord      `json:"closeouts"`
	Scales      []CalibrationScale    `json:"scales"`
	LastPeriods []LastPeriodEnd       `json:"last_period_ends"`
	ProjectWeek []ProjectWeekSnapshot `json:"project_weeks"`
}

// ForProject returns the subset of r belonging to one project.
func (r *Result) ForProject(id ProjectID) *Result {
	out := &Result{}
	for _, w := range r.Weekly {
		if w.ProjectID == id {
			out.Weekly = append(out.Weekly, w)
		}
	}
	for _, c := range r.Closeouts {
		if c.ProjectID == id {
			out.Closeouts = append(out.Closeouts, c)
		}
	}
	for _, s := range r.Scales {
		if s.ProjectID == id {
			out.Scales = append(out.Scales, s)
		}
	}
	for _, l := range r.LastPeriods {
		if l.ProjectID == id {
			out.LastPeriods = append(out.LastPeriods, l)
		}
	}
	for _, p := range r.ProjectWeek {
		if p.ProjectID == id {
			out.ProjectWeek = append(out.ProjectWeek, p)
		}
	}
	return out
}

// Projects returns every project with rows in any table, sorted.
func (r *Result) Projects() []ProjectID {
	seen := make(map[ProjectID]bool)
	for _, w := range r.Weekly {
		seen[w.ProjectID] = true
	}
	for _, s := range r.Scales {
		seen[s.ProjectID] = true
	}
	for _, l := range r.LastPeriods {
		seen[l.ProjectID] = true
	}
	for _, p := range r.ProjectWeek {
		seen[p.ProjectID] = true
	}
	return sortedProjects(seen)
}

// IsEmpty reports whether no table has rows.
func (r *Result) IsEmpty() bool {
	return len(r.Weekly) == 0 && len(r.Closeouts) == 0 && len(r.Scales) == 0 &&
		len(r.LastPeriods) == 0 && len(r.ProjectWeek) == 0
}

func (r *Result) append(o *Result) {
	r.Weekly = append(r.Weekly, o.Weekly...)
	r.Closeouts = append(r.Closeouts, o.Closeouts...)
	r.Scales = append(r.Scales, o.Scales...)
	r.LastPeriods = append(r.LastPeriods, o.LastPeriods...)
	r.ProjectWeek = append(r.ProjectWeek, o.ProjectWeek...)
}

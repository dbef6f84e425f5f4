/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication that are not already
  domain types. Fact table rows (evm.WeeklySnapshot, evm.CloseoutRecord,
  evm.ProjectWeekSnapshot) and evm.Run are served as-is, since their JSON
  field names are the output column names.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

UNDEFINED VALUES:
  Undefined ratios are JSON null, never 0.

SEE ALSO:
  - handlers.go: Uses these types
  - evm/snapshot.go: Fact table row types
*/
package api

import (
	"github.com/warp/burn-engine/evm"
)

// =============================================================================
// DATASET
// =============================================================================

// DatasetSummaryDTO describes the stored input dataset.
type DatasetSummaryDTO struct {
	Revision int64          `json:"revision"`
	Counts   map[string]int `json:"counts"`
	Projects int            `json:"projects"`
}

// =============================================================================
// RUNS
// =============================================================================

// RunListResponse wraps the run history.
type RunListResponse struct {
	Runs []evm.Run `json:"runs"`
}

// =============================================================================
// PROJECTS
// =============================================================================

// ProjectDTO summarizes one project from a run.
type ProjectDTO struct {
	ProjectID     evm.ProjectID `json:"project_id"`
	LastPeriodEnd evm.TimePoint `json:"last_period_end"`
	LaborScale    evm.NullFloat `json:"labor_scale"`
	MatScale      evm.NullFloat `json:"mat_scale"`
	Lines         int           `json:"lines"`
	Weeks         int           `json:"weeks"`

	// Latest project-week signatures, null when the project has no weeks.
	LatestWeekEnd   evm.TimePoint `json:"latest_week_end"`
	BurnMultCost    evm.NullFloat `json:"burn_mult_cost"`
	BillingLagRatio evm.NullFloat `json:"billing_lag_ratio"`
}

// ProjectListResponse lists projects of the run identified by RunID.
type ProjectListResponse struct {
	RunID    string       `json:"run_id"`
	Projects []ProjectDTO `json:"projects"`
}

// ProjectWeeksResponse is the weekly rollup of one project.
type ProjectWeeksResponse struct {
	RunID     string                    `json:"run_id"`
	ProjectID evm.ProjectID             `json:"project_id"`
	Weeks     []evm.ProjectWeekSnapshot `json:"weeks"`
}

// ProjectLinesResponse holds the closeout of every line of a project.
type ProjectLinesResponse struct {
	RunID     string                `json:"run_id"`
	ProjectID evm.ProjectID         `json:"project_id"`
	Scale     *evm.CalibrationScale `json:"scale"`
	Lines     []evm.CloseoutRecord  `json:"lines"`
}

// LineWeeksResponse is the weekly history of one SOV line.
type LineWeeksResponse struct {
	RunID     string               `json:"run_id"`
	ProjectID evm.ProjectID        `json:"project_id"`
	LineID    evm.LineID           `json:"sov_line_id"`
	Weeks     []evm.WeeklySnapshot `json:"weeks"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Projects    int    `json:"projects"`
}

// LoadScenarioRequest selects a scenario and whether to compute it at once.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
	Run        bool   `json:"run"`
}

// LoadScenarioResponse reports the stored revision and, when requested, the run.
type LoadScenarioResponse struct {
	Scenario string   `json:"scenario"`
	Revision int64    `json:"revision"`
	Run      *evm.Run `json:"run,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

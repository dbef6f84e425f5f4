/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built construction datasets that exercise specific behaviors
  of the pipeline. Every scenario is generated deterministically, so loading
  the same scenario twice yields identical fact tables.

AVAILABLE SCENARIOS:
  single-project:   One project, three lines, on-budget progress
  multi-project:    Three projects billed on different cadences
  labor-overrun:    A line burning labor far ahead of its billed progress
  late-billing:     Work logged after the last pay application (cut off)

HOW SCENARIOS WORK:
  1. Build the dataset in memory
  2. Validate it like any uploaded dataset
  3. Store it (replaces the current dataset, bumps the revision)
  4. Optionally run the pipeline at once

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "labor-overrun", "run": true}

ADDING NEW SCENARIOS:
  1. Add to 'scenarios' slice with ID, name, description
  2. Create builder function: buildXxxScenario() *evm.Dataset
  3. Add entry to scenarioBuilders

SEE ALSO:
  - handlers.go: Dataset and run handlers
*/
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/warp/burn-engine/evm"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "single-project",
		Name:        "Single Project",
		Description: "One project with three SOV lines progressing on budget",
		Projects:    1,
	},
	{
		ID:          "multi-project",
		Name:        "Multi-Project Portfolio",
		Description: "Three projects with monthly and bi-weekly pay applications",
		Projects:    3,
	},
	{
		ID:          "labor-overrun",
		Name:        "Labor Overrun",
		Description: "Electrical rough-in burning labor well ahead of billed progress",
		Projects:    1,
	},
	{
		ID:          "late-billing",
		Name:        "Late Billing",
		Description: "Labor and deliveries logged after the last pay application",
		Projects:    1,
	},
}

var scenarioBuilders = map[string]func() *evm.Dataset{
	"single-project": buildSingleProjectScenario,
	"multi-project":  buildMultiProjectScenario,
	"labor-overrun":  buildLaborOverrunScenario,
	"late-billing":   buildLateBillingScenario,
}

// ScenarioDataset builds the dataset of a scenario.
func ScenarioDataset(id string) (*evm.Dataset, bool) {
	build, ok := scenarioBuilders[id]
	if !ok {
		return nil, false
	}
	return build(), true
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario stores a predefined dataset and optionally runs it.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ds, ok := ScenarioDataset(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}
	if err := h.Loader.Validate(ds); err != nil {
		writeError(w, http.StatusInternalServerError, "Scenario dataset is invalid", err)
		return
	}

	ctx := r.Context()
	rev, err := h.Store.SaveDataset(ctx, ds)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	h.Metrics.SetDatasetRevision(rev)

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()
	h.Logger.Info("scenario loaded", slog.String("scenario", req.ScenarioID), slog.Int64("revision", rev))

	resp := LoadScenarioResponse{Scenario: req.ScenarioID, Revision: rev}
	if req.Run {
		run, err := h.Runner.Execute(ctx)
		h.Metrics.ObserveRun(run, "scenario")
		if err != nil {
			writeDomainError(w, "Scenario run failed", err)
			return
		}
		resp.Run = run
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// SCENARIO BUILDER
// =============================================================================

// scenarioBuilder appends records to a dataset with a few crew defaults.
type scenarioBuilder struct {
	ds evm.Dataset
}

func (b *scenarioBuilder) line(project, line string, hours, laborCost, matCost, productivity float64) {
	b.ds.SOV = append(b.ds.SOV, evm.SOVLine{
		ProjectID:             evm.ProjectID(project),
		LineID:                evm.LineID(line),
		EstimatedLaborHours:   hours,
		EstimatedLaborCost:    laborCost,
		EstimatedMaterialCost: matCost,
		ProductivityFactor:    productivity,
	})
}

// crew logs one entry per weekday for weeks weeks, starting on the Monday
// of start's week.
func (b *scenarioBuilder) crew(project, line string, start evm.TimePoint, weeks int, st, ot, rate, burden float64) {
	monday := start.AddDays(-int((start.Weekday() + 6) % 7))
	for w := 0; w < weeks; w++ {
		for d := 0; d < 5; d++ {
			b.ds.Labor = append(b.ds.Labor, evm.LaborLogEntry{
				ProjectID:        evm.ProjectID(project),
				LineID:           evm.LineID(line),
				Date:             monday.AddDays(7*w + d),
				HoursST:          st,
				HoursOT:          ot,
				HourlyRate:       rate,
				BurdenMultiplier: burden,
			})
		}
	}
}

func (b *scenarioBuilder) delivery(project, line string, date evm.TimePoint, qty, cost float64) {
	b.ds.Materials = append(b.ds.Materials, evm.MaterialDelivery{
		ProjectID: evm.ProjectID(project),
		LineID:    evm.LineID(line),
		Date:      date,
		Quantity:  qty,
		TotalCost: cost,
	})
}

func (b *scenarioBuilder) application(project string, app int, end evm.TimePoint) {
	b.ds.Periods = append(b.ds.Periods, evm.BillingPeriod{
		ProjectID:         evm.ProjectID(project),
		ApplicationNumber: app,
		PeriodEnd:         end,
	})
}

func (b *scenarioBuilder) billed(project, line string, app int, pct, scheduled float64, desc string) {
	b.ds.LineItems = append(b.ds.LineItems, evm.BillingLineItem{
		ProjectID:         evm.ProjectID(project),
		LineID:            evm.LineID(line),
		ApplicationNumber: app,
		PctComplete:       pct,
		TotalBilled:       scheduled * pct / 100,
		ScheduledValue:    scheduled,
		Description:       desc,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func buildSingleProjectScenario() *evm.Dataset {
	const p = "PRJ-100"
	start := evm.NewTimePoint(2025, time.March, 3)
	b := &scenarioBuilder{}

	b.line(p, "03-100", 800, 56000, 42000, 1)
	b.line(p, "05-120", 600, 45000, 90000, 1)
	b.line(p, "09-250", 400, 26000, 18000, 0.9)

	b.crew(p, "03-100", start, 8, 16, 2, 55, 1.35)
	b.crew(p, "05-120", start.AddDays(14), 6, 16, 0, 60, 1.35)
	b.crew(p, "09-250", start.AddDays(35), 4, 8, 0, 48, 1.3)

	b.delivery(p, "03-100", start.AddDays(2), 120, 21000)
	b.delivery(p, "03-100", start.AddDays(23), 110, 19500)
	b.delivery(p, "05-120", start.AddDays(16), 40, 45000)
	b.delivery(p, "05-120", start.AddDays(44), 38, 43000)
	b.delivery(p, "09-250", start.AddDays(36), 300, 17000)

	b.application(p, 1, evm.NewTimePoint(2025, time.March, 31))
	b.application(p, 2, evm.NewTimePoint(2025, time.April, 30))
	b.billed(p, "03-100", 1, 45, 120000, "Cast-in-place concrete")
	b.billed(p, "05-120", 1, 15, 150000, "Structural steel framing")
	b.billed(p, "03-100", 2, 95, 120000, "Cast-in-place concrete")
	b.billed(p, "05-120", 2, 70, 150000, "Structural steel framing")
	b.billed(p, "09-250", 2, 40, 50000, "Gypsum board")
	return &b.ds
}

func buildMultiProjectScenario() *evm.Dataset {
	b := &scenarioBuilder{}

	// Monthly pay applications
	const a = "PRJ-200"
	startA := evm.NewTimePoint(2025, time.January, 6)
	b.line(a, "02-300", 500, 35000, 15000, 1)
	b.line(a, "03-300", 900, 63000, 80000, 1.1)
	b.crew(a, "02-300", startA, 5, 16, 0, 50, 1.3)
	b.crew(a, "03-300", startA.AddDays(21), 9, 24, 4, 55, 1.3)
	b.delivery(a, "02-300", startA.AddDays(1), 10, 14000)
	b.delivery(a, "03-300", startA.AddDays(22), 200, 38000)
	b.delivery(a, "03-300", startA.AddDays(50), 210, 40000)
	b.application(a, 1, evm.NewTimePoint(2025, time.January, 31))
	b.application(a, 2, evm.NewTimePoint(2025, time.February, 28))
	b.application(a, 3, evm.NewTimePoint(2025, time.March, 31))
	b.billed(a, "02-300", 1, 70, 60000, "Earthwork")
	b.billed(a, "02-300", 2, 100, 60000, "Earthwork")
	b.billed(a, "03-300", 2, 30, 180000, "Foundations")
	b.billed(a, "03-300", 3, 75, 180000, "Foundations")

	// Bi-weekly pay applications
	const c = "PRJ-300"
	startC := evm.NewTimePoint(2025, time.February, 3)
	b.line(c, "26-050", 300, 24000, 30000, 1)
	b.line(c, "26-100", 700, 59500, 110000, 1)
	b.crew(c, "26-050", startC, 4, 16, 0, 62, 1.4)
	b.crew(c, "26-100", startC.AddDays(7), 7, 24, 0, 66, 1.4)
	b.delivery(c, "26-050", startC.AddDays(3), 60, 29000)
	b.delivery(c, "26-100", startC.AddDays(10), 500, 55000)
	b.delivery(c, "26-100", startC.AddDays(31), 480, 52000)
	for i, end := range []evm.TimePoint{
		evm.NewTimePoint(2025, time.February, 14),
		evm.NewTimePoint(2025, time.February, 28),
		evm.NewTimePoint(2025, time.March, 14),
		evm.NewTimePoint(2025, time.March, 28),
	} {
		app := i + 1
		b.application(c, app, end)
		b.billed(c, "26-050", app, min(100, float64(app)*30), 45000, "Electrical service")
		b.billed(c, "26-100", app, float64(app)*20, 190000, "Branch wiring")
	}

	// Design-build, SOV only for one line
	const d = "PRJ-400"
	startD := evm.NewTimePoint(2025, time.March, 10)
	b.line(d, "07-200", 250, 16000, 22000, 1)
	b.crew(d, "07-200", startD, 3, 16, 0, 52, 1.3)
	b.crew(d, "07-400", startD.AddDays(7), 2, 8, 0, 52, 1.3)
	b.delivery(d, "07-200", startD.AddDays(1), 90, 21000)
	b.application(d, 1, evm.NewTimePoint(2025, time.March, 31))
	b.billed(d, "07-200", 1, 85, 48000, "Roof membrane")
	b.billed(d, "07-400", 1, 50, 12000, "")
	return &b.ds
}

func buildLaborOverrunScenario() *evm.Dataset {
	const p = "PRJ-500"
	start := evm.NewTimePoint(2025, time.April, 7)
	b := &scenarioBuilder{}

	b.line(p, "26-200", 400, 30000, 25000, 1)
	b.line(p, "26-300", 300, 22000, 12000, 1)

	// Rough-in: heavy overtime, slow billing
	b.crew(p, "26-200", start, 8, 24, 8, 64, 1.45)
	b.crew(p, "26-300", start.AddDays(14), 4, 16, 0, 58, 1.4)
	b.delivery(p, "26-200", start.AddDays(2), 1200, 14000)
	b.delivery(p, "26-200", start.AddDays(30), 900, 13000)
	b.delivery(p, "26-300", start.AddDays(15), 80, 11500)

	b.application(p, 1, evm.NewTimePoint(2025, time.April, 30))
	b.application(p, 2, evm.NewTimePoint(2025, time.May, 31))
	b.billed(p, "26-200", 1, 10, 90000, "Electrical rough-in")
	b.billed(p, "26-200", 2, 25, 90000, "Electrical rough-in")
	b.billed(p, "26-300", 1, 20, 40000, "Lighting fixtures")
	b.billed(p, "26-300", 2, 60, 40000, "Lighting fixtures")
	return &b.ds
}

func buildLateBillingScenario() *evm.Dataset {
	const p = "PRJ-600"
	start := evm.NewTimePoint(2025, time.May, 5)
	b := &scenarioBuilder{}

	b.line(p, "22-100", 600, 48000, 65000, 1)
	b.line(p, "23-100", 500, 41000, 70000, 1)

	// Crews keep working well past the only pay application
	b.crew(p, "22-100", start, 10, 16, 2, 68, 1.4)
	b.crew(p, "23-100", start.AddDays(7), 9, 16, 0, 70, 1.4)
	b.delivery(p, "22-100", start.AddDays(2), 400, 30000)
	b.delivery(p, "22-100", start.AddDays(45), 380, 29000)
	b.delivery(p, "23-100", start.AddDays(9), 12, 36000)
	b.delivery(p, "23-100", start.AddDays(52), 11, 33000)

	b.application(p, 1, evm.NewTimePoint(2025, time.May, 31))
	b.billed(p, "22-100", 1, 35, 140000, "Plumbing")
	b.billed(p, "23-100", 1, 20, 150000, "HVAC")
	return &b.ds
}

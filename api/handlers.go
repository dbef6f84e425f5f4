/*
handlers.go - HTTP API handlers for the burn engine

PURPOSE:
  Exposes dataset ingest, pipeline runs and the fact tables via REST API.
  Handles HTTP request/response and JSON serialization, and delegates to
  the evm package for everything else.

ENDPOINTS:
  Dataset:
    PUT    /api/dataset                          Replace the stored dataset
    GET    /api/dataset/summary                  Row counts and revision

  Runs:
    POST   /api/runs                             Run the pipeline now
    GET    /api/runs                             Run history, newest first
    GET    /api/runs/latest                      Latest completed run
    GET    /api/runs/{id}                        One run
    GET    /api/runs/{id}/export                 Fact tables as an XLSX workbook

  Projects (latest completed run, or ?run=ID):
    GET    /api/projects                         Per-project summary
    GET    /api/projects/{id}/weeks              Project-week rollup
    GET    /api/projects/{id}/lines              Line closeouts and scales
    GET    /api/projects/{id}/lines/{line}/weeks Weekly snapshots of a line

  Scenarios:
    GET    /api/scenarios                        List demo datasets
    POST   /api/scenarios/load                   Store a demo dataset

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid records, no dataset stored yet, malformed body
  - 404: Run, project or line not found
  - 500: Internal errors, failed runs

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/warp/burn-engine/dataset"
	"github.com/warp/burn-engine/evm"
)

// maxDatasetBytes bounds PUT /api/dataset bodies.
const maxDatasetBytes = 256 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   evm.Store
	Runner  *evm.Runner
	Loader  *dataset.Loader
	Metrics *Metrics
	Logger  *slog.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler whose runs execute on runner against store.
func NewHandler(store evm.Store, runner *evm.Runner, metrics *Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:   store,
		Runner:  runner,
		Loader:  dataset.NewLoader(logger),
		Metrics: metrics,
		Logger:  logger,
	}
}

// =============================================================================
// DATASET HANDLERS
// =============================================================================

// PutDataset validates and stores a full dataset, replacing the previous one.
// PUT /api/dataset
func (h *Handler) PutDataset(w http.ResponseWriter, r *http.Request) {
	var ds evm.Dataset
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDatasetBytes)).Decode(&ds); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, "Invalid request body", err)
		return
	}
	if err := h.Loader.Validate(&ds); err != nil {
		writeDomainError(w, "Invalid dataset", err)
		return
	}

	rev, err := h.Store.SaveDataset(r.Context(), &ds)
	if err != nil {
		writeDomainError(w, "Failed to save dataset", err)
		return
	}
	h.Metrics.SetDatasetRevision(rev)
	h.Logger.Info("dataset stored", slog.Int64("revision", rev), slog.Int("projects", len(ds.Projects())))

	writeJSON(w, http.StatusOK, DatasetSummaryDTO{
		Revision: rev,
		Counts:   ds.Counts(),
		Projects: len(ds.Projects()),
	})
}

// GetDatasetSummary returns row counts of the stored dataset.
// GET /api/dataset/summary
func (h *Handler) GetDatasetSummary(w http.ResponseWriter, r *http.Request) {
	ds, rev, err := h.Store.LoadDataset(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to load dataset", err)
		return
	}
	writeJSON(w, http.StatusOK, DatasetSummaryDTO{
		Revision: rev,
		Counts:   ds.Counts(),
		Projects: len(ds.Projects()),
	})
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// CreateRun runs the pipeline on the stored dataset and persists the result.
// POST /api/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Runner.Execute(r.Context())
	h.Metrics.ObserveRun(run, "api")
	if err != nil {
		writeDomainError(w, "Run failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

// ListRuns returns the run history, newest first.
// GET /api/runs?limit=N
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeDomainError(w, "Failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []evm.Run{}
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs})
}

// GetLatestRun returns the latest completed run.
// GET /api/runs/latest
func (h *Handler) GetLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Store.LatestRun(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to get latest run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetRun returns one run.
// GET /api/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ExportRun streams the five fact tables of a run as one workbook.
// GET /api/runs/{id}/export
func (h *Handler) ExportRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := h.Store.LoadResult(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to load run result", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="burn-%s.xlsx"`, id))
	if err := dataset.WriteXLSX(w, result); err != nil {
		h.Logger.Error("workbook export failed", slog.String("run_id", id), slog.Any("error", err))
	}
}

// =============================================================================
// PROJECT HANDLERS
// =============================================================================

// ListProjects summarizes every project of a run.
// GET /api/projects
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	run, result, err := h.resultFor(r)
	if err != nil {
		writeDomainError(w, "Failed to load run result", err)
		return
	}

	projects := []ProjectDTO{}
	for _, id := range result.Projects() {
		projects = append(projects, projectSummary(id, result.ForProject(id)))
	}
	writeJSON(w, http.StatusOK, ProjectListResponse{RunID: run.ID, Projects: projects})
}

// GetProjectWeeks returns the project-week rollup.
// GET /api/projects/{id}/weeks
func (h *Handler) GetProjectWeeks(w http.ResponseWriter, r *http.Request) {
	run, project, err := h.projectResult(r)
	if err != nil {
		writeDomainError(w, "Failed to get project weeks", err)
		return
	}
	writeJSON(w, http.StatusOK, ProjectWeeksResponse{
		RunID:     run.ID,
		ProjectID: evm.ProjectID(chi.URLParam(r, "id")),
		Weeks:     orEmpty(project.ProjectWeek),
	})
}

// GetProjectLines returns each line's closeout plus the project scale.
// GET /api/projects/{id}/lines
func (h *Handler) GetProjectLines(w http.ResponseWriter, r *http.Request) {
	run, project, err := h.projectResult(r)
	if err != nil {
		writeDomainError(w, "Failed to get project lines", err)
		return
	}
	resp := ProjectLinesResponse{
		RunID:     run.ID,
		ProjectID: evm.ProjectID(chi.URLParam(r, "id")),
		Lines:     orEmpty(project.Closeouts),
	}
	if len(project.Scales) > 0 {
		resp.Scale = &project.Scales[0]
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetLineWeeks returns the weekly snapshots of one line.
// GET /api/projects/{id}/lines/{line}/weeks
func (h *Handler) GetLineWeeks(w http.ResponseWriter, r *http.Request) {
	run, project, err := h.projectResult(r)
	if err != nil {
		writeDomainError(w, "Failed to get line weeks", err)
		return
	}

	line := evm.LineID(chi.URLParam(r, "line"))
	var weeks []evm.WeeklySnapshot
	for _, row := range project.Weekly {
		if row.LineID == line {
			weeks = append(weeks, row)
		}
	}
	if len(weeks) == 0 {
		writeDomainError(w, "Failed to get line weeks", fmt.Errorf("%s: %w", line, evm.ErrLineNotFound))
		return
	}
	writeJSON(w, http.StatusOK, LineWeeksResponse{
		RunID:     run.ID,
		ProjectID: evm.ProjectID(chi.URLParam(r, "id")),
		LineID:    line,
		Weeks:     weeks,
	})
}

// resultFor loads the run named by ?run=, or the latest completed run.
func (h *Handler) resultFor(r *http.Request) (*evm.Run, *evm.Result, error) {
	ctx := r.Context()
	var (
		run *evm.Run
		err error
	)
	if id := r.URL.Query().Get("run"); id != "" {
		run, err = h.Store.GetRun(ctx, id)
	} else {
		run, err = h.Store.LatestRun(ctx)
	}
	if err != nil {
		return nil, nil, err
	}
	result, err := h.Store.LoadResult(ctx, run.ID)
	if err != nil {
		return nil, nil, err
	}
	return run, result, nil
}

// projectResult narrows resultFor to the {id} project.
func (h *Handler) projectResult(r *http.Request) (*evm.Run, *evm.Result, error) {
	run, result, err := h.resultFor(r)
	if err != nil {
		return nil, nil, err
	}
	id := evm.ProjectID(chi.URLParam(r, "id"))
	project := result.ForProject(id)
	if project.IsEmpty() {
		return nil, nil, fmt.Errorf("%s: %w", id, evm.ErrProjectNotFound)
	}
	return run, project, nil
}

func projectSummary(id evm.ProjectID, p *evm.Result) ProjectDTO {
	dto := ProjectDTO{
		ProjectID: id,
		Lines:     len(p.Closeouts),
		Weeks:     len(p.ProjectWeek),
	}
	if len(p.LastPeriods) > 0 {
		dto.LastPeriodEnd = p.LastPeriods[0].LastPeriodEnd
	}
	if len(p.Scales) > 0 {
		dto.LaborScale = p.Scales[0].LaborScale
		dto.MatScale = p.Scales[0].MatScale
	}
	if n := len(p.ProjectWeek); n > 0 {
		latest := p.ProjectWeek[n-1]
		dto.LatestWeekEnd = latest.WeekEnd
		dto.BurnMultCost = latest.BurnMultCost
		dto.BillingLagRatio = latest.BillingLagRatio
	}
	return dto
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError picks the status from the error's category.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case evm.IsNotFound(err):
		return http.StatusNotFound
	case evm.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

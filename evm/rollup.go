package evm

import (
	"cmp"
	"slices"
)

// =============================================================================
// PROJECT ROLLUP - Sum line rows per (project, week)
// =============================================================================

type projectWeekKey struct {
	ProjectID ProjectID
	WeekEnd   TimePoint
}

// Rollup sums the line-level rows that exist for each project-week. Lines
// without a row that week contribute nothing; no Cartesian fill happens.
// Ratios are recomputed from the sums, so large lines weigh more than small
// ones.
func Rollup(rows []WeeklySnapshot, params Params) []ProjectWeekSnapshot {
	sums := make(map[projectWeekKey]*ProjectWeekSnapshot)
	var order []projectWeekKey
	for i := range rows {
		r := &rows[i]
		k := projectWeekKey{ProjectID: r.ProjectID, WeekEnd: r.WeekEnd}
		s, ok := sums[k]
		if !ok {
			s = &ProjectWeekSnapshot{ProjectID: r.ProjectID, WeekEnd: r.WeekEnd}
			sums[k] = s
			order = append(order, k)
		}
		s.LaborCostTD += r.LaborCostTD
		s.MaterialCostTD += r.MaterialCostTD
		s.EarnedLaborCostTD += r.EarnedLaborCostTD
		s.EarnedMaterialCostTD += r.EarnedMaterialCostTD
		s.TotalBilledTD += r.TotalBilledTD
		s.OTHoursTD += r.OTHoursTD
		s.STHoursTD += r.STHoursTD
	}

	slices.SortFunc(order, func(a, b projectWeekKey) int {
		return cmp.Or(cmp.Compare(a.ProjectID, b.ProjectID), compareDays(a.WeekEnd, b.WeekEnd))
	})

	out := make([]ProjectWeekSnapshot, 0, len(order))
	for _, k := range order {
		s := sums[k]
		s.TotalCostTD = s.LaborCostTD + s.MaterialCostTD
		s.EarnedCostTD = s.EarnedLaborCostTD + s.EarnedMaterialCostTD
		s.BurnMultCost = params.gatedRatio(s.EarnedCostTD > 0, s.TotalCostTD, s.EarnedCostTD)
		s.LaborBurnMultCost = params.gatedRatio(s.EarnedLaborCostTD > 0, s.LaborCostTD, s.EarnedLaborCostTD)
		s.MaterialBurnMultCost = params.gatedRatio(s.EarnedMaterialCostTD > 0, s.MaterialCostTD, s.EarnedMaterialCostTD)
		s.OTRatioTD = params.ratio(s.OTHoursTD, s.OTHoursTD+s.STHoursTD)
		s.BillingLagRatio = params.gatedRatio(s.TotalBilledTD > 0, s.TotalCostTD, s.TotalBilledTD)
		out = append(out, *s)
	}
	return out
}

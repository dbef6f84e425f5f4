package evm

// =============================================================================
// SIGNATURE CALCULATOR - Earned value and gated burn ratios
// =============================================================================

// BudgetIndex maps each SOV line to its budget figures. The first record of
// a duplicated key wins.
func BudgetIndex(sov []SOVLine) map[LineKey]Budget {
	idx := make(map[LineKey]Budget, len(sov))
	for _, s := range sov {
		k := LineKey{ProjectID: s.ProjectID, LineID: s.LineID}
		if _, dup := idx[k]; dup {
			continue
		}
		idx[k] = Budget{
			EstimatedLaborHours:   s.EstimatedLaborHours,
			EstimatedLaborCost:    s.EstimatedLaborCost,
			EstimatedMaterialCost: s.EstimatedMaterialCost,
			ProductivityFactor:    s.ProductivityFactor,
			BudgetHoursAdj:        AdjustedBudgetHours(s.EstimatedLaborHours, s.ProductivityFactor),
		}
	}
	return idx
}

// AdjustedBudgetHours divides budget hours by a positive productivity
// factor; a zero factor leaves them unchanged.
func AdjustedBudgetHours(hours, productivity float64) float64 {
	if productivity > 0 {
		return hours / productivity
	}
	return hours
}

// Sign joins budgets onto rolled rows and computes their signatures. Lines
// missing from the budget get all-zero figures, which leaves their burn
// multipliers undefined.
func Sign(rows []WeeklySnapshot, budgets map[LineKey]Budget, params Params) {
	for i := range rows {
		row := &rows[i]
		row.Budget = budgets[row.Line()]
		signRow(row, params)
	}
}

func signRow(row *WeeklySnapshot, params Params) {
	progress := row.PctCompleteTD / 100
	row.EarnedLaborCostTD = row.EstimatedLaborCost * progress
	row.EarnedLaborHoursTD = row.BudgetHoursAdj * progress
	row.EarnedMaterialCostTD = row.EstimatedMaterialCost * progress

	gated := row.PctCompleteTD >= params.ProgressGate
	row.LaborBurnMultCost = params.gatedRatio(gated && row.EstimatedLaborCost > 0,
		row.LaborCostTD, row.EarnedLaborCostTD)
	row.LaborBurnMultHours = params.gatedRatio(gated && row.EstimatedLaborHours > 0,
		row.LaborHoursTD, row.EarnedLaborHoursTD)
	row.MaterialBurnMultCost = params.gatedRatio(gated && row.EstimatedMaterialCost > 0,
		row.MaterialCostTD, row.EarnedMaterialCostTD)

	row.OTRatioTD = params.ratio(row.OTHoursTD, row.STHoursTD+row.OTHoursTD)
	row.BillingLagRatio = params.gatedRatio(row.TotalBilledTD > 0,
		row.LaborCostTD+row.MaterialCostTD, row.TotalBilledTD)
}

// ratio divides with the epsilon guard so a zero denominator stays finite.
func (p Params) ratio(num, den float64) float64 {
	return num / (den + p.Epsilon)
}

// gatedRatio is ratio when ok holds and undefined otherwise.
func (p Params) gatedRatio(ok bool, num, den float64) NullFloat {
	if !ok {
		return None()
	}
	return Some(p.ratio(num, den))
}

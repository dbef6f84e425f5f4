package evm

import (
	"slices"
)

// =============================================================================
// CALIBRATION ENGINE - Median actual/budget ratio per project
// =============================================================================

// Calibrate computes each project's labor and material scale from its
// closeouts and fills the ratio, scale and variance fields of every record.
// It needs all closeouts of a project before any record can be finished.
// Records must be grouped by project (Closeouts output order); scales are
// returned sorted by project.
func Calibrate(closeouts []CloseoutRecord) []CalibrationScale {
	var scales []CalibrationScale
	for start := 0; start < len(closeouts); {
		end := start
		for end < len(closeouts) && closeouts[end].ProjectID == closeouts[start].ProjectID {
			end++
		}
		group := closeouts[start:end]
		scale := projectScale(group)
		for i := range group {
			applyScale(&group[i], scale)
		}
		scales = append(scales, scale)
		start = end
	}
	return scales
}

func projectScale(group []CloseoutRecord) CalibrationScale {
	var labor, material []float64
	for i := range group {
		c := &group[i]
		c.LaborCostRatio = costRatio(c.LaborCostTD, c.EstimatedLaborCost)
		c.MatCostRatio = costRatio(c.MaterialCostTD, c.EstimatedMaterialCost)
		if c.LaborCostRatio.Valid && c.LaborCostTD > 0 {
			labor = append(labor, c.LaborCostRatio.Float64)
		}
		if c.MatCostRatio.Valid && c.MaterialCostTD > 0 {
			material = append(material, c.MatCostRatio.Float64)
		}
	}
	return CalibrationScale{
		ProjectID:  group[0].ProjectID,
		LaborScale: Median(labor),
		MatScale:   Median(material),
	}
}

// costRatio is actual/budget, defined only for a positive budget.
func costRatio(actual, budget float64) NullFloat {
	if budget > 0 {
		return Some(actual / budget)
	}
	return None()
}

// Median is undefined for an empty set; an even count averages the two
// middle values.
func Median(values []float64) NullFloat {
	if len(values) == 0 {
		return None()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return Some(sorted[mid])
	}
	return Some((sorted[mid-1] + sorted[mid]) / 2)
}

// =============================================================================
// VARIANCE CALCULATOR - Actual cost against the calibrated budget
// =============================================================================

// applyScale writes the project scale and the scaled variances onto c. An
// undefined scale yields undefined variance; the raw budget is never used
// as a fallback.
func applyScale(c *CloseoutRecord, scale CalibrationScale) {
	c.LaborScale = scale.LaborScale
	c.MatScale = scale.MatScale
	c.VarLaborScaled = scaledVariance(c.LaborCostTD, c.EstimatedLaborCost, scale.LaborScale)
	c.VarMaterialScaled = scaledVariance(c.MaterialCostTD, c.EstimatedMaterialCost, scale.MatScale)
	c.VarTotalScaled = c.VarLaborScaled.Add(c.VarMaterialScaled)
}

func scaledVariance(actual, budget float64, scale NullFloat) NullFloat {
	s, ok := scale.Get()
	if !ok {
		return None()
	}
	return Some(actual - budget*s)
}

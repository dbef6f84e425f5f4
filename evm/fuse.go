package evm

// =============================================================================
// SNAPSHOT FUSER - Union of keys, left join of every stream
// =============================================================================

// Fuse builds one row for every (project, line, week) observed in any
// stream. A week with only a billing event still yields a row. Streams
// absent from a key contribute zeros and an empty description.
// Percent complete is clipped to [0,100] here, before any running maximum.
// The returned rows are unordered; Roll establishes the order.
func Fuse(labor map[WeekKey]LaborWeek, materials map[WeekKey]MaterialWeek, billing map[WeekKey]BillingWeek) []WeeklySnapshot {
	keys := make(map[WeekKey]struct{}, len(labor)+len(materials)+len(billing))
	for k := range labor {
		keys[k] = struct{}{}
	}
	for k := range materials {
		keys[k] = struct{}{}
	}
	for k := range billing {
		keys[k] = struct{}{}
	}

	rows := make([]WeeklySnapshot, 0, len(keys))
	for k := range keys {
		l := labor[k]
		m := materials[k]
		b := billing[k]
		rows = append(rows, WeeklySnapshot{
			ProjectID:      k.ProjectID,
			LineID:         k.LineID,
			WeekEnd:        k.WeekEnd,
			LaborHoursW:    l.LaborHours,
			LaborCostW:     l.LaborCost,
			STHoursW:       l.STHours,
			OTHoursW:       l.OTHours,
			MaterialCostW:  m.MaterialCost,
			MaterialQtyW:   m.MaterialQty,
			PctComplete:    ClipPercent(b.PctComplete),
			TotalBilled:    b.TotalBilled,
			ScheduledValue: b.ScheduledValue,
			Description:    b.Description,
		})
	}
	return rows
}

// ClipPercent bounds a reported percent complete to [0,100].
func ClipPercent(p float64) float64 {
	return min(max(p, 0), 100)
}

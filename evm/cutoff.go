package evm

// =============================================================================
// CUTOFF FILTER - Drop cost records booked after the last billing period
// =============================================================================

// LastPeriodEnds returns, per project, the latest period_end among its
// billing periods. Projects without periods are absent from the map.
func LastPeriodEnds(periods []BillingPeriod) map[ProjectID]TimePoint {
	last := make(map[ProjectID]TimePoint)
	for _, p := range periods {
		if cur, ok := last[p.ProjectID]; !ok || p.PeriodEnd.After(cur) {
			last[p.ProjectID] = p.PeriodEnd
		}
	}
	return last
}

// CutoffLabor keeps entries dated on or before their project's cutoff.
// A project with no cutoff keeps nothing: absent is not "no limit".
func CutoffLabor(entries []LaborLogEntry, cutoff map[ProjectID]TimePoint) []LaborLogEntry {
	var kept []LaborLogEntry
	for _, e := range entries {
		if withinCutoff(e.ProjectID, e.Date, cutoff) {
			kept = append(kept, e)
		}
	}
	return kept
}

// CutoffMaterials applies the same rule as CutoffLabor to deliveries.
func CutoffMaterials(deliveries []MaterialDelivery, cutoff map[ProjectID]TimePoint) []MaterialDelivery {
	var kept []MaterialDelivery
	for _, d := range deliveries {
		if withinCutoff(d.ProjectID, d.Date, cutoff) {
			kept = append(kept, d)
		}
	}
	return kept
}

func withinCutoff(project ProjectID, date TimePoint, cutoff map[ProjectID]TimePoint) bool {
	end, ok := cutoff[project]
	return ok && date.BeforeOrEqual(end)
}

func lastPeriodTable(cutoff map[ProjectID]TimePoint) []LastPeriodEnd {
	seen := make(map[ProjectID]bool, len(cutoff))
	for p := range cutoff {
		seen[p] = true
	}
	rows := make([]LastPeriodEnd, 0, len(cutoff))
	for _, p := range sortedProjects(seen) {
		rows = append(rows, LastPeriodEnd{ProjectID: p, LastPeriodEnd: cutoff[p]})
	}
	return rows
}

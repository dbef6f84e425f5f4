package evm

import "slices"

// =============================================================================
// WEEKLY AGGREGATOR - Bucket each stream into (project, line, week)
// =============================================================================

// LaborWeek is the labor stream summed over one week of a line.
type LaborWeek struct {
	LaborHours float64
	LaborCost  float64
	STHours    float64
	OTHours    float64
}

// MaterialWeek is the material stream summed over one week of a line.
type MaterialWeek struct {
	MaterialCost float64
	MaterialQty  float64
}

// BillingWeek is the billing state reported in one week of a line.
type BillingWeek struct {
	PctComplete    float64
	TotalBilled    float64
	ScheduledValue float64
	Description    string
}

// LaborTotalCost prices one log entry. Overtime hours carry the premium
// before rate and burden are applied.
func LaborTotalCost(e LaborLogEntry, params Params) float64 {
	return (e.HoursST + params.OvertimePremium*e.HoursOT) * e.HourlyRate * e.BurdenMultiplier
}

// AggregateLabor sums labor entries per week.
func AggregateLabor(entries []LaborLogEntry, params Params) map[WeekKey]LaborWeek {
	out := make(map[WeekKey]LaborWeek)
	for _, e := range entries {
		k := WeekKey{ProjectID: e.ProjectID, LineID: e.LineID, WeekEnd: e.Date.WeekEnd()}
		w := out[k]
		w.LaborHours += e.HoursST + e.HoursOT
		w.LaborCost += LaborTotalCost(e, params)
		w.STHours += e.HoursST
		w.OTHours += e.HoursOT
		out[k] = w
	}
	return out
}

// AggregateMaterials sums deliveries per week.
func AggregateMaterials(deliveries []MaterialDelivery) map[WeekKey]MaterialWeek {
	out := make(map[WeekKey]MaterialWeek)
	for _, d := range deliveries {
		k := WeekKey{ProjectID: d.ProjectID, LineID: d.LineID, WeekEnd: d.Date.WeekEnd()}
		w := out[k]
		w.MaterialCost += d.TotalCost
		w.MaterialQty += d.Quantity
		out[k] = w
	}
	return out
}

// AggregateBilling places each line item on the week of its application's
// period_end and keeps, per week, the maximum of each reported figure and
// the first non-empty description in application order. Items whose
// application has no billing period are dropped.
func AggregateBilling(items []BillingLineItem, periods []BillingPeriod) map[WeekKey]BillingWeek {
	type appKey struct {
		ProjectID ProjectID
		App       int
	}
	periodEnd := make(map[appKey]TimePoint, len(periods))
	for _, p := range periods {
		k := appKey{ProjectID: p.ProjectID, App: p.ApplicationNumber}
		if _, dup := periodEnd[k]; !dup {
			periodEnd[k] = p.PeriodEnd
		}
	}

	// Stable sort keeps input order among items of the same application.
	ordered := slices.Clone(items)
	slices.SortStableFunc(ordered, func(a, b BillingLineItem) int {
		return a.ApplicationNumber - b.ApplicationNumber
	})

	out := make(map[WeekKey]BillingWeek)
	for _, it := range ordered {
		end, ok := periodEnd[appKey{ProjectID: it.ProjectID, App: it.ApplicationNumber}]
		if !ok {
			continue
		}
		k := WeekKey{ProjectID: it.ProjectID, LineID: it.LineID, WeekEnd: end.WeekEnd()}
		w, seen := out[k]
		if !seen {
			w = BillingWeek{
				PctComplete:    it.PctComplete,
				TotalBilled:    it.TotalBilled,
				ScheduledValue: it.ScheduledValue,
				Description:    it.Description,
			}
		} else {
			w.PctComplete = max(w.PctComplete, it.PctComplete)
			w.TotalBilled = max(w.TotalBilled, it.TotalBilled)
			w.ScheduledValue = max(w.ScheduledValue, it.ScheduledValue)
			if w.Description == "" {
				w.Description = it.Description
			}
		}
		out[k] = w
	}
	return out
}

package evm

import (
	"cmp"
	"slices"
)

// =============================================================================
// CUMULATIVE ROLLER - Running totals per line, in week order
// =============================================================================

// accumulator is the fold state carried across one line's weeks.
type accumulator struct {
	laborHours   float64
	laborCost    float64
	materialCost float64
	stHours      float64
	otHours      float64
	pctComplete  float64 // running max
	totalBilled  float64 // running max
}

func (a *accumulator) add(row *WeeklySnapshot) {
	a.laborHours += row.LaborHoursW
	a.laborCost += row.LaborCostW
	a.materialCost += row.MaterialCostW
	a.stHours += row.STHoursW
	a.otHours += row.OTHoursW
	a.pctComplete = max(a.pctComplete, row.PctComplete)
	a.totalBilled = max(a.totalBilled, row.TotalBilled)
}

func (a *accumulator) apply(row *WeeklySnapshot) {
	row.LaborHoursTD = a.laborHours
	row.LaborCostTD = a.laborCost
	row.MaterialCostTD = a.materialCost
	row.STHoursTD = a.stHours
	row.OTHoursTD = a.otHours
	row.PctCompleteTD = a.pctComplete
	row.TotalBilledTD = a.totalBilled
}

// SortWeekly orders rows by (project, line, week_end). Every cumulative or
// first/last reduction downstream depends on this order.
func SortWeekly(rows []WeeklySnapshot) {
	slices.SortStableFunc(rows, func(a, b WeeklySnapshot) int {
		return cmp.Or(
			cmp.Compare(a.ProjectID, b.ProjectID),
			cmp.Compare(a.LineID, b.LineID),
			compareDays(a.WeekEnd, b.WeekEnd),
		)
	})
}

// Roll sorts rows and fills the *_td fields in place. Each line starts from
// a fresh accumulator; costs and hours accumulate by sum, percent complete
// and billed-to-date by running maximum so they never regress.
func Roll(rows []WeeklySnapshot) {
	SortWeekly(rows)
	var (
		acc  accumulator
		line LineKey
	)
	for i := range rows {
		row := &rows[i]
		if i == 0 || row.Line() != line {
			acc = accumulator{pctComplete: row.PctComplete, totalBilled: row.TotalBilled}
			line = row.Line()
		}
		acc.add(row)
		acc.apply(row)
	}
}

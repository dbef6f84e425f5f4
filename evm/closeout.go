package evm

// =============================================================================
// CLOSEOUT EXTRACTOR - Last weekly row of every line
// =============================================================================

// Closeouts returns one record per line: the last row of each line in
// (project, line, week_end) order. rows must already be sorted by Roll.
func Closeouts(rows []WeeklySnapshot) []CloseoutRecord {
	var out []CloseoutRecord
	for i := range rows {
		last := i == len(rows)-1 || rows[i+1].Line() != rows[i].Line()
		if last {
			out = append(out, CloseoutRecord{WeeklySnapshot: rows[i]})
		}
	}
	return out
}

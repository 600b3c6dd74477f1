package analysis

// Result is everything the results view needs for one series.
type Result struct {
	SessionID string            `json:"session,omitempty"`
	Label     string            `json:"label"`
	Table     *Table            `json:"table"`
	Sample    *Table            `json:"sample"`
	Totals    map[string]Float  `json:"totals"`
	Models    []ModelInfo       `json:"models"`
	Plots     map[string]string `json:"plots"`
}

// Package assembles a Result: the full prediction table, its last
// DefaultSampleRows rows and their column totals.
func Package(label string, table *Table, models []ModelInfo, plots map[string]string) *Result {
	sample := table.Tail(DefaultSampleRows)
	totals := make(map[string]Float, len(sample.Columns))
	for i, v := range sample.Totals() {
		totals[sample.Columns[i]] = Float(v)
	}
	if plots == nil {
		plots = map[string]string{}
	}
	return &Result{
		Label:  label,
		Table:  table,
		Sample: sample,
		Totals: totals,
		Models: models,
		Plots:  plots,
	}
}

package trace

// TraceSummary aggregates statistics from a SessionTrace.
type TraceSummary struct {
	TotalDecisions     int
	ExploreCount       int
	ExploitCount       int
	FallbackCount      int
	ScriptedCount      int
	TieCount           int
	UniqueActions      int
	ActionDistribution map[string]int // action name → times chosen
}

// Summarize computes aggregate statistics from a SessionTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SessionTrace) *TraceSummary {
	summary := &TraceSummary{
		ActionDistribution: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	decisions := st.Decisions()
	summary.TotalDecisions = len(decisions)
	for _, d := range decisions {
		switch d.Mode {
		case ModeExplore:
			summary.ExploreCount++
		case ModeExploit:
			summary.ExploitCount++
		case ModeFallback:
			summary.FallbackCount++
		case ModeScripted:
			summary.ScriptedCount++
		}
		if len(d.Tied) > 1 {
			summary.TieCount++
		}
		summary.ActionDistribution[d.Chosen]++
	}

	summary.UniqueActions = len(summary.ActionDistribution)

	return summary
}

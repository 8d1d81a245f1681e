package trace

import "sync"

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every policy decision.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// SessionTrace collects decision records across the episodes of a session.
// Safe for concurrent use by parallel episodes.
type SessionTrace struct {
	Level TraceLevel

	mu        sync.Mutex
	decisions []DecisionRecord
}

// NewSessionTrace creates a SessionTrace ready for recording.
func NewSessionTrace(level TraceLevel) *SessionTrace {
	return &SessionTrace{
		Level:     level,
		decisions: make([]DecisionRecord, 0),
	}
}

// Enabled reports whether records are kept. Safe on a nil receiver.
func (st *SessionTrace) Enabled() bool {
	return st != nil && st.Level == TraceLevelDecisions
}

// RecordDecision appends a decision record when tracing is enabled.
func (st *SessionTrace) RecordDecision(record DecisionRecord) {
	if !st.Enabled() {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.decisions = append(st.decisions, record)
}

// Decisions returns a copy of all recorded decisions.
func (st *SessionTrace) Decisions() []DecisionRecord {
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]DecisionRecord, len(st.decisions))
	copy(out, st.decisions)
	return out
}

// Package trace provides decision-trace recording for exploration policy analysis.
// This package has no dependencies on explore/ and stores pure data types.
package trace

// Mode names how a policy arrived at an action.
type Mode string

const (
	// ModeExplore is a uniform draw taken because the epsilon coin came up.
	ModeExplore Mode = "explore"
	// ModeExploit picks the action name with the best running average.
	ModeExploit Mode = "exploit"
	// ModeFallback is a uniform draw taken because exploitation had nothing
	// to go on (no statistics, or the best name has no template).
	ModeFallback Mode = "fallback"
	// ModeScripted replays a predetermined action.
	ModeScripted Mode = "scripted"
)

// DecisionRecord captures a single policy decision.
type DecisionRecord struct {
	Seed        int64
	Step        int
	Mode        Mode
	Chosen      string
	BestAverage float64  // running average of Chosen at decision time; 0 unless exploiting
	Tied        []string // names tied for best average when more than one (nil otherwise)
}

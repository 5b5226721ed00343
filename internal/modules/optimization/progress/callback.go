// Package progress carries optimizer progress events to interested callers.
package progress

// Optimizer phases, in the order they are reported.
const (
	PhaseModel           = "model"
	PhaseSolve           = "solve"
	PhaseBudget          = "budget"
	PhaseRecommendations = "recommendations"
	PhaseDone            = "done"
)

// Update is one progress event. Current/Total count work within Phase.
type Update struct {
	Details map[string]any `json:"details,omitempty"`
	Phase   string         `json:"phase"`
	Message string         `json:"message"`
	Current int            `json:"current"`
	Total   int            `json:"total"`
}

// Callback receives progress updates. A nil Callback is valid.
type Callback func(update Update)

// Call invokes cb if it is non-nil.
func Call(cb Callback, update Update) {
	if cb != nil {
		cb(update)
	}
}

// Step reports a phase without a detail map.
func Step(cb Callback, phase string, current, total int, message string) {
	Call(cb, Update{Phase: phase, Current: current, Total: total, Message: message})
}

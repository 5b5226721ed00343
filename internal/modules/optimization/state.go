package optimization

import "fmt"

// State is a step in the lifecycle of one optimization request.
type State string

const (
	StateInputValidated State = "INPUT_VALIDATED"
	StateSolving        State = "SOLVING"
	StateSolved         State = "SOLVED"
	StateInfeasible     State = "INFEASIBLE"
)

var stateTransitions = map[State][]State{
	StateInputValidated: {StateSolving, StateInfeasible},
	StateSolving:        {StateSolved, StateInfeasible},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return len(stateTransitions[s]) == 0
}

// stateMachine tracks one request. It starts at INPUT_VALIDATED because the
// request has passed the validation gateway before it reaches the optimizer.
type stateMachine struct {
	current State
	history []State
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: StateInputValidated, history: []State{StateInputValidated}}
}

func (m *stateMachine) advance(to State) error {
	for _, allowed := range stateTransitions[m.current] {
		if allowed == to {
			m.current = to
			m.history = append(m.history, to)
			return nil
		}
	}
	return fmt.Errorf("invalid optimizer state transition %s -> %s", m.current, to)
}

func (m *stateMachine) trace() []State {
	out := make([]State, len(m.history))
	copy(out, m.history)
	return out
}

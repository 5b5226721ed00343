package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCall_NilCallback(t *testing.T) {
	assert.NotPanics(t, func() {
		Call(nil, Update{Phase: PhaseSolve, Current: 1, Total: 10})
		Step(nil, PhaseModel, 0, 1, "building model")
	})
}

func TestCall_InvokesCallback(t *testing.T) {
	var got Update
	cb := func(u Update) { got = u }

	Call(cb, Update{
		Phase:   PhaseSolve,
		Current: 50,
		Total:   2000,
		Message: "iterating",
		Details: map[string]any{"objective": -0.08},
	})

	assert.Equal(t, PhaseSolve, got.Phase)
	assert.Equal(t, 50, got.Current)
	assert.Equal(t, 2000, got.Total)
	assert.Equal(t, "iterating", got.Message)
	assert.Equal(t, -0.08, got.Details["objective"])
}

func TestStep_PreservesOrder(t *testing.T) {
	var phases []string
	cb := func(u Update) { phases = append(phases, u.Phase) }

	Step(cb, PhaseModel, 1, 1, "")
	Step(cb, PhaseSolve, 1, 1, "")
	Step(cb, PhaseBudget, 1, 1, "")
	Step(cb, PhaseRecommendations, 1, 1, "")
	Step(cb, PhaseDone, 1, 1, "")

	assert.Equal(t, []string{PhaseModel, PhaseSolve, PhaseBudget, PhaseRecommendations, PhaseDone}, phases)
}

func TestStep_NilDetails(t *testing.T) {
	var got Update
	Step(func(u Update) { got = u }, PhaseDone, 4, 4, "finished")
	assert.Nil(t, got.Details)
	assert.Equal(t, "finished", got.Message)
}

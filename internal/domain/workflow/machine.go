package workflow

import "context"

// Transition describes a fired state change
type Transition struct {
	From    State
	To      State
	Trigger Trigger
}

// IsSelfLoop reports whether the transition stays in the same state
func (t Transition) IsSelfLoop() bool {
	return t.From == t.To
}

// StateMachine tracks the current state of one expense and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger has at least one configured transition from the current state
	CanFire(trigger Trigger) bool

	// Fire executes the first transition whose guard passes
	Fire(ctx context.Context, trigger Trigger) (Transition, error)

	// PermittedTriggers returns all triggers configured for the current state
	PermittedTriggers() []Trigger
}

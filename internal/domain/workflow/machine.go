package workflow

import "context"

// StateMachine tracks the current state and validates role-scoped transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if role may fire the trigger in the current state
	CanFire(role Role, trigger Trigger) bool

	// Fire attempts to execute the trigger as role, transitioning to the new state if allowed
	Fire(ctx context.Context, role Role, trigger Trigger) error

	// PermittedTriggers returns the triggers role may fire in the current state
	PermittedTriggers(role Role) []Trigger

	// Grants reports whether role may fire the trigger from any configured state
	Grants(role Role, trigger Trigger) bool
}

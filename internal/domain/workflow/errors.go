package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when no edge exists for the trigger in the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when a guard condition fails
	ErrGuardFailed = errors.New("guard condition failed")

	// ErrRoleNotPermitted is returned when edges exist for the trigger but none for the role
	ErrRoleNotPermitted = errors.New("role not permitted")
)

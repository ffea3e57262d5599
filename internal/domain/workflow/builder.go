package workflow

import (
	"context"
	"fmt"
	"sort"
)

// GuardFunc is a function that evaluates whether a transition should be allowed
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder interface {
	// Configure returns a state configuration for the given state
	Configure(state State) StateConfiguration

	// Build creates a new state machine instance with the given initial state
	Build(initialState State) StateMachine
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration interface {
	// Permit allows any role to fire trigger to the target state
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf allows any role to fire trigger to the target state if the guard passes
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration

	// PermitRole allows only role to fire trigger to the target state
	PermitRole(role Role, trigger Trigger, toState State) StateConfiguration

	// PermitRoleIf allows only role to fire trigger to the target state if the guard passes
	PermitRoleIf(role Role, trigger Trigger, toState State, guard GuardFunc) StateConfiguration
}

// transition is one edge: (role, trigger) -> toState, with optional guard
type transition struct {
	role    Role
	toState State
	guard   GuardFunc
}

func (t transition) allows(role Role) bool {
	return t.role == RoleAny || t.role == role
}

type stateConfig struct {
	fromState   State
	transitions map[Trigger][]transition
}

type stateMachineBuilder struct {
	configurations map[State]*stateConfig
}

type stateMachine struct {
	currentState   State
	configurations map[State]*stateConfig
}

// NewBuilder creates a new state machine builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{
		configurations: make(map[State]*stateConfig),
	}
}

// Configure returns a state configuration for the given state
func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{
			fromState:   state,
			transitions: make(map[Trigger][]transition),
		}
		b.configurations[state] = config
	}

	return config
}

// Build creates a new state machine instance with the given initial state.
// The machine gets its own copy of the table.
func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	configsCopy := make(map[State]*stateConfig, len(b.configurations))
	for state, config := range b.configurations {
		transitionsCopy := make(map[Trigger][]transition, len(config.transitions))
		for trigger, transitions := range config.transitions {
			transitionsCopy[trigger] = append([]transition{}, transitions...)
		}
		configsCopy[state] = &stateConfig{
			fromState:   state,
			transitions: transitionsCopy,
		}
	}

	return &stateMachine{
		currentState:   initialState,
		configurations: configsCopy,
	}
}

func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitRoleIf(RoleAny, trigger, toState, nil)
}

func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	return c.PermitRoleIf(RoleAny, trigger, toState, guard)
}

func (c *stateConfig) PermitRole(role Role, trigger Trigger, toState State) StateConfiguration {
	return c.PermitRoleIf(role, trigger, toState, nil)
}

func (c *stateConfig) PermitRoleIf(role Role, trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	if role != RoleAny && !role.IsValid() {
		panic(fmt.Sprintf("invalid role: %s", role))
	}

	c.transitions[trigger] = append(c.transitions[trigger], transition{
		role:    role,
		toState: toState,
		guard:   guard,
	})

	return c
}

// State returns the current state
func (m *stateMachine) State() State {
	return m.currentState
}

// CanFire returns true if role has at least one edge for trigger in the
// current state. Guards are not evaluated.
func (m *stateMachine) CanFire(role Role, trigger Trigger) bool {
	return len(m.edgesFor(role, trigger)) > 0
}

// Fire attempts to execute the trigger, transitioning to the new state if allowed.
// Edges are tried in configuration order; the first whose guard passes wins.
func (m *stateMachine) Fire(ctx context.Context, role Role, trigger Trigger) error {
	config, exists := m.configurations[m.currentState]
	if !exists || len(config.transitions[trigger]) == 0 {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.currentState)
	}

	edges := m.edgesFor(role, trigger)
	if len(edges) == 0 {
		return fmt.Errorf("%w: role %s cannot fire trigger %s from state %s", ErrRoleNotPermitted, role, trigger, m.currentState)
	}

	for _, t := range edges {
		if t.guard == nil || t.guard(ctx) {
			m.currentState = t.toState
			return nil
		}
	}

	return fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.currentState)
}

// PermittedTriggers returns the triggers role may fire in the current state, sorted
func (m *stateMachine) PermittedTriggers(role Role) []Trigger {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return []Trigger{}
	}

	triggers := make([]Trigger, 0, len(config.transitions))
	for trigger := range config.transitions {
		if len(m.edgesFor(role, trigger)) > 0 {
			triggers = append(triggers, trigger)
		}
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })

	return triggers
}

// Grants reports whether role may fire trigger from any state in the table
func (m *stateMachine) Grants(role Role, trigger Trigger) bool {
	for _, config := range m.configurations {
		for _, t := range config.transitions[trigger] {
			if t.allows(role) {
				return true
			}
		}
	}
	return false
}

func (m *stateMachine) edgesFor(role Role, trigger Trigger) []transition {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return nil
	}

	var edges []transition
	for _, t := range config.transitions[trigger] {
		if t.allows(role) {
			edges = append(edges, t)
		}
	}
	return edges
}

package models

import (
	"fmt"
	"time"
)

// PositionState represents the current state of a position
type PositionState string

const (
	// StateIdle means no active position
	StateIdle PositionState = "idle"
	// StateOpen means the position is live and under risk management
	StateOpen PositionState = "open"
	// StateClosed means the position has exited and been written to the ledger
	StateClosed PositionState = "closed"
)

// ConditionSignalConfirmed is the idle→open transition condition.
const ConditionSignalConfirmed = "signal_confirmed"

// Close reasons double as the open→closed transition conditions.
const (
	ReasonTargetHit = "target_hit"
	ReasonStopHit   = "sl_hit"
	ReasonTheta     = "theta_protection"
	ReasonShutdown  = "shutdown"
)

// StateTransition defines valid state transitions
type StateTransition struct {
	From        PositionState
	To          PositionState
	Condition   string
	Description string
}

// ValidTransitions enumerates every legal position transition.
var ValidTransitions = []StateTransition{
	{StateIdle, StateOpen, ConditionSignalConfirmed, "Confluence signal fired, simulated entry filled"},

	{StateOpen, StateClosed, ReasonTargetHit, "Target reached"},
	{StateOpen, StateClosed, ReasonStopHit, "Stop loss hit"},
	{StateOpen, StateClosed, ReasonTheta, "Underlying moved but option stalled past the hold window"},
	{StateOpen, StateClosed, ReasonShutdown, "Engine stopping, position flattened at last price"},
}

// StateMachine manages position state transitions
type StateMachine struct {
	transitionTime  time.Time
	transitionCount map[PositionState]int
	currentState    PositionState
	previousState   PositionState
}

// NewStateMachine creates a new state machine starting at idle
func NewStateMachine() *StateMachine {
	return &StateMachine{
		currentState:    StateIdle,
		previousState:   StateIdle,
		transitionTime:  time.Now().UTC(),
		transitionCount: make(map[PositionState]int),
	}
}

// NewStateMachineFromState creates a state machine seeded with a persisted state
func NewStateMachineFromState(state PositionState) *StateMachine {
	sm := NewStateMachine()
	if state != "" {
		sm.currentState = state
		sm.previousState = state
	}
	return sm
}

// GetCurrentState returns the current state
func (sm *StateMachine) GetCurrentState() PositionState {
	return sm.currentState
}

// GetPreviousState returns the previous state
func (sm *StateMachine) GetPreviousState() PositionState {
	return sm.previousState
}

// IsValidTransition checks if a transition is valid
func (sm *StateMachine) IsValidTransition(to PositionState, condition string) error {
	if !sm.isTransitionDefined(to, condition) {
		return fmt.Errorf("invalid transition from %s to %s with condition '%s'",
			sm.currentState, to, condition)
	}
	return nil
}

// isTransitionDefined checks if the transition is defined in ValidTransitions
func (sm *StateMachine) isTransitionDefined(to PositionState, condition string) bool {
	for _, transition := range ValidTransitions {
		if transition.From != sm.currentState || transition.To != to {
			continue
		}
		if conditionMatches(transition.Condition, condition) {
			return true
		}
	}
	return false
}

// conditionMatches checks if the condition requirements are satisfied
func conditionMatches(transitionCondition, providedCondition string) bool {
	if transitionCondition == "" {
		return true
	}
	return providedCondition == transitionCondition
}

// Transition moves to a new state
func (sm *StateMachine) Transition(to PositionState, condition string) error {
	if err := sm.IsValidTransition(to, condition); err != nil {
		return err
	}

	sm.previousState = sm.currentState
	sm.currentState = to
	sm.transitionTime = time.Now().UTC()
	sm.transitionCount[to]++
	return nil
}

// GetTransitionCount returns how many times we've entered a state
func (sm *StateMachine) GetTransitionCount(state PositionState) int {
	return sm.transitionCount[state]
}

// GetStateDescription returns a human-readable description of the current state
func (sm *StateMachine) GetStateDescription() string {
	switch sm.currentState {
	case StateIdle:
		return "No active position, evaluating confluence every cycle"
	case StateOpen:
		return "Position open, risk ladder checked every cycle"
	case StateClosed:
		return "Position closed and recorded, ready for next signal"
	default:
		return "Unknown state"
	}
}

// ValidateStateConsistency ensures the state machine is in a valid state
func (sm *StateMachine) ValidateStateConsistency() error {
	totalTransitions := 0
	for _, count := range sm.transitionCount {
		totalTransitions += count
	}

	if totalTransitions == 0 && sm.currentState == StateIdle && sm.previousState == StateIdle {
		return nil
	}

	if sm.transitionTime.IsZero() && totalTransitions > 0 {
		return fmt.Errorf("missing transition time: transitionTime is zero")
	}

	if sm.currentState == sm.previousState && sm.transitionCount[sm.currentState] == 0 && totalTransitions > 0 {
		return fmt.Errorf("inconsistent transition counts for identical states: "+
			"current and previous states are the same (%s) but no transitions recorded", sm.currentState)
	}

	return nil
}

// Copy creates a deep copy of the StateMachine
func (sm *StateMachine) Copy() *StateMachine {
	if sm == nil {
		return nil
	}

	newSM := &StateMachine{
		currentState:   sm.currentState,
		previousState:  sm.previousState,
		transitionTime: sm.transitionTime,
	}
	newSM.transitionCount = make(map[PositionState]int)
	for k, v := range sm.transitionCount {
		newSM.transitionCount[k] = v
	}
	return newSM
}

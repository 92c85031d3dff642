package session

import "fmt"

// Machine-readable API error codes.
const (
	CodeInvalidFlowTransition = "INVALID_FLOW_TRANSITION"
	CodeStaleFlowVersion      = "STALE_FLOW_VERSION"
	CodeActiveSessionExists   = "ACTIVE_SESSION_EXISTS"
	CodeNoSkillsEnabled       = "NO_SKILLS_ENABLED"
)

// InvalidFlowTransitionError reports an event that the current flow state does
// not define. It signals a client/server desync (double-submit, stale UI) and
// is never coerced into a nearby transition.
type InvalidFlowTransitionError struct {
	State     FlowState `json:"flowState"`
	EventType EventType `json:"eventType"`
}

func (e *InvalidFlowTransitionError) Error() string {
	return fmt.Sprintf("invalid flow transition: event %q not allowed in state %q", e.EventType, e.State)
}

func (e *InvalidFlowTransitionError) Code() string { return CodeInvalidFlowTransition }

// StaleFlowVersionError reports a conditional write that lost the race: the
// persisted flow version no longer matches the version the caller read.
// The caller must reload and retry or surface a conflict.
type StaleFlowVersionError struct {
	ExpectedFlowVersion int `json:"expectedFlowVersion"`
	ActualFlowVersion   int `json:"actualFlowVersion"`
}

func (e *StaleFlowVersionError) Error() string {
	return fmt.Sprintf("stale flow version: expected %d, actual %d", e.ExpectedFlowVersion, e.ActualFlowVersion)
}

func (e *StaleFlowVersionError) Code() string { return CodeStaleFlowVersion }

// ActiveSessionExistsError rejects creating a second non-terminal plan for a
// player; it carries the existing plan so the client can resume it.
type ActiveSessionExistsError struct {
	Existing SessionPlan `json:"existingPlan"`
}

func (e *ActiveSessionExistsError) Error() string {
	return fmt.Sprintf("player %s already has an active session plan %s", e.Existing.PlayerID, e.Existing.ID)
}

func (e *ActiveSessionExistsError) Code() string { return CodeActiveSessionExists }

// NoSkillsEnabledError rejects plan creation for a student with no practice
// skills enabled; there would be nothing to generate parts from.
type NoSkillsEnabledError struct {
	PlayerID string `json:"playerId"`
}

func (e *NoSkillsEnabledError) Error() string {
	return fmt.Sprintf("player %s has no skills enabled", e.PlayerID)
}

func (e *NoSkillsEnabledError) Code() string { return CodeNoSkillsEnabled }

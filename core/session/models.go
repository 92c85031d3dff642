package session

import (
	"time"

	"github.com/sorobanclub/backend/core"
)

// Status is the coarse plan lifecycle, distinct from FlowState.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusApproved   Status = "approved"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

// Terminal reports whether the plan can no longer be mutated.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// PartKind is a practice phase. Kinds double as student skill names.
type PartKind string

const (
	PartAbacus        PartKind = "abacus"
	PartVisualization PartKind = "visualization"
	PartLinear        PartKind = "linear"
)

// PartOrder is the canonical sequencing of parts within a session.
var PartOrder = []PartKind{PartAbacus, PartVisualization, PartLinear}

// BreakReason values. BreakReasonGame is the stored value while the interlude
// is running; the other three record how the break ended and are the only
// values accepted in break_finished payloads.
type BreakReason string

const (
	BreakReasonGame         BreakReason = "game"
	BreakReasonTimeout      BreakReason = "timeout"
	BreakReasonGameFinished BreakReason = "gameFinished"
	BreakReasonSkipped      BreakReason = "skipped"
)

type TerminationReason string

const (
	TerminationEndedEarly TerminationReason = "ended_early"
	TerminationAbandoned  TerminationReason = "abandoned"
)

type (
	// SessionPlan is the persisted record of one practice session: its
	// configuration (parts/slots), progress pointers, flow sub-state and
	// accumulated results. It is the only shared mutable resource of the
	// flow engine and is always read-then-written through the store's
	// compare-and-swap primitive.
	SessionPlan struct {
		ID       string `json:"id"`
		PlayerID string `json:"player_id"`
		Status   Status `json:"status"`

		Parts            []Part `json:"parts"`
		CurrentPartIndex int    `json:"current_part_index"`
		CurrentSlotIndex int    `json:"current_slot_index"`

		FlowState     FlowState `json:"flow_state"`
		FlowVersion   int       `json:"flow_version"`
		FlowUpdatedAt time.Time `json:"flow_updated_at"`

		BreakStartedAt *time.Time   `json:"break_started_at,omitempty"`
		BreakReason    *BreakReason `json:"break_reason,omitempty"`
		BreakResults   []GameResult `json:"break_results,omitempty"`

		RemoteCameraSessionID *string `json:"remote_camera_session_id,omitempty"`

		TerminationReason *TerminationReason `json:"termination_reason,omitempty"`
		TerminationNote   *string            `json:"termination_note,omitempty"`

		CreatedAt   time.Time  `json:"created_at"` // UTC
		ApprovedAt  *time.Time `json:"approved_at,omitempty"`
		StartedAt   *time.Time `json:"started_at,omitempty"`
		CompletedAt *time.Time `json:"completed_at,omitempty"`
	}

	// Part is one named phase of a session, holding ordered slots.
	Part struct {
		Kind  PartKind `json:"kind"`
		Slots []Slot   `json:"slots"`
		// BreakAfter configures a game break between this part and the next.
		BreakAfter bool `json:"break_after"`
	}

	// Slot is one problem-delivery unit. Its original result is written once;
	// redo attempts accumulate separately and never overwrite it.
	Slot struct {
		ProblemID   string       `json:"problem_id"`
		Result      *SlotResult  `json:"result,omitempty"`
		RedoResults []SlotResult `json:"redo_results,omitempty"`
	}

	SlotResult struct {
		ProblemID  string       `json:"problem_id"`
		Answer     string       `json:"answer"`
		Correct    bool         `json:"correct"`
		PartNumber int          `json:"part_number"` // 1-based
		RecordedAt time.Time    `json:"recorded_at"` // UTC
		Redo       *RedoContext `json:"redo,omitempty"`
	}

	// RedoContext identifies the slot being re-attempted and which attempt
	// number the supplementary result represents.
	RedoContext struct {
		PartIndex int `json:"part_index"`
		SlotIndex int `json:"slot_index"`
		Attempt   int `json:"attempt"`
	}

	// GameResult is a break interlude outcome awaiting the student's ack.
	GameResult struct {
		Game  string `json:"game"`
		Score int    `json:"score"`
	}
)

// CurrentPart returns the active part, or nil when the pointer is out of range.
func (p *SessionPlan) CurrentPart() *Part {
	if p.CurrentPartIndex < 0 || p.CurrentPartIndex >= len(p.Parts) {
		return nil
	}
	return &p.Parts[p.CurrentPartIndex]
}

// CurrentSlot returns the active slot, or nil when the current part is
// exhausted or the pointers are out of range.
func (p *SessionPlan) CurrentSlot() *Slot {
	part := p.CurrentPart()
	if part == nil || p.CurrentSlotIndex < 0 || p.CurrentSlotIndex >= len(part.Slots) {
		return nil
	}
	return &part.Slots[p.CurrentSlotIndex]
}

// partsRemain reports whether parts are left beyond the current one.
func (p *SessionPlan) partsRemain() bool {
	return p.CurrentPartIndex+1 < len(p.Parts)
}

// partExhausted reports whether the slot pointer ran past the current part.
func (p *SessionPlan) partExhausted() bool {
	part := p.CurrentPart()
	return part != nil && p.CurrentSlotIndex >= len(part.Slots)
}

// enterNextPart advances the part pointer after a transition or break.
// Pointers only move forward.
func (p *SessionPlan) enterNextPart() {
	p.CurrentPartIndex++
	p.CurrentSlotIndex = 0
}

// startBreak populates the break sub-state; its fields are non-null exactly
// while the flow is in a break-related state.
func (p *SessionPlan) startBreak(now time.Time) {
	reason := BreakReasonGame
	p.BreakStartedAt = &now
	p.BreakReason = &reason
}

func (p *SessionPlan) clearBreak() {
	p.BreakStartedAt = nil
	p.BreakReason = nil
	p.BreakResults = nil
}

// complete marks both status and timestamps terminal.
func (p *SessionPlan) complete(now time.Time) {
	p.Status = StatusCompleted
	p.CompletedAt = &now
	p.clearBreak()
}

// NewSessionPlan contains information needed to create a new SessionPlan.
// Parts are generated from the player's enabled skills; problem generation
// itself is delegated to the ProblemSource.
type NewSessionPlan struct {
	PlayerID     string `json:"player_id" validate:"required,uuid4"`
	SlotsPerPart int    `json:"slots_per_part" validate:"omitempty,min=1,max=50"`
	GameBreaks   bool   `json:"game_breaks"`
}

// DefaultSlotsPerPart is used when the creation request does not set a count.
const DefaultSlotsPerPart = 10

func (np *NewSessionPlan) Validate() error {
	if np.SlotsPerPart == 0 {
		np.SlotsPerPart = DefaultSlotsPerPart
	}
	return core.Validate.Struct(np)
}

// Action payloads. Each session action has its own payload struct so illegal
// field combinations are unrepresentable; the API layer decodes the right one
// from the action discriminator.

type SlotResultInput struct {
	ProblemID string `json:"problem_id" validate:"required"`
	Answer    string `json:"answer" validate:"required"`
	Correct   bool   `json:"correct"`
}

func (in SlotResultInput) Validate() error { return core.Validate.Struct(in) }

type RedoContextInput struct {
	PartIndex int `json:"part_index" validate:"min=0"`
	SlotIndex int `json:"slot_index" validate:"min=0"`
	Attempt   int `json:"attempt" validate:"required,min=1"`
}

type RecordRedoPayload struct {
	Result      SlotResultInput  `json:"result" validate:"required"`
	RedoContext RedoContextInput `json:"redo_context" validate:"required"`
}

func (in RecordRedoPayload) Validate() error { return core.Validate.Struct(in) }

type EndEarlyPayload struct {
	Note string `json:"note" validate:"omitempty,max=255"`
}

func (in *EndEarlyPayload) Validate() error {
	in.Note = core.CleanString(in.Note)
	return core.Validate.Struct(in)
}

type BreakFinishedPayload struct {
	Reason  BreakReason  `json:"reason" validate:"required,oneof=timeout gameFinished skipped"`
	Results []GameResult `json:"results" validate:"omitempty,dive"`
}

func (in BreakFinishedPayload) Validate() error { return core.Validate.Struct(in) }

type SetRemoteCameraPayload struct {
	SessionID *string `json:"session_id" validate:"omitempty,uuid4"`
}

func (in SetRemoteCameraPayload) Validate() error { return core.Validate.Struct(in) }

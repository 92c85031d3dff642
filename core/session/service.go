package session

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sorobanclub/backend/core"
	"github.com/sorobanclub/backend/core/user"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound         = errors.New("session plan not found")
	ErrPermissionDenied = errors.New("permission denied")
)

// staleSessionTimeout is how long an untouched active plan blocks the creation
// of a new one. Past it the stale plan is auto-abandoned.
const staleSessionTimeout = 24 * time.Hour

// Action is the orchestration operation vocabulary, used for authorization.
type Action string

const (
	ActionCreate                 Action = "create"
	ActionObserve                Action = "observe"
	ActionApprove                Action = "approve"
	ActionStart                  Action = "start"
	ActionRecord                 Action = "record"
	ActionRecordRedo             Action = "record_redo"
	ActionEndEarly               Action = "end_early"
	ActionAbandon                Action = "abandon"
	ActionPartTransitionComplete Action = "part_transition_complete"
	ActionBreakFinished          Action = "break_finished"
	ActionBreakResultsAcked      Action = "break_results_acked"
	ActionSetRemoteCamera        Action = "set_remote_camera"
)

// Channel addresses a realtime observer audience.
type Channel string

func PlayerChannel(playerID string) Channel   { return Channel("player:" + playerID) }
func ClassroomChannel(classID string) Channel { return Channel("classroom:" + classID) }

// Realtime event names.
const (
	SessionStartedEvent = "session:started"
	SessionEndedEvent   = "session:ended"
)

// SessionEvent is the payload broadcast on observer channels.
type SessionEvent struct {
	PlanID   string `json:"plan_id"`
	PlayerID string `json:"player_id"`
	Reason   string `json:"reason,omitempty"`
}

type (
	// Repository is the durable SessionPlan store. SavePlan is a conditional
	// write: it sets FlowVersion = expectedFlowVersion + 1 and persists only
	// if the stored version still equals expectedFlowVersion, failing with
	// *StaleFlowVersionError otherwise. This compare-and-swap is the sole
	// concurrency-control mechanism; there are no locks.
	Repository interface {
		// CreatePlan fails with *ActiveSessionExistsError when the player
		// already has a non-terminal plan.
		CreatePlan(ctx context.Context, plan SessionPlan) (SessionPlan, error)
		GetPlan(ctx context.Context, id string) (SessionPlan, error)
		// GetActivePlan returns the single non-terminal plan for a player;
		// ErrNotFound when there is none.
		GetActivePlan(ctx context.Context, playerID string) (SessionPlan, error)
		SavePlan(ctx context.Context, plan SessionPlan, expectedFlowVersion int) (SessionPlan, error)
		// ApprovePlan flips draft -> approved; plan status is not flow state,
		// so the flow version is left untouched.
		ApprovePlan(ctx context.Context, id string, at time.Time) (SessionPlan, error)
		// SetRemoteCamera updates the observation-session pointer without
		// touching flow state or version.
		SetRemoteCamera(ctx context.Context, id string, sessionID *string) (SessionPlan, error)
	}

	// Player is the student view the flow engine needs; profile management
	// itself lives elsewhere.
	Player struct {
		ID            string
		Name          string
		EnabledSkills []string
		ClassroomID   *string
		ParentName    string
		ParentEmail   string
	}

	PlayerDirectory interface {
		GetPlayer(ctx context.Context, id string) (Player, error)
		CanPerformAction(ctx context.Context, actor user.User, playerID string, action Action) (bool, error)
	}

	// ClassroomPresence reports where a student is currently checked in.
	ClassroomPresence struct {
		ClassroomID string `json:"classroom_id"`
	}

	// PresenceService looks up live classroom presence from the external
	// presence system. A nil result means the student is not present anywhere.
	PresenceService interface {
		GetStudentPresence(ctx context.Context, playerID string) (*ClassroomPresence, error)
	}

	// Emitter broadcasts realtime events to observer channels. Emission is
	// best-effort and must never fail the underlying state transition.
	Emitter interface {
		Emit(event string, payload interface{}, channels ...Channel)
	}

	// ProblemSource generates the slots of a part. Problem selection
	// algorithms are an adjacent subsystem; the flow engine only consumes
	// opaque problem refs.
	ProblemSource interface {
		GenerateSlots(ctx context.Context, kind PartKind, count int) ([]Slot, error)
	}

	Service interface {
		Create(ctx context.Context, actor user.User, np NewSessionPlan) (SessionPlan, error)
		Get(ctx context.Context, actor user.User, planID string) (SessionPlan, error)
		GetActive(ctx context.Context, actor user.User, playerID string) (SessionPlan, error)
		Approve(ctx context.Context, actor user.User, planID string) (SessionPlan, error)
		Start(ctx context.Context, actor user.User, planID string, expectedVersion *int) (SessionPlan, error)
		Record(ctx context.Context, actor user.User, planID string, expectedVersion *int, res SlotResultInput) (SessionPlan, error)
		RecordRedo(ctx context.Context, actor user.User, planID string, expectedVersion *int, p RecordRedoPayload) (SessionPlan, error)
		EndEarly(ctx context.Context, actor user.User, planID string, expectedVersion *int, p EndEarlyPayload) (SessionPlan, error)
		Abandon(ctx context.Context, actor user.User, planID string, expectedVersion *int) (SessionPlan, error)
		CompletePartTransition(ctx context.Context, actor user.User, planID string, expectedVersion *int) (SessionPlan, error)
		FinishBreak(ctx context.Context, actor user.User, planID string, expectedVersion *int, p BreakFinishedPayload) (SessionPlan, error)
		AckBreakResults(ctx context.Context, actor user.User, planID string, expectedVersion *int) (SessionPlan, error)
		SetRemoteCamera(ctx context.Context, actor user.User, planID string, p SetRemoteCameraPayload) (SessionPlan, error)
	}

	service struct {
		repo     Repository
		players  PlayerDirectory
		presence PresenceService
		emitter  Emitter
		problems ProblemSource
		mailSvc  core.EmailService
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	players PlayerDirectory,
	presence PresenceService,
	emitter Emitter,
	problems ProblemSource,
	mailSvc core.EmailService,
	logger core.Logger,
) Service {
	return &service{
		repo:     repo,
		players:  players,
		presence: presence,
		emitter:  emitter,
		problems: problems,
		mailSvc:  mailSvc,
		logger:   logger,
	}
}

func (svc *service) authorize(ctx context.Context, actor user.User, playerID string, action Action) error {
	ok, err := svc.players.CanPerformAction(ctx, actor, playerID, action)
	if err != nil {
		return errors.Wrap(err, "checking permissions")
	}
	if !ok {
		return ErrPermissionDenied
	}
	return nil
}

// load fetches the plan and authorizes the actor against its player before
// anything else happens; neither the state machine nor the store is touched
// for an unauthorized caller.
func (svc *service) load(ctx context.Context, actor user.User, planID string, action Action) (SessionPlan, error) {
	plan, err := svc.repo.GetPlan(ctx, planID)
	if err != nil {
		return SessionPlan{}, err
	}
	if err := svc.authorize(ctx, actor, plan.PlayerID, action); err != nil {
		return SessionPlan{}, err
	}
	return plan, nil
}

// expectedOrCurrent resolves the caller's optimistic-concurrency token; a
// caller that sent none races on the version it just loaded.
func expectedOrCurrent(plan SessionPlan, expected *int) int {
	if expected != nil {
		return *expected
	}
	return plan.FlowVersion
}

func (svc *service) save(ctx context.Context, plan SessionPlan, expectedVersion int) (SessionPlan, error) {
	plan.FlowUpdatedAt = NowFunc().UTC()
	return svc.repo.SavePlan(ctx, plan, expectedVersion)
}

func (svc *service) Create(ctx context.Context, actor user.User, np NewSessionPlan) (SessionPlan, error) {
	if err := svc.authorize(ctx, actor, np.PlayerID, ActionCreate); err != nil {
		return SessionPlan{}, err
	}
	if np.SlotsPerPart <= 0 {
		np.SlotsPerPart = DefaultSlotsPerPart
	}

	player, err := svc.players.GetPlayer(ctx, np.PlayerID)
	if err != nil {
		return SessionPlan{}, errors.Wrap(err, "finding player")
	}
	if len(player.EnabledSkills) == 0 {
		return SessionPlan{}, &NoSkillsEnabledError{PlayerID: np.PlayerID}
	}

	now := NowFunc().UTC()

	// a fresh active plan blocks creation; a stale one is abandoned first
	if existing, err := svc.repo.GetActivePlan(ctx, np.PlayerID); err == nil {
		if now.Sub(existing.FlowUpdatedAt) < staleSessionTimeout {
			return SessionPlan{}, &ActiveSessionExistsError{Existing: existing}
		}
		if _, err := svc.abandonPlan(ctx, existing, existing.FlowVersion); err != nil {
			return SessionPlan{}, errors.Wrap(err, "abandoning stale plan")
		}
	} else if errors.Cause(err) != ErrNotFound {
		return SessionPlan{}, errors.Wrap(err, "checking active plan")
	}

	parts, err := svc.generateParts(ctx, player, np)
	if err != nil {
		return SessionPlan{}, err
	}

	plan := SessionPlan{
		ID:            uuid.New().String(),
		PlayerID:      np.PlayerID,
		Status:        StatusDraft,
		Parts:         parts,
		FlowState:     FlowNotStarted,
		FlowVersion:   0,
		FlowUpdatedAt: now,
		CreatedAt:     now,
	}
	return svc.repo.CreatePlan(ctx, plan)
}

func (svc *service) generateParts(ctx context.Context, player Player, np NewSessionPlan) ([]Part, error) {
	enabled := make(map[string]bool, len(player.EnabledSkills))
	for _, skill := range player.EnabledSkills {
		enabled[skill] = true
	}

	var parts []Part
	for _, kind := range PartOrder {
		if !enabled[string(kind)] {
			continue
		}
		slots, err := svc.problems.GenerateSlots(ctx, kind, np.SlotsPerPart)
		if err != nil {
			return nil, errors.Wrapf(err, "generating %s slots", kind)
		}
		parts = append(parts, Part{Kind: kind, Slots: slots})
	}
	if len(parts) == 0 {
		return nil, &NoSkillsEnabledError{PlayerID: np.PlayerID}
	}
	if np.GameBreaks {
		// breaks sit between parts, never after the last one
		for i := range parts[:len(parts)-1] {
			parts[i].BreakAfter = true
		}
	}
	return parts, nil
}

func (svc *service) Get(ctx context.Context, actor user.User, planID string) (SessionPlan, error) {
	return svc.load(ctx, actor, planID, ActionObserve)
}

func (svc *service) GetActive(ctx context.Context, actor user.User, playerID string) (SessionPlan, error) {
	if err := svc.authorize(ctx, actor, playerID, ActionObserve); err != nil {
		return SessionPlan{}, err
	}
	return svc.repo.GetActivePlan(ctx, playerID)
}

func (svc *service) Approve(ctx context.Context, actor user.User, planID string) (SessionPlan, error) {
	plan, err := svc.load(ctx, actor, planID, ActionApprove)
	if err != nil {
		return SessionPlan{}, err
	}
	if plan.Status != StatusDraft {
		return SessionPlan{}, core.NewValidationError(errors.Errorf("plan is %s, not awaiting approval", plan.Status))
	}
	return svc.repo.ApprovePlan(ctx, planID, NowFunc().UTC())
}

func (svc *service) Start(ctx context.Context, actor user.User, planID string, expectedVersion *int) (SessionPlan, error) {
	plan, err := svc.load(ctx, actor, planID, ActionStart)
	if err != nil {
		return SessionPlan{}, err
	}
	if plan.Status == StatusDraft {
		return SessionPlan{}, core.NewValidationError(errors.New("plan has not been approved"))
	}

	next, err := nextFlowState(plan.FlowState, flowEvent{Type: EventStart})
	if err != nil {
		return SessionPlan{}, err
	}

	now := NowFunc().UTC()
	plan.FlowState = next
	plan.Status = StatusInProgress
	plan.StartedAt = &now

	saved, err := svc.save(ctx, plan, expectedOrCurrent(plan, expectedVersion))
	if err != nil {
		return SessionPlan{}, err
	}

	// observational side effects; never awaited for correctness
	go svc.notifyStarted(saved)

	return saved, nil
}

func (svc *service) Record(ctx context.Context, actor user.User, planID string, expectedVersion *int, res SlotResultInput) (SessionPlan, error) {
	plan, err := svc.load(ctx, actor, planID, ActionRecord)
	if err != nil {
		return SessionPlan{}, err
	}
	if plan.Status != StatusInProgress || plan.FlowState != FlowInPart {
		return SessionPlan{}, &InvalidFlowTransitionError{State: plan.FlowState, EventType: EventRecord}
	}

	slot := plan.CurrentSlot()
	if slot == nil {
		return SessionPlan{}, &InvalidFlowTransitionError{State: plan.FlowState, EventType: EventRecord}
	}
	if res.ProblemID != slot.ProblemID {
		return SessionPlan{}, core.NewValidationError(nil,
			core.FieldError{Field: "problem_id", Error: "result does not match the current slot"})
	}

	now := NowFunc().UTC()
	slot.Result = &SlotResult{
		ProblemID:  res.ProblemID,
		Answer:     res.Answer,
		Correct:    res.Correct,
		PartNumber: plan.CurrentPartIndex + 1,
		RecordedAt: now,
	}
	plan.CurrentSlotIndex++

	if plan.partExhausted() {
		if err := svc.finishPart(&plan, now); err != nil {
			return SessionPlan{}, err
		}
	}

	saved, err := svc.save(ctx, plan, expectedOrCurrent(plan, expectedVersion))
	if err != nil {
		return SessionPlan{}, err
	}
	if saved.Status == StatusCompleted {
		go svc.notifyEnded(saved, "completed")
	}
	return saved, nil
}

// finishPart applies the automatic flow events fired when the slot pointer
// runs past the current part: a configured game break, a part transition
// awaiting the client's ack, or completion when no parts remain.
func (svc *service) finishPart(plan *SessionPlan, now time.Time) error {
	part := plan.CurrentPart()
	next, err := nextFlowState(plan.FlowState, flowEvent{
		Type:            EventPartDone,
		PartsRemain:     plan.partsRemain(),
		BreakConfigured: part.BreakAfter,
	})
	if err != nil {
		return err
	}
	plan.FlowState = next

	switch next {
	case FlowOnBreak:
		plan.startBreak(now)
	case FlowPartTransitioning:
		if !plan.partsRemain() {
			// no client ack to wait for; complete immediately
			next, err = nextFlowState(plan.FlowState, flowEvent{Type: EventPartTransitionComplete})
			if err != nil {
				return err
			}
			plan.FlowState = next
			plan.complete(now)
		}
	}
	return nil
}

func (svc *service) RecordRedo(ctx context.Context, actor user.User, planID string, expectedVersion *int, p RecordRedoPayload) (SessionPlan, error) {
	plan, err := svc.load(ctx, actor, planID, ActionRecordRedo)
	if err != nil {
		return SessionPlan{}, err
	}
	if plan.Status != StatusInProgress || plan.FlowState != FlowInPart {
		return SessionPlan{}, &InvalidFlowTransitionError{State: plan.FlowState, EventType: EventRecordRedo}
	}

	redo := p.RedoContext
	slot, err := redoTarget(plan, redo)
	if err != nil {
		return SessionPlan{}, err
	}
	if p.Result.ProblemID != slot.ProblemID {
		return SessionPlan{}, core.NewValidationError(nil,
			core.FieldError{Field: "problem_id", Error: "result does not match the redo slot"})
	}
	if redo.Attempt != len(slot.RedoResults)+1 {
		return SessionPlan{}, core.NewValidationError(nil,
			core.FieldError{Field: "attempt", Error: "attempt number out of sequence"})
	}

	// a redo never touches the original result or the progress pointers
	slot.RedoResults = append(slot.RedoResults, SlotResult{
		ProblemID:  p.Result.ProblemID,
		Answer:     p.Result.Answer,
		Correct:    p.Result.Correct,
		PartNumber: redo.PartIndex + 1,
		RecordedAt: NowFunc().UTC(),
		Redo:       &RedoContext{PartIndex: redo.PartIndex, SlotIndex: redo.SlotIndex, Attempt: redo.Attempt},
	})

	return svc.save(ctx, plan, expectedOrCurrent(plan, expectedVersion))
}

// redoTarget resolves an eligible redo slot: strictly behind the current
// pointer and already holding an original result.
func redoTarget(plan SessionPlan, redo RedoContextInput) (*Slot, error) {
	if redo.PartIndex >= len(plan.Parts) {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "part_index", Error: "no such part"})
	}
	part := &plan.Parts[redo.PartIndex]
	if redo.SlotIndex >= len(part.Slots) {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "slot_index", Error: "no such slot"})
	}
	behind := redo.PartIndex < plan.CurrentPartIndex ||
		(redo.PartIndex == plan.CurrentPartIndex && redo.SlotIndex < plan.CurrentSlotIndex)
	if !behind {
		return nil, core.NewValidationError(nil,
			core.FieldError{Field: "redo_context", Error: "only slots behind the current position can be redone"})
	}
	slot := &part.Slots[redo.SlotIndex]
	if slot.Result == nil {
		return nil, core.NewValidationError(nil,
			core.FieldError{Field: "redo_context", Error: "slot has no original result to redo"})
	}
	return slot, nil
}

func (svc *service) EndEarly(ctx context.Context, actor user.User, planID string, expectedVersion *int, p EndEarlyPayload) (SessionPlan, error) {
	plan, err := svc.load(ctx, actor, planID, ActionEndEarly)
	if err != nil {
		return SessionPlan{}, err
	}

	next, err := nextFlowState(plan.FlowState, flowEvent{Type: EventEndEarly})
	if err != nil {
		return SessionPlan{}, err
	}

	now := NowFunc().UTC()
	reason := TerminationEndedEarly
	plan.FlowState = next
	plan.TerminationReason = &reason
	if p.Note != "" {
		plan.TerminationNote = &p.Note
	}
	plan.complete(now)

	saved, err := svc.save(ctx, plan, expectedOrCurrent(plan, expectedVersion))
	if err != nil {
		return SessionPlan{}, err
	}
	go svc.notifyEnded(saved, string(TerminationEndedEarly))
	return saved, nil
}

func (svc *service) Abandon(ctx context.Context, actor user.User, planID string, expectedVersion *int) (SessionPlan, error) {
	plan, err := svc.load(ctx, actor, planID, ActionAbandon)
	if err != nil {
		return SessionPlan{}, err
	}
	saved, err := svc.abandonPlan(ctx, plan, expectedOrCurrent(plan, expectedVersion))
	if err != nil {
		return SessionPlan{}, err
	}
	go svc.notifyEnded(saved, string(TerminationAbandoned))
	return saved, nil
}

func (svc *service) abandonPlan(ctx context.Context, plan SessionPlan, expectedVersion int) (SessionPlan, error) {
	next, err := nextFlowState(plan.FlowState, flowEvent{Type: EventAbandon})
	if err != nil {
		return SessionPlan{}, err
	}
	reason := TerminationAbandoned
	plan.FlowState = next
	plan.Status = StatusAbandoned
	plan.TerminationReason = &reason
	plan.clearBreak()
	return svc.save(ctx, plan, expectedVersion)
}

func (svc *service) CompletePartTransition(ctx context.Context, actor user.User, planID string, expectedVersion *int) (SessionPlan, error) {
	plan, err := svc.load(ctx, actor, planID, ActionPartTransitionComplete)
	if err != nil {
		return SessionPlan{}, err
	}

	next, err := nextFlowState(plan.FlowState, flowEvent{
		Type:        EventPartTransitionComplete,
		PartsRemain: plan.partsRemain(),
	})
	if err != nil {
		return SessionPlan{}, err
	}

	now := NowFunc().UTC()
	plan.FlowState = next
	if next == FlowInPart {
		plan.enterNextPart()
	} else {
		plan.complete(now)
	}

	saved, err := svc.save(ctx, plan, expectedOrCurrent(plan, expectedVersion))
	if err != nil {
		return SessionPlan{}, err
	}
	if saved.Status == StatusCompleted {
		go svc.notifyEnded(saved, "completed")
	}
	return saved, nil
}

func (svc *service) FinishBreak(ctx context.Context, actor user.User, planID string, expectedVersion *int, p BreakFinishedPayload) (SessionPlan, error) {
	plan, err := svc.load(ctx, actor, planID, ActionBreakFinished)
	if err != nil {
		return SessionPlan{}, err
	}

	next, err := nextFlowState(plan.FlowState, flowEvent{
		Type:        EventBreakFinished,
		PartsRemain: plan.partsRemain(),
		HasResults:  len(p.Results) > 0,
	})
	if err != nil {
		return SessionPlan{}, err
	}

	now := NowFunc().UTC()
	plan.FlowState = next
	switch next {
	case FlowBreakResultsPending:
		reason := p.Reason
		plan.BreakReason = &reason
		plan.BreakResults = p.Results
	case FlowInPart:
		plan.clearBreak()
		plan.enterNextPart()
	case FlowCompleted:
		plan.complete(now)
	}

	saved, err := svc.save(ctx, plan, expectedOrCurrent(plan, expectedVersion))
	if err != nil {
		return SessionPlan{}, err
	}
	if saved.Status == StatusCompleted {
		go svc.notifyEnded(saved, "completed")
	}
	return saved, nil
}

func (svc *service) AckBreakResults(ctx context.Context, actor user.User, planID string, expectedVersion *int) (SessionPlan, error) {
	plan, err := svc.load(ctx, actor, planID, ActionBreakResultsAcked)
	if err != nil {
		return SessionPlan{}, err
	}

	next, err := nextFlowState(plan.FlowState, flowEvent{
		Type:        EventBreakResultsAcked,
		PartsRemain: plan.partsRemain(),
	})
	if err != nil {
		return SessionPlan{}, err
	}

	now := NowFunc().UTC()
	plan.FlowState = next
	plan.clearBreak()
	if next == FlowInPart {
		plan.enterNextPart()
	} else {
		plan.complete(now)
	}

	saved, err := svc.save(ctx, plan, expectedOrCurrent(plan, expectedVersion))
	if err != nil {
		return SessionPlan{}, err
	}
	if saved.Status == StatusCompleted {
		go svc.notifyEnded(saved, "completed")
	}
	return saved, nil
}

func (svc *service) SetRemoteCamera(ctx context.Context, actor user.User, planID string, p SetRemoteCameraPayload) (SessionPlan, error) {
	plan, err := svc.load(ctx, actor, planID, ActionSetRemoteCamera)
	if err != nil {
		return SessionPlan{}, err
	}
	if plan.Status.Terminal() {
		return SessionPlan{}, &InvalidFlowTransitionError{State: plan.FlowState, EventType: EventType(ActionSetRemoteCamera)}
	}
	return svc.repo.SetRemoteCamera(ctx, plan.ID, p.SessionID)
}

// notifyStarted broadcasts session:started and dispatches the parent
// notification email. Failures are logged and swallowed: the persisted state
// transition is the source of truth and notification is purely observational.
func (svc *service) notifyStarted(plan SessionPlan) {
	defer svc.recoverNotify(plan)

	payload := SessionEvent{PlanID: plan.ID, PlayerID: plan.PlayerID}
	channels := svc.observerChannels(plan)
	svc.emitter.Emit(SessionStartedEvent, payload, channels...)

	player, err := svc.players.GetPlayer(context.Background(), plan.PlayerID)
	if err != nil {
		svc.logger.Warn("session: player lookup for start notification failed", err)
		return
	}
	if player.ParentEmail == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: player.ParentName, Address: player.ParentEmail}},
		Subject:      "Practice session started",
		TemplateName: "session-started",
		TemplateData: struct {
			PlayerName string
			PlanID     string
		}{player.Name, plan.ID},
	})
}

func (svc *service) notifyEnded(plan SessionPlan, reason string) {
	defer svc.recoverNotify(plan)

	payload := SessionEvent{PlanID: plan.ID, PlayerID: plan.PlayerID, Reason: reason}
	svc.emitter.Emit(SessionEndedEvent, payload, svc.observerChannels(plan)...)
}

// observerChannels targets the player's parent-observer channel always, and
// the classroom channel only when the student is currently marked present.
func (svc *service) observerChannels(plan SessionPlan) []Channel {
	channels := []Channel{PlayerChannel(plan.PlayerID)}

	ctx, cancel := context.WithTimeout(context.Background(), core.Conf.Presence.Timeout)
	defer cancel()
	presence, err := svc.presence.GetStudentPresence(ctx, plan.PlayerID)
	if err != nil {
		svc.logger.Warn("session: presence lookup failed", err)
		return channels
	}
	if presence != nil {
		channels = append(channels, ClassroomChannel(presence.ClassroomID))
	}
	return channels
}

func (svc *service) recoverNotify(plan SessionPlan) {
	if r := recover(); r != nil {
		svc.logger.Error("session: notification dispatch panicked", r, plan.ID)
	}
}

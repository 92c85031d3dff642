package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/sorobanclub/backend/core"
	"github.com/sorobanclub/backend/core/user"
)

const testPlayerID = "5b1f3a0e-7c34-4b43-9a36-2f6a4f3f6a10"

var testAdmin = user.User{ID: "d1e2f3a4-0000-4000-8000-000000000001", Roles: []string{user.RoleAdmin}}

// memRepo is an in-memory Repository with real compare-and-swap semantics.
// Plans round-trip through JSON so callers never share backing arrays with the
// store, matching what a JSONB-backed repository does.
type memRepo struct {
	mu    sync.Mutex
	plans map[string]SessionPlan
}

func newMemRepo() *memRepo { return &memRepo{plans: make(map[string]SessionPlan)} }

func clonePlan(p SessionPlan) SessionPlan {
	b, err := json.Marshal(p)
	if err != nil {
		panic(err)
	}
	var out SessionPlan
	if err = json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return out
}

func (r *memRepo) CreatePlan(_ context.Context, plan SessionPlan) (SessionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.plans {
		if p.PlayerID == plan.PlayerID && !p.Status.Terminal() {
			return SessionPlan{}, &ActiveSessionExistsError{Existing: clonePlan(p)}
		}
	}
	r.plans[plan.ID] = clonePlan(plan)
	return plan, nil
}

func (r *memRepo) GetPlan(_ context.Context, id string) (SessionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	if !ok {
		return SessionPlan{}, ErrNotFound
	}
	return clonePlan(p), nil
}

func (r *memRepo) GetActivePlan(_ context.Context, playerID string) (SessionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.plans {
		if p.PlayerID == playerID && !p.Status.Terminal() {
			return clonePlan(p), nil
		}
	}
	return SessionPlan{}, ErrNotFound
}

func (r *memRepo) SavePlan(_ context.Context, plan SessionPlan, expectedFlowVersion int) (SessionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.plans[plan.ID]
	if !ok {
		return SessionPlan{}, ErrNotFound
	}
	if stored.FlowVersion != expectedFlowVersion {
		return SessionPlan{}, &StaleFlowVersionError{
			ExpectedFlowVersion: expectedFlowVersion,
			ActualFlowVersion:   stored.FlowVersion,
		}
	}
	plan.FlowVersion = expectedFlowVersion + 1
	r.plans[plan.ID] = clonePlan(plan)
	return plan, nil
}

func (r *memRepo) ApprovePlan(_ context.Context, id string, at time.Time) (SessionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	if !ok {
		return SessionPlan{}, ErrNotFound
	}
	p.Status = StatusApproved
	p.ApprovedAt = &at
	r.plans[id] = p
	return clonePlan(p), nil
}

func (r *memRepo) SetRemoteCamera(_ context.Context, id string, sessionID *string) (SessionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	if !ok {
		return SessionPlan{}, ErrNotFound
	}
	p.RemoteCameraSessionID = sessionID
	r.plans[id] = p
	return clonePlan(p), nil
}

type stubDirectory struct {
	player Player
	denied map[Action]bool
}

func (d *stubDirectory) GetPlayer(_ context.Context, id string) (Player, error) {
	if id != d.player.ID {
		return Player{}, ErrNotFound
	}
	return d.player, nil
}

func (d *stubDirectory) CanPerformAction(_ context.Context, _ user.User, _ string, action Action) (bool, error) {
	return !d.denied[action], nil
}

type chanEmitter struct{ events chan string }

func newChanEmitter() *chanEmitter { return &chanEmitter{events: make(chan string, 16)} }

func (e *chanEmitter) Emit(event string, _ interface{}, _ ...Channel) {
	select {
	case e.events <- event:
	default:
	}
}

func (e *chanEmitter) expect(t *testing.T, event string) {
	t.Helper()
	select {
	case got := <-e.events:
		if got != event {
			t.Errorf("emitted %q, want %q", got, event)
		}
	case <-time.After(2 * time.Second):
		t.Errorf("event %q was never emitted", event)
	}
}

type stubPresence struct{}

func (stubPresence) GetStudentPresence(context.Context, string) (*ClassroomPresence, error) {
	return nil, nil
}

type stubProblems struct{}

func (stubProblems) GenerateSlots(_ context.Context, kind PartKind, count int) ([]Slot, error) {
	slots := make([]Slot, count)
	for i := range slots {
		slots[i].ProblemID = fmt.Sprintf("%s-%d", kind, i+1)
	}
	return slots, nil
}

type nopMail struct{}

func (nopMail) SendMessages(...*core.EmailMessage) {}

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func newTestService() (Service, *memRepo, *stubDirectory, *chanEmitter) {
	repo := newMemRepo()
	dir := &stubDirectory{player: Player{
		ID:            testPlayerID,
		Name:          "Ada",
		EnabledSkills: []string{"abacus", "visualization"},
		ParentName:    "Grace",
		ParentEmail:   "grace@test.test",
	}}
	emitter := newChanEmitter()
	svc := NewService(repo, dir, stubPresence{}, emitter, stubProblems{}, nopMail{}, nopLogger{})
	return svc, repo, dir, emitter
}

// startedPlan creates, approves and starts a 2x2 plan with game breaks.
func startedPlan(t *testing.T, svc Service) SessionPlan {
	t.Helper()
	ctx := context.Background()
	plan, err := svc.Create(ctx, testAdmin, NewSessionPlan{PlayerID: testPlayerID, SlotsPerPart: 2, GameBreaks: true})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if _, err = svc.Approve(ctx, testAdmin, plan.ID); err != nil {
		t.Fatalf("Approve() failed: %v", err)
	}
	plan, err = svc.Start(ctx, testAdmin, plan.ID, nil)
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	return plan
}

func TestServiceCreate(t *testing.T) {
	ctx := context.Background()
	svc, _, dir, _ := newTestService()

	plan, err := svc.Create(ctx, testAdmin, NewSessionPlan{PlayerID: testPlayerID, SlotsPerPart: 3, GameBreaks: true})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if plan.Status != StatusDraft || plan.FlowState != FlowNotStarted || plan.FlowVersion != 0 {
		t.Errorf("new plan = (%s, %s, v%d), want (draft, notStarted, v0)", plan.Status, plan.FlowState, plan.FlowVersion)
	}
	if len(plan.Parts) != 2 {
		t.Fatalf("got %d parts, want 2 (one per enabled skill)", len(plan.Parts))
	}
	if plan.Parts[0].Kind != PartAbacus || plan.Parts[1].Kind != PartVisualization {
		t.Errorf("part kinds = (%s, %s), want canonical skill order", plan.Parts[0].Kind, plan.Parts[1].Kind)
	}
	if len(plan.Parts[0].Slots) != 3 {
		t.Errorf("got %d slots, want 3", len(plan.Parts[0].Slots))
	}
	if !plan.Parts[0].BreakAfter || plan.Parts[1].BreakAfter {
		t.Errorf("breaks configured as (%t, %t), want one between the parts only",
			plan.Parts[0].BreakAfter, plan.Parts[1].BreakAfter)
	}

	// a second creation must surface the existing active plan
	_, err = svc.Create(ctx, testAdmin, NewSessionPlan{PlayerID: testPlayerID, SlotsPerPart: 3})
	var activeErr *ActiveSessionExistsError
	if !errors.As(err, &activeErr) {
		t.Fatalf("Create() error = %v, want *ActiveSessionExistsError", err)
	}
	if activeErr.Existing.ID != plan.ID {
		t.Errorf("error carries plan %s, want %s", activeErr.Existing.ID, plan.ID)
	}

	// no skills -> no plan
	dir.player.EnabledSkills = nil
	_, err = svc.Create(ctx, testAdmin, NewSessionPlan{PlayerID: testPlayerID})
	var skillsErr *NoSkillsEnabledError
	if !errors.As(err, &skillsErr) {
		t.Fatalf("Create() error = %v, want *NoSkillsEnabledError", err)
	}
}

func TestServiceCreateAbandonsStalePlan(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, _ := newTestService()

	stale, err := svc.Create(ctx, testAdmin, NewSessionPlan{PlayerID: testPlayerID})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	NowFunc = func() time.Time { return time.Now().Add(staleSessionTimeout + time.Hour) }
	defer func() { NowFunc = time.Now }()

	fresh, err := svc.Create(ctx, testAdmin, NewSessionPlan{PlayerID: testPlayerID})
	if err != nil {
		t.Fatalf("Create() after timeout failed: %v", err)
	}
	if fresh.ID == stale.ID {
		t.Fatal("Create() returned the stale plan instead of a new one")
	}

	old, err := repo.GetPlan(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetPlan() failed: %v", err)
	}
	if old.Status != StatusAbandoned || old.FlowState != FlowAbandoned {
		t.Errorf("stale plan = (%s, %s), want (abandoned, abandoned)", old.Status, old.FlowState)
	}
	if old.TerminationReason == nil || *old.TerminationReason != TerminationAbandoned {
		t.Errorf("stale plan termination reason = %v, want abandoned", old.TerminationReason)
	}
}

func TestServiceApprove(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService()

	plan, err := svc.Create(ctx, testAdmin, NewSessionPlan{PlayerID: testPlayerID})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	approved, err := svc.Approve(ctx, testAdmin, plan.ID)
	if err != nil {
		t.Fatalf("Approve() failed: %v", err)
	}
	if approved.Status != StatusApproved || approved.ApprovedAt == nil {
		t.Errorf("approved plan = (%s, %v)", approved.Status, approved.ApprovedAt)
	}
	// approval is not a flow transition
	if approved.FlowVersion != 0 {
		t.Errorf("approval bumped flow version to %d", approved.FlowVersion)
	}

	if _, err = svc.Approve(ctx, testAdmin, plan.ID); err == nil {
		t.Error("Approve() accepted a non-draft plan")
	}
}

func TestServiceStart(t *testing.T) {
	ctx := context.Background()
	svc, _, _, emitter := newTestService()

	plan, err := svc.Create(ctx, testAdmin, NewSessionPlan{PlayerID: testPlayerID})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	// drafts cannot start
	if _, err = svc.Start(ctx, testAdmin, plan.ID, nil); err == nil {
		t.Fatal("Start() accepted an unapproved plan")
	}

	if _, err = svc.Approve(ctx, testAdmin, plan.ID); err != nil {
		t.Fatalf("Approve() failed: %v", err)
	}
	started, err := svc.Start(ctx, testAdmin, plan.ID, nil)
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if started.Status != StatusInProgress || started.FlowState != FlowInPart {
		t.Errorf("started plan = (%s, %s), want (in_progress, inPart)", started.Status, started.FlowState)
	}
	if started.FlowVersion != 1 {
		t.Errorf("flow version = %d, want 1", started.FlowVersion)
	}
	if started.StartedAt == nil {
		t.Error("StartedAt not set")
	}
	emitter.expect(t, SessionStartedEvent)

	_, err = svc.Start(ctx, testAdmin, plan.ID, nil)
	var ferr *InvalidFlowTransitionError
	if !errors.As(err, &ferr) {
		t.Fatalf("second Start() error = %v, want *InvalidFlowTransitionError", err)
	}
}

func TestServiceRecordProgression(t *testing.T) {
	ctx := context.Background()
	svc, _, _, emitter := newTestService()
	plan := startedPlan(t, svc)
	emitter.expect(t, SessionStartedEvent)

	record := func(problemID string) SessionPlan {
		t.Helper()
		p, err := svc.Record(ctx, testAdmin, plan.ID, nil, SlotResultInput{ProblemID: problemID, Answer: "42", Correct: true})
		if err != nil {
			t.Fatalf("Record(%s) failed: %v", problemID, err)
		}
		return p
	}

	// mismatched problem id is rejected before anything mutates
	if _, err := svc.Record(ctx, testAdmin, plan.ID, nil, SlotResultInput{ProblemID: "nope", Answer: "1"}); err == nil {
		t.Fatal("Record() accepted a result for the wrong slot")
	}

	p := record("abacus-1")
	if p.CurrentSlotIndex != 1 || p.FlowState != FlowInPart {
		t.Fatalf("after slot 1: slot=%d state=%s", p.CurrentSlotIndex, p.FlowState)
	}
	if got := p.Parts[0].Slots[0].Result; got == nil || got.PartNumber != 1 {
		t.Fatalf("slot 1 result not recorded: %+v", got)
	}
	if p.FlowVersion != 2 {
		t.Errorf("flow version = %d, want 2", p.FlowVersion)
	}

	// exhausting part 1 starts the configured game break
	p = record("abacus-2")
	if p.FlowState != FlowOnBreak {
		t.Fatalf("after part 1: state = %s, want onBreak", p.FlowState)
	}
	if p.BreakStartedAt == nil || p.BreakReason == nil || *p.BreakReason != BreakReasonGame {
		t.Errorf("break sub-state not populated: startedAt=%v reason=%v", p.BreakStartedAt, p.BreakReason)
	}
	if p.CurrentPartIndex != 0 {
		t.Errorf("part pointer advanced to %d during the break", p.CurrentPartIndex)
	}

	// recording during the break is an invalid transition
	_, err := svc.Record(ctx, testAdmin, plan.ID, nil, SlotResultInput{ProblemID: "visualization-1", Answer: "7"})
	var ferr *InvalidFlowTransitionError
	if !errors.As(err, &ferr) {
		t.Fatalf("Record() during break error = %v, want *InvalidFlowTransitionError", err)
	}

	// skipping the game resumes the next part directly
	p, err = svc.FinishBreak(ctx, testAdmin, plan.ID, nil, BreakFinishedPayload{Reason: BreakReasonSkipped})
	if err != nil {
		t.Fatalf("FinishBreak() failed: %v", err)
	}
	if p.FlowState != FlowInPart || p.CurrentPartIndex != 1 || p.CurrentSlotIndex != 0 {
		t.Fatalf("after break: state=%s part=%d slot=%d", p.FlowState, p.CurrentPartIndex, p.CurrentSlotIndex)
	}
	if p.BreakStartedAt != nil || p.BreakReason != nil || p.BreakResults != nil {
		t.Error("break sub-state not cleared on resume")
	}

	// the final slot of the final part completes the session without an ack
	record("visualization-1")
	p = record("visualization-2")
	if p.Status != StatusCompleted || p.FlowState != FlowCompleted {
		t.Fatalf("final plan = (%s, %s), want (completed, completed)", p.Status, p.FlowState)
	}
	if p.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	emitter.expect(t, SessionEndedEvent)

	// terminal plans reject everything
	if _, err = svc.Record(ctx, testAdmin, plan.ID, nil, SlotResultInput{ProblemID: "x", Answer: "1"}); err == nil {
		t.Error("Record() accepted a result on a completed plan")
	}
}

func TestServicePartTransition(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService()

	plan, err := svc.Create(ctx, testAdmin, NewSessionPlan{PlayerID: testPlayerID, SlotsPerPart: 1})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if _, err = svc.Approve(ctx, testAdmin, plan.ID); err != nil {
		t.Fatalf("Approve() failed: %v", err)
	}
	if _, err = svc.Start(ctx, testAdmin, plan.ID, nil); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	// no break configured: exhausting part 1 awaits the client's ack
	p, err := svc.Record(ctx, testAdmin, plan.ID, nil, SlotResultInput{ProblemID: "abacus-1", Answer: "3"})
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if p.FlowState != FlowPartTransitioning {
		t.Fatalf("state = %s, want partTransitioning", p.FlowState)
	}

	p, err = svc.CompletePartTransition(ctx, testAdmin, plan.ID, nil)
	if err != nil {
		t.Fatalf("CompletePartTransition() failed: %v", err)
	}
	if p.FlowState != FlowInPart || p.CurrentPartIndex != 1 || p.CurrentSlotIndex != 0 {
		t.Fatalf("after ack: state=%s part=%d slot=%d", p.FlowState, p.CurrentPartIndex, p.CurrentSlotIndex)
	}

	if _, err = svc.CompletePartTransition(ctx, testAdmin, plan.ID, nil); err == nil {
		t.Error("CompletePartTransition() accepted an ack outside partTransitioning")
	}
}

func TestServiceBreakResults(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService()
	plan := startedPlan(t, svc)

	for _, id := range []string{"abacus-1", "abacus-2"} {
		if _, err := svc.Record(ctx, testAdmin, plan.ID, nil, SlotResultInput{ProblemID: id, Answer: "1"}); err != nil {
			t.Fatalf("Record(%s) failed: %v", id, err)
		}
	}

	results := []GameResult{{Game: "sprint", Score: 1200}}
	p, err := svc.FinishBreak(ctx, testAdmin, plan.ID, nil, BreakFinishedPayload{Reason: BreakReasonGameFinished, Results: results})
	if err != nil {
		t.Fatalf("FinishBreak() failed: %v", err)
	}
	if p.FlowState != FlowBreakResultsPending {
		t.Fatalf("state = %s, want breakResultsPending", p.FlowState)
	}
	if p.BreakReason == nil || *p.BreakReason != BreakReasonGameFinished {
		t.Errorf("break reason = %v, want gameFinished", p.BreakReason)
	}
	if len(p.BreakResults) != 1 || p.BreakResults[0].Score != 1200 {
		t.Errorf("break results = %+v, want the finished game", p.BreakResults)
	}

	// only the ack can leave breakResultsPending
	if _, err = svc.FinishBreak(ctx, testAdmin, plan.ID, nil, BreakFinishedPayload{Reason: BreakReasonSkipped}); err == nil {
		t.Error("FinishBreak() accepted while results were pending")
	}

	p, err = svc.AckBreakResults(ctx, testAdmin, plan.ID, nil)
	if err != nil {
		t.Fatalf("AckBreakResults() failed: %v", err)
	}
	if p.FlowState != FlowInPart || p.CurrentPartIndex != 1 {
		t.Fatalf("after ack: state=%s part=%d", p.FlowState, p.CurrentPartIndex)
	}
	if p.BreakStartedAt != nil || p.BreakReason != nil || p.BreakResults != nil {
		t.Error("break sub-state not cleared after ack")
	}
}

func TestServiceRecordRedo(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService()
	plan := startedPlan(t, svc)

	p, err := svc.Record(ctx, testAdmin, plan.ID, nil, SlotResultInput{ProblemID: "abacus-1", Answer: "9", Correct: false})
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	redo := RecordRedoPayload{
		Result:      SlotResultInput{ProblemID: "abacus-1", Answer: "10", Correct: true},
		RedoContext: RedoContextInput{PartIndex: 0, SlotIndex: 0, Attempt: 1},
	}
	p, err = svc.RecordRedo(ctx, testAdmin, plan.ID, nil, redo)
	if err != nil {
		t.Fatalf("RecordRedo() failed: %v", err)
	}

	slot := p.Parts[0].Slots[0]
	if slot.Result == nil || slot.Result.Answer != "9" || slot.Result.Correct {
		t.Errorf("original result was altered by the redo: %+v", slot.Result)
	}
	if len(slot.RedoResults) != 1 || !slot.RedoResults[0].Correct || slot.RedoResults[0].Redo == nil {
		t.Fatalf("redo result not appended: %+v", slot.RedoResults)
	}
	if p.CurrentSlotIndex != 1 || p.CurrentPartIndex != 0 {
		t.Errorf("redo moved the pointers: part=%d slot=%d", p.CurrentPartIndex, p.CurrentSlotIndex)
	}

	// out-of-sequence attempt numbers are rejected
	redo.RedoContext.Attempt = 3
	if _, err = svc.RecordRedo(ctx, testAdmin, plan.ID, nil, redo); err == nil {
		t.Error("RecordRedo() accepted an out-of-sequence attempt")
	}

	// the current slot is not redoable
	redo.RedoContext = RedoContextInput{PartIndex: 0, SlotIndex: 1, Attempt: 1}
	redo.Result.ProblemID = "abacus-2"
	if _, err = svc.RecordRedo(ctx, testAdmin, plan.ID, nil, redo); err == nil {
		t.Error("RecordRedo() accepted the slot at the current position")
	}
}

func TestServiceStaleVersion(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService()
	plan := startedPlan(t, svc)

	expected := plan.FlowVersion // 1

	if _, err := svc.Record(ctx, testAdmin, plan.ID, &expected, SlotResultInput{ProblemID: "abacus-1", Answer: "5"}); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	// a concurrent writer reusing the same token must lose
	_, err := svc.Record(ctx, testAdmin, plan.ID, &expected, SlotResultInput{ProblemID: "abacus-2", Answer: "6"})
	var stale *StaleFlowVersionError
	if !errors.As(err, &stale) {
		t.Fatalf("Record() error = %v, want *StaleFlowVersionError", err)
	}
	if stale.ExpectedFlowVersion != expected || stale.ActualFlowVersion != expected+1 {
		t.Errorf("stale error = %+v, want expected=%d actual=%d", stale, expected, expected+1)
	}

	// and the losing write must not have touched the plan
	p, err := svc.Get(ctx, testAdmin, plan.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if p.Parts[0].Slots[1].Result != nil {
		t.Error("losing write mutated the plan")
	}
}

func TestServiceEndEarly(t *testing.T) {
	ctx := context.Background()
	svc, _, _, emitter := newTestService()
	plan := startedPlan(t, svc)
	emitter.expect(t, SessionStartedEvent)

	p, err := svc.EndEarly(ctx, testAdmin, plan.ID, nil, EndEarlyPayload{Note: "student was tired"})
	if err != nil {
		t.Fatalf("EndEarly() failed: %v", err)
	}
	if p.Status != StatusCompleted || p.FlowState != FlowCompleted {
		t.Errorf("plan = (%s, %s), want (completed, completed)", p.Status, p.FlowState)
	}
	if p.TerminationReason == nil || *p.TerminationReason != TerminationEndedEarly {
		t.Errorf("termination reason = %v, want ended_early", p.TerminationReason)
	}
	if p.TerminationNote == nil || *p.TerminationNote != "student was tired" {
		t.Errorf("termination note = %v", p.TerminationNote)
	}
	emitter.expect(t, SessionEndedEvent)

	if _, err = svc.EndEarly(ctx, testAdmin, plan.ID, nil, EndEarlyPayload{}); err == nil {
		t.Error("EndEarly() accepted a terminal plan")
	}
}

func TestServiceAbandon(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService()
	plan := startedPlan(t, svc)

	p, err := svc.Abandon(ctx, testAdmin, plan.ID, nil)
	if err != nil {
		t.Fatalf("Abandon() failed: %v", err)
	}
	if p.Status != StatusAbandoned || p.FlowState != FlowAbandoned {
		t.Errorf("plan = (%s, %s), want (abandoned, abandoned)", p.Status, p.FlowState)
	}
	if p.TerminationReason == nil || *p.TerminationReason != TerminationAbandoned {
		t.Errorf("termination reason = %v, want abandoned", p.TerminationReason)
	}

	if _, err = svc.Abandon(ctx, testAdmin, plan.ID, nil); err == nil {
		t.Error("Abandon() accepted a terminal plan")
	}
}

func TestServiceSetRemoteCamera(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService()
	plan := startedPlan(t, svc)

	camID := "0e32e908-9774-4bbb-a22a-43b9657e4a7a"
	p, err := svc.SetRemoteCamera(ctx, testAdmin, plan.ID, SetRemoteCameraPayload{SessionID: &camID})
	if err != nil {
		t.Fatalf("SetRemoteCamera() failed: %v", err)
	}
	if p.RemoteCameraSessionID == nil || *p.RemoteCameraSessionID != camID {
		t.Errorf("camera session = %v, want %s", p.RemoteCameraSessionID, camID)
	}
	// the camera pointer is not flow state
	if p.FlowVersion != plan.FlowVersion {
		t.Errorf("SetRemoteCamera bumped flow version to %d", p.FlowVersion)
	}

	p, err = svc.SetRemoteCamera(ctx, testAdmin, plan.ID, SetRemoteCameraPayload{})
	if err != nil {
		t.Fatalf("SetRemoteCamera(nil) failed: %v", err)
	}
	if p.RemoteCameraSessionID != nil {
		t.Error("camera session not cleared")
	}

	if _, err = svc.Abandon(ctx, testAdmin, plan.ID, nil); err != nil {
		t.Fatalf("Abandon() failed: %v", err)
	}
	if _, err = svc.SetRemoteCamera(ctx, testAdmin, plan.ID, SetRemoteCameraPayload{SessionID: &camID}); err == nil {
		t.Error("SetRemoteCamera() accepted a terminal plan")
	}
}

func TestServicePermissionDenied(t *testing.T) {
	ctx := context.Background()
	svc, _, dir, _ := newTestService()
	plan := startedPlan(t, svc)

	dir.denied = map[Action]bool{ActionRecord: true, ActionObserve: true}

	_, err := svc.Record(ctx, testAdmin, plan.ID, nil, SlotResultInput{ProblemID: "abacus-1", Answer: "1"})
	if errors.Cause(err) != ErrPermissionDenied {
		t.Errorf("Record() error = %v, want ErrPermissionDenied", err)
	}
	_, err = svc.Get(ctx, testAdmin, plan.ID)
	if errors.Cause(err) != ErrPermissionDenied {
		t.Errorf("Get() error = %v, want ErrPermissionDenied", err)
	}
}

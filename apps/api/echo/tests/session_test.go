package tests

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	echoapi "github.com/sorobanclub/backend/apps/api/echo"
	"github.com/sorobanclub/backend/core/session"
	"github.com/sorobanclub/backend/core/student"
	"github.com/sorobanclub/backend/core/user"
	testutil "github.com/sorobanclub/backend/tests"
)

// conflictErr mirrors the error envelope returned for flow conflicts.
type conflictErr struct {
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Details json.RawMessage `json:"details"`
}

func decodePlan(t *testing.T, rec *httptest.ResponseRecorder) echoapi.PlanResponse {
	t.Helper()
	var plan echoapi.PlanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &plan); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
	return plan
}

func decodeConflict(t *testing.T, rec *httptest.ResponseRecorder, wantCode int, wantErrCode string) conflictErr {
	t.Helper()
	if rec.Code != wantCode {
		t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, wantCode, rec.Body.String())
	}
	var ce conflictErr
	if err := json.Unmarshal(rec.Body.Bytes(), &ce); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v", err)
	}
	if ce.Code != wantErrCode {
		t.Errorf("failed! error code = %q; want %q", ce.Code, wantErrCode)
	}
	return ce
}

func intPtr(v int) *int { return &v }

func newActionBody(t *testing.T, action string, version *int, payload interface{}) []byte {
	t.Helper()
	req := echoapi.ActionRequest{Action: action, ExpectedFlowVersion: version}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("json.Marshal() failed: %v", err)
		}
		req.Payload = raw
	}
	return marchallObj(t, &req)
}

func performAction(t *testing.T, app http.Handler, planID, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req, rec := newAuthRequest(http.MethodPost, "/v1/sessions/"+planID+"/actions", token, body)
	app.ServeHTTP(rec, req)
	return rec
}

func wantPlanOK(t *testing.T, rec *httptest.ResponseRecorder) echoapi.PlanResponse {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	return decodePlan(t, rec)
}

func Test_sessionApi_createSession(t *testing.T) {
	app := setup(t)

	parent := testutil.CreateUser(t, usrRepo, "Parent", "parent", "parent@test.cd", "", []string{user.RoleParent}, true)
	stranger := testutil.CreateUser(t, usrRepo, "Stranger", "stranger", "stranger@test.cd", "", []string{user.RoleParent}, true)
	stu := testutil.CreateStudent(t, stuRepo, "Kid", parent.ID, []student.Skill{student.SkillAbacus, student.SkillVisualization})
	unskilled := testutil.CreateStudent(t, stuRepo, "Newbie", parent.ID, nil)

	parentToken := getToken(t, parent)
	body := marchallObj(t, session.NewSessionPlan{PlayerID: stu.ID, SlotsPerPart: 2, GameBreaks: true})

	t.Run("Auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/sessions", body)
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("player_id required", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/sessions", parentToken, marchallObj(t, session.NewSessionPlan{}))
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"player_id": "this field is required"})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("unrelated parent forbidden", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/sessions", getToken(t, stranger), body)
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("no skills enabled", func(t *testing.T) {
		noSkills := marchallObj(t, session.NewSessionPlan{PlayerID: unskilled.ID})
		req, rec := newAuthRequest(http.MethodPost, "/v1/sessions", parentToken, noSkills)
		app.ServeHTTP(rec, req)
		decodeConflict(t, rec, http.StatusBadRequest, "NO_SKILLS_ENABLED")
	})

	t.Run("created", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/sessions", parentToken, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; want %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		plan := decodePlan(t, rec)
		if plan.Status != session.StatusDraft {
			t.Errorf("status = %v; want %v", plan.Status, session.StatusDraft)
		}
		if plan.FlowState != session.FlowNotStarted {
			t.Errorf("flow_state = %v; want %v", plan.FlowState, session.FlowNotStarted)
		}
		if plan.FlowVersion != 0 {
			t.Errorf("flow_version = %v; want 0", plan.FlowVersion)
		}
		if len(plan.Parts) != 2 {
			t.Fatalf("len(parts) = %d; want 2", len(plan.Parts))
		}
		if plan.Parts[0].Kind != session.PartAbacus || plan.Parts[1].Kind != session.PartVisualization {
			t.Errorf("part kinds = %v, %v; want abacus, visualization", plan.Parts[0].Kind, plan.Parts[1].Kind)
		}
		for i, part := range plan.Parts {
			if len(part.Slots) != 2 {
				t.Errorf("len(parts[%d].slots) = %d; want 2", i, len(part.Slots))
			}
		}
		// a break between the two parts, never after the last
		if !plan.Parts[0].BreakAfter || plan.Parts[1].BreakAfter {
			t.Errorf("break_after = %v, %v; want true, false", plan.Parts[0].BreakAfter, plan.Parts[1].BreakAfter)
		}
	})

	t.Run("active session already exists", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/sessions", parentToken, body)
		app.ServeHTTP(rec, req)
		decodeConflict(t, rec, http.StatusConflict, "ACTIVE_SESSION_EXISTS")
	})
}

func Test_sessionApi_approveAndStart(t *testing.T) {
	app := setup(t)

	parent := testutil.CreateUser(t, usrRepo, "Parent", "parent", "parent@test.cd", "", []string{user.RoleParent}, true)
	studentUsr := testutil.CreateUser(t, usrRepo, "Kid", "kid", "kid@test.cd", "", []string{user.RoleStudent}, true)
	stu := testutil.CreateStudent(t, stuRepo, "Kid", parent.ID, []student.Skill{student.SkillAbacus},
		func(s *student.Student) { s.UserID = &studentUsr.ID })

	parentToken := getToken(t, parent)
	studentToken := getToken(t, studentUsr)

	req, rec := newAuthRequest(http.MethodPost, "/v1/sessions", parentToken,
		marchallObj(t, session.NewSessionPlan{PlayerID: stu.ID, SlotsPerPart: 1}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	plan := decodePlan(t, rec)

	t.Run("start requires approval", func(t *testing.T) {
		rec := performAction(t, app, plan.ID, studentToken, newActionBody(t, "start", intPtr(0), nil))
		tt := httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "plan has not been approved"})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("student cannot approve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/sessions/"+plan.ID+"/approve", studentToken)
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("parent approves", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/sessions/"+plan.ID+"/approve", parentToken)
		app.ServeHTTP(rec, req)
		approved := wantPlanOK(t, rec)
		if approved.Status != session.StatusApproved {
			t.Errorf("status = %v; want %v", approved.Status, session.StatusApproved)
		}
		if approved.ApprovedAt == nil {
			t.Error("approved_at not set")
		}
		// approval is not a flow mutation
		if approved.FlowVersion != 0 {
			t.Errorf("flow_version = %v; want 0", approved.FlowVersion)
		}
	})

	t.Run("double approval rejected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/sessions/"+plan.ID+"/approve", parentToken)
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "plan is approved, not awaiting approval"})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("stale version rejected", func(t *testing.T) {
		rec := performAction(t, app, plan.ID, studentToken, newActionBody(t, "start", intPtr(5), nil))
		ce := decodeConflict(t, rec, http.StatusConflict, "STALE_FLOW_VERSION")
		var details struct {
			Expected int `json:"expectedFlowVersion"`
			Actual   int `json:"actualFlowVersion"`
		}
		if err := json.Unmarshal(ce.Details, &details); err != nil {
			t.Fatalf("json.Unmarshal() failed: %v", err)
		}
		if details.Expected != 5 || details.Actual != 0 {
			t.Errorf("details = %+v; want expected 5, actual 0", details)
		}
	})

	t.Run("student starts", func(t *testing.T) {
		rec := performAction(t, app, plan.ID, studentToken, newActionBody(t, "start", intPtr(0), nil))
		started := wantPlanOK(t, rec)
		if started.Status != session.StatusInProgress {
			t.Errorf("status = %v; want %v", started.Status, session.StatusInProgress)
		}
		if started.FlowState != session.FlowInPart {
			t.Errorf("flow_state = %v; want %v", started.FlowState, session.FlowInPart)
		}
		if started.FlowVersion != 1 {
			t.Errorf("flow_version = %v; want 1", started.FlowVersion)
		}
		if started.StartedAt == nil {
			t.Error("started_at not set")
		}
	})

	t.Run("double start rejected", func(t *testing.T) {
		rec := performAction(t, app, plan.ID, studentToken, newActionBody(t, "start", intPtr(1), nil))
		decodeConflict(t, rec, http.StatusConflict, "INVALID_FLOW_TRANSITION")
	})
}

func Test_sessionApi_sessionFlow(t *testing.T) {
	app := setup(t)

	parent := testutil.CreateUser(t, usrRepo, "Parent", "parent", "parent@test.cd", "", []string{user.RoleParent}, true)
	stu := testutil.CreateStudent(t, stuRepo, "Kid", parent.ID, []student.Skill{student.SkillAbacus, student.SkillVisualization})
	token := getToken(t, parent)

	t.Run("no active session yet", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/sessions/active?player_id="+stu.ID, token)
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)}
		checkCodeAndData(t, tt, rec)
	})

	// create, approve, start
	req, rec := newAuthRequest(http.MethodPost, "/v1/sessions", token,
		marchallObj(t, session.NewSessionPlan{PlayerID: stu.ID, SlotsPerPart: 1, GameBreaks: true}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	plan := decodePlan(t, rec)

	req, rec = newAuthRequest(http.MethodPost, "/v1/sessions/"+plan.ID+"/approve", token)
	app.ServeHTTP(rec, req)
	wantPlanOK(t, rec)

	plan = wantPlanOK(t, performAction(t, app, plan.ID, token, newActionBody(t, "start", intPtr(0), nil)))

	t.Run("wrong problem rejected", func(t *testing.T) {
		body := newActionBody(t, "record", intPtr(plan.FlowVersion), session.SlotResultInput{ProblemID: "lol", Answer: "42"})
		rec := performAction(t, app, plan.ID, token, body)
		tt := httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"problem_id": "result does not match the current slot"})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("recording the only slot starts the game break", func(t *testing.T) {
		res := session.SlotResultInput{ProblemID: plan.Parts[0].Slots[0].ProblemID, Answer: "42", Correct: true}
		plan = wantPlanOK(t, performAction(t, app, plan.ID, token, newActionBody(t, "record", intPtr(plan.FlowVersion), res)))
		if plan.FlowState != session.FlowOnBreak {
			t.Fatalf("flow_state = %v; want %v", plan.FlowState, session.FlowOnBreak)
		}
		if plan.BreakReason == nil || *plan.BreakReason != session.BreakReasonGame {
			t.Errorf("break_reason = %v; want %v", plan.BreakReason, session.BreakReasonGame)
		}
		if plan.BreakStartedAt == nil {
			t.Error("break_started_at not set")
		}
		if plan.FlowVersion != 2 {
			t.Errorf("flow_version = %v; want 2", plan.FlowVersion)
		}
	})

	t.Run("recording during the break rejected", func(t *testing.T) {
		res := session.SlotResultInput{ProblemID: plan.Parts[1].Slots[0].ProblemID, Answer: "7"}
		rec := performAction(t, app, plan.ID, token, newActionBody(t, "record", intPtr(plan.FlowVersion), res))
		decodeConflict(t, rec, http.StatusConflict, "INVALID_FLOW_TRANSITION")
	})

	t.Run("break finishes with game results", func(t *testing.T) {
		payload := session.BreakFinishedPayload{
			Reason:  session.BreakReasonGameFinished,
			Results: []session.GameResult{{Game: "math-blaster", Score: 420}},
		}
		plan = wantPlanOK(t, performAction(t, app, plan.ID, token, newActionBody(t, "break_finished", intPtr(plan.FlowVersion), payload)))
		if plan.FlowState != session.FlowBreakResultsPending {
			t.Fatalf("flow_state = %v; want %v", plan.FlowState, session.FlowBreakResultsPending)
		}
		if plan.BreakReason == nil || *plan.BreakReason != session.BreakReasonGameFinished {
			t.Errorf("break_reason = %v; want %v", plan.BreakReason, session.BreakReasonGameFinished)
		}
		if len(plan.BreakResults) != 1 {
			t.Errorf("len(break_results) = %d; want 1", len(plan.BreakResults))
		}
	})

	t.Run("ack resumes the next part", func(t *testing.T) {
		plan = wantPlanOK(t, performAction(t, app, plan.ID, token, newActionBody(t, "break_results_acked", intPtr(plan.FlowVersion), nil)))
		if plan.FlowState != session.FlowInPart {
			t.Fatalf("flow_state = %v; want %v", plan.FlowState, session.FlowInPart)
		}
		if plan.CurrentPartIndex != 1 || plan.CurrentSlotIndex != 0 {
			t.Errorf("pointers = %d/%d; want 1/0", plan.CurrentPartIndex, plan.CurrentSlotIndex)
		}
		if plan.BreakReason != nil || plan.BreakStartedAt != nil || plan.BreakResults != nil {
			t.Error("break sub-state not cleared")
		}
	})

	t.Run("redo keeps the original result", func(t *testing.T) {
		payload := session.RecordRedoPayload{
			Result:      session.SlotResultInput{ProblemID: plan.Parts[0].Slots[0].ProblemID, Answer: "43", Correct: false},
			RedoContext: session.RedoContextInput{PartIndex: 0, SlotIndex: 0, Attempt: 1},
		}
		plan = wantPlanOK(t, performAction(t, app, plan.ID, token, newActionBody(t, "record_redo", intPtr(plan.FlowVersion), payload)))
		slot := plan.Parts[0].Slots[0]
		if slot.Result == nil || slot.Result.Answer != "42" {
			t.Error("original result lost")
		}
		if len(slot.RedoResults) != 1 || slot.RedoResults[0].Redo == nil || slot.RedoResults[0].Redo.Attempt != 1 {
			t.Errorf("redo_results = %+v; want one attempt-1 entry", slot.RedoResults)
		}
		if plan.CurrentPartIndex != 1 || plan.CurrentSlotIndex != 0 {
			t.Error("redo moved the progress pointers")
		}
	})

	t.Run("final record completes the session", func(t *testing.T) {
		res := session.SlotResultInput{ProblemID: plan.Parts[1].Slots[0].ProblemID, Answer: "7", Correct: true}
		plan = wantPlanOK(t, performAction(t, app, plan.ID, token, newActionBody(t, "record", intPtr(plan.FlowVersion), res)))
		if plan.Status != session.StatusCompleted {
			t.Errorf("status = %v; want %v", plan.Status, session.StatusCompleted)
		}
		if plan.FlowState != session.FlowCompleted {
			t.Errorf("flow_state = %v; want %v", plan.FlowState, session.FlowCompleted)
		}
		if plan.CompletedAt == nil {
			t.Error("completed_at not set")
		}
	})

	t.Run("completed session rejects actions", func(t *testing.T) {
		rec := performAction(t, app, plan.ID, token, newActionBody(t, "abandon", intPtr(plan.FlowVersion), nil))
		decodeConflict(t, rec, http.StatusConflict, "INVALID_FLOW_TRANSITION")

		rec = performAction(t, app, plan.ID, token, newActionBody(t, "set_remote_camera", nil, session.SetRemoteCameraPayload{}))
		decodeConflict(t, rec, http.StatusConflict, "INVALID_FLOW_TRANSITION")
	})

	t.Run("no active session after completion", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/sessions/active?player_id="+stu.ID, token)
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("completed session still retrievable", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/sessions/"+plan.ID, token)
		app.ServeHTTP(rec, req)
		got := wantPlanOK(t, rec)
		if got.Status != session.StatusCompleted {
			t.Errorf("status = %v; want %v", got.Status, session.StatusCompleted)
		}
	})
}

func Test_sessionApi_endEarly(t *testing.T) {
	app := setup(t)

	parent := testutil.CreateUser(t, usrRepo, "Parent", "parent", "parent@test.cd", "", []string{user.RoleParent}, true)
	stu := testutil.CreateStudent(t, stuRepo, "Kid", parent.ID, []student.Skill{student.SkillAbacus})
	token := getToken(t, parent)

	req, rec := newAuthRequest(http.MethodPost, "/v1/sessions", token,
		marchallObj(t, session.NewSessionPlan{PlayerID: stu.ID, SlotsPerPart: 5}))
	app.ServeHTTP(rec, req)
	plan := decodePlan(t, rec)

	req, rec = newAuthRequest(http.MethodPost, "/v1/sessions/"+plan.ID+"/approve", token)
	app.ServeHTTP(rec, req)
	wantPlanOK(t, rec)
	plan = wantPlanOK(t, performAction(t, app, plan.ID, token, newActionBody(t, "start", intPtr(0), nil)))

	payload := session.EndEarlyPayload{Note: "short on time today"}
	plan = wantPlanOK(t, performAction(t, app, plan.ID, token, newActionBody(t, "end_early", intPtr(plan.FlowVersion), payload)))
	if plan.Status != session.StatusCompleted {
		t.Errorf("status = %v; want %v", plan.Status, session.StatusCompleted)
	}
	if plan.TerminationReason == nil || *plan.TerminationReason != session.TerminationEndedEarly {
		t.Errorf("termination_reason = %v; want %v", plan.TerminationReason, session.TerminationEndedEarly)
	}
	if plan.TerminationNote == nil || *plan.TerminationNote != payload.Note {
		t.Errorf("termination_note = %v; want %q", plan.TerminationNote, payload.Note)
	}
}

func Test_sessionApi_actionValidation(t *testing.T) {
	app := setup(t)

	parent := testutil.CreateUser(t, usrRepo, "Parent", "parent", "parent@test.cd", "", []string{user.RoleParent}, true)
	stu := testutil.CreateStudent(t, stuRepo, "Kid", parent.ID, []student.Skill{student.SkillAbacus})
	token := getToken(t, parent)

	req, rec := newAuthRequest(http.MethodPost, "/v1/sessions", token,
		marchallObj(t, session.NewSessionPlan{PlayerID: stu.ID}))
	app.ServeHTTP(rec, req)
	plan := decodePlan(t, rec)

	tests := []httpTest{
		{
			name: "action required", body: marchallObj(t, echoapi.ActionRequest{}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"action": "this field is required"}),
		},
		{
			name: "unknown action", body: newActionBody(t, "moonwalk", nil, nil),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"action": "unknown action"}),
		},
		{
			name: "malformed payload", body: newActionBody(t, "record", nil, "lol"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"payload": "malformed payload"}),
		},
		{
			name: "record payload required", body: newActionBody(t, "record", nil, session.SlotResultInput{}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"problem_id": "this field is required", "answer": "this field is required"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := performAction(t, app, plan.ID, token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_sessionApi_permissions(t *testing.T) {
	app := setup(t)

	parent := testutil.CreateUser(t, usrRepo, "Parent", "parent", "parent@test.cd", "", []string{user.RoleParent}, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	outsider := testutil.CreateUser(t, usrRepo, "Outsider", "outsider", "outsider@test.cd", "", []string{user.RoleTeacher}, true)
	studentUsr := testutil.CreateUser(t, usrRepo, "Kid", "kid", "kid@test.cd", "", []string{user.RoleStudent}, true)

	class := testutil.CreateClassroom(t, stuRepo, "Class A", teacher.ID)
	stu := testutil.CreateStudent(t, stuRepo, "Kid", parent.ID, []student.Skill{student.SkillAbacus},
		func(s *student.Student) {
			s.UserID = &studentUsr.ID
			s.ClassroomID = &class.ID
		})

	// the classroom teacher drives supervision end to end
	teacherToken := getToken(t, teacher)
	req, rec := newAuthRequest(http.MethodPost, "/v1/sessions", teacherToken,
		marchallObj(t, session.NewSessionPlan{PlayerID: stu.ID, SlotsPerPart: 1}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("teacher create failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	plan := decodePlan(t, rec)

	req, rec = newAuthRequest(http.MethodPost, "/v1/sessions/"+plan.ID+"/approve", teacherToken)
	app.ServeHTTP(rec, req)
	wantPlanOK(t, rec)

	t.Run("teacher of another classroom cannot observe", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/sessions/"+plan.ID, getToken(t, outsider))
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("student starts own session", func(t *testing.T) {
		rec := performAction(t, app, plan.ID, getToken(t, studentUsr), newActionBody(t, "start", intPtr(0), nil))
		wantPlanOK(t, rec)
	})

	t.Run("teacher cannot record results", func(t *testing.T) {
		res := session.SlotResultInput{ProblemID: "whatever", Answer: "1"}
		rec := performAction(t, app, plan.ID, teacherToken, newActionBody(t, "record", intPtr(1), res))
		tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("teacher sets the remote camera", func(t *testing.T) {
		sessionID := "b5bd4b36-06fc-4a2f-bf21-8e2b2b40ed72"
		payload := session.SetRemoteCameraPayload{SessionID: &sessionID}
		got := wantPlanOK(t, performAction(t, app, plan.ID, teacherToken, newActionBody(t, "set_remote_camera", nil, payload)))
		if got.RemoteCameraSessionID == nil || *got.RemoteCameraSessionID != sessionID {
			t.Errorf("remote_camera_session_id = %v; want %q", got.RemoteCameraSessionID, sessionID)
		}
		// camera assignment is not a flow mutation
		if got.FlowVersion != 1 {
			t.Errorf("flow_version = %v; want 1", got.FlowVersion)
		}
	})

	t.Run("teacher ends the session early", func(t *testing.T) {
		got := wantPlanOK(t, performAction(t, app, plan.ID, teacherToken, newActionBody(t, "end_early", intPtr(1), session.EndEarlyPayload{})))
		if got.TerminationReason == nil || *got.TerminationReason != session.TerminationEndedEarly {
			t.Errorf("termination_reason = %v; want %v", got.TerminationReason, session.TerminationEndedEarly)
		}
	})
}

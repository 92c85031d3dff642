package echoapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/sorobanclub/backend/core"
	"github.com/sorobanclub/backend/core/session"
	"github.com/sorobanclub/backend/core/user"
)

type sessionApi struct {
	svc   session.Service
	users user.Service
}

func registerSessionAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc session.Service, userSvc user.Service) {
	api := sessionApi{svc: svc, users: userSvc}

	sg := g.Group("/sessions", jwt)
	sg.POST("", api.create)
	sg.GET("/active", api.retrieveActive)
	sg.GET("/:id", api.retrieve)
	sg.POST("/:id/approve", api.approve)
	sg.POST("/:id/actions", api.performAction)
}

// Handlers

func (api *sessionApi) create(ctx echo.Context) error {
	var data session.NewSessionPlan
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSessionPlan")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	plan, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, newPlanResponse(plan))
}

func (api *sessionApi) retrieve(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	plan, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newPlanResponse(plan))
}

func (api *sessionApi) retrieveActive(ctx echo.Context) error {
	playerID := ctx.QueryParam("player_id")
	if playerID == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "player_id", Error: "player_id is required"})
	}

	actor, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	plan, err := api.svc.GetActive(ctx.Request().Context(), actor, playerID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newPlanResponse(plan))
}

func (api *sessionApi) approve(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	plan, err := api.svc.Approve(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newPlanResponse(plan))
}

// ActionRequest is the envelope for every flow mutation: a discriminator, the
// caller's optimistic-concurrency token and an action-specific payload.
type ActionRequest struct {
	Action              string          `json:"action" validate:"required"`
	ExpectedFlowVersion *int            `json:"expected_flow_version" validate:"omitempty,min=0"`
	Payload             json.RawMessage `json:"payload"`
}

func (ar *ActionRequest) Validate() error { return core.Validate.Struct(ar) }

func (api *sessionApi) performAction(ctx echo.Context) error {
	var data ActionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ActionRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	rctx := ctx.Request().Context()
	planID := ctx.Param("id")
	version := data.ExpectedFlowVersion

	var plan session.SessionPlan
	switch data.Action {
	case "start":
		plan, err = api.svc.Start(rctx, actor, planID, version)

	case "record":
		var p session.SlotResultInput
		if err = bindPayload(data.Payload, &p); err != nil {
			return err
		}
		plan, err = api.svc.Record(rctx, actor, planID, version, p)

	case "record_redo":
		var p session.RecordRedoPayload
		if err = bindPayload(data.Payload, &p); err != nil {
			return err
		}
		plan, err = api.svc.RecordRedo(rctx, actor, planID, version, p)

	case "end_early":
		var p session.EndEarlyPayload
		if err = bindPayload(data.Payload, &p); err != nil {
			return err
		}
		plan, err = api.svc.EndEarly(rctx, actor, planID, version, p)

	case "abandon":
		plan, err = api.svc.Abandon(rctx, actor, planID, version)

	case "part_transition_complete":
		plan, err = api.svc.CompletePartTransition(rctx, actor, planID, version)

	case "break_finished":
		var p session.BreakFinishedPayload
		if err = bindPayload(data.Payload, &p); err != nil {
			return err
		}
		plan, err = api.svc.FinishBreak(rctx, actor, planID, version, p)

	case "break_results_acked":
		plan, err = api.svc.AckBreakResults(rctx, actor, planID, version)

	case "set_remote_camera":
		var p session.SetRemoteCameraPayload
		if err = bindPayload(data.Payload, &p); err != nil {
			return err
		}
		plan, err = api.svc.SetRemoteCamera(rctx, actor, planID, p)

	default:
		return core.NewValidationError(nil, core.FieldError{Field: "action", Error: "unknown action"})
	}
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newPlanResponse(plan))
}

type payloadValidator interface{ Validate() error }

func bindPayload(raw json.RawMessage, dst payloadValidator) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, dst); err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "payload", Error: "malformed payload"})
		}
	}
	return dst.Validate()
}

// Responses. Timestamps go over the wire as epoch milliseconds.

type (
	PlanResponse struct {
		ID       string         `json:"id"`
		PlayerID string         `json:"player_id"`
		Status   session.Status `json:"status"`

		Parts            []PartResponse `json:"parts"`
		CurrentPartIndex int            `json:"current_part_index"`
		CurrentSlotIndex int            `json:"current_slot_index"`

		FlowState     session.FlowState `json:"flow_state"`
		FlowVersion   int               `json:"flow_version"`
		FlowUpdatedAt int64             `json:"flow_updated_at"`

		BreakStartedAt *int64                `json:"break_started_at,omitempty"`
		BreakReason    *session.BreakReason  `json:"break_reason,omitempty"`
		BreakResults   []session.GameResult  `json:"break_results,omitempty"`

		RemoteCameraSessionID *string `json:"remote_camera_session_id,omitempty"`

		TerminationReason *session.TerminationReason `json:"termination_reason,omitempty"`
		TerminationNote   *string                    `json:"termination_note,omitempty"`

		CreatedAt   int64  `json:"created_at"`
		ApprovedAt  *int64 `json:"approved_at,omitempty"`
		StartedAt   *int64 `json:"started_at,omitempty"`
		CompletedAt *int64 `json:"completed_at,omitempty"`
	}

	PartResponse struct {
		Kind       session.PartKind `json:"kind"`
		Slots      []SlotResponse   `json:"slots"`
		BreakAfter bool             `json:"break_after"`
	}

	SlotResponse struct {
		ProblemID   string               `json:"problem_id"`
		Result      *SlotResultResponse  `json:"result,omitempty"`
		RedoResults []SlotResultResponse `json:"redo_results,omitempty"`
	}

	SlotResultResponse struct {
		ProblemID  string               `json:"problem_id"`
		Answer     string               `json:"answer"`
		Correct    bool                 `json:"correct"`
		PartNumber int                  `json:"part_number"`
		RecordedAt int64                `json:"recorded_at"`
		Redo       *session.RedoContext `json:"redo,omitempty"`
	}
)

func epochMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

func epochMillisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := epochMillis(*t)
	return &ms
}

func newPlanResponse(plan session.SessionPlan) PlanResponse {
	resp := PlanResponse{
		ID:                    plan.ID,
		PlayerID:              plan.PlayerID,
		Status:                plan.Status,
		Parts:                 make([]PartResponse, 0, len(plan.Parts)),
		CurrentPartIndex:      plan.CurrentPartIndex,
		CurrentSlotIndex:      plan.CurrentSlotIndex,
		FlowState:             plan.FlowState,
		FlowVersion:           plan.FlowVersion,
		FlowUpdatedAt:         epochMillis(plan.FlowUpdatedAt),
		BreakStartedAt:        epochMillisPtr(plan.BreakStartedAt),
		BreakReason:           plan.BreakReason,
		BreakResults:          plan.BreakResults,
		RemoteCameraSessionID: plan.RemoteCameraSessionID,
		TerminationReason:     plan.TerminationReason,
		TerminationNote:       plan.TerminationNote,
		CreatedAt:             epochMillis(plan.CreatedAt),
		ApprovedAt:            epochMillisPtr(plan.ApprovedAt),
		StartedAt:             epochMillisPtr(plan.StartedAt),
		CompletedAt:           epochMillisPtr(plan.CompletedAt),
	}
	for _, part := range plan.Parts {
		resp.Parts = append(resp.Parts, newPartResponse(part))
	}
	return resp
}

func newPartResponse(part session.Part) PartResponse {
	p := PartResponse{
		Kind:       part.Kind,
		Slots:      make([]SlotResponse, 0, len(part.Slots)),
		BreakAfter: part.BreakAfter,
	}
	for _, slot := range part.Slots {
		s := SlotResponse{ProblemID: slot.ProblemID}
		if slot.Result != nil {
			res := newSlotResultResponse(*slot.Result)
			s.Result = &res
		}
		for _, redo := range slot.RedoResults {
			s.RedoResults = append(s.RedoResults, newSlotResultResponse(redo))
		}
		p.Slots = append(p.Slots, s)
	}
	return p
}

func newSlotResultResponse(res session.SlotResult) SlotResultResponse {
	return SlotResultResponse{
		ProblemID:  res.ProblemID,
		Answer:     res.Answer,
		Correct:    res.Correct,
		PartNumber: res.PartNumber,
		RecordedAt: epochMillis(res.RecordedAt),
		Redo:       res.Redo,
	}
}

package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/sorobanclub/backend/core/session"
)

// pq unique_violation; raised by the partial unique index guarding one active
// plan per player.
const pqUniqueViolation = "23505"

type sessionPlanRow struct {
	ID                    string          `db:"id"`
	PlayerID              string          `db:"player_id"`
	Status                string          `db:"status"`
	Parts                 json.RawMessage `db:"parts"`
	CurrentPartIndex      int             `db:"current_part_index"`
	CurrentSlotIndex      int             `db:"current_slot_index"`
	FlowState             string          `db:"flow_state"`
	FlowVersion           int             `db:"flow_version"`
	FlowUpdatedAt         time.Time       `db:"flow_updated_at"`
	BreakStartedAt        null.Time       `db:"break_started_at"`
	BreakReason           null.String     `db:"break_reason"`
	BreakResults          []byte          `db:"break_results"`
	RemoteCameraSessionID null.String     `db:"remote_camera_session_id"`
	TerminationReason     null.String     `db:"termination_reason"`
	TerminationNote       null.String     `db:"termination_note"`
	CreatedAt             time.Time       `db:"created_at"`
	ApprovedAt            null.Time       `db:"approved_at"`
	StartedAt             null.Time       `db:"started_at"`
	CompletedAt           null.Time       `db:"completed_at"`
}

func (r sessionPlanRow) model() (session.SessionPlan, error) {
	plan := session.SessionPlan{
		ID:                    r.ID,
		PlayerID:              r.PlayerID,
		Status:                session.Status(r.Status),
		CurrentPartIndex:      r.CurrentPartIndex,
		CurrentSlotIndex:      r.CurrentSlotIndex,
		FlowState:             session.FlowState(r.FlowState),
		FlowVersion:           r.FlowVersion,
		FlowUpdatedAt:         r.FlowUpdatedAt,
		BreakStartedAt:        r.BreakStartedAt.Ptr(),
		RemoteCameraSessionID: r.RemoteCameraSessionID.Ptr(),
		TerminationNote:       r.TerminationNote.Ptr(),
		CreatedAt:             r.CreatedAt,
		ApprovedAt:            r.ApprovedAt.Ptr(),
		StartedAt:             r.StartedAt.Ptr(),
		CompletedAt:           r.CompletedAt.Ptr(),
	}
	if r.BreakReason.Valid {
		reason := session.BreakReason(r.BreakReason.String)
		plan.BreakReason = &reason
	}
	if r.TerminationReason.Valid {
		reason := session.TerminationReason(r.TerminationReason.String)
		plan.TerminationReason = &reason
	}
	if err := json.Unmarshal(r.Parts, &plan.Parts); err != nil {
		return session.SessionPlan{}, errors.Wrap(err, "decoding plan parts")
	}
	if len(r.BreakResults) > 0 {
		if err := json.Unmarshal(r.BreakResults, &plan.BreakResults); err != nil {
			return session.SessionPlan{}, errors.Wrap(err, "decoding break results")
		}
	}
	return plan, nil
}

func newSessionPlanRow(plan session.SessionPlan) (sessionPlanRow, error) {
	parts, err := json.Marshal(plan.Parts)
	if err != nil {
		return sessionPlanRow{}, errors.Wrap(err, "encoding plan parts")
	}
	row := sessionPlanRow{
		ID:                    plan.ID,
		PlayerID:              plan.PlayerID,
		Status:                string(plan.Status),
		Parts:                 parts,
		CurrentPartIndex:      plan.CurrentPartIndex,
		CurrentSlotIndex:      plan.CurrentSlotIndex,
		FlowState:             string(plan.FlowState),
		FlowVersion:           plan.FlowVersion,
		FlowUpdatedAt:         plan.FlowUpdatedAt.UTC(),
		BreakStartedAt:        null.TimeFromPtr(plan.BreakStartedAt),
		RemoteCameraSessionID: null.StringFromPtr(plan.RemoteCameraSessionID),
		TerminationNote:       null.StringFromPtr(plan.TerminationNote),
		CreatedAt:             plan.CreatedAt.UTC(),
		ApprovedAt:            null.TimeFromPtr(plan.ApprovedAt),
		StartedAt:             null.TimeFromPtr(plan.StartedAt),
		CompletedAt:           null.TimeFromPtr(plan.CompletedAt),
	}
	if plan.BreakReason != nil {
		row.BreakReason = null.StringFrom(string(*plan.BreakReason))
	}
	if plan.TerminationReason != nil {
		row.TerminationReason = null.StringFrom(string(*plan.TerminationReason))
	}
	if plan.BreakResults != nil {
		if row.BreakResults, err = json.Marshal(plan.BreakResults); err != nil {
			return sessionPlanRow{}, errors.Wrap(err, "encoding break results")
		}
	}
	return row, nil
}

type sessionRepository struct {
	db *sqlx.DB
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *sqlx.DB) *sessionRepository {
	return &sessionRepository{db: db}
}

func (repo sessionRepository) CreatePlan(ctx context.Context, plan session.SessionPlan) (session.SessionPlan, error) {
	row, err := newSessionPlanRow(plan)
	if err != nil {
		return session.SessionPlan{}, err
	}
	query := `
		INSERT INTO session_plan (
			id, player_id, status, parts, current_part_index, current_slot_index,
			flow_state, flow_version, flow_updated_at, break_started_at, break_reason, break_results,
			remote_camera_session_id, termination_reason, termination_note,
			created_at, approved_at, started_at, completed_at
		) VALUES (
			:id, :player_id, :status, :parts, :current_part_index, :current_slot_index,
			:flow_state, :flow_version, :flow_updated_at, :break_started_at, :break_reason, :break_results,
			:remote_camera_session_id, :termination_reason, :termination_note,
			:created_at, :approved_at, :started_at, :completed_at
		)`
	if _, err = repo.db.NamedExecContext(ctx, query, row); err != nil {
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			// lost a creation race; surface the winner
			if existing, getErr := repo.GetActivePlan(ctx, plan.PlayerID); getErr == nil {
				return session.SessionPlan{}, &session.ActiveSessionExistsError{Existing: existing}
			}
		}
		return session.SessionPlan{}, errors.Wrap(err, "inserting session plan")
	}
	return plan, nil
}

func (repo sessionRepository) GetPlan(ctx context.Context, id string) (session.SessionPlan, error) {
	var row sessionPlanRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM session_plan WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return session.SessionPlan{}, session.ErrNotFound
		}
		return session.SessionPlan{}, errors.Wrap(err, "getting session plan")
	}
	return row.model()
}

func (repo sessionRepository) GetActivePlan(ctx context.Context, playerID string) (session.SessionPlan, error) {
	var row sessionPlanRow
	query := `SELECT * FROM session_plan WHERE player_id = $1 AND status NOT IN ('completed', 'abandoned')`
	if err := repo.db.GetContext(ctx, &row, query, playerID); err != nil {
		if err == sql.ErrNoRows {
			return session.SessionPlan{}, session.ErrNotFound
		}
		return session.SessionPlan{}, errors.Wrap(err, "getting active session plan")
	}
	return row.model()
}

// SavePlan is the conditional write behind the flow engine's optimistic
// concurrency: one UPDATE guarded on the stored flow_version. A no-op row
// count means either a lost race or a missing plan; the follow-up read
// disambiguates.
func (repo sessionRepository) SavePlan(ctx context.Context, plan session.SessionPlan, expectedFlowVersion int) (session.SessionPlan, error) {
	plan.FlowVersion = expectedFlowVersion + 1
	row, err := newSessionPlanRow(plan)
	if err != nil {
		return session.SessionPlan{}, err
	}

	query := `
		UPDATE session_plan
		SET status = :status, parts = :parts,
		    current_part_index = :current_part_index, current_slot_index = :current_slot_index,
		    flow_state = :flow_state, flow_version = :flow_version, flow_updated_at = :flow_updated_at,
		    break_started_at = :break_started_at, break_reason = :break_reason, break_results = :break_results,
		    termination_reason = :termination_reason, termination_note = :termination_note,
		    started_at = :started_at, completed_at = :completed_at
		WHERE id = :id AND flow_version = :expected_flow_version`
	res, err := repo.db.NamedExecContext(ctx, query, struct {
		sessionPlanRow
		ExpectedFlowVersion int `db:"expected_flow_version"`
	}{row, expectedFlowVersion})
	if err != nil {
		return session.SessionPlan{}, errors.Wrap(err, "saving session plan")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var actual int
		err = repo.db.GetContext(ctx, &actual, `SELECT flow_version FROM session_plan WHERE id = $1`, plan.ID)
		if err == sql.ErrNoRows {
			return session.SessionPlan{}, session.ErrNotFound
		} else if err != nil {
			return session.SessionPlan{}, errors.Wrap(err, "checking flow version")
		}
		return session.SessionPlan{}, &session.StaleFlowVersionError{
			ExpectedFlowVersion: expectedFlowVersion,
			ActualFlowVersion:   actual,
		}
	}
	return plan, nil
}

func (repo sessionRepository) ApprovePlan(ctx context.Context, id string, at time.Time) (session.SessionPlan, error) {
	query := `UPDATE session_plan SET status = $1, approved_at = $2 WHERE id = $3`
	res, err := repo.db.ExecContext(ctx, query, string(session.StatusApproved), at.UTC(), id)
	if err != nil {
		return session.SessionPlan{}, errors.Wrap(err, "approving session plan")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return session.SessionPlan{}, session.ErrNotFound
	}
	return repo.GetPlan(ctx, id)
}

func (repo sessionRepository) SetRemoteCamera(ctx context.Context, id string, sessionID *string) (session.SessionPlan, error) {
	query := `UPDATE session_plan SET remote_camera_session_id = $1 WHERE id = $2`
	res, err := repo.db.ExecContext(ctx, query, null.StringFromPtr(sessionID), id)
	if err != nil {
		return session.SessionPlan{}, errors.Wrap(err, "setting remote camera")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return session.SessionPlan{}, session.ErrNotFound
	}
	return repo.GetPlan(ctx, id)
}

package inmemdb

import (
	"context"
	"time"

	"github.com/sorobanclub/backend/core/session"
)

type sessionRepository struct {
	db *DB
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *DB) *sessionRepository {
	return &sessionRepository{db: db}
}

func clonePlan(plan session.SessionPlan) session.SessionPlan {
	var out session.SessionPlan
	deepCopy(plan, &out)
	return out
}

func (repo *sessionRepository) CreatePlan(_ context.Context, plan session.SessionPlan) (session.SessionPlan, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, p := range repo.db.plans {
		if p.PlayerID == plan.PlayerID && !p.Status.Terminal() {
			return session.SessionPlan{}, &session.ActiveSessionExistsError{Existing: clonePlan(p)}
		}
	}
	repo.db.plans[plan.ID] = clonePlan(plan)
	return plan, nil
}

func (repo *sessionRepository) GetPlan(_ context.Context, id string) (session.SessionPlan, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if plan, ok := repo.db.plans[id]; ok {
		return clonePlan(plan), nil
	}
	return session.SessionPlan{}, session.ErrNotFound
}

func (repo *sessionRepository) GetActivePlan(_ context.Context, playerID string) (session.SessionPlan, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, plan := range repo.db.plans {
		if plan.PlayerID == playerID && !plan.Status.Terminal() {
			return clonePlan(plan), nil
		}
	}
	return session.SessionPlan{}, session.ErrNotFound
}

func (repo *sessionRepository) SavePlan(_ context.Context, plan session.SessionPlan, expectedFlowVersion int) (session.SessionPlan, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	stored, ok := repo.db.plans[plan.ID]
	if !ok {
		return session.SessionPlan{}, session.ErrNotFound
	}
	if stored.FlowVersion != expectedFlowVersion {
		return session.SessionPlan{}, &session.StaleFlowVersionError{
			ExpectedFlowVersion: expectedFlowVersion,
			ActualFlowVersion:   stored.FlowVersion,
		}
	}
	plan.FlowVersion = expectedFlowVersion + 1
	repo.db.plans[plan.ID] = clonePlan(plan)
	return plan, nil
}

func (repo *sessionRepository) ApprovePlan(_ context.Context, id string, at time.Time) (session.SessionPlan, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	plan, ok := repo.db.plans[id]
	if !ok {
		return session.SessionPlan{}, session.ErrNotFound
	}
	plan.Status = session.StatusApproved
	plan.ApprovedAt = &at
	repo.db.plans[id] = plan
	return clonePlan(plan), nil
}

func (repo *sessionRepository) SetRemoteCamera(_ context.Context, id string, sessionID *string) (session.SessionPlan, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	plan, ok := repo.db.plans[id]
	if !ok {
		return session.SessionPlan{}, session.ErrNotFound
	}
	plan.RemoteCameraSessionID = sessionID
	repo.db.plans[id] = plan
	return clonePlan(plan), nil
}

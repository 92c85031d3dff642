package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sorobanclub/backend/core/session"
	"github.com/sorobanclub/backend/core/student"
	"github.com/sorobanclub/backend/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateStudent(
	t *testing.T,
	repo student.Repository,
	name, parentID string,
	skills []student.Skill,
	opts ...func(*student.Student),
) student.Student {
	t.Helper()

	now := time.Now().UTC()
	stu := student.Student{
		ID:            uuid.New().String(),
		Name:          name,
		ParentID:      parentID,
		EnabledSkills: skills,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, opt := range opts {
		opt(&stu)
	}
	stu, err := repo.CreateStudent(context.Background(), stu)
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return stu
}

func CreateClassroom(t *testing.T, repo student.Repository, name, teacherID string) student.Classroom {
	t.Helper()

	class, err := repo.CreateClassroom(context.Background(), student.Classroom{
		ID:        uuid.New().String(),
		Name:      name,
		TeacherID: teacherID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateClassroom() failed: %v", err)
	}
	return class
}

// CreatePlan stores a draft plan with one slot-filled part per skill kind.
func CreatePlan(
	t *testing.T,
	repo session.Repository,
	playerID string,
	kinds []session.PartKind,
	slotsPerPart int,
	gameBreaks bool,
) session.SessionPlan {
	t.Helper()

	now := time.Now().UTC()
	parts := make([]session.Part, 0, len(kinds))
	for ki, kind := range kinds {
		part := session.Part{Kind: kind, Slots: make([]session.Slot, slotsPerPart)}
		for i := range part.Slots {
			part.Slots[i].ProblemID = string(kind) + "-" + uuid.New().String()
		}
		if gameBreaks && ki < len(kinds)-1 {
			part.BreakAfter = true
		}
		parts = append(parts, part)
	}

	plan := session.SessionPlan{
		ID:            uuid.New().String(),
		PlayerID:      playerID,
		Status:        session.StatusDraft,
		Parts:         parts,
		FlowState:     session.FlowNotStarted,
		FlowUpdatedAt: now,
		CreatedAt:     now,
	}
	plan, err := repo.CreatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("CreatePlan() failed: %v", err)
	}
	return plan
}

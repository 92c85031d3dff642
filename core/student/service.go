package student

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sorobanclub/backend/core"
	"github.com/sorobanclub/backend/core/session"
	"github.com/sorobanclub/backend/core/user"
)

var (
	// errors
	ErrNotFound          = errors.New("student not found")
	ErrClassroomNotFound = errors.New("classroom not found")
)

type (
	Repository interface {
		CreateStudent(ctx context.Context, stu Student) (Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		// GetStudentByUserID resolves the profile behind a student login.
		GetStudentByUserID(ctx context.Context, userID string) (Student, error)
		QueryStudentsByParent(ctx context.Context, parentID string, ordering []core.DBOrdering) ([]Student, error)
		QueryStudentsByClassroom(ctx context.Context, classID string, ordering []core.DBOrdering) ([]Student, error)
		UpdateStudent(ctx context.Context, stu Student) (Student, error)
		DeleteStudentsByID(ctx context.Context, ids ...string) (int, error)

		CreateClassroom(ctx context.Context, class Classroom) (Classroom, error)
		GetClassroom(ctx context.Context, id string) (Classroom, error)
		QueryClassroomsByTeacher(ctx context.Context, teacherID string) ([]Classroom, error)
	}

	Service interface {
		session.PlayerDirectory

		Create(ctx context.Context, ns NewStudent) (Student, error)
		GetByID(ctx context.Context, id string) (Student, error)
		GetByUserID(ctx context.Context, userID string) (Student, error)
		QueryByParent(ctx context.Context, parentID string) ([]Student, error)
		QueryByClassroom(ctx context.Context, classID string) ([]Student, error)
		Update(ctx context.Context, id string, us UpdateStudent) (Student, error)
		Delete(ctx context.Context, ids ...string) error

		CreateClassroom(ctx context.Context, name, teacherID string) (Classroom, error)
		GetClassroom(ctx context.Context, id string) (Classroom, error)
		QueryClassroomsByTeacher(ctx context.Context, teacherID string) ([]Classroom, error)
	}

	service struct {
		repo  Repository
		users user.Service
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, users user.Service) Service {
	return &service{repo: repo, users: users}
}

func (svc *service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	if ns.ClassroomID != nil {
		if _, err := svc.repo.GetClassroom(ctx, *ns.ClassroomID); err != nil {
			if errors.Cause(err) == ErrClassroomNotFound {
				return Student{}, core.NewValidationError(err,
					core.FieldError{Field: "classroom_id", Error: err.Error()})
			}
			return Student{}, err
		}
	}

	now := time.Now().UTC()
	stu := Student{
		ID:            uuid.New().String(),
		Name:          ns.Name,
		UserID:        ns.UserID,
		ParentID:      ns.ParentID,
		ClassroomID:   ns.ClassroomID,
		EnabledSkills: ns.EnabledSkills,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return svc.repo.CreateStudent(ctx, stu)
}

func (svc *service) GetByID(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

func (svc *service) GetByUserID(ctx context.Context, userID string) (Student, error) {
	return svc.repo.GetStudentByUserID(ctx, userID)
}

func (svc *service) QueryByParent(ctx context.Context, parentID string) ([]Student, error) {
	return svc.repo.QueryStudentsByParent(ctx, parentID, []core.DBOrdering{{Field: "created_at"}})
}

func (svc *service) QueryByClassroom(ctx context.Context, classID string) ([]Student, error) {
	return svc.repo.QueryStudentsByClassroom(ctx, classID, []core.DBOrdering{{Field: "name", Ascending: true}})
}

func (svc *service) Update(ctx context.Context, id string, us UpdateStudent) (Student, error) {
	stu, err := svc.repo.GetStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	if us.Name != "" {
		stu.Name = us.Name
	}
	if us.ClassroomID != nil {
		if _, err := svc.repo.GetClassroom(ctx, *us.ClassroomID); err != nil {
			if errors.Cause(err) == ErrClassroomNotFound {
				return Student{}, core.NewValidationError(err,
					core.FieldError{Field: "classroom_id", Error: err.Error()})
			}
			return Student{}, err
		}
		stu.ClassroomID = us.ClassroomID
	}
	if us.EnabledSkills != nil {
		stu.EnabledSkills = *us.EnabledSkills
	}
	stu.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateStudent(ctx, stu)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteStudentsByID(ctx, ids...)
	return err
}

func (svc *service) CreateClassroom(ctx context.Context, name, teacherID string) (Classroom, error) {
	name = core.CleanString(name)
	if name == "" {
		return Classroom{}, core.NewValidationError(nil, core.FieldError{Field: "name", Error: "name is required"})
	}
	class := Classroom{
		ID:        uuid.New().String(),
		Name:      name,
		TeacherID: teacherID,
		CreatedAt: time.Now().UTC(),
	}
	return svc.repo.CreateClassroom(ctx, class)
}

func (svc *service) GetClassroom(ctx context.Context, id string) (Classroom, error) {
	return svc.repo.GetClassroom(ctx, id)
}

func (svc *service) QueryClassroomsByTeacher(ctx context.Context, teacherID string) ([]Classroom, error) {
	return svc.repo.QueryClassroomsByTeacher(ctx, teacherID)
}

// GetPlayer adapts a Student (plus its parent account) into the view the
// session flow engine consumes.
func (svc *service) GetPlayer(ctx context.Context, id string) (session.Player, error) {
	stu, err := svc.repo.GetStudent(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return session.Player{}, errors.Wrap(session.ErrNotFound, "player")
		}
		return session.Player{}, err
	}

	player := session.Player{
		ID:          stu.ID,
		Name:        stu.Name,
		ClassroomID: stu.ClassroomID,
	}
	for _, skill := range stu.EnabledSkills {
		player.EnabledSkills = append(player.EnabledSkills, string(skill))
	}

	parent, err := svc.users.GetByID(ctx, stu.ParentID)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return session.Player{}, errors.Wrap(err, "finding parent")
		}
	} else {
		player.ParentName = parent.Name
		player.ParentEmail = parent.Email
	}
	return player, nil
}

// teacherActions are the session actions a classroom teacher may perform on
// their students' plans. Content mutations (record/record_redo) stay with the
// practicing device.
var teacherActions = map[session.Action]bool{
	session.ActionCreate:          true,
	session.ActionObserve:         true,
	session.ActionApprove:         true,
	session.ActionStart:           true,
	session.ActionEndEarly:        true,
	session.ActionAbandon:         true,
	session.ActionSetRemoteCamera: true,
}

// selfActions are the session actions a student performs from their own
// device. Approval and early termination are supervisor-gated.
var selfActions = map[session.Action]bool{
	session.ActionObserve:                true,
	session.ActionStart:                  true,
	session.ActionRecord:                 true,
	session.ActionRecordRedo:             true,
	session.ActionPartTransitionComplete: true,
	session.ActionBreakFinished:          true,
	session.ActionBreakResultsAcked:      true,
	session.ActionAbandon:                true,
}

// CanPerformAction implements the session authorization policy: admins and
// the student's parent may do anything, the student's own login is limited to
// driving their practice, and a teacher covers the students of their
// classrooms.
func (svc *service) CanPerformAction(ctx context.Context, actor user.User, playerID string, action session.Action) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}

	stu, err := svc.repo.GetStudent(ctx, playerID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, err
	}

	if actor.IsParent() && stu.ParentID == actor.ID {
		return true, nil
	}
	if actor.IsStudent() && stu.UserID != nil && *stu.UserID == actor.ID {
		return selfActions[action], nil
	}
	if actor.IsTeacher() && stu.ClassroomID != nil && teacherActions[action] {
		class, err := svc.repo.GetClassroom(ctx, *stu.ClassroomID)
		if err != nil {
			if errors.Cause(err) == ErrClassroomNotFound {
				return false, nil
			}
			return false, err
		}
		return class.TeacherID == actor.ID, nil
	}
	return false, nil
}

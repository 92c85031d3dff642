package student

import (
	"time"

	"github.com/sorobanclub/backend/core"
)

// Skill names a practice discipline a student has unlocked. Skills map
// one-to-one to session part kinds.
type Skill string

const (
	SkillAbacus        Skill = "abacus"
	SkillVisualization Skill = "visualization"
	SkillLinear        Skill = "linear"
)

var AllSkills = []Skill{SkillAbacus, SkillVisualization, SkillLinear}

type (
	// Student is a learner profile. It links an optional login account
	// (UserID) and the parent account responsible for it; young students may
	// practice without an account of their own, driven by the parent's device.
	Student struct {
		ID            string  `json:"id"`
		Name          string  `json:"name"`
		UserID        *string `json:"user_id,omitempty"`
		ParentID      string  `json:"parent_id"`
		ClassroomID   *string `json:"classroom_id,omitempty"`
		EnabledSkills []Skill `json:"enabled_skills"`

		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	// Classroom groups students under one teacher account.
	Classroom struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		TeacherID string    `json:"teacher_id"`
		CreatedAt time.Time `json:"created_at"`
	}
)

func (s *Student) HasSkill(skill Skill) bool {
	for _, sk := range s.EnabledSkills {
		if sk == skill {
			return true
		}
	}
	return false
}

func (s *Student) InClassroom(classID string) bool {
	return s.ClassroomID != nil && *s.ClassroomID == classID
}

// NewStudent contains information needed to create a new Student.
type NewStudent struct {
	Name          string  `json:"name" validate:"required,max=255"`
	UserID        *string `json:"user_id" validate:"omitempty,uuid4"`
	ParentID      string  `json:"parent_id" validate:"required,uuid4"`
	ClassroomID   *string `json:"classroom_id" validate:"omitempty,uuid4"`
	EnabledSkills []Skill `json:"enabled_skills" validate:"omitempty,dive,oneof=abacus visualization linear"`
}

func (ns *NewStudent) Validate() error {
	ns.Name = core.CleanString(ns.Name)
	return core.Validate.Struct(ns)
}

// UpdateStudent defines what information may be provided to modify an
// existing Student. Nil pointer fields are left unchanged.
type UpdateStudent struct {
	Name          string   `json:"name" validate:"omitempty,max=255"`
	ClassroomID   *string  `json:"classroom_id" validate:"omitempty,uuid4"`
	EnabledSkills *[]Skill `json:"enabled_skills" validate:"omitempty,dive,oneof=abacus visualization linear"`
}

func (us *UpdateStudent) Validate() error {
	us.Name = core.CleanString(us.Name)
	return core.Validate.Struct(us)
}

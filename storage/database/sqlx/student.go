package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/sorobanclub/backend/core"
	"github.com/sorobanclub/backend/core/student"
)

type studentRow struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	UserID        null.String    `db:"user_id"`
	ParentID      string         `db:"parent_id"`
	ClassroomID   null.String    `db:"classroom_id"`
	EnabledSkills pq.StringArray `db:"enabled_skills"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r studentRow) model() student.Student {
	stu := student.Student{
		ID:          r.ID,
		Name:        r.Name,
		UserID:      r.UserID.Ptr(),
		ParentID:    r.ParentID,
		ClassroomID: r.ClassroomID.Ptr(),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	for _, skill := range r.EnabledSkills {
		stu.EnabledSkills = append(stu.EnabledSkills, student.Skill(skill))
	}
	return stu
}

func newStudentRow(stu student.Student) studentRow {
	skills := make(pq.StringArray, 0, len(stu.EnabledSkills))
	for _, skill := range stu.EnabledSkills {
		skills = append(skills, string(skill))
	}
	return studentRow{
		ID:            stu.ID,
		Name:          stu.Name,
		UserID:        null.StringFromPtr(stu.UserID),
		ParentID:      stu.ParentID,
		ClassroomID:   null.StringFromPtr(stu.ClassroomID),
		EnabledSkills: skills,
		CreatedAt:     stu.CreatedAt.UTC(),
		UpdatedAt:     stu.UpdatedAt.UTC(),
	}
}

type classroomRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	TeacherID string    `db:"teacher_id"`
	CreatedAt time.Time `db:"created_at"`
}

func (r classroomRow) model() student.Classroom {
	return student.Classroom(r)
}

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *sqlx.DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo studentRepository) CreateStudent(ctx context.Context, stu student.Student) (student.Student, error) {
	query := `
		INSERT INTO student (id, name, user_id, parent_id, classroom_id, enabled_skills, created_at, updated_at)
		VALUES (:id, :name, :user_id, :parent_id, :classroom_id, :enabled_skills, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, query, newStudentRow(stu)); err != nil {
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return stu, nil
}

func (repo studentRepository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	var row studentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM student WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "getting student")
	}
	return row.model(), nil
}

func (repo studentRepository) GetStudentByUserID(ctx context.Context, userID string) (student.Student, error) {
	var row studentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM student WHERE user_id = $1`, userID); err != nil {
		if err == sql.ErrNoRows {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "getting student by user")
	}
	return row.model(), nil
}

func (repo studentRepository) QueryStudentsByParent(ctx context.Context, parentID string, ordering []core.DBOrdering) ([]student.Student, error) {
	return repo.queryStudents(ctx, `parent_id = $1`, parentID, ordering)
}

func (repo studentRepository) QueryStudentsByClassroom(ctx context.Context, classID string, ordering []core.DBOrdering) ([]student.Student, error) {
	return repo.queryStudents(ctx, `classroom_id = $1`, classID, ordering)
}

func (repo studentRepository) queryStudents(ctx context.Context, clause string, arg interface{}, ordering []core.DBOrdering) ([]student.Student, error) {
	var rows []studentRow
	query := `SELECT * FROM student WHERE ` + clause + orderBy(ordering)
	if err := repo.db.SelectContext(ctx, &rows, query, arg); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.model())
	}
	return students, nil
}

func (repo studentRepository) UpdateStudent(ctx context.Context, stu student.Student) (student.Student, error) {
	query := `
		UPDATE student
		SET name = :name, user_id = :user_id, classroom_id = :classroom_id,
		    enabled_skills = :enabled_skills, updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, query, newStudentRow(stu))
	if err != nil {
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return stu, nil
}

func (repo studentRepository) DeleteStudentsByID(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM student WHERE id IN (?)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "building delete query")
	}
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(query), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting students")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (repo studentRepository) CreateClassroom(ctx context.Context, class student.Classroom) (student.Classroom, error) {
	query := `
		INSERT INTO classroom (id, name, teacher_id, created_at)
		VALUES (:id, :name, :teacher_id, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, query, classroomRow(class)); err != nil {
		return student.Classroom{}, errors.Wrap(err, "inserting classroom")
	}
	return class, nil
}

func (repo studentRepository) GetClassroom(ctx context.Context, id string) (student.Classroom, error) {
	var row classroomRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM classroom WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return student.Classroom{}, student.ErrClassroomNotFound
		}
		return student.Classroom{}, errors.Wrap(err, "getting classroom")
	}
	return row.model(), nil
}

func (repo studentRepository) QueryClassroomsByTeacher(ctx context.Context, teacherID string) ([]student.Classroom, error) {
	var rows []classroomRow
	query := `SELECT * FROM classroom WHERE teacher_id = $1 ORDER BY created_at DESC`
	if err := repo.db.SelectContext(ctx, &rows, query, teacherID); err != nil {
		return nil, errors.Wrap(err, "querying classrooms")
	}
	classes := make([]student.Classroom, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, row.model())
	}
	return classes, nil
}

package inmemdb

import (
	"context"
	"sort"

	"github.com/sorobanclub/backend/core"
	"github.com/sorobanclub/backend/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) CreateStudent(_ context.Context, stu student.Student) (student.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.students[stu.ID] = stu
	return stu, nil
}

func (repo *studentRepository) GetStudent(_ context.Context, id string) (student.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if stu, ok := repo.db.students[id]; ok {
		return stu, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) GetStudentByUserID(_ context.Context, userID string) (student.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	for _, stu := range repo.db.students {
		if stu.UserID != nil && *stu.UserID == userID {
			return stu, nil
		}
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) QueryStudentsByParent(_ context.Context, parentID string, ordering []core.DBOrdering) ([]student.Student, error) {
	return repo.query(func(stu student.Student) bool { return stu.ParentID == parentID }, ordering)
}

func (repo *studentRepository) QueryStudentsByClassroom(_ context.Context, classID string, ordering []core.DBOrdering) ([]student.Student, error) {
	return repo.query(func(stu student.Student) bool { return stu.InClassroom(classID) }, ordering)
}

func (repo *studentRepository) query(match func(student.Student) bool, ordering []core.DBOrdering) ([]student.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	students := make([]student.Student, 0)
	for _, stu := range repo.db.students {
		if match(stu) {
			students = append(students, stu)
		}
	}
	if len(ordering) > 0 && ordering[0].Field == "name" {
		sort.SliceStable(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	} else {
		sort.SliceStable(students, func(i, j int) bool { return students[i].CreatedAt.Before(students[j].CreatedAt) })
	}
	return students, nil
}

func (repo *studentRepository) UpdateStudent(_ context.Context, stu student.Student) (student.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if _, ok := repo.db.students[stu.ID]; !ok {
		return student.Student{}, student.ErrNotFound
	}
	repo.db.students[stu.ID] = stu
	return stu, nil
}

func (repo *studentRepository) DeleteStudentsByID(_ context.Context, ids ...string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	var n int
	for _, id := range ids {
		if _, ok := repo.db.students[id]; ok {
			delete(repo.db.students, id)
			n++
		}
	}
	return n, nil
}

func (repo *studentRepository) CreateClassroom(_ context.Context, class student.Classroom) (student.Classroom, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.classrooms[class.ID] = class
	return class, nil
}

func (repo *studentRepository) GetClassroom(_ context.Context, id string) (student.Classroom, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if class, ok := repo.db.classrooms[id]; ok {
		return class, nil
	}
	return student.Classroom{}, student.ErrClassroomNotFound
}

func (repo *studentRepository) QueryClassroomsByTeacher(_ context.Context, teacherID string) ([]student.Classroom, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	classes := make([]student.Classroom, 0)
	for _, class := range repo.db.classrooms {
		if class.TeacherID == teacherID {
			classes = append(classes, class)
		}
	}
	sort.SliceStable(classes, func(i, j int) bool { return classes[i].CreatedAt.Before(classes[j].CreatedAt) })
	return classes, nil
}

package inmemdb

import (
	"context"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/class"
	"github.com/telatku/telatku/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) find(id string) int {
	for i, s := range repo.db.students {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (repo *studentRepository) classOf(classID string) (class.Class, bool) {
	for _, c := range repo.db.classes {
		if c.ID == classID {
			return c, true
		}
	}
	return class.Class{}, false
}

// join fills the class columns of std.
func (repo *studentRepository) join(std student.Student) student.Student {
	if cls, ok := repo.classOf(std.ClassID); ok {
		std.ClassName = cls.Name
		std.ClassGrade = cls.Grade
	}
	return std
}

func strip(std student.Student) student.Student {
	std.ClassName = ""
	std.ClassGrade = 0
	return std
}

func (repo *studentRepository) CheckNISUniqueness(_ context.Context, nis string, excludedIDs ...string) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, s := range repo.db.students {
		if s.NIS == nis && !contains(excludedIDs, s.ID) {
			return student.ErrNISExists
		}
	}
	return nil
}

func (repo *studentRepository) insert(std student.Student) (student.Student, error) {
	for _, s := range repo.db.students {
		if s.NIS == std.NIS {
			return student.Student{}, student.ErrNISExists
		}
	}
	if _, ok := repo.classOf(std.ClassID); !ok {
		return student.Student{}, class.ErrNotFound
	}
	std.ID = newID()
	repo.db.students = append(repo.db.students, strip(std))
	return repo.join(std), nil
}

func (repo *studentRepository) CreateStudent(_ context.Context, std student.Student) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	return repo.insert(std)
}

func (repo *studentRepository) CreateStudents(_ context.Context, students []student.Student) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	before := len(repo.db.students)
	for _, std := range students {
		if _, err := repo.insert(std); err != nil {
			repo.db.students = repo.db.students[:before]
			return err
		}
	}
	return nil
}

func (repo *studentRepository) QueryStudents(
	_ context.Context,
	filter *student.QueryFilter,
	ordering []core.DBOrdering,
	limit int,
) ([]student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make([]student.Student, 0, len(repo.db.students))
	for _, std := range repo.db.students {
		if filter != nil {
			if filter.Search != "" && !(containsFold(std.FullName, filter.Search) || containsFold(std.NIS, filter.Search)) {
				continue
			}
			if filter.ClassID != "" && std.ClassID != filter.ClassID {
				continue
			}
		}
		students = append(students, repo.join(std))
	}

	if len(ordering) == 0 {
		ordering = studentOrdering
	}
	sortRows(students, ordering, studentFields)
	if limit > 0 && len(students) > limit {
		students = students[:limit]
	}
	return students, nil
}

func (repo *studentRepository) GetStudentByID(_ context.Context, id string) (student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if i := repo.find(id); i >= 0 {
		return repo.join(repo.db.students[i]), nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) ExistingNIS(_ context.Context, nisList []string) (map[string]bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	existing := make(map[string]bool)
	for _, s := range repo.db.students {
		if contains(nisList, s.NIS) {
			existing[s.NIS] = true
		}
	}
	return existing, nil
}

func (repo *studentRepository) UpdateStudent(_ context.Context, std student.Student) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	i := repo.find(std.ID)
	if i < 0 {
		return student.Student{}, student.ErrNotFound
	}
	std.CreatedAt = repo.db.students[i].CreatedAt
	repo.db.students[i] = strip(std)
	return repo.join(std), nil
}

// DeleteStudent also deletes the student's tardiness records.
func (repo *studentRepository) DeleteStudent(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	i := repo.find(id)
	if i < 0 {
		repo.db.mutex.Unlock()
		return student.ErrNotFound
	}
	repo.db.students = append(repo.db.students[:i], repo.db.students[i+1:]...)

	var deleted []string
	kept := repo.db.records[:0]
	for _, rec := range repo.db.records {
		if rec.StudentID == id {
			deleted = append(deleted, rec.ID)
			continue
		}
		kept = append(kept, rec)
	}
	repo.db.records = kept
	repo.db.mutex.Unlock()

	for _, recID := range deleted {
		notify(repo.db, "DELETE", recID)
	}
	return nil
}

package inmemdb

import (
	"context"
	"strings"

	"github.com/telatku/telatku/core/class"
)

type classRepository struct {
	db *DB
}

var _ class.Repository = (*classRepository)(nil)

func NewClassRepository(db *DB) class.Repository {
	return &classRepository{db: db}
}

func (repo *classRepository) find(id string) int {
	for i, c := range repo.db.classes {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (repo *classRepository) CheckNameUniqueness(_ context.Context, name string, excludedIDs ...string) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, c := range repo.db.classes {
		if strings.EqualFold(c.Name, name) && !contains(excludedIDs, c.ID) {
			return class.ErrNameExists
		}
	}
	return nil
}

func (repo *classRepository) CreateClass(_ context.Context, cls class.Class) (class.Class, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	cls.ID = newID()
	repo.db.classes = append(repo.db.classes, cls)
	return cls, nil
}

func (repo *classRepository) QueryClasses(_ context.Context) ([]class.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	classes := append([]class.Class{}, repo.db.classes...)
	sortRows(classes, classOrdering, classFields)
	return classes, nil
}

func (repo *classRepository) GetClassByID(_ context.Context, id string) (class.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if i := repo.find(id); i >= 0 {
		return repo.db.classes[i], nil
	}
	return class.Class{}, class.ErrNotFound
}

func (repo *classRepository) UpdateClass(_ context.Context, cls class.Class) (class.Class, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	i := repo.find(cls.ID)
	if i < 0 {
		return class.Class{}, class.ErrNotFound
	}
	orig := repo.db.classes[i]
	orig.Name = cls.Name
	orig.Grade = cls.Grade
	orig.UpdatedAt = cls.UpdatedAt
	repo.db.classes[i] = orig
	return orig, nil
}

func (repo *classRepository) DeleteClass(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	i := repo.find(id)
	if i < 0 {
		return class.ErrNotFound
	}
	for _, s := range repo.db.students {
		if s.ClassID == id {
			return class.ErrClassInUse
		}
	}
	repo.db.classes = append(repo.db.classes[:i], repo.db.classes[i+1:]...)
	return nil
}

package inmemdb

import (
	"context"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/student"
	"github.com/telatku/telatku/core/tardiness"
	"github.com/telatku/telatku/core/user"
)

type tardinessRepository struct {
	db *DB
}

var _ tardiness.Repository = (*tardinessRepository)(nil)

func NewTardinessRepository(db *DB) tardiness.Repository {
	return &tardinessRepository{db: db}
}

func (repo *tardinessRepository) find(id string) int {
	for i, r := range repo.db.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// join fills the student, class and recorder columns of rec.
func (repo *tardinessRepository) join(rec tardiness.Record) tardiness.Record {
	for _, s := range repo.db.students {
		if s.ID == rec.StudentID {
			rec.StudentNIS = s.NIS
			rec.StudentName = s.FullName
			rec.ClassID = s.ClassID
			break
		}
	}
	for _, c := range repo.db.classes {
		if c.ID == rec.ClassID {
			rec.ClassName = c.Name
			break
		}
	}
	for _, u := range repo.db.profiles {
		if u.ID == rec.RecordedBy {
			rec.RecorderName = u.FullName
			break
		}
	}
	return rec
}

func (repo *tardinessRepository) CreateRecord(_ context.Context, rec tardiness.Record) (tardiness.Record, error) {
	repo.db.mutex.Lock()
	var found bool
	for _, s := range repo.db.students {
		if s.ID == rec.StudentID {
			found = true
			break
		}
	}
	if !found {
		repo.db.mutex.Unlock()
		return tardiness.Record{}, student.ErrNotFound
	}
	if rec.RecordedBy != "" {
		if (&userRepository{db: repo.db}).find(rec.RecordedBy) < 0 {
			repo.db.mutex.Unlock()
			return tardiness.Record{}, user.ErrNotFound
		}
	}

	rec.ID = newID()
	stored := rec
	stored.StudentNIS, stored.StudentName, stored.ClassID, stored.ClassName, stored.RecorderName = "", "", "", "", ""
	repo.db.records = append(repo.db.records, stored)
	rec = repo.join(stored)
	repo.db.mutex.Unlock()

	notify(repo.db, "INSERT", rec.ID)
	return rec, nil
}

func (repo *tardinessRepository) GetRecordByID(_ context.Context, id string) (tardiness.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if i := repo.find(id); i >= 0 {
		return repo.join(repo.db.records[i]), nil
	}
	return tardiness.Record{}, tardiness.ErrNotFound
}

func (repo *tardinessRepository) QueryRecords(
	_ context.Context,
	filter *tardiness.QueryFilter,
	ordering []core.DBOrdering,
) ([]tardiness.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	records := make([]tardiness.Record, 0, len(repo.db.records))
	for _, rec := range repo.db.records {
		rec = repo.join(rec)
		if filter != nil {
			// YYYY-MM-DD strings sort like dates
			if filter.StartDate != "" && rec.Date < filter.StartDate {
				continue
			}
			if filter.EndDate != "" && rec.Date > filter.EndDate {
				continue
			}
			if len(filter.ClassIDs) > 0 && !contains(filter.ClassIDs, rec.ClassID) {
				continue
			}
			if len(filter.Reasons) > 0 && !contains(filter.Reasons, string(rec.Reason)) {
				continue
			}
			if filter.StudentID != "" && rec.StudentID != filter.StudentID {
				continue
			}
			if filter.RecordedBy != "" && rec.RecordedBy != filter.RecordedBy {
				continue
			}
		}
		records = append(records, rec)
	}
	sortRows(records, ordering, recordFields)
	return records, nil
}

func (repo *tardinessRepository) SetNotificationSent(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	i := repo.find(id)
	if i < 0 {
		repo.db.mutex.Unlock()
		return tardiness.ErrNotFound
	}
	repo.db.records[i].NotificationSent = true
	repo.db.mutex.Unlock()

	notify(repo.db, "UPDATE", id)
	return nil
}

func (repo *tardinessRepository) DeleteRecord(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	i := repo.find(id)
	if i < 0 {
		repo.db.mutex.Unlock()
		return tardiness.ErrNotFound
	}
	repo.db.records = append(repo.db.records[:i], repo.db.records[i+1:]...)
	repo.db.mutex.Unlock()

	notify(repo.db, "DELETE", id)
	return nil
}

package student

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/class"
)

const (
	SearchMinLen = 2
	SearchLimit  = 10
)

var (
	// errors
	ErrNotFound  = errors.New("student not found")
	ErrNISExists = errors.New("a student with this NIS already exists")
)

type (
	Repository interface {
		// CheckNISUniqueness returns ErrNISExists when a student other than excludedIDs has nis.
		CheckNISUniqueness(ctx context.Context, nis string, excludedIDs ...string) error
		CreateStudent(ctx context.Context, std Student) (Student, error)
		// CreateStudents inserts all students at once.
		CreateStudents(ctx context.Context, students []Student) error
		// QueryStudents returns students ordered by full name unless ordering says otherwise.
		// QueryFilter.Search does a case-insensitive substring match on full name or NIS.
		QueryStudents(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, limit int) ([]Student, error)
		GetStudentByID(ctx context.Context, id string) (Student, error)
		// ExistingNIS returns the subset of nisList already stored.
		ExistingNIS(ctx context.Context, nisList []string) (map[string]bool, error)
		UpdateStudent(ctx context.Context, std Student) (Student, error)
		DeleteStudent(ctx context.Context, id string) error
	}

	Service interface {
		CheckUniqueness(ctx context.Context, nis string, excluded ...Student) error
		Create(ctx context.Context, ns NewStudent) (Student, error)
		CreateMany(ctx context.Context, students []NewStudent) error
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error)
		Search(ctx context.Context, query string) ([]Student, error)
		GetByID(ctx context.Context, id string) (Student, error)
		ExistingNIS(ctx context.Context, nisList []string) (map[string]bool, error)
		Update(ctx context.Context, id string, us UpdateStudent) (Student, error)
		Delete(ctx context.Context, id string) error
	}

	service struct {
		repo     Repository
		classSvc class.Service
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, classSvc class.Service) Service {
	return &service{repo: repo, classSvc: classSvc}
}

func (svc *service) CheckUniqueness(ctx context.Context, nis string, excluded ...Student) error {
	ids := make([]string, 0, len(excluded))
	for _, s := range excluded {
		ids = append(ids, s.ID)
	}
	if err := svc.repo.CheckNISUniqueness(ctx, nis, ids...); err != nil {
		if err == ErrNISExists {
			return core.NewFieldValidationError("nis", err)
		}
		return pkgerrors.Wrap(err, "checking NIS uniqueness")
	}
	return nil
}

func (svc *service) checkClass(ctx context.Context, classID string) error {
	if _, err := svc.classSvc.GetByID(ctx, classID); err != nil {
		if err == class.ErrNotFound {
			return core.NewFieldValidationError("class_id", err)
		}
		return pkgerrors.Wrap(err, "finding class by ID")
	}
	return nil
}

func (svc *service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	if err := svc.checkClass(ctx, ns.ClassID); err != nil {
		return Student{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateStudent(ctx, newStudent(ns, now))
}

// CreateMany inserts already validated students; class ids are trusted.
func (svc *service) CreateMany(ctx context.Context, students []NewStudent) error {
	now := time.Now().UTC()
	batch := make([]Student, 0, len(students))
	for _, ns := range students {
		batch = append(batch, newStudent(ns, now))
	}
	return svc.repo.CreateStudents(ctx, batch)
}

func newStudent(ns NewStudent, now time.Time) Student {
	return Student{
		NIS:            ns.NIS,
		FullName:       ns.FullName,
		ClassID:        ns.ClassID,
		ParentName:     ns.ParentName,
		ParentPhone:    ns.ParentPhone,
		ParentWhatsApp: ns.ParentWhatsApp,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error) {
	return svc.repo.QueryStudents(ctx, filter, ordering, 0)
}

// Search returns up to SearchLimit students whose name or NIS contains query;
// queries shorter than SearchMinLen match nothing.
func (svc *service) Search(ctx context.Context, query string) ([]Student, error) {
	query = core.CleanString(query)
	if len([]rune(query)) < SearchMinLen {
		return []Student{}, nil
	}
	return svc.repo.QueryStudents(ctx, &QueryFilter{Search: query}, nil, SearchLimit)
}

func (svc *service) GetByID(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudentByID(ctx, id)
}

func (svc *service) ExistingNIS(ctx context.Context, nisList []string) (map[string]bool, error) {
	if len(nisList) == 0 {
		return map[string]bool{}, nil
	}
	return svc.repo.ExistingNIS(ctx, nisList)
}

func (svc *service) Update(ctx context.Context, id string, us UpdateStudent) (Student, error) {
	std, err := svc.repo.GetStudentByID(ctx, id)
	if err != nil {
		return Student{}, err
	}
	if us.ClassID != std.ClassID {
		if err = svc.checkClass(ctx, us.ClassID); err != nil {
			return Student{}, err
		}
	}
	std.NIS = us.NIS
	std.FullName = us.FullName
	std.ClassID = us.ClassID
	std.ParentName = us.ParentName
	std.ParentPhone = us.ParentPhone
	std.ParentWhatsApp = us.ParentWhatsApp
	std.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateStudent(ctx, std)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteStudent(ctx, id)
}

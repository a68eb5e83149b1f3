package class

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/telatku/telatku/core"
)

var (
	// errors
	ErrNotFound   = errors.New("class not found")
	ErrNameExists = errors.New("a class with this name already exists")
	ErrClassInUse = errors.New("class still has students")
)

type (
	Repository interface {
		// CheckNameUniqueness does a case-insensitive name match, ignoring excludedIDs.
		CheckNameUniqueness(ctx context.Context, name string, excludedIDs ...string) error
		CreateClass(ctx context.Context, cls Class) (Class, error)
		// QueryClasses returns every class ordered by grade then name.
		QueryClasses(ctx context.Context) ([]Class, error)
		GetClassByID(ctx context.Context, id string) (Class, error)
		UpdateClass(ctx context.Context, cls Class) (Class, error)
		// DeleteClass returns ErrClassInUse while students reference the class.
		DeleteClass(ctx context.Context, id string) error
	}

	Service interface {
		CheckUniqueness(ctx context.Context, name string, excluded ...Class) error
		Create(ctx context.Context, nc NewClass) (Class, error)
		QueryAll(ctx context.Context) ([]Class, error)
		GetByID(ctx context.Context, id string) (Class, error)
		Update(ctx context.Context, id string, uc UpdateClass) (Class, error)
		Delete(ctx context.Context, id string) error
		// IDsByName maps upper-cased class names to their ids.
		IDsByName(ctx context.Context) (map[string]string, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) CheckUniqueness(ctx context.Context, name string, excluded ...Class) error {
	ids := make([]string, 0, len(excluded))
	for _, c := range excluded {
		ids = append(ids, c.ID)
	}
	if err := svc.repo.CheckNameUniqueness(ctx, name, ids...); err != nil {
		if err == ErrNameExists {
			return core.NewFieldValidationError("name", err)
		}
		return pkgerrors.Wrap(err, "checking class name uniqueness")
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nc NewClass) (Class, error) {
	now := time.Now().UTC()
	return svc.repo.CreateClass(ctx, Class{
		Name:      nc.Name,
		Grade:     nc.Grade,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *service) QueryAll(ctx context.Context) ([]Class, error) {
	return svc.repo.QueryClasses(ctx)
}

func (svc *service) GetByID(ctx context.Context, id string) (Class, error) {
	return svc.repo.GetClassByID(ctx, id)
}

func (svc *service) Update(ctx context.Context, id string, uc UpdateClass) (Class, error) {
	cls, err := svc.repo.GetClassByID(ctx, id)
	if err != nil {
		return Class{}, err
	}
	cls.Name = uc.Name
	cls.Grade = uc.Grade
	cls.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateClass(ctx, cls)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	if err := svc.repo.DeleteClass(ctx, id); err != nil {
		if err == ErrClassInUse {
			return core.NewValidationError(err)
		}
		return err
	}
	return nil
}

func (svc *service) IDsByName(ctx context.Context) (map[string]string, error) {
	classes, err := svc.repo.QueryClasses(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying classes")
	}
	ids := make(map[string]string, len(classes))
	for _, c := range classes {
		ids[NameKey(c.Name)] = c.ID
	}
	return ids, nil
}

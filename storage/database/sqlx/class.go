package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/telatku/telatku/core/class"
)

type (
	classRepository struct {
		db *sqlx.DB
	}

	classRow struct {
		ID        string    `db:"id"`
		Name      string    `db:"name"`
		Grade     int       `db:"grade"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}
)

var _ class.Repository = (*classRepository)(nil) // interface compliance check

var classColumns = []string{"id", "name", "grade", "created_at", "updated_at"}

func NewClassRepository(db *sqlx.DB) class.Repository {
	return &classRepository{db: db}
}

func (row classRow) unboil() class.Class {
	return class.Class{
		ID:        row.ID,
		Name:      row.Name,
		Grade:     row.Grade,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

func (repo *classRepository) CheckNameUniqueness(ctx context.Context, name string, excludedIDs ...string) error {
	query := psql.Select("1").From("classes").Where("upper(name) = upper(?)", name)
	if len(excludedIDs) > 0 {
		query = query.Where(sq.NotEq{"id": excludedIDs})
	}
	found, err := exists(ctx, getExec(ctx, repo.db), query)
	if err != nil {
		return errors.Wrap(err, "checking class name uniqueness")
	}
	if found {
		return class.ErrNameExists
	}
	return nil
}

func (repo *classRepository) CreateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	cls.ID = uuid.New().String()
	query := psql.Insert("classes").
		Columns(classColumns...).
		Values(cls.ID, cls.Name, cls.Grade, cls.CreatedAt.UTC(), cls.UpdatedAt.UTC())
	if err := execAffected(ctx, getExec(ctx, repo.db), query, nil); err != nil {
		if pqCode(err) == pqUniqueViolation {
			return class.Class{}, class.ErrNameExists
		}
		return class.Class{}, errors.Wrap(err, "inserting class")
	}
	return cls, nil
}

func (repo *classRepository) QueryClasses(ctx context.Context) ([]class.Class, error) {
	var rows []classRow
	query := psql.Select(classColumns...).From("classes").OrderBy("grade ASC", "name ASC")
	if err := selectAll(ctx, getExec(ctx, repo.db), &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}

	classes := make([]class.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, row.unboil())
	}
	return classes, nil
}

func (repo *classRepository) GetClassByID(ctx context.Context, id string) (class.Class, error) {
	if !validID(id) {
		return class.Class{}, class.ErrNotFound
	}
	var row classRow
	query := psql.Select(classColumns...).From("classes").Where(sq.Eq{"id": id})
	if err := get(ctx, getExec(ctx, repo.db), &row, query); err != nil {
		return class.Class{}, trapNoRowsErr(err, class.ErrNotFound, "finding class by ID")
	}
	return row.unboil(), nil
}

func (repo *classRepository) UpdateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	if !validID(cls.ID) {
		return class.Class{}, class.ErrNotFound
	}
	query := psql.Update("classes").
		Set("name", cls.Name).
		Set("grade", cls.Grade).
		Set("updated_at", cls.UpdatedAt.UTC()).
		Where(sq.Eq{"id": cls.ID})
	if err := execAffected(ctx, getExec(ctx, repo.db), query, class.ErrNotFound); err != nil {
		switch {
		case err == class.ErrNotFound:
			return class.Class{}, err
		case pqCode(err) == pqUniqueViolation:
			return class.Class{}, class.ErrNameExists
		}
		return class.Class{}, errors.Wrap(err, "updating class")
	}
	return cls, nil
}

func (repo *classRepository) DeleteClass(ctx context.Context, id string) error {
	if !validID(id) {
		return class.ErrNotFound
	}
	query := psql.Delete("classes").Where(sq.Eq{"id": id})
	if err := execAffected(ctx, getExec(ctx, repo.db), query, class.ErrNotFound); err != nil {
		switch {
		case err == class.ErrNotFound:
			return err
		case pqCode(err) == pqForeignKeyViolation:
			return class.ErrClassInUse
		}
		return errors.Wrap(err, "deleting class")
	}
	return nil
}

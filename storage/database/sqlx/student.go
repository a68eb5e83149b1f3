package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/class"
	"github.com/telatku/telatku/core/student"
)

type (
	studentRepository struct {
		db *sqlx.DB
	}

	studentRow struct {
		ID             string      `db:"id"`
		NIS            string      `db:"nis"`
		FullName       string      `db:"full_name"`
		ClassID        string      `db:"class_id"`
		ClassName      string      `db:"class_name"`
		ClassGrade     int         `db:"class_grade"`
		ParentName     null.String `db:"parent_name"`
		ParentPhone    null.String `db:"parent_phone"`
		ParentWhatsApp null.String `db:"parent_whatsapp"`
		CreatedAt      time.Time   `db:"created_at"`
		UpdatedAt      time.Time   `db:"updated_at"`
	}
)

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

var (
	studentOrderColumns = map[string]string{
		"full_name":  "s.full_name",
		"nis":        "s.nis",
		"class_name": "c.name",
		"created_at": "s.created_at",
	}
	studentDefaultOrdering = []core.DBOrdering{{Field: "full_name", Ascending: true}}
	studentInsertColumns   = []string{
		"id", "nis", "full_name", "class_id", "parent_name", "parent_phone", "parent_whatsapp", "created_at", "updated_at",
	}
)

func NewStudentRepository(db *sqlx.DB) student.Repository {
	return &studentRepository{db: db}
}

func (row studentRow) unboil() student.Student {
	return student.Student{
		ID:             row.ID,
		NIS:            row.NIS,
		FullName:       row.FullName,
		ClassID:        row.ClassID,
		ClassName:      row.ClassName,
		ClassGrade:     row.ClassGrade,
		ParentName:     row.ParentName.String,
		ParentPhone:    row.ParentPhone.String,
		ParentWhatsApp: row.ParentWhatsApp.String,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
}

func insertValues(std student.Student) []interface{} {
	return []interface{}{
		std.ID, std.NIS, std.FullName, std.ClassID,
		null.NewString(std.ParentName, std.ParentName != ""),
		null.NewString(std.ParentPhone, std.ParentPhone != ""),
		null.NewString(std.ParentWhatsApp, std.ParentWhatsApp != ""),
		std.CreatedAt.UTC(), std.UpdatedAt.UTC(),
	}
}

// trapWriteErr maps constraint violations of a student write to domain errors.
func trapWriteErr(err error, msg string) error {
	switch pqCode(err) {
	case pqUniqueViolation:
		return student.ErrNISExists
	case pqForeignKeyViolation:
		return class.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo *studentRepository) selectStudents() sq.SelectBuilder {
	return psql.Select(
		"s.id", "s.nis", "s.full_name", "s.class_id", "c.name AS class_name", "c.grade AS class_grade",
		"s.parent_name", "s.parent_phone", "s.parent_whatsapp", "s.created_at", "s.updated_at",
	).
		From("students s").
		Join("classes c ON c.id = s.class_id")
}

func (repo *studentRepository) CheckNISUniqueness(ctx context.Context, nis string, excludedIDs ...string) error {
	query := psql.Select("1").From("students").Where(sq.Eq{"nis": nis})
	if len(excludedIDs) > 0 {
		query = query.Where(sq.NotEq{"id": excludedIDs})
	}
	found, err := exists(ctx, getExec(ctx, repo.db), query)
	if err != nil {
		return errors.Wrap(err, "checking NIS uniqueness")
	}
	if found {
		return student.ErrNISExists
	}
	return nil
}

func (repo *studentRepository) CreateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	if !validID(std.ClassID) {
		return student.Student{}, class.ErrNotFound
	}
	std.ID = uuid.New().String()
	query := psql.Insert("students").Columns(studentInsertColumns...).Values(insertValues(std)...)
	if err := execAffected(ctx, getExec(ctx, repo.db), query, nil); err != nil {
		return student.Student{}, trapWriteErr(err, "inserting student")
	}
	return repo.GetStudentByID(ctx, std.ID)
}

func (repo *studentRepository) CreateStudents(ctx context.Context, students []student.Student) error {
	if len(students) == 0 {
		return nil
	}
	query := psql.Insert("students").Columns(studentInsertColumns...)
	for _, std := range students {
		std.ID = uuid.New().String()
		query = query.Values(insertValues(std)...)
	}
	if err := execAffected(ctx, getExec(ctx, repo.db), query, nil); err != nil {
		return trapWriteErr(err, "inserting students")
	}
	return nil
}

func (repo *studentRepository) QueryStudents(
	ctx context.Context,
	filter *student.QueryFilter,
	ordering []core.DBOrdering,
	limit int,
) ([]student.Student, error) {
	query := repo.selectStudents()

	if filter != nil {
		if filter.Search != "" {
			val := likePattern(filter.Search)
			query = query.Where(sq.Or{sq.ILike{"s.full_name": val}, sq.ILike{"s.nis": val}})
		}
		if filter.ClassID != "" {
			if !validID(filter.ClassID) {
				return []student.Student{}, nil
			}
			query = query.Where(sq.Eq{"s.class_id": filter.ClassID})
		}
	}
	query = query.OrderBy(orderBy(ordering, studentOrderColumns, studentDefaultOrdering)...)
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	var rows []studentRow
	if err := selectAll(ctx, getExec(ctx, repo.db), &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}

	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.unboil())
	}
	return students, nil
}

func (repo *studentRepository) GetStudentByID(ctx context.Context, id string) (student.Student, error) {
	if !validID(id) {
		return student.Student{}, student.ErrNotFound
	}
	var row studentRow
	if err := get(ctx, getExec(ctx, repo.db), &row, repo.selectStudents().Where(sq.Eq{"s.id": id})); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "finding student by ID")
	}
	return row.unboil(), nil
}

func (repo *studentRepository) ExistingNIS(ctx context.Context, nisList []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(nisList) == 0 {
		return found, nil
	}

	var existing []string
	query := psql.Select("nis").From("students").Where("nis = ANY(?)", pq.Array(nisList))
	if err := selectAll(ctx, getExec(ctx, repo.db), &existing, query); err != nil {
		return nil, errors.Wrap(err, "querying existing NIS")
	}
	for _, nis := range existing {
		found[nis] = true
	}
	return found, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	if !validID(std.ID) {
		return student.Student{}, student.ErrNotFound
	}
	if !validID(std.ClassID) {
		return student.Student{}, class.ErrNotFound
	}
	query := psql.Update("students").
		Set("nis", std.NIS).
		Set("full_name", std.FullName).
		Set("class_id", std.ClassID).
		Set("parent_name", null.NewString(std.ParentName, std.ParentName != "")).
		Set("parent_phone", null.NewString(std.ParentPhone, std.ParentPhone != "")).
		Set("parent_whatsapp", null.NewString(std.ParentWhatsApp, std.ParentWhatsApp != "")).
		Set("updated_at", std.UpdatedAt.UTC()).
		Where(sq.Eq{"id": std.ID})

	if err := execAffected(ctx, getExec(ctx, repo.db), query, student.ErrNotFound); err != nil {
		if err == student.ErrNotFound {
			return student.Student{}, err
		}
		return student.Student{}, trapWriteErr(err, "updating student")
	}
	return repo.GetStudentByID(ctx, std.ID)
}

// DeleteStudent removes the student; its tardiness records go with it (ON DELETE CASCADE).
func (repo *studentRepository) DeleteStudent(ctx context.Context, id string) error {
	if !validID(id) {
		return student.ErrNotFound
	}
	query := psql.Delete("students").Where(sq.Eq{"id": id})
	if err := execAffected(ctx, getExec(ctx, repo.db), query, student.ErrNotFound); err != nil {
		if err == student.ErrNotFound {
			return err
		}
		return errors.Wrap(err, "deleting student")
	}
	return nil
}

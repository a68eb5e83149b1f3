package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/student"
	"github.com/telatku/telatku/core/tardiness"
	"github.com/telatku/telatku/core/user"
)

type (
	tardinessRepository struct {
		db *sqlx.DB
	}

	recordRow struct {
		ID               string      `db:"id"`
		StudentID        string      `db:"student_id"`
		RecordedBy       null.String `db:"recorded_by"`
		Date             string      `db:"tardiness_date"`
		Time             string      `db:"tardiness_time"`
		Reason           string      `db:"reason"`
		ReasonDetail     null.String `db:"reason_detail"`
		ActionTaken      null.String `db:"action_taken"`
		NotificationSent bool        `db:"notification_sent"`
		CreatedAt        time.Time   `db:"created_at"`
		StudentNIS       string      `db:"student_nis"`
		StudentName      string      `db:"student_name"`
		ClassID          string      `db:"class_id"`
		ClassName        string      `db:"class_name"`
		RecorderName     null.String `db:"recorder_name"`
	}
)

var _ tardiness.Repository = (*tardinessRepository)(nil) // interface compliance check

var recordOrderColumns = map[string]string{
	"date":         "r.tardiness_date",
	"time":         "r.tardiness_time",
	"created_at":   "r.created_at",
	"id":           "r.id",
	"student_name": "s.full_name",
	"class_name":   "c.name",
}

func NewTardinessRepository(db *sqlx.DB) tardiness.Repository {
	return &tardinessRepository{db: db}
}

func (row recordRow) unboil() tardiness.Record {
	return tardiness.Record{
		ID:               row.ID,
		StudentID:        row.StudentID,
		RecordedBy:       row.RecordedBy.String,
		Date:             row.Date,
		Time:             row.Time,
		Reason:           tardiness.Reason(row.Reason),
		ReasonDetail:     row.ReasonDetail.String,
		ActionTaken:      row.ActionTaken.String,
		NotificationSent: row.NotificationSent,
		CreatedAt:        row.CreatedAt.UTC(),
		StudentNIS:       row.StudentNIS,
		StudentName:      row.StudentName,
		ClassID:          row.ClassID,
		ClassName:        row.ClassName,
		RecorderName:     row.RecorderName.String,
	}
}

func (repo *tardinessRepository) selectRecords() sq.SelectBuilder {
	return psql.Select(
		"r.id", "r.student_id", "r.recorded_by",
		"to_char(r.tardiness_date, 'YYYY-MM-DD') AS tardiness_date",
		"to_char(r.tardiness_time, 'HH24:MI:SS') AS tardiness_time",
		"r.reason", "r.reason_detail", "r.action_taken", "r.notification_sent", "r.created_at",
		"s.nis AS student_nis", "s.full_name AS student_name",
		"s.class_id", "c.name AS class_name", "p.full_name AS recorder_name",
	).
		From("tardiness_records r").
		Join("students s ON s.id = r.student_id").
		Join("classes c ON c.id = s.class_id").
		LeftJoin("profiles p ON p.id = r.recorded_by")
}

func (repo *tardinessRepository) CreateRecord(ctx context.Context, rec tardiness.Record) (tardiness.Record, error) {
	if !validID(rec.StudentID) {
		return tardiness.Record{}, student.ErrNotFound
	}
	if rec.RecordedBy != "" && !validID(rec.RecordedBy) {
		return tardiness.Record{}, user.ErrNotFound
	}

	rec.ID = uuid.New().String()
	query := psql.Insert("tardiness_records").
		Columns(
			"id", "student_id", "recorded_by", "tardiness_date", "tardiness_time", "reason",
			"reason_detail", "action_taken", "notification_sent", "created_at",
		).
		Values(
			rec.ID, rec.StudentID, null.NewString(rec.RecordedBy, rec.RecordedBy != ""),
			rec.Date, rec.Time, string(rec.Reason),
			null.NewString(rec.ReasonDetail, rec.ReasonDetail != ""),
			null.NewString(rec.ActionTaken, rec.ActionTaken != ""),
			rec.NotificationSent, rec.CreatedAt.UTC(),
		)
	if err := execAffected(ctx, getExec(ctx, repo.db), query, nil); err != nil {
		if pqCode(err) == pqForeignKeyViolation {
			if constraintOf(err) == "tardiness_records_recorded_by_fkey" {
				return tardiness.Record{}, user.ErrNotFound
			}
			return tardiness.Record{}, student.ErrNotFound
		}
		return tardiness.Record{}, errors.Wrap(err, "inserting tardiness record")
	}
	return repo.GetRecordByID(ctx, rec.ID)
}

func (repo *tardinessRepository) GetRecordByID(ctx context.Context, id string) (tardiness.Record, error) {
	if !validID(id) {
		return tardiness.Record{}, tardiness.ErrNotFound
	}
	var row recordRow
	if err := get(ctx, getExec(ctx, repo.db), &row, repo.selectRecords().Where(sq.Eq{"r.id": id})); err != nil {
		return tardiness.Record{}, trapNoRowsErr(err, tardiness.ErrNotFound, "finding tardiness record by ID")
	}
	return row.unboil(), nil
}

func (repo *tardinessRepository) QueryRecords(
	ctx context.Context,
	filter *tardiness.QueryFilter,
	ordering []core.DBOrdering,
) ([]tardiness.Record, error) {
	query := repo.selectRecords()

	if filter != nil {
		if filter.StartDate != "" {
			query = query.Where(sq.GtOrEq{"r.tardiness_date": filter.StartDate})
		}
		if filter.EndDate != "" {
			query = query.Where(sq.LtOrEq{"r.tardiness_date": filter.EndDate})
		}
		if len(filter.ClassIDs) > 0 {
			ids := validIDs(filter.ClassIDs)
			if len(ids) == 0 {
				return []tardiness.Record{}, nil
			}
			query = query.Where(sq.Eq{"s.class_id": ids})
		}
		if len(filter.Reasons) > 0 {
			query = query.Where(sq.Eq{"r.reason": filter.Reasons})
		}
		if filter.StudentID != "" {
			if !validID(filter.StudentID) {
				return []tardiness.Record{}, nil
			}
			query = query.Where(sq.Eq{"r.student_id": filter.StudentID})
		}
		if filter.RecordedBy != "" {
			if !validID(filter.RecordedBy) {
				return []tardiness.Record{}, nil
			}
			query = query.Where(sq.Eq{"r.recorded_by": filter.RecordedBy})
		}
	}
	query = query.OrderBy(orderBy(ordering, recordOrderColumns, tardiness.OrderLatestFirst)...)

	var rows []recordRow
	if err := selectAll(ctx, getExec(ctx, repo.db), &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying tardiness records")
	}

	records := make([]tardiness.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.unboil())
	}
	return records, nil
}

func (repo *tardinessRepository) SetNotificationSent(ctx context.Context, id string) error {
	if !validID(id) {
		return tardiness.ErrNotFound
	}
	query := psql.Update("tardiness_records").Set("notification_sent", true).Where(sq.Eq{"id": id})
	if err := execAffected(ctx, getExec(ctx, repo.db), query, tardiness.ErrNotFound); err != nil {
		if err == tardiness.ErrNotFound {
			return err
		}
		return errors.Wrap(err, "flagging tardiness notification")
	}
	return nil
}

func (repo *tardinessRepository) DeleteRecord(ctx context.Context, id string) error {
	if !validID(id) {
		return tardiness.ErrNotFound
	}
	query := psql.Delete("tardiness_records").Where(sq.Eq{"id": id})
	if err := execAffected(ctx, getExec(ctx, repo.db), query, tardiness.ErrNotFound); err != nil {
		if err == tardiness.ErrNotFound {
			return err
		}
		return errors.Wrap(err, "deleting tardiness record")
	}
	return nil
}

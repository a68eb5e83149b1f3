package tardiness

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/student"
	"github.com/telatku/telatku/core/user"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound = errors.New("tardiness record not found")

	// orderings
	OrderLatestFirst = []core.DBOrdering{{Field: "date"}, {Field: "time"}, {Field: "created_at"}, {Field: "id"}}
	OrderChronologic = []core.DBOrdering{
		{Field: "date", Ascending: true}, {Field: "time", Ascending: true},
		{Field: "created_at", Ascending: true}, {Field: "id", Ascending: true},
	}
)

type (
	Repository interface {
		// CreateRecord stores rec and returns it with its student, class and recorder.
		CreateRecord(ctx context.Context, rec Record) (Record, error)
		GetRecordByID(ctx context.Context, id string) (Record, error)
		// QueryRecords applies AND operation on available QueryFilter fields; ordering fields
		// are "date", "time", "created_at", "id", "student_name" and "class_name".
		QueryRecords(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Record, error)
		SetNotificationSent(ctx context.Context, id string) error
		DeleteRecord(ctx context.Context, id string) error
	}

	Service interface {
		// Record logs a late arrival of a student now, on the school clock.
		Record(ctx context.Context, recorder user.User, nr NewRecord) (Record, error)
		// Today returns today's records, latest first.
		Today(ctx context.Context) ([]Record, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Record, error)
		GetByID(ctx context.Context, id string) (Record, error)
		Delete(ctx context.Context, id string) error
		// Today's date on the school clock, YYYY-MM-DD.
		TodayDate() string
		Location() *time.Location
	}

	service struct {
		loc        *time.Location
		repo       Repository
		studentSvc student.Service
		userSvc    user.Service
		mailSvc    core.EmailService
		logger     core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	conf *core.Config,
	repo Repository,
	studentSvc student.Service,
	userSvc user.Service,
	mailSvc core.EmailService,
	logger core.Logger,
) Service {
	return &service{
		loc:        conf.Location(),
		repo:       repo,
		studentSvc: studentSvc,
		userSvc:    userSvc,
		mailSvc:    mailSvc,
		logger:     logger,
	}
}

func (svc *service) Location() *time.Location { return svc.loc }

func (svc *service) TodayDate() string {
	return nowFunc().In(svc.loc).Format(core.DateLayout)
}

func (svc *service) Record(ctx context.Context, recorder user.User, nr NewRecord) (Record, error) {
	std, err := svc.studentSvc.GetByID(ctx, nr.StudentID)
	if err != nil {
		if err == student.ErrNotFound {
			return Record{}, core.NewFieldValidationError("student_id", err)
		}
		return Record{}, pkgerrors.Wrap(err, "finding student by ID")
	}

	now := nowFunc()
	schoolNow := now.In(svc.loc)
	rec, err := svc.repo.CreateRecord(ctx, Record{
		StudentID:    std.ID,
		RecordedBy:   recorder.ID,
		Date:         schoolNow.Format(core.DateLayout),
		Time:         schoolNow.Format(core.TimeLayout),
		Reason:       nr.Reason,
		ReasonDetail: nr.ReasonDetail,
		ActionTaken:  nr.ActionTaken,
		CreatedAt:    now.UTC(),
	})
	if err != nil {
		return Record{}, pkgerrors.Wrap(err, "creating tardiness record")
	}

	if sent, err := svc.notifyHomeroom(ctx, rec); err != nil {
		svc.logger.Error(fmt.Sprintf("notifying homeroom teachers: %v", err), err, recorder)
	} else if sent {
		rec.NotificationSent = true
	}
	return rec, nil
}

// notifyHomeroom emails the homeroom teachers of the student's class and flags the record.
func (svc *service) notifyHomeroom(ctx context.Context, rec Record) (bool, error) {
	teachers, err := svc.userSvc.HomeroomTeachers(ctx, rec.ClassID)
	if err != nil {
		return false, pkgerrors.Wrap(err, "finding homeroom teachers")
	}
	if len(teachers) == 0 {
		return false, nil
	}

	date := rec.Date
	if d, err := time.Parse(core.DateLayout, rec.Date); err == nil {
		date = d.Format("02/01/2006")
	}
	messages := make([]*core.EmailMessage, 0, len(teachers))
	for _, t := range teachers {
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: t.FullName, Address: t.Email}},
			Subject:      "Keterlambatan " + rec.StudentName,
			TemplateName: "tardiness_notice",
			TemplateData: struct {
				TeacherName, ClassName, StudentName, NIS, Date, Time, Reason, ReasonDetail, ActionTaken string
			}{
				TeacherName:  t.FullName,
				ClassName:    rec.ClassName,
				StudentName:  rec.StudentName,
				NIS:          rec.StudentNIS,
				Date:         date,
				Time:         rec.Time,
				Reason:       rec.Reason.Label(),
				ReasonDetail: rec.ReasonDetail,
				ActionTaken:  rec.ActionTaken,
			},
		})
	}
	svc.mailSvc.SendMessages(messages...)

	if err = svc.repo.SetNotificationSent(ctx, rec.ID); err != nil {
		return false, pkgerrors.Wrap(err, "flagging notification")
	}
	return true, nil
}

func (svc *service) Today(ctx context.Context) ([]Record, error) {
	today := svc.TodayDate()
	return svc.repo.QueryRecords(ctx, &QueryFilter{StartDate: today, EndDate: today}, OrderLatestFirst)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Record, error) {
	if len(ordering) == 0 {
		ordering = OrderLatestFirst
	}
	return svc.repo.QueryRecords(ctx, filter, ordering)
}

func (svc *service) GetByID(ctx context.Context, id string) (Record, error) {
	return svc.repo.GetRecordByID(ctx, id)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteRecord(ctx, id)
}

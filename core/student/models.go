package student

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/telatku/telatku/core"
)

// Student is listed with the name and grade of its class.
type Student struct {
	ID             string    `json:"id"`
	NIS            string    `json:"nis"`
	FullName       string    `json:"full_name"`
	ClassID        string    `json:"class_id"`
	ClassName      string    `json:"class_name"`
	ClassGrade     int       `json:"class_grade"`
	ParentName     string    `json:"parent_name"`
	ParentPhone    string    `json:"parent_phone"`
	ParentWhatsApp string    `json:"parent_whatsapp"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
}

// NewStudent contains information needed to create a new Student.
type NewStudent struct {
	NIS            string `json:"nis" validate:"notblank,max=30"`
	FullName       string `json:"full_name" validate:"notblank"`
	ClassID        string `json:"class_id" validate:"required,uuid4"`
	ParentName     string `json:"parent_name"`
	ParentPhone    string `json:"parent_phone" validate:"phone"`
	ParentWhatsApp string `json:"parent_whatsapp" validate:"phone"`
}

func (ns *NewStudent) Clean() {
	ns.NIS = core.CleanString(ns.NIS)
	ns.FullName = core.CleanString(ns.FullName)
	ns.ClassID = core.CleanString(ns.ClassID)
	ns.ParentName = core.CleanString(ns.ParentName)
	ns.ParentPhone = core.CleanString(ns.ParentPhone)
	ns.ParentWhatsApp = core.CleanString(ns.ParentWhatsApp)
}

func (ns *NewStudent) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	ns.Clean()
	if err := validate.Struct(ns); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, ns.NIS)
}

// UpdateStudent defines what information may be provided to modify an existing Student.
// Empty NIS, FullName and ClassID keep their current value.
type UpdateStudent struct {
	NIS            string `json:"nis" validate:"notblank,max=30"`
	FullName       string `json:"full_name" validate:"notblank"`
	ClassID        string `json:"class_id" validate:"required,uuid4"`
	ParentName     string `json:"parent_name"`
	ParentPhone    string `json:"parent_phone" validate:"phone"`
	ParentWhatsApp string `json:"parent_whatsapp" validate:"phone"`
}

func (us *UpdateStudent) Validate(ctx context.Context, orig Student, validate *validator.Validate, svc Service) error {
	keep := func(val, origVal string) string {
		if val = core.CleanString(val); val != "" {
			return val
		}
		return origVal
	}
	us.NIS = keep(us.NIS, orig.NIS)
	us.FullName = keep(us.FullName, orig.FullName)
	us.ClassID = keep(us.ClassID, orig.ClassID)
	us.ParentName = core.CleanString(us.ParentName)
	us.ParentPhone = core.CleanString(us.ParentPhone)
	us.ParentWhatsApp = core.CleanString(us.ParentWhatsApp)

	if err := validate.Struct(us); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, us.NIS, orig)
}

type QueryFilter struct {
	Search  string `query:"search"`
	ClassID string `query:"class_id"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.ClassID = core.CleanString(qf.ClassID)
}

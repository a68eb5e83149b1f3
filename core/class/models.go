package class

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/telatku/telatku/core"
)

const DefaultGrade = 10

type Class struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Grade     int       `json:"grade"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// NewClass contains information needed to create a new Class.
type NewClass struct {
	Name  string `json:"name" validate:"notblank,max=50"`
	Grade int    `json:"grade" validate:"omitempty,oneof=10 11 12"`
}

func (nc *NewClass) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nc.Name = core.CleanString(nc.Name)
	if nc.Grade == 0 {
		nc.Grade = DefaultGrade
	}
	if err := validate.Struct(nc); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nc.Name)
}

// UpdateClass defines what information may be provided to modify an existing Class.
type UpdateClass struct {
	Name  string `json:"name" validate:"notblank,max=50"`
	Grade int    `json:"grade" validate:"oneof=10 11 12"`
}

func (uc *UpdateClass) Validate(ctx context.Context, orig Class, validate *validator.Validate, svc Service) error {
	if name := core.CleanString(uc.Name); name != "" {
		uc.Name = name
	} else {
		uc.Name = orig.Name
	}
	if uc.Grade == 0 {
		uc.Grade = orig.Grade
	}
	if err := validate.Struct(uc); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uc.Name, orig)
}

package analytics

import (
	"errors"
	"time"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/tardiness"
)

const (
	DefaultRangeDays = 30
	TopStudentsLimit = 10
)

// Filter selects the records of an inclusive date range, optionally restricted to classes and reasons.
type Filter struct {
	StartDate string   `query:"start_date" json:"start_date"`
	EndDate   string   `query:"end_date" json:"end_date"`
	ClassIDs  []string `query:"class_id" json:"class_ids"`
	Reasons   []string `query:"reason" json:"reasons"`
}

// Normalize cleans f and fills a missing range with the last DefaultRangeDays days ending today.
func (f *Filter) Normalize(today time.Time) error {
	f.StartDate = core.CleanString(f.StartDate)
	f.EndDate = core.CleanString(f.EndDate)
	f.ClassIDs = core.CleanStrings(f.ClassIDs)
	f.Reasons = core.CleanStrings(f.Reasons)

	end := today
	if f.EndDate != "" {
		d, err := core.ParseDate(f.EndDate, today.Location())
		if err != nil {
			return core.NewFieldValidationError("end_date", errors.New("invalid date, expected YYYY-MM-DD"))
		}
		end = d
	}
	start := end.AddDate(0, 0, -(DefaultRangeDays - 1))
	if f.StartDate != "" {
		d, err := core.ParseDate(f.StartDate, today.Location())
		if err != nil {
			return core.NewFieldValidationError("start_date", errors.New("invalid date, expected YYYY-MM-DD"))
		}
		start = d
	}
	if start.After(end) {
		return core.NewFieldValidationError("start_date", errors.New("start date is after end date"))
	}
	for _, r := range f.Reasons {
		if !tardiness.Reason(r).IsValid() {
			return core.NewFieldValidationError("reason", errors.New("invalid reason"))
		}
	}

	f.StartDate = start.Format(core.DateLayout)
	f.EndDate = end.Format(core.DateLayout)
	return nil
}

func (f Filter) recordFilter() *tardiness.QueryFilter {
	return &tardiness.QueryFilter{
		StartDate: f.StartDate,
		EndDate:   f.EndDate,
		ClassIDs:  f.ClassIDs,
		Reasons:   f.Reasons,
	}
}

type (
	NameCount struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	ReasonCount struct {
		Reason tardiness.Reason `json:"reason"`
		Label  string           `json:"label"`
		Count  int              `json:"count"`
	}

	// Statistics summarizes a range; tops are nil when there is no data.
	Statistics struct {
		TotalCount int          `json:"total_count"`
		TopStudent *NameCount   `json:"top_student"`
		TopClass   *NameCount   `json:"top_class"`
		TopReason  *ReasonCount `json:"top_reason"`
	}

	TrendPoint struct {
		Date  string `json:"date"`
		Count int    `json:"count"`
	}

	// ReasonShare is a slice of the reason pie chart.
	ReasonShare struct {
		Name  tardiness.Reason `json:"name"`
		Label string           `json:"label"`
		Value int              `json:"value"`
	}

	TopStudent struct {
		Name         string           `json:"name"`
		NIS          string           `json:"nis"`
		Class        string           `json:"class"`
		Count        int              `json:"count"`
		CommonReason tardiness.Reason `json:"common_reason"`
	}

	Report struct {
		Filter      Filter        `json:"filter"`
		Statistics  Statistics    `json:"statistics"`
		Trend       []TrendPoint  `json:"trend"`
		Classes     []NameCount   `json:"classes"`
		Reasons     []ReasonShare `json:"reasons"`
		TopStudents []TopStudent  `json:"top_students"`
	}
)

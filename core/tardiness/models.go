package tardiness

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/telatku/telatku/core"
)

type Reason string

const (
	ReasonBangunKesiangan     Reason = "bangun_kesiangan"
	ReasonKendaraanBermasalah Reason = "kendaraan_bermasalah"
	ReasonMacet               Reason = "macet"
	ReasonSakit               Reason = "sakit"
	ReasonKeperluanKeluarga   Reason = "keperluan_keluarga"
	ReasonLainnya             Reason = "lainnya"

	DefaultReason = ReasonBangunKesiangan
)

var (
	AllReasons = []Reason{
		ReasonBangunKesiangan, ReasonKendaraanBermasalah, ReasonMacet, ReasonSakit, ReasonKeperluanKeluarga, ReasonLainnya,
	}

	reasonLabels = map[Reason]string{
		ReasonBangunKesiangan:     "Bangun Kesiangan",
		ReasonKendaraanBermasalah: "Kendaraan Bermasalah",
		ReasonMacet:               "Macet",
		ReasonSakit:               "Sakit",
		ReasonKeperluanKeluarga:   "Keperluan Keluarga",
		ReasonLainnya:             "Lainnya",
	}
)

func (r Reason) IsValid() bool {
	_, ok := reasonLabels[r]
	return ok
}

// Label returns the display label of r; unknown reasons are returned as is.
func (r Reason) Label() string {
	if label, ok := reasonLabels[r]; ok {
		return label
	}
	return string(r)
}

type ReasonInfo struct {
	Name  string `json:"name"`
	Value Reason `json:"value"`
}

// Reasons lists every reason with its label.
func Reasons() []ReasonInfo {
	infos := make([]ReasonInfo, 0, len(AllReasons))
	for _, r := range AllReasons {
		infos = append(infos, ReasonInfo{Name: r.Label(), Value: r})
	}
	return infos
}

// Record is a tardiness record, listed with its student, class and recorder.
// Date is YYYY-MM-DD and Time HH:MM:SS on the school clock.
type Record struct {
	ID               string    `json:"id"`
	StudentID        string    `json:"student_id"`
	RecordedBy       string    `json:"recorded_by"`
	Date             string    `json:"tardiness_date"`
	Time             string    `json:"tardiness_time"`
	Reason           Reason    `json:"reason"`
	ReasonDetail     string    `json:"reason_detail"`
	ActionTaken      string    `json:"action_taken"`
	NotificationSent bool      `json:"notification_sent"`
	CreatedAt        time.Time `json:"created_at"` // UTC

	StudentNIS   string `json:"student_nis"`
	StudentName  string `json:"student_name"`
	ClassID      string `json:"class_id"`
	ClassName    string `json:"class_name"`
	RecorderName string `json:"recorder_name"`
}

// NewRecord contains information needed to record a late arrival.
type NewRecord struct {
	StudentID    string `json:"student_id" validate:"required,uuid4"`
	Reason       Reason `json:"reason" validate:"reason"`
	ReasonDetail string `json:"reason_detail" validate:"max=1000"`
	ActionTaken  string `json:"action_taken" validate:"max=500"`
}

func (nr *NewRecord) Validate(validate *validator.Validate) error {
	nr.StudentID = core.CleanString(nr.StudentID)
	nr.ReasonDetail = core.CleanString(nr.ReasonDetail)
	nr.ActionTaken = core.CleanString(nr.ActionTaken)
	if nr.Reason == "" {
		nr.Reason = DefaultReason
	}
	return validate.Struct(nr)
}

// QueryFilter selects records of an inclusive date range (YYYY-MM-DD).
type QueryFilter struct {
	StartDate  string   `query:"start_date"`
	EndDate    string   `query:"end_date"`
	ClassIDs   []string `query:"class_id"`
	Reasons    []string `query:"reason"`
	StudentID  string   `query:"student_id"`
	RecordedBy string   `query:"recorded_by"`
}

func (qf *QueryFilter) Clean() {
	qf.StartDate = core.CleanString(qf.StartDate)
	qf.EndDate = core.CleanString(qf.EndDate)
	qf.ClassIDs = core.CleanStrings(qf.ClassIDs)
	qf.Reasons = core.CleanStrings(qf.Reasons)
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.RecordedBy = core.CleanString(qf.RecordedBy)
}

// Key identifies the filter; equal filters give equal keys.
func (qf QueryFilter) Key() string {
	return qf.StartDate + "|" + qf.EndDate + "|" + joinSorted(qf.ClassIDs) + "|" + joinSorted(qf.Reasons) +
		"|" + qf.StudentID + "|" + qf.RecordedBy
}

package importer

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/class"
	"github.com/telatku/telatku/core/student"
)

// ProgressFunc receives the cumulative progress of an import, from 0 to 100.
type ProgressFunc func(percent float64)

type Result struct {
	Imported int `json:"imported"`
}

type Importer struct {
	tx         core.Transactor
	classSvc   class.Service
	studentSvc student.Service
	batchSize  int
}

func New(conf *core.Config, tx core.Transactor, classSvc class.Service, studentSvc student.Service) *Importer {
	batchSize := conf.Importer.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Importer{tx: tx, classSvc: classSvc, studentSvc: studentSvc, batchSize: batchSize}
}

// Import validates every row, then inserts them all, or nothing.
//
// Rows go through two phases: structural checks on each row, then cross-reference against
// the stored classes and NIS. A phase reports all its errors at once as *Errors and the
// import stops there. Surviving rows are inserted in batches inside one transaction.
func (im *Importer) Import(ctx context.Context, rows []Row, progress ProgressFunc) (Result, error) {
	if progress == nil {
		progress = func(float64) {}
	}
	if len(rows) == 0 {
		return Result{}, ErrEmptyFile
	}

	if rowErrs := checkStructure(rows); len(rowErrs) > 0 {
		return Result{}, &Errors{Phase: PhaseStructure, Errors: rowErrs}
	}

	students, err := im.crossReference(ctx, rows, progress)
	if err != nil {
		return Result{}, err
	}
	if len(students) == 0 {
		return Result{}, ErrNothingToImport
	}

	var inserted int
	err = im.tx.RunInTx(ctx, func(ctx context.Context) error {
		for i := 0; i < len(students); i += im.batchSize {
			end := i + im.batchSize
			if end > len(students) {
				end = len(students)
			}
			if err := im.studentSvc.CreateMany(ctx, students[i:end]); err != nil {
				return errors.Wrap(err, fmt.Sprintf("inserting students batch %d-%d", i+1, end))
			}
			inserted = end
			progress(50 + float64(inserted)/float64(len(students))*50)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Imported: inserted}, nil
}

// rowNumber maps a data row index to its spreadsheet row; row 1 holds the headers.
func rowNumber(idx int) int { return idx + 2 }

func checkStructure(rows []Row) []RowError {
	var rowErrs []RowError
	for i, row := range rows {
		rowNum := rowNumber(i)
		if row.Get(HeaderNIS) == "" {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Field: HeaderNIS, Message: "NIS tidak boleh kosong"})
		}
		if row.Get(HeaderFullName) == "" {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Field: HeaderFullName, Message: "Nama lengkap tidak boleh kosong"})
		}
		if row.Get(HeaderClassName) == "" {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Field: HeaderClassName, Message: "Nama kelas tidak boleh kosong"})
		}
		if phone := row.Get(HeaderParentPhone); phone != "" && !core.IsPhone(phone) {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Field: HeaderParentPhone, Message: "Format nomor HP tidak valid"})
		}
		if wa := row.Get(HeaderParentWhatsApp); wa != "" && !core.IsPhone(wa) {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Field: HeaderParentWhatsApp, Message: "Format nomor WhatsApp tidak valid"})
		}
	}
	return rowErrs
}

func (im *Importer) crossReference(ctx context.Context, rows []Row, progress ProgressFunc) ([]student.NewStudent, error) {
	classIDs, err := im.classSvc.IDsByName(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "mapping class names")
	}

	nisList := make([]string, 0, len(rows))
	for _, row := range rows {
		nisList = append(nisList, row.Get(HeaderNIS))
	}
	stored, err := im.studentSvc.ExistingNIS(ctx, nisList)
	if err != nil {
		return nil, errors.Wrap(err, "checking existing NIS")
	}

	var rowErrs []RowError
	students := make([]student.NewStudent, 0, len(rows))
	seen := make(map[string]int, len(rows)) // NIS: row number
	for i, row := range rows {
		rowNum := rowNumber(i)
		nis := row.Get(HeaderNIS)

		classID, ok := classIDs[class.NameKey(row.Get(HeaderClassName))]
		if !ok {
			rowErrs = append(rowErrs, RowError{
				Row: rowNum, Field: HeaderClassName, Message: fmt.Sprintf("Kelas %q tidak ditemukan", row.Get(HeaderClassName)),
			})
			continue
		}
		if stored[nis] {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Field: HeaderNIS, Message: fmt.Sprintf("NIS %s sudah terdaftar", nis)})
			continue
		}
		if first, dup := seen[nis]; dup {
			rowErrs = append(rowErrs, RowError{
				Row: rowNum, Field: HeaderNIS, Message: fmt.Sprintf("NIS %s duplikat dengan baris %d", nis, first),
			})
			continue
		}
		seen[nis] = rowNum

		students = append(students, student.NewStudent{
			NIS:            nis,
			FullName:       row.Get(HeaderFullName),
			ClassID:        classID,
			ParentName:     row.Get(HeaderParentName),
			ParentPhone:    row.Get(HeaderParentPhone),
			ParentWhatsApp: row.Get(HeaderParentWhatsApp),
		})
		progress(float64(i+1) / float64(len(rows)) * 50)
	}

	if len(rowErrs) > 0 {
		return nil, &Errors{Phase: PhaseReference, Errors: rowErrs}
	}
	return students, nil
}

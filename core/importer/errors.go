package importer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyFile       = errors.New("File Excel kosong")
	ErrNothingToImport = errors.New("Tidak ada data yang dapat diimpor")
)

// Phases of an import.
const (
	PhaseStructure = "structure"
	PhaseReference = "reference"
)

// RowError is a problem found on one spreadsheet row; Row is the 1-based spreadsheet row.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e RowError) String() string {
	return fmt.Sprintf("Baris %d, %s: %s", e.Row, e.Field, e.Message)
}

// Errors holds every row error of the failed phase; nothing was imported.
type Errors struct {
	Phase  string     `json:"phase"`
	Errors []RowError `json:"errors"`
}

func (e *Errors) Error() string {
	return fmt.Sprintf("Ditemukan %d error dalam data", len(e.Errors))
}

// Summary lists the first max errors, then how many were left out.
func (e *Errors) Summary(max int) string {
	var b strings.Builder
	for i, rowErr := range e.Errors {
		if i == max {
			fmt.Fprintf(&b, "... dan %d error lainnya", len(e.Errors)-max)
			break
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(rowErr.String())
	}
	return b.String()
}

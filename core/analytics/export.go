package analytics

import (
	"encoding/csv"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/tardiness"
)

const (
	exportSheet = "Laporan Keterlambatan"
	missing     = "-"
	utf8BOM     = "\uFEFF"
)

var exportHeaders = []string{
	"Tanggal", "Waktu", "NIS", "Nama Siswa", "Kelas", "Alasan", "Keterangan", "Tindakan", "Dicatat Oleh",
}

// ExportFilename names the export of filter: laporan-keterlambatan-YYYYMMDD-YYYYMMDD.<ext>
func ExportFilename(filter Filter, ext string) string {
	compact := func(date string) string { return strings.ReplaceAll(date, "-", "") }
	return "laporan-keterlambatan-" + compact(filter.StartDate) + "-" + compact(filter.EndDate) + "." + ext
}

func orMissing(s string) string {
	if s == "" {
		return missing
	}
	return s
}

func exportRow(rec tardiness.Record) []string {
	date := rec.Date
	if d, err := time.Parse(core.DateLayout, rec.Date); err == nil {
		date = d.Format("02/01/2006")
	}
	return []string{
		date,
		rec.Time,
		orMissing(rec.StudentNIS),
		orMissing(rec.StudentName),
		orMissing(rec.ClassName),
		string(rec.Reason),
		orMissing(rec.ReasonDetail),
		orMissing(rec.ActionTaken),
		orMissing(rec.RecorderName),
	}
}

// WriteCSV writes records as a UTF-8 (with BOM) CSV report.
func WriteCSV(w io.Writer, records []tardiness.Record) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return errors.Wrap(err, "writing BOM")
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeaders); err != nil {
		return errors.Wrap(err, "writing CSV headers")
	}
	for _, rec := range records {
		if err := cw.Write(exportRow(rec)); err != nil {
			return errors.Wrap(err, "writing CSV row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing CSV")
}

// WriteXLSX writes records as a single sheet xlsx report.
func WriteXLSX(w io.Writer, records []tardiness.Record) error {
	file := excelize.NewFile()
	defer func() { _ = file.Close() }()

	if err := file.SetSheetName(file.GetSheetName(0), exportSheet); err != nil {
		return errors.Wrap(err, "naming export sheet")
	}

	writeRow := func(idx int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, idx)
		if err != nil {
			return err
		}
		row := make([]interface{}, 0, len(values))
		for _, v := range values {
			row = append(row, v)
		}
		return file.SetSheetRow(exportSheet, cell, &row)
	}

	if err := writeRow(1, exportHeaders); err != nil {
		return errors.Wrap(err, "writing xlsx headers")
	}
	for i, rec := range records {
		if err := writeRow(i+2, exportRow(rec)); err != nil {
			return errors.Wrap(err, "writing xlsx row")
		}
	}
	if err := file.SetColWidth(exportSheet, "A", "I", 18); err != nil {
		return errors.Wrap(err, "sizing xlsx columns")
	}

	_, err := file.WriteTo(w)
	return errors.Wrap(err, "writing xlsx")
}

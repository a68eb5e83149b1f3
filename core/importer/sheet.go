package importer

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// Column headers of the import spreadsheet.
const (
	HeaderNIS            = "NIS"
	HeaderFullName       = "Nama Lengkap"
	HeaderClassName      = "Nama Kelas"
	HeaderParentName     = "Nama Orang Tua"
	HeaderParentPhone    = "No HP Orang Tua"
	HeaderParentWhatsApp = "WhatsApp Orang Tua"

	TemplateSheet    = "Data Siswa"
	TemplateFilename = "template-import-siswa.xlsx"

	xlsMaxRows = 100000
)

var (
	Headers = []string{
		HeaderNIS, HeaderFullName, HeaderClassName, HeaderParentName, HeaderParentPhone, HeaderParentWhatsApp,
	}
	templateColWidths = []float64{15, 30, 15, 30, 20, 20}
	templateExample   = []interface{}{"12345", "Contoh Siswa", "VII-A", "Nama Orang Tua", "08123456789", "08123456789"}

	errNoSheet = errors.New("no worksheet found")
)

// Row is a spreadsheet data row keyed by column header.
type Row map[string]string

// Get returns the trimmed value of header.
func (r Row) Get(header string) string {
	return strings.TrimSpace(r[header])
}

// ReadRows reads the first sheet of an .xlsx (or legacy .xls) spreadsheet.
// The first row holds the headers; completely empty rows are skipped.
func ReadRows(r io.Reader, filename string) ([]Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading spreadsheet")
	}

	var cells [][]string
	if strings.ToLower(filepath.Ext(filename)) == ".xls" {
		cells, err = readXLS(data)
	} else {
		cells, err = readXLSX(data)
	}
	if err != nil {
		return nil, err
	}
	return toRows(cells), nil
}

func readXLS(data []byte) ([][]string, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, errors.Wrap(err, "opening xls workbook")
	}
	if workbook.NumSheets() == 0 {
		return nil, errNoSheet
	}
	return workbook.ReadAllCells(xlsMaxRows), nil
}

func readXLSX(data []byte) ([][]string, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "opening xlsx workbook")
	}
	defer func() { _ = file.Close() }()

	sheetName := file.GetSheetName(0)
	if sheetName == "" {
		return nil, errNoSheet
	}
	rows, err := file.GetRows(sheetName)
	if err != nil {
		return nil, errors.Wrap(err, "reading rows of "+sheetName)
	}
	return rows, nil
}

func toRows(cells [][]string) []Row {
	if len(cells) < 2 {
		return nil
	}
	headers := make([]string, len(cells[0]))
	for i, h := range cells[0] {
		headers[i] = strings.TrimSpace(h)
	}

	rows := make([]Row, 0, len(cells)-1)
	for _, line := range cells[1:] {
		row := make(Row, len(headers))
		var filled bool
		for i, val := range line {
			if i >= len(headers) || headers[i] == "" {
				continue
			}
			if strings.TrimSpace(val) != "" {
				filled = true
			}
			row[headers[i]] = val
		}
		if filled {
			rows = append(rows, row)
		}
	}
	return rows
}

// WriteTemplate writes the xlsx import template: the headers and one example row.
func WriteTemplate(w io.Writer) error {
	file := excelize.NewFile()
	defer func() { _ = file.Close() }()

	if err := file.SetSheetName(file.GetSheetName(0), TemplateSheet); err != nil {
		return errors.Wrap(err, "naming template sheet")
	}

	header := make([]interface{}, 0, len(Headers))
	for _, h := range Headers {
		header = append(header, h)
	}
	if err := file.SetSheetRow(TemplateSheet, "A1", &header); err != nil {
		return errors.Wrap(err, "writing template headers")
	}
	example := templateExample
	if err := file.SetSheetRow(TemplateSheet, "A2", &example); err != nil {
		return errors.Wrap(err, "writing template example")
	}

	for i, width := range templateColWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return errors.Wrap(err, "naming template column")
		}
		if err = file.SetColWidth(TemplateSheet, col, col, width); err != nil {
			return errors.Wrap(err, "sizing template column "+col)
		}
	}

	_, err := file.WriteTo(w)
	return errors.Wrap(err, "writing template")
}

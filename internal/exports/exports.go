// Package exports renders tabular ledger data as CSV or XLSX byte streams.
package exports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
)

const (
	ContentTypeCSV  = "text/csv"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	defaultSheet = "Sheet1"
)

// Table is a header row plus string cells. Cells are preformatted so money
// keeps its two fixed decimals in both formats.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// File is a rendered export.
type File struct {
	Data        []byte
	ContentType string
	Filename    string
	Records     int
}

// Write renders table in format. The filename is the table name, the UTC
// render date, and the format extension.
func Write(format enums.ExportFormat, table Table, now time.Time) (*File, error) {
	if len(table.Columns) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "export requires at least one column")
	}
	name := table.Name
	if name == "" {
		name = "export"
	}
	filename := fmt.Sprintf("%s_%s.%s", name, now.UTC().Format("20060102"), format)

	var (
		data        []byte
		contentType string
		err         error
	)
	switch format {
	case enums.ExportFormatCSV:
		data, err = writeCSV(table)
		contentType = ContentTypeCSV
	case enums.ExportFormatXLSX:
		data, err = writeXLSX(table)
		contentType = ContentTypeXLSX
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported export format %q", format)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render export")
	}
	return &File{Data: data, ContentType: contentType, Filename: filename, Records: len(table.Rows)}, nil
}

func writeCSV(table Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(table.Columns); err != nil {
		return nil, err
	}
	if err := w.WriteAll(table.Rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeXLSX(table Table) (data []byte, err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	sheet := sheetName(table.Name)
	if sheet != defaultSheet {
		if err := f.SetSheetName(defaultSheet, sheet); err != nil {
			return nil, err
		}
	}
	if err := setRow(f, sheet, 1, table.Columns); err != nil {
		return nil, err
	}
	for i, row := range table.Rows {
		if err := setRow(f, sheet, i+2, row); err != nil {
			return nil, err
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return f.SetSheetRow(sheet, cell, &cells)
}

// sheetName trims name to the 31 characters a worksheet name may hold.
func sheetName(name string) string {
	if name == "" {
		return defaultSheet
	}
	if len(name) > 31 {
		return name[:31]
	}
	return name
}

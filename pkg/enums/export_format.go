package enums

import "fmt"

// ExportFormat is the byte format of an export.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatXLSX ExportFormat = "xlsx"
)

var validExportFormats = []ExportFormat{
	ExportFormatCSV,
	ExportFormatXLSX,
}

// String implements fmt.Stringer.
func (e ExportFormat) String() string {
	return string(e)
}

// IsValid reports whether the value is a known ExportFormat.
func (e ExportFormat) IsValid() bool {
	for _, candidate := range validExportFormats {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseExportFormat converts raw input into a ExportFormat.
func ParseExportFormat(value string) (ExportFormat, error) {
	for _, candidate := range validExportFormats {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid export format %q", value)
}

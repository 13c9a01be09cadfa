package exports

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
)

var sample = Table{
	Name:    "transactions",
	Columns: []string{"ID", "Amount"},
	Rows: [][]string{
		{"inv-1", "100.00"},
		{"pay-2", "-25.50"},
	},
}

var renderedAt = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func TestWriteCSV(t *testing.T) {
	file, err := Write(enums.ExportFormatCSV, sample, renderedAt)
	require.NoError(t, err)
	assert.Equal(t, ContentTypeCSV, file.ContentType)
	assert.Equal(t, "transactions_20260310.csv", file.Filename)
	assert.Equal(t, 2, file.Records)

	records, err := csv.NewReader(bytes.NewReader(file.Data)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"ID", "Amount"}, {"inv-1", "100.00"}, {"pay-2", "-25.50"}}, records)
}

func TestWriteXLSX(t *testing.T) {
	file, err := Write(enums.ExportFormatXLSX, sample, renderedAt)
	require.NoError(t, err)
	assert.Equal(t, ContentTypeXLSX, file.ContentType)
	assert.Equal(t, "transactions_20260310.xlsx", file.Filename)

	book, err := excelize.OpenReader(bytes.NewReader(file.Data))
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows("transactions")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"ID", "Amount"}, {"inv-1", "100.00"}, {"pay-2", "-25.50"}}, rows)
}

func TestWriteRejectsBadInput(t *testing.T) {
	_, err := Write("pdf", sample, renderedAt)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = Write(enums.ExportFormatCSV, Table{}, renderedAt)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, defaultSheet, sheetName(""))
	assert.Len(t, sheetName("a-very-long-report-name-that-excel-rejects"), 31)
}

package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/storeimport/internal/core"
)

// buildWorkbook writes sheets in order; each sheet is a list of rows.
func buildWorkbook(t *testing.T, sheets []string, data map[string][][]any) *excelize.File {
	t.Helper()

	f := excelize.NewFile()
	for i, name := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range data[name] {
			for c, v := range row {
				cell, err := excelize.CoordinatesToCellName(c+1, r+1)
				require.NoError(t, err)
				require.NoError(t, f.SetCellValue(name, cell, v))
			}
		}
	}
	return f
}

func workbookBytes(t *testing.T, f *excelize.File) []byte {
	t.Helper()
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseWorkbook_SkipsInstructionSheet(t *testing.T) {
	f := buildWorkbook(t, []string{"Instructions", "Notes", "Stores"}, map[string][][]any{
		"Instructions": {{"Fill in the Stores sheet"}},
		"Notes":        {{"Topic", "Detail"}, {"a", "b"}},
		"Stores": {
			{"store_url", "store_name", "owner_phone"},
			{"shop.example", "Shop", 551234567},
			{},
			{"b.example", "", ""},
		},
	})

	res, err := ParseWorkbook(workbookBytes(t, f))
	require.NoError(t, err)

	assert.Equal(t, "Stores", res.Meta.Sheet)
	assert.Equal(t, core.SourceExcel, res.Meta.Kind)
	assert.Equal(t, []string{"store_url", "store_name", "owner_phone"}, res.Headers)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "551234567", res.Rows[0]["owner_phone"])
	assert.Equal(t, core.RawRow{"store_url": "b.example", "store_name": "", "owner_phone": ""}, res.Rows[1])
}

func TestParseWorkbook_FallsBackToFirstNonEmptySheet(t *testing.T) {
	f := buildWorkbook(t, []string{"Blank", "Data"}, map[string][][]any{
		"Data": {{"Shop Link", "Title"}, {"shop.example", "Shop"}},
	})

	res, err := ParseWorkbook(workbookBytes(t, f))
	require.NoError(t, err)

	assert.Equal(t, "Data", res.Meta.Sheet)
	assert.Equal(t, "shop.example", res.Rows[0]["Shop Link"])
}

func TestParseWorkbook_DateCells(t *testing.T) {
	f := buildWorkbook(t, []string{"Stores"}, map[string][][]any{
		"Stores": {{"store_url", "contact_date", "notes"}},
	})

	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	require.NoError(t, err)
	custom := "dd/mm/yyyy"
	customStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &custom})
	require.NoError(t, err)

	require.NoError(t, f.SetCellValue("Stores", "A2", "shop.example"))
	require.NoError(t, f.SetCellFloat("Stores", "B2", 45366, 0, 64))
	require.NoError(t, f.SetCellStyle("Stores", "B2", "B2", dateStyle))
	require.NoError(t, f.SetCellValue("Stores", "C2", 45366))

	require.NoError(t, f.SetCellValue("Stores", "A3", "b.example"))
	require.NoError(t, f.SetCellFloat("Stores", "B3", 45366, 0, 64))
	require.NoError(t, f.SetCellStyle("Stores", "B3", "B3", customStyle))

	res, err := ParseWorkbook(workbookBytes(t, f))
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	assert.Equal(t, "2024-03-15", res.Rows[0]["contact_date"])
	assert.Equal(t, "45366", res.Rows[0]["notes"], "unstyled numbers stay numbers")
	assert.Equal(t, "2024-03-15", res.Rows[1]["contact_date"])
}

func TestParseWorkbook_Invalid(t *testing.T) {
	_, err := ParseWorkbook([]byte("PK\x03\x04 not really a zip"))
	kind, ok := core.SourceErrorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, core.EmptyOrInvalidFile, kind)

	f := buildWorkbook(t, []string{"Only"}, map[string][][]any{
		"Only": {{"store_url"}},
	})
	_, err = ParseWorkbook(workbookBytes(t, f))
	kind, ok = core.SourceErrorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, core.EmptyOrInvalidFile, kind)
}

func TestIsDateFormat(t *testing.T) {
	tests := []struct {
		format string
		want   bool
	}{
		{"yyyy-mm-dd", true},
		{"dd/mm/yyyy", true},
		{"[$-409]mmmm d, yyyy", true},
		{"0.00", false},
		{`"day "0`, false},
		{"h:mm:ss", false},
		{"#,##0", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isDateFormat(tt.format), tt.format)
	}
}

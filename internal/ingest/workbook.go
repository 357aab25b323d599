package ingest

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/storeimport/internal/core"
	"github.com/JonMunkholm/storeimport/internal/schema"
)

// sheetRows is one candidate sheet: non-blank rows plus their 1-based
// row numbers in the sheet.
type sheetRows struct {
	name    string
	rows    [][]string
	rowNums []int
}

// ParseWorkbook parses an .xlsx workbook into raw rows.
//
// Sheets are visited in file order. Sheets with fewer than two non-blank rows
// are skipped, which passes over blank and instruction sheets. The first
// remaining sheet whose header row names a template column wins; otherwise
// the first remaining sheet is used.
func ParseWorkbook(data []byte) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, core.NewSourceError(core.EmptyOrInvalidFile, "cannot open workbook", err)
	}
	defer f.Close()

	var chosen, fallback *sheetRows
	for _, name := range f.GetSheetList() {
		raw, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			continue
		}
		sr := &sheetRows{name: name}
		for i, row := range raw {
			if isEmptyRow(row) {
				continue
			}
			sr.rows = append(sr.rows, row)
			sr.rowNums = append(sr.rowNums, i+1)
		}
		if len(sr.rows) < 2 {
			continue
		}
		if fallback == nil {
			fallback = sr
		}
		if schema.HasTemplateColumn(sr.rows[0]) {
			chosen = sr
			break
		}
	}
	if chosen == nil {
		chosen = fallback
	}
	if chosen == nil {
		return nil, core.NewSourceError(core.EmptyOrInvalidFile, "workbook has no sheet with data rows", nil)
	}
	if blankHeaders(chosen.rows[0]) {
		return nil, core.NewSourceError(core.EmptyOrInvalidFile, "header row is empty", nil)
	}

	dates := newDateDetector(f, chosen.name)
	records := make([][]string, 0, len(chosen.rows)-1)
	for i, row := range chosen.rows[1:] {
		rowNum := chosen.rowNums[i+1]
		rec := make([]string, len(row))
		for c, cell := range row {
			rec[c] = dates.convert(c+1, rowNum, cell)
		}
		records = append(records, rec)
	}

	headers := uniqueHeaders(chosen.rows[0])
	rows := buildRows(headers, records)

	return &Result{
		Headers:   headers,
		Rows:      rows,
		TotalRows: len(rows),
		Meta: core.SourceMeta{
			Kind:    core.SourceExcel,
			Sheet:   chosen.name,
			Headers: headers,
		},
	}, nil
}

// dateDetector converts serial date cells using their number format.
type dateDetector struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	styles   map[int]bool
}

func newDateDetector(f *excelize.File, sheet string) *dateDetector {
	d := &dateDetector{f: f, sheet: sheet, styles: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		d.date1904 = *props.Date1904
	}
	return d
}

func (d *dateDetector) convert(col, row int, value string) string {
	serial, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || serial <= 0 {
		return value
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return value
	}
	styleID, err := d.f.GetCellStyle(d.sheet, cell)
	if err != nil || !d.isDateStyle(styleID) {
		return value
	}
	t, err := excelize.ExcelDateToTime(serial, d.date1904)
	if err != nil {
		return value
	}
	return t.Format(core.DateLayout)
}

func (d *dateDetector) isDateStyle(styleID int) bool {
	if isDate, ok := d.styles[styleID]; ok {
		return isDate
	}
	isDate := false
	if style, err := d.f.GetStyle(styleID); err == nil && style != nil {
		if style.CustomNumFmt != nil {
			isDate = isDateFormat(*style.CustomNumFmt)
		} else {
			isDate = isBuiltinDateFormat(style.NumFmt)
		}
	}
	d.styles[styleID] = isDate
	return isDate
}

// isBuiltinDateFormat covers the built-in date and date-time number formats.
// Time-only formats (18-21, 45-47) are excluded.
func isBuiltinDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 17, id == 22:
		return true
	case id >= 27 && id <= 36, id >= 50 && id <= 58:
		return true
	}
	return false
}

var formatLiterals = regexp.MustCompile(`"[^"]*"|\[[^\]]*\]|\\.`)

// isDateFormat reports whether a custom number format renders a date.
func isDateFormat(format string) bool {
	f := strings.ToLower(formatLiterals.ReplaceAllString(format, ""))
	return strings.ContainsAny(f, "yd")
}

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/storeimport/internal/core"
	"github.com/JonMunkholm/storeimport/internal/schema"
)

const (
	sheetStores    = "Stores"
	sheetRows      = "Rows"
	sheetIssues    = "Issues"
	sheetAutofixes = "Autofixes"
	sheetErrorRows = "Error Rows"
	sheetSummary   = "Summary"
)

// Corrected renders the importable rows as a template workbook. The
// "Stores" sheet is first so re-ingesting the file picks it.
func Corrected(job *core.ImportJob, rows []core.ImportRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetStores); err != nil {
		return nil, err
	}

	w := newSheetWriter(f, sheetStores)
	w.row(stringsToAny(core.Columns)...)
	for _, r := range rows {
		if !correctable(r) {
			continue
		}
		w.row(stringsToAny(r.Normalized.Values())...)
	}
	if w.err != nil {
		return nil, w.err
	}
	_ = f.SetColWidth(sheetStores, "A", "A", 40)
	_ = f.SetColWidth(sheetStores, "B", "L", 18)

	if err := writeSummary(f, job, rows); err != nil {
		return nil, err
	}
	return finish(f)
}

// ErrorsReport renders every row with its issues and corrections.
func ErrorsReport(job *core.ImportJob, rows []core.ImportRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetRows); err != nil {
		return nil, err
	}
	for _, name := range []string{sheetIssues, sheetAutofixes, sheetErrorRows} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	rw := newSheetWriter(f, sheetRows)
	rw.row("row_index", "status", "action", "store_id", "errors", "warnings", "autofixes")

	iw := newSheetWriter(f, sheetIssues)
	iw.row("row_index", "severity", "field", "message", "value")

	aw := newSheetWriter(f, sheetAutofixes)
	aw.row("row_index", "field", "action", "old_value", "new_value")

	ew := newSheetWriter(f, sheetErrorRows)
	ew.row(append([]any{"row_index"}, stringsToAny(core.Columns)...)...)

	for _, r := range rows {
		rw.row(r.RowIndex, string(r.Status), string(r.Action), core.Deref(r.StoreID),
			joinIssues(r.Errors), joinIssues(r.Warnings), len(r.Autofixes))

		for _, is := range r.Errors {
			iw.row(r.RowIndex, "error", is.Field, is.Message, is.Value)
		}
		for _, is := range r.Warnings {
			iw.row(r.RowIndex, "warning", is.Field, is.Message, is.Value)
		}
		for _, fx := range r.Autofixes {
			aw.row(r.RowIndex, fx.Field, fx.Action, fx.OldValue, fx.NewValue)
		}

		if r.Status == core.RowError {
			ew.row(append([]any{r.RowIndex}, stringsToAny(errorRowValues(r))...)...)
		}
	}
	for _, w := range []*sheetWriter{rw, iw, aw, ew} {
		if w.err != nil {
			return nil, w.err
		}
	}
	_ = f.SetColWidth(sheetRows, "E", "F", 60)
	_ = f.SetColWidth(sheetIssues, "D", "D", 60)

	if err := writeSummary(f, job, rows); err != nil {
		return nil, err
	}
	return finish(f)
}

// errorRowValues returns the template form of a row, falling back to the
// raw cell where normalization left a field empty.
func errorRowValues(r core.ImportRow) []string {
	values := r.Normalized.Values()
	for i, col := range core.Columns {
		if values[i] != "" {
			continue
		}
		for header, v := range r.Raw {
			if c, ok := schema.ResolveHeader(header); ok && c == col && v != "" {
				values[i] = v
				break
			}
		}
	}
	return values
}

func writeSummary(f *excelize.File, job *core.ImportJob, rows []core.ImportRow) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return err
	}
	s := summarize(rows)

	w := newSheetWriter(f, sheetSummary)
	w.row("job_id", job.ID)
	w.row("source", job.SourceName)
	w.row("job_status", string(job.Status))
	w.row("created_at", job.CreatedAt.UTC().Format(time.RFC3339))
	if job.CommittedAt != nil {
		w.row("committed_at", job.CommittedAt.UTC().Format(time.RFC3339))
	}
	w.row("total", s.Total)
	w.row("valid", s.Valid)
	w.row("warnings", s.Warnings)
	w.row("errors", s.Errors)
	w.row("committed", s.Committed)
	w.row("skipped", s.Skipped)
	_ = f.SetColWidth(sheetSummary, "A", "A", 16)
	_ = f.SetColWidth(sheetSummary, "B", "B", 40)
	return w.err
}

func finish(f *excelize.File) ([]byte, error) {
	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// sheetWriter appends rows to a sheet and keeps the first error.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	next  int
	err   error
}

func newSheetWriter(f *excelize.File, sheet string) *sheetWriter {
	return &sheetWriter{f: f, sheet: sheet, next: 1}
}

func (w *sheetWriter) row(values ...any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, w.next)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetSheetRow(w.sheet, cell, &values); err != nil {
		w.err = fmt.Errorf("sheet %s row %d: %w", w.sheet, w.next, err)
		return
	}
	w.next++
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func joinIssues(issues []core.Issue) string {
	parts := make([]string, len(issues))
	for i, is := range issues {
		parts[i] = is.Field + ": " + is.Message
	}
	return strings.Join(parts, "; ")
}

// Package export renders a job's rows as downloadable artifacts.
//
// Exports are read-only and may be requested at any point in a job's
// lifecycle. Rows are always written in row_index order.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/storeimport/internal/core"
	"github.com/JonMunkholm/storeimport/internal/store"
)

// Format names an export kind.
type Format string

const (
	FormatCorrected    Format = "corrected"
	FormatErrorsReport Format = "errors_report"
	FormatErrorsExcel  Format = "errors_excel"
	FormatErrorsJSON   Format = "errors_json"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeJSON = "application/json"
)

// ParseFormat resolves a format name. errors_excel is an alias of
// errors_report.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCorrected, FormatErrorsReport, FormatErrorsJSON:
		return f, nil
	case FormatErrorsExcel:
		return FormatErrorsReport, nil
	}
	return "", fmt.Errorf("%w: %q", core.ErrUnknownExportFormat, s)
}

// Artifact is a rendered export.
type Artifact struct {
	ContentType string
	FileName    string
	Data        []byte
}

// Exporter renders exports from the job store.
type Exporter struct {
	jobs   store.JobStore
	logger *slog.Logger
}

// NewExporter creates an exporter.
func NewExporter(jobs store.JobStore, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{jobs: jobs, logger: logger}
}

// Export renders one job in the given format.
func (e *Exporter) Export(ctx context.Context, jobID string, format Format) (*Artifact, error) {
	start := time.Now()

	if format == FormatErrorsExcel {
		format = FormatErrorsReport
	}
	switch format {
	case FormatCorrected, FormatErrorsReport, FormatErrorsJSON:
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownExportFormat, format)
	}

	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	rows, err := e.jobs.ListRows(ctx, jobID, store.RowFilter{})
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}

	art := &Artifact{FileName: FileName(jobID, format)}
	switch format {
	case FormatCorrected:
		art.ContentType = contentTypeXLSX
		art.Data, err = Corrected(job, rows)
	case FormatErrorsReport:
		art.ContentType = contentTypeXLSX
		art.Data, err = ErrorsReport(job, rows)
	case FormatErrorsJSON:
		art.ContentType = contentTypeJSON
		art.Data, err = ErrorsJSON(job, rows)
	}
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", format, err)
	}

	e.logger.Info("export rendered",
		slog.String("job_id", jobID),
		slog.String("format", string(format)),
		slog.Int("rows", len(rows)),
		slog.Int("bytes", len(art.Data)),
		slog.Duration("duration", time.Since(start)),
	)
	return art, nil
}

// FileName is the download name of an export, built from the first eight
// characters of the job id.
func FileName(jobID string, format Format) string {
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	ext := "xlsx"
	if format == FormatErrorsJSON {
		ext = "json"
	}
	return fmt.Sprintf("import_%s_%s.%s", short, format, ext)
}

// Summary counts rows by status.
type Summary struct {
	Total     int `json:"total"`
	Valid     int `json:"valid"`
	Warnings  int `json:"warnings"`
	Errors    int `json:"errors"`
	Committed int `json:"committed"`
	Skipped   int `json:"skipped"`
}

func summarize(rows []core.ImportRow) Summary {
	c := core.CountRows(rows)
	return Summary{
		Total:     c.Total,
		Valid:     c.Valid,
		Warnings:  c.Warning,
		Errors:    c.Error,
		Committed: c.Committed,
		Skipped:   c.Skipped,
	}
}

// correctable reports whether a row belongs in the corrected export.
func correctable(r core.ImportRow) bool {
	switch r.Status {
	case core.RowValid, core.RowWarning, core.RowCommitted:
		return true
	}
	return false
}

package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/storeimport/internal/core"
	"github.com/JonMunkholm/storeimport/internal/ingest"
	"github.com/JonMunkholm/storeimport/internal/store"
	"github.com/JonMunkholm/storeimport/internal/validate"
)

func seedJob(t *testing.T, rows []core.ImportRow) (*store.Memory, string) {
	t.Helper()
	jobs := store.NewMemory()
	job := &core.ImportJob{
		ID:         "0192ab3c-7d4e-7f00-8000-000000000001",
		SourceName: "stores.csv",
		SourceKind: core.SourceCSV,
		Status:     core.JobValidated,
		CreatedAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, jobs.CreateJob(context.Background(), job, rows))
	return jobs, job.ID
}

func mixedRows() []core.ImportRow {
	storeID := "s-1"
	return []core.ImportRow{
		{RowIndex: 1, Status: core.RowError,
			Raw:        core.RawRow{"store_url": "not a url"},
			Normalized: core.StoreRecord{StoreURL: "not a url"},
			Errors:     []core.Issue{{Field: core.ColStoreURL, Message: "store_url is not a valid web address", Value: "not a url"}}},
		{RowIndex: 2, Status: core.RowWarning,
			Normalized: core.StoreRecord{StoreURL: "https://b.example.com", OwnerPhone: "12"},
			Warnings:   []core.Issue{{Field: core.ColOwnerPhone, Message: "unrecognized phone format", Value: "12"}}},
		{RowIndex: 3, Status: core.RowError,
			Raw:        core.RawRow{"owner_email": "x@"},
			Normalized: core.StoreRecord{OwnerEmail: "x@"},
			Errors:     []core.Issue{{Field: core.ColOwnerEmail, Message: "owner_email is not a valid email address"}}},
		{RowIndex: 4, Status: core.RowCommitted, Action: core.ActionInsert, StoreID: &storeID,
			Normalized: core.StoreRecord{StoreURL: "https://d.example.com", StoreName: "D"},
			Autofixes:  []core.Autofix{{Field: core.ColPriority, Action: validate.FixDefaulted, NewValue: "medium"}}},
	}
}

// ---- Format Tests ----

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "corrected", want: FormatCorrected},
		{in: "errors_report", want: FormatErrorsReport},
		{in: "errors_excel", want: FormatErrorsReport},
		{in: " ERRORS_JSON ", want: FormatErrorsJSON},
		{in: "pdf", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrUnknownExportFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "import_0192ab3c_corrected.xlsx", FileName("0192ab3c-7d4e-7f00", FormatCorrected))
	assert.Equal(t, "import_0192ab3c_errors_json.json", FileName("0192ab3c-7d4e-7f00", FormatErrorsJSON))
	assert.Equal(t, "import_abc_errors_report.xlsx", FileName("abc", FormatErrorsReport))
}

// ---- Export Tests ----

func TestErrorsJSON_Summary(t *testing.T) {
	jobs, jobID := seedJob(t, mixedRows())
	exp := NewExporter(jobs, nil)

	art, err := exp.Export(context.Background(), jobID, FormatErrorsJSON)
	require.NoError(t, err)
	assert.Equal(t, "application/json", art.ContentType)
	assert.Equal(t, "import_0192ab3c_errors_json.json", art.FileName)

	var got struct {
		Job struct {
			ID string `json:"id"`
		} `json:"job"`
		Summary Summary `json:"summary"`
		Rows    []struct {
			RowIndex int            `json:"row_index"`
			Status   core.RowStatus `json:"status"`
			Errors   []core.Issue   `json:"errors"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(art.Data, &got))

	assert.Equal(t, jobID, got.Job.ID)
	assert.Equal(t, Summary{Total: 4, Errors: 2, Warnings: 1, Committed: 1}, got.Summary)
	require.Len(t, got.Rows, 4)
	for i, r := range got.Rows {
		assert.Equal(t, i+1, r.RowIndex, "rows must be in row_index order")
		assert.NotNil(t, r.Errors)
	}
	assert.Equal(t, core.RowError, got.Rows[2].Status)
}

func TestErrorsReport_Sheets(t *testing.T) {
	jobs, jobID := seedJob(t, mixedRows())
	exp := NewExporter(jobs, nil)

	art, err := exp.Export(context.Background(), jobID, FormatErrorsExcel)
	require.NoError(t, err)
	assert.Equal(t, "import_0192ab3c_errors_report.xlsx", art.FileName)

	f, err := excelize.OpenReader(bytes.NewReader(art.Data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetRows, sheetIssues, sheetAutofixes, sheetErrorRows, sheetSummary}, f.GetSheetList())

	rows, err := f.GetRows(sheetRows)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"1", "error"}, rows[1][:2])
	assert.Equal(t, "s-1", rows[4][3])

	issues, err := f.GetRows(sheetIssues)
	require.NoError(t, err)
	assert.Len(t, issues, 4, "header plus 2 errors and 1 warning")

	errorRows, err := f.GetRows(sheetErrorRows)
	require.NoError(t, err)
	require.Len(t, errorRows, 3)
	assert.Equal(t, "3", errorRows[2][0])
	assert.Equal(t, "x@", errorRows[2][5], "owner_email column")
}

func TestErrorsReport_ErrorRowsKeepAliasedRawValues(t *testing.T) {
	rows := []core.ImportRow{
		{RowIndex: 1, Status: core.RowError,
			Raw:        core.RawRow{"url": "shop.example", "email": "not-an-email", "date": "someday"},
			Normalized: core.StoreRecord{StoreURL: "https://shop.example"},
			Errors: []core.Issue{
				{Field: core.ColOwnerEmail, Message: "owner_email is not a valid email address", Value: "not-an-email"},
				{Field: core.ColContactDate, Message: "contact_date is not a recognized date", Value: "someday"},
			}},
	}
	jobs, jobID := seedJob(t, rows)

	art, err := NewExporter(jobs, nil).Export(context.Background(), jobID, FormatErrorsReport)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(art.Data))
	require.NoError(t, err)
	defer f.Close()

	errorRows, err := f.GetRows(sheetErrorRows)
	require.NoError(t, err)
	require.Len(t, errorRows, 2)
	require.Len(t, errorRows[1], len(core.Columns)+1)
	assert.Equal(t, "https://shop.example", errorRows[1][1], "normalized value wins")
	assert.Equal(t, "not-an-email", errorRows[1][5], "owner_email from the email header")
	assert.Equal(t, "someday", errorRows[1][len(core.Columns)], "contact_date from the date header")
}

func TestCorrected_RoundTrip(t *testing.T) {
	raw := []core.RawRow{
		{"Store URL": "salla.sa/shop-one/", "Name": " Shop One ", "Phone": "0501234567", "Email": "Owner@Example.com", "City": "Riyadh", "Date": "2024-03-05"},
		{"Store URL": "", "Name": "No URL", "Phone": "0559876543"},
		{"Store URL": "zid.store/two", "Name": "Two", "Priority": "urgent", "Stage": "won"},
		{"Store URL": "bad url", "Name": "Broken"},
	}
	headers := []string{"Store URL", "Name", "Phone", "Email", "City", "Date", "Priority", "Stage"}

	v := validate.NewValidator()
	outcomes, err := v.ValidateAll(context.Background(), raw, validate.NewJobContext("", headers), 2)
	require.NoError(t, err)

	rows := make([]core.ImportRow, len(outcomes))
	for i, o := range outcomes {
		rows[i] = core.ImportRow{
			RowIndex:   i + 1,
			Raw:        raw[i],
			Normalized: o.Normalized,
			Status:     o.Status,
			Errors:     o.Errors,
			Warnings:   o.Warnings,
			Autofixes:  o.Autofixes,
		}
	}
	require.Equal(t, core.RowError, rows[3].Status)

	jobs, jobID := seedJob(t, rows)
	art, err := NewExporter(jobs, nil).Export(context.Background(), jobID, FormatCorrected)
	require.NoError(t, err)
	assert.Equal(t, "import_0192ab3c_corrected.xlsx", art.FileName)

	res, err := ingest.ParseWorkbook(art.Data)
	require.NoError(t, err)
	assert.Equal(t, sheetStores, res.Meta.Sheet)
	assert.Equal(t, core.Columns, res.Headers)
	require.Len(t, res.Rows, 3, "error rows are left out")

	again, err := v.ValidateAll(context.Background(), res.Rows, validate.NewJobContext("", res.Headers), 2)
	require.NoError(t, err)
	for i, o := range again {
		assert.Equal(t, rows[i].Normalized, o.Normalized, "row %d", i+1)
	}
}

func TestExport_Errors(t *testing.T) {
	jobs, jobID := seedJob(t, mixedRows())
	exp := NewExporter(jobs, nil)

	_, err := exp.Export(context.Background(), jobID, Format("pdf"))
	assert.True(t, errors.Is(err, core.ErrUnknownExportFormat))

	_, err = exp.Export(context.Background(), "missing", FormatCorrected)
	assert.ErrorIs(t, err, core.ErrJobNotFound)
}

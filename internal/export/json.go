package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/JonMunkholm/storeimport/internal/core"
)

type jsonReport struct {
	Job     jsonJob   `json:"job"`
	Summary Summary   `json:"summary"`
	Rows    []jsonRow `json:"rows"`
}

type jsonJob struct {
	ID             string                  `json:"id"`
	SourceName     string                  `json:"source_name"`
	SourceKind     core.SourceKind         `json:"source_kind"`
	Status         core.JobStatus          `json:"status"`
	CreatedBy      string                  `json:"created_by,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
	CommittedBy    string                  `json:"committed_by,omitempty"`
	CommittedAt    *time.Time              `json:"committed_at,omitempty"`
	CommitStrategy core.CommitStrategyName `json:"commit_strategy,omitempty"`
	ErrorMessage   *string                 `json:"error_message,omitempty"`
}

type jsonRow struct {
	RowIndex   int              `json:"row_index"`
	Status     core.RowStatus   `json:"status"`
	Action     core.RowAction   `json:"action,omitempty"`
	StoreID    *string          `json:"store_id,omitempty"`
	Raw        core.RawRow      `json:"raw_row"`
	Normalized core.StoreRecord `json:"normalized_row"`
	Errors     []core.Issue     `json:"errors"`
	Warnings   []core.Issue     `json:"warnings"`
	Autofixes  []core.Autofix   `json:"autofixes"`
}

// ErrorsJSON renders the job, a status summary and every row.
func ErrorsJSON(job *core.ImportJob, rows []core.ImportRow) ([]byte, error) {
	report := jsonReport{
		Job: jsonJob{
			ID:             job.ID,
			SourceName:     job.SourceName,
			SourceKind:     job.SourceKind,
			Status:         job.Status,
			CreatedBy:      job.CreatedBy,
			CreatedAt:      job.CreatedAt,
			CommittedBy:    job.CommittedBy,
			CommittedAt:    job.CommittedAt,
			CommitStrategy: job.CommitStrategy,
			ErrorMessage:   job.ErrorMessage,
		},
		Summary: summarize(rows),
		Rows:    make([]jsonRow, len(rows)),
	}
	for i, r := range rows {
		report.Rows[i] = jsonRow{
			RowIndex:   r.RowIndex,
			Status:     r.Status,
			Action:     r.Action,
			StoreID:    r.StoreID,
			Raw:        r.Raw,
			Normalized: r.Normalized,
			Errors:     nonNil(r.Errors),
			Warnings:   nonNil(r.Warnings),
			Autofixes:  nonNil(r.Autofixes),
		}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return data, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Package store persists import jobs and their rows.
//
// Jobs and rows are written in one pass when a job is created and are
// mutated afterwards only by commit finalization. Row statuses only move
// forward; every implementation rejects regressions with
// core.ErrStatusRegression before writing anything.
package store

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/storeimport/internal/core"
)

// DefaultListLimit bounds ListJobs when the caller passes no limit.
const DefaultListLimit = 50

// JobStore is the persistence contract used by the pipeline.
type JobStore interface {
	CreateJob(ctx context.Context, job *core.ImportJob, rows []core.ImportRow) error
	GetJob(ctx context.Context, id string) (*core.ImportJob, error)
	ListJobs(ctx context.Context, limit, offset int) ([]core.ImportJob, error)
	ListRows(ctx context.Context, jobID string, filter RowFilter) ([]core.ImportRow, error)
	UpdateRows(ctx context.Context, jobID string, updates []RowUpdate) error
	FinalizeJob(ctx context.Context, id string, fin Finalization) (*core.ImportJob, error)
}

// RowFilter narrows ListRows. A zero filter returns every row.
type RowFilter struct {
	Statuses []core.RowStatus
}

// Matches reports whether a row passes the filter.
func (f RowFilter) Matches(r core.ImportRow) bool {
	return len(f.Statuses) == 0 || slices.Contains(f.Statuses, r.Status)
}

// RowUpdate is a commit-phase change to one row, addressed by row id.
// Nil Errors or Warnings leave the stored issues unchanged.
type RowUpdate struct {
	RowID       string
	Status      core.RowStatus
	Action      core.RowAction
	StoreID     *string
	CommittedAt *time.Time
	Errors      []core.Issue
	Warnings    []core.Issue
}

// Finalization is the terminal state written to a job by a commit.
type Finalization struct {
	Status         core.JobStatus
	Counts         core.RowCounts
	CommittedBy    string
	CommitStrategy core.CommitStrategyName
	CommittedAt    time.Time
	ErrorMessage   *string
}

// Validate checks that the finalization moves a job to a terminal status.
func (f Finalization) Validate() error {
	if f.Status != core.JobCommitted && f.Status != core.JobFailed {
		return fmt.Errorf("finalize job: invalid terminal status %q", f.Status)
	}
	return nil
}

// finalizable reports whether a job in this status may be finalized.
func finalizable(s core.JobStatus) bool {
	return s == core.JobValidated || s == core.JobPending
}

// finalizeError maps a job that could not be finalized to its error.
func finalizeError(s core.JobStatus) error {
	if err := core.FinalizationError(s); err != nil {
		return err
	}
	return fmt.Errorf("finalize job: unexpected status %q", s)
}

// assignIDs fills empty job and row ids with UUIDv7 values, stamps the
// creation time and links each row to the job.
func assignIDs(job *core.ImportJob, rows []core.ImportRow) error {
	if job.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate job id: %w", err)
		}
		job.ID = id.String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	for i := range rows {
		if rows[i].ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("generate row id: %w", err)
			}
			rows[i].ID = id.String()
		}
		rows[i].JobID = job.ID
	}
	return nil
}

// checkRows rejects duplicate row indexes within a job.
func checkRows(rows []core.ImportRow) error {
	seen := make(map[int]bool, len(rows))
	for _, r := range rows {
		if r.RowIndex < 1 {
			return fmt.Errorf("row index %d: must be 1-based", r.RowIndex)
		}
		if seen[r.RowIndex] {
			return fmt.Errorf("row index %d: duplicate in job", r.RowIndex)
		}
		seen[r.RowIndex] = true
	}
	return nil
}

// applyUpdate returns row with u applied.
func applyUpdate(row core.ImportRow, u RowUpdate) core.ImportRow {
	row.Status = u.Status
	row.Action = u.Action
	row.StoreID = u.StoreID
	row.CommittedAt = u.CommittedAt
	if u.Errors != nil {
		row.Errors = u.Errors
	}
	if u.Warnings != nil {
		row.Warnings = u.Warnings
	}
	return row
}

// orEmpty keeps nil issue lists out of storage.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

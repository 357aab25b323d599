// Package core provides the domain model for the store import pipeline.
// This package has no transport or storage dependencies and is shared by every other layer.
package core

import "time"

// JobStatus is the lifecycle state of an import job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobValidated JobStatus = "validated"
	JobCommitted JobStatus = "committed"
	JobFailed    JobStatus = "failed"
)

// RowStatus is the lifecycle state of a single imported row.
type RowStatus string

const (
	RowPending   RowStatus = "pending"
	RowValid     RowStatus = "valid"
	RowWarning   RowStatus = "warning"
	RowError     RowStatus = "error"
	RowSkipped   RowStatus = "skipped"
	RowCommitted RowStatus = "committed"
)

// RowAction is the outcome of a commit attempt for a row.
type RowAction string

const (
	ActionNone   RowAction = ""
	ActionInsert RowAction = "insert"
	ActionUpdate RowAction = "update"
	ActionSkip   RowAction = "skip"
	ActionError  RowAction = "error"
)

// MatchKey names the identifying field a row was matched by.
type MatchKey string

const (
	MatchNone  MatchKey = ""
	MatchURL   MatchKey = "store_url"
	MatchPhone MatchKey = "owner_phone"
	MatchEmail MatchKey = "owner_email"
)

// SourceKind identifies which ingestion parser produced a job.
type SourceKind string

const (
	SourceCSV         SourceKind = "csv"
	SourceExcel       SourceKind = "excel"
	SourceRemoteSheet SourceKind = "remote_sheet"
)

// CommitStrategyName identifies which commit path finalized a job.
type CommitStrategyName string

const (
	StrategyAtomic     CommitStrategyName = "atomic"
	StrategySequential CommitStrategyName = "sequential"
)

// RawRow is one source record as parsed: header -> cell value.
type RawRow map[string]string

// Issue is a field-scoped problem found on a row.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// Autofix is a recorded, non-blocking correction applied during normalization.
type Autofix struct {
	Field    string `json:"field"`
	Action   string `json:"action"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// SourceMeta describes where the rows of a job came from.
type SourceMeta struct {
	Kind           SourceKind `json:"kind"`
	FileName       string     `json:"file_name,omitempty"`
	URL            string     `json:"url,omitempty"`
	Sheet          string     `json:"sheet,omitempty"`
	Delimiter      string     `json:"delimiter,omitempty"`
	Encoding       string     `json:"encoding,omitempty"`
	Headers        []string   `json:"headers,omitempty"`
	IgnoredColumns []string   `json:"ignored_columns,omitempty"`
}

// Actor is the identity an operation is attributed to.
// It is passed explicitly rather than read from ambient request state.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// String returns the identifier recorded on jobs.
func (a Actor) String() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

// ImportJob is one execution of the import pipeline for one source.
type ImportJob struct {
	ID             string             `json:"id"`
	SourceName     string             `json:"source_name"`
	SourceKind     SourceKind         `json:"source_kind"`
	SourceMeta     SourceMeta         `json:"source_meta"`
	Status         JobStatus          `json:"status"`
	TotalRows      int                `json:"total_rows"`
	ValidRows      int                `json:"valid_rows"`
	WarningRows    int                `json:"warning_rows"`
	ErrorRows      int                `json:"error_rows"`
	CommittedRows  int                `json:"committed_rows"`
	SkippedRows    int                `json:"skipped_rows"`
	CreatedBy      string             `json:"created_by,omitempty"`
	CommittedBy    string             `json:"committed_by,omitempty"`
	CommitStrategy CommitStrategyName `json:"commit_strategy,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	CommittedAt    *time.Time         `json:"committed_at,omitempty"`
	ErrorMessage   *string            `json:"error_message,omitempty"`
}

// ImportRow is one source record tracked through its own lifecycle.
type ImportRow struct {
	ID          string      `json:"id"`
	JobID       string      `json:"job_id"`
	RowIndex    int         `json:"row_index"`
	Raw         RawRow      `json:"raw_row"`
	Normalized  StoreRecord `json:"normalized_row"`
	Status      RowStatus   `json:"status"`
	Errors      []Issue     `json:"errors"`
	Warnings    []Issue     `json:"warnings"`
	Autofixes   []Autofix   `json:"autofixes"`
	Action      RowAction   `json:"action,omitempty"`
	StoreID     *string     `json:"store_id,omitempty"`
	CommittedAt *time.Time  `json:"committed_at,omitempty"`
}

// HasIdentifier reports whether the row carries the primary identifying field.
func (r ImportRow) HasIdentifier() bool {
	return r.Normalized.StoreURL != ""
}

// MatchResult is the transient per-row outcome of a commit.
type MatchResult struct {
	RowIndex  int       `json:"row_index"`
	StoreID   *string   `json:"store_id"`
	Action    RowAction `json:"action"`
	MatchedBy MatchKey  `json:"matched_by"`
	Error     *string   `json:"error"`
	// Warnings are commit-phase notes such as ignored secondary matches.
	Warnings []Issue `json:"warnings,omitempty"`
}

// CommitSummary is returned to callers of a commit.
type CommitSummary struct {
	JobID    string             `json:"job_id"`
	Inserted int                `json:"inserted"`
	Updated  int                `json:"updated"`
	Skipped  int                `json:"skipped"`
	Errors   []string           `json:"errors"`
	Strategy CommitStrategyName `json:"strategy"`
	Results  []MatchResult      `json:"results,omitempty"`
	Links    LinkReport         `json:"contact_links"`
}

// LinkReport summarizes best-effort contact linkage after a commit.
// Failures here never change row or job state.
type LinkReport struct {
	Attempted int      `json:"attempted"`
	Linked    int      `json:"linked"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// RowCounts tallies rows by status.
type RowCounts struct {
	Total     int
	Valid     int
	Warning   int
	Error     int
	Committed int
	Skipped   int
}

// CountRows tallies rows by status.
func CountRows(rows []ImportRow) RowCounts {
	c := RowCounts{Total: len(rows)}
	for _, r := range rows {
		switch r.Status {
		case RowValid:
			c.Valid++
		case RowWarning:
			c.Warning++
		case RowError:
			c.Error++
		case RowCommitted:
			c.Committed++
		case RowSkipped:
			c.Skipped++
		}
	}
	return c
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

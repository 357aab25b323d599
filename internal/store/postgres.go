package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/storeimport/internal/core"
	"github.com/JonMunkholm/storeimport/internal/database"
)

// Postgres is a JobStore backed by the import_jobs and import_rows tables.
type Postgres struct {
	db database.DBTX
}

// NewPostgres creates a store over a pool or connection.
func NewPostgres(db database.DBTX) *Postgres {
	return &Postgres{db: db}
}

var _ JobStore = (*Postgres)(nil)

const jobColumns = `id, source_name, source_kind, source_meta, status, total_rows, valid_rows,
	warning_rows, error_rows, committed_rows, skipped_rows, created_by, committed_by,
	commit_strategy, created_at, committed_at, error_message`

const rowColumns = `id, job_id, row_index, raw_row, normalized_row, status, errors, warnings,
	autofixes, action, store_id, committed_at`

var rowCopyColumns = []string{
	"id", "job_id", "row_index", "raw_row", "normalized_row", "status",
	"errors", "warnings", "autofixes",
}

// CreateJob inserts the job and bulk-copies its rows in one transaction.
func (p *Postgres) CreateJob(ctx context.Context, job *core.ImportJob, rows []core.ImportRow) error {
	if err := assignIDs(job, rows); err != nil {
		return err
	}
	if err := checkRows(rows); err != nil {
		return err
	}

	meta, err := json.Marshal(job.SourceMeta)
	if err != nil {
		return fmt.Errorf("encode source meta: %w", err)
	}

	copyRows := make([][]any, 0, len(rows))
	for _, r := range rows {
		values, err := rowCopyValues(r)
		if err != nil {
			return fmt.Errorf("row %d: %w", r.RowIndex, err)
		}
		copyRows = append(copyRows, values)
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
INSERT INTO import_jobs (id, source_name, source_kind, source_meta, status, total_rows,
	valid_rows, warning_rows, error_rows, committed_rows, skipped_rows, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		job.ID, job.SourceName, string(job.SourceKind), meta, string(job.Status),
		job.TotalRows, job.ValidRows, job.WarningRows, job.ErrorRows, job.CommittedRows, job.SkippedRows,
		core.ToPgText(job.CreatedBy), job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	if len(copyRows) > 0 {
		if _, err := tx.CopyFrom(
			ctx,
			pgx.Identifier{"import_rows"},
			rowCopyColumns,
			pgx.CopyFromRows(copyRows),
		); err != nil {
			return fmt.Errorf("copy rows: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit job: %w", err)
	}
	return nil
}

func (p *Postgres) GetJob(ctx context.Context, id string) (*core.ImportJob, error) {
	if uuid.Validate(id) != nil {
		return nil, core.ErrJobNotFound
	}
	row := p.db.QueryRow(ctx, "SELECT "+jobColumns+" FROM import_jobs WHERE id = $1", id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (p *Postgres) ListJobs(ctx context.Context, limit, offset int) ([]core.ImportJob, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := p.db.Query(ctx,
		"SELECT "+jobColumns+" FROM import_jobs ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []core.ImportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return jobs, nil
}

func (p *Postgres) ListRows(ctx context.Context, jobID string, filter RowFilter) ([]core.ImportRow, error) {
	if _, err := p.GetJob(ctx, jobID); err != nil {
		return nil, err
	}

	query := "SELECT " + rowColumns + " FROM import_rows WHERE job_id = $1"
	args := []any{jobID}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query += " AND status = ANY($2)"
		args = append(args, statuses)
	}
	query += " ORDER BY row_index"

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	defer rows.Close()

	var out []core.ImportRow
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// UpdateRows locks the affected rows, checks every transition, then applies
// all updates in one batch. Nothing is written if any transition regresses.
func (p *Postgres) UpdateRows(ctx context.Context, jobID string, updates []RowUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	ids := make([]string, len(updates))
	for i, u := range updates {
		ids[i] = u.RowID
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := lockRowStatuses(ctx, tx, jobID, ids)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, u := range updates {
		cur, ok := current[u.RowID]
		if !ok {
			return fmt.Errorf("update row %s: not in job %s", u.RowID, jobID)
		}
		if err := core.CheckAdvance(cur.index, cur.status, u.Status); err != nil {
			return err
		}

		var errorsJSON, warningsJSON []byte
		if u.Errors != nil {
			if errorsJSON, err = json.Marshal(u.Errors); err != nil {
				return fmt.Errorf("encode errors: %w", err)
			}
		}
		if u.Warnings != nil {
			if warningsJSON, err = json.Marshal(u.Warnings); err != nil {
				return fmt.Errorf("encode warnings: %w", err)
			}
		}

		batch.Queue(`
UPDATE import_rows SET
	status = $2,
	action = $3,
	store_id = $4::text::uuid,
	committed_at = $5,
	errors = COALESCE($6::jsonb, errors),
	warnings = COALESCE($7::jsonb, warnings)
WHERE id = $1`,
			u.RowID, string(u.Status), core.ToPgText(string(u.Action)), core.ToPgTextPtr(u.StoreID),
			core.ToPgTimestamptz(u.CommittedAt), nullableJSON(errorsJSON), nullableJSON(warningsJSON),
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("update rows: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit row updates: %w", err)
	}
	return nil
}

// FinalizeJob writes the terminal state only while the job is still awaiting
// commit, so a concurrent second commit loses the race cleanly.
func (p *Postgres) FinalizeJob(ctx context.Context, id string, fin Finalization) (*core.ImportJob, error) {
	if err := fin.Validate(); err != nil {
		return nil, err
	}
	if uuid.Validate(id) != nil {
		return nil, core.ErrJobNotFound
	}

	row := p.db.QueryRow(ctx, `
UPDATE import_jobs SET
	status = $2,
	total_rows = $3,
	valid_rows = $4,
	warning_rows = $5,
	error_rows = $6,
	committed_rows = $7,
	skipped_rows = $8,
	committed_by = $9,
	commit_strategy = $10,
	committed_at = $11,
	error_message = $12
WHERE id = $1 AND status IN ('pending', 'validated')
RETURNING `+jobColumns,
		id, string(fin.Status), fin.Counts.Total, fin.Counts.Valid, fin.Counts.Warning,
		fin.Counts.Error, fin.Counts.Committed, fin.Counts.Skipped,
		core.ToPgText(fin.CommittedBy), core.ToPgText(string(fin.CommitStrategy)),
		fin.CommittedAt, core.ToPgTextPtr(fin.ErrorMessage),
	)

	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("finalize job: %w", err)
	}

	existing, err := p.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, finalizeError(existing.Status)
}

type rowState struct {
	index  int
	status core.RowStatus
}

func lockRowStatuses(ctx context.Context, tx pgx.Tx, jobID string, ids []string) (map[string]rowState, error) {
	rows, err := tx.Query(ctx,
		"SELECT id, row_index, status FROM import_rows WHERE job_id = $1 AND id = ANY($2::text[]::uuid[]) FOR UPDATE",
		jobID, ids)
	if err != nil {
		return nil, fmt.Errorf("lock rows: %w", err)
	}
	defer rows.Close()

	states := make(map[string]rowState, len(ids))
	for rows.Next() {
		var (
			id     string
			index  int
			status string
		)
		if err := rows.Scan(&id, &index, &status); err != nil {
			return nil, fmt.Errorf("scan row status: %w", err)
		}
		states[id] = rowState{index: index, status: core.RowStatus(status)}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return states, nil
}

func rowCopyValues(r core.ImportRow) ([]any, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("row id: %w", err)
	}
	jobID, err := uuid.Parse(r.JobID)
	if err != nil {
		return nil, fmt.Errorf("job id: %w", err)
	}
	raw, err := json.Marshal(r.Raw)
	if err != nil {
		return nil, fmt.Errorf("encode raw row: %w", err)
	}
	normalized, err := json.Marshal(r.Normalized)
	if err != nil {
		return nil, fmt.Errorf("encode normalized row: %w", err)
	}
	errs, err := json.Marshal(orEmpty(r.Errors))
	if err != nil {
		return nil, fmt.Errorf("encode errors: %w", err)
	}
	warns, err := json.Marshal(orEmpty(r.Warnings))
	if err != nil {
		return nil, fmt.Errorf("encode warnings: %w", err)
	}
	fixes, err := json.Marshal(orEmpty(r.Autofixes))
	if err != nil {
		return nil, fmt.Errorf("encode autofixes: %w", err)
	}
	return []any{id, jobID, r.RowIndex, raw, normalized, string(r.Status), errs, warns, fixes}, nil
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func scanJob(row pgx.Row) (*core.ImportJob, error) {
	var (
		job            core.ImportJob
		sourceKind     string
		status         string
		meta           []byte
		createdBy      pgtype.Text
		committedBy    pgtype.Text
		commitStrategy pgtype.Text
		committedAt    pgtype.Timestamptz
		errorMessage   pgtype.Text
	)
	err := row.Scan(
		&job.ID, &job.SourceName, &sourceKind, &meta, &status,
		&job.TotalRows, &job.ValidRows, &job.WarningRows, &job.ErrorRows,
		&job.CommittedRows, &job.SkippedRows,
		&createdBy, &committedBy, &commitStrategy,
		&job.CreatedAt, &committedAt, &errorMessage,
	)
	if err != nil {
		return nil, err
	}

	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &job.SourceMeta); err != nil {
			return nil, fmt.Errorf("decode source meta: %w", err)
		}
	}
	job.SourceKind = core.SourceKind(sourceKind)
	job.Status = core.JobStatus(status)
	job.CreatedBy = createdBy.String
	job.CommittedBy = committedBy.String
	job.CommitStrategy = core.CommitStrategyName(commitStrategy.String)
	job.CommittedAt = core.PgTimePtr(committedAt)
	job.ErrorMessage = core.PgTextPtr(errorMessage)
	return &job, nil
}

func scanRow(row pgx.Row) (*core.ImportRow, error) {
	var (
		r                                 core.ImportRow
		status                            string
		raw, normalized, errs, warns, fix []byte
		action, storeID                   pgtype.Text
		committedAt                       pgtype.Timestamptz
	)
	err := row.Scan(
		&r.ID, &r.JobID, &r.RowIndex, &raw, &normalized, &status,
		&errs, &warns, &fix, &action, &storeID, &committedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, field := range []struct {
		name string
		data []byte
		dst  any
	}{
		{"raw_row", raw, &r.Raw},
		{"normalized_row", normalized, &r.Normalized},
		{"errors", errs, &r.Errors},
		{"warnings", warns, &r.Warnings},
		{"autofixes", fix, &r.Autofixes},
	} {
		if len(field.data) == 0 {
			continue
		}
		if err := json.Unmarshal(field.data, field.dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", field.name, err)
		}
	}

	r.Status = core.RowStatus(status)
	r.Action = core.RowAction(strings.TrimSpace(action.String))
	r.StoreID = core.PgTextPtr(storeID)
	r.CommittedAt = core.PgTimePtr(committedAt)
	return &r, nil
}

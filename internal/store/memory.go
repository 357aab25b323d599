package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/JonMunkholm/storeimport/internal/core"
)

// Memory is an in-process JobStore for tests and local runs.
type Memory struct {
	mu    sync.RWMutex
	jobs  map[string]core.ImportJob
	rows  map[string][]core.ImportRow // by job id, ordered by row_index
	order []string                    // job ids in creation order
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[string]core.ImportJob),
		rows: make(map[string][]core.ImportRow),
	}
}

var _ JobStore = (*Memory)(nil)

func (m *Memory) CreateJob(ctx context.Context, job *core.ImportJob, rows []core.ImportRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := assignIDs(job, rows); err != nil {
		return err
	}
	if err := checkRows(rows); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("create job %s: already exists", job.ID)
	}

	stored := make([]core.ImportRow, len(rows))
	for i, r := range rows {
		stored[i] = cloneRow(r)
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].RowIndex < stored[j].RowIndex })

	m.jobs[job.ID] = cloneJob(*job)
	m.rows[job.ID] = stored
	m.order = append(m.order, job.ID)
	return nil
}

func (m *Memory) GetJob(ctx context.Context, id string) (*core.ImportJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, core.ErrJobNotFound
	}
	out := cloneJob(job)
	return &out, nil
}

// ListJobs returns jobs newest first.
func (m *Memory) ListJobs(ctx context.Context, limit, offset int) ([]core.ImportJob, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]core.ImportJob, 0, limit)
	for i := len(m.order) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, cloneJob(m.jobs[m.order[i]]))
	}
	return out, nil
}

func (m *Memory) ListRows(ctx context.Context, jobID string, filter RowFilter) ([]core.ImportRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.jobs[jobID]; !ok {
		return nil, core.ErrJobNotFound
	}

	var out []core.ImportRow
	for _, r := range m.rows[jobID] {
		if filter.Matches(r) {
			out = append(out, cloneRow(r))
		}
	}
	return out, nil
}

// UpdateRows applies every update or none of them.
func (m *Memory) UpdateRows(ctx context.Context, jobID string, updates []RowUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.rows[jobID]
	if !ok {
		return core.ErrJobNotFound
	}

	pos := make(map[string]int, len(rows))
	for i, r := range rows {
		pos[r.ID] = i
	}

	for _, u := range updates {
		i, ok := pos[u.RowID]
		if !ok {
			return fmt.Errorf("update row %s: not in job %s", u.RowID, jobID)
		}
		if err := core.CheckAdvance(rows[i].RowIndex, rows[i].Status, u.Status); err != nil {
			return err
		}
	}

	for _, u := range updates {
		i := pos[u.RowID]
		rows[i] = cloneRow(applyUpdate(rows[i], u))
	}
	return nil
}

// FinalizeJob writes the terminal state if the job is still awaiting commit.
func (m *Memory) FinalizeJob(ctx context.Context, id string, fin Finalization) (*core.ImportJob, error) {
	if err := fin.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, core.ErrJobNotFound
	}
	if !finalizable(job.Status) {
		return nil, finalizeError(job.Status)
	}

	committedAt := fin.CommittedAt
	job.Status = fin.Status
	job.TotalRows = fin.Counts.Total
	job.ValidRows = fin.Counts.Valid
	job.WarningRows = fin.Counts.Warning
	job.ErrorRows = fin.Counts.Error
	job.CommittedRows = fin.Counts.Committed
	job.SkippedRows = fin.Counts.Skipped
	job.CommittedBy = fin.CommittedBy
	job.CommitStrategy = fin.CommitStrategy
	job.CommittedAt = &committedAt
	job.ErrorMessage = fin.ErrorMessage

	m.jobs[id] = job
	out := cloneJob(job)
	return &out, nil
}

func cloneJob(j core.ImportJob) core.ImportJob {
	j.SourceMeta.Headers = append([]string(nil), j.SourceMeta.Headers...)
	j.SourceMeta.IgnoredColumns = append([]string(nil), j.SourceMeta.IgnoredColumns...)
	if j.CommittedAt != nil {
		t := *j.CommittedAt
		j.CommittedAt = &t
	}
	if j.ErrorMessage != nil {
		s := *j.ErrorMessage
		j.ErrorMessage = &s
	}
	return j
}

func cloneRow(r core.ImportRow) core.ImportRow {
	r.Raw = maps.Clone(r.Raw)
	r.Errors = append([]core.Issue{}, r.Errors...)
	r.Warnings = append([]core.Issue{}, r.Warnings...)
	r.Autofixes = append([]core.Autofix{}, r.Autofixes...)
	if r.StoreID != nil {
		s := *r.StoreID
		r.StoreID = &s
	}
	if r.CommittedAt != nil {
		t := *r.CommittedAt
		r.CommittedAt = &t
	}
	return r
}

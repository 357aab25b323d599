// Package commit materializes validated import rows into the store catalog.
//
// A commit runs at most once per job. The engine filters eligible rows,
// hands them to a Strategy chosen at startup, and finalizes rows and then
// the job through the job store. Contact linkage runs afterwards and never
// affects the outcome.
package commit

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/JonMunkholm/storeimport/internal/catalog"
	"github.com/JonMunkholm/storeimport/internal/core"
	"github.com/JonMunkholm/storeimport/internal/logging"
	"github.com/JonMunkholm/storeimport/internal/store"
)

// Options control one commit.
type Options struct {
	// SkipErrors leaves error rows out of the batch. When false they are
	// committed like valid rows.
	SkipErrors bool
	Actor      core.Actor
}

// DefaultOptions returns the default policy: error rows are skipped.
func DefaultOptions(actor core.Actor) Options {
	return Options{SkipErrors: true, Actor: actor}
}

// Engine runs commits.
type Engine struct {
	jobs     store.JobStore
	strategy Strategy
	linker   catalog.ContactLinker
	limiter  *Limiter
	locks    *jobLocks
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates an engine. linker and limiter may be nil.
func NewEngine(jobs store.JobStore, strategy Strategy, linker catalog.ContactLinker, limiter *Limiter, logger *slog.Logger) *Engine {
	if limiter == nil {
		limiter = NewLimiter(0, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		jobs:     jobs,
		strategy: strategy,
		linker:   linker,
		limiter:  limiter,
		locks:    newJobLocks(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Strategy returns the strategy commits run with.
func (e *Engine) Strategy() core.CommitStrategyName {
	return e.strategy.Name()
}

// Limiter returns the engine's concurrency limiter.
func (e *Engine) Limiter() *Limiter {
	return e.limiter
}

// plan is the partition of a job's rows before the strategy runs.
type plan struct {
	eligible []core.ImportRow
	updates  map[string]store.RowUpdate // by row id, for rows decided up front
	results  []core.MatchResult
}

// Commit commits a job. It returns core.ErrJobNotFound,
// core.ErrJobAlreadyFinalized, core.ErrJobInFailedState,
// core.ErrNoEligibleRows, core.ErrTooManyCommits or a
// *core.CommitProcedureError.
func (e *Engine) Commit(ctx context.Context, jobID string, opts Options) (*core.CommitSummary, error) {
	logger := logging.Attach(ctx, e.logger).With(slog.String("job_id", jobID))

	if err := e.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer e.limiter.Release()

	unlock := e.locks.lock(jobID)
	defer unlock()

	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := core.FinalizationError(job.Status); err != nil {
		return nil, err
	}

	rows, err := e.jobs.ListRows(ctx, jobID, store.RowFilter{})
	if err != nil {
		return nil, err
	}

	p := partition(rows, opts.SkipErrors)
	if len(p.eligible) == 0 {
		return nil, core.ErrNoEligibleRows
	}

	start := time.Now()
	batch := Batch{JobID: jobID, Actor: opts.Actor.String(), Rows: p.eligible}
	results, applyErr := e.strategy.Apply(ctx, batch)

	// Finalization must land even when the caller has gone away.
	finCtx := context.WithoutCancel(ctx)
	committedAt := e.now()

	var procErr *core.CommitProcedureError
	if errors.As(applyErr, &procErr) {
		return nil, e.failBatch(finCtx, job, rows, p, procErr, opts, committedAt, logger)
	}
	if applyErr != nil && !errors.Is(applyErr, context.Canceled) && !errors.Is(applyErr, context.DeadlineExceeded) {
		// No rows were attempted; treat as a failed batch.
		return nil, e.failBatch(finCtx, job, rows, p, &core.CommitProcedureError{Detail: applyErr.Error(), Cause: applyErr}, opts, committedAt, logger)
	}

	summary := &core.CommitSummary{JobID: jobID, Strategy: e.strategy.Name(), Errors: []string{}}
	byIndex := make(map[int]core.MatchResult, len(results))
	for _, r := range results {
		byIndex[r.RowIndex] = r
	}

	for _, row := range p.eligible {
		res, ok := byIndex[row.RowIndex]
		if !ok {
			msg := "no result returned for row"
			if applyErr != nil {
				msg = CancelledMessage
			}
			res = errorResult(row.RowIndex, msg)
		}
		p.updates[row.ID] = resultUpdate(row, res, committedAt)
		p.results = append(p.results, res)
	}

	final := make([]core.ImportRow, len(rows))
	updates := make([]store.RowUpdate, 0, len(p.updates))
	for i, row := range rows {
		final[i] = row
		u, ok := p.updates[row.ID]
		if !ok {
			continue
		}
		updates = append(updates, u)
		final[i].Status = u.Status
		final[i].Action = u.Action
	}
	if err := e.jobs.UpdateRows(finCtx, jobID, updates); err != nil {
		return nil, fmt.Errorf("finalize rows: %w", err)
	}

	status := core.JobCommitted
	var errMsg *string
	if applyErr != nil {
		status = core.JobFailed
		errMsg = core.StringPtr(CancelledMessage)
	}
	if _, err := e.jobs.FinalizeJob(finCtx, jobID, store.Finalization{
		Status:         status,
		Counts:         core.CountRows(final),
		CommittedBy:    opts.Actor.String(),
		CommitStrategy: e.strategy.Name(),
		CommittedAt:    committedAt,
		ErrorMessage:   errMsg,
	}); err != nil {
		return nil, fmt.Errorf("finalize job: %w", err)
	}

	slices.SortFunc(p.results, func(a, b core.MatchResult) int {
		return cmp.Compare(a.RowIndex, b.RowIndex)
	})
	for _, r := range p.results {
		switch r.Action {
		case core.ActionInsert:
			summary.Inserted++
		case core.ActionUpdate:
			summary.Updated++
		case core.ActionSkip:
			summary.Skipped++
		case core.ActionError:
			summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: %s", r.RowIndex, core.Deref(r.Error)))
		}
	}
	summary.Results = p.results

	logger.Info("commit finished",
		slog.String("strategy", string(summary.Strategy)),
		slog.String("status", string(status)),
		slog.Int("inserted", summary.Inserted),
		slog.Int("updated", summary.Updated),
		slog.Int("skipped", summary.Skipped),
		slog.Int("errors", len(summary.Errors)),
		slog.Duration("duration", time.Since(start)),
	)

	summary.Links = e.linkContacts(finCtx, p.eligible, byIndex, logger)

	if applyErr != nil {
		return summary, applyErr
	}
	return summary, nil
}

// partition decides every row that never reaches the strategy. Rows without
// a store_url are skipped regardless of verdict; error rows are left out
// when skipErrors is set; pending rows are left untouched.
func partition(rows []core.ImportRow, skipErrors bool) plan {
	p := plan{updates: make(map[string]store.RowUpdate)}
	for _, row := range rows {
		switch {
		case row.Status == core.RowPending:
			continue
		case !row.HasIdentifier():
			p.updates[row.ID] = store.RowUpdate{RowID: row.ID, Status: core.RowSkipped, Action: core.ActionSkip}
			p.results = append(p.results, core.MatchResult{RowIndex: row.RowIndex, Action: core.ActionSkip})
		case row.Status == core.RowError && skipErrors:
			p.updates[row.ID] = store.RowUpdate{RowID: row.ID, Status: core.RowError, Action: core.ActionSkip}
			p.results = append(p.results, core.MatchResult{RowIndex: row.RowIndex, Action: core.ActionSkip})
		case row.Status == core.RowValid, row.Status == core.RowWarning, row.Status == core.RowError:
			p.eligible = append(p.eligible, row)
		}
	}
	return p
}

// resultUpdate turns a strategy result into the row's final state.
func resultUpdate(row core.ImportRow, res core.MatchResult, committedAt time.Time) store.RowUpdate {
	u := store.RowUpdate{RowID: row.ID, Action: res.Action}
	switch res.Action {
	case core.ActionInsert, core.ActionUpdate:
		u.Status = core.RowCommitted
		u.StoreID = res.StoreID
		u.CommittedAt = &committedAt
	case core.ActionSkip:
		u.Status = core.RowSkipped
	default:
		u.Status = core.RowError
		u.Action = core.ActionError
		u.Errors = append(append([]core.Issue{}, row.Errors...), core.Issue{
			Field:   "commit",
			Message: core.Deref(res.Error),
		})
	}
	if len(res.Warnings) > 0 {
		u.Warnings = append(append([]core.Issue{}, row.Warnings...), res.Warnings...)
	}
	return u
}

// failBatch records an all-or-nothing failure: every eligible row becomes an
// error, the job becomes failed and the procedure error is returned.
func (e *Engine) failBatch(ctx context.Context, job *core.ImportJob, rows []core.ImportRow, p plan, procErr *core.CommitProcedureError, opts Options, at time.Time, logger *slog.Logger) error {
	msg := procErr.Error()
	for _, row := range p.eligible {
		p.updates[row.ID] = resultUpdate(row, errorResult(row.RowIndex, msg), at)
	}

	final := make([]core.ImportRow, len(rows))
	updates := make([]store.RowUpdate, 0, len(p.updates))
	for i, row := range rows {
		final[i] = row
		if u, ok := p.updates[row.ID]; ok {
			updates = append(updates, u)
			final[i].Status = u.Status
		}
	}

	logger.Error("commit procedure failed",
		slog.String("strategy", string(e.strategy.Name())),
		slog.Int("rows", len(p.eligible)),
		slog.String("error", procErr.Detail),
	)

	if err := e.jobs.UpdateRows(ctx, job.ID, updates); err != nil {
		return fmt.Errorf("finalize rows after %v: %w", procErr, err)
	}
	if _, err := e.jobs.FinalizeJob(ctx, job.ID, store.Finalization{
		Status:         core.JobFailed,
		Counts:         core.CountRows(final),
		CommittedBy:    opts.Actor.String(),
		CommitStrategy: e.strategy.Name(),
		CommittedAt:    at,
		ErrorMessage:   &msg,
	}); err != nil {
		return fmt.Errorf("finalize job after %v: %w", procErr, err)
	}
	return procErr
}

// linkContacts upserts a contact for every committed row with a phone.
// Failures are logged and counted only.
func (e *Engine) linkContacts(ctx context.Context, rows []core.ImportRow, results map[int]core.MatchResult, logger *slog.Logger) core.LinkReport {
	var report core.LinkReport
	if e.linker == nil {
		return report
	}

	for _, row := range rows {
		res, ok := results[row.RowIndex]
		if !ok || res.StoreID == nil || row.Normalized.OwnerPhone == "" {
			continue
		}
		if res.Action != core.ActionInsert && res.Action != core.ActionUpdate {
			continue
		}

		report.Attempted++
		contact := catalog.Contact{
			Name:  row.Normalized.OwnerName,
			Phone: row.Normalized.OwnerPhone,
			Email: row.Normalized.OwnerEmail,
		}
		if err := e.linker.UpsertContact(ctx, contact, *res.StoreID); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("row %d: %v", row.RowIndex, err))
			logger.Warn("contact link failed",
				slog.Int("row_index", row.RowIndex),
				slog.String("store_id", *res.StoreID),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.Linked++
	}
	return report
}

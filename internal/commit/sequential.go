package commit

import (
	"context"
	"log/slog"

	"github.com/JonMunkholm/storeimport/internal/catalog"
	"github.com/JonMunkholm/storeimport/internal/core"
)

// CancelledMessage is the row error recorded for rows not attempted after a
// sequential commit was cancelled.
const CancelledMessage = "commit cancelled"

// SequentialStrategy matches and writes rows one at a time through a
// catalog.
//
// This path is NOT atomic across rows. A row that fails is reported as an
// error while rows written before it stay written, and two concurrent
// commits touching the same keys may both insert. The engine serializes
// commits per job; overlapping commits across jobs are the caller's
// responsibility.
type SequentialStrategy struct {
	catalog catalog.Catalog
	logger  *slog.Logger
}

// NewSequentialStrategy creates the fallback strategy.
func NewSequentialStrategy(c catalog.Catalog, logger *slog.Logger) *SequentialStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &SequentialStrategy{catalog: c, logger: logger}
}

func (s *SequentialStrategy) Name() core.CommitStrategyName {
	return core.StrategySequential
}

// Apply preloads every store matching the batch's keys in one lookup, then
// walks the rows in order. Rows inserted earlier in the batch are added to
// the index so later rows sharing a key update them. Cancellation is checked
// between rows.
func (s *SequentialStrategy) Apply(ctx context.Context, batch Batch) ([]core.MatchResult, error) {
	index, err := s.catalog.Lookup(ctx, rowKeys(batch.Rows))
	if err != nil {
		return nil, err
	}

	results := make([]core.MatchResult, 0, len(batch.Rows))
	for i, row := range batch.Rows {
		if err := ctx.Err(); err != nil {
			for _, rest := range batch.Rows[i:] {
				results = append(results, errorResult(rest.RowIndex, CancelledMessage))
			}
			s.logger.Warn("sequential commit cancelled",
				slog.String("job_id", batch.JobID),
				slog.Int("written", i),
				slog.Int("cancelled", len(batch.Rows)-i),
			)
			return results, err
		}
		results = append(results, s.applyRow(ctx, index, row, batch.Actor))
	}
	return results, nil
}

func (s *SequentialStrategy) applyRow(ctx context.Context, index *catalog.Index, row core.ImportRow, actor string) core.MatchResult {
	keys := row.Normalized.Keys()
	id, by, warnings := index.Match(keys, row.Normalized)

	if id == "" {
		newID, err := s.catalog.Insert(ctx, row.Normalized, actor)
		if err != nil {
			return errorResult(row.RowIndex, err.Error())
		}
		index.Add(newID, keys)
		return core.MatchResult{
			RowIndex: row.RowIndex,
			StoreID:  &newID,
			Action:   core.ActionInsert,
			Warnings: warnings,
		}
	}

	if err := s.catalog.Update(ctx, id, row.Normalized, actor); err != nil {
		return errorResult(row.RowIndex, err.Error())
	}
	index.AddSecondary(id, keys)
	return core.MatchResult{
		RowIndex:  row.RowIndex,
		StoreID:   &id,
		Action:    core.ActionUpdate,
		MatchedBy: by,
		Warnings:  warnings,
	}
}

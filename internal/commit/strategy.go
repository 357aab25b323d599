package commit

import (
	"context"
	"log/slog"

	"github.com/JonMunkholm/storeimport/internal/core"
	"github.com/JonMunkholm/storeimport/internal/database"
)

// Batch is the eligible row set of one commit, in row_index order. Every
// row carries a normalized store_url.
type Batch struct {
	JobID string
	Actor string
	Rows  []core.ImportRow
}

// Strategy materializes a batch into the store catalog and returns one
// result per row.
//
// An error means the batch as a whole failed. AtomicStrategy returns
// *core.CommitProcedureError and nothing was written. SequentialStrategy
// returns ctx.Err() when cancelled between rows and the results cover every
// row, including those already written.
type Strategy interface {
	Name() core.CommitStrategyName
	Apply(ctx context.Context, batch Batch) ([]core.MatchResult, error)
}

// ProbeAtomic reports whether the atomic commit procedure is installed.
func ProbeAtomic(ctx context.Context, db database.DBTX) (bool, error) {
	return database.ProcedureExists(ctx, db, database.CommitProcedure)
}

// SelectStrategy probes the database once and returns the atomic strategy
// when the procedure exists, otherwise the sequential fallback. The choice
// is logged; the fallback is logged as a warning since it does not roll
// back partial batches.
func SelectStrategy(ctx context.Context, db database.DBTX, atomic *AtomicStrategy, sequential *SequentialStrategy, logger *slog.Logger) (Strategy, error) {
	ok, err := ProbeAtomic(ctx, db)
	if err != nil {
		return nil, err
	}
	if ok {
		logger.Info("commit strategy selected",
			slog.String("strategy", string(core.StrategyAtomic)),
			slog.String("procedure", database.CommitProcedure),
		)
		return atomic, nil
	}
	logger.Warn("commit strategy selected",
		slog.String("strategy", string(core.StrategySequential)),
		slog.String("guarantee", "not atomic across rows; a failed row does not roll back earlier writes"),
	)
	return sequential, nil
}

func rowKeys(rows []core.ImportRow) []core.DedupKeys {
	keys := make([]core.DedupKeys, len(rows))
	for i, r := range rows {
		keys[i] = r.Normalized.Keys()
	}
	return keys
}

func errorResult(rowIndex int, msg string) core.MatchResult {
	return core.MatchResult{RowIndex: rowIndex, Action: core.ActionError, Error: &msg}
}

package commit

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/JonMunkholm/storeimport/internal/core"
	"github.com/JonMunkholm/storeimport/internal/database"
)

//go:embed procedure.schema.json
var procedureSchemaJSON []byte

// callFunc invokes the commit procedure with a JSON payload and returns its
// raw JSON response.
type callFunc func(ctx context.Context, jobID string, payload []byte, actor string) ([]byte, error)

// AtomicStrategy sends the whole batch to import_commit_stores in one call.
// The procedure matches and writes every row in a single transaction under
// a per-job advisory lock, so the batch is all-or-nothing.
type AtomicStrategy struct {
	call   callFunc
	schema *jsonschema.Schema
	logger *slog.Logger
}

// NewAtomicStrategy creates the strategy over a pool.
func NewAtomicStrategy(db database.DBTX, logger *slog.Logger) (*AtomicStrategy, error) {
	return newAtomicStrategy(func(ctx context.Context, jobID string, payload []byte, actor string) ([]byte, error) {
		var out []byte
		err := db.QueryRow(ctx,
			"SELECT "+database.CommitProcedure+"($1::uuid, $2::jsonb, $3)",
			jobID, string(payload), actor,
		).Scan(&out)
		return out, err
	}, logger)
}

func newAtomicStrategy(call callFunc, logger *slog.Logger) (*AtomicStrategy, error) {
	schema, err := compileProcedureSchema()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AtomicStrategy{call: call, schema: schema, logger: logger}, nil
}

func compileProcedureSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("procedure.schema.json", bytes.NewReader(procedureSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("procedure.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func (s *AtomicStrategy) Name() core.CommitStrategyName {
	return core.StrategyAtomic
}

// procedureRow is one element of the procedure payload.
type procedureRow struct {
	RowIndex int              `json:"row_index"`
	Keys     core.DedupKeys   `json:"keys"`
	Record   core.StoreRecord `json:"record"`
}

// procedureResponse is the decoded procedure result.
type procedureResponse struct {
	Results  []core.MatchResult `json:"results"`
	Inserted int                `json:"inserted"`
	Updated  int                `json:"updated"`
	Skipped  int                `json:"skipped"`
	Errors   []string           `json:"errors"`
}

// Apply runs the procedure. The call is not cancellable once started; the
// transaction either commits as a whole or not at all.
func (s *AtomicStrategy) Apply(ctx context.Context, batch Batch) ([]core.MatchResult, error) {
	payload, err := buildPayload(batch.Rows)
	if err != nil {
		return nil, &core.CommitProcedureError{Detail: "encode batch", Cause: err}
	}

	raw, err := s.call(context.WithoutCancel(ctx), batch.JobID, payload, batch.Actor)
	if err != nil {
		return nil, &core.CommitProcedureError{Detail: err.Error(), Cause: err}
	}

	resp, err := s.decode(raw)
	if err != nil {
		return nil, &core.CommitProcedureError{Detail: err.Error(), Cause: err}
	}

	if len(resp.Errors) > 0 {
		s.logger.Warn("commit procedure reported row errors",
			slog.String("job_id", batch.JobID),
			slog.Int("errors", len(resp.Errors)),
		)
	}
	return resp.Results, nil
}

func buildPayload(rows []core.ImportRow) ([]byte, error) {
	payload := make([]procedureRow, len(rows))
	for i, r := range rows {
		payload[i] = procedureRow{RowIndex: r.RowIndex, Keys: r.Normalized.Keys(), Record: r.Normalized}
	}
	return json.Marshal(payload)
}

// decode validates the response against the embedded schema before using it.
func (s *AtomicStrategy) decode(raw []byte) (*procedureResponse, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("unmarshal procedure response: %w", err)
	}
	if err := s.schema.Validate(v); err != nil {
		return nil, fmt.Errorf("procedure response does not match schema: %w", err)
	}

	var resp procedureResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode procedure response: %w", err)
	}
	return &resp, nil
}

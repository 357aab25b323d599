package commit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/JonMunkholm/storeimport/internal/core"
)

// ---- Atomic Strategy Tests ----

func TestBuildPayload(t *testing.T) {
	rows := []core.ImportRow{
		validRow(1, core.StoreRecord{StoreURL: "https://www.Shop.example.com/a/", OwnerPhone: "+966 50 000 0001", OwnerEmail: " Owner@Example.com "}),
		validRow(2, core.StoreRecord{StoreURL: "b.example.com"}),
	}

	raw, err := buildPayload(rows)
	if err != nil {
		t.Fatalf("buildPayload failed: %v", err)
	}

	var got []procedureRow
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("payload has %d rows, want 2", len(got))
	}

	want := core.DedupKeys{URL: "shop.example.com/a", Phone: "966500000001", Email: "owner@example.com"}
	if got[0].Keys != want {
		t.Errorf("keys = %+v, want %+v", got[0].Keys, want)
	}
	if got[0].RowIndex != 1 || got[1].RowIndex != 2 {
		t.Errorf("row indexes = %d, %d", got[0].RowIndex, got[1].RowIndex)
	}
	if got[0].Record.StoreURL != rows[0].Normalized.StoreURL {
		t.Errorf("record url = %q", got[0].Record.StoreURL)
	}
}

func TestAtomicStrategy_Decode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "valid",
			raw: `{"results": [{"row_index": 1, "store_id": "s-1", "action": "update", "matched_by": "owner_phone", "error": null,
				"warnings": [{"field": "owner_email", "message": "owner_email also matches store s-2; ignored"}]}],
				"inserted": 0, "updated": 1, "skipped": 0, "errors": []}`,
		},
		{
			name:    "missing counts",
			raw:     `{"results": []}`,
			wantErr: true,
		},
		{
			name:    "unknown action",
			raw:     `{"results": [{"row_index": 1, "store_id": "s-1", "action": "upsert", "matched_by": null, "error": null}], "inserted": 0, "updated": 0, "skipped": 0, "errors": []}`,
			wantErr: true,
		},
		{
			name:    "zero row index",
			raw:     `{"results": [{"row_index": 0, "store_id": null, "action": "error", "matched_by": null, "error": "x"}], "inserted": 0, "updated": 0, "skipped": 0, "errors": []}`,
			wantErr: true,
		},
	}

	s := mustAtomic(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.decode([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", resp)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if len(resp.Results) != 1 || resp.Results[0].MatchedBy != core.MatchPhone {
				t.Errorf("results = %+v", resp.Results)
			}
			if len(resp.Results[0].Warnings) != 1 {
				t.Errorf("warnings = %+v", resp.Results[0].Warnings)
			}
		})
	}
}

func TestAtomicStrategy_IgnoresCancellation(t *testing.T) {
	var sawCancelled bool
	s := mustAtomic(t, func(ctx context.Context, jobID string, payload []byte, actor string) ([]byte, error) {
		sawCancelled = ctx.Err() != nil
		return []byte(`{"results": [], "inserted": 0, "updated": 0, "skipped": 0, "errors": []}`), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Apply(ctx, Batch{JobID: "j", Rows: []core.ImportRow{validRow(1, core.StoreRecord{StoreURL: "a.example.com"})}}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if sawCancelled {
		t.Error("procedure call received a cancelled context")
	}
}

func TestAtomicStrategy_CallError(t *testing.T) {
	cause := errors.New("connection reset")
	s := mustAtomic(t, func(ctx context.Context, jobID string, payload []byte, actor string) ([]byte, error) {
		return nil, cause
	})

	_, err := s.Apply(context.Background(), Batch{JobID: "j"})
	var procErr *core.CommitProcedureError
	if !errors.As(err, &procErr) {
		t.Fatalf("error = %v, want *CommitProcedureError", err)
	}
	if !errors.Is(err, cause) {
		t.Error("procedure error does not wrap the cause")
	}
	if s.Name() != core.StrategyAtomic {
		t.Errorf("Name = %q", s.Name())
	}
}

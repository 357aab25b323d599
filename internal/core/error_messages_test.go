package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "nil error returns empty", err: nil, wantCode: ""},
		{name: "empty file", err: NewSourceError(EmptyOrInvalidFile, "no rows", nil), wantCode: "SRC001"},
		{name: "invalid url", err: NewSourceError(InvalidSourceURL, "", nil), wantCode: "SRC002"},
		{name: "not shared", err: NewSourceError(NotPubliclyShared, "403", nil), wantCode: "SRC003"},
		{name: "not found", err: NewSourceError(SourceNotFound, "", nil), wantCode: "SRC004"},
		{name: "requires auth", err: NewSourceError(RequiresAuthentication, "", nil), wantCode: "SRC005"},
		{name: "wrapped source error", err: fmt.Errorf("ingest: %w", NewSourceError(FileTooLarge, "", nil)), wantCode: "SRC008"},
		{name: "job not found", err: fmt.Errorf("get job: %w", ErrJobNotFound), wantCode: "COM001"},
		{name: "already finalized", err: ErrJobAlreadyFinalized, wantCode: "COM002"},
		{name: "failed state", err: ErrJobInFailedState, wantCode: "COM003"},
		{name: "no eligible rows", err: ErrNoEligibleRows, wantCode: "COM004"},
		{name: "procedure failure", err: &CommitProcedureError{Detail: "boom"}, wantCode: "COM005"},
		{name: "busy", err: ErrTooManyCommits, wantCode: "UPL002"},
		{name: "cancelled", err: context.Canceled, wantCode: "UPL004"},
		{name: "duplicate key pattern", err: errors.New("ERROR: duplicate key value violates unique constraint"), wantCode: "DB001"},
		{name: "case insensitive pattern", err: errors.New("DEADLOCK detected"), wantCode: "DB007"},
		{name: "unknown error returns default", err: errors.New("some random internal error"), wantCode: "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.err != nil && got.Message == "" {
				t.Error("MapError() returned empty message")
			}
		})
	}
}

func TestMapError_ProcedureBeatsWrappedCause(t *testing.T) {
	err := &CommitProcedureError{Detail: "tx aborted", Cause: errors.New("duplicate key")}
	if got := MapError(err).Code; got != "COM005" {
		t.Errorf("MapError() code = %q, want COM005", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"too large", NewSourceError(FileTooLarge, "", nil), http.StatusRequestEntityTooLarge},
		{"unsupported", NewSourceError(UnsupportedFormat, "", nil), http.StatusUnsupportedMediaType},
		{"unreachable", NewSourceError(SourceUnreachable, "", nil), http.StatusBadGateway},
		{"auth", NewSourceError(RequiresAuthentication, "", nil), http.StatusUnprocessableEntity},
		{"not found", ErrJobNotFound, http.StatusNotFound},
		{"finalized", fmt.Errorf("commit: %w", ErrJobAlreadyFinalized), http.StatusConflict},
		{"no rows", ErrNoEligibleRows, http.StatusUnprocessableEntity},
		{"busy", ErrTooManyCommits, http.StatusServiceUnavailable},
		{"procedure", &CommitProcedureError{Detail: "x"}, http.StatusInternalServerError},
		{"unknown", errors.New("x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("nil should not be user facing")
	}
	if IsUserFacing(errors.New("opaque")) {
		t.Error("opaque error should not be user facing")
	}
	if !IsUserFacing(NewSourceError(SourceNotFound, "", nil)) {
		t.Error("source error should be user facing")
	}
}

func TestSourceError_Is(t *testing.T) {
	err := fmt.Errorf("fetch: %w", NewSourceError(RequiresAuthentication, "text/html", nil))

	if !errors.Is(err, &SourceError{Kind: RequiresAuthentication}) {
		t.Error("errors.Is should match on kind")
	}
	if errors.Is(err, &SourceError{Kind: SourceNotFound}) {
		t.Error("errors.Is should not match a different kind")
	}

	kind, ok := SourceErrorKindOf(err)
	if !ok || kind != RequiresAuthentication {
		t.Errorf("SourceErrorKindOf() = %q, %v", kind, ok)
	}
}

func TestSourceError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := NewSourceError(SourceUnreachable, "fetch", cause)
	if !errors.Is(err, cause) {
		t.Error("SourceError should unwrap to its cause")
	}
	if err.Error() != "SourceUnreachable: fetch" {
		t.Errorf("Error() = %q", err.Error())
	}
}

package ingest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/storeimport/internal/core"
)

const testDocID = "1AbCdEfGhIjKlMnOpQrStUvWxYz0123456789"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sheetServer(t *testing.T, handler http.HandlerFunc) *SheetFetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewSheetFetcher(srv.URL, 2*time.Second, 1024, testLogger())
}

func shareLink(gid string) string {
	link := "https://docs.google.com/spreadsheets/d/" + testDocID + "/edit"
	if gid != "" {
		link += "#gid=" + gid
	}
	return link
}

func TestParseSheetURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantID  string
		wantGid string
		wantErr bool
	}{
		{name: "edit link", url: shareLink(""), wantID: testDocID},
		{name: "fragment gid", url: shareLink("42"), wantID: testDocID, wantGid: "42"},
		{name: "query gid", url: "https://docs.google.com/spreadsheets/d/" + testDocID + "/export?format=csv&gid=7", wantID: testDocID, wantGid: "7"},
		{name: "user scoped", url: "https://docs.google.com/spreadsheets/u/0/d/" + testDocID + "/edit", wantID: testDocID},
		{name: "no id", url: "https://docs.google.com/document/d/abc/edit", wantErr: true},
		{name: "not a url", url: "shop list", wantErr: true},
		{name: "ftp scheme", url: "ftp://docs.google.com/spreadsheets/d/" + testDocID, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, gid, err := ParseSheetURL(tt.url)
			if tt.wantErr {
				kind, ok := core.SourceErrorKindOf(err)
				require.True(t, ok, "expected SourceError, got %v", err)
				assert.Equal(t, core.InvalidSourceURL, kind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantGid, gid)
		})
	}
}

func TestSheetFetcher_Success(t *testing.T) {
	var gotPath, gotQuery string
	f := sheetServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = io.WriteString(w, "store_url,store_name\nshop.example,Shop\n")
	})

	res, err := f.Fetch(context.Background(), shareLink("9"))
	require.NoError(t, err)

	assert.Equal(t, "/spreadsheets/d/"+testDocID+"/export", gotPath)
	assert.Equal(t, "format=csv&gid=9", gotQuery)
	assert.Equal(t, core.SourceRemoteSheet, res.Meta.Kind)
	assert.Equal(t, shareLink("9"), res.Meta.URL)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Shop", res.Rows[0]["store_name"])
}

func TestSheetFetcher_Classification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		want        core.SourceErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, "text/plain", "", core.NotPubliclyShared},
		{"forbidden", http.StatusForbidden, "text/plain", "", core.NotPubliclyShared},
		{"not found", http.StatusNotFound, "text/plain", "", core.SourceNotFound},
		{"server error", http.StatusBadGateway, "text/plain", "", core.SourceUnreachable},
		{"html login page", http.StatusOK, "text/html; charset=utf-8", "<html><body>Sign in</body></html>", core.RequiresAuthentication},
		{"empty body", http.StatusOK, "text/csv", "  \n", core.EmptyOrInvalidFile},
		{"too large", http.StatusOK, "text/csv", "a\n" + strings.Repeat("x", 2048), core.FileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := sheetServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := f.Fetch(context.Background(), shareLink(""))
			kind, ok := core.SourceErrorKindOf(err)
			require.True(t, ok, "expected SourceError, got %v", err)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestSheetFetcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	f := NewSheetFetcher(srv.URL, 50*time.Millisecond, 1024, testLogger())

	_, err := f.Fetch(context.Background(), shareLink(""))
	kind, ok := core.SourceErrorKindOf(err)
	require.True(t, ok, "expected SourceError, got %v", err)
	assert.Equal(t, core.SourceUnreachable, kind)
}

func TestSheetFetcher_InvalidURLMakesNoRequest(t *testing.T) {
	called := false
	f := sheetServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := f.Fetch(context.Background(), "https://example.com/not-a-sheet")
	require.Error(t, err)
	assert.False(t, called)
}

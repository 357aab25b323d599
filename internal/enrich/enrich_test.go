package enrich

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/storeimport/internal/core"
	"github.com/JonMunkholm/storeimport/internal/validate"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		want    string
		wantErr error
	}{
		{
			name: "site name wins",
			page: `<html><head><title>Home | Shop</title><meta property="og:title" content="Welcome"><meta property="og:site_name" content="  Shop  Co "></head></html>`,
			want: "Shop Co",
		},
		{
			name: "og title before title",
			page: `<html><head><title>Home</title><meta property="og:title" content="Shop - Best deals"></head></html>`,
			want: "Shop",
		},
		{
			name: "title fallback",
			page: `<html><head><title>
				Shop | Home
			</title></head><body></body></html>`,
			want: "Shop",
		},
		{
			name: "meta name attribute",
			page: `<html><head><meta name="og:site_name" content="Shop"></head></html>`,
			want: "Shop",
		},
		{
			name:    "nothing usable",
			page:    `<html><head></head><body><h1>Shop</h1></body></html>`,
			wantErr: ErrNoDisplayName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DisplayName(strings.NewReader(tt.page), "text/html; charset=utf-8", DefaultMaxBytes)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDisplayName_Windows1256(t *testing.T) {
	// <title>متجر</title> in Windows-1256.
	page := "<html><head><title>\xe3\xca\xcc\xd1</title></head></html>"

	got, err := DisplayName(strings.NewReader(page), "text/html; charset=windows-1256", DefaultMaxBytes)
	require.NoError(t, err)
	assert.Equal(t, "متجر", got)
}

func TestFetcher_FetchDisplayName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/shop":
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, `<html><head><meta property="og:site_name" content="Shop"></head></html>`)
		case "/slow":
			time.Sleep(200 * time.Millisecond)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(50*time.Millisecond, 0, true)

	name, err := f.FetchDisplayName(context.Background(), srv.URL+"/shop")
	require.NoError(t, err)
	assert.Equal(t, "Shop", name)

	_, err = f.FetchDisplayName(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)

	_, err = f.FetchDisplayName(context.Background(), srv.URL+"/slow")
	assert.Error(t, err, "bounded timeout")
}

func TestFetcher_RefusesPrivateAddresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<title>internal</title>")
	}))
	defer srv.Close()

	_, err := NewFetcher(time.Second, 0, false).FetchDisplayName(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrPrivateAddress)
}

// stubFetcher returns canned names keyed by URL.
type stubFetcher struct {
	mu    sync.Mutex
	names map[string]string
	calls []string
}

func (s *stubFetcher) FetchDisplayName(_ context.Context, url string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, url)
	s.mu.Unlock()
	if name, ok := s.names[url]; ok {
		return name, nil
	}
	return "", errors.New("connection refused")
}

func TestEnricher_Enrich(t *testing.T) {
	v := validate.NewValidator()
	jc := validate.NewJobContext("job", []string{"url", "name"})
	outcomes := []validate.Outcome{
		v.Validate(core.RawRow{"url": "shop.example", "name": ""}, jc),
		v.Validate(core.RawRow{"url": "named.example", "name": "Named"}, jc),
		v.Validate(core.RawRow{"url": "down.example", "name": ""}, jc),
		v.Validate(core.RawRow{"url": "", "name": ""}, jc),
	}
	downBefore := outcomes[2]

	stub := &stubFetcher{names: map[string]string{"https://shop.example": "Shop"}}
	report := NewEnricher(stub, 2, testLogger()).Enrich(context.Background(), outcomes)

	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Enriched)
	assert.Equal(t, 1, report.Failed)
	assert.ElementsMatch(t, []string{"https://shop.example", "https://down.example"}, stub.calls)

	assert.Equal(t, "Shop", outcomes[0].Normalized.StoreName)
	assert.Equal(t, "Named", outcomes[1].Normalized.StoreName)
	assert.Equal(t, downBefore, outcomes[2], "failed lookups leave the row untouched")

	found := false
	for _, fix := range outcomes[0].Autofixes {
		if fix.Action == validate.FixEnriched && fix.NewValue == "Shop" {
			found = true
		}
	}
	assert.True(t, found, "enrichment is recorded as an autofix")
}

func TestEnricher_NothingToDo(t *testing.T) {
	report := NewEnricher(&stubFetcher{}, 0, nil).Enrich(context.Background(), nil)
	assert.Equal(t, Report{Outcomes: []Outcome{}}, report)
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "Shop", cleanName("Shop | Home"))
	assert.Equal(t, "Shop", cleanName("  Shop  "))
	assert.Equal(t, "A-B Store", cleanName("A-B Store"))
	assert.Equal(t, "Shop", cleanName("Shop – الرئيسية"))
}

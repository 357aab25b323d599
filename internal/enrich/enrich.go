// Package enrich fills empty store names from the store's public page.
//
// Enrichment is best effort. A failed lookup is logged and reported in the
// returned [Report]; it never changes a row's verdict and never fails the
// import. Callers may discard the report.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/storeimport/internal/core"
	"github.com/JonMunkholm/storeimport/internal/validate"
)

const (
	DefaultTimeout     = 5 * time.Second
	DefaultMaxBytes    = 512 * 1024
	DefaultConcurrency = 4
	userAgent          = "storeimport-enrich/1.0"
)

var (
	// ErrNoDisplayName means the page had no usable name.
	ErrNoDisplayName = errors.New("page has no display name")

	// ErrPrivateAddress means the store URL resolved to a non-public address.
	ErrPrivateAddress = errors.New("store url resolves to a private address")
)

// NameFetcher looks up the display name behind a store URL.
type NameFetcher interface {
	FetchDisplayName(ctx context.Context, storeURL string) (string, error)
}

// Fetcher fetches store pages over HTTP.
type Fetcher struct {
	Client   *http.Client
	MaxBytes int64
}

// NewFetcher creates a fetcher with a bounded timeout. Unless allowPrivate
// is set, connections to loopback, private and link-local addresses are
// refused at dial time.
func NewFetcher(timeout time.Duration, maxBytes int64, allowPrivate bool) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	dialer := &net.Dialer{Timeout: timeout}
	if !allowPrivate {
		dialer.Control = refusePrivate
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext

	return &Fetcher{
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
		MaxBytes: maxBytes,
	}
}

// FetchDisplayName returns og:site_name, og:title or <title>, in that order.
func (f *Fetcher) FetchDisplayName(ctx context.Context, storeURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, storeURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch page: %s", resp.Status)
	}

	name, err := DisplayName(resp.Body, resp.Header.Get("Content-Type"), f.MaxBytes)
	if err != nil {
		return "", err
	}
	return name, nil
}

func refusePrivate(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return ErrPrivateAddress
	}
	return nil
}

// Outcome is the result of one lookup.
type Outcome struct {
	RowIndex int
	URL      string
	Name     string
	Err      error
}

// Report summarizes an enrichment pass.
type Report struct {
	Attempted int
	Enriched  int
	Failed    int
	Outcomes  []Outcome
}

// Enricher applies display-name lookups to validated rows.
type Enricher struct {
	fetcher     NameFetcher
	concurrency int
	logger      *slog.Logger
}

// NewEnricher creates an enricher running at most concurrency lookups at once.
func NewEnricher(fetcher NameFetcher, concurrency int, logger *slog.Logger) *Enricher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{fetcher: fetcher, concurrency: concurrency, logger: logger}
}

// Enrich fills store_name for rows that have a store_url and no name.
// Rows are modified in place; outcomes[i] is row_index i+1.
func (e *Enricher) Enrich(ctx context.Context, outcomes []validate.Outcome) Report {
	var targets []int
	for i, o := range outcomes {
		if o.Status != core.RowError && o.Normalized.StoreURL != "" && o.Normalized.StoreName == "" {
			targets = append(targets, i)
		}
	}

	report := Report{Attempted: len(targets), Outcomes: make([]Outcome, len(targets))}
	if len(targets) == 0 {
		return report
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for n, i := range targets {
		n, i := n, i
		g.Go(func() error {
			url := outcomes[i].Normalized.StoreURL
			name, err := e.fetcher.FetchDisplayName(ctx, url)
			report.Outcomes[n] = Outcome{RowIndex: i + 1, URL: url, Name: name, Err: err}
			if err != nil {
				e.logger.Debug("enrichment failed",
					slog.Int("row_index", i+1),
					slog.String("url", url),
					slog.String("error", err.Error()),
				)
				return nil
			}
			outcomes[i].ApplyAutofix(core.ColStoreName, validate.FixEnriched, name)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range report.Outcomes {
		if o.Err != nil {
			report.Failed++
		} else {
			report.Enriched++
		}
	}

	if report.Failed > 0 {
		e.logger.Info("enrichment finished with failures",
			slog.Int("attempted", report.Attempted),
			slog.Int("enriched", report.Enriched),
			slog.Int("failed", report.Failed),
		)
	}
	return report
}

// cleanName collapses whitespace and drops site-name suffixes like
// "Shop | Home".
func cleanName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	for _, sep := range []string{" | ", " - ", " – ", " — "} {
		if i := strings.Index(s, sep); i > 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

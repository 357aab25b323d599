package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/JonMunkholm/storeimport/internal/core"
)

const (
	// DefaultSheetsBaseURL is the host that serves spreadsheet CSV exports.
	DefaultSheetsBaseURL = "https://docs.google.com"

	// DefaultFetchTimeout bounds one export download.
	DefaultFetchTimeout = 15 * time.Second
)

var (
	docIDPattern = regexp.MustCompile(`/spreadsheets/(?:u/[0-9]+/)?d/([a-zA-Z0-9_-]{10,})`)
	gidPattern   = regexp.MustCompile(`[#&?]gid=([0-9]+)`)
)

// SheetFetcher downloads a shared spreadsheet as CSV and parses it.
type SheetFetcher struct {
	BaseURL  string
	Client   *http.Client
	MaxBytes int64
	Logger   *slog.Logger
}

// NewSheetFetcher creates a fetcher with a bounded client timeout.
func NewSheetFetcher(baseURL string, timeout time.Duration, maxBytes int64, logger *slog.Logger) *SheetFetcher {
	if baseURL == "" {
		baseURL = DefaultSheetsBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SheetFetcher{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Client:   &http.Client{Timeout: timeout},
		MaxBytes: maxBytes,
		Logger:   logger,
	}
}

// ParseSheetURL extracts the document id and optional sheet gid from a
// share link.
func ParseSheetURL(raw string) (docID, gid string, err error) {
	raw = strings.TrimSpace(raw)
	u, perr := url.Parse(raw)
	if perr != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", "", core.NewSourceError(core.InvalidSourceURL, "not an http(s) link", perr)
	}

	m := docIDPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return "", "", core.NewSourceError(core.InvalidSourceURL, "no spreadsheet id in link", nil)
	}
	docID = m[1]

	if g := gidPattern.FindStringSubmatch(raw); g != nil {
		gid = g[1]
	}
	return docID, gid, nil
}

// ExportURL builds the CSV export link for a document.
func (f *SheetFetcher) ExportURL(docID, gid string) string {
	u := fmt.Sprintf("%s/spreadsheets/d/%s/export?format=csv", f.BaseURL, url.PathEscape(docID))
	if gid != "" {
		u += "&gid=" + url.QueryEscape(gid)
	}
	return u
}

// Fetch downloads the shared sheet behind rawURL and parses it.
func (f *SheetFetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	docID, gid, err := ParseSheetURL(rawURL)
	if err != nil {
		return nil, err
	}

	data, err := f.download(ctx, f.ExportURL(docID, gid))
	if err != nil {
		f.Logger.Warn("sheet fetch failed",
			slog.String("doc_id", docID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	res, err := ParseDelimited(data)
	if err != nil {
		return nil, err
	}
	res.Meta.Kind = core.SourceRemoteSheet
	res.Meta.URL = rawURL
	res.Meta.Sheet = gid
	return res, nil
}

func (f *SheetFetcher) download(ctx context.Context, exportURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exportURL, nil)
	if err != nil {
		return nil, core.NewSourceError(core.InvalidSourceURL, "cannot build export request", err)
	}
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.1")

	resp, err := f.Client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, core.NewSourceError(core.SourceUnreachable, "export download failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, core.NewSourceError(core.NotPubliclyShared, resp.Status, nil)
	case resp.StatusCode == http.StatusNotFound:
		return nil, core.NewSourceError(core.SourceNotFound, resp.Status, nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, core.NewSourceError(core.SourceUnreachable, resp.Status, nil)
	}

	// Restricted documents answer 200 with a sign-in page.
	if isHTML(resp.Header.Get("Content-Type")) {
		return nil, core.NewSourceError(core.RequiresAuthentication, "export returned an HTML page", nil)
	}

	data, err := ReadLimited(resp.Body, f.MaxBytes)
	if err != nil {
		var se *core.SourceError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, core.NewSourceError(core.SourceUnreachable, "reading export body", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, core.NewSourceError(core.EmptyOrInvalidFile, "export is empty", nil)
	}
	return data, nil
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

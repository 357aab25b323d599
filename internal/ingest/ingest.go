// Package ingest turns uploaded files and shared spreadsheet links into a
// uniform sequence of raw rows.
//
// Every parser returns the same [Result] shape. Parsers never touch job
// state; the only I/O they perform is the remote sheet download in
// [SheetFetcher]. Any failure is a [*core.SourceError] so callers can
// report a specific reason before a job exists.
//
// Row order in [Result.Rows] is the source order with blank rows removed.
// Row N of the result becomes row_index N of the job.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/storeimport/internal/core"
)

// DefaultMaxFileSize is the upload size limit when none is configured (20MB).
const DefaultMaxFileSize int64 = 20 * 1024 * 1024

// Format is a parser family.
type Format string

const (
	FormatDelimited Format = "delimited"
	FormatWorkbook  Format = "workbook"
)

// Source is one input to ingest: either uploaded bytes or a shared link.
type Source struct {
	FileName    string
	ContentType string
	Data        []byte
	URL         string
}

// Result is the uniform output of every parser.
type Result struct {
	Headers   []string
	Rows      []core.RawRow
	TotalRows int
	Meta      core.SourceMeta
}

// Parser dispatches a Source to the matching format parser.
type Parser struct {
	Fetcher     *SheetFetcher
	MaxFileSize int64
}

// NewParser creates a dispatcher. A nil fetcher disables link sources.
func NewParser(fetcher *SheetFetcher, maxFileSize int64) *Parser {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Parser{Fetcher: fetcher, MaxFileSize: maxFileSize}
}

// Parse parses src into raw rows.
func (p *Parser) Parse(ctx context.Context, src Source) (*Result, error) {
	if src.URL != "" {
		if p.Fetcher == nil {
			return nil, core.NewSourceError(core.InvalidSourceURL, "link sources are disabled", nil)
		}
		return p.Fetcher.Fetch(ctx, src.URL)
	}

	if int64(len(src.Data)) > p.MaxFileSize {
		return nil, core.NewSourceError(core.FileTooLarge,
			fmt.Sprintf("%d bytes exceeds %d byte limit", len(src.Data), p.MaxFileSize), nil)
	}
	if len(bytes.TrimSpace(src.Data)) == 0 {
		return nil, core.NewSourceError(core.EmptyOrInvalidFile, "file is empty", nil)
	}

	format, err := DetectFormat(src.FileName, src.ContentType, src.Data)
	if err != nil {
		return nil, err
	}

	var res *Result
	switch format {
	case FormatWorkbook:
		res, err = ParseWorkbook(src.Data)
	default:
		res, err = ParseDelimited(src.Data)
	}
	if err != nil {
		return nil, err
	}
	res.Meta.FileName = src.FileName
	return res, nil
}

var (
	delimitedExts = map[string]bool{".csv": true, ".tsv": true, ".txt": true, ".tab": true}
	workbookExts  = map[string]bool{".xlsx": true, ".xlsm": true, ".xltx": true, ".xltm": true}

	delimitedTypes = map[string]bool{
		"text/csv":                  true,
		"text/tab-separated-values": true,
		"text/plain":                true,
		"application/csv":           true,
	}
	workbookTypes = map[string]bool{
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
		"application/vnd.ms-excel.sheet.macroenabled.12":                    true,
	}

	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}
)

// DetectFormat picks a parser by extension, then MIME type, then magic bytes.
func DetectFormat(fileName, contentType string, data []byte) (Format, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch {
	case workbookExts[ext]:
		return FormatWorkbook, nil
	case delimitedExts[ext]:
		return FormatDelimited, nil
	case ext == ".xls":
		return "", core.NewSourceError(core.UnsupportedFormat, "legacy .xls workbooks are not supported; save as .xlsx", nil)
	}

	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		mt = strings.ToLower(mt)
		switch {
		case workbookTypes[mt]:
			return FormatWorkbook, nil
		case delimitedTypes[mt]:
			return FormatDelimited, nil
		}
	}

	switch {
	case bytes.HasPrefix(data, zipMagic):
		return FormatWorkbook, nil
	case bytes.HasPrefix(data, oleMagic):
		return "", core.NewSourceError(core.UnsupportedFormat, "legacy .xls workbooks are not supported; save as .xlsx", nil)
	case looksLikeText(data):
		return FormatDelimited, nil
	}

	return "", core.NewSourceError(core.UnsupportedFormat, fmt.Sprintf("cannot detect format of %q", fileName), nil)
}

// ReadLimited reads at most maxBytes from r. Larger input fails with
// FileTooLarge.
func ReadLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, core.NewSourceError(core.FileTooLarge, fmt.Sprintf("exceeds %d byte limit", maxBytes), nil)
	}
	return data, nil
}

// looksLikeText reports whether the first KB has no NUL bytes.
func looksLikeText(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.IndexByte(head, 0) < 0
}

// isEmptyRow returns true if all cells in the row are empty or whitespace.
func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// uniqueHeaders cleans header cells, names blank ones column_N and
// suffixes repeats with _2, _3, ...
func uniqueHeaders(row []string) []string {
	headers := make([]string, len(row))
	seen := make(map[string]int, len(row))
	for i, cell := range row {
		h := core.CleanCell(cell)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		key := strings.ToLower(h)
		seen[key]++
		if n := seen[key]; n > 1 {
			h = fmt.Sprintf("%s_%d", h, n)
			seen[strings.ToLower(h)]++
		}
		headers[i] = h
	}
	return headers
}

// blankHeaders reports whether every header cell is empty once cleaned.
func blankHeaders(row []string) bool {
	for _, cell := range row {
		if core.CleanCell(cell) != "" {
			return false
		}
	}
	return true
}

// buildRows zips data rows with headers. Missing cells become "" and cells
// beyond the header width are dropped.
func buildRows(headers []string, records [][]string) []core.RawRow {
	rows := make([]core.RawRow, 0, len(records))
	for _, rec := range records {
		row := make(core.RawRow, len(headers))
		for i, h := range headers {
			if i < len(rec) {
				row[h] = rec[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows
}

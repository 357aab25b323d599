package ingest

// delimited.go parses CSV/TSV style text exports.
//
// Regional spreadsheet exports arrive with:
//   - A UTF-8 BOM (Excel "CSV UTF-8")
//   - Windows-1256 bytes instead of UTF-8 (Arabic Excel "CSV")
//   - Semicolon or tab delimiters depending on locale
//
// The header line decides the delimiter; the first non-blank record is the
// header row and fully blank records are dropped.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/JonMunkholm/storeimport/internal/core"
)

const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1256 = "windows-1256"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// candidateDelimiters in tie-break order.
var candidateDelimiters = []rune{',', '\t', ';', '|'}

// ParseDelimited parses delimited text into raw rows.
func ParseDelimited(data []byte) (*Result, error) {
	text, encoding, err := decodeText(data)
	if err != nil {
		return nil, core.NewSourceError(core.EmptyOrInvalidFile, "cannot decode text", err)
	}

	delim := DetectDelimiter(firstNonEmptyLine(text))

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var header []string
	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, core.NewSourceError(core.EmptyOrInvalidFile, "malformed delimited text", err)
		}
		if isEmptyRow(rec) {
			continue
		}
		if header == nil {
			header = rec
			continue
		}
		records = append(records, rec)
	}

	if header == nil || len(records) == 0 {
		return nil, core.NewSourceError(core.EmptyOrInvalidFile, "need a header row and at least one data row", nil)
	}
	if blankHeaders(header) {
		return nil, core.NewSourceError(core.EmptyOrInvalidFile, "header row is empty", nil)
	}

	headers := uniqueHeaders(header)
	rows := buildRows(headers, records)

	return &Result{
		Headers:   headers,
		Rows:      rows,
		TotalRows: len(rows),
		Meta: core.SourceMeta{
			Kind:      core.SourceCSV,
			Delimiter: string(delim),
			Encoding:  encoding,
			Headers:   headers,
		},
	}, nil
}

// DetectDelimiter picks the candidate that occurs most often in the header
// line. Ties go to the earlier candidate; no candidate at all means comma.
func DetectDelimiter(headerLine string) rune {
	best, bestCount := ',', 0
	for _, d := range candidateDelimiters {
		if n := strings.Count(headerLine, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// decodeText strips a BOM and decodes the bytes as UTF-8, falling back to
// Windows-1256 when they are not valid UTF-8.
func decodeText(data []byte) (string, string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), EncodingUTF8, nil
	}

	decoded, err := charmap.Windows1256.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", err
	}
	return string(decoded), EncodingWindows1256, nil
}

func firstNonEmptyLine(text string) string {
	for len(text) > 0 {
		line := text
		if i := strings.IndexAny(text, "\r\n"); i >= 0 {
			line, text = text[:i], text[i+1:]
		} else {
			text = ""
		}
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

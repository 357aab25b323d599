package core

// convert.go provides conversions for messy spreadsheet data and for the
// nullable PostgreSQL types used by the storage layers.
//
// User-provided sheets carry:
//   - Multiple date formats (US, EU, ISO, textual months)
//   - Excel formula prefixes (="value") and stray quotes
//   - Arabic-Indic digits in phone numbers and dates
//
// The ToPg* helpers return Valid=false for empty input so the database stores NULL.

import (
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would land more than this many years in the future are moved
// to the previous century.
var TwoDigitYearPivot = 20

// DateLayout is the canonical date format stored in normalized rows.
const DateLayout = "2006-01-02"

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02", "2006-1-2", "2006/1/2",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006", "January 2, 2006", "2 January 2006",
		"2006-01-02T15:04:05Z07:00", "2006-01-02 15:04:05",
		"20060102",
	}
)

// ParseDate parses a date in any supported layout.
// Returns false if the value is empty or not a recognizable date.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(ASCIIDigits(s))
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// ASCIIDigits replaces Arabic-Indic and Extended Arabic-Indic digits with
// their ASCII equivalents.
func ASCIIDigits(s string) string {
	if !strings.ContainsFunc(s, isArabicDigit) {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '٠' && r <= '٩':
			return '0' + (r - '٠')
		case r >= '۰' && r <= '۹':
			return '0' + (r - '۰')
		}
		return r
	}, s)
}

func isArabicDigit(r rune) bool {
	return (r >= '٠' && r <= '٩') || (r >= '۰' && r <= '۹')
}

// CleanCell removes common spreadsheet artifacts from a cell value:
//   - Trims whitespace, including non-breaking spaces
//   - Removes Excel formula prefix (="...")
//   - Removes surrounding quotes
//   - Collapses internal runs of whitespace
func CleanCell(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") && !strings.ContainsAny(s[1:], "()") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)

	return strings.Join(strings.Fields(s), " ")
}

// ToPgText converts a string to pgtype.Text.
// Returns invalid if the string is empty or only whitespace.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgTextPtr converts an optional string to pgtype.Text.
func ToPgTextPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return ToPgText(*s)
}

// ToPgTimestamptz converts an optional time to pgtype.Timestamptz.
func ToPgTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil || t.IsZero() {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

// PgTextPtr converts pgtype.Text to an optional string.
func PgTextPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}

// PgTimePtr converts pgtype.Timestamptz to an optional time.
func PgTimePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

package validate

// normalize.go holds the per-field cleansing rules.
//
// Each rule returns the normalized value plus any autofixes and issues it
// produced. A rule never drops a value silently: every change is an Autofix
// and every value it cannot use is an Issue.

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"

	"github.com/JonMunkholm/storeimport/internal/core"
	"github.com/JonMunkholm/storeimport/internal/schema"
)

// Autofix actions.
const (
	FixTrimmed       = "trimmed"
	FixAddedScheme   = "added_scheme"
	FixNormalizedURL = "normalized_url"
	FixPhone         = "canonicalized_phone"
	FixLowercased    = "lowercased"
	FixEnum          = "normalized_enum"
	FixDefaulted     = "defaulted"
	FixDate          = "normalized_date"
	FixEnriched      = "enriched_from_page"
)

// fieldResult is the outcome of normalizing one cell.
type fieldResult struct {
	value    string
	fixes    []core.Autofix
	errors   []core.Issue
	warnings []core.Issue
}

func (r *fieldResult) fix(field, action, old, new string) {
	if old == new {
		return
	}
	r.fixes = append(r.fixes, core.Autofix{Field: field, Action: action, OldValue: old, NewValue: new})
}

func (r *fieldResult) fail(field, value, format string, args ...any) {
	r.errors = append(r.errors, core.Issue{Field: field, Message: fmt.Sprintf(format, args...), Value: value})
}

func (r *fieldResult) warn(field, value, format string, args ...any) {
	r.warnings = append(r.warnings, core.Issue{Field: field, Message: fmt.Sprintf(format, args...), Value: value})
}

// hostPattern accepts dotted hostnames, with an optional port.
var hostPattern = regexp.MustCompile(`^(?:[\p{L}\p{N}](?:[\p{L}\p{N}-]*[\p{L}\p{N}])?\.)+[\p{L}]{2,}(?::[0-9]{1,5})?$`)

func (v *Validator) normalizeField(spec schema.FieldSpec, raw string) fieldResult {
	var res fieldResult
	cleaned := core.CleanCell(raw)
	res.fix(spec.Name, FixTrimmed, raw, cleaned)

	switch spec.Type {
	case schema.FieldURL:
		v.normalizeURL(&res, spec, cleaned)
	case schema.FieldPhone:
		v.normalizePhone(&res, spec, cleaned)
	case schema.FieldEmail:
		normalizeEmail(&res, spec, cleaned)
	case schema.FieldEnum:
		normalizeEnum(&res, spec, cleaned)
	case schema.FieldDate:
		normalizeDate(&res, spec, cleaned)
	default:
		res.value = cleaned
	}
	return res
}

func (v *Validator) normalizeURL(res *fieldResult, spec schema.FieldSpec, s string) {
	if s == "" {
		res.warn(spec.Name, "", "store_url is empty; row will be skipped at commit")
		return
	}

	withScheme := s
	if !strings.Contains(s, "://") {
		withScheme = "https://" + s
		res.fix(spec.Name, FixAddedScheme, s, withScheme)
	}

	u, err := url.Parse(withScheme)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || !hostPattern.MatchString(u.Host) {
		res.value = s
		res.fail(spec.Name, s, "store_url is not a valid web address")
		return
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	normalized := u.String()

	res.fix(spec.Name, FixNormalizedURL, withScheme, normalized)
	res.value = normalized
}

func (v *Validator) normalizePhone(res *fieldResult, spec schema.FieldSpec, s string) {
	if s == "" {
		return
	}

	ascii := core.ASCIIDigits(s)
	digits := core.PhoneKey(ascii)
	prefixed := strings.HasPrefix(strings.TrimSpace(ascii), "+") || strings.HasPrefix(digits, "00")

	canonical, ok := v.canonicalMobile(digits)
	if !ok && prefixed && len(strings.TrimPrefix(digits, "00")) >= 7 && len(strings.TrimPrefix(digits, "00")) <= 15 {
		canonical, ok = "+"+strings.TrimPrefix(digits, "00"), true
	}
	if !ok {
		res.value = s
		res.warn(spec.Name, s, "unrecognized phone format")
		return
	}

	res.fix(spec.Name, FixPhone, s, canonical)
	res.value = canonical
}

// canonicalMobile maps the local mobile spellings of the configured
// country to +<code><number>.
func (v *Validator) canonicalMobile(digits string) (string, bool) {
	cc, prefix, n := v.CountryCode, v.MobilePrefix, v.MobileDigits
	var local string
	switch {
	case strings.HasPrefix(digits, "00"+cc):
		local = digits[len(cc)+2:]
	case strings.HasPrefix(digits, cc) && len(digits) == len(cc)+n:
		local = digits[len(cc):]
	case strings.HasPrefix(digits, "0"+prefix) && len(digits) == n+1:
		local = digits[1:]
	case strings.HasPrefix(digits, prefix) && len(digits) == n:
		local = digits
	default:
		return "", false
	}
	if len(local) != n || !strings.HasPrefix(local, prefix) {
		return "", false
	}
	return "+" + cc + local, true
}

func normalizeEmail(res *fieldResult, spec schema.FieldSpec, s string) {
	if s == "" {
		return
	}

	lower := strings.ToLower(s)
	res.fix(spec.Name, FixLowercased, s, lower)
	res.value = lower

	addr, err := mail.ParseAddress(lower)
	if err != nil || addr.Address != lower || !strings.Contains(lower[strings.LastIndex(lower, "@"):], ".") {
		res.fail(spec.Name, s, "owner_email is not a valid email address")
	}
}

func normalizeEnum(res *fieldResult, spec schema.FieldSpec, s string) {
	if s == "" {
		res.value = spec.Default
		res.fix(spec.Name, FixDefaulted, "", spec.Default)
		return
	}

	if v, ok := spec.MatchEnum(s); ok {
		res.fix(spec.Name, FixEnum, s, v)
		res.value = v
		return
	}

	res.warn(spec.Name, s, "unknown %s %q; using %q", spec.Name, s, spec.Default)
	res.fix(spec.Name, FixDefaulted, s, spec.Default)
	res.value = spec.Default
}

func normalizeDate(res *fieldResult, spec schema.FieldSpec, s string) {
	if s == "" {
		return
	}

	t, ok := core.ParseDate(s)
	if !ok {
		res.warn(spec.Name, s, "unrecognized date; value cleared")
		return
	}

	formatted := t.Format(core.DateLayout)
	res.fix(spec.Name, FixDate, s, formatted)
	res.value = formatted
}

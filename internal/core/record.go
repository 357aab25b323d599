package core

import (
	"net/url"
	"strings"
)

// Template column names. The order of Columns is the template order used
// when re-serializing rows for export.
const (
	ColStoreURL    = "store_url"
	ColStoreName   = "store_name"
	ColOwnerName   = "owner_name"
	ColOwnerPhone  = "owner_phone"
	ColOwnerEmail  = "owner_email"
	ColCategory    = "category"
	ColCity        = "city"
	ColPlatform    = "platform"
	ColPriority    = "priority"
	ColStatus      = "status"
	ColNotes       = "notes"
	ColContactDate = "contact_date"
)

// Columns lists the template columns in export order.
var Columns = []string{
	ColStoreURL,
	ColStoreName,
	ColOwnerName,
	ColOwnerPhone,
	ColOwnerEmail,
	ColCategory,
	ColCity,
	ColPlatform,
	ColPriority,
	ColStatus,
	ColNotes,
	ColContactDate,
}

// StoreRecord is a normalized row in the fixed store template.
// Fields outside the template are never carried; see SourceMeta.IgnoredColumns.
type StoreRecord struct {
	StoreURL    string `json:"store_url"`
	StoreName   string `json:"store_name"`
	OwnerName   string `json:"owner_name"`
	OwnerPhone  string `json:"owner_phone"`
	OwnerEmail  string `json:"owner_email"`
	Category    string `json:"category"`
	City        string `json:"city"`
	Platform    string `json:"platform"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	Notes       string `json:"notes"`
	ContactDate string `json:"contact_date"`
}

// Get returns the value of a template column.
func (r *StoreRecord) Get(col string) string {
	if p := r.field(col); p != nil {
		return *p
	}
	return ""
}

// Set assigns a template column. Unknown columns are ignored.
func (r *StoreRecord) Set(col, value string) {
	if p := r.field(col); p != nil {
		*p = value
	}
}

// Values returns the record in template column order.
func (r *StoreRecord) Values() []string {
	out := make([]string, len(Columns))
	for i, col := range Columns {
		out[i] = r.Get(col)
	}
	return out
}

// IsEmpty reports whether every template column is blank.
func (r *StoreRecord) IsEmpty() bool {
	for _, col := range Columns {
		if r.Get(col) != "" {
			return false
		}
	}
	return true
}

func (r *StoreRecord) field(col string) *string {
	switch col {
	case ColStoreURL:
		return &r.StoreURL
	case ColStoreName:
		return &r.StoreName
	case ColOwnerName:
		return &r.OwnerName
	case ColOwnerPhone:
		return &r.OwnerPhone
	case ColOwnerEmail:
		return &r.OwnerEmail
	case ColCategory:
		return &r.Category
	case ColCity:
		return &r.City
	case ColPlatform:
		return &r.Platform
	case ColPriority:
		return &r.Priority
	case ColStatus:
		return &r.Status
	case ColNotes:
		return &r.Notes
	case ColContactDate:
		return &r.ContactDate
	}
	return nil
}

// DedupKeys are the matching keys of a record in priority order.
type DedupKeys struct {
	URL   string `json:"url,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Keys computes the matching keys of a record.
func (r *StoreRecord) Keys() DedupKeys {
	return DedupKeys{
		URL:   URLKey(r.StoreURL),
		Phone: PhoneKey(r.OwnerPhone),
		Email: EmailKey(r.OwnerEmail),
	}
}

// URLKey reduces a store URL to its comparable form: lower-case host and
// path without scheme, "www." prefix, query, fragment or trailing slash.
func URLKey(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimRight(strings.TrimSpace(raw), "/"))
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.TrimRight(u.EscapedPath(), "/")
	return host + strings.ToLower(path)
}

// PhoneKey reduces a phone number to its digits.
func PhoneKey(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// EmailKey lower-cases and trims an email address.
func EmailKey(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

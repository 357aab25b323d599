// Package schema defines the fixed store import template: the columns a
// source may carry, the header spellings accepted for each, and per-field
// validation rules.
package schema

import (
	"strings"

	"github.com/JonMunkholm/storeimport/internal/core"
)

// FieldType represents the expected data type for a template field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldURL
	FieldPhone
	FieldEmail
	FieldEnum
	FieldDate
)

// FieldSpec defines validation rules for a single template column.
type FieldSpec struct {
	Name       string            // Template column name
	Type       FieldType         // Expected data type
	Aliases    []string          // Accepted header spellings besides Name
	EnumValues []string          // Valid values for FieldEnum type
	Synonyms   map[string]string // Extra accepted spellings -> enum value
	Default    string            // Applied when the cell is empty
	Identifier bool              // Used as a matching key
}

// StoreFieldSpecs is the store template in export column order.
var StoreFieldSpecs = []FieldSpec{
	{Name: core.ColStoreURL, Type: FieldURL, Identifier: true,
		Aliases: []string{"url", "link", "store link", "website", "site", "رابط المتجر", "الرابط"}},
	{Name: core.ColStoreName, Type: FieldText,
		Aliases: []string{"name", "store", "shop", "shop name", "اسم المتجر"}},
	{Name: core.ColOwnerName, Type: FieldText,
		Aliases: []string{"owner", "contact", "contact name", "اسم المالك"}},
	{Name: core.ColOwnerPhone, Type: FieldPhone, Identifier: true,
		Aliases: []string{"phone", "mobile", "whatsapp", "phone number", "رقم الجوال", "الجوال"}},
	{Name: core.ColOwnerEmail, Type: FieldEmail, Identifier: true,
		Aliases: []string{"email", "e-mail", "mail", "البريد الإلكتروني"}},
	{Name: core.ColCategory, Type: FieldText,
		Aliases: []string{"type", "niche", "التصنيف"}},
	{Name: core.ColCity, Type: FieldText,
		Aliases: []string{"location", "region", "المدينة"}},
	{Name: core.ColPlatform, Type: FieldText,
		Aliases: []string{"store platform", "المنصة"}},
	{Name: core.ColPriority, Type: FieldEnum, Default: "medium",
		EnumValues: []string{"low", "medium", "high"},
		Synonyms:   map[string]string{"normal": "medium", "urgent": "high", "منخفض": "low", "متوسط": "medium", "عالي": "high"},
		Aliases:    []string{"importance", "الأولوية"}},
	{Name: core.ColStatus, Type: FieldEnum, Default: "new",
		EnumValues: []string{"new", "contacted", "interested", "not_interested", "converted"},
		Synonyms: map[string]string{
			"not interested": "not_interested",
			"not-interested": "not_interested",
			"won":            "converted",
			"جديد":           "new",
			"تم التواصل":     "contacted",
			"مهتم":           "interested",
			"غير مهتم":       "not_interested",
		},
		Aliases: []string{"lead status", "stage", "الحالة"}},
	{Name: core.ColNotes, Type: FieldText,
		Aliases: []string{"note", "comments", "ملاحظات"}},
	{Name: core.ColContactDate, Type: FieldDate,
		Aliases: []string{"date", "contacted at", "last contact", "تاريخ التواصل"}},
}

var headerIndex = make(map[string]string)

func init() {
	for i := range StoreFieldSpecs {
		spec := &StoreFieldSpecs[i]
		headerIndex[headerKey(spec.Name)] = spec.Name
		for _, alias := range spec.Aliases {
			headerIndex[headerKey(alias)] = spec.Name
		}
	}
}

// ResolveHeader maps a source header to its template column.
// Matching ignores case, surrounding whitespace, and the separators
// space, '_' and '-'.
func ResolveHeader(header string) (string, bool) {
	col, ok := headerIndex[headerKey(header)]
	return col, ok
}

// HeaderMap resolves every source header. The first header resolving to a
// column wins; headers that resolve to nothing or to an already-claimed
// column are returned as ignored, in source order.
func HeaderMap(headers []string) (mapping map[string]string, ignored []string) {
	mapping = make(map[string]string, len(headers))
	claimed := make(map[string]bool, len(headers))
	for _, h := range headers {
		col, ok := ResolveHeader(h)
		if !ok || claimed[col] {
			ignored = append(ignored, h)
			continue
		}
		claimed[col] = true
		mapping[h] = col
	}
	return mapping, ignored
}

// HasTemplateColumn reports whether any header resolves to a template column.
func HasTemplateColumn(headers []string) bool {
	for _, h := range headers {
		if _, ok := ResolveHeader(h); ok {
			return true
		}
	}
	return false
}

// MatchEnum resolves a value against the spec's enum values and synonyms.
func (s FieldSpec) MatchEnum(value string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, ev := range s.EnumValues {
		if v == ev {
			return ev, true
		}
	}
	if mapped, ok := s.Synonyms[v]; ok {
		return mapped, true
	}
	// "Not Interested" and "not-interested" both reach not_interested.
	v = strings.NewReplacer(" ", "_", "-", "_").Replace(v)
	for _, ev := range s.EnumValues {
		if v == ev {
			return ev, true
		}
	}
	return "", false
}

func headerKey(h string) string {
	h = strings.ToLower(core.CleanCell(h))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(h)
}

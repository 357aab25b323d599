// Package catalog reads and writes the store catalog that import rows are
// matched against.
package catalog

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/storeimport/internal/core"
)

// Catalog is the store-side contract used by the sequential commit path.
type Catalog interface {
	// Lookup loads every store matching any of the given keys.
	Lookup(ctx context.Context, keys []core.DedupKeys) (*Index, error)
	// Insert creates a store and returns its id.
	Insert(ctx context.Context, rec core.StoreRecord, actor string) (string, error)
	// Update overwrites the non-empty fields of rec on an existing store.
	// The store's url is kept.
	Update(ctx context.Context, id string, rec core.StoreRecord, actor string) error
}

// Contact is a person linked to a store.
type Contact struct {
	Name  string
	Phone string
	Email string
}

// ContactLinker attaches contacts to stores. Implementations upsert by
// store and phone.
type ContactLinker interface {
	UpsertContact(ctx context.Context, c Contact, storeID string) error
}

// Index maps dedup keys to store ids. When several stores share a phone or
// email, the first one added wins.
type Index struct {
	byURL   map[string]string
	byPhone map[string]string
	byEmail map[string]string
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		byURL:   make(map[string]string),
		byPhone: make(map[string]string),
		byEmail: make(map[string]string),
	}
}

// Len returns the number of distinct urls indexed.
func (ix *Index) Len() int {
	return len(ix.byURL)
}

// Add indexes a store under its keys.
func (ix *Index) Add(id string, keys core.DedupKeys) {
	addFirst(ix.byURL, keys.URL, id)
	addFirst(ix.byPhone, keys.Phone, id)
	addFirst(ix.byEmail, keys.Email, id)
}

// AddSecondary indexes only the phone and email of a store, for updates
// that keep the store's url.
func (ix *Index) AddSecondary(id string, keys core.DedupKeys) {
	addFirst(ix.byPhone, keys.Phone, id)
	addFirst(ix.byEmail, keys.Email, id)
}

// Match resolves keys in priority order url, phone, email and returns the
// first hit. Secondary keys that point at a different store are returned
// as warnings and otherwise ignored.
func (ix *Index) Match(keys core.DedupKeys, rec core.StoreRecord) (string, core.MatchKey, []core.Issue) {
	byURL := lookup(ix.byURL, keys.URL)
	byPhone := lookup(ix.byPhone, keys.Phone)
	byEmail := lookup(ix.byEmail, keys.Email)

	var (
		id string
		by core.MatchKey
	)
	switch {
	case byURL != "":
		id, by = byURL, core.MatchURL
	case byPhone != "":
		id, by = byPhone, core.MatchPhone
	case byEmail != "":
		id, by = byEmail, core.MatchEmail
	default:
		return "", core.MatchNone, nil
	}

	var warnings []core.Issue
	if byPhone != "" && byPhone != id {
		warnings = append(warnings, ConflictWarning(core.ColOwnerPhone, byPhone, rec.OwnerPhone))
	}
	if byEmail != "" && byEmail != id {
		warnings = append(warnings, ConflictWarning(core.ColOwnerEmail, byEmail, rec.OwnerEmail))
	}
	return id, by, warnings
}

// ConflictWarning is the issue recorded when a secondary key matches a
// store other than the one chosen.
func ConflictWarning(field, otherID, value string) core.Issue {
	return core.Issue{
		Field:   field,
		Message: fmt.Sprintf("%s also matches store %s; ignored", field, otherID),
		Value:   value,
	}
}

func addFirst(m map[string]string, key, id string) {
	if key == "" {
		return
	}
	if _, ok := m[key]; !ok {
		m[key] = id
	}
}

func lookup(m map[string]string, key string) string {
	if key == "" {
		return ""
	}
	return m[key]
}

package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/JonMunkholm/storeimport/internal/core"
)

// Record is a catalog store as held by Memory.
type Record struct {
	ID        string
	Store     core.StoreRecord
	Keys      core.DedupKeys
	UpdatedBy string
}

// Memory is an in-process catalog for tests and local runs.
type Memory struct {
	// Fail, if set, is consulted before every write. A non-nil error
	// aborts that write.
	Fail func(op string, rec core.StoreRecord) error

	mu       sync.RWMutex
	stores   []Record // creation order
	byID     map[string]int
	contacts map[string][]Contact // by store id
}

// NewMemory creates an empty catalog.
func NewMemory() *Memory {
	return &Memory{
		byID:     make(map[string]int),
		contacts: make(map[string][]Contact),
	}
}

var (
	_ Catalog       = (*Memory)(nil)
	_ ContactLinker = (*Memory)(nil)
)

func (m *Memory) Lookup(ctx context.Context, keys []core.DedupKeys) (*Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wantURL := make(map[string]bool)
	wantPhone := make(map[string]bool)
	wantEmail := make(map[string]bool)
	for _, k := range keys {
		wantURL[k.URL] = k.URL != ""
		wantPhone[k.Phone] = k.Phone != ""
		wantEmail[k.Email] = k.Email != ""
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ix := NewIndex()
	for _, s := range m.stores {
		if wantURL[s.Keys.URL] || wantPhone[s.Keys.Phone] || wantEmail[s.Keys.Email] {
			ix.Add(s.ID, s.Keys)
		}
	}
	return ix, nil
}

func (m *Memory) Insert(ctx context.Context, rec core.StoreRecord, actor string) (string, error) {
	if m.Fail != nil {
		if err := m.Fail("insert", rec); err != nil {
			return "", err
		}
	}

	keys := rec.Keys()
	if keys.URL == "" {
		return "", fmt.Errorf("insert store: store_url is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.stores {
		if s.Keys.URL == keys.URL {
			return "", fmt.Errorf("insert store: duplicate url %s", keys.URL)
		}
	}

	id := uuid.NewString()
	applyDefaults(&rec)
	m.byID[id] = len(m.stores)
	m.stores = append(m.stores, Record{ID: id, Store: rec, Keys: keys, UpdatedBy: actor})
	return id, nil
}

func (m *Memory) Update(ctx context.Context, id string, rec core.StoreRecord, actor string) error {
	if m.Fail != nil {
		if err := m.Fail("update", rec); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("update store %s: not found", id)
	}

	s := m.stores[i]
	for _, col := range core.Columns {
		if col == core.ColStoreURL {
			continue
		}
		if v := rec.Get(col); v != "" {
			s.Store.Set(col, v)
		}
	}
	keys := s.Store.Keys()
	s.Keys.Phone = keys.Phone
	s.Keys.Email = keys.Email
	s.UpdatedBy = actor
	m.stores[i] = s
	return nil
}

// UpsertContact adds a contact or refreshes the one with the same phone.
func (m *Memory) UpsertContact(ctx context.Context, c Contact, storeID string) error {
	if m.Fail != nil {
		if err := m.Fail("contact", core.StoreRecord{OwnerName: c.Name, OwnerPhone: c.Phone, OwnerEmail: c.Email}); err != nil {
			return err
		}
	}

	key := core.PhoneKey(c.Phone)
	if key == "" {
		return fmt.Errorf("upsert contact: phone is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[storeID]; !ok {
		return fmt.Errorf("upsert contact: store %s not found", storeID)
	}

	list := m.contacts[storeID]
	for i, existing := range list {
		if core.PhoneKey(existing.Phone) == key {
			if c.Name != "" {
				list[i].Name = c.Name
			}
			if c.Email != "" {
				list[i].Email = c.Email
			}
			return nil
		}
	}
	m.contacts[storeID] = append(list, c)
	return nil
}

// Get returns a store by id.
func (m *Memory) Get(id string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.byID[id]
	if !ok {
		return Record{}, false
	}
	return m.stores[i], true
}

// Len returns the number of stores.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stores)
}

// Contacts returns the contacts linked to a store.
func (m *Memory) Contacts(storeID string) []Contact {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Contact(nil), m.contacts[storeID]...)
}

// Seed inserts stores directly, bypassing Fail, and returns their ids.
func (m *Memory) Seed(recs ...core.StoreRecord) []string {
	fail := m.Fail
	m.Fail = nil
	defer func() { m.Fail = fail }()

	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		id, err := m.Insert(context.Background(), rec, "seed")
		if err != nil {
			panic(err)
		}
		ids = append(ids, id)
	}
	return ids
}

func applyDefaults(rec *core.StoreRecord) {
	if rec.Priority == "" {
		rec.Priority = "medium"
	}
	if rec.Status == "" {
		rec.Status = "new"
	}
}

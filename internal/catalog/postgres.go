package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/storeimport/internal/core"
	"github.com/JonMunkholm/storeimport/internal/database"
)

// Postgres is a catalog backed by the stores and contacts tables.
type Postgres struct {
	db database.DBTX
}

// NewPostgres creates a catalog over a pool or connection.
func NewPostgres(db database.DBTX) *Postgres {
	return &Postgres{db: db}
}

var (
	_ Catalog       = (*Postgres)(nil)
	_ ContactLinker = (*Postgres)(nil)
)

// Lookup loads matching stores in one query, oldest first, so the index
// resolves shared phones and emails to the earliest store.
func (p *Postgres) Lookup(ctx context.Context, keys []core.DedupKeys) (*Index, error) {
	var urls, phones, emails []string
	for _, k := range keys {
		if k.URL != "" {
			urls = append(urls, k.URL)
		}
		if k.Phone != "" {
			phones = append(phones, k.Phone)
		}
		if k.Email != "" {
			emails = append(emails, k.Email)
		}
	}

	ix := NewIndex()
	if len(urls)+len(phones)+len(emails) == 0 {
		return ix, nil
	}

	rows, err := p.db.Query(ctx, `
SELECT id::text, url_key, phone_key, email_key
FROM stores
WHERE url_key = ANY($1) OR phone_key = ANY($2) OR email_key = ANY($3)
ORDER BY created_at, id`, urls, phones, emails)
	if err != nil {
		return nil, fmt.Errorf("lookup stores: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id           string
			urlKey       string
			phone, email pgtype.Text
		)
		if err := rows.Scan(&id, &urlKey, &phone, &email); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		ix.Add(id, core.DedupKeys{URL: urlKey, Phone: phone.String, Email: email.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ix, nil
}

func (p *Postgres) Insert(ctx context.Context, rec core.StoreRecord, actor string) (string, error) {
	keys := rec.Keys()
	if keys.URL == "" {
		return "", fmt.Errorf("insert store: store_url is required")
	}
	applyDefaults(&rec)

	var id string
	err := p.db.QueryRow(ctx, `
INSERT INTO stores (store_url, url_key, store_name, owner_name, owner_phone, phone_key,
	owner_email, email_key, category, city, platform, priority, status, notes, contact_date, updated_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::text::date, $16)
RETURNING id::text`,
		rec.StoreURL, keys.URL, core.ToPgText(rec.StoreName), core.ToPgText(rec.OwnerName),
		core.ToPgText(rec.OwnerPhone), core.ToPgText(keys.Phone),
		core.ToPgText(rec.OwnerEmail), core.ToPgText(keys.Email),
		core.ToPgText(rec.Category), core.ToPgText(rec.City), core.ToPgText(rec.Platform),
		rec.Priority, rec.Status, core.ToPgText(rec.Notes), core.ToPgText(rec.ContactDate),
		core.ToPgText(actor),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert store: %w", err)
	}
	return id, nil
}

func (p *Postgres) Update(ctx context.Context, id string, rec core.StoreRecord, actor string) error {
	keys := rec.Keys()
	tag, err := p.db.Exec(ctx, `
UPDATE stores SET
	store_name   = COALESCE($2, store_name),
	owner_name   = COALESCE($3, owner_name),
	owner_phone  = COALESCE($4, owner_phone),
	phone_key    = COALESCE($5, phone_key),
	owner_email  = COALESCE($6, owner_email),
	email_key    = COALESCE($7, email_key),
	category     = COALESCE($8, category),
	city         = COALESCE($9, city),
	platform     = COALESCE($10, platform),
	priority     = COALESCE($11, priority),
	status       = COALESCE($12, status),
	notes        = COALESCE($13, notes),
	contact_date = COALESCE($14::text::date, contact_date),
	updated_by   = $15,
	updated_at   = NOW()
WHERE id = $1::text::uuid`,
		id, core.ToPgText(rec.StoreName), core.ToPgText(rec.OwnerName),
		core.ToPgText(rec.OwnerPhone), core.ToPgText(keys.Phone),
		core.ToPgText(rec.OwnerEmail), core.ToPgText(keys.Email),
		core.ToPgText(rec.Category), core.ToPgText(rec.City), core.ToPgText(rec.Platform),
		core.ToPgText(rec.Priority), core.ToPgText(rec.Status), core.ToPgText(rec.Notes),
		core.ToPgText(rec.ContactDate), core.ToPgText(actor),
	)
	if err != nil {
		return fmt.Errorf("update store %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update store %s: not found", id)
	}
	return nil
}

// UpsertContact adds a contact or refreshes the one with the same phone.
func (p *Postgres) UpsertContact(ctx context.Context, c Contact, storeID string) error {
	key := core.PhoneKey(c.Phone)
	if key == "" {
		return fmt.Errorf("upsert contact: phone is required")
	}

	_, err := p.db.Exec(ctx, `
INSERT INTO contacts (store_id, name, phone, phone_key, email)
VALUES ($1::text::uuid, $2, $3, $4, $5)
ON CONFLICT (store_id, phone_key) DO UPDATE SET
	name       = COALESCE(EXCLUDED.name, contacts.name),
	email      = COALESCE(EXCLUDED.email, contacts.email),
	updated_at = NOW()`,
		storeID, core.ToPgText(c.Name), c.Phone, key, core.ToPgText(c.Email),
	)
	if err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}
	return nil
}

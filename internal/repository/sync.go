package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"backend/internal/domain"
)

// EnsureClient registers a device on first contact and refreshes last_seen on
// every contact after that. The id is only used for the initial insert.
func (r *Repository) EnsureClient(ctx context.Context, id, deviceID string, userAgent *string) (*domain.SyncClient, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO sync_clients (id, device_id, user_agent)
		VALUES ($1, $2, $3)
		ON CONFLICT (device_id) DO UPDATE
		SET last_seen = NOW(), user_agent = COALESCE(EXCLUDED.user_agent, sync_clients.user_agent)
		RETURNING id, device_id, user_agent, first_seen, last_seen
	`, id, deviceID, userAgent)

	var (
		client domain.SyncClient
		agent  sql.NullString
	)
	if err := row.Scan(&client.ID, &client.DeviceID, &agent, &client.FirstSeen, &client.LastSeen); err != nil {
		return nil, fmt.Errorf("ensure sync client %q: %w", deviceID, err)
	}
	if agent.Valid {
		value := agent.String
		client.UserAgent = &value
	}
	return &client, nil
}

// CheckpointSince returns the device's watermark for a resource, or nil on
// first contact.
func (r *Repository) CheckpointSince(ctx context.Context, clientID, resource string) (*time.Time, error) {
	var since time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT since FROM sync_checkpoints WHERE client_id = $1 AND resource = $2
	`, clientID, resource).Scan(&since)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s/%s: %w", clientID, resource, err)
	}
	return &since, nil
}

// AdvanceCheckpoint moves the watermark forward. GREATEST keeps it monotonic
// even if two pulls race.
func (r *Repository) AdvanceCheckpoint(ctx context.Context, clientID, resource string, ts time.Time) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO sync_checkpoints (client_id, resource, since)
		VALUES ($1, $2, $3)
		ON CONFLICT (client_id, resource) DO UPDATE
		SET since = GREATEST(sync_checkpoints.since, EXCLUDED.since)
	`, clientID, resource, ts); err != nil {
		return fmt.Errorf("advance checkpoint %s/%s: %w", clientID, resource, err)
	}
	return nil
}

// LookupInbound returns the idempotency row for a pushed document, or nil
// when the document has never been applied.
func (r *Repository) LookupInbound(ctx context.Context, clientID, resource, clientDocID string) (*domain.SyncInbound, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT client_id, resource, client_doc_id, server_doc_id, status, created_at
		FROM sync_inbound
		WHERE client_id = $1 AND resource = $2 AND client_doc_id = $3
	`, clientID, resource, clientDocID)

	var inbound domain.SyncInbound
	err := row.Scan(
		&inbound.ClientID, &inbound.Resource, &inbound.ClientDocID,
		&inbound.ServerDocID, &inbound.Status, &inbound.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup inbound %s/%s/%s: %w", clientID, resource, clientDocID, err)
	}
	return &inbound, nil
}

// RecordTombstone upserts a deletion marker, keeping the newest deleted_at.
func (r *Repository) RecordTombstone(ctx context.Context, resource, entityID string, deletedAt *time.Time) error {
	ts := time.Now().UTC()
	if deletedAt != nil {
		ts = *deletedAt
	}
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO tombstones (resource, entity_id, deleted_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (resource, entity_id) DO UPDATE
		SET deleted_at = GREATEST(tombstones.deleted_at, EXCLUDED.deleted_at)
	`, resource, entityID, ts); err != nil {
		return fmt.Errorf("record tombstone %s/%s: %w", resource, entityID, err)
	}
	return nil
}

// IsDeleted reports whether the entity has a tombstone. A tombstoned id stays
// suppressed forever, even when a genuinely new entity reuses the id (likely
// only for human-chosen codes); that is a known limitation of the
// delete-always-wins policy, not a bug to fix here.
func (r *Repository) IsDeleted(ctx context.Context, resource, entityID string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM tombstones WHERE resource = $1 AND entity_id = $2)
	`, resource, entityID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check tombstone %s/%s: %w", resource, entityID, err)
	}
	return exists, nil
}

func (r *Repository) TombstonesSince(ctx context.Context, resources []string, since *time.Time, limit int) ([]domain.Tombstone, error) {
	limit = normalizeLimit(limit, 500, 5000)
	rows, err := r.pool.Query(ctx, `
		SELECT resource, entity_id, deleted_at
		FROM tombstones
		WHERE resource = ANY($1)
		  AND ($2::timestamptz IS NULL OR deleted_at > $2)
		ORDER BY deleted_at ASC
		LIMIT $3
	`, resources, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list tombstones: %w", err)
	}
	defer rows.Close()

	tombstones := make([]domain.Tombstone, 0, 16)
	for rows.Next() {
		var t domain.Tombstone
		if err := rows.Scan(&t.Resource, &t.EntityID, &t.DeletedAt); err != nil {
			return nil, fmt.Errorf("scan tombstone: %w", err)
		}
		tombstones = append(tombstones, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tombstones: %w", err)
	}
	return tombstones, nil
}

// PurgeTombstonesBefore deletes tombstones at or older than the threshold and
// returns the number removed.
func (r *Repository) PurgeTombstonesBefore(ctx context.Context, threshold time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tombstones WHERE deleted_at <= $1`, threshold)
	if err != nil {
		return 0, fmt.Errorf("purge tombstones: %w", err)
	}
	return cmd.RowsAffected(), nil
}

// PurgeStaleClients drops device registrations not seen since the cutoff,
// together with their checkpoints and inbound rows. A returning device
// re-registers under a fresh client id and re-pulls from scratch.
func (r *Repository) PurgeStaleClients(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin stale client tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const stale = `SELECT id FROM sync_clients WHERE last_seen <= $1`
	if _, err := tx.Exec(ctx, `DELETE FROM sync_checkpoints WHERE client_id IN (`+stale+`)`, cutoff); err != nil {
		return 0, fmt.Errorf("purge stale checkpoints: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM sync_inbound WHERE client_id IN (`+stale+`)`, cutoff); err != nil {
		return 0, fmt.Errorf("purge stale inbound: %w", err)
	}
	cmd, err := tx.Exec(ctx, `DELETE FROM sync_clients WHERE last_seen <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge stale clients: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit stale client tx: %w", err)
	}
	return cmd.RowsAffected(), nil
}

// RemoveEntityRow hard-deletes the master-data row behind a tombstoned id.
// Rows still referenced by ledger history (products, locations, customers
// with sales) survive the delete; the tombstone alone carries the logical
// deletion in that case, and products are additionally marked inactive.
func (r *Repository) RemoveEntityRow(ctx context.Context, resource, entityID string) error {
	switch resource {
	case domain.ResourceProducts:
		if _, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, entityID); err != nil {
			if _, updErr := r.pool.Exec(ctx, `
				UPDATE products SET active = FALSE, updated_at = NOW() WHERE id = $1
			`, entityID); updErr != nil {
				return fmt.Errorf("deactivate product %s: %w", entityID, updErr)
			}
		}
		return nil
	case domain.ResourceProductUoms:
		productID, uomName, err := splitLineKey(entityID)
		if err != nil {
			return err
		}
		_, err = r.pool.Exec(ctx, `DELETE FROM product_uoms WHERE product_id = $1 AND uom = $2`, productID, uomName)
		return err
	case domain.ResourcePrices:
		productID, uomName, err := splitLineKey(entityID)
		if err != nil {
			return err
		}
		_, err = r.pool.Exec(ctx, `DELETE FROM prices WHERE product_id = $1 AND uom = $2`, productID, uomName)
		return err
	case domain.ResourceBarcodes:
		_, err := r.pool.Exec(ctx, `DELETE FROM barcodes WHERE code = $1`, entityID)
		return err
	case domain.ResourceCustomers:
		_, err := r.pool.Exec(ctx, `DELETE FROM customers WHERE id = $1`, entityID)
		return err
	case domain.ResourceLocations:
		_, err := r.pool.Exec(ctx, `DELETE FROM locations WHERE id = $1`, entityID)
		return err
	default:
		return fmt.Errorf("unknown resource %q", resource)
	}
}

func splitLineKey(entityID string) (string, string, error) {
	parts := strings.SplitN(entityID, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid composite entity id %q", entityID)
	}
	return parts[0], parts[1], nil
}

func (r *Repository) ProductsChangedSince(ctx context.Context, since *time.Time, limit int) ([]domain.Product, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE $1::timestamptz IS NULL OR updated_at > $1
		ORDER BY updated_at ASC NULLS FIRST
		LIMIT $2
	`, since, normalizeLimit(limit, 500, 5000))
	if err != nil {
		return nil, fmt.Errorf("products changed since: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan changed product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changed products: %w", err)
	}
	return products, nil
}

func (r *Repository) ProductUomsChangedSince(ctx context.Context, since *time.Time, limit int) ([]domain.ProductUom, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT product_id, uom, to_base, updated_at
		FROM product_uoms
		WHERE $1::timestamptz IS NULL OR updated_at > $1
		ORDER BY updated_at ASC NULLS FIRST
		LIMIT $2
	`, since, normalizeLimit(limit, 500, 5000))
	if err != nil {
		return nil, fmt.Errorf("product uoms changed since: %w", err)
	}
	defer rows.Close()

	uoms := make([]domain.ProductUom, 0, 32)
	for rows.Next() {
		pu, err := scanProductUom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan changed product uom: %w", err)
		}
		uoms = append(uoms, pu)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changed product uoms: %w", err)
	}
	return uoms, nil
}

func (r *Repository) BarcodesChangedSince(ctx context.Context, since *time.Time, limit int) ([]domain.Barcode, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT code, product_id, uom, updated_at
		FROM barcodes
		WHERE $1::timestamptz IS NULL OR updated_at > $1
		ORDER BY updated_at ASC NULLS FIRST
		LIMIT $2
	`, since, normalizeLimit(limit, 500, 5000))
	if err != nil {
		return nil, fmt.Errorf("barcodes changed since: %w", err)
	}
	defer rows.Close()

	barcodes := make([]domain.Barcode, 0, 32)
	for rows.Next() {
		var (
			b         domain.Barcode
			updatedAt sql.NullTime
		)
		if err := rows.Scan(&b.Code, &b.ProductID, &b.Uom, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan changed barcode: %w", err)
		}
		if updatedAt.Valid {
			value := updatedAt.Time
			b.UpdatedAt = &value
		}
		barcodes = append(barcodes, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changed barcodes: %w", err)
	}
	return barcodes, nil
}

func (r *Repository) PricesChangedSince(ctx context.Context, since *time.Time, limit int) ([]domain.Price, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT product_id, uom, price::double precision, updated_at
		FROM prices
		WHERE $1::timestamptz IS NULL OR updated_at > $1
		ORDER BY updated_at ASC NULLS FIRST
		LIMIT $2
	`, since, normalizeLimit(limit, 500, 5000))
	if err != nil {
		return nil, fmt.Errorf("prices changed since: %w", err)
	}
	defer rows.Close()

	prices := make([]domain.Price, 0, 32)
	for rows.Next() {
		var (
			p         domain.Price
			updatedAt sql.NullTime
		)
		if err := rows.Scan(&p.ProductID, &p.Uom, &p.Price, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan changed price: %w", err)
		}
		if updatedAt.Valid {
			value := updatedAt.Time
			p.UpdatedAt = &value
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changed prices: %w", err)
	}
	return prices, nil
}

func (r *Repository) CustomersChangedSince(ctx context.Context, since *time.Time, limit int) ([]domain.Customer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, phone, email, member_code, updated_at
		FROM customers
		WHERE $1::timestamptz IS NULL OR updated_at > $1
		ORDER BY updated_at ASC NULLS FIRST
		LIMIT $2
	`, since, normalizeLimit(limit, 500, 5000))
	if err != nil {
		return nil, fmt.Errorf("customers changed since: %w", err)
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan changed customer: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changed customers: %w", err)
	}
	return customers, nil
}

func (r *Repository) LocationsChangedSince(ctx context.Context, since *time.Time, limit int) ([]domain.Location, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, name, updated_at
		FROM locations
		WHERE $1::timestamptz IS NULL OR updated_at > $1
		ORDER BY updated_at ASC NULLS FIRST
		LIMIT $2
	`, since, normalizeLimit(limit, 500, 5000))
	if err != nil {
		return nil, fmt.Errorf("locations changed since: %w", err)
	}
	defer rows.Close()

	locations := make([]domain.Location, 0, 8)
	for rows.Next() {
		var (
			loc       domain.Location
			updatedAt sql.NullTime
		)
		if err := rows.Scan(&loc.ID, &loc.Code, &loc.Name, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan changed location: %w", err)
		}
		if updatedAt.Valid {
			value := updatedAt.Time
			loc.UpdatedAt = &value
		}
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changed locations: %w", err)
	}
	return locations, nil
}

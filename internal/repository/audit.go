package repository

import (
	"context"
	"database/sql"
	"fmt"

	"backend/internal/domain"
)

// InsertAudit appends an audit entry. Callers treat failures as log-only:
// audit writes never block or roll back the business transaction they
// describe.
func (r *Repository) InsertAudit(ctx context.Context, action string, refID, actor *string, details string) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (action, ref_id, actor, details)
		VALUES ($1, $2, $3, $4)
	`, action, refID, actor, details); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *Repository) ListAudit(ctx context.Context, limit, offset int) ([]domain.AuditEntry, error) {
	limit = normalizeLimit(limit, 200, 1000)
	rows, err := r.pool.Query(ctx, `
		SELECT id, action, ref_id, actor, details, created_at
		FROM audit_log
		ORDER BY id DESC
		LIMIT $1 OFFSET $2
	`, limit, normalizeOffset(offset))
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.AuditEntry, 0, limit)
	for rows.Next() {
		var (
			entry domain.AuditEntry
			refID sql.NullString
			actor sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.Action, &refID, &actor, &entry.Details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if refID.Valid {
			value := refID.String
			entry.RefID = &value
		}
		if actor.Valid {
			value := actor.String
			entry.Actor = &value
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"backend/internal/domain"
)

const moveColumns = `id, product_id, location_id, uom, qty, move_type, ref_id, created_at`

// MovesFor returns the full move history for one product at one location.
// Balances are computed by summing these rows; the log is never truncated.
func (r *Repository) MovesFor(ctx context.Context, productID, locationID string) ([]domain.StockMove, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+moveColumns+`
		FROM stock_moves
		WHERE product_id = $1 AND location_id = $2
		ORDER BY created_at ASC
	`, productID, locationID)
	if err != nil {
		return nil, fmt.Errorf("load moves %s@%s: %w", productID, locationID, err)
	}
	defer rows.Close()
	return collectMoves(rows)
}

// MovesByFilter returns moves across products/locations for bulk stock
// snapshots. Empty filters mean "all".
func (r *Repository) MovesByFilter(ctx context.Context, productIDs, locationIDs []string) ([]domain.StockMove, error) {
	query := `SELECT ` + moveColumns + ` FROM stock_moves WHERE TRUE`
	args := []any{}
	idx := 1
	if len(productIDs) > 0 {
		query += fmt.Sprintf(" AND product_id = ANY($%d)", idx)
		args = append(args, productIDs)
		idx++
	}
	if len(locationIDs) > 0 {
		query += fmt.Sprintf(" AND location_id = ANY($%d)", idx)
		args = append(args, locationIDs)
		idx++
	}
	query += " ORDER BY created_at ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load moves by filter: %w", err)
	}
	defer rows.Close()
	return collectMoves(rows)
}

// InsertMoves appends ledger entries in one transaction. Used by adjustment,
// transfer, and repack commits where the moves are the whole document.
func (r *Repository) InsertMoves(ctx context.Context, moves []domain.StockMove) error {
	if len(moves) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin moves tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertMovesTx(ctx, tx, moves); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit moves tx: %w", err)
	}
	return nil
}

type CommitPurchaseInput struct {
	Purchase domain.Purchase
	Lines    []domain.PurchaseLine
	Moves    []domain.StockMove
}

// CommitPurchase writes the goods-receipt header, its lines, and the positive
// IN moves in a single transaction. The document number is derived from a
// same-day count inside the transaction; see domain.PurchaseDocNo for the
// advisory-uniqueness caveat.
func (r *Repository) CommitPurchase(ctx context.Context, input CommitPurchaseInput) (*domain.Purchase, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin purchase tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	var sameDay int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM purchases WHERE created_at::date = $1::date
	`, now).Scan(&sameDay); err != nil {
		return nil, fmt.Errorf("count purchases for doc no: %w", err)
	}
	purchase := input.Purchase
	purchase.DocNo = domain.PurchaseDocNo(now, sameDay+1)
	purchase.CreatedAt = now

	if _, err := tx.Exec(ctx, `
		INSERT INTO purchases (id, doc_no, location_id, supplier, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, purchase.ID, purchase.DocNo, purchase.LocationID, purchase.Supplier, purchase.Total, purchase.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert purchase: %w", err)
	}

	for _, line := range input.Lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO purchase_lines (id, purchase_id, product_id, uom, qty, price)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, line.ID, purchase.ID, line.ProductID, line.Uom, line.Qty, line.Price); err != nil {
			return nil, fmt.Errorf("insert purchase line: %w", err)
		}
	}

	if err := insertMovesTx(ctx, tx, input.Moves); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit purchase tx: %w", err)
	}
	return &purchase, nil
}

func insertMovesTx(ctx context.Context, tx pgx.Tx, moves []domain.StockMove) error {
	for _, move := range moves {
		if _, err := tx.Exec(ctx, `
			INSERT INTO stock_moves (id, product_id, location_id, uom, qty, move_type, ref_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, move.ID, move.ProductID, move.LocationID, move.Uom, move.Qty, move.Type, move.RefID); err != nil {
			return fmt.Errorf("insert stock move %s: %w", move.ID, err)
		}
	}
	return nil
}

func collectMoves(rows pgx.Rows) ([]domain.StockMove, error) {
	moves := make([]domain.StockMove, 0, 64)
	for rows.Next() {
		var (
			move  domain.StockMove
			refID sql.NullString
		)
		if err := rows.Scan(
			&move.ID,
			&move.ProductID,
			&move.LocationID,
			&move.Uom,
			&move.Qty,
			&move.Type,
			&refID,
			&move.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stock move: %w", err)
		}
		if refID.Valid {
			value := refID.String
			move.RefID = &value
		}
		moves = append(moves, move)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock moves: %w", err)
	}
	return moves, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"backend/internal/domain"
)

type CommitSaleInput struct {
	Sale     domain.Sale
	Lines    []domain.SaleLine
	Payments []domain.Payment
	Moves    []domain.StockMove

	// Inbound, when set, is the idempotency marker recorded in the same
	// transaction as the sale. A conflicting key aborts with ErrDuplicate.
	Inbound *domain.SyncInbound
}

type CommitReturnInput struct {
	Return  domain.SaleReturn
	Lines   []domain.SaleReturnLine
	Refunds []domain.Payment
	Moves   []domain.StockMove
	Inbound *domain.SyncInbound
}

// CommitSale writes the sale header, lines, payments, ledger moves, and the
// idempotency marker in one all-or-nothing transaction. The receipt number is
// derived from a same-day count per cashier inside the transaction.
func (r *Repository) CommitSale(ctx context.Context, input CommitSaleInput) (*domain.Sale, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin sale tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertInboundTx(ctx, tx, input.Inbound); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var sameDay int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM sales
		WHERE created_at::date = $1::date AND cashier_code = $2
	`, now, input.Sale.CashierCode).Scan(&sameDay); err != nil {
		return nil, fmt.Errorf("count sales for doc no: %w", err)
	}

	sale := input.Sale
	sale.DocNo = domain.SaleDocNo(now, sale.CashierCode, sameDay+1)
	sale.CreatedAt = now

	if _, err := tx.Exec(ctx, `
		INSERT INTO sales (
			id, doc_no, cashier_code, location_id, customer_id,
			subtotal, discount, tax, total, paid, change, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		sale.ID, sale.DocNo, sale.CashierCode, sale.LocationID, sale.CustomerID,
		sale.Subtotal, sale.Discount, sale.Tax, sale.Total, sale.Paid, sale.Change, sale.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert sale: %w", err)
	}

	for _, line := range input.Lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO sale_lines (id, sale_id, product_id, uom, qty, price, discount, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, line.ID, sale.ID, line.ProductID, line.Uom, line.Qty, line.Price, line.Discount, line.LineTotal); err != nil {
			return nil, fmt.Errorf("insert sale line: %w", err)
		}
	}

	if err := insertPaymentsTx(ctx, tx, input.Payments); err != nil {
		return nil, err
	}
	if err := insertMovesTx(ctx, tx, input.Moves); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit sale tx: %w", err)
	}
	return &sale, nil
}

// CommitReturn mirrors CommitSale in the positive direction.
func (r *Repository) CommitReturn(ctx context.Context, input CommitReturnInput) (*domain.SaleReturn, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin return tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertInboundTx(ctx, tx, input.Inbound); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var sameDay int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM sale_returns WHERE created_at::date = $1::date
	`, now).Scan(&sameDay); err != nil {
		return nil, fmt.Errorf("count returns for doc no: %w", err)
	}

	ret := input.Return
	ret.DocNo = domain.ReturnDocNo(now, sameDay+1)
	ret.CreatedAt = now

	if _, err := tx.Exec(ctx, `
		INSERT INTO sale_returns (id, doc_no, sale_id, reason, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ret.ID, ret.DocNo, ret.SaleID, ret.Reason, ret.Total, ret.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert sale return: %w", err)
	}

	for _, line := range input.Lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO sale_return_lines (id, return_id, product_id, uom, qty, price)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, line.ID, ret.ID, line.ProductID, line.Uom, line.Qty, line.Price); err != nil {
			return nil, fmt.Errorf("insert return line: %w", err)
		}
	}

	if err := insertPaymentsTx(ctx, tx, input.Refunds); err != nil {
		return nil, err
	}
	if err := insertMovesTx(ctx, tx, input.Moves); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit return tx: %w", err)
	}
	return &ret, nil
}

// SaleForReturn loads the originating sale, its lines, and the cumulative
// quantity already returned per (product, uom) across all prior returns.
func (r *Repository) SaleForReturn(ctx context.Context, saleID string) (*domain.Sale, []domain.SaleLine, map[string]float64, error) {
	sale, err := r.SaleByID(ctx, saleID)
	if err != nil {
		return nil, nil, nil, err
	}

	lines, err := r.saleLines(ctx, saleID)
	if err != nil {
		return nil, nil, nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT srl.product_id, srl.uom, COALESCE(SUM(srl.qty), 0)
		FROM sale_return_lines srl
		JOIN sale_returns sr ON sr.id = srl.return_id
		WHERE sr.sale_id = $1
		GROUP BY srl.product_id, srl.uom
	`, saleID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load returned quantities for sale %s: %w", saleID, err)
	}
	defer rows.Close()

	returned := map[string]float64{}
	for rows.Next() {
		var (
			productID string
			uomName   string
			qty       float64
		)
		if err := rows.Scan(&productID, &uomName, &qty); err != nil {
			return nil, nil, nil, fmt.Errorf("scan returned quantity: %w", err)
		}
		returned[domain.LineKey(productID, uomName)] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate returned quantities: %w", err)
	}

	return sale, lines, returned, nil
}

func (r *Repository) SaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doc_no, cashier_code, location_id, customer_id,
			subtotal::double precision, discount::double precision, tax::double precision,
			total::double precision, paid::double precision, change::double precision, created_at
		FROM sales
		WHERE id = $1
	`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get sale %s: %w", id, err)
	}
	return &sale, nil
}

func (r *Repository) SaleDetail(ctx context.Context, id string) (*domain.Sale, []domain.SaleLine, []domain.Payment, error) {
	sale, err := r.SaleByID(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	lines, err := r.saleLines(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	payments, err := r.paymentsFor(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	return sale, lines, payments, nil
}

func (r *Repository) ListSales(ctx context.Context, from, to *time.Time, limit, offset int) ([]domain.Sale, error) {
	limit = normalizeLimit(limit, 200, 1000)
	query := `
		SELECT id, doc_no, cashier_code, location_id, customer_id,
			subtotal::double precision, discount::double precision, tax::double precision,
			total::double precision, paid::double precision, change::double precision, created_at
		FROM sales
		WHERE TRUE
	`
	args := []any{}
	idx := 1
	if from != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, *from)
		idx++
	}
	if to != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", idx)
		args = append(args, *to)
		idx++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, normalizeOffset(offset))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sales: %w", err)
	}
	return sales, nil
}

func (r *Repository) saleLines(ctx context.Context, saleID string) ([]domain.SaleLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, sale_id, product_id, uom, qty,
			price::double precision, discount::double precision, line_total::double precision
		FROM sale_lines
		WHERE sale_id = $1
		ORDER BY id ASC
	`, saleID)
	if err != nil {
		return nil, fmt.Errorf("load sale lines %s: %w", saleID, err)
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0, 8)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(
			&line.ID, &line.SaleID, &line.ProductID, &line.Uom,
			&line.Qty, &line.Price, &line.Discount, &line.LineTotal,
		); err != nil {
			return nil, fmt.Errorf("scan sale line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale lines: %w", err)
	}
	return lines, nil
}

func (r *Repository) paymentsFor(ctx context.Context, refID string) ([]domain.Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, ref_id, method, kind, amount::double precision
		FROM payments
		WHERE ref_id = $1
		ORDER BY id ASC
	`, refID)
	if err != nil {
		return nil, fmt.Errorf("load payments %s: %w", refID, err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 2)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.RefID, &p.Method, &p.Kind, &p.Amount); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

func insertPaymentsTx(ctx context.Context, tx pgx.Tx, payments []domain.Payment) error {
	for _, p := range payments {
		if _, err := tx.Exec(ctx, `
			INSERT INTO payments (id, ref_id, method, kind, amount)
			VALUES ($1, $2, $3, $4, $5)
		`, p.ID, p.RefID, p.Method, p.Kind, p.Amount); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
	}
	return nil
}

// insertInboundTx records the idempotency marker. A key conflict means the
// document was already applied by an earlier push; the caller must roll back
// and report a duplicate, never re-run side effects.
func insertInboundTx(ctx context.Context, tx pgx.Tx, inbound *domain.SyncInbound) error {
	if inbound == nil {
		return nil
	}
	cmd, err := tx.Exec(ctx, `
		INSERT INTO sync_inbound (client_id, resource, client_doc_id, server_doc_id, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (client_id, resource, client_doc_id) DO NOTHING
	`, inbound.ClientID, inbound.Resource, inbound.ClientDocID, inbound.ServerDocID, inbound.Status)
	if err != nil {
		return fmt.Errorf("insert sync inbound: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

func scanSale(row pgx.Row) (domain.Sale, error) {
	var (
		sale       domain.Sale
		customerID sql.NullString
	)
	if err := row.Scan(
		&sale.ID, &sale.DocNo, &sale.CashierCode, &sale.LocationID, &customerID,
		&sale.Subtotal, &sale.Discount, &sale.Tax,
		&sale.Total, &sale.Paid, &sale.Change, &sale.CreatedAt,
	); err != nil {
		return domain.Sale{}, err
	}
	if customerID.Valid {
		value := customerID.String
		sale.CustomerID = &value
	}
	return sale, nil
}

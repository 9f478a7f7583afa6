package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"backend/internal/domain"
)

const productColumns = `id, sku, name, base_uom, active, created_at, updated_at`

func (r *Repository) ProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return &product, nil
}

func (r *Repository) ProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE LOWER(sku) = LOWER($1)`, strings.TrimSpace(sku))
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get product by sku %q: %w", sku, err)
	}
	return &product, nil
}

func (r *Repository) CreateProduct(ctx context.Context, p domain.Product) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO products (id, sku, name, base_uom, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
	`, p.ID, p.SKU, p.Name, p.BaseUom, p.Active, p.UpdatedAt); err != nil {
		return fmt.Errorf("insert product %s: %w", p.ID, err)
	}
	return nil
}

func (r *Repository) UpdateProduct(ctx context.Context, p domain.Product) error {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE products
		SET sku = $2, name = $3, base_uom = $4, active = $5, updated_at = COALESCE($6, NOW())
		WHERE id = $1
	`, p.ID, p.SKU, p.Name, p.BaseUom, p.Active, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update product %s: %w", p.ID, err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ListProducts(ctx context.Context, search string, limit, offset int) ([]domain.Product, error) {
	limit = normalizeLimit(limit, 200, 1000)
	rows, err := r.pool.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR sku ILIKE '%' || $1 || '%')
		ORDER BY sku ASC
		LIMIT $2 OFFSET $3
	`, strings.TrimSpace(search), limit, normalizeOffset(offset))
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func (r *Repository) ProductUomByKey(ctx context.Context, productID, uomName string) (*domain.ProductUom, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT product_id, uom, to_base, updated_at
		FROM product_uoms
		WHERE product_id = $1 AND uom = $2
	`, productID, uomName)
	pu, err := scanProductUom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get product uom %s/%s: %w", productID, uomName, err)
	}
	return &pu, nil
}

func (r *Repository) CreateProductUom(ctx context.Context, pu domain.ProductUom) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO product_uoms (product_id, uom, to_base, updated_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()))
	`, pu.ProductID, pu.Uom, pu.ToBase, pu.UpdatedAt); err != nil {
		return fmt.Errorf("insert product uom %s/%s: %w", pu.ProductID, pu.Uom, err)
	}
	return nil
}

func (r *Repository) UpdateProductUom(ctx context.Context, pu domain.ProductUom) error {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE product_uoms
		SET to_base = $3, updated_at = COALESCE($4, NOW())
		WHERE product_id = $1 AND uom = $2
	`, pu.ProductID, pu.Uom, pu.ToBase, pu.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update product uom %s/%s: %w", pu.ProductID, pu.Uom, err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UomRows loads the conversion table for the given products (all products
// when the filter is empty), feeding the resolver snapshot.
func (r *Repository) UomRows(ctx context.Context, productIDs []string) ([]domain.ProductUom, error) {
	query := `SELECT product_id, uom, to_base, updated_at FROM product_uoms`
	args := []any{}
	if len(productIDs) > 0 {
		query += ` WHERE product_id = ANY($1)`
		args = append(args, productIDs)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load uom rows: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ProductUom, 0, 64)
	for rows.Next() {
		pu, err := scanProductUom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan uom row: %w", err)
		}
		result = append(result, pu)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uom rows: %w", err)
	}
	return result, nil
}

func (r *Repository) BarcodeByCode(ctx context.Context, code string) (*domain.Barcode, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT code, product_id, uom, updated_at FROM barcodes WHERE code = $1
	`, strings.TrimSpace(code))
	var (
		b         domain.Barcode
		updatedAt sql.NullTime
	)
	if err := row.Scan(&b.Code, &b.ProductID, &b.Uom, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get barcode %q: %w", code, err)
	}
	if updatedAt.Valid {
		value := updatedAt.Time
		b.UpdatedAt = &value
	}
	return &b, nil
}

func (r *Repository) CreateBarcode(ctx context.Context, b domain.Barcode) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO barcodes (code, product_id, uom, updated_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()))
	`, b.Code, b.ProductID, b.Uom, b.UpdatedAt); err != nil {
		return fmt.Errorf("insert barcode %q: %w", b.Code, err)
	}
	return nil
}

func (r *Repository) UpdateBarcode(ctx context.Context, b domain.Barcode) error {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE barcodes
		SET product_id = $2, uom = $3, updated_at = COALESCE($4, NOW())
		WHERE code = $1
	`, b.Code, b.ProductID, b.Uom, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update barcode %q: %w", b.Code, err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) PriceByKey(ctx context.Context, productID, uomName string) (*domain.Price, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT product_id, uom, price::double precision, updated_at
		FROM prices
		WHERE product_id = $1 AND uom = $2
	`, productID, uomName)
	var (
		p         domain.Price
		updatedAt sql.NullTime
	)
	if err := row.Scan(&p.ProductID, &p.Uom, &p.Price, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get price %s/%s: %w", productID, uomName, err)
	}
	if updatedAt.Valid {
		value := updatedAt.Time
		p.UpdatedAt = &value
	}
	return &p, nil
}

func (r *Repository) CreatePrice(ctx context.Context, p domain.Price) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO prices (product_id, uom, price, updated_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()))
	`, p.ProductID, p.Uom, p.Price, p.UpdatedAt); err != nil {
		return fmt.Errorf("insert price %s/%s: %w", p.ProductID, p.Uom, err)
	}
	return nil
}

func (r *Repository) UpdatePrice(ctx context.Context, p domain.Price) error {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE prices
		SET price = $3, updated_at = COALESCE($4, NOW())
		WHERE product_id = $1 AND uom = $2
	`, p.ProductID, p.Uom, p.Price, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update price %s/%s: %w", p.ProductID, p.Uom, err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) CustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	return r.customerWhere(ctx, "id = $1", id)
}

func (r *Repository) CustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	return r.customerWhere(ctx, "phone = $1", strings.TrimSpace(phone))
}

func (r *Repository) CustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	return r.customerWhere(ctx, "LOWER(email) = LOWER($1)", strings.TrimSpace(email))
}

func (r *Repository) CustomerByMemberCode(ctx context.Context, memberCode string) (*domain.Customer, error) {
	return r.customerWhere(ctx, "member_code = $1", strings.TrimSpace(memberCode))
}

func (r *Repository) customerWhere(ctx context.Context, where string, arg any) (*domain.Customer, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, phone, email, member_code, updated_at
		FROM customers
		WHERE `+where+`
		ORDER BY id
		LIMIT 1
	`, arg)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return &c, nil
}

func (r *Repository) CreateCustomer(ctx context.Context, c domain.Customer) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO customers (id, name, phone, email, member_code, updated_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
	`, c.ID, c.Name, c.Phone, c.Email, c.MemberCode, c.UpdatedAt); err != nil {
		return fmt.Errorf("insert customer %s: %w", c.ID, err)
	}
	return nil
}

func (r *Repository) UpdateCustomer(ctx context.Context, c domain.Customer) error {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE customers
		SET name = $2, phone = $3, email = $4, member_code = $5, updated_at = COALESCE($6, NOW())
		WHERE id = $1
	`, c.ID, c.Name, c.Phone, c.Email, c.MemberCode, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update customer %s: %w", c.ID, err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ListCustomers(ctx context.Context, search string, limit, offset int) ([]domain.Customer, error) {
	limit = normalizeLimit(limit, 200, 1000)
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, phone, email, member_code, updated_at
		FROM customers
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%')
		ORDER BY name ASC
		LIMIT $2 OFFSET $3
	`, strings.TrimSpace(search), limit, normalizeOffset(offset))
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, limit)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return customers, nil
}

func (r *Repository) LocationByID(ctx context.Context, id string) (*domain.Location, error) {
	return r.locationWhere(ctx, "id = $1", id)
}

func (r *Repository) LocationByCode(ctx context.Context, code string) (*domain.Location, error) {
	return r.locationWhere(ctx, "LOWER(code) = LOWER($1)", strings.TrimSpace(code))
}

func (r *Repository) locationWhere(ctx context.Context, where string, arg any) (*domain.Location, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, code, name, updated_at FROM locations WHERE `+where,
		arg)
	var (
		loc       domain.Location
		updatedAt sql.NullTime
	)
	if err := row.Scan(&loc.ID, &loc.Code, &loc.Name, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get location: %w", err)
	}
	if updatedAt.Valid {
		value := updatedAt.Time
		loc.UpdatedAt = &value
	}
	return &loc, nil
}

func (r *Repository) CreateLocation(ctx context.Context, loc domain.Location) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO locations (id, code, name, updated_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()))
	`, loc.ID, loc.Code, loc.Name, loc.UpdatedAt); err != nil {
		return fmt.Errorf("insert location %s: %w", loc.ID, err)
	}
	return nil
}

func (r *Repository) UpdateLocation(ctx context.Context, loc domain.Location) error {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE locations
		SET code = $2, name = $3, updated_at = COALESCE($4, NOW())
		WHERE id = $1
	`, loc.ID, loc.Code, loc.Name, loc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update location %s: %w", loc.ID, err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ListLocations(ctx context.Context) ([]domain.Location, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, updated_at FROM locations ORDER BY code ASC`)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	locations := make([]domain.Location, 0, 8)
	for rows.Next() {
		var (
			loc       domain.Location
			updatedAt sql.NullTime
		)
		if err := rows.Scan(&loc.ID, &loc.Code, &loc.Name, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		if updatedAt.Valid {
			value := updatedAt.Time
			loc.UpdatedAt = &value
		}
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locations: %w", err)
	}
	return locations, nil
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		p         domain.Product
		updatedAt sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.BaseUom, &p.Active, &p.CreatedAt, &updatedAt); err != nil {
		return domain.Product{}, err
	}
	if updatedAt.Valid {
		value := updatedAt.Time
		p.UpdatedAt = &value
	}
	return p, nil
}

func scanProductUom(row pgx.Row) (domain.ProductUom, error) {
	var (
		pu        domain.ProductUom
		updatedAt sql.NullTime
	)
	if err := row.Scan(&pu.ProductID, &pu.Uom, &pu.ToBase, &updatedAt); err != nil {
		return domain.ProductUom{}, err
	}
	if updatedAt.Valid {
		value := updatedAt.Time
		pu.UpdatedAt = &value
	}
	return pu, nil
}

func scanCustomer(row pgx.Row) (domain.Customer, error) {
	var (
		c          domain.Customer
		phone      sql.NullString
		email      sql.NullString
		memberCode sql.NullString
		updatedAt  sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.Name, &phone, &email, &memberCode, &updatedAt); err != nil {
		return domain.Customer{}, err
	}
	if phone.Valid {
		value := phone.String
		c.Phone = &value
	}
	if email.Valid {
		value := email.String
		c.Email = &value
	}
	if memberCode.Valid {
		value := memberCode.String
		c.MemberCode = &value
	}
	if updatedAt.Valid {
		value := updatedAt.Time
		c.UpdatedAt = &value
	}
	return c, nil
}

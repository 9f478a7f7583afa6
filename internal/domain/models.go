package domain

import "time"

// Stock move types. Moves are append-only: business logic never edits or
// deletes a move once written.
const (
	MoveIn         = "IN"
	MoveSale       = "SALE"
	MoveReturn     = "RETURN"
	MoveTransfer   = "TRANSFER"
	MoveAdjustment = "ADJUSTMENT"
	MoveRepackIn   = "REPACK_IN"
	MoveRepackOut  = "REPACK_OUT"
	MoveHold       = "HOLD"
)

// Sync resource names as they appear on the wire and in the tombstone and
// checkpoint tables.
const (
	ResourceProducts    = "products"
	ResourceProductUoms = "product_uoms"
	ResourceBarcodes    = "barcodes"
	ResourcePrices      = "prices"
	ResourceCustomers   = "customers"
	ResourceLocations   = "locations"
	ResourceSales       = "sales"
	ResourceReturns     = "sale_returns"
)

// SyncResources lists the master-data resources served by pull and push, in
// dependency order (products before the rows that reference them).
var SyncResources = []string{
	ResourceProducts,
	ResourceProductUoms,
	ResourceBarcodes,
	ResourcePrices,
	ResourceCustomers,
	ResourceLocations,
}

// Payment methods and kinds.
const (
	PaymentCash    = "CASH"
	PaymentNonCash = "NON_CASH"

	PaymentKindSale   = "SALE"
	PaymentKindRefund = "REFUND"
)

type Product struct {
	ID        string     `json:"id"`
	SKU       string     `json:"sku"`
	Name      string     `json:"name"`
	BaseUom   string     `json:"base_uom"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type ProductUom struct {
	ProductID string     `json:"product_id"`
	Uom       string     `json:"uom"`
	ToBase    int64      `json:"to_base"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type Barcode struct {
	Code      string     `json:"code"`
	ProductID string     `json:"product_id"`
	Uom       string     `json:"uom"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type Price struct {
	ProductID string     `json:"product_id"`
	Uom       string     `json:"uom"`
	Price     float64    `json:"price"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type Customer struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Phone      *string    `json:"phone,omitempty"`
	Email      *string    `json:"email,omitempty"`
	MemberCode *string    `json:"member_code,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

type Location struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// StockMove is one immutable ledger entry. The balance of a product at a
// location, in base units, is the sum over its moves of qty * toBase(uom).
type StockMove struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"product_id"`
	LocationID string    `json:"location_id"`
	Uom        string    `json:"uom"`
	Qty        float64   `json:"qty"`
	Type       string    `json:"type"`
	RefID      *string   `json:"ref_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Sale struct {
	ID          string    `json:"id"`
	DocNo       string    `json:"doc_no"`
	CashierCode string    `json:"cashier_code"`
	LocationID  string    `json:"location_id"`
	CustomerID  *string   `json:"customer_id,omitempty"`
	Subtotal    float64   `json:"subtotal"`
	Discount    float64   `json:"discount"`
	Tax         float64   `json:"tax"`
	Total       float64   `json:"total"`
	Paid        float64   `json:"paid"`
	Change      float64   `json:"change"`
	CreatedAt   time.Time `json:"created_at"`
}

type SaleLine struct {
	ID        string  `json:"id"`
	SaleID    string  `json:"sale_id"`
	ProductID string  `json:"product_id"`
	Uom       string  `json:"uom"`
	Qty       float64 `json:"qty"`
	Price     float64 `json:"price"`
	Discount  float64 `json:"discount"`
	LineTotal float64 `json:"line_total"`
}

type Payment struct {
	ID     string  `json:"id"`
	RefID  string  `json:"ref_id"`
	Method string  `json:"method"`
	Kind   string  `json:"kind"`
	Amount float64 `json:"amount"`
}

type SaleReturn struct {
	ID        string    `json:"id"`
	DocNo     string    `json:"doc_no"`
	SaleID    string    `json:"sale_id"`
	Reason    *string   `json:"reason,omitempty"`
	Total     float64   `json:"total"`
	CreatedAt time.Time `json:"created_at"`
}

type SaleReturnLine struct {
	ID        string  `json:"id"`
	ReturnID  string  `json:"return_id"`
	ProductID string  `json:"product_id"`
	Uom       string  `json:"uom"`
	Qty       float64 `json:"qty"`
	Price     float64 `json:"price"`
}

type Purchase struct {
	ID         string    `json:"id"`
	DocNo      string    `json:"doc_no"`
	LocationID string    `json:"location_id"`
	Supplier   *string   `json:"supplier,omitempty"`
	Total      float64   `json:"total"`
	CreatedAt  time.Time `json:"created_at"`
}

type PurchaseLine struct {
	ID         string  `json:"id"`
	PurchaseID string  `json:"purchase_id"`
	ProductID  string  `json:"product_id"`
	Uom        string  `json:"uom"`
	Qty        float64 `json:"qty"`
	Price      float64 `json:"price"`
}

// SyncClient is one row per physical device, created on first sync contact
// and refreshed on every contact afterwards.
type SyncClient struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	UserAgent *string   `json:"user_agent,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// SyncCheckpoint records the newest change timestamp a device has pulled for
// one resource. Monotonically non-decreasing.
type SyncCheckpoint struct {
	ClientID string    `json:"client_id"`
	Resource string    `json:"resource"`
	Since    time.Time `json:"since"`
}

// SyncInbound is the idempotency ledger: one row per successfully applied (or
// duplicate-detected) pushed document, never updated, never deleted.
type SyncInbound struct {
	ClientID    string    `json:"client_id"`
	Resource    string    `json:"resource"`
	ClientDocID string    `json:"client_doc_id"`
	ServerDocID string    `json:"server_doc_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Tombstone marks a logical deletion so stale devices cannot resurrect the
// entity through a later push.
type Tombstone struct {
	Resource  string    `json:"resource"`
	EntityID  string    `json:"entity_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

type AuditEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	RefID     *string   `json:"ref_id,omitempty"`
	Actor     *string   `json:"actor,omitempty"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductImportRow is one parsed spreadsheet row of a bulk product import.
// Optional columns keep their zero value when absent.
type ProductImportRow struct {
	SKU        string
	Name       string
	BaseUom    string
	Uom        *string
	ToBase     *int64
	Barcode    *string
	SellPrice  *float64
	OpeningQty float64
}

// ImportSummary counts the outcome of a bulk product import.
type ImportSummary struct {
	Products int `json:"products"`
	Updated  int `json:"updated"`
	Uoms     int `json:"uoms"`
	Prices   int `json:"prices"`
	Barcodes int `json:"barcodes"`
	Moves    int `json:"moves"`
}

// ApplySummary counts the outcome of one resource's apply loop during a push.
type ApplySummary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Deleted int `json:"deleted"`
	Errors  int `json:"errors"`
}

// DocSummary counts the outcome of a pushed document batch (sales, returns).
type DocSummary struct {
	Created   int `json:"created"`
	Duplicate int `json:"duplicate"`
	Errors    int `json:"errors"`
}

// Shortage describes one sale line that asked for more base quantity than the
// ledger holds at its location.
type Shortage struct {
	ProductID string  `json:"product_id"`
	Location  string  `json:"location"`
	Uom       string  `json:"uom"`
	Need      float64 `json:"need"`
	Have      float64 `json:"have"`
}

// OverReturn describes one return item exceeding the returnable remainder of
// the originating sale.
type OverReturn struct {
	ProductID  string  `json:"product_id"`
	Uom        string  `json:"uom"`
	Requested  float64 `json:"requested"`
	Returnable float64 `json:"returnable"`
}

// UomBalance is one row of a per-uom breakdown: raw sums without conversion.
type UomBalance struct {
	Uom    string  `json:"uom"`
	RawQty float64 `json:"rawQty"`
}

// StockSnapshot is one row of a bulk balance response. Tags follow the device
// wire format; the back-office stock endpoints reuse the same shape.
type StockSnapshot struct {
	ProductID   string       `json:"productId"`
	Location    string       `json:"location"`
	BalanceBase float64      `json:"balanceBase"`
	LastMoveAt  *time.Time   `json:"lastMoveAt,omitempty"`
	PerUom      []UomBalance `json:"perUom,omitempty"`
}

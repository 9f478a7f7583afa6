package service

import (
	"context"
	"time"

	"backend/internal/domain"
	"backend/internal/repository"
)

// Store is the persistence surface the services depend on, implemented by
// *repository.Repository. Injected explicitly; there is no package-level
// handle.
type Store interface {
	// Master data.
	ProductByID(ctx context.Context, id string) (*domain.Product, error)
	ProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	CreateProduct(ctx context.Context, p domain.Product) error
	UpdateProduct(ctx context.Context, p domain.Product) error
	ListProducts(ctx context.Context, search string, limit, offset int) ([]domain.Product, error)
	ProductUomByKey(ctx context.Context, productID, uom string) (*domain.ProductUom, error)
	CreateProductUom(ctx context.Context, pu domain.ProductUom) error
	UpdateProductUom(ctx context.Context, pu domain.ProductUom) error
	UomRows(ctx context.Context, productIDs []string) ([]domain.ProductUom, error)
	BarcodeByCode(ctx context.Context, code string) (*domain.Barcode, error)
	CreateBarcode(ctx context.Context, b domain.Barcode) error
	UpdateBarcode(ctx context.Context, b domain.Barcode) error
	PriceByKey(ctx context.Context, productID, uom string) (*domain.Price, error)
	CreatePrice(ctx context.Context, p domain.Price) error
	UpdatePrice(ctx context.Context, p domain.Price) error
	CustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	CustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error)
	CustomerByEmail(ctx context.Context, email string) (*domain.Customer, error)
	CustomerByMemberCode(ctx context.Context, memberCode string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, c domain.Customer) error
	UpdateCustomer(ctx context.Context, c domain.Customer) error
	ListCustomers(ctx context.Context, search string, limit, offset int) ([]domain.Customer, error)
	LocationByID(ctx context.Context, id string) (*domain.Location, error)
	LocationByCode(ctx context.Context, code string) (*domain.Location, error)
	CreateLocation(ctx context.Context, loc domain.Location) error
	UpdateLocation(ctx context.Context, loc domain.Location) error
	ListLocations(ctx context.Context) ([]domain.Location, error)

	// Ledger.
	MovesFor(ctx context.Context, productID, locationID string) ([]domain.StockMove, error)
	MovesByFilter(ctx context.Context, productIDs, locationIDs []string) ([]domain.StockMove, error)
	InsertMoves(ctx context.Context, moves []domain.StockMove) error
	CommitPurchase(ctx context.Context, input repository.CommitPurchaseInput) (*domain.Purchase, error)

	// Sales.
	CommitSale(ctx context.Context, input repository.CommitSaleInput) (*domain.Sale, error)
	CommitReturn(ctx context.Context, input repository.CommitReturnInput) (*domain.SaleReturn, error)
	SaleForReturn(ctx context.Context, saleID string) (*domain.Sale, []domain.SaleLine, map[string]float64, error)
	SaleByID(ctx context.Context, id string) (*domain.Sale, error)
	SaleDetail(ctx context.Context, id string) (*domain.Sale, []domain.SaleLine, []domain.Payment, error)
	ListSales(ctx context.Context, from, to *time.Time, limit, offset int) ([]domain.Sale, error)

	// Sync bookkeeping.
	EnsureClient(ctx context.Context, id, deviceID string, userAgent *string) (*domain.SyncClient, error)
	CheckpointSince(ctx context.Context, clientID, resource string) (*time.Time, error)
	AdvanceCheckpoint(ctx context.Context, clientID, resource string, ts time.Time) error
	LookupInbound(ctx context.Context, clientID, resource, clientDocID string) (*domain.SyncInbound, error)
	RecordTombstone(ctx context.Context, resource, entityID string, deletedAt *time.Time) error
	IsDeleted(ctx context.Context, resource, entityID string) (bool, error)
	TombstonesSince(ctx context.Context, resources []string, since *time.Time, limit int) ([]domain.Tombstone, error)
	PurgeTombstonesBefore(ctx context.Context, threshold time.Time) (int64, error)
	PurgeStaleClients(ctx context.Context, cutoff time.Time) (int64, error)
	RemoveEntityRow(ctx context.Context, resource, entityID string) error
	ProductsChangedSince(ctx context.Context, since *time.Time, limit int) ([]domain.Product, error)
	ProductUomsChangedSince(ctx context.Context, since *time.Time, limit int) ([]domain.ProductUom, error)
	BarcodesChangedSince(ctx context.Context, since *time.Time, limit int) ([]domain.Barcode, error)
	PricesChangedSince(ctx context.Context, since *time.Time, limit int) ([]domain.Price, error)
	CustomersChangedSince(ctx context.Context, since *time.Time, limit int) ([]domain.Customer, error)
	LocationsChangedSince(ctx context.Context, since *time.Time, limit int) ([]domain.Location, error)

	// Audit.
	InsertAudit(ctx context.Context, action string, refID, actor *string, details string) error
	ListAudit(ctx context.Context, limit, offset int) ([]domain.AuditEntry, error)
}

var _ Store = (*repository.Repository)(nil)

package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"backend/internal/domain"
	"backend/internal/repository"
)

// Master is the back-office CRUD surface. Writes stamp updated_at server-side
// so devices pick them up on the next pull; deletes go through the tombstone
// path so a stale device cannot resurrect the row.
type Master struct {
	store Store
	log   *logrus.Logger
}

func NewMaster(store Store, log *logrus.Logger) *Master {
	return &Master{store: store, log: log}
}

type ProductRequest struct {
	SKU     string `json:"sku" validate:"required"`
	Name    string `json:"name" validate:"required"`
	BaseUom string `json:"base_uom" validate:"required"`
	Active  *bool  `json:"active"`
}

func (m *Master) CreateProduct(ctx context.Context, req ProductRequest) (*domain.Product, error) {
	if existing, err := m.store.ProductBySKU(ctx, req.SKU); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	} else if existing != nil {
		return nil, domain.Duplicatef("sku %s already exists", req.SKU)
	}

	product := domain.Product{
		ID: uuid.NewString(), SKU: req.SKU, Name: req.Name,
		BaseUom: req.BaseUom, Active: true,
	}
	if req.Active != nil {
		product.Active = *req.Active
	}
	if err := m.store.CreateProduct(ctx, product); err != nil {
		return nil, err
	}

	// The base unit always converts 1:1 to itself. Registering it here
	// means a product is sellable in its base unit without extra setup.
	if err := m.store.CreateProductUom(ctx, domain.ProductUom{
		ProductID: product.ID, Uom: product.BaseUom, ToBase: 1,
	}); err != nil {
		return nil, err
	}
	return &product, nil
}

func (m *Master) UpdateProduct(ctx context.Context, id string, req ProductRequest) (*domain.Product, error) {
	existing, err := m.store.ProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFoundf("product %s not found", id)
		}
		return nil, err
	}
	if req.BaseUom != existing.BaseUom {
		return nil, domain.Validationf("base uom is immutable once the product has a ledger identity")
	}

	product := domain.Product{
		ID: id, SKU: req.SKU, Name: req.Name, BaseUom: existing.BaseUom,
		Active: existing.Active,
	}
	if req.Active != nil {
		product.Active = *req.Active
	}
	if err := m.store.UpdateProduct(ctx, product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (m *Master) GetProduct(ctx context.Context, id string) (*domain.Product, []domain.ProductUom, error) {
	product, err := m.store.ProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, domain.NotFoundf("product %s not found", id)
		}
		return nil, nil, err
	}
	uoms, err := m.store.UomRows(ctx, []string{id})
	if err != nil {
		return nil, nil, err
	}
	return product, uoms, nil
}

func (m *Master) ListProducts(ctx context.Context, search string, limit, offset int) ([]domain.Product, error) {
	return m.store.ListProducts(ctx, search, limit, offset)
}

func (m *Master) DeleteProduct(ctx context.Context, id string) error {
	if _, err := m.store.ProductByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NotFoundf("product %s not found", id)
		}
		return err
	}
	return m.deleteEntity(ctx, domain.ResourceProducts, id)
}

type ProductUomRequest struct {
	Uom    string `json:"uom" validate:"required"`
	ToBase int64  `json:"to_base" validate:"gt=0"`
}

func (m *Master) PutProductUom(ctx context.Context, productID string, req ProductUomRequest) (*domain.ProductUom, error) {
	if _, err := m.store.ProductByID(ctx, productID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFoundf("product %s not found", productID)
		}
		return nil, err
	}

	record := domain.ProductUom{ProductID: productID, Uom: req.Uom, ToBase: req.ToBase}
	existing, err := m.store.ProductUomByKey(ctx, productID, req.Uom)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if existing == nil {
		if err := m.store.CreateProductUom(ctx, record); err != nil {
			return nil, err
		}
		return &record, nil
	}
	if err := m.store.UpdateProductUom(ctx, record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (m *Master) DeleteProductUom(ctx context.Context, productID, uomName string) error {
	product, err := m.store.ProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NotFoundf("product %s not found", productID)
		}
		return err
	}
	if uomName == product.BaseUom {
		return domain.Validationf("the base uom registration cannot be removed")
	}
	return m.deleteEntity(ctx, domain.ResourceProductUoms, domain.LineKey(productID, uomName))
}

type BarcodeRequest struct {
	Code      string `json:"code" validate:"required"`
	ProductID string `json:"product_id" validate:"required"`
	Uom       string `json:"uom" validate:"required"`
}

func (m *Master) PutBarcode(ctx context.Context, req BarcodeRequest) (*domain.Barcode, error) {
	if _, err := m.store.ProductUomByKey(ctx, req.ProductID, req.Uom); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.UomNotRegistered(req.ProductID, req.Uom)
		}
		return nil, err
	}

	record := domain.Barcode{Code: req.Code, ProductID: req.ProductID, Uom: req.Uom}
	existing, err := m.store.BarcodeByCode(ctx, req.Code)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if existing == nil {
		if err := m.store.CreateBarcode(ctx, record); err != nil {
			return nil, err
		}
		return &record, nil
	}
	if err := m.store.UpdateBarcode(ctx, record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (m *Master) DeleteBarcode(ctx context.Context, code string) error {
	if _, err := m.store.BarcodeByCode(ctx, code); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NotFoundf("barcode %s not found", code)
		}
		return err
	}
	return m.deleteEntity(ctx, domain.ResourceBarcodes, code)
}

type PriceRequest struct {
	ProductID string  `json:"product_id" validate:"required"`
	Uom       string  `json:"uom" validate:"required"`
	Price     float64 `json:"price" validate:"gte=0"`
}

func (m *Master) PutPrice(ctx context.Context, req PriceRequest) (*domain.Price, error) {
	if _, err := m.store.ProductUomByKey(ctx, req.ProductID, req.Uom); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.UomNotRegistered(req.ProductID, req.Uom)
		}
		return nil, err
	}

	record := domain.Price{ProductID: req.ProductID, Uom: req.Uom, Price: req.Price}
	existing, err := m.store.PriceByKey(ctx, req.ProductID, req.Uom)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if existing == nil {
		if err := m.store.CreatePrice(ctx, record); err != nil {
			return nil, err
		}
		return &record, nil
	}
	if err := m.store.UpdatePrice(ctx, record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (m *Master) DeletePrice(ctx context.Context, productID, uomName string) error {
	if _, err := m.store.PriceByKey(ctx, productID, uomName); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NotFoundf("price %s/%s not found", productID, uomName)
		}
		return err
	}
	return m.deleteEntity(ctx, domain.ResourcePrices, domain.LineKey(productID, uomName))
}

type CustomerRequest struct {
	Name       string  `json:"name" validate:"required"`
	Phone      *string `json:"phone"`
	Email      *string `json:"email" validate:"omitempty,email"`
	MemberCode *string `json:"member_code"`
}

func (m *Master) CreateCustomer(ctx context.Context, req CustomerRequest) (*domain.Customer, error) {
	customer := domain.Customer{
		ID: uuid.NewString(), Name: req.Name,
		Phone: normalizeOptional(req.Phone), Email: normalizeOptional(req.Email),
		MemberCode: normalizeOptional(req.MemberCode),
	}
	if err := m.store.CreateCustomer(ctx, customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (m *Master) UpdateCustomer(ctx context.Context, id string, req CustomerRequest) (*domain.Customer, error) {
	if _, err := m.store.CustomerByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFoundf("customer %s not found", id)
		}
		return nil, err
	}
	customer := domain.Customer{
		ID: id, Name: req.Name,
		Phone: normalizeOptional(req.Phone), Email: normalizeOptional(req.Email),
		MemberCode: normalizeOptional(req.MemberCode),
	}
	if err := m.store.UpdateCustomer(ctx, customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (m *Master) ListCustomers(ctx context.Context, search string, limit, offset int) ([]domain.Customer, error) {
	return m.store.ListCustomers(ctx, search, limit, offset)
}

func (m *Master) DeleteCustomer(ctx context.Context, id string) error {
	if _, err := m.store.CustomerByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NotFoundf("customer %s not found", id)
		}
		return err
	}
	return m.deleteEntity(ctx, domain.ResourceCustomers, id)
}

type LocationRequest struct {
	Code string `json:"code" validate:"required"`
	Name string `json:"name" validate:"required"`
}

func (m *Master) CreateLocation(ctx context.Context, req LocationRequest) (*domain.Location, error) {
	if existing, err := m.store.LocationByCode(ctx, req.Code); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	} else if existing != nil {
		return nil, domain.Duplicatef("location code %s already exists", req.Code)
	}

	location := domain.Location{ID: uuid.NewString(), Code: req.Code, Name: req.Name}
	if err := m.store.CreateLocation(ctx, location); err != nil {
		return nil, err
	}
	return &location, nil
}

func (m *Master) UpdateLocation(ctx context.Context, id string, req LocationRequest) (*domain.Location, error) {
	if _, err := m.store.LocationByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFoundf("location %s not found", id)
		}
		return nil, err
	}
	location := domain.Location{ID: id, Code: req.Code, Name: req.Name}
	if err := m.store.UpdateLocation(ctx, location); err != nil {
		return nil, err
	}
	return &location, nil
}

func (m *Master) ListLocations(ctx context.Context) ([]domain.Location, error) {
	return m.store.ListLocations(ctx)
}

func (m *Master) DeleteLocation(ctx context.Context, id string) error {
	if _, err := m.store.LocationByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NotFoundf("location %s not found", id)
		}
		return err
	}
	return m.deleteEntity(ctx, domain.ResourceLocations, id)
}

func (m *Master) ListAudit(ctx context.Context, limit, offset int) ([]domain.AuditEntry, error) {
	return m.store.ListAudit(ctx, limit, offset)
}

// deleteEntity records the tombstone first, then removes the row best-effort.
// Ledger history may keep the row pinned by foreign keys; the tombstone alone
// carries the logical deletion in that case.
func (m *Master) deleteEntity(ctx context.Context, resource, entityID string) error {
	now := time.Now().UTC()
	if err := m.store.RecordTombstone(ctx, resource, entityID, &now); err != nil {
		return err
	}
	if err := m.store.RemoveEntityRow(ctx, resource, entityID); err != nil {
		m.log.WithFields(logrus.Fields{"resource": resource, "entity": entityID}).
			WithError(err).Warn("tombstoned row could not be removed")
	}
	return nil
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

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

// Sync serves the pull responder and the master-data reconciler.
type Sync struct {
	store     Store
	log       *logrus.Logger
	pullLimit int
}

func NewSync(store Store, log *logrus.Logger, pullLimit int) *Sync {
	if pullLimit <= 0 {
		pullLimit = 500
	}
	return &Sync{store: store, log: log, pullLimit: pullLimit}
}

// RegisterDevice records first/last contact for the device and returns its
// client row. Called by every sync endpoint.
func (s *Sync) RegisterDevice(ctx context.Context, deviceID string, userAgent *string) (*domain.SyncClient, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, domain.Validationf("x-device-id header is required")
	}
	return s.store.EnsureClient(ctx, uuid.NewString(), deviceID, userAgent)
}

type PullResult struct {
	Data           map[string]any     `json:"data"`
	Tombstones     []domain.Tombstone `json:"tombstones"`
	NextCheckpoint time.Time          `json:"nextCheckpoint"`
}

// Pull assembles an incremental snapshot for the device. The checkpoint
// target is captured once, before the per-resource queries, so advancement is
// not skewed by query latency; it advances even when no rows changed. An
// explicit since overrides the stored checkpoint so a client truncated by
// limit can re-pull the same window.
func (s *Sync) Pull(ctx context.Context, clientID string, resources []string, since *time.Time, limit int) (*PullResult, error) {
	if limit <= 0 || limit > s.pullLimit {
		limit = s.pullLimit
	}
	if len(resources) == 0 {
		resources = domain.SyncResources
	}

	now := time.Now().UTC()
	data := make(map[string]any, len(resources))

	// Checkpoints may only advance once every query has succeeded: a failed
	// pull returns nothing to the device, and advancing early would hide the
	// already-queried rows from every later pull.
	for _, resource := range resources {
		effSince := since
		if effSince == nil {
			checkpoint, err := s.store.CheckpointSince(ctx, clientID, resource)
			if err != nil {
				return nil, err
			}
			effSince = checkpoint
		}

		rows, err := s.changedRows(ctx, resource, effSince, limit)
		if err != nil {
			return nil, err
		}
		data[resource] = rows
	}

	tombstones, err := s.store.TombstonesSince(ctx, resources, since, limit)
	if err != nil {
		return nil, err
	}
	if tombstones == nil {
		tombstones = []domain.Tombstone{}
	}

	for _, resource := range resources {
		if err := s.store.AdvanceCheckpoint(ctx, clientID, resource, now); err != nil {
			return nil, err
		}
	}

	return &PullResult{Data: data, Tombstones: tombstones, NextCheckpoint: now}, nil
}

func (s *Sync) changedRows(ctx context.Context, resource string, since *time.Time, limit int) (any, error) {
	switch resource {
	case domain.ResourceProducts:
		return s.store.ProductsChangedSince(ctx, since, limit)
	case domain.ResourceProductUoms:
		return s.store.ProductUomsChangedSince(ctx, since, limit)
	case domain.ResourceBarcodes:
		return s.store.BarcodesChangedSince(ctx, since, limit)
	case domain.ResourcePrices:
		return s.store.PricesChangedSince(ctx, since, limit)
	case domain.ResourceCustomers:
		return s.store.CustomersChangedSince(ctx, since, limit)
	case domain.ResourceLocations:
		return s.store.LocationsChangedSince(ctx, since, limit)
	default:
		return nil, domain.Validationf("unknown resource %q", resource)
	}
}

// Wire records for /sync/push. Field names follow the device protocol
// (camelCase), unlike the snake_case back-office API.

type ProductIn struct {
	ID        string     `json:"id"`
	SKU       string     `json:"sku" validate:"required"`
	Name      string     `json:"name" validate:"required"`
	BaseUom   string     `json:"baseUom" validate:"required"`
	Active    *bool      `json:"active"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

type ProductUomIn struct {
	ProductID string     `json:"productId" validate:"required"`
	Uom       string     `json:"uom" validate:"required"`
	ToBase    int64      `json:"toBase" validate:"gt=0"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

type BarcodeIn struct {
	Code      string     `json:"code" validate:"required"`
	ProductID string     `json:"productId" validate:"required"`
	Uom       string     `json:"uom" validate:"required"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

type PriceIn struct {
	ProductID string     `json:"productId" validate:"required"`
	Uom       string     `json:"uom" validate:"required"`
	Price     float64    `json:"price" validate:"gte=0"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

type CustomerIn struct {
	ID         string     `json:"id"`
	Name       string     `json:"name" validate:"required"`
	Phone      *string    `json:"phone"`
	Email      *string    `json:"email"`
	MemberCode *string    `json:"memberCode"`
	UpdatedAt  *time.Time `json:"updatedAt"`
}

type LocationIn struct {
	ID        string     `json:"id"`
	Code      string     `json:"code" validate:"required"`
	Name      string     `json:"name" validate:"required"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

type DeleteIn struct {
	Resource  string     `json:"resource" validate:"required"`
	ID        string     `json:"id" validate:"required"`
	DeletedAt *time.Time `json:"deletedAt"`
}

type PushRequest struct {
	Products    []ProductIn    `json:"products"`
	ProductUoms []ProductUomIn `json:"productUoms"`
	Barcodes    []BarcodeIn    `json:"barcodes"`
	Prices      []PriceIn      `json:"prices"`
	Customers   []CustomerIn   `json:"customers"`
	Locations   []LocationIn   `json:"locations"`
	Deletes     []DeleteIn     `json:"deletes"`
}

// Push applies master-data edits with last-write-wins. Deletes are processed
// first, so a delete in the batch suppresses a create for the same id. One
// bad record never aborts its siblings: failures are counted and logged.
func (s *Sync) Push(ctx context.Context, clientID string, req PushRequest) (map[string]domain.ApplySummary, error) {
	summary := map[string]domain.ApplySummary{}
	bump := func(resource string, update func(*domain.ApplySummary)) {
		entry := summary[resource]
		update(&entry)
		summary[resource] = entry
	}

	for _, del := range req.Deletes {
		if err := s.applyDelete(ctx, del); err != nil {
			s.log.WithFields(logrus.Fields{"resource": del.Resource, "entity": del.ID, "client": clientID}).
				WithError(err).Warn("push delete failed")
			bump(del.Resource, func(e *domain.ApplySummary) { e.Errors++ })
			continue
		}
		bump(del.Resource, func(e *domain.ApplySummary) { e.Deleted++ })
	}

	for _, in := range req.Products {
		s.applyCounted(ctx, clientID, domain.ResourceProducts, bump, func() (applyOutcome, error) {
			return s.applyProduct(ctx, in)
		})
	}
	for _, in := range req.ProductUoms {
		s.applyCounted(ctx, clientID, domain.ResourceProductUoms, bump, func() (applyOutcome, error) {
			return s.applyProductUom(ctx, in)
		})
	}
	for _, in := range req.Barcodes {
		s.applyCounted(ctx, clientID, domain.ResourceBarcodes, bump, func() (applyOutcome, error) {
			return s.applyBarcode(ctx, in)
		})
	}
	for _, in := range req.Prices {
		s.applyCounted(ctx, clientID, domain.ResourcePrices, bump, func() (applyOutcome, error) {
			return s.applyPrice(ctx, in)
		})
	}
	for _, in := range req.Customers {
		s.applyCounted(ctx, clientID, domain.ResourceCustomers, bump, func() (applyOutcome, error) {
			return s.applyCustomer(ctx, in)
		})
	}
	for _, in := range req.Locations {
		s.applyCounted(ctx, clientID, domain.ResourceLocations, bump, func() (applyOutcome, error) {
			return s.applyLocation(ctx, in)
		})
	}

	return summary, nil
}

type applyOutcome int

const (
	outcomeCreated applyOutcome = iota
	outcomeUpdated
	outcomeSkipped
)

func (s *Sync) applyCounted(ctx context.Context, clientID, resource string, bump func(string, func(*domain.ApplySummary)), apply func() (applyOutcome, error)) {
	outcome, err := apply()
	if err != nil {
		s.log.WithFields(logrus.Fields{"resource": resource, "client": clientID}).
			WithError(err).Warn("push record failed")
		bump(resource, func(e *domain.ApplySummary) { e.Errors++ })
		return
	}
	switch outcome {
	case outcomeCreated:
		bump(resource, func(e *domain.ApplySummary) { e.Created++ })
	case outcomeUpdated:
		bump(resource, func(e *domain.ApplySummary) { e.Updated++ })
	case outcomeSkipped:
		bump(resource, func(e *domain.ApplySummary) { e.Skipped++ })
	}
}

func (s *Sync) applyDelete(ctx context.Context, del DeleteIn) error {
	resource := strings.TrimSpace(del.Resource)
	if !isSyncResource(resource) {
		return domain.Validationf("unknown resource %q", resource)
	}
	if err := s.store.RecordTombstone(ctx, resource, del.ID, del.DeletedAt); err != nil {
		return err
	}
	// Row removal is best-effort: the tombstone alone carries the logical
	// deletion when ledger history still references the row.
	if err := s.store.RemoveEntityRow(ctx, resource, del.ID); err != nil {
		s.log.WithFields(logrus.Fields{"resource": resource, "entity": del.ID}).
			WithError(err).Warn("tombstoned row could not be removed")
	}
	return nil
}

// resolveFirst tries candidate key resolvers in order and stops at the first
// hit. The ordered list keeps resource-specific lookup chains auditable.
func resolveFirst[T any](ctx context.Context, resolvers []func(context.Context) (*T, error)) (*T, error) {
	for _, resolve := range resolvers {
		hit, err := resolve(ctx)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if hit != nil {
			return hit, nil
		}
	}
	return nil, nil
}

func (s *Sync) applyProduct(ctx context.Context, in ProductIn) (applyOutcome, error) {
	if skipped, err := s.tombstoned(ctx, domain.ResourceProducts, in.ID); skipped || err != nil {
		return outcomeSkipped, err
	}

	existing, err := resolveFirst(ctx, []func(context.Context) (*domain.Product, error){
		func(ctx context.Context) (*domain.Product, error) {
			if in.ID == "" {
				return nil, repository.ErrNotFound
			}
			return s.store.ProductByID(ctx, in.ID)
		},
		func(ctx context.Context) (*domain.Product, error) {
			return s.store.ProductBySKU(ctx, in.SKU)
		},
	})
	if err != nil {
		return outcomeSkipped, err
	}

	active := true
	if in.Active != nil {
		active = *in.Active
	}

	if existing == nil {
		id := in.ID
		if id == "" {
			id = uuid.NewString()
		}
		return outcomeCreated, s.store.CreateProduct(ctx, domain.Product{
			ID: id, SKU: in.SKU, Name: in.Name, BaseUom: in.BaseUom,
			Active: active, UpdatedAt: in.UpdatedAt,
		})
	}

	if skipped, err := s.tombstoned(ctx, domain.ResourceProducts, existing.ID); skipped || err != nil {
		return outcomeSkipped, err
	}
	if !lwwApplies(existing.UpdatedAt, in.UpdatedAt) {
		return outcomeSkipped, nil
	}
	return outcomeUpdated, s.store.UpdateProduct(ctx, domain.Product{
		ID: existing.ID, SKU: in.SKU, Name: in.Name, BaseUom: in.BaseUom,
		Active: active, UpdatedAt: in.UpdatedAt,
	})
}

func (s *Sync) applyProductUom(ctx context.Context, in ProductUomIn) (applyOutcome, error) {
	entityID := domain.LineKey(in.ProductID, in.Uom)
	if skipped, err := s.tombstoned(ctx, domain.ResourceProductUoms, entityID); skipped || err != nil {
		return outcomeSkipped, err
	}
	if in.ToBase <= 0 {
		return outcomeSkipped, domain.Validationf("toBase must be a positive integer")
	}

	existing, err := s.store.ProductUomByKey(ctx, in.ProductID, in.Uom)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return outcomeSkipped, err
	}

	record := domain.ProductUom{ProductID: in.ProductID, Uom: in.Uom, ToBase: in.ToBase, UpdatedAt: in.UpdatedAt}
	if existing == nil {
		return outcomeCreated, s.store.CreateProductUom(ctx, record)
	}
	if !lwwApplies(existing.UpdatedAt, in.UpdatedAt) {
		return outcomeSkipped, nil
	}
	return outcomeUpdated, s.store.UpdateProductUom(ctx, record)
}

func (s *Sync) applyBarcode(ctx context.Context, in BarcodeIn) (applyOutcome, error) {
	if skipped, err := s.tombstoned(ctx, domain.ResourceBarcodes, in.Code); skipped || err != nil {
		return outcomeSkipped, err
	}

	existing, err := s.store.BarcodeByCode(ctx, in.Code)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return outcomeSkipped, err
	}

	record := domain.Barcode{Code: in.Code, ProductID: in.ProductID, Uom: in.Uom, UpdatedAt: in.UpdatedAt}
	if existing == nil {
		return outcomeCreated, s.store.CreateBarcode(ctx, record)
	}
	if !lwwApplies(existing.UpdatedAt, in.UpdatedAt) {
		return outcomeSkipped, nil
	}
	return outcomeUpdated, s.store.UpdateBarcode(ctx, record)
}

func (s *Sync) applyPrice(ctx context.Context, in PriceIn) (applyOutcome, error) {
	entityID := domain.LineKey(in.ProductID, in.Uom)
	if skipped, err := s.tombstoned(ctx, domain.ResourcePrices, entityID); skipped || err != nil {
		return outcomeSkipped, err
	}

	existing, err := s.store.PriceByKey(ctx, in.ProductID, in.Uom)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return outcomeSkipped, err
	}

	record := domain.Price{ProductID: in.ProductID, Uom: in.Uom, Price: in.Price, UpdatedAt: in.UpdatedAt}
	if existing == nil {
		return outcomeCreated, s.store.CreatePrice(ctx, record)
	}
	if !lwwApplies(existing.UpdatedAt, in.UpdatedAt) {
		return outcomeSkipped, nil
	}
	return outcomeUpdated, s.store.UpdatePrice(ctx, record)
}

func (s *Sync) applyCustomer(ctx context.Context, in CustomerIn) (applyOutcome, error) {
	if skipped, err := s.tombstoned(ctx, domain.ResourceCustomers, in.ID); skipped || err != nil {
		return outcomeSkipped, err
	}

	// Devices that have not yet learned a server id match on the
	// phone -> email -> memberCode chain, in that order.
	existing, err := resolveFirst(ctx, []func(context.Context) (*domain.Customer, error){
		func(ctx context.Context) (*domain.Customer, error) {
			if in.ID == "" {
				return nil, repository.ErrNotFound
			}
			return s.store.CustomerByID(ctx, in.ID)
		},
		func(ctx context.Context) (*domain.Customer, error) {
			if in.Phone == nil || strings.TrimSpace(*in.Phone) == "" {
				return nil, repository.ErrNotFound
			}
			return s.store.CustomerByPhone(ctx, *in.Phone)
		},
		func(ctx context.Context) (*domain.Customer, error) {
			if in.Email == nil || strings.TrimSpace(*in.Email) == "" {
				return nil, repository.ErrNotFound
			}
			return s.store.CustomerByEmail(ctx, *in.Email)
		},
		func(ctx context.Context) (*domain.Customer, error) {
			if in.MemberCode == nil || strings.TrimSpace(*in.MemberCode) == "" {
				return nil, repository.ErrNotFound
			}
			return s.store.CustomerByMemberCode(ctx, *in.MemberCode)
		},
	})
	if err != nil {
		return outcomeSkipped, err
	}

	if existing == nil {
		id := in.ID
		if id == "" {
			id = uuid.NewString()
		}
		return outcomeCreated, s.store.CreateCustomer(ctx, domain.Customer{
			ID: id, Name: in.Name, Phone: in.Phone, Email: in.Email,
			MemberCode: in.MemberCode, UpdatedAt: in.UpdatedAt,
		})
	}

	if skipped, err := s.tombstoned(ctx, domain.ResourceCustomers, existing.ID); skipped || err != nil {
		return outcomeSkipped, err
	}
	if !lwwApplies(existing.UpdatedAt, in.UpdatedAt) {
		return outcomeSkipped, nil
	}
	return outcomeUpdated, s.store.UpdateCustomer(ctx, domain.Customer{
		ID: existing.ID, Name: in.Name, Phone: in.Phone, Email: in.Email,
		MemberCode: in.MemberCode, UpdatedAt: in.UpdatedAt,
	})
}

func (s *Sync) applyLocation(ctx context.Context, in LocationIn) (applyOutcome, error) {
	if skipped, err := s.tombstoned(ctx, domain.ResourceLocations, in.ID); skipped || err != nil {
		return outcomeSkipped, err
	}

	existing, err := resolveFirst(ctx, []func(context.Context) (*domain.Location, error){
		func(ctx context.Context) (*domain.Location, error) {
			if in.ID == "" {
				return nil, repository.ErrNotFound
			}
			return s.store.LocationByID(ctx, in.ID)
		},
		func(ctx context.Context) (*domain.Location, error) {
			return s.store.LocationByCode(ctx, in.Code)
		},
	})
	if err != nil {
		return outcomeSkipped, err
	}

	if existing == nil {
		id := in.ID
		if id == "" {
			id = uuid.NewString()
		}
		return outcomeCreated, s.store.CreateLocation(ctx, domain.Location{
			ID: id, Code: in.Code, Name: in.Name, UpdatedAt: in.UpdatedAt,
		})
	}

	if skipped, err := s.tombstoned(ctx, domain.ResourceLocations, existing.ID); skipped || err != nil {
		return outcomeSkipped, err
	}
	if !lwwApplies(existing.UpdatedAt, in.UpdatedAt) {
		return outcomeSkipped, nil
	}
	return outcomeUpdated, s.store.UpdateLocation(ctx, domain.Location{
		ID: existing.ID, Code: in.Code, Name: in.Name, UpdatedAt: in.UpdatedAt,
	})
}

func (s *Sync) tombstoned(ctx context.Context, resource, entityID string) (bool, error) {
	if entityID == "" {
		return false, nil
	}
	deleted, err := s.store.IsDeleted(ctx, resource, entityID)
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func isSyncResource(resource string) bool {
	for _, known := range domain.SyncResources {
		if known == resource {
			return true
		}
	}
	return false
}

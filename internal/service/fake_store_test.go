package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"backend/internal/domain"
	"backend/internal/repository"
)

// fakeStore is an in-memory Store mirroring the repository's observable
// behavior: sentinel errors, idempotency-key conflicts, GREATEST semantics on
// checkpoints and tombstones, and same-day document numbering.
type fakeStore struct {
	products    map[string]domain.Product
	productUoms map[string]domain.ProductUom
	barcodes    map[string]domain.Barcode
	prices      map[string]domain.Price
	customers   map[string]domain.Customer
	locations   map[string]domain.Location

	moves       []domain.StockMove
	sales       map[string]domain.Sale
	saleLines   map[string][]domain.SaleLine
	payments    map[string][]domain.Payment
	returns     map[string]domain.SaleReturn
	returnLines map[string][]domain.SaleReturnLine
	purchases   map[string]domain.Purchase

	clients     map[string]domain.SyncClient
	checkpoints map[string]time.Time
	inbound     map[string]domain.SyncInbound
	tombstones  map[string]time.Time
	audits      []domain.AuditEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products:    map[string]domain.Product{},
		productUoms: map[string]domain.ProductUom{},
		barcodes:    map[string]domain.Barcode{},
		prices:      map[string]domain.Price{},
		customers:   map[string]domain.Customer{},
		locations:   map[string]domain.Location{},
		sales:       map[string]domain.Sale{},
		saleLines:   map[string][]domain.SaleLine{},
		payments:    map[string][]domain.Payment{},
		returns:     map[string]domain.SaleReturn{},
		returnLines: map[string][]domain.SaleReturnLine{},
		purchases:   map[string]domain.Purchase{},
		clients:     map[string]domain.SyncClient{},
		checkpoints: map[string]time.Time{},
		inbound:     map[string]domain.SyncInbound{},
		tombstones:  map[string]time.Time{},
	}
}

var _ Store = (*fakeStore)(nil)

func (f *fakeStore) ProductByID(_ context.Context, id string) (*domain.Product, error) {
	if p, ok := f.products[id]; ok {
		return &p, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) ProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	for _, p := range f.products {
		if p.SKU == sku {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) CreateProduct(_ context.Context, p domain.Product) error {
	f.products[p.ID] = p
	return nil
}

func (f *fakeStore) UpdateProduct(_ context.Context, p domain.Product) error {
	existing, ok := f.products[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	p.CreatedAt = existing.CreatedAt
	f.products[p.ID] = p
	return nil
}

func (f *fakeStore) ListProducts(_ context.Context, search string, _, _ int) ([]domain.Product, error) {
	out := []domain.Product{}
	for _, p := range f.products {
		if search == "" || strings.Contains(strings.ToLower(p.Name), strings.ToLower(search)) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (f *fakeStore) ProductUomByKey(_ context.Context, productID, uomName string) (*domain.ProductUom, error) {
	if pu, ok := f.productUoms[domain.LineKey(productID, uomName)]; ok {
		return &pu, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) CreateProductUom(_ context.Context, pu domain.ProductUom) error {
	f.productUoms[domain.LineKey(pu.ProductID, pu.Uom)] = pu
	return nil
}

func (f *fakeStore) UpdateProductUom(_ context.Context, pu domain.ProductUom) error {
	key := domain.LineKey(pu.ProductID, pu.Uom)
	if _, ok := f.productUoms[key]; !ok {
		return repository.ErrNotFound
	}
	f.productUoms[key] = pu
	return nil
}

func (f *fakeStore) UomRows(_ context.Context, productIDs []string) ([]domain.ProductUom, error) {
	wanted := map[string]bool{}
	for _, id := range productIDs {
		wanted[id] = true
	}
	out := []domain.ProductUom{}
	for _, pu := range f.productUoms {
		if len(productIDs) == 0 || wanted[pu.ProductID] {
			out = append(out, pu)
		}
	}
	return out, nil
}

func (f *fakeStore) BarcodeByCode(_ context.Context, code string) (*domain.Barcode, error) {
	if b, ok := f.barcodes[code]; ok {
		return &b, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) CreateBarcode(_ context.Context, b domain.Barcode) error {
	f.barcodes[b.Code] = b
	return nil
}

func (f *fakeStore) UpdateBarcode(_ context.Context, b domain.Barcode) error {
	if _, ok := f.barcodes[b.Code]; !ok {
		return repository.ErrNotFound
	}
	f.barcodes[b.Code] = b
	return nil
}

func (f *fakeStore) PriceByKey(_ context.Context, productID, uomName string) (*domain.Price, error) {
	if p, ok := f.prices[domain.LineKey(productID, uomName)]; ok {
		return &p, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) CreatePrice(_ context.Context, p domain.Price) error {
	f.prices[domain.LineKey(p.ProductID, p.Uom)] = p
	return nil
}

func (f *fakeStore) UpdatePrice(_ context.Context, p domain.Price) error {
	key := domain.LineKey(p.ProductID, p.Uom)
	if _, ok := f.prices[key]; !ok {
		return repository.ErrNotFound
	}
	f.prices[key] = p
	return nil
}

func (f *fakeStore) CustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	if c, ok := f.customers[id]; ok {
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) CustomerByPhone(_ context.Context, phone string) (*domain.Customer, error) {
	return f.customerWhere(func(c domain.Customer) bool { return c.Phone != nil && *c.Phone == phone })
}

func (f *fakeStore) CustomerByEmail(_ context.Context, email string) (*domain.Customer, error) {
	return f.customerWhere(func(c domain.Customer) bool { return c.Email != nil && *c.Email == email })
}

func (f *fakeStore) CustomerByMemberCode(_ context.Context, code string) (*domain.Customer, error) {
	return f.customerWhere(func(c domain.Customer) bool { return c.MemberCode != nil && *c.MemberCode == code })
}

func (f *fakeStore) customerWhere(match func(domain.Customer) bool) (*domain.Customer, error) {
	for _, c := range f.customers {
		if match(c) {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) CreateCustomer(_ context.Context, c domain.Customer) error {
	f.customers[c.ID] = c
	return nil
}

func (f *fakeStore) UpdateCustomer(_ context.Context, c domain.Customer) error {
	if _, ok := f.customers[c.ID]; !ok {
		return repository.ErrNotFound
	}
	f.customers[c.ID] = c
	return nil
}

func (f *fakeStore) ListCustomers(_ context.Context, _ string, _, _ int) ([]domain.Customer, error) {
	out := []domain.Customer{}
	for _, c := range f.customers {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) LocationByID(_ context.Context, id string) (*domain.Location, error) {
	if loc, ok := f.locations[id]; ok {
		return &loc, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) LocationByCode(_ context.Context, code string) (*domain.Location, error) {
	for _, loc := range f.locations {
		if loc.Code == code {
			return &loc, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) CreateLocation(_ context.Context, loc domain.Location) error {
	f.locations[loc.ID] = loc
	return nil
}

func (f *fakeStore) UpdateLocation(_ context.Context, loc domain.Location) error {
	if _, ok := f.locations[loc.ID]; !ok {
		return repository.ErrNotFound
	}
	f.locations[loc.ID] = loc
	return nil
}

func (f *fakeStore) ListLocations(_ context.Context) ([]domain.Location, error) {
	out := []domain.Location{}
	for _, loc := range f.locations {
		out = append(out, loc)
	}
	return out, nil
}

func (f *fakeStore) MovesFor(_ context.Context, productID, locationID string) ([]domain.StockMove, error) {
	out := []domain.StockMove{}
	for _, move := range f.moves {
		if move.ProductID == productID && move.LocationID == locationID {
			out = append(out, move)
		}
	}
	return out, nil
}

func (f *fakeStore) MovesByFilter(_ context.Context, productIDs, locationIDs []string) ([]domain.StockMove, error) {
	products := map[string]bool{}
	for _, id := range productIDs {
		products[id] = true
	}
	locations := map[string]bool{}
	for _, id := range locationIDs {
		locations[id] = true
	}
	out := []domain.StockMove{}
	for _, move := range f.moves {
		if len(productIDs) > 0 && !products[move.ProductID] {
			continue
		}
		if len(locationIDs) > 0 && !locations[move.LocationID] {
			continue
		}
		out = append(out, move)
	}
	return out, nil
}

func (f *fakeStore) InsertMoves(_ context.Context, moves []domain.StockMove) error {
	for _, move := range moves {
		if move.CreatedAt.IsZero() {
			move.CreatedAt = time.Now().UTC()
		}
		f.moves = append(f.moves, move)
	}
	return nil
}

func (f *fakeStore) CommitPurchase(ctx context.Context, input repository.CommitPurchaseInput) (*domain.Purchase, error) {
	now := time.Now().UTC()
	sameDay := 0
	for _, p := range f.purchases {
		if sameDate(p.CreatedAt, now) {
			sameDay++
		}
	}
	purchase := input.Purchase
	purchase.DocNo = domain.PurchaseDocNo(now, sameDay+1)
	purchase.CreatedAt = now
	f.purchases[purchase.ID] = purchase
	return &purchase, f.InsertMoves(ctx, input.Moves)
}

func (f *fakeStore) CommitSale(ctx context.Context, input repository.CommitSaleInput) (*domain.Sale, error) {
	if err := f.insertInbound(input.Inbound); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	sameDay := 0
	for _, s := range f.sales {
		if sameDate(s.CreatedAt, now) && s.CashierCode == input.Sale.CashierCode {
			sameDay++
		}
	}
	sale := input.Sale
	sale.DocNo = domain.SaleDocNo(now, sale.CashierCode, sameDay+1)
	sale.CreatedAt = now
	f.sales[sale.ID] = sale
	f.saleLines[sale.ID] = input.Lines
	f.payments[sale.ID] = input.Payments
	return &sale, f.InsertMoves(ctx, input.Moves)
}

func (f *fakeStore) CommitReturn(ctx context.Context, input repository.CommitReturnInput) (*domain.SaleReturn, error) {
	if err := f.insertInbound(input.Inbound); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	sameDay := 0
	for _, r := range f.returns {
		if sameDate(r.CreatedAt, now) {
			sameDay++
		}
	}
	ret := input.Return
	ret.DocNo = domain.ReturnDocNo(now, sameDay+1)
	ret.CreatedAt = now
	f.returns[ret.ID] = ret
	f.returnLines[ret.ID] = input.Lines
	f.payments[ret.ID] = input.Refunds
	return &ret, f.InsertMoves(ctx, input.Moves)
}

func (f *fakeStore) SaleForReturn(ctx context.Context, saleID string) (*domain.Sale, []domain.SaleLine, map[string]float64, error) {
	sale, err := f.SaleByID(ctx, saleID)
	if err != nil {
		return nil, nil, nil, err
	}
	returned := map[string]float64{}
	for returnID, ret := range f.returns {
		if ret.SaleID != saleID {
			continue
		}
		for _, line := range f.returnLines[returnID] {
			returned[domain.LineKey(line.ProductID, line.Uom)] += line.Qty
		}
	}
	return sale, f.saleLines[saleID], returned, nil
}

func (f *fakeStore) SaleByID(_ context.Context, id string) (*domain.Sale, error) {
	if sale, ok := f.sales[id]; ok {
		return &sale, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) SaleDetail(ctx context.Context, id string) (*domain.Sale, []domain.SaleLine, []domain.Payment, error) {
	sale, err := f.SaleByID(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	return sale, f.saleLines[id], f.payments[id], nil
}

func (f *fakeStore) ListSales(_ context.Context, from, to *time.Time, _, _ int) ([]domain.Sale, error) {
	out := []domain.Sale{}
	for _, sale := range f.sales {
		if from != nil && sale.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && sale.CreatedAt.After(*to) {
			continue
		}
		out = append(out, sale)
	}
	return out, nil
}

func (f *fakeStore) EnsureClient(_ context.Context, id, deviceID string, userAgent *string) (*domain.SyncClient, error) {
	if client, ok := f.clients[deviceID]; ok {
		client.LastSeen = time.Now().UTC()
		client.UserAgent = userAgent
		f.clients[deviceID] = client
		return &client, nil
	}
	now := time.Now().UTC()
	client := domain.SyncClient{ID: id, DeviceID: deviceID, UserAgent: userAgent, FirstSeen: now, LastSeen: now}
	f.clients[deviceID] = client
	return &client, nil
}

func (f *fakeStore) CheckpointSince(_ context.Context, clientID, resource string) (*time.Time, error) {
	if since, ok := f.checkpoints[clientID+"|"+resource]; ok {
		return &since, nil
	}
	return nil, nil
}

func (f *fakeStore) AdvanceCheckpoint(_ context.Context, clientID, resource string, ts time.Time) error {
	key := clientID + "|" + resource
	if current, ok := f.checkpoints[key]; !ok || ts.After(current) {
		f.checkpoints[key] = ts
	}
	return nil
}

func (f *fakeStore) LookupInbound(_ context.Context, clientID, resource, clientDocID string) (*domain.SyncInbound, error) {
	if row, ok := f.inbound[clientID+"|"+resource+"|"+clientDocID]; ok {
		return &row, nil
	}
	return nil, nil
}

func (f *fakeStore) insertInbound(inbound *domain.SyncInbound) error {
	if inbound == nil {
		return nil
	}
	key := inbound.ClientID + "|" + inbound.Resource + "|" + inbound.ClientDocID
	if _, ok := f.inbound[key]; ok {
		return repository.ErrDuplicate
	}
	row := *inbound
	row.CreatedAt = time.Now().UTC()
	f.inbound[key] = row
	return nil
}

func (f *fakeStore) RecordTombstone(_ context.Context, resource, entityID string, deletedAt *time.Time) error {
	ts := time.Now().UTC()
	if deletedAt != nil {
		ts = *deletedAt
	}
	key := resource + "|" + entityID
	if current, ok := f.tombstones[key]; !ok || ts.After(current) {
		f.tombstones[key] = ts
	}
	return nil
}

func (f *fakeStore) IsDeleted(_ context.Context, resource, entityID string) (bool, error) {
	_, ok := f.tombstones[resource+"|"+entityID]
	return ok, nil
}

func (f *fakeStore) TombstonesSince(_ context.Context, resources []string, since *time.Time, _ int) ([]domain.Tombstone, error) {
	wanted := map[string]bool{}
	for _, resource := range resources {
		wanted[resource] = true
	}
	out := []domain.Tombstone{}
	for key, deletedAt := range f.tombstones {
		resource, entityID, _ := strings.Cut(key, "|")
		if len(resources) > 0 && !wanted[resource] {
			continue
		}
		if since != nil && !deletedAt.After(*since) {
			continue
		}
		out = append(out, domain.Tombstone{Resource: resource, EntityID: entityID, DeletedAt: deletedAt})
	}
	return out, nil
}

func (f *fakeStore) PurgeTombstonesBefore(_ context.Context, threshold time.Time) (int64, error) {
	var purged int64
	for key, deletedAt := range f.tombstones {
		if !deletedAt.After(threshold) {
			delete(f.tombstones, key)
			purged++
		}
	}
	return purged, nil
}

func (f *fakeStore) PurgeStaleClients(_ context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	for deviceID, client := range f.clients {
		if client.LastSeen.After(cutoff) {
			continue
		}
		for key := range f.checkpoints {
			if strings.HasPrefix(key, client.ID+"|") {
				delete(f.checkpoints, key)
			}
		}
		for key := range f.inbound {
			if strings.HasPrefix(key, client.ID+"|") {
				delete(f.inbound, key)
			}
		}
		delete(f.clients, deviceID)
		purged++
	}
	return purged, nil
}

func (f *fakeStore) RemoveEntityRow(_ context.Context, resource, entityID string) error {
	switch resource {
	case domain.ResourceProducts:
		if p, ok := f.products[entityID]; ok {
			p.Active = false
			f.products[entityID] = p
		}
	case domain.ResourceProductUoms:
		delete(f.productUoms, entityID)
	case domain.ResourceBarcodes:
		delete(f.barcodes, entityID)
	case domain.ResourcePrices:
		delete(f.prices, entityID)
	case domain.ResourceCustomers:
		delete(f.customers, entityID)
	case domain.ResourceLocations:
		delete(f.locations, entityID)
	}
	return nil
}

func (f *fakeStore) ProductsChangedSince(_ context.Context, since *time.Time, _ int) ([]domain.Product, error) {
	out := []domain.Product{}
	for _, p := range f.products {
		if changedSince(p.UpdatedAt, since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ProductUomsChangedSince(_ context.Context, since *time.Time, _ int) ([]domain.ProductUom, error) {
	out := []domain.ProductUom{}
	for _, pu := range f.productUoms {
		if changedSince(pu.UpdatedAt, since) {
			out = append(out, pu)
		}
	}
	return out, nil
}

func (f *fakeStore) BarcodesChangedSince(_ context.Context, since *time.Time, _ int) ([]domain.Barcode, error) {
	out := []domain.Barcode{}
	for _, b := range f.barcodes {
		if changedSince(b.UpdatedAt, since) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) PricesChangedSince(_ context.Context, since *time.Time, _ int) ([]domain.Price, error) {
	out := []domain.Price{}
	for _, p := range f.prices {
		if changedSince(p.UpdatedAt, since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) CustomersChangedSince(_ context.Context, since *time.Time, _ int) ([]domain.Customer, error) {
	out := []domain.Customer{}
	for _, c := range f.customers {
		if changedSince(c.UpdatedAt, since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) LocationsChangedSince(_ context.Context, since *time.Time, _ int) ([]domain.Location, error) {
	out := []domain.Location{}
	for _, loc := range f.locations {
		if changedSince(loc.UpdatedAt, since) {
			out = append(out, loc)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertAudit(_ context.Context, action string, refID, actor *string, details string) error {
	f.audits = append(f.audits, domain.AuditEntry{
		ID: int64(len(f.audits) + 1), Action: action, RefID: refID, Actor: actor,
		Details: details, CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (f *fakeStore) ListAudit(_ context.Context, _, _ int) ([]domain.AuditEntry, error) {
	return append([]domain.AuditEntry{}, f.audits...), nil
}

// changedSince mirrors the SQL predicate: a NULL updated_at row only shows up
// on a full (nil since) pull.
func changedSince(updatedAt, since *time.Time) bool {
	if since == nil {
		return true
	}
	return updatedAt != nil && updatedAt.After(*since)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"backend/internal/domain"
	"backend/internal/ledger"
	"backend/internal/repository"
	"backend/internal/uom"
)

// POS ingests sale and return documents pushed by devices and serves the
// ledger-backed stock operations of the back office.
type POS struct {
	store Store
	log   *logrus.Logger
}

func NewPOS(store Store, log *logrus.Logger) *POS {
	return &POS{store: store, log: log}
}

// Device wire records, camelCase like the master-data push.

type SaleLineIn struct {
	ProductID string  `json:"productId" validate:"required"`
	Uom       string  `json:"uom" validate:"required"`
	Qty       float64 `json:"qty" validate:"gt=0"`
	Price     float64 `json:"price" validate:"gte=0"`
	Discount  float64 `json:"discount" validate:"gte=0"`
}

type PaymentIn struct {
	Method string  `json:"method" validate:"required,oneof=CASH NON_CASH"`
	Amount float64 `json:"amount" validate:"gt=0"`
}

type SaleIn struct {
	ClientDocID  string       `json:"clientDocId" validate:"required"`
	CashierCode  string       `json:"cashierCode" validate:"required"`
	LocationCode string       `json:"locationCode" validate:"required"`
	CustomerID   *string      `json:"customerId"`
	Discount     float64      `json:"discount" validate:"gte=0"`
	Tax          float64      `json:"tax" validate:"gte=0"`
	Lines        []SaleLineIn `json:"lines" validate:"required,min=1,dive"`
	Payments     []PaymentIn  `json:"payments" validate:"required,min=1,dive"`
}

type ReturnLineIn struct {
	ProductID string  `json:"productId" validate:"required"`
	Uom       string  `json:"uom" validate:"required"`
	Qty       float64 `json:"qty" validate:"gt=0"`
	Price     float64 `json:"price" validate:"gte=0"`
}

type ReturnIn struct {
	ClientDocID  string         `json:"clientDocId" validate:"required"`
	SaleID       string         `json:"saleId" validate:"required"`
	LocationCode string         `json:"locationCode" validate:"required"`
	Reason       *string        `json:"reason"`
	Lines        []ReturnLineIn `json:"items" validate:"required,min=1,dive"`
	Refunds      []PaymentIn    `json:"refunds" validate:"dive"`
}

// DocResult reports one pushed document's fate back to the device, keyed by
// the device's own id so it can mark the local row synced.
type DocResult struct {
	ClientDocID string `json:"clientDocId"`
	ServerDocID string `json:"serverDocId,omitempty"`
	DocNo       string `json:"docNo,omitempty"`
	Status      string `json:"status"`
	Error       any    `json:"error,omitempty"`
}

const (
	docStatusApplied   = "applied"
	docStatusDuplicate = "duplicate"
	docStatusRejected  = "rejected"
)

// Documents are validated one by one inside the batch loop, never at the
// request envelope, so a malformed record rejects alone.
var docValidate = validator.New()

func validateDoc(doc any) error {
	err := docValidate.Struct(doc)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		return domain.Validationf("field %s failed on %s", first.Field(), first.Tag())
	}
	return domain.Validationf("%s", err.Error())
}

// PushSales applies a batch of sale documents. Each document is its own
// transaction; a rejected document never blocks its siblings.
func (p *POS) PushSales(ctx context.Context, clientID string, sales []SaleIn) (domain.DocSummary, []DocResult) {
	summary := domain.DocSummary{}
	results := make([]DocResult, 0, len(sales))
	for _, in := range sales {
		result := p.ingestSale(ctx, clientID, in)
		switch result.Status {
		case docStatusApplied:
			summary.Created++
		case docStatusDuplicate:
			summary.Duplicate++
		default:
			summary.Errors++
		}
		results = append(results, result)
	}
	return summary, results
}

func (p *POS) PushReturns(ctx context.Context, clientID string, returns []ReturnIn) (domain.DocSummary, []DocResult) {
	summary := domain.DocSummary{}
	results := make([]DocResult, 0, len(returns))
	for _, in := range returns {
		result := p.ingestReturn(ctx, clientID, in)
		switch result.Status {
		case docStatusApplied:
			summary.Created++
		case docStatusDuplicate:
			summary.Duplicate++
		default:
			summary.Errors++
		}
		results = append(results, result)
	}
	return summary, results
}

func (p *POS) ingestSale(ctx context.Context, clientID string, in SaleIn) DocResult {
	result := DocResult{ClientDocID: in.ClientDocID}

	if err := validateDoc(in); err != nil {
		return p.rejected(result, err, clientID, "sale rejected")
	}

	// Fast duplicate path before any master-data lookup: a replayed document must
	// answer with the original outcome even if master data changed since.
	if prior, err := p.store.LookupInbound(ctx, clientID, domain.ResourceSales, in.ClientDocID); err != nil {
		return p.rejected(result, err, clientID, "sale lookup failed")
	} else if prior != nil {
		return p.duplicate(result, prior)
	}

	location, err := p.store.LocationByCode(ctx, in.LocationCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return p.rejected(result, domain.LocationNotFound(in.LocationCode), clientID, "sale rejected")
		}
		return p.rejected(result, err, clientID, "sale location lookup failed")
	}

	products, resolver, err := p.loadProducts(ctx, saleProductIDs(in.Lines))
	if err != nil {
		return p.rejected(result, err, clientID, "sale rejected")
	}

	// Every line must convert before any stock is checked, so an unknown
	// uom reads as UOM_NOT_REGISTERED rather than a misleading shortage.
	needBase := map[string]float64{}
	for _, line := range in.Lines {
		base, err := resolver.ToBase(line.ProductID, line.Uom, line.Qty)
		if err != nil {
			return p.rejected(result, err, clientID, "sale rejected")
		}
		needBase[line.ProductID] += base
	}

	shortages, err := p.checkStock(ctx, needBase, products, resolver, location.ID)
	if err != nil {
		return p.rejected(result, err, clientID, "sale stock check failed")
	}
	if len(shortages) > 0 {
		return p.rejected(result, domain.StockInsufficient(shortages), clientID, "sale rejected")
	}

	saleID := uuid.NewString()
	lines := make([]domain.SaleLine, 0, len(in.Lines))
	moves := make([]domain.StockMove, 0, len(in.Lines))
	subtotal := decimal.Zero
	for _, line := range in.Lines {
		lineTotal := decimal.NewFromFloat(line.Qty).
			Mul(decimal.NewFromFloat(line.Price)).
			Sub(decimal.NewFromFloat(line.Discount))
		if lineTotal.IsNegative() {
			lineTotal = decimal.Zero
		}
		subtotal = subtotal.Add(lineTotal)
		lines = append(lines, domain.SaleLine{
			ID: uuid.NewString(), SaleID: saleID,
			ProductID: line.ProductID, Uom: line.Uom, Qty: line.Qty,
			Price: line.Price, Discount: line.Discount,
			LineTotal: lineTotal.InexactFloat64(),
		})
		moves = append(moves, domain.StockMove{
			ID: uuid.NewString(), ProductID: line.ProductID, LocationID: location.ID,
			Uom: line.Uom, Qty: -line.Qty, Type: domain.MoveSale, RefID: &saleID,
		})
	}

	total := subtotal.Sub(decimal.NewFromFloat(in.Discount)).Add(decimal.NewFromFloat(in.Tax))
	if total.IsNegative() {
		total = decimal.Zero
	}
	paid := decimal.Zero
	payments := make([]domain.Payment, 0, len(in.Payments))
	for _, pay := range in.Payments {
		paid = paid.Add(decimal.NewFromFloat(pay.Amount))
		payments = append(payments, domain.Payment{
			ID: uuid.NewString(), RefID: saleID,
			Method: pay.Method, Kind: domain.PaymentKindSale, Amount: pay.Amount,
		})
	}
	// Underpayment is the cashier's problem, not the sync layer's: the sale
	// commits as recorded on the device, change clamped at zero.
	change := paid.Sub(total)
	if change.IsNegative() {
		change = decimal.Zero
	}

	sale, err := p.store.CommitSale(ctx, repository.CommitSaleInput{
		Sale: domain.Sale{
			ID: saleID, CashierCode: in.CashierCode, LocationID: location.ID,
			CustomerID: in.CustomerID,
			Subtotal:   subtotal.InexactFloat64(),
			Discount:   in.Discount, Tax: in.Tax,
			Total: total.InexactFloat64(),
			Paid:  paid.InexactFloat64(), Change: change.InexactFloat64(),
		},
		Lines: lines, Payments: payments, Moves: moves,
		Inbound: &domain.SyncInbound{
			ClientID: clientID, Resource: domain.ResourceSales,
			ClientDocID: in.ClientDocID, ServerDocID: saleID, Status: docStatusApplied,
		},
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// A concurrent push of the same document won the race.
			if prior, lookupErr := p.store.LookupInbound(ctx, clientID, domain.ResourceSales, in.ClientDocID); lookupErr == nil && prior != nil {
				return p.duplicate(result, prior)
			}
			return p.rejected(result, domain.Duplicatef("document %s already applied", in.ClientDocID), clientID, "sale duplicate race")
		}
		return p.rejected(result, err, clientID, "sale commit failed")
	}

	p.audit(ctx, "sale.commit", &sale.ID, &in.CashierCode, map[string]any{
		"docNo": sale.DocNo, "clientDocId": in.ClientDocID, "total": sale.Total,
	})

	result.ServerDocID = sale.ID
	result.DocNo = sale.DocNo
	result.Status = docStatusApplied
	return result
}

func (p *POS) ingestReturn(ctx context.Context, clientID string, in ReturnIn) DocResult {
	result := DocResult{ClientDocID: in.ClientDocID}

	if err := validateDoc(in); err != nil {
		return p.rejected(result, err, clientID, "return rejected")
	}

	if prior, err := p.store.LookupInbound(ctx, clientID, domain.ResourceReturns, in.ClientDocID); err != nil {
		return p.rejected(result, err, clientID, "return lookup failed")
	} else if prior != nil {
		return p.duplicate(result, prior)
	}

	location, err := p.store.LocationByCode(ctx, in.LocationCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return p.rejected(result, domain.LocationNotFound(in.LocationCode), clientID, "return rejected")
		}
		return p.rejected(result, err, clientID, "return location lookup failed")
	}

	sale, soldLines, alreadyReturned, err := p.store.SaleForReturn(ctx, in.SaleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return p.rejected(result, domain.NotFoundf("sale %s not found", in.SaleID), clientID, "return rejected")
		}
		return p.rejected(result, err, clientID, "return sale lookup failed")
	}

	// Returnable remainder per (product, uom): sold minus everything any
	// prior return already took back. Unknown keys are returnable zero.
	sold := map[string]float64{}
	for _, line := range soldLines {
		sold[domain.LineKey(line.ProductID, line.Uom)] += line.Qty
	}
	requested := map[string]float64{}
	for _, line := range in.Lines {
		requested[domain.LineKey(line.ProductID, line.Uom)] += line.Qty
	}
	var violations []domain.OverReturn
	for _, line := range in.Lines {
		key := domain.LineKey(line.ProductID, line.Uom)
		returnable := sold[key] - alreadyReturned[key]
		if returnable < 0 {
			returnable = 0
		}
		if requested[key] > returnable+domain.QtyEpsilon {
			violations = append(violations, domain.OverReturn{
				ProductID: line.ProductID, Uom: line.Uom,
				Requested: requested[key], Returnable: returnable,
			})
			delete(requested, key)
		}
	}
	if len(violations) > 0 {
		return p.rejected(result, domain.OverReturnError(violations), clientID, "return rejected")
	}

	returnID := uuid.NewString()
	lines := make([]domain.SaleReturnLine, 0, len(in.Lines))
	moves := make([]domain.StockMove, 0, len(in.Lines))
	total := decimal.Zero
	for _, line := range in.Lines {
		total = total.Add(decimal.NewFromFloat(line.Qty).Mul(decimal.NewFromFloat(line.Price)))
		lines = append(lines, domain.SaleReturnLine{
			ID: uuid.NewString(), ReturnID: returnID,
			ProductID: line.ProductID, Uom: line.Uom, Qty: line.Qty, Price: line.Price,
		})
		moves = append(moves, domain.StockMove{
			ID: uuid.NewString(), ProductID: line.ProductID, LocationID: location.ID,
			Uom: line.Uom, Qty: line.Qty, Type: domain.MoveReturn, RefID: &returnID,
		})
	}

	// Devices may split the refund across methods; without a breakdown the
	// whole amount goes back as cash.
	var refunds []domain.Payment
	if len(in.Refunds) > 0 {
		refunded := decimal.Zero
		for _, refund := range in.Refunds {
			refunded = refunded.Add(decimal.NewFromFloat(refund.Amount))
			refunds = append(refunds, domain.Payment{
				ID: uuid.NewString(), RefID: returnID,
				Method: refund.Method, Kind: domain.PaymentKindRefund, Amount: refund.Amount,
			})
		}
		if refunded.GreaterThan(total) {
			return p.rejected(result, domain.Validationf("refunds %s exceed return total %s", refunded, total), clientID, "return rejected")
		}
	} else {
		refunds = []domain.Payment{{
			ID: uuid.NewString(), RefID: returnID,
			Method: domain.PaymentCash, Kind: domain.PaymentKindRefund,
			Amount: total.InexactFloat64(),
		}}
	}

	ret, err := p.store.CommitReturn(ctx, repository.CommitReturnInput{
		Return: domain.SaleReturn{
			ID: returnID, SaleID: sale.ID, Reason: in.Reason,
			Total: total.InexactFloat64(),
		},
		Lines: lines, Refunds: refunds, Moves: moves,
		Inbound: &domain.SyncInbound{
			ClientID: clientID, Resource: domain.ResourceReturns,
			ClientDocID: in.ClientDocID, ServerDocID: returnID, Status: docStatusApplied,
		},
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			if prior, lookupErr := p.store.LookupInbound(ctx, clientID, domain.ResourceReturns, in.ClientDocID); lookupErr == nil && prior != nil {
				return p.duplicate(result, prior)
			}
			return p.rejected(result, domain.Duplicatef("document %s already applied", in.ClientDocID), clientID, "return duplicate race")
		}
		return p.rejected(result, err, clientID, "return commit failed")
	}

	p.audit(ctx, "return.commit", &ret.ID, nil, map[string]any{
		"docNo": ret.DocNo, "saleId": sale.ID, "clientDocId": in.ClientDocID, "total": ret.Total,
	})

	result.ServerDocID = ret.ID
	result.DocNo = ret.DocNo
	result.Status = docStatusApplied
	return result
}

// StockQuery filters the bulk balance endpoint. Empty slices mean all.
// Locations are addressed by code, matching what devices store locally.
type StockQuery struct {
	ProductIDs    []string `json:"productIds"`
	LocationCodes []string `json:"locationCodes"`
	PerUom        bool     `json:"perUom"`
}

// Stock recomputes balances from the move log, grouped per product and
// location. Unregistered historical uoms contribute zero and are logged.
func (p *POS) Stock(ctx context.Context, query StockQuery) ([]domain.StockSnapshot, error) {
	locationIDs := make([]string, 0, len(query.LocationCodes))
	for _, code := range query.LocationCodes {
		location, err := p.store.LocationByCode(ctx, code)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, domain.LocationNotFound(code)
			}
			return nil, err
		}
		locationIDs = append(locationIDs, location.ID)
	}
	locations, err := p.store.ListLocations(ctx)
	if err != nil {
		return nil, err
	}
	codeByID := make(map[string]string, len(locations))
	for _, location := range locations {
		codeByID[location.ID] = location.Code
	}

	moves, err := p.store.MovesByFilter(ctx, query.ProductIDs, locationIDs)
	if err != nil {
		return nil, err
	}

	productIDs := map[string]bool{}
	for _, move := range moves {
		productIDs[move.ProductID] = true
	}
	uomRows, err := p.store.UomRows(ctx, keysOf(productIDs))
	if err != nil {
		return nil, err
	}
	resolver := uom.NewResolver(uomRows)

	grouped := map[string][]domain.StockMove{}
	for _, move := range moves {
		key := domain.LineKey(move.ProductID, move.LocationID)
		grouped[key] = append(grouped[key], move)
	}

	snapshots := make([]domain.StockSnapshot, 0, len(grouped))
	for _, group := range grouped {
		balance, unknown := ledger.BalanceBase(group, resolver)
		if len(unknown) > 0 {
			p.log.WithField("pairs", unknown).Warn("moves with unregistered uoms excluded from balance")
		}
		last := group[len(group)-1].CreatedAt
		locationLabel := group[0].LocationID
		if code, ok := codeByID[locationLabel]; ok {
			locationLabel = code
		}
		snapshot := domain.StockSnapshot{
			ProductID:   group[0].ProductID,
			Location:    locationLabel,
			BalanceBase: balance,
			LastMoveAt:  &last,
		}
		if query.PerUom {
			snapshot.PerUom = ledger.PerUomBreakdown(group)
		}
		snapshots = append(snapshots, snapshot)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].ProductID != snapshots[j].ProductID {
			return snapshots[i].ProductID < snapshots[j].ProductID
		}
		return snapshots[i].Location < snapshots[j].Location
	})
	return snapshots, nil
}

// Balance returns one product's balance at one location, optionally converted
// into a display unit.
func (p *POS) Balance(ctx context.Context, productID, locationID, displayUom string) (*domain.StockSnapshot, error) {
	moves, err := p.store.MovesFor(ctx, productID, locationID)
	if err != nil {
		return nil, err
	}
	uomRows, err := p.store.UomRows(ctx, []string{productID})
	if err != nil {
		return nil, err
	}
	resolver := uom.NewResolver(uomRows)

	balance, unknown := ledger.BalanceBase(moves, resolver)
	if len(unknown) > 0 {
		p.log.WithField("pairs", unknown).Warn("moves with unregistered uoms excluded from balance")
	}

	snapshot := &domain.StockSnapshot{
		ProductID:   productID,
		Location:    locationID,
		BalanceBase: balance,
		PerUom:      ledger.PerUomBreakdown(moves),
	}
	if len(moves) > 0 {
		last := moves[len(moves)-1].CreatedAt
		snapshot.LastMoveAt = &last
	}
	if displayUom != "" {
		converted, err := resolver.FromBase(productID, displayUom, balance)
		if err != nil {
			return nil, err
		}
		snapshot.PerUom = append(snapshot.PerUom, domain.UomBalance{Uom: displayUom, RawQty: converted})
	}
	return snapshot, nil
}

type PurchaseLineIn struct {
	ProductID string  `json:"product_id" validate:"required"`
	Uom       string  `json:"uom" validate:"required"`
	Qty       float64 `json:"qty" validate:"gt=0"`
	Price     float64 `json:"price" validate:"gte=0"`
}

type PurchaseRequest struct {
	LocationID string           `json:"location_id" validate:"required"`
	Supplier   *string          `json:"supplier"`
	Lines      []PurchaseLineIn `json:"lines" validate:"required,min=1,dive"`
	Actor      *string          `json:"-"`
}

// Purchase records a goods receipt: header, lines, and positive IN moves in
// one transaction.
func (p *POS) Purchase(ctx context.Context, req PurchaseRequest) (*domain.Purchase, error) {
	if _, err := p.store.LocationByID(ctx, req.LocationID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.LocationNotFound(req.LocationID)
		}
		return nil, err
	}

	_, resolver, err := p.loadProducts(ctx, purchaseProductIDs(req.Lines))
	if err != nil {
		return nil, err
	}

	purchaseID := uuid.NewString()
	lines := make([]domain.PurchaseLine, 0, len(req.Lines))
	moves := make([]domain.StockMove, 0, len(req.Lines))
	total := decimal.Zero
	for _, line := range req.Lines {
		if _, ok := resolver.Factor(line.ProductID, line.Uom); !ok {
			return nil, domain.UomNotRegistered(line.ProductID, line.Uom)
		}
		total = total.Add(decimal.NewFromFloat(line.Qty).Mul(decimal.NewFromFloat(line.Price)))
		lines = append(lines, domain.PurchaseLine{
			ID: uuid.NewString(), PurchaseID: purchaseID,
			ProductID: line.ProductID, Uom: line.Uom, Qty: line.Qty, Price: line.Price,
		})
		moves = append(moves, domain.StockMove{
			ID: uuid.NewString(), ProductID: line.ProductID, LocationID: req.LocationID,
			Uom: line.Uom, Qty: line.Qty, Type: domain.MoveIn, RefID: &purchaseID,
		})
	}

	purchase, err := p.store.CommitPurchase(ctx, repository.CommitPurchaseInput{
		Purchase: domain.Purchase{
			ID: purchaseID, LocationID: req.LocationID, Supplier: req.Supplier,
			Total: total.InexactFloat64(),
		},
		Lines: lines, Moves: moves,
	})
	if err != nil {
		return nil, err
	}

	p.audit(ctx, "purchase.commit", &purchase.ID, req.Actor, map[string]any{
		"docNo": purchase.DocNo, "total": purchase.Total,
	})
	return purchase, nil
}

type AdjustRequest struct {
	ProductID  string  `json:"product_id" validate:"required"`
	LocationID string  `json:"location_id" validate:"required"`
	Uom        string  `json:"uom" validate:"required"`
	Qty        float64 `json:"qty"`
	Reason     string  `json:"reason" validate:"required"`
	Actor      *string `json:"-"`
}

// Adjust writes a signed correction move. Negative adjustments may not take
// the balance below zero.
func (p *POS) Adjust(ctx context.Context, req AdjustRequest) (*domain.StockMove, error) {
	if math.Abs(req.Qty) <= domain.QtyEpsilon {
		return nil, domain.Validationf("adjustment qty must be non-zero")
	}
	if _, err := p.store.LocationByID(ctx, req.LocationID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.LocationNotFound(req.LocationID)
		}
		return nil, err
	}

	products, resolver, err := p.loadProducts(ctx, []string{req.ProductID})
	if err != nil {
		return nil, err
	}
	deltaBase, err := resolver.ToBase(req.ProductID, req.Uom, req.Qty)
	if err != nil {
		return nil, err
	}
	if deltaBase < 0 {
		shortages, err := p.checkStock(ctx, map[string]float64{req.ProductID: -deltaBase}, products, resolver, req.LocationID)
		if err != nil {
			return nil, err
		}
		if len(shortages) > 0 {
			return nil, domain.StockInsufficient(shortages)
		}
	}

	refID := uuid.NewString()
	move := domain.StockMove{
		ID: uuid.NewString(), ProductID: req.ProductID, LocationID: req.LocationID,
		Uom: req.Uom, Qty: req.Qty, Type: domain.MoveAdjustment, RefID: &refID,
	}
	if err := p.store.InsertMoves(ctx, []domain.StockMove{move}); err != nil {
		return nil, err
	}

	p.audit(ctx, "stock.adjust", &refID, req.Actor, map[string]any{
		"productId": req.ProductID, "locationId": req.LocationID,
		"uom": req.Uom, "qty": req.Qty, "reason": req.Reason,
	})
	return &move, nil
}

type TransferRequest struct {
	ProductID      string  `json:"product_id" validate:"required"`
	FromLocationID string  `json:"from_location_id" validate:"required"`
	ToLocationID   string  `json:"to_location_id" validate:"required"`
	Uom            string  `json:"uom" validate:"required"`
	Qty            float64 `json:"qty" validate:"gt=0"`
	Actor          *string `json:"-"`
}

// Transfer moves stock between locations as a pair of TRANSFER entries
// sharing one reference id, committed atomically.
func (p *POS) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	if req.FromLocationID == req.ToLocationID {
		return "", domain.Validationf("transfer source and destination must differ")
	}
	for _, locationID := range []string{req.FromLocationID, req.ToLocationID} {
		if _, err := p.store.LocationByID(ctx, locationID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return "", domain.LocationNotFound(locationID)
			}
			return "", err
		}
	}

	products, resolver, err := p.loadProducts(ctx, []string{req.ProductID})
	if err != nil {
		return "", err
	}
	needBase, err := resolver.ToBase(req.ProductID, req.Uom, req.Qty)
	if err != nil {
		return "", err
	}
	shortages, err := p.checkStock(ctx, map[string]float64{req.ProductID: needBase}, products, resolver, req.FromLocationID)
	if err != nil {
		return "", err
	}
	if len(shortages) > 0 {
		return "", domain.StockInsufficient(shortages)
	}

	refID := uuid.NewString()
	moves := []domain.StockMove{
		{
			ID: uuid.NewString(), ProductID: req.ProductID, LocationID: req.FromLocationID,
			Uom: req.Uom, Qty: -req.Qty, Type: domain.MoveTransfer, RefID: &refID,
		},
		{
			ID: uuid.NewString(), ProductID: req.ProductID, LocationID: req.ToLocationID,
			Uom: req.Uom, Qty: req.Qty, Type: domain.MoveTransfer, RefID: &refID,
		},
	}
	if err := p.store.InsertMoves(ctx, moves); err != nil {
		return "", err
	}

	p.audit(ctx, "stock.transfer", &refID, req.Actor, map[string]any{
		"productId": req.ProductID, "from": req.FromLocationID, "to": req.ToLocationID,
		"uom": req.Uom, "qty": req.Qty,
	})
	return refID, nil
}

type RepackRequest struct {
	ProductID  string  `json:"product_id" validate:"required"`
	LocationID string  `json:"location_id" validate:"required"`
	FromUom    string  `json:"from_uom" validate:"required"`
	FromQty    float64 `json:"from_qty" validate:"gt=0"`
	ToUom      string  `json:"to_uom" validate:"required"`
	ToQty      float64 `json:"to_qty" validate:"gt=0"`
	Actor      *string `json:"-"`
}

// Repack converts packaging without changing the base balance: the outgoing
// and incoming sides must be base-equivalent.
func (p *POS) Repack(ctx context.Context, req RepackRequest) (string, error) {
	if _, err := p.store.LocationByID(ctx, req.LocationID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", domain.LocationNotFound(req.LocationID)
		}
		return "", err
	}

	products, resolver, err := p.loadProducts(ctx, []string{req.ProductID})
	if err != nil {
		return "", err
	}
	fromBase, err := resolver.ToBase(req.ProductID, req.FromUom, req.FromQty)
	if err != nil {
		return "", err
	}
	toBase, err := resolver.ToBase(req.ProductID, req.ToUom, req.ToQty)
	if err != nil {
		return "", err
	}
	if math.Abs(fromBase-toBase) > domain.QtyEpsilon {
		return "", domain.Validationf("repack sides differ in base units: %g out vs %g in", fromBase, toBase)
	}

	shortages, err := p.checkStock(ctx, map[string]float64{req.ProductID: fromBase}, products, resolver, req.LocationID)
	if err != nil {
		return "", err
	}
	if len(shortages) > 0 {
		return "", domain.StockInsufficient(shortages)
	}

	refID := uuid.NewString()
	moves := []domain.StockMove{
		{
			ID: uuid.NewString(), ProductID: req.ProductID, LocationID: req.LocationID,
			Uom: req.FromUom, Qty: -req.FromQty, Type: domain.MoveRepackOut, RefID: &refID,
		},
		{
			ID: uuid.NewString(), ProductID: req.ProductID, LocationID: req.LocationID,
			Uom: req.ToUom, Qty: req.ToQty, Type: domain.MoveRepackIn, RefID: &refID,
		},
	}
	if err := p.store.InsertMoves(ctx, moves); err != nil {
		return "", err
	}

	p.audit(ctx, "stock.repack", &refID, req.Actor, map[string]any{
		"productId": req.ProductID, "locationId": req.LocationID,
		"fromUom": req.FromUom, "fromQty": req.FromQty,
		"toUom": req.ToUom, "toQty": req.ToQty,
	})
	return refID, nil
}

func (p *POS) ListSales(ctx context.Context, from, to *time.Time, limit, offset int) ([]domain.Sale, error) {
	return p.store.ListSales(ctx, from, to, limit, offset)
}

func (p *POS) SaleDetail(ctx context.Context, id string) (*domain.Sale, []domain.SaleLine, []domain.Payment, error) {
	sale, lines, payments, err := p.store.SaleDetail(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, nil, domain.NotFoundf("sale %s not found", id)
		}
		return nil, nil, nil, err
	}
	return sale, lines, payments, nil
}

// loadProducts fetches each distinct product and a resolver over their uom
// registrations. Inactive products are accepted: history and returns still
// reference them.
func (p *POS) loadProducts(ctx context.Context, productIDs []string) (map[string]*domain.Product, *uom.Resolver, error) {
	products := make(map[string]*domain.Product, len(productIDs))
	for _, id := range productIDs {
		product, err := p.store.ProductByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, nil, domain.NotFoundf("product %s not found", id)
			}
			return nil, nil, err
		}
		products[id] = product
	}
	uomRows, err := p.store.UomRows(ctx, productIDs)
	if err != nil {
		return nil, nil, err
	}
	return products, uom.NewResolver(uomRows), nil
}

// checkStock compares required base quantities against the recomputed balance
// at the location and returns every shortage, not just the first.
func (p *POS) checkStock(ctx context.Context, needBase map[string]float64, products map[string]*domain.Product, resolver *uom.Resolver, locationID string) ([]domain.Shortage, error) {
	ids := make([]string, 0, len(needBase))
	for id := range needBase {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var shortages []domain.Shortage
	for _, productID := range ids {
		need := needBase[productID]
		moves, err := p.store.MovesFor(ctx, productID, locationID)
		if err != nil {
			return nil, err
		}
		have, unknown := ledger.BalanceBase(moves, resolver)
		if len(unknown) > 0 {
			p.log.WithField("pairs", unknown).Warn("moves with unregistered uoms excluded from balance")
		}
		if need > have+domain.QtyEpsilon {
			baseUom := ""
			if product := products[productID]; product != nil {
				baseUom = product.BaseUom
			}
			shortages = append(shortages, domain.Shortage{
				ProductID: productID, Location: locationID, Uom: baseUom,
				Need: need, Have: have,
			})
		}
	}
	return shortages, nil
}

// audit is fail-open: a broken audit trail is logged, never surfaced to the
// caller whose business write already committed.
func (p *POS) audit(ctx context.Context, action string, refID, actor *string, details map[string]any) {
	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte("{}")
	}
	if err := p.store.InsertAudit(ctx, action, refID, actor, string(payload)); err != nil {
		p.log.WithField("action", action).WithError(err).Warn("audit write failed")
	}
}

func (p *POS) rejected(result DocResult, err error, clientID, logMsg string) DocResult {
	p.log.WithFields(logrus.Fields{"client": clientID, "clientDocId": result.ClientDocID}).
		WithError(err).Warn(logMsg)
	result.Status = docStatusRejected
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		result.Error = map[string]any{
			"code":    domainErr.Code,
			"message": domainErr.Message,
			"details": domainErr.Details,
		}
	} else {
		result.Error = map[string]any{"code": domain.CodeInternal, "message": "internal error"}
	}
	return result
}

func (p *POS) duplicate(result DocResult, prior *domain.SyncInbound) DocResult {
	result.Status = docStatusDuplicate
	result.ServerDocID = prior.ServerDocID
	return result
}

func saleProductIDs(lines []SaleLineIn) []string {
	seen := map[string]bool{}
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if !seen[line.ProductID] {
			seen[line.ProductID] = true
			ids = append(ids, line.ProductID)
		}
	}
	return ids
}

func purchaseProductIDs(lines []PurchaseLineIn) []string {
	seen := map[string]bool{}
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if !seen[line.ProductID] {
			seen[line.ProductID] = true
			ids = append(ids, line.ProductID)
		}
	}
	return ids
}

func keysOf(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

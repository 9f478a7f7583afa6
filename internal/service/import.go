package service

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"backend/internal/domain"
	"backend/internal/excel"
	"backend/internal/repository"
)

// Importer seeds master data and opening stock from a spreadsheet export.
type Importer struct {
	store Store
	pos   *POS
	log   *logrus.Logger
}

func NewImporter(store Store, pos *POS, log *logrus.Logger) *Importer {
	return &Importer{store: store, pos: pos, log: log}
}

// ImportProducts upserts products, uom registrations, barcodes, and prices
// from the workbook, then books positive opening-stock moves at the location.
// Rows are applied in file order; the first failing row aborts the import
// with its row number, before any opening move is written.
func (im *Importer) ImportProducts(ctx context.Context, locationID string, reader io.Reader, actor *string) (*domain.ImportSummary, error) {
	if _, err := im.store.LocationByID(ctx, locationID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.LocationNotFound(locationID)
		}
		return nil, err
	}

	rows, err := excel.ParseProductRows(reader)
	if err != nil {
		return nil, domain.Validationf("%s", err.Error())
	}

	importID := uuid.NewString()
	summary := &domain.ImportSummary{}
	moves := make([]domain.StockMove, 0, len(rows))

	for _, row := range rows {
		productID, err := im.upsertProduct(ctx, row, summary)
		if err != nil {
			return nil, err
		}

		if err := im.ensureUom(ctx, productID, row.BaseUom, 1, summary); err != nil {
			return nil, err
		}
		priceUom := row.BaseUom
		if row.Uom != nil && *row.Uom != row.BaseUom {
			if row.ToBase == nil {
				return nil, domain.Validationf("sku %s declares uom %q without a to_base factor", row.SKU, *row.Uom)
			}
			if err := im.ensureUom(ctx, productID, *row.Uom, *row.ToBase, summary); err != nil {
				return nil, err
			}
			priceUom = *row.Uom
		}

		if row.Barcode != nil {
			if err := im.upsertBarcode(ctx, *row.Barcode, productID, priceUom, summary); err != nil {
				return nil, err
			}
		}
		if row.SellPrice != nil {
			if err := im.upsertPrice(ctx, productID, priceUom, *row.SellPrice, summary); err != nil {
				return nil, err
			}
		}

		if row.OpeningQty > domain.QtyEpsilon {
			moves = append(moves, domain.StockMove{
				ID: uuid.NewString(), ProductID: productID, LocationID: locationID,
				Uom: row.BaseUom, Qty: row.OpeningQty, Type: domain.MoveIn, RefID: &importID,
			})
		}
	}

	if len(moves) > 0 {
		if err := im.store.InsertMoves(ctx, moves); err != nil {
			return nil, err
		}
		summary.Moves = len(moves)
	}

	im.pos.audit(ctx, "import.products", &importID, actor, map[string]any{
		"locationId": locationID, "products": summary.Products, "updated": summary.Updated,
		"moves": summary.Moves,
	})
	im.log.WithFields(logrus.Fields{
		"importId": importID, "products": summary.Products, "moves": summary.Moves,
	}).Info("product import applied")
	return summary, nil
}

func (im *Importer) upsertProduct(ctx context.Context, row domain.ProductImportRow, summary *domain.ImportSummary) (string, error) {
	existing, err := im.store.ProductBySKU(ctx, row.SKU)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return "", err
	}
	if existing == nil {
		id := uuid.NewString()
		if err := im.store.CreateProduct(ctx, domain.Product{
			ID: id, SKU: row.SKU, Name: row.Name, BaseUom: row.BaseUom, Active: true,
		}); err != nil {
			return "", err
		}
		summary.Products++
		return id, nil
	}

	if existing.BaseUom != row.BaseUom {
		return "", domain.Validationf("sku %s already exists with base uom %q, file says %q", row.SKU, existing.BaseUom, row.BaseUom)
	}
	if existing.Name != row.Name || !existing.Active {
		if err := im.store.UpdateProduct(ctx, domain.Product{
			ID: existing.ID, SKU: existing.SKU, Name: row.Name, BaseUom: existing.BaseUom, Active: true,
		}); err != nil {
			return "", err
		}
		summary.Updated++
	}
	return existing.ID, nil
}

func (im *Importer) ensureUom(ctx context.Context, productID, uomName string, toBase int64, summary *domain.ImportSummary) error {
	existing, err := im.store.ProductUomByKey(ctx, productID, uomName)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if existing != nil {
		if existing.ToBase != toBase {
			return domain.Validationf("uom %q already registered with factor %d, file says %d", uomName, existing.ToBase, toBase)
		}
		return nil
	}
	if err := im.store.CreateProductUom(ctx, domain.ProductUom{
		ProductID: productID, Uom: uomName, ToBase: toBase,
	}); err != nil {
		return err
	}
	summary.Uoms++
	return nil
}

func (im *Importer) upsertBarcode(ctx context.Context, code, productID, uomName string, summary *domain.ImportSummary) error {
	existing, err := im.store.BarcodeByCode(ctx, code)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	record := domain.Barcode{Code: code, ProductID: productID, Uom: uomName}
	if existing == nil {
		if err := im.store.CreateBarcode(ctx, record); err != nil {
			return err
		}
		summary.Barcodes++
		return nil
	}
	if existing.ProductID != productID {
		return domain.Validationf("barcode %s already belongs to another product", code)
	}
	return im.store.UpdateBarcode(ctx, record)
}

func (im *Importer) upsertPrice(ctx context.Context, productID, uomName string, price float64, summary *domain.ImportSummary) error {
	existing, err := im.store.PriceByKey(ctx, productID, uomName)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	record := domain.Price{ProductID: productID, Uom: uomName, Price: price}
	if existing == nil {
		if err := im.store.CreatePrice(ctx, record); err != nil {
			return err
		}
		summary.Prices++
		return nil
	}
	return im.store.UpdatePrice(ctx, record)
}

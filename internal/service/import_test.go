package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"backend/internal/domain"
)

func buildWorkbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	file := excelize.NewFile()
	defer file.Close()

	sheet := file.GetSheetName(0)
	for rowIdx, cells := range rows {
		for colIdx, value := range cells {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
			require.NoError(t, err)
			require.NoError(t, file.SetCellValue(sheet, cell, value))
		}
	}

	var buf bytes.Buffer
	require.NoError(t, file.Write(&buf))
	return &buf
}

func TestImportProducts(t *testing.T) {
	store := newFakeStore()
	log := testLogger()
	pos := NewPOS(store, log)
	importer := NewImporter(store, pos, log)
	ctx := context.Background()

	require.NoError(t, store.CreateLocation(ctx, domain.Location{ID: "loc-1", Code: "TOKO", Name: "Toko"}))

	workbook := buildWorkbook(t, [][]any{
		{"SKU", "Nama Produk", "Base UOM", "Satuan", "Isi", "Harga Jual", "Stok Awal"},
		{"GULA-1", "Gula Pasir", "gram", "kg", 1000, 15000, 50000},
		{"BRS-1", "Beras Premium", "gram", "", "", "", 0},
	})

	summary, err := importer.ImportProducts(ctx, "loc-1", workbook, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Products)
	assert.Equal(t, 3, summary.Uoms) // gram for both, kg for sugar
	assert.Equal(t, 1, summary.Prices)
	assert.Equal(t, 1, summary.Moves)

	product, err := store.ProductBySKU(ctx, "GULA-1")
	require.NoError(t, err)
	registration, err := store.ProductUomByKey(ctx, product.ID, "kg")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), registration.ToBase)

	moves, err := store.MovesFor(ctx, product.ID, "loc-1")
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, domain.MoveIn, moves[0].Type)
	assert.Equal(t, "gram", moves[0].Uom)
	assert.InDelta(t, 50000, moves[0].Qty, 1e-9)
}

func TestImportProductsIsRepeatable(t *testing.T) {
	store := newFakeStore()
	log := testLogger()
	importer := NewImporter(store, NewPOS(store, log), log)
	ctx := context.Background()

	require.NoError(t, store.CreateLocation(ctx, domain.Location{ID: "loc-1", Code: "TOKO", Name: "Toko"}))

	rows := [][]any{
		{"sku", "name", "base_uom"},
		{"GULA-1", "Gula Pasir", "gram"},
	}
	_, err := importer.ImportProducts(ctx, "loc-1", buildWorkbook(t, rows), nil)
	require.NoError(t, err)

	summary, err := importer.ImportProducts(ctx, "loc-1", buildWorkbook(t, rows), nil)
	require.NoError(t, err)
	assert.Zero(t, summary.Products)
	assert.Zero(t, summary.Updated)
	assert.Zero(t, summary.Uoms)
}

func TestImportProductsConflictingBaseUom(t *testing.T) {
	store := newFakeStore()
	log := testLogger()
	importer := NewImporter(store, NewPOS(store, log), log)
	ctx := context.Background()

	require.NoError(t, store.CreateLocation(ctx, domain.Location{ID: "loc-1", Code: "TOKO", Name: "Toko"}))
	require.NoError(t, store.CreateProduct(ctx, domain.Product{
		ID: "p-1", SKU: "GULA-1", Name: "Gula", BaseUom: "gram", Active: true,
	}))

	workbook := buildWorkbook(t, [][]any{
		{"sku", "name", "base_uom"},
		{"GULA-1", "Gula", "kg"},
	})
	_, err := importer.ImportProducts(ctx, "loc-1", workbook, nil)
	var domainErr *domain.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.CodeValidation, domainErr.Code)
}

func TestImportProductsUnknownLocation(t *testing.T) {
	store := newFakeStore()
	log := testLogger()
	importer := NewImporter(store, NewPOS(store, log), log)

	workbook := buildWorkbook(t, [][]any{{"sku", "name", "base_uom"}, {"X", "X", "pcs"}})
	_, err := importer.ImportProducts(context.Background(), "missing", workbook, nil)
	var domainErr *domain.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.CodeLocationNotFound, domainErr.Code)
}

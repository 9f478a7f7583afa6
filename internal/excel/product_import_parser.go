package excel

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"backend/internal/domain"

	"github.com/xuri/excelize/v2"
)

var headerAliases = map[string]string{
	"sku":          "sku",
	"kode":         "sku",
	"kode produk":  "sku",
	"product_name": "name",
	"product name": "name",
	"product":      "name",
	"name":         "name",
	"nama":         "name",
	"nama produk":  "name",
	"base_uom":     "base_uom",
	"base uom":     "base_uom",
	"satuan dasar": "base_uom",
	"uom":          "uom",
	"unit":         "uom",
	"satuan":       "uom",
	"to_base":      "to_base",
	"to base":      "to_base",
	"isi":          "to_base",
	"konversi":     "to_base",
	"barcode":      "barcode",
	"sell_price":   "sell_price",
	"sell price":   "sell_price",
	"price":        "sell_price",
	"harga":        "sell_price",
	"harga jual":   "sell_price",
	"opening_qty":  "opening_qty",
	"opening qty":  "opening_qty",
	"quantity":     "opening_qty",
	"qty":          "opening_qty",
	"stok awal":    "opening_qty",
	"stok":         "opening_qty",
}

// ParseProductRows reads the first sheet of an import workbook. Headers are
// matched by alias, so exports from different back-office spreadsheets load
// without renaming columns.
func ParseProductRows(reader io.Reader) ([]domain.ProductImportRow, error) {
	file, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("open excel file: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("excel file has no sheets")
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("excel file is empty")
	}

	colMap := mapColumns(rows[0])
	for _, required := range []string{"sku", "name", "base_uom"} {
		if _, ok := colMap[required]; !ok {
			return nil, fmt.Errorf("missing required column: %s", required)
		}
	}

	result := make([]domain.ProductImportRow, 0, len(rows)-1)
	for index := 1; index < len(rows); index++ {
		cells := rows[index]
		sku := strings.TrimSpace(readCell(cells, colMap["sku"]))
		if sku == "" {
			continue
		}
		name := strings.TrimSpace(readCell(cells, colMap["name"]))
		if name == "" {
			return nil, fmt.Errorf("row %d has a sku but no name", index+1)
		}
		baseUom := strings.TrimSpace(readCell(cells, colMap["base_uom"]))
		if baseUom == "" {
			return nil, fmt.Errorf("row %d has a sku but no base uom", index+1)
		}

		row := domain.ProductImportRow{SKU: sku, Name: name, BaseUom: baseUom}

		if idx, ok := colMap["uom"]; ok {
			if value := strings.TrimSpace(readCell(cells, idx)); value != "" {
				row.Uom = &value
			}
		}
		if idx, ok := colMap["to_base"]; ok {
			raw := strings.TrimSpace(readCell(cells, idx))
			if raw != "" {
				value, err := parseInt(raw)
				if err != nil {
					return nil, fmt.Errorf("row %d invalid to_base: %w", index+1, err)
				}
				if value <= 0 {
					return nil, fmt.Errorf("row %d to_base must be positive", index+1)
				}
				toBase := int64(value)
				row.ToBase = &toBase
			}
		}
		if idx, ok := colMap["barcode"]; ok {
			if value := strings.TrimSpace(readCell(cells, idx)); value != "" {
				row.Barcode = &value
			}
		}
		if idx, ok := colMap["sell_price"]; ok {
			raw := strings.TrimSpace(readCell(cells, idx))
			if raw != "" {
				value, err := parseFloat(raw)
				if err != nil {
					return nil, fmt.Errorf("row %d invalid sell_price: %w", index+1, err)
				}
				row.SellPrice = &value
			}
		}
		if idx, ok := colMap["opening_qty"]; ok {
			raw := strings.TrimSpace(readCell(cells, idx))
			if raw != "" {
				value, err := parseFloat(raw)
				if err != nil {
					return nil, fmt.Errorf("row %d invalid opening_qty: %w", index+1, err)
				}
				if value < 0 {
					return nil, fmt.Errorf("row %d opening_qty must not be negative", index+1)
				}
				row.OpeningQty = value
			}
		}

		result = append(result, row)
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("excel file has no valid data rows")
	}
	return result, nil
}

func mapColumns(header []string) map[string]int {
	mapped := make(map[string]int)
	for idx, col := range header {
		normalized := normalizeHeader(col)
		if normalized == "" {
			continue
		}
		canonical, ok := headerAliases[normalized]
		if !ok {
			continue
		}
		if _, exists := mapped[canonical]; !exists {
			mapped[canonical] = idx
		}
	}
	return mapped
}

func normalizeHeader(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "\ufeff")
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "_", " ")
	value = strings.Join(strings.Fields(value), " ")
	return value
}

func readCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func parseInt(raw string) (int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, fmt.Errorf("value is empty")
	}
	asFloat, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if math.Mod(asFloat, 1) != 0 {
		return 0, fmt.Errorf("must be an integer")
	}
	return int(asFloat), nil
}

func parseFloat(raw string) (float64, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, fmt.Errorf("value is empty")
	}
	parsed, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	return parsed, nil
}

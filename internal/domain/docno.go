package domain

import (
	"fmt"
	"time"
)

// QtyEpsilon is the tolerance used when comparing float quantities (stock
// sufficiency, over-return checks).
const QtyEpsilon = 1e-6

// SaleDocNo formats the human-readable receipt number for a sale. The running
// suffix comes from a same-day count and is advisory-unique only: two
// concurrent commits on the same day and cashier can mint the same number.
// Record identity is the sale's UUID primary key, never this string.
func SaleDocNo(t time.Time, cashierCode string, seq int) string {
	return fmt.Sprintf("TOKOAL-%s-%s-%04d", t.Format("20060102"), cashierCode, seq)
}

// ReturnDocNo formats the receipt number for a sale return. Same advisory
// uniqueness caveat as SaleDocNo.
func ReturnDocNo(t time.Time, seq int) string {
	return fmt.Sprintf("RTN-%s-%04d", t.Format("20060102"), seq)
}

// PurchaseDocNo formats the document number for a goods receipt.
func PurchaseDocNo(t time.Time, seq int) string {
	return fmt.Sprintf("PO-%s-%04d", t.Format("20060102"), seq)
}

// LineKey identifies a (product, uom) pair inside one document, used when
// matching return items against the originating sale's lines.
func LineKey(productID, uom string) string {
	return productID + "|" + uom
}

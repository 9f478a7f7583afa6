// Package ledger computes inventory balances from the append-only stock-move
// log. Balances are always recomputed from the full history at query time;
// there is no cached balance to invalidate. A materialized balance updated
// transactionally alongside each move insert is a possible optimization at
// larger move volumes.
package ledger

import (
	"sort"

	"backend/internal/domain"
	"backend/internal/uom"
)

// BalanceBase sums moves into base units. A move whose uom has no registered
// factor contributes zero: historical rows may predate a uom's registration,
// so this is a data-quality warning for the caller, not a hard failure.
func BalanceBase(moves []domain.StockMove, resolver *uom.Resolver) (baseQty float64, unknownUoms []string) {
	seen := map[string]bool{}
	for _, move := range moves {
		factor, ok := resolver.Factor(move.ProductID, move.Uom)
		if !ok {
			key := move.ProductID + "/" + move.Uom
			if !seen[key] {
				seen[key] = true
				unknownUoms = append(unknownUoms, key)
			}
			continue
		}
		baseQty += move.Qty * float64(factor)
	}
	sort.Strings(unknownUoms)
	return baseQty, unknownUoms
}

// BalanceInUnit expresses the base balance in a display unit. Fails with
// UNKNOWN_UOM when the unit is unregistered for the product.
func BalanceInUnit(moves []domain.StockMove, resolver *uom.Resolver, productID, displayUom string) (float64, error) {
	baseQty, _ := BalanceBase(moves, resolver)
	return resolver.FromBase(productID, displayUom, baseQty)
}

// PerUomBreakdown groups raw quantities by uom without conversion, for
// diagnostic display. Rows are ordered by uom for stable output.
func PerUomBreakdown(moves []domain.StockMove) []domain.UomBalance {
	sums := map[string]float64{}
	for _, move := range moves {
		sums[move.Uom] += move.Qty
	}
	breakdown := make([]domain.UomBalance, 0, len(sums))
	for u, qty := range sums {
		breakdown = append(breakdown, domain.UomBalance{Uom: u, RawQty: qty})
	}
	sort.Slice(breakdown, func(i, j int) bool { return breakdown[i].Uom < breakdown[j].Uom })
	return breakdown
}

// Package uom converts quantities between a product's sale units and its
// canonical base unit. Conversions are integer multipliers only; a unit that
// would need a fractional ratio must be modeled at finer base granularity.
package uom

import "backend/internal/domain"

// Resolver answers toBase lookups from a snapshot of product_uoms rows. It
// fails closed: an unregistered (product, uom) pair is an error, never a
// silent 1:1 conversion.
type Resolver struct {
	factors map[string]map[string]int64
}

func NewResolver(rows []domain.ProductUom) *Resolver {
	factors := make(map[string]map[string]int64, len(rows))
	for _, row := range rows {
		byUom := factors[row.ProductID]
		if byUom == nil {
			byUom = make(map[string]int64)
			factors[row.ProductID] = byUom
		}
		byUom[row.Uom] = row.ToBase
	}
	return &Resolver{factors: factors}
}

// Factor returns the base-unit multiplier for the pair, or false when the
// pair is unregistered.
func (r *Resolver) Factor(productID, uom string) (int64, bool) {
	byUom, ok := r.factors[productID]
	if !ok {
		return 0, false
	}
	factor, ok := byUom[uom]
	return factor, ok
}

// ToBase converts qty expressed in uom into base units.
func (r *Resolver) ToBase(productID, uom string, qty float64) (float64, error) {
	factor, ok := r.Factor(productID, uom)
	if !ok {
		return 0, domain.UomNotRegistered(productID, uom)
	}
	return qty * float64(factor), nil
}

// FromBase converts a base-unit quantity into the requested display unit.
func (r *Resolver) FromBase(productID, uom string, baseQty float64) (float64, error) {
	factor, ok := r.Factor(productID, uom)
	if !ok {
		return 0, domain.UnknownUom(productID, uom)
	}
	return baseQty / float64(factor), nil
}

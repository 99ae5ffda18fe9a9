// Package forecast implements the inventory planning arithmetic:
// tiered safety stock, ownership category draw ordering for issues,
// and shortage projection over ledger-derived balances.
package forecast

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Ownership categories a cutter can be stocked under.
const (
	CategoryNew          = "new"
	CategoryReclaimed    = "reclaimed"
	CategoryGround       = "ground"
	CategoryVendorReturn = "vendor_return"
)

// Categories lists every valid ownership category.
var Categories = []string{CategoryNew, CategoryReclaimed, CategoryGround, CategoryVendorReturn}

// DrawOrder is the priority in which categories are consumed when an
// issue does not pin a category. Vendor returns are never auto-drawn;
// they are held for credit against the vendor.
var DrawOrder = []string{CategoryReclaimed, CategoryGround, CategoryNew}

// ValidCategory reports whether name is a known ownership category.
func ValidCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

// Buffer returns the safety buffer for a trailing 6-month consumption.
func Buffer(consumption6M int) int {
	switch {
	case consumption6M <= 0:
		return 0
	case consumption6M < 50:
		return 2
	case consumption6M < 150:
		return 5
	case consumption6M < 300:
		return 8
	default:
		return 10
	}
}

// SafetyStock computes tiered safety stock from trailing 6-month
// consumption: one month of cover plus the tier buffer, rounded up to
// the nearest 5.
func SafetyStock(consumption6M int) int {
	if consumption6M <= 0 {
		return 0
	}
	monthly := (consumption6M + 5) / 6
	return RoundUp5(monthly + Buffer(consumption6M))
}

// RoundUp5 rounds n up to the nearest multiple of 5.
func RoundUp5(n int) int {
	if n <= 0 {
		return 0
	}
	return ((n + 4) / 5) * 5
}

// Draw is one category's contribution to an issue.
type Draw struct {
	Category string
	Qty      int
}

// PlanIssue splits an issue of qty cutters across ownership category
// balances. With a pinned category the whole quantity must come from
// it; otherwise categories are drawn in DrawOrder. A shortfall rejects
// the entire issue so the ledger never goes negative.
func PlanIssue(balances map[string]int, qty int, pinned string) ([]Draw, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("issue qty must be positive, got %d", qty)
	}
	if pinned != "" {
		if !ValidCategory(pinned) {
			return nil, fmt.Errorf("unknown ownership category %q", pinned)
		}
		if balances[pinned] < qty {
			return nil, fmt.Errorf("insufficient %s stock: need %d, have %d", pinned, qty, balances[pinned])
		}
		return []Draw{{Category: pinned, Qty: qty}}, nil
	}

	avail := 0
	for _, c := range DrawOrder {
		avail += balances[c]
	}
	if avail < qty {
		return nil, fmt.Errorf("insufficient stock: need %d, have %d across %v", qty, avail, DrawOrder)
	}

	var draws []Draw
	remaining := qty
	for _, c := range DrawOrder {
		if remaining == 0 {
			break
		}
		take := balances[c]
		if take > remaining {
			take = remaining
		}
		if take <= 0 {
			continue
		}
		draws = append(draws, Draw{Category: c, Qty: take})
		remaining -= take
	}
	return draws, nil
}

// Line carries the inputs of one cutter type's forecast row.
type Line struct {
	CutterType    string
	OnHand        int
	Required      int
	OnOrder       int
	Consumption6M int
}

// SafetyStock for this line's consumption.
func (l Line) SafetyStock() int { return SafetyStock(l.Consumption6M) }

// Projected stock once open-job requirements are consumed and open
// purchase orders arrive.
func (l Line) Projected() int { return l.OnHand - l.Required + l.OnOrder }

// Shortage is how far projected stock falls below safety stock.
func (l Line) Shortage() int {
	short := l.SafetyStock() - l.Projected()
	if short < 0 {
		return 0
	}
	return short
}

// SuggestedOrder rounds the shortage up to the nearest order multiple.
func (l Line) SuggestedOrder() int { return RoundUp5(l.Shortage()) }

// CostPoint is a priced receipt used for valuation averaging.
type CostPoint struct {
	Qty       int
	UnitPrice decimal.Decimal
}

// AverageUnitCost returns the quantity-weighted average unit cost over
// the given points, zero when nothing priced has been received.
func AverageUnitCost(points []CostPoint) decimal.Decimal {
	totalQty := decimal.Zero
	totalCost := decimal.Zero
	for _, p := range points {
		if p.Qty <= 0 {
			continue
		}
		q := decimal.NewFromInt(int64(p.Qty))
		totalQty = totalQty.Add(q)
		totalCost = totalCost.Add(p.UnitPrice.Mul(q))
	}
	if totalQty.IsZero() {
		return decimal.Zero
	}
	return totalCost.DivRound(totalQty, 4)
}

// Valuation prices an on-hand balance at a unit cost.
func Valuation(onHand int, unitCost decimal.Decimal) decimal.Decimal {
	if onHand <= 0 {
		return decimal.Zero
	}
	return unitCost.Mul(decimal.NewFromInt(int64(onHand))).Round(2)
}

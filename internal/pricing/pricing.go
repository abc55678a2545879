// Package pricing holds the money rules shared by order creation, the live
// revision total and the reconciliation commit. All arithmetic is decimal.
package pricing

import (
	"reserva-backend/internal/domain"

	"github.com/shopspring/decimal"
)

// RoundToTenCents rounds half away from zero to the nearest 0.10. It is the
// only amount ever presented to the customer as due.
func RoundToTenCents(total decimal.Decimal) decimal.Decimal {
	return total.Round(1)
}

// LineTotal prices qty units of it. When the item carries chilled units and a
// chilled price, those units are charged at the chilled price; the chilled
// units are kept first when qty is below the requested amount.
func LineTotal(it domain.OrderItem, qty decimal.Decimal) decimal.Decimal {
	if it.ChilledPrice != nil && it.ChilledQty.IsPositive() {
		chilled := decimal.Min(it.ChilledQty, qty)
		if chilled.IsNegative() {
			chilled = decimal.Zero
		}
		ambient := qty.Sub(chilled)
		return ambient.Mul(it.BasePrice).Add(chilled.Mul(*it.ChilledPrice))
	}
	return it.BasePrice.Mul(qty)
}

// EffectiveUnitPrice is the per-unit price of qty units of it.
func EffectiveUnitPrice(it domain.OrderItem, qty decimal.Decimal) decimal.Decimal {
	if qty.IsZero() {
		return it.BasePrice
	}
	return LineTotal(it, qty).Div(qty)
}

// DisplayLineTotal is what a line contributes to a total shown to the
// customer. Hidden prices ("quote on pickup") contribute zero.
func DisplayLineTotal(it domain.OrderItem) decimal.Decimal {
	if !it.PriceVisible() {
		return decimal.Zero
	}
	return LineTotal(it, it.RequestedQty)
}

// CarryThroughTotal prices an item that reconciliation keeps unchanged: the
// staff-assigned final price if any, else the display total.
func CarryThroughTotal(it domain.OrderItem) decimal.Decimal {
	if it.FinalPrice != nil {
		return *it.FinalPrice
	}
	if !it.PriceVisible() {
		return decimal.Zero
	}
	return LineTotal(it, it.Quantity())
}

func EstimatedTotal(items []domain.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		if it.IsSubstitute {
			continue
		}
		total = total.Add(DisplayLineTotal(it))
	}
	return total
}

// CountReturnables sums the quantities of returnable main items. Open
// substitute proposals are not part of the order yet and are skipped.
func CountReturnables(items []domain.OrderItem) int64 {
	sum := decimal.Zero
	for _, it := range items {
		if it.IsSubstitute || !it.Returnable {
			continue
		}
		sum = sum.Add(it.Quantity())
	}
	return sum.IntPart()
}

// SubstituteEffectiveQuantity resolves how much of a substitute the customer
// gets. Fixed proposals always resolve to the proposed quantity; free
// substitutes resolve to chosen, capped at the offered maximum.
func SubstituteEffectiveQuantity(sub domain.OrderItem, chosen decimal.Decimal) decimal.Decimal {
	if fixed, ok := sub.FixedProposal(); ok {
		return fixed
	}
	if chosen.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(chosen, sub.OfferedMax())
}

func SubstitutePrice(sub domain.OrderItem, chosen decimal.Decimal) decimal.Decimal {
	return sub.BasePrice.Mul(SubstituteEffectiveQuantity(sub, chosen))
}

package domain

import "github.com/shopspring/decimal"

var gramsPerKilo = decimal.NewFromInt(1000)

// Line is the typed view of an OrderItem. Each variant carries only what is
// meaningful for its kind; Classify converts from the persisted shape.
type Line interface {
	Item() OrderItem
	isLine()
}

// NormalLine needs no customer input: available items, short-weight items
// already priced by staff, and anything already settled.
type NormalLine struct {
	OrderItem
}

// PartialLine is a main item staff could only partly fill.
type PartialLine struct {
	OrderItem
	Kept   decimal.Decimal
	MaxQty decimal.Decimal
}

// Missing is the quantity the store could not supply.
func (l PartialLine) Missing() decimal.Decimal {
	m := l.RequestedQty.Sub(l.Kept)
	if m.IsNegative() {
		return decimal.Zero
	}
	return m
}

type OutOfStockLine struct {
	OrderItem
}

// SubstituteLine is a staff proposal standing in for the main item Parent.
type SubstituteLine struct {
	OrderItem
	Parent   string
	Fixed    bool
	FixedQty decimal.Decimal
	Max      decimal.Decimal
}

func (l NormalLine) Item() OrderItem     { return l.OrderItem }
func (l PartialLine) Item() OrderItem    { return l.OrderItem }
func (l OutOfStockLine) Item() OrderItem { return l.OrderItem }
func (l SubstituteLine) Item() OrderItem { return l.OrderItem }

func (NormalLine) isLine()     {}
func (PartialLine) isLine()    {}
func (OutOfStockLine) isLine() {}
func (SubstituteLine) isLine() {}

func Classify(it OrderItem) Line {
	if it.IsSubstitute {
		fixed, ok := it.FixedProposal()
		return SubstituteLine{OrderItem: it, Parent: it.Replaces, Fixed: ok, FixedQty: fixed, Max: it.OfferedMax()}
	}
	switch it.StatusOrDefault() {
	case ItemOutOfStock:
		return OutOfStockLine{OrderItem: it}
	case ItemPartialStock:
		return PartialLine{OrderItem: it, Kept: it.PartialKept(), MaxQty: it.PartialMax()}
	default:
		return NormalLine{OrderItem: it}
	}
}

// FixedProposal returns the non-negotiable quantity of a substitute offered
// at a specific weight or count. Weights are converted to kilograms.
func (it OrderItem) FixedProposal() (decimal.Decimal, bool) {
	if it.ProposedGrams != nil && it.ProposedGrams.IsPositive() {
		return it.ProposedGrams.Div(gramsPerKilo), true
	}
	if it.ProposedQty != nil && it.ProposedQty.IsPositive() {
		return *it.ProposedQty, true
	}
	return decimal.Zero, false
}

// OfferedMax is the cap a free-quantity substitute can be dialed up to.
func (it OrderItem) OfferedMax() decimal.Decimal {
	if it.FinalQty != nil {
		return *it.FinalQty
	}
	return it.RequestedQty
}

// PartialMax is the most a partially stocked item can be raised to locally:
// stock_disponible, falling back to cantidad_final, never above the request.
func (it OrderItem) PartialMax() decimal.Decimal {
	limit := it.RequestedQty
	switch {
	case it.StockAvailable != nil:
		limit = *it.StockAvailable
	case it.FinalQty != nil:
		limit = *it.FinalQty
	}
	return decimal.Min(limit, it.RequestedQty)
}

// PartialKept is the quantity staff settled on for a partially stocked item.
func (it OrderItem) PartialKept() decimal.Decimal {
	if it.FinalQty != nil {
		return decimal.Min(*it.FinalQty, it.PartialMax())
	}
	return it.PartialMax()
}

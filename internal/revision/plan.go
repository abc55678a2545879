package revision

import (
	"reserva-backend/internal/domain"
	"reserva-backend/internal/pricing"

	"github.com/shopspring/decimal"
)

type IssueKind string

const (
	IssueUnknownSubstitute IssueKind = "unknown_substitute"
	IssueWrongParent       IssueKind = "wrong_parent"
	IssueOrphanSubstitute  IssueKind = "orphan_substitute"
	IssueOverMax           IssueKind = "over_max"
	IssueNotShort          IssueKind = "selection_on_available_item"
)

// Issue is an integrity problem found while planning. The offending entry is
// clamped or ignored; callers log it.
type Issue struct {
	Kind             IssueKind
	MainItemID       string
	SubstituteItemID string
}

type PlannedSubstitute struct {
	Item  domain.OrderItem
	Qty   decimal.Decimal
	Total decimal.Decimal
}

// PlannedLine is one surviving main item and the substitutes chosen for it.
// Keep is false for out-of-stock items, whose own line disappears.
type PlannedLine struct {
	Line        domain.Line
	Keep        bool
	Qty         decimal.Decimal
	Total       decimal.Decimal
	Substitutes []PlannedSubstitute
}

type Plan struct {
	Lines  []PlannedLine
	Total  decimal.Decimal
	Issues []Issue
}

// BuildPlan resolves s against o. It is the single source for both the live
// total and the commit, so the two cannot drift apart.
func BuildPlan(o domain.Order, s State) Plan {
	p := Plan{Total: decimal.Zero}

	mains := map[string]bool{}
	for _, it := range o.Items {
		if !it.IsSubstitute {
			mains[it.ItemID] = true
		}
	}
	for _, it := range o.Items {
		if it.IsSubstitute && !mains[it.Replaces] {
			p.Issues = append(p.Issues, Issue{Kind: IssueOrphanSubstitute, MainItemID: it.Replaces, SubstituteItemID: it.ItemID})
		}
	}

	for _, it := range o.Items {
		if it.IsSubstitute || s.IsCanceled(it.ItemID) {
			continue
		}
		pl := PlannedLine{Line: domain.Classify(it)}
		switch l := pl.Line.(type) {
		case domain.PartialLine:
			pl.Keep = true
			pl.Qty = partialQty(l, s)
			pl.Total = pricing.LineTotal(it, pl.Qty)
			pl.Substitutes = resolveSubstitutes(o, it.ItemID, s, &p.Issues)
		case domain.OutOfStockLine:
			pl.Substitutes = resolveSubstitutes(o, it.ItemID, s, &p.Issues)
		default:
			pl.Keep = true
			pl.Qty = it.Quantity()
			pl.Total = pricing.CarryThroughTotal(it)
			if s.HasSelections(it.ItemID) {
				p.Issues = append(p.Issues, Issue{Kind: IssueNotShort, MainItemID: it.ItemID})
			}
		}
		if pl.Keep {
			p.Total = p.Total.Add(pl.Total)
		}
		for _, sub := range pl.Substitutes {
			p.Total = p.Total.Add(sub.Total)
		}
		p.Lines = append(p.Lines, pl)
	}
	return p
}

// CalculateTotal is the live, unrounded revision total.
func CalculateTotal(o domain.Order, s State) decimal.Decimal {
	return BuildPlan(o, s).Total
}

// Due is the rounded amount the customer has to pay.
func Due(o domain.Order, s State) decimal.Decimal {
	return pricing.RoundToTenCents(CalculateTotal(o, s))
}

// PayAmount is the amount field as the customer sees it: the live due amount
// when paying exact, else what they typed.
func PayAmount(o domain.Order, s State) string {
	if s.exact {
		return Due(o, s).StringFixed(2)
	}
	return s.amountText
}

func partialQty(l domain.PartialLine, s State) decimal.Decimal {
	adj, ok := s.AdjustedQty(l.ItemID)
	if !ok {
		return l.Kept
	}
	lower := decimal.Min(decimal.NewFromInt(1), l.MaxQty)
	if adj.LessThan(lower) {
		return lower
	}
	if adj.GreaterThan(l.MaxQty) {
		return l.MaxQty
	}
	return adj
}

func resolveSubstitutes(o domain.Order, mainID string, s State, issues *[]Issue) []PlannedSubstitute {
	var out []PlannedSubstitute
	for _, sel := range s.substitutes[mainID] {
		sub, ok := o.FindItem(sel.SubstituteID)
		if !ok || !sub.IsSubstitute {
			*issues = append(*issues, Issue{Kind: IssueUnknownSubstitute, MainItemID: mainID, SubstituteItemID: sel.SubstituteID})
			continue
		}
		if sub.Replaces != mainID {
			*issues = append(*issues, Issue{Kind: IssueWrongParent, MainItemID: mainID, SubstituteItemID: sel.SubstituteID})
			continue
		}
		if _, fixed := sub.FixedProposal(); !fixed && sel.Qty.GreaterThan(sub.OfferedMax()) {
			*issues = append(*issues, Issue{Kind: IssueOverMax, MainItemID: mainID, SubstituteItemID: sel.SubstituteID})
		}
		qty := pricing.SubstituteEffectiveQuantity(sub, sel.Qty)
		if !qty.IsPositive() {
			continue
		}
		out = append(out, PlannedSubstitute{
			Item:  sub,
			Qty:   qty,
			Total: pricing.SubstitutePrice(sub, sel.Qty),
		})
	}
	return out
}

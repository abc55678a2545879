// Package revision holds the customer's in-progress decisions for an order
// waiting for confirmation. State is immutable: every Action returns a new
// State and leaves the old one untouched.
package revision

import (
	"reserva-backend/internal/domain"

	"github.com/shopspring/decimal"
)

type Selection struct {
	SubstituteID string          `json:"substituteItemId"`
	Qty          decimal.Decimal `json:"qty"`
}

type State struct {
	substitutes map[string][]Selection
	canceled    map[string]bool
	adjusted    map[string]decimal.Decimal
	method      domain.PaymentMethod
	amountText  string
	exact       bool
}

func (s State) PaymentMethod() domain.PaymentMethod { return s.method }
func (s State) PayAmountText() string               { return s.amountText }
func (s State) ExactPayment() bool                  { return s.exact }

func (s State) IsCanceled(mainID string) bool {
	return s.canceled[mainID]
}

// Selections returns the substitutes chosen for mainID in selection order.
func (s State) Selections(mainID string) []Selection {
	return append([]Selection(nil), s.substitutes[mainID]...)
}

func (s State) HasSelections(mainID string) bool {
	return len(s.substitutes[mainID]) > 0
}

func (s State) AdjustedQty(mainID string) (decimal.Decimal, bool) {
	q, ok := s.adjusted[mainID]
	return q, ok
}

func (s State) clone() State {
	cp := s
	cp.substitutes = make(map[string][]Selection, len(s.substitutes))
	for k, v := range s.substitutes {
		cp.substitutes[k] = append([]Selection(nil), v...)
	}
	cp.canceled = make(map[string]bool, len(s.canceled))
	for k, v := range s.canceled {
		cp.canceled[k] = v
	}
	cp.adjusted = make(map[string]decimal.Decimal, len(s.adjusted))
	for k, v := range s.adjusted {
		cp.adjusted[k] = v
	}
	return cp
}

type Action interface {
	apply(State) State
}

func Apply(s State, a Action) State {
	if a == nil {
		return s
	}
	return a.apply(s)
}

func Replay(actions ...Action) State {
	var s State
	for _, a := range actions {
		s = Apply(s, a)
	}
	return s
}

// SelectSubstitute sets the quantity of one substitute for a main item. A
// positive quantity un-cancels the parent; zero removes the selection and,
// when it was the last one, the parent's entry.
type SelectSubstitute struct {
	MainItemID       string
	SubstituteItemID string
	Qty              decimal.Decimal
}

func (a SelectSubstitute) apply(s State) State {
	out := s.clone()
	sels := out.substitutes[a.MainItemID]
	idx := -1
	for i, sel := range sels {
		if sel.SubstituteID == a.SubstituteItemID {
			idx = i
			break
		}
	}
	if !a.Qty.IsPositive() {
		if idx >= 0 {
			sels = append(sels[:idx], sels[idx+1:]...)
		}
		if len(sels) == 0 {
			delete(out.substitutes, a.MainItemID)
		} else {
			out.substitutes[a.MainItemID] = sels
		}
		return out
	}
	if idx >= 0 {
		sels[idx].Qty = a.Qty
	} else {
		sels = append(sels, Selection{SubstituteID: a.SubstituteItemID, Qty: a.Qty})
	}
	out.substitutes[a.MainItemID] = sels
	delete(out.canceled, a.MainItemID)
	return out
}

// CancelItem withdraws a whole line; its substitute selections go with it.
type CancelItem struct {
	MainItemID string
}

func (a CancelItem) apply(s State) State {
	out := s.clone()
	out.canceled[a.MainItemID] = true
	delete(out.substitutes, a.MainItemID)
	return out
}

type RestoreItem struct {
	MainItemID string
}

func (a RestoreItem) apply(s State) State {
	out := s.clone()
	delete(out.canceled, a.MainItemID)
	return out
}

// ClearSubstitutes is the neutral "only take what is available" choice.
type ClearSubstitutes struct {
	MainItemID string
}

func (a ClearSubstitutes) apply(s State) State {
	out := s.clone()
	delete(out.substitutes, a.MainItemID)
	delete(out.canceled, a.MainItemID)
	return out
}

// AdjustQuantity changes how much of a partially stocked item the customer
// keeps. The bounds are enforced against the order in BuildPlan.
type AdjustQuantity struct {
	MainItemID string
	Qty        decimal.Decimal
}

func (a AdjustQuantity) apply(s State) State {
	out := s.clone()
	out.adjusted[a.MainItemID] = a.Qty
	return out
}

type SetPaymentMethod struct {
	Method domain.PaymentMethod
}

func (a SetPaymentMethod) apply(s State) State {
	out := s.clone()
	out.method = a.Method
	return out
}

// SetPayAmount records the free-text amount; typing turns exact payment off.
type SetPayAmount struct {
	Text string
}

func (a SetPayAmount) apply(s State) State {
	out := s.clone()
	out.amountText = a.Text
	out.exact = false
	return out
}

type SetExactPayment struct {
	Exact bool
}

func (a SetExactPayment) apply(s State) State {
	out := s.clone()
	out.exact = a.Exact
	return out
}

package server

import (
	"fmt"

	"reserva-backend/internal/apperr"
	"reserva-backend/internal/domain"
	"reserva-backend/internal/revision"

	"github.com/shopspring/decimal"
)

// actionReq is one customer decision as the browser sends it. The list is
// replayed in order through the revision reducer.
type actionReq struct {
	Type             string               `json:"type"`
	MainItemID       string               `json:"mainItemId,omitempty"`
	SubstituteItemID string               `json:"substituteItemId,omitempty"`
	Qty              *decimal.Decimal     `json:"qty,omitempty"`
	Method           domain.PaymentMethod `json:"method,omitempty"`
	Amount           string               `json:"amount,omitempty"`
	Exact            *bool                `json:"exact,omitempty"`
}

type revisionReq struct {
	Actions []actionReq `json:"actions"`
}

func (r revisionReq) decode() ([]revision.Action, error) {
	out := make([]revision.Action, 0, len(r.Actions))
	for i, a := range r.Actions {
		act, err := a.toAction()
		if err != nil {
			return nil, apperr.Validation(fmt.Sprintf("actions[%d]", i), err.Error())
		}
		out = append(out, act)
	}
	return out, nil
}

func (a actionReq) toAction() (revision.Action, error) {
	needMain := func() error {
		if a.MainItemID == "" {
			return fmt.Errorf("%s needs mainItemId", a.Type)
		}
		return nil
	}
	switch a.Type {
	case "select_substitute":
		if err := needMain(); err != nil {
			return nil, err
		}
		if a.SubstituteItemID == "" || a.Qty == nil {
			return nil, fmt.Errorf("select_substitute needs substituteItemId and qty")
		}
		return revision.SelectSubstitute{MainItemID: a.MainItemID, SubstituteItemID: a.SubstituteItemID, Qty: *a.Qty}, nil
	case "cancel_item":
		if err := needMain(); err != nil {
			return nil, err
		}
		return revision.CancelItem{MainItemID: a.MainItemID}, nil
	case "restore_item":
		if err := needMain(); err != nil {
			return nil, err
		}
		return revision.RestoreItem{MainItemID: a.MainItemID}, nil
	case "clear_substitutes":
		if err := needMain(); err != nil {
			return nil, err
		}
		return revision.ClearSubstitutes{MainItemID: a.MainItemID}, nil
	case "adjust_quantity":
		if err := needMain(); err != nil {
			return nil, err
		}
		if a.Qty == nil {
			return nil, fmt.Errorf("adjust_quantity needs qty")
		}
		return revision.AdjustQuantity{MainItemID: a.MainItemID, Qty: *a.Qty}, nil
	case "set_payment_method":
		return revision.SetPaymentMethod{Method: a.Method}, nil
	case "set_pay_amount":
		return revision.SetPayAmount{Text: a.Amount}, nil
	case "set_exact_payment":
		exact := true
		if a.Exact != nil {
			exact = *a.Exact
		}
		return revision.SetExactPayment{Exact: exact}, nil
	default:
		return nil, fmt.Errorf("unknown action %q", a.Type)
	}
}

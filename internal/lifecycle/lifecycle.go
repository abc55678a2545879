package lifecycle

import (
	"fmt"
	"time"

	"reserva-backend/internal/apperr"
	"reserva-backend/internal/domain"
)

var transitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderPending:              {domain.OrderInReview, domain.OrderCanceled},
	domain.OrderInReview:             {domain.OrderAwaitingConfirmation, domain.OrderCanceled},
	domain.OrderAwaitingConfirmation: {domain.OrderConfirmed, domain.OrderCanceled},
	domain.OrderConfirmed:            {domain.OrderPreparing, domain.OrderAwaitingConfirmation, domain.OrderCanceled},
	domain.OrderPreparing:            {domain.OrderReady, domain.OrderCanceled},
	domain.OrderReady:                {domain.OrderDelivered, domain.OrderCanceled},
}

func IsTerminal(s domain.OrderStatus) bool {
	return s == domain.OrderDelivered || s == domain.OrderCanceled
}

func CanTransition(from, to domain.OrderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves o to the next state and appends the history entry.
func Transition(o *domain.Order, to domain.OrderStatus, at time.Time, comment string) error {
	if !CanTransition(o.Status, to) {
		return apperr.Conflict(fmt.Sprintf("order cannot go from %s to %s", o.Status, to))
	}
	o.Status = to
	o.UpdatedAt = at
	o.AppendHistory(to, at, comment)
	return nil
}

type Phase string

const (
	PhaseNone           Phase = ""
	PhaseReconciliation Phase = "reconciliation"
	PhasePaymentOnly    Phase = "payment_only"
)

// CurrentPhase tells which renegotiation an order waiting for the customer
// is in. A change rejection by staff scopes it to payment fields only.
func CurrentPhase(o domain.Order) Phase {
	if o.Status != domain.OrderAwaitingConfirmation {
		return PhaseNone
	}
	if o.Payment.ChangeRejected {
		return PhasePaymentOnly
	}
	return PhaseReconciliation
}

// CustomerCancellable reports whether the owner may still withdraw the order.
func CustomerCancellable(o domain.Order) bool {
	switch o.Status {
	case domain.OrderPending, domain.OrderAwaitingConfirmation:
		return true
	}
	return o.Payment.ChangeRejected && !IsTerminal(o.Status)
}

// ItemNeedsConfirmation is the creation-time rule: the price is hidden, or a
// weighed item has no price yet.
func ItemNeedsConfirmation(it domain.OrderItem) bool {
	if !it.PriceVisible() {
		return true
	}
	return it.Unit == domain.UnitKilogram && it.BasePrice.IsZero()
}

// RequiresConfirmation is true when any main item is short on stock or
// carries a price the customer has not seen.
func RequiresConfirmation(items []domain.OrderItem) bool {
	for _, it := range items {
		if it.IsSubstitute {
			continue
		}
		switch it.StatusOrDefault() {
		case domain.ItemOutOfStock, domain.ItemPartialStock:
			return true
		}
		if it.NeedsConfirmation {
			return true
		}
	}
	return false
}

// Package reconcile turns a customer's revision decisions into the final item
// list, total and payment of an order. Both entry points work on a copy of
// the order: on error the caller's order is untouched and nothing should be
// persisted.
package reconcile

import (
	"fmt"
	"time"

	"reserva-backend/internal/apperr"
	"reserva-backend/internal/domain"
	"reserva-backend/internal/lifecycle"
	"reserva-backend/internal/payment"
	"reserva-backend/internal/pricing"
	"reserva-backend/internal/revision"
	"reserva-backend/internal/timer"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Options struct {
	Now    time.Time
	Logger *zap.Logger
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now().UTC()
	}
	return o.Now
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

type Result struct {
	Order domain.Order
	// Total is the unrounded sum of the materialized final prices.
	Total  decimal.Decimal
	Issues []revision.Issue
}

// SyntheticID names a materialized substitute that cannot take its parent's
// slot. It depends only on the two ids so a replayed commit is reproducible.
func SyntheticID(parentID, substituteID string) string {
	return parentID + "-sub-" + substituteID
}

// Commit accepts the revision s for o.
func Commit(o domain.Order, s revision.State, opts Options) (Result, error) {
	now := opts.now()
	log := opts.logger().With(zap.String("order_id", o.OrderID))

	switch lifecycle.CurrentPhase(o) {
	case lifecycle.PhaseReconciliation:
	case lifecycle.PhasePaymentOnly:
		return Result{}, apperr.Conflict("only the payment can be changed on this order")
	default:
		return Result{}, apperr.Conflict(fmt.Sprintf("order is %s, nothing to confirm", o.Status))
	}
	if o.FinalTotal != nil {
		return Result{}, apperr.Conflict("order was already reconciled")
	}
	if timer.IsExpired(o, now) {
		return Result{}, apperr.Expired()
	}

	plan := revision.BuildPlan(o, s)
	due := pricing.RoundToTenCents(plan.Total)
	method := s.PaymentMethod()
	tendered, err := payment.Validate(method, revision.PayAmount(o, s), due)
	if err != nil {
		return Result{}, err
	}

	items, sum := materialize(plan)
	final := pricing.RoundToTenCents(sum)

	out := o.Clone()
	out.Items = items
	out.FinalTotal = domain.Dec(final)
	out.Returnables = pricing.CountReturnables(items)
	out.ExpiresAt = nil
	out.RequiresConfirmation = false
	out.Payment = domain.Payment{Method: method, Amount: tendered}
	out.Change = payment.Change(method, tendered, final)
	if err := lifecycle.Transition(&out, domain.OrderConfirmed, now, "customer accepted changes, payment: "+string(method)); err != nil {
		return Result{}, err
	}

	for _, is := range plan.Issues {
		log.Warn("revision integrity issue ignored",
			zap.String("kind", string(is.Kind)),
			zap.String("main_item_id", is.MainItemID),
			zap.String("substitute_item_id", is.SubstituteItemID),
		)
	}
	return Result{Order: out, Total: sum, Issues: plan.Issues}, nil
}

func materialize(plan revision.Plan) ([]domain.OrderItem, decimal.Decimal) {
	items := make([]domain.OrderItem, 0, len(plan.Lines))
	sum := decimal.Zero
	add := func(it domain.OrderItem) {
		items = append(items, it)
		sum = sum.Add(*it.FinalPrice)
	}

	for _, pl := range plan.Lines {
		parent := pl.Line.Item()
		switch pl.Line.(type) {
		case domain.OutOfStockLine:
			for i, sub := range pl.Substitutes {
				id := SyntheticID(parent.ItemID, sub.Item.ItemID)
				if i == 0 {
					id = parent.ItemID
				}
				add(promote(sub, id))
			}
		case domain.PartialLine:
			it := parent.Clone()
			it.Status = domain.ItemModified
			it.FinalQty = domain.Dec(pl.Qty)
			it.FinalPrice = domain.Dec(pl.Total)
			it.StockAvailable = nil
			add(it)
			for _, sub := range pl.Substitutes {
				add(promote(sub, SyntheticID(parent.ItemID, sub.Item.ItemID)))
			}
		default:
			it := parent.Clone()
			it.FinalQty = domain.Dec(pl.Qty)
			it.FinalPrice = domain.Dec(pl.Total)
			add(it)
		}
	}
	return items, sum
}

// promote turns a chosen substitute into a regular line. The proposal fields
// stay so the accepted weight or count can still be shown.
func promote(ps revision.PlannedSubstitute, id string) domain.OrderItem {
	it := ps.Item.Clone()
	it.ItemID = id
	it.IsSubstitute = false
	it.Replaces = ""
	it.Status = domain.ItemAvailable
	it.FinalQty = domain.Dec(ps.Qty)
	it.FinalPrice = domain.Dec(ps.Total)
	return it
}

// CommitPayment resolves the payment-only renegotiation that follows a
// change rejection. Items and total_final are left as they are.
func CommitPayment(o domain.Order, method domain.PaymentMethod, amountText string, opts Options) (Result, error) {
	now := opts.now()

	if lifecycle.CurrentPhase(o) != lifecycle.PhasePaymentOnly {
		return Result{}, apperr.Conflict("order is not waiting for a payment change")
	}
	if timer.IsExpired(o, now) {
		return Result{}, apperr.Expired()
	}
	if o.FinalTotal == nil {
		return Result{}, apperr.Integrity("order has no final total")
	}
	due := *o.FinalTotal

	tendered, err := payment.Validate(method, amountText, due)
	if err != nil {
		return Result{}, err
	}
	prev := o.Payment
	if tendered != nil && prev.Method == domain.PaymentCash && prev.Amount != nil &&
		tendered.Equal(*prev.Amount) && tendered.GreaterThan(due) {
		return Result{}, apperr.Validation(payment.FieldAmount, "the store cannot give change for S/ "+tendered.StringFixed(2))
	}

	out := o.Clone()
	out.Payment = domain.Payment{Method: method, Amount: tendered}
	out.Change = payment.Change(method, tendered, due)
	out.ExpiresAt = nil
	if err := lifecycle.Transition(&out, domain.OrderConfirmed, now, "payment updated: "+string(method)); err != nil {
		return Result{}, err
	}
	return Result{Order: out, Total: due}, nil
}

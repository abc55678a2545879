package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"reserva-backend/internal/apperr"
	"reserva-backend/internal/domain"
	"reserva-backend/internal/lifecycle"
	"reserva-backend/internal/revision"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"
)

type reconciliationContext struct {
	svc     *OrderService
	clock   *clock
	order   *domain.Order
	ids     map[string]string
	review  ReviewData
	actions []revision.Action
	err     error
}

const acceptanceUser = "u-accept"

func (c *reconciliationContext) reset() {
	svc, _, _, clk := newService()
	c.svc = svc
	c.clock = clk
	c.order = nil
	c.ids = map[string]string{}
	c.review = ReviewData{}
	c.actions = nil
	c.err = nil
}

func (c *reconciliationContext) theReservationWindowIs(minutes int) error {
	c.svc.ReservationWindow = time.Duration(minutes) * time.Minute
	return nil
}

func (c *reconciliationContext) aCustomerOrderWith(qty, unit, name, price string) error {
	q, err := decimal.NewFromString(qty)
	if err != nil {
		return err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return err
	}
	o, err := c.svc.Create(context.Background(), acceptanceUser, CreateOrderData{Items: []CartLine{
		{ProductID: "p-" + name, Name: name, Unit: domain.Unit(unit), Qty: q, BasePrice: p},
	}})
	if err != nil {
		return err
	}
	c.order = o
	c.ids[name] = o.Items[0].ItemID
	_, err = c.svc.BeginReview(context.Background(), o.OrderID)
	return err
}

func (c *reconciliationContext) submit() error {
	o, err := c.svc.SubmitReview(context.Background(), c.order.OrderID, c.review)
	if err != nil {
		return err
	}
	c.order = o
	for _, it := range o.Items {
		if it.IsSubstitute {
			c.ids[it.Name] = it.ItemID
		}
	}
	return nil
}

func (c *reconciliationContext) staffConfirmedEveryItemInStock() error {
	for _, it := range c.order.Items {
		c.review.Items = append(c.review.Items, ItemReview{ItemID: it.ItemID, Status: domain.ItemAvailable})
	}
	return c.submit()
}

func (c *reconciliationContext) staffMarkedWithInStock(name, stock string) error {
	s, err := decimal.NewFromString(stock)
	if err != nil {
		return err
	}
	c.review.Items = append(c.review.Items, ItemReview{ItemID: c.ids[name], Status: domain.ItemPartialStock, StockAvailable: &s})
	return nil
}

func (c *reconciliationContext) staffMarkedOutOfStock(name string) error {
	c.review.Items = append(c.review.Items, ItemReview{ItemID: c.ids[name], Status: domain.ItemOutOfStock})
	return nil
}

func (c *reconciliationContext) staffOfferedUpTo(sub, price, limit, parent string) error {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return err
	}
	m, err := decimal.NewFromString(limit)
	if err != nil {
		return err
	}
	c.review.Substitutes = append(c.review.Substitutes, SubstituteProposal{
		Replaces: c.ids[parent], ProductID: "p-" + sub, Name: sub, BasePrice: p, MaxQty: &m,
	})
	return c.submit()
}

func (c *reconciliationContext) staffProposedGrams(grams int, sub, price, parent string) error {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return err
	}
	g := decimal.NewFromInt(int64(grams))
	c.review.Substitutes = append(c.review.Substitutes, SubstituteProposal{
		Replaces: c.ids[parent], ProductID: "p-" + sub, Name: sub, BasePrice: p, ProposedGrams: &g,
	})
	return c.submit()
}

func (c *reconciliationContext) theCustomerSelects(qty, sub, parent string) error {
	q, err := decimal.NewFromString(qty)
	if err != nil {
		return err
	}
	c.actions = append(c.actions, revision.SelectSubstitute{MainItemID: c.ids[parent], SubstituteItemID: c.ids[sub], Qty: q})
	return nil
}

func (c *reconciliationContext) accept(extra ...revision.Action) error {
	o, err := c.svc.AcceptRevision(context.Background(), acceptanceUser, c.order.OrderID, append(c.actions, extra...))
	if err != nil {
		return err
	}
	c.order = o
	return nil
}

func (c *reconciliationContext) theCustomerPaysExact(method string) error {
	return c.accept(revision.SetPaymentMethod{Method: domain.PaymentMethod(method)}, revision.SetExactPayment{Exact: true})
}

func (c *reconciliationContext) theCustomerPaysWith(method, amount string) error {
	return c.accept(revision.SetPaymentMethod{Method: domain.PaymentMethod(method)}, revision.SetPayAmount{Text: amount})
}

func (c *reconciliationContext) theCustomerPays(method string) error {
	return c.accept(revision.SetPaymentMethod{Method: domain.PaymentMethod(method)})
}

func (c *reconciliationContext) staffReportNoChange() error {
	o, err := c.svc.RejectChange(context.Background(), c.order.OrderID)
	if err != nil {
		return err
	}
	c.order = o
	return nil
}

func (c *reconciliationContext) theCustomerCanOnlyRenegotiatePayment() error {
	if got := lifecycle.CurrentPhase(*c.order); got != lifecycle.PhasePaymentOnly {
		return fmt.Errorf("expected payment-only phase, got %q", got)
	}
	return nil
}

func (c *reconciliationContext) theCustomerSwitchesPaymentTo(method string) error {
	o, err := c.svc.ResolvePayment(context.Background(), acceptanceUser, c.order.OrderID, domain.PaymentMethod(method), "")
	if err != nil {
		return err
	}
	c.order = o
	return nil
}

func (c *reconciliationContext) theChangeIsNoLongerRejected() error {
	if c.order.Payment.ChangeRejected {
		return errors.New("rechazo_vuelto is still set")
	}
	if c.order.ExpiresAt != nil {
		return errors.New("expira_en should be cleared after confirmation")
	}
	return nil
}

func (c *reconciliationContext) theReservationWindowElapses() error {
	c.clock.advance(c.svc.ReservationWindow + time.Millisecond)
	return nil
}

func (c *reconciliationContext) theCountdownReportsExpired() error {
	tv, err := c.svc.TimerSnapshot(context.Background(), acceptanceUser, c.order.OrderID)
	if err != nil {
		return err
	}
	if !tv.Expired {
		return fmt.Errorf("expected expired countdown, %d ms remain", tv.RemainMS)
	}
	return nil
}

func (c *reconciliationContext) committingFailsWith(code string) error {
	c.err = c.accept(revision.SetPaymentMethod{Method: domain.PaymentYape})
	if c.err == nil {
		return errors.New("expected the commit to fail")
	}
	var ae *apperr.AppError
	if !errors.As(c.err, &ae) || ae.Code() != code {
		return fmt.Errorf("expected %s, got %v", code, c.err)
	}
	return nil
}

func (c *reconciliationContext) reload() error {
	o, err := c.svc.Get(context.Background(), acceptanceUser, c.order.OrderID)
	if err != nil {
		return err
	}
	c.order = o
	return nil
}

func (c *reconciliationContext) theOrderIs(status string) error {
	if err := c.reload(); err != nil {
		return err
	}
	if string(c.order.Status) != status {
		return fmt.Errorf("expected status %s, got %s", status, c.order.Status)
	}
	return nil
}

func equalMoney(label string, got *decimal.Decimal, want string) error {
	w, err := decimal.NewFromString(want)
	if err != nil {
		return err
	}
	if got == nil {
		return fmt.Errorf("%s is not set", label)
	}
	if !got.Equal(w) {
		return fmt.Errorf("expected %s %s, got %s", label, want, got)
	}
	return nil
}

func (c *reconciliationContext) totalFinalIs(want string) error {
	return equalMoney("total_final", c.order.FinalTotal, want)
}

func (c *reconciliationContext) theChangeIs(want string) error {
	return equalMoney("vuelto", c.order.Change, want)
}

func (c *reconciliationContext) itemByName(name string) (*domain.OrderItem, error) {
	for i := range c.order.Items {
		if c.order.Items[i].Name == name {
			return &c.order.Items[i], nil
		}
	}
	return nil, fmt.Errorf("no item named %q", name)
}

func (c *reconciliationContext) isKeptAtFor(name, qty, price string) error {
	it, err := c.itemByName(name)
	if err != nil {
		return err
	}
	if err := equalMoney(name+" quantity", it.FinalQty, qty); err != nil {
		return err
	}
	return equalMoney(name+" price", it.FinalPrice, price)
}

func (c *reconciliationContext) takesTheItemIDOf(sub, parent string) error {
	it, err := c.itemByName(sub)
	if err != nil {
		return err
	}
	if it.ItemID != c.ids[parent] {
		return fmt.Errorf("expected %s to carry id %s, got %s", sub, c.ids[parent], it.ItemID)
	}
	if _, err := c.itemByName(parent); err == nil {
		return fmt.Errorf("%s should have been replaced", parent)
	}
	return nil
}

func InitializeReconciliationScenario(ctx *godog.ScenarioContext) {
	c := &reconciliationContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		c.reset()
		return ctx, nil
	})

	ctx.Step(`^the reservation window is (\d+) minutes$`, c.theReservationWindowIs)
	ctx.Step(`^a customer order with ([\d.]+) "([^"]*)" of "([^"]*)" at ([\d.]+)$`, c.aCustomerOrderWith)
	ctx.Step(`^staff confirmed every item in stock$`, c.staffConfirmedEveryItemInStock)
	ctx.Step(`^staff marked "([^"]*)" with ([\d.]+) in stock$`, c.staffMarkedWithInStock)
	ctx.Step(`^staff marked "([^"]*)" out of stock$`, c.staffMarkedOutOfStock)
	ctx.Step(`^staff offered "([^"]*)" at ([\d.]+) up to ([\d.]+) for "([^"]*)"$`, c.staffOfferedUpTo)
	ctx.Step(`^staff proposed (\d+) grams of "([^"]*)" at ([\d.]+) for "([^"]*)"$`, c.staffProposedGrams)
	ctx.Step(`^the customer selects ([\d.]+) of "([^"]*)" for "([^"]*)"$`, c.theCustomerSelects)
	ctx.Step(`^the customer pays "([^"]*)" with the exact amount$`, c.theCustomerPaysExact)
	ctx.Step(`^the customer pays "([^"]*)" with "([^"]*)"$`, c.theCustomerPaysWith)
	ctx.Step(`^the customer pays "([^"]*)"$`, c.theCustomerPays)
	ctx.Step(`^staff report they have no change$`, c.staffReportNoChange)
	ctx.Step(`^the customer can only renegotiate the payment$`, c.theCustomerCanOnlyRenegotiatePayment)
	ctx.Step(`^the customer switches payment to "([^"]*)"$`, c.theCustomerSwitchesPaymentTo)
	ctx.Step(`^the change is no longer rejected$`, c.theChangeIsNoLongerRejected)
	ctx.Step(`^the reservation window elapses$`, c.theReservationWindowElapses)
	ctx.Step(`^the countdown reports the order expired$`, c.theCountdownReportsExpired)
	ctx.Step(`^committing the revision fails with "([^"]*)"$`, c.committingFailsWith)
	ctx.Step(`^the order is "([^"]*)"$`, c.theOrderIs)
	ctx.Step(`^total_final is ([\d.]+)$`, c.totalFinalIs)
	ctx.Step(`^the change is ([\d.]+)$`, c.theChangeIs)
	ctx.Step(`^"([^"]*)" is kept at ([\d.]+) for ([\d.]+)$`, c.isKeptAtFor)
	ctx.Step(`^"([^"]*)" takes the item id of "([^"]*)"$`, c.takesTheItemIDOf)
}

func TestReconciliationFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeReconciliationScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"../../features/reconciliation.feature"},
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

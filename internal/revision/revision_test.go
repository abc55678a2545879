package revision

import (
	"testing"

	"reserva-backend/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// shortOrder has one partially stocked item (5 requested, 2 available) with a
// free substitute, one out-of-stock item with a fixed weight proposal and a
// regular item.
func shortOrder() domain.Order {
	return domain.Order{
		OrderID: "o-1",
		Status:  domain.OrderAwaitingConfirmation,
		Items: []domain.OrderItem{
			{ItemID: "milk", Name: "Leche", Unit: domain.UnitPiece, RequestedQty: d("5"), BasePrice: d("4.20"),
				Status: domain.ItemPartialStock, StockAvailable: domain.Dec(d("2")), FinalQty: domain.Dec(d("2"))},
			{ItemID: "ham", Name: "Jamón", Unit: domain.UnitKilogram, RequestedQty: d("0.5"), BasePrice: d("30.00"),
				Status: domain.ItemOutOfStock},
			{ItemID: "bread", Name: "Pan", Unit: domain.UnitPiece, RequestedQty: d("6"), BasePrice: d("0.40")},
			{ItemID: "milk-b", Name: "Leche B", Unit: domain.UnitPiece, IsSubstitute: true, Replaces: "milk",
				BasePrice: d("3.00"), RequestedQty: d("10"), FinalQty: domain.Dec(d("10"))},
			{ItemID: "ham-b", Name: "Jamón B", Unit: domain.UnitKilogram, IsSubstitute: true, Replaces: "ham",
				BasePrice: d("12.00"), ProposedGrams: domain.Dec(d("250"))},
		},
	}
}

func TestApply_SelectUncancelsParent(t *testing.T) {
	s := Replay(CancelItem{MainItemID: "milk"})
	require.True(t, s.IsCanceled("milk"))

	next := Apply(s, SelectSubstitute{MainItemID: "milk", SubstituteItemID: "milk-b", Qty: d("2")})
	assert.False(t, next.IsCanceled("milk"))
	assert.True(t, s.IsCanceled("milk"), "previous state must not change")
	assert.Len(t, next.Selections("milk"), 1)
}

func TestApply_ZeroRemovesEntry(t *testing.T) {
	s := Replay(
		SelectSubstitute{MainItemID: "milk", SubstituteItemID: "a", Qty: d("2")},
		SelectSubstitute{MainItemID: "milk", SubstituteItemID: "b", Qty: d("1")},
		SelectSubstitute{MainItemID: "milk", SubstituteItemID: "a", Qty: d("3")},
	)
	sels := s.Selections("milk")
	require.Len(t, sels, 2)
	assert.Equal(t, "a", sels[0].SubstituteID, "selection order is kept on update")
	assert.True(t, sels[0].Qty.Equal(d("3")))

	s = Apply(s, SelectSubstitute{MainItemID: "milk", SubstituteItemID: "a", Qty: decimal.Zero})
	assert.Len(t, s.Selections("milk"), 1)
	s = Apply(s, SelectSubstitute{MainItemID: "milk", SubstituteItemID: "b", Qty: decimal.Zero})
	assert.False(t, s.HasSelections("milk"))
	_, present := s.substitutes["milk"]
	assert.False(t, present, "last removal drops the parent entry")
}

func TestApply_CancelClearsSelections(t *testing.T) {
	s := Replay(
		SelectSubstitute{MainItemID: "milk", SubstituteItemID: "milk-b", Qty: d("3")},
		CancelItem{MainItemID: "milk"},
	)
	assert.True(t, s.IsCanceled("milk"))
	assert.False(t, s.HasSelections("milk"))

	s = Apply(s, ClearSubstitutes{MainItemID: "milk"})
	assert.False(t, s.IsCanceled("milk"))
}

func TestApply_PaymentFields(t *testing.T) {
	s := Replay(SetPaymentMethod{Method: domain.PaymentCash}, SetExactPayment{Exact: true})
	assert.True(t, s.ExactPayment())

	s = Apply(s, SetPayAmount{Text: "20"})
	assert.False(t, s.ExactPayment(), "typing an amount turns exact payment off")
	assert.Equal(t, "20", s.PayAmountText())
	assert.Equal(t, domain.PaymentCash, s.PaymentMethod())
}

func TestCalculateTotal_NoDecisions(t *testing.T) {
	// 2 x 4.20 kept + ham out of stock + 6 x 0.40
	got := CalculateTotal(shortOrder(), State{})
	assert.True(t, got.Equal(d("10.8")), "got %s", got)
}

func TestCalculateTotal_PartialWithSubstitute(t *testing.T) {
	s := Replay(SelectSubstitute{MainItemID: "milk", SubstituteItemID: "milk-b", Qty: d("3")})
	got := CalculateTotal(shortOrder(), s)
	// 2 x 4.20 + 3 x 3.00 + 6 x 0.40
	assert.True(t, got.Equal(d("19.8")), "got %s", got)
}

func TestCalculateTotal_FixedProposalIgnoresChosenQty(t *testing.T) {
	for _, qty := range []string{"1", "3", "0.1"} {
		s := Replay(SelectSubstitute{MainItemID: "ham", SubstituteItemID: "ham-b", Qty: d(qty)})
		got := CalculateTotal(shortOrder(), s)
		// 8.40 + 0.25kg x 12.00 + 2.40
		assert.True(t, got.Equal(d("13.8")), "qty %s got %s", qty, got)
	}
}

func TestCalculateTotal_CancellationDominates(t *testing.T) {
	s := Replay(
		SelectSubstitute{MainItemID: "milk", SubstituteItemID: "milk-b", Qty: d("3")},
		SelectSubstitute{MainItemID: "ham", SubstituteItemID: "ham-b", Qty: d("1")},
		CancelItem{MainItemID: "milk"},
		CancelItem{MainItemID: "ham"},
	)
	got := CalculateTotal(shortOrder(), s)
	assert.True(t, got.Equal(d("2.4")), "got %s", got)
}

func TestCalculateTotal_AdjustedPartialQuantity(t *testing.T) {
	o := shortOrder()
	o.Items[0].FinalQty = domain.Dec(d("1"))

	s := Replay(AdjustQuantity{MainItemID: "milk", Qty: d("2")})
	assert.True(t, CalculateTotal(o, s).Equal(d("10.8")))

	s = Replay(AdjustQuantity{MainItemID: "milk", Qty: d("9")})
	assert.True(t, CalculateTotal(o, s).Equal(d("10.8")), "clamped to stock_disponible")

	s = Replay(AdjustQuantity{MainItemID: "milk", Qty: d("0")})
	assert.True(t, CalculateTotal(o, s).Equal(d("6.6")), "clamped to 1")
}

func TestBuildPlan_IntegrityIssues(t *testing.T) {
	o := shortOrder()
	o.Items = append(o.Items, domain.OrderItem{ItemID: "ghost", IsSubstitute: true, Replaces: "nope", BasePrice: d("1")})

	s := Replay(
		SelectSubstitute{MainItemID: "milk", SubstituteItemID: "milk-b", Qty: d("50")},
		SelectSubstitute{MainItemID: "milk", SubstituteItemID: "missing", Qty: d("1")},
		SelectSubstitute{MainItemID: "ham", SubstituteItemID: "milk-b", Qty: d("1")},
		SelectSubstitute{MainItemID: "bread", SubstituteItemID: "milk-b", Qty: d("1")},
	)
	p := BuildPlan(o, s)

	kinds := map[IssueKind]int{}
	for _, is := range p.Issues {
		kinds[is.Kind]++
	}
	assert.Equal(t, 1, kinds[IssueOrphanSubstitute])
	assert.Equal(t, 1, kinds[IssueOverMax])
	assert.Equal(t, 1, kinds[IssueUnknownSubstitute])
	assert.Equal(t, 1, kinds[IssueWrongParent])
	assert.Equal(t, 1, kinds[IssueNotShort])

	// 8.40 + 10 x 3.00 (clamped) + 2.40
	assert.True(t, p.Total.Equal(d("40.8")), "got %s", p.Total)
}

func TestPayAmount_ExactFollowsTotal(t *testing.T) {
	o := shortOrder()
	s := Replay(SetPaymentMethod{Method: domain.PaymentCash}, SetExactPayment{Exact: true})
	assert.Equal(t, "10.80", PayAmount(o, s))

	s = Apply(s, SelectSubstitute{MainItemID: "milk", SubstituteItemID: "milk-b", Qty: d("1")})
	assert.Equal(t, "13.80", PayAmount(o, s))
}

func TestCalculateTotal_PartialKeepsChilledUnitsFirst(t *testing.T) {
	chilled := d("5.50")
	o := domain.Order{
		OrderID: "o-2",
		Status:  domain.OrderAwaitingConfirmation,
		Items: []domain.OrderItem{
			{ItemID: "beer", Name: "Cerveza", Unit: domain.UnitPiece, RequestedQty: d("6"), ChilledQty: d("2"),
				BasePrice: d("5.00"), ChilledPrice: &chilled,
				Status: domain.ItemPartialStock, StockAvailable: domain.Dec(d("3")), FinalQty: domain.Dec(d("3"))},
		},
	}
	got := CalculateTotal(o, Replay())
	// 2 x 5.50 chilled + 1 x 5.00 ambient
	assert.True(t, got.Equal(d("16")), "got %s", got)

	p := BuildPlan(o, Replay())
	require.Len(t, p.Lines, 1)
	assert.True(t, p.Lines[0].Qty.Equal(d("3")))
}

package pricing

import (
	"testing"

	"reserva-backend/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRoundToTenCents(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"7.5", "7.5"},
		{"7.44", "7.4"},
		{"7.45", "7.5"},
		{"7.46", "7.5"},
		{"9.699", "9.7"},
		{"12.95", "13"},
		{"0.04", "0"},
		{"0.05", "0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := RoundToTenCents(d(tt.in))
			assert.True(t, got.Equal(d(tt.want)), "RoundToTenCents(%s) = %s, want %s", tt.in, got, tt.want)

			again := RoundToTenCents(got)
			assert.True(t, again.Equal(got), "rounding is not idempotent for %s", tt.in)
		})
	}
}

func TestLineTotal(t *testing.T) {
	plain := domain.OrderItem{BasePrice: d("2.50"), RequestedQty: d("3")}
	assert.True(t, LineTotal(plain, d("3")).Equal(d("7.5")))

	split := domain.OrderItem{
		BasePrice:    d("3.00"),
		ChilledPrice: domain.Dec(d("3.50")),
		ChilledQty:   d("2"),
		RequestedQty: d("5"),
	}
	// 3 ambient at 3.00 + 2 chilled at 3.50
	assert.True(t, LineTotal(split, d("5")).Equal(d("16")))
	// chilled units are kept first
	assert.True(t, LineTotal(split, d("1")).Equal(d("3.5")))
	assert.True(t, EffectiveUnitPrice(split, d("2")).Equal(d("3.5")))

	noAlt := domain.OrderItem{BasePrice: d("3.00"), ChilledQty: d("2"), RequestedQty: d("5")}
	assert.True(t, LineTotal(noAlt, d("5")).Equal(d("15")))
}

func TestDisplayLineTotal_HiddenPrice(t *testing.T) {
	hidden := false
	it := domain.OrderItem{BasePrice: d("4.00"), RequestedQty: d("2"), ShowPrice: &hidden}
	assert.True(t, DisplayLineTotal(it).IsZero())
	assert.True(t, CarryThroughTotal(it).IsZero())

	it.FinalPrice = domain.Dec(d("8.40"))
	assert.True(t, CarryThroughTotal(it).Equal(d("8.4")))
}

func TestCountReturnables(t *testing.T) {
	items := []domain.OrderItem{
		{ItemID: "a", Returnable: true, RequestedQty: d("3")},
		{ItemID: "b", Returnable: false, RequestedQty: d("4")},
		{ItemID: "c", Returnable: true, RequestedQty: d("6"), FinalQty: domain.Dec(d("2"))},
		{ItemID: "s", Returnable: true, RequestedQty: d("5"), IsSubstitute: true, Replaces: "b"},
	}
	assert.Equal(t, int64(5), CountReturnables(items))
}

func TestSubstituteQuantities(t *testing.T) {
	free := domain.OrderItem{IsSubstitute: true, BasePrice: d("3.00"), FinalQty: domain.Dec(d("10"))}
	assert.True(t, SubstituteEffectiveQuantity(free, d("3")).Equal(d("3")))
	assert.True(t, SubstituteEffectiveQuantity(free, d("12")).Equal(d("10")))
	assert.True(t, SubstitutePrice(free, d("3")).Equal(d("9")))

	weighed := domain.OrderItem{IsSubstitute: true, BasePrice: d("12.00"), ProposedGrams: domain.Dec(d("250"))}
	for _, chosen := range []string{"0", "1", "0.1", "5"} {
		assert.True(t, SubstituteEffectiveQuantity(weighed, d(chosen)).Equal(d("0.25")), "chosen %s", chosen)
		assert.True(t, SubstitutePrice(weighed, d(chosen)).Equal(d("3")), "chosen %s", chosen)
	}

	counted := domain.OrderItem{IsSubstitute: true, BasePrice: d("1.10"), ProposedQty: domain.Dec(d("4"))}
	assert.True(t, SubstituteEffectiveQuantity(counted, d("1")).Equal(d("4")))
	assert.True(t, SubstitutePrice(counted, d("1")).Equal(d("4.4")))
}

func TestEstimatedTotal_SkipsSubstitutesAndHidden(t *testing.T) {
	hidden := false
	items := []domain.OrderItem{
		{ItemID: "a", BasePrice: d("2.50"), RequestedQty: d("2")},
		{ItemID: "b", BasePrice: d("9.90"), RequestedQty: d("1"), ShowPrice: &hidden},
		{ItemID: "s", BasePrice: d("1.00"), RequestedQty: d("3"), IsSubstitute: true, Replaces: "a"},
	}
	assert.True(t, EstimatedTotal(items).Equal(d("5")))
}

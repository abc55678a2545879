package payment

import (
	"strings"

	"reserva-backend/internal/apperr"
	"reserva-backend/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	FieldMethod = "payment_method"
	FieldAmount = "pay_amount"
)

func ValidateMethod(m domain.PaymentMethod) error {
	if m == "" {
		return apperr.Validation(FieldMethod, "select a payment method")
	}
	if !m.Valid() {
		return apperr.Validation(FieldMethod, "unknown payment method "+string(m))
	}
	return nil
}

// ParseAmount reads a cash amount typed by the customer. It accepts an
// optional "S/" or "S/." prefix and a comma as decimal separator.
func ParseAmount(text string) (decimal.Decimal, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "S/.")
	s = strings.TrimPrefix(s, "S/")
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	if s == "" {
		return decimal.Zero, apperr.Validation(FieldAmount, "enter the cash amount you will pay with")
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, apperr.Validation(FieldAmount, "cash amount is not a number")
	}
	if v.IsNegative() {
		return decimal.Zero, apperr.Validation(FieldAmount, "cash amount cannot be negative")
	}
	return v, nil
}

func ValidateCash(tendered, due decimal.Decimal) error {
	if tendered.LessThan(due) {
		return apperr.Validation(FieldAmount, "cash amount is below the total of S/ "+due.StringFixed(2))
	}
	return nil
}

// Validate runs the checks a confirmation needs before anything is written.
// due must already be rounded. It returns the tendered amount for cash and
// nil for other methods.
func Validate(method domain.PaymentMethod, amountText string, due decimal.Decimal) (*decimal.Decimal, error) {
	if err := ValidateMethod(method); err != nil {
		return nil, err
	}
	if method != domain.PaymentCash {
		return nil, nil
	}
	tendered, err := ParseAmount(amountText)
	if err != nil {
		return nil, err
	}
	if err := ValidateCash(tendered, due); err != nil {
		return nil, err
	}
	return &tendered, nil
}

// Change is what the store owes back: tendered minus total for cash, nil
// otherwise.
func Change(method domain.PaymentMethod, tendered *decimal.Decimal, total decimal.Decimal) *decimal.Decimal {
	if method != domain.PaymentCash || tendered == nil {
		return nil
	}
	c := tendered.Sub(total)
	return &c
}

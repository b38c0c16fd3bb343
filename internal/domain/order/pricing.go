package order

import "github.com/shopspring/decimal"

// Fixed pricing policy. These never change at runtime.
var (
	// TaxRate is applied to the discounted subtotal.
	TaxRate = decimal.NewFromFloat(0.08)
	// FreeShippingThreshold is the subtotal at or above which shipping is waived.
	FreeShippingThreshold = decimal.NewFromInt(100)
	// StandardShippingCost is the flat shipping fee below the threshold.
	StandardShippingCost = decimal.NewFromFloat(9.99)
)

var hundred = decimal.NewFromInt(100)

// Totals holds the price breakdown for a set of order items.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals calculates the price breakdown for the given items.
//
// Each line contributes unitPrice * quantity * (1 - discount/100). Tax is 8%
// of the subtotal, shipping is waived at or above the free-shipping
// threshold, and tax and total are rounded to 2 decimal places via round2.
//
// The function is pure and deliberately permissive: quantities, prices, and
// discounts are used as given, so out-of-range inputs (negative quantity,
// discount above 100) produce correspondingly out-of-range results. Input
// validation belongs to callers.
func ComputeTotals(items []OrderItem) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}

	tax := round2(subtotal.Mul(TaxRate))

	shipping := StandardShippingCost
	if subtotal.GreaterThanOrEqual(FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Total:    round2(subtotal.Add(tax).Add(shipping)),
	}
}

// LineTotal returns the discounted price of the line:
// unitPrice * quantity * (1 - discount/100).
func (i OrderItem) LineTotal() decimal.Decimal {
	qty := decimal.NewFromInt(int64(i.Quantity))
	factor := decimal.NewFromInt(1).Sub(i.Discount.Div(hundred))
	return i.UnitPrice.Mul(qty).Mul(factor)
}

// round2 is the single rounding rule shared by all monetary calculations.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Package pricing turns cart lines plus promo, tip and delivery fee into the
// payable breakdown. It is a pure function of its inputs: no rounding, no
// clamping, no state.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/nazeru/quickshop-go/internal/catalog"
)

var hundred = decimal.NewFromInt(100)

type Line struct {
	Item     catalog.Item
	Quantity int
}

type Input struct {
	Lines       []Line
	Discount    decimal.Decimal
	Tip         int64
	DeliveryFee decimal.Decimal
}

// Result is derived on every read and never persisted.
type Result struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Discount    decimal.Decimal `json:"discount"`
	Tip         decimal.Decimal `json:"tip"`
	Total       decimal.Decimal `json:"total"`
	// Savings is what sale prices took off list prices. Display only.
	Savings decimal.Decimal `json:"savings"`
}

// LineSubtotal is unit price × quantity.
func LineSubtotal(l Line) decimal.Decimal {
	return l.Item.UnitPrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LineTax applies the line's own item tax rate.
func LineTax(l Line) decimal.Decimal {
	return LineSubtotal(l).Mul(l.Item.TaxRate).Div(hundred)
}

// Calculate computes the breakdown. Total may go negative when the discount
// exceeds everything else; callers decide how to present that.
func Calculate(in Input) Result {
	subtotal := decimal.Zero
	tax := decimal.Zero
	savings := decimal.Zero
	for _, l := range in.Lines {
		subtotal = subtotal.Add(LineSubtotal(l))
		tax = tax.Add(LineTax(l))
		if l.Item.OnSale() {
			savings = savings.Add(l.Item.Price.Sub(*l.Item.DiscountPrice).Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
	}
	tip := decimal.NewFromInt(in.Tip)
	return Result{
		Subtotal:    subtotal,
		Tax:         tax,
		DeliveryFee: in.DeliveryFee,
		Discount:    in.Discount,
		Tip:         tip,
		Total:       subtotal.Add(tax).Add(in.DeliveryFee).Add(tip).Sub(in.Discount),
		Savings:     savings,
	}
}

// Rounded returns a copy with every amount rounded half away from zero to
// places decimal places, for presentation.
func (r Result) Rounded(places int32) Result {
	return Result{
		Subtotal:    r.Subtotal.Round(places),
		Tax:         r.Tax.Round(places),
		DeliveryFee: r.DeliveryFee.Round(places),
		Discount:    r.Discount.Round(places),
		Tip:         r.Tip.Round(places),
		Total:       r.Total.Round(places),
		Savings:     r.Savings.Round(places),
	}
}

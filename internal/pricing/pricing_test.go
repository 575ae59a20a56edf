package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/nazeru/quickshop-go/internal/catalog"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func assertDec(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "%s = %s, want %s", field, got, want)
}

// Three distinct items with different tax rates, worked by hand:
//
//	rice   2 × 120.50 = 241.00, tax 5%  = 12.05
//	oil    1 × 180 (sale, list 200) = 180.00, tax 12% = 21.60
//	apples 3 × 33.33 = 99.99, tax 0%  = 0
//	subtotal 520.99, tax 33.65, fee 30, tip 20, discount 52.099
//	total = 520.99 + 33.65 + 30 + 20 - 52.099 = 552.541
func TestCalculate_HandComputedCart(t *testing.T) {
	in := Input{
		Lines: []Line{
			{Item: catalog.Item{ID: "rice", Price: dec("120.50"), TaxRate: dec("5")}, Quantity: 2},
			{Item: catalog.Item{ID: "oil", Price: dec("200"), DiscountPrice: decPtr("180"), TaxRate: dec("12")}, Quantity: 1},
			{Item: catalog.Item{ID: "apples", Price: dec("33.33"), TaxRate: dec("0")}, Quantity: 3},
		},
		Discount:    dec("52.099"),
		Tip:         20,
		DeliveryFee: dec("30"),
	}

	got := Calculate(in)

	assertDec(t, "520.99", got.Subtotal, "subtotal")
	assertDec(t, "33.65", got.Tax, "tax")
	assertDec(t, "30", got.DeliveryFee, "delivery fee")
	assertDec(t, "20", got.Tip, "tip")
	assertDec(t, "52.099", got.Discount, "discount")
	assertDec(t, "552.541", got.Total, "total")
	assertDec(t, "20", got.Savings, "savings")
}

func TestCalculate_TaxIsPerLineNotAggregate(t *testing.T) {
	// An averaged rate would give (100+100) × 8.5% = 17; per line it is 5 + 12.
	in := Input{Lines: []Line{
		{Item: catalog.Item{Price: dec("100"), TaxRate: dec("5")}, Quantity: 1},
		{Item: catalog.Item{Price: dec("100"), TaxRate: dec("12")}, Quantity: 1},
	}}
	assertDec(t, "17", Calculate(in).Tax, "tax")

	in.Lines[1].Quantity = 3
	// 5 + 36
	assertDec(t, "41", Calculate(in).Tax, "tax")
}

func TestCalculate_NoRoundingApplied(t *testing.T) {
	in := Input{Lines: []Line{
		{Item: catalog.Item{Price: dec("0.99"), TaxRate: dec("18")}, Quantity: 1},
	}}
	got := Calculate(in)
	assertDec(t, "0.1782", got.Tax, "tax")
	assertDec(t, "1.1682", got.Total, "total")
}

func TestCalculate_DiscountMayExceedEverything(t *testing.T) {
	in := Input{
		Lines:    []Line{{Item: catalog.Item{Price: dec("30")}, Quantity: 1}},
		Discount: dec("50"),
	}
	got := Calculate(in)
	assertDec(t, "-20", got.Total, "total")
}

func TestCalculate_EmptyCartStillChargesFee(t *testing.T) {
	got := Calculate(Input{DeliveryFee: dec("30")})
	assertDec(t, "0", got.Subtotal, "subtotal")
	assertDec(t, "30", got.Total, "total")
}

func TestResult_Rounded(t *testing.T) {
	r := Result{Subtotal: dec("10.005"), Tax: dec("0.1782"), Total: dec("-0.125")}
	got := r.Rounded(2)
	assertDec(t, "10.01", got.Subtotal, "subtotal")
	assertDec(t, "0.18", got.Tax, "tax")
	assertDec(t, "-0.13", got.Total, "total")
}

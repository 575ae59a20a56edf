// Package promo validates promo codes against a fixed rule table and tracks
// the currently applied code.
package promo

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Rule maps one code to a discount function of the subtotal.
type Rule struct {
	Code     string
	Discount func(subtotal decimal.Decimal) decimal.Decimal
}

// Percent discounts pct% of the subtotal.
func Percent(pct int64) func(decimal.Decimal) decimal.Decimal {
	p := decimal.New(pct, -2)
	return func(subtotal decimal.Decimal) decimal.Decimal {
		return subtotal.Mul(p)
	}
}

// Flat discounts a fixed amount regardless of subtotal. The discount is not
// floored at the subtotal.
func Flat(amount int64) func(decimal.Decimal) decimal.Decimal {
	a := decimal.NewFromInt(amount)
	return func(decimal.Decimal) decimal.Decimal { return a }
}

// PercentCapped discounts pct% of the subtotal, at most maxAmount.
func PercentCapped(pct, maxAmount int64) func(decimal.Decimal) decimal.Decimal {
	percent := Percent(pct)
	ceiling := decimal.NewFromInt(maxAmount)
	return func(subtotal decimal.Decimal) decimal.Decimal {
		return decimal.Min(percent(subtotal), ceiling)
	}
}

// DefaultRules is the storefront's code table. Codes are disjoint.
func DefaultRules() []Rule {
	return []Rule{
		{Code: "welcome10", Discount: Percent(10)},
		{Code: "flat50", Discount: Flat(50)},
		{Code: "welcome50", Discount: PercentCapped(50, 200)},
	}
}

func normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Engine holds the applied-code state. It is not safe for concurrent use;
// the cart ledger serializes access.
type Engine struct {
	rules    []Rule
	applied  *Rule
	discount decimal.Decimal
}

// NewEngine builds an engine over rules, or DefaultRules when none given.
func NewEngine(rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	normalized := make([]Rule, len(rules))
	for i, r := range rules {
		normalized[i] = Rule{Code: normalize(r.Code), Discount: r.Discount}
	}
	return &Engine{rules: normalized}
}

func (e *Engine) lookup(code string) (*Rule, bool) {
	code = normalize(code)
	for i := range e.rules {
		if e.rules[i].Code == code {
			return &e.rules[i], true
		}
	}
	return nil, false
}

// Apply validates code and computes its discount against subtotal. An
// unknown code leaves the engine not applied with a zero discount. Applying
// the same code again just recomputes.
func (e *Engine) Apply(code string, subtotal decimal.Decimal) (decimal.Decimal, bool) {
	rule, ok := e.lookup(code)
	if !ok {
		e.Remove()
		return decimal.Zero, false
	}
	e.applied = rule
	e.discount = rule.Discount(subtotal)
	return e.discount, true
}

// Refresh recomputes the applied code's discount for a new subtotal.
func (e *Engine) Refresh(subtotal decimal.Decimal) decimal.Decimal {
	if e.applied == nil {
		return decimal.Zero
	}
	e.discount = e.applied.Discount(subtotal)
	return e.discount
}

// Remove clears the applied code unconditionally.
func (e *Engine) Remove() {
	e.applied = nil
	e.discount = decimal.Zero
}

func (e *Engine) Applied() bool { return e.applied != nil }

func (e *Engine) Code() string {
	if e.applied == nil {
		return ""
	}
	return e.applied.Code
}

func (e *Engine) Discount() decimal.Decimal { return e.discount }

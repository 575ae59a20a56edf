package promo

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApply_RuleTable(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		subtotal string
		want     string
		accepted bool
	}{
		{"welcome10 is ten percent", "welcome10", "450", "45", true},
		{"flat50 is fixed", "flat50", "400", "50", true},
		{"flat50 not floored at subtotal", "flat50", "30", "50", true},
		{"welcome50 under cap", "welcome50", "300", "150", true},
		{"welcome50 capped", "welcome50", "500", "200", true},
		{"welcome50 exactly at cap", "welcome50", "400", "200", true},
		{"case insensitive", "WeLcOmE10", "100", "10", true},
		{"whitespace trimmed", "  FLAT50 ", "100", "50", true},
		{"unknown code", "freebie", "100", "0", false},
		{"empty code", "", "100", "0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine()
			got, ok := e.Apply(tt.code, dec(tt.subtotal))
			assert.Equal(t, tt.accepted, ok)
			assert.Truef(t, dec(tt.want).Equal(got), "discount = %s, want %s", got, tt.want)
			assert.Equal(t, tt.accepted, e.Applied())
		})
	}
}

func TestApply_Idempotent(t *testing.T) {
	e := NewEngine()
	first, ok := e.Apply("welcome10", dec("200"))
	require.True(t, ok)
	second, ok := e.Apply("welcome10", dec("200"))
	require.True(t, ok)

	assert.True(t, first.Equal(second))
	assert.Equal(t, "welcome10", e.Code())
}

func TestApply_RejectedCodeClearsPrevious(t *testing.T) {
	e := NewEngine()
	_, ok := e.Apply("flat50", dec("200"))
	require.True(t, ok)

	d, ok := e.Apply("bogus", dec("200"))
	assert.False(t, ok)
	assert.True(t, d.IsZero())
	assert.False(t, e.Applied())
	assert.True(t, e.Discount().IsZero())
}

func TestRemove_Unconditional(t *testing.T) {
	e := NewEngine()
	e.Remove()
	assert.False(t, e.Applied())

	e.Apply("welcome50", dec("100"))
	e.Remove()
	assert.False(t, e.Applied())
	assert.Equal(t, "", e.Code())
	assert.True(t, e.Discount().IsZero())
}

func TestRefresh_TracksSubtotal(t *testing.T) {
	e := NewEngine()
	assert.True(t, e.Refresh(dec("100")).IsZero(), "nothing applied")

	e.Apply("welcome50", dec("100"))
	assert.True(t, dec("50").Equal(e.Discount()))

	assert.True(t, dec("200").Equal(e.Refresh(dec("1000"))))
	assert.True(t, dec("20").Equal(e.Refresh(dec("40"))))
}

func TestNewEngine_CustomRules(t *testing.T) {
	e := NewEngine(Rule{Code: "STAFF", Discount: Percent(25)})

	d, ok := e.Apply("staff", dec("80"))
	require.True(t, ok)
	assert.True(t, dec("20").Equal(d))

	_, ok = e.Apply("welcome10", dec("80"))
	assert.False(t, ok, "default rules are not merged in")
}

package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazeru/quickshop-go/internal/api"
	"github.com/nazeru/quickshop-go/internal/cart"
	"github.com/nazeru/quickshop-go/internal/catalog"
	"github.com/nazeru/quickshop-go/internal/eligibility"
	"github.com/nazeru/quickshop-go/internal/geo"
	"github.com/nazeru/quickshop-go/internal/order/domain"
	"github.com/nazeru/quickshop-go/internal/storefront"
	"github.com/nazeru/quickshop-go/internal/store/memory"
	"github.com/nazeru/quickshop-go/internal/zone"
)

var hsr = geo.Coordinate{Lat: 12.9116, Lon: 77.6474}

func newServer(t *testing.T) string {
	t.Helper()
	store := catalog.NewStore([]catalog.Item{
		{ID: "milk", Name: "Toned Milk", Category: "dairy", Price: decimal.NewFromInt(28), TaxRate: decimal.Zero, Stock: 50, Available: true},
	})
	book := memory.NewAddressBook()
	sink := memory.NewOrderSink()
	reg := storefront.NewRegistry(storefront.Deps{
		Catalog:     store,
		Zones:       zone.NewIndex([]zone.Center{{ID: "blr-hsr", Location: hsr, RadiusKm: 4, Active: true}}),
		Sink:        sink,
		Addresses:   book,
		Cart:        cart.DefaultConfig(),
		Eligibility: eligibility.DefaultConfig(),
	})
	t.Cleanup(reg.Close)
	s := api.NewServer(reg, store)
	s.SetAddressSaver(book)
	s.SetOrderReader(sink)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestClient_EndToEnd(t *testing.T) {
	ctx := context.Background()
	c := New(newServer(t)+"/", "gita")

	cat, err := c.Catalog(ctx, CatalogQuery{Category: "dairy"})
	require.NoError(t, err)
	require.Len(t, cat.Items, 1)

	st, err := c.AddItem(ctx, "milk", 2)
	require.NoError(t, err)
	line := st.Lines[0].ID

	st, err = c.Increment(ctx, line)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Lines[0].Quantity)
	st, err = c.Decrement(ctx, line)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Lines[0].Quantity)
	st, err = c.SetQuantity(ctx, line, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, st.Count())

	st, err = c.ApplyPromo(ctx, "flat50")
	require.NoError(t, err)
	assert.True(t, st.PromoApplied)
	st, err = c.SetTip(ctx, 10)
	require.NoError(t, err)
	// 140 + 30 fee + 10 tip - 50
	assert.True(t, decimal.NewFromInt(130).Equal(st.Totals.Total))

	loc, err := c.Locate(ctx, hsr, false)
	require.NoError(t, err)
	assert.True(t, loc.Updated)
	assert.True(t, loc.Result.Serviceable)
	el, err := c.Eligibility(ctx)
	require.NoError(t, err)
	assert.Equal(t, "resolved", el.Status)

	require.NoError(t, c.SaveAddress(ctx, domain.Address{ID: "home", Line1: "27th Main", City: "Bengaluru", Location: hsr, Default: true}))
	addrs, err := c.Addresses(ctx)
	require.NoError(t, err)
	require.Len(t, addrs, 1)

	placed, err := c.Checkout(ctx, api.CheckoutRequest{PaymentMethod: "wallet"}, "")
	require.NoError(t, err)
	assert.Equal(t, "pending", placed.Status)

	o, err := c.Order(ctx, placed.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "gita", o.UserID)
	assert.Equal(t, "flat50", o.PromoCode)

	st, err = c.Cart(ctx)
	require.NoError(t, err)
	assert.True(t, st.Empty())
}

func TestClient_ErrorsCarryKind(t *testing.T) {
	ctx := context.Background()
	c := New(newServer(t), "hari")

	_, err := c.ApplyPromo(ctx, "nope")
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "VALIDATION", apiErr.Kind)

	anon := New(c.BaseURL, "")
	_, err = anon.Cart(ctx)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestClient_ConcurrentIncrementsAllLand(t *testing.T) {
	ctx := context.Background()
	c := New(newServer(t), "ivan")
	st, err := c.AddItem(ctx, "milk", 1)
	require.NoError(t, err)
	line := st.Lines[0].ID

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Increment(ctx, line)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st, err = c.Cart(ctx)
	require.NoError(t, err)
	assert.Equal(t, 21, st.Lines[0].Quantity)
}

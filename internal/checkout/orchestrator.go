// Package checkout turns the current cart into a pending order. The order
// write is the only external side effect; the cart is cleared strictly after
// the write is confirmed, and left untouched when it fails.
package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nazeru/quickshop-go/internal/apperr"
	"github.com/nazeru/quickshop-go/internal/cart"
	"github.com/nazeru/quickshop-go/internal/order/domain"
	"github.com/nazeru/quickshop-go/internal/pricing"
	"github.com/nazeru/quickshop-go/pkg/logging"
)

// SessionProvider reports the signed-in user, if any.
type SessionProvider interface {
	CurrentUser(ctx context.Context) (userID string, ok bool)
}

// OrderSink persists an order. An implementation that sees a repeated
// idempotency key returns the ID of the order already written.
type OrderSink interface {
	WriteOrder(ctx context.Context, o domain.Order) (domain.OrderID, error)
}

type AddressBook interface {
	Addresses(ctx context.Context, userID string) ([]domain.Address, error)
	DefaultAddress(ctx context.Context, userID string) (domain.Address, bool, error)
}

// Cart is the part of the ledger checkout reads and settles.
type Cart interface {
	Snapshot() cart.State
	Settle(ordered cart.State) cart.State
}

// Recorder counts checkout results; *metrics.EngineMetrics satisfies it.
type Recorder interface {
	CheckoutResult(result string, d time.Duration)
}

type Outcome struct {
	OrderID domain.OrderID
	Err     error
}

type idempotencyKey struct{}

// WithIdempotencyKey attaches a client-supplied key that the sink uses to
// collapse retried submissions into one order.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

func IdempotencyKey(ctx context.Context) string {
	k, _ := ctx.Value(idempotencyKey{}).(string)
	return k
}

type Orchestrator struct {
	Cart      Cart
	Session   SessionProvider
	Sink      OrderSink
	Addresses AddressBook
	Metrics   Recorder
	Now       func() time.Time
	NewID     func() domain.OrderID

	mu       sync.Mutex
	inFlight bool
}

func New(c Cart, session SessionProvider, sink OrderSink, addresses AddressBook) *Orchestrator {
	return &Orchestrator{
		Cart:      c,
		Session:   session,
		Sink:      sink,
		Addresses: addresses,
		Now:       time.Now,
		NewID:     func() domain.OrderID { return domain.OrderID(uuid.NewString()) },
	}
}

// Checkout places an order for the current cart.
//
// It fails with ErrNotAuthenticated without a session, ErrEmptyCart for an
// empty cart, and a validation error for a bad address or payment method;
// none of these touch the sink. A sink failure comes back as an
// external-write error wrapping the cause, with the cart intact. No retry is
// attempted.
func (o *Orchestrator) Checkout(ctx context.Context, addr domain.Address, method domain.PaymentMethod) (domain.OrderID, error) {
	start := o.Now()
	id, err := o.checkout(ctx, addr, method)
	o.record(err, o.Now().Sub(start))
	return id, err
}

// CheckoutDefault checks out to the user's default address.
func (o *Orchestrator) CheckoutDefault(ctx context.Context, method domain.PaymentMethod) (domain.OrderID, error) {
	userID, ok := o.Session.CurrentUser(ctx)
	if !ok {
		return "", apperr.ErrNotAuthenticated
	}
	if o.Addresses == nil {
		return "", apperr.ErrNoDefaultAddress
	}
	addr, found, err := o.Addresses.DefaultAddress(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load default address: %w", err)
	}
	if !found {
		return "", apperr.ErrNoDefaultAddress
	}
	return o.Checkout(ctx, addr, method)
}

// CheckoutAsync runs Checkout in the background. The submission is not
// cancelled with ctx once started; the channel receives exactly one Outcome.
func (o *Orchestrator) CheckoutAsync(ctx context.Context, addr domain.Address, method domain.PaymentMethod) <-chan Outcome {
	out := make(chan Outcome, 1)
	ctx = context.WithoutCancel(ctx)
	go func() {
		id, err := o.Checkout(ctx, addr, method)
		out <- Outcome{OrderID: id, Err: err}
	}()
	return out
}

func (o *Orchestrator) checkout(ctx context.Context, addr domain.Address, method domain.PaymentMethod) (domain.OrderID, error) {
	userID, ok := o.Session.CurrentUser(ctx)
	if !ok {
		return "", apperr.ErrNotAuthenticated
	}
	st := o.Cart.Snapshot()
	if st.Empty() {
		return "", apperr.ErrEmptyCart
	}
	if err := addr.Validate(); err != nil {
		return "", err
	}
	if !method.Valid() {
		return "", apperr.ErrInvalidPayment
	}

	if !o.begin() {
		return "", apperr.ErrCheckoutPending
	}
	defer o.end()

	// re-read under the in-flight guard so the order matches what is cleared
	st = o.Cart.Snapshot()
	if st.Empty() {
		return "", apperr.ErrEmptyCart
	}
	ord := o.buildOrder(userID, st, addr, method, IdempotencyKey(ctx))

	started := time.Now()
	id, err := o.Sink.WriteOrder(ctx, ord)
	if err != nil {
		logging.Log(logging.Fields{
			Service:    "checkout",
			UserID:     userID,
			OrderID:    string(ord.ID),
			Step:       "write_order",
			Status:     "failed",
			DurationMS: time.Since(started).Milliseconds(),
			Err:        err,
		})
		return "", apperr.NewExternalWrite("write order", err)
	}

	o.Cart.Settle(st)
	logging.Log(logging.Fields{
		Service:    "checkout",
		UserID:     userID,
		OrderID:    string(id),
		Step:       "write_order",
		Status:     "ok",
		DurationMS: time.Since(started).Milliseconds(),
	})
	return id, nil
}

func (o *Orchestrator) begin() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight {
		return false
	}
	o.inFlight = true
	return true
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	o.inFlight = false
	o.mu.Unlock()
}

func (o *Orchestrator) buildOrder(userID string, st cart.State, addr domain.Address, method domain.PaymentMethod, key string) domain.Order {
	now := o.Now().UTC()
	lines := make([]domain.OrderLine, len(st.Lines))
	for i, ln := range st.Lines {
		lines[i] = domain.OrderLine{
			ItemID:    string(ln.Item.ID),
			Name:      ln.Item.Name,
			Quantity:  ln.Quantity,
			UnitPrice: ln.Item.UnitPrice(),
			TaxRate:   ln.Item.TaxRate,
			LineTotal: pricing.LineSubtotal(pricing.Line{Item: ln.Item, Quantity: ln.Quantity}),
		}
	}
	return domain.Order{
		ID:             o.NewID(),
		UserID:         userID,
		Status:         domain.OrderStatusPending,
		Lines:          lines,
		Totals:         totalsOf(st.Totals),
		PromoCode:      st.PromoCode,
		Address:        addr,
		PaymentMethod:  method,
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func totalsOf(r pricing.Result) domain.Totals {
	return domain.Totals{
		Subtotal:    r.Subtotal,
		Tax:         r.Tax,
		DeliveryFee: r.DeliveryFee,
		Discount:    r.Discount,
		Tip:         r.Tip,
		Total:       r.Total,
	}
}

func (o *Orchestrator) record(err error, d time.Duration) {
	if o.Metrics == nil {
		return
	}
	result := "ok"
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		result = "invalid"
	case apperr.KindPrecondition:
		result = "precondition"
	case apperr.KindExternalWrite:
		result = "write_failed"
	default:
		if err != nil {
			result = "error"
		}
	}
	o.Metrics.CheckoutResult(result, d)
}

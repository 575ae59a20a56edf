// Package storefront keeps one cart ledger, eligibility resolver and checkout
// orchestrator per signed-in user, and fans catalog replacements out to every
// live cart.
package storefront

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/nazeru/quickshop-go/internal/apperr"
	"github.com/nazeru/quickshop-go/internal/cart"
	"github.com/nazeru/quickshop-go/internal/catalog"
	"github.com/nazeru/quickshop-go/internal/checkout"
	"github.com/nazeru/quickshop-go/internal/eligibility"
	"github.com/nazeru/quickshop-go/internal/geo"
	"github.com/nazeru/quickshop-go/internal/order/domain"
	"github.com/nazeru/quickshop-go/pkg/contracts"
	"github.com/nazeru/quickshop-go/pkg/metrics"
)

var (
	ErrUnknownItem = apperr.NewValidation("unknown catalog item")
	ErrUnknownLine = apperr.NewValidation("unknown cart line")

	ErrUnknownAddress = apperr.NewValidation("unknown delivery address")
)

// EventPublisher ships encoded events; *kafka.Publisher satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

type Deps struct {
	Catalog     *catalog.Store
	Zones       eligibility.Locator
	Sink        checkout.OrderSink
	Addresses   checkout.AddressBook
	Cart        cart.Config
	Eligibility eligibility.Config
	Metrics     *metrics.EngineMetrics
	Events      EventPublisher
	Log         *zap.Logger
	// ReplayKeys bounds the idempotency keys each shopper remembers;
	// the least recently used key is forgotten first.
	ReplayKeys int
}

const defaultReplayKeys = 256

type Registry struct {
	deps Deps

	mu       sync.Mutex
	shoppers map[string]*Shopper
	unfollow func()
}

func NewRegistry(d Deps) *Registry {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := &Registry{deps: d, shoppers: make(map[string]*Shopper)}
	if d.Catalog != nil {
		r.unfollow = d.Catalog.Subscribe(r.reconcile)
	}
	return r
}

func (r *Registry) reconcile(snap catalog.Snapshot) {
	r.mu.Lock()
	all := make([]*Shopper, 0, len(r.shoppers))
	for _, s := range r.shoppers {
		all = append(all, s)
	}
	r.mu.Unlock()

	for _, s := range all {
		before := s.Ledger.Snapshot().Version
		if st := s.Ledger.Reconcile(snap); st.Version != before {
			r.deps.Metrics.CartMutation("reconcile")
			r.deps.Log.Info("cart reconciled with catalog",
				zap.String("user_id", s.UserID), zap.Int("lines", len(st.Lines)))
		}
	}
}

// Shopper returns the user's session state, creating it on first use.
func (r *Registry) Shopper(userID string) *Shopper {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.shoppers[userID]; ok {
		return s
	}
	s := r.newShopper(userID)
	r.shoppers[userID] = s
	return s
}

// Users lists the users with a live session, sorted.
func (r *Registry) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.shoppers))
	for id := range r.shoppers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Forget drops a user's session; their cart is lost.
func (r *Registry) Forget(userID string) {
	r.mu.Lock()
	s, ok := r.shoppers[userID]
	delete(r.shoppers, userID)
	r.mu.Unlock()
	if ok {
		s.Resolver.Stop()
	}
}

func (r *Registry) Close() {
	if r.unfollow != nil {
		r.unfollow()
	}
	r.mu.Lock()
	all := r.shoppers
	r.shoppers = make(map[string]*Shopper)
	r.mu.Unlock()
	for _, s := range all {
		s.Resolver.Stop()
	}
}

func (r *Registry) newShopper(userID string) *Shopper {
	ledger := cart.NewLedger(r.deps.Cart)
	orch := checkout.New(ledger, ContextSession{}, r.deps.Sink, r.deps.Addresses)
	if r.deps.Metrics != nil {
		orch.Metrics = r.deps.Metrics
	}
	opts := []eligibility.Option{eligibility.WithLogger(r.deps.Log.With(zap.String("user_id", userID)))}
	if r.deps.Metrics != nil {
		opts = append(opts, eligibility.WithRecorder(r.deps.Metrics))
	}
	size := r.deps.ReplayKeys
	if size <= 0 {
		size = defaultReplayKeys
	}
	placed, _ := lru.New(size) // only fails for size <= 0
	return &Shopper{
		UserID:    userID,
		Ledger:    ledger,
		Resolver:  eligibility.NewResolver(r.deps.Zones, r.deps.Eligibility, opts...),
		Checkout:  orch,
		catalog:   r.deps.Catalog,
		addresses: r.deps.Addresses,
		metrics:   r.deps.Metrics,
		events:    r.deps.Events,
		log:       r.deps.Log,
		placed:    placed,
	}
}

// Shopper is one user's cart, location state and checkout.
type Shopper struct {
	UserID   string
	Ledger   *cart.Ledger
	Resolver *eligibility.Resolver
	Checkout *checkout.Orchestrator

	catalog   *catalog.Store
	addresses checkout.AddressBook
	metrics   *metrics.EngineMetrics
	events    EventPublisher
	log       *zap.Logger

	placed *lru.Cache // idempotency key -> domain.OrderID
}

// Add looks the item up in the live catalog and adds qty units of it.
func (s *Shopper) Add(id catalog.ItemID, qty int) (cart.State, error) {
	if s.catalog == nil {
		return s.Ledger.Snapshot(), ErrUnknownItem
	}
	item, ok := s.catalog.Item(id)
	if !ok {
		return s.Ledger.Snapshot(), ErrUnknownItem
	}
	s.metrics.CartMutation("add")
	return s.Ledger.AddItem(item, qty), nil
}

func (s *Shopper) onLine(id cart.LineID, op string, fn func(cart.LineID) cart.State) (cart.State, error) {
	if _, ok := s.Ledger.Line(id); !ok {
		return s.Ledger.Snapshot(), ErrUnknownLine
	}
	s.metrics.CartMutation(op)
	return fn(id), nil
}

func (s *Shopper) Increment(id cart.LineID) (cart.State, error) {
	return s.onLine(id, "increment", s.Ledger.Increment)
}

func (s *Shopper) Decrement(id cart.LineID) (cart.State, error) {
	return s.onLine(id, "decrement", s.Ledger.Decrement)
}

func (s *Shopper) Remove(id cart.LineID) (cart.State, error) {
	return s.onLine(id, "remove", s.Ledger.RemoveItem)
}

func (s *Shopper) SetQuantity(id cart.LineID, qty int) (cart.State, error) {
	return s.onLine(id, "set_quantity", func(id cart.LineID) cart.State {
		return s.Ledger.SetQuantity(id, qty)
	})
}

func (s *Shopper) Clear() cart.State {
	s.metrics.CartMutation("clear")
	return s.Ledger.Clear()
}

func (s *Shopper) ApplyPromo(code string) (cart.State, error) {
	st, err := s.Ledger.ApplyPromo(code)
	s.metrics.PromoResult(err == nil)
	return st, err
}

func (s *Shopper) RemovePromo() cart.State {
	s.metrics.CartMutation("remove_promo")
	return s.Ledger.RemovePromo()
}

func (s *Shopper) SetTip(tip int64) (cart.State, error) {
	st, err := s.Ledger.SetTip(tip)
	if err == nil {
		s.metrics.CartMutation("tip")
	}
	return st, err
}

// Locate feeds a device position to the resolver. Without force the call may
// be suppressed by the debounce guards, in which case ok is false and res is
// the last result, if any.
func (s *Shopper) Locate(coord geo.Coordinate, force bool) (res eligibility.Result, ok bool, err error) {
	if !coord.Valid() {
		return eligibility.Result{}, false, apperr.ErrInvalidCoordinate
	}
	if force {
		return s.Resolver.ForceCalculate(coord), true, nil
	}
	if res, ok = s.Resolver.Calculate(coord); ok {
		return res, true, nil
	}
	res, _ = s.Resolver.Current()
	return res, false, nil
}

// Track queues coord for a trailing calculation: only the last position
// reported within the debounce window is resolved.
func (s *Shopper) Track(coord geo.Coordinate) error {
	if !coord.Valid() {
		return apperr.ErrInvalidCoordinate
	}
	s.Resolver.Schedule(coord)
	return nil
}

// PlaceOrder checks out under an idempotency key. A key that already
// produced an order returns that order with replay set, without looking at
// the cart again; an empty key is never replayed.
func (s *Shopper) PlaceOrder(ctx context.Context, key string, addr domain.Address, method domain.PaymentMethod) (id domain.OrderID, replay bool, err error) {
	if key != "" {
		if v, ok := s.placed.Get(key); ok {
			return v.(domain.OrderID), true, nil
		}
		ctx = checkout.WithIdempotencyKey(ctx, key)
	}
	id, err = s.Checkout.Checkout(ctx, addr, method)
	if err != nil {
		return id, false, err
	}
	s.announceCleared(ctx, id)
	if key == "" {
		return id, false, nil
	}
	s.placed.Add(key, id)
	return id, false, nil
}

// announceCleared tells downstream consumers the cart behind an order is
// gone. The order is already placed, so a publish failure is only logged.
func (s *Shopper) announceCleared(ctx context.Context, id domain.OrderID) {
	if s.events == nil {
		return
	}
	evt := contracts.CartCleared(uuid.NewString(), string(id), s.UserID, time.Now().UTC())
	data, err := json.Marshal(evt)
	if err == nil {
		err = s.events.Publish(ctx, contracts.TopicOrders, string(id), data)
	}
	if err != nil {
		s.log.Warn("cart cleared event not published", zap.String("order_id", string(id)), zap.Error(err))
	}
}

// Address picks the delivery address for a checkout: the saved address with
// the given id, or the default one when id is empty.
func (s *Shopper) Address(ctx context.Context, id string) (domain.Address, error) {
	if s.addresses == nil {
		return domain.Address{}, apperr.ErrNoDefaultAddress
	}
	if id == "" {
		addr, ok, err := s.addresses.DefaultAddress(ctx, s.UserID)
		if err != nil {
			return domain.Address{}, err
		}
		if !ok {
			return domain.Address{}, apperr.ErrNoDefaultAddress
		}
		return addr, nil
	}
	all, err := s.addresses.Addresses(ctx, s.UserID)
	if err != nil {
		return domain.Address{}, err
	}
	for _, a := range all {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.Address{}, ErrUnknownAddress
}

func (s *Shopper) Addresses(ctx context.Context) ([]domain.Address, error) {
	if s.addresses == nil {
		return nil, nil
	}
	return s.addresses.Addresses(ctx, s.UserID)
}

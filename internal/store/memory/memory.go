// Package memory keeps orders and addresses in process, for dev mode and
// tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/nazeru/quickshop-go/internal/apperr"
	"github.com/nazeru/quickshop-go/internal/order/domain"
)

type OrderSink struct {
	mu     sync.Mutex
	orders map[domain.OrderID]domain.Order
	byKey  map[string]domain.OrderID
	seq    []domain.OrderID
}

func NewOrderSink() *OrderSink {
	return &OrderSink{
		orders: make(map[domain.OrderID]domain.Order),
		byKey:  make(map[string]domain.OrderID),
	}
}

// WriteOrder stores o. A repeated idempotency key from the same user returns
// the first order's ID and stores nothing.
func (s *OrderSink) WriteOrder(_ context.Context, o domain.Order) (domain.OrderID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.IdempotencyKey != "" {
		k := o.UserID + "\x00" + o.IdempotencyKey
		if id, ok := s.byKey[k]; ok {
			return id, nil
		}
		s.byKey[k] = o.ID
	}
	s.orders[o.ID] = o
	s.seq = append(s.seq, o.ID)
	return o.ID, nil
}

func (s *OrderSink) Order(_ context.Context, id domain.OrderID) (domain.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	return o, ok, nil
}

// Orders lists a user's orders oldest first.
func (s *OrderSink) Orders(userID string) []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, id := range s.seq {
		if o := s.orders[id]; o.UserID == userID {
			out = append(out, o)
		}
	}
	return out
}

type AddressBook struct {
	mu    sync.Mutex
	addrs map[string]map[string]domain.Address
}

func NewAddressBook() *AddressBook {
	return &AddressBook{addrs: make(map[string]map[string]domain.Address)}
}

// SaveAddress upserts a by ID. Saving a default address demotes the user's
// previous default.
func (b *AddressBook) SaveAddress(_ context.Context, userID string, a domain.Address) error {
	if a.ID == "" {
		return apperr.NewValidation("address id is required")
	}
	if err := a.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.addrs[userID]
	if m == nil {
		m = make(map[string]domain.Address)
		b.addrs[userID] = m
	}
	if a.Default {
		for id, other := range m {
			other.Default = false
			m[id] = other
		}
	}
	m[a.ID] = a
	return nil
}

func (b *AddressBook) Addresses(_ context.Context, userID string) ([]domain.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Address, 0, len(b.addrs[userID]))
	for _, a := range b.addrs[userID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *AddressBook) DefaultAddress(ctx context.Context, userID string) (domain.Address, bool, error) {
	addrs, _ := b.Addresses(ctx, userID)
	for _, a := range addrs {
		if a.Default {
			return a, true, nil
		}
	}
	return domain.Address{}, false, nil
}

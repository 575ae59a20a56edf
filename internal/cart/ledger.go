// Package cart owns the cart ledger: line items, promo state and tip, with
// totals re-derived on every change.
//
// Every mutating call is one read-modify-write of the whole line collection
// under the ledger lock, so two rapid increments on the same line both land.
// After any call, each catalog item has at most one line and every quantity
// is within [1, stock].
package cart

import (
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nazeru/quickshop-go/internal/apperr"
	"github.com/nazeru/quickshop-go/internal/catalog"
	"github.com/nazeru/quickshop-go/internal/pricing"
	"github.com/nazeru/quickshop-go/internal/promo"
)

// LineID identifies a cart slot. It is distinct from the item ID.
type LineID string

type LineItem struct {
	ID       LineID       `json:"id"`
	Item     catalog.Item `json:"item"`
	Quantity int          `json:"quantity"`
}

type Config struct {
	DeliveryFee decimal.Decimal
	PromoRules  []promo.Rule
	NewLineID   func() LineID
}

func DefaultConfig() Config {
	return Config{
		DeliveryFee: decimal.NewFromInt(30),
		PromoRules:  promo.DefaultRules(),
		NewLineID:   func() LineID { return LineID(uuid.NewString()) },
	}
}

// State is an immutable copy of the ledger taken after a mutation. Version
// increases with every change; observers may see notifications out of order
// under concurrent mutation and should ignore versions older than the last
// one they handled.
type State struct {
	Version      uint64         `json:"version"`
	Lines        []LineItem     `json:"lines"`
	PromoCode    string         `json:"promo_code,omitempty"`
	PromoApplied bool           `json:"promo_applied"`
	Tip          int64          `json:"tip"`
	Totals       pricing.Result `json:"totals"`
}

func (s State) Empty() bool { return len(s.Lines) == 0 }

// Count is the total number of units across lines.
func (s State) Count() int {
	n := 0
	for _, l := range s.Lines {
		n += l.Quantity
	}
	return n
}

type Ledger struct {
	mu      sync.Mutex
	cfg     Config
	lines   []LineItem
	promo   *promo.Engine
	tip     int64
	version uint64

	notifyMu sync.Mutex
	subsMu   sync.Mutex
	subsNext int
	subs     map[int]func(State)
}

func NewLedger(cfg Config) *Ledger {
	def := DefaultConfig()
	if cfg.NewLineID == nil {
		cfg.NewLineID = def.NewLineID
	}
	if cfg.PromoRules == nil {
		cfg.PromoRules = def.PromoRules
	}
	return &Ledger{
		cfg:   cfg,
		promo: promo.NewEngine(cfg.PromoRules...),
		subs:  make(map[int]func(State)),
	}
}

// Subscribe registers fn to receive the state after every change.
func (l *Ledger) Subscribe(fn func(State)) (cancel func()) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	id := l.subsNext
	l.subsNext++
	l.subs[id] = fn
	return func() {
		l.subsMu.Lock()
		delete(l.subs, id)
		l.subsMu.Unlock()
	}
}

func (l *Ledger) notify(st State) {
	l.subsMu.Lock()
	fns := make([]func(State), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.subsMu.Unlock()

	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

// mutate runs fn under the lock. fn reports whether it changed anything; on
// change the applied promo is re-derived, the version bumped and observers
// notified after the lock is released.
func (l *Ledger) mutate(fn func() bool) State {
	l.mu.Lock()
	changed := fn()
	if changed {
		l.version++
		l.promo.Refresh(l.subtotalLocked())
	}
	st := l.stateLocked()
	l.mu.Unlock()

	if changed {
		l.notify(st)
	}
	return st
}

func (l *Ledger) subtotalLocked() decimal.Decimal {
	sum := decimal.Zero
	for _, ln := range l.lines {
		sum = sum.Add(pricing.LineSubtotal(pricing.Line{Item: ln.Item, Quantity: ln.Quantity}))
	}
	return sum
}

func (l *Ledger) stateLocked() State {
	lines := make([]LineItem, len(l.lines))
	copy(lines, l.lines)
	pl := make([]pricing.Line, len(lines))
	for i, ln := range lines {
		pl[i] = pricing.Line{Item: ln.Item, Quantity: ln.Quantity}
	}
	return State{
		Version:      l.version,
		Lines:        lines,
		PromoCode:    l.promo.Code(),
		PromoApplied: l.promo.Applied(),
		Tip:          l.tip,
		Totals: pricing.Calculate(pricing.Input{
			Lines:       pl,
			Discount:    l.promo.Discount(),
			Tip:         l.tip,
			DeliveryFee: l.cfg.DeliveryFee,
		}),
	}
}

// Snapshot returns the current state with freshly computed totals.
func (l *Ledger) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateLocked()
}

func (l *Ledger) Line(id LineID) (LineItem, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if idx := l.indexOfLine(id); idx >= 0 {
		return l.lines[idx], true
	}
	return LineItem{}, false
}

func (l *Ledger) LineForItem(id catalog.ItemID) (LineItem, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if idx := l.indexOfItem(id); idx >= 0 {
		return l.lines[idx], true
	}
	return LineItem{}, false
}

func (l *Ledger) indexOfLine(id LineID) int {
	for i, ln := range l.lines {
		if ln.ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) indexOfItem(id catalog.ItemID) int {
	for i, ln := range l.lines {
		if ln.Item.ID == id {
			return i
		}
	}
	return -1
}

// removeAt drops a line without disturbing the order of the others.
func (l *Ledger) removeAt(idx int) {
	next := make([]LineItem, 0, len(l.lines)-1)
	next = append(next, l.lines[:idx]...)
	next = append(next, l.lines[idx+1:]...)
	l.lines = next
}

// stockOf is the most units of item a line may hold.
func stockOf(item catalog.Item) int {
	if !item.Available || item.Stock < 0 {
		return 0
	}
	return item.Stock
}

// setAt writes quantity into line idx, clamped to the item's stock, removing
// the line when nothing is left. Reports whether anything changed.
func (l *Ledger) setAt(idx int, item catalog.Item, quantity int) bool {
	quantity = min(quantity, stockOf(item))
	if quantity <= 0 {
		l.removeAt(idx)
		return true
	}
	cur := l.lines[idx]
	if cur.Quantity == quantity && cur.Item.Equal(item) {
		return false
	}
	l.lines[idx] = LineItem{ID: cur.ID, Item: item, Quantity: quantity}
	return true
}

// AddItem puts quantity units of item in the cart. An item already present
// merges into its line; either way the quantity is clamped to stock and a
// line that would hold nothing is not kept.
func (l *Ledger) AddItem(item catalog.Item, quantity int) State {
	return l.mutate(func() bool {
		if idx := l.indexOfItem(item.ID); idx >= 0 {
			return l.setAt(idx, item, l.lines[idx].Quantity+quantity)
		}
		quantity = min(quantity, stockOf(item))
		if quantity <= 0 {
			return false
		}
		l.lines = append(l.lines, LineItem{ID: l.cfg.NewLineID(), Item: item, Quantity: quantity})
		return true
	})
}

func (l *Ledger) RemoveItem(id LineID) State {
	return l.mutate(func() bool {
		idx := l.indexOfLine(id)
		if idx < 0 {
			return false
		}
		l.removeAt(idx)
		return true
	})
}

// SetQuantity replaces a line's quantity. Zero or less removes the line.
func (l *Ledger) SetQuantity(id LineID, quantity int) State {
	return l.mutate(func() bool {
		idx := l.indexOfLine(id)
		if idx < 0 {
			return false
		}
		return l.setAt(idx, l.lines[idx].Item, quantity)
	})
}

// Increment adds exactly one unit unless the line is already at stock.
func (l *Ledger) Increment(id LineID) State {
	return l.mutate(func() bool {
		idx := l.indexOfLine(id)
		if idx < 0 {
			return false
		}
		return l.setAt(idx, l.lines[idx].Item, l.lines[idx].Quantity+1)
	})
}

// Decrement removes exactly one unit; a line at 1 is removed.
func (l *Ledger) Decrement(id LineID) State {
	return l.mutate(func() bool {
		idx := l.indexOfLine(id)
		if idx < 0 {
			return false
		}
		return l.setAt(idx, l.lines[idx].Item, l.lines[idx].Quantity-1)
	})
}

// Clear empties the cart and resets promo and tip.
func (l *Ledger) Clear() State {
	return l.mutate(func() bool {
		l.lines = nil
		l.promo.Remove()
		l.tip = 0
		return true
	})
}

// Settle removes what an order took from the cart. When the ledger is still
// at ordered.Version this is Clear. Otherwise only the ordered quantities
// are taken off their lines, so units added while the order was being
// written stay in the cart; promo and tip are reset either way.
func (l *Ledger) Settle(ordered State) State {
	return l.mutate(func() bool {
		l.promo.Remove()
		l.tip = 0
		if l.version == ordered.Version {
			l.lines = nil
			return true
		}
		took := make(map[LineID]int, len(ordered.Lines))
		for _, ln := range ordered.Lines {
			took[ln.ID] = ln.Quantity
		}
		next := make([]LineItem, 0, len(l.lines))
		for _, ln := range l.lines {
			ln.Quantity -= took[ln.ID]
			if ln.Quantity > 0 {
				next = append(next, ln)
			}
		}
		l.lines = next
		return true
	})
}

// ApplyPromo validates code against the current subtotal. A rejected code
// leaves no promo applied and returns apperr.ErrInvalidPromo.
func (l *Ledger) ApplyPromo(code string) (State, error) {
	var accepted bool
	st := l.mutate(func() bool {
		_, accepted = l.promo.Apply(code, l.subtotalLocked())
		return true
	})
	if !accepted {
		return st, apperr.ErrInvalidPromo
	}
	return st, nil
}

func (l *Ledger) RemovePromo() State {
	return l.mutate(func() bool {
		applied := l.promo.Applied()
		l.promo.Remove()
		return applied
	})
}

func (l *Ledger) SetTip(tip int64) (State, error) {
	if tip < 0 {
		return l.Snapshot(), apperr.ErrInvalidTip
	}
	return l.mutate(func() bool {
		if l.tip == tip {
			return false
		}
		l.tip = tip
		return true
	}), nil
}

func (l *Ledger) ClearTip() State {
	st, _ := l.SetTip(0)
	return st
}

// Reconcile applies a catalog replacement to the lines: item copies are
// refreshed, quantities clamped to the new stock, and lines whose item is
// gone, unavailable or out of stock are dropped.
func (l *Ledger) Reconcile(snap catalog.Snapshot) State {
	return l.mutate(func() bool {
		changed := false
		next := make([]LineItem, 0, len(l.lines))
		for _, ln := range l.lines {
			item, ok := snap.Lookup(ln.Item.ID)
			if !ok {
				changed = true
				continue
			}
			q := min(ln.Quantity, stockOf(item))
			if q <= 0 {
				changed = true
				continue
			}
			if q != ln.Quantity || !item.Equal(ln.Item) {
				changed = true
			}
			next = append(next, LineItem{ID: ln.ID, Item: item, Quantity: q})
		}
		if changed {
			l.lines = next
		}
		return changed
	})
}

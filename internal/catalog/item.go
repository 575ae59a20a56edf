// Package catalog holds the sellable-item snapshot the cart prices against.
// Snapshots are immutable and always replaced wholesale; derived views
// (featured, by category) are rebuilt from scratch on every replacement.
package catalog

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

type ItemID string

// Item is one sellable product. TaxRate is a percentage (5 means 5%).
type Item struct {
	ID            ItemID           `json:"id"`
	Name          string           `json:"name"`
	Category      string           `json:"category,omitempty"`
	Price         decimal.Decimal  `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price,omitempty"`
	TaxRate       decimal.Decimal  `json:"tax_rate"`
	Stock         int              `json:"stock"`
	Available     bool             `json:"available"`
	Featured      bool             `json:"featured,omitempty"`
	ImageURL      string           `json:"image_url,omitempty"`
}

// UnitPrice is the price a line is charged at: the discount price when one
// is set, the regular price otherwise.
func (i Item) UnitPrice() decimal.Decimal {
	if i.DiscountPrice != nil {
		return *i.DiscountPrice
	}
	return i.Price
}

func (i Item) OnSale() bool {
	return i.DiscountPrice != nil && i.DiscountPrice.LessThan(i.Price)
}

// Equal compares by value. Decimals from separate loads are never ==.
func (i Item) Equal(o Item) bool {
	if i.ID != o.ID || i.Name != o.Name || i.Category != o.Category ||
		i.Stock != o.Stock || i.Available != o.Available ||
		i.Featured != o.Featured || i.ImageURL != o.ImageURL {
		return false
	}
	if !i.Price.Equal(o.Price) || !i.TaxRate.Equal(o.TaxRate) {
		return false
	}
	if (i.DiscountPrice == nil) != (o.DiscountPrice == nil) {
		return false
	}
	return i.DiscountPrice == nil || i.DiscountPrice.Equal(*o.DiscountPrice)
}

// Addable reports whether at least one unit can be put in a cart.
func (i Item) Addable() bool {
	return i.Available && i.Stock > 0
}

// Snapshot is a full-replacement view of the catalog.
type Snapshot struct {
	items      []Item
	byID       map[ItemID]int
	featured   []Item
	categories map[string][]Item
}

// NewSnapshot copies items and derives the lookup and view indexes. A later
// duplicate ID replaces the earlier entry in place.
func NewSnapshot(items []Item) Snapshot {
	s := Snapshot{
		items:      make([]Item, 0, len(items)),
		byID:       make(map[ItemID]int, len(items)),
		categories: make(map[string][]Item),
	}
	for _, it := range items {
		if idx, ok := s.byID[it.ID]; ok {
			s.items[idx] = it
			continue
		}
		s.byID[it.ID] = len(s.items)
		s.items = append(s.items, it)
	}
	for _, it := range s.items {
		if it.Featured && it.Available {
			s.featured = append(s.featured, it)
		}
		s.categories[it.Category] = append(s.categories[it.Category], it)
	}
	return s
}

func (s Snapshot) Len() int { return len(s.items) }

func (s Snapshot) Lookup(id ItemID) (Item, bool) {
	idx, ok := s.byID[id]
	if !ok {
		return Item{}, false
	}
	return s.items[idx], true
}

func (s Snapshot) Items() []Item { return clone(s.items) }

func (s Snapshot) Featured() []Item { return clone(s.featured) }

func (s Snapshot) InCategory(category string) []Item {
	return clone(s.categories[category])
}

// Categories returns the distinct non-empty categories, sorted.
func (s Snapshot) Categories() []string {
	out := make([]string, 0, len(s.categories))
	for c := range s.categories {
		if c != "" {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// Available returns the items that can currently be added to a cart.
func (s Snapshot) Available() []Item {
	var out []Item
	for _, it := range s.items {
		if it.Addable() {
			out = append(out, it)
		}
	}
	return out
}

// Search matches q case-insensitively against item names.
func (s Snapshot) Search(q string) []Item {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return s.Items()
	}
	var out []Item
	for _, it := range s.items {
		if strings.Contains(strings.ToLower(it.Name), q) {
			out = append(out, it)
		}
	}
	return out
}

func clone(items []Item) []Item {
	if len(items) == 0 {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

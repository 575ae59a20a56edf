package contracts

import "time"

type Event struct {
	EventID   string         `json:"event_id"`
	OrderID   string         `json:"order_id"`
	UserID    string         `json:"user_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
}

const TopicOrders = "quickshop.orders"

const (
	EventOrderCreated     = "order.created"
	EventOrderClearedCart = "order.cleared_cart"
)

// OrderCreatedLine is one line of an order.created payload. Amounts are
// decimal strings so no precision is lost in transit.
type OrderCreatedLine struct {
	ItemID    string `json:"item_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// OrderCreated builds the payload for an order.created event.
func OrderCreated(eventID, orderID, userID string, at time.Time, total, paymentMethod string, lines []OrderCreatedLine) Event {
	items := make([]map[string]any, len(lines))
	for i, l := range lines {
		items[i] = map[string]any{
			"item_id":    l.ItemID,
			"quantity":   l.Quantity,
			"unit_price": l.UnitPrice,
		}
	}
	return Event{
		EventID:   eventID,
		OrderID:   orderID,
		UserID:    userID,
		CreatedAt: at,
		Type:      EventOrderCreated,
		Payload: map[string]any{
			"total":          total,
			"payment_method": paymentMethod,
			"items":          items,
		},
	}
}

// CartCleared is emitted once the storefront has emptied the cart an order
// was placed from.
func CartCleared(eventID, orderID, userID string, at time.Time) Event {
	return Event{
		EventID:   eventID,
		OrderID:   orderID,
		UserID:    userID,
		CreatedAt: at,
		Type:      EventOrderClearedCart,
		Payload:   map[string]any{},
	}
}

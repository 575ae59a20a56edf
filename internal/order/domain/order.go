package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nazeru/quickshop-go/internal/apperr"
	"github.com/nazeru/quickshop-go/internal/geo"
)

type OrderID string

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPacked    OrderStatus = "packed"
	OrderStatusShipped   OrderStatus = "out_for_delivery"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentUPI    PaymentMethod = "upi"
	PaymentCard   PaymentMethod = "card"
	PaymentWallet PaymentMethod = "wallet"
)

// ParsePaymentMethod accepts the known methods case-insensitively.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case PaymentCOD, PaymentUPI, PaymentCard, PaymentWallet:
		return m, nil
	}
	return "", apperr.ErrInvalidPayment
}

func (m PaymentMethod) Valid() bool {
	_, err := ParsePaymentMethod(string(m))
	return err == nil
}

type Address struct {
	ID         string         `json:"id"`
	Label      string         `json:"label,omitempty"`
	Line1      string         `json:"line1"`
	Line2      string         `json:"line2,omitempty"`
	City       string         `json:"city"`
	PostalCode string         `json:"postal_code"`
	Location   geo.Coordinate `json:"location"`
	Default    bool           `json:"default"`
}

// Validate checks the fields an order needs to be delivered.
func (a Address) Validate() error {
	switch {
	case strings.TrimSpace(a.Line1) == "":
		return apperr.ErrInvalidAddress
	case strings.TrimSpace(a.City) == "":
		return apperr.ErrInvalidAddress
	case !a.Location.Valid():
		return apperr.ErrInvalidAddress
	}
	return nil
}

// OrderLine is the item as it was priced at checkout time.
type OrderLine struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type Totals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Discount    decimal.Decimal `json:"discount"`
	Tip         decimal.Decimal `json:"tip"`
	Total       decimal.Decimal `json:"total"`
}

type Order struct {
	ID             OrderID       `json:"id"`
	UserID         string        `json:"user_id"`
	Status         OrderStatus   `json:"status"`
	Lines          []OrderLine   `json:"lines"`
	Totals         Totals        `json:"totals"`
	PromoCode      string        `json:"promo_code,omitempty"`
	Address        Address       `json:"address"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
	IdempotencyKey string        `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ItemCount is the number of units across all lines.
func (o Order) ItemCount() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

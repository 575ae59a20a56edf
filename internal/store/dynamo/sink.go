// Package dynamo stores each order as one DynamoDB document keyed by
// order_id.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nazeru/quickshop-go/internal/geo"
	"github.com/nazeru/quickshop-go/internal/order/domain"
)

// idempotencySpace namespaces order IDs derived from idempotency keys.
var idempotencySpace = uuid.MustParse("6f1c2a0e-5b7d-4c53-9a8e-2f4b0d6c9e11")

// API is the subset of *dynamodb.Client the sink uses.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// NewClient loads the default AWS config for region. endpoint, when set,
// points the client at a local DynamoDB.
func NewClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

type OrderSink struct {
	api   API
	table string
}

func NewOrderSink(api API, table string) *OrderSink {
	return &OrderSink{api: api, table: table}
}

type lineDoc struct {
	ItemID    string `dynamodbav:"item_id"`
	Name      string `dynamodbav:"name"`
	Quantity  int    `dynamodbav:"quantity"`
	UnitPrice string `dynamodbav:"unit_price"`
	TaxRate   string `dynamodbav:"tax_rate"`
	LineTotal string `dynamodbav:"line_total"`
}

type addressDoc struct {
	ID         string  `dynamodbav:"id"`
	Label      string  `dynamodbav:"label,omitempty"`
	Line1      string  `dynamodbav:"line1"`
	Line2      string  `dynamodbav:"line2,omitempty"`
	City       string  `dynamodbav:"city"`
	PostalCode string  `dynamodbav:"postal_code,omitempty"`
	Lat        float64 `dynamodbav:"lat"`
	Lon        float64 `dynamodbav:"lon"`
}

type orderDoc struct {
	OrderID        string     `dynamodbav:"order_id"`
	UserID         string     `dynamodbav:"user_id"`
	Status         string     `dynamodbav:"status"`
	IdempotencyKey string     `dynamodbav:"idempotency_key,omitempty"`
	PaymentMethod  string     `dynamodbav:"payment_method"`
	PromoCode      string     `dynamodbav:"promo_code,omitempty"`
	Address        addressDoc `dynamodbav:"address"`
	Lines          []lineDoc  `dynamodbav:"lines"`
	Subtotal       string     `dynamodbav:"subtotal"`
	Tax            string     `dynamodbav:"tax"`
	DeliveryFee    string     `dynamodbav:"delivery_fee"`
	Discount       string     `dynamodbav:"discount"`
	Tip            string     `dynamodbav:"tip"`
	Total          string     `dynamodbav:"total"`
	CreatedAt      time.Time  `dynamodbav:"created_at"`
	UpdatedAt      time.Time  `dynamodbav:"updated_at"`
}

// documentID is the key an order is stored under. With an idempotency key
// it is derived from (user, key), so a retried submission collides with the
// first one instead of creating a second order.
func documentID(o domain.Order) domain.OrderID {
	if o.IdempotencyKey == "" {
		return o.ID
	}
	return domain.OrderID(uuid.NewSHA1(idempotencySpace, []byte(o.UserID+"\x00"+o.IdempotencyKey)).String())
}

// WriteOrder puts o under attribute_not_exists(order_id). A conditional
// failure means the same submission was already stored; its ID is returned.
func (s *OrderSink) WriteOrder(ctx context.Context, o domain.Order) (domain.OrderID, error) {
	o.ID = documentID(o)
	item, err := attributevalue.MarshalMap(toDoc(o))
	if err != nil {
		return "", fmt.Errorf("marshal order: %w", err)
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(order_id)"),
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return o.ID, nil
	}
	if err != nil {
		return "", fmt.Errorf("put order: %w", err)
	}
	return o.ID, nil
}

func (s *OrderSink) Order(ctx context.Context, id domain.OrderID) (domain.Order, bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: string(id)},
		},
	})
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("get order: %w", err)
	}
	if out.Item == nil {
		return domain.Order{}, false, nil
	}
	var doc orderDoc
	if err := attributevalue.UnmarshalMap(out.Item, &doc); err != nil {
		return domain.Order{}, false, fmt.Errorf("unmarshal order: %w", err)
	}
	o, err := fromDoc(doc)
	if err != nil {
		return domain.Order{}, false, err
	}
	return o, true, nil
}

func toDoc(o domain.Order) orderDoc {
	lines := make([]lineDoc, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = lineDoc{
			ItemID:    l.ItemID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.String(),
			TaxRate:   l.TaxRate.String(),
			LineTotal: l.LineTotal.String(),
		}
	}
	return orderDoc{
		OrderID:        string(o.ID),
		UserID:         o.UserID,
		Status:         string(o.Status),
		IdempotencyKey: o.IdempotencyKey,
		PaymentMethod:  string(o.PaymentMethod),
		PromoCode:      o.PromoCode,
		Address: addressDoc{
			ID:         o.Address.ID,
			Label:      o.Address.Label,
			Line1:      o.Address.Line1,
			Line2:      o.Address.Line2,
			City:       o.Address.City,
			PostalCode: o.Address.PostalCode,
			Lat:        o.Address.Location.Lat,
			Lon:        o.Address.Location.Lon,
		},
		Lines:       lines,
		Subtotal:    o.Totals.Subtotal.String(),
		Tax:         o.Totals.Tax.String(),
		DeliveryFee: o.Totals.DeliveryFee.String(),
		Discount:    o.Totals.Discount.String(),
		Tip:         o.Totals.Tip.String(),
		Total:       o.Totals.Total.String(),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

func fromDoc(d orderDoc) (domain.Order, error) {
	var firstErr error
	num := func(s string) decimal.Decimal {
		v, err := decimal.NewFromString(s)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("order %s: bad amount %q: %w", d.OrderID, s, err)
		}
		return v
	}
	lines := make([]domain.OrderLine, len(d.Lines))
	for i, l := range d.Lines {
		lines[i] = domain.OrderLine{
			ItemID:    l.ItemID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: num(l.UnitPrice),
			TaxRate:   num(l.TaxRate),
			LineTotal: num(l.LineTotal),
		}
	}
	o := domain.Order{
		ID:             domain.OrderID(d.OrderID),
		UserID:         d.UserID,
		Status:         domain.OrderStatus(d.Status),
		Lines:          lines,
		PromoCode:      d.PromoCode,
		PaymentMethod:  domain.PaymentMethod(d.PaymentMethod),
		IdempotencyKey: d.IdempotencyKey,
		Address: domain.Address{
			ID:         d.Address.ID,
			Label:      d.Address.Label,
			Line1:      d.Address.Line1,
			Line2:      d.Address.Line2,
			City:       d.Address.City,
			PostalCode: d.Address.PostalCode,
			Location:   geo.Coordinate{Lat: d.Address.Lat, Lon: d.Address.Lon},
		},
		Totals: domain.Totals{
			Subtotal:    num(d.Subtotal),
			Tax:         num(d.Tax),
			DeliveryFee: num(d.DeliveryFee),
			Discount:    num(d.Discount),
			Tip:         num(d.Tip),
			Total:       num(d.Total),
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	return o, firstErr
}

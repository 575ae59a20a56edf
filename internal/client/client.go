// Package client talks to the storefront HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nazeru/quickshop-go/internal/api"
	"github.com/nazeru/quickshop-go/internal/cart"
	"github.com/nazeru/quickshop-go/internal/geo"
	"github.com/nazeru/quickshop-go/internal/order/domain"
	"github.com/nazeru/quickshop-go/pkg/idempotency"
)

// Error is a non-2xx answer from the API.
type Error struct {
	Status  int
	Kind    string
	Message string
}

func (e *Error) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("status %d (%s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

type Client struct {
	BaseURL string
	UserID  string
	HTTP    *http.Client
}

func New(baseURL, userID string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		UserID:  userID,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, headers map[string]string) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.UserID != "" {
		req.Header.Set(api.UserHeader, c.UserID)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var eb struct {
			Error struct {
				Message string `json:"message"`
				Kind    string `json:"kind"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &eb) == nil && eb.Error.Message != "" {
			apiErr.Message = eb.Error.Message
			apiErr.Kind = eb.Error.Kind
		}
		return resp.StatusCode, apiErr
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) cartCall(ctx context.Context, method, path string, in any) (cart.State, error) {
	var st cart.State
	_, err := c.do(ctx, method, path, in, &st, nil)
	return st, err
}

// CatalogQuery narrows GET /catalog. Zero values are ignored.
type CatalogQuery struct {
	Category string
	Search   string
	Featured bool
}

func (c *Client) Catalog(ctx context.Context, q CatalogQuery) (api.CatalogResponse, error) {
	v := url.Values{}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Search != "" {
		v.Set("q", q.Search)
	}
	if q.Featured {
		v.Set("featured", "true")
	}
	path := "/catalog"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var out api.CatalogResponse
	_, err := c.do(ctx, http.MethodGet, path, nil, &out, nil)
	return out, err
}

func (c *Client) Cart(ctx context.Context) (cart.State, error) {
	return c.cartCall(ctx, http.MethodGet, "/cart", nil)
}

func (c *Client) ClearCart(ctx context.Context) (cart.State, error) {
	return c.cartCall(ctx, http.MethodDelete, "/cart", nil)
}

func (c *Client) AddItem(ctx context.Context, itemID string, qty int) (cart.State, error) {
	return c.cartCall(ctx, http.MethodPost, "/cart/items", api.AddItemRequest{ItemID: itemID, Quantity: &qty})
}

func linePath(id cart.LineID) string {
	return "/cart/lines/" + url.PathEscape(string(id))
}

func (c *Client) Increment(ctx context.Context, id cart.LineID) (cart.State, error) {
	return c.cartCall(ctx, http.MethodPost, linePath(id)+"/increment", nil)
}

func (c *Client) Decrement(ctx context.Context, id cart.LineID) (cart.State, error) {
	return c.cartCall(ctx, http.MethodPost, linePath(id)+"/decrement", nil)
}

func (c *Client) SetQuantity(ctx context.Context, id cart.LineID, qty int) (cart.State, error) {
	return c.cartCall(ctx, http.MethodPut, linePath(id), api.QuantityRequest{Quantity: qty})
}

func (c *Client) RemoveLine(ctx context.Context, id cart.LineID) (cart.State, error) {
	return c.cartCall(ctx, http.MethodDelete, linePath(id), nil)
}

func (c *Client) ApplyPromo(ctx context.Context, code string) (cart.State, error) {
	return c.cartCall(ctx, http.MethodPost, "/cart/promo", api.PromoRequest{Code: code})
}

func (c *Client) RemovePromo(ctx context.Context) (cart.State, error) {
	return c.cartCall(ctx, http.MethodDelete, "/cart/promo", nil)
}

func (c *Client) SetTip(ctx context.Context, tip int64) (cart.State, error) {
	return c.cartCall(ctx, http.MethodPut, "/cart/tip", api.TipRequest{Tip: tip})
}

func (c *Client) Locate(ctx context.Context, coord geo.Coordinate, force bool) (api.LocationResponse, error) {
	path := "/location"
	if force {
		path += "?force=true"
	}
	var out api.LocationResponse
	_, err := c.do(ctx, http.MethodPost, path, api.LocationRequest{Lat: coord.Lat, Lon: coord.Lon}, &out, nil)
	return out, err
}

// Track reports a position for a trailing calculation; the result shows up
// in Eligibility once the debounce window has passed.
func (c *Client) Track(ctx context.Context, coord geo.Coordinate) (api.LocationResponse, error) {
	var out api.LocationResponse
	_, err := c.do(ctx, http.MethodPost, "/location?trailing=true", api.LocationRequest{Lat: coord.Lat, Lon: coord.Lon}, &out, nil)
	return out, err
}

func (c *Client) Eligibility(ctx context.Context) (api.LocationResponse, error) {
	var out api.LocationResponse
	_, err := c.do(ctx, http.MethodGet, "/eligibility", nil, &out, nil)
	return out, err
}

func (c *Client) Addresses(ctx context.Context) ([]domain.Address, error) {
	var out []domain.Address
	_, err := c.do(ctx, http.MethodGet, "/addresses", nil, &out, nil)
	return out, err
}

func (c *Client) SaveAddress(ctx context.Context, a domain.Address) error {
	_, err := c.do(ctx, http.MethodPost, "/addresses", a, nil, nil)
	return err
}

// Checkout places an order. An empty key gets a fresh one, so a caller
// retrying should pass the key from the first attempt.
func (c *Client) Checkout(ctx context.Context, req api.CheckoutRequest, key string) (api.CheckoutResponse, error) {
	var out api.CheckoutResponse
	_, err := c.do(ctx, http.MethodPost, "/checkout", req, &out, map[string]string{idempotency.Header: idempotency.Ensure(key)})
	return out, err
}

func (c *Client) Order(ctx context.Context, id string) (domain.Order, error) {
	var out domain.Order
	_, err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, &out, nil)
	return out, err
}

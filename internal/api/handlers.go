package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nazeru/quickshop-go/internal/apperr"
	"github.com/nazeru/quickshop-go/internal/cart"
	"github.com/nazeru/quickshop-go/internal/catalog"
	"github.com/nazeru/quickshop-go/internal/eligibility"
	"github.com/nazeru/quickshop-go/internal/geo"
	"github.com/nazeru/quickshop-go/internal/order/domain"
	"github.com/nazeru/quickshop-go/internal/storefront"
	"github.com/nazeru/quickshop-go/pkg/idempotency"
)

type CatalogResponse struct {
	Items      []catalog.Item `json:"items"`
	Categories []string       `json:"categories"`
}

type AddItemRequest struct {
	ItemID   string `json:"item_id"`
	Quantity *int   `json:"quantity,omitempty"`
}

type QuantityRequest struct {
	Quantity int `json:"quantity"`
}

type PromoRequest struct {
	Code string `json:"code"`
}

type TipRequest struct {
	Tip int64 `json:"tip"`
}

type LocationRequest struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// LocationResponse carries the latest eligibility. Updated is false when
// the position was absorbed by the debounce guards.
type LocationResponse struct {
	Status  string              `json:"status"`
	Updated bool                `json:"updated"`
	Result  *eligibility.Result `json:"result,omitempty"`
}

type CheckoutRequest struct {
	PaymentMethod string          `json:"payment_method"`
	AddressID     string          `json:"address_id,omitempty"`
	Address       *domain.Address `json:"address,omitempty"`
}

type CheckoutResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

const statusReplay = "idempotent_replay"

func (s *Server) shopper(r *http.Request) *storefront.Shopper {
	user, _ := storefront.UserFrom(r.Context())
	return s.registry.Shopper(user)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	snap := s.catalog.Current()
	q := r.URL.Query()

	var items []catalog.Item
	switch {
	case q.Get("featured") == "true":
		items = snap.Featured()
	case q.Get("category") != "":
		items = snap.InCategory(q.Get("category"))
	default:
		items = snap.Search(q.Get("q"))
	}
	if term := strings.ToLower(strings.TrimSpace(q.Get("q"))); term != "" && (q.Get("featured") == "true" || q.Get("category") != "") {
		filtered := items[:0]
		for _, it := range items {
			if strings.Contains(strings.ToLower(it.Name), term) {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}
	if items == nil {
		items = []catalog.Item{}
	}
	writeJSON(w, http.StatusOK, CatalogResponse{Items: items, Categories: snap.Categories()})
}

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.shopper(r).Ledger.Snapshot())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.shopper(r).Clear())
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.ItemID) == "" {
		s.fail(w, r, apperr.NewValidation("item_id is required"))
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	if qty <= 0 {
		s.fail(w, r, apperr.ErrInvalidQuantity)
		return
	}
	st, err := s.shopper(r).Add(catalog.ItemID(req.ItemID), qty)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func lineID(r *http.Request) cart.LineID {
	return cart.LineID(chi.URLParam(r, "lineID"))
}

func (s *Server) lineOp(w http.ResponseWriter, r *http.Request, op func(cart.LineID) (cart.State, error)) {
	st, err := op(lineID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleIncrement(w http.ResponseWriter, r *http.Request) {
	s.lineOp(w, r, s.shopper(r).Increment)
}

func (s *Server) handleDecrement(w http.ResponseWriter, r *http.Request) {
	s.lineOp(w, r, s.shopper(r).Decrement)
}

func (s *Server) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	s.lineOp(w, r, s.shopper(r).Remove)
}

func (s *Server) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	var req QuantityRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	sh := s.shopper(r)
	s.lineOp(w, r, func(id cart.LineID) (cart.State, error) {
		return sh.SetQuantity(id, req.Quantity)
	})
}

func (s *Server) handleApplyPromo(w http.ResponseWriter, r *http.Request) {
	var req PromoRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := s.shopper(r).ApplyPromo(req.Code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRemovePromo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.shopper(r).RemovePromo())
}

func (s *Server) handleSetTip(w http.ResponseWriter, r *http.Request) {
	var req TipRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := s.shopper(r).SetTip(req.Tip)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	var req LocationRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	coord := geo.Coordinate{Lat: req.Lat, Lon: req.Lon}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	trailing, _ := strconv.ParseBool(r.URL.Query().Get("trailing"))
	sh := s.shopper(r)
	if trailing && !force {
		if err := sh.Track(coord); err != nil {
			s.fail(w, r, err)
			return
		}
		resp := LocationResponse{Status: sh.Resolver.Status().String()}
		if res, ok := sh.Resolver.Current(); ok {
			resp.Result = &res
		}
		writeJSON(w, http.StatusAccepted, resp)
		return
	}
	res, updated, err := sh.Locate(coord, force)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := LocationResponse{Status: sh.Resolver.Status().String(), Updated: updated}
	if updated || !res.ComputedAt.IsZero() {
		resp.Result = &res
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEligibility(w http.ResponseWriter, r *http.Request) {
	sh := s.shopper(r)
	resp := LocationResponse{Status: sh.Resolver.Status().String()}
	if res, ok := sh.Resolver.Current(); ok {
		resp.Result = &res
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddresses(w http.ResponseWriter, r *http.Request) {
	addrs, err := s.shopper(r).Addresses(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if addrs == nil {
		addrs = []domain.Address{}
	}
	writeJSON(w, http.StatusOK, addrs)
}

func (s *Server) handleSaveAddress(w http.ResponseWriter, r *http.Request) {
	if s.saver == nil {
		writeError(w, http.StatusNotImplemented, "address book is read-only")
		return
	}
	var addr domain.Address
	if err := decode(r, &addr); err != nil {
		s.fail(w, r, err)
		return
	}
	user, _ := storefront.UserFrom(r.Context())
	if err := s.saver.SaveAddress(r.Context(), user, addr); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, addr)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	method, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	sh := s.shopper(r)
	var addr domain.Address
	if req.Address != nil {
		addr = *req.Address
	} else if addr, err = sh.Address(r.Context(), req.AddressID); err != nil {
		s.fail(w, r, err)
		return
	}

	id, replay, err := sh.PlaceOrder(r.Context(), idempotency.Key(r), addr, method)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if replay {
		writeJSON(w, http.StatusOK, CheckoutResponse{OrderID: string(id), Status: statusReplay})
		return
	}
	writeJSON(w, http.StatusCreated, CheckoutResponse{OrderID: string(id), Status: string(domain.OrderStatusPending)})
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	if s.orders == nil {
		writeError(w, http.StatusNotImplemented, "order lookup is not available")
		return
	}
	user, _ := storefront.UserFrom(r.Context())
	o, found, err := s.orders.Order(r.Context(), domain.OrderID(chi.URLParam(r, "orderID")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !found || o.UserID != user {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Package api exposes the storefront over HTTP. The caller's identity comes
// from the X-User-ID header; verifying it is left to the gateway in front.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nazeru/quickshop-go/internal/apperr"
	"github.com/nazeru/quickshop-go/internal/catalog"
	"github.com/nazeru/quickshop-go/internal/order/domain"
	"github.com/nazeru/quickshop-go/internal/storefront"
	"github.com/nazeru/quickshop-go/pkg/metrics"
)

const UserHeader = "X-User-ID"

// AddressSaver stores a delivery address for a user.
type AddressSaver interface {
	SaveAddress(ctx context.Context, userID string, a domain.Address) error
}

// OrderReader loads a placed order.
type OrderReader interface {
	Order(ctx context.Context, id domain.OrderID) (domain.Order, bool, error)
}

type Server struct {
	registry *storefront.Registry
	catalog  *catalog.Store
	saver    AddressSaver
	orders   OrderReader
	metrics  *metrics.ServerMetrics
	gatherer prometheus.Gatherer
	log      *zap.Logger
	timeout  time.Duration
}

func NewServer(reg *storefront.Registry, store *catalog.Store) *Server {
	return &Server{
		registry: reg,
		catalog:  store,
		log:      zap.NewNop(),
		timeout:  10 * time.Second,
	}
}

// SetAddressSaver enables POST /addresses.
func (s *Server) SetAddressSaver(a AddressSaver) { s.saver = a }

// SetOrderReader enables GET /orders/{id}.
func (s *Server) SetOrderReader(o OrderReader) { s.orders = o }

// EnableMetrics records request metrics and serves g on /metrics.
func (s *Server) EnableMetrics(m *metrics.ServerMetrics, g prometheus.Gatherer) {
	s.metrics = m
	s.gatherer = g
}

func (s *Server) SetLogger(l *zap.Logger) { s.log = l }

func (s *Server) SetTimeout(d time.Duration) { s.timeout = d }

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(s.observe)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		r.Handle("/metrics", metrics.HandlerFor(s.gatherer))
	}
	r.Get("/catalog", s.handleCatalog)

	r.Group(func(r chi.Router) {
		r.Use(requireUser)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", s.handleCart)
			r.Delete("/", s.handleClear)
			r.Post("/items", s.handleAddItem)
			r.Put("/lines/{lineID}", s.handleSetQuantity)
			r.Delete("/lines/{lineID}", s.handleRemoveLine)
			r.Post("/lines/{lineID}/increment", s.handleIncrement)
			r.Post("/lines/{lineID}/decrement", s.handleDecrement)
			r.Post("/promo", s.handleApplyPromo)
			r.Delete("/promo", s.handleRemovePromo)
			r.Put("/tip", s.handleSetTip)
		})

		r.Post("/location", s.handleLocation)
		r.Get("/eligibility", s.handleEligibility)
		r.Get("/addresses", s.handleAddresses)
		r.Post("/addresses", s.handleSaveAddress)
		r.Post("/checkout", s.handleCheckout)
		r.Get("/orders/{orderID}", s.handleOrder)
	})

	return r
}

// observe feeds ServerMetrics, labelled by route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.Observe(r.Method+" "+route, strconv.Itoa(status), time.Since(start))
	})
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := storefront.WithUser(r.Context(), r.Header.Get(UserHeader))
		if _, ok := storefront.UserFrom(ctx); !ok {
			writeError(w, http.StatusUnauthorized, apperr.ErrNotAuthenticated.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Message: msg, Kind: kindForStatus(status)}})
}

func kindForStatus(status int) string {
	switch status {
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return apperr.KindValidation.String()
	case http.StatusConflict, http.StatusUnauthorized:
		return apperr.KindPrecondition.String()
	case http.StatusBadGateway:
		return apperr.KindExternalWrite.String()
	default:
		return apperr.KindUnknown.String()
	}
}

// statusFor maps the error taxonomy onto HTTP.
func statusFor(err error) int {
	if errors.Is(err, apperr.ErrNotAuthenticated) {
		return http.StatusUnauthorized
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindPrecondition:
		return http.StatusConflict
	case apperr.KindExternalWrite:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.NewValidationf("invalid json: %v", err)
	}
	return nil
}

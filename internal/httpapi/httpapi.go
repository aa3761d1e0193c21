// Package httpapi exposes the POS backend over HTTP/JSON. Routing is the
// standard library mux; path parameters are parsed by hand. Store sentinel
// errors are translated to status codes here and nowhere else.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"duckbunn/backend/internal/domain"
	"duckbunn/backend/internal/service"
	"duckbunn/backend/internal/store"
)

type Server struct {
	svc  *service.Service
	auth *AuthManager
	mux  *http.ServeMux
}

func NewServer(svc *service.Service, auth *AuthManager) *Server {
	s := &Server{svc: svc, auth: auth, mux: http.NewServeMux()}

	// Public surface.
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/login", s.handleLogin)
	s.mux.HandleFunc("/webhooks/payment", s.handlePaymentWebhook)
	s.mux.HandleFunc("/orders/status/", s.handleOrderStatus)

	// Authenticated surface.
	s.mux.HandleFunc("/orders", s.requireAuth(s.handleOrdersCollection))
	s.mux.HandleFunc("/orders/", s.requireAuth(s.handleOrderItem))
	s.mux.HandleFunc("/shifts/", s.requireAuth(s.handleShiftItem))
	s.mux.HandleFunc("/goods", s.requireAuth(s.handleGoodsCollection))
	s.mux.HandleFunc("/goods/", s.requireAuth(s.handleGoodsItem))
	s.mux.HandleFunc("/products", s.requireAuth(s.handleProductsCollection))
	s.mux.HandleFunc("/products/", s.requireAuth(s.handleProductItem))
	s.mux.HandleFunc("/customers", s.requireAuth(s.handleCustomersCollection))
	s.mux.HandleFunc("/customers/", s.requireAuth(s.handleCustomerItem))
	s.mux.HandleFunc("/stats/revenue-by-date", s.requireAuth(s.handleRevenueByDate))
	s.mux.HandleFunc("/stats/revenue-by-product", s.requireAuth(s.handleRevenueByProduct))
	s.mux.HandleFunc("/users", s.requireAuth(s.handleUsers))

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := nowMillis()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

	sw.Header().Set("X-Content-Type-Options", "nosniff")
	sw.Header().Set("X-Frame-Options", "DENY")
	sw.Header().Set("Access-Control-Allow-Origin", "*")
	sw.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	sw.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	if r.Method == http.MethodOptions {
		sw.WriteHeader(http.StatusNoContent)
		return
	}

	s.mux.ServeHTTP(sw, r)
	log.Printf("[http] %s %s -> %d (%dms)", r.Method, r.URL.Path, sw.status, nowMillis()-start)
}

// Auth middleware.

type actorKey struct{}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		actor, err := s.auth.ParseToken(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	}
}

func actorFrom(r *http.Request) domain.Actor {
	actor, _ := r.Context().Value(actorKey{}).(domain.Actor)
	return actor
}

func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if actorFrom(r).Role != RoleAdmin {
		writeError(w, http.StatusForbidden, "admin role required")
		return false
	}
	return true
}

// Public handlers.

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req domain.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.auth.Login(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
	case errors.Is(err, ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeInternalError(w, err)
	}
}

func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req domain.PaymentWebhookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := s.svc.HandlePaymentWebhook(r.Context(), req.Content)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"order_code": order.Code, "status": order.Status})
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	code := strings.TrimPrefix(r.URL.Path, "/orders/status/")
	if code == "" || strings.Contains(code, "/") {
		writeError(w, http.StatusBadRequest, "order code is required")
		return
	}
	status, err := s.svc.GetOrderStatus(r.Context(), code)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Orders.

func (s *Server) handleOrdersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req domain.OrderCreateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, err := s.svc.CreateOrder(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	case http.MethodGet:
		if customerID := r.URL.Query().Get("customer_id"); customerID != "" {
			orders, err := s.svc.ListOrdersByCustomer(r.Context(), customerID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, orders)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		orders, err := s.svc.ListOrders(r.Context(), limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, orders)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleOrderItem(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/orders/")
	switch {
	case len(parts) == 1 && parts[0] == "cancel-pending" && r.Method == http.MethodPost:
		n, err := s.svc.CancelStalePending(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"cancelled": n})
	case len(parts) == 2 && parts[0] == "cancel" && r.Method == http.MethodPost:
		if err := s.svc.CancelOrder(r.Context(), parts[1]); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": domain.OrderStatusCancelled})
	case len(parts) == 2 && parts[0] == "paid" && r.Method == http.MethodPut:
		var req domain.MarkPaidRequest
		if !decodeJSONAllowEmpty(w, r, &req) {
			return
		}
		order, err := s.svc.MarkOrderPaid(r.Context(), parts[1], req.SendMail, req.Email)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, order)
	case len(parts) == 1 && r.Method == http.MethodGet:
		order, err := s.svc.GetOrder(r.Context(), parts[0])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, order)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// Shifts.

func (s *Server) handleShiftItem(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/shifts/")
	switch {
	case len(parts) == 1 && parts[0] == "open" && r.Method == http.MethodPost:
		var req domain.ShiftOpenRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		shift, err := s.svc.OpenShift(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, domain.ShiftResponse{Shift: shift})
	case len(parts) == 3 && parts[0] == "open" && parts[1] == "current" && r.Method == http.MethodGet:
		shift, err := s.svc.CurrentShift(r.Context(), parts[2])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, domain.ShiftResponse{Shift: shift})
	case len(parts) == 2 && parts[1] == "close" && r.Method == http.MethodPut:
		var req domain.ShiftCloseRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		shift, err := s.svc.CloseShift(r.Context(), parts[0], req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, domain.ShiftResponse{Shift: shift})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// Goods documents.

func (s *Server) handleGoodsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req domain.GoodsCreateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		doc, err := s.svc.CreateGoodsDocument(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, doc)
	case http.MethodGet:
		docs, err := s.svc.ListGoodsDocuments(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, docs)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleGoodsItem(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/goods/")
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		doc, err := s.svc.GetGoodsDocument(r.Context(), parts[0])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case len(parts) == 2 && parts[1] == "approve" && r.Method == http.MethodPut:
		if !requireAdmin(w, r) {
			return
		}
		doc, err := s.svc.ApproveGoodsDocument(r.Context(), parts[0])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// Products.

func (s *Server) handleProductsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req domain.ProductCreateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := s.svc.CreateProduct(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	case http.MethodGet:
		products, err := s.svc.ListProducts(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, products)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleProductItem(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/products/")
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id := parts[0]
	switch r.Method {
	case http.MethodGet:
		p, err := s.svc.GetProduct(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodPut:
		var req domain.ProductUpdateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := s.svc.UpdateProduct(r.Context(), id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodDelete:
		if !requireAdmin(w, r) {
			return
		}
		if err := s.svc.DeleteProduct(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// Customers.

func (s *Server) handleCustomersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req domain.CustomerCreateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		c, err := s.svc.CreateCustomer(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	case http.MethodGet:
		customers, err := s.svc.ListCustomers(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, customers)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCustomerItem(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/customers/")
	switch {
	case len(parts) == 2 && parts[1] == "orders" && r.Method == http.MethodGet:
		orders, err := s.svc.ListOrdersByCustomer(r.Context(), parts[0])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, orders)
	case len(parts) == 1 && r.Method == http.MethodGet:
		c, err := s.svc.GetCustomer(r.Context(), parts[0])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	case len(parts) == 1 && r.Method == http.MethodPut:
		var req domain.CustomerUpdateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		c, err := s.svc.UpdateCustomer(r.Context(), parts[0], req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		if !requireAdmin(w, r) {
			return
		}
		if err := s.svc.DeleteCustomer(r.Context(), parts[0]); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// Stats.

func (s *Server) handleRevenueByDate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rows, err := s.svc.RevenueByDate(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleRevenueByProduct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rows, err := s.svc.RevenueByProduct(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// Users.

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req domain.CashierCreateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		user, err := s.auth.CreateCashier(r.Context(), req)
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "username already taken")
			return
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	case http.MethodGet:
		users, err := s.auth.ListUsers(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// Helpers.

func splitPath(path, prefix string) []string {
	tail := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if tail == "" {
		return nil
	}
	return strings.Split(tail, "/")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http] WARN: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeInternalError logs the cause and returns an opaque message so
// internals never leak to clients.
func writeInternalError(w http.ResponseWriter, err error) {
	log.Printf("[http] ERROR: %v", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidInput), errors.Is(err, store.ErrInvalidItem):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrOutOfStock),
		errors.Is(err, store.ErrInvalidState),
		errors.Is(err, store.ErrInsufficientPoints),
		errors.Is(err, store.ErrShiftAlreadyOpen),
		errors.Is(err, store.ErrNoOpenShift),
		errors.Is(err, store.ErrAlreadyApproved),
		errors.Is(err, store.ErrCancelWindowExpired),
		errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeInternalError(w, err)
	}
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	return true
}

// decodeJSONAllowEmpty accepts an absent body, for endpoints whose payload
// is entirely optional.
func decodeJSONAllowEmpty(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, "malformed JSON body")
	return false
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// statusWriter records the response code for the request log.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

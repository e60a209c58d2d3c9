// Package gatewaytest provides an in-memory fake of the ordering backend
// for tests: the cart/order endpoints, bearer-credential checks, and the
// backend's loose payload habits (menu_item as object or bare id,
// wrapped or bare order collections) behind configuration knobs.
package gatewaytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// MenuItem is a seeded menu entry.
type MenuItem struct {
	Name  string
	Price decimal.Decimal
}

type cartLine struct {
	id         int64
	menuItemID int64
	quantity   int
}

// Order is the fake backend's order record.
type Order struct {
	ID        int64
	Status    string
	Customer  string
	Notes     string
	Total     decimal.Decimal
	CreatedAt time.Time
	Items     []OrderItem
}

// OrderItem is one line of a fake order.
type OrderItem struct {
	MenuItemID int64
	Name       string
	Quantity   int
}

// Server is the fake backend. Configuration fields may be set before the
// requests they should affect; they are read under the server's lock.
type Server struct {
	httpSrv *httptest.Server

	mu          sync.Mutex
	token       string
	menu        map[int64]MenuItem
	cart        map[int64]*cartLine
	orders      map[int64]*Order
	nextCartID  int64
	nextOrderID int64

	// WrapResults wraps GET /orders responses in {"results": [...]}.
	WrapResults bool
	// EmbedMenuItem sends menu_item as an embedded object instead of a
	// bare id with denormalized name/price fields.
	EmbedMenuItem bool
	// failStatus, when non-zero, is returned (with failBody) for the
	// next request, then reset.
	failStatus int
	failBody   string

	requests int
}

// New starts a fake backend accepting the given bearer token.
func New(token string) *Server {
	s := &Server{
		token:       token,
		menu:        make(map[int64]MenuItem),
		cart:        make(map[int64]*cartLine),
		orders:      make(map[int64]*Order),
		nextCartID:  100,
		nextOrderID: 1,
	}

	r := chi.NewRouter()
	r.Use(s.requireToken)
	r.Get("/cart", s.handleFetchCart)
	r.Post("/cart/add", s.handleAddCartItem)
	r.Put("/cart/items/{id}/update", s.handleUpdateCartItem)
	r.Delete("/cart/items/{id}/remove", s.handleRemoveCartItem)
	r.Post("/orders/place", s.handlePlaceOrder)
	r.Get("/orders", s.handleListOrders)
	r.Post("/orders/{id}/cancel", s.handleCancelOrder)
	r.Get("/orders/admin", s.handleListAdminOrders)
	r.Patch("/orders/admin/{id}/update-status", s.handleUpdateStatus)

	s.httpSrv = httptest.NewServer(r)
	return s
}

// URL is the backend base URL.
func (s *Server) URL() string { return s.httpSrv.URL }

// Close shuts the backend down.
func (s *Server) Close() { s.httpSrv.Close() }

// SeedMenu registers a menu item.
func (s *Server) SeedMenu(id int64, name string, price string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.menu[id] = MenuItem{Name: name, Price: decimal.RequireFromString(price)}
}

// SeedCartLine pre-populates a server-side cart line and returns its id.
func (s *Server) SeedCartLine(menuItemID int64, quantity int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCartID++
	id := s.nextCartID
	s.cart[id] = &cartLine{id: id, menuItemID: menuItemID, quantity: quantity}
	return id
}

// SeedOrder pre-populates an order and returns its id.
func (s *Server) SeedOrder(customer, status string, total string, items ...OrderItem) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextOrderID
	s.nextOrderID++
	s.orders[id] = &Order{
		ID:        id,
		Status:    status,
		Customer:  customer,
		Total:     decimal.RequireFromString(total),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Items:     items,
	}
	return id
}

// Order returns a copy of the order record.
func (s *Server) Order(id int64) (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// CartSize returns the number of server-side cart lines.
func (s *Server) CartSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cart)
}

// Requests returns how many authenticated requests were dispatched.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// FailNext makes the next request fail with the given status and body.
func (s *Server) FailNext(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
	s.failBody = body
}

// --- handlers ---

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		s.mu.Lock()
		ok := header == "Bearer "+s.token
		if ok {
			s.requests++
		}
		fail, body := s.failStatus, s.failBody
		if fail != 0 {
			s.failStatus, s.failBody = 0, ""
		}
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		if fail != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(fail)
			w.Write([]byte(body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) cartLineJSON(line *cartLine) map[string]any {
	item := s.menu[line.menuItemID]
	out := map[string]any{
		"id":       line.id,
		"quantity": line.quantity,
	}
	if s.EmbedMenuItem {
		out["menu_item"] = map[string]any{
			"id":    line.menuItemID,
			"name":  item.Name,
			"price": item.Price,
		}
	} else {
		out["menu_item"] = line.menuItemID
		out["menu_item_name"] = item.Name
		out["menu_item_price"] = item.Price.StringFixed(2) // string-typed decimal
	}
	return out
}

func (s *Server) handleFetchCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]map[string]any, 0, len(s.cart))
	// stable fetch order by line id
	for id := int64(0); id <= s.nextCartID; id++ {
		if line, ok := s.cart[id]; ok {
			items = append(items, s.cartLineJSON(line))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MenuItemID int64 `json:"menu_item_id"`
		Quantity   int   `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.menu[req.MenuItemID]; !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown menu item"})
		return
	}
	s.nextCartID++
	line := &cartLine{id: s.nextCartID, menuItemID: req.MenuItemID, quantity: req.Quantity}
	s.cart[line.id] = line
	writeJSON(w, http.StatusCreated, map[string]any{"cart_item": s.cartLineJSON(line)})
}

func (s *Server) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid quantity"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	line, ok := s.cart[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "cart item not found"})
		return
	}
	line.quantity = req.Quantity
	writeJSON(w, http.StatusOK, s.cartLineJSON(line))
}

func (s *Server) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cart[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "cart item not found"})
		return
	}
	delete(s.cart, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cart) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cart is empty"})
		return
	}

	total := decimal.Zero
	var items []OrderItem
	itemPayloads := make([]map[string]any, 0, len(s.cart))
	for _, line := range s.cart {
		item := s.menu[line.menuItemID]
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(line.quantity))))
		items = append(items, OrderItem{MenuItemID: line.menuItemID, Name: item.Name, Quantity: line.quantity})
		// The real backend omits prices here; clients backfill from the
		// cart they are about to clear.
		itemPayloads = append(itemPayloads, map[string]any{
			"menu_item":      line.menuItemID,
			"menu_item_name": item.Name,
			"quantity":       line.quantity,
		})
	}

	id := s.nextOrderID
	s.nextOrderID++
	order := &Order{
		ID:        id,
		Status:    "PLACED",
		Notes:     req.Notes,
		Total:     total,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Items:     items,
	}
	s.orders[id] = order
	s.cart = make(map[int64]*cartLine)

	writeJSON(w, http.StatusCreated, map[string]any{"order": map[string]any{
		"id":           id,
		"status":       order.Status,
		"created_at":   order.CreatedAt.Format(time.RFC3339),
		"items":        itemPayloads,
		"total_amount": total.StringFixed(2),
	}})
}

func (s *Server) orderJSON(o *Order) map[string]any {
	items := make([]map[string]any, 0, len(o.Items))
	for _, it := range o.Items {
		item := s.menu[it.MenuItemID]
		payload := map[string]any{
			"quantity": it.Quantity,
		}
		if s.EmbedMenuItem {
			payload["menu_item"] = map[string]any{
				"id":    it.MenuItemID,
				"name":  it.Name,
				"price": item.Price,
			}
		} else {
			payload["menu_item"] = it.MenuItemID
			payload["menu_item_name"] = it.Name
			payload["menu_item_price"] = item.Price.StringFixed(2)
		}
		items = append(items, payload)
	}
	return map[string]any{
		"id":            o.ID,
		"status":        o.Status,
		"created_at":    o.CreatedAt.Format(time.RFC3339),
		"items":         items,
		"total_amount":  o.Total.StringFixed(2),
		"user_username": o.Customer,
	}
}

func (s *Server) listJSON(list []*Order) any {
	payloads := make([]map[string]any, 0, len(list))
	for _, o := range list {
		payloads = append(payloads, s.orderJSON(o))
	}
	if s.WrapResults {
		return map[string]any{"results": payloads}
	}
	return payloads
}

func (s *Server) sortedOrders() []*Order {
	var list []*Order
	for id := int64(1); id < s.nextOrderID; id++ {
		if o, ok := s.orders[id]; ok {
			list = append(list, o)
		}
	}
	return list
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.listJSON(s.sortedOrders()))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}
	if o.Status == "DELIVERED" || o.Status == "CANCELLED" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order can no longer be cancelled"})
		return
	}
	o.Status = "CANCELLED"
	writeJSON(w, http.StatusOK, s.orderJSON(o))
}

func (s *Server) handleListAdminOrders(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	search := strings.ToLower(r.URL.Query().Get("search"))
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*Order
	for _, o := range s.sortedOrders() {
		if status != "" && o.Status != status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(o.Customer), search) {
			continue
		}
		list = append(list, o)
	}
	writeJSON(w, http.StatusOK, s.listJSON(list))
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}
	o.Status = req.Status
	writeJSON(w, http.StatusOK, s.orderJSON(o))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

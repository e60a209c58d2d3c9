// Package cart owns the local mirror of the server-side shopping cart
// and keeps it consistent with the backend. The server is always correct
// about cart contents: a fetch replaces the mirror wholesale, and every
// mutation is applied to the mirror only after the corresponding write
// succeeded. A failed write leaves the mirror untouched.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/zaikapos/orderclient/gateway"
)

// ErrLineBusy means a write for the same cart line is still in flight.
// The caller re-triggers the action once the first write resolves.
var ErrLineBusy = errors.New("cart line update already in flight")

// MenuItem identifies a menu entry being added to the cart.
type MenuItem struct {
	ID    int64
	Name  string
	Price decimal.Decimal
}

// Line is one mirrored cart entry. CartItemID is the server-side line id,
// present once any round-trip for the entry has succeeded.
type Line struct {
	MenuItemID int64
	CartItemID int64
	Name       string
	UnitPrice  decimal.Decimal
	Quantity   int
}

// Subtotal is the line's price × quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Gateway defines the cart writes the reconciler needs.
// Satisfied by *gateway.Client; narrow interface for testability.
type Gateway interface {
	FetchCart(ctx context.Context) ([]gateway.CartItem, error)
	AddCartItem(ctx context.Context, menuItemID int64, quantity int) (gateway.CartItem, error)
	UpdateCartItem(ctx context.Context, cartItemID int64, quantity int) error
	RemoveCartItem(ctx context.Context, cartItemID int64) error
}

// Reconciler owns the in-memory cart mirror. Entries are keyed by menu
// item id; fetch order is preserved for rendering.
type Reconciler struct {
	gw Gateway

	mu       sync.Mutex
	lines    map[int64]*Line
	order    []int64
	inFlight map[int64]bool
}

// New creates an empty reconciler.
func New(gw Gateway) *Reconciler {
	return &Reconciler{
		gw:       gw,
		lines:    make(map[int64]*Line),
		inFlight: make(map[int64]bool),
	}
}

// Load fetches the authoritative cart and replaces the mirror wholesale.
// On failure the previous mirror is kept as-is.
func (r *Reconciler) Load(ctx context.Context) error {
	items, err := r.gw.FetchCart(ctx)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = make(map[int64]*Line, len(items))
	r.order = r.order[:0]
	for _, it := range items {
		if _, ok := r.lines[it.MenuItemID]; ok {
			continue
		}
		r.lines[it.MenuItemID] = &Line{
			MenuItemID: it.MenuItemID,
			CartItemID: it.CartItemID,
			Name:       it.Name,
			UnitPrice:  it.UnitPrice,
			Quantity:   it.Quantity,
		}
		r.order = append(r.order, it.MenuItemID)
	}
	return nil
}

// Add increments the item's existing line by one, or creates a new line
// from the server's response when the item is not in the cart yet.
func (r *Reconciler) Add(ctx context.Context, item MenuItem) error {
	if err := r.begin(item.ID); err != nil {
		return err
	}
	defer r.end(item.ID)

	existing, ok := r.get(item.ID)
	if ok {
		if err := r.gw.UpdateCartItem(ctx, existing.CartItemID, existing.Quantity+1); err != nil {
			return fmt.Errorf("add item %d: %w", item.ID, err)
		}
		r.setQuantity(item.ID, existing.Quantity+1)
		return nil
	}

	created, err := r.gw.AddCartItem(ctx, item.ID, 1)
	if err != nil {
		return fmt.Errorf("add item %d: %w", item.ID, err)
	}
	line := Line{
		MenuItemID: item.ID,
		CartItemID: created.CartItemID,
		Name:       created.Name,
		UnitPrice:  created.UnitPrice,
		Quantity:   created.Quantity,
	}
	// The add response may omit denormalized menu fields; the caller's
	// menu entry fills the gaps.
	if line.Name == "" || line.Name == fmt.Sprintf("Item #%d", item.ID) {
		if item.Name != "" {
			line.Name = item.Name
		}
	}
	if line.UnitPrice.IsZero() && item.Price.IsPositive() {
		line.UnitPrice = item.Price
	}
	r.insert(line)
	return nil
}

// Decrement lowers the line's quantity by one, deleting the line when the
// quantity would drop below one. An absent line is a no-op.
func (r *Reconciler) Decrement(ctx context.Context, menuItemID int64) error {
	if err := r.begin(menuItemID); err != nil {
		return err
	}
	defer r.end(menuItemID)

	line, ok := r.get(menuItemID)
	if !ok {
		return nil
	}
	if line.Quantity <= 1 {
		if err := r.gw.RemoveCartItem(ctx, line.CartItemID); err != nil {
			return fmt.Errorf("remove item %d: %w", menuItemID, err)
		}
		r.delete(menuItemID)
		return nil
	}
	if err := r.gw.UpdateCartItem(ctx, line.CartItemID, line.Quantity-1); err != nil {
		return fmt.Errorf("decrement item %d: %w", menuItemID, err)
	}
	r.setQuantity(menuItemID, line.Quantity-1)
	return nil
}

// Remove deletes the line entirely. An absent line is a no-op.
func (r *Reconciler) Remove(ctx context.Context, menuItemID int64) error {
	if err := r.begin(menuItemID); err != nil {
		return err
	}
	defer r.end(menuItemID)

	line, ok := r.get(menuItemID)
	if !ok {
		return nil
	}
	if err := r.gw.RemoveCartItem(ctx, line.CartItemID); err != nil {
		return fmt.Errorf("remove item %d: %w", menuItemID, err)
	}
	r.delete(menuItemID)
	return nil
}

// Lines returns the mirrored entries in fetch/insert order.
func (r *Reconciler) Lines() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Line, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.lines[id])
	}
	return out
}

// Get returns the line for a menu item, if present.
func (r *Reconciler) Get(menuItemID int64) (Line, bool) {
	return r.get(menuItemID)
}

// Len returns the number of mirrored lines.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

// Total sums price × quantity over all lines.
func (r *Reconciler) Total() decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := decimal.Zero
	for _, line := range r.lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// PriceHints maps menu-item id to unit price for every mirrored line.
// Used to backfill prices the place-order response omits.
func (r *Reconciler) PriceHints() map[int64]decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	hints := make(map[int64]decimal.Decimal, len(r.lines))
	for id, line := range r.lines {
		hints[id] = line.UnitPrice
	}
	return hints
}

// Clear empties the mirror. Called after the server consumed the cart
// into a placed order.
func (r *Reconciler) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = make(map[int64]*Line)
	r.order = r.order[:0]
}

// --- in-flight guard ---

func (r *Reconciler) begin(menuItemID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[menuItemID] {
		return fmt.Errorf("item %d: %w", menuItemID, ErrLineBusy)
	}
	r.inFlight[menuItemID] = true
	return nil
}

func (r *Reconciler) end(menuItemID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, menuItemID)
}

// --- mirror mutation, all under mu ---

func (r *Reconciler) get(menuItemID int64) (Line, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	line, ok := r.lines[menuItemID]
	if !ok {
		return Line{}, false
	}
	return *line, true
}

func (r *Reconciler) insert(line Line) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lines[line.MenuItemID]; !ok {
		r.order = append(r.order, line.MenuItemID)
	}
	r.lines[line.MenuItemID] = &line
}

func (r *Reconciler) setQuantity(menuItemID int64, quantity int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if line, ok := r.lines[menuItemID]; ok {
		line.Quantity = quantity
	}
}

func (r *Reconciler) delete(menuItemID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lines[menuItemID]; !ok {
		return
	}
	delete(r.lines, menuItemID)
	for i, id := range r.order {
		if id == menuItemID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

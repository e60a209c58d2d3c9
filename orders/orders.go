// Package orders merges the server's authoritative order collection with
// locally persisted drafts into a single view, and drives the customer
// side of the order lifecycle (place, cancel). Server-confirmed orders
// always win over local copies carrying the same id.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zaikapos/orderclient/gateway"
	"github.com/zaikapos/orderclient/lifecycle"
)

// Item is one line of an order.
type Item struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Order is a placed order. ID is the server-assigned id; zero means the
// order is a local draft the server never confirmed. LocalID keeps
// drafts distinct from one another.
type Order struct {
	ID        int64            `json:"id,omitempty"`
	LocalID   string           `json:"local_id,omitempty"`
	Status    lifecycle.Status `json:"status"`
	Items     []Item           `json:"items"`
	Total     decimal.Decimal  `json:"total"`
	Notes     string           `json:"notes,omitempty"`
	Customer  string           `json:"customer,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// HasServerID reports whether the server has confirmed this order.
func (o Order) HasServerID() bool { return o.ID != 0 }

// CanCancel reports whether the customer may still cancel this order.
func (o Order) CanCancel() bool {
	return lifecycle.CanCancel(o.HasServerID(), o.Status)
}

// FromGateway converts a normalized gateway order.
func FromGateway(g gateway.Order) Order {
	items := make([]Item, 0, len(g.Items))
	for _, it := range g.Items {
		items = append(items, Item{Name: it.Name, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return Order{
		ID:        g.ID,
		Status:    g.Status,
		Items:     items,
		Total:     g.Total,
		Notes:     g.Notes,
		Customer:  g.Customer,
		CreatedAt: g.CreatedAt,
	}
}

// Gateway defines the order operations the aggregator needs.
// Satisfied by *gateway.Client; narrow interface for testability.
type Gateway interface {
	ListOrders(ctx context.Context) ([]gateway.Order, error)
	PlaceOrder(ctx context.Context, notes string, priceHints map[int64]decimal.Decimal) (gateway.Order, error)
	CancelOrder(ctx context.Context, orderID int64) error
	Identity() string
}

// DraftStore persists orders placed in this session until the server's
// collection confirms them. Satisfied by *draft.Store.
type DraftStore interface {
	Drafts(ctx context.Context, identity string) ([]Order, error)
	Append(ctx context.Context, identity string, order Order) error
	ReplaceAll(ctx context.Context, identity string, list []Order) error
}

// Bumper broadcasts an invalidation signal to other execution contexts.
// Satisfied by *notify.Notifier.
type Bumper interface {
	Bump(ctx context.Context) error
}

// Cart is the subset of the cart reconciler the aggregator consumes when
// placing an order. Satisfied by *cart.Reconciler.
type Cart interface {
	Len() int
	PriceHints() map[int64]decimal.Decimal
	Clear()
}

// Aggregator owns the merged order view for one authenticated identity.
type Aggregator struct {
	gw     Gateway
	drafts DraftStore
	bump   Bumper
	log    *slog.Logger

	mu      sync.Mutex
	current []Order
}

// NewAggregator creates an aggregator. A nil logger uses slog.Default().
func NewAggregator(gw Gateway, drafts DraftStore, bump Bumper, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{gw: gw, drafts: drafts, bump: bump, log: log}
}

// List fetches the server's orders, appends drafts that still lack a
// server id, and opportunistically prunes drafts the server now confirms.
// Deduplication key is the server id; the server copy always wins.
func (a *Aggregator) List(ctx context.Context) ([]Order, error) {
	serverOrders, err := a.gw.ListOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	merged := make([]Order, 0, len(serverOrders))
	seen := make(map[int64]bool, len(serverOrders))
	for _, g := range serverOrders {
		if g.ID != 0 && seen[g.ID] {
			continue
		}
		seen[g.ID] = true
		merged = append(merged, FromGateway(g))
	}

	identity := a.gw.Identity()
	drafts, err := a.drafts.Drafts(ctx, identity)
	if err != nil {
		// Draft read failure must not hide the server's orders.
		a.log.Warn("read drafts failed", "identity", identity, "error", err)
		drafts = nil
	}

	kept := drafts[:0]
	pruned := false
	for _, d := range drafts {
		if !d.HasServerID() {
			merged = append(merged, d)
			kept = append(kept, d)
			continue
		}
		if seen[d.ID] {
			pruned = true // server owns it now
			continue
		}
		// Confirmed but not in this fetch (e.g. pagination); keep the
		// record, hide it from the merged view.
		kept = append(kept, d)
	}
	if pruned {
		if err := a.drafts.ReplaceAll(ctx, identity, kept); err != nil {
			a.log.Warn("prune drafts failed", "identity", identity, "error", err)
		}
	}

	a.mu.Lock()
	a.current = merged
	a.mu.Unlock()
	return merged, nil
}

// Current returns the last merged view without hitting the network.
func (a *Aggregator) Current() []Order {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Order, len(a.current))
	copy(out, a.current)
	return out
}

// Place converts the cart into an order. The cart must be non-empty and a
// credential present; both are checked before anything is dispatched. On
// success the mirror is cleared, an id-bearing draft is recorded for
// same-session redundancy, and other contexts are notified. On failure
// cart and orders are untouched.
func (a *Aggregator) Place(ctx context.Context, c Cart, notes string) (Order, error) {
	if c.Len() == 0 {
		return Order{}, fmt.Errorf("%w: cart is empty", gateway.ErrValidation)
	}

	confirmed, err := a.gw.PlaceOrder(ctx, notes, c.PriceHints())
	if err != nil {
		return Order{}, fmt.Errorf("place order: %w", err)
	}

	order := FromGateway(confirmed)
	order.LocalID = uuid.NewString()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	c.Clear()

	identity := a.gw.Identity()
	if err := a.drafts.Append(ctx, identity, order); err != nil {
		// Redundant local copy only; the server has the order.
		a.log.Warn("record draft failed", "identity", identity, "error", err)
	}
	if err := a.bump.Bump(ctx); err != nil {
		a.log.Warn("bump failed", "error", err)
	}

	a.mu.Lock()
	a.current = append([]Order{order}, a.current...)
	a.mu.Unlock()
	return order, nil
}

// Cancel issues a customer-side cancellation. Legal only while CanCancel
// holds; the local copies move to CANCELLED only after the server
// confirmed. A 404 means the local view is stale and triggers a re-fetch.
func (a *Aggregator) Cancel(ctx context.Context, order Order) (Order, error) {
	if !order.CanCancel() {
		return order, fmt.Errorf("%w: order cannot be cancelled", gateway.ErrValidation)
	}

	if err := a.gw.CancelOrder(ctx, order.ID); err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			if _, lerr := a.List(ctx); lerr != nil {
				a.log.Warn("stale refetch failed", "error", lerr)
			}
		}
		return order, fmt.Errorf("cancel order %d: %w", order.ID, err)
	}

	order.Status = lifecycle.StatusCancelled

	a.mu.Lock()
	for i := range a.current {
		if a.current[i].ID == order.ID {
			a.current[i].Status = lifecycle.StatusCancelled
		}
	}
	a.mu.Unlock()

	identity := a.gw.Identity()
	drafts, err := a.drafts.Drafts(ctx, identity)
	if err == nil {
		changed := false
		for i := range drafts {
			if drafts[i].ID == order.ID {
				drafts[i].Status = lifecycle.StatusCancelled
				changed = true
			}
		}
		if changed {
			if err := a.drafts.ReplaceAll(ctx, identity, drafts); err != nil {
				a.log.Warn("update draft status failed", "identity", identity, "error", err)
			}
		}
	}

	if err := a.bump.Bump(ctx); err != nil {
		a.log.Warn("bump failed", "error", err)
	}
	return order, nil
}

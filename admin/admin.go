// Package admin is the operator-side view over the shared order records:
// browsing across customers with filters, and free-form status overrides.
// Writes go through the same lifecycle rules as the customer side, and
// the view is always re-fetched from the server after a successful write
// so both panels stay consistent.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zaikapos/orderclient/gateway"
	"github.com/zaikapos/orderclient/lifecycle"
	"github.com/zaikapos/orderclient/orders"
)

// Filter narrows the operator order listing.
type Filter struct {
	Status lifecycle.Status
	Search string
	Page   int
}

// Gateway defines the operator operations the client needs.
// Satisfied by *gateway.Client; narrow interface for testability.
type Gateway interface {
	ListAdminOrders(ctx context.Context, f gateway.AdminFilter) ([]gateway.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status lifecycle.Status) error
}

// Bumper broadcasts an invalidation signal after a successful write.
// Satisfied by *notify.Notifier.
type Bumper interface {
	Bump(ctx context.Context) error
}

// Client is the operator-side order client.
type Client struct {
	gw   Gateway
	bump Bumper
	log  *slog.Logger

	mu      sync.Mutex
	filter  Filter
	current []orders.Order
}

// New creates an operator client. A nil logger uses slog.Default().
func New(gw Gateway, bump Bumper, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{gw: gw, bump: bump, log: log}
}

// List fetches orders matching the filter and remembers the filter for
// post-write refreshes.
func (c *Client) List(ctx context.Context, f Filter) ([]orders.Order, error) {
	fetched, err := c.gw.ListAdminOrders(ctx, gateway.AdminFilter{
		Status: f.Status,
		Search: f.Search,
		Page:   f.Page,
	})
	if err != nil {
		return nil, fmt.Errorf("list admin orders: %w", err)
	}
	list := make([]orders.Order, 0, len(fetched))
	for _, g := range fetched {
		list = append(list, orders.FromGateway(g))
	}
	c.mu.Lock()
	c.filter = f
	c.current = list
	c.mu.Unlock()
	return list, nil
}

// Current returns the last fetched view without hitting the network.
func (c *Client) Current() []orders.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]orders.Order, len(c.current))
	copy(out, c.current)
	return out
}

// SetStatus moves an order to next. Illegal transitions (no-ops, exits
// from a terminal status, unknown statuses) are rejected locally without
// a network call. On success the listing is refreshed from the server
// and other contexts are notified.
func (c *Client) SetStatus(ctx context.Context, order orders.Order, next lifecycle.Status) error {
	if !order.HasServerID() {
		return fmt.Errorf("%w: order has no server id", gateway.ErrValidation)
	}
	if !lifecycle.CanTransition(order.Status, next) {
		return fmt.Errorf("%w: cannot move order %d from %s to %s",
			gateway.ErrValidation, order.ID, order.Status, next)
	}

	if err := c.gw.UpdateOrderStatus(ctx, order.ID, next); err != nil {
		return fmt.Errorf("update status of order %d: %w", order.ID, err)
	}

	c.mu.Lock()
	filter := c.filter
	c.mu.Unlock()
	if _, err := c.List(ctx, filter); err != nil {
		c.log.Warn("refresh after status update failed", "order", order.ID, "error", err)
	}

	if err := c.bump.Bump(ctx); err != nil {
		c.log.Warn("bump failed", "error", err)
	}
	return nil
}

// QuickCancel is a status override to CANCELLED.
func (c *Client) QuickCancel(ctx context.Context, order orders.Order) error {
	return c.SetStatus(ctx, order, lifecycle.StatusCancelled)
}

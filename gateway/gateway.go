// Package gateway is the HTTP client for the ordering backend. It is the
// only place that speaks the wire protocol: requests carry the bearer
// credential, responses are normalized into concrete types, and failures
// are mapped onto the package's error taxonomy.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/zaikapos/orderclient/lifecycle"
)

// CredentialSource supplies the bearer credential for requests. Token
// fails with ErrUnauthorized when no usable credential exists; Invalidate
// is called when the server rejects the credential, forcing
// re-authentication.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
	Identity() string
	Invalidate()
}

// Client talks to the remote order/cart gateway. It is stateless: all
// mirrored state lives with the reconciler and aggregator that call it.
type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialSource
}

// New creates a gateway client. A nil httpClient uses http.DefaultClient;
// no client-side timeout is layered on top of the transport's own.
func New(baseURL string, httpClient *http.Client, creds CredentialSource) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient, creds: creds}
}

// do runs one authenticated round-trip. The request is not dispatched
// without a credential.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrNetwork, err)
		}
		return nil

	case resp.StatusCode == http.StatusUnauthorized:
		c.creds.Invalidate()
		return fmt.Errorf("%w: server rejected credential", ErrUnauthorized)

	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)

	case resp.StatusCode < 500:
		// Business-rule rejection: surface the server's message verbatim
		// when the body is structured, otherwise treat as a plain failure.
		var detail struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&detail); err == nil {
			msg := detail.Error
			if msg == "" {
				msg = detail.Message
			}
			if msg != "" {
				return fmt.Errorf("%w: %s", ErrConflict, msg)
			}
		}
		return fmt.Errorf("%w: HTTP %d", ErrNetwork, resp.StatusCode)

	default:
		return fmt.Errorf("%w: HTTP %d", ErrNetwork, resp.StatusCode)
	}
}

// Identity returns the stable external key of the authenticated identity.
func (c *Client) Identity() string {
	return c.creds.Identity()
}

// FetchCart returns the authoritative cart contents in fetch order.
func (c *Client) FetchCart(ctx context.Context) ([]CartItem, error) {
	var payload cartPayload
	if err := c.do(ctx, http.MethodGet, "/cart", nil, &payload); err != nil {
		return nil, err
	}
	items := make([]CartItem, 0, len(payload.Items))
	for _, p := range payload.Items {
		item, err := p.normalize()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// AddCartItem creates a new cart line for a menu item.
func (c *Client) AddCartItem(ctx context.Context, menuItemID int64, quantity int) (CartItem, error) {
	body := map[string]any{"menu_item_id": menuItemID, "quantity": quantity}
	var resp struct {
		CartItem cartItemPayload `json:"cart_item"`
	}
	if err := c.do(ctx, http.MethodPost, "/cart/add", body, &resp); err != nil {
		return CartItem{}, err
	}
	item, err := resp.CartItem.normalize()
	if err != nil {
		return CartItem{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return item, nil
}

// UpdateCartItem sets the quantity of an existing cart line.
func (c *Client) UpdateCartItem(ctx context.Context, cartItemID int64, quantity int) error {
	path := fmt.Sprintf("/cart/items/%d/update", cartItemID)
	return c.do(ctx, http.MethodPut, path, map[string]any{"quantity": quantity}, nil)
}

// RemoveCartItem deletes a cart line.
func (c *Client) RemoveCartItem(ctx context.Context, cartItemID int64) error {
	path := fmt.Sprintf("/cart/items/%d/remove", cartItemID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// PlaceOrder converts the server-side cart into an order. priceHints
// backfills item prices the response omits (see orderPayload.normalize).
func (c *Client) PlaceOrder(ctx context.Context, notes string, priceHints map[int64]decimal.Decimal) (Order, error) {
	var resp struct {
		Order orderPayload `json:"order"`
	}
	if err := c.do(ctx, http.MethodPost, "/orders/place", map[string]any{"notes": notes}, &resp); err != nil {
		return Order{}, err
	}
	order, err := resp.Order.normalize(priceHints)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return order, nil
}

// ListOrders fetches the identity's orders, accepting both the wrapped
// and the bare collection shape.
func (c *Client) ListOrders(ctx context.Context) ([]Order, error) {
	var payload orderCollection
	if err := c.do(ctx, http.MethodGet, "/orders", nil, &payload); err != nil {
		return nil, err
	}
	return c.normalizeAll(payload)
}

// CancelOrder issues a customer-side cancellation.
func (c *Client) CancelOrder(ctx context.Context, orderID int64) error {
	path := fmt.Sprintf("/orders/%d/cancel", orderID)
	return c.do(ctx, http.MethodPost, path, map[string]any{}, nil)
}

// AdminFilter narrows the operator-side order listing.
type AdminFilter struct {
	Status lifecycle.Status
	Search string
	Page   int
}

// ListAdminOrders fetches orders across customers for the operator UI.
func (c *Client) ListAdminOrders(ctx context.Context, f AdminFilter) ([]Order, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	path := "/orders/admin"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var payload orderCollection
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	return c.normalizeAll(payload)
}

// UpdateOrderStatus issues an operator-side status override.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID int64, status lifecycle.Status) error {
	path := fmt.Sprintf("/orders/admin/%d/update-status", orderID)
	return c.do(ctx, http.MethodPatch, path, map[string]any{"status": string(status)}, nil)
}

func (c *Client) normalizeAll(payload orderCollection) ([]Order, error) {
	orders := make([]Order, 0, len(payload))
	for _, p := range payload {
		order, err := p.normalize(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zaikapos/orderclient/lifecycle"
)

// CartItem is a fully-resolved cart line as the server knows it.
type CartItem struct {
	CartItemID int64
	MenuItemID int64
	Name       string
	UnitPrice  decimal.Decimal
	Quantity   int
}

// OrderItem is one line of a placed order.
type OrderItem struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Order is a server-confirmed order with every optional wire field
// resolved to a concrete value.
type Order struct {
	ID        int64
	Status    lifecycle.Status
	Items     []OrderItem
	Total     decimal.Decimal
	Notes     string
	Customer  string
	CreatedAt time.Time
}

// --- Wire shapes ---
//
// The backend is loose about payload shapes: menu_item arrives either as
// a bare numeric id or an embedded object, prices arrive as strings or
// numbers, order collections arrive bare or under "results". Everything
// is resolved here, once, so nothing downstream sniffs shapes.

type menuItemObject struct {
	ID    int64            `json:"id"`
	Name  string           `json:"name"`
	Price *decimal.Decimal `json:"price"`
}

// resolveMenuItem accepts a bare id or an embedded object.
func resolveMenuItem(raw json.RawMessage) (menuItemObject, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return menuItemObject{}, nil
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err == nil {
		return menuItemObject{ID: id}, nil
	}
	var obj menuItemObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return menuItemObject{}, fmt.Errorf("unrecognized menu_item shape: %s", raw)
	}
	return obj, nil
}

type cartItemPayload struct {
	ID            int64            `json:"id"`
	MenuItem      json.RawMessage  `json:"menu_item"`
	MenuItemName  string           `json:"menu_item_name"`
	MenuItemPrice *decimal.Decimal `json:"menu_item_price"`
	Quantity      int              `json:"quantity"`
}

type cartPayload struct {
	Items []cartItemPayload `json:"items"`
}

// normalize resolves every fallback chain into a concrete CartItem.
func (p cartItemPayload) normalize() (CartItem, error) {
	mi, err := resolveMenuItem(p.MenuItem)
	if err != nil {
		return CartItem{}, err
	}
	name := p.MenuItemName
	if name == "" {
		name = mi.Name
	}
	if name == "" {
		name = fmt.Sprintf("Item #%d", mi.ID)
	}
	price := decimal.Zero
	switch {
	case p.MenuItemPrice != nil:
		price = *p.MenuItemPrice
	case mi.Price != nil:
		price = *mi.Price
	}
	qty := p.Quantity
	if qty < 1 {
		qty = 1
	}
	return CartItem{
		CartItemID: p.ID,
		MenuItemID: mi.ID,
		Name:       name,
		UnitPrice:  price,
		Quantity:   qty,
	}, nil
}

type orderItemPayload struct {
	MenuItem      json.RawMessage  `json:"menu_item"`
	MenuItemName  string           `json:"menu_item_name"`
	MenuItemPrice *decimal.Decimal `json:"menu_item_price"`
	Name          string           `json:"name"`
	Price         *decimal.Decimal `json:"price"`
	Quantity      int              `json:"quantity"`
}

type orderPayload struct {
	ID           int64              `json:"id"`
	Status       string             `json:"status"`
	Items        []orderItemPayload `json:"items"`
	TotalAmount  *decimal.Decimal   `json:"total_amount"`
	Total        *decimal.Decimal   `json:"total"`
	Notes        string             `json:"notes"`
	UserUsername string             `json:"user_username"`
	CreatedAt    string             `json:"created_at"`
}

// normalize resolves an order payload. priceHints maps menu-item id to a
// unit price and backfills items whose price the server omitted (the
// place-order response carries quantities but not always prices; the
// cart being cleared knows them).
func (p orderPayload) normalize(priceHints map[int64]decimal.Decimal) (Order, error) {
	items := make([]OrderItem, 0, len(p.Items))
	for _, ip := range p.Items {
		mi, err := resolveMenuItem(ip.MenuItem)
		if err != nil {
			return Order{}, err
		}
		name := ip.MenuItemName
		if name == "" {
			name = ip.Name
		}
		if name == "" {
			name = mi.Name
		}
		if name == "" {
			name = fmt.Sprintf("Item #%d", mi.ID)
		}
		price := decimal.Zero
		switch {
		case ip.Price != nil:
			price = *ip.Price
		case ip.MenuItemPrice != nil:
			price = *ip.MenuItemPrice
		case mi.Price != nil:
			price = *mi.Price
		default:
			if hint, ok := priceHints[mi.ID]; ok {
				price = hint
			}
		}
		qty := ip.Quantity
		if qty < 1 {
			qty = 1
		}
		items = append(items, OrderItem{Name: name, Quantity: qty, UnitPrice: price})
	}

	status := lifecycle.Status(p.Status)
	if !lifecycle.Valid(status) {
		status = lifecycle.StatusPlaced
	}

	total := decimal.Zero
	switch {
	case p.TotalAmount != nil:
		total = *p.TotalAmount
	case p.Total != nil:
		total = *p.Total
	}

	var createdAt time.Time
	if p.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339, p.CreatedAt)
		if err != nil {
			t, err = time.Parse("2006-01-02T15:04:05.999999", p.CreatedAt)
		}
		if err == nil {
			createdAt = t
		}
	}

	return Order{
		ID:        p.ID,
		Status:    status,
		Items:     items,
		Total:     total,
		Notes:     p.Notes,
		Customer:  p.UserUsername,
		CreatedAt: createdAt,
	}, nil
}

// orderCollection accepts both {"results": [...]} and a bare array.
type orderCollection []orderPayload

func (c *orderCollection) UnmarshalJSON(data []byte) error {
	var wrapped struct {
		Results []orderPayload `json:"results"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Results != nil {
		*c = wrapped.Results
		return nil
	}
	var bare []orderPayload
	if err := json.Unmarshal(data, &bare); err != nil {
		return fmt.Errorf("unrecognized order collection shape: %w", err)
	}
	*c = bare
	return nil
}

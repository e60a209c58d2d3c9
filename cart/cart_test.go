package cart_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/zaikapos/orderclient/cart"
	"github.com/zaikapos/orderclient/gateway"
)

// --- Mock Gateway ---

type mockGateway struct {
	fetchFn  func(ctx context.Context) ([]gateway.CartItem, error)
	addFn    func(ctx context.Context, menuItemID int64, quantity int) (gateway.CartItem, error)
	updateFn func(ctx context.Context, cartItemID int64, quantity int) error
	removeFn func(ctx context.Context, cartItemID int64) error
	calls    int
}

func (m *mockGateway) FetchCart(ctx context.Context) ([]gateway.CartItem, error) {
	m.calls++
	if m.fetchFn != nil {
		return m.fetchFn(ctx)
	}
	return nil, nil
}

func (m *mockGateway) AddCartItem(ctx context.Context, menuItemID int64, quantity int) (gateway.CartItem, error) {
	m.calls++
	if m.addFn != nil {
		return m.addFn(ctx, menuItemID, quantity)
	}
	return gateway.CartItem{}, errors.New("unexpected AddCartItem")
}

func (m *mockGateway) UpdateCartItem(ctx context.Context, cartItemID int64, quantity int) error {
	m.calls++
	if m.updateFn != nil {
		return m.updateFn(ctx, cartItemID, quantity)
	}
	return errors.New("unexpected UpdateCartItem")
}

func (m *mockGateway) RemoveCartItem(ctx context.Context, cartItemID int64) error {
	m.calls++
	if m.removeFn != nil {
		return m.removeFn(ctx, cartItemID)
	}
	return errors.New("unexpected RemoveCartItem")
}

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func serverCart(items ...gateway.CartItem) func(context.Context) ([]gateway.CartItem, error) {
	return func(context.Context) ([]gateway.CartItem, error) { return items, nil }
}

func TestLoadReplacesWholesaleAndIsIdempotent(t *testing.T) {
	gw := &mockGateway{fetchFn: serverCart(
		gateway.CartItem{CartItemID: 11, MenuItemID: 1, Name: "Samosa", UnitPrice: price("20"), Quantity: 3},
		gateway.CartItem{CartItemID: 12, MenuItemID: 2, Name: "Chai", UnitPrice: price("15"), Quantity: 1},
	)}
	r := cart.New(gw)

	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	first := r.Lines()
	if len(first) != 2 || first[0].MenuItemID != 1 || first[1].MenuItemID != 2 {
		t.Fatalf("lines = %+v, fetch order not preserved", first)
	}

	// No mutation in between: a second load yields an identical mirror.
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load again: %v", err)
	}
	if !reflect.DeepEqual(first, r.Lines()) {
		t.Errorf("reload changed mirror: %+v vs %+v", first, r.Lines())
	}
	if !r.Total().Equal(price("75")) {
		t.Errorf("total = %s, want 75", r.Total())
	}
}

func TestLoadFailureKeepsPreviousMirror(t *testing.T) {
	gw := &mockGateway{fetchFn: serverCart(
		gateway.CartItem{CartItemID: 11, MenuItemID: 1, Name: "Samosa", UnitPrice: price("20"), Quantity: 3},
	)}
	r := cart.New(gw)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	gw.fetchFn = func(context.Context) ([]gateway.CartItem, error) {
		return nil, fmt.Errorf("%w: connection refused", gateway.ErrNetwork)
	}
	if err := r.Load(context.Background()); !errors.Is(err, gateway.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	if r.Len() != 1 {
		t.Errorf("mirror len = %d, want untouched 1", r.Len())
	}
}

func TestAddAndDecrementScenario(t *testing.T) {
	// Cart holds item A: price 50, quantity 2.
	gw := &mockGateway{fetchFn: serverCart(
		gateway.CartItem{CartItemID: 11, MenuItemID: 1, Name: "Thali", UnitPrice: price("50"), Quantity: 2},
	)}
	r := cart.New(gw)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	var gotQty []int
	gw.updateFn = func(_ context.Context, cartItemID int64, quantity int) error {
		if cartItemID != 11 {
			t.Errorf("update targeted line %d, want 11", cartItemID)
		}
		gotQty = append(gotQty, quantity)
		return nil
	}
	gw.removeFn = func(_ context.Context, cartItemID int64) error { return nil }

	// Add bumps quantity to 3, total to 150.
	if err := r.Add(context.Background(), cart.MenuItem{ID: 1, Name: "Thali", Price: price("50")}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if line, _ := r.Get(1); line.Quantity != 3 {
		t.Errorf("quantity = %d, want 3", line.Quantity)
	}
	if !r.Total().Equal(price("150")) {
		t.Errorf("total = %s, want 150", r.Total())
	}

	// Three decrements empty the mirror: no zero-quantity line survives.
	for i := 0; i < 3; i++ {
		if err := r.Decrement(context.Background(), 1); err != nil {
			t.Fatalf("Decrement #%d: %v", i+1, err)
		}
	}
	if r.Len() != 0 {
		t.Errorf("mirror len = %d, want 0", r.Len())
	}
	if !r.Total().IsZero() {
		t.Errorf("total = %s, want 0", r.Total())
	}
	if want := []int{3, 2, 1}; !reflect.DeepEqual(gotQty, want) {
		t.Errorf("quantities written = %v, want %v", gotQty, want)
	}
}

func TestAddNewItemInsertsFromWriteResponse(t *testing.T) {
	gw := &mockGateway{
		addFn: func(_ context.Context, menuItemID int64, quantity int) (gateway.CartItem, error) {
			return gateway.CartItem{CartItemID: 77, MenuItemID: menuItemID, Quantity: quantity}, nil
		},
	}
	r := cart.New(gw)

	err := r.Add(context.Background(), cart.MenuItem{ID: 5, Name: "Lassi", Price: price("40")})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	line, ok := r.Get(5)
	if !ok {
		t.Fatal("line not inserted")
	}
	if line.CartItemID != 77 {
		t.Errorf("cart item id = %d, want server-assigned 77", line.CartItemID)
	}
	// Response omitted name/price; menu entry fills the gaps.
	if line.Name != "Lassi" || !line.UnitPrice.Equal(price("40")) {
		t.Errorf("line = %+v", line)
	}
}

func TestFailedWriteLeavesMirrorUnchanged(t *testing.T) {
	boom := fmt.Errorf("%w: HTTP 502", gateway.ErrNetwork)
	gw := &mockGateway{fetchFn: serverCart(
		gateway.CartItem{CartItemID: 11, MenuItemID: 1, Name: "Thali", UnitPrice: price("50"), Quantity: 2},
	)}
	r := cart.New(gw)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	before := r.Lines()

	gw.updateFn = func(context.Context, int64, int) error { return boom }
	gw.removeFn = func(context.Context, int64) error { return boom }
	gw.addFn = func(context.Context, int64, int) (gateway.CartItem, error) { return gateway.CartItem{}, boom }

	ops := map[string]func() error{
		"add existing": func() error { return r.Add(context.Background(), cart.MenuItem{ID: 1}) },
		"add new":      func() error { return r.Add(context.Background(), cart.MenuItem{ID: 9}) },
		"decrement":    func() error { return r.Decrement(context.Background(), 1) },
		"remove":       func() error { return r.Remove(context.Background(), 1) },
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, gateway.ErrNetwork) {
			t.Fatalf("%s: err = %v, want ErrNetwork", name, err)
		}
		if !reflect.DeepEqual(before, r.Lines()) {
			t.Errorf("%s: mirror changed after failed write", name)
		}
	}
}

func TestDecrementAndRemoveAbsentAreNoops(t *testing.T) {
	gw := &mockGateway{}
	r := cart.New(gw)

	if err := r.Decrement(context.Background(), 404); err != nil {
		t.Errorf("Decrement absent: %v", err)
	}
	if err := r.Remove(context.Background(), 404); err != nil {
		t.Errorf("Remove absent: %v", err)
	}
	if gw.calls != 0 {
		t.Errorf("gateway calls = %d, want 0", gw.calls)
	}
}

func TestOverlappingWritesOnSameLineRejected(t *testing.T) {
	gw := &mockGateway{fetchFn: serverCart(
		gateway.CartItem{CartItemID: 11, MenuItemID: 1, Name: "Thali", UnitPrice: price("50"), Quantity: 2},
	)}
	r := cart.New(gw)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	var reentrant error
	gw.updateFn = func(context.Context, int64, int) error {
		// A second mutation arrives while this write is in flight.
		reentrant = r.Decrement(context.Background(), 1)
		return nil
	}
	if err := r.Add(context.Background(), cart.MenuItem{ID: 1}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !errors.Is(reentrant, cart.ErrLineBusy) {
		t.Errorf("overlapping write err = %v, want ErrLineBusy", reentrant)
	}
}

package gateway_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/zaikapos/orderclient/gateway"
	"github.com/zaikapos/orderclient/gateway/gatewaytest"
	"github.com/zaikapos/orderclient/lifecycle"
)

// --- Mock CredentialSource ---

type staticCreds struct {
	token       string
	identity    string
	invalidated bool
}

func (c *staticCreds) Token(ctx context.Context) (string, error) {
	if c.token == "" {
		return "", fmt.Errorf("%w: no credential", gateway.ErrUnauthorized)
	}
	return c.token, nil
}

func (c *staticCreds) Identity() string { return c.identity }
func (c *staticCreds) Invalidate()      { c.invalidated = true }

func newClient(t *testing.T, srv *gatewaytest.Server, creds *staticCreds) *gateway.Client {
	t.Helper()
	return gateway.New(srv.URL(), nil, creds)
}

func TestMissingCredentialSkipsDispatch(t *testing.T) {
	srv := gatewaytest.New("tok")
	defer srv.Close()
	client := newClient(t, srv, &staticCreds{})

	_, err := client.FetchCart(context.Background())
	if !errors.Is(err, gateway.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if srv.Requests() != 0 {
		t.Errorf("requests = %d, want 0 (nothing dispatched)", srv.Requests())
	}
}

func TestRejectedCredentialInvalidatesSource(t *testing.T) {
	srv := gatewaytest.New("tok")
	defer srv.Close()
	creds := &staticCreds{token: "wrong"}
	client := newClient(t, srv, creds)

	_, err := client.FetchCart(context.Background())
	if !errors.Is(err, gateway.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if !creds.invalidated {
		t.Error("credential source not invalidated on 401")
	}
}

func TestFetchCartNormalizesBothLineShapes(t *testing.T) {
	for _, embed := range []bool{false, true} {
		t.Run(fmt.Sprintf("embed=%v", embed), func(t *testing.T) {
			srv := gatewaytest.New("tok")
			defer srv.Close()
			srv.EmbedMenuItem = embed
			srv.SeedMenu(7, "Masala Dosa", "90.00")
			srv.SeedCartLine(7, 2)

			client := newClient(t, srv, &staticCreds{token: "tok"})
			items, err := client.FetchCart(context.Background())
			if err != nil {
				t.Fatalf("FetchCart: %v", err)
			}
			if len(items) != 1 {
				t.Fatalf("items = %d, want 1", len(items))
			}
			got := items[0]
			if got.MenuItemID != 7 || got.Name != "Masala Dosa" || got.Quantity != 2 {
				t.Errorf("line = %+v", got)
			}
			if !got.UnitPrice.Equal(decimal.RequireFromString("90")) {
				t.Errorf("price = %s, want 90", got.UnitPrice)
			}
		})
	}
}

func TestListOrdersAcceptsWrappedAndBare(t *testing.T) {
	for _, wrap := range []bool{false, true} {
		t.Run(fmt.Sprintf("wrap=%v", wrap), func(t *testing.T) {
			srv := gatewaytest.New("tok")
			defer srv.Close()
			srv.WrapResults = wrap
			srv.SeedOrder("asha", "PLACED", "150.00")

			client := newClient(t, srv, &staticCreds{token: "tok"})
			orders, err := client.ListOrders(context.Background())
			if err != nil {
				t.Fatalf("ListOrders: %v", err)
			}
			if len(orders) != 1 {
				t.Fatalf("orders = %d, want 1", len(orders))
			}
			if orders[0].Status != lifecycle.StatusPlaced {
				t.Errorf("status = %s", orders[0].Status)
			}
		})
	}
}

func TestConflictSurfacesServerMessageVerbatim(t *testing.T) {
	srv := gatewaytest.New("tok")
	defer srv.Close()
	srv.FailNext(http.StatusBadRequest, `{"error": "kitchen closed for the day"}`)

	client := newClient(t, srv, &staticCreds{token: "tok"})
	_, err := client.PlaceOrder(context.Background(), "", nil)
	if !errors.Is(err, gateway.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if !strings.Contains(err.Error(), "kitchen closed for the day") {
		t.Errorf("err = %v, server message not kept verbatim", err)
	}
}

func TestNotFoundMapsToErrNotFound(t *testing.T) {
	srv := gatewaytest.New("tok")
	defer srv.Close()

	client := newClient(t, srv, &staticCreds{token: "tok"})
	err := client.CancelOrder(context.Background(), 999)
	if !errors.Is(err, gateway.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestServerErrorMapsToErrNetwork(t *testing.T) {
	srv := gatewaytest.New("tok")
	defer srv.Close()
	srv.FailNext(http.StatusInternalServerError, "")

	client := newClient(t, srv, &staticCreds{token: "tok"})
	_, err := client.FetchCart(context.Background())
	if !errors.Is(err, gateway.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}

func TestAdminFilterQuery(t *testing.T) {
	srv := gatewaytest.New("tok")
	defer srv.Close()
	srv.SeedOrder("asha", "PLACED", "100.00")
	srv.SeedOrder("vikram", "DELIVERED", "200.00")
	srv.SeedOrder("asha", "DELIVERED", "300.00")

	client := newClient(t, srv, &staticCreds{token: "tok"})
	got, err := client.ListAdminOrders(context.Background(), gateway.AdminFilter{
		Status: lifecycle.StatusDelivered,
		Search: "asha",
	})
	if err != nil {
		t.Fatalf("ListAdminOrders: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("orders = %d, want 1", len(got))
	}
	if got[0].Customer != "asha" || got[0].Status != lifecycle.StatusDelivered {
		t.Errorf("order = %+v", got[0])
	}
}

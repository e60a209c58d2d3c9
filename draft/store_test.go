package draft_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zaikapos/orderclient/draft"
	"github.com/zaikapos/orderclient/lifecycle"
	"github.com/zaikapos/orderclient/orders"
)

func openStore(t *testing.T) *draft.Store {
	t.Helper()
	s, err := draft.Open(filepath.Join(t.TempDir(), "client.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndDraftsRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	order := orders.Order{
		ID:      12,
		LocalID: "d-1",
		Status:  lifecycle.StatusPlaced,
		Items: []orders.Item{
			{Name: "Biryani", Quantity: 2, UnitPrice: decimal.RequireFromString("180.50")},
		},
		Total:     decimal.RequireFromString("361.00"),
		Notes:     "extra raita",
		CreatedAt: time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC),
	}
	if err := s.Append(ctx, "asha@example.com", order); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.Drafts(ctx, "asha@example.com")
	if err != nil {
		t.Fatalf("Drafts: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("drafts = %d, want 1", len(got))
	}
	d := got[0]
	if d.ID != 12 || d.LocalID != "d-1" || d.Status != lifecycle.StatusPlaced || d.Notes != "extra raita" {
		t.Errorf("draft = %+v", d)
	}
	// Money survives exactly, not as a float approximation.
	if !d.Total.Equal(decimal.RequireFromString("361.00")) {
		t.Errorf("total = %s, want 361.00", d.Total)
	}
	if !d.Items[0].UnitPrice.Equal(decimal.RequireFromString("180.50")) {
		t.Errorf("unit price = %s, want 180.50", d.Items[0].UnitPrice)
	}
	if !d.CreatedAt.Equal(order.CreatedAt) {
		t.Errorf("created_at = %s, want %s", d.CreatedAt, order.CreatedAt)
	}
}

func TestDraftsNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, localID := range []string{"old", "mid", "new"} {
		err := s.Append(ctx, "asha@example.com", orders.Order{
			LocalID:   localID,
			Status:    lifecycle.StatusPlaced,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Append %s: %v", localID, err)
		}
	}

	got, err := s.Drafts(ctx, "asha@example.com")
	if err != nil {
		t.Fatalf("Drafts: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("drafts = %d, want 3", len(got))
	}
	if got[0].LocalID != "new" || got[2].LocalID != "old" {
		t.Errorf("order = [%s %s %s], want newest first", got[0].LocalID, got[1].LocalID, got[2].LocalID)
	}
}

func TestIdentitiesNeverShareDrafts(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "asha@example.com", orders.Order{LocalID: "a-1"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(ctx, "vikram@example.com", orders.Order{LocalID: "v-1"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// ReplaceAll for one identity must not touch the other.
	if err := s.ReplaceAll(ctx, "asha@example.com", nil); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	asha, _ := s.Drafts(ctx, "asha@example.com")
	vikram, _ := s.Drafts(ctx, "vikram@example.com")
	if len(asha) != 0 {
		t.Errorf("asha drafts = %d, want 0", len(asha))
	}
	if len(vikram) != 1 || vikram[0].LocalID != "v-1" {
		t.Errorf("vikram drafts = %+v, want untouched", vikram)
	}
}

func TestReplaceAllSwapsWholeList(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "asha@example.com", orders.Order{LocalID: "stale", ID: 7}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	err := s.ReplaceAll(ctx, "asha@example.com", []orders.Order{
		{LocalID: "kept", Status: lifecycle.StatusCancelled},
	})
	if err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	got, _ := s.Drafts(ctx, "asha@example.com")
	if len(got) != 1 || got[0].LocalID != "kept" || got[0].Status != lifecycle.StatusCancelled {
		t.Errorf("drafts = %+v", got)
	}
}

func TestDraftsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.db")
	ctx := context.Background()

	s, err := draft.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Append(ctx, "asha@example.com", orders.Order{LocalID: "d-1", ID: 3}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := draft.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Drafts(ctx, "asha@example.com")
	if err != nil {
		t.Fatalf("Drafts: %v", err)
	}
	if len(got) != 1 || got[0].ID != 3 {
		t.Errorf("drafts after reopen = %+v", got)
	}
}

func TestMarkers(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	v, err := s.Marker(ctx, "orders_bump")
	if err != nil {
		t.Fatalf("Marker: %v", err)
	}
	if v != "" {
		t.Errorf("marker = %q, want empty before first bump", v)
	}

	if err := s.SetMarker(ctx, "orders_bump", "abc"); err != nil {
		t.Fatalf("SetMarker: %v", err)
	}
	if err := s.SetMarker(ctx, "orders_bump", "def"); err != nil {
		t.Fatalf("SetMarker overwrite: %v", err)
	}
	v, err = s.Marker(ctx, "orders_bump")
	if err != nil {
		t.Fatalf("Marker: %v", err)
	}
	if v != "def" {
		t.Errorf("marker = %q, want def", v)
	}
}

func TestCredentialLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	identity, access, _, err := s.LoadCredential(ctx)
	if err != nil {
		t.Fatalf("LoadCredential: %v", err)
	}
	if identity != "" || access != "" {
		t.Errorf("credential = (%q, %q), want empty", identity, access)
	}

	if err := s.SaveCredential(ctx, "asha@example.com", "tok-1", "ref-1"); err != nil {
		t.Fatalf("SaveCredential: %v", err)
	}
	if err := s.SaveCredential(ctx, "asha@example.com", "tok-2", "ref-2"); err != nil {
		t.Fatalf("SaveCredential update: %v", err)
	}
	identity, access, refresh, err := s.LoadCredential(ctx)
	if err != nil {
		t.Fatalf("LoadCredential: %v", err)
	}
	if identity != "asha@example.com" || access != "tok-2" || refresh != "ref-2" {
		t.Errorf("credential = (%q, %q, %q)", identity, access, refresh)
	}

	if err := s.DeleteCredential(ctx, "asha@example.com"); err != nil {
		t.Fatalf("DeleteCredential: %v", err)
	}
	identity, _, _, err = s.LoadCredential(ctx)
	if err != nil {
		t.Fatalf("LoadCredential: %v", err)
	}
	if identity != "" {
		t.Errorf("identity = %q after delete, want empty", identity)
	}
}

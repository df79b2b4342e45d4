package handler

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
	"github.com/cminh91/dong-y-sub001/internal/testutil"
)

func TestCartAddCapsAtStock(t *testing.T) {
	db := testutil.NewDB(t)
	h := NewCartHandler(db, zap.NewNop())
	ctx := context.Background()
	user := testutil.CreateUser(t, db, models.RoleCustomer, nil)
	p := testutil.CreateProduct(t, db, "tra", 50000, 4)

	if _, err := h.AddItem(ctx, user.ID, p.ID, 3); err != nil {
		t.Fatalf("add: %v", err)
	}
	cart, err := h.AddItem(ctx, user.ID, p.ID, 3)
	if err != nil {
		t.Fatalf("add again: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 4 {
		t.Fatalf("quantity should be capped at stock: %+v", cart.Items)
	}
	if !cart.Subtotal.Equal(decimal.NewFromInt(200000)) || cart.TotalItems != 4 {
		t.Fatalf("subtotal = %s items = %d", cart.Subtotal, cart.TotalItems)
	}
}

func TestCartSetQuantityAndRemove(t *testing.T) {
	db := testutil.NewDB(t)
	h := NewCartHandler(db, zap.NewNop())
	ctx := context.Background()
	user := testutil.CreateUser(t, db, models.RoleCustomer, nil)
	a := testutil.CreateProduct(t, db, "a", 10000, 10)
	b := testutil.CreateProduct(t, db, "b", 20000, 10)

	h.AddItem(ctx, user.ID, a.ID, 1)
	h.AddItem(ctx, user.ID, b.ID, 1)

	if _, err := h.SetQuantity(ctx, user.ID, a.ID, 11); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
	cart, err := h.SetQuantity(ctx, user.ID, a.ID, 5)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if !cart.Subtotal.Equal(decimal.NewFromInt(70000)) {
		t.Fatalf("subtotal = %s", cart.Subtotal)
	}

	cart, _ = h.SetQuantity(ctx, user.ID, b.ID, 0)
	if len(cart.Items) != 1 {
		t.Fatal("zero quantity should remove the line")
	}

	if err := h.Clear(ctx, user.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	cart, _ = h.GetCart(ctx, user.ID)
	if len(cart.Items) != 0 || !cart.Subtotal.IsZero() {
		t.Fatal("cart should be empty")
	}
}

func TestCartRejectsInactiveProductAndMarksUnavailable(t *testing.T) {
	db := testutil.NewDB(t)
	h := NewCartHandler(db, zap.NewNop())
	ctx := context.Background()
	user := testutil.CreateUser(t, db, models.RoleCustomer, nil)
	p := testutil.CreateProduct(t, db, "p", 10000, 10)

	h.AddItem(ctx, user.ID, p.ID, 2)
	db.Model(p).Update("status", models.ProductInactive)

	if _, err := h.AddItem(ctx, user.ID, p.ID, 1); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
	cart, _ := h.GetCart(ctx, user.ID)
	if cart.Items[0].Available || !cart.Subtotal.IsZero() {
		t.Fatalf("inactive line should be unavailable: %+v", cart)
	}
}

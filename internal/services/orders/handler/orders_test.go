package handler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
	commissions "github.com/cminh91/dong-y-sub001/internal/services/commissions/handler"
	"github.com/cminh91/dong-y-sub001/internal/services/shared"
	"github.com/cminh91/dong-y-sub001/internal/testutil"
)

type fixture struct {
	h   *OrderHandler
	db  *gorm.DB
	rdb *redis.Client
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := testutil.NewDB(t)
	rdb, _ := testutil.NewRedis(t)
	ch := commissions.NewCommissionHandler(db, rdb, zap.NewNop())
	return fixture{
		h:   NewOrderHandler(db, rdb, zap.NewNop(), ch, decimal.NewFromInt(1)),
		db:  db,
		rdb: rdb,
	}
}

func input(items []ItemInput, total int64, method string) CreateOrderInput {
	return CreateOrderInput{
		Items:         items,
		CustomerName:  "Nguyễn Văn A",
		CustomerPhone: "0912345678",
		ShippingAddress: models.ShippingAddress{
			FullName: "Nguyễn Văn A", Phone: "0912345678", Address: "12 Lê Lợi", Province: "Hà Nội",
		},
		PaymentMethod:  method,
		ShippingFee:    decimal.NewFromInt(30000),
		DiscountAmount: decimal.NewFromInt(10000),
		TotalAmount:    decimal.NewFromInt(total),
	}
}

func stockOf(t *testing.T, db *gorm.DB, id int64) int {
	t.Helper()
	var p models.Product
	if err := db.First(&p, id).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return p.Stock
}

func countOrders(db *gorm.DB) int64 {
	var n int64
	db.Model(&models.Order{}).Count(&n)
	return n
}

func TestCreateOrderCOD(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := testutil.CreateProduct(t, f.db, "cao-ich-mau", 150000, 10)
	b := testutil.CreateProduct(t, f.db, "tra-gung", 50000, 5)
	sale := decimal.NewFromInt(40000)
	f.db.Model(b).Update("sale_price", sale)

	buyer := testutil.CreateUser(t, f.db, models.RoleCustomer, nil)
	f.db.Create(&models.CartItem{UserID: buyer.ID, ProductID: a.ID, Quantity: 2})

	sub := f.rdb.Subscribe(ctx, shared.OrderEventChannel(shared.EventOrderCreated))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	in := input([]ItemInput{{ProductID: a.ID, Quantity: 2}, {ProductID: b.ID, Quantity: 3}}, 420000, models.PaymentMethodCOD)
	in.UserID = &buyer.ID
	order, err := f.h.CreateOrder(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if order.Status != models.OrderConfirmed {
		t.Fatalf("COD order should be confirmed, got %s", order.Status)
	}
	if !order.TotalAmount.Equal(decimal.NewFromInt(420000)) || !order.FinalAmount.Equal(decimal.NewFromInt(440000)) {
		t.Fatalf("amounts: total=%s final=%s", order.TotalAmount, order.FinalAmount)
	}
	if !order.FinalAmount.Equal(order.TotalAmount.Add(order.ShippingFee).Sub(order.DiscountAmount)) {
		t.Fatal("final amount invariant broken")
	}
	if stockOf(t, f.db, a.ID) != 8 || stockOf(t, f.db, b.ID) != 2 {
		t.Fatal("stock not decremented")
	}

	var stored models.Order
	f.db.Preload("Items").First(&stored, order.ID)
	if stored.Status != models.OrderConfirmed || len(stored.Items) != 2 {
		t.Fatalf("stored order: status=%s items=%d", stored.Status, len(stored.Items))
	}
	if !stored.Items[1].UnitPrice.Equal(sale) && !stored.Items[0].UnitPrice.Equal(sale) {
		t.Fatal("sale price should be used for the unit price")
	}

	var cart int64
	f.db.Model(&models.CartItem{}).Where("user_id = ?", buyer.ID).Count(&cart)
	if cart != 0 {
		t.Fatal("cart should be cleared after checkout")
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if msg.Payload == "" {
		t.Fatal("empty event payload")
	}
}

func TestCreateOrderBankTransferStaysPending(t *testing.T) {
	f := setup(t)
	p := testutil.CreateProduct(t, f.db, "sam", 100000, 3)

	order, err := f.h.CreateOrder(context.Background(), input([]ItemInput{{ProductID: p.ID, Quantity: 1}}, 100000, models.PaymentMethodBankTransfer))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.Status != models.OrderPending {
		t.Fatalf("status = %s", order.Status)
	}
}

func TestCreateOrderRejectsTotalMismatch(t *testing.T) {
	f := setup(t)
	p := testutil.CreateProduct(t, f.db, "linh-chi", 200000, 3)

	_, err := f.h.CreateOrder(context.Background(), input([]ItemInput{{ProductID: p.ID, Quantity: 1}}, 199998, models.PaymentMethodCOD))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if v := shared.Violations(err); len(v) != 1 || v[0].Field != "totalAmount" {
		t.Fatalf("unexpected violations %+v", v)
	}

	if _, err := f.h.CreateOrder(context.Background(), input([]ItemInput{{ProductID: p.ID, Quantity: 1}}, 199999, models.PaymentMethodCOD)); err != nil {
		t.Fatalf("difference of 1 is tolerated: %v", err)
	}
}

func TestCreateOrderInsufficientStockWritesNothing(t *testing.T) {
	f := setup(t)
	a := testutil.CreateProduct(t, f.db, "a", 10000, 5)
	b := testutil.CreateProduct(t, f.db, "b", 10000, 1)

	_, err := f.h.CreateOrder(context.Background(), input([]ItemInput{{ProductID: a.ID, Quantity: 2}, {ProductID: b.ID, Quantity: 2}}, 40000, models.PaymentMethodCOD))
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
	if v := shared.Violations(err); len(v) != 1 || v[0].Field != "items[1].quantity" {
		t.Fatalf("unexpected violations %+v", v)
	}
	if stockOf(t, f.db, a.ID) != 5 || countOrders(f.db) != 0 {
		t.Fatal("rejected checkout must not write")
	}
}

func TestCreateOrderRejectsInactiveAndUnknownProducts(t *testing.T) {
	f := setup(t)
	p := testutil.CreateProduct(t, f.db, "an", 10000, 5)
	f.db.Model(p).Update("status", models.ProductInactive)

	_, err := f.h.CreateOrder(context.Background(), input([]ItemInput{{ProductID: p.ID, Quantity: 1}, {ProductID: 9999, Quantity: 1}}, 20000, models.PaymentMethodCOD))
	if status.Code(err) != codes.FailedPrecondition || len(shared.Violations(err)) != 2 {
		t.Fatalf("expected two violations, got %v", err)
	}
}

func TestCreateOrderRejectsBadShape(t *testing.T) {
	f := setup(t)
	p := testutil.CreateProduct(t, f.db, "x", 10000, 5)

	in := input([]ItemInput{{ProductID: p.ID, Quantity: 1}, {ProductID: p.ID, Quantity: 0}}, 10000, "CASH")
	_, err := f.h.CreateOrder(context.Background(), in)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if got := len(shared.Violations(err)); got != 3 {
		t.Fatalf("expected 3 violations, got %d", got)
	}

	in = input([]ItemInput{{ProductID: p.ID, Quantity: 1}}, 10000, models.PaymentMethodCOD)
	in.DiscountAmount = decimal.NewFromInt(50000)
	if _, err := f.h.CreateOrder(context.Background(), in); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("discount above subtotal plus shipping must be rejected, got %v", err)
	}
}

func TestConcurrentCheckoutNeverOversells(t *testing.T) {
	f := setup(t)
	p := testutil.CreateProduct(t, f.db, "hang-hiem", 100000, 3)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.h.CreateOrder(context.Background(), input([]ItemInput{{ProductID: p.ID, Quantity: 1}}, 100000, models.PaymentMethodCOD))
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if ok != 3 {
		t.Fatalf("expected 3 successful checkouts, got %d", ok)
	}
	if s := stockOf(t, f.db, p.ID); s != 0 {
		t.Fatalf("stock = %d", s)
	}
}

func TestCreateOrderWithAffiliate(t *testing.T) {
	f := setup(t)
	p := testutil.CreateProduct(t, f.db, "sam-han", 500000, 5)
	agent := testutil.CreateUser(t, f.db, models.RoleAgent, nil)
	link := testutil.CreateLink(t, f.db, agent.ID, 10)

	in := input([]ItemInput{{ProductID: p.ID, Quantity: 1}}, 500000, models.PaymentMethodCOD)
	in.AffiliateSlug = link.Slug
	order, err := f.h.CreateOrder(context.Background(), in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.AffiliateLinkID == nil {
		t.Fatal("order should be attributed")
	}

	var rows []models.Commission
	f.db.Where("order_id = ?", order.ID).Find(&rows)
	if len(rows) != 1 || !rows[0].Amount.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("unexpected commissions %+v", rows)
	}

	self := input([]ItemInput{{ProductID: p.ID, Quantity: 1}}, 500000, models.PaymentMethodCOD)
	self.UserID = &agent.ID
	self.AffiliateSlug = link.Slug
	own, err := f.h.CreateOrder(context.Background(), self)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var n int64
	f.db.Model(&models.Commission{}).Where("order_id = ?", own.ID).Count(&n)
	if n != 0 {
		t.Fatal("self-referral must not create commissions")
	}
}

func TestCancelRestoresStockOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := testutil.CreateProduct(t, f.db, "cao-sao-vang", 80000, 10)
	buyer := testutil.CreateUser(t, f.db, models.RoleCustomer, nil)
	agent := testutil.CreateUser(t, f.db, models.RoleAgent, nil)
	link := testutil.CreateLink(t, f.db, agent.ID, 10)

	in := input([]ItemInput{{ProductID: p.ID, Quantity: 4}}, 320000, models.PaymentMethodCOD)
	in.UserID = &buyer.ID
	in.AffiliateSlug = link.Slug
	order, err := f.h.CreateOrder(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if stockOf(t, f.db, p.ID) != 6 {
		t.Fatal("stock not decremented")
	}

	if _, err := f.h.CancelOwnOrder(ctx, agent.ID, order.OrderNumber, ""); status.Code(err) != codes.NotFound {
		t.Fatalf("other users cannot cancel, got %v", err)
	}

	cancelled, err := f.h.CancelOwnOrder(ctx, buyer.ID, order.OrderNumber, "Đổi ý")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.OrderCancelled || cancelled.CancelledReason != "Đổi ý" {
		t.Fatalf("unexpected order %+v", cancelled)
	}
	if stockOf(t, f.db, p.ID) != 10 {
		t.Fatalf("stock should be restored, got %d", stockOf(t, f.db, p.ID))
	}

	var cm models.Commission
	f.db.Where("order_id = ?", order.ID).First(&cm)
	if cm.Status != models.CommissionCancelled {
		t.Fatalf("commission status = %s", cm.Status)
	}

	if _, err := f.h.CancelOwnOrder(ctx, buyer.ID, order.OrderNumber, ""); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("second cancel must be rejected, got %v", err)
	}
	if stockOf(t, f.db, p.ID) != 10 {
		t.Fatal("stock restored twice")
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := testutil.CreateProduct(t, f.db, "thuoc", 100000, 10)

	order, err := f.h.CreateOrder(ctx, input([]ItemInput{{ProductID: p.ID, Quantity: 1}}, 100000, models.PaymentMethodCOD))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.h.UpdateStatus(ctx, order.ID, models.OrderDelivered, ""); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("CONFIRMED -> DELIVERED must be rejected, got %v", err)
	}
	if _, err := f.h.UpdateStatus(ctx, order.ID, "SHIPPED", ""); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("unknown status must be rejected, got %v", err)
	}

	for _, st := range []string{models.OrderProcessing, models.OrderShipping, models.OrderDelivered} {
		if order, err = f.h.UpdateStatus(ctx, order.ID, st, ""); err != nil {
			t.Fatalf("-> %s: %v", st, err)
		}
	}
	if order.PaymentStatus != models.PaymentPaid || order.PaidAt == nil || order.DeliveredAt == nil {
		t.Fatalf("delivered COD order should be paid: %+v", order)
	}
	if _, err := f.h.UpdateStatus(ctx, order.ID, models.OrderCancelled, ""); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("delivered orders are terminal, got %v", err)
	}
}

func TestAdminCancelRefundsPaidOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := testutil.CreateProduct(t, f.db, "vien", 100000, 10)

	order, _ := f.h.CreateOrder(ctx, input([]ItemInput{{ProductID: p.ID, Quantity: 2}}, 200000, models.PaymentMethodBankTransfer))
	if _, err := f.h.UpdatePaymentStatus(ctx, order.ID, models.PaymentPaid); err != nil {
		t.Fatalf("pay: %v", err)
	}
	cancelled, err := f.h.UpdateStatus(ctx, order.ID, models.OrderCancelled, "Hết hàng")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.PaymentStatus != models.PaymentRefunded {
		t.Fatalf("payment status = %s", cancelled.PaymentStatus)
	}
	if stockOf(t, f.db, p.ID) != 10 {
		t.Fatal("stock not restored")
	}
}

func TestUpdateOrderRecomputesFinalAmount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := testutil.CreateProduct(t, f.db, "bo", 100000, 10)
	order, _ := f.h.CreateOrder(ctx, input([]ItemInput{{ProductID: p.ID, Quantity: 1}}, 100000, models.PaymentMethodCOD))

	fee := decimal.NewFromInt(0)
	discount := decimal.NewFromInt(25000)
	updated, err := f.h.UpdateOrder(ctx, order.ID, AdminUpdateInput{ShippingFee: &fee, DiscountAmount: &discount})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.FinalAmount.Equal(decimal.NewFromInt(75000)) {
		t.Fatalf("final = %s", updated.FinalAmount)
	}

	tooMuch := decimal.NewFromInt(200000)
	if _, err := f.h.UpdateOrder(ctx, order.ID, AdminUpdateInput{DiscountAmount: &tooMuch}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestExpireUnpaidOrders(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := testutil.CreateProduct(t, f.db, "mat-ong", 100000, 10)

	prepaid, _ := f.h.CreateOrder(ctx, input([]ItemInput{{ProductID: p.ID, Quantity: 2}}, 200000, models.PaymentMethodMomo))
	cod, _ := f.h.CreateOrder(ctx, input([]ItemInput{{ProductID: p.ID, Quantity: 1}}, 100000, models.PaymentMethodCOD))

	f.h.now = func() time.Time { return time.Now().Add(72 * time.Hour) }
	n, err := f.h.ExpireUnpaidOrders(ctx, 48*time.Hour)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired order, got %d", n)
	}

	got, _ := f.h.GetOrder(ctx, prepaid.ID)
	if got.Status != models.OrderCancelled {
		t.Fatalf("prepaid order status = %s", got.Status)
	}
	got, _ = f.h.GetOrder(ctx, cod.ID)
	if got.Status != models.OrderConfirmed {
		t.Fatalf("COD order status = %s", got.Status)
	}
	if stockOf(t, f.db, p.ID) != 9 {
		t.Fatalf("stock = %d", stockOf(t, f.db, p.ID))
	}
}

func TestListOrdersFilters(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := testutil.CreateProduct(t, f.db, "list", 100000, 10)
	buyer := testutil.CreateUser(t, f.db, models.RoleCustomer, nil)

	in := input([]ItemInput{{ProductID: p.ID, Quantity: 1}}, 100000, models.PaymentMethodCOD)
	in.UserID = &buyer.ID
	mine, _ := f.h.CreateOrder(ctx, in)
	f.h.CreateOrder(ctx, input([]ItemInput{{ProductID: p.ID, Quantity: 1}}, 100000, models.PaymentMethodVNPay))

	own, meta, err := f.h.ListUserOrders(ctx, buyer.ID, shared.Page{})
	if err != nil || meta.Total != 1 || own[0].ID != mine.ID {
		t.Fatalf("own orders: %v %+v", err, meta)
	}

	all, meta, _ := f.h.ListOrders(ctx, OrderFilter{Status: models.OrderPending})
	if meta.Total != 1 || all[0].PaymentMethod != models.PaymentMethodVNPay {
		t.Fatalf("status filter: %+v", meta)
	}

	found, meta, _ := f.h.ListOrders(ctx, OrderFilter{Search: mine.OrderNumber[len(mine.OrderNumber)-6:]})
	if meta.Total != 1 || found[0].ID != mine.ID {
		t.Fatalf("search: %+v", meta)
	}

	byNumber, err := f.h.GetOrderByNumber(ctx, mine.OrderNumber)
	if err != nil || len(byNumber.Items) != 1 {
		t.Fatalf("by number: %v", err)
	}
}

package handler

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
	"github.com/cminh91/dong-y-sub001/internal/monitoring"
	"github.com/cminh91/dong-y-sub001/internal/pricing"
	commissions "github.com/cminh91/dong-y-sub001/internal/services/commissions/handler"
	"github.com/cminh91/dong-y-sub001/internal/services/shared"
	"github.com/cminh91/dong-y-sub001/internal/utils"
)

type ItemInput struct {
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

type CreateOrderInput struct {
	UserID          *int64
	Items           []ItemInput
	CustomerName    string
	CustomerPhone   string
	CustomerEmail   string
	ShippingAddress models.ShippingAddress
	PaymentMethod   string
	ShippingFee     decimal.Decimal
	DiscountAmount  decimal.Decimal
	TotalAmount     decimal.Decimal
	Notes           string
	AffiliateSlug   string
}

func validPaymentMethod(m string) bool {
	switch m {
	case models.PaymentMethodCOD, models.PaymentMethodBankTransfer, models.PaymentMethodMomo, models.PaymentMethodVNPay:
		return true
	}
	return false
}

func (s *OrderHandler) reject(reason string, err error) error {
	monitoring.OrdersRejectedTotal.WithLabelValues(reason).Inc()
	return err
}

func validateInput(in CreateOrderInput) []shared.FieldViolation {
	var v []shared.FieldViolation
	if len(in.Items) == 0 {
		v = append(v, shared.FieldViolation{Field: "items", Message: "Đơn hàng phải có ít nhất một sản phẩm"})
	}
	if len(in.Items) > MaxOrderItems {
		v = append(v, shared.FieldViolation{Field: "items", Message: fmt.Sprintf("Tối đa %d sản phẩm mỗi đơn", MaxOrderItems)})
	}
	seen := map[int64]bool{}
	for i, it := range in.Items {
		if it.Quantity < 1 {
			v = append(v, shared.FieldViolation{Field: fmt.Sprintf("items[%d].quantity", i), Message: "Số lượng phải lớn hơn 0"})
		}
		if seen[it.ProductID] {
			v = append(v, shared.FieldViolation{Field: fmt.Sprintf("items[%d].productId", i), Message: "Sản phẩm bị trùng lặp"})
		}
		seen[it.ProductID] = true
	}
	if in.CustomerName == "" {
		v = append(v, shared.FieldViolation{Field: "customerName", Message: "Vui lòng nhập tên khách hàng"})
	}
	if in.CustomerPhone == "" {
		v = append(v, shared.FieldViolation{Field: "customerPhone", Message: "Vui lòng nhập số điện thoại"})
	}
	if !validPaymentMethod(in.PaymentMethod) {
		v = append(v, shared.FieldViolation{Field: "paymentMethod", Message: "Phương thức thanh toán không hợp lệ"})
	}
	if in.ShippingFee.IsNegative() {
		v = append(v, shared.FieldViolation{Field: "shippingFee", Message: "Phí vận chuyển không hợp lệ"})
	}
	if in.DiscountAmount.IsNegative() {
		v = append(v, shared.FieldViolation{Field: "discountAmount", Message: "Giảm giá không hợp lệ"})
	}
	return v
}

// CreateOrder validates the cart against current catalog data and writes the order,
// its items, the stock decrements and any affiliate commissions in one transaction.
func (s *OrderHandler) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if v := validateInput(in); len(v) > 0 {
		return nil, s.reject("invalid_input", shared.FieldError(codes.InvalidArgument, "Dữ liệu đơn hàng không hợp lệ", v...))
	}

	ids := make([]int64, len(in.Items))
	for i, it := range in.Items {
		ids[i] = it.ProductID
	}
	var products []models.Product
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to load products: %v", err)
	}
	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var violations []shared.FieldViolation
	lines := make([]pricing.Line, 0, len(in.Items))
	items := make([]models.OrderItem, 0, len(in.Items))
	for i, it := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		p, ok := byID[it.ProductID]
		switch {
		case !ok:
			violations = append(violations, shared.FieldViolation{Field: field + ".productId", Message: fmt.Sprintf("Sản phẩm #%d không tồn tại", it.ProductID)})
			continue
		case p.Status != models.ProductActive:
			violations = append(violations, shared.FieldViolation{Field: field + ".productId", Message: fmt.Sprintf("Sản phẩm \"%s\" hiện không được bán", p.Name)})
			continue
		case p.Stock < it.Quantity:
			violations = append(violations, shared.FieldViolation{Field: field + ".quantity", Message: fmt.Sprintf("Sản phẩm \"%s\" chỉ còn %d", p.Name, p.Stock)})
			continue
		}

		unit := pricing.EffectivePrice(p.Price, p.SalePrice)
		lines = append(lines, pricing.Line{UnitPrice: unit, Quantity: it.Quantity})
		items = append(items, models.OrderItem{
			ProductID:    p.ID,
			ProductName:  p.Name,
			ProductImage: p.Images.First(),
			ProductSKU:   p.SKU,
			Quantity:     it.Quantity,
			UnitPrice:    unit,
			LineTotal:    pricing.LineTotal(unit, it.Quantity),
		})
	}
	if len(violations) > 0 {
		return nil, s.reject("unavailable", shared.FieldError(codes.FailedPrecondition, "Một số sản phẩm không còn đủ điều kiện đặt hàng", violations...))
	}

	subtotal := pricing.Subtotal(lines)
	if !pricing.WithinTolerance(subtotal, in.TotalAmount, s.tolerance) {
		return nil, s.reject("total_mismatch", shared.FieldError(codes.InvalidArgument, "Tổng tiền không khớp, vui lòng tải lại giỏ hàng",
			shared.FieldViolation{Field: "totalAmount", Message: fmt.Sprintf("Tổng tiền đúng là %s", subtotal.StringFixed(0))}))
	}

	totals, err := pricing.Compute(subtotal, in.ShippingFee, in.DiscountAmount)
	if err != nil {
		return nil, s.reject("invalid_discount", shared.FieldError(codes.InvalidArgument, "Giảm giá vượt quá giá trị đơn hàng",
			shared.FieldViolation{Field: "discountAmount", Message: err.Error()}))
	}

	order := models.Order{
		OrderNumber:     utils.OrderNumber(s.now()),
		UserID:          in.UserID,
		CustomerName:    in.CustomerName,
		CustomerEmail:   in.CustomerEmail,
		CustomerPhone:   in.CustomerPhone,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		Status:          models.OrderPending,
		PaymentStatus:   models.PaymentPending,
		TotalAmount:     totals.Subtotal,
		ShippingFee:     totals.Shipping,
		DiscountAmount:  totals.Discount,
		FinalAmount:     totals.Final,
		Notes:           in.Notes,
	}

	// Lock and decrement in a fixed order so concurrent checkouts cannot deadlock.
	sorted := append([]models.OrderItem(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	var created []models.Commission
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, it := range sorted {
			var p models.Product
			if err := shared.ForUpdate(tx).Select("id", "name", "stock", "status").First(&p, it.ProductID).Error; err != nil {
				return shared.NotFoundOr(err, "sản phẩm")
			}

			res := tx.Model(&models.Product{}).
				Where("id = ? AND stock >= ? AND status = ?", it.ProductID, it.Quantity, models.ProductActive).
				Update("stock", gorm.Expr("stock - ?", it.Quantity))
			if res.Error != nil {
				return status.Errorf(codes.Internal, "Failed to update stock: %v", res.Error)
			}
			if res.RowsAffected == 0 {
				return shared.FieldError(codes.FailedPrecondition, "Sản phẩm vừa hết hàng",
					shared.FieldViolation{Field: "items", Message: fmt.Sprintf("Sản phẩm \"%s\" chỉ còn %d", p.Name, p.Stock)})
			}
		}

		if err := tx.Create(&order).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to create order: %v", err)
		}

		for i := range items {
			items[i].OrderID = order.ID
		}
		if err := tx.Create(&items).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to create order items: %v", err)
		}
		order.Items = items

		rows, err := s.commissions.RecordForOrder(tx, &order, in.AffiliateSlug)
		if err != nil {
			return err
		}
		created = rows
		return nil
	})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.FailedPrecondition {
			return nil, s.reject("out_of_stock", err)
		}
		s.log.Error("order transaction failed", zap.String("order", order.OrderNumber), zap.Error(err))
		return nil, shared.Internal(err, "Failed to create order")
	}

	s.afterCreate(ctx, &order, created)
	return &order, nil
}

// afterCreate runs the post-commit steps. Failures here are logged and never undo the order.
func (s *OrderHandler) afterCreate(ctx context.Context, order *models.Order, created []models.Commission) {
	if order.PaymentMethod == models.PaymentMethodCOD {
		res := s.db.WithContext(ctx).Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, models.OrderPending).
			Update("status", models.OrderConfirmed)
		if res.Error != nil {
			s.log.Error("failed to confirm COD order", zap.String("order", order.OrderNumber), zap.Error(res.Error))
		} else if res.RowsAffected == 1 {
			order.Status = models.OrderConfirmed
		}
	}

	if order.UserID != nil {
		if err := s.db.WithContext(ctx).Where("user_id = ?", *order.UserID).Delete(&models.CartItem{}).Error; err != nil {
			s.log.Warn("failed to clear cart", zap.Int64("user_id", *order.UserID), zap.Error(err))
		}
	}

	s.invalidateProducts(ctx, itemProductIDs(order.Items))
	s.publish(ctx, shared.EventOrderCreated, order)

	monitoring.OrdersCreatedTotal.WithLabelValues(order.PaymentMethod).Inc()
	monitoring.OrderValue.Observe(order.FinalAmount.InexactFloat64())
	commissions.RecordMetrics(created)

	s.log.Info("order created",
		zap.String("order", order.OrderNumber),
		zap.String("final_amount", order.FinalAmount.StringFixed(0)),
		zap.Int("commissions", len(created)),
	)
}

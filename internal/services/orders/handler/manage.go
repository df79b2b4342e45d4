package handler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
	"github.com/cminh91/dong-y-sub001/internal/monitoring"
	"github.com/cminh91/dong-y-sub001/internal/pricing"
	"github.com/cminh91/dong-y-sub001/internal/services/shared"
)

// cancelInTx moves order to CANCELLED, restores the stock of its items and cancels
// its open commissions. The status guard makes a second cancel fail with Aborted.
func (s *OrderHandler) cancelInTx(tx *gorm.DB, order *models.Order, reason string) error {
	updates := map[string]interface{}{
		"status":           models.OrderCancelled,
		"cancelled_reason": reason,
	}
	if order.PaymentStatus == models.PaymentPaid {
		updates["payment_status"] = models.PaymentRefunded
	}

	res := tx.Model(&models.Order{}).Where("id = ? AND status = ?", order.ID, order.Status).Updates(updates)
	if res.Error != nil {
		return status.Errorf(codes.Internal, "Failed to cancel order: %v", res.Error)
	}
	if res.RowsAffected == 0 {
		return status.Errorf(codes.Aborted, "Đơn hàng vừa được cập nhật, vui lòng thử lại")
	}

	var items []models.OrderItem
	if err := tx.Where("order_id = ?", order.ID).Find(&items).Error; err != nil {
		return status.Errorf(codes.Internal, "Failed to load order items: %v", err)
	}
	for _, it := range items {
		if err := tx.Model(&models.Product{}).Where("id = ?", it.ProductID).
			Update("stock", gorm.Expr("stock + ?", it.Quantity)).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to restore stock: %v", err)
		}
	}

	if _, err := s.commissions.CancelForOrder(tx, order.ID); err != nil {
		return err
	}

	order.Status = models.OrderCancelled
	order.CancelledReason = reason
	if p, ok := updates["payment_status"]; ok {
		order.PaymentStatus = p.(string)
	}
	order.Items = items
	return nil
}

func (s *OrderHandler) cancel(ctx context.Context, order *models.Order, reason, origin string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.cancelInTx(tx, order, reason)
	})
	if err != nil {
		return shared.Internal(err, "Failed to cancel order")
	}

	monitoring.OrdersCancelledTotal.WithLabelValues(origin).Inc()
	s.invalidateProducts(ctx, itemProductIDs(order.Items))
	s.publish(ctx, shared.EventOrderCancelled, order)
	s.log.Info("order cancelled", zap.String("order", order.OrderNumber), zap.String("origin", origin), zap.String("reason", reason))
	return nil
}

// CancelOwnOrder lets a buyer cancel an order that has not started processing.
func (s *OrderHandler) CancelOwnOrder(ctx context.Context, userID int64, orderNumber, reason string) (*models.Order, error) {
	order, err := s.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if order.UserID == nil || *order.UserID != userID {
		return nil, status.Errorf(codes.NotFound, "Không tìm thấy đơn hàng")
	}
	if order.Status != models.OrderPending && order.Status != models.OrderConfirmed {
		return nil, status.Errorf(codes.FailedPrecondition, "Đơn hàng đang được xử lý, không thể huỷ")
	}
	if reason == "" {
		reason = "Khách hàng huỷ đơn"
	}

	if err := s.cancel(ctx, order, reason, OriginCustomer); err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateStatus applies an admin status transition. CANCELLED goes through the cancel path.
func (s *OrderHandler) UpdateStatus(ctx context.Context, id int64, newStatus, reason string) (*models.Order, error) {
	if !models.IsOrderStatus(newStatus) {
		return nil, shared.FieldError(codes.InvalidArgument, "Trạng thái không hợp lệ",
			shared.FieldViolation{Field: "status", Message: "Trạng thái không hợp lệ"})
	}

	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(order.Status, newStatus) {
		return nil, status.Errorf(codes.FailedPrecondition, "Không thể chuyển trạng thái từ %s sang %s", order.Status, newStatus)
	}

	if newStatus == models.OrderCancelled {
		if reason == "" {
			reason = "Quản trị viên huỷ đơn"
		}
		if err := s.cancel(ctx, order, reason, OriginAdmin); err != nil {
			return nil, err
		}
		return order, nil
	}

	now := s.now()
	updates := map[string]interface{}{"status": newStatus}
	if newStatus == models.OrderDelivered {
		updates["delivered_at"] = now
		order.DeliveredAt = &now
		if order.PaymentMethod == models.PaymentMethodCOD && order.PaymentStatus != models.PaymentPaid {
			updates["payment_status"] = models.PaymentPaid
			updates["paid_at"] = now
			order.PaymentStatus = models.PaymentPaid
			order.PaidAt = &now
		}
	}

	res := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ? AND status = ?", order.ID, order.Status).Updates(updates)
	if res.Error != nil {
		return nil, status.Errorf(codes.Internal, "Failed to update order status: %v", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, status.Errorf(codes.Aborted, "Đơn hàng vừa được cập nhật, vui lòng thử lại")
	}
	order.Status = newStatus

	s.publish(ctx, shared.EventOrderUpdated, order)
	return order, nil
}

func (s *OrderHandler) UpdatePaymentStatus(ctx context.Context, id int64, paymentStatus string) (*models.Order, error) {
	if !models.IsPaymentStatus(paymentStatus) {
		return nil, shared.FieldError(codes.InvalidArgument, "Trạng thái thanh toán không hợp lệ",
			shared.FieldViolation{Field: "paymentStatus", Message: "Trạng thái thanh toán không hợp lệ"})
	}

	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderCancelled && paymentStatus == models.PaymentPaid {
		return nil, status.Errorf(codes.FailedPrecondition, "Đơn hàng đã huỷ")
	}
	if paymentStatus == models.PaymentRefunded && order.PaymentStatus != models.PaymentPaid {
		return nil, status.Errorf(codes.FailedPrecondition, "Chỉ hoàn tiền được đơn đã thanh toán")
	}

	updates := map[string]interface{}{"payment_status": paymentStatus}
	if paymentStatus == models.PaymentPaid && order.PaidAt == nil {
		now := s.now()
		updates["paid_at"] = now
		order.PaidAt = &now
	}
	if err := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to update payment status: %v", err)
	}
	order.PaymentStatus = paymentStatus

	s.publish(ctx, shared.EventOrderUpdated, order)
	return order, nil
}

type AdminUpdateInput struct {
	ShippingFee    *decimal.Decimal
	DiscountAmount *decimal.Decimal
	Notes          *string
}

// UpdateOrder edits the adjustable amounts of an open order. Totals are recomputed by pricing.
func (s *OrderHandler) UpdateOrder(ctx context.Context, id int64, in AdminUpdateInput) (*models.Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderDelivered || order.Status == models.OrderCancelled {
		return nil, status.Errorf(codes.FailedPrecondition, "Không thể sửa đơn hàng đã %s", order.Status)
	}

	shipping, discount := order.ShippingFee, order.DiscountAmount
	if in.ShippingFee != nil {
		shipping = *in.ShippingFee
	}
	if in.DiscountAmount != nil {
		discount = *in.DiscountAmount
	}
	totals, err := pricing.Compute(order.TotalAmount, shipping, discount)
	if err != nil {
		return nil, shared.FieldError(codes.InvalidArgument, "Số tiền không hợp lệ",
			shared.FieldViolation{Field: "discountAmount", Message: err.Error()})
	}

	updates := map[string]interface{}{
		"shipping_fee":    totals.Shipping,
		"discount_amount": totals.Discount,
		"final_amount":    totals.Final,
	}
	if in.Notes != nil {
		updates["notes"] = *in.Notes
		order.Notes = *in.Notes
	}
	if err := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to update order: %v", err)
	}
	order.ShippingFee, order.DiscountAmount, order.FinalAmount = totals.Shipping, totals.Discount, totals.Final

	s.publish(ctx, shared.EventOrderUpdated, order)
	return order, nil
}

// ExpireUnpaidOrders cancels prepaid orders still unpaid after ttl.
func (s *OrderHandler) ExpireUnpaidOrders(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := s.now().Add(-ttl)

	var stale []models.Order
	err := s.db.WithContext(ctx).
		Where("status = ? AND payment_status = ? AND payment_method IN ? AND created_at <= ?",
			models.OrderPending, models.PaymentPending,
			[]string{models.PaymentMethodBankTransfer, models.PaymentMethodMomo, models.PaymentMethodVNPay},
			cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, status.Errorf(codes.Internal, "Failed to load unpaid orders: %v", err)
	}

	expired := 0
	for i := range stale {
		if err := s.cancel(ctx, &stale[i], "Quá hạn thanh toán", OriginExpiry); err != nil {
			if status.Code(err) == codes.Aborted {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

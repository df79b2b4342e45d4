package handler

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
	"github.com/cminh91/dong-y-sub001/internal/services/shared"
)

func (s *OrderHandler) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	if id <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "Order ID is required")
	}
	var order models.Order
	if err := s.db.WithContext(ctx).Preload("Items").First(&order, id).Error; err != nil {
		return nil, shared.NotFoundOr(err, "đơn hàng")
	}
	return &order, nil
}

func (s *OrderHandler) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	if orderNumber == "" {
		return nil, status.Errorf(codes.InvalidArgument, "Order number is required")
	}
	var order models.Order
	if err := s.db.WithContext(ctx).Preload("Items").Where("order_number = ?", strings.ToUpper(orderNumber)).First(&order).Error; err != nil {
		return nil, shared.NotFoundOr(err, "đơn hàng")
	}
	return &order, nil
}

func (s *OrderHandler) ListUserOrders(ctx context.Context, userID int64, page shared.Page) ([]models.Order, shared.PageMeta, error) {
	return s.list(ctx, OrderFilter{UserID: &userID, Page: page})
}

type OrderFilter struct {
	UserID        *int64
	Status        string
	PaymentStatus string
	Search        string
	From          *time.Time
	To            *time.Time
	Page          shared.Page
}

func (s *OrderHandler) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, shared.PageMeta, error) {
	return s.list(ctx, f)
}

func (s *OrderHandler) list(ctx context.Context, f OrderFilter) ([]models.Order, shared.PageMeta, error) {
	page := f.Page.Normalize()
	query := s.db.WithContext(ctx).Model(&models.Order{})

	if f.UserID != nil {
		query = query.Where("user_id = ?", *f.UserID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.PaymentStatus != "" {
		query = query.Where("payment_status = ?", f.PaymentStatus)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		query = query.Where("LOWER(order_number) LIKE ? OR LOWER(customer_name) LIKE ? OR customer_phone LIKE ?", like, like, like)
	}
	if f.From != nil {
		query = query.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("created_at < ?", *f.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, shared.PageMeta{}, status.Errorf(codes.Internal, "Failed to count orders: %v", err)
	}

	var orders []models.Order
	if err := query.Order("created_at desc").Order("id desc").
		Offset(page.Offset()).Limit(page.PageSize).
		Preload("Items").
		Find(&orders).Error; err != nil {
		return nil, shared.PageMeta{}, status.Errorf(codes.Internal, "Failed to retrieve orders: %v", err)
	}

	return orders, page.Meta(total), nil
}

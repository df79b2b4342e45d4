package handler

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
	commissions "github.com/cminh91/dong-y-sub001/internal/services/commissions/handler"
	"github.com/cminh91/dong-y-sub001/internal/services/shared"
)

const (
	MaxOrderItems = 50

	OriginCustomer = "customer"
	OriginAdmin    = "admin"
	OriginExpiry   = "expiry"
)

type OrderHandler struct {
	db          *gorm.DB
	redis       *redis.Client
	log         *zap.Logger
	commissions *commissions.CommissionHandler
	tolerance   decimal.Decimal
	now         func() time.Time
}

func NewOrderHandler(db *gorm.DB, redisClient *redis.Client, log *zap.Logger, ch *commissions.CommissionHandler, tolerance decimal.Decimal) *OrderHandler {
	return &OrderHandler{
		db:          db,
		redis:       redisClient,
		log:         log.Named("orders"),
		commissions: ch,
		tolerance:   tolerance,
		now:         time.Now,
	}
}

func (s *OrderHandler) publish(ctx context.Context, eventType string, order *models.Order) {
	err := shared.PublishOrderEvent(ctx, s.redis, shared.OrderEvent{
		EventType:     eventType,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		FinalAmount:   order.FinalAmount.StringFixed(0),
		Timestamp:     s.now(),
		OrderData:     order,
	})
	if err != nil {
		s.log.Warn("failed to publish order event", zap.String("event", eventType), zap.String("order", order.OrderNumber), zap.Error(err))
	}
}

func (s *OrderHandler) invalidateProducts(ctx context.Context, productIDs []int64) {
	if len(productIDs) == 0 {
		return
	}
	var slugs []string
	if err := s.db.WithContext(ctx).Model(&models.Product{}).Where("id IN ?", productIDs).Pluck("slug", &slugs).Error; err != nil {
		s.log.Warn("failed to load product slugs for cache invalidation", zap.Error(err))
	}
	shared.InvalidateProductCaches(ctx, s.redis, slugs...)
}

func itemProductIDs(items []models.OrderItem) []int64 {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

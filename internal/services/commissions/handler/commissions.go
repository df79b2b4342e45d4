package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
	"github.com/cminh91/dong-y-sub001/internal/monitoring"
	"github.com/cminh91/dong-y-sub001/internal/services/shared"
)

const COMMISSION_SUMMARY_CACHE_PREFIX = "commission:summary:"

type CommissionHandler struct {
	db    *gorm.DB
	redis *redis.Client
	log   *zap.Logger
}

func NewCommissionHandler(db *gorm.DB, redisClient *redis.Client, log *zap.Logger) *CommissionHandler {
	return &CommissionHandler{db: db, redis: redisClient, log: log.Named("commissions")}
}

func (c *CommissionHandler) InvalidateCommissionCaches(ctx context.Context, userIDs ...int64) {
	for _, id := range userIDs {
		_ = c.redis.Del(ctx, COMMISSION_SUMMARY_CACHE_PREFIX+strconv.FormatInt(id, 10)).Err()
	}
}

// RecordForOrder attributes a freshly created order to the affiliate link named by slug
// and inserts its commissions. It must run inside the order transaction.
// An unknown or inactive slug is ignored.
func (c *CommissionHandler) RecordForOrder(tx *gorm.DB, order *models.Order, slug string) ([]models.Commission, error) {
	if slug == "" {
		return nil, nil
	}

	settings, err := LoadSettings(tx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to load affiliate settings: %v", err)
	}
	if !settings.Enabled {
		return nil, nil
	}

	var link models.AffiliateLink
	if err := tx.Where("slug = ? AND is_active = ?", slug, true).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, status.Errorf(codes.Internal, "Failed to load affiliate link: %v", err)
	}

	if order.UserID != nil && *order.UserID == link.UserID {
		return nil, nil
	}
	if order.UserID == nil {
		var owner models.User
		if err := tx.Select("id", "phone").First(&owner, link.UserID).Error; err == nil && owner.Phone != "" && owner.Phone == order.CustomerPhone {
			return nil, nil
		}
	}

	if settings.FirstOrderOnly {
		prior := tx.Model(&models.Order{}).Where("id <> ? AND status <> ?", order.ID, models.OrderCancelled)
		if order.UserID != nil {
			prior = prior.Where("user_id = ?", *order.UserID)
		} else {
			prior = prior.Where("customer_phone = ?", order.CustomerPhone)
		}
		var count int64
		if err := prior.Count(&count).Error; err != nil {
			return nil, status.Errorf(codes.Internal, "Failed to count prior orders: %v", err)
		}
		if count > 0 {
			return nil, nil
		}
	}

	lookup := func(id int64) (*models.User, error) {
		var u models.User
		if err := tx.First(&u, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return &u, nil
	}

	rows, err := BuildCommissions(order.TotalAmount, link, order.UserID, settings, lookup)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to compute commissions: %v", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	total := decimal.Zero
	for i := range rows {
		rows[i].OrderID = order.ID
		total = total.Add(rows[i].Amount)
	}
	if err := tx.Create(&rows).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to save commissions: %v", err)
	}

	for _, row := range rows {
		if err := tx.Model(&models.User{}).Where("id = ?", row.UserID).
			Update("total_commission", gorm.Expr("total_commission + ?", row.Amount)).Error; err != nil {
			return nil, status.Errorf(codes.Internal, "Failed to update user commission: %v", err)
		}
	}

	if err := tx.Model(&models.AffiliateLink{}).Where("id = ?", link.ID).Updates(map[string]interface{}{
		"conversions":      gorm.Expr("conversions + 1"),
		"total_commission": gorm.Expr("total_commission + ?", total),
	}).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to update affiliate link: %v", err)
	}

	if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Update("affiliate_link_id", link.ID).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to attribute order: %v", err)
	}
	order.AffiliateLinkID = &link.ID

	return rows, nil
}

// CancelForOrder cancels every open commission of an order and reverses the aggregates.
// It must run inside the cancel transaction.
func (c *CommissionHandler) CancelForOrder(tx *gorm.DB, orderID int64) ([]models.Commission, error) {
	var open []models.Commission
	if err := shared.ForUpdate(tx).
		Where("order_id = ? AND status IN ?", orderID, []string{models.CommissionPending, models.CommissionApproved}).
		Find(&open).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to load commissions: %v", err)
	}

	converted := false
	for i := range open {
		if err := c.reverse(tx, &open[i]); err != nil {
			return nil, err
		}
		if open[i].Level == 1 {
			converted = true
		}
	}

	if converted {
		if err := uncountConversion(tx, open[0].AffiliateLinkID); err != nil {
			return nil, err
		}
	}

	return open, nil
}

// uncountConversion drops the conversion a live level-1 commission stands for.
func uncountConversion(tx *gorm.DB, linkID *int64) error {
	if linkID == nil {
		return nil
	}
	if err := tx.Model(&models.AffiliateLink{}).
		Where("id = ? AND conversions > 0", *linkID).
		Update("conversions", gorm.Expr("conversions - 1")).Error; err != nil {
		return status.Errorf(codes.Internal, "Failed to update affiliate link: %v", err)
	}
	return nil
}

func (c *CommissionHandler) reverse(tx *gorm.DB, cm *models.Commission) error {
	if err := tx.Model(cm).Update("status", models.CommissionCancelled).Error; err != nil {
		return status.Errorf(codes.Internal, "Failed to cancel commission: %v", err)
	}
	cm.Status = models.CommissionCancelled

	if err := tx.Model(&models.User{}).Where("id = ?", cm.UserID).
		Update("total_commission", gorm.Expr("total_commission - ?", cm.Amount)).Error; err != nil {
		return status.Errorf(codes.Internal, "Failed to update user commission: %v", err)
	}
	if cm.AffiliateLinkID != nil {
		if err := tx.Model(&models.AffiliateLink{}).Where("id = ?", *cm.AffiliateLinkID).
			Update("total_commission", gorm.Expr("total_commission - ?", cm.Amount)).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to update affiliate link: %v", err)
		}
	}
	return nil
}

func (c *CommissionHandler) ApproveCommission(ctx context.Context, id int64) (*models.Commission, error) {
	if id <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "Commission ID is required")
	}

	var commission models.Commission
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := shared.ForUpdate(tx).First(&commission, id).Error; err != nil {
			return shared.NotFoundOr(err, "hoa hồng")
		}
		if commission.Status != models.CommissionPending {
			return status.Errorf(codes.FailedPrecondition, "Chỉ duyệt được hoa hồng đang chờ. Trạng thái hiện tại: %s", commission.Status)
		}

		var order models.Order
		if err := tx.Select("id", "status").First(&order, commission.OrderID).Error; err != nil {
			return shared.NotFoundOr(err, "đơn hàng")
		}
		if order.Status != models.OrderDelivered {
			return status.Errorf(codes.FailedPrecondition, "Đơn hàng chưa giao thành công")
		}

		now := time.Now()
		commission.Status = models.CommissionApproved
		commission.ApprovedAt = &now
		if err := tx.Model(&commission).Updates(map[string]interface{}{
			"status":      commission.Status,
			"approved_at": now,
		}).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to save approval: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.InvalidateCommissionCaches(ctx, commission.UserID)
	return &commission, nil
}

func (c *CommissionHandler) PayCommission(ctx context.Context, id int64) (*models.Commission, error) {
	if id <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "Commission ID is required")
	}

	var commission models.Commission
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := shared.ForUpdate(tx).First(&commission, id).Error; err != nil {
			return shared.NotFoundOr(err, "hoa hồng")
		}
		if commission.Status != models.CommissionApproved {
			return status.Errorf(codes.FailedPrecondition, "Chỉ thanh toán được hoa hồng đã duyệt. Trạng thái hiện tại: %s", commission.Status)
		}

		now := time.Now()
		commission.Status = models.CommissionPaid
		commission.PaidAt = &now
		if err := tx.Model(&commission).Updates(map[string]interface{}{
			"status":  commission.Status,
			"paid_at": now,
		}).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to save payment: %v", err)
		}

		if err := tx.Model(&models.User{}).Where("id = ?", commission.UserID).
			Update("available_balance", gorm.Expr("available_balance + ?", commission.Amount)).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to credit balance: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.InvalidateCommissionCaches(ctx, commission.UserID)
	return &commission, nil
}

func (c *CommissionHandler) CancelCommission(ctx context.Context, id int64) (*models.Commission, error) {
	if id <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "Commission ID is required")
	}

	var commission models.Commission
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := shared.ForUpdate(tx).First(&commission, id).Error; err != nil {
			return shared.NotFoundOr(err, "hoa hồng")
		}
		if commission.Status != models.CommissionPending && commission.Status != models.CommissionApproved {
			return status.Errorf(codes.FailedPrecondition, "Không thể huỷ hoa hồng ở trạng thái %s", commission.Status)
		}
		if err := c.reverse(tx, &commission); err != nil {
			return err
		}
		if commission.Level == 1 {
			return uncountConversion(tx, commission.AffiliateLinkID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.InvalidateCommissionCaches(ctx, commission.UserID)
	return &commission, nil
}

type ListFilter struct {
	UserID *int64
	Status string
	Page   shared.Page
}

func (c *CommissionHandler) ListCommissions(ctx context.Context, f ListFilter) ([]models.Commission, shared.PageMeta, error) {
	page := f.Page.Normalize()
	query := c.db.WithContext(ctx).Model(&models.Commission{})

	if f.UserID != nil {
		query = query.Where("user_id = ?", *f.UserID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, shared.PageMeta{}, status.Errorf(codes.Internal, "Failed to count commissions: %v", err)
	}

	var commissions []models.Commission
	err := query.
		Order("created_at desc").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Preload("Order", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "order_number", "status", "total_amount", "final_amount", "created_at")
		}).
		Preload("User", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "full_name", "email", "role")
		}).
		Find(&commissions).Error
	if err != nil {
		return nil, shared.PageMeta{}, status.Errorf(codes.Internal, "Failed to retrieve commissions: %v", err)
	}

	return commissions, page.Meta(total), nil
}

type Summary struct {
	Total    decimal.Decimal `json:"total"`
	Pending  decimal.Decimal `json:"pending"`
	Approved decimal.Decimal `json:"approved"`
	Paid     decimal.Decimal `json:"paid"`
}

// GetSummary sums a user's commissions by status. Cancelled rows are excluded from Total.
func (c *CommissionHandler) GetSummary(ctx context.Context, userID int64) (*Summary, error) {
	cacheKey := COMMISSION_SUMMARY_CACHE_PREFIX + strconv.FormatInt(userID, 10)

	var cached Summary
	if shared.GetJSON(ctx, c.redis, c.log, cacheKey, &cached) {
		return &cached, nil
	}

	var rows []models.Commission
	if err := c.db.WithContext(ctx).Select("status", "amount").Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to load commissions: %v", err)
	}

	s := Summary{Total: decimal.Zero, Pending: decimal.Zero, Approved: decimal.Zero, Paid: decimal.Zero}
	for _, r := range rows {
		switch r.Status {
		case models.CommissionPending:
			s.Pending = s.Pending.Add(r.Amount)
		case models.CommissionApproved:
			s.Approved = s.Approved.Add(r.Amount)
		case models.CommissionPaid:
			s.Paid = s.Paid.Add(r.Amount)
		default:
			continue
		}
		s.Total = s.Total.Add(r.Amount)
	}

	shared.SetJSON(ctx, c.redis, c.log, cacheKey, s, shared.CACHE_TTL_SHORT)
	return &s, nil
}

// MatureCommissions approves pending commissions whose order was delivered at least holdDays ago.
func (c *CommissionHandler) MatureCommissions(ctx context.Context, holdDays int, now time.Time) (int64, error) {
	cutoff := now.Add(-time.Duration(holdDays) * 24 * time.Hour)

	var userIDs []int64
	var affected int64
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		delivered := func() *gorm.DB {
			return tx.Model(&models.Order{}).Select("id").
				Where("status = ? AND delivered_at IS NOT NULL AND delivered_at <= ?", models.OrderDelivered, cutoff)
		}

		if err := tx.Model(&models.Commission{}).
			Where("status = ? AND order_id IN (?)", models.CommissionPending, delivered()).
			Distinct().Pluck("user_id", &userIDs).Error; err != nil {
			return err
		}

		res := tx.Model(&models.Commission{}).
			Where("status = ? AND order_id IN (?)", models.CommissionPending, delivered()).
			Updates(map[string]interface{}{"status": models.CommissionApproved, "approved_at": now})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, status.Errorf(codes.Internal, "Failed to mature commissions: %v", err)
	}

	c.InvalidateCommissionCaches(ctx, userIDs...)
	return affected, nil
}

// RecordMetrics counts created commissions by level. Call it after commit.
func RecordMetrics(rows []models.Commission) {
	for _, r := range rows {
		monitoring.CommissionsCreatedTotal.WithLabelValues(strconv.Itoa(r.Level)).Inc()
	}
}

package handler

import (
	"context"
	"fmt"
	"strings"
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
	"github.com/cminh91/dong-y-sub001/internal/utils"
)

const (
	CLICK_DEDUPE_PREFIX = "affiliate:click:"
	CLICK_DEDUPE_TTL    = 24 * time.Hour

	ProductPathPrefix = "/san-pham/"
)

type AffiliateHandler struct {
	db          *gorm.DB
	redis       *redis.Client
	log         *zap.Logger
	commissions *commissions.CommissionHandler
}

func NewAffiliateHandler(db *gorm.DB, redisClient *redis.Client, log *zap.Logger, ch *commissions.CommissionHandler) *AffiliateHandler {
	return &AffiliateHandler{db: db, redis: redisClient, log: log.Named("affiliate"), commissions: ch}
}

type LinkInput struct {
	ProductID *int64
	Slug      *string
	Title     *string
	TargetURL *string
	IsActive  *bool
}

// validTarget accepts site-relative paths only, so tracked links cannot redirect off-site.
func validTarget(u string) bool {
	return u == "" || (strings.HasPrefix(u, "/") && !strings.HasPrefix(u, "//"))
}

func (s *AffiliateHandler) CreateLink(ctx context.Context, userID int64, in LinkInput) (*models.AffiliateLink, error) {
	link := models.AffiliateLink{UserID: userID, IsActive: true}
	if in.Slug != nil && strings.TrimSpace(*in.Slug) != "" {
		link.Slug = utils.Slugify(*in.Slug)
	} else {
		link.Slug = utils.AffiliateSlug()
	}
	if in.Title != nil {
		link.Title = strings.TrimSpace(*in.Title)
	}
	if in.TargetURL != nil {
		link.TargetURL = strings.TrimSpace(*in.TargetURL)
	}

	var v []shared.FieldViolation
	if link.Slug == "" {
		v = append(v, shared.FieldViolation{Field: "slug", Message: "Slug không hợp lệ"})
	}
	if !validTarget(link.TargetURL) {
		v = append(v, shared.FieldViolation{Field: "targetUrl", Message: "Đường dẫn phải là đường dẫn nội bộ, bắt đầu bằng /"})
	}
	if in.ProductID != nil {
		var p models.Product
		if err := s.db.WithContext(ctx).Select("id", "name", "status").First(&p, *in.ProductID).Error; err != nil || p.Status == models.ProductInactive {
			v = append(v, shared.FieldViolation{Field: "productId", Message: "Sản phẩm không tồn tại"})
		} else {
			link.ProductID = &p.ID
			if link.Title == "" {
				link.Title = p.Name
			}
		}
	}
	if len(v) > 0 {
		return nil, shared.FieldError(codes.InvalidArgument, "Dữ liệu liên kết không hợp lệ", v...)
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&models.AffiliateLink{}).Where("slug = ?", link.Slug).Count(&n).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to check affiliate slug: %v", err)
	}
	if n > 0 {
		return nil, status.Errorf(codes.AlreadyExists, "Slug \"%s\" đã được sử dụng", link.Slug)
	}

	if err := s.db.WithContext(ctx).Create(&link).Error; err != nil {
		if shared.IsDuplicateKey(err) {
			return nil, status.Errorf(codes.AlreadyExists, "Slug \"%s\" đã được sử dụng", link.Slug)
		}
		return nil, status.Errorf(codes.Internal, "Failed to create affiliate link: %v", err)
	}
	return &link, nil
}

func (s *AffiliateHandler) ownLink(ctx context.Context, userID, id int64) (*models.AffiliateLink, error) {
	var link models.AffiliateLink
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&link).Error; err != nil {
		return nil, shared.NotFoundOr(err, "liên kết")
	}
	return &link, nil
}

func (s *AffiliateHandler) UpdateLink(ctx context.Context, userID, id int64, in LinkInput) (*models.AffiliateLink, error) {
	link, err := s.ownLink(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Title != nil {
		link.Title = strings.TrimSpace(*in.Title)
		updates["title"] = link.Title
	}
	if in.TargetURL != nil {
		target := strings.TrimSpace(*in.TargetURL)
		if !validTarget(target) {
			return nil, shared.FieldError(codes.InvalidArgument, "Dữ liệu liên kết không hợp lệ",
				shared.FieldViolation{Field: "targetUrl", Message: "Đường dẫn phải là đường dẫn nội bộ, bắt đầu bằng /"})
		}
		link.TargetURL = target
		updates["target_url"] = target
	}
	if in.IsActive != nil {
		link.IsActive = *in.IsActive
		updates["is_active"] = link.IsActive
	}
	if len(updates) == 0 {
		return link, nil
	}

	if err := s.db.WithContext(ctx).Model(link).Updates(updates).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to update affiliate link: %v", err)
	}
	return link, nil
}

// DeleteLink removes an unused link. Links that produced orders are deactivated to keep attribution.
func (s *AffiliateHandler) DeleteLink(ctx context.Context, userID, id int64) (deleted bool, err error) {
	link, err := s.ownLink(ctx, userID, id)
	if err != nil {
		return false, err
	}

	var used int64
	if err := s.db.WithContext(ctx).Model(&models.Order{}).Where("affiliate_link_id = ?", id).Count(&used).Error; err != nil {
		return false, status.Errorf(codes.Internal, "Failed to check affiliate link usage: %v", err)
	}
	if used > 0 {
		if err := s.db.WithContext(ctx).Model(link).Update("is_active", false).Error; err != nil {
			return false, status.Errorf(codes.Internal, "Failed to deactivate affiliate link: %v", err)
		}
		return false, nil
	}

	if err := s.db.WithContext(ctx).Delete(link).Error; err != nil {
		return false, status.Errorf(codes.Internal, "Failed to delete affiliate link: %v", err)
	}
	return true, nil
}

type LinkFilter struct {
	UserID *int64
	Search string
	Page   shared.Page
}

func (s *AffiliateHandler) ListLinks(ctx context.Context, f LinkFilter) ([]models.AffiliateLink, shared.PageMeta, error) {
	page := f.Page.Normalize()
	query := s.db.WithContext(ctx).Model(&models.AffiliateLink{})
	if f.UserID != nil {
		query = query.Where("user_id = ?", *f.UserID)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		query = query.Where("slug LIKE ? OR LOWER(title) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, shared.PageMeta{}, status.Errorf(codes.Internal, "Failed to count affiliate links: %v", err)
	}

	var links []models.AffiliateLink
	err := query.Order("created_at desc").Order("id desc").
		Offset(page.Offset()).Limit(page.PageSize).
		Preload("Product", func(db *gorm.DB) *gorm.DB { return db.Select("id", "name", "slug") }).
		Preload("User", func(db *gorm.DB) *gorm.DB { return db.Select("id", "full_name", "email", "role") }).
		Find(&links).Error
	if err != nil {
		return nil, shared.PageMeta{}, status.Errorf(codes.Internal, "Failed to retrieve affiliate links: %v", err)
	}
	return links, page.Meta(total), nil
}

func (s *AffiliateHandler) SetLinkActive(ctx context.Context, id int64, active bool) (*models.AffiliateLink, error) {
	var link models.AffiliateLink
	if err := s.db.WithContext(ctx).First(&link, id).Error; err != nil {
		return nil, shared.NotFoundOr(err, "liên kết")
	}
	if err := s.db.WithContext(ctx).Model(&link).Update("is_active", active).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to update affiliate link: %v", err)
	}
	link.IsActive = active
	return &link, nil
}

type TrackResult struct {
	Slug       string
	Redirect   string
	CookieDays int
	Counted    bool
}

// TrackClick counts at most one click per (slug, client IP) per day and resolves the redirect.
// CookieDays is zero when the program is disabled.
func (s *AffiliateHandler) TrackClick(ctx context.Context, slug, clientIP string) (*TrackResult, error) {
	var link models.AffiliateLink
	if err := s.db.WithContext(ctx).Preload("Product", func(db *gorm.DB) *gorm.DB { return db.Select("id", "slug") }).
		Where("slug = ? AND is_active = ?", slug, true).First(&link).Error; err != nil {
		return nil, shared.NotFoundOr(err, "liên kết")
	}

	res := &TrackResult{Slug: link.Slug, Redirect: "/"}
	switch {
	case link.TargetURL != "":
		res.Redirect = link.TargetURL
	case link.Product != nil:
		res.Redirect = ProductPathPrefix + link.Product.Slug
	}

	settings, err := commissions.LoadSettings(s.db.WithContext(ctx))
	if err != nil {
		s.log.Warn("failed to load affiliate settings, using defaults", zap.Error(err))
	}
	if settings.Enabled {
		res.CookieDays = settings.CookieDays
	}

	key := fmt.Sprintf("%s%s:%s", CLICK_DEDUPE_PREFIX, link.Slug, clientIP)
	first, err := s.redis.SetNX(ctx, key, 1, CLICK_DEDUPE_TTL).Result()
	if err != nil {
		s.log.Warn("click dedupe unavailable, counting click", zap.String("slug", slug), zap.Error(err))
		first = true
	}
	if first {
		if err := s.db.WithContext(ctx).Model(&models.AffiliateLink{}).Where("id = ?", link.ID).
			Update("clicks", gorm.Expr("clicks + 1")).Error; err != nil {
			return nil, status.Errorf(codes.Internal, "Failed to record click: %v", err)
		}
		res.Counted = true
	}
	return res, nil
}

type Stats struct {
	Links          int64               `json:"links"`
	ActiveLinks    int64               `json:"activeLinks"`
	Clicks         int64               `json:"clicks"`
	Conversions    int64               `json:"conversions"`
	ConversionRate decimal.Decimal     `json:"conversionRate"`
	Commission     commissions.Summary `json:"commission"`
	ReferralCode   string              `json:"referralCode"`
	Referrals      int64               `json:"referrals"`
}

func (s *AffiliateHandler) GetStats(ctx context.Context, userID int64) (*Stats, error) {
	var agg struct {
		Links       int64
		ActiveLinks int64
		Clicks      int64
		Conversions int64
	}
	err := s.db.WithContext(ctx).Model(&models.AffiliateLink{}).
		Select("COUNT(*) AS links, COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0) AS active_links, COALESCE(SUM(clicks), 0) AS clicks, COALESCE(SUM(conversions), 0) AS conversions").
		Where("user_id = ?", userID).
		Scan(&agg).Error
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to aggregate affiliate links: %v", err)
	}

	summary, err := s.commissions.GetSummary(ctx, userID)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := s.db.WithContext(ctx).Select("id", "referral_code").First(&user, userID).Error; err != nil {
		return nil, shared.NotFoundOr(err, "người dùng")
	}
	var referrals int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("referred_by_id = ?", userID).Count(&referrals).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to count referrals: %v", err)
	}

	stats := &Stats{
		Links:          agg.Links,
		ActiveLinks:    agg.ActiveLinks,
		Clicks:         agg.Clicks,
		Conversions:    agg.Conversions,
		ConversionRate: decimal.Zero,
		Commission:     *summary,
		ReferralCode:   user.ReferralCode,
		Referrals:      referrals,
	}
	if agg.Clicks > 0 {
		stats.ConversionRate = decimal.NewFromInt(agg.Conversions).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(agg.Clicks)).Round(2)
	}
	return stats, nil
}

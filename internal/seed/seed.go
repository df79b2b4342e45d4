// Package seed installs default settings, the first administrator and a demo catalog.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
	"github.com/cminh91/dong-y-sub001/internal/policy"
	commissions "github.com/cminh91/dong-y-sub001/internal/services/commissions/handler"
	content "github.com/cminh91/dong-y-sub001/internal/services/content/handler"
	users "github.com/cminh91/dong-y-sub001/internal/services/user/handler"
)

type Admin struct {
	Email    string
	Password string
	FullName string
}

type defaultSetting struct {
	key         string
	value       interface{}
	description string
}

func defaults() []defaultSetting {
	return []defaultSetting{
		{commissions.AffiliateSettingsKey, commissions.DefaultAffiliateSettings(), "Cấu hình chương trình cộng tác viên"},
		{content.PaymentSettingsKey, content.PaymentSettings{CODEnabled: true}, "Thông tin thanh toán"},
		{content.SiteInfoKey, map[string]string{"name": "Đông Y", "hotline": "", "email": ""}, "Thông tin cửa hàng"},
		{content.HomepagePrefix + "hero", map[string]string{"title": "Đông y gia truyền", "subtitle": "", "image": ""}, "Banner trang chủ"},
	}
}

// Settings stores each default whose key is missing. Existing values are left alone.
func Settings(ctx context.Context, ch *content.ContentHandler, log *zap.Logger) (int, error) {
	created := 0
	for _, d := range defaults() {
		if _, err := ch.GetSetting(ctx, d.key); err == nil {
			continue
		} else if status.Code(err) != codes.NotFound {
			return created, err
		}

		raw, err := json.Marshal(d.value)
		if err != nil {
			return created, fmt.Errorf("encode %s: %w", d.key, err)
		}
		if _, err := ch.UpsertSetting(ctx, d.key, raw, d.description, nil); err != nil {
			return created, fmt.Errorf("seed %s: %w", d.key, err)
		}
		log.Info("seeded setting", zap.String("key", d.key))
		created++
	}
	return created, nil
}

// EnsureAdmin registers the account if needed and promotes it to ADMIN.
func EnsureAdmin(ctx context.Context, db *gorm.DB, uh *users.UserHandler, a Admin, log *zap.Logger) (*models.User, error) {
	var id int64
	res, err := uh.Register(ctx, users.RegisterInput{Email: a.Email, Password: a.Password, FullName: a.FullName})
	switch {
	case err == nil:
		id = res.User.ID
	case status.Code(err) == codes.AlreadyExists:
		var existing models.User
		if err := db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(a.Email))).First(&existing).Error; err != nil {
			return nil, err
		}
		id = existing.ID
	default:
		return nil, err
	}

	role := string(policy.Admin)
	active := true
	user, err := uh.UpdateUser(ctx, id, users.AdminUserInput{Role: &role, IsActive: &active})
	if err != nil {
		return nil, err
	}
	log.Info("admin ready", zap.Int64("user_id", user.ID), zap.String("email", user.Email))
	return user, nil
}

type demoProduct struct {
	name, slug, sku string
	price           int64
	stock           int
	featured        bool
}

var demoCatalog = map[string][]demoProduct{
	"thuoc-bo": {
		{"Cao ích mẫu", "cao-ich-mau", "DY-CIM-01", 150000, 50, true},
		{"Hoạt huyết dưỡng não", "hoat-huyet-duong-nao", "DY-HH-01", 120000, 80, false},
	},
	"tra-thao-moc": {
		{"Trà gừng mật ong", "tra-gung-mat-ong", "DY-TG-01", 50000, 200, true},
		{"Trà atiso", "tra-atiso", "DY-TA-01", 65000, 120, false},
	},
}

var demoCategoryNames = map[string]string{
	"thuoc-bo":     "Thuốc bổ",
	"tra-thao-moc": "Trà thảo mộc",
}

// Catalog inserts demo categories and products when the catalog is empty.
func Catalog(ctx context.Context, db *gorm.DB, log *zap.Logger) (int, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&models.Product{}).Count(&count).Error; err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	created := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order := 0
		for _, slug := range []string{"thuoc-bo", "tra-thao-moc"} {
			order++
			cat := models.Category{Name: demoCategoryNames[slug], Slug: slug, SortOrder: order, IsActive: true}
			if err := tx.Create(&cat).Error; err != nil {
				return fmt.Errorf("category %s: %w", slug, err)
			}
			for _, d := range demoCatalog[slug] {
				p := models.Product{
					Name:       d.name,
					Slug:       d.slug,
					SKU:        d.sku,
					Price:      decimal.NewFromInt(d.price),
					Stock:      d.stock,
					Status:     models.ProductActive,
					Images:     models.StringArray{},
					CategoryID: &cat.ID,
					IsFeatured: d.featured,
				}
				if err := tx.Create(&p).Error; err != nil {
					return fmt.Errorf("product %s: %w", d.slug, err)
				}
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Info("seeded demo catalog", zap.Int("products", created))
	return created, nil
}

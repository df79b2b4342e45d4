package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
)

func CreateProduct(t testing.TB, db *gorm.DB, name string, price int64, stock int) *models.Product {
	t.Helper()

	p := &models.Product{
		Name:   name,
		Slug:   "sp-" + uuid.NewString()[:8],
		SKU:    "SKU-" + uuid.NewString()[:6],
		Price:  decimal.NewFromInt(price),
		Stock:  stock,
		Status: models.ProductActive,
		Images: models.StringArray{"/img/" + name + ".jpg"},
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

func CreateUser(t testing.TB, db *gorm.DB, role string, referredBy *int64) *models.User {
	t.Helper()

	code := uuid.NewString()[:8]
	u := &models.User{
		Email:        code + "@example.vn",
		Password:     "x",
		FullName:     "Người dùng " + code,
		Phone:        "09" + code[:8],
		Role:         role,
		ReferralCode: code,
		ReferredByID: referredBy,
		IsActive:     true,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func CreateLink(t testing.TB, db *gorm.DB, owner int64, rate int64) *models.AffiliateLink {
	t.Helper()

	l := &models.AffiliateLink{
		UserID:         owner,
		Slug:           "aff-" + uuid.NewString()[:8],
		Title:          "Link",
		CommissionRate: decimal.NewFromInt(rate),
		IsActive:       true,
	}
	if err := db.Create(l).Error; err != nil {
		t.Fatalf("create link: %v", err)
	}
	return l
}

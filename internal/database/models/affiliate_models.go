package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CommissionPending   = "PENDING"
	CommissionApproved  = "APPROVED"
	CommissionPaid      = "PAID"
	CommissionCancelled = "CANCELLED"
)

type AffiliateLink struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64           `gorm:"not null;index" json:"userId"`
	User            *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	ProductID       *int64          `gorm:"index" json:"productId,omitempty"`
	Product         *Product        `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Slug            string          `gorm:"uniqueIndex;not null" json:"slug"`
	Title           string          `json:"title"`
	TargetURL       string          `json:"targetUrl,omitempty"`
	CommissionRate  decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"commissionRate"`
	Clicks          int64           `gorm:"not null" json:"clicks"`
	Conversions     int64           `gorm:"not null" json:"conversions"`
	TotalCommission decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"totalCommission"`
	IsActive        bool            `gorm:"not null" json:"isActive"`
	CreatedAt       *time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       *time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

type Commission struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID         int64           `gorm:"not null;uniqueIndex:idx_commission_order_user" json:"orderId"`
	Order           *Order          `gorm:"foreignKey:OrderID" json:"order,omitempty"`
	UserID          int64           `gorm:"not null;uniqueIndex:idx_commission_order_user;index" json:"userId"`
	User            *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	AffiliateLinkID *int64          `gorm:"index" json:"affiliateLinkId,omitempty"`
	Level           int             `gorm:"not null" json:"level"`
	BaseAmount      decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"baseAmount"`
	Rate            decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"rate"`
	Amount          decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	Status          string          `gorm:"not null;index" json:"status"`
	ApprovedAt      *time.Time      `json:"approvedAt,omitempty"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
	CreatedAt       *time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       *time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

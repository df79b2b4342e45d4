package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin        = "ADMIN"
	RoleStaff        = "STAFF"
	RoleCustomer     = "CUSTOMER"
	RoleAgent        = "AGENT"
	RoleCollaborator = "COLLABORATOR"
)

type User struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Email            string          `gorm:"uniqueIndex;not null" json:"email"`
	Password         string          `gorm:"not null" json:"-"`
	FullName         string          `gorm:"not null" json:"fullName"`
	Phone            string          `gorm:"index" json:"phone"`
	Role             string          `gorm:"not null;index" json:"role"`
	Permissions      StringArray     `gorm:"type:text" json:"permissions"`
	CommissionRate   decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"commissionRate"`
	ReferralCode     string          `gorm:"uniqueIndex;not null" json:"referralCode"`
	ReferredByID     *int64          `gorm:"index" json:"referredById,omitempty"`
	ReferredBy       *User           `gorm:"foreignKey:ReferredByID" json:"-"`
	TotalCommission  decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"totalCommission"`
	AvailableBalance decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"availableBalance"`
	IsActive         bool            `gorm:"not null" json:"isActive"`
	LastLogin        *time.Time      `json:"lastLogin,omitempty"`
	CreatedAt        *time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt        *time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// EarnsDownline reports whether the role may earn commissions beyond level 1.
func (u User) EarnsDownline() bool {
	switch u.Role {
	case RoleAgent, RoleCollaborator, RoleAdmin, RoleStaff:
		return true
	}
	return false
}

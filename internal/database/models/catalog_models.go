package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ProductActive     = "ACTIVE"
	ProductInactive   = "INACTIVE"
	ProductOutOfStock = "OUT_OF_STOCK"
)

type Category struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string     `gorm:"not null" json:"name"`
	Slug        string     `gorm:"uniqueIndex;not null" json:"slug"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	ParentID    *int64     `gorm:"index" json:"parentId,omitempty"`
	Children    []Category `gorm:"foreignKey:ParentID" json:"children,omitempty"`
	SortOrder   int        `gorm:"not null" json:"sortOrder"`
	IsActive    bool       `gorm:"not null" json:"isActive"`
	CreatedAt   *time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   *time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

type Product struct {
	ID          int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string           `gorm:"not null" json:"name"`
	Slug        string           `gorm:"uniqueIndex;not null" json:"slug"`
	SKU         string           `gorm:"index" json:"sku"`
	Description string           `gorm:"type:text" json:"description"`
	Price       decimal.Decimal  `gorm:"type:decimal(15,2);not null" json:"price"`
	SalePrice   *decimal.Decimal `gorm:"type:decimal(15,2)" json:"salePrice,omitempty"`
	Stock       int              `gorm:"not null" json:"stock"`
	Status      string           `gorm:"not null;index" json:"status"`
	Images      StringArray      `gorm:"type:text" json:"images"`
	CategoryID  *int64           `gorm:"index" json:"categoryId,omitempty"`
	Category    *Category        `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	IsFeatured  bool             `gorm:"not null" json:"isFeatured"`
	CreatedAt   *time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   *time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

type CartItem struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64      `gorm:"not null;uniqueIndex:idx_cart_user_product" json:"userId"`
	ProductID int64      `gorm:"not null;uniqueIndex:idx_cart_user_product" json:"productId"`
	Product   Product    `gorm:"foreignKey:ProductID" json:"product"`
	Quantity  int        `gorm:"not null" json:"quantity"`
	CreatedAt *time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt *time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

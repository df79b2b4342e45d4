package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderPending    = "PENDING"
	OrderConfirmed  = "CONFIRMED"
	OrderProcessing = "PROCESSING"
	OrderShipping   = "SHIPPING"
	OrderDelivered  = "DELIVERED"
	OrderCancelled  = "CANCELLED"
)

const (
	PaymentPending  = "PENDING"
	PaymentPaid     = "PAID"
	PaymentFailed   = "FAILED"
	PaymentRefunded = "REFUNDED"
)

const (
	PaymentMethodCOD          = "COD"
	PaymentMethodBankTransfer = "BANK_TRANSFER"
	PaymentMethodMomo         = "MOMO"
	PaymentMethodVNPay        = "VNPAY"
)

var orderTransitions = map[string][]string{
	OrderPending:    {OrderConfirmed, OrderCancelled},
	OrderConfirmed:  {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderShipping, OrderCancelled},
	OrderShipping:   {OrderDelivered},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func IsOrderStatus(s string) bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderProcessing, OrderShipping, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

func IsPaymentStatus(s string) bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type Order struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber     string          `gorm:"uniqueIndex;not null" json:"orderNumber"`
	UserID          *int64          `gorm:"index" json:"userId,omitempty"`
	CustomerName    string          `gorm:"not null" json:"customerName"`
	CustomerEmail   string          `json:"customerEmail,omitempty"`
	CustomerPhone   string          `gorm:"not null;index" json:"customerPhone"`
	ShippingAddress ShippingAddress `gorm:"type:text" json:"shippingAddress"`
	PaymentMethod   string          `gorm:"not null" json:"paymentMethod"`
	Status          string          `gorm:"not null;index" json:"status"`
	PaymentStatus   string          `gorm:"not null;index" json:"paymentStatus"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"totalAmount"`
	ShippingFee     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"shippingFee"`
	DiscountAmount  decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"discountAmount"`
	FinalAmount     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"finalAmount"`
	Notes           string          `gorm:"type:text" json:"notes,omitempty"`
	AffiliateLinkID *int64          `gorm:"index" json:"affiliateLinkId,omitempty"`
	CancelledReason string          `json:"cancelledReason,omitempty"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
	DeliveredAt     *time.Time      `json:"deliveredAt,omitempty"`
	CreatedAt       *time.Time      `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt       *time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

type OrderItem struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID      int64           `gorm:"not null;index" json:"orderId"`
	ProductID    int64           `gorm:"not null;index" json:"productId"`
	ProductName  string          `gorm:"not null" json:"productName"`
	ProductImage string          `json:"productImage,omitempty"`
	ProductSKU   string          `json:"productSku,omitempty"`
	Quantity     int             `gorm:"not null" json:"quantity"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"unitPrice"`
	LineTotal    decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"lineTotal"`
	CreatedAt    *time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

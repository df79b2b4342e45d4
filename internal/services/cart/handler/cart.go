package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
	"github.com/cminh91/dong-y-sub001/internal/pricing"
	"github.com/cminh91/dong-y-sub001/internal/services/shared"
)

type CartHandler struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewCartHandler(db *gorm.DB, log *zap.Logger) *CartHandler {
	return &CartHandler{db: db, log: log.Named("cart")}
}

type CartLine struct {
	ProductID int64           `json:"productId"`
	Product   models.Product  `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
	Available bool            `json:"available"`
}

type Cart struct {
	Items      []CartLine      `json:"items"`
	TotalItems int             `json:"totalItems"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// GetCart prices the cart at current catalog prices. Unavailable lines are excluded from the subtotal.
func (s *CartHandler) GetCart(ctx context.Context, userID int64) (*Cart, error) {
	var rows []models.CartItem
	if err := s.db.WithContext(ctx).Preload("Product").Where("user_id = ?", userID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to load cart: %v", err)
	}

	cart := &Cart{Items: make([]CartLine, 0, len(rows)), Subtotal: decimal.Zero}
	var priced []pricing.Line
	for _, r := range rows {
		unit := pricing.EffectivePrice(r.Product.Price, r.Product.SalePrice)
		line := CartLine{
			ProductID: r.ProductID,
			Product:   r.Product,
			Quantity:  r.Quantity,
			UnitPrice: unit,
			LineTotal: pricing.LineTotal(unit, r.Quantity),
			Available: r.Product.Status == models.ProductActive && r.Product.Stock >= r.Quantity,
		}
		if line.Available {
			priced = append(priced, pricing.Line{UnitPrice: unit, Quantity: r.Quantity})
			cart.TotalItems += r.Quantity
		}
		cart.Items = append(cart.Items, line)
	}
	cart.Subtotal = pricing.Subtotal(priced)
	return cart, nil
}

func (s *CartHandler) loadProduct(ctx context.Context, productID int64) (*models.Product, error) {
	var p models.Product
	if err := s.db.WithContext(ctx).First(&p, productID).Error; err != nil {
		return nil, shared.NotFoundOr(err, "sản phẩm")
	}
	if p.Status != models.ProductActive {
		return nil, status.Errorf(codes.FailedPrecondition, "Sản phẩm \"%s\" hiện không được bán", p.Name)
	}
	return &p, nil
}

// AddItem adds quantity to the existing line, capped at the available stock.
func (s *CartHandler) AddItem(ctx context.Context, userID, productID int64, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, shared.FieldError(codes.InvalidArgument, "Số lượng không hợp lệ",
			shared.FieldViolation{Field: "quantity", Message: "Số lượng phải lớn hơn 0"})
	}
	p, err := s.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.Stock < 1 {
		return nil, status.Errorf(codes.FailedPrecondition, "Sản phẩm \"%s\" đã hết hàng", p.Name)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.CartItem
		err := tx.Where("user_id = ? AND product_id = ?", userID, productID).First(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			item = models.CartItem{UserID: userID, ProductID: productID}
		} else if err != nil {
			return err
		}

		item.Quantity += quantity
		if item.Quantity > p.Stock {
			item.Quantity = p.Stock
		}
		return tx.Omit("Product").Save(&item).Error
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to update cart: %v", err)
	}
	return s.GetCart(ctx, userID)
}

// SetQuantity replaces the line quantity. Zero removes the line.
func (s *CartHandler) SetQuantity(ctx context.Context, userID, productID int64, quantity int) (*Cart, error) {
	if quantity < 0 {
		return nil, shared.FieldError(codes.InvalidArgument, "Số lượng không hợp lệ",
			shared.FieldViolation{Field: "quantity", Message: "Số lượng không được âm"})
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, userID, productID)
	}

	p, err := s.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if quantity > p.Stock {
		return nil, shared.FieldError(codes.FailedPrecondition, "Không đủ hàng",
			shared.FieldViolation{Field: "quantity", Message: fmt.Sprintf("Chỉ còn %d sản phẩm", p.Stock)})
	}

	res := s.db.WithContext(ctx).Model(&models.CartItem{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Update("quantity", quantity)
	if res.Error != nil {
		return nil, status.Errorf(codes.Internal, "Failed to update cart: %v", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, status.Errorf(codes.NotFound, "Sản phẩm không có trong giỏ hàng")
	}
	return s.GetCart(ctx, userID)
}

func (s *CartHandler) RemoveItem(ctx context.Context, userID, productID int64) (*Cart, error) {
	if err := s.db.WithContext(ctx).Where("user_id = ? AND product_id = ?", userID, productID).Delete(&models.CartItem{}).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to update cart: %v", err)
	}
	return s.GetCart(ctx, userID)
}

func (s *CartHandler) Clear(ctx context.Context, userID int64) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
		return status.Errorf(codes.Internal, "Failed to clear cart: %v", err)
	}
	return nil
}

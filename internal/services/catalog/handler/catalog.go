package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
	"github.com/cminh91/dong-y-sub001/internal/services/shared"
	"github.com/cminh91/dong-y-sub001/internal/utils"
)

const CATEGORY_TREE_CACHE_KEY = "category:tree"

const effectivePriceSQL = "CASE WHEN sale_price IS NOT NULL AND sale_price > 0 THEN sale_price ELSE price END"

type CatalogHandler struct {
	db    *gorm.DB
	redis *redis.Client
	log   *zap.Logger
}

func NewCatalogHandler(db *gorm.DB, redisClient *redis.Client, log *zap.Logger) *CatalogHandler {
	return &CatalogHandler{db: db, redis: redisClient, log: log.Named("catalog")}
}

func (s *CatalogHandler) InvalidateCatalogCaches(ctx context.Context, slugs ...string) {
	shared.InvalidateProductCaches(ctx, s.redis, slugs...)
	_ = s.redis.Del(ctx, CATEGORY_TREE_CACHE_KEY).Err()
}

type ProductQuery struct {
	CategorySlug    string
	Search          string
	Featured        *bool
	MinPrice        *decimal.Decimal
	MaxPrice        *decimal.Decimal
	Sort            string
	IncludeInactive bool
	Page            shared.Page
}

func (q ProductQuery) cacheKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "c=%s|q=%s|s=%s|p=%d|n=%d", q.CategorySlug, strings.ToLower(strings.TrimSpace(q.Search)), q.Sort, q.Page.Page, q.Page.PageSize)
	if q.Featured != nil {
		fmt.Fprintf(&b, "|f=%t", *q.Featured)
	}
	if q.MinPrice != nil {
		fmt.Fprintf(&b, "|min=%s", q.MinPrice.String())
	}
	if q.MaxPrice != nil {
		fmt.Fprintf(&b, "|max=%s", q.MaxPrice.String())
	}
	return b.String()
}

type ProductPage struct {
	Products []models.Product `json:"products"`
	Meta     shared.PageMeta  `json:"meta"`
}

// ListProducts serves the storefront listing. Public queries are cached for five minutes.
func (s *CatalogHandler) ListProducts(ctx context.Context, q ProductQuery) (*ProductPage, error) {
	q.Page = q.Page.Normalize()

	var cacheKey string
	if !q.IncludeInactive {
		cacheKey = shared.ProductListKey(ctx, s.redis, q.cacheKey())
		var cached ProductPage
		if shared.GetJSON(ctx, s.redis, s.log, cacheKey, &cached) {
			return &cached, nil
		}
	}

	query := s.db.WithContext(ctx).Model(&models.Product{})
	if !q.IncludeInactive {
		query = query.Where("status <> ?", models.ProductInactive)
	}
	if q.CategorySlug != "" {
		ids, err := s.categoryWithDescendants(ctx, q.CategorySlug)
		if err != nil {
			return nil, err
		}
		query = query.Where("category_id IN ?", ids)
	}
	if term := strings.TrimSpace(q.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ? OR slug LIKE ?", like, like, "%"+utils.Slugify(term)+"%")
	}
	if q.Featured != nil {
		query = query.Where("is_featured = ?", *q.Featured)
	}
	if q.MinPrice != nil {
		query = query.Where(effectivePriceSQL+" >= CAST(? AS DECIMAL)", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		query = query.Where(effectivePriceSQL+" <= CAST(? AS DECIMAL)", *q.MaxPrice)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to count products: %v", err)
	}

	switch q.Sort {
	case "price_asc":
		query = query.Order(effectivePriceSQL + " asc")
	case "price_desc":
		query = query.Order(effectivePriceSQL + " desc")
	case "name":
		query = query.Order("name asc")
	default:
		query = query.Order("created_at desc")
	}

	var products []models.Product
	if err := query.Order("id desc").Offset(q.Page.Offset()).Limit(q.Page.PageSize).Preload("Category").Find(&products).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to retrieve products: %v", err)
	}

	page := &ProductPage{Products: products, Meta: q.Page.Meta(total)}
	if cacheKey != "" {
		shared.SetJSON(ctx, s.redis, s.log, cacheKey, page, shared.CACHE_TTL_SHORT)
	}
	return page, nil
}

func (s *CatalogHandler) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	cacheKey := shared.PRODUCT_CACHE_PREFIX + slug

	var cached models.Product
	if shared.GetJSON(ctx, s.redis, s.log, cacheKey, &cached) {
		return &cached, nil
	}

	var product models.Product
	if err := s.db.WithContext(ctx).Preload("Category").
		Where("slug = ? AND status <> ?", slug, models.ProductInactive).
		First(&product).Error; err != nil {
		return nil, shared.NotFoundOr(err, "sản phẩm")
	}

	shared.SetJSON(ctx, s.redis, s.log, cacheKey, product, shared.CACHE_TTL_SHORT)
	return &product, nil
}

func (s *CatalogHandler) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).Preload("Category").First(&product, id).Error; err != nil {
		return nil, shared.NotFoundOr(err, "sản phẩm")
	}
	return &product, nil
}

type ProductInput struct {
	Name        *string
	Slug        *string
	SKU         *string
	Description *string
	Price       *decimal.Decimal
	SalePrice   *decimal.Decimal
	ClearSale   bool
	Stock       *int
	Status      *string
	Images      []string
	CategoryID  *int64
	IsFeatured  *bool
}

func validProductStatus(st string) bool {
	switch st {
	case models.ProductActive, models.ProductInactive, models.ProductOutOfStock:
		return true
	}
	return false
}

func (s *CatalogHandler) applyProductInput(p *models.Product, in ProductInput) []shared.FieldViolation {
	var v []shared.FieldViolation
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Slug != nil {
		p.Slug = utils.Slugify(*in.Slug)
	}
	if p.Slug == "" {
		p.Slug = utils.Slugify(p.Name)
	}
	if in.SKU != nil {
		p.SKU = *in.SKU
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.ClearSale {
		p.SalePrice = nil
	} else if in.SalePrice != nil {
		sp := *in.SalePrice
		p.SalePrice = &sp
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	if in.Status != nil {
		p.Status = *in.Status
	}
	if in.Images != nil {
		p.Images = models.StringArray(in.Images)
	}
	if in.CategoryID != nil {
		if *in.CategoryID == 0 {
			p.CategoryID = nil
		} else {
			id := *in.CategoryID
			p.CategoryID = &id
		}
	}
	if in.IsFeatured != nil {
		p.IsFeatured = *in.IsFeatured
	}

	if p.Name == "" {
		v = append(v, shared.FieldViolation{Field: "name", Message: "Vui lòng nhập tên sản phẩm"})
	}
	if p.Slug == "" {
		v = append(v, shared.FieldViolation{Field: "slug", Message: "Slug không hợp lệ"})
	}
	if !p.Price.IsPositive() {
		v = append(v, shared.FieldViolation{Field: "price", Message: "Giá phải lớn hơn 0"})
	}
	if p.SalePrice != nil && (p.SalePrice.IsNegative() || p.SalePrice.GreaterThan(p.Price)) {
		v = append(v, shared.FieldViolation{Field: "salePrice", Message: "Giá khuyến mãi không hợp lệ"})
	}
	if p.Stock < 0 {
		v = append(v, shared.FieldViolation{Field: "stock", Message: "Tồn kho không được âm"})
	}
	if !validProductStatus(p.Status) {
		v = append(v, shared.FieldViolation{Field: "status", Message: "Trạng thái không hợp lệ"})
	}
	return v
}

func (s *CatalogHandler) checkProductRefs(ctx context.Context, p *models.Product) ([]shared.FieldViolation, error) {
	var v []shared.FieldViolation
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Product{}).Where("slug = ? AND id <> ?", p.Slug, p.ID).Count(&n).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to check product slug: %v", err)
	}
	if n > 0 {
		v = append(v, shared.FieldViolation{Field: "slug", Message: "Slug đã tồn tại"})
	}
	if p.CategoryID != nil {
		var c int64
		if err := s.db.WithContext(ctx).Model(&models.Category{}).Where("id = ?", *p.CategoryID).Count(&c).Error; err != nil {
			return nil, status.Errorf(codes.Internal, "Failed to check category: %v", err)
		}
		if c == 0 {
			v = append(v, shared.FieldViolation{Field: "categoryId", Message: "Danh mục không tồn tại"})
		}
	}
	return v, nil
}

func (s *CatalogHandler) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	p := models.Product{Status: models.ProductActive, Images: models.StringArray{}}
	v := s.applyProductInput(&p, in)
	refs, err := s.checkProductRefs(ctx, &p)
	if err != nil {
		return nil, err
	}
	v = append(v, refs...)
	if len(v) > 0 {
		return nil, shared.FieldError(codes.InvalidArgument, "Dữ liệu sản phẩm không hợp lệ", v...)
	}

	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		if shared.IsDuplicateKey(err) {
			return nil, shared.FieldError(codes.AlreadyExists, "Slug đã tồn tại",
				shared.FieldViolation{Field: "slug", Message: "Slug đã tồn tại"})
		}
		return nil, status.Errorf(codes.Internal, "Failed to create product: %v", err)
	}
	s.InvalidateCatalogCaches(ctx, p.Slug)
	return &p, nil
}

func (s *CatalogHandler) UpdateProduct(ctx context.Context, id int64, in ProductInput) (*models.Product, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	oldSlug := p.Slug
	p.Category = nil

	v := s.applyProductInput(p, in)
	refs, err := s.checkProductRefs(ctx, p)
	if err != nil {
		return nil, err
	}
	v = append(v, refs...)
	if len(v) > 0 {
		return nil, shared.FieldError(codes.InvalidArgument, "Dữ liệu sản phẩm không hợp lệ", v...)
	}

	if changes := productChanges(p, oldSlug, in); len(changes) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Updates(changes).Error; err != nil {
			if shared.IsDuplicateKey(err) {
				return nil, shared.FieldError(codes.AlreadyExists, "Slug đã tồn tại",
					shared.FieldViolation{Field: "slug", Message: "Slug đã tồn tại"})
			}
			return nil, status.Errorf(codes.Internal, "Failed to update product: %v", err)
		}
	}
	s.InvalidateCatalogCaches(ctx, oldSlug, p.Slug)
	return s.GetProduct(ctx, id)
}

// productChanges lists the columns named by in, with the values already
// validated on p. Stock is written only when in sets it, so concurrent
// checkout decrements survive an admin edit.
func productChanges(p *models.Product, oldSlug string, in ProductInput) map[string]interface{} {
	changes := map[string]interface{}{}
	if in.Name != nil {
		changes["name"] = p.Name
	}
	if p.Slug != oldSlug {
		changes["slug"] = p.Slug
	}
	if in.SKU != nil {
		changes["sku"] = p.SKU
	}
	if in.Description != nil {
		changes["description"] = p.Description
	}
	if in.Price != nil {
		changes["price"] = p.Price
	}
	if in.ClearSale || in.SalePrice != nil {
		var sale interface{}
		if p.SalePrice != nil {
			sale = *p.SalePrice
		}
		changes["sale_price"] = sale
	}
	if in.Stock != nil {
		changes["stock"] = p.Stock
	}
	if in.Status != nil {
		changes["status"] = p.Status
	}
	if in.Images != nil {
		changes["images"] = p.Images
	}
	if in.CategoryID != nil {
		var category interface{}
		if p.CategoryID != nil {
			category = *p.CategoryID
		}
		changes["category_id"] = category
	}
	if in.IsFeatured != nil {
		changes["is_featured"] = p.IsFeatured
	}
	return changes
}

// DeleteProduct removes a product. Products referenced by orders are deactivated instead.
func (s *CatalogHandler) DeleteProduct(ctx context.Context, id int64) (deleted bool, err error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return false, err
	}

	var refs int64
	if err := s.db.WithContext(ctx).Model(&models.OrderItem{}).Where("product_id = ?", id).Count(&refs).Error; err != nil {
		return false, status.Errorf(codes.Internal, "Failed to check product usage: %v", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", id).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		if refs > 0 {
			return tx.Model(&models.Product{}).Where("id = ?", id).Update("status", models.ProductInactive).Error
		}
		return tx.Delete(&models.Product{}, id).Error
	})
	if err != nil {
		return false, status.Errorf(codes.Internal, "Failed to delete product: %v", err)
	}

	s.InvalidateCatalogCaches(ctx, p.Slug)
	return refs == 0, nil
}

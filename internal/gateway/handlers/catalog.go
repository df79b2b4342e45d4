package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	catalog "github.com/cminh91/dong-y-sub001/internal/services/catalog/handler"
)

type CatalogHTTPHandler struct {
	catalog *catalog.CatalogHandler
	log     *zap.Logger
}

func NewCatalogHTTPHandler(ch *catalog.CatalogHandler, log *zap.Logger) *CatalogHTTPHandler {
	return &CatalogHTTPHandler{catalog: ch, log: log.Named("http.catalog")}
}

type ListProductsQuery struct {
	PageQuery
	Category string           `form:"category"`
	Search   string           `form:"search"`
	Featured *bool            `form:"featured"`
	MinPrice *decimal.Decimal `form:"minPrice"`
	MaxPrice *decimal.Decimal `form:"maxPrice"`
	Sort     string           `form:"sort" binding:"omitempty,oneof=newest price_asc price_desc name"`
}

type ProductRequest struct {
	Name        *string          `json:"name" binding:"omitempty,min=2,max=255"`
	Slug        *string          `json:"slug" binding:"omitempty,max=255"`
	SKU         *string          `json:"sku" binding:"omitempty,max=64"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	SalePrice   *decimal.Decimal `json:"salePrice"`
	ClearSale   bool             `json:"clearSale"`
	Stock       *int             `json:"stock" binding:"omitempty,min=0"`
	Status      *string          `json:"status" binding:"omitempty,oneof=ACTIVE INACTIVE OUT_OF_STOCK"`
	Images      []string         `json:"images" binding:"omitempty,max=20"`
	CategoryID  *int64           `json:"categoryId" binding:"omitempty,min=0"`
	IsFeatured  *bool            `json:"isFeatured"`
}

func (r ProductRequest) toInput() catalog.ProductInput {
	return catalog.ProductInput{
		Name:        r.Name,
		Slug:        r.Slug,
		SKU:         r.SKU,
		Description: r.Description,
		Price:       r.Price,
		SalePrice:   r.SalePrice,
		ClearSale:   r.ClearSale,
		Stock:       r.Stock,
		Status:      r.Status,
		Images:      r.Images,
		CategoryID:  r.CategoryID,
		IsFeatured:  r.IsFeatured,
	}
}

type CategoryRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=2,max=255"`
	Slug        *string `json:"slug" binding:"omitempty,max=255"`
	Description *string `json:"description"`
	ParentID    *int64  `json:"parentId" binding:"omitempty,min=0"`
	SortOrder   *int    `json:"sortOrder"`
	IsActive    *bool   `json:"isActive"`
}

func (r CategoryRequest) toInput() catalog.CategoryInput {
	return catalog.CategoryInput{
		Name:        r.Name,
		Slug:        r.Slug,
		Description: r.Description,
		ParentID:    r.ParentID,
		SortOrder:   r.SortOrder,
		IsActive:    r.IsActive,
	}
}

func (h *CatalogHTTPHandler) listProducts(c *gin.Context, includeInactive bool) {
	var q ListProductsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	page, err := h.catalog.ListProducts(ctx, catalog.ProductQuery{
		CategorySlug:    strings.TrimSpace(q.Category),
		Search:          q.Search,
		Featured:        q.Featured,
		MinPrice:        q.MinPrice,
		MaxPrice:        q.MaxPrice,
		Sort:            q.Sort,
		IncludeInactive: includeInactive,
		Page:            q.toPage(),
	})
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Lấy danh sách sản phẩm thành công", page.Products, page.Meta))
}

func (h *CatalogHTTPHandler) ListProducts(c *gin.Context) { h.listProducts(c, false) }

func (h *CatalogHTTPHandler) AdminListProducts(c *gin.Context) { h.listProducts(c, true) }

func (h *CatalogHTTPHandler) GetProduct(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	product, err := h.catalog.GetProductBySlug(ctx, c.Param("slug"))
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Lấy sản phẩm thành công", product))
}

func (h *CatalogHTTPHandler) Categories(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	tree, err := h.catalog.GetCategoryTree(ctx, false)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Lấy danh mục thành công", tree))
}

// --- Admin ---

func (h *CatalogHTTPHandler) AdminGetProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	product, err := h.catalog.GetProduct(ctx, id)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Lấy sản phẩm thành công", product))
}

func (h *CatalogHTTPHandler) CreateProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	product, err := h.catalog.CreateProduct(ctx, req.toInput())
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Tạo sản phẩm thành công", product))
}

func (h *CatalogHTTPHandler) UpdateProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	product, err := h.catalog.UpdateProduct(ctx, id, req.toInput())
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Cập nhật sản phẩm thành công", product))
}

func (h *CatalogHTTPHandler) DeleteProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	deleted, err := h.catalog.DeleteProduct(ctx, id)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	msg := "Đã xoá sản phẩm"
	if !deleted {
		msg = "Sản phẩm đã có đơn hàng nên được chuyển sang ngừng bán"
	}
	c.JSON(http.StatusOK, successResponse(msg, gin.H{"deleted": deleted}))
}

func (h *CatalogHTTPHandler) AdminCategories(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	tree, err := h.catalog.GetCategoryTree(ctx, true)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Lấy danh mục thành công", tree))
}

func (h *CatalogHTTPHandler) CreateCategory(c *gin.Context) {
	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	category, err := h.catalog.CreateCategory(ctx, req.toInput())
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Tạo danh mục thành công", category))
}

func (h *CatalogHTTPHandler) UpdateCategory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	category, err := h.catalog.UpdateCategory(ctx, id, req.toInput())
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Cập nhật danh mục thành công", category))
}

func (h *CatalogHTTPHandler) DeleteCategory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.catalog.DeleteCategory(ctx, id); err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Đã xoá danh mục", nil))
}

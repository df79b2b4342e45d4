package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cminh91/dong-y-sub001/internal/gateway/middleware"
	cart "github.com/cminh91/dong-y-sub001/internal/services/cart/handler"
)

type CartHTTPHandler struct {
	cart *cart.CartHandler
	log  *zap.Logger
}

func NewCartHTTPHandler(ch *cart.CartHandler, log *zap.Logger) *CartHTTPHandler {
	return &CartHTTPHandler{cart: ch, log: log.Named("http.cart")}
}

type AddCartItemRequest struct {
	ProductID int64 `json:"productId" binding:"required,gt=0"`
	Quantity  int   `json:"quantity" binding:"required,min=1,max=999"`
}

type SetCartQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required,min=0,max=999"`
}

func productIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse("Mã sản phẩm không hợp lệ"))
		return 0, false
	}
	return id, true
}

func (h *CartHTTPHandler) Get(c *gin.Context) {
	subject, _ := middleware.CurrentSubject(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	out, err := h.cart.GetCart(ctx, subject.UserID)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Lấy giỏ hàng thành công", out))
}

func (h *CartHTTPHandler) Add(c *gin.Context) {
	subject, _ := middleware.CurrentSubject(c)

	var req AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	out, err := h.cart.AddItem(ctx, subject.UserID, req.ProductID, req.Quantity)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Đã thêm vào giỏ hàng", out))
}

func (h *CartHTTPHandler) SetQuantity(c *gin.Context) {
	subject, _ := middleware.CurrentSubject(c)
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	var req SetCartQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	out, err := h.cart.SetQuantity(ctx, subject.UserID, productID, *req.Quantity)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Đã cập nhật giỏ hàng", out))
}

func (h *CartHTTPHandler) Remove(c *gin.Context) {
	subject, _ := middleware.CurrentSubject(c)
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	out, err := h.cart.RemoveItem(ctx, subject.UserID, productID)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Đã xoá sản phẩm khỏi giỏ hàng", out))
}

func (h *CartHTTPHandler) Clear(c *gin.Context) {
	subject, _ := middleware.CurrentSubject(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.cart.Clear(ctx, subject.UserID); err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Đã xoá giỏ hàng", nil))
}

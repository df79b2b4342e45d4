package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
	"github.com/cminh91/dong-y-sub001/internal/gateway/middleware"
	"github.com/cminh91/dong-y-sub001/internal/policy"
	orders "github.com/cminh91/dong-y-sub001/internal/services/orders/handler"
)

type OrderHTTPHandler struct {
	orders *orders.OrderHandler
	log    *zap.Logger
}

func NewOrderHTTPHandler(o *orders.OrderHandler, log *zap.Logger) *OrderHTTPHandler {
	return &OrderHTTPHandler{orders: o, log: log.Named("http.orders")}
}

type OrderItemRequest struct {
	ProductID int64            `json:"productId" binding:"required,gt=0"`
	Quantity  int              `json:"quantity" binding:"required,min=1"`
	Price     *decimal.Decimal `json:"price" binding:"required"`
}

type ShippingAddressRequest struct {
	FullName string `json:"fullName" binding:"required,max=100"`
	Phone    string `json:"phone" binding:"required,vnphone"`
	Address  string `json:"address" binding:"required,max=255"`
	Ward     string `json:"ward" binding:"max=100"`
	District string `json:"district" binding:"max=100"`
	Province string `json:"province" binding:"required,max=100"`
}

type CreateOrderRequest struct {
	Items           []OrderItemRequest     `json:"items" binding:"required,min=1,max=50,dive"`
	CustomerName    string                 `json:"customerName" binding:"required,max=100"`
	CustomerPhone   string                 `json:"customerPhone" binding:"required,vnphone"`
	CustomerEmail   string                 `json:"customerEmail" binding:"omitempty,email"`
	ShippingAddress ShippingAddressRequest `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod" binding:"required,oneof=COD BANK_TRANSFER MOMO VNPAY"`
	ShippingFee     decimal.Decimal        `json:"shippingFee"`
	DiscountAmount  decimal.Decimal        `json:"discountAmount"`
	TotalAmount     *decimal.Decimal       `json:"totalAmount" binding:"required"`
	Notes           string                 `json:"notes" binding:"max=1000"`
	AffiliateSlug   string                 `json:"affiliateSlug" binding:"max=64"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=PENDING CONFIRMED PROCESSING SHIPPING DELIVERED CANCELLED"`
	Reason string `json:"reason" binding:"max=500"`
}

type UpdatePaymentStatusRequest struct {
	PaymentStatus string `json:"paymentStatus" binding:"required,oneof=PENDING PAID FAILED REFUNDED"`
}

type UpdateOrderRequest struct {
	ShippingFee    *decimal.Decimal `json:"shippingFee"`
	DiscountAmount *decimal.Decimal `json:"discountAmount"`
	Notes          *string          `json:"notes" binding:"omitempty,max=1000"`
}

type ListOrdersQuery struct {
	PageQuery
	Status        string `form:"status"`
	PaymentStatus string `form:"paymentStatus"`
	Search        string `form:"search"`
	From          string `form:"from"`
	To            string `form:"to"`
}

func normalizePhone(p string) string {
	p = strings.ReplaceAll(p, " ", "")
	if strings.HasPrefix(p, "+84") {
		p = "0" + strings.TrimPrefix(p, "+84")
	}
	return p
}

// Create is the checkout endpoint. Guests may order; a valid token attaches the order to the user.
func (h *OrderHTTPHandler) Create(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	in := orders.CreateOrderInput{
		Items:         make([]orders.ItemInput, len(req.Items)),
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerPhone: normalizePhone(req.CustomerPhone),
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		ShippingAddress: models.ShippingAddress{
			FullName: req.ShippingAddress.FullName,
			Phone:    normalizePhone(req.ShippingAddress.Phone),
			Address:  req.ShippingAddress.Address,
			Ward:     req.ShippingAddress.Ward,
			District: req.ShippingAddress.District,
			Province: req.ShippingAddress.Province,
		},
		PaymentMethod:  req.PaymentMethod,
		ShippingFee:    req.ShippingFee,
		DiscountAmount: req.DiscountAmount,
		TotalAmount:    *req.TotalAmount,
		Notes:          req.Notes,
		AffiliateSlug:  strings.TrimSpace(req.AffiliateSlug),
	}
	for i, it := range req.Items {
		in.Items[i] = orders.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity, Price: *it.Price}
	}
	if in.AffiliateSlug == "" {
		if ref, err := c.Cookie(AffiliateCookie); err == nil {
			in.AffiliateSlug = ref
		}
	}
	if subject, ok := middleware.CurrentSubject(c); ok {
		in.UserID = &subject.UserID
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	order, err := h.orders.CreateOrder(ctx, in)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse("Đặt hàng thành công", order))
}

func (h *OrderHTTPHandler) ListMine(c *gin.Context) {
	subject, _ := middleware.CurrentSubject(c)

	var q PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	list, meta, err := h.orders.ListUserOrders(ctx, subject.UserID, q.toPage())
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Lấy danh sách đơn hàng thành công", list, meta))
}

// GetByNumber serves the owner, staff with orders.view, or a guest who supplies the order's phone.
func (h *OrderHTTPHandler) GetByNumber(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	order, err := h.orders.GetOrderByNumber(ctx, c.Param("orderNumber"))
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	allowed := false
	if subject, ok := middleware.CurrentSubject(c); ok {
		allowed = (order.UserID != nil && *order.UserID == subject.UserID) || policy.Can(subject, policy.OrdersView)
	}
	if !allowed && order.UserID == nil {
		phone := normalizePhone(c.Query("phone"))
		allowed = phone != "" && phone == order.CustomerPhone
	}
	if !allowed {
		c.JSON(http.StatusNotFound, errorResponse("Không tìm thấy đơn hàng"))
		return
	}

	c.JSON(http.StatusOK, successResponse("Lấy đơn hàng thành công", order))
}

func (h *OrderHTTPHandler) CancelOwn(c *gin.Context) {
	subject, _ := middleware.CurrentSubject(c)

	var req CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	order, err := h.orders.CancelOwnOrder(ctx, subject.UserID, c.Param("orderNumber"), strings.TrimSpace(req.Reason))
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Đã huỷ đơn hàng", order))
}

func parseDate(s string, endOfDay bool) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return nil, false
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, true
}

func (h *OrderHTTPHandler) AdminList(c *gin.Context) {
	var q ListOrdersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	from, ok1 := parseDate(q.From, false)
	to, ok2 := parseDate(q.To, true)
	if !ok1 || !ok2 {
		c.JSON(http.StatusBadRequest, errorResponse("Ngày phải có dạng YYYY-MM-DD"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	list, meta, err := h.orders.ListOrders(ctx, orders.OrderFilter{
		Status:        strings.ToUpper(q.Status),
		PaymentStatus: strings.ToUpper(q.PaymentStatus),
		Search:        q.Search,
		From:          from,
		To:            to,
		Page:          q.toPage(),
	})
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Lấy danh sách đơn hàng thành công", list, meta))
}

func (h *OrderHTTPHandler) AdminGet(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	order, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Lấy đơn hàng thành công", order))
}

func (h *OrderHTTPHandler) AdminUpdateStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	order, err := h.orders.UpdateStatus(ctx, id, req.Status, strings.TrimSpace(req.Reason))
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Cập nhật trạng thái đơn hàng thành công", order))
}

func (h *OrderHTTPHandler) AdminUpdatePaymentStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req UpdatePaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	order, err := h.orders.UpdatePaymentStatus(ctx, id, req.PaymentStatus)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Cập nhật trạng thái thanh toán thành công", order))
}

func (h *OrderHTTPHandler) AdminUpdate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	order, err := h.orders.UpdateOrder(ctx, id, orders.AdminUpdateInput{
		ShippingFee:    req.ShippingFee,
		DiscountAmount: req.DiscountAmount,
		Notes:          req.Notes,
	})
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Cập nhật đơn hàng thành công", order))
}

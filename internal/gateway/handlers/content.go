package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cminh91/dong-y-sub001/internal/gateway/middleware"
	content "github.com/cminh91/dong-y-sub001/internal/services/content/handler"
	orders "github.com/cminh91/dong-y-sub001/internal/services/orders/handler"
)

type ContentHTTPHandler struct {
	content *content.ContentHandler
	orders  *orders.OrderHandler
	log     *zap.Logger
}

func NewContentHTTPHandler(ch *content.ContentHandler, o *orders.OrderHandler, log *zap.Logger) *ContentHTTPHandler {
	return &ContentHTTPHandler{content: ch, orders: o, log: log.Named("http.content")}
}

type SettingRequest struct {
	Value       json.RawMessage `json:"value" binding:"required"`
	Description string          `json:"description" binding:"max=255"`
}

type PostRequest struct {
	Title      *string `json:"title" binding:"omitempty,min=2,max=255"`
	Slug       *string `json:"slug" binding:"omitempty,max=255"`
	Excerpt    *string `json:"excerpt" binding:"omitempty,max=1000"`
	Content    *string `json:"content"`
	CoverImage *string `json:"coverImage" binding:"omitempty,max=512"`
	Status     *string `json:"status" binding:"omitempty,oneof=DRAFT PUBLISHED"`
}

func (r PostRequest) toInput() content.PostInput {
	return content.PostInput{
		Title:      r.Title,
		Slug:       r.Slug,
		Excerpt:    r.Excerpt,
		Content:    r.Content,
		CoverImage: r.CoverImage,
		Status:     r.Status,
	}
}

type FAQRequest struct {
	Question  *string `json:"question" binding:"omitempty,max=500"`
	Answer    *string `json:"answer"`
	Category  *string `json:"category" binding:"omitempty,max=100"`
	SortOrder *int    `json:"sortOrder"`
	IsActive  *bool   `json:"isActive"`
}

func (r FAQRequest) toInput() content.FAQInput {
	return content.FAQInput{
		Question:  r.Question,
		Answer:    r.Answer,
		Category:  r.Category,
		SortOrder: r.SortOrder,
		IsActive:  r.IsActive,
	}
}

type ListPostsQuery struct {
	PageQuery
	Search string `form:"search"`
	Status string `form:"status"`
}

func subjectID(c *gin.Context) *int64 {
	if subject, ok := middleware.CurrentSubject(c); ok {
		return &subject.UserID
	}
	return nil
}

// --- Settings ---

// GetPublicSetting serves allow-listed keys only. Other keys answer 404 so their existence is not revealed.
func (h *ContentHTTPHandler) GetPublicSetting(c *gin.Context) {
	key := c.Param("key")
	if !content.IsPublicSetting(key) {
		c.JSON(http.StatusNotFound, errorResponse("Không tìm thấy cấu hình"))
		return
	}
	h.getSetting(c, key)
}

func (h *ContentHTTPHandler) AdminGetSetting(c *gin.Context) {
	h.getSetting(c, c.Param("key"))
}

func (h *ContentHTTPHandler) getSetting(c *gin.Context, key string) {
	ctx, cancel := requestContext(c)
	defer cancel()

	setting, err := h.content.GetSetting(ctx, key)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Lấy cấu hình thành công", setting))
}

func (h *ContentHTTPHandler) AdminListSettings(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	settings, err := h.content.ListSettings(ctx)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Lấy danh sách cấu hình thành công", settings))
}

func (h *ContentHTTPHandler) AdminPutSetting(c *gin.Context) {
	var req SettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	setting, err := h.content.UpsertSetting(ctx, c.Param("key"), req.Value, req.Description, subjectID(c))
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Đã lưu cấu hình", setting))
}

func (h *ContentHTTPHandler) AdminDeleteSetting(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.content.DeleteSetting(ctx, c.Param("key")); err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Đã xoá cấu hình", nil))
}

func (h *ContentHTTPHandler) Homepage(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	page, err := h.content.GetHomepage(ctx)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Lấy nội dung trang chủ thành công", page))
}

func (h *ContentHTTPHandler) AdminPutHomepageSection(c *gin.Context) {
	var req SettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	setting, err := h.content.UpdateHomepageSection(ctx, c.Param("section"), req.Value, subjectID(c))
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Đã cập nhật trang chủ", setting))
}

func (h *ContentHTTPHandler) PaymentSettings(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	info, err := h.content.GetPaymentSettings(ctx)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Lấy thông tin thanh toán thành công", info))
}

// PaymentQR renders the transfer QR for an order's final amount, with the order number as memo.
func (h *ContentHTTPHandler) PaymentQR(c *gin.Context) {
	number := strings.TrimSpace(c.Query("orderNumber"))
	if number == "" {
		c.JSON(http.StatusBadRequest, errorResponse("Thiếu mã đơn hàng"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	order, err := h.orders.GetOrderByNumber(ctx, number)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	qr, err := h.content.PaymentQRFor(ctx, order.FinalAmount, order.OrderNumber)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Tạo mã QR thành công", qr))
}

// --- Posts ---

func (h *ContentHTTPHandler) listPosts(c *gin.Context, publishedOnly bool) {
	var q ListPostsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	posts, meta, err := h.content.ListPosts(ctx, content.PostFilter{
		Status:        strings.ToUpper(q.Status),
		Search:        q.Search,
		PublishedOnly: publishedOnly,
		Page:          q.toPage(),
	})
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Lấy danh sách bài viết thành công", posts, meta))
}

func (h *ContentHTTPHandler) ListPosts(c *gin.Context) { h.listPosts(c, true) }

func (h *ContentHTTPHandler) AdminListPosts(c *gin.Context) { h.listPosts(c, false) }

func (h *ContentHTTPHandler) GetPost(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	post, err := h.content.GetPostBySlug(ctx, c.Param("slug"), true)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Lấy bài viết thành công", post))
}

func (h *ContentHTTPHandler) AdminGetPost(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	post, err := h.content.GetPost(ctx, id)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Lấy bài viết thành công", post))
}

func (h *ContentHTTPHandler) CreatePost(c *gin.Context) {
	subject, _ := middleware.CurrentSubject(c)

	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	post, err := h.content.CreatePost(ctx, subject.UserID, req.toInput())
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Tạo bài viết thành công", post))
}

func (h *ContentHTTPHandler) UpdatePost(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	post, err := h.content.UpdatePost(ctx, id, req.toInput())
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Cập nhật bài viết thành công", post))
}

func (h *ContentHTTPHandler) DeletePost(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.content.DeletePost(ctx, id); err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Đã xoá bài viết", nil))
}

// --- FAQs ---

func (h *ContentHTTPHandler) listFAQs(c *gin.Context, activeOnly bool) {
	ctx, cancel := requestContext(c)
	defer cancel()

	faqs, err := h.content.ListFAQs(ctx, activeOnly)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Lấy danh sách câu hỏi thành công", faqs))
}

func (h *ContentHTTPHandler) ListFAQs(c *gin.Context) { h.listFAQs(c, true) }

func (h *ContentHTTPHandler) AdminListFAQs(c *gin.Context) { h.listFAQs(c, false) }

func (h *ContentHTTPHandler) CreateFAQ(c *gin.Context) {
	var req FAQRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	faq, err := h.content.CreateFAQ(ctx, req.toInput())
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Tạo câu hỏi thành công", faq))
}

func (h *ContentHTTPHandler) UpdateFAQ(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req FAQRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	faq, err := h.content.UpdateFAQ(ctx, id, req.toInput())
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Cập nhật câu hỏi thành công", faq))
}

func (h *ContentHTTPHandler) DeleteFAQ(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.content.DeleteFAQ(ctx, id); err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Đã xoá câu hỏi", nil))
}

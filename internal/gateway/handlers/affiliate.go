package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cminh91/dong-y-sub001/internal/gateway/middleware"
	affiliate "github.com/cminh91/dong-y-sub001/internal/services/affiliate/handler"
	commissions "github.com/cminh91/dong-y-sub001/internal/services/commissions/handler"
)

// AffiliateCookie carries the last tracked link slug until checkout.
const AffiliateCookie = "aff_ref"

type AffiliateHTTPHandler struct {
	affiliate     *affiliate.AffiliateHandler
	commissions   *commissions.CommissionHandler
	log           *zap.Logger
	secureCookies bool
}

func NewAffiliateHTTPHandler(a *affiliate.AffiliateHandler, ch *commissions.CommissionHandler, log *zap.Logger, secureCookies bool) *AffiliateHTTPHandler {
	return &AffiliateHTTPHandler{affiliate: a, commissions: ch, log: log.Named("http.affiliate"), secureCookies: secureCookies}
}

type LinkRequest struct {
	ProductID *int64  `json:"productId" binding:"omitempty,gt=0"`
	Slug      *string `json:"slug" binding:"omitempty,min=3,max=64"`
	Title     *string `json:"title" binding:"omitempty,max=255"`
	TargetURL *string `json:"targetUrl" binding:"omitempty,max=512"`
	IsActive  *bool   `json:"isActive"`
}

func (r LinkRequest) toInput() affiliate.LinkInput {
	return affiliate.LinkInput{
		ProductID: r.ProductID,
		Slug:      r.Slug,
		Title:     r.Title,
		TargetURL: r.TargetURL,
		IsActive:  r.IsActive,
	}
}

type SetActiveRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

type ListLinksQuery struct {
	PageQuery
	UserID int64  `form:"userId"`
	Search string `form:"search"`
}

type ListCommissionsQuery struct {
	PageQuery
	UserID int64  `form:"userId"`
	Status string `form:"status"`
}

// Track counts the click, drops the referral cookie and redirects. Unknown or inactive slugs go home.
func (h *AffiliateHTTPHandler) Track(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.affiliate.TrackClick(ctx, c.Param("slug"), c.ClientIP())
	if err != nil {
		if status.Code(err) == codes.NotFound {
			c.Redirect(http.StatusFound, "/")
			return
		}
		handleServiceError(c, h.log, err)
		return
	}

	if res.CookieDays > 0 {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(AffiliateCookie, res.Slug, res.CookieDays*24*60*60, "/", "", h.secureCookies, true)
	}
	c.Redirect(http.StatusFound, res.Redirect)
}

func (h *AffiliateHTTPHandler) CreateLink(c *gin.Context) {
	subject, _ := middleware.CurrentSubject(c)

	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	link, err := h.affiliate.CreateLink(ctx, subject.UserID, req.toInput())
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Tạo liên kết thành công", link))
}

func (h *AffiliateHTTPHandler) ListMyLinks(c *gin.Context) {
	subject, _ := middleware.CurrentSubject(c)

	var q ListLinksQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	links, meta, err := h.affiliate.ListLinks(ctx, affiliate.LinkFilter{UserID: &subject.UserID, Search: q.Search, Page: q.toPage()})
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Lấy danh sách liên kết thành công", links, meta))
}

func (h *AffiliateHTTPHandler) UpdateLink(c *gin.Context) {
	subject, _ := middleware.CurrentSubject(c)
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	link, err := h.affiliate.UpdateLink(ctx, subject.UserID, id, req.toInput())
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Cập nhật liên kết thành công", link))
}

func (h *AffiliateHTTPHandler) DeleteLink(c *gin.Context) {
	subject, _ := middleware.CurrentSubject(c)
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	deleted, err := h.affiliate.DeleteLink(ctx, subject.UserID, id)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	msg := "Đã xoá liên kết"
	if !deleted {
		msg = "Liên kết đã phát sinh đơn hàng nên được tắt thay vì xoá"
	}
	c.JSON(http.StatusOK, successResponse(msg, gin.H{"deleted": deleted}))
}

func (h *AffiliateHTTPHandler) Stats(c *gin.Context) {
	subject, _ := middleware.CurrentSubject(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	stats, err := h.affiliate.GetStats(ctx, subject.UserID)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Lấy thống kê thành công", stats))
}

func (h *AffiliateHTTPHandler) MyCommissions(c *gin.Context) {
	subject, _ := middleware.CurrentSubject(c)

	var q ListCommissionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	list, meta, err := h.commissions.ListCommissions(ctx, commissions.ListFilter{
		UserID: &subject.UserID,
		Status: strings.ToUpper(q.Status),
		Page:   q.toPage(),
	})
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Lấy danh sách hoa hồng thành công", list, meta))
}

// --- Admin ---

func (h *AffiliateHTTPHandler) AdminListLinks(c *gin.Context) {
	var q ListLinksQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	filter := affiliate.LinkFilter{Search: q.Search, Page: q.toPage()}
	if q.UserID > 0 {
		filter.UserID = &q.UserID
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	links, meta, err := h.affiliate.ListLinks(ctx, filter)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Lấy danh sách liên kết thành công", links, meta))
}

func (h *AffiliateHTTPHandler) AdminSetLinkActive(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	link, err := h.affiliate.SetLinkActive(ctx, id, *req.IsActive)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Cập nhật liên kết thành công", link))
}

func (h *AffiliateHTTPHandler) AdminListCommissions(c *gin.Context) {
	var q ListCommissionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	filter := commissions.ListFilter{Status: strings.ToUpper(q.Status), Page: q.toPage()}
	if q.UserID > 0 {
		filter.UserID = &q.UserID
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	list, meta, err := h.commissions.ListCommissions(ctx, filter)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Lấy danh sách hoa hồng thành công", list, meta))
}

func (h *AffiliateHTTPHandler) commissionAction(c *gin.Context, act func(*gin.Context, int64) (interface{}, error), msg string) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	out, err := act(c, id)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(msg, out))
}

func (h *AffiliateHTTPHandler) AdminApproveCommission(c *gin.Context) {
	h.commissionAction(c, func(c *gin.Context, id int64) (interface{}, error) {
		ctx, cancel := requestContext(c)
		defer cancel()
		return h.commissions.ApproveCommission(ctx, id)
	}, "Đã duyệt hoa hồng")
}

func (h *AffiliateHTTPHandler) AdminPayCommission(c *gin.Context) {
	h.commissionAction(c, func(c *gin.Context, id int64) (interface{}, error) {
		ctx, cancel := requestContext(c)
		defer cancel()
		return h.commissions.PayCommission(ctx, id)
	}, "Đã thanh toán hoa hồng")
}

func (h *AffiliateHTTPHandler) AdminCancelCommission(c *gin.Context) {
	h.commissionAction(c, func(c *gin.Context, id int64) (interface{}, error) {
		ctx, cancel := requestContext(c)
		defer cancel()
		return h.commissions.CancelCommission(ctx, id)
	}, "Đã huỷ hoa hồng")
}

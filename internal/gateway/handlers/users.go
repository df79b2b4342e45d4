package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cminh91/dong-y-sub001/internal/gateway/middleware"
	users "github.com/cminh91/dong-y-sub001/internal/services/user/handler"
)

type UserHTTPHandler struct {
	users *users.UserHandler
	log   *zap.Logger
}

func NewUserHTTPHandler(u *users.UserHandler, log *zap.Logger) *UserHTTPHandler {
	return &UserHTTPHandler{users: u, log: log.Named("http.users")}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=6,max=72"`
	FullName     string `json:"fullName" binding:"required,max=100"`
	Phone        string `json:"phone" binding:"omitempty,vnphone"`
	ReferralCode string `json:"referralCode" binding:"omitempty,max=16"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=6,max=72"`
}

type UpdateUserRequest struct {
	FullName       *string          `json:"fullName" binding:"omitempty,max=100"`
	Phone          *string          `json:"phone" binding:"omitempty,vnphone"`
	Role           *string          `json:"role" binding:"omitempty,oneof=ADMIN STAFF CUSTOMER AGENT COLLABORATOR"`
	Permissions    *[]string        `json:"permissions"`
	CommissionRate *decimal.Decimal `json:"commissionRate"`
	IsActive       *bool            `json:"isActive"`
}

type ListUsersQuery struct {
	PageQuery
	Role     string `form:"role"`
	Search   string `form:"search"`
	IsActive *bool  `form:"isActive"`
}

// --- Authentication ---

func (h *UserHTTPHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.users.Register(ctx, users.RegisterInput{
		Email:        req.Email,
		Password:     req.Password,
		FullName:     req.FullName,
		Phone:        normalizePhone(req.Phone),
		ReferralCode: req.ReferralCode,
	})
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Đăng ký thành công", res))
}

func (h *UserHTTPHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.users.Login(ctx, req.Email, req.Password)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Đăng nhập thành công", res))
}

func (h *UserHTTPHandler) Me(c *gin.Context) {
	subject, _ := middleware.CurrentSubject(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.users.GetMe(ctx, subject.UserID)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Lấy thông tin tài khoản thành công", gin.H{
		"user":        user,
		"permissions": policyPermissions(subject),
	}))
}

func (h *UserHTTPHandler) ChangePassword(c *gin.Context) {
	subject, _ := middleware.CurrentSubject(c)

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.users.ChangePassword(ctx, subject.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Đổi mật khẩu thành công", nil))
}

// --- User Management ---

func (h *UserHTTPHandler) ListUsers(c *gin.Context) {
	var q ListUsersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	list, meta, err := h.users.ListUsers(ctx, users.UserFilter{
		Role:     q.Role,
		Search:   q.Search,
		IsActive: q.IsActive,
		Page:     q.toPage(),
	})
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Lấy danh sách người dùng thành công", list, meta))
}

func (h *UserHTTPHandler) GetUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.users.GetMe(ctx, id)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Lấy người dùng thành công", user))
}

func (h *UserHTTPHandler) UpdateUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if req.Phone != nil {
		p := normalizePhone(*req.Phone)
		req.Phone = &p
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.users.UpdateUser(ctx, id, users.AdminUserInput{
		FullName:       req.FullName,
		Phone:          req.Phone,
		Role:           req.Role,
		Permissions:    req.Permissions,
		CommissionRate: req.CommissionRate,
		IsActive:       req.IsActive,
	})
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Cập nhật người dùng thành công", user))
}

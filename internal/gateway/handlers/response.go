package handlers

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cminh91/dong-y-sub001/internal/policy"
	"github.com/cminh91/dong-y-sub001/internal/services/shared"
)

const requestTimeout = 10 * time.Second

type APIResponse struct {
	Success bool                    `json:"success"`
	Message string                  `json:"message"`
	Data    interface{}             `json:"data,omitempty"`
	Meta    interface{}             `json:"meta,omitempty"`
	Errors  []shared.FieldViolation `json:"errors,omitempty"`
}

func successResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	}
}

func errorResponse(message string) APIResponse {
	return APIResponse{
		Success: false,
		Message: message,
	}
}

func successWithMetaResponse(message string, data interface{}, meta interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Message: message,
		Data:    data,
		Meta:    meta,
	}
}

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

var httpStatusByCode = map[codes.Code]int{
	codes.InvalidArgument:    http.StatusBadRequest,
	codes.FailedPrecondition: http.StatusBadRequest,
	codes.OutOfRange:         http.StatusBadRequest,
	codes.Unauthenticated:    http.StatusUnauthorized,
	codes.PermissionDenied:   http.StatusForbidden,
	codes.NotFound:           http.StatusNotFound,
	codes.AlreadyExists:      http.StatusConflict,
	codes.Aborted:            http.StatusConflict,
	codes.ResourceExhausted:  http.StatusTooManyRequests,
	codes.Unavailable:        http.StatusServiceUnavailable,
}

// handleServiceError maps a service status error onto the HTTP envelope.
// Internal causes are logged and replaced by a generic message.
func handleServiceError(c *gin.Context, log *zap.Logger, err error) {
	st, ok := status.FromError(err)
	code, known := httpStatusByCode[st.Code()]
	if !ok || !known {
		log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("Đã xảy ra lỗi, vui lòng thử lại sau"))
		return
	}

	resp := errorResponse(st.Message())
	resp.Errors = shared.Violations(err)
	c.JSON(code, resp)
}

// bindError reports a request that failed binding. Validator errors become per-field messages.
func bindError(c *gin.Context, err error) {
	resp := errorResponse("Dữ liệu không hợp lệ")

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			resp.Errors = append(resp.Errors, shared.FieldViolation{
				Field:   fieldPath(fe),
				Message: fieldMessage(fe),
			})
		}
	}
	c.JSON(http.StatusBadRequest, resp)
}

// fieldPath drops the top-level struct name from the namespace: "Req.items[0].quantity" -> "items[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Trường này là bắt buộc"
	case "email":
		return "Email không hợp lệ"
	case "vnphone":
		return "Số điện thoại không hợp lệ"
	case "min":
		if fe.Kind() == reflect.String {
			return "Phải có ít nhất " + fe.Param() + " ký tự"
		}
		if fe.Kind() == reflect.Slice {
			return "Phải có ít nhất " + fe.Param() + " phần tử"
		}
		return "Giá trị tối thiểu là " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "Tối đa " + fe.Param() + " ký tự"
		}
		if fe.Kind() == reflect.Slice {
			return "Tối đa " + fe.Param() + " phần tử"
		}
		return "Giá trị tối đa là " + fe.Param()
	case "gt", "gte":
		return "Giá trị phải lớn hơn " + fe.Param()
	case "oneof":
		return "Giá trị phải là một trong: " + fe.Param()
	}
	return "Giá trị không hợp lệ"
}

var vnPhone = regexp.MustCompile(`^(0|\+84)[0-9]{9,10}$`)

var registerOnce sync.Once

// RegisterValidators names binding errors after json tags and adds the vnphone rule.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return f.Name
		})
		_ = v.RegisterValidation("vnphone", func(fl validator.FieldLevel) bool {
			return vnPhone.MatchString(strings.ReplaceAll(fl.Field().String(), " ", ""))
		})
	})
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse("ID không hợp lệ"))
		return 0, false
	}
	return id, true
}

type PageQuery struct {
	Page     int `form:"page"`
	PageSize int `form:"pageSize"`
}

func (q PageQuery) toPage() shared.Page {
	return shared.Page{Page: q.Page, PageSize: q.PageSize}
}

func policyPermissions(s policy.Subject) []policy.Permission {
	if !s.IsActive {
		return []policy.Permission{}
	}
	return policy.PermissionsFor(s.Role, s.Extra)
}

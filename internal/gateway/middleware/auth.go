package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cminh91/dong-y-sub001/internal/policy"
	"github.com/cminh91/dong-y-sub001/internal/utils"
)

const subjectKey = "subject"

// SubjectLoader resolves the current role and permissions of a token's user.
type SubjectLoader interface {
	LoadSubject(ctx context.Context, userID int64) (policy.Subject, error)
}

func abort(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"success": false, "message": message})
}

func bearerToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func authenticate(c *gin.Context, tokens *utils.TokenIssuer, loader SubjectLoader) (policy.Subject, bool) {
	raw := bearerToken(c)
	if raw == "" {
		return policy.Subject{}, false
	}
	claims, err := tokens.ParseToken(raw)
	if err != nil {
		return policy.Subject{}, false
	}
	subject, err := loader.LoadSubject(c.Request.Context(), claims.UserID)
	if err != nil || !subject.IsActive {
		return policy.Subject{}, false
	}
	return subject, true
}

// JWTAuth requires a valid bearer token for an active user.
func JWTAuth(tokens *utils.TokenIssuer, loader SubjectLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		if bearerToken(c) == "" {
			abort(c, http.StatusUnauthorized, "Vui lòng đăng nhập")
			return
		}
		subject, ok := authenticate(c, tokens, loader)
		if !ok {
			abort(c, http.StatusUnauthorized, "Phiên đăng nhập không hợp lệ hoặc đã hết hạn")
			return
		}
		c.Set(subjectKey, subject)
		c.Next()
	}
}

// OptionalAuth attaches the subject when a valid token is present and lets guests through otherwise.
func OptionalAuth(tokens *utils.TokenIssuer, loader SubjectLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		if subject, ok := authenticate(c, tokens, loader); ok {
			c.Set(subjectKey, subject)
		}
		c.Next()
	}
}

func CurrentSubject(c *gin.Context) (policy.Subject, bool) {
	v, ok := c.Get(subjectKey)
	if !ok {
		return policy.Subject{}, false
	}
	subject, ok := v.(policy.Subject)
	return subject, ok
}

func RequirePermission(perm policy.Permission) gin.HandlerFunc {
	return RequireAnyPermission(perm)
}

func RequireAnyPermission(perms ...policy.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, ok := CurrentSubject(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "Vui lòng đăng nhập")
			return
		}
		if !policy.CanAny(subject, perms...) {
			abort(c, http.StatusForbidden, "Bạn không có quyền thực hiện thao tác này")
			return
		}
		c.Next()
	}
}

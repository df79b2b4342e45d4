package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cminh91/dong-y-sub001/internal/health"
)

type HealthHTTPHandler struct {
	checker *health.Checker
}

func NewHealthHTTPHandler(checker *health.Checker) *HealthHTTPHandler {
	return &HealthHTTPHandler{checker: checker}
}

func (h *HealthHTTPHandler) Health(c *gin.Context) {
	details, ok := h.checker.Check(c.Request.Context())

	status, httpStatus := "healthy", http.StatusOK
	if !ok {
		status, httpStatus = "unhealthy", http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, gin.H{
		"status":    status,
		"services":  details,
		"timestamp": time.Now(),
	})
}

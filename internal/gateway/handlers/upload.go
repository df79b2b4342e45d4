package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cminh91/dong-y-sub001/internal/storage"
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

type UploadHTTPHandler struct {
	uploader storage.Uploader
	maxSize  int64
	log      *zap.Logger
}

// NewUploadHTTPHandler accepts a nil uploader; uploads then answer 503.
func NewUploadHTTPHandler(u storage.Uploader, maxSize int64, log *zap.Logger) *UploadHTTPHandler {
	return &UploadHTTPHandler{uploader: u, maxSize: maxSize, log: log.Named("http.upload")}
}

func (h *UploadHTTPHandler) Upload(c *gin.Context) {
	if h.uploader == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse("Chưa cấu hình lưu trữ tệp"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Vui lòng chọn tệp để tải lên"))
		return
	}
	if fileHeader.Size > h.maxSize {
		c.JSON(http.StatusBadRequest, errorResponse("Tệp vượt quá dung lượng cho phép"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.log.Warn("failed to open upload", zap.Error(err))
		c.JSON(http.StatusBadRequest, errorResponse("Không đọc được tệp"))
		return
	}
	defer file.Close()

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		c.JSON(http.StatusBadRequest, errorResponse("Không đọc được tệp"))
		return
	}
	contentType := http.DetectContentType(buffer[:n])
	if !allowedImageTypes[contentType] {
		c.JSON(http.StatusBadRequest, errorResponse("Chỉ chấp nhận tệp hình ảnh"))
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Không đọc được tệp"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	key := storage.ObjectKey(time.Now(), fileHeader.Filename)
	url, err := h.uploader.Upload(ctx, key, contentType, file)
	if err != nil {
		h.log.Error("upload failed", zap.String("key", key), zap.Error(err))
		c.JSON(http.StatusBadGateway, errorResponse("Tải tệp lên thất bại"))
		return
	}

	c.JSON(http.StatusCreated, successResponse("Tải tệp lên thành công", gin.H{
		"url":         url,
		"key":         key,
		"contentType": contentType,
		"size":        fileHeader.Size,
	}))
}

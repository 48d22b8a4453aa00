package handler

import (
	"context"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"shop_backend/internal/pkg/uploader"
	"shop_backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 并发上传数量上限
const uploadConcurrency = 5

type CommonHandler struct {
	db       *gorm.DB
	redis    *redis.Client
	uploader uploader.Uploader
	logger   *zap.Logger
}

// NewCommonHandler redis 与 uploader 可为 nil
func NewCommonHandler(db *gorm.DB, rdb *redis.Client, up uploader.Uploader, logger *zap.Logger) *CommonHandler {
	return &CommonHandler{db: db, redis: rdb, uploader: up, logger: logger}
}

// HealthStatus 依赖健康状态
type HealthStatus struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks"`
	Duration string            `json:"duration"`
}

// Health 健康检查
// @Summary 健康检查（数据库 + Redis）
// @Tags Common
// @Produce json
// @Success 200 {object} response.Response{data=HealthStatus}
// @Failure 503 {object} response.Response{data=HealthStatus}
// @Router /health [get]
func (h *CommonHandler) Health(c *gin.Context) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := HealthStatus{Status: "ok", Checks: map[string]string{}}

	if err := h.pingDB(ctx); err != nil {
		status.Status = "degraded"
		status.Checks["database"] = err.Error()
	} else {
		status.Checks["database"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			status.Status = "degraded"
			status.Checks["redis"] = err.Error()
		} else {
			status.Checks["redis"] = "ok"
		}
	}
	status.Duration = time.Since(start).String()

	if status.Status != "ok" {
		h.logger.Warn("health check failed", zap.Any("checks", status.Checks))
		c.JSON(http.StatusServiceUnavailable, response.Response{
			Success: false,
			Code:    response.ErrServerInternal,
			Message: "service degraded",
			Data:    status,
		})
		return
	}
	response.Success(c, status)
}

func (h *CommonHandler) pingDB(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// UploadFile 上传文件 (支持批量)
// @Summary 上传商品图片等文件到 OSS（管理员，支持批量）
// @Tags Common
// @Security Bearer
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "Files"
// @Success 200 {object} response.Response{data=[]string} "URLs"
// @Router /admin/upload [post]
func (h *CommonHandler) UploadFile(c *gin.Context) {
	if h.uploader == nil {
		response.Error(c, http.StatusServiceUnavailable, response.ErrServerInternal, "object storage is not configured")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "invalid form data")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "no files uploaded")
		return
	}

	ctx := c.Request.Context()
	urls := make([]string, len(files))
	errs := make([]error, len(files))

	var wg sync.WaitGroup
	sem := make(chan struct{}, uploadConcurrency)
	for i, file := range files {
		wg.Add(1)
		go func(index int, f *multipart.FileHeader) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			// 按索引写入，保证返回顺序与上传顺序一致
			urls[index], errs[index] = h.uploader.UploadFile(ctx, f)
		}(i, file)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			h.logger.Error("upload failed", zap.String("file", files[i].Filename), zap.Error(err))
			response.Error(c, http.StatusBadGateway, response.ErrServerInternal, "upload failed")
			return
		}
	}
	response.Success(c, urls)
}

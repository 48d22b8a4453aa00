package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"

	"shop_backend/internal/pkg/apperr"
)

// Response 统一响应结构
type Response struct {
	Success bool        `json:"success"`
	Code    int         `json:"code"`    // 业务码
	Message string      `json:"message"` // 提示信息
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessMsg 带自定义提示的成功响应
func SuccessMsg(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Code:    CodeSuccess,
		Message: msg,
		Data:    data,
	})
}

// Created 资源创建成功 (HTTP 201)
func Created(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Code:    CodeSuccess,
		Message: msg,
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, httpCode int, errCode int, msg string) {
	c.JSON(httpCode, Response{
		Success: false,
		Code:    errCode,
		Message: msg,
	})
}

// FromError 按错误类别映射 HTTP 状态码
// 未分类错误统一按 500 处理，不向客户端暴露内部信息
func FromError(c *gin.Context, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		Error(c, http.StatusInternalServerError, ErrServerInternal, "internal server error")
		return
	}

	switch ae.Kind {
	case apperr.KindValidation:
		Error(c, http.StatusBadRequest, codeOr(ae, ErrInvalidParam), ae.Message)
	case apperr.KindNotFound:
		Error(c, http.StatusNotFound, codeOr(ae, ErrNotFound), ae.Message)
	case apperr.KindBusinessRule:
		Error(c, http.StatusBadRequest, codeOr(ae, ErrOrderBusinessRule), ae.Message)
	case apperr.KindConflict:
		Error(c, http.StatusConflict, codeOr(ae, ErrOrderConflict), ae.Message)
	case apperr.KindForbidden:
		Error(c, http.StatusForbidden, codeOr(ae, ErrNoPermission), ae.Message)
	case apperr.KindExternal:
		Error(c, http.StatusBadGateway, codeOr(ae, ErrShippingFailed), ae.Message)
	default:
		Error(c, http.StatusInternalServerError, ErrServerInternal, "internal server error")
	}
}

func codeOr(ae *apperr.Error, fallback int) int {
	if ae.Code != 0 {
		return ae.Code
	}
	return fallback
}

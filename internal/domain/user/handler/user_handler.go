package handler

import (
	"net/http"

	"shop_backend/internal/domain/user/service"
	"shop_backend/internal/pkg/middleware"
	"shop_backend/pkg/response"

	"github.com/gin-gonic/gin"
)

// UserHandler 用户处理器
type UserHandler struct {
	service service.UserService
}

// NewUserHandler 创建处理器
func NewUserHandler(service service.UserService) *UserHandler {
	return &UserHandler{service: service}
}

// GetMySubscription 当前用户会员信息
// @Summary 获取当前用户会员信息
// @Tags User
// @Security Bearer
// @Produce json
// @Success 200 {object} response.Response{data=model.Subscription}
// @Router /users/me/subscription [get]
func (h *UserHandler) GetMySubscription(c *gin.Context) {
	userID, _, _ := middleware.CurrentUser(c)
	sub, err := h.service.GetSubscription(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, sub)
}

// GrantSubscription 管理员开通会员
// @Summary 开通会员
// @Tags User
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param body body service.GrantInput true "Subscription"
// @Success 200 {object} response.Response{data=model.Subscription}
// @Router /users/{id}/subscription [post]
func (h *UserHandler) GrantSubscription(c *gin.Context) {
	var input service.GrantInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	sub, err := h.service.GrantSubscription(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessMsg(c, "subscription granted", sub)
}

// RevokeSubscription 管理员取消会员
// @Summary 取消会员
// @Tags User
// @Security Bearer
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Response{data=model.Subscription}
// @Router /users/{id}/subscription [delete]
func (h *UserHandler) RevokeSubscription(c *gin.Context) {
	sub, err := h.service.RevokeSubscription(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessMsg(c, "subscription revoked", sub)
}

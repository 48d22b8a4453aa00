package handler

import (
	"net/http"

	"shop_backend/internal/domain/order/service"
	"shop_backend/internal/pkg/middleware"
	"shop_backend/pkg/response"
	"shop_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	service service.OrderService
}

func NewOrderHandler(service service.OrderService) *OrderHandler {
	return &OrderHandler{service: service}
}

// UpdateStatusInput 管理员修改订单状态
type UpdateStatusInput struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

func actorFrom(c *gin.Context) (service.Actor, bool) {
	userID, _, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "unauthorized")
		return service.Actor{}, false
	}
	return service.Actor{UserID: userID, Admin: middleware.IsAdmin(c)}, true
}

// CreateOrder 下单
// @Summary 创建订单（计价 + 落库）
// @Tags Order
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body service.PriceRequest true "Order"
// @Success 201 {object} response.Response{data=model.Order}
// @Router /orders [post]
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var input service.PriceRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	order, err := h.service.CreateOrder(c.Request.Context(), actor.UserID, input)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, "order created", order)
}

// PreviewOrder 计价预览
// @Summary 订单计价预览（不落库）
// @Tags Order
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body service.PriceRequest true "Order"
// @Success 200 {object} response.Response{data=service.PricedOrder}
// @Router /orders/preview [post]
func (h *OrderHandler) PreviewOrder(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var input service.PriceRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	priced, err := h.service.PreviewOrder(c.Request.Context(), actor.UserID, input)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, priced)
}

// ListMyOrders 我的订单
// @Summary 我的订单列表
// @Tags Order
// @Security Bearer
// @Produce json
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} response.Response{data=utils.PageResult}
// @Router /orders/mine [get]
func (h *OrderHandler) ListMyOrders(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var p utils.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	result, err := h.service.ListMyOrders(c.Request.Context(), actor.UserID, p)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// GetOrder 订单详情
// @Summary 订单详情
// @Tags Order
// @Security Bearer
// @Produce json
// @Param code path string true "订单号"
// @Success 200 {object} response.Response{data=model.Order}
// @Router /orders/{code} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	order, err := h.service.GetOrder(c.Request.Context(), c.Param("code"), actor)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, order)
}

// GetInvoice 发票
// @Summary 订单发票（基于下单快照）
// @Tags Order
// @Security Bearer
// @Produce json
// @Param code path string true "订单号"
// @Success 200 {object} response.Response{data=service.Invoice}
// @Router /orders/{code}/invoice [get]
func (h *OrderHandler) GetInvoice(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	inv, err := h.service.GetInvoice(c.Request.Context(), c.Param("code"), actor)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if c.Query("format") == "text" {
		c.Header("Content-Disposition", "attachment; filename="+inv.Filename())
		c.Data(http.StatusOK, "text/plain; charset=utf-8", inv.Text())
		return
	}
	response.Success(c, inv)
}

// TrackOrder 物流跟踪
// @Summary 物流跟踪
// @Tags Order
// @Security Bearer
// @Produce json
// @Param code path string true "订单号"
// @Success 200 {object} response.Response{data=shipping.Tracking}
// @Router /orders/{code}/tracking [get]
func (h *OrderHandler) TrackOrder(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	tracking, err := h.service.TrackOrder(c.Request.Context(), c.Param("code"), actor)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, tracking)
}

// CancelOrder 取消订单
// @Summary 取消订单（待处理/处理中）
// @Tags Order
// @Security Bearer
// @Produce json
// @Param code path string true "订单号"
// @Success 200 {object} response.Response{data=model.Order}
// @Router /orders/{code}/cancel [post]
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	order, err := h.service.CancelOrder(c.Request.Context(), c.Param("code"), actor)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessMsg(c, "order cancelled", order)
}

// RequestReturn 申请退货
// @Summary 申请退货（仅已送达订单）
// @Tags Order
// @Security Bearer
// @Accept json
// @Produce json
// @Param code path string true "订单号"
// @Param body body service.ReturnInput true "Return"
// @Success 200 {object} response.Response{data=model.Order}
// @Router /orders/{code}/return [post]
func (h *OrderHandler) RequestReturn(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var input service.ReturnInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	order, err := h.service.RequestReturn(c.Request.Context(), c.Param("code"), actor, input)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessMsg(c, "return requested", order)
}

// UpdateStatus 修改订单状态
// @Summary 修改订单状态（管理员）
// @Tags Admin
// @Security Bearer
// @Accept json
// @Produce json
// @Param code path string true "订单号"
// @Param body body UpdateStatusInput true "Status"
// @Success 200 {object} response.Response{data=model.Order}
// @Router /admin/orders/{code}/status [put]
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var input UpdateStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	order, err := h.service.UpdateStatus(c.Request.Context(), c.Param("code"), input.Status, actor, input.Note)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessMsg(c, "order status updated", order)
}

// ListOrders 订单列表
// @Summary 订单列表（管理员）
// @Tags Admin
// @Security Bearer
// @Produce json
// @Param status query string false "状态"
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} response.Response{data=utils.PageResult}
// @Router /admin/orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	var p utils.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	result, err := h.service.ListOrders(c.Request.Context(), c.Query("status"), p)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// ShippingAction 物流扩展操作
// @Summary 分配运单号/生成取件单/面单/发票/交接单（管理员）
// @Tags Admin
// @Security Bearer
// @Produce json
// @Param code path string true "订单号"
// @Param action path string true "awb|pickup|label|invoice|manifest"
// @Success 200 {object} response.Response{data=service.ShippingResult}
// @Router /admin/orders/{code}/shipping/{action} [post]
func (h *OrderHandler) ShippingAction(c *gin.Context) {
	result, err := h.service.ShippingAction(c.Request.Context(), c.Param("code"), c.Param("action"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

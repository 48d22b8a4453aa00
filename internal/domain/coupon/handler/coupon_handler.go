package handler

import (
	"net/http"

	"shop_backend/internal/domain/coupon/service"
	"shop_backend/pkg/response"
	"shop_backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type CouponHandler struct {
	service service.CouponService
}

func NewCouponHandler(service service.CouponService) *CouponHandler {
	return &CouponHandler{service: service}
}

// ApplyCouponInput 优惠券预览参数
type ApplyCouponInput struct {
	Code      string          `json:"code" binding:"required"`
	CartTotal decimal.Decimal `json:"cartTotal"`
}

// ApplyCoupon 预览优惠券折扣
// @Summary 预览优惠券折扣（不占用次数）
// @Tags Coupon
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body ApplyCouponInput true "Coupon"
// @Success 200 {object} response.Response{data=service.Evaluation}
// @Router /coupons/apply [post]
func (h *CouponHandler) ApplyCoupon(c *gin.Context) {
	var input ApplyCouponInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	eval, err := h.service.ApplyCoupon(c.Request.Context(), input.Code, input.CartTotal)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessMsg(c, "coupon applied", eval)
}

// CreateCoupon 创建优惠券
// @Summary 创建优惠券
// @Tags Coupon
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body service.CouponInput true "Coupon"
// @Success 201 {object} response.Response{data=model.Coupon}
// @Router /coupons [post]
func (h *CouponHandler) CreateCoupon(c *gin.Context) {
	var input service.CouponInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	coupon, err := h.service.CreateCoupon(c.Request.Context(), input)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, "coupon created", coupon)
}

// UpdateCoupon 更新优惠券
// @Summary 更新优惠券
// @Tags Coupon
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path string true "Coupon ID"
// @Param body body service.CouponInput true "Coupon"
// @Success 200 {object} response.Response{data=model.Coupon}
// @Router /coupons/{id} [put]
func (h *CouponHandler) UpdateCoupon(c *gin.Context) {
	var input service.CouponInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	coupon, err := h.service.UpdateCoupon(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, coupon)
}

// DeleteCoupon 删除优惠券
// @Summary 删除优惠券
// @Tags Coupon
// @Security Bearer
// @Param id path string true "Coupon ID"
// @Success 200 {object} response.Response
// @Router /coupons/{id} [delete]
func (h *CouponHandler) DeleteCoupon(c *gin.Context) {
	if err := h.service.DeleteCoupon(c.Request.Context(), c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessMsg(c, "coupon deleted", nil)
}

// ListCoupons 优惠券列表
// @Summary 优惠券列表
// @Tags Coupon
// @Security Bearer
// @Produce json
// @Param status query string false "Status"
// @Param page query int false "Page"
// @Param limit query int false "Limit"
// @Success 200 {object} response.Response{data=utils.PageResult}
// @Router /coupons [get]
func (h *CouponHandler) ListCoupons(c *gin.Context) {
	var p utils.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	result, err := h.service.ListCoupons(c.Request.Context(), c.Query("status"), p)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

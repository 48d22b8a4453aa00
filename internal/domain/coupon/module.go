package coupon

import (
	"shop_backend/internal/domain/coupon/handler"
	"shop_backend/internal/domain/coupon/repository"
	"shop_backend/internal/domain/coupon/service"
	"shop_backend/internal/pkg/middleware"
	"shop_backend/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// CouponModule 优惠券模块
type CouponModule struct{}

func init() {
	registry.Register(&CouponModule{})
}

func (m *CouponModule) Name() string {
	return "coupon"
}

func (m *CouponModule) Priority() int {
	return 10
}

func (m *CouponModule) Init(ctx *registry.ModuleContext) error {
	var cRepo repository.CouponRepository = repository.NewCouponRepository(ctx.DB)
	if ctx.Cache != nil {
		cRepo = repository.NewCachedCouponRepository(cRepo, ctx.Cache, ctx.Logger)
	}
	cService := service.NewCouponService(cRepo, ctx.Logger)
	cHandler := handler.NewCouponHandler(cService)

	setupRoutes(ctx.Router, cHandler)
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.CouponHandler) {
	g := r.Group("/coupons")
	g.Use(middleware.AuthMiddleware())
	{
		g.POST("/apply", h.ApplyCoupon)

		// 需要管理员权限的路由组
		admin := g.Group("")
		admin.Use(middleware.AdminMiddleware())
		{
			admin.GET("", h.ListCoupons)
			admin.POST("", h.CreateCoupon)
			admin.PUT("/:id", h.UpdateCoupon)
			admin.DELETE("/:id", h.DeleteCoupon)
		}
	}
}

package order

import (
	couponRepo "shop_backend/internal/domain/coupon/repository"
	couponService "shop_backend/internal/domain/coupon/service"
	"shop_backend/internal/domain/order/handler"
	"shop_backend/internal/domain/order/repository"
	"shop_backend/internal/domain/order/service"
	productRepo "shop_backend/internal/domain/product/repository"
	productService "shop_backend/internal/domain/product/service"
	userRepo "shop_backend/internal/domain/user/repository"
	userService "shop_backend/internal/domain/user/service"
	"shop_backend/internal/pkg/config"
	"shop_backend/internal/pkg/middleware"
	"shop_backend/internal/pkg/registry"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// OrderModule 订单模块
type OrderModule struct{}

func init() {
	registry.Register(&OrderModule{})
}

func (m *OrderModule) Name() string {
	return "order"
}

func (m *OrderModule) Priority() int {
	// 依赖用户、优惠券模块
	return 30
}

func (m *OrderModule) Init(ctx *registry.ModuleContext) error {
	pricing := config.GlobalConfig.Pricing

	uRepo := userRepo.NewUserRepository(ctx.DB)
	pRepo := productRepo.NewProductRepository(ctx.DB)
	cRepo := couponRepo.NewCouponRepository(ctx.DB)

	// 计价预览走缓存，事务内计数走 cRepo.WithTx
	var (
		evalRepo    couponRepo.CouponRepository = cRepo
		couponCache service.CouponInvalidator
	)
	if ctx.Cache != nil {
		cached := couponRepo.NewCachedCouponRepository(cRepo, ctx.Cache, ctx.Logger)
		evalRepo, couponCache = cached, cached
	}

	tax := service.DefaultTaxCalculator()
	if pricing.HighTaxRate > 0 && pricing.LowTaxRate > 0 {
		tax = service.NewTaxCalculator(pricing)
	}
	discount := decimal.NewFromFloat(pricing.SubscriptionDiscount)
	if pricing.SubscriptionDiscount <= 0 {
		discount = decimal.NewFromInt(249)
	}

	pricer := service.NewPricer(pRepo, couponService.NewEvaluator(evalRepo), userService.NewSubscriptionPolicy(discount), tax)

	oService := service.NewOrderService(service.Dependencies{
		DB:                     ctx.DB,
		Orders:                 repository.NewOrderRepository(ctx.DB),
		Users:                  uRepo,
		Coupons:                cRepo,
		Inventory:              productService.NewInventoryService(pRepo, ctx.Logger),
		Pricer:                 pricer,
		Subscriptions:          userService.NewUserService(uRepo, ctx.Cache, ctx.Logger),
		CouponCache:            couponCache,
		Dispatcher:             ctx.Dispatcher,
		Shipping:               ctx.Shipping,
		Notifier:               ctx.Notifier,
		Events:                 ctx.Events,
		Uploader:               ctx.Uploader,
		Metrics:                ctx.Metrics,
		Logger:                 ctx.Logger,
		CountCouponRedemptions: pricing.CountCouponRedemptions,
	})
	oHandler := handler.NewOrderHandler(oService)

	limiter := middleware.NewIPRateLimiter(rate.Limit(checkoutRPS()), checkoutBurst())
	setupRoutes(ctx.Router, oHandler, limiter)
	return nil
}

func checkoutRPS() float64 {
	if rps := config.GlobalConfig.Server.CheckoutRPS; rps > 0 {
		return rps
	}
	return 2
}

func checkoutBurst() int {
	if b := config.GlobalConfig.Server.CheckoutBurst; b > 0 {
		return b
	}
	return 5
}

func setupRoutes(r *gin.Engine, h *handler.OrderHandler, limiter *middleware.IPRateLimiter) {
	orders := r.Group("/orders")
	orders.Use(middleware.AuthMiddleware())
	{
		orders.POST("", middleware.RateLimitMiddleware(limiter), h.CreateOrder)
		orders.POST("/preview", h.PreviewOrder)
		orders.GET("/mine", h.ListMyOrders)
		orders.GET("/:code", h.GetOrder)
		orders.GET("/:code/invoice", h.GetInvoice)
		orders.GET("/:code/tracking", h.TrackOrder)
		orders.POST("/:code/cancel", h.CancelOrder)
		orders.POST("/:code/return", h.RequestReturn)
	}

	admin := r.Group("/admin/orders")
	admin.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware())
	{
		admin.GET("", h.ListOrders)
		admin.PUT("/:code/status", h.UpdateStatus)
		admin.POST("/:code/shipping/:action", h.ShippingAction)
	}
}

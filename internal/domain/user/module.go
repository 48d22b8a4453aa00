package user

import (
	"shop_backend/internal/domain/user/handler"
	"shop_backend/internal/domain/user/repository"
	"shop_backend/internal/domain/user/service"
	"shop_backend/internal/pkg/middleware"
	"shop_backend/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// UserModule 用户模块
type UserModule struct{}

func init() {
	// 自动注册模块
	registry.Register(&UserModule{})
}

func (m *UserModule) Name() string {
	return "user"
}

func (m *UserModule) Priority() int {
	// 用户模块优先级最高，订单模块依赖它
	return 1
}

func (m *UserModule) Init(ctx *registry.ModuleContext) error {
	userRepo := repository.NewUserRepository(ctx.DB)
	userService := service.NewUserService(userRepo, ctx.Cache, ctx.Logger)
	userHandler := handler.NewUserHandler(userService)

	setupRoutes(ctx.Router, userHandler)
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.UserHandler) {
	userGroup := r.Group("/users")
	userGroup.Use(middleware.AuthMiddleware())
	{
		userGroup.GET("/me/subscription", h.GetMySubscription)
		userGroup.POST("/:id/subscription", middleware.AdminMiddleware(), h.GrantSubscription)
		userGroup.DELETE("/:id/subscription", middleware.AdminMiddleware(), h.RevokeSubscription)
	}
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	_ "shop_backend/internal/domain/common"
	_ "shop_backend/internal/domain/coupon"
	_ "shop_backend/internal/domain/order"
	_ "shop_backend/internal/domain/user"
	"shop_backend/internal/pkg/config"
	"shop_backend/internal/pkg/events"
	"shop_backend/internal/pkg/middleware"
	"shop_backend/internal/pkg/notify"
	"shop_backend/internal/pkg/push"
	"shop_backend/internal/pkg/registry"
	"shop_backend/internal/pkg/shipping"
	"shop_backend/internal/pkg/uploader"
	"shop_backend/internal/pkg/worker"
	"shop_backend/pkg/cache"
	"shop_backend/pkg/database"
	"shop_backend/pkg/logger"
	"shop_backend/pkg/metrics"
	"shop_backend/pkg/pool"
)

// @title Shop Backend API
// @version 1.0
// @BasePath /
// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
func main() {
	config.LoadConfig()
	cfg := config.GlobalConfig

	log, err := logger.InitLogger(cfg.Server.Mode)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	db, err := database.InitDatabase(cfg.Database, cfg.App.Debug)
	if err != nil {
		log.Fatal("init database failed", zap.Error(err))
	}
	rdb, err := database.InitRedis(cfg.Redis)
	if err != nil {
		log.Fatal("init redis failed", zap.Error(err))
	}
	store := cache.NewRedisCache(rdb, "shop:")
	mc := metrics.NewMetricsCollector(prometheus.DefaultRegisterer)

	taskHook := func(task worker.Task, outcome string, _ error) {
		mc.RecordTask(task.Name, outcome)
	}
	var (
		dispatcher worker.Dispatcher
		workerPool *worker.WorkerPool
	)
	if cfg.Worker.Workers > 0 {
		workerPool = worker.NewWorkerPool(log, cfg.Worker.Workers, cfg.Worker.QueueSize,
			worker.WithMaxRetry(cfg.Worker.MaxRetry),
			worker.WithTimeout(cfg.Worker.Timeout),
			worker.WithResultHook(taskHook),
		)
		workerPool.Start()
		dispatcher = workerPool
	} else {
		dispatcher = worker.NewInlineDispatcher(log, cfg.Worker.Timeout, taskHook)
	}

	var gateway shipping.Gateway
	if cfg.Shipping.Enabled {
		gateway = shipping.NewClient(cfg.Shipping, store,
			shipping.WithMetrics(mc),
			shipping.WithLogger(log),
			shipping.WithCircuitBreaker(pool.NewCircuitBreaker(5, 30*time.Second)),
		)
	} else {
		log.Warn("shipping gateway disabled, orders will not be forwarded")
	}

	notifiers := notify.Multi{notify.NewLogNotifier(log)}
	if cfg.Email.Enabled {
		en, err := notify.NewEmailNotifier(cfg.Email)
		if err != nil {
			log.Warn("init email notifier failed", zap.Error(err))
		} else {
			notifiers = append(notifiers, en)
		}
	}
	if cfg.Push.AccessKeyID != "" {
		svc, err := push.NewAliyunPushService(cfg.Push)
		if err != nil {
			log.Warn("init push service failed", zap.Error(err))
		} else {
			notifiers = append(notifiers, notify.NewPushNotifier(svc))
		}
	}

	var (
		publisher events.Publisher
		kafkaPub  *events.KafkaPublisher
	)
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPub = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		publisher = kafkaPub
	}

	var up uploader.Uploader
	if cfg.OSS.BucketName != "" {
		u, err := uploader.NewAliyunOSSUploader(cfg.OSS)
		if err != nil {
			log.Warn("init oss uploader failed", zap.Error(err))
		} else {
			up = u
		}
	}

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(
		gin.Recovery(),
		cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Trace-ID"},
			ExposeHeaders:    []string{"Content-Disposition", "X-Trace-ID"},
			MaxAge:           12 * time.Hour,
			AllowCredentials: false,
		}),
		middleware.TraceMiddleware(),
		middleware.LoggerMiddleware(),
		middleware.MetricsMiddleware(mc),
	)

	if err := registry.InitModules(&registry.ModuleContext{
		DB:         db,
		Redis:      rdb,
		Router:     r,
		Logger:     log,
		Cache:      store,
		Metrics:    mc,
		Dispatcher: dispatcher,
		Shipping:   gateway,
		Notifier:   notifiers,
		Events:     publisher,
		Uploader:   up,
	}); err != nil {
		log.Fatal("init modules failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}

	// 等待队列中的副作用任务执行完
	if workerPool != nil {
		workerPool.Stop()
	}
	if kafkaPub != nil {
		if err := kafkaPub.Close(); err != nil {
			log.Warn("close kafka writer failed", zap.Error(err))
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = rdb.Close()
	log.Info("server exited")
}

package database

import (
	"context"
	"fmt"
	"time"

	"shop_backend/internal/pkg/config"
	"shop_backend/pkg/logger"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PoolOptions 连接池参数
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

var defaultPool = PoolOptions{
	MaxOpenConns:    100,
	MaxIdleConns:    10,
	ConnMaxLifetime: time.Hour,
	ConnMaxIdleTime: 30 * time.Minute,
}

// GormConfig 订单写路径依赖 TranslateError 识别唯一键冲突（订单号重试）
func GormConfig(debug bool) *gorm.Config {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	return &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(level),
		PrepareStmt:                              true,
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
	}
}

// InitDatabase 连接 PostgreSQL 并配置连接池
// 表结构由 cmd/migrate (golang-migrate) 维护，这里不做 AutoMigrate
func InitDatabase(cfg config.DatabaseConfig, debug bool) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode, cfg.TimeZone)

	db, err := gorm.Open(postgres.Open(dsn), GormConfig(debug))
	if err != nil {
		return nil, errors.Wrap(err, "connect database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB")
	}
	sqlDB.SetMaxOpenConns(defaultPool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(defaultPool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(defaultPool.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(defaultPool.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "ping database")
	}

	logger.Log.Info("database connected",
		zap.String("host", cfg.Host),
		zap.String("db", cfg.DBName),
		zap.Int("max_open_conns", defaultPool.MaxOpenConns),
	)
	return db, nil
}

// DSN 供 golang-migrate 使用的连接串
func DSN(cfg config.DatabaseConfig) string {
	return "postgres://" + cfg.User + ":" + cfg.Password + "@" + cfg.Host + ":" + cfg.Port + "/" + cfg.DBName + "?sslmode=" + cfg.SSLMode
}

package database

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop_backend/internal/pkg/config"
)

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := InitRedis(config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	mr.Close()
	_, err = InitRedis(config.RedisConfig{Addr: mr.Addr()})
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{User: "shop", Password: "pw", Host: "db", Port: "5432", DBName: "orders", SSLMode: "disable"})
	assert.Equal(t, "postgres://shop:pw@db:5432/orders?sslmode=disable", dsn)
}

func TestGormConfigTranslatesErrors(t *testing.T) {
	assert.True(t, GormConfig(false).TranslateError)
	assert.True(t, GormConfig(true).PrepareStmt)
}

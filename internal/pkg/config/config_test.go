package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Database = DatabaseConfig{Host: "localhost", User: "shop", DBName: "shop"}
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := validConfig()

	assert.Equal(t, 249.0, cfg.Pricing.SubscriptionDiscount)
	assert.Equal(t, 999.0, cfg.Pricing.TaxThreshold)
	assert.Equal(t, 5.0, cfg.Pricing.LowTaxRate)
	assert.Equal(t, 12.0, cfg.Pricing.HighTaxRate)
	assert.False(t, cfg.Pricing.CountCouponRedemptions)
	assert.Equal(t, 10*time.Second, cfg.Shipping.Timeout)
	assert.Equal(t, 3, cfg.Worker.MaxRetry)
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg := validConfig()
		require.NoError(t, cfg.Validate())
	})

	t.Run("short jwt secret", func(t *testing.T) {
		cfg := validConfig()
		cfg.JWT.Secret = "short"
		assert.Error(t, cfg.Validate())
	})

	t.Run("shipping enabled without credentials", func(t *testing.T) {
		cfg := validConfig()
		cfg.Shipping.Enabled = true
		assert.EqualError(t, cfg.Validate(), "shipping credentials are required when shipping is enabled")
	})
}

package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/channelkit/core/config"
)

type layerTestConfig struct {
	Capacity int           `env:"TEST_CHANNEL_CAPACITY" envDefault:"100"`
	Expiry   time.Duration `env:"TEST_CHANNEL_EXPIRY" envDefault:"60s"`
}

type requiredTestConfig struct {
	URL string `env:"TEST_REQUIRED_URL,required"`
}

func TestLoad(t *testing.T) {
	t.Run("applies defaults and env overrides", func(t *testing.T) {
		t.Setenv("TEST_CHANNEL_CAPACITY", "7")

		var cfg layerTestConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, 7, cfg.Capacity)
		assert.Equal(t, 60*time.Second, cfg.Expiry)
	})

	t.Run("caches per type", func(t *testing.T) {
		// The first subtest already populated the cache; changing the
		// environment must not change the loaded value.
		t.Setenv("TEST_CHANNEL_CAPACITY", "9999")

		var cfg layerTestConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, 7, cfg.Capacity)
	})

	t.Run("rejects non-pointer targets", func(t *testing.T) {
		assert.Error(t, config.Load(layerTestConfig{}))
		assert.Error(t, config.Load(nil))
	})

	t.Run("missing required variable fails", func(t *testing.T) {
		var cfg requiredTestConfig
		assert.Error(t, config.Load(&cfg))
	})
}

func TestMustLoad(t *testing.T) {
	t.Run("panics on failure", func(t *testing.T) {
		assert.Panics(t, func() {
			config.MustLoad(struct{}{})
		})
	})
}

package channel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/channelkit/core/channel"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := channel.DefaultConfig()

	assert.Equal(t, 100, cfg.Capacity)
	assert.Equal(t, 60*time.Second, cfg.Expiry)
	assert.Equal(t, 24*time.Hour, cfg.GroupExpiry)
	assert.Equal(t, 5*time.Minute, cfg.Retention)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "!", cfg.NameSeparator)
}

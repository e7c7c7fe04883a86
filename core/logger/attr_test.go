package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/channelkit/core/logger"
)

func TestError(t *testing.T) {
	t.Parallel()

	t.Run("nil error yields empty attr", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, slog.Attr{}, logger.Error(nil))
	})

	t.Run("non-nil error is keyed under error", func(t *testing.T) {
		t.Parallel()
		attr := logger.Error(errors.New("boom"))
		assert.Equal(t, "error", attr.Key)
	})
}

func TestDomainAttrs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.Attr{}, logger.Channel(""))
	assert.Equal(t, "channel", logger.Channel("orders").Key)
	assert.Equal(t, slog.Attr{}, logger.Group(""))
	assert.Equal(t, "group", logger.Group("room").Key)
	assert.Equal(t, slog.Attr{}, logger.Component(""))
	assert.Equal(t, "count", logger.Count("count", 3).Key)
	assert.Equal(t, "duration", logger.Duration(time.Second).Key)
}

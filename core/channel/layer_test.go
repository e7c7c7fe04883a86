package channel_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/channelkit/core/channel"
)

func newTestLayer(t *testing.T, opts ...channel.Option) *channel.Layer {
	t.Helper()
	layer, err := channel.New(opts...)
	require.NoError(t, err)
	return layer
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("creates layer with defaults", func(t *testing.T) {
		t.Parallel()

		layer, err := channel.New()
		require.NoError(t, err)
		require.NotNil(t, layer)
	})

	t.Run("rejects invalid capacity from config", func(t *testing.T) {
		t.Parallel()

		cfg := channel.DefaultConfig()
		cfg.Capacity = 0
		layer, err := channel.NewFromConfig(cfg)
		assert.ErrorIs(t, err, channel.ErrInvalidCapacity)
		assert.Nil(t, layer)
	})

	t.Run("rejects non-positive expiry from config", func(t *testing.T) {
		t.Parallel()

		cfg := channel.DefaultConfig()
		cfg.Expiry = 0
		layer, err := channel.NewFromConfig(cfg)
		assert.ErrorIs(t, err, channel.ErrInvalidExpiry)
		assert.Nil(t, layer)
	})

	t.Run("options ignore zero values", func(t *testing.T) {
		t.Parallel()

		layer, err := channel.New(
			channel.WithCapacity(0),
			channel.WithExpiry(0),
			channel.WithLogger(nil),
		)
		require.NoError(t, err)
		require.NotNil(t, layer)
	})
}

func TestLayer_SendReceive(t *testing.T) {
	t.Parallel()

	t.Run("fifo within a channel", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			require.NoError(t, layer.Send(ctx, "orders", channel.Message{"seq": i}))
		}

		for i := 0; i < 5; i++ {
			msg, ok, err := layer.Receive(ctx, "orders", time.Second)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, float64(i), msg["seq"])
		}
	})

	t.Run("round trip preserves payload", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)
		ctx := context.Background()

		sent := channel.Message{
			"text":   "hello",
			"count":  float64(3),
			"flag":   true,
			"nested": map[string]any{"items": []any{float64(1), "two"}},
		}
		require.NoError(t, layer.Send(ctx, "roundtrip", sent))

		got, ok, err := layer.Receive(ctx, "roundtrip", time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, sent, got)
	})

	t.Run("received message does not alias the sent one", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)
		ctx := context.Background()

		sent := channel.Message{"key": "original"}
		require.NoError(t, layer.Send(ctx, "aliasing", sent))
		sent["key"] = "mutated-after-send"

		got, ok, err := layer.Receive(ctx, "aliasing", time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "original", got["key"])
	})

	t.Run("receive blocks until a send arrives", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)
		ctx := context.Background()

		done := make(chan channel.Message, 1)
		go func() {
			msg, ok, err := layer.Receive(ctx, "handoff", 5*time.Second)
			if err == nil && ok {
				done <- msg
			}
			close(done)
		}()

		time.Sleep(20 * time.Millisecond)
		require.NoError(t, layer.Send(ctx, "handoff", channel.Message{"v": "late"}))

		select {
		case msg := <-done:
			assert.Equal(t, "late", msg["v"])
		case <-time.After(2 * time.Second):
			t.Fatal("receiver was never woken")
		}
	})

	t.Run("empty result after timeout is not an error", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)

		msg, ok, err := layer.Receive(context.Background(), "silent", 30*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, msg)
	})

	t.Run("cancellation releases a blocked receiver", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)
		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() {
			_, _, err := layer.Receive(ctx, "cancelled", 0)
			errCh <- err
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("cancellation did not release the receiver")
		}

		// The waiter registry must be clean: a later send/receive pair
		// still works on the same channel.
		require.NoError(t, layer.Send(context.Background(), "cancelled", channel.Message{"v": 1}))
		_, ok, err := layer.Receive(context.Background(), "cancelled", time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("rejects invalid channel names", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)
		ctx := context.Background()

		for _, name := range []string{"", "has space", "semi;colon", strings.Repeat("x", 120)} {
			err := layer.Send(ctx, name, channel.Message{})
			assert.ErrorIs(t, err, channel.ErrInvalidChannelName, "name %q", name)

			_, _, err = layer.Receive(ctx, name, time.Millisecond)
			assert.ErrorIs(t, err, channel.ErrInvalidChannelName, "name %q", name)
		}
	})

	t.Run("rejects reserved message key", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)

		err := layer.Send(context.Background(), "reserved", channel.Message{
			channel.DeliveryChannelKey: "sneaky",
		})
		assert.ErrorIs(t, err, channel.ErrReservedMessageKey)
	})

	t.Run("rejects non-serializable payload", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)

		err := layer.Send(context.Background(), "unserializable", channel.Message{
			"fn": func() {},
		})
		assert.ErrorIs(t, err, channel.ErrNotSerializable)
	})
}

func TestLayer_Capacity(t *testing.T) {
	t.Parallel()

	t.Run("send beyond capacity fails and recovers after receive", func(t *testing.T) {
		t.Parallel()

		const capacity = 3
		layer := newTestLayer(t, channel.WithCapacity(capacity))
		ctx := context.Background()

		for i := 0; i < capacity; i++ {
			require.NoError(t, layer.Send(ctx, "bounded", channel.Message{"seq": i}))
		}

		err := layer.Send(ctx, "bounded", channel.Message{"seq": capacity})
		assert.ErrorIs(t, err, channel.ErrChannelFull)

		_, ok, err := layer.Receive(ctx, "bounded", time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		assert.NoError(t, layer.Send(ctx, "bounded", channel.Message{"seq": capacity}))
	})

	t.Run("expired entries free capacity", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t, channel.WithCapacity(1))
		ctx := context.Background()

		require.NoError(t, layer.SendWithExpiry(ctx, "expiring", channel.Message{"v": 1}, 20*time.Millisecond))
		time.Sleep(50 * time.Millisecond)

		assert.NoError(t, layer.Send(ctx, "expiring", channel.Message{"v": 2}))
	})

	t.Run("per-channel capacity override", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t,
			channel.WithCapacity(100),
			channel.WithChannelCapacity("narrow-*", 1),
		)
		ctx := context.Background()

		require.NoError(t, layer.Send(ctx, "narrow-alerts", channel.Message{"v": 1}))
		err := layer.Send(ctx, "narrow-alerts", channel.Message{"v": 2})
		assert.ErrorIs(t, err, channel.ErrChannelFull)

		// Channels outside the pattern keep the default capacity.
		require.NoError(t, layer.Send(ctx, "wide-alerts", channel.Message{"v": 1}))
		assert.NoError(t, layer.Send(ctx, "wide-alerts", channel.Message{"v": 2}))
	})
}

func TestLayer_Expiry(t *testing.T) {
	t.Parallel()

	t.Run("expired message is never delivered", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)
		ctx := context.Background()

		require.NoError(t, layer.SendWithExpiry(ctx, "short-lived", channel.Message{"v": 1}, 10*time.Millisecond))
		time.Sleep(40 * time.Millisecond)

		msg, ok, err := layer.Receive(ctx, "short-lived", 20*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, msg)
	})

	t.Run("zero expiry entry is dropped at first access", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)
		ctx := context.Background()

		require.NoError(t, layer.SendWithExpiry(ctx, "stillborn", channel.Message{"v": 1}, 0))

		_, ok, err := layer.Receive(ctx, "stillborn", 20*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("live entries behind expired ones are still delivered in order", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)
		ctx := context.Background()

		require.NoError(t, layer.SendWithExpiry(ctx, "mixed", channel.Message{"v": "dead"}, 10*time.Millisecond))
		require.NoError(t, layer.Send(ctx, "mixed", channel.Message{"v": "first"}))
		require.NoError(t, layer.Send(ctx, "mixed", channel.Message{"v": "second"}))
		time.Sleep(30 * time.Millisecond)

		msg, ok, err := layer.Receive(ctx, "mixed", time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "first", msg["v"])

		msg, ok, err = layer.Receive(ctx, "mixed", time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "second", msg["v"])
	})
}

func TestLayer_NewChannel(t *testing.T) {
	t.Parallel()

	t.Run("names are unique and carry the prefix", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)

		seen := make(map[string]struct{}, 10000)
		for i := 0; i < 10000; i++ {
			name, err := layer.NewChannel("reply")
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(name, "reply!"), "name %q", name)

			_, dup := seen[name]
			require.False(t, dup, "duplicate name %q", name)
			seen[name] = struct{}{}
		}
	})

	t.Run("empty prefix defaults", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)

		name, err := layer.NewChannel("")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(name, "specific!"))
	})

	t.Run("generated names are usable channels", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)
		ctx := context.Background()

		name, err := layer.NewChannel("reply")
		require.NoError(t, err)

		require.NoError(t, layer.Send(ctx, name, channel.Message{"v": "pong"}))
		msg, ok, err := layer.Receive(ctx, name, time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "pong", msg["v"])
	})

	t.Run("prefix containing the separator is rejected", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)

		_, err := layer.NewChannel("bad!prefix")
		assert.ErrorIs(t, err, channel.ErrInvalidChannelName)
	})

	t.Run("custom separator names round-trip through send and receive", func(t *testing.T) {
		t.Parallel()

		cfg := channel.DefaultConfig()
		cfg.NameSeparator = "@"
		layer, err := channel.NewFromConfig(cfg)
		require.NoError(t, err)
		ctx := context.Background()

		name, err := layer.NewChannel("reply")
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(name, "reply@"), "name %q", name)

		require.NoError(t, layer.Send(ctx, name, channel.Message{"v": "pong"}))
		msg, ok, err := layer.Receive(ctx, name, time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "pong", msg["v"])

		// The default separator is no longer part of the name grammar.
		err = layer.Send(ctx, "reply!suffix", channel.Message{})
		assert.ErrorIs(t, err, channel.ErrInvalidChannelName)
	})

	t.Run("prefix leaving no room for the suffix is rejected", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)
		ctx := context.Background()

		_, err := layer.NewChannel(strings.Repeat("x", 80))
		assert.ErrorIs(t, err, channel.ErrInvalidChannelName)

		// The longest usable prefix still yields a name Send accepts.
		name, err := layer.NewChannel(strings.Repeat("x", 66))
		require.NoError(t, err)
		require.NoError(t, layer.Send(ctx, name, channel.Message{"v": 1}))
	})

	t.Run("non-local name strips the process suffix", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)

		name, err := layer.NewChannel("reply")
		require.NoError(t, err)
		assert.Equal(t, "reply!", layer.NonLocalName(name))
		assert.Equal(t, "orders", layer.NonLocalName("orders"))
	})
}

func TestLayer_Groups(t *testing.T) {
	t.Parallel()

	t.Run("fan-out delivers one copy per member", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)
		ctx := context.Background()

		require.NoError(t, layer.GroupAdd("room", "member-a"))
		require.NoError(t, layer.GroupAdd("room", "member-b"))
		require.NoError(t, layer.GroupAdd("room", "member-c"))

		report, err := layer.GroupSend(ctx, "room", channel.Message{"v": "broadcast"})
		require.NoError(t, err)
		assert.Equal(t, 3, report.Sent)
		assert.Equal(t, 0, report.Failed)

		for _, member := range []string{"member-a", "member-b", "member-c"} {
			msg, ok, err := layer.Receive(ctx, member, time.Second)
			require.NoError(t, err)
			require.True(t, ok, "member %s got no message", member)
			assert.Equal(t, "broadcast", msg["v"])

			// Exactly one copy.
			_, ok, err = layer.Receive(ctx, member, 10*time.Millisecond)
			require.NoError(t, err)
			assert.False(t, ok)
		}
	})

	t.Run("full member does not abort the broadcast", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t, channel.WithCapacity(1))
		ctx := context.Background()

		require.NoError(t, layer.GroupAdd("room", "full-member"))
		require.NoError(t, layer.GroupAdd("room", "free-member"))
		require.NoError(t, layer.Send(ctx, "full-member", channel.Message{"v": "filler"}))

		report, err := layer.GroupSend(ctx, "room", channel.Message{"v": "broadcast"})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Sent)
		assert.Equal(t, 1, report.Failed)

		msg, ok, err := layer.Receive(ctx, "free-member", time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "broadcast", msg["v"])
	})

	t.Run("membership is idempotent and discard removes it", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)
		ctx := context.Background()

		require.NoError(t, layer.GroupAdd("g", "c"))
		require.NoError(t, layer.GroupAdd("g", "c"))
		require.NoError(t, layer.GroupDiscard("g", "c"))

		report, err := layer.GroupSend(ctx, "g", channel.Message{"v": 1})
		require.NoError(t, err)
		assert.Equal(t, 0, report.Sent)
		assert.Equal(t, 0, report.Failed)
	})

	t.Run("discard of absent membership is a no-op", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)
		assert.NoError(t, layer.GroupDiscard("nobody", "nothing"))
	})

	t.Run("memberships expire", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t, channel.WithGroupExpiry(20*time.Millisecond))
		ctx := context.Background()

		require.NoError(t, layer.GroupAdd("fleeting", "member"))
		time.Sleep(50 * time.Millisecond)

		report, err := layer.GroupSend(ctx, "fleeting", channel.Message{"v": 1})
		require.NoError(t, err)
		assert.Equal(t, 0, report.Sent)
	})

	t.Run("re-adding refreshes membership expiry", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t, channel.WithGroupExpiry(60*time.Millisecond))
		ctx := context.Background()

		require.NoError(t, layer.GroupAdd("refreshed", "member"))
		time.Sleep(40 * time.Millisecond)
		require.NoError(t, layer.GroupAdd("refreshed", "member"))
		time.Sleep(40 * time.Millisecond)

		report, err := layer.GroupSend(ctx, "refreshed", channel.Message{"v": 1})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Sent)
	})

	t.Run("rejects invalid group names", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)

		assert.ErrorIs(t, layer.GroupAdd("", "c"), channel.ErrInvalidGroupName)
		assert.ErrorIs(t, layer.GroupAdd("has!separator", "c"), channel.ErrInvalidGroupName)
		_, err := layer.GroupSend(context.Background(), "bad name", channel.Message{})
		assert.ErrorIs(t, err, channel.ErrInvalidGroupName)
	})
}

func TestLayer_ConcurrentSenders(t *testing.T) {
	t.Parallel()

	const senders = 32
	layer := newTestLayer(t, channel.WithCapacity(senders))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_ = layer.Send(ctx, "contested", channel.Message{"sender": fmt.Sprintf("s-%d", id)})
		}(i)
	}
	wg.Wait()

	got := make(map[string]int, senders)
	for i := 0; i < senders; i++ {
		msg, ok, err := layer.Receive(ctx, "contested", time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		got[msg["sender"].(string)]++
	}

	// No duplication, no loss: every sender's message exactly once.
	require.Len(t, got, senders)
	for sender, count := range got {
		assert.Equal(t, 1, count, "sender %s", sender)
	}

	_, ok, err := layer.Receive(ctx, "contested", 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLayer_Flush(t *testing.T) {
	t.Parallel()

	t.Run("clears channels and groups", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)
		ctx := context.Background()

		require.NoError(t, layer.Send(ctx, "pending", channel.Message{"v": 1}))
		require.NoError(t, layer.GroupAdd("room", "pending"))

		layer.Flush()

		_, ok, err := layer.Receive(ctx, "pending", 10*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, ok)

		stats := layer.Stats()
		assert.Equal(t, 0, stats.Groups)
	})

	t.Run("wakes blocked receivers with an empty result", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)

		done := make(chan bool, 1)
		go func() {
			_, ok, _ := layer.Receive(context.Background(), "flushed", 5*time.Second)
			done <- ok
		}()

		time.Sleep(20 * time.Millisecond)
		layer.Flush()

		select {
		case ok := <-done:
			assert.False(t, ok)
		case <-time.After(2 * time.Second):
			t.Fatal("flush did not wake the receiver")
		}
	})

	t.Run("layer is usable after flush", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t)
		ctx := context.Background()

		require.NoError(t, layer.Send(ctx, "reborn", channel.Message{"v": 1}))
		layer.Flush()
		require.NoError(t, layer.Send(ctx, "reborn", channel.Message{"v": 2}))

		msg, ok, err := layer.Receive(ctx, "reborn", time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, float64(2), msg["v"])
	})
}

func TestLayer_Lifecycle(t *testing.T) {
	t.Parallel()

	t.Run("sweeper reaps idle channels and reports health", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t,
			channel.WithSweepInterval(10*time.Millisecond),
			channel.WithRetention(time.Millisecond),
		)
		ctx := context.Background()

		require.Error(t, layer.Healthcheck(ctx))

		go func() { _ = layer.Start(ctx) }()
		defer func() { _ = layer.Stop() }()

		require.Eventually(t, func() bool {
			return layer.Healthcheck(ctx) == nil
		}, time.Second, 5*time.Millisecond)

		// Drain a channel, then let it decay.
		require.NoError(t, layer.Send(ctx, "ephemeral", channel.Message{"v": 1}))
		_, ok, err := layer.Receive(ctx, "ephemeral", time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		require.Eventually(t, func() bool {
			return layer.Stats().Channels == 0
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("double start fails, stop without start fails", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t, channel.WithSweepInterval(10*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go func() { _ = layer.Start(ctx) }()
		require.Eventually(t, func() bool {
			return layer.Stats().IsRunning
		}, time.Second, 5*time.Millisecond)

		assert.Error(t, layer.Start(ctx))
		require.NoError(t, layer.Stop())
		assert.Error(t, layer.Stop())
	})

	t.Run("run returns nil on context cancellation", func(t *testing.T) {
		t.Parallel()

		layer := newTestLayer(t, channel.WithSweepInterval(10*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() { errCh <- layer.Run(ctx)() }()

		require.Eventually(t, func() bool {
			return layer.Stats().IsRunning
		}, time.Second, 5*time.Millisecond)
		cancel()

		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("run did not return after cancellation")
		}
	})
}

func TestLayer_Stats(t *testing.T) {
	t.Parallel()

	layer := newTestLayer(t, channel.WithCapacity(1))
	ctx := context.Background()

	require.NoError(t, layer.Send(ctx, "metered", channel.Message{"v": 1}))
	require.ErrorIs(t, layer.Send(ctx, "metered", channel.Message{"v": 2}), channel.ErrChannelFull)

	_, ok, err := layer.Receive(ctx, "metered", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	stats := layer.Stats()
	assert.Equal(t, int64(1), stats.MessagesSent)
	assert.Equal(t, int64(1), stats.MessagesDelivered)
	assert.Equal(t, int64(1), stats.CapacityRejections)
	assert.Equal(t, 1, stats.Channels)
	assert.False(t, stats.IsRunning)
}

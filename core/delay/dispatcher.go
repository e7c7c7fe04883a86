package delay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/channelkit/core/channel"
	"github.com/dmitrymomot/channelkit/core/logger"
)

// ChannelLayer is the narrow slice of the channel layer the dispatcher needs.
// *channel.Layer satisfies it; so would an out-of-process backend.
type ChannelLayer interface {
	Send(ctx context.Context, name string, msg channel.Message) error
	Receive(ctx context.Context, name string, timeout time.Duration) (channel.Message, bool, error)
}

// Dispatcher is the delay server: it accepts delay requests on a well-known
// intake channel, persists them, and redelivers each message to its target
// channel when due. One-shot messages are deleted after firing; interval
// messages are rescheduled.
type Dispatcher struct {
	id      uuid.UUID
	layer   ChannelLayer
	storage Storage
	logger  *slog.Logger

	intakeChannel string
	pollInterval  time.Duration
	batchSize     int

	// State management
	mu              sync.Mutex
	ctx             context.Context
	cancel          context.CancelFunc
	running         atomic.Bool
	wg              sync.WaitGroup
	shutdownTimeout time.Duration

	// Observability metrics
	accepted      atomic.Int64
	invalid       atomic.Int64
	delivered     atomic.Int64
	rescheduled   atomic.Int64
	deliveryFails atomic.Int64
}

// DispatcherStats provides observability metrics for monitoring and debugging.
type DispatcherStats struct {
	Accepted      int64 // Delay requests accepted from the intake channel
	Invalid       int64 // Malformed intake messages dropped
	Delivered     int64 // Due messages redelivered to their target channel
	Rescheduled   int64 // Firings of interval messages plus full-channel retries
	DeliveryFails int64 // Redeliveries rejected because the target was full
	IsRunning     bool  // Whether the dispatch loop is running
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithIntakeChannel sets the channel delay requests arrive on.
func WithIntakeChannel(name string) DispatcherOption {
	return func(d *Dispatcher) {
		if name != "" {
			d.intakeChannel = name
		}
	}
}

// WithPollInterval sets how often storage is checked for due messages.
func WithPollInterval(interval time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// WithBatchSize caps how many due messages are dispatched per poll.
func WithBatchSize(size int) DispatcherOption {
	return func(d *Dispatcher) {
		if size > 0 {
			d.batchSize = size
		}
	}
}

// WithShutdownTimeout sets the graceful shutdown timeout.
func WithShutdownTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.shutdownTimeout = timeout
		}
	}
}

// WithDispatcherLogger sets the logger for internal operations.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a delay dispatcher over the given layer and storage.
func NewDispatcher(layer ChannelLayer, storage Storage, opts ...DispatcherOption) (*Dispatcher, error) {
	if layer == nil {
		return nil, ErrLayerNil
	}
	if storage == nil {
		return nil, ErrStorageNil
	}

	d := &Dispatcher{
		id:              uuid.New(),
		layer:           layer,
		storage:         storage,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		intakeChannel:   DefaultIntakeChannel,
		pollInterval:    time.Second,
		batchSize:       100,
		shutdownTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// NewDispatcherFromConfig creates a Dispatcher from configuration.
// Additional options override config values.
func NewDispatcherFromConfig(cfg Config, layer ChannelLayer, storage Storage, opts ...DispatcherOption) (*Dispatcher, error) {
	allOpts := append([]DispatcherOption{
		WithIntakeChannel(cfg.IntakeChannel),
		WithPollInterval(cfg.PollInterval),
		WithBatchSize(cfg.BatchSize),
		WithShutdownTimeout(cfg.ShutdownTimeout),
	}, opts...)

	return NewDispatcher(layer, storage, allOpts...)
}

// Start begins the dispatch loop. This is a blocking operation that runs
// until the context is cancelled. Use Run() for errgroup pattern or call this
// in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.cancel != nil {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already started")
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()

	d.running.Store(true)
	defer d.running.Store(false)

	d.logger.InfoContext(d.ctx, "delay dispatcher started",
		slog.String("dispatcher_id", d.id.String()),
		slog.String("intake_channel", d.intakeChannel),
		slog.Duration("poll_interval", d.pollInterval))

	for {
		select {
		case <-d.ctx.Done():
			d.logger.InfoContext(context.Background(), "delay dispatcher stopping")
			return d.ctx.Err()
		default:
		}
		d.tickWithWait()
	}
}

// Stop gracefully shuts down the dispatch loop with a timeout.
// Returns an error if the shutdown timeout is exceeded.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if d.cancel == nil {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher not started")
	}
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), d.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("delay dispatcher stopped cleanly")
		return nil
	case <-ctx.Done():
		d.logger.Warn("delay dispatcher shutdown timeout exceeded",
			slog.Duration("timeout", d.shutdownTimeout))
		return fmt.Errorf("shutdown timeout exceeded after %s", d.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (d *Dispatcher) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- d.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = d.Stop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// tickWithWait wraps one loop iteration with WaitGroup tracking for graceful
// shutdown.
func (d *Dispatcher) tickWithWait() {
	d.mu.Lock()
	if d.cancel == nil {
		d.mu.Unlock()
		return
	}
	ctx := d.ctx
	d.wg.Add(1)
	d.mu.Unlock()

	defer d.wg.Done()
	d.intake(ctx)
	d.dispatchDue(ctx)
}

// intake waits up to one poll interval for a delay request and persists it.
// Malformed requests are logged and dropped; a bad producer must not stall
// the dispatch loop. A receive error is logged and followed by a one-poll
// pause: errors such as a misconfigured intake channel fail immediately
// rather than after the receive timeout, and without the pause the loop
// would spin at full speed against the layer and storage.
func (d *Dispatcher) intake(ctx context.Context) {
	msg, ok, err := d.layer.Receive(ctx, d.intakeChannel, d.pollInterval)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		d.logger.ErrorContext(ctx, "failed to receive on intake channel",
			slog.String("intake_channel", d.intakeChannel),
			logger.Error(err))
		select {
		case <-ctx.Done():
		case <-time.After(d.pollInterval):
		}
		return
	}
	if !ok {
		return
	}

	req, err := parseRequest(msg, time.Now())
	if err != nil {
		d.invalid.Add(1)
		d.logger.ErrorContext(ctx, "dropping invalid delay request",
			logger.Error(err))
		return
	}

	if err := d.storage.CreateMessage(ctx, req); err != nil {
		d.logger.ErrorContext(ctx, "failed to store delayed message",
			slog.String("message_id", req.ID.String()),
			logger.Error(err))
		return
	}

	d.accepted.Add(1)
	d.logger.DebugContext(ctx, "delay request accepted",
		slog.String("message_id", req.ID.String()),
		logger.Channel(req.Channel),
		slog.Time("due_at", req.DueAt))
}

// dispatchDue redelivers every due message. A full target channel is not
// fatal: the message is pushed back one poll interval and retried, so a slow
// consumer delays its own messages without losing them.
func (d *Dispatcher) dispatchDue(ctx context.Context) {
	now := time.Now()
	due, err := d.storage.ClaimDue(ctx, now, d.batchSize)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to load due messages", logger.Error(err))
		return
	}

	for _, msg := range due {
		d.fire(ctx, msg, now)
	}
}

func (d *Dispatcher) fire(ctx context.Context, msg *DelayedMessage, now time.Time) {
	var content channel.Message
	if err := json.Unmarshal(msg.Content, &content); err != nil {
		d.logger.ErrorContext(ctx, "dropping delayed message with corrupt content",
			slog.String("message_id", msg.ID.String()),
			logger.Error(err))
		_ = d.storage.DeleteMessage(ctx, msg.ID)
		return
	}

	if err := d.layer.Send(ctx, msg.Channel, content); err != nil {
		if errors.Is(err, channel.ErrChannelFull) {
			d.deliveryFails.Add(1)
			d.rescheduled.Add(1)
			if rerr := d.storage.Reschedule(ctx, msg.ID, now.Add(d.pollInterval), now); rerr != nil {
				d.logger.ErrorContext(ctx, "failed to reschedule after full channel",
					slog.String("message_id", msg.ID.String()),
					logger.Error(rerr))
			}
			return
		}
		d.logger.ErrorContext(ctx, "failed to redeliver delayed message",
			slog.String("message_id", msg.ID.String()),
			logger.Channel(msg.Channel),
			logger.Error(err))
		return
	}

	d.delivered.Add(1)
	d.logger.DebugContext(ctx, "delayed message delivered",
		slog.String("message_id", msg.ID.String()),
		logger.Channel(msg.Channel))

	if nextDue, repeats := msg.NextDue(now); repeats {
		d.rescheduled.Add(1)
		if err := d.storage.Reschedule(ctx, msg.ID, nextDue, now); err != nil {
			d.logger.ErrorContext(ctx, "failed to reschedule interval message",
				slog.String("message_id", msg.ID.String()),
				logger.Error(err))
		}
		return
	}

	if err := d.storage.DeleteMessage(ctx, msg.ID); err != nil {
		d.logger.ErrorContext(ctx, "failed to delete fired message",
			slog.String("message_id", msg.ID.String()),
			logger.Error(err))
	}
}

// Stats returns current dispatcher statistics for observability and
// monitoring. This method is thread-safe and can be called at any time.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Accepted:      d.accepted.Load(),
		Invalid:       d.invalid.Load(),
		Delivered:     d.delivered.Load(),
		Rescheduled:   d.rescheduled.Load(),
		DeliveryFails: d.deliveryFails.Load(),
		IsRunning:     d.running.Load(),
	}
}

// Healthcheck validates that the dispatch loop is running and storage is
// reachable. Returns nil if healthy, or an error describing the health issue.
func (d *Dispatcher) Healthcheck(ctx context.Context) error {
	if !d.running.Load() {
		return fmt.Errorf("delay dispatcher is not running")
	}
	if _, err := d.storage.CountPending(ctx); err != nil {
		return fmt.Errorf("delay storage unreachable: %w", err)
	}
	return nil
}

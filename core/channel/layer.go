package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/channelkit/core/logger"
)

// DeliveryReport aggregates the outcome of a group fan-out. Failed counts
// members whose channel was at capacity; their failure never aborts delivery
// to the rest of the group.
type DeliveryReport struct {
	Sent   int
	Failed int
}

// LayerStats provides observability metrics for monitoring and debugging.
type LayerStats struct {
	Channels           int   // Current number of channels with a queue
	Groups             int   // Current number of groups with members
	MessagesSent       int64 // Total successful sends, including fan-out deliveries
	MessagesDelivered  int64 // Total messages handed to receivers
	MessagesExpired    int64 // Total entries dropped by expiry
	CapacityRejections int64 // Total sends rejected with ErrChannelFull
	ChannelsReaped     int64 // Total idle channels decayed by the sweeper
	IsRunning          bool  // Whether the background sweeper is running
}

// Layer is an in-process, capacity-bounded, expiry-aware channel layer: a
// publish/receive bus decoupling protocol front ends from backend workers,
// with group fan-out for one-to-many broadcast.
//
// A Layer is an explicit handle, not a process-wide singleton; tests can hold
// several isolated layers side by side. All methods are safe for concurrent
// use by parallel producers and consumers.
//
// Call Start (or Run with an errgroup) to enable the background sweeper that
// bounds memory for channels nobody is reading; the layer works without it,
// relying on lazy expiry alone.
type Layer struct {
	table       *channelTable
	groups      *groupRegistry
	expiry      time.Duration
	retention   time.Duration
	separator   string
	namePattern *regexp.Regexp
	logger      *slog.Logger

	// State management
	sweepInterval   time.Duration
	shutdownTimeout time.Duration
	mu              sync.Mutex
	ctx             context.Context
	cancel          context.CancelFunc
	running         atomic.Bool
	wg              sync.WaitGroup

	// Observability metrics
	messagesSent       atomic.Int64
	messagesDelivered  atomic.Int64
	messagesExpired    atomic.Int64
	capacityRejections atomic.Int64
	channelsReaped     atomic.Int64
}

// Option configures a Layer.
type Option func(*layerOptions)

type layerOptions struct {
	cfg    Config
	rules  []capacityRule
	logger *slog.Logger
}

// WithCapacity sets the default per-channel capacity.
func WithCapacity(capacity int) Option {
	return func(o *layerOptions) {
		if capacity > 0 {
			o.cfg.Capacity = capacity
		}
	}
}

// WithExpiry sets the default message lifetime.
func WithExpiry(expiry time.Duration) Option {
	return func(o *layerOptions) {
		if expiry > 0 {
			o.cfg.Expiry = expiry
		}
	}
}

// WithGroupExpiry sets the group membership lifetime.
func WithGroupExpiry(expiry time.Duration) Option {
	return func(o *layerOptions) {
		if expiry > 0 {
			o.cfg.GroupExpiry = expiry
		}
	}
}

// WithRetention sets how long empty channels are kept before decaying.
func WithRetention(retention time.Duration) Option {
	return func(o *layerOptions) {
		if retention > 0 {
			o.cfg.Retention = retention
		}
	}
}

// WithSweepInterval sets the background sweeper interval.
func WithSweepInterval(interval time.Duration) Option {
	return func(o *layerOptions) {
		if interval > 0 {
			o.cfg.SweepInterval = interval
		}
	}
}

// WithShutdownTimeout sets the graceful shutdown timeout for Stop.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(o *layerOptions) {
		if timeout > 0 {
			o.cfg.ShutdownTimeout = timeout
		}
	}
}

// WithChannelCapacity overrides the capacity for channels whose names match
// the glob pattern (path.Match syntax). Rules apply in registration order;
// the first match wins. The override binds at queue creation and is immutable
// afterwards, like the default capacity.
func WithChannelCapacity(pattern string, capacity int) Option {
	return func(o *layerOptions) {
		if pattern != "" && capacity > 0 {
			o.rules = append(o.rules, capacityRule{pattern: pattern, capacity: capacity})
		}
	}
}

// WithLogger sets the logger for internal operations.
func WithLogger(logger *slog.Logger) Option {
	return func(o *layerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates a channel layer with default configuration, adjusted by options.
func New(opts ...Option) (*Layer, error) {
	return NewFromConfig(DefaultConfig(), opts...)
}

// NewFromConfig creates a channel layer from configuration. Additional
// options override config values.
func NewFromConfig(cfg Config, opts ...Option) (*Layer, error) {
	o := &layerOptions{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.cfg.Capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	if o.cfg.Expiry <= 0 {
		return nil, ErrInvalidExpiry
	}
	if o.cfg.NameSeparator == "" {
		o.cfg.NameSeparator = DefaultNameSeparator
	}

	return &Layer{
		table:           newChannelTable(o.cfg.Capacity, o.cfg.Expiry, o.rules),
		groups:          newGroupRegistry(o.cfg.GroupExpiry),
		expiry:          o.cfg.Expiry,
		retention:       o.cfg.Retention,
		separator:       o.cfg.NameSeparator,
		namePattern:     channelNamePattern(o.cfg.NameSeparator),
		logger:          o.logger,
		sweepInterval:   o.cfg.SweepInterval,
		shutdownTimeout: o.cfg.ShutdownTimeout,
	}, nil
}

// Send publishes a message onto a channel, creating its queue on first use.
// Returns ErrChannelFull when the channel holds its capacity of live
// messages; the error is a backpressure signal surfaced to the producer
// unchanged, never retried internally.
func (l *Layer) Send(ctx context.Context, channel string, msg Message) error {
	return l.SendWithExpiry(ctx, channel, msg, l.expiry)
}

// SendWithExpiry publishes a message with an explicit lifetime. A zero or
// negative expiry enqueues an entry that is already expired: it occupies a
// capacity slot until the next access but is never delivered.
func (l *Layer) SendWithExpiry(ctx context.Context, channel string, msg Message, expiry time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.validateChannel(channel); err != nil {
		return err
	}
	payload, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	return l.sendEncoded(ctx, channel, payload, expiry)
}

func (l *Layer) sendEncoded(ctx context.Context, channel string, payload []byte, expiry time.Duration) error {
	now := time.Now()
	q, err := l.table.getOrCreate(channel, now)
	if err != nil {
		return err
	}
	if err := q.enqueue(payload, now.Add(expiry), now); err != nil {
		if errors.Is(err, ErrChannelFull) {
			l.capacityRejections.Add(1)
			return fmt.Errorf("%w: %s", ErrChannelFull, channel)
		}
		return err
	}

	l.messagesSent.Add(1)
	l.logger.DebugContext(ctx, "message sent",
		logger.Channel(channel),
		logger.Count("payload_size", len(payload)))
	return nil
}

// Receive returns the first live message that arrives on the channel. It
// blocks until a message is available, the timeout elapses, or ctx is done.
// A timeout of zero waits until ctx is cancelled.
//
// The second return value reports whether a message arrived: false with a nil
// error is the normal "nothing arrived" outcome, not an error. Cancellation
// returns ctx.Err() and leaves no waiter registered on the queue.
func (l *Layer) Receive(ctx context.Context, channel string, timeout time.Duration) (Message, bool, error) {
	if err := l.validateChannel(channel); err != nil {
		return nil, false, err
	}

	q, err := l.table.getOrCreate(channel, time.Now())
	if err != nil {
		return nil, false, err
	}

	payload, ok, err := q.dequeue(ctx, timeout)
	if err != nil || !ok {
		return nil, false, err
	}

	msg, err := decodeMessage(payload)
	if err != nil {
		return nil, false, err
	}
	l.messagesDelivered.Add(1)
	return msg, true, nil
}

// NewChannel returns a fresh process-specific channel name: the prefix, the
// separator, and a random 128-bit suffix. Only the creator plausibly knows
// the full name, which makes it usable as a reply-to address. An empty prefix
// defaults to "specific". The prefix must leave room for the suffix within
// the name length limit, so every generated name is valid for Send and
// Receive.
func (l *Layer) NewChannel(prefix string) (string, error) {
	if prefix == "" {
		prefix = defaultChannelPrefix
	}
	if strings.Contains(prefix, l.separator) {
		return "", fmt.Errorf("%w: prefix %q contains separator", ErrInvalidChannelName, prefix)
	}
	if err := l.validateChannel(prefix); err != nil {
		return "", err
	}
	if len(prefix)+len(l.separator)+suffixHexLen >= MaxNameLength {
		return "", fmt.Errorf("%w: prefix %q leaves no room for the suffix", ErrInvalidChannelName, prefix)
	}

	// Collisions are vanishingly rare at 128 bits; the loop exists so a
	// collision is impossible rather than merely improbable.
	for {
		suffix, err := randomSuffix()
		if err != nil {
			return "", err
		}
		name := prefix + l.separator + suffix
		if !l.table.exists(name) {
			return name, nil
		}
	}
}

// NonLocalName returns the routing prefix of a channel name: everything up to
// and including the separator for process-specific names, the full name
// otherwise. Out-of-process backends route on this prefix while the suffix
// identifies the owning process.
func (l *Layer) NonLocalName(name string) string {
	return nonLocalName(name, l.separator)
}

// GroupAdd adds a channel to a group, refreshing the membership expiry if it
// already exists. Over-long group names are accepted with a warning; they
// usually indicate that per-entity data leaked into the group name.
func (l *Layer) GroupAdd(group, channel string) error {
	if err := l.validateGroup(group); err != nil {
		return err
	}
	if err := l.validateChannel(channel); err != nil {
		return err
	}
	l.groups.add(group, channel, time.Now())
	return nil
}

// GroupDiscard removes a channel from a group. Removing an absent membership
// is a no-op, not an error.
func (l *Layer) GroupDiscard(group, channel string) error {
	if err := l.validateGroup(group); err != nil {
		return err
	}
	if err := l.validateChannel(channel); err != nil {
		return err
	}
	l.groups.discard(group, channel)
	return nil
}

// GroupSend fans a message out to every live member of a group. A full member
// channel counts as a failure in the report but never prevents delivery to
// the remaining members, so one slow consumer cannot stall a broadcast.
// Expired memberships are pruned on the way. Member order is unspecified.
func (l *Layer) GroupSend(ctx context.Context, group string, msg Message) (DeliveryReport, error) {
	if err := l.validateGroup(group); err != nil {
		return DeliveryReport{}, err
	}
	payload, err := encodeMessage(msg)
	if err != nil {
		return DeliveryReport{}, err
	}

	var report DeliveryReport
	for _, member := range l.groups.members(group, time.Now()) {
		err := l.sendEncoded(ctx, member, payload, l.expiry)
		switch {
		case err == nil:
			report.Sent++
		case errors.Is(err, ErrChannelFull):
			report.Failed++
		default:
			return report, err
		}
	}

	if report.Failed > 0 {
		l.logger.DebugContext(ctx, "group fan-out had full members",
			logger.Group(group),
			logger.Count("sent", report.Sent),
			logger.Count("failed", report.Failed))
	}
	return report, nil
}

// Flush clears all channels and groups. Blocked receivers are woken and
// observe the normal empty result. Safe to call concurrently with in-flight
// operations: new operations block only for the duration of the table swap.
// Intended for test isolation.
func (l *Layer) Flush() {
	l.table.flush()
	l.groups.flush()
}

func (l *Layer) validateChannel(name string) error {
	return validateChannelName(name, l.namePattern)
}

func (l *Layer) validateGroup(group string) error {
	if err := validateGroupName(group); err != nil {
		return err
	}
	if len(group) >= MaxNameLength {
		l.logger.Warn("group name exceeds recommended length",
			logger.Group(group),
			logger.Count("length", len(group)))
	}
	return nil
}

// Start begins the background sweeper. This is a blocking operation that runs
// until the context is cancelled. Use Run() for errgroup pattern or call this
// in a goroutine.
func (l *Layer) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		return fmt.Errorf("channel layer already started")
	}
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.mu.Unlock()

	l.running.Store(true)
	defer l.running.Store(false)

	l.logger.InfoContext(l.ctx, "channel layer sweeper started",
		slog.Duration("sweep_interval", l.sweepInterval))

	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			l.logger.InfoContext(context.Background(), "channel layer sweeper stopping")
			return l.ctx.Err()
		case <-ticker.C:
			select {
			case <-l.ctx.Done():
				return l.ctx.Err()
			default:
				l.sweepWithWait()
			}
		}
	}
}

// Stop gracefully shuts down the background sweeper with a timeout.
// Returns an error if the shutdown timeout is exceeded.
func (l *Layer) Stop() error {
	l.mu.Lock()
	if l.cancel == nil {
		l.mu.Unlock()
		return fmt.Errorf("channel layer not started")
	}
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.Info("channel layer stopped cleanly")
		return nil
	case <-ctx.Done():
		l.logger.Warn("channel layer shutdown timeout exceeded",
			slog.Duration("timeout", l.shutdownTimeout))
		return fmt.Errorf("shutdown timeout exceeded after %s", l.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (l *Layer) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- l.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = l.Stop()
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

// sweepWithWait wraps sweep with WaitGroup tracking for graceful shutdown.
func (l *Layer) sweepWithWait() {
	l.mu.Lock()
	if l.cancel == nil {
		l.mu.Unlock()
		return
	}
	l.wg.Add(1)
	l.mu.Unlock()

	defer l.wg.Done()
	l.sweep(time.Now())
}

// sweep is one pass of the periodic maintenance: drop expired entries, expire
// group memberships, and decay idle channels. Reaped channels are removed
// from every group so stale memberships do not accumulate.
func (l *Layer) sweep(now time.Time) {
	expired := l.table.prune(now)
	if expired > 0 {
		l.messagesExpired.Add(int64(expired))
	}

	l.groups.sweep(now)

	reaped := l.table.reap(l.retention, now)
	for _, name := range reaped {
		l.groups.removeChannel(name)
	}
	if len(reaped) > 0 {
		l.channelsReaped.Add(int64(len(reaped)))
		l.logger.Debug("idle channels reaped", logger.Count("count", len(reaped)))
	}
}

// Stats returns current layer statistics for observability and monitoring.
// This method is thread-safe and can be called at any time.
func (l *Layer) Stats() LayerStats {
	return LayerStats{
		Channels:           l.table.len(),
		Groups:             l.groups.len(),
		MessagesSent:       l.messagesSent.Load(),
		MessagesDelivered:  l.messagesDelivered.Load(),
		MessagesExpired:    l.messagesExpired.Load(),
		CapacityRejections: l.capacityRejections.Load(),
		ChannelsReaped:     l.channelsReaped.Load(),
		IsRunning:          l.running.Load(),
	}
}

// Healthcheck validates that the background sweeper is running. Returns nil
// if healthy, or an error describing the health issue.
func (l *Layer) Healthcheck(ctx context.Context) error {
	if !l.running.Load() {
		return fmt.Errorf("channel layer sweeper is not running")
	}
	return nil
}

package channel

import "time"

// Config holds the tunables of an in-memory channel layer.
// Designed for environment-based configuration using popular env parsing libraries.
type Config struct {
	// Capacity is the default per-channel limit on live (non-expired) messages.
	Capacity int `env:"CHANNEL_CAPACITY" envDefault:"100"`

	// Expiry is the default lifetime of a queued message.
	Expiry time.Duration `env:"CHANNEL_EXPIRY" envDefault:"60s"`

	// GroupExpiry is how long a group membership lives without being refreshed
	// by a repeated GroupAdd.
	GroupExpiry time.Duration `env:"CHANNEL_GROUP_EXPIRY" envDefault:"24h"`

	// Retention is how long an empty channel is kept before the reaper drops
	// its queue. Channels decay; they are never explicitly destroyed.
	Retention time.Duration `env:"CHANNEL_RETENTION" envDefault:"5m"`

	// SweepInterval is how often the background sweeper prunes expired
	// messages, expired group memberships, and idle channels.
	SweepInterval time.Duration `env:"CHANNEL_SWEEP_INTERVAL" envDefault:"1m"`

	// ShutdownTimeout bounds how long Stop waits for the sweeper to finish.
	ShutdownTimeout time.Duration `env:"CHANNEL_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// NameSeparator splits the prefix from the random suffix in
	// process-specific channel names.
	NameSeparator string `env:"CHANNEL_NAME_SEPARATOR" envDefault:"!"`
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig() Config {
	return Config{
		Capacity:        100,
		Expiry:          60 * time.Second,
		GroupExpiry:     24 * time.Hour,
		Retention:       5 * time.Minute,
		SweepInterval:   time.Minute,
		ShutdownTimeout: 30 * time.Second,
		NameSeparator:   DefaultNameSeparator,
	}
}

package delay

import "time"

// DefaultIntakeChannel is the well-known channel the dispatcher listens on
// for delay requests.
const DefaultIntakeChannel = "delay"

// Config holds the configuration for the delay dispatcher.
// Designed for environment-based configuration using popular env parsing libraries.
type Config struct {
	// IntakeChannel is the channel delay requests arrive on.
	IntakeChannel string `env:"DELAY_INTAKE_CHANNEL" envDefault:"delay"`

	// PollInterval is how often the dispatcher checks storage for due
	// messages; it doubles as the receive timeout on the intake channel.
	PollInterval time.Duration `env:"DELAY_POLL_INTERVAL" envDefault:"1s"`

	// BatchSize caps how many due messages are dispatched per poll.
	BatchSize int `env:"DELAY_BATCH_SIZE" envDefault:"100"`

	// ShutdownTimeout bounds how long Stop waits for an in-flight poll.
	ShutdownTimeout time.Duration `env:"DELAY_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig() Config {
	return Config{
		IntakeChannel:   DefaultIntakeChannel,
		PollInterval:    time.Second,
		BatchSize:       100,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Package config provides type-safe environment variable loading with caching.
// Each configuration type is loaded once and cached for subsequent calls.
//
// The package automatically loads .env files on first use and uses the
// caarlos0/env library for parsing environment variables into struct fields.
//
// Basic usage:
//
//	import "github.com/dmitrymomot/channelkit/core/config"
//
//	type LayerConfig struct {
//		Capacity int           `env:"CHANNEL_CAPACITY" envDefault:"100"`
//		Expiry   time.Duration `env:"CHANNEL_EXPIRY" envDefault:"60s"`
//	}
//
//	func main() {
//		var cfg LayerConfig
//
//		// Load with error handling
//		if err := config.Load(&cfg); err != nil {
//			log.Fatal(err)
//		}
//
//		// Or panic on failure (useful for startup)
//		config.MustLoad(&cfg)
//	}
//
// # Caching Behavior
//
// Each configuration type is loaded only once per application lifetime;
// later calls for the same type return the cached value. Different types are
// cached independently.
package config

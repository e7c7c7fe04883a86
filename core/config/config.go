package config

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	mu         sync.Mutex
	cache      = make(map[reflect.Type]any)
	dotenvOnce sync.Once
)

// Load parses environment variables into the given struct pointer. The first
// call for a given type reads the environment (and any .env file); later
// calls return the cached value, so every part of the application observes
// the same configuration.
func Load(cfg any) error {
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config target must be a non-nil struct pointer, got %T", cfg)
	}

	dotenvOnce.Do(func() {
		// Missing .env is the normal case outside local development.
		_ = godotenv.Load()
	})

	t := v.Elem().Type()

	mu.Lock()
	defer mu.Unlock()

	if cached, ok := cache[t]; ok {
		v.Elem().Set(reflect.ValueOf(cached))
		return nil
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse environment for %s: %w", t, err)
	}

	cache[t] = v.Elem().Interface()
	return nil
}

// MustLoad is Load that panics on failure, for use during startup.
func MustLoad(cfg any) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}

// Package redis provides Redis client initialization and health checking for
// the Redis-backed delayed message storage.
//
// Connection establishment validates the URL, retries transient failures, and
// verifies connectivity with a ping before returning the client.
//
// # Configuration
//
// All configuration is handled through the Config struct with environment
// variable mapping:
//
//	cfg := redis.Config{}
//	config.MustLoad(&cfg)
//
// # Usage Example
//
//	ctx := context.Background()
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	storage, err := delay.NewRedisStorage(client)
package redis

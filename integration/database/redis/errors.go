package redis

import "errors"

// Connection errors surfaced by Connect and Healthcheck. Check with
// errors.Is; ErrRedisNotReady is the retryable one, the rest indicate a
// configuration problem with the delay storage backend.
var (
	ErrEmptyConnectionURL           = errors.New("redis connection URL is empty")
	ErrFailedToParseRedisConnString = errors.New("redis connection URL is malformed")
	ErrRedisNotReady                = errors.New("redis did not answer ping within the retry budget")
	ErrHealthcheckFailed            = errors.New("redis healthcheck failed")
)

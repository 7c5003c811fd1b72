// Package redis dials the Redis instance backing session state.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Connect dials Redis and verifies the connection with a ping, retrying up to
// attempts times with exponential backoff. attempts is the only retry knob;
// per-command retries after connect stay at the go-redis defaults.
func Connect(ctx context.Context, addr, password string, attempts int, logger *zerolog.Logger) (*redis.Client, error) {
	if attempts <= 0 {
		attempts = 1
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	var err error
	for i := range attempts {
		if i > 0 {
			backoff := time.Duration(1<<uint(i)) * time.Second
			logger.Info().Dur("backoff", backoff).Msg("Waiting before Redis retry")
			time.Sleep(backoff)
		}

		err = client.Ping(ctx).Err()
		if err == nil {
			logger.Info().Str("addr", addr).Int("attempts_needed", i+1).Msg("Redis connected")
			return client, nil
		}
		logger.Warn().Err(err).Int("attempt", i+1).Int("attempts", attempts).Msg("Redis ping failed")
	}

	_ = client.Close()
	return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", attempts, err)
}

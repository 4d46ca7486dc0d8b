package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrDisabled is returned when no Redis address is configured. Callers run
// without the snapshot cache in that case.
var ErrDisabled = errors.New("platform/cache: redis address not configured")

// Options configures the Redis client shared by the snapshot cache and the
// job queue.
type Options struct {
	Addr        string
	Password    string
	DB          int
	PingTimeout time.Duration
}

func (o Options) client() *redis.Options {
	return &redis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  o.pingTimeout(),
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
}

func (o Options) pingTimeout() time.Duration {
	if o.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return o.PingTimeout
}

// New creates a Redis client and verifies connectivity. Cache reads use short
// socket timeouts so a slow Redis degrades to a database read.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, ErrDisabled
	}
	client := redis.NewClient(opts.client())

	ctx, cancel := context.WithTimeout(ctx, opts.pingTimeout())
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultConnectTimeout    = 5 * time.Second
	defaultHealthCheckPeriod = 30 * time.Second
	defaultMaxConnIdleTime   = 5 * time.Minute
)

// PoolConfig tunes the connection pool beyond what the DSN carries. Zero
// values keep pgxpool defaults.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	ApplicationName string
	ConnectTimeout  time.Duration
}

// ParseConfig applies cfg on top of the DSN. Ledger transactions set their own
// lock_timeout, so sessions start without one.
func ParseConfig(dsn string, cfg PoolConfig) (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		config.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		config.MinConns = cfg.MinConns
	}
	if cfg.ApplicationName != "" {
		config.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	config.ConnConfig.ConnectTimeout = timeout
	config.HealthCheckPeriod = defaultHealthCheckPeriod
	config.MaxConnIdleTime = defaultMaxConnIdleTime
	return config, nil
}

// New opens a pool and pings it once.
func New(ctx context.Context, dsn string, cfg PoolConfig) (*pgxpool.Pool, error) {
	config, err := ParseConfig(dsn, cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/db: ping %s: %w", config.ConnConfig.Host, err)
	}
	return pool, nil
}

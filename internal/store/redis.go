package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the client shared by the job queue and the report
// cache. Zero values take the defaults below.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	// Timeout bounds reads and writes. Dialing gets twice as long.
	Timeout time.Duration
}

func (o RedisOptions) client() *redis.Options {
	if o.Addr == "" {
		o.Addr = "localhost:6379"
	}
	if o.PoolSize <= 0 {
		o.PoolSize = 10
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Second
	}
	return &redis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		PoolSize:     o.PoolSize,
		DialTimeout:  2 * o.Timeout,
		ReadTimeout:  o.Timeout,
		WriteTimeout: o.Timeout,
	}
}

// Redis holds the client used for queued roster imports and cached reports.
type Redis struct {
	Client *redis.Client
	addr   string
}

// NewRedis builds the client. It does not dial; use Healthy to check.
func NewRedis(opts RedisOptions) *Redis {
	o := opts.client()
	return &Redis{Client: redis.NewClient(o), addr: o.Addr}
}

// Addr is the server address, for logs.
func (r *Redis) Addr() string {
	if r == nil {
		return ""
	}
	return r.addr
}

// Healthy reports whether redis answers a ping.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

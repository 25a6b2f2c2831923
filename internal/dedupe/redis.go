package dedupe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrEmptyKey = errors.New("dedupe: empty key")

// Deduper claims a message id; only the first claim within the TTL succeeds.
type Deduper interface {
	Claim(ctx context.Context, messageSid string) (first bool, err error)
}

type Options struct {
	Addr     string
	Password string
	Database int
	Prefix   string
	TTL      time.Duration
	Timeout  time.Duration
}

type Redis struct {
	cli    *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Deduper = (*Redis)(nil)

func NewRedis(opt Options) (*Redis, error) {
	if opt.Addr == "" {
		return nil, fmt.Errorf("redis: missing addr")
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 2 * time.Second
	}
	cli := redis.NewClient(&redis.Options{
		Addr:         opt.Addr,
		Password:     opt.Password,
		DB:           opt.Database,
		DialTimeout:  opt.Timeout,
		ReadTimeout:  opt.Timeout,
		WriteTimeout: opt.Timeout,
	})
	return newRedis(cli, opt), nil
}

func newRedis(cli *redis.Client, opt Options) *Redis {
	if opt.Prefix == "" {
		opt.Prefix = "bot-relay:dedupe:msg:"
	}
	if opt.TTL <= 0 {
		opt.TTL = 24 * time.Hour
	}
	return &Redis{cli: cli, prefix: opt.Prefix, ttl: opt.TTL}
}

func (r *Redis) key(messageSid string) string { return r.prefix + messageSid }

// Claim uses SET NX so a re-delivered webhook is dropped.
func (r *Redis) Claim(ctx context.Context, messageSid string) (bool, error) {
	if messageSid == "" {
		return false, ErrEmptyKey
	}
	return r.cli.SetNX(ctx, r.key(messageSid), "1", r.ttl).Result()
}

func (r *Redis) Ping(ctx context.Context) error { return r.cli.Ping(ctx).Err() }

func (r *Redis) Close() error { return r.cli.Close() }

package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const pingTimeout = 2 * time.Second

type Client struct {
	*goredis.Client
}

type Options struct {
	Addr     string
	Password string
	DB       int
}

// New connects and pings the server; the client is closed when the ping fails.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis: missing address")
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}

	return &Client{Client: client}, nil
}

package containers

import (
	"context"
	"fmt"
	"strings"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// RedisContainer wraps testcontainers redis with our specific needs
type RedisContainer struct {
	*tcredis.RedisContainer

	// Addr is host:port, ready for the go-redis client
	Addr string
}

// NewRedisContainer creates a new Redis test container
func NewRedisContainer(ctx context.Context) (*RedisContainer, error) {
	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	uri, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &RedisContainer{
		RedisContainer: redisContainer,
		Addr:           strings.TrimPrefix(uri, "redis://"),
	}, nil
}

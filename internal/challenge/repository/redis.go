package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jobtrackr/backend/internal/challenge/domain"
)

const redisKeyPrefix = "webauthn:challenge:"

// RedisRepository stores challenges as JSON values with a TTL matching their expiry.
type RedisRepository struct {
	client redis.UniversalClient
}

// NewRedisRepository returns a challenge repository backed by client.
func NewRedisRepository(client redis.UniversalClient) *RedisRepository {
	return &RedisRepository{client: client}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

type redisChallenge struct {
	Value       []byte    `json:"v"`
	Purpose     string    `json:"p"`
	ScopeUserID string    `json:"u,omitempty"`
	IssuedAt    time.Time `json:"i"`
	ExpiresAt   time.Time `json:"e"`
}

func (r *RedisRepository) Create(ctx context.Context, c *domain.Challenge) error {
	ttl := time.Until(c.ExpiresAt)
	if ttl <= 0 {
		return errors.New("challenge already expired")
	}
	b, err := json.Marshal(redisChallenge{
		Value: c.Value, Purpose: string(c.Purpose), ScopeUserID: c.ScopeUserID,
		IssuedAt: c.IssuedAt, ExpiresAt: c.ExpiresAt,
	})
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, redisKeyPrefix+c.ID, b, ttl).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

// Take uses GETDEL, which is atomic on the server.
func (r *RedisRepository) Take(ctx context.Context, id string) (*domain.Challenge, error) {
	b, err := r.client.GetDel(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}
	var rc redisChallenge
	if err := json.Unmarshal(b, &rc); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	return &domain.Challenge{
		ID: id, Value: rc.Value, Purpose: domain.Purpose(rc.Purpose), ScopeUserID: rc.ScopeUserID,
		IssuedAt: rc.IssuedAt, ExpiresAt: rc.ExpiresAt,
	}, nil
}

// DeleteExpired is a no-op: redis evicts keys when their TTL lapses.
func (r *RedisRepository) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// Ping reports whether redis is reachable. It backs the readiness check when redis stores challenges.
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

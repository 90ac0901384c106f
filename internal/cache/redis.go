package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	defaultBaseTTL = 15 * time.Minute
	maxJitter      = 5 * time.Minute
	// generationTTL outlives any cart entry written under that generation.
	generationTTL = defaultBaseTTL + maxJitter + time.Hour
)

// setIfCurrent writes KEYS[1] only while KEYS[2] still holds ARGV[1].
var setIfCurrent = redis.NewScript(`
local cur = redis.call('GET', KEYS[2]) or '0'
if cur ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: defaultBaseTTL,
	}
}

type RedisCache struct {
	client  redis.Cmdable
	baseTTL time.Duration
}

var _ CartCache = (*RedisCache)(nil)

func (r *RedisCache) Get(ctx context.Context, userID int64) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}

	return &cart, nil
}

func (r *RedisCache) Generation(ctx context.Context, userID int64) (int64, error) {
	gen, err := r.client.Get(ctx, generationKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation failed: %w", err)
	}
	return gen, nil
}

// Set stores the cart with a jittered TTL so entries written together do not
// expire together.
func (r *RedisCache) Set(ctx context.Context, userID, generation int64, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := r.baseTTL + time.Duration(rand.Int64N(int64(maxJitter)))
	written, err := setIfCurrent.Run(ctx, r.client,
		[]string{cacheKey(userID), generationKey(userID)},
		generation, data, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if written == 0 {
		return ErrStaleGeneration
	}
	return nil
}

// Delete drops the cached cart and bumps the generation in one MULTI.
func (r *RedisCache) Delete(ctx context.Context, userID int64) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(userID))
		pipe.Expire(ctx, generationKey(userID), generationTTL)
		pipe.Del(ctx, cacheKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}

func generationKey(userID int64) string {
	return fmt.Sprintf("cart:%d:gen", userID)
}

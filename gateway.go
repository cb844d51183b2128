package exq

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/redis/go-redis/v9"
)

// gateway is the Redis Gateway (spec.md §4.2): the sole mutator of
// Redis state. It exposes exactly the verb subset the engine needs.
// Nothing outside this file issues a Redis command directly.
type gateway interface {
	get(ctx context.Context, key string) (string, bool, error)
	set(ctx context.Context, key, value string) error
	incr(ctx context.Context, key string) (int64, error)
	decr(ctx context.Context, key string) (int64, error)
	expire(ctx context.Context, key string, ttl time.Duration) error
	del(ctx context.Context, keys ...string) error
	keys(ctx context.Context, pattern string) ([]string, error)

	lpush(ctx context.Context, key, value string) error
	rpush(ctx context.Context, key, value string) error
	lpop(ctx context.Context, key string) (string, bool, error)
	rpoplpush(ctx context.Context, src, dst string) (string, bool, error)
	lrange(ctx context.Context, key string, start, stop int64) ([]string, error)
	lrem(ctx context.Context, key string, count int64, value string) (int64, error)

	sadd(ctx context.Context, key, member string) error
	srem(ctx context.Context, key, member string) error
	scard(ctx context.Context, key string) (int64, error)
	smembers(ctx context.Context, key string) ([]string, error)
	smove(ctx context.Context, src, dst, member string) (bool, error)
}

// redisGateway implements gateway on top of a real Redis connection.
// Transient failures are retried with bounded exponential backoff
// before surfacing as RedisUnavailable, grounded on the same
// cenkalti/backoff library the teacher used for its MySQL store's
// runWithRetry.
type redisGateway struct {
	rdb redis.UniversalClient
}

func newRedisGateway(rdb redis.UniversalClient) *redisGateway {
	return &redisGateway{rdb: rdb}
}

func (g *redisGateway) retry(op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	err := backoff.Retry(func() error {
		err := fn()
		if err == nil || err == redis.Nil {
			return nil
		}
		return err
	}, b)
	if err != nil {
		return &RedisUnavailable{Op: op, Err: err}
	}
	return nil
}

func (g *redisGateway) get(ctx context.Context, key string) (string, bool, error) {
	var val string
	var found bool
	err := g.retry("get", func() error {
		v, err := g.rdb.Get(ctx, key).Result()
		if err == redis.Nil {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		val, found = v, true
		return nil
	})
	return val, found, err
}

func (g *redisGateway) set(ctx context.Context, key, value string) error {
	return g.retry("set", func() error {
		return g.rdb.Set(ctx, key, value, 0).Err()
	})
}

func (g *redisGateway) incr(ctx context.Context, key string) (int64, error) {
	var n int64
	err := g.retry("incr", func() error {
		v, err := g.rdb.Incr(ctx, key).Result()
		n = v
		return err
	})
	return n, err
}

func (g *redisGateway) decr(ctx context.Context, key string) (int64, error) {
	var n int64
	err := g.retry("decr", func() error {
		v, err := g.rdb.Decr(ctx, key).Result()
		n = v
		return err
	})
	return n, err
}

func (g *redisGateway) expire(ctx context.Context, key string, ttl time.Duration) error {
	return g.retry("expire", func() error {
		return g.rdb.Expire(ctx, key, ttl).Err()
	})
}

func (g *redisGateway) del(ctx context.Context, keys ...string) error {
	return g.retry("del", func() error {
		return g.rdb.Del(ctx, keys...).Err()
	})
}

func (g *redisGateway) keys(ctx context.Context, pattern string) ([]string, error) {
	var result []string
	err := g.retry("keys", func() error {
		v, err := g.rdb.Keys(ctx, pattern).Result()
		result = v
		return err
	})
	return result, err
}

func (g *redisGateway) lpush(ctx context.Context, key, value string) error {
	return g.retry("lpush", func() error {
		return g.rdb.LPush(ctx, key, value).Err()
	})
}

func (g *redisGateway) rpush(ctx context.Context, key, value string) error {
	return g.retry("rpush", func() error {
		return g.rdb.RPush(ctx, key, value).Err()
	})
}

func (g *redisGateway) lpop(ctx context.Context, key string) (string, bool, error) {
	var val string
	var found bool
	err := g.retry("lpop", func() error {
		v, err := g.rdb.LPop(ctx, key).Result()
		if err == redis.Nil {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		val, found = v, true
		return nil
	})
	return val, found, err
}

func (g *redisGateway) rpoplpush(ctx context.Context, src, dst string) (string, bool, error) {
	var val string
	var found bool
	err := g.retry("rpoplpush", func() error {
		v, err := g.rdb.RPopLPush(ctx, src, dst).Result()
		if err == redis.Nil {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		val, found = v, true
		return nil
	})
	return val, found, err
}

func (g *redisGateway) lrange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	var result []string
	err := g.retry("lrange", func() error {
		v, err := g.rdb.LRange(ctx, key, start, stop).Result()
		result = v
		return err
	})
	return result, err
}

func (g *redisGateway) lrem(ctx context.Context, key string, count int64, value string) (int64, error) {
	var n int64
	err := g.retry("lrem", func() error {
		v, err := g.rdb.LRem(ctx, key, count, value).Result()
		n = v
		return err
	})
	return n, err
}

func (g *redisGateway) sadd(ctx context.Context, key, member string) error {
	return g.retry("sadd", func() error {
		return g.rdb.SAdd(ctx, key, member).Err()
	})
}

func (g *redisGateway) srem(ctx context.Context, key, member string) error {
	return g.retry("srem", func() error {
		return g.rdb.SRem(ctx, key, member).Err()
	})
}

func (g *redisGateway) scard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := g.retry("scard", func() error {
		v, err := g.rdb.SCard(ctx, key).Result()
		n = v
		return err
	})
	return n, err
}

func (g *redisGateway) smembers(ctx context.Context, key string) ([]string, error) {
	var result []string
	err := g.retry("smembers", func() error {
		v, err := g.rdb.SMembers(ctx, key).Result()
		result = v
		return err
	})
	return result, err
}

func (g *redisGateway) smove(ctx context.Context, src, dst, member string) (bool, error) {
	var moved bool
	err := g.retry("smove", func() error {
		v, err := g.rdb.SMove(ctx, src, dst, member).Result()
		moved = v
		return err
	})
	return moved, err
}

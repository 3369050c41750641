package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache holds JSON views of the seat inventory. Views are stored under the
// current seat generation; InvalidateSeats bumps the generation, so a view
// built from a snapshot taken before a commit is never served after it.
type Cache struct {
	rdb redis.Cmdable
	sf  singleflight.Group
}

func New(rdb redis.Cmdable) *Cache {
	return &Cache{rdb: rdb}
}

func (c *Cache) generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, KeySeatGeneration()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *Cache) read(ctx context.Context, key string, out any) (bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(b, out); err != nil {
		return false, err
	}
	return true, nil
}

// GetOrSetJSON returns the view stored at key for the current generation, or
// builds it with loader and stores it for ttl. Concurrent misses share one
// loader call, which runs detached from any one caller's cancellation; each
// caller still stops waiting when its own ctx ends. Redis failures fall
// through to the loader.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return loader(ctx)
	}
	versioned := fmt.Sprintf("%s:g%d", key, gen)

	var hit T
	if ok, err := c.read(ctx, versioned, &hit); err == nil && ok {
		return hit, nil
	}

	ch := c.sf.DoChan(versioned, func() (any, error) {
		shared := context.WithoutCancel(ctx)
		fresh, err := loader(shared)
		if err != nil {
			return nil, err
		}
		if b, err := json.Marshal(fresh); err == nil {
			_ = c.rdb.Set(shared, versioned, b, ttl).Err()
		}
		return fresh, nil
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// InvalidateSeats retires every cached view of the seat inventory.
func (c *Cache) InvalidateSeats(ctx context.Context) error {
	return c.rdb.Incr(ctx, KeySeatGeneration()).Err()
}

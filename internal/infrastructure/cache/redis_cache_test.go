package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopCache(t *testing.T) {
	ctx := context.Background()
	var c Cache = NoopCache{}

	require.NoError(t, c.Set(ctx, "advert:1", "{}", time.Minute))
	_, err := c.Get(ctx, "advert:1")
	assert.ErrorIs(t, err, ErrMiss)
	assert.NoError(t, c.Delete(ctx, "advert:1"))
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping redis tests")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	c := NewRedisCache(client)
	key := "advert:test:" + time.Now().Format("150405.000000")

	_, err := c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, key, `{"id":1}`, time.Minute))
	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, got)

	require.NoError(t, c.Delete(ctx, key))
	_, err = c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrMiss)
}

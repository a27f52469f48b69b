package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newTestKV(t *testing.T) *RedisKV {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisKV(client)
}

func TestRedisKV_MissOnAbsentKey(t *testing.T) {
	kv := newTestKV(t)
	_, err := kv.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrMiss)
}

func TestRedisKV_SetGetDel(t *testing.T) {
	kv := newTestKV(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "k", `{"a":1}`, 0))
	val, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, val)

	require.NoError(t, kv.Del(ctx, "k"))
	_, err = kv.Get(ctx, "k")
	require.ErrorIs(t, err, ErrMiss)

	// deleting an absent key is not an error
	require.NoError(t, kv.Del(ctx, "k"))
}

func TestRedisKV_TTL(t *testing.T) {
	kv := newTestKV(t)
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, "k", "v", time.Minute))
	val, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", val)
}

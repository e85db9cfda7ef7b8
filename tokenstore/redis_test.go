package tokenstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedis_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	store := NewRedis(rdb, "session-cli", "trainer", 0)

	creds, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, creds.Empty())

	want := Credentials{AccessToken: "access-1", RefreshToken: "refresh-1"}
	require.NoError(t, store.Save(ctx, want))
	require.Equal(t, "access-1", mr.HGet(store.Key(), redisFieldAccess))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)

	require.NoError(t, store.Clear(ctx))
	require.False(t, mr.Exists(store.Key()))
}

func TestRedis_SaveReplacesWholePair(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	store := NewRedis(rdb, "session-cli", "school", 0)

	require.NoError(t, store.Save(ctx, Credentials{AccessToken: "a1", RefreshToken: "r1"}))
	require.NoError(t, store.Save(ctx, Credentials{AccessToken: "a2"}))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, Credentials{AccessToken: "a2"}, got)
}

func TestRedis_Expiry(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	store := NewRedis(rdb, "session-cli", "admin", time.Hour)

	require.NoError(t, store.Save(ctx, Credentials{AccessToken: "a", RefreshToken: "r"}))
	require.Equal(t, time.Hour, mr.TTL(store.Key()))

	mr.FastForward(2 * time.Hour)

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, got.Empty())
}

func TestRedis_LoadError(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedis(rdb, "session-cli", "admin", 0)
	mr.Close()

	_, err := store.Load(context.Background())
	require.Error(t, err)
}

package tokenstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisFieldAccess  = "access_token"
	redisFieldRefresh = "refresh_token"
)

// Redis keeps the pair in one hash so a reader never sees half of a rotation.
type Redis struct {
	rdb    redis.UniversalClient
	key    string
	expiry time.Duration
}

// NewRedis returns a store writing to "<prefix>:<profile>". A positive expiry bounds how long
// an unused session survives in Redis.
func NewRedis(rdb redis.UniversalClient, prefix, profile string, expiry time.Duration) *Redis {
	return &Redis{rdb: rdb, key: prefix + ":" + profile, expiry: expiry}
}

// Key returns the hash key used for this profile.
func (r *Redis) Key() string { return r.key }

func (r *Redis) Load(ctx context.Context) (Credentials, error) {
	fields, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		return Credentials{}, fmt.Errorf("redis load %s: %w", r.key, err)
	}
	return Credentials{
		AccessToken:  fields[redisFieldAccess],
		RefreshToken: fields[redisFieldRefresh],
	}, nil
}

func (r *Redis) Save(ctx context.Context, creds Credentials) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		pipe.HSet(ctx, r.key,
			redisFieldAccess, creds.AccessToken,
			redisFieldRefresh, creds.RefreshToken,
		)
		if r.expiry > 0 {
			pipe.Expire(ctx, r.key, r.expiry)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", r.key, err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis clear %s: %w", r.key, err)
	}
	return nil
}

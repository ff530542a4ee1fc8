package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisAdminMirror keeps the admin wallet set in a redis set, written through
// on every admin mutation. It is the resolver's secondary lookup when the
// relational store is unreachable.
type RedisAdminMirror struct {
	rdb redis.UniversalClient
	key string
}

func NewRedisAdminMirror(rdb redis.UniversalClient) *RedisAdminMirror {
	return &RedisAdminMirror{
		rdb: rdb,
		key: "gatehouse:admins",
	}
}

func (m *RedisAdminMirror) IsAdmin(ctx context.Context, address string) (bool, error) {
	ok, err := m.rdb.SIsMember(ctx, m.key, address).Result()
	if err != nil {
		return false, fmt.Errorf("admin mirror lookup failed: %w", err)
	}
	return ok, nil
}

func (m *RedisAdminMirror) SetAdmin(ctx context.Context, address string, isAdmin bool) error {
	var err error
	if isAdmin {
		err = m.rdb.SAdd(ctx, m.key, address).Err()
	} else {
		err = m.rdb.SRem(ctx, m.key, address).Err()
	}
	if err != nil {
		return fmt.Errorf("admin mirror update failed: %w", err)
	}
	return nil
}

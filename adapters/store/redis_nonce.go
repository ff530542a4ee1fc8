package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/learnchain/gatehouse/core"
)

//go:embed lua/consume.lua
var luaConsume string

// Result codes returned by the consume script.
const (
	consumeOK              = 1
	consumeSuperseded      = 0
	consumeNotFound        = -1
	consumeAlreadyConsumed = -2
	consumeExpired         = -3
)

// consumedMarkerTTL bounds how long a consumed value is remembered so a replay
// can be labelled "already consumed" instead of "not found".
const consumedMarkerTTL = time.Hour

// storedNonce is the redis value layout. ExpiresAt is kept inside the value,
// not only as key TTL, so the script can distinguish expiry from absence.
type storedNonce struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"`
}

// RedisNonceStore keeps one live nonce per wallet. SET on issue gives
// replace-on-issue for free; consumption runs as a single Lua script so the
// check and the delete are indivisible.
type RedisNonceStore struct {
	rdb        redis.UniversalClient
	scrConsume *redis.Script
	prefix     string
}

func NewRedisNonceStore(rdb redis.UniversalClient) *RedisNonceStore {
	return &RedisNonceStore{
		rdb:        rdb,
		scrConsume: redis.NewScript(luaConsume),
		prefix:     "gatehouse:nonce:",
	}
}

func (s *RedisNonceStore) liveKey(wallet string) string {
	return s.prefix + wallet
}

func (s *RedisNonceStore) usedKey(wallet string) string {
	return s.prefix + "used:" + wallet
}

func (s *RedisNonceStore) Put(ctx context.Context, nonce *core.Nonce) error {
	raw, err := json.Marshal(storedNonce{
		Value:     nonce.Value,
		ExpiresAt: nonce.ExpiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode nonce: %w", err)
	}

	ttl := time.Until(nonce.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("nonce already expired: %w", core.ErrStoreUnavailable)
	}

	if err := s.rdb.Set(ctx, s.liveKey(nonce.WalletAddress), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store nonce: %w", err)
	}
	return nil
}

func (s *RedisNonceStore) Consume(ctx context.Context, wallet, value string, now time.Time) (core.NonceResult, error) {
	keys := []string{s.liveKey(wallet), s.usedKey(wallet)}
	args := []any{value, strconv.FormatInt(now.Unix(), 10), int(consumedMarkerTTL.Seconds())}

	code, err := s.scrConsume.Run(ctx, s.rdb, keys, args...).Int64()
	if err != nil {
		return core.NonceResult{}, fmt.Errorf("nonce consume script failed: %w", err)
	}

	switch code {
	case consumeOK:
		return core.NonceResult{Valid: true, Reason: core.ReasonOK}, nil
	case consumeSuperseded:
		return core.NonceResult{Reason: core.ReasonSuperseded}, nil
	case consumeAlreadyConsumed:
		return core.NonceResult{Reason: core.ReasonAlreadyConsumed}, nil
	case consumeExpired:
		return core.NonceResult{Reason: core.ReasonExpired}, nil
	default:
		return core.NonceResult{Reason: core.ReasonNotFound}, nil
	}
}

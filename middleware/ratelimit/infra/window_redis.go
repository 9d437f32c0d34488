package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"courier-gateway/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// admitScript roda inteiro no Redis, então purge/contagem/registro são
// atômicos por chave mesmo com várias réplicas do gateway.
//
// KEYS[1]  sorted set da chave (score = timestamp em ms)
// ARGV[1]  agora (ms)
// ARGV[2]  membro único para o registro
// ARGV[3]  maior janela (ms)
// ARGV[4..] pares (janela ms, max)
//
// Retorno: {allowed(0|1), exceeded(1-based, 0 = nenhum), count1, count2, ...}
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local maxwin = tonumber(ARGV[3])

if maxwin > 0 then
  redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. (now - maxwin))
end

local result = {1, 0}
for i = 4, #ARGV, 2 do
  local win = tonumber(ARGV[i])
  local max = tonumber(ARGV[i + 1])
  local count = redis.call('ZCOUNT', key, now - win, '+inf')
  table.insert(result, count)
  if max > 0 and count >= max and result[1] == 1 then
    result[1] = 0
    result[2] = (i - 2) / 2
  end
end

if result[1] == 1 then
  redis.call('ZADD', key, now, ARGV[2])
  if maxwin > 0 then
    redis.call('PEXPIRE', key, maxwin)
  end
end
return result
`)

// RedisWindowStore é o WindowStore compartilhado entre instâncias.
// Cada chave vira um sorted set com TTL igual à maior janela.
type RedisWindowStore struct {
	rdb    *redis.Client
	prefix string
}

var _ domain.WindowStore = (*RedisWindowStore)(nil)

type RedisWindowOption func(*RedisWindowStore)

func WithWindowPrefix(prefix string) RedisWindowOption {
	return func(s *RedisWindowStore) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisWindowStore(rdb *redis.Client, opts ...RedisWindowOption) *RedisWindowStore {
	s := &RedisWindowStore{rdb: rdb, prefix: "ratelimit:window"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisWindowStore) redisKey(key domain.Key) string {
	return s.prefix + ":" + string(key)
}

// Admit implementa domain.WindowStore.
func (s *RedisWindowStore) Admit(ctx context.Context, key domain.Key, at time.Time, limits []domain.WindowLimit) (domain.WindowResult, error) {
	if s == nil || s.rdb == nil {
		return domain.WindowResult{}, errors.New("redis window store not configured")
	}

	args := make([]interface{}, 0, 3+2*len(limits))
	args = append(args, at.UnixMilli(), fmt.Sprintf("%d-%s", at.UnixNano(), uuid.NewString()), domain.MaxWindow(limits).Milliseconds())
	for _, l := range limits {
		args = append(args, l.Window.Milliseconds(), l.Max)
	}

	raw, err := admitScript.Run(ctx, s.rdb, []string{s.redisKey(key)}, args...).Int64Slice()
	if err != nil {
		return domain.WindowResult{}, fmt.Errorf("redis admit %q: %w", key, err)
	}
	if len(raw) != 2+len(limits) {
		return domain.WindowResult{}, fmt.Errorf("redis admit %q: unexpected reply length %d", key, len(raw))
	}

	res := domain.WindowResult{
		Allowed:  raw[0] == 1,
		Exceeded: int(raw[1]) - 1,
		Counts:   make([]int, len(limits)),
	}
	for i := range limits {
		res.Counts[i] = int(raw[2+i])
	}
	return res, nil
}

// Count implementa domain.WindowStore.
func (s *RedisWindowStore) Count(ctx context.Context, key domain.Key, at time.Time, window time.Duration) (int, error) {
	min := fmt.Sprintf("%d", at.Add(-window).UnixMilli())
	n, err := s.rdb.ZCount(ctx, s.redisKey(key), min, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("redis count %q: %w", key, err)
	}
	return int(n), nil
}

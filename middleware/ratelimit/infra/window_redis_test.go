package infra

import (
	"context"
	"testing"
	"time"

	"courier-gateway/middleware/ratelimit/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisWindowStore_AllowsUpToLimitThenRejects(t *testing.T) {
	_, rdb := newRedis(t)
	s := NewRedisWindowStore(rdb)
	ctx := context.Background()
	limits := []domain.WindowLimit{{Window: time.Minute, Max: 3}, {Window: time.Hour, Max: 100}}

	for i := 0; i < 3; i++ {
		res, err := s.Admit(ctx, "k", t0.Add(time.Duration(i)*time.Second), limits)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("expected request %d allowed", i+1)
		}
	}

	res, err := s.Admit(ctx, "k", t0.Add(5*time.Second), limits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed || res.Exceeded != 0 {
		t.Fatalf("expected minute rejection, got %+v", res)
	}
	if res.Counts[0] != 3 || res.Counts[1] != 3 {
		t.Fatalf("unexpected counts %v", res.Counts)
	}

	n, err := s.Count(ctx, "k", t0.Add(5*time.Second), time.Hour)
	if err != nil || n != 3 {
		t.Fatalf("expected rejected request not recorded, got %d %v", n, err)
	}
}

func TestRedisWindowStore_PurgesOldEntries(t *testing.T) {
	_, rdb := newRedis(t)
	s := NewRedisWindowStore(rdb)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = s.Admit(ctx, "k", t0.Add(-61*time.Minute), generalLimits)
	}
	res, err := s.Admit(ctx, "k", t0, generalLimits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed || res.Counts[1] != 0 {
		t.Fatalf("expected stale entries purged, got %+v", res)
	}
	if n, _ := s.Count(ctx, "k", t0, time.Hour); n != 1 {
		t.Fatalf("expected hourly count 1, got %d", n)
	}
}

func TestRedisWindowStore_HourExceededIndex(t *testing.T) {
	_, rdb := newRedis(t)
	s := NewRedisWindowStore(rdb, WithWindowPrefix("test:"))
	ctx := context.Background()
	limits := []domain.WindowLimit{{Window: time.Minute, Max: 10}, {Window: time.Hour, Max: 2}}

	_, _ = s.Admit(ctx, "k", t0, limits)
	_, _ = s.Admit(ctx, "k", t0.Add(10*time.Minute), limits)
	res, _ := s.Admit(ctx, "k", t0.Add(20*time.Minute), limits)
	if res.Allowed || res.Exceeded != 1 {
		t.Fatalf("expected hour rejection, got %+v", res)
	}
}

func TestRedisWindowStore_SetsTTLOnKey(t *testing.T) {
	mr, rdb := newRedis(t)
	s := NewRedisWindowStore(rdb)

	_, _ = s.Admit(context.Background(), "10.0.0.5", t0, generalLimits)
	if ttl := mr.TTL("ratelimit:window:10.0.0.5"); ttl != time.Hour {
		t.Fatalf("expected ttl of 1h, got %s", ttl)
	}
}

func TestRedisWindowStore_ErrorWhenRedisDown(t *testing.T) {
	mr, rdb := newRedis(t)
	s := NewRedisWindowStore(rdb)
	mr.Close()

	if _, err := s.Admit(context.Background(), "k", t0, generalLimits); err == nil {
		t.Fatalf("expected error with redis down")
	}
}

func TestRedisWindowStore_BoundaryEntryIsRetained(t *testing.T) {
	_, rdb := newRedis(t)
	redisStore := NewRedisWindowStore(rdb)
	memStore := NewMemoryWindowStore()
	ctx := context.Background()
	limits := []domain.WindowLimit{{Window: time.Minute, Max: 1}, {Window: time.Hour, Max: 10}}

	for name, s := range map[string]domain.WindowStore{"redis": redisStore, "memory": memStore} {
		if res, err := s.Admit(ctx, "k", t0, limits); err != nil || !res.Allowed {
			t.Fatalf("%s: expected first allowed, got %+v %v", name, res, err)
		}

		res, err := s.Admit(ctx, "k", t0.Add(time.Minute), limits)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if res.Allowed || res.Exceeded != 0 || res.Counts[0] != 1 || res.Counts[1] != 1 {
			t.Fatalf("%s: entry at exactly now-60s must still count, got %+v", name, res)
		}

		// o Redis guarda milissegundos: 1ms depois a entrada sai da janela
		res, err = s.Admit(ctx, "k", t0.Add(time.Minute+time.Millisecond), limits)
		if err != nil || !res.Allowed {
			t.Fatalf("%s: entry strictly older than now-60s must be dropped, got %+v %v", name, res, err)
		}
	}
}

package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// fakeStore is a map-backed limiterStore with injectable failures.
type fakeStore struct {
	counts    map[string]int64
	ttls      map[string]time.Duration
	lastKey   string
	incrErr   error
	expireErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{counts: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Incr(ctx context.Context, key string) *redis.IntCmd {
	if f.incrErr != nil {
		return redis.NewIntResult(0, f.incrErr)
	}
	f.counts[key]++
	f.lastKey = key
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeStore) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	if f.expireErr != nil {
		return redis.NewBoolResult(false, f.expireErr)
	}
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeStore) TTL(ctx context.Context, key string) *redis.DurationCmd {
	ttl, ok := f.ttls[key]
	if !ok {
		// same answer redis gives for a key with no expiry
		ttl = -1
	}
	return redis.NewDurationResult(ttl, nil)
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.counts, k)
		delete(f.ttls, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func newLimitedApp(store *fakeStore, limit int) *fiber.App {
	app := fiber.New()
	app.Get("/ping", RateLimit(store, "test", limit, time.Minute), func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})
	return app
}

func ping(t *testing.T, app *fiber.App) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestRateLimitBlocksOverLimit(t *testing.T) {
	store := newFakeStore()
	app := newLimitedApp(store, 3)

	for i := 0; i < 3; i++ {
		if code := ping(t, app); code != fiber.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, code)
		}
	}
	if code := ping(t, app); code != fiber.StatusTooManyRequests {
		t.Fatalf("over-limit status = %d, want 429", code)
	}
}

func TestRateLimitFailsOpenWhenRedisDown(t *testing.T) {
	store := newFakeStore()
	store.incrErr = context.DeadlineExceeded
	app := newLimitedApp(store, 1)

	for i := 0; i < 5; i++ {
		if code := ping(t, app); code != fiber.StatusOK {
			t.Fatalf("request %d: status = %d, want 200 (fail open)", i+1, code)
		}
	}
}

func TestRateLimitExpireFailureDropsCounter(t *testing.T) {
	store := newFakeStore()
	store.expireErr = context.DeadlineExceeded
	app := newLimitedApp(store, 1)

	// Every request starts a fresh counter; the TTL write fails, so the
	// counter must be dropped rather than left to throttle forever.
	for i := 0; i < 5; i++ {
		if code := ping(t, app); code != fiber.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, code)
		}
	}
	if len(store.counts) != 0 {
		t.Errorf("counters left behind without TTL: %v", store.counts)
	}
}

func TestRateLimitResetsStaleCounterWithoutTTL(t *testing.T) {
	store := newFakeStore()
	app := newLimitedApp(store, 3)

	if code := ping(t, app); code != fiber.StatusOK {
		t.Fatalf("first request: status = %d, want 200", code)
	}

	// Simulate a counter whose Expire was lost in an earlier window.
	delete(store.ttls, store.lastKey)
	store.counts[store.lastKey] = 10

	key := store.lastKey
	if code := ping(t, app); code != fiber.StatusOK {
		t.Fatalf("stale counter: status = %d, want 200 (reset, not throttle)", code)
	}
	if _, ok := store.counts[key]; ok {
		t.Errorf("stale counter not dropped: count = %d", store.counts[key])
	}

	// the next window starts clean
	if code := ping(t, app); code != fiber.StatusOK {
		t.Fatalf("post-reset request: status = %d, want 200", code)
	}
	if store.counts[key] != 1 {
		t.Errorf("fresh counter = %d, want 1", store.counts[key])
	}
}

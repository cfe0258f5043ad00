package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r := NewRedis(mr.Addr())
	t.Cleanup(func() { _ = r.Close() })
	return mr, r
}

func TestRedisHealthy(t *testing.T) {
	mr, r := newTestRedis(t)
	if !r.Healthy(context.Background()) {
		t.Fatalf("expected healthy redis")
	}
	mr.Close()
	if r.Healthy(context.Background()) {
		t.Fatalf("expected unhealthy redis after shutdown")
	}

	var missing *Redis
	if missing.Healthy(context.Background()) {
		t.Fatalf("nil redis must report unhealthy")
	}
}

func TestRedisLockerExcludesConcurrentHolders(t *testing.T) {
	_, r := newTestRedis(t)
	locker := NewRedisLocker(r.Client, "test:lock", time.Second)

	var (
		mu      sync.Mutex
		holders int
		peak    int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			unlock, err := locker.Lock(ctx)
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			holders++
			peak = max(peak, holders)
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if peak != 1 {
		t.Fatalf("expected at most one holder, saw %d", peak)
	}
}

func TestRedisLockerTimesOutWhileHeld(t *testing.T) {
	mr, r := newTestRedis(t)
	locker := NewRedisLocker(r.Client, "test:lock", time.Minute)

	unlock, err := locker.Lock(context.Background())
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}

	unlock()
	if mr.Exists("test:lock") {
		t.Fatalf("unlock must delete the key")
	}
}

func TestRedisLockerReleaseKeepsForeignToken(t *testing.T) {
	mr, r := newTestRedis(t)
	locker := NewRedisLocker(r.Client, "test:lock", time.Second)

	unlock, err := locker.Lock(context.Background())
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	// the lock expired and another replica took it over
	mr.FastForward(2 * time.Second)
	if err := mr.Set("test:lock", "other-holder"); err != nil {
		t.Fatalf("seed foreign holder: %v", err)
	}

	unlock()
	if got, _ := mr.Get("test:lock"); got != "other-holder" {
		t.Fatalf("unlock must not remove a lock it no longer owns, got %q", got)
	}
}

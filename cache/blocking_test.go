package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-sqlmap/errs"
)

func TestBlocking_ConcurrentMissesSerialize(t *testing.T) {
	ctx := context.Background()
	c := NewBlocking(NewSynchronized(newRecordingCache("blocking")), 0)
	key := NewCacheKey("hot")

	var populations atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			v, err := c.Get(ctx, key)
			if err != nil {
				return err
			}
			if v == nil {
				populations.Add(1)
				time.Sleep(5 * time.Millisecond)
				return c.Put(ctx, key, "loaded")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := populations.Load(); got != 1 {
		t.Fatalf("expected a single populator, got %d", got)
	}
}

func TestBlocking_TimeoutFailsInsteadOfHanging(t *testing.T) {
	ctx := context.Background()
	c := NewBlocking(newRecordingCache("blocking"), 20*time.Millisecond)
	key := NewCacheKey("slow")

	if v, err := c.Get(ctx, key); err != nil || v != nil {
		t.Fatalf("expected first miss to take the lock, got %v %v", v, err)
	}

	start := time.Now()
	_, err := c.Get(ctx, key)
	if !errs.HasCode(err, errs.CodeCacheLockTimeout) {
		t.Fatalf("expected lock timeout, got %v", err)
	}
	if !errs.IsRetryable(err) {
		t.Fatal("lock timeouts must be retryable")
	}
	if time.Since(start) > time.Second {
		t.Fatal("waiter must give up after the timeout")
	}

	// the original holder can still release the lock
	if err := c.Put(ctx, key, "late"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if v, err := c.Get(ctx, key); err != nil || v != "late" {
		t.Fatalf("expected released lock and value, got %v %v", v, err)
	}
}

func TestBlocking_ContextCancellation(t *testing.T) {
	c := NewBlocking(newRecordingCache("blocking"), 0)
	key := NewCacheKey("k")
	_, _ = c.Get(context.Background(), key)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.Get(ctx, key); err == nil {
		t.Fatal("expected context error")
	}
}

func TestBlocking_HitReleasesImmediately(t *testing.T) {
	ctx := context.Background()
	base := newRecordingCache("blocking")
	key := NewCacheKey("k")
	_ = base.Put(ctx, key, "v")

	c := NewBlocking(base, 10*time.Millisecond)
	for i := 0; i < 3; i++ {
		if v, err := c.Get(ctx, key); err != nil || v != "v" {
			t.Fatalf("expected hit without blocking, got %v %v", v, err)
		}
	}
}

func TestBlocking_RemoveReleases(t *testing.T) {
	ctx := context.Background()
	c := NewBlocking(newRecordingCache("blocking"), 20*time.Millisecond)
	key := NewCacheKey("k")

	_, _ = c.Get(ctx, key)
	_ = c.Remove(ctx, key)
	if _, err := c.Get(ctx, key); err != nil {
		t.Fatalf("expected lock to be released by remove, got %v", err)
	}
}

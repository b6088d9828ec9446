package storage

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"
)

func openRawDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.TempDir()+"/pool.db?_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPoolAcquireTimeout(t *testing.T) {
	p := NewPool(openRawDB(t), DialectSQLite, 1, time.Second)

	h, err := p.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer p.Release(h)

	start := time.Now()
	_, err = p.Acquire(context.Background(), 50*time.Millisecond)
	if !errors.Is(err, ErrPoolTimeout) {
		t.Fatalf("expected ErrPoolTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Acquire returned after %s, expected to wait for the timeout", elapsed)
	}
}

func TestPoolAcquireCallerCancelled(t *testing.T) {
	p := NewPool(openRawDB(t), DialectSQLite, 1, time.Second)

	h, err := p.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer p.Release(h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Acquire(ctx, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrPoolTimeout) {
		t.Error("caller cancellation must not be reported as a pool timeout")
	}
}

func TestPoolReleaseIdempotent(t *testing.T) {
	p := NewPool(openRawDB(t), DialectSQLite, 2, time.Second)

	h, err := p.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(h)
	p.Release(h)
	p.Release(nil)

	if got := p.Stats().InUse; got != 0 {
		t.Errorf("InUse = %d, want 0", got)
	}
	// Both slots must still be available: a double release must not have
	// over-credited the semaphore, and a third acquire must block.
	h1, err := p.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	h2, err := p.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("Acquire 2: %v", err)
	}
	if _, err := p.Acquire(context.Background(), 20*time.Millisecond); !errors.Is(err, ErrPoolTimeout) {
		t.Errorf("third Acquire: expected ErrPoolTimeout, got %v", err)
	}
	p.Release(h1)
	p.Release(h2)
}

func TestPoolWithHandleReleasesOnError(t *testing.T) {
	p := NewPool(openRawDB(t), DialectSQLite, 1, time.Second)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := p.WithHandle(context.Background(), func(h *Handle) error { return boom })
		if !errors.Is(err, boom) {
			t.Fatalf("iteration %d: expected boom, got %v", i, err)
		}
	}
	if got := p.Stats().InUse; got != 0 {
		t.Errorf("InUse = %d after failed operations, want 0", got)
	}
}

func TestPoolNeverExceedsSize(t *testing.T) {
	const size = 3
	p := NewPool(openRawDB(t), DialectSQLite, size, 5*time.Second)

	var (
		mu      sync.Mutex
		current int
		peak    int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.WithHandle(context.Background(), func(h *Handle) error {
				mu.Lock()
				current++
				if current > peak {
					peak = current
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				current--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("WithHandle: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak > size {
		t.Errorf("peak concurrent handles = %d, want <= %d", peak, size)
	}
	if got := p.Stats(); got.InUse != 0 || got.Size != size {
		t.Errorf("Stats = %+v, want {Size:%d InUse:0}", got, size)
	}
}

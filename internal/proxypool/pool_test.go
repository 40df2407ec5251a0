package proxypool

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestNew tests pool construction.
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("empty pool is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := New(nil)
		if !errors.Is(err, ErrEmptyPool) {
			t.Errorf("expected ErrEmptyPool, got %v", err)
		}
	})

	t.Run("all addresses start available", func(t *testing.T) {
		t.Parallel()

		p, err := New([]string{"a:1", "b:2", "a:1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Size() != 3 {
			t.Errorf("Size() = %d, expected 3", p.Size())
		}
		if p.Available() != 3 {
			t.Errorf("Available() = %d, expected 3", p.Available())
		}
		if p.InUse() != 0 {
			t.Errorf("InUse() = %d, expected 0", p.InUse())
		}
	})
}

// TestLeaseRelease tests the lease/release balance.
func TestLeaseRelease(t *testing.T) {
	t.Parallel()

	t.Run("lease removes and release returns one address", func(t *testing.T) {
		t.Parallel()

		p, _ := New([]string{"a:1", "b:2"})
		lease, err := p.Lease(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Available() != 1 || p.InUse() != 1 {
			t.Errorf("after lease: available=%d inUse=%d", p.Available(), p.InUse())
		}

		lease.Release()
		if p.Available() != 2 || p.InUse() != 0 {
			t.Errorf("after release: available=%d inUse=%d", p.Available(), p.InUse())
		}
	})

	t.Run("double release returns the address once", func(t *testing.T) {
		t.Parallel()

		p, _ := New([]string{"a:1"})
		lease, err := p.Lease(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lease.Release()
		lease.Release()

		if p.Available() != 1 {
			t.Errorf("Available() = %d, expected 1", p.Available())
		}
	})

	t.Run("lease blocks until an address is released", func(t *testing.T) {
		t.Parallel()

		p, _ := New([]string{"only:1"})
		first, err := p.Lease(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got := make(chan string, 1)
		go func() {
			second, err := p.Lease(context.Background())
			if err != nil {
				got <- "error: " + err.Error()
				return
			}
			got <- second.Addr()
			second.Release()
		}()

		select {
		case addr := <-got:
			t.Fatalf("lease returned %q while pool was empty", addr)
		case <-time.After(50 * time.Millisecond):
		}

		first.Release()

		select {
		case addr := <-got:
			if addr != "only:1" {
				t.Errorf("expected only:1, got %q", addr)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("waiting lease was not served after release")
		}
	})

	t.Run("lease honors context cancellation", func(t *testing.T) {
		t.Parallel()

		p, _ := New([]string{"only:1"})
		held, _ := p.Lease(context.Background())
		defer held.Release()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := p.Lease(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected DeadlineExceeded, got %v", err)
		}
	})

	t.Run("cancelled context wins over an available address", func(t *testing.T) {
		t.Parallel()

		p, _ := New([]string{"a:1"})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := p.Lease(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected Canceled, got %v", err)
		}
		if p.Available() != 1 {
			t.Errorf("Available() = %d, expected 1", p.Available())
		}
	})
}

// TestDo tests the scoped acquisition helper.
func TestDo(t *testing.T) {
	t.Parallel()

	t.Run("releases after success", func(t *testing.T) {
		t.Parallel()

		p, _ := New([]string{"a:1"})
		var seen string
		err := p.Do(context.Background(), func(addr string) error {
			seen = addr
			if p.InUse() != 1 {
				t.Errorf("InUse() inside Do = %d, expected 1", p.InUse())
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen != "a:1" {
			t.Errorf("fn received %q, expected a:1", seen)
		}
		if p.Available() != 1 {
			t.Errorf("Available() = %d, expected 1", p.Available())
		}
	})

	t.Run("releases after error", func(t *testing.T) {
		t.Parallel()

		p, _ := New([]string{"a:1"})
		want := errors.New("boom")
		err := p.Do(context.Background(), func(string) error { return want })
		if !errors.Is(err, want) {
			t.Errorf("expected %v, got %v", want, err)
		}
		if p.Available() != 1 {
			t.Errorf("Available() = %d, expected 1", p.Available())
		}
	})

	t.Run("releases after panic", func(t *testing.T) {
		t.Parallel()

		p, _ := New([]string{"a:1"})
		func() {
			defer func() {
				if recover() == nil {
					t.Error("expected panic to propagate")
				}
			}()
			_ = p.Do(context.Background(), func(string) error { panic("boom") })
		}()
		if p.Available() != 1 {
			t.Errorf("Available() = %d, expected 1", p.Available())
		}
	})

	t.Run("fn is not called when lease fails", func(t *testing.T) {
		t.Parallel()

		p, _ := New([]string{"a:1"})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		err := p.Do(ctx, func(string) error {
			called = true
			return nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected Canceled, got %v", err)
		}
		if called {
			t.Error("fn must not run without a lease")
		}
	})
}

// TestConcurrentCirculation tests that heavy concurrent use never exceeds
// the pool size and never loses an address.
func TestConcurrentCirculation(t *testing.T) {
	t.Parallel()

	addrs := []string{"a:1", "b:2", "c:3"}
	p, _ := New(addrs)

	var (
		wg      sync.WaitGroup
		current atomic.Int32
		peak    atomic.Int32
	)

	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Do(context.Background(), func(string) error {
				n := current.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				current.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > int32(len(addrs)) {
		t.Errorf("peak concurrent leases = %d, expected at most %d", got, len(addrs))
	}
	if p.Available() != len(addrs) {
		t.Fatalf("Available() = %d, expected %d", p.Available(), len(addrs))
	}

	// Drain and compare the multiset.
	var drained []string
	for range len(addrs) {
		lease, err := p.Lease(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		drained = append(drained, lease.Addr())
	}
	sort.Strings(drained)
	for i, want := range []string{"a:1", "b:2", "c:3"} {
		if drained[i] != want {
			t.Errorf("drained[%d] = %q, expected %q", i, drained[i], want)
		}
	}
}

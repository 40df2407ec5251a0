package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/pagefetch/internal/model"
	"github.com/nao1215/pagefetch/internal/output"
)

// TestNewOrchestrator tests the Orchestrator constructor.
func TestNewOrchestrator(t *testing.T) {
	t.Parallel()

	w := NewWorker(htmlPage(""), newTestPool(t, "p1"), output.NewPageWriter(t.TempDir()), &recordingSink{})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		o := NewOrchestrator(w)
		if o.concurrency != 100 {
			t.Errorf("expected default concurrency 100, got %d", o.concurrency)
		}
		if o.logger == nil {
			t.Error("expected non-nil logger")
		}
	})

	t.Run("zero concurrency means unbounded", func(t *testing.T) {
		t.Parallel()

		o := NewOrchestrator(w, WithConcurrency(0))
		if o.concurrency != 0 {
			t.Errorf("expected concurrency 0, got %d", o.concurrency)
		}
	})

	t.Run("negative concurrency is ignored", func(t *testing.T) {
		t.Parallel()

		o := NewOrchestrator(w, WithConcurrency(-3))
		if o.concurrency != 100 {
			t.Errorf("expected concurrency 100, got %d", o.concurrency)
		}
	})

	t.Run("nil handler is ignored", func(t *testing.T) {
		t.Parallel()

		o := NewOrchestrator(w, WithOutcomeHandler(nil))
		if len(o.handlers) != 0 {
			t.Errorf("expected no handlers, got %d", len(o.handlers))
		}
	})
}

// TestOrchestratorRunEndToEnd tests a mixed run with one proxy.
func TestOrchestratorRunEndToEnd(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	pool := newTestPool(t, "p1")

	fetcher := fetcherFunc(func(_ context.Context, rawURL, _ string) (*Page, error) {
		if rawURL == "http://bad.test" {
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		}
		return &Page{URL: rawURL, StatusCode: 200, HTML: "<html><body><h1>Example</h1></body></html>"}, nil
	})

	var failureLog bytes.Buffer
	reporter := output.NewFailureReporter(&failureLog, discardLogger())
	w := NewWorker(fetcher, pool, output.NewPageWriter(dest, output.WithWriterLogger(discardLogger())), reporter, WithWorkerLogger(discardLogger()))

	var seen []model.Outcome
	var mu sync.Mutex
	o := NewOrchestrator(w,
		WithLogger(discardLogger()),
		WithOutcomeHandler(func(out model.Outcome) {
			mu.Lock()
			seen = append(seen, out)
			mu.Unlock()
		}),
	)

	urls := []string{model.NormalizeURL("example.com"), "http://bad.test"}
	summary, err := o.Run(context.Background(), urls)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	html, err := os.ReadFile(filepath.Join(dest, "example.com", "example.com.html"))
	if err != nil {
		t.Fatalf("expected saved html: %v", err)
	}
	if !bytes.Contains(html, []byte("<h1>Example</h1>")) {
		t.Errorf("unexpected html %q", html)
	}
	text, err := os.ReadFile(filepath.Join(dest, "example.com", "example.com.txt"))
	if err != nil {
		t.Fatalf("expected saved text: %v", err)
	}
	if string(text) != "Example" {
		t.Errorf("unexpected text %q", text)
	}

	if got := failureLog.String(); got != "http://bad.test cannot connect to host. Proxy: p1\n" {
		t.Errorf("unexpected failure log %q", got)
	}

	if summary.Total() != 2 || summary.Succeeded() != 1 || summary.Count(model.ReasonCannotConnect) != 1 {
		t.Errorf("unexpected summary: total=%d ok=%d", summary.Total(), summary.Succeeded())
	}
	if summary.Elapsed() <= 0 {
		t.Error("expected finished summary")
	}
	if len(seen) != 2 {
		t.Errorf("expected 2 observed outcomes, got %d", len(seen))
	}
	if pool.Available() != 1 {
		t.Errorf("expected proxy back in pool, available=%d", pool.Available())
	}
}

// TestOrchestratorConcurrencyBound tests that active fetches never exceed
// min(ceiling, pool size).
func TestOrchestratorConcurrencyBound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		poolSize int
		ceiling  int
		wantMax  int64
	}{
		{name: "pool smaller than ceiling", poolSize: 3, ceiling: 100, wantMax: 3},
		{name: "ceiling smaller than pool", poolSize: 10, ceiling: 2, wantMax: 2},
		{name: "unbounded ceiling", poolSize: 4, ceiling: 0, wantMax: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			addrs := make([]string, tt.poolSize)
			for i := range addrs {
				addrs[i] = fmt.Sprintf("p%d", i)
			}
			pool := newTestPool(t, addrs...)

			var active, peak atomic.Int64
			fetcher := fetcherFunc(func(_ context.Context, rawURL, _ string) (*Page, error) {
				n := active.Add(1)
				for {
					cur := peak.Load()
					if n <= cur || peak.CompareAndSwap(cur, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				active.Add(-1)
				return &Page{URL: rawURL, StatusCode: 200, HTML: "<p>x</p>"}, nil
			})

			w := NewWorker(fetcher, pool, output.NewPageWriter(t.TempDir()), &recordingSink{}, WithWorkerLogger(discardLogger()))
			o := NewOrchestrator(w, WithConcurrency(tt.ceiling), WithLogger(discardLogger()))

			urls := make([]string, 60)
			for i := range urls {
				urls[i] = fmt.Sprintf("http://site%d.test", i)
			}

			summary, err := o.Run(context.Background(), urls)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if summary.Total() != len(urls) {
				t.Errorf("expected %d outcomes, got %d", len(urls), summary.Total())
			}
			if got := peak.Load(); got > tt.wantMax {
				t.Errorf("peak concurrency %d exceeds %d", got, tt.wantMax)
			}
			if pool.Available() != tt.poolSize {
				t.Errorf("pool not restored: %d/%d", pool.Available(), tt.poolSize)
			}
		})
	}
}

// TestOrchestratorExactlyOneOutcome tests that every URL yields exactly one
// outcome and the pool multiset is preserved.
func TestOrchestratorExactlyOneOutcome(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, "a", "b", "c")
	fetcher := fetcherFunc(func(_ context.Context, rawURL, _ string) (*Page, error) {
		switch len(rawURL) % 4 {
		case 0:
			return nil, ErrNotText
		case 1:
			panic("unexpected")
		case 2:
			return &Page{URL: rawURL, StatusCode: 404}, nil
		default:
			return &Page{URL: rawURL, StatusCode: 200, HTML: "<p>ok</p>"}, nil
		}
	})

	var mu sync.Mutex
	counts := make(map[string]int)
	w := NewWorker(fetcher, pool, output.NewPageWriter(t.TempDir()), &recordingSink{}, WithWorkerLogger(discardLogger()))
	o := NewOrchestrator(w, WithLogger(discardLogger()), WithOutcomeHandler(func(out model.Outcome) {
		mu.Lock()
		counts[out.URL]++
		mu.Unlock()
	}))

	urls := make([]string, 40)
	for i := range urls {
		urls[i] = fmt.Sprintf("http://host%d.test/%s", i, strings.Repeat("x", i%4))
	}

	if _, err := o.Run(context.Background(), urls); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, u := range urls {
		if counts[u] != 1 {
			t.Errorf("url %q has %d outcomes", u, counts[u])
		}
	}

	var got []string
	for range pool.Size() {
		l, err := pool.Lease(context.Background())
		if err != nil {
			t.Fatalf("lease failed: %v", err)
		}
		got = append(got, l.Addr())
	}
	sort.Strings(got)
	if fmt.Sprint(got) != "[a b c]" {
		t.Errorf("pool contents changed: %v", got)
	}
}

// TestOrchestratorCancellation tests that Run reports cancellation.
func TestOrchestratorCancellation(t *testing.T) {
	t.Parallel()

	t.Run("already cancelled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		w := NewWorker(htmlPage("<p>x</p>"), newTestPool(t, "p1"), output.NewPageWriter(t.TempDir()), &recordingSink{})
		o := NewOrchestrator(w, WithLogger(discardLogger()))

		summary, err := o.Run(ctx, []string{"http://a.test", "http://b.test"})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if summary.Total() != 0 {
			t.Errorf("expected no outcomes, got %d", summary.Total())
		}
	})

	t.Run("cancelled while waiting for a proxy", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		started := make(chan struct{})
		var once sync.Once
		fetcher := fetcherFunc(func(ctx context.Context, rawURL, _ string) (*Page, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return nil, ctx.Err()
		})

		pool := newTestPool(t, "p1")
		w := NewWorker(fetcher, pool, output.NewPageWriter(t.TempDir()), &recordingSink{}, WithWorkerLogger(discardLogger()))
		o := NewOrchestrator(w, WithLogger(discardLogger()))

		go func() {
			<-started
			cancel()
		}()

		summary, err := o.Run(ctx, []string{"http://a.test", "http://b.test", "http://c.test"})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if summary.Total() != 1 || summary.Count(model.ReasonUnhandled) != 1 {
			t.Errorf("expected the in-flight URL as the only outcome, got total=%d", summary.Total())
		}
		if pool.Available() != 1 {
			t.Error("proxy not released after cancellation")
		}
	})
}

// countingProgress records progress calls.
type countingProgress struct {
	total    atomic.Int64
	done     atomic.Int64
	finished atomic.Bool
}

func (p *countingProgress) Start(total int) { p.total.Store(int64(total)) }
func (p *countingProgress) Increment()      { p.done.Add(1) }
func (p *countingProgress) Finish()         { p.finished.Store(true) }

// TestOrchestratorProgress tests that progress follows worker completions.
func TestOrchestratorProgress(t *testing.T) {
	t.Parallel()

	progress := &countingProgress{}
	w := NewWorker(htmlPage("<p>x</p>"), newTestPool(t, "p1", "p2"), output.NewPageWriter(t.TempDir()), &recordingSink{}, WithWorkerLogger(discardLogger()))
	o := NewOrchestrator(w, WithLogger(discardLogger()), WithProgress(progress))

	urls := []string{"http://a.test", "http://b.test", "http://c.test"}
	if _, err := o.Run(context.Background(), urls); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if progress.total.Load() != 3 {
		t.Errorf("expected total 3, got %d", progress.total.Load())
	}
	if progress.done.Load() != 3 {
		t.Errorf("expected 3 increments, got %d", progress.done.Load())
	}
	if !progress.finished.Load() {
		t.Error("expected progress to be finished")
	}
}

// TestProgressBar tests the terminal progress bar.
func TestProgressBar(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewProgress(&buf)

	p.Increment() // before Start: no-op
	p.Start(2)
	p.Increment()
	p.Increment()
	p.Finish()

	if p.Current() != 2 {
		t.Errorf("expected 2, got %d", p.Current())
	}
}

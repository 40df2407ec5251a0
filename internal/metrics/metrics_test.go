package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/pagefetch/internal/model"
)

type fakePool struct {
	size, inUse int
}

func (p fakePool) Size() int  { return p.size }
func (p fakePool) InUse() int { return p.inUse }

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	return rec.Body.String()
}

// TestMetricsObserve tests outcome counters and the duration histogram.
func TestMetricsObserve(t *testing.T) {
	t.Parallel()

	m := New(fakePool{size: 4, inUse: 3})
	m.SetURLs(10)

	ok := model.NewSuccess("http://a.test", "p1", 200, "", "")
	ok.Duration = 200 * time.Millisecond
	m.Observe(ok)
	m.Observe(ok)
	m.Observe(model.NewFailure("http://b.test", "p1", model.ReasonTimeout, 0, nil))

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`pagefetch_outcomes_total{reason="ok"} 2`,
		`pagefetch_outcomes_total{reason="timeout"} 1`,
		`pagefetch_outcomes_total{reason="cannot_connect"} 0`,
		`pagefetch_fetch_duration_seconds_count{reason="ok"} 2`,
		`pagefetch_urls 10`,
		`pagefetch_proxies 4`,
		`pagefetch_proxies_in_use 3`,
		`go_goroutines`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in scrape:\n%s", want, body)
		}
	}
}

// TestMetricsWithoutPool tests that pool gauges are omitted without a pool.
func TestMetricsWithoutPool(t *testing.T) {
	t.Parallel()

	body := scrape(t, New(nil).Handler())
	if strings.Contains(body, "pagefetch_proxies") {
		t.Errorf("expected no pool gauges:\n%s", body)
	}
}

// TestMetricsRegistriesAreIndependent tests that two Metrics never share counters.
func TestMetricsRegistriesAreIndependent(t *testing.T) {
	t.Parallel()

	a, b := New(nil), New(nil)
	a.Observe(model.NewFailure("http://x.test", "p", model.ReasonUnhandled, 0, nil))

	if !strings.Contains(scrape(t, a.Handler()), `pagefetch_outcomes_total{reason="unhandled"} 1`) {
		t.Error("expected counter in first registry")
	}
	if !strings.Contains(scrape(t, b.Handler()), `pagefetch_outcomes_total{reason="unhandled"} 0`) {
		t.Error("expected untouched counter in second registry")
	}
}

// TestServer tests serving /metrics on a real listener.
func TestServer(t *testing.T) {
	t.Parallel()

	m := New(fakePool{size: 1})
	srv, err := m.Listen("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://"+srv.Addr()+"/metrics", nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to scrape: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if !strings.Contains(string(body), "pagefetch_proxies 1") {
		t.Errorf("unexpected scrape:\n%s", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}

// TestListenInvalidAddress tests bind failures.
func TestListenInvalidAddress(t *testing.T) {
	t.Parallel()

	if _, err := New(nil).Listen("256.0.0.1:http", nil); err == nil {
		t.Error("expected listen error")
	}
}

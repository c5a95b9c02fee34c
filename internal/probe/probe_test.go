package probe

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Paintersrp/rune2e/internal/config"
)

type proberFunc func(context.Context) error

func (p proberFunc) Probe(ctx context.Context) error {
	return p(ctx)
}

func TestHTTPProbe(t *testing.T) {
	var healthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	prober, err := New(&config.ReadinessSpec{HTTP: &config.HTTPProbeSpec{URL: server.URL}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	err = prober.Probe(context.Background())
	if err == nil || !strings.Contains(err.Error(), "answered 503") {
		t.Fatalf("expected a 503 failure, got %v", err)
	}

	healthy.Store(true)
	if err := prober.Probe(context.Background()); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestHTTPProbeExpectStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	prober, err := New(&config.ReadinessSpec{HTTP: &config.HTTPProbeSpec{URL: server.URL, ExpectStatus: []int{200}}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	want := "GET " + server.URL + " answered 204 (want [200])"
	if err := prober.Probe(context.Background()); err == nil || err.Error() != want {
		t.Fatalf("expected %q, got %v", want, err)
	}
}

func TestHTTPCheckTreatsRedirectAsReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		http.Redirect(w, r, "/login", http.StatusFound)
	}))
	t.Cleanup(server.Close)

	prober, err := New(&config.ReadinessSpec{HTTP: &config.HTTPProbeSpec{URL: server.URL}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := prober.Probe(context.Background()); err != nil {
		t.Fatalf("expected redirect to count as ready, got %v", err)
	}
}

func TestHTTPCheckIncludesResponseBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "webpack still compiling", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	prober, err := New(&config.ReadinessSpec{HTTP: &config.HTTPProbeSpec{URL: server.URL}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	err = prober.Probe(context.Background())
	if err == nil || !strings.HasSuffix(err.Error(), "answered 503: webpack still compiling") {
		t.Fatalf("expected body in failure, got %v", err)
	}
}

func TestTCPProbeClosedPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()

	prober, err := New(&config.ReadinessSpec{TCP: &config.TCPProbeSpec{Address: addr}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := prober.Probe(context.Background()); err != nil {
		t.Fatalf("expected open port to succeed, got %v", err)
	}

	ln.Close()
	err = prober.Probe(context.Background())
	if err == nil || !strings.Contains(err.Error(), "nothing listening on "+addr) {
		t.Fatalf("expected connection failure, got %v", err)
	}
}

func TestCommandProbe(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell not available on windows test environment")
	}

	prober, err := New(&config.ReadinessSpec{Command: &config.CommandProbeSpec{Command: []string{"/bin/sh", "-c", "echo booting >&2; echo 'migrations pending'; exit 3"}}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	want := "readiness command exited with status 3: migrations pending"
	if err := prober.Probe(context.Background()); err == nil || err.Error() != want {
		t.Fatalf("expected %q, got %v", want, err)
	}
}

func TestNewRequiresProbe(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error for nil spec")
	}
	if _, err := New(&config.ReadinessSpec{}); err == nil {
		t.Fatalf("expected error for empty spec")
	}
	_, err := newCommandCheck(&config.CommandProbeSpec{})
	if err == nil || !strings.Contains(err.Error(), "requires") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMultiProberAnySuccess(t *testing.T) {
	failing := proberFunc(func(context.Context) error { return errors.New("refused") })
	blocking := proberFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ok := proberFunc(func(context.Context) error { return nil })

	m := &multiProber{terms: []probeTerm{{alias: "http", probe: failing}, {alias: "tcp", probe: blocking}, {alias: "cmd", probe: ok}}}
	if err := m.Probe(context.Background()); err != nil {
		t.Fatalf("expected success when any probe succeeds, got %v", err)
	}

	m = &multiProber{terms: []probeTerm{{alias: "http", probe: failing}, {alias: "cmd", probe: failing}}}
	err := m.Probe(context.Background())
	if err == nil {
		t.Fatalf("expected failure when all probes fail")
	}
	if !strings.Contains(err.Error(), "http: refused") || !strings.Contains(err.Error(), "cmd: refused") {
		t.Fatalf("expected aliased errors, got %v", err)
	}
}

func TestWaitSucceedsAfterRetries(t *testing.T) {
	var calls atomic.Int32
	prober := proberFunc(func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	var notified []int
	attempts, err := Wait(context.Background(), prober, WaitOptions{
		Interval: 5 * time.Millisecond,
		Timeout:  time.Second,
		Notify:   func(attempt int, err error) { notified = append(notified, attempt) },
	})
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(notified) != 2 {
		t.Fatalf("expected 2 failure notifications, got %v", notified)
	}
}

func TestWaitTimesOut(t *testing.T) {
	prober := proberFunc(func(context.Context) error { return errors.New("connection refused") })

	start := time.Now()
	_, err := Wait(context.Background(), prober, WaitOptions{
		Interval: 10 * time.Millisecond,
		Timeout:  100 * time.Millisecond,
	})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !strings.Contains(err.Error(), "not ready after") {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("wait exceeded its budget: %s", elapsed)
	}
}

func TestWaitAttemptTimeout(t *testing.T) {
	prober := proberFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	var lastErr error
	_, err := Wait(context.Background(), prober, WaitOptions{
		Interval:       5 * time.Millisecond,
		Timeout:        200 * time.Millisecond,
		AttemptTimeout: 20 * time.Millisecond,
		Notify:         func(_ int, err error) { lastErr = err },
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if lastErr == nil || !strings.Contains(lastErr.Error(), "timeout after") {
		t.Fatalf("expected attempt timeout notification, got %v", lastErr)
	}
}

func TestWaitAbortsWhenServerExits(t *testing.T) {
	prober := proberFunc(func(context.Context) error { return errors.New("connection refused") })
	exited := make(chan struct{})
	go func() {
		time.Sleep(30 * time.Millisecond)
		close(exited)
	}()

	_, err := Wait(context.Background(), prober, WaitOptions{
		Interval: 10 * time.Millisecond,
		Timeout:  5 * time.Second,
		Exited:   exited,
	})
	if !errors.Is(err, ErrServerExited) {
		t.Fatalf("expected ErrServerExited, got %v", err)
	}
}

func TestWaitCancellation(t *testing.T) {
	prober := proberFunc(func(context.Context) error { return errors.New("connection refused") })
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Wait(ctx, prober, WaitOptions{Interval: 5 * time.Millisecond, Timeout: 5 * time.Second})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWaitZeroIntervalUsesDefault(t *testing.T) {
	var calls atomic.Int32
	prober := proberFunc(func(context.Context) error {
		calls.Add(1)
		return errors.New("connection refused")
	})

	_, err := Wait(context.Background(), prober, WaitOptions{Timeout: 300 * time.Millisecond})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if got := calls.Load(); got > 3 {
		t.Fatalf("expected attempts paced by %s, got %d attempts", config.DefaultReadinessInterval, got)
	}
}

func TestWaitWithoutTimeoutRunsUntilCancelled(t *testing.T) {
	prober := proberFunc(func(context.Context) error { return errors.New("connection refused") })
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	attempts, err := Wait(ctx, prober, WaitOptions{Interval: 5 * time.Millisecond})
	if err == nil {
		t.Fatalf("expected error")
	}
	if ctx.Err() == nil {
		t.Fatalf("wait returned before the caller's deadline: %v", err)
	}
	if attempts < 2 {
		t.Fatalf("expected repeated attempts, got %d", attempts)
	}
}

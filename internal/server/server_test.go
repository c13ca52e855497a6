package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/toeirei/launchpad/internal/envvars"
	"github.com/toeirei/launchpad/internal/model"
)

func testTopology() model.Topology {
	return model.Topology{Workers: 2, Threads: 2, Timeout: 2 * time.Second, Bind: "127.0.0.1:0"}
}

// syncBuffer is written by handler goroutines that outlive a timed out request.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestServer(t *testing.T, top model.Topology, opts Options) (*Server, *syncBuffer, *syncBuffer) {
	t.Helper()
	access, errs := &syncBuffer{}, &syncBuffer{}
	opts.Access = access
	opts.Error = errs
	s, err := New(top, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, access, errs
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func restarts(s *Server) int {
	n := 0
	for _, st := range s.Pool().Stats() {
		n += st.Restarts
	}
	return n
}

func TestHealth_OK(t *testing.T) {
	s, access, _ := newTestServer(t, testTopology(), Options{Version: "1.2.3"})
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body healthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v (%s)", err, rr.Body.String())
	}
	if body.Status != "ok" || body.Version != "1.2.3" || body.Workers != 2 || body.Threads != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.InFlight != 1 {
		t.Fatalf("the probe itself should hold one slot, got %d", body.InFlight)
	}
	if !strings.Contains(access.String(), "GET / HTTP/1.1") || !strings.Contains(access.String(), "status=200") {
		t.Fatalf("expected an access line, got: %s", access.String())
	}
}

func TestHealth_CustomPathAndMethods(t *testing.T) {
	s, _, _ := newTestServer(t, testTopology(), Options{HealthPath: "/healthz"})

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodHead, "/healthz", http.StatusOK},
		{http.MethodPost, "/healthz", http.StatusMethodNotAllowed},
		{http.MethodGet, "/", http.StatusNotFound},
		{http.MethodGet, "/anything", http.StatusNotFound},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))
		if rr.Code != tc.want {
			t.Errorf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, rr.Code)
		}
	}
}

func TestNew_FailsFastOnMissingRequiredEnv(t *testing.T) {
	_, err := New(testTopology(), Options{
		Required: []string{"OPENAI_API_KEY"},
		Env:      envvars.Map{},
		Access:   io.Discard,
		Error:    io.Discard,
	})
	if !errors.Is(err, envvars.ErrMissingValue) {
		t.Fatalf("expected ErrMissingValue, got %v", err)
	}

	if _, err := New(testTopology(), Options{
		Required: []string{"OPENAI_API_KEY"},
		Env:      envvars.Map{"OPENAI_API_KEY": "sk-test"},
		Access:   io.Discard,
		Error:    io.Discard,
	}); err != nil {
		t.Fatalf("expected success with key set, got %v", err)
	}
}

func TestNew_RejectsInvalidTopology(t *testing.T) {
	top := testTopology()
	top.Threads = 0
	if _, err := New(top, Options{Access: io.Discard, Error: io.Discard}); err == nil {
		t.Fatal("expected invalid topology to be rejected")
	}
}

func TestAdmission_BusyWhenAllSlotsHeld(t *testing.T) {
	top := testTopology()
	top.Workers, top.Threads, top.Timeout = 1, 1, 50*time.Millisecond
	s, _, errs := newTestServer(t, top, Options{})

	lease, err := s.Pool().Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer lease.Release()

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while saturated, got %d", rr.Code)
	}
	eventually(t, "the admission error line", func() bool {
		return strings.Contains(errs.String(), "request not admitted")
	})
}

func TestAdmission_ClosedPool(t *testing.T) {
	s, _, _ := newTestServer(t, testTopology(), Options{})
	s.Pool().Close()

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "server busy") {
		t.Fatalf("expected busy response, got %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

// Handlers that ignore cancellation keep their slot after the timeout has
// answered, so nothing beyond the pool's capacity ever executes.
func TestAdmission_TimedOutHandlersKeepTheirSlot(t *testing.T) {
	top := testTopology()
	top.Timeout = 50 * time.Millisecond
	var running, peak atomic.Int32
	release := make(chan struct{})
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		running.Add(-1)
	})
	s, _, _ := newTestServer(t, top, Options{App: app})

	var wg sync.WaitGroup
	for i := 0; i < 3*s.Pool().Capacity(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/work", nil))
			if rr.Code != http.StatusServiceUnavailable {
				t.Errorf("expected 503, got %d", rr.Code)
			}
		}()
	}
	wg.Wait()

	if got := int(peak.Load()); got > s.Pool().Capacity() {
		t.Fatalf("%d handlers executed at once, capacity is %d", got, s.Pool().Capacity())
	}
	if got := s.Pool().InFlight(); got != int(running.Load()) {
		t.Fatalf("pool reports %d in flight while %d handlers still run", got, running.Load())
	}

	close(release)
	eventually(t, "the slots to drain", func() bool {
		return running.Load() == 0 && s.Pool().InFlight() == 0
	})
}

func TestPanic_AfterTimeoutStillCrashesWorker(t *testing.T) {
	top := testTopology()
	top.Timeout = 20 * time.Millisecond
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		panic("late boom")
	})
	s, _, errs := newTestServer(t, top, Options{App: app})

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/late", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected timeout response, got %d", rr.Code)
	}
	eventually(t, "the worker restart", func() bool { return restarts(s) == 1 })
	eventually(t, "the panic log line", func() bool {
		return strings.Contains(errs.String(), "late boom")
	})
	eventually(t, "the crashed slot to be freed", func() bool { return s.Pool().InFlight() == 0 })
}

func TestTimeout(t *testing.T) {
	top := testTopology()
	top.Timeout = 30 * time.Millisecond
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	s, _, _ := newTestServer(t, top, Options{App: app})

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/slow", nil))
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "timed out") {
		t.Fatalf("expected timeout response, got %d %q", rr.Code, rr.Body.String())
	}
	eventually(t, "the slot to be released", func() bool { return s.Pool().InFlight() == 0 })
}

func TestPanic_CrashesWorkerAndReturns500(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if WorkerFromContext(r.Context()) == 0 {
			t.Error("expected a worker id in the request context")
		}
		panic("boom")
	})
	s, _, errs := newTestServer(t, testTopology(), Options{App: app})

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/explode", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if n := restarts(s); n != 1 {
		t.Fatalf("expected one worker restart, got %d", n)
	}
	if !strings.Contains(errs.String(), "handler panic") || !strings.Contains(errs.String(), "worker restarted") {
		t.Fatalf("expected panic and restart in error log, got: %s", errs.String())
	}

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("server should keep serving after a crash, got %d", rr.Code)
	}
}

func TestGzip(t *testing.T) {
	payload := strings.Repeat("launchpad ", 1000)
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, payload)
	})
	s, _, _ := newTestServer(t, testTopology(), Options{App: app})

	req := httptest.NewRequest(http.MethodGet, "/big", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoding, headers: %v", rr.Header())
	}
	if rr.Body.Len() >= len(payload) {
		t.Fatalf("expected compressed body, got %d bytes", rr.Body.Len())
	}
}

func TestServe_ListensAndShutsDown(t *testing.T) {
	s, _, errs := newTestServer(t, testTopology(), Options{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		cancel()
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	if !strings.Contains(errs.String(), "listening") || strings.Contains(errs.String(), "error:") {
		t.Fatalf("expected unprefixed lifecycle lines, got: %s", errs.String())
	}
}

func TestRun_BindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	top := testTopology()
	top.Bind = ln.Addr().String()
	s, _, _ := newTestServer(t, top, Options{})
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected listen error on an occupied port")
	}
}

package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"portal/internal/adapters/http/perf"
	"portal/internal/adapters/logging"
)

func serve(h http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// captureLogs swaps the default logger for one writing to a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestTiming_MintsRequestID(t *testing.T) {
	var seen string
	h := Timing(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestID(r.Context())
	}))

	rr := serve(h, "GET", "/dashboard", nil)
	got := rr.Header().Get(RequestIDHeader)
	if _, err := uuid.Parse(got); err != nil {
		t.Fatalf("%s = %q, want a uuid", RequestIDHeader, got)
	}
	if seen != got {
		t.Errorf("context id = %q, header = %q", seen, got)
	}

	again := serve(h, "GET", "/dashboard", nil).Header().Get(RequestIDHeader)
	if again == got {
		t.Error("two requests shared an id")
	}
}

func TestTiming_InboundRequestID(t *testing.T) {
	h := Timing(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	tests := []struct {
		name    string
		inbound string
		keep    bool
	}{
		{"plain id kept", "lb-2f9c81aa", true},
		{"too short", "abc", false},
		{"header injection", "abc12345\r\nSet-Cookie: x=1", false},
		{"too long", strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serve(h, "GET", "/", http.Header{RequestIDHeader: {tt.inbound}}).Header().Get(RequestIDHeader)
			if (got == tt.inbound) != tt.keep {
				t.Errorf("id = %q, keep = %v", got, tt.keep)
			}
		})
	}
}

func TestTiming_SkipsStatic(t *testing.T) {
	collector := perf.NewCollector(10)
	h := Timing(collector)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rr := serve(h, "GET", "/static/app.css", nil)
	if collector.TotalRecorded() != 0 {
		t.Errorf("TotalRecorded = %d, want 0", collector.TotalRecorded())
	}
	if rr.Header().Get(RequestIDHeader) != "" {
		t.Error("static response carries a request id")
	}
}

func TestTiming_RecordsFoldedRoute(t *testing.T) {
	collector := perf.NewCollector(10)
	h := Timing(collector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve(h, "DELETE", "/api/countries/17", nil)
	serve(h, "DELETE", "/api/countries/3f2b8c1e-9d4a-4b7e-8c2f-0a1b2c3d4e5f", nil)

	snap := collector.Snapshot(time.Now().Add(-time.Minute), 10)
	if len(snap.Requests.Slowest) != 1 {
		t.Fatalf("Slowest = %+v, want one folded route", snap.Requests.Slowest)
	}
	if got := snap.Requests.Slowest[0].Path; got != "DELETE /api/countries/{id}" {
		t.Errorf("Path = %q", got)
	}
}

func TestRouteKey(t *testing.T) {
	tests := map[string]string{
		"/admin/questionnaires/qn1":     "GET /admin/questionnaires/qn1",
		"/api/sessions/42/cancel":       "GET /api/sessions/{id}/cancel",
		"/":                             "GET /",
		"/api/questions/reorder":        "GET /api/questions/reorder",
		"/api/admins/00000000-0000-0000-0000-000000000000": "GET /api/admins/{id}",
	}
	for path, want := range tests {
		if got := routeKey("GET", path); got != want {
			t.Errorf("routeKey(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestTiming_LogsStatusAndSize(t *testing.T) {
	logs := captureLogs(t)
	h := Timing(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rr := serve(h, "GET", "/brew", nil)
	out := logs.String()
	for _, want := range []string{"msg=request", "status=418", "bytes=15", "request_id=" + rr.Header().Get(RequestIDHeader)} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}

func TestTiming_SlowRequestWarns(t *testing.T) {
	logs := captureLogs(t)
	prev := time.Duration(slowRequestNs.Load())
	SetSlowRequestThreshold(time.Millisecond)
	t.Cleanup(func() { SetSlowRequestThreshold(prev) })

	h := Timing(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		time.Sleep(5 * time.Millisecond)
	}))
	serve(h, "GET", "/api/sessions", nil)

	if !strings.Contains(logs.String(), "level=WARN msg=slow_request") {
		t.Errorf("no slow_request warning in %q", logs.String())
	}
}

func TestSetSlowRequestThreshold_IgnoresNonPositive(t *testing.T) {
	prev := time.Duration(slowRequestNs.Load())
	t.Cleanup(func() { SetSlowRequestThreshold(prev) })

	SetSlowRequestThreshold(3 * time.Second)
	SetSlowRequestThreshold(0)
	SetSlowRequestThreshold(-time.Second)
	if got := time.Duration(slowRequestNs.Load()); got != 3*time.Second {
		t.Errorf("threshold = %v, want 3s", got)
	}
}

func TestTiming_PanicStillRecorded(t *testing.T) {
	collector := perf.NewCollector(10)
	h := Timing(collector)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	func() {
		defer func() { _ = recover() }()
		serve(h, "GET", "/api/countries", nil)
	}()
	if collector.TotalRecorded() != 1 {
		t.Errorf("TotalRecorded = %d, want 1", collector.TotalRecorded())
	}
	if rate := collector.Snapshot(time.Now().Add(-time.Minute), 1).Requests.ErrorRate; rate != 1 {
		t.Errorf("ErrorRate = %v, want the panic counted as a failure", rate)
	}
}

func TestRecorder_Unwrap(t *testing.T) {
	h := Timing(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := http.NewResponseController(w).Flush(); err != nil {
			t.Errorf("Flush through recorder: %v", err)
		}
	}))
	rr := serve(h, "GET", "/events", nil)
	if !rr.Flushed {
		t.Error("underlying writer not flushed")
	}
}

func BenchmarkTiming(b *testing.B) {
	collector := perf.NewCollector(perf.DefaultRingSize)
	h := Timing(collector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest("GET", "/api/questionnaires/qn1", nil)
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			h.ServeHTTP(httptest.NewRecorder(), req)
		}
	})
}

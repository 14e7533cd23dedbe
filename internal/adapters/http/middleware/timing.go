package middleware

import (
	"net/http"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"portal/internal/adapters/http/perf"
	"portal/internal/adapters/logging"
)

// RequestIDHeader is echoed on every response and forwarded to the API.
const RequestIDHeader = "X-Request-ID"

// DefaultSlowRequest is the threshold above which a request logs at WARN.
const DefaultSlowRequest = 200 * time.Millisecond

var slowRequestNs atomic.Int64

func init() { slowRequestNs.Store(int64(DefaultSlowRequest)) }

// SetSlowRequestThreshold changes the slow-request threshold. Non-positive
// values are ignored.
func SetSlowRequestThreshold(d time.Duration) {
	if d > 0 {
		slowRequestNs.Store(int64(d))
	}
}

// inboundID accepts a caller-supplied id only if it is short and plain.
var inboundID = regexp.MustCompile(`^[A-Za-z0-9._-]{8,64}$`)

// requestID reuses a well-formed inbound X-Request-ID, otherwise mints one.
func requestID(r *http.Request) string {
	if id := r.Header.Get(RequestIDHeader); inboundID.MatchString(id) {
		return id
	}
	return uuid.NewString()
}

// idSegment matches path segments that name a single record.
var idSegment = regexp.MustCompile(`^([0-9]+|[0-9a-fA-F]{8}-[0-9a-fA-F-]{27})$`)

// routeKey folds record ids out of the path so the perf dashboard groups
// /api/countries/7 and /api/countries/9 together.
func routeKey(method, path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if idSegment.MatchString(p) {
			parts[i] = "{id}"
		}
	}
	return method + " " + strings.Join(parts, "/")
}

// recorder captures status and size of the response.
type recorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rw *recorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *recorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// Timing tags each request with a correlation id and logs its duration.
// PRE: collector may be nil
// POST: X-Request-ID set on the response; the id is in the request context
// for logging.FromContext and the API client
// INVARIANT: /static/ requests pass through untouched
func Timing(collector *perf.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/static/") {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			id := requestID(r)
			w.Header().Set(RequestIDHeader, id)
			ctx := logging.WithRequestID(r.Context(), id)
			rw := &recorder{ResponseWriter: w, status: http.StatusOK}
			finished := false

			defer func() {
				elapsed := time.Since(start)
				durationMs := float64(elapsed.Microseconds()) / 1000.0
				status := rw.status
				if !finished {
					// the handler panicked; net/http answers 500
					status = http.StatusInternalServerError
				}
				log := logging.FromContext(ctx).With(
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"bytes", rw.bytes,
					"duration_ms", durationMs,
				)
				if elapsed >= time.Duration(slowRequestNs.Load()) {
					log.Warn("slow_request")
				} else {
					log.Debug("request")
				}
				if collector != nil {
					collector.Record(perf.Entry{
						Kind:       perf.KindRequest,
						Path:       routeKey(r.Method, r.URL.Path),
						StatusCode: status,
						Failed:     status >= http.StatusInternalServerError,
						DurationMs: durationMs,
						Timestamp:  start,
					})
				}
			}()

			next.ServeHTTP(rw, r.WithContext(ctx))
			finished = true
		})
	}
}

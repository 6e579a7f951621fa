package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Timeout bounds each request to d. When the deadline passes before the
// handler has written anything, the client gets a 504 JSON body carrying the
// request id and later writes from the handler are discarded.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			gw := &guardedWriter{w: w, header: w.Header().Clone()}
			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(gw, r.WithContext(ctx))
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if gw.expire() {
					slog.Default().With("component", "middleware").Warn("request deadline exceeded",
						"method", r.Method,
						"path", r.URL.Path,
						"request_id", GetRequestID(r.Context()),
						"timeout", d,
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusGatewayTimeout)
					json.NewEncoder(w).Encode(map[string]string{
						"error":      "request timed out",
						"request_id": GetRequestID(r.Context()),
					})
				}
			}
		})
	}
}

// guardedWriter serialises the handler goroutine against the timeout path.
// Once the handler starts writing the response belongs to it; once the
// deadline fires first every later write fails with http.ErrHandlerTimeout.
type guardedWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	header  http.Header
	started bool
	expired bool
}

func (g *guardedWriter) Header() http.Header { return g.header }

func (g *guardedWriter) begin(code int) bool {
	if g.expired {
		return false
	}
	if !g.started {
		g.started = true
		dst := g.w.Header()
		for k, v := range g.header {
			dst[k] = v
		}
		g.w.WriteHeader(code)
	}
	return true
}

func (g *guardedWriter) WriteHeader(code int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.begin(code)
}

func (g *guardedWriter) Write(b []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.begin(http.StatusOK) {
		return 0, http.ErrHandlerTimeout
	}
	return g.w.Write(b)
}

// expire marks the writer dead and reports whether the timeout path now
// owns the response.
func (g *guardedWriter) expire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return false
	}
	g.expired = true
	return true
}

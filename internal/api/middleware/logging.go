package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/Harshitk-cp/switchboard/internal/domain"
	"go.uber.org/zap"
)

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Flush lets event streams push through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

const sessionSlotKey contextKey = "session_slot"

// sessionSlot lets SessionAuth, which runs deeper in the chain, report the
// resolved session back to the request log line.
type sessionSlot struct {
	session *domain.Session
}

// Logging returns middleware that logs each request with structured JSON output.
// Frame relay bodies are never logged.
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)
			seen := &sessionSlot{}

			next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), sessionSlotKey, seen)))

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.statusCode),
				zap.Int64("bytes", rw.written),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
			}
			if sess := seen.session; sess != nil {
				fields = append(fields,
					zap.String("tenant_id", sess.TenantID),
					zap.String("user_id", sess.UserID))
			}
			logger.Info("http request", fields...)
		})
	}
}

package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"payslip/internal/requestctx"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// Logger attaches a request-scoped zap logger to the context and writes one
// line per request once the handler returns.
func Logger(base *zap.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := base.With(zap.String("requestId", GetRequestID(r.Context())))
			ctx := requestctx.WithLogger(r.Context(), reqLogger)

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", recorder.status),
				zap.Int("bytes", recorder.bytes),
				zap.Duration("duration", time.Since(start)),
				zap.String("remoteIp", ClientIP(r)),
			}
			switch {
			case recorder.status >= http.StatusInternalServerError:
				reqLogger.Error("http request", fields...)
			case recorder.status >= http.StatusBadRequest:
				reqLogger.Warn("http request", fields...)
			default:
				reqLogger.Info("http request", fields...)
			}
		})
	}
}

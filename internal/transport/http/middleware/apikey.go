package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"payslip/internal/platform/metrics"
	"payslip/internal/requestctx"
	"payslip/internal/transport/http/api"
)

const APIKeyHeader = "X-API-Key"

type ctxKey string

const (
	ctxKeyAPIKey  ctxKey = "api_key"
	ctxKeySession ctxKey = "session"
)

// KeyRecorder validates an API key and meters its use.
type KeyRecorder interface {
	RecordUsage(ctx context.Context, key string) (bool, error)
}

// ExtractAPIKey reads the X-API-Key header and, when allowQuery is set, the
// apiKey query parameter.
func ExtractAPIKey(r *http.Request, allowQuery bool) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key
	}
	if allowQuery {
		return strings.TrimSpace(r.URL.Query().Get("apiKey"))
	}
	return ""
}

// RequireAPIKey rejects requests without a known key. Every accepted request
// counts once towards the key's usage.
func RequireAPIKey(recorder KeyRecorder, allowQuery bool, collector *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := GetRequestID(r.Context())
			key := ExtractAPIKey(r, allowQuery)
			if key == "" {
				collector.ObserveAPIKey(false)
				api.Fail(w, http.StatusUnauthorized, api.CodeUnauthorized, "Unauthorized. Invalid or missing API key", reqID)
				return
			}
			ok, err := recorder.RecordUsage(r.Context(), key)
			if err != nil {
				requestctx.Logger(r.Context()).Error("api key lookup failed", zap.Error(err))
				api.Fail(w, http.StatusInternalServerError, api.CodeInternal, "internal server error", reqID)
				return
			}
			collector.ObserveAPIKey(ok)
			if !ok {
				api.Fail(w, http.StatusUnauthorized, api.CodeUnauthorized, "Unauthorized. Invalid or missing API key", reqID)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyAPIKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetAPIKey(ctx context.Context) string {
	key, _ := ctx.Value(ctxKeyAPIKey).(string)
	return key
}

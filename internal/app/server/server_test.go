package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payslip/internal/platform/config"
	"payslip/internal/platform/jobs"
	"payslip/internal/transport/http/middleware"
)

func testConfig() config.Config {
	return config.Config{
		Environment:          "development",
		StorageDriver:        config.DriverMemory,
		AdminName:            "Administrator",
		MaxBodyBytes:         1 << 20,
		RateLimitPerMinute:   1000,
		SessionTTL:           time.Hour,
		SessionSweepInterval: time.Hour,
		MetricsEnabled:       true,
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	app, err := New(context.Background(), testConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestHealthAndReadiness(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.StorageDriver = "etcd"
	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestDefaultKeyServesCalculations(t *testing.T) {
	app := newTestApp(t)
	require.Len(t, app.DefaultKey, 64)
	assert.Equal(t, fallbackAdminEmail, app.Config.AdminEmail)

	req := httptest.NewRequest(http.MethodPost, "/api/calculate", strings.NewReader(`{"salary":1050,"epfRate":"9%"}`))
	req.Header.Set(middleware.APIKeyHeader, app.DefaultKey)
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env struct {
		Data struct {
			Calculations map[string]float64 `json:"calculations"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, 94.5, env.Data.Calculations["epfEmployeeDeduction"])
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t)
	app.Router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	app := newTestApp(t)
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"not_found"`)
}

func TestRateLimitApplied(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 1
	app, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer app.Close()

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/save-payslip?userId=someone", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		rec := httptest.NewRecorder()
		app.Router.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestRateLimitIgnoresUnvalidatedAPIKeys(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 3
	app, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer app.Close()

	throttled := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"email":"a@example.com","password":"wrong-password"}`))
		req.Header.Set(middleware.APIKeyHeader, fmt.Sprintf("bogus-%d", i))
		req.RemoteAddr = "203.0.113.20:1234"
		rec := httptest.NewRecorder()
		app.Router.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			throttled++
		}
	}
	assert.Equal(t, 17, throttled)
}

func TestHistoryFindsPayslipsSavedWithMixedCaseEmail(t *testing.T) {
	app := newTestApp(t)

	send := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		app.Router.ServeHTTP(rec, req)
		return rec
	}

	save := httptest.NewRequest(http.MethodPost, "/api/save-payslip",
		strings.NewReader(`{"userId":"Alice@Example.com","data":{"companyName":"Acme","employeeName":"Alice","basicSalary":3000}}`))
	require.Equal(t, http.StatusOK, send(save).Code)

	saveUser := httptest.NewRequest(http.MethodPost, "/api/v1/save-user",
		strings.NewReader(`{"name":"Alice","email":"Alice@Example.com","phone":"0123456789"}`))
	saveUser.Header.Set(middleware.APIKeyHeader, app.DefaultKey)
	require.Equal(t, http.StatusOK, send(saveUser).Code)

	login := send(httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"Alice@Example.com"}`)))
	require.Equal(t, http.StatusOK, login.Code)
	cookies := login.Result().Cookies()
	require.NotEmpty(t, cookies)

	history := httptest.NewRequest(http.MethodGet, "/payslip/history", nil)
	for _, c := range cookies {
		history.AddCookie(c)
	}
	rec := send(history)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Total int `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Data.Total)
}

func TestStartJobsRegistersSchedules(t *testing.T) {
	cfg := testConfig()
	cfg.SessionSweepInterval = 10 * time.Millisecond
	app, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	app.StartJobs(ctx)
	require.Eventually(t, func() bool {
		_, ok := app.Jobs.LastRun(jobs.JobSessionSweep)
		return ok
	}, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, app.Close())
}

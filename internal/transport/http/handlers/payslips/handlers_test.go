package payslipshandler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payslip/internal/domain/accounts"
	"payslip/internal/domain/payroll"
	"payslip/internal/platform/kv"
	"payslip/internal/platform/metrics"
	"payslip/internal/transport/http/middleware"
)

type fixture struct {
	router   http.Handler
	accounts *accounts.Service
	archive  *payroll.Archive
	key      string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := kv.NewMemory()
	svc := accounts.NewService(store, "test-secret")
	user, err := svc.CreateUser(ctx, "Admin", "admin@example.com", "password123")
	require.NoError(t, err)
	key, err := svc.GenerateAPIKey(ctx, user.ID, "tests")
	require.NoError(t, err)

	archive := payroll.NewArchive(store, nil)
	h := NewHandler(archive, svc, svc, middleware.NewIdempotencyStore(store), metrics.New())
	h.Now = func() time.Time { return time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC) }

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	h.RegisterRoutes(r)
	return fixture{router: r, accounts: svc, archive: archive, key: key.Key}
}

func (f fixture) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f fixture) withKey() map[string]string {
	return map[string]string{middleware.APIKeyHeader: f.key}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

const previewBody = `{"companyName":"Acme Sdn Bhd","companyAddress":"1 Jalan Ampang\nKuala Lumpur","employeeName":"Nur Aina","basicSalary":3000,"bonus":500}`

func TestCalculateRequiresAPIKey(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/calculate", `{"salary":3000}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid or missing API key")

	rec = f.do(http.MethodPost, "/api/calculate", `{"salary":3000}`, map[string]string{middleware.APIKeyHeader: "unknown"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCalculateAppliesDefaults(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/calculate", `{"salary":5000,"bonus":1000}`, f.withKey())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var data struct {
		Input struct {
			Salary    float64 `json:"salary"`
			EPFRate   string  `json:"epfRate"`
			SOCSOType string  `json:"socsoType"`
			EISType   string  `json:"eisType"`
		} `json:"input"`
		Calculations map[string]float64 `json:"calculations"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
	assert.Equal(t, "11%", data.Input.EPFRate)
	assert.Equal(t, "both", data.Input.SOCSOType)
	assert.Equal(t, "auto", data.Input.EISType)

	calc := data.Calculations
	assert.Equal(t, 660.0, calc["epfEmployeeDeduction"])
	assert.Equal(t, 780.0, calc["epfEmployer"])
	assert.Equal(t, 20.0, calc["socsoEmployee"])
	assert.Equal(t, 70.0, calc["socsoEmployer"])
	assert.Equal(t, 8.0, calc["eisEmployee"])
	assert.Equal(t, 180.0, calc["pcbDeduction"])
	assert.Equal(t, 25.0, calc["hrdf"])
	assert.Equal(t, 6000.0, calc["totalEarnings"])
	assert.Equal(t, 868.0, calc["totalDeductions"])
	assert.Equal(t, 5132.0, calc["netIncome"])
}

func TestCalculateRejectsNonNumbers(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/calculate", `{"salary":"3000"}`, f.withKey())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode(t, rec).Error.Code)

	rec = f.do(http.MethodPost, "/api/calculate", `{"salary":-1}`, f.withKey())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalculateCountsKeyUsage(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		rec := f.do(http.MethodPost, "/api/calculate", `{"salary":1000}`, f.withKey())
		require.Equal(t, http.StatusOK, rec.Code)
	}
	user, err := f.accounts.GetUserByEmail(context.Background(), "admin@example.com")
	require.NoError(t, err)
	stats, err := f.accounts.UsageStats(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalRequests)
}

func TestPreviewPayslipJSON(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/preview-payslip?format=json", previewBody, f.withKey())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var data struct {
		PayslipData  payroll.Payslip    `json:"payslipData"`
		Calculations map[string]float64 `json:"calculations"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
	assert.Equal(t, "March", data.PayslipData.Month)
	assert.Equal(t, "2025", data.PayslipData.Year)
	assert.Equal(t, "2025-03-14", data.PayslipData.IssueDate)
	assert.Equal(t, 385.0, data.PayslipData.EPFEmployeeDeduction)
	assert.Equal(t, 3500.0, data.Calculations["totalEarnings"])
}

func TestPreviewPayslipHTML(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/preview-payslip", previewBody, f.withKey())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Nur Aina")
	assert.Contains(t, rec.Body.String(), "1 Jalan Ampang<br>Kuala Lumpur")
}

func TestPreviewPayslipRequiresFields(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/preview-payslip", `{"companyName":"Acme"}`, f.withKey())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	assert.Contains(t, env.Error.Message, "employeeName")
}

func TestDownloadPDF(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/download-pdf", previewBody, f.withKey())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "true", rec.Header().Get("X-API-Generated"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "payslip-Nur_Aina-March-2025.pdf")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestDownloadPayslipByIDAndData(t *testing.T) {
	f := newFixture(t)
	var p payroll.Payslip
	require.NoError(t, json.Unmarshal([]byte(previewBody), &p))
	record, err := f.archive.Save(context.Background(), "aina@example.com", p)
	require.NoError(t, err)

	rec := f.do(http.MethodGet, "/api/download-payslip?id="+record.ID, "", f.withKey())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("X-API-Generated"))

	rec = f.do(http.MethodGet, "/api/download-payslip?data="+url.QueryEscape(previewBody), "", f.withKey())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/download-payslip?id=missing", "", f.withKey())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/download-payslip", "", f.withKey())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveAndFetchPayslips(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/save-payslip", `{"userId":"aina@example.com","data":`+previewBody+`}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var saved struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &saved))
	assert.Len(t, saved.ID, 16)

	rec = f.do(http.MethodGet, "/api/save-payslip?id="+saved.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var record payroll.Record
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &record))
	assert.Equal(t, "Nur Aina", record.Data.EmployeeName)

	rec = f.do(http.MethodGet, "/api/save-payslip?userId=aina@example.com", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page pageResult
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &page))
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, saved.ID, page.Items[0].ID)

	rec = f.do(http.MethodGet, "/api/save-payslip", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/save-payslip", `{"userId":"aina@example.com"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSavePayslipV1RequiresKey(t *testing.T) {
	f := newFixture(t)
	body := `{"userId":"aina@example.com","data":` + previewBody + `}`
	rec := f.do(http.MethodPost, "/api/v1/save-payslip", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/save-payslip?apiKey="+f.key, body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSavePayslipIdempotency(t *testing.T) {
	f := newFixture(t)
	body := `{"userId":"aina@example.com","data":` + previewBody + `}`
	headers := map[string]string{middleware.IdempotencyHeader: "retry-1"}

	first := f.do(http.MethodPost, "/api/save-payslip", body, headers)
	require.Equal(t, http.StatusOK, first.Code)
	second := f.do(http.MethodPost, "/api/save-payslip", body, headers)
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, string(decode(t, first).Data), string(decode(t, second).Data))

	count, err := f.archive.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	conflict := f.do(http.MethodPost, "/api/save-payslip", `{"userId":"aina@example.com","data":{"companyName":"Other"}}`, headers)
	assert.Equal(t, http.StatusConflict, conflict.Code)
}

func TestHistoryUsesWebSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var p payroll.Payslip
	require.NoError(t, json.Unmarshal([]byte(previewBody), &p))
	_, err := f.archive.Save(ctx, "aina@example.com", p)
	require.NoError(t, err)

	rec := f.do(http.MethodGet, "/payslip/history", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, token, err := f.accounts.CreateSession(ctx, accounts.SessionWeb, "", "aina@example.com")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/payslip/history", nil)
	req.AddCookie(&http.Cookie{Name: accounts.SessionWeb.CookieName(), Value: token})
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var page pageResult
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &page))
	assert.Equal(t, 1, page.Total)
}

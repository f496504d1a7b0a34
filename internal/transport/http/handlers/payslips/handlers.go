package payslipshandler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"payslip/internal/domain/accounts"
	"payslip/internal/domain/payroll"
	"payslip/internal/platform/metrics"
	"payslip/internal/requestctx"
	"payslip/internal/transport/http/api"
	"payslip/internal/transport/http/middleware"
	"payslip/internal/transport/http/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Handler struct {
	Archive       *payroll.Archive
	Rates         payroll.RateTable
	Keys          middleware.KeyRecorder
	Sessions      middleware.SessionLookup
	Idempotency   *middleware.IdempotencyStore
	Metrics       *metrics.Collector
	KeyLimiter    *middleware.RateLimiter
	SecureCookies bool
	Now           func() time.Time
}

func NewHandler(archive *payroll.Archive, keys middleware.KeyRecorder, sessions middleware.SessionLookup, idem *middleware.IdempotencyStore, collector *metrics.Collector) *Handler {
	return &Handler{
		Archive:     archive,
		Rates:       payroll.DefaultRates(),
		Keys:        keys,
		Sessions:    sessions,
		Idempotency: idem,
		Metrics:     collector,
		Now:         time.Now,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	headerKey := chi.Chain(middleware.RequireAPIKey(h.Keys, false, h.Metrics), h.KeyLimiter.Handler)
	anyKey := chi.Chain(middleware.RequireAPIKey(h.Keys, true, h.Metrics), h.KeyLimiter.Handler)

	r.With(headerKey...).Post("/api/calculate", h.handleCalculate)
	r.With(headerKey...).Post("/api/preview-payslip", h.handlePreview)
	r.With(headerKey...).Post("/api/download-pdf", h.handleDownloadPDF)
	r.With(headerKey...).Get("/api/download-payslip", h.handleDownloadPayslip)

	r.Get("/api/save-payslip", h.handleGetPayslips)
	r.Post("/api/save-payslip", h.handleSavePayslip)
	r.Get("/api/v1/save-payslip", h.handleGetPayslips)
	r.With(anyKey...).Post("/api/v1/save-payslip", h.handleSavePayslip)

	r.With(middleware.RequireSession(accounts.SessionWeb, h.Sessions, h.SecureCookies)).Get("/payslip/history", h.handleHistory)
}

type calculateRequest struct {
	Salary    float64 `json:"salary"`
	Bonus     float64 `json:"bonus"`
	EPFRate   string  `json:"epfRate"`
	SOCSOType string  `json:"socsoType"`
	EISType   string  `json:"eisType"`
}

type calculateResult struct {
	payroll.Deductions
	TotalEarnings   float64 `json:"totalEarnings"`
	TotalDeductions float64 `json:"totalDeductions"`
	NetIncome       float64 `json:"netIncome"`
}

func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	payload := calculateRequest{
		EPFRate:   string(payroll.DefaultEPFRate),
		SOCSOType: string(payroll.DefaultSOCSOScheme),
		EISType:   string(payroll.DefaultEISMode),
	}
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}

	v := shared.NewValidator()
	v.NonNegative("salary", payload.Salary)
	v.NonNegative("bonus", payload.Bonus)
	if v.Reject(w, reqID) {
		return
	}

	in := payroll.DeductionInput{
		BasicSalary: payload.Salary,
		Bonus:       payload.Bonus,
		EPFRate:     payroll.ParseEPFRate(payload.EPFRate),
		SOCSOScheme: payroll.ParseSOCSOScheme(payload.SOCSOType),
		EISMode:     payroll.ParseEISMode(payload.EISType),
	}
	d := h.Rates.Calculate(in)
	h.Metrics.ObserveCalculation(string(in.EPFRate), string(in.SOCSOScheme))

	api.Success(w, map[string]any{
		"input": payload,
		"calculations": calculateResult{
			Deductions:      d,
			TotalEarnings:   payroll.TotalEarnings(payload.Salary, payload.Bonus),
			TotalDeductions: payroll.TotalDeductions(d.PCBDeduction, d.EPFEmployeeDeduction, d.SOCSOEmployee, d.EISEmployee),
			NetIncome:       payroll.NetIncome(payload.Salary, payload.Bonus, d.PCBDeduction, d.EPFEmployeeDeduction, d.SOCSOEmployee, d.EISEmployee),
		},
	}, reqID)
}

// decodePayslip reads, validates and normalizes a payslip body.
func (h *Handler) decodePayslip(w http.ResponseWriter, r *http.Request) (payroll.Payslip, bool) {
	reqID := middleware.GetRequestID(r.Context())
	var p payroll.Payslip
	if !shared.DecodeJSON(w, r, &p, reqID) {
		return p, false
	}
	p.Sanitize()
	if err := p.Validate(); err != nil {
		failPayslipValidation(w, err, reqID)
		return p, false
	}
	p.ApplyDefaults(h.Now())
	if p.ApplyDeductions(h.Rates) {
		h.Metrics.ObserveCalculation(string(payroll.ParseEPFRate(p.EPFRate)), string(payroll.ParseSOCSOScheme(p.SOCSOType)))
	}
	return p, true
}

func failPayslipValidation(w http.ResponseWriter, err error, reqID string) {
	var verr *payroll.ValidationError
	if !errors.As(err, &verr) {
		api.Fail(w, http.StatusBadRequest, api.CodeValidation, err.Error(), reqID)
		return
	}
	issues := make([]shared.ValidationIssue, 0, len(verr.Fields))
	for _, field := range verr.Fields {
		issues = append(issues, shared.ValidationIssue{Field: field, Reason: "is required"})
	}
	api.FailWithDetails(w, http.StatusBadRequest, api.CodeValidation, verr.Error(), map[string]any{"fields": issues}, reqID)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	p, ok := h.decodePayslip(w, r)
	if !ok {
		return
	}

	totals := p.Totals()
	if r.URL.Query().Get("format") == "json" {
		api.Success(w, map[string]any{
			"payslipData": p,
			"calculations": map[string]float64{
				"totalDeductions": totals.TotalDeductions,
				"netIncome":       totals.NetIncome,
				"totalEarnings":   totals.TotalEarnings,
			},
		}, reqID)
		return
	}

	var buf bytes.Buffer
	if err := payroll.RenderHTML(&buf, p); err != nil {
		requestctx.Logger(r.Context()).Error("render payslip html failed", zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, api.CodeInternal, "failed to render payslip", reqID)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleDownloadPDF(w http.ResponseWriter, r *http.Request) {
	p, ok := h.decodePayslip(w, r)
	if !ok {
		return
	}
	h.writePDF(w, r, p, true)
}

func (h *Handler) handleDownloadPayslip(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	query := r.URL.Query()

	var p payroll.Payslip
	switch {
	case query.Get("id") != "":
		record, err := h.Archive.Get(r.Context(), query.Get("id"))
		if errors.Is(err, payroll.ErrPayslipNotFound) {
			api.Fail(w, http.StatusNotFound, api.CodeNotFound, "Payslip not found", reqID)
			return
		}
		if err != nil {
			requestctx.Logger(r.Context()).Error("load payslip failed", zap.Error(err))
			api.Fail(w, http.StatusInternalServerError, api.CodeInternal, "failed to load payslip", reqID)
			return
		}
		p = record.Data
	case query.Get("data") != "":
		if err := json.Unmarshal([]byte(query.Get("data")), &p); err != nil {
			api.Fail(w, http.StatusBadRequest, api.CodeValidation, "data must be a payslip JSON document", reqID)
			return
		}
	default:
		api.Fail(w, http.StatusBadRequest, api.CodeValidation, "Missing payslip data or ID", reqID)
		return
	}

	p.Normalize(h.Now(), h.Rates)
	h.writePDF(w, r, p, false)
}

func (h *Handler) writePDF(w http.ResponseWriter, r *http.Request, p payroll.Payslip, generated bool) {
	var buf bytes.Buffer
	if err := payroll.RenderPDF(&buf, p); err != nil {
		requestctx.Logger(r.Context()).Error("render payslip pdf failed", zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, api.CodeInternal, "failed to generate pdf", middleware.GetRequestID(r.Context()))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+payroll.Filename(p)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if generated {
		w.Header().Set("X-API-Generated", "true")
	}
	_, _ = w.Write(buf.Bytes())
}

type saveRequest struct {
	UserID string           `json:"userId"`
	Data   *payroll.Payslip `json:"data"`
}

func (h *Handler) handleSavePayslip(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	logger := requestctx.Logger(r.Context())

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Fail(w, http.StatusRequestEntityTooLarge, api.CodeTooLarge, "request body too large", reqID)
			return
		}
		api.Fail(w, http.StatusBadRequest, api.CodeValidation, "invalid request payload", reqID)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var payload saveRequest
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	payload.UserID = strings.TrimSpace(payload.UserID)
	if payload.UserID == "" || payload.Data == nil {
		api.Fail(w, http.StatusBadRequest, api.CodeValidation, "Missing required fields", reqID)
		return
	}

	endpoint := "payslips.save"
	if strings.HasPrefix(r.URL.Path, "/api/v1/") {
		endpoint = "payslips.save.v1"
	}
	scope := middleware.GetAPIKey(r.Context())
	if scope == "" {
		scope = payload.UserID
	}
	idempotencyKey := strings.TrimSpace(r.Header.Get(middleware.IdempotencyHeader))
	requestHash := middleware.RequestHash(body)
	if idempotencyKey != "" {
		stored, found, err := h.Idempotency.Check(r.Context(), scope, endpoint, idempotencyKey, requestHash)
		if errors.Is(err, middleware.ErrIdempotencyConflict) {
			api.Fail(w, http.StatusConflict, api.CodeConflict, err.Error(), reqID)
			return
		}
		if err != nil {
			logger.Warn("idempotency check failed", zap.Error(err))
		}
		if found {
			api.Success(w, stored, reqID)
			return
		}
	}

	data := *payload.Data
	data.Sanitize()
	record, err := h.Archive.Save(r.Context(), payload.UserID, data)
	if err != nil {
		logger.Error("save payslip failed", zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, api.CodeInternal, "Failed to save payslip data", reqID)
		return
	}
	h.Metrics.PayslipSaved()

	response := map[string]string{"id": record.ID}
	if idempotencyKey != "" {
		encoded, err := json.Marshal(response)
		if err == nil {
			err = h.Idempotency.Save(r.Context(), scope, endpoint, idempotencyKey, requestHash, encoded)
		}
		if err != nil {
			logger.Warn("idempotency save failed", zap.Error(err))
		}
	}
	api.Success(w, response, reqID)
}

type pageResult struct {
	Items  []payroll.Record `json:"items"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
	Total  int              `json:"total"`
}

func (h *Handler) handleGetPayslips(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	query := r.URL.Query()

	if id := query.Get("id"); id != "" {
		record, err := h.Archive.Get(r.Context(), id)
		if errors.Is(err, payroll.ErrPayslipNotFound) {
			api.Fail(w, http.StatusNotFound, api.CodeNotFound, "Payslip not found", reqID)
			return
		}
		if err != nil {
			requestctx.Logger(r.Context()).Error("load payslip failed", zap.Error(err))
			api.Fail(w, http.StatusInternalServerError, api.CodeInternal, "Internal server error", reqID)
			return
		}
		api.Success(w, record, reqID)
		return
	}

	if userID := query.Get("userId"); userID != "" {
		h.writeUserPage(w, r, userID)
		return
	}

	api.Fail(w, http.StatusBadRequest, api.CodeValidation, "Either userId or id parameter is required", reqID)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, api.CodeUnauthorized, "login required", middleware.GetRequestID(r.Context()))
		return
	}
	h.writeUserPage(w, r, session.UserEmail)
}

func (h *Handler) writeUserPage(w http.ResponseWriter, r *http.Request, userID string) {
	reqID := middleware.GetRequestID(r.Context())
	records, err := h.Archive.ListByUser(r.Context(), userID)
	if err != nil {
		requestctx.Logger(r.Context()).Error("list payslips failed", zap.String("userId", userID), zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, api.CodeInternal, "Failed to fetch payslips", reqID)
		return
	}
	page := shared.ParsePagination(r, defaultPageSize, maxPageSize)
	api.Success(w, pageResult{
		Items:  shared.Page(records, page),
		Limit:  page.Limit,
		Offset: page.Offset,
		Total:  len(records),
	}, reqID)
}

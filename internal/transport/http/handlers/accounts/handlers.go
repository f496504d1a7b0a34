package accountshandler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"payslip/internal/domain/accounts"
	"payslip/internal/domain/audit"
	"payslip/internal/domain/payroll"
	"payslip/internal/platform/metrics"
	"payslip/internal/requestctx"
	"payslip/internal/transport/http/api"
	"payslip/internal/transport/http/middleware"
	"payslip/internal/transport/http/shared"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

type Handler struct {
	Accounts      *accounts.Service
	Audit         *audit.Service
	Archive       *payroll.Archive
	Metrics       *metrics.Collector
	KeyLimiter    *middleware.RateLimiter
	DefaultKey    string
	AdminEmail    string
	SecureCookies bool
}

func NewHandler(svc *accounts.Service, trail *audit.Service, archive *payroll.Archive, collector *metrics.Collector, defaultKey, adminEmail string) *Handler {
	return &Handler{
		Accounts:   svc,
		Audit:      trail,
		Archive:    archive,
		Metrics:    collector,
		DefaultKey: defaultKey,
		AdminEmail: adminEmail,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	apiSession := middleware.RequireSession(accounts.SessionAPI, h.Accounts, h.SecureCookies)
	anyKey := chi.Chain(middleware.RequireAPIKey(h.Accounts, true, h.Metrics), h.KeyLimiter.Handler)

	r.Post("/api/register", h.handleRegister)
	r.Post("/api/login", h.handleAPILogin)
	r.Get("/api/logout", h.handleAPILogout)
	r.With(apiSession).Get("/api/dashboard", h.handleDashboard)
	r.With(apiSession).Post("/api/dashboard", h.handleDashboardAction)
	r.With(apiSession).Get("/api/stats", h.handleStats)
	r.With(apiSession).Get("/api/audit", h.handleAuditEvents)

	r.Get("/api/save-user", h.handleGetContact)
	r.Post("/api/save-user", h.handleSaveContact)

	r.Get("/api/v1/get-api-key", h.handleGetAPIKey)
	r.Get("/api/v1/logout", h.handleAPILogout)
	r.With(anyKey...).Get("/api/v1/save-user", h.handleGetContact)
	r.With(anyKey...).Post("/api/v1/save-user", h.handleSaveContact)

	r.Post("/login", h.handleWebLogin)
	r.Get("/logout", h.handleWebLogout)
}

type registerRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload registerRequest
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}

	v := shared.NewValidator()
	v.Required("name", payload.Name, "is required")
	v.Required("email", payload.Email, "is required")
	v.Required("password", payload.Password, "is required")
	v.MinLength("password", payload.Password, accounts.MinPasswordLength)
	if payload.Password != "" && payload.Password != payload.ConfirmPassword {
		v.Add("confirmPassword", "passwords do not match")
	}
	if v.Reject(w, reqID) {
		return
	}

	user, err := h.Accounts.CreateUser(r.Context(), payload.Name, payload.Email, payload.Password)
	switch {
	case errors.Is(err, accounts.ErrEmailTaken):
		api.Fail(w, http.StatusConflict, api.CodeConflict, "a user with this email already exists", reqID)
		return
	case errors.Is(err, accounts.ErrWeakPassword), errors.Is(err, accounts.ErrInvalidInput):
		api.Fail(w, http.StatusBadRequest, api.CodeValidation, err.Error(), reqID)
		return
	case err != nil:
		requestctx.Logger(r.Context()).Error("register api user failed", zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, api.CodeInternal, "Registration failed", reqID)
		return
	}
	h.record(r, user.ID, audit.ActionUserRegistered, "user", user.ID, nil)
	api.Created(w, user.Profile(), reqID)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleAPILogin(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload loginRequest
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	if strings.TrimSpace(payload.Email) == "" || payload.Password == "" {
		api.Fail(w, http.StatusBadRequest, api.CodeValidation, "Email and password are required", reqID)
		return
	}

	user, err := h.Accounts.VerifyUser(r.Context(), payload.Email, payload.Password)
	if errors.Is(err, accounts.ErrInvalidCredentials) {
		api.Fail(w, http.StatusUnauthorized, api.CodeUnauthorized, "Invalid email or password", reqID)
		return
	}
	if err != nil {
		requestctx.Logger(r.Context()).Error("verify api user failed", zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, api.CodeInternal, "Login failed", reqID)
		return
	}

	session, token, err := h.Accounts.CreateSession(r.Context(), accounts.SessionAPI, user.ID, user.Email)
	if err != nil {
		requestctx.Logger(r.Context()).Error("create api session failed", zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, api.CodeInternal, "Login failed", reqID)
		return
	}
	middleware.SetSessionCookie(w, accounts.SessionAPI, token, session.ExpiresAt, h.SecureCookies)
	h.record(r, user.ID, audit.ActionUserLogin, "user", user.ID, nil)
	api.Success(w, map[string]any{"user": user.Profile(), "expiresAt": session.ExpiresAt}, reqID)
}

func (h *Handler) handleAPILogout(w http.ResponseWriter, r *http.Request) {
	h.endSession(w, r, accounts.SessionAPI)
	http.Redirect(w, r, "/api/login", http.StatusFound)
}

func (h *Handler) handleWebLogout(w http.ResponseWriter, r *http.Request) {
	h.endSession(w, r, accounts.SessionWeb)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request, kind accounts.SessionKind) {
	if token := middleware.SessionToken(r, kind); token != "" {
		if err := h.Accounts.DeleteSession(r.Context(), kind, token); err != nil {
			requestctx.Logger(r.Context()).Warn("delete session failed", zap.String("kind", string(kind)), zap.Error(err))
		}
	}
	middleware.ClearSessionCookie(w, kind, h.SecureCookies)
}

// currentUser loads the account behind the API session. A session whose
// user has disappeared is ended.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (accounts.User, bool) {
	reqID := middleware.GetRequestID(r.Context())
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, api.CodeUnauthorized, "login required", reqID)
		return accounts.User{}, false
	}
	user, err := h.Accounts.GetUser(r.Context(), session.UserID)
	if errors.Is(err, accounts.ErrUserNotFound) {
		h.endSession(w, r, accounts.SessionAPI)
		api.Fail(w, http.StatusUnauthorized, api.CodeUnauthorized, "login required", reqID)
		return accounts.User{}, false
	}
	if err != nil {
		requestctx.Logger(r.Context()).Error("load api user failed", zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, api.CodeInternal, "Failed to load dashboard", reqID)
		return accounts.User{}, false
	}
	return user, true
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	total := 0
	for _, k := range user.APIKeys {
		total += k.UsageCount
	}
	api.Success(w, map[string]any{
		"user":       user.Profile(),
		"totalUsage": total,
	}, middleware.GetRequestID(r.Context()))
}

type dashboardActionRequest struct {
	KeyName string `json:"keyName"`
	KeyID   string `json:"keyId"`
}

func (h *Handler) handleDashboardAction(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var payload dashboardActionRequest
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}

	switch r.URL.Query().Get("action") {
	case "generate":
		if strings.TrimSpace(payload.KeyName) == "" {
			api.Fail(w, http.StatusBadRequest, api.CodeValidation, "API key name is required", reqID)
			return
		}
		key, err := h.Accounts.GenerateAPIKey(r.Context(), user.ID, payload.KeyName)
		if err != nil {
			h.failAccount(w, r, err, "generate api key failed")
			return
		}
		h.record(r, user.ID, audit.ActionKeyGenerated, "api_key", key.ID, map[string]string{"name": key.Name, "key": key.Masked()})
		api.Created(w, key, reqID)
	case "revoke":
		if strings.TrimSpace(payload.KeyID) == "" {
			api.Fail(w, http.StatusBadRequest, api.CodeValidation, "API key ID is required", reqID)
			return
		}
		if err := h.Accounts.RevokeAPIKey(r.Context(), user.ID, payload.KeyID); err != nil {
			h.failAccount(w, r, err, "revoke api key failed")
			return
		}
		h.record(r, user.ID, audit.ActionKeyRevoked, "api_key", payload.KeyID, nil)
		api.Success(w, map[string]string{"revoked": payload.KeyID}, reqID)
	default:
		api.Fail(w, http.StatusBadRequest, api.CodeValidation, "action must be generate or revoke", reqID)
	}
}

func (h *Handler) record(r *http.Request, actorID, action, entityType, entityID string, after any) {
	if h.Audit == nil {
		return
	}
	err := h.Audit.Record(r.Context(), actorID, action, entityType, entityID, middleware.GetRequestID(r.Context()), middleware.ClientIP(r), after)
	if err != nil {
		requestctx.Logger(r.Context()).Warn("audit "+action+" failed", zap.Error(err))
	}
}

func (h *Handler) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if h.Audit == nil {
		api.Success(w, []audit.Event{}, reqID)
		return
	}
	page := shared.ParsePagination(r, defaultAuditLimit, maxAuditLimit)
	events, total, err := h.Audit.List(r.Context(), user.ID, page.Limit, page.Offset)
	if err != nil {
		requestctx.Logger(r.Context()).Error("list audit events failed", zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, api.CodeInternal, "failed to list audit events", reqID)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, events, reqID)
}

func (h *Handler) failAccount(w http.ResponseWriter, r *http.Request, err error, msg string) {
	reqID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, accounts.ErrUserNotFound), errors.Is(err, accounts.ErrKeyNotFound):
		api.Fail(w, http.StatusNotFound, api.CodeNotFound, err.Error(), reqID)
	case errors.Is(err, accounts.ErrInvalidInput):
		api.Fail(w, http.StatusBadRequest, api.CodeValidation, err.Error(), reqID)
	default:
		requestctx.Logger(r.Context()).Error(msg, zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, api.CodeInternal, "Operation failed", reqID)
	}
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	admin, err := h.Accounts.GetUserByEmail(r.Context(), h.AdminEmail)
	if errors.Is(err, accounts.ErrUserNotFound) {
		api.Fail(w, http.StatusNotFound, api.CodeNotFound, "Admin user not found", reqID)
		return
	}
	if err != nil {
		requestctx.Logger(r.Context()).Error("load admin user failed", zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, api.CodeInternal, "Failed to fetch API stats", reqID)
		return
	}
	stats, err := h.Accounts.UsageStats(r.Context(), admin.ID)
	if err != nil {
		h.failAccount(w, r, err, "usage stats failed")
		return
	}
	payslips, err := h.Archive.Count(r.Context())
	if err != nil {
		requestctx.Logger(r.Context()).Error("count payslips failed", zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, api.CodeInternal, "Failed to fetch API stats", reqID)
		return
	}
	api.Success(w, map[string]any{
		"totalApiKeys":     stats.TotalKeys,
		"totalApiRequests": stats.TotalRequests,
		"totalPayslips":    payslips,
		"keyUsage":         stats.Keys,
	}, reqID)
}

// handleGetAPIKey hands the internal key to the service's own pages only.
func (h *Handler) handleGetAPIKey(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	host := r.Host
	referer := r.Header.Get("Referer")
	if !strings.Contains(host, "localhost") && (host == "" || !strings.Contains(referer, host)) {
		api.Fail(w, http.StatusForbidden, api.CodeForbidden, "Unauthorized request", reqID)
		return
	}
	if h.DefaultKey == "" {
		api.Fail(w, http.StatusInternalServerError, api.CodeInternal, "Failed to get API key", reqID)
		return
	}
	api.Success(w, map[string]string{"key": h.DefaultKey}, reqID)
}

type contactRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (h *Handler) handleSaveContact(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload contactRequest
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	v := shared.NewValidator()
	v.Required("name", payload.Name, "is required")
	v.Required("email", payload.Email, "is required")
	v.Required("phone", payload.Phone, "is required")
	if v.Reject(w, reqID) {
		return
	}
	contact, err := h.Accounts.SaveContact(r.Context(), payload.Name, payload.Email, payload.Phone)
	if err != nil {
		h.failAccount(w, r, err, "save contact failed")
		return
	}
	api.Success(w, contact, reqID)
}

func (h *Handler) handleGetContact(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	email := r.URL.Query().Get("email")
	if strings.TrimSpace(email) == "" {
		api.Fail(w, http.StatusBadRequest, api.CodeValidation, "Email parameter is required", reqID)
		return
	}
	contact, err := h.Accounts.GetContact(r.Context(), email)
	if errors.Is(err, accounts.ErrContactNotFound) {
		api.Fail(w, http.StatusNotFound, api.CodeNotFound, "User not found", reqID)
		return
	}
	if err != nil {
		requestctx.Logger(r.Context()).Error("get contact failed", zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, api.CodeInternal, "Internal server error", reqID)
		return
	}
	api.Success(w, contact, reqID)
}

type webLoginRequest struct {
	Email string `json:"email"`
}

// handleWebLogin starts a history session for someone who has generated a
// payslip before.
func (h *Handler) handleWebLogin(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload webLoginRequest
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	if strings.TrimSpace(payload.Email) == "" {
		api.Fail(w, http.StatusBadRequest, api.CodeValidation, "Email is required", reqID)
		return
	}
	contact, err := h.Accounts.GetContact(r.Context(), payload.Email)
	if errors.Is(err, accounts.ErrContactNotFound) {
		api.Fail(w, http.StatusNotFound, api.CodeNotFound, "No payslips found for this email. Please generate a payslip first.", reqID)
		return
	}
	if err != nil {
		requestctx.Logger(r.Context()).Error("get contact failed", zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, api.CodeInternal, "Login failed", reqID)
		return
	}
	session, token, err := h.Accounts.CreateSession(r.Context(), accounts.SessionWeb, "", contact.Email)
	if err != nil {
		requestctx.Logger(r.Context()).Error("create web session failed", zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, api.CodeInternal, "Login failed", reqID)
		return
	}
	middleware.SetSessionCookie(w, accounts.SessionWeb, token, session.ExpiresAt, h.SecureCookies)
	api.Success(w, map[string]any{
		"email":     contact.Email,
		"redirect":  "/payslip/history",
		"expiresAt": session.ExpiresAt,
	}, reqID)
}

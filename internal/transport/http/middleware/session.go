package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"payslip/internal/domain/accounts"
	"payslip/internal/requestctx"
	"payslip/internal/transport/http/api"
)

type SessionLookup interface {
	LookupSession(ctx context.Context, kind accounts.SessionKind, token string) (accounts.Session, error)
}

// SessionToken returns the cookie value for kind, or "".
func SessionToken(r *http.Request, kind accounts.SessionKind) string {
	cookie, err := r.Cookie(kind.CookieName())
	if err != nil {
		return ""
	}
	return cookie.Value
}

func SetSessionCookie(w http.ResponseWriter, kind accounts.SessionKind, token string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     kind.CookieName(),
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearSessionCookie(w http.ResponseWriter, kind accounts.SessionKind, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     kind.CookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RequireSession loads the session of the given kind from its cookie and
// answers 401 when it is missing, invalid or expired.
func RequireSession(kind accounts.SessionKind, lookup SessionLookup, secureCookies bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := GetRequestID(r.Context())
			token := SessionToken(r, kind)
			if token == "" {
				api.Fail(w, http.StatusUnauthorized, api.CodeUnauthorized, "login required", reqID)
				return
			}
			session, err := lookup.LookupSession(r.Context(), kind, token)
			switch {
			case errors.Is(err, accounts.ErrSessionNotFound), errors.Is(err, accounts.ErrSessionExpired):
				ClearSessionCookie(w, kind, secureCookies)
				api.Fail(w, http.StatusUnauthorized, api.CodeUnauthorized, "login required", reqID)
				return
			case err != nil:
				requestctx.Logger(r.Context()).Error("session lookup failed", zap.Error(err))
				api.Fail(w, http.StatusInternalServerError, api.CodeInternal, "internal server error", reqID)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeySession, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetSession(ctx context.Context) (accounts.Session, bool) {
	session, ok := ctx.Value(ctxKeySession).(accounts.Session)
	return session, ok
}

// WithSession returns ctx carrying session.
func WithSession(ctx context.Context, session accounts.Session) context.Context {
	return context.WithValue(ctx, ctxKeySession, session)
}

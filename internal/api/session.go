package api

import (
	"context"
	"net/http"

	"github.com/sqlask/sqlask/internal/observability"
	"github.com/sqlask/sqlask/internal/session"
)

const (
	sessionHeader = "X-Session-ID"
	sessionCookie = "sqlask_session"
)

type sessionCtxKey struct{}

// sessionMiddleware attaches the caller's session, creating one when the
// request carries no known session id. The id is echoed in a header and a
// cookie so browsers and CLI clients can both reuse it.
func sessionMiddleware(manager *session.Manager, secureCookie bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, created := manager.Checkout(requestSessionID(r))
			defer manager.Checkin(sess)
			if created {
				observability.SetActiveSessions(manager.Len())
			}
			w.Header().Set(sessionHeader, sess.ID)
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    sess.ID,
				Path:     "/",
				HttpOnly: true,
				Secure:   secureCookie,
				SameSite: http.SameSiteLaxMode,
			})

			ctx := context.WithValue(r.Context(), sessionCtxKey{}, sess)
			ctx = observability.ContextWithSessionID(ctx, sess.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestSessionID(r *http.Request) string {
	if id := r.Header.Get(sessionHeader); id != "" {
		return id
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func sessionFromContext(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionCtxKey{}).(*session.Session)
	return sess
}

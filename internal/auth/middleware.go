package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gatehouse-app/gatehouse/internal/shared"
)

type userContextKey struct{}

// ContextWithUser stores the resolved user in context.
func ContextWithUser(ctx context.Context, user *SafeUser) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext extracts the resolved user from context.
func UserFromContext(ctx context.Context) *SafeUser {
	user, _ := ctx.Value(userContextKey{}).(*SafeUser)
	return user
}

// RequireUser guards routes that need an authenticated user. An anonymous
// session is redirected to the login page with the requested path preserved
// in redirectTo. A session whose user id no longer resolves (deleted
// account, store outage) is destroyed and redirected the same way, so any
// uncertainty about identity collapses to "not authenticated" rather than
// an error page.
func (h *Handler) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			redirectToLogin(w, r)
			return
		}

		user, err := h.service.GetUser(r.Context(), sess.User())
		if err != nil {
			h.logger.Warn("resolve session user", slog.Any("error", err))
			h.sessions.Destroy(sess)
			redirectToLogin(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}

func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	params := url.Values{}
	params.Set("redirectTo", r.URL.Path)
	http.Redirect(w, r, "/auth/login?"+params.Encode(), http.StatusSeeOther)
}

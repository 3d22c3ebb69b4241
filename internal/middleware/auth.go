package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/khaled-muhammad/thoughty/internal/auth"
	"github.com/khaled-muhammad/thoughty/internal/models"
)

type contextKey string

const ctxUserKey contextKey = "user"

// RequireAuth authenticates requests by validating the Bearer JWT and loading
// the user into request context. Requests without a valid token get 401.
func RequireAuth(authSvc auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := resolveUser(r, authSvc)
			if user == nil {
				http.Error(w, `{"error":"missing or invalid Authorization header"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// OptionalAuth loads the user into context when a valid token is present but
// lets anonymous requests through. Used on read endpoints where public pods
// are visible to anyone.
func OptionalAuth(authSvc auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user := resolveUser(r, authSvc); user != nil {
				r = r.WithContext(WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func resolveUser(r *http.Request, authSvc auth.Service) *models.User {
	raw := extractBearer(r)
	if raw == "" {
		return nil
	}
	userID, err := authSvc.ValidateToken(r.Context(), raw)
	if err != nil {
		return nil
	}
	user, err := authSvc.GetUser(r.Context(), userID)
	if err != nil {
		return nil
	}
	return user
}

// UserFromCtx returns the authenticated user or nil.
func UserFromCtx(ctx context.Context) *models.User {
	u, _ := ctx.Value(ctxUserKey).(*models.User)
	return u
}

// WithUser returns a context carrying the given user.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, ctxUserKey, u)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

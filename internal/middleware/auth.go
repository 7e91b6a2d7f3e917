package middleware

import (
	"context"
	"net/http"
	"time"

	"keycloak-bridge/internal/logger"
	"keycloak-bridge/internal/session"
)

// unexported, collision-proof context key
type userIDContextKeyType struct{}

var userIDKey = userIDContextKeyType{}

// UserIDFromContext extracts the authenticated user ID from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}

// AuthMiddleware admits requests carrying a live session cookie. With a
// non-zero idle TTL the session expiry slides forward on use, bounded by
// the session's absolute expiry.
type AuthMiddleware struct {
	store   session.Store
	idleTTL time.Duration
	now     func() time.Time
}

func NewAuthMiddleware(store session.Store, idleTTL time.Duration) *AuthMiddleware {
	return &AuthMiddleware{
		store:   store,
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		cookie, err := r.Cookie(session.CookieName)
		if err != nil || cookie.Value == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		sess, err := a.store.Get(ctx, cookie.Value)
		if err != nil || sess == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		now := a.now()
		if now.After(sess.ExpiresAt) {
			_ = a.store.Delete(ctx, sess.SessionID)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		a.touch(ctx, *sess, now)

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, userIDKey, sess.UserID)))
	})
}

// touch extends the session once less than half of the idle window is left.
func (a *AuthMiddleware) touch(ctx context.Context, sess session.Session, now time.Time) {
	if a.idleTTL <= 0 || sess.ExpiresAt.Sub(now) > a.idleTTL/2 {
		return
	}

	sess.ExpiresAt = now.Add(a.idleTTL)
	if err := a.store.Update(ctx, sess); err != nil {
		logger.Warn("failed to extend session", map[string]any{
			"user_id": sess.UserID,
			"error":   err.Error(),
		})
	}
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"keycloak-bridge/internal/auth"
	"keycloak-bridge/internal/auth/provider"
	"keycloak-bridge/internal/auth/resolver"
	"keycloak-bridge/internal/logger"
	"keycloak-bridge/internal/session"
	"keycloak-bridge/internal/settings"

	"github.com/gin-gonic/gin"
)

const defaultSessionTTL = 24 * time.Hour

// Reconciler maps a remote identity onto a local account.
type Reconciler interface {
	Reconcile(ctx context.Context, actor *auth.User, identity *auth.Identity, mapping resolver.RoleMapping) (*resolver.Result, error)
}

// Users is the part of the host directory used to complete a login.
type Users interface {
	FindByID(ctx context.Context, id string) (*auth.User, error)
	LinkLoginProvider(ctx context.Context, userID, provider, identifier string) error
}

type Options struct {
	Cookies session.CookieOptions

	// SessionTTL is the absolute session lifetime. IdleTTL, when set,
	// is the initial expiry that the auth middleware slides forward.
	SessionTTL time.Duration
	IdleTTL    time.Duration
}

type Handler struct {
	provider     provider.OAuthProvider
	sessionStore session.Store
	flows        session.FlowStore
	settings     settings.Store
	reconciler   Reconciler
	users        Users

	cookies    session.CookieOptions
	sessionTTL time.Duration
	idleTTL    time.Duration
}

func NewHandler(
	p provider.OAuthProvider,
	sessionStore session.Store,
	flows session.FlowStore,
	settingsStore settings.Store,
	reconciler Reconciler,
	users Users,
	opts Options,
) *Handler {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}

	return &Handler{
		provider:     p,
		sessionStore: sessionStore,
		flows:        flows,
		settings:     settingsStore,
		reconciler:   reconciler,
		users:        users,
		cookies:      opts.Cookies,
		sessionTTL:   opts.SessionTTL,
		idleTTL:      opts.IdleTTL,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/auth/keycloak", h.Keycloak)
	r.POST("/auth/logout", h.Logout)
}

// Keycloak starts the authorization flow when no code is present and
// completes it on the provider's callback.
func (h *Handler) Keycloak(c *gin.Context) {
	ctx := c.Request.Context()

	// CASE 1: provider reported an error (denied consent, aborted registration)
	if errParam := c.Query("error"); errParam != "" {
		logger.Warn("keycloak callback returned error", map[string]any{
			"error": errParam,
			"desc":  c.Query("error_description"),
		})
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": errParam,
		})
		return
	}

	// CASE 2: first leg, redirect to Keycloak
	code := c.Query("code")
	if code == "" {
		state, challenge, err := h.beginFlow(c)
		if err != nil {
			logger.Error("failed to start oauth flow", map[string]any{
				"error": err.Error(),
			})
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to start login",
			})
			return
		}

		c.Redirect(http.StatusFound, h.provider.AuthCodeURL(state, challenge))
		return
	}

	// CASE 3: callback
	codeVerifier, err := h.consumeFlow(c)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidState) {
			logger.Warn("oauth state mismatch", map[string]any{
				"ip": c.ClientIP(),
			})
			c.JSON(http.StatusBadRequest, gin.H{
				"error": auth.ErrInvalidState.Error(),
			})
			return
		}
		logger.Error("failed to load oauth flow", map[string]any{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to load login state",
		})
		return
	}

	identity, err := h.provider.ExchangeCode(ctx, code, codeVerifier)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "authentication failed",
		})
		return
	}

	rawMapping, err := h.settings.Get(ctx, settings.KeyRoleMapping)
	if err != nil {
		logger.Error("failed to read role mapping", map[string]any{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to read settings",
		})
		return
	}

	result, err := h.reconciler.Reconcile(ctx, h.requestActor(c), identity, resolver.ParseRoleMapping(rawMapping))
	if err != nil {
		h.reconcileFailed(c, err)
		return
	}

	h.complete(c, identity, result)
}

func (h *Handler) reconcileFailed(c *gin.Context, err error) {
	logger.Error("identity reconciliation failed", map[string]any{
		"error": err.Error(),
	})

	var cmdErr *auth.CommandError
	switch {
	case errors.Is(err, auth.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
	case errors.As(err, &cmdErr) && errors.Is(err, auth.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "account update rejected"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
	}
}

// complete finishes the request according to the reconciliation decision.
func (h *Handler) complete(c *gin.Context, identity *auth.Identity, result *resolver.Result) {
	ctx := c.Request.Context()

	switch {
	case result.Kind == resolver.UpdateLinkedUser:
		h.login(c, result.User)

	case result.User != nil:
		// LinkAndUpdateUser, or CreateUser after a successful registration
		if err := h.users.LinkLoginProvider(ctx, result.User.ID, identity.Provider, identity.ProviderUserID); err != nil {
			logger.Error("failed to link login provider", map[string]any{
				"user_id":  result.User.ID,
				"decision": result.Kind.String(),
				"error":    err.Error(),
			})
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to link account",
			})
			return
		}
		h.login(c, result.User)

	default:
		h.continueRegistration(c, result)
	}
}

// continueRegistration hands the pending registration back to the client
// so the user can finish signing up.
func (h *Handler) continueRegistration(c *gin.Context, result *resolver.Result) {
	token := result.Attributes.Token
	if result.Registration != nil {
		token = result.Registration.Token
	}

	attrs := gin.H{}
	if v := result.Attributes.Username; v != "" {
		attrs[auth.AttrUsername] = v
	}
	if v := result.Attributes.Email; v != "" {
		attrs[auth.AttrEmail] = v
	}
	if v := result.Attributes.AvatarURL; v != "" {
		attrs[auth.AttrAvatarURL] = v
	}

	provided := result.Attributes.Provided
	if provided == nil {
		provided = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "registration_required",
		"token":      token,
		"attributes": attrs,
		"provided":   provided,
	})
}

func (h *Handler) login(c *gin.Context, user *auth.User) {
	ctx := c.Request.Context()

	sessionID, err := session.GenerateID()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to create session",
		})
		return
	}

	now := time.Now()
	absoluteExpiry := now.Add(h.sessionTTL)
	expiry := absoluteExpiry
	if h.idleTTL > 0 && h.idleTTL < h.sessionTTL {
		expiry = now.Add(h.idleTTL)
	}

	sess := session.Session{
		SessionID:         sessionID,
		UserID:            user.ID,
		CreatedAt:         now,
		AbsoluteExpiresAt: absoluteExpiry,
		ExpiresAt:         expiry,
	}

	if err := h.sessionStore.Create(ctx, sess); err != nil {
		logger.Error("failed to persist session", map[string]any{
			"user_id": user.ID,
			"error":   err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to persist session",
		})
		return
	}

	session.SetCookie(c.Writer, sessionID, absoluteExpiry, h.cookies)

	logger.Info("login succeeded", map[string]any{
		"user_id": user.ID,
		"ip":      c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{
		"status":  "authenticated",
		"user_id": user.ID,
	})
}

// requestActor returns the user of the current session, nil for guests.
func (h *Handler) requestActor(c *gin.Context) *auth.User {
	ctx := c.Request.Context()

	cookie, err := c.Request.Cookie(session.CookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	sess, err := h.sessionStore.Get(ctx, cookie.Value)
	if err != nil || sess == nil || time.Now().After(sess.ExpiresAt) {
		return nil
	}

	user, err := h.users.FindByID(ctx, sess.UserID)
	if err != nil {
		logger.Warn("failed to load session user", map[string]any{
			"user_id": sess.UserID,
			"error":   err.Error(),
		})
		return nil
	}

	return user
}

func (h *Handler) Logout(c *gin.Context) {
	cookie, err := c.Request.Cookie(session.CookieName)
	if err == nil && cookie.Value != "" {
		// best-effort
		if err := h.sessionStore.Delete(c.Request.Context(), cookie.Value); err != nil {
			logger.Warn("failed to delete session", map[string]any{
				"error": err.Error(),
			})
		}
		logger.Info("logout", map[string]any{
			"ip": c.ClientIP(),
		})
	}

	session.ClearCookie(c.Writer, h.cookies)

	// idempotent
	c.Status(http.StatusNoContent)
}

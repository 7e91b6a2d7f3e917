package handler

import (
	"crypto/subtle"
	"fmt"
	"time"

	"keycloak-bridge/internal/auth"
	"keycloak-bridge/internal/session"
	"keycloak-bridge/internal/utils"

	"github.com/gin-gonic/gin"
)

const flowTTL = 5 * time.Minute

// beginFlow stores a fresh state and PKCE verifier and returns the state
// and code challenge for the authorization URL.
func (h *Handler) beginFlow(c *gin.Context) (state string, challenge string, err error) {
	state, err = utils.RandomString(32)
	if err != nil {
		return "", "", err
	}

	verifier, challenge, err := generatePKCE()
	if err != nil {
		return "", "", err
	}

	flowID, err := session.GenerateID()
	if err != nil {
		return "", "", err
	}

	err = h.flows.Put(c.Request.Context(), flowID, session.Flow{
		State:        state,
		CodeVerifier: verifier,
	}, flowTTL)
	if err != nil {
		return "", "", fmt.Errorf("store oauth flow: %w", err)
	}

	session.SetFlowCookie(c.Writer, flowID, flowTTL, h.cookies)

	return state, challenge, nil
}

// consumeFlow validates the returned state against the stored flow and
// returns its PKCE verifier. The flow is removed whatever the outcome.
func (h *Handler) consumeFlow(c *gin.Context) (string, error) {
	ctx := c.Request.Context()

	cookie, err := c.Request.Cookie(session.FlowCookieName)
	if err != nil || cookie.Value == "" {
		return "", auth.ErrInvalidState
	}

	flowID := cookie.Value
	defer func() {
		_ = h.flows.Remove(ctx, flowID)
		session.ClearFlowCookie(c.Writer, h.cookies)
	}()

	flow, err := h.flows.Get(ctx, flowID)
	if err != nil {
		return "", fmt.Errorf("load oauth flow: %w", err)
	}

	state := c.Query("state")
	if state == "" || flow == nil ||
		subtle.ConstantTimeCompare([]byte(state), []byte(flow.State)) != 1 {
		return "", auth.ErrInvalidState
	}

	return flow.CodeVerifier, nil
}

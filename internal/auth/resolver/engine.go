package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"keycloak-bridge/internal/auth"
	"keycloak-bridge/internal/logger"
	"keycloak-bridge/internal/utils"
)

// Engine decides how an external identity maps onto a local account.
// It is the ONLY place where identity-to-user mapping logic lives.
type Engine struct {
	groups        GroupDirectory
	users         UserDirectory
	commands      CommandBus
	registrations RegistrationStore
	admin         ActorResolver

	now      func() time.Time
	newToken func() (string, error)
}

func NewEngine(
	groups GroupDirectory,
	users UserDirectory,
	commands CommandBus,
	registrations RegistrationStore,
	admin ActorResolver,
) *Engine {
	return &Engine{
		groups:        groups,
		users:         users,
		commands:      commands,
		registrations: registrations,
		admin:         admin,
		now:           time.Now,
		newToken:      generateToken,
	}
}

// Reconcile chooses exactly one decision for identity and applies it.
// actor is the requesting account, nil for guests.
//
// Failure policy differs per branch: an update of an already linked user
// is logged and swallowed, an update of an email-matched user is returned,
// and account creation failures are logged and swallowed.
func (e *Engine) Reconcile(
	ctx context.Context,
	actor *auth.User,
	identity *auth.Identity,
	mapping RoleMapping,
) (*Result, error) {

	if identity == nil {
		return nil, errors.New("identity is nil")
	}

	groups, err := e.AssignGroups(ctx, identity.Roles, mapping)
	if err != nil {
		return nil, fmt.Errorf("assign groups: %w", err)
	}

	registration := auth.NewRegistration(identity)
	attrs := registration.Attributes()

	// 1. Already linked to (provider, subject)
	linked, err := e.users.FindByLoginProvider(ctx, identity.Provider, identity.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("find linked user: %w", err)
	}

	if linked != nil {
		adminActor, err := e.admin.AdminActor(ctx)
		if err != nil {
			return nil, err
		}

		result := &Result{Kind: UpdateLinkedUser, User: linked, Attributes: attrs, Groups: groups}

		updated, err := e.commands.EditUser(ctx, auth.EditUserCommand{
			UserID:     linked.ID,
			Actor:      adminActor,
			Attributes: attrs,
			Groups:     groups,
		})
		if err != nil {
			logger.Error("failed to update linked user", map[string]any{
				"user_id": linked.ID,
				"error":   err.Error(),
			})
			return result, nil
		}

		result.User = updated
		return result, nil
	}

	adminActor, err := e.admin.AdminActor(ctx)
	if err != nil {
		return nil, err
	}

	// 2. Existing user with the same email, not linked yet
	var byEmail *auth.User
	if email := registration.Provided[auth.AttrEmail]; email != "" {
		byEmail, err = e.users.FindByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("find user by email: %w", err)
		}
	}

	if byEmail != nil {
		updated, err := e.commands.EditUser(ctx, auth.EditUserCommand{
			UserID:     byEmail.ID,
			Actor:      adminActor,
			Attributes: attrs,
			Groups:     groups,
		})
		if err != nil {
			return nil, asCommandError("edit_user", err)
		}

		return &Result{Kind: LinkAndUpdateUser, User: updated, Attributes: attrs, Groups: groups}, nil
	}

	// 3. Provision a new account
	pending, err := e.pendingRegistration(identity, registration)
	if err != nil {
		return nil, err
	}
	if err := e.registrations.SavePendingRegistration(ctx, *pending); err != nil {
		return nil, fmt.Errorf("save pending registration: %w", err)
	}

	attrs.Token = pending.Token
	attrs.Provided = registration.ProvidedKeys()

	result := &Result{Kind: CreateUser, Registration: pending, Attributes: attrs, Groups: groups}

	created, err := e.commands.RegisterUser(ctx, auth.RegisterUserCommand{
		Actor:      actor,
		Attributes: attrs,
		Groups:     groups,
	})
	if err != nil {
		logger.Error("failed to create user", map[string]any{
			"provider": identity.Provider,
			"error":    err.Error(),
		})
		return result, nil
	}

	// Registration does not apply groups; a crash before this edit leaves
	// the new user without memberships.
	edited, err := e.commands.EditUser(ctx, auth.EditUserCommand{
		UserID:     created.ID,
		Actor:      adminActor,
		Attributes: attrs,
		Groups:     groups,
	})
	if err != nil {
		logger.Error("failed to propagate groups to created user", map[string]any{
			"user_id": created.ID,
			"error":   err.Error(),
		})
		result.User = created
		return result, nil
	}
	result.User = edited

	// The session completion step links the provider itself.
	if err := e.commands.RemoveLoginProviders(ctx, created.ID, identity.Provider); err != nil {
		logger.Error("failed to remove generated login provider", map[string]any{
			"user_id": created.ID,
			"error":   err.Error(),
		})
	}

	return result, nil
}

func (e *Engine) pendingRegistration(
	identity *auth.Identity,
	registration auth.Registration,
) (*auth.PendingRegistration, error) {

	token, err := e.newToken()
	if err != nil {
		return nil, err
	}

	provided := make(map[string]string, len(registration.Provided))
	for k, v := range registration.Provided {
		provided[k] = v
	}

	return &auth.PendingRegistration{
		Token:      token,
		Provider:   identity.Provider,
		Identifier: identity.ProviderUserID,
		Provided:   provided,
		Payload:    registration.Payload,
		CreatedAt:  e.now(),
	}, nil
}

func asCommandError(command string, err error) error {
	var cmdErr *auth.CommandError
	if errors.As(err, &cmdErr) {
		return err
	}
	return &auth.CommandError{Command: command, Err: err}
}

// generateToken returns 40 URL-safe characters (240 bits).
func generateToken() (string, error) {
	token, err := utils.RandomString(30)
	if err != nil {
		return "", fmt.Errorf("resolver: failed to generate token: %w", err)
	}
	return token, nil
}

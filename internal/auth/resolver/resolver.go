package resolver

import (
	"context"

	"keycloak-bridge/internal/auth"
)

// GroupDirectory looks up local groups.
type GroupDirectory interface {
	// FindByName returns nil, nil when no group has that name.
	FindByName(ctx context.Context, name string) (*auth.Group, error)
	// FindOrFail returns auth.ErrNotFound when the group does not exist.
	FindOrFail(ctx context.Context, id int64) (*auth.Group, error)
	// ListUsers returns the group members oldest first.
	ListUsers(ctx context.Context, groupID int64) ([]auth.User, error)
}

// UserDirectory looks up local users. Both lookups return nil, nil when
// no user matches.
type UserDirectory interface {
	FindByLoginProvider(ctx context.Context, provider, identifier string) (*auth.User, error)
	FindByEmail(ctx context.Context, email string) (*auth.User, error)
}

// CommandBus dispatches mutating user commands to the host.
type CommandBus interface {
	EditUser(ctx context.Context, cmd auth.EditUserCommand) (*auth.User, error)
	RegisterUser(ctx context.Context, cmd auth.RegisterUserCommand) (*auth.User, error)
	RemoveLoginProviders(ctx context.Context, userID, provider string) error
}

// RegistrationStore persists pending registrations.
type RegistrationStore interface {
	SavePendingRegistration(ctx context.Context, p auth.PendingRegistration) error
}

// ActorResolver returns the account that authorizes administrative edits.
type ActorResolver interface {
	AdminActor(ctx context.Context) (*auth.User, error)
}

// Kind enumerates reconciliation outcomes.
type Kind int

const (
	UpdateLinkedUser Kind = iota + 1
	LinkAndUpdateUser
	CreateUser
)

func (k Kind) String() string {
	switch k {
	case UpdateLinkedUser:
		return "update_linked_user"
	case LinkAndUpdateUser:
		return "link_and_update_user"
	case CreateUser:
		return "create_user"
	default:
		return "unknown"
	}
}

// Result is the outcome of one reconciliation.
type Result struct {
	Kind Kind

	// User is the linked or email-matched user, or the created user.
	// It is nil for CreateUser when account creation failed.
	User *auth.User

	// Registration is set for CreateUser only.
	Registration *auth.PendingRegistration

	// Attributes are the merged identity attributes applied to the user.
	Attributes auth.UserAttributes

	Groups []auth.Group
}

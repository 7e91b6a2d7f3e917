package resolver_test

import (
	"context"
	"errors"
	"testing"

	"keycloak-bridge/internal/auth"
	"keycloak-bridge/internal/auth/resolver"
	"keycloak-bridge/internal/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store  *memstore.Store
	engine *resolver.Engine
	admin  auth.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memstore.New()
	store.AddGroup(1, "Admin")
	admin := store.AddUser(auth.User{Username: "root", Email: "root@example.com"})
	store.AddMember(1, admin.ID)

	engine := resolver.NewEngine(
		store,
		store,
		store,
		store,
		resolver.NewGroupAdminResolver(store, 1),
	)

	return &fixture{store: store, engine: engine, admin: admin}
}

func identity(sub, email string, roles ...string) *auth.Identity {
	return &auth.Identity{
		Provider:          auth.ProviderKeycloak,
		ProviderUserID:    sub,
		Email:             email,
		EmailVerified:     true,
		PreferredUsername: "alice",
		Roles:             roles,
		Payload:           map[string]any{"sub": sub, "email": email},
	}
}

func TestReconcile_UpdateLinkedUser(t *testing.T) {
	f := newFixture(t)
	staff := f.store.AddGroup(2, "Staff")

	user := f.store.AddUser(auth.User{Username: "old", Email: "old@example.com"})
	require.NoError(t, f.store.LinkLoginProvider(context.Background(), user.ID, auth.ProviderKeycloak, "sub-1"))

	// a second account matching the email must not change the decision
	f.store.AddUser(auth.User{Username: "other", Email: "a@b.com"})

	res, err := f.engine.Reconcile(context.Background(), nil,
		identity("sub-1", "new@example.com", "admin"),
		resolver.RoleMapping{"admin": "Staff"},
	)
	require.NoError(t, err)

	assert.Equal(t, resolver.UpdateLinkedUser, res.Kind)
	require.NotNil(t, res.User)
	assert.Equal(t, user.ID, res.User.ID)
	assert.Equal(t, "new@example.com", res.User.Email)
	assert.Equal(t, "alice", res.User.Username)
	assert.Equal(t, []auth.Group{staff}, res.Groups)
	assert.Equal(t, []int64{2}, f.store.GroupsOf(user.ID))
	assert.Nil(t, res.Registration)

	require.Len(t, f.store.Edits, 1)
	assert.Equal(t, f.admin.ID, f.store.Edits[0].Actor.ID)
}

func TestReconcile_UpdateLinkedUserIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.store.AddGroup(2, "Staff")

	user := f.store.AddUser(auth.User{Username: "alice", Email: "a@b.com"})
	require.NoError(t, f.store.LinkLoginProvider(context.Background(), user.ID, auth.ProviderKeycloak, "sub-1"))

	id := identity("sub-1", "a@b.com", "admin")
	mapping := resolver.RoleMapping{"admin": "Staff"}

	first, err := f.engine.Reconcile(context.Background(), nil, id, mapping)
	require.NoError(t, err)
	second, err := f.engine.Reconcile(context.Background(), nil, id, mapping)
	require.NoError(t, err)

	assert.Equal(t, resolver.UpdateLinkedUser, first.Kind)
	assert.Equal(t, resolver.UpdateLinkedUser, second.Kind)
	assert.Equal(t, first.Groups, second.Groups)
	assert.Equal(t, first.User.ID, second.User.ID)
}

func TestReconcile_LinkedUpdateFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)

	user := f.store.AddUser(auth.User{Username: "alice", Email: "a@b.com"})
	require.NoError(t, f.store.LinkLoginProvider(context.Background(), user.ID, auth.ProviderKeycloak, "sub-1"))
	f.store.EditErr = errors.New("boom")

	res, err := f.engine.Reconcile(context.Background(), nil, identity("sub-1", "a@b.com"), nil)
	require.NoError(t, err)

	assert.Equal(t, resolver.UpdateLinkedUser, res.Kind)
	assert.Equal(t, user.ID, res.User.ID)
}

func TestReconcile_LinkAndUpdateUser(t *testing.T) {
	f := newFixture(t)
	f.store.AddGroup(3, "Users")

	user := f.store.AddUser(auth.User{Username: "alice", Email: "a@b.com"})

	res, err := f.engine.Reconcile(context.Background(), nil,
		identity("sub-2", "a@b.com", "member"),
		resolver.RoleMapping{"member": "Users"},
	)
	require.NoError(t, err)

	assert.Equal(t, resolver.LinkAndUpdateUser, res.Kind)
	assert.Equal(t, user.ID, res.User.ID)
	assert.True(t, res.User.IsEmailConfirmed)
	assert.Equal(t, []int64{3}, f.store.GroupsOf(user.ID))
	assert.Empty(t, f.store.Registers)
	assert.Nil(t, res.Registration)
}

func TestReconcile_LinkAndUpdateFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.store.AddUser(auth.User{Username: "alice", Email: "a@b.com"})
	f.store.EditErr = errors.New("boom")

	res, err := f.engine.Reconcile(context.Background(), nil, identity("sub-2", "a@b.com"), nil)
	require.Error(t, err)
	assert.Nil(t, res)

	var cmdErr *auth.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "edit_user", cmdErr.Command)
}

func TestReconcile_CreateUser(t *testing.T) {
	f := newFixture(t)
	f.store.AddGroup(2, "Staff")

	res, err := f.engine.Reconcile(context.Background(), nil,
		identity("sub-3", "a@b.com", "admin", "member"),
		resolver.RoleMapping{"admin": "Staff", "member": "Users"},
	)
	require.NoError(t, err)

	assert.Equal(t, resolver.CreateUser, res.Kind)
	require.NotNil(t, res.Registration)
	assert.NotEmpty(t, res.Registration.Token)
	assert.Len(t, res.Registration.Token, 40)
	assert.Equal(t, auth.ProviderKeycloak, res.Registration.Provider)
	assert.Equal(t, "sub-3", res.Registration.Identifier)
	assert.Equal(t, map[string]string{"email": "a@b.com"}, res.Registration.Provided)

	require.NotNil(t, res.User)
	assert.Equal(t, "a@b.com", res.User.Email)
	assert.Equal(t, []int64{2}, f.store.GroupsOf(res.User.ID))

	// registration is authorized by the requester, the follow-up edit by the admin
	require.Len(t, f.store.Registers, 1)
	assert.Nil(t, f.store.Registers[0].Actor)
	assert.Equal(t, res.Registration.Token, f.store.Registers[0].Attributes.Token)
	assert.Equal(t, []string{"email"}, f.store.Registers[0].Attributes.Provided)
	require.Len(t, f.store.Edits, 1)
	assert.Equal(t, f.admin.ID, f.store.Edits[0].Actor.ID)

	// the link generated by registration is removed again
	assert.Empty(t, f.store.LoginProviders(res.User.ID, auth.ProviderKeycloak))
}

func TestReconcile_CreateUserTokensAreUnique(t *testing.T) {
	a := newFixture(t)
	b := newFixture(t)

	ra, err := a.engine.Reconcile(context.Background(), nil, identity("sub-3", "a@b.com"), nil)
	require.NoError(t, err)
	rb, err := b.engine.Reconcile(context.Background(), nil, identity("sub-3", "a@b.com"), nil)
	require.NoError(t, err)

	assert.NotEqual(t, ra.Registration.Token, rb.Registration.Token)
}

func TestReconcile_CreateUserFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterErr = errors.New("sign up closed")

	res, err := f.engine.Reconcile(context.Background(), nil, identity("sub-4", "a@b.com"), nil)
	require.NoError(t, err)

	assert.Equal(t, resolver.CreateUser, res.Kind)
	assert.Nil(t, res.User)
	require.NotNil(t, res.Registration)

	_, stored := f.store.PendingRegistration(res.Registration.Token)
	assert.True(t, stored)
	assert.Empty(t, f.store.Edits)
}

func TestReconcile_AdminMissingIsFatal(t *testing.T) {
	store := memstore.New()
	engine := resolver.NewEngine(store, store, store, store, resolver.NewGroupAdminResolver(store, 1))

	_, err := engine.Reconcile(context.Background(), nil, identity("sub-5", "a@b.com"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	assert.Empty(t, store.Registers)
}

func TestReconcile_NilIdentity(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Reconcile(context.Background(), nil, nil, nil)
	assert.Error(t, err)
}

func TestGroupAdminResolver(t *testing.T) {
	store := memstore.New()
	r := resolver.NewGroupAdminResolver(store, 0)

	_, err := r.AdminActor(context.Background())
	assert.ErrorIs(t, err, auth.ErrNotFound, "group missing")

	store.AddGroup(1, "Admin")
	_, err = r.AdminActor(context.Background())
	assert.ErrorIs(t, err, auth.ErrNotFound, "group empty")

	first := store.AddUser(auth.User{Username: "first"})
	second := store.AddUser(auth.User{Username: "second"})
	store.AddMember(1, first.ID)
	store.AddMember(1, second.ID)

	admin, err := r.AdminActor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.ID, admin.ID)
}

package memstore

import (
	"context"
	"testing"

	"keycloak-bridge/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterUserConsumesToken(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SavePendingRegistration(ctx, auth.PendingRegistration{
		Token:      "tok",
		Provider:   auth.ProviderKeycloak,
		Identifier: "sub-1",
	}))

	u, err := s.RegisterUser(ctx, auth.RegisterUserCommand{
		Attributes: auth.UserAttributes{Username: "alice", Email: "a@b.com", Token: "tok"},
	})
	require.NoError(t, err)

	linked, err := s.FindByLoginProvider(ctx, auth.ProviderKeycloak, "sub-1")
	require.NoError(t, err)
	require.NotNil(t, linked)
	assert.Equal(t, u.ID, linked.ID)

	_, ok := s.PendingRegistration("tok")
	assert.False(t, ok)

	_, err = s.RegisterUser(ctx, auth.RegisterUserCommand{
		Attributes: auth.UserAttributes{Username: "bob", Email: "A@B.com"},
	})
	assert.ErrorIs(t, err, auth.ErrValidation)
}

func TestLinkLoginProviderOwnership(t *testing.T) {
	s := New()
	ctx := context.Background()

	a := s.AddUser(auth.User{Username: "a", Email: "a@example.com"})
	b := s.AddUser(auth.User{Username: "b", Email: "b@example.com"})

	require.NoError(t, s.LinkLoginProvider(ctx, a.ID, auth.ProviderKeycloak, "sub"))
	require.NoError(t, s.LinkLoginProvider(ctx, a.ID, auth.ProviderKeycloak, "sub"))
	assert.ErrorIs(t, s.LinkLoginProvider(ctx, b.ID, auth.ProviderKeycloak, "sub"), auth.ErrValidation)

	require.NoError(t, s.RemoveLoginProviders(ctx, a.ID, auth.ProviderKeycloak))
	assert.Empty(t, s.LoginProviders(a.ID, auth.ProviderKeycloak))
}

func TestEditUserReplacesMemberships(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.AddGroup(2, "Staff")
	s.AddGroup(3, "Members")
	u := s.AddUser(auth.User{Username: "a", Email: "a@example.com"})
	s.AddMember(2, u.ID)

	_, err := s.EditUser(ctx, auth.EditUserCommand{
		UserID: u.ID,
		Actor:  &auth.User{ID: "admin"},
		Groups: []auth.Group{{ID: 3}, {ID: 99}},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, s.GroupsOf(u.ID))

	_, err = s.EditUser(ctx, auth.EditUserCommand{UserID: u.ID})
	assert.ErrorIs(t, err, auth.ErrPermissionDenied)
}

package db

import (
	"context"
	"testing"
	"time"

	"keycloak-bridge/internal/auth"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUserID = "2b1f3a0e-8f3a-4c43-9d6b-5b0b7f1d9e01"

var userRowColumns = []string{"id", "username", "email", "is_email_confirmed", "avatar_url", "created_at"}

func newMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		sqlDB.Close()
	})

	return New(sqlDB), mock
}

func userRow(id, username, email string) *sqlmock.Rows {
	return sqlmock.NewRows(userRowColumns).
		AddRow(id, username, email, true, "", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}

func TestFindByName(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectQuery("SELECT id, name FROM groups").
		WithArgs("Staff").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(2), "Staff"))
	mock.ExpectQuery("SELECT id, name FROM groups").
		WithArgs("Users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	g, err := d.FindByName(context.Background(), "Staff")
	require.NoError(t, err)
	assert.Equal(t, &auth.Group{ID: 2, Name: "Staff"}, g)

	g, err = d.FindByName(context.Background(), "Users")
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestFindOrFail(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectQuery("SELECT id, name FROM groups").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	_, err := d.FindOrFail(context.Background(), 1)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestListUsers(t *testing.T) {
	d, mock := newMock(t)

	rows := userRow(testUserID, "root", "root@example.com").
		AddRow("8c6e1f4c-3b52-4a3e-8f7e-1a2b3c4d5e6f", "second", "second@example.com", false, "", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	mock.ExpectQuery("FROM users u JOIN group_user gu").
		WithArgs(int64(1)).
		WillReturnRows(rows)

	users, err := d.ListUsers(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, testUserID, users[0].ID)
	assert.Equal(t, "second", users[1].Username)
}

func TestFindByLoginProvider(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectQuery("JOIN login_providers lp").
		WithArgs(auth.ProviderKeycloak, "sub-1").
		WillReturnRows(userRow(testUserID, "alice", "a@b.com"))
	mock.ExpectQuery("JOIN login_providers lp").
		WithArgs(auth.ProviderKeycloak, "sub-2").
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	u, err := d.FindByLoginProvider(context.Background(), auth.ProviderKeycloak, "sub-1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "alice", u.Username)

	u, err = d.FindByLoginProvider(context.Background(), auth.ProviderKeycloak, "sub-2")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestFindByIDRejectsMalformedIDs(t *testing.T) {
	d, _ := newMock(t)

	u, err := d.FindByID(context.Background(), "not-a-uuid")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestLinkLoginProviderOwnedByOtherUser(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectQuery("INSERT INTO login_providers").
		WithArgs(testUserID, auth.ProviderKeycloak, "sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	err := d.LinkLoginProvider(context.Background(), testUserID, auth.ProviderKeycloak, "sub-1")
	assert.ErrorIs(t, err, auth.ErrValidation)
}

func TestSavePendingRegistration(t *testing.T) {
	d, mock := newMock(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO registration_tokens").
		WithArgs("tok", auth.ProviderKeycloak, "sub-1", `{"email":"a@b.com"}`, `{"sub":"sub-1"}`, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := d.SavePendingRegistration(context.Background(), auth.PendingRegistration{
		Token:      "tok",
		Provider:   auth.ProviderKeycloak,
		Identifier: "sub-1",
		Provided:   map[string]string{"email": "a@b.com"},
		Payload:    map[string]any{"sub": "sub-1"},
		CreatedAt:  now,
	})
	require.NoError(t, err)
}

func TestSettingsStore(t *testing.T) {
	d, mock := newMock(t)
	store := NewSettingsStore(d)

	mock.ExpectQuery("SELECT value FROM settings").
		WithArgs("keycloak.realm").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("forum"))
	mock.ExpectQuery("SELECT value FROM settings").
		WithArgs("keycloak.role_mapping").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	v, err := store.Get(context.Background(), "keycloak.realm")
	require.NoError(t, err)
	assert.Equal(t, "forum", v)

	v, err = store.Get(context.Background(), "keycloak.role_mapping")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestEditUserReplacesGroups(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE users u SET").
		WithArgs(testUserID, "alice", "a@b.com", true, "").
		WillReturnRows(userRow(testUserID, "alice", "a@b.com"))
	mock.ExpectExec("DELETE FROM group_user").
		WithArgs(testUserID).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO group_user").
		WithArgs(testUserID, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	u, err := d.EditUser(context.Background(), auth.EditUserCommand{
		UserID: testUserID,
		Actor:  &auth.User{ID: "admin"},
		Attributes: auth.UserAttributes{
			Username:         "alice",
			Email:            "a@b.com",
			IsEmailConfirmed: true,
		},
		Groups: []auth.Group{{ID: 2, Name: "Staff"}},
	})
	require.NoError(t, err)
	assert.Equal(t, testUserID, u.ID)
}

func TestEditUserRequiresActor(t *testing.T) {
	d, _ := newMock(t)

	_, err := d.EditUser(context.Background(), auth.EditUserCommand{UserID: testUserID})

	var cmdErr *auth.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.ErrorIs(t, err, auth.ErrPermissionDenied)
}

func TestEditUserMissingUserRollsBack(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE users u SET").
		WillReturnRows(sqlmock.NewRows(userRowColumns))
	mock.ExpectRollback()

	_, err := d.EditUser(context.Background(), auth.EditUserCommand{
		UserID: testUserID,
		Actor:  &auth.User{ID: "admin"},
	})
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestRegisterUserWithToken(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT provider, identifier").
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"provider", "identifier"}).AddRow(auth.ProviderKeycloak, "sub-1"))
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("alice", "a@b.com", true, "", sqlmock.AnyArg()).
		WillReturnRows(userRow(testUserID, "alice", "a@b.com"))
	mock.ExpectExec("INSERT INTO login_providers").
		WithArgs(testUserID, auth.ProviderKeycloak, "sub-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM registration_tokens").
		WithArgs("tok").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	u, err := d.RegisterUser(context.Background(), auth.RegisterUserCommand{
		Attributes: auth.UserAttributes{
			Username:         "alice",
			Email:            "a@b.com",
			IsEmailConfirmed: true,
			Token:            "tok",
			Provided:         []string{"email"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, testUserID, u.ID)
}

func TestRegisterUserDuplicateEmail(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key"})
	mock.ExpectRollback()

	_, err := d.RegisterUser(context.Background(), auth.RegisterUserCommand{
		Attributes: auth.UserAttributes{Username: "alice", Email: "a@b.com"},
	})
	assert.ErrorIs(t, err, auth.ErrValidation)
}

func TestRegisterUserValidates(t *testing.T) {
	d, _ := newMock(t)

	_, err := d.RegisterUser(context.Background(), auth.RegisterUserCommand{
		Attributes: auth.UserAttributes{Email: "a@b.com"},
	})
	assert.ErrorIs(t, err, auth.ErrValidation)
}

package auth_test

import (
	"context"
	"strconv"
	"testing"

	auth "github.com/eloquentlog/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsersCreateDefaults(t *testing.T) {
	db := setupDB(t)

	user := createUser(t, db, "  foo@example.org ")
	assert.Equal(t, "foo@example.org", user.Email)
	assert.Equal(t, auth.UserStatePending, user.State)
	assert.False(t, user.CreatedAt.IsZero())
}

func TestUsersGetByIdentifier(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	repo := auth.NewUsersRepository(db)

	username := "foo"
	user, err := repo.Create(ctx, &auth.User{Email: "foo@example.org", Username: &username, PasswordHash: "hash"})
	require.NoError(t, err)

	for _, identifier := range []string{strconv.FormatInt(user.ID, 10), "foo@example.org", "foo"} {
		found, err := repo.GetByIdentifier(ctx, identifier)
		require.NoError(t, err, identifier)
		assert.Equal(t, user.ID, found.ID)
	}

	_, err = repo.GetByIdentifier(ctx, "bar@example.org")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	_, err = repo.GetByIdentifier(ctx, " ")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestUsersGetWithEmails(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	users := auth.NewUsersRepository(db)
	emails := auth.NewUserEmailsRepository(db)

	user := createUser(t, db, "foo@example.org")
	require.NotNil(t, emails.Insert(ctx, auth.NewEmailIdentityFromUser(user)))

	loaded, err := users.GetWithEmails(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Emails, 1)
	require.NotNil(t, loaded.PrimaryEmail())
	assert.Equal(t, "foo@example.org", *loaded.PrimaryEmail().Email)

	_, err = users.GetWithEmails(ctx, 999)
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestUsersUpdateState(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	repo := auth.NewUsersRepository(db)
	user := createUser(t, db, "foo@example.org")

	updated, err := repo.UpdateState(ctx, user.ID, auth.UserStateActive)
	require.NoError(t, err)
	assert.Equal(t, auth.UserStateActive, updated.State)
	assert.Equal(t, "foo@example.org", updated.Email)

	_, err = repo.UpdateState(ctx, 999, auth.UserStateActive)
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

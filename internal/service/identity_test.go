package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/accounts/internal/apperror"
	"github.com/templui/accounts/internal/model"
)

func TestCreateLocal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.identity.CreateLocal(ctx, "  a@x.com ", testPassword)
	require.NoError(t, err)

	assert.Equal(t, "a@x.com", user.Email)
	assert.Equal(t, "a", user.Nickname)
	assert.True(t, user.HasCredential())
	assert.Equal(t, model.AccountKindLocal, user.Kind())
	assert.True(t, user.CanSendVerification())
	assert.True(t, env.credentials.Verify(testPassword, user.Credential))
}

func TestCreateLocal_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
		field    string
	}{
		{"bad email", "not-an-email", testPassword, "email"},
		{"short password", "a@x.com", "Ab1!", "password"},
		{"no digit", "a@x.com", "Abcdefg!", "password"},
		{"no punctuation", "a@x.com", "Abcdefg1", "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.identity.CreateLocal(ctx, tt.email, tt.password)
			require.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tt.field, apperror.FieldOf(err))
		})
	}

	count, err := env.store.Users.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCreateLocal_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.identity.CreateLocal(ctx, "a@x.com", testPassword)
	require.NoError(t, err)

	_, err = env.identity.CreateLocal(ctx, "a@x.com", "Other1!pw")
	require.ErrorIs(t, err, ErrDuplicateEmail)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	stored, err := env.identity.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, env.credentials.Verify(testPassword, stored.Credential))
	assert.Equal(t, 1, env.sessionCount(t, first.ID))
}

func TestCreateLocal_ClaimsProviderAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fed, err := env.identity.CreateOAuth(ctx, "b@y.com", "Bee", &model.OAuth{Provider: model.ProviderGoogle, ProviderUserID: "42"})
	require.NoError(t, err)

	claimed, err := env.identity.CreateLocal(ctx, "b@y.com", testPassword)
	require.NoError(t, err)

	assert.Equal(t, fed.ID, claimed.ID)
	assert.Equal(t, "Bee", claimed.Nickname)
	assert.True(t, claimed.IsActivated())
	assert.Nil(t, claimed.ActivationKey)
	assert.True(t, env.credentials.Verify(testPassword, claimed.Credential))
	assert.Equal(t, 2, env.sessionCount(t, fed.ID))

	withIDs, err := env.identity.FindByIDWithIdentities(ctx, fed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AccountKindHybrid, withIDs.Kind())

	// A second claim finds the password already set
	_, err = env.identity.CreateLocal(ctx, "b@y.com", "Other1!pw")
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestCreateLocal_ConcurrentSignups(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.identity.CreateLocal(ctx, "race@x.com", testPassword)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicateEmail)
	}
	assert.Equal(t, 1, succeeded)

	count, err := env.store.Users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateLocal_MultiBytePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	password := "aA1!" + strings.Repeat("中", 16)

	user, err := env.identity.CreateLocal(ctx, "cjk@example.com", password)
	require.NoError(t, err)
	assert.True(t, env.credentials.Verify(password, user.Credential))

	got, err := env.identity.Authenticate(ctx, "cjk@example.com", password)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestCreateLocal_ConcurrentClaims(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fed, err := env.identity.CreateOAuth(ctx, "race@y.com", "Fed", &model.OAuth{Provider: model.ProviderGoogle, ProviderUserID: "42"})
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	users := make([]*model.User, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			users[i], errs[i] = env.identity.CreateLocal(ctx, "race@y.com", testPassword)
		}(i)
	}
	wg.Wait()

	// The first claim gives the account a password; later ones find it taken.
	succeeded := 0
	for i, err := range errs {
		if err == nil {
			succeeded++
			assert.Equal(t, fed.ID, users[i].ID)
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicateEmail)
	}
	assert.Equal(t, 1, succeeded)

	count, err := env.store.Users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestClaimedAccountIsHybrid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fed, err := env.identity.CreateOAuth(ctx, "h@example.com", "H", &model.OAuth{Provider: model.ProviderGoogle, ProviderUserID: "42"})
	require.NoError(t, err)
	assert.Equal(t, model.AccountKindFederated, fed.Kind())

	claimed, err := env.identity.CreateLocal(ctx, "h@example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, model.AccountKindHybrid, claimed.Kind())

	got, err := env.identity.Authenticate(ctx, "h@example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, model.AccountKindHybrid, got.Kind())
	assert.NotNil(t, got.OAuth(model.ProviderGoogle))

	byEmail, err := env.identity.FindByEmail(ctx, "h@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.AccountKindHybrid, byEmail.Kind())

	users, err := env.identity.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, model.AccountKindHybrid, users[0].Kind())

	local, err := env.identity.CreateLocal(ctx, "l@example.com", testPassword)
	require.NoError(t, err)
	users, err = env.identity.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	for _, u := range users {
		if u.ID == local.ID {
			assert.Equal(t, model.AccountKindLocal, u.Kind())
		}
	}
}

func TestCreateOAuth(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.identity.CreateOAuth(ctx, "b@y.com", "", &model.OAuth{Provider: model.ProviderGitHub, ProviderUserID: "7"})
	require.NoError(t, err)

	assert.Equal(t, "b", user.Nickname)
	assert.True(t, user.IsActivated())
	assert.False(t, user.HasCredential())
	assert.Nil(t, user.ActivationKey)
	assert.Equal(t, model.AccountKindFederated, user.Kind())
	require.NotNil(t, user.OAuth(model.ProviderGitHub))
	assert.Equal(t, user.ID, user.OAuth(model.ProviderGitHub).UserID)
	assert.Equal(t, 1, env.sessionCount(t, user.ID))
}

func TestCreateOAuth_EmailTakenByLocalUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.identity.CreateLocal(ctx, "a@x.com", testPassword)
	require.NoError(t, err)

	_, err = env.identity.CreateOAuth(ctx, "a@x.com", "A", &model.OAuth{Provider: model.ProviderGoogle, ProviderUserID: "1"})
	require.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = env.store.OAuths.ByProvider(ctx, model.ProviderGoogle, "1")
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.identity.CreateLocal(ctx, "a@x.com", testPassword)
	require.NoError(t, err)

	got, err := env.identity.Authenticate(ctx, "a@x.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, wrongErr := env.identity.Authenticate(ctx, "a@x.com", "Wrong1!pw")
	_, unknownErr := env.identity.Authenticate(ctx, "nobody@x.com", testPassword)

	for _, err := range []error{wrongErr, unknownErr} {
		require.ErrorIs(t, err, ErrInvalidCredentials)
		assert.ErrorIs(t, err, apperror.ErrUnauthorized)
		assert.Equal(t, "invalid email or password", err.Error())
	}

	var authErr *AuthError
	require.True(t, errors.As(wrongErr, &authErr))
	assert.Equal(t, AuthReasonInvalidCredential, authErr.Reason)
	require.True(t, errors.As(unknownErr, &authErr))
	assert.Equal(t, AuthReasonNotFound, authErr.Reason)
}

func TestAuthenticate_ProviderAccountHasNoPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.identity.CreateOAuth(ctx, "b@y.com", "B", &model.OAuth{Provider: model.ProviderGoogle, ProviderUserID: "42"})
	require.NoError(t, err)

	_, err = env.identity.Authenticate(ctx, "b@y.com", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.identity.Authenticate(ctx, "b@y.com", testPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUpdatePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.identity.CreateLocal(ctx, "a@x.com", testPassword)
	require.NoError(t, err)

	err = env.identity.UpdatePassword(ctx, user, "short")
	require.ErrorIs(t, err, apperror.ErrValidation)

	require.NoError(t, env.identity.UpdatePassword(ctx, user, "Newpass1?"))

	_, err = env.identity.Authenticate(ctx, "a@x.com", testPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.identity.Authenticate(ctx, "a@x.com", "Newpass1?")
	assert.NoError(t, err)
}

func TestUpdateNickname(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.identity.CreateLocal(ctx, "a@x.com", testPassword)
	require.NoError(t, err)

	// Decomposed e + combining acute is stored composed
	require.NoError(t, env.identity.UpdateNickname(ctx, user, " Jose\u0301 "))
	assert.Equal(t, "Jos\u00e9", user.Nickname)

	stored, err := env.identity.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jos\u00e9", stored.Nickname)

	err = env.identity.UpdateNickname(ctx, user, "   ")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestListAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.identity.CreateLocal(ctx, "a@x.com", testPassword)
	require.NoError(t, err)
	require.NoError(t, env.identity.OnLoggedIn(ctx, a))
	require.NoError(t, env.identity.OnLoggedIn(ctx, a))

	b, err := env.identity.CreateLocal(ctx, "b@x.com", testPassword)
	require.NoError(t, err)

	users, err := env.identity.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)

	counts := map[string]int{}
	for _, u := range users {
		counts[u.ID] = u.SigninCount
		assert.Equal(t, env.sessionCount(t, u.ID), u.SigninCount)
		assert.False(t, u.LastSigninAt.IsZero())
	}
	assert.Equal(t, 3, counts[a.ID])
	assert.Equal(t, 1, counts[b.ID])
}

func TestLinkIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.identity.CreateLocal(ctx, "a@x.com", testPassword)
	require.NoError(t, err)

	err = env.identity.LinkIdentity(ctx, user, &model.OAuth{Provider: model.ProviderGoogle, ProviderUserID: "1"})
	require.NoError(t, err)
	assert.Equal(t, model.AccountKindHybrid, user.Kind())
	assert.Equal(t, 2, env.sessionCount(t, user.ID))

	err = env.identity.LinkIdentity(ctx, user, &model.OAuth{Provider: model.ProviderGoogle, ProviderUserID: "2"})
	require.ErrorIs(t, err, ErrProviderAlreadyLinked)
	assert.Equal(t, 2, env.sessionCount(t, user.ID))
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.identity.CreateOAuth(ctx, "b@y.com", "B", &model.OAuth{Provider: model.ProviderGoogle, ProviderUserID: "42"})
	require.NoError(t, err)

	require.NoError(t, env.identity.Delete(ctx, user.ID))

	_, err = env.identity.FindByID(ctx, user.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Zero(t, env.sessionCount(t, user.ID))
	_, err = env.store.OAuths.ByProvider(ctx, model.ProviderGoogle, "42")
	assert.Error(t, err)

	assert.ErrorIs(t, env.identity.Delete(ctx, user.ID), ErrUserNotFound)
}

func TestOnLoggedIn_StoresUTC(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.identity.CreateLocal(ctx, "a@x.com", testPassword)
	require.NoError(t, err)

	at := time.Now().Add(24 * time.Hour).Truncate(time.Second).In(time.FixedZone("UTC-5", -5*60*60))
	env.identity.now = func() time.Time { return at }
	require.NoError(t, env.identity.OnLoggedIn(ctx, user))

	last, err := env.store.Sessions.LastByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, at.Equal(last.LoggedAt))
	assert.Equal(t, time.UTC, last.LoggedAt.Location())
}

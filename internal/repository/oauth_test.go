package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/accounts/internal/model"
)

func TestOAuthCreate_AndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, newFederatedUser("b@y.com"))

	o := &model.OAuth{Provider: "google", ProviderUserID: "42", UserID: u.ID, Token: `{"access_token":"t"}`}
	require.NoError(t, s.OAuths.Create(ctx, o))
	assert.NotEmpty(t, o.ID)

	found, err := s.OAuths.ByProvider(ctx, "google", "42")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.UserID)

	_, err = s.OAuths.ByProvider(ctx, "facebook", "42")
	assert.ErrorIs(t, err, ErrOAuthNotFound)

	require.NoError(t, s.OAuths.UpdateToken(ctx, o.ID, `{"access_token":"t2"}`))
	list, err := s.OAuths.ByUserID(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, `{"access_token":"t2"}`, list[0].Token)
}

func TestOAuthCreate_PairIsUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := createUser(t, s, newFederatedUser("a@y.com"))
	b := createUser(t, s, newFederatedUser("b@y.com"))

	require.NoError(t, s.OAuths.Create(ctx, &model.OAuth{Provider: "google", ProviderUserID: "42", UserID: a.ID, Token: "{}"}))
	err := s.OAuths.Create(ctx, &model.OAuth{Provider: "google", ProviderUserID: "42", UserID: b.ID, Token: "{}"})
	assert.ErrorIs(t, err, ErrDuplicateOAuth)
}

func TestOAuthCreate_OnePerProviderPerUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := createUser(t, s, newFederatedUser("a@y.com"))

	require.NoError(t, s.OAuths.Create(ctx, &model.OAuth{Provider: "google", ProviderUserID: "1", UserID: a.ID, Token: "{}"}))
	err := s.OAuths.Create(ctx, &model.OAuth{Provider: "google", ProviderUserID: "2", UserID: a.ID, Token: "{}"})
	assert.ErrorIs(t, err, ErrDuplicateOAuth)

	require.NoError(t, s.OAuths.Create(ctx, &model.OAuth{Provider: "facebook", ProviderUserID: "1", UserID: a.ID, Token: "{}"}))
}

func TestOAuthAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := createUser(t, s, newFederatedUser("a@y.com"))
	b := createUser(t, s, newFederatedUser("b@y.com"))

	require.NoError(t, s.OAuths.Create(ctx, &model.OAuth{Provider: "google", ProviderUserID: "1", UserID: a.ID, Token: "{}"}))
	require.NoError(t, s.OAuths.Create(ctx, &model.OAuth{Provider: "github", ProviderUserID: "2", UserID: a.ID, Token: "{}"}))
	require.NoError(t, s.OAuths.Create(ctx, &model.OAuth{Provider: "google", ProviderUserID: "3", UserID: b.ID, Token: "{}"}))

	all, err := s.OAuths.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	perUser := map[string]int{}
	for _, o := range all {
		perUser[o.UserID]++
	}
	assert.Equal(t, 2, perUser[a.ID])
	assert.Equal(t, 1, perUser[b.ID])
}

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/accounts/internal/model"
)

func TestSessionCreate_DefaultsAndLast(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, newLocalUser("a@x.com"))

	first := &model.Session{UserID: u.ID, LoggedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, s.Sessions.Create(ctx, first))
	assert.NotEmpty(t, first.ID)

	second := &model.Session{UserID: u.ID}
	require.NoError(t, s.Sessions.Create(ctx, second))
	assert.False(t, second.LoggedAt.IsZero())

	count, err := s.Sessions.CountByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	last, err := s.Sessions.LastByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, last.ID)
}

func TestSessionLastByUser_None(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Sessions.LastByUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionCreate_UnknownUserFails(t *testing.T) {
	s := newTestStore(t)
	err := s.Sessions.Create(context.Background(), &model.Session{UserID: "nobody"})
	assert.Error(t, err)
}

func TestSessionCountActiveUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := createUser(t, s, newLocalUser("a@x.com"))
	b := createUser(t, s, newLocalUser("b@x.com"))

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Sessions.Create(ctx, &model.Session{UserID: a.ID, LoggedAt: day.Add(time.Hour)}))
	require.NoError(t, s.Sessions.Create(ctx, &model.Session{UserID: a.ID, LoggedAt: day.Add(2 * time.Hour)}))
	require.NoError(t, s.Sessions.Create(ctx, &model.Session{UserID: b.ID, LoggedAt: day.Add(23 * time.Hour)}))
	require.NoError(t, s.Sessions.Create(ctx, &model.Session{UserID: b.ID, LoggedAt: day.Add(24 * time.Hour)}))

	count, err := s.Sessions.CountActiveUsers(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = s.Sessions.CountActiveUsers(ctx, day.Add(24*time.Hour), day.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/templui/accounts/internal/db"
	"github.com/templui/accounts/internal/model"
	"github.com/templui/accounts/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []*model.User
	fail bool
}

func (m *fakeMailer) SendVerification(ctx context.Context, user *model.User) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return false
	}
	m.sent = append(m.sent, user)
	return true
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type testEnv struct {
	store       *repository.Store
	mailer      *fakeMailer
	credentials *CredentialService
	activation  *ActivationService
	identity    *IdentityService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.Init("sqlite", filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(database) })
	require.NoError(t, db.RunMigrations(context.Background(), database.DB, "sqlite"))

	store := repository.NewStore(database)
	mailer := &fakeMailer{}
	credentials := NewCredentialService(bcrypt.MinCost)
	activation := NewActivationService(store, mailer, DefaultActivationKeyLength, 72*time.Hour)

	return &testEnv{
		store:       store,
		mailer:      mailer,
		credentials: credentials,
		activation:  activation,
		identity:    NewIdentityService(store, credentials, activation),
	}
}

func (e *testEnv) sessionCount(t *testing.T, userID string) int {
	t.Helper()
	n, err := e.store.Sessions.CountByUser(context.Background(), userID)
	require.NoError(t, err)
	return n
}

const testPassword = "Abcdef1!"

package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dishpal-ai/dishpal-cli/internal/api"
	"github.com/dishpal-ai/dishpal-cli/internal/cache"
	"github.com/dishpal-ai/dishpal-cli/internal/credstore"
	"github.com/dishpal-ai/dishpal-cli/internal/models"
	"github.com/dishpal-ai/dishpal-cli/internal/session"
	"github.com/dishpal-ai/dishpal-cli/internal/testutil"
)

type noopNavigator struct {
	routes []string
}

func (n *noopNavigator) Navigate(route string, replace bool) {
	n.routes = append(n.routes, route)
}

// stack wires the production components in dependency order, with only the
// backend faked: file credential store -> session client -> cache -> store.
type stack struct {
	backend *testutil.FakeBackend
	creds   *credstore.FileStore
	cache   *cache.Cache
	client  *api.Client
	session *session.Store
	nav     *noopNavigator
}

func newStack(t *testing.T) *stack {
	t.Helper()

	backend := testutil.NewFakeBackend(t)
	creds := credstore.NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	queryCache := cache.New()

	client, err := api.NewClient(api.Config{
		BaseURL: backend.URL(),
		Timeout: 5 * time.Second,
	}, creds, queryCache)
	require.NoError(t, err)

	nav := &noopNavigator{}
	sessionStore, err := session.NewStore(client, queryCache, creds, nav, nil)
	require.NoError(t, err)

	return &stack{
		backend: backend,
		creds:   creds,
		cache:   queryCache,
		client:  client,
		session: sessionStore,
		nav:     nav,
	}
}

func Test_SessionFlow(t *testing.T) {
	t.Parallel()

	t.Run("full lifecycle register login expire refresh logout", func(t *testing.T) {
		s := newStack(t)
		ctx := context.Background()

		// Before anything: identity undetermined
		require.Equal(t, session.StateLoading, s.session.State())

		// Nobody logged in yet
		user, state := s.session.Current(ctx)
		require.Equal(t, session.StateAnonymous, state)
		require.Nil(t, user)

		// Register; session user re-derives through cache invalidation
		_, err := s.client.Register(ctx, api.RegisterRequest{
			Username:        "nk",
			Email:           "nk@example.com",
			Password:        "StrongEnoughPassword",
			ConfirmPassword: "StrongEnoughPassword",
		})
		require.NoError(t, err)

		user, state = s.session.Current(ctx)
		require.Equal(t, session.StateAuthenticated, state)
		require.Equal(t, "nk", user.Username)

		// Access expires; the next authenticated call self-heals
		before, ok, err := s.creds.Load()
		require.NoError(t, err)
		require.True(t, ok)
		s.backend.RevokeAccessTokens()

		fetched, err := s.client.UserInfo(ctx)
		require.NoError(t, err)
		assert.Equal(t, "nk", fetched.Username)
		assert.Equal(t, 1, s.backend.RefreshCallCount())

		after, ok, err := s.creds.Load()
		require.NoError(t, err)
		require.True(t, ok)
		assert.NotEqual(t, before.Access, after.Access, "credential pair should be rotated")

		// Logout tears everything down
		require.NoError(t, s.session.Logout())
		_, ok, err = s.creds.Load()
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, []string{session.LoginRoute}, s.nav.routes)

		user, state = s.session.Current(ctx)
		require.Equal(t, session.StateAnonymous, state)
		require.Nil(t, user)
	})

	t.Run("login after failed refresh starts clean", func(t *testing.T) {
		s := newStack(t)
		ctx := context.Background()

		s.backend.AddUser("nk", "nk@example.com", "StrongEnoughPassword")
		require.NoError(t, s.creds.Save(models.TokenPair{Access: "stale", Refresh: "bogus"}))

		// Bogus refresh token: recovery fails and the pair is dropped
		_, err := s.client.UserInfo(ctx)
		require.Error(t, err)
		_, ok, loadErr := s.creds.Load()
		require.NoError(t, loadErr)
		require.False(t, ok, "failed refresh must leave neither token behind")

		// Regular login still works afterwards
		_, err = s.client.Login(ctx, api.LoginRequest{
			Email:    "nk@example.com",
			Username: "nk",
			Password: "StrongEnoughPassword",
		})
		require.NoError(t, err)

		user, state := s.session.Current(ctx)
		require.Equal(t, session.StateAuthenticated, state)
		assert.Equal(t, "nk", user.Username)
	})

	t.Run("session user survives remounts without refetching", func(t *testing.T) {
		s := newStack(t)
		ctx := context.Background()

		s.backend.AddUser("nk", "nk@example.com", "StrongEnoughPassword")
		require.NoError(t, s.creds.Save(s.backend.IssueTokens("nk")))

		for range 5 {
			_, state := s.session.Current(ctx)
			require.Equal(t, session.StateAuthenticated, state)
		}
		assert.Equal(t, 1, s.backend.UserInfoCallCount(), "reads within the freshness window must not refetch")
	})
}

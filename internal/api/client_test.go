package api

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dishpal-ai/dishpal-cli/internal/apierrors"
	"github.com/dishpal-ai/dishpal-cli/internal/cache"
	"github.com/dishpal-ai/dishpal-cli/internal/credstore"
	"github.com/dishpal-ai/dishpal-cli/internal/testutil"
)

func newTestClient(t *testing.T, backend *testutil.FakeBackend) (*Client, *credstore.MemStore, *cache.Cache) {
	t.Helper()

	creds := &credstore.MemStore{}
	queryCache := cache.New()

	client, err := NewClient(Config{
		BaseURL: backend.URL(),
		Timeout: 5 * time.Second,
	}, creds, queryCache)
	require.NoError(t, err)

	return client, creds, queryCache
}

func TestClient_Login(t *testing.T) {
	t.Parallel()

	t.Run("persists both tokens and invalidates cached user", func(t *testing.T) {
		backend := testutil.NewFakeBackend(t)
		backend.AddUser("nk", "nk@example.com", "StrongEnoughPassword")
		client, creds, queryCache := newTestClient(t, backend)

		// Stale cached "nobody" from before login must not survive
		queryCache.Set(cache.KeyUserInfo, nil, cache.DefaultFreshFor)

		pair, err := client.Login(t.Context(), LoginRequest{
			Email:    "nk@example.com",
			Username: "nk",
			Password: "StrongEnoughPassword",
		})
		require.NoError(t, err)
		require.NotEmpty(t, pair.Access)
		require.NotEmpty(t, pair.Refresh)

		stored, ok, err := creds.Load()
		require.NoError(t, err)
		require.True(t, ok, "credentials should be persisted after login")
		assert.Equal(t, pair.Access, stored.Access)
		assert.Equal(t, pair.Refresh, stored.Refresh)
		assert.InDelta(t, credstore.TTL.Seconds(), time.Until(stored.ExpiresAt).Seconds(), 5, "pair should get the fixed expiry window")

		_, cached := queryCache.Get(cache.KeyUserInfo)
		assert.False(t, cached, "cached user entry should be invalidated after login")
	})

	t.Run("wrong password surfaces normalized error", func(t *testing.T) {
		backend := testutil.NewFakeBackend(t)
		backend.AddUser("nk", "nk@example.com", "StrongEnoughPassword")
		client, creds, _ := newTestClient(t, backend)

		_, err := client.Login(t.Context(), LoginRequest{
			Email:    "nk@example.com",
			Username: "nk",
			Password: "WrongPassword",
		})
		require.Error(t, err)

		apiErr, ok := apierrors.AsAPIError(err)
		require.True(t, ok, "error should be normalized")
		assert.Equal(t, 401, apiErr.Status)
		assert.Equal(t, "User not found", apiErr.Message)

		_, stored, loadErr := creds.Load()
		require.NoError(t, loadErr)
		assert.False(t, stored, "no credentials should be persisted on login failure")
	})
}

func TestClient_BearerAttachment(t *testing.T) {
	t.Parallel()

	t.Run("attaches stored access token", func(t *testing.T) {
		backend := testutil.NewFakeBackend(t)
		backend.AddUser("nk", "nk@example.com", "StrongEnoughPassword")
		client, creds, _ := newTestClient(t, backend)

		require.NoError(t, creds.Save(backend.IssueTokens("nk")))

		user, err := client.UserInfo(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "nk", user.Username)
	})

	t.Run("unreadable credential store fails the request up front", func(t *testing.T) {
		backend := testutil.NewFakeBackend(t)
		client, creds, _ := newTestClient(t, backend)
		creds.FailLoad = errors.New("disk on fire")

		_, err := client.UserInfo(t.Context())
		require.Error(t, err)
		require.ErrorIs(t, err, apierrors.ErrCredentialStore)
		assert.Equal(t, 0, backend.UserInfoCallCount(), "no request should be sent with unreadable store")
	})
}

func TestClient_RefreshProtocol(t *testing.T) {
	t.Parallel()

	t.Run("401 triggers refresh and single retry", func(t *testing.T) {
		backend := testutil.NewFakeBackend(t)
		backend.AddUser("nk", "nk@example.com", "StrongEnoughPassword")
		client, creds, _ := newTestClient(t, backend)

		pair := backend.IssueTokens("nk")
		require.NoError(t, creds.Save(pair))
		backend.RevokeAccessTokens() // access now stale, refresh still good

		user, err := client.UserInfo(t.Context())
		require.NoError(t, err, "original request should be retried and succeed")
		assert.Equal(t, "nk", user.Username)
		assert.Equal(t, 1, backend.RefreshCallCount())

		stored, ok, err := creds.Load()
		require.NoError(t, err)
		require.True(t, ok)
		assert.NotEqual(t, pair.Access, stored.Access, "access token should be rotated")
		assert.NotEqual(t, pair.Refresh, stored.Refresh, "refresh token should be rotated")
	})

	t.Run("no refresh token means no refresh call", func(t *testing.T) {
		backend := testutil.NewFakeBackend(t)
		client, creds, _ := newTestClient(t, backend)

		_, err := client.UserInfo(t.Context())
		require.Error(t, err)
		require.ErrorIs(t, err, apierrors.ErrNoRefreshToken)

		apiErr, ok := apierrors.AsAPIError(err)
		require.True(t, ok)
		assert.Equal(t, 401, apiErr.Status)

		assert.Equal(t, 0, backend.RefreshCallCount(), "refresh must not be attempted without a token")
		_, stored, loadErr := creds.Load()
		require.NoError(t, loadErr)
		assert.False(t, stored, "store should remain empty")
	})

	t.Run("failed refresh clears both tokens", func(t *testing.T) {
		backend := testutil.NewFakeBackend(t)
		backend.AddUser("nk", "nk@example.com", "StrongEnoughPassword")
		client, creds, _ := newTestClient(t, backend)

		require.NoError(t, creds.Save(backend.IssueTokens("nk")))
		backend.RevokeAccessTokens()
		backend.FailRefresh = true

		_, err := client.UserInfo(t.Context())
		require.Error(t, err)
		require.ErrorIs(t, err, apierrors.ErrRefreshFailed)

		_, stored, loadErr := creds.Load()
		require.NoError(t, loadErr)
		assert.False(t, stored, "both tokens must be cleared after refresh failure")
	})

	t.Run("second 401 on retried request is final", func(t *testing.T) {
		backend := testutil.NewFakeBackend(t)
		backend.AddUser("nk", "nk@example.com", "StrongEnoughPassword")
		client, creds, _ := newTestClient(t, backend)

		require.NoError(t, creds.Save(backend.IssueTokens("nk")))
		backend.ForceUnauthorized = true // even fresh tokens get 401

		_, err := client.UserInfo(t.Context())
		require.Error(t, err)
		require.ErrorIs(t, err, apierrors.ErrAlreadyRetried)
		assert.Equal(t, 1, backend.RefreshCallCount(), "exactly one recovery attempt per logical request")
	})

	t.Run("concurrent 401s share one refresh, loser fails fast", func(t *testing.T) {
		backend := testutil.NewFakeBackend(t)
		backend.AddUser("nk", "nk@example.com", "StrongEnoughPassword")
		client, creds, _ := newTestClient(t, backend)

		require.NoError(t, creds.Save(backend.IssueTokens("nk")))
		backend.RevokeAccessTokens()

		started := make(chan struct{})
		release := make(chan struct{})
		backend.RefreshHook = func() {
			close(started)
			<-release
		}

		firstDone := make(chan error, 1)
		go func() {
			_, err := client.UserInfo(t.Context())
			firstDone <- err
		}()

		// Second 401 arrives while the first refresh is held in flight
		<-started
		_, err := client.UserInfo(t.Context())
		require.Error(t, err, "second request must not wait for the in-flight refresh")
		require.ErrorIs(t, err, apierrors.ErrRefreshInFlight)

		close(release)
		require.NoError(t, <-firstDone, "first request should recover via the single refresh")
		assert.Equal(t, 1, backend.RefreshCallCount(), "exactly one refresh for the whole failure window")
	})
}

func TestClient_GuestToken(t *testing.T) {
	t.Parallel()

	backend := testutil.NewFakeBackend(t)
	client, _, _ := newTestClient(t, backend)

	token, err := client.GuestToken(t.Context(), "guest@example.com")
	require.NoError(t, err)
	assert.Equal(t, "guest-guest@example.com", token)
}

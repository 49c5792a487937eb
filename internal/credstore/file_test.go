package credstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dishpal-ai/dishpal-cli/internal/models"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
}

func TestFileStore(t *testing.T) {
	t.Parallel()

	t.Run("missing file reads as absent", func(t *testing.T) {
		s := newTestFileStore(t)

		_, ok, err := s.Load()
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("save and load round trip", func(t *testing.T) {
		s := newTestFileStore(t)

		require.NoError(t, s.Save(models.TokenPair{Access: "a1", Refresh: "r1"}))

		creds, ok, err := s.Load()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "a1", creds.Access)
		assert.Equal(t, "r1", creds.Refresh)
		assert.InDelta(t, TTL.Seconds(), time.Until(creds.ExpiresAt).Seconds(), 5, "expiry should be the fixed window from now")
	})

	t.Run("expiry is renewed on every write", func(t *testing.T) {
		s := newTestFileStore(t)
		now := time.Now()
		s.now = func() time.Time { return now }

		require.NoError(t, s.Save(models.TokenPair{Access: "a1", Refresh: "r1"}))

		now = now.Add(12 * time.Hour)
		require.NoError(t, s.Save(models.TokenPair{Access: "a2", Refresh: "r2"}))

		creds, ok, err := s.Load()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, now.Add(TTL).Unix(), creds.ExpiresAt.Unix())
	})

	t.Run("expired pair reads as absent", func(t *testing.T) {
		s := newTestFileStore(t)
		now := time.Now()
		s.now = func() time.Time { return now }

		require.NoError(t, s.Save(models.TokenPair{Access: "a1", Refresh: "r1"}))

		now = now.Add(TTL + time.Minute)
		_, ok, err := s.Load()
		require.NoError(t, err)
		assert.False(t, ok, "pair past the expiry window should be treated as absent")
	})

	t.Run("clear removes both tokens", func(t *testing.T) {
		s := newTestFileStore(t)

		require.NoError(t, s.Save(models.TokenPair{Access: "a1", Refresh: "r1"}))
		require.NoError(t, s.Clear())

		_, ok, err := s.Load()
		require.NoError(t, err)
		assert.False(t, ok)

		// Clearing an already empty store is fine
		require.NoError(t, s.Clear())
	})

	t.Run("file is private to the user", func(t *testing.T) {
		s := newTestFileStore(t)

		require.NoError(t, s.Save(models.TokenPair{Access: "a1", Refresh: "r1"}))

		info, err := os.Stat(s.Path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("corrupt file surfaces store error", func(t *testing.T) {
		s := newTestFileStore(t)
		require.NoError(t, os.WriteFile(s.Path, []byte("not json"), 0o600))

		_, _, err := s.Load()
		require.Error(t, err, "unreadable store must be an error, not silent absence")
	})
}

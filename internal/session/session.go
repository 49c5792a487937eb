// Package session holds the process-wide answer to "who is logged in".
//
// The Store derives the session user from the cached user-info fetch and is
// the single sanctioned way to end a session. It is an explicit injectable
// dependency: construct one at startup and pass it to whatever needs it.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dishpal-ai/dishpal-cli/internal/cache"
	"github.com/dishpal-ai/dishpal-cli/internal/credstore"
	"github.com/dishpal-ai/dishpal-cli/internal/logger"
	"github.com/dishpal-ai/dishpal-cli/internal/models"
)

// LoginRoute is where logout lands the user.
const LoginRoute = "/auth/login"

// State is the session user tristate. Consumers must treat StateLoading as
// distinct from both other states and render neither the authenticated nor
// the anonymous view while in it.
type State int

const (
	// StateLoading means identity has not been determined yet
	StateLoading State = iota

	// StateAnonymous means determined: nobody is logged in
	StateAnonymous

	// StateAuthenticated means determined: a user is logged in
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "loading"
	}
}

// UserFetcher is the profile-fetch dependency, satisfied by api.Client.
type UserFetcher interface {
	UserInfo(ctx context.Context) (models.User, error)
}

// Navigator moves the user between routes. Replace drops the current history
// entry so back-navigation cannot return to an authenticated page.
type Navigator interface {
	Navigate(route string, replace bool)
}

type Store struct {
	fetcher UserFetcher
	cache   *cache.Cache
	creds   credstore.Store
	nav     Navigator
	logger  logger.Logger

	// stale flips when the cached user-info entry is invalidated; the next
	// read re-derives the user. Atomic because the cache notifies from
	// whatever goroutine performed the invalidation.
	stale atomic.Bool

	mu    sync.Mutex
	state State
	user  models.User
}

func NewStore(fetcher UserFetcher, queryCache *cache.Cache, creds credstore.Store, nav Navigator, log logger.Logger) (*Store, error) {
	if fetcher == nil || queryCache == nil || creds == nil || nav == nil {
		return nil, errors.New("session: all dependencies must be set")
	}
	if log == nil {
		log = logger.NewNoOp()
	}

	s := &Store{
		fetcher: fetcher,
		cache:   queryCache,
		creds:   creds,
		nav:     nav,
		logger:  log,
		state:   StateLoading,
	}

	// Credential-mutating operations invalidate the cached user record;
	// re-derive lazily on the next read
	queryCache.Subscribe(func(key string) {
		if key == cache.KeyUserInfo {
			s.stale.Store(true)
		}
	})

	return s, nil
}

// State reports the current tristate without triggering a fetch.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsLoading reports whether identity is still being determined.
func (s *Store) IsLoading() bool {
	return s.State() == StateLoading
}

// Current returns the session user, deriving it if it has not settled yet or
// the cached record was invalidated. The returned pointer is nil unless the
// state is StateAuthenticated.
func (s *Store) Current(ctx context.Context) (*models.User, State) {
	if s.stale.Load() || s.State() == StateLoading {
		s.resolve(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAuthenticated {
		return nil, s.state
	}
	user := s.user
	return &user, s.state
}

// resolve settles the tristate from the cache, falling back to the backend.
// A failed fetch means "not authenticated", never a fatal condition. Both
// outcomes are cached for the freshness window so remounts don't refetch.
func (s *Store) resolve(ctx context.Context) {
	s.stale.Store(false)

	if v, ok := s.cache.Get(cache.KeyUserInfo); ok {
		s.settle(v.(*models.User))
		return
	}

	user, err := s.fetcher.UserInfo(ctx)
	if err != nil {
		s.logger.Debug("User info fetch failed, treating as anonymous", "error", err)
		s.cache.Set(cache.KeyUserInfo, (*models.User)(nil), cache.DefaultFreshFor)
		s.settle(nil)
		return
	}

	s.cache.Set(cache.KeyUserInfo, &user, cache.DefaultFreshFor)
	s.settle(&user)
}

func (s *Store) settle(user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user == nil {
		s.state = StateAnonymous
		s.user = models.User{}
		return
	}
	s.state = StateAuthenticated
	s.user = *user
}

// Logout ends the session: the user flips to anonymous immediately, every
// cached query result is dropped so nothing leaks into the next session, both
// stored credentials are removed, and the user lands on the sign-in route
// with the current history entry replaced. All steps run even if one fails.
func (s *Store) Logout() error {
	s.mu.Lock()
	s.state = StateAnonymous
	s.user = models.User{}
	s.mu.Unlock()

	s.cache.Clear()

	// Credentials go before navigation so a back-navigation can't replay an
	// authenticated request with a stale token
	err := s.creds.Clear()
	if err != nil {
		s.logger.Error("Failed to clear credentials on logout", "error", err)
	}

	s.nav.Navigate(LoginRoute, true)
	return err
}

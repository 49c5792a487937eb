package credstore

import (
	"sync"
	"time"

	"github.com/dishpal-ai/dishpal-cli/internal/models"
)

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu    sync.Mutex
	creds models.Credentials
	set   bool

	// FailLoad makes Load return an error, to exercise the unreadable
	// store path
	FailLoad error

	// Now substitutes time.Now when set
	Now func() time.Time
}

func (s *MemStore) Load() (models.Credentials, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailLoad != nil {
		return models.Credentials{}, false, s.FailLoad
	}
	if !s.set || s.creds.Expired(s.now()) {
		return models.Credentials{}, false, nil
	}
	return s.creds, true, nil
}

func (s *MemStore) Save(pair models.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds = models.Credentials{
		Access:    pair.Access,
		Refresh:   pair.Refresh,
		ExpiresAt: s.now().Add(TTL),
	}
	s.set = true
	return nil
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds = models.Credentials{}
	s.set = false
	return nil
}

func (s *MemStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

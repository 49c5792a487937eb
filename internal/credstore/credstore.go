package credstore

import (
	"time"

	"github.com/dishpal-ai/dishpal-cli/internal/models"
)

// TTL is the absolute expiry window for a stored credential pair. It is
// renewed on every successful write, matching the 1 day cookie expiry of the
// web client.
const TTL = 24 * time.Hour

// Store persists the access/refresh credential pair between runs.
//
// The two tokens always travel together: Save writes both atomically and
// Clear removes both. A pair past its expiry reads as absent. Load returns
// ok=false when no valid pair is stored; err is reserved for the store itself
// being unreadable, which callers must treat as fatal for the request.
type Store interface {
	Load() (creds models.Credentials, ok bool, err error)
	Save(pair models.TokenPair) error
	Clear() error
}

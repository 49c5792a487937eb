package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dishpal-ai/dishpal-cli/internal/models"
)

// FileStore keeps the credential pair in a single JSON file with 0600
// permissions. Writes go through a temp file and rename so a crash can never
// leave one token without the other.
type FileStore struct {
	Path string

	// now allows tests to control expiry checks
	now func() time.Time
}

func NewFileStore(path string) *FileStore {
	return &FileStore{
		Path: path,
		now:  time.Now,
	}
}

// DefaultPath returns the credential file location under the user config dir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("can't resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "dishpal", "credentials.json"), nil
}

func (s *FileStore) Load() (models.Credentials, bool, error) {
	var creds models.Credentials

	data, err := os.ReadFile(s.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return creds, false, nil
	case err != nil:
		return creds, false, fmt.Errorf("reading credential file: %w", err)
	}

	if err := json.Unmarshal(data, &creds); err != nil {
		return models.Credentials{}, false, fmt.Errorf("parsing credential file: %w", err)
	}

	// Expired pair reads as absent, same as an expired cookie
	if creds.Expired(s.now()) {
		return models.Credentials{}, false, nil
	}

	return creds, true, nil
}

func (s *FileStore) Save(pair models.TokenPair) error {
	creds := models.Credentials{
		Access:    pair.Access,
		Refresh:   pair.Refresh,
		ExpiresAt: s.now().Add(TTL),
	}

	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("creating credential dir: %w", err)
	}

	// Write both tokens in one atomic rename
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing credential file: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("replacing credential file: %w", err)
	}

	return nil
}

func (s *FileStore) Clear() error {
	err := os.Remove(s.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing credential file: %w", err)
	}
	return nil
}

package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrSessionExpired is returned by LoadSession for a saved session past its
// expiry.
var ErrSessionExpired = errors.New("saved session has expired")

// SaveSession writes s to path, readable by the owner only.
func SaveSession(path string, s *Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadSession reads a session saved by SaveSession. A missing file yields an
// error matching fs.ErrNotExist.
func LoadSession(path string, now time.Time) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", path, err)
	}
	if s.Token == "" {
		return nil, fmt.Errorf("session %s has no token", path)
	}
	if !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt) {
		return nil, ErrSessionExpired
	}
	return &s, nil
}

// RemoveSession deletes a saved session. A missing file is not an error.
func RemoveSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

// Package session persists the drawing client's login between runs as a
// small JSON file under the user config directory.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	appDirName  = "superfun-draw"
	sessionFile = "session.json"
)

// Session is what survives a client restart. Tokens is the balance as of the
// last server contact; the server stays authoritative.
type Session struct {
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	Tokens    int64     `json:"tokens"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cache reads and writes the session file. A zero Dir resolves to the
// platform user config directory.
type Cache struct {
	Dir string
}

func (c *Cache) path() (string, error) {
	dir := c.Dir
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("resolving config dir: %w", err)
		}
		dir = filepath.Join(base, appDirName)
	}
	return filepath.Join(dir, sessionFile), nil
}

// Load returns the saved session, or nil when none exists.
func (c *Cache) Load() (*Session, error) {
	path, err := c.path()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("corrupt session file %s: %w", path, err)
	}
	return &s, nil
}

func (c *Cache) Save(s *Session) error {
	path, err := c.path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	s.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	// session token is a credential, keep the file private
	return os.WriteFile(path, data, 0o600)
}

// Clear removes the saved session. Clearing an absent session is not an
// error.
func (c *Cache) Clear() error {
	path, err := c.path()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

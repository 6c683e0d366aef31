// Package auth stores the remote backend credential handed in by the
// external authorization flow, and guards the host API with an access key.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const credentialFileName = "credential.json"

// Credential is the stored backend token.
type Credential struct {
	Token     string    `json:"token"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store holds a single opaque credential, persisted in the config
// directory. The file is watched so an external authorization flow can drop
// a new token in place.
type Store struct {
	mu        sync.RWMutex
	configDir string
	cred      *Credential
	watcher   *fsnotify.Watcher
	onChange  []func(present bool)
}

// NewStore creates a credential store in the given config directory.
func NewStore(configDir string) (*Store, error) {
	s := &Store{configDir: configDir}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("auth: create config dir: %w", err)
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("auth: could not create fsnotify watcher", "err", err)
		return s, nil
	}
	s.watcher = watcher

	if err := watcher.Add(configDir); err != nil {
		slog.Warn("auth: could not watch config dir", "err", err)
	}

	go s.watchLoop(s.path())
	return s, nil
}

func (s *Store) path() string {
	return filepath.Join(s.configDir, credentialFileName)
}

// Token returns the stored token.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil || s.cred.Token == "" {
		return "", false
	}
	return s.cred.Token, true
}

// UpdatedAt returns when the token was stored, or the zero time.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return time.Time{}
	}
	return s.cred.UpdatedAt
}

// OnChange registers fn to run whenever the token changes: stored,
// replaced with a different value or removed. present reports whether a
// token is stored afterwards.
func (s *Store) OnChange(fn func(present bool)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Set stores token. It is called only after a successful authorization.
func (s *Store) Set(token string) error {
	if token == "" {
		return errors.New("auth: empty token")
	}
	cred := &Credential{Token: token, UpdatedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("auth: write credential: %w", err)
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		return fmt.Errorf("auth: write credential: %w", err)
	}
	slog.Info("auth: credential stored")
	s.replace(cred)
	return nil
}

// Clear removes the stored token.
func (s *Store) Clear() error {
	if err := os.Remove(s.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("auth: remove credential: %w", err)
	}
	slog.Info("auth: credential cleared")
	s.replace(nil)
	return nil
}

// Reload re-reads the credential file. A missing file clears the token.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.replace(nil)
			return nil
		}
		return err
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return fmt.Errorf("auth: parse %s: %w", s.path(), err)
	}
	s.replace(&cred)
	slog.Debug("auth: reloaded credential", "present", cred.Token != "")
	return nil
}

// replace swaps the credential and notifies if the token changed.
func (s *Store) replace(cred *Credential) {
	s.mu.Lock()
	old := tokenOf(s.cred)
	s.cred = cred
	next := tokenOf(cred)
	fns := append([]func(bool){}, s.onChange...)
	s.mu.Unlock()

	if old == next {
		return
	}
	for _, fn := range fns {
		fn(next != "")
	}
}

func tokenOf(cred *Credential) string {
	if cred == nil {
		return ""
	}
	return cred.Token
}

// Close stops the file watcher.
func (s *Store) Close() {
	if s.watcher != nil {
		s.watcher.Close()
	}
}

func (s *Store) watchLoop(credPath string) {
	if s.watcher == nil {
		return
	}
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Name != credPath {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if err := s.Reload(); err != nil {
					slog.Warn("auth: failed to reload credential", "err", err)
				}
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("auth: watcher error", "err", err)
		}
	}
}

package file

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
)

const sessionExt = ".json"

// Store implements ports.SessionStore using the local filesystem.
// It stores sessions as JSON files in a configured directory, one file per
// user. Compare-and-set is serialized within the process only, so a
// directory must not be shared by several running engines.
type Store struct {
	BasePath string

	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTTL expires sessions idle for longer than ttl.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithClock overrides the clock used for expiry.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a new Store with the given base path.
// If basePath is empty, it defaults to ".astrobot/sessions".
func NewStore(basePath string, opts ...StoreOption) *Store {
	if basePath == "" {
		basePath = filepath.Join(".astrobot", "sessions")
	}
	s := &Store{BasePath: basePath, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// User ids carry characters such as ':' and '+' that are not portable in
// file names.
func (s *Store) path(userID string) string {
	return filepath.Join(s.BasePath, base64.RawURLEncoding.EncodeToString([]byte(userID))+sessionExt)
}

// Get retrieves the session from its JSON file.
func (s *Store) Get(ctx context.Context, userID string) (*domain.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID cannot be empty")
	}
	return s.read(userID)
}

func (s *Store) read(userID string) (*domain.Session, error) {
	data, err := os.ReadFile(s.path(userID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if s.expired(&sess) {
		return nil, domain.ErrSessionNotFound
	}
	return &sess, nil
}

func (s *Store) expired(sess *domain.Session) bool {
	return s.ttl > 0 && s.now().Sub(sess.LastActivityAt) > s.ttl
}

// CompareAndSet writes next if the stored version equals expected. An absent
// or expired session has version 0.
func (s *Store) CompareAndSet(ctx context.Context, userID string, expected int64, next *domain.Session) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("userID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	existing, err := s.read(userID)
	switch {
	case err == nil:
		current = existing.Version
	case !errors.Is(err, domain.ErrSessionNotFound):
		return false, err
	}
	if current != expected {
		return false, nil
	}

	next.Version = expected + 1
	if err := s.write(userID, next); err != nil {
		next.Version = expected
		return false, err
	}
	return true, nil
}

// write persists the session atomically: it writes to a temporary file in
// the same directory, syncs it and renames it over the destination.
func (s *Store) write(userID string, sess *domain.Session) error {
	if err := os.MkdirAll(s.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure session directory: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-*"+sessionExt+".partial")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path(userID)); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Delete removes the session file.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("userID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(userID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// List returns the ids of live sessions, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	ids := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, sessionExt) {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, sessionExt))
		if err != nil {
			continue
		}
		if _, err := s.read(string(raw)); err != nil {
			continue
		}
		ids = append(ids, string(raw))
	}
	sort.Strings(ids)
	return ids, nil
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ErrNotFound is returned when a session id has no record.
var ErrNotFound = errors.New("session not found")

// idPattern constrains ids used as storage keys (and snapshot filenames).
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// ValidateID rejects ids that cannot serve as storage keys.
func ValidateID(id string) error {
	if id == "" {
		return errors.New("session id cannot be empty")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid session id %q (must be alphanumeric, hyphen, underscore, max 128 chars)", id)
	}
	return nil
}

// Store persists sessions. Reads and writes are linearizable per session:
// callers serialize a read-modify-write cycle by holding the session lock
// returned from Lock for its duration.
type Store interface {
	// Get returns a deep copy of the session, or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Save persists a deep copy of the session.
	Save(ctx context.Context, s *Session) error

	// List returns copies of all sessions, ordered by id.
	List(ctx context.Context) ([]*Session, error)

	// Delete removes a session. Deleting an unknown id is a no-op: the
	// core never deletes, so this exists for operational cleanup only.
	Delete(ctx context.Context, id string) error

	// Lock serializes transitions for one session id. The returned
	// function releases the lock.
	Lock(id string) (unlock func())

	// Close releases store resources.
	Close() error
}

// keyedLocks hands out one mutex per session id.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedLocks) acquire(id string) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// MemoryStore is the default in-process store. Sessions survive for the
// life of the process only.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	locks    *keyedLocks
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		locks:    newKeyedLocks(),
	}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errors.New("store is closed")
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.Clone()
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	if err := ValidateID(s.ID); err != nil {
		return err
	}
	cp, err := s.Clone()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("store is closed")
	}
	m.sessions[s.ID] = cp
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errors.New("store is closed")
	}
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		cp, err := s.Clone()
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("store is closed")
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) Lock(id string) func() {
	return m.locks.acquire(id)
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SnapshotStore keeps sessions in memory and mirrors every save to a JSON
// file per session under dir, written atomically (temp file + rename).
// Existing snapshots are loaded at open, so sessions survive restarts.
type SnapshotStore struct {
	dir    string
	logger *zap.Logger
	mem    *MemoryStore
}

// NewSnapshotStore opens (creating if needed) the snapshot directory and
// loads existing session files.
func NewSnapshotStore(dir string, logger *zap.Logger) (*SnapshotStore, error) {
	if dir == "" {
		return nil, errors.New("snapshot directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create snapshot directory %s: %w", dir, err)
	}

	s := &SnapshotStore{
		dir:    dir,
		logger: logger,
		mem:    NewMemoryStore(),
	}
	if err := s.loadAll(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SnapshotStore) loadAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read snapshot directory %s: %w", s.dir, err)
	}
	loaded := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return fmt.Errorf("read snapshot %s: %w", e.Name(), err)
		}
		var sess Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			// A corrupt snapshot must not take the whole store down;
			// the affected session is reported and skipped.
			s.logger.Warn("skipping corrupt session snapshot",
				zap.String("file", e.Name()),
				zap.Error(err))
			continue
		}
		if err := s.mem.Save(context.Background(), &sess); err != nil {
			return err
		}
		loaded++
	}
	if loaded > 0 {
		s.logger.Info("loaded session snapshots",
			zap.String("dir", s.dir),
			zap.Int("count", loaded))
	}
	return nil
}

func (s *SnapshotStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *SnapshotStore) Get(ctx context.Context, id string) (*Session, error) {
	return s.mem.Get(ctx, id)
}

func (s *SnapshotStore) Save(ctx context.Context, sess *Session) error {
	if err := ValidateID(sess.ID); err != nil {
		return err
	}
	if err := s.mem.Save(ctx, sess); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sess.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, sess.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot for %s: %w", sess.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot for %s: %w", sess.ID, err)
	}
	if err := os.Rename(tmpName, s.path(sess.ID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit snapshot for %s: %w", sess.ID, err)
	}
	return nil
}

func (s *SnapshotStore) List(ctx context.Context) ([]*Session, error) {
	return s.mem.List(ctx)
}

func (s *SnapshotStore) Delete(ctx context.Context, id string) error {
	if err := s.mem.Delete(ctx, id); err != nil {
		return err
	}
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove snapshot for %s: %w", id, err)
	}
	return nil
}

func (s *SnapshotStore) Lock(id string) func() {
	return s.mem.Lock(id)
}

func (s *SnapshotStore) Close() error {
	return s.mem.Close()
}

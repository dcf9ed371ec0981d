package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vk/pkgchain/internal/ctxlog"
)

var (
	// ErrNotFound indicates an operation on a session that does not exist.
	ErrNotFound = errors.New("session not found")
)

// MalformedError indicates a session file that exists but cannot be parsed.
type MalformedError struct {
	Path string
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed session file %s: %v", e.Path, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Store reads and writes session documents in a state directory.
type Store struct {
	dir string
}

// DefaultDir resolves the per-user session state directory.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, "pkgchain", "state"), nil
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the state directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Create initializes and persists a fresh session for the config name,
// replacing any previous session document of the same name.
func (s *Store) Create(ctx context.Context, name string) (*Session, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	sess := newSession(name, time.Now())
	if err := s.writeAtomic(name, sess); err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Session created.", "config", name, "sessionId", sess.SessionID)
	return sess, nil
}

// Read returns the session for name, or nil if no session file exists.
func (s *Store) Read(_ context.Context, name string) (*Session, error) {
	raw, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session %s: %w", name, err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, &MalformedError{Path: s.path(name), Err: err}
	}
	return &sess, nil
}

// Patch is a partial session update. Nil fields are left untouched; a
// non-nil Processes slice replaces the stored array wholesale.
type Patch struct {
	EndedAt   *time.Time
	Processes []ProcessRecord
}

// Update merges a patch over the stored session and stamps LastUpdated.
// Fails if the session does not exist.
func (s *Store) Update(ctx context.Context, name string, patch Patch) (*Session, error) {
	sess, err := s.require(ctx, name)
	if err != nil {
		return nil, err
	}
	if patch.EndedAt != nil {
		sess.EndedAt = patch.EndedAt
	}
	if patch.Processes != nil {
		sess.Processes = patch.Processes
	}
	sess.LastUpdated = time.Now()
	if err := s.writeAtomic(name, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// AddProcess appends one process record to the session.
func (s *Store) AddProcess(ctx context.Context, name string, rec ProcessRecord) error {
	sess, err := s.require(ctx, name)
	if err != nil {
		return err
	}
	sess.Processes = append(sess.Processes, rec)
	sess.LastUpdated = time.Now()
	if err := s.writeAtomic(name, sess); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Debug("Process recorded in session.", "config", name, "pid", rec.PID)
	return nil
}

// UpdateProcess mutates the first record matching pid whose status is still
// running, via the provided function.
func (s *Store) UpdateProcess(ctx context.Context, name string, pid int, mutate func(*ProcessRecord)) error {
	sess, err := s.require(ctx, name)
	if err != nil {
		return err
	}
	for i := range sess.Processes {
		if sess.Processes[i].PID == pid && sess.Processes[i].Status == StatusRunning {
			mutate(&sess.Processes[i])
			break
		}
	}
	sess.LastUpdated = time.Now()
	return s.writeAtomic(name, sess)
}

// End stamps the session's end time.
func (s *Store) End(ctx context.Context, name string) error {
	now := time.Now()
	_, err := s.Update(ctx, name, Patch{EndedAt: &now})
	return err
}

// Delete removes the session file, reporting whether it existed.
func (s *Store) Delete(_ context.Context, name string) (bool, error) {
	err := os.Remove(s.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("delete session %s: %w", name, err)
	}
	return true, nil
}

// List enumerates every readable session in the state directory.
// Best-effort: unreadable or corrupt files are skipped.
func (s *Store) List(ctx context.Context) ([]Session, error) {
	logger := ctxlog.FromContext(ctx)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list state directory: %w", err)
	}

	var sessions []Session
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		sess, err := s.Read(ctx, name)
		if err != nil || sess == nil {
			logger.Warn("Skipping unreadable session file.", "file", entry.Name(), "error", err)
			continue
		}
		sessions = append(sessions, *sess)
	}
	return sessions, nil
}

// require loads an existing session or fails with ErrNotFound.
func (s *Store) require(ctx context.Context, name string) (*Session, error) {
	sess, err := s.Read(ctx, name)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return sess, nil
}

// writeAtomic persists the document via temp file + rename so a concurrent
// reader never observes a torn write.
func (s *Store) writeAtomic(name string, sess *Session) error {
	raw, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", name, err)
	}
	raw = append(raw, '\n')

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

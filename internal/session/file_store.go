package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"medscan-backend/internal/core/utils"
	"medscan-backend/pkg/api"
)

// FileStore keeps one <user>_session.json file per user. Appends are
// read-modify-write under a per-user lock, and the rewrite goes through a
// temp file plus rename so a concurrent reader never sees a torn log.
type FileStore struct {
	dir   string
	locks *utils.MutexMap
}

var _ Store = &FileStore{}

func NewFileStore(dir string) (*FileStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}

	if err := os.MkdirAll(abs, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create session directory %s: %w", abs, err)
	}

	return &FileStore{dir: abs, locks: utils.NewMutexMap()}, nil
}

func (s *FileStore) path(userID string) string {
	return filepath.Join(s.dir, userID+"_session.json")
}

func (s *FileStore) Append(ctx context.Context, userID string, entry api.SessionEntry) error {
	s.locks.Lock(userID)
	defer s.locks.Unlock(userID)

	var entries []api.SessionEntry

	data, err := os.ReadFile(s.path(userID))
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &entries); err != nil {
			// An unreadable log is not fatal: start fresh rather than wedging
			// the user's history forever.
			slog.Warn("session log unparseable, starting fresh", "user_id", userID, "error", err)
			entries = nil
		}
	case os.IsNotExist(err):
		// first entry for this user
	default:
		return fmt.Errorf("failed to read session log for user %s: %w", userID, err)
	}

	entries = append(entries, entry)

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session log for user %s: %w", userID, err)
	}

	tmp, err := os.CreateTemp(s.dir, userID+"_session_*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp session file for user %s: %w", userID, err)
	}

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write session log for user %s: %w", userID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp session file for user %s: %w", userID, err)
	}

	if err := os.Rename(tmp.Name(), s.path(userID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace session log for user %s: %w", userID, err)
	}

	return nil
}

func (s *FileStore) Read(ctx context.Context, userID string) ([]api.SessionEntry, error) {
	data, err := os.ReadFile(s.path(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return []api.SessionEntry{}, nil
		}
		return nil, fmt.Errorf("failed to read session log for user %s: %w", userID, err)
	}

	var entries []api.SessionEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse session log for user %s: %w", userID, err)
	}
	return entries, nil
}

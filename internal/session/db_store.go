package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"medscan-backend/internal/core/utils"
	"medscan-backend/internal/database"
	"medscan-backend/pkg/api"

	"gorm.io/gorm"
)

// DBStore keeps one SessionLog row per user with the entries as a JSON
// column. The per-user lock serializes the read-modify-write; the row update
// itself is atomic, so readers observe complete log states only.
type DBStore struct {
	db    *gorm.DB
	locks *utils.MutexMap
}

var _ Store = &DBStore{}

func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db, locks: utils.NewMutexMap()}
}

func (s *DBStore) Append(ctx context.Context, userID string, entry api.SessionEntry) error {
	s.locks.Lock(userID)
	defer s.locks.Unlock(userID)

	var entries []api.SessionEntry

	var record database.SessionLog
	err := s.db.WithContext(ctx).First(&record, "user_id = ?", userID).Error
	switch {
	case err == nil:
		if err := json.Unmarshal(record.Entries, &entries); err != nil {
			slog.Warn("session log unparseable, starting fresh", "user_id", userID, "error", err)
			entries = nil
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// first entry for this user
	default:
		return fmt.Errorf("failed to read session log for user %s: %w", userID, err)
	}

	entries = append(entries, entry)

	out, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode session log for user %s: %w", userID, err)
	}

	record.UserID = userID
	record.Entries = out
	if err := s.db.WithContext(ctx).Save(&record).Error; err != nil {
		return fmt.Errorf("failed to write session log for user %s: %w", userID, err)
	}

	return nil
}

func (s *DBStore) Read(ctx context.Context, userID string) ([]api.SessionEntry, error) {
	var record database.SessionLog
	err := s.db.WithContext(ctx).First(&record, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []api.SessionEntry{}, nil
		}
		return nil, fmt.Errorf("failed to read session log for user %s: %w", userID, err)
	}

	var entries []api.SessionEntry
	if err := json.Unmarshal(record.Entries, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse session log for user %s: %w", userID, err)
	}
	return entries, nil
}

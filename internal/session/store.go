package session

import (
	"context"

	"medscan-backend/pkg/api"
)

// Store is the durable per-user prediction history. Appends for the same user
// are serialized by the implementation; different users never contend.
type Store interface {
	// Append adds an entry to the end of the user's log. An existing log that
	// cannot be parsed is treated as empty rather than failing the append.
	Append(ctx context.Context, userID string, entry api.SessionEntry) error

	// Read returns the user's full log in insertion order, oldest first. A
	// user with no prior activity yields an empty slice, not an error.
	Read(ctx context.Context, userID string) ([]api.SessionEntry, error)
}

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidUpload marks uploads rejected before anything is written, such as
// empty payloads.
var ErrInvalidUpload = errors.New("invalid upload")

// UploadRecord describes a single stored image. Records are immutable once
// written; retention and cleanup of stored images is out of scope here.
type UploadRecord struct {
	UserID         string
	OriginalExt    string
	StoredFilename string
	Key            string
	CreatedAt      time.Time
}

var extensionPattern = regexp.MustCompile(`^\.[A-Za-z0-9]+$`)

// UploadStore owns the per-user layout of uploaded images inside a single
// bucket: one partition per user, objects keyed <user>/<stored filename>.
type UploadStore struct {
	provider Provider
	bucket   string
}

func NewUploadStore(provider Provider, bucket string) *UploadStore {
	return &UploadStore{provider: provider, bucket: bucket}
}

// ensureBucket creates the shared uploads bucket when it does not exist yet.
// Safe to call concurrently: creation tolerates "already exists". Per-user
// partitions have no existence of their own; they materialize with the first
// object written under their prefix.
func (s *UploadStore) ensureBucket(ctx context.Context) error {
	if err := s.provider.CreateBucket(ctx, s.bucket); err != nil {
		return fmt.Errorf("failed to ensure upload bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Ingest persists an uploaded image under the user's partition and returns
// the record for it. The original filename is only trusted for its extension;
// the stored name combines a timestamp with a random suffix so that
// concurrent uploads within the same second cannot collide.
func (s *UploadStore) Ingest(ctx context.Context, userID string, data []byte, originalFilename string) (UploadRecord, error) {
	if len(data) == 0 {
		return UploadRecord{}, fmt.Errorf("%w: empty upload", ErrInvalidUpload)
	}

	if err := s.ensureBucket(ctx); err != nil {
		return UploadRecord{}, err
	}

	ext := sanitizeExtension(originalFilename)
	now := time.Now()
	stored := fmt.Sprintf("%s_%s%s", now.Format("20060102_150405"), uuid.NewString()[:8], ext)
	key := path.Join(userID, stored)

	if err := s.provider.PutObject(ctx, s.bucket, key, bytes.NewReader(data)); err != nil {
		return UploadRecord{}, fmt.Errorf("failed to store upload for user %s: %w", userID, err)
	}

	return UploadRecord{
		UserID:         userID,
		OriginalExt:    ext,
		StoredFilename: stored,
		Key:            key,
		CreatedAt:      now,
	}, nil
}

// Fetch returns the bytes of a previously stored image. It fails with
// ErrObjectNotFound when the reference does not resolve.
func (s *UploadStore) Fetch(ctx context.Context, userID, filename string) ([]byte, error) {
	if !safePathSegment(userID) || !safePathSegment(filename) {
		return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, userID, filename)
	}
	return s.provider.GetObject(ctx, s.bucket, path.Join(userID, filename))
}

// List returns the stored filenames for a user, used by tests and tooling.
func (s *UploadStore) List(ctx context.Context, userID string) ([]string, error) {
	objects, err := s.provider.ListObjects(ctx, s.bucket, userID+"/")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(objects))
	for _, obj := range objects {
		names = append(names, path.Base(obj.Name))
	}
	return names, nil
}

// FindOwner locates the partition holding a stored filename. Stored names
// embed a random suffix, so collisions across users are negligible. This
// scans the whole bucket and exists only for the legacy image route; callers
// that know the user should fetch by the per-user path instead.
func (s *UploadStore) FindOwner(ctx context.Context, filename string) (string, error) {
	if !safePathSegment(filename) {
		return "", fmt.Errorf("%w: %s", ErrObjectNotFound, filename)
	}

	objects, err := s.provider.ListObjects(ctx, s.bucket, "")
	if err != nil {
		return "", err
	}
	for _, obj := range objects {
		if path.Base(obj.Name) == filename {
			return path.Dir(obj.Name), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrObjectNotFound, filename)
}

// sanitizeExtension extracts the extension from a client-supplied filename,
// discarding any path components. Anything that is not a plain alphanumeric
// extension is dropped rather than stored.
func sanitizeExtension(filename string) string {
	ext := filepath.Ext(filepath.Base(filepath.ToSlash(filename)))
	if !extensionPattern.MatchString(ext) {
		return ""
	}
	return ext
}

// safePathSegment rejects values that could escape a partition when joined
// into an object key.
func safePathSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !bytes.ContainsAny([]byte(s), "/\\")
}

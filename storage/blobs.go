package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no stored record or blob matches an identifier.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidID is returned for identifiers that could escape the store directory.
	ErrInvalidID = errors.New("storage: invalid identifier")
)

// NewPostID returns a 9 character identifier derived from a random UUID.
func NewPostID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}

// NewAttachmentID returns an 8 character attachment identifier.
func NewAttachmentID() string {
	return uuid.NewString()[:8]
}

// NewImageID returns a 12 character image identifier.
func NewImageID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// BlobStore keeps uploaded bytes as <id><ext> files in one directory.
type BlobStore struct {
	dir string
}

// NewBlobStore creates dir when missing.
func NewBlobStore(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir %s: %w", dir, err)
	}
	return &BlobStore{dir: dir}, nil
}

// Dir returns the directory backing the store.
func (b *BlobStore) Dir() string {
	return b.dir
}

// Store writes r to <id><ext> and returns the stored path and byte count.
func (b *BlobStore) Store(r io.Reader, id, ext string) (string, int64, error) {
	if !safeID(id) {
		return "", 0, ErrInvalidID
	}
	if strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	path := filepath.Join(b.dir, id+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create blob %s: %w", id, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write blob %s: %w", id, err)
	}
	return path, n, nil
}

// Resolve returns the first stored file whose name starts with idPrefix.
// Identifiers in a prefix relationship ("abc", "abc1") can resolve to the wrong file.
func (b *BlobStore) Resolve(idPrefix string) (string, error) {
	if !safeID(idPrefix) {
		return "", ErrNotFound
	}
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return "", fmt.Errorf("read blob dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), idPrefix) {
			return filepath.Join(b.dir, e.Name()), nil
		}
	}
	return "", ErrNotFound
}

func safeID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}

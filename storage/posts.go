package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/lipolab/postboard/models"
	"github.com/lipolab/postboard/utils"
)

const postExt = ".json"

// PostRepository persists one pretty-printed JSON document per post.
type PostRepository struct {
	dir    string
	locks  *utils.KeyedMutex
	logger *zap.Logger
}

// NewPostRepository creates dir when missing.
func NewPostRepository(dir string, logger *zap.Logger) (*PostRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create posts dir %s: %w", dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostRepository{dir: dir, locks: utils.NewKeyedMutex(), logger: logger}, nil
}

func (r *PostRepository) path(id string) string {
	return filepath.Join(r.dir, id+postExt)
}

// Save overwrites the record for post.ID. Non-ASCII text is written literally.
func (r *PostRepository) Save(post *models.Post) error {
	if !safeID(post.ID) {
		return ErrInvalidID
	}
	post.Normalize()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(post); err != nil {
		return fmt.Errorf("encode post %s: %w", post.ID, err)
	}
	if err := os.WriteFile(r.path(post.ID), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write post %s: %w", post.ID, err)
	}
	return nil
}

// Load reads a post by identifier.
func (r *PostRepository) Load(id string) (*models.Post, error) {
	if !safeID(id) {
		return nil, ErrInvalidID
	}
	b, err := os.ReadFile(r.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read post %s: %w", id, err)
	}
	var post models.Post
	if err := json.Unmarshal(b, &post); err != nil {
		return nil, fmt.Errorf("decode post %s: %w", id, err)
	}
	return &post, nil
}

// ListAll returns every readable post, newest postDate first.
// Records that fail to load are reported and skipped.
func (r *PostRepository) ListAll() ([]models.Post, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read posts dir: %w", err)
	}
	posts := make([]models.Post, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, postExt) {
			continue
		}
		post, err := r.Load(strings.TrimSuffix(name, postExt))
		if err != nil {
			utils.ReportFailure(r.logger, utils.FailurePartialItem, "skip unreadable post", zap.String("file", name), zap.Error(err))
			continue
		}
		posts = append(posts, *post)
	}
	// YYYY-MM-DD sorts lexicographically.
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].PostDate > posts[j].PostDate
	})
	return posts, nil
}

// IncrementViews adds one view and persists the record.
// Increments for the same post are serialized.
func (r *PostRepository) IncrementViews(id string) (*models.Post, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	post, err := r.Load(id)
	if err != nil {
		return nil, err
	}
	post.Views++
	if err := r.Save(post); err != nil {
		return nil, err
	}
	return post, nil
}

// FindAttachment returns the attachment metadata recorded for attachmentID, if any post has it.
func (r *PostRepository) FindAttachment(attachmentID string) (*models.Attachment, error) {
	posts, err := r.ListAll()
	if err != nil {
		return nil, err
	}
	for _, p := range posts {
		for i := range p.Attachments {
			if p.Attachments[i].ID == attachmentID {
				a := p.Attachments[i]
				return &a, nil
			}
		}
	}
	return nil, ErrNotFound
}

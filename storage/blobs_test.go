package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBlobStoreStoreAndResolve(t *testing.T) {
	store, err := NewBlobStore(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("NewBlobStore: %v", err)
	}
	path, n, err := store.Store(strings.NewReader("hello"), "ab12cd34", ".txt")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if n != 5 {
		t.Fatalf("size = %d, want 5", n)
	}
	if filepath.Base(path) != "ab12cd34.txt" {
		t.Fatalf("stored name = %s", filepath.Base(path))
	}

	got, err := store.Resolve("ab12cd34")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != path {
		t.Fatalf("Resolve = %s, want %s", got, path)
	}
	b, _ := os.ReadFile(got)
	if string(b) != "hello" {
		t.Fatalf("content = %q", b)
	}
}

func TestBlobStoreResolveMissing(t *testing.T) {
	store, err := NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlobStore: %v", err)
	}
	for _, id := range []string{"nothere", "", "../etc", "a/b"} {
		if _, err := store.Resolve(id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Resolve(%q) err = %v, want ErrNotFound", id, err)
		}
	}
}

func TestBlobStoreRejectsUnsafeNames(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewBlobStore(dir)
	if _, _, err := store.Store(strings.NewReader("x"), "../evil", ".txt"); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("err = %v, want ErrInvalidID", err)
	}
	path, _, err := store.Store(strings.NewReader("x"), "safe1234", "/../../x")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if filepath.Dir(path) != dir || filepath.Base(path) != "safe1234" {
		t.Fatalf("path = %s", path)
	}
}

func TestGeneratedIDs(t *testing.T) {
	if id := NewPostID(); len(id) != 9 || strings.Contains(id, "-") {
		t.Errorf("post id %q", id)
	}
	if id := NewAttachmentID(); len(id) != 8 || strings.Contains(id, "-") {
		t.Errorf("attachment id %q", id)
	}
	if id := NewImageID(); len(id) != 12 || strings.Contains(id, "-") {
		t.Errorf("image id %q", id)
	}
	if NewPostID() == NewPostID() {
		t.Error("post ids repeat")
	}
}

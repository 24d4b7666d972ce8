package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/lipolab/postboard/models"
)

func newRepo(t *testing.T) *PostRepository {
	t.Helper()
	repo, err := NewPostRepository(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewPostRepository: %v", err)
	}
	return repo
}

func TestPostRoundTrip(t *testing.T) {
	repo := newRepo(t)
	end := "2024-05-01"
	in := &models.Post{
		ID:         "abc123def",
		Title:      "공지사항 <중요>",
		Department: "HR",
		Author:     "kim",
		PostDate:   "2024-04-01",
		EndDate:    &end,
		Category:   "notice",
		Badges:     []string{"new"},
		Content:    "<p>본문</p>",
		Attachments: []models.Attachment{{
			ID: "a1b2c3d4", Name: "report.pdf", Size: "2KB",
			DownloadURL: "/api/attachments/a1b2c3d4/download", OriginalFilename: "보고서.pdf",
		}},
		UploadedImages: []models.UploadedImage{},
	}
	if err := repo.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, _ := os.ReadFile(filepath.Join(repo.dir, "abc123def.json"))
	if !strings.Contains(string(raw), "공지사항 <중요>") {
		t.Fatalf("non-ASCII or markup escaped on disk: %s", raw)
	}
	if !strings.Contains(string(raw), "\n  \"title\"") {
		t.Fatalf("record not indented: %s", raw)
	}

	out, err := repo.Load("abc123def")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch\n in: %+v\nout: %+v", in, out)
	}
}

func TestLoadLegacyRecord(t *testing.T) {
	repo := newRepo(t)
	legacy := `{"id":"old000001","title":"t","department":"d","author":"a","views":3,
"postDate":"2023-01-01","endDate":null,"category":"c","badges":[],"content":"x",
"attachments":[{"id":"f1","name":"n.txt","size":"1B","downloadUrl":"/api/attachments/f1/download","original_filename":"원본.txt"}]}`
	if err := os.WriteFile(filepath.Join(repo.dir, "old000001.json"), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	post, err := repo.Load("old000001")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if post.UploadedImages == nil || len(post.UploadedImages) != 0 {
		t.Fatalf("uploadedImages = %#v, want empty slice", post.UploadedImages)
	}
	if post.Attachments[0].OriginalFilename != "원본.txt" {
		t.Fatalf("original filename = %q", post.Attachments[0].OriginalFilename)
	}
	if post.EndDate != nil {
		t.Fatalf("endDate = %v", *post.EndDate)
	}
}

func TestLoadMissing(t *testing.T) {
	repo := newRepo(t)
	if _, err := repo.Load("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := repo.Load("../x"); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("err = %v, want ErrInvalidID", err)
	}
}

func TestListAllOrdersByDateDesc(t *testing.T) {
	repo := newRepo(t)
	for i, d := range []string{"2024-01-01", "2024-03-15", "2024-02-10"} {
		p := &models.Post{ID: "post" + string(rune('a'+i)), PostDate: d}
		if err := repo.Save(p); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	// Unrelated and broken files are ignored.
	_ = os.WriteFile(filepath.Join(repo.dir, "notes.txt"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(repo.dir, "broken.json"), []byte("{"), 0o644)

	posts, err := repo.ListAll()
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	var dates []string
	for _, p := range posts {
		dates = append(dates, p.PostDate)
	}
	want := []string{"2024-03-15", "2024-02-10", "2024-01-01"}
	if !reflect.DeepEqual(dates, want) {
		t.Fatalf("dates = %v, want %v", dates, want)
	}
}

func TestIncrementViews(t *testing.T) {
	repo := newRepo(t)
	if err := repo.Save(&models.Post{ID: "viewed001", PostDate: "2024-01-01"}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := repo.IncrementViews("viewed001"); err != nil {
			t.Fatalf("IncrementViews: %v", err)
		}
	}
	post, err := repo.Load("viewed001")
	if err != nil {
		t.Fatal(err)
	}
	if post.Views != 2 {
		t.Fatalf("views = %d, want 2", post.Views)
	}
	if _, err := repo.IncrementViews("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestIncrementViewsConcurrent(t *testing.T) {
	repo := newRepo(t)
	if err := repo.Save(&models.Post{ID: "busy00001"}); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.IncrementViews("busy00001")
		}()
	}
	wg.Wait()
	post, _ := repo.Load("busy00001")
	if post.Views != 20 {
		t.Fatalf("views = %d, want 20", post.Views)
	}
}

func TestFindAttachment(t *testing.T) {
	repo := newRepo(t)
	_ = repo.Save(&models.Post{ID: "withfile1", Attachments: []models.Attachment{{ID: "f00d0001", Name: "a.txt", OriginalFilename: "가.txt"}}})
	a, err := repo.FindAttachment("f00d0001")
	if err != nil {
		t.Fatalf("FindAttachment: %v", err)
	}
	if a.OriginalFilename != "가.txt" {
		t.Fatalf("original = %q", a.OriginalFilename)
	}
	if _, err := repo.FindAttachment("zzz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

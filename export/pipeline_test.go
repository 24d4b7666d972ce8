package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/lipolab/postboard/models"
	"github.com/lipolab/postboard/storage"
)

type countingBlobs struct {
	inner BlobSource
	calls int
}

func (c *countingBlobs) Resolve(id string) (string, error) {
	c.calls++
	return c.inner.Resolve(id)
}

type fixture struct {
	repo    *storage.PostRepository
	uploads *countingBlobs
	images  *countingBlobs
	p       *Pipeline
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	repo, err := storage.NewPostRepository(filepath.Join(root, "posts"), nil)
	if err != nil {
		t.Fatal(err)
	}
	uploads, _ := storage.NewBlobStore(filepath.Join(root, "uploads"))
	images, _ := storage.NewBlobStore(filepath.Join(root, "images"))

	if _, _, err := uploads.Store(strings.NewReader("%PDF-1.4 test"), "att00001", ".pdf"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := images.Store(bytes.NewReader(pngHeader), "img000000001", ".png"); err != nil {
		t.Fatal(err)
	}
	post := &models.Post{
		ID:       "post00001",
		Title:    "Budget",
		PostDate: "2024-03-15",
		Content:  `<div>Hello <b>World</b><script>evil()</script></div>`,
		Attachments: []models.Attachment{
			{ID: "att00001", Name: "report.pdf", Size: "13B", DownloadURL: "/api/attachments/att00001/download", OriginalFilename: "보고서.pdf"},
			{ID: "missing1", Name: "gone.txt", Size: "1B", DownloadURL: "/api/attachments/missing1/download", OriginalFilename: "gone.txt"},
		},
		UploadedImages: []models.UploadedImage{
			{ID: "img000000001", Filename: "pic.png", URL: "/static/images/img000000001.png", OriginalFilename: "pic.png"},
		},
	}
	if err := repo.Save(post); err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		repo:    repo,
		uploads: &countingBlobs{inner: uploads},
		images:  &countingBlobs{inner: images},
	}
	f.p = NewPipeline(repo, f.uploads, f.images, nil)
	f.p.now = func() time.Time { return time.Date(2024, 3, 20, 9, 30, 5, 0, time.UTC) }
	return f
}

func TestBuildNoneSkipsBlobStore(t *testing.T) {
	f := newFixture(t)
	doc, err := f.p.Build(context.Background(), Options{Include: IncludeNone})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if f.uploads.calls != 0 || f.images.calls != 0 {
		t.Fatalf("blob store touched: uploads=%d images=%d", f.uploads.calls, f.images.calls)
	}
	if doc.Count != 1 || doc.IncludeFiles != IncludeNone {
		t.Fatalf("doc = %+v", doc)
	}
	post := doc.Posts[0]
	if post.ContentText != "Hello World" {
		t.Fatalf("contentText = %q", post.ContentText)
	}
	if post.Attachments[0].File != nil || post.UploadedImages[0].File != nil {
		t.Fatal("file entries present with includeFiles=none")
	}
	if !doc.ExportedAt.Equal(time.Date(2024, 3, 20, 9, 30, 5, 0, time.UTC)) {
		t.Fatalf("exportedAt = %v", doc.ExportedAt)
	}
}

func TestBuildMetadataMarksMissingBlobs(t *testing.T) {
	f := newFixture(t)
	doc, err := f.p.Build(context.Background(), Options{Include: IncludeMetadata})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	atts := doc.Posts[0].Attachments
	if !atts[0].File.Resolved || atts[0].File.Bytes != 13 || atts[0].File.MimeType != "application/pdf" {
		t.Fatalf("resolved attachment = %+v", atts[0].File)
	}
	if atts[0].File.ContentBase64 != "" {
		t.Fatal("metadata level must not embed content")
	}
	if atts[1].File.Resolved || atts[1].File.Error == "" {
		t.Fatalf("missing attachment = %+v", atts[1].File)
	}
	img := doc.Posts[0].UploadedImages[0].File
	if !img.Resolved || img.MimeType != "image/png" {
		t.Fatalf("image = %+v", img)
	}
}

func TestBuildFilesEmbedsBase64(t *testing.T) {
	f := newFixture(t)
	doc, err := f.p.Build(context.Background(), Options{Format: FormatJSON, Include: IncludeFiles})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got, err := base64.StdEncoding.DecodeString(doc.Posts[0].Attachments[0].File.ContentBase64)
	if err != nil || string(got) != "%PDF-1.4 test" {
		t.Fatalf("embedded = %q, %v", got, err)
	}
	if doc.Posts[0].Attachments[0].File.ArchivePath != "" {
		t.Fatal("json export must not reference archive paths")
	}
}

func TestBuildAbsolutizesLinks(t *testing.T) {
	f := newFixture(t)
	doc, err := f.p.Build(context.Background(), Options{Include: IncludeNone, BaseURL: "https://posts.example.com/"})
	if err != nil {
		t.Fatal(err)
	}
	if got := doc.Posts[0].Attachments[0].DownloadURL; got != "https://posts.example.com/api/attachments/att00001/download" {
		t.Fatalf("downloadUrl = %s", got)
	}
	if got := doc.Posts[0].UploadedImages[0].URL; got != "https://posts.example.com/static/images/img000000001.png" {
		t.Fatalf("url = %s", got)
	}

	plain, _ := f.p.Build(context.Background(), Options{Include: IncludeNone})
	if got := plain.Posts[0].Attachments[0].DownloadURL; got != "/api/attachments/att00001/download" {
		t.Fatalf("downloadUrl without base = %s", got)
	}
}

func TestAbsolutize(t *testing.T) {
	cases := []struct{ base, link, want string }{
		{"", "/a", "/a"},
		{"http://h", "/a", "http://h/a"},
		{"http://h", "a", "http://h/a"},
		{"http://h", "https://cdn/x", "https://cdn/x"},
		{"http://h", "", ""},
	}
	for _, c := range cases {
		if got := absolutize(c.base, c.link); got != c.want {
			t.Errorf("absolutize(%q, %q) = %q, want %q", c.base, c.link, got, c.want)
		}
	}
}

func TestBuildArchiveWithFiles(t *testing.T) {
	f := newFixture(t)
	arch, err := f.p.BuildArchive(context.Background(), Options{Format: FormatZIP, Include: IncludeFiles})
	if err != nil {
		t.Fatalf("BuildArchive: %v", err)
	}
	defer arch.Cleanup()

	if arch.Name != "posts_export_20240320_093005.zip" {
		t.Fatalf("name = %s", arch.Name)
	}
	zr, err := zip.OpenReader(arch.Path)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer zr.Close()

	var names []string
	var postsDoc []byte
	for _, zf := range zr.File {
		names = append(names, zf.Name)
		if zf.Method != zip.Deflate {
			t.Errorf("%s not deflated", zf.Name)
		}
		if zf.Name == "posts.json" {
			rc, _ := zf.Open()
			postsDoc, _ = io.ReadAll(rc)
			rc.Close()
		}
	}
	sort.Strings(names)
	want := []string{"attachments/att00001_보고서.pdf", "images/img000000001_pic.png", "posts.json"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("entries = %v, want %v", names, want)
	}

	var doc Document
	if err := json.Unmarshal(postsDoc, &doc); err != nil {
		t.Fatalf("decode posts.json: %v", err)
	}
	att := doc.Posts[0].Attachments[0].File
	if att.ArchivePath != "attachments/att00001_보고서.pdf" || att.ContentBase64 != "" {
		t.Fatalf("attachment entry = %+v", att)
	}
	if doc.Posts[0].Attachments[1].File.Resolved {
		t.Fatal("missing blob reported as resolved")
	}
}

func TestBuildArchiveMetadataHasOnlyDocument(t *testing.T) {
	f := newFixture(t)
	arch, err := f.p.BuildArchive(context.Background(), Options{Format: FormatZIP, Include: IncludeMetadata})
	if err != nil {
		t.Fatalf("BuildArchive: %v", err)
	}
	defer arch.Cleanup()
	zr, err := zip.OpenReader(arch.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	if len(zr.File) != 1 || zr.File[0].Name != "posts.json" {
		t.Fatalf("entries = %d", len(zr.File))
	}
}

func TestArchiveCleanupRemovesStaging(t *testing.T) {
	f := newFixture(t)
	arch, err := f.p.BuildArchive(context.Background(), Options{Include: IncludeFiles})
	if err != nil {
		t.Fatal(err)
	}
	root := filepath.Dir(arch.Path)
	if !strings.HasPrefix(filepath.Base(root), StagingPrefix) {
		t.Fatalf("staging dir %s", root)
	}
	if err := arch.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Fatalf("staging dir still present: %v", err)
	}
}

func TestBuildArchiveCancelledCleansUp(t *testing.T) {
	f := newFixture(t)
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.p.BuildArchive(ctx, Options{Include: IncludeFiles}); err == nil {
		t.Fatal("expected error from cancelled context")
	}
	leaked, _ := filepath.Glob(filepath.Join(tmp, StagingPrefix+"*"))
	if len(leaked) != 0 {
		t.Fatalf("staging dirs leaked: %v", leaked)
	}
}

func TestParseOptions(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != FormatJSON {
		t.Fatalf("ParseFormat empty = %s, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatal("xml accepted")
	}
	if inc, err := ParseInclusion(""); err != nil || inc != IncludeMetadata {
		t.Fatalf("ParseInclusion empty = %s, %v", inc, err)
	}
	if inc, _ := ParseInclusion("FILES"); inc != IncludeFiles {
		t.Fatalf("ParseInclusion FILES = %s", inc)
	}
}

func TestObjectKey(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	if got := objectKey("exports/", "a.zip", now); got != "exports/2024/07/a.zip" {
		t.Fatalf("key = %s", got)
	}
	if got := objectKey("", "a.zip", now); got != "2024/07/a.zip" {
		t.Fatalf("key = %s", got)
	}
}

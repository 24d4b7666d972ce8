package export

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/lipolab/postboard/models"
	"github.com/lipolab/postboard/utils"
)

// Format selects the export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatZIP  Format = "zip"
)

// Inclusion selects how much of each stored file goes into an export.
type Inclusion string

const (
	IncludeNone     Inclusion = "none"
	IncludeMetadata Inclusion = "metadata"
	IncludeFiles    Inclusion = "files"
)

// ParseFormat maps a query value to a Format. Empty means json.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatZIP:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ParseInclusion maps a query value to an Inclusion. Empty means metadata.
func ParseInclusion(s string) (Inclusion, error) {
	switch inc := Inclusion(strings.ToLower(strings.TrimSpace(s))); inc {
	case "":
		return IncludeMetadata, nil
	case IncludeNone, IncludeMetadata, IncludeFiles:
		return inc, nil
	}
	return "", fmt.Errorf("unsupported includeFiles value %q", s)
}

// Options controls one export run.
type Options struct {
	Format  Format
	Include Inclusion
	// BaseURL, when set, prefixes every relative link.
	BaseURL string
}

// PostSource lists the posts to export.
type PostSource interface {
	ListAll() ([]models.Post, error)
}

// BlobSource resolves a stored file by identifier.
type BlobSource interface {
	Resolve(id string) (string, error)
}

// Document is the self-describing export payload.
type Document struct {
	ExportedAt   time.Time      `json:"exportedAt"`
	IncludeFiles Inclusion      `json:"includeFiles"`
	Count        int            `json:"count"`
	Posts        []ExportedPost `json:"posts"`
}

// ExportedPost is a post record plus its derived plain text.
type ExportedPost struct {
	ID             string               `json:"id"`
	Title          string               `json:"title"`
	Department     string               `json:"department"`
	Author         string               `json:"author"`
	Views          int                  `json:"views"`
	PostDate       string               `json:"postDate"`
	EndDate        *string              `json:"endDate"`
	Category       string               `json:"category"`
	Badges         []string             `json:"badges"`
	Content        string               `json:"content"`
	ContentText    string               `json:"contentText"`
	Attachments    []ExportedAttachment `json:"attachments"`
	UploadedImages []ExportedImage      `json:"uploadedImages"`
}

type ExportedAttachment struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Size             string     `json:"size"`
	DownloadURL      string     `json:"downloadUrl"`
	OriginalFilename string     `json:"originalFilename,omitempty"`
	File             *FileEntry `json:"file,omitempty"`
}

type ExportedImage struct {
	ID               string     `json:"id"`
	Filename         string     `json:"filename"`
	URL              string     `json:"url"`
	OriginalFilename string     `json:"originalFilename,omitempty"`
	File             *FileEntry `json:"file,omitempty"`
}

// FileEntry describes the stored blob behind an attachment or image.
// Resolved is false when the blob is missing or unreadable.
type FileEntry struct {
	Resolved      bool   `json:"resolved"`
	StoredName    string `json:"storedName,omitempty"`
	MimeType      string `json:"mimeType,omitempty"`
	Bytes         int64  `json:"bytes,omitempty"`
	ContentBase64 string `json:"contentBase64,omitempty"`
	ArchivePath   string `json:"archivePath,omitempty"`
	Error         string `json:"error,omitempty"`
}

// stager copies a resolved blob into the archive tree and returns its archive path.
type stager func(dir, id, name, src string) (string, error)

// Pipeline turns stored posts and blobs into export bundles.
type Pipeline struct {
	posts   PostSource
	uploads BlobSource
	images  BlobSource
	logger  *zap.Logger
	now     func() time.Time
}

// NewPipeline wires the pipeline to its stores.
func NewPipeline(posts PostSource, uploads, images BlobSource, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		posts:   posts,
		uploads: uploads,
		images:  images,
		logger:  logger.Named("Export"),
		now:     time.Now,
	}
}

// Build produces the JSON document. With IncludeFiles the blob bytes are embedded as base64.
func (p *Pipeline) Build(ctx context.Context, opts Options) (*Document, error) {
	return p.document(ctx, opts, p.now(), opts.Include == IncludeFiles, nil)
}

func (p *Pipeline) document(ctx context.Context, opts Options, now time.Time, embed bool, stage stager) (*Document, error) {
	if opts.Include == "" {
		opts.Include = IncludeMetadata
	}
	posts, err := p.posts.ListAll()
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")

	doc := &Document{
		ExportedAt:   now.UTC(),
		IncludeFiles: opts.Include,
		Count:        len(posts),
		Posts:        make([]ExportedPost, 0, len(posts)),
	}
	for i := range posts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc.Posts = append(doc.Posts, p.exportPost(&posts[i], opts.Include, base, embed, stage))
	}
	return doc, nil
}

func (p *Pipeline) exportPost(post *models.Post, inc Inclusion, base string, embed bool, stage stager) ExportedPost {
	post.Normalize()
	out := ExportedPost{
		ID:             post.ID,
		Title:          post.Title,
		Department:     post.Department,
		Author:         post.Author,
		Views:          post.Views,
		PostDate:       post.PostDate,
		EndDate:        post.EndDate,
		Category:       post.Category,
		Badges:         post.Badges,
		Content:        post.Content,
		ContentText:    utils.HTMLToText(post.Content),
		Attachments:    make([]ExportedAttachment, 0, len(post.Attachments)),
		UploadedImages: make([]ExportedImage, 0, len(post.UploadedImages)),
	}
	for _, a := range post.Attachments {
		ea := ExportedAttachment{
			ID:               a.ID,
			Name:             a.Name,
			Size:             a.Size,
			DownloadURL:      absolutize(base, a.DownloadURL),
			OriginalFilename: a.OriginalFilename,
		}
		if inc != IncludeNone {
			ea.File = p.fileEntry(p.uploads, "attachments", a.ID, utils.FirstNonBlank(a.OriginalFilename, a.Name), inc, embed, stage)
		}
		out.Attachments = append(out.Attachments, ea)
	}
	for _, img := range post.UploadedImages {
		ei := ExportedImage{
			ID:               img.ID,
			Filename:         img.Filename,
			URL:              absolutize(base, img.URL),
			OriginalFilename: img.OriginalFilename,
		}
		if inc != IncludeNone {
			ei.File = p.fileEntry(p.images, "images", img.ID, utils.FirstNonBlank(img.OriginalFilename, img.Filename), inc, embed, stage)
		}
		out.UploadedImages = append(out.UploadedImages, ei)
	}
	return out
}

// fileEntry resolves one blob. Failures only mark this entry unresolved.
func (p *Pipeline) fileEntry(src BlobSource, dir, id, name string, inc Inclusion, embed bool, stage stager) *FileEntry {
	entry := &FileEntry{}
	fail := func(msg string, err error) *FileEntry {
		utils.ReportFailure(p.logger, utils.FailurePartialItem, msg, zap.String("kind", dir), zap.String("id", id), zap.Error(err))
		entry.Resolved = false
		entry.Error = err.Error()
		return entry
	}

	if src == nil {
		return fail("blob source not configured", fmt.Errorf("no %s store", dir))
	}
	blobPath, err := src.Resolve(id)
	if err != nil {
		return fail("export blob unresolved", err)
	}
	info, err := os.Stat(blobPath)
	if err != nil {
		return fail("export blob stat failed", err)
	}
	entry.Resolved = true
	entry.StoredName = filepath.Base(blobPath)
	entry.Bytes = info.Size()
	entry.MimeType = "application/octet-stream"
	if mt, err := mimetype.DetectFile(blobPath); err == nil {
		entry.MimeType = mt.String()
	}

	if inc != IncludeFiles {
		return entry
	}
	if embed {
		b, err := os.ReadFile(blobPath)
		if err != nil {
			return fail("export blob read failed", err)
		}
		entry.ContentBase64 = base64.StdEncoding.EncodeToString(b)
	}
	if stage != nil {
		rel, err := stage(dir, id, name, blobPath)
		if err != nil {
			return fail("export blob copy failed", err)
		}
		entry.ArchivePath = rel
	}
	return entry
}

// WriteDocument writes doc as indented JSON without HTML escaping.
func WriteDocument(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func absolutize(base, link string) string {
	if base == "" || link == "" {
		return link
	}
	lower := strings.ToLower(link)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(link, "//") {
		return link
	}
	if !strings.HasPrefix(link, "/") {
		link = "/" + link
	}
	return base + link
}

// archiveName keeps only the final element of a caller-supplied filename.
func archiveName(name, fallback string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return fallback
	}
	return name
}


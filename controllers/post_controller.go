package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lipolab/postboard/models"
	"github.com/lipolab/postboard/storage"
	"github.com/lipolab/postboard/utils"
)

// Content types accepted for images embedded at post creation.
var postImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// Content types accepted by the standalone image upload.
var uploadImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// PostController handles post creation, reads, downloads and image uploads.
type PostController struct {
	deps  Deps
	epoch *writeEpoch
}

// NewPostController creates a new PostController instance.
func NewPostController(deps Deps) *PostController {
	deps.init()
	return &PostController{deps: deps, epoch: &writeEpoch{}}
}

// CreatePost stores a post together with its attachments and inline images.
func (p *PostController) CreatePost(ctx *gin.Context) {
	fields := map[string]string{}
	for _, name := range []string{"title", "department", "author", "category", "content"} {
		v, ok := ctx.GetPostForm(name)
		if !ok {
			utils.Error(ctx, http.StatusBadRequest, 40020, name+" is required")
			return
		}
		fields[name] = v
	}

	var endDate *string
	if v := strings.TrimSpace(ctx.PostForm("endDate")); v != "" {
		endDate = &v
	}

	var fileHeaders, imageHeaders []*multipart.FileHeader
	if form, err := ctx.MultipartForm(); err == nil {
		fileHeaders = form.File["files"]
		imageHeaders = form.File["images"]
	}

	attachments := make([]models.Attachment, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		if a, ok := p.storeAttachment(fh); ok {
			attachments = append(attachments, *a)
		}
	}

	images := make([]models.UploadedImage, 0, len(imageHeaders))
	var tags strings.Builder
	for _, fh := range imageHeaders {
		img, ok := p.storePostImage(fh)
		if !ok {
			continue
		}
		images = append(images, *img)
		fmt.Fprintf(&tags, `<img src="%s" alt="%s" style="max-width: 100%%; height: auto;">`,
			html.EscapeString(img.URL), html.EscapeString(img.Filename))
	}
	content := fields["content"]
	if tags.Len() > 0 {
		content += "<div>" + tags.String() + "</div>"
	}

	post := &models.Post{
		ID:             storage.NewPostID(),
		Title:          fields["title"],
		Department:     fields["department"],
		Author:         fields["author"],
		Views:          0,
		PostDate:       p.deps.Now().Format("2006-01-02"),
		EndDate:        endDate,
		Category:       fields["category"],
		Badges:         parseBadges(ctx.PostForm("badges"), p.deps.Logger),
		Content:        content,
		Attachments:    attachments,
		UploadedImages: images,
	}
	if err := p.deps.Posts.Save(post); err != nil {
		utils.ReportFailure(p.deps.Logger, utils.FailureStorage, "save post failed", zap.String("post", post.ID), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to create post")
		return
	}
	p.deps.Search.OnPostCreated(ctx.Request.Context(), post)
	p.invalidatePosts(ctx)

	resp := models.CreatePostResponse{Post: *post}
	if len(images) > 0 {
		resp.Message = fmt.Sprintf("Post created successfully with %d image(s) uploaded", len(images))
	}
	utils.Success(ctx, resp)
}

// parseBadges decodes a JSON string array. Malformed input yields no badges.
func parseBadges(raw string, logger *zap.Logger) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}
	var badges []string
	if err := json.Unmarshal([]byte(raw), &badges); err != nil {
		utils.ReportFailure(logger, utils.FailureValidation, "invalid badges ignored", zap.String("badges", raw), zap.Error(err))
		return []string{}
	}
	if badges == nil {
		return []string{}
	}
	return badges
}

func (p *PostController) storeAttachment(fh *multipart.FileHeader) (*models.Attachment, bool) {
	if strings.TrimSpace(fh.Filename) == "" {
		return nil, false
	}
	if fh.Size > p.deps.maxUploadBytes() {
		utils.ReportFailure(p.deps.Logger, utils.FailurePartialItem, "attachment too large, skipped", zap.String("file", fh.Filename), zap.Int64("size", fh.Size))
		return nil, false
	}
	id := storage.NewAttachmentID()
	name := utils.CleanFilename(fh.Filename)
	_, ext := utils.SplitExt(name)
	n, err := p.storeUpload(p.deps.Uploads, fh, id, ext)
	if err != nil {
		utils.ReportFailure(p.deps.Logger, utils.FailurePartialItem, "attachment skipped", zap.String("file", fh.Filename), zap.Error(err))
		return nil, false
	}
	return &models.Attachment{
		ID:               id,
		Name:             name,
		Size:             utils.FormatSize(n),
		DownloadURL:      "/api/attachments/" + id + "/download",
		OriginalFilename: fh.Filename,
	}, true
}

func (p *PostController) storePostImage(fh *multipart.FileHeader) (*models.UploadedImage, bool) {
	if strings.TrimSpace(fh.Filename) == "" {
		return nil, false
	}
	ct := strings.ToLower(fh.Header.Get("Content-Type"))
	if !postImageTypes[ct] {
		utils.ReportFailure(p.deps.Logger, utils.FailurePartialItem, "unsupported image type, skipped", zap.String("file", fh.Filename), zap.String("contentType", ct))
		return nil, false
	}
	if fh.Size > p.deps.maxUploadBytes() {
		utils.ReportFailure(p.deps.Logger, utils.FailurePartialItem, "image too large, skipped", zap.String("file", fh.Filename), zap.Int64("size", fh.Size))
		return nil, false
	}
	id := storage.NewImageID()
	name := utils.CleanFilename(fh.Filename)
	_, ext := utils.SplitExt(name)
	if ext == "" {
		ext = ".jpg"
	}
	if _, err := p.storeUpload(p.deps.Images, fh, id, ext); err != nil {
		utils.ReportFailure(p.deps.Logger, utils.FailurePartialItem, "image skipped", zap.String("file", fh.Filename), zap.Error(err))
		return nil, false
	}
	return &models.UploadedImage{
		ID:               id,
		Filename:         name,
		URL:              p.imageURL(id + ext),
		OriginalFilename: fh.Filename,
	}, true
}

func (p *PostController) storeUpload(store *storage.BlobStore, fh *multipart.FileHeader, id, ext string) (int64, error) {
	f, err := fh.Open()
	if err != nil {
		return 0, err
	}
	defer f.Close()
	_, n, err := store.Store(f, id, ext)
	return n, err
}

func (p *PostController) imageURL(storedName string) string {
	return strings.TrimRight(p.deps.ImagesURLPrefix, "/") + "/" + storedName
}

// ListPosts returns all posts, newest postDate first.
func (p *PostController) ListPosts(ctx *gin.Context) {
	if b, ok := p.deps.Cache.GetBytes(ctx.Request.Context(), postsListCacheKey); ok {
		ctx.Data(http.StatusOK, "application/json; charset=utf-8", b)
		return
	}
	seen := p.epoch.current()
	posts, err := p.deps.Posts.ListAll()
	if err != nil {
		utils.ReportFailure(p.deps.Logger, utils.FailureStorage, "list posts failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to list posts")
		return
	}
	p.cacheIfUnchanged(ctx, seen, postsListCacheKey, utils.JSONResponse{Code: 0, Message: "success", Data: posts})
	utils.Success(ctx, posts)
}

// GetPost returns one post and counts the view.
func (p *PostController) GetPost(ctx *gin.Context) {
	id := ctx.Param("id")
	post, err := p.deps.Posts.IncrementViews(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidID) {
			utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
			return
		}
		utils.ReportFailure(p.deps.Logger, utils.FailureStorage, "load post failed", zap.String("post", id), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to load post")
		return
	}
	p.invalidatePosts(ctx)
	utils.Success(ctx, post)
}

// DownloadAttachment streams a stored attachment under its best-known original name.
func (p *PostController) DownloadAttachment(ctx *gin.Context) {
	id := ctx.Param("id")
	path, err := p.deps.Uploads.Resolve(id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			utils.ReportFailure(p.deps.Logger, utils.FailureStorage, "resolve attachment failed", zap.String("attachment", id), zap.Error(err))
		}
		utils.Error(ctx, http.StatusNotFound, 40402, "file not found")
		return
	}
	name := filepath.Base(path)
	if a, err := p.deps.Posts.FindAttachment(id); err == nil {
		if n := utils.FirstNonBlank(a.OriginalFilename, a.Name); n != "" {
			name = n
		}
	}
	ctx.FileAttachment(path, name)
}

// UploadImage stores a single inline image and returns its public URL.
func (p *PostController) UploadImage(ctx *gin.Context) {
	fh, err := ctx.FormFile("image")
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "no image uploaded")
		return
	}
	ct := strings.ToLower(fh.Header.Get("Content-Type"))
	if !strings.HasPrefix(ct, "image/") {
		utils.Error(ctx, http.StatusBadRequest, 40031, "Only image files are allowed")
		return
	}
	if !uploadImageTypes[ct] {
		utils.Error(ctx, http.StatusBadRequest, 40032, "Unsupported image format")
		return
	}
	if fh.Size > p.deps.maxUploadBytes() {
		utils.Error(ctx, http.StatusBadRequest, 40033, fmt.Sprintf("file size exceeds %dMB", p.deps.MaxUploadMB))
		return
	}

	id := storage.NewImageID()
	_, ext := utils.SplitExt(fh.Filename)
	if ext == "" {
		ext = ".jpg"
	}
	if _, err := p.storeUpload(p.deps.Images, fh, id, ext); err != nil {
		utils.ReportFailure(p.deps.Logger, utils.FailureStorage, "image upload failed", zap.String("file", fh.Filename), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to upload image")
		return
	}
	saved := id + ext
	utils.Success(ctx, gin.H{
		"success":  true,
		"imageId":  id,
		"imageUrl": p.imageURL(saved),
		"filename": utils.FirstNonBlank(fh.Filename, saved),
	})
}

// Search answers a text query through the search service. A blank q matches every post.
func (p *PostController) Search(ctx *gin.Context) {
	q := strings.TrimSpace(ctx.Query("q"))
	key := searchCachePrefix + q
	if b, ok := p.deps.Cache.GetBytes(ctx.Request.Context(), key); ok {
		ctx.Data(http.StatusOK, "application/json; charset=utf-8", b)
		return
	}
	seen := p.epoch.current()
	posts, servedBy, err := p.deps.Search.Query(ctx.Request.Context(), q)
	if err != nil {
		utils.ReportFailure(p.deps.Logger, utils.FailureStorage, "search failed", zap.String("q", q), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50040, "search failed")
		return
	}
	data := gin.H{"posts": posts, "servedBy": servedBy}
	p.cacheIfUnchanged(ctx, seen, key, utils.JSONResponse{Code: 0, Message: "success", Data: data})
	utils.Success(ctx, data)
}

// invalidatePosts drops every cached list and search response after a post write.
func (p *PostController) invalidatePosts(ctx *gin.Context) {
	p.epoch.advance(func() {
		p.deps.Cache.InvalidateByPrefix(ctx.Request.Context(), postsCachePrefix)
	})
}

// cacheIfUnchanged stores v under key unless a post write happened after seen was taken.
func (p *PostController) cacheIfUnchanged(ctx *gin.Context, seen uint64, key string, v any) {
	if !p.deps.Cache.Enabled() {
		return
	}
	if !p.epoch.storeIf(seen, func() { p.deps.Cache.SetJSON(ctx.Request.Context(), key, v) }) {
		p.deps.Logger.Debug("skipped caching stale response", zap.String("key", key))
	}
}

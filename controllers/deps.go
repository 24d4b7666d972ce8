package controllers

import (
	"time"

	"go.uber.org/zap"

	"github.com/lipolab/postboard/export"
	"github.com/lipolab/postboard/search"
	"github.com/lipolab/postboard/storage"
	"github.com/lipolab/postboard/utils"
)

// Cache key prefixes. Every post write invalidates postsCachePrefix.
const (
	postsCachePrefix  = "cache:posts:"
	postsListCacheKey = postsCachePrefix + "list"
	searchCachePrefix = postsCachePrefix + "search:"
)

// Deps are the collaborators shared by the HTTP controllers.
type Deps struct {
	Posts           *storage.PostRepository
	Uploads         *storage.BlobStore
	Images          *storage.BlobStore
	Search          *search.Service
	Exporter        *export.Pipeline
	Cache           *utils.Cache
	ImagesURLPrefix string
	MaxUploadMB     int
	Logger          *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d *Deps) init() {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.MaxUploadMB <= 0 {
		d.MaxUploadMB = 50
	}
	if d.ImagesURLPrefix == "" {
		d.ImagesURLPrefix = "/static/images"
	}
	if d.Cache == nil {
		d.Cache = utils.NewCache(nil, 0, d.Logger)
	}
	if d.Search == nil && d.Posts != nil {
		d.Search = search.NewService(nil, d.Posts, search.WithLogger(d.Logger))
	}
	if d.Exporter == nil && d.Posts != nil {
		var uploads, images export.BlobSource
		if d.Uploads != nil {
			uploads = d.Uploads
		}
		if d.Images != nil {
			images = d.Images
		}
		d.Exporter = export.NewPipeline(d.Posts, uploads, images, d.Logger)
	}
}

func (d *Deps) maxUploadBytes() int64 {
	return int64(d.MaxUploadMB) * 1024 * 1024
}

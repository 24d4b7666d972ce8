package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lipolab/postboard/config"
	"github.com/lipolab/postboard/controllers"
	"github.com/lipolab/postboard/export"
	"github.com/lipolab/postboard/search"
	"github.com/lipolab/postboard/storage"
	"github.com/lipolab/postboard/utils"
)

// app holds every constructed dependency of the service.
type app struct {
	cfg      config.AppConfig
	logger   *zap.Logger
	posts    *storage.PostRepository
	uploads  *storage.BlobStore
	images   *storage.BlobStore
	search   *search.Service
	exporter *export.Pipeline
	redis    *redis.Client
	cache    *utils.Cache
}

// newApp builds the stores and optional backends. Search and Redis degrade to disabled on failure.
func newApp(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*app, error) {
	posts, err := storage.NewPostRepository(cfg.PostsDir, logger)
	if err != nil {
		return nil, err
	}
	uploads, err := storage.NewBlobStore(cfg.UploadsDir)
	if err != nil {
		return nil, err
	}
	images, err := storage.NewBlobStore(cfg.ImagesDir)
	if err != nil {
		return nil, err
	}

	sink := search.Disabled()
	if cfg.SearchEnabled {
		sink = search.NewElasticSink(ctx, search.ElasticOptions{
			URL:      cfg.ESURL,
			Index:    cfg.ESIndex,
			Username: cfg.ESUsername,
			Password: cfg.ESPassword,
		}, logger)
	}

	rc := utils.NewRedisClient(ctx, cfg, logger)
	return &app{
		cfg:      cfg,
		logger:   logger,
		posts:    posts,
		uploads:  uploads,
		images:   images,
		search:   search.NewService(sink, posts, search.WithLogger(logger)),
		exporter: export.NewPipeline(posts, uploads, images, logger),
		redis:    rc,
		cache:    utils.NewCache(rc, time.Duration(cfg.CacheTTLSeconds)*time.Second, logger),
	}, nil
}

func (a *app) deps() controllers.Deps {
	return controllers.Deps{
		Posts:           a.posts,
		Uploads:         a.uploads,
		Images:          a.images,
		Search:          a.search,
		Exporter:        a.exporter,
		Cache:           a.cache,
		ImagesURLPrefix: a.cfg.ImagesURLPrefix,
		MaxUploadMB:     a.cfg.MaxUploadMB,
		Logger:          a.logger,
	}
}

func (a *app) s3Uploader() (*export.S3Uploader, error) {
	u, err := export.NewS3Uploader(export.S3Options{
		Endpoint:  a.cfg.ExportS3Endpoint,
		Region:    a.cfg.ExportS3Region,
		Bucket:    a.cfg.ExportS3Bucket,
		AccessKey: a.cfg.ExportS3AccessKey,
		SecretKey: a.cfg.ExportS3SecretKey,
		Prefix:    a.cfg.ExportS3Prefix,
		UseSSL:    a.cfg.ExportS3UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("export s3: %w", err)
	}
	return u, nil
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.logger.Sync()
}

package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/lipolab/postboard/config"
	"github.com/lipolab/postboard/controllers"
	"github.com/lipolab/postboard/middleware"
	"github.com/lipolab/postboard/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, deps controllers.Deps) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log goes to its own rolling file when GinPath is set.
	gl := deps.Logger
	if cfg.GinPath != "" {
		if l, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress); err == nil {
			gl = l
		}
	}
	if gl != nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))
	r.MaxMultipartMemory = 32 << 20

	imagesPrefix := "/" + strings.Trim(cfg.ImagesURLPrefix, "/")
	if imagesPrefix == "/" {
		imagesPrefix = "/static/images"
	}
	if deps.ImagesURLPrefix == "" {
		deps.ImagesURLPrefix = imagesPrefix
	}
	if deps.Images != nil {
		r.Static(imagesPrefix, deps.Images.Dir())
	}

	postController := controllers.NewPostController(deps)
	exportController := controllers.NewExportController(deps)
	statsController := controllers.NewStatsController(deps)

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok", "search": deps.Search != nil && deps.Search.Available()})
	})

	api := r.Group("/api")
	writes := middleware.RateLimitMiddleware(cfg.RateLimitPerMinute)

	postsGroup := api.Group("/posts")
	postsGroup.GET("", postController.ListPosts)
	postsGroup.GET("/:id", postController.GetPost)
	postsGroup.POST("", writes, postController.CreatePost)

	api.GET("/attachments/:id/download", postController.DownloadAttachment)
	api.POST("/upload-image", writes, postController.UploadImage)
	api.GET("/search", postController.Search)
	api.GET("/export", exportController.Export)
	api.GET("/stats", statsController.GetStats)

	r.NoRoute(func(ctx *gin.Context) {
		path := ctx.Request.URL.Path
		if strings.HasPrefix(path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		if strings.HasPrefix(path, imagesPrefix+"/") {
			ctx.JSON(http.StatusNotFound, gin.H{"message": "static asset not found"})
			return
		}
		utils.Error(ctx, http.StatusNotFound, 40400, "not found")
	})

	return r
}

package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lipolab/postboard/utils"
)

// StatsController provides board statistics such as post and view counts.
type StatsController struct {
	deps Deps
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(deps Deps) *StatsController {
	deps.init()
	return &StatsController{deps: deps}
}

// GetStats returns aggregate statistics over all stored posts.
func (s *StatsController) GetStats(ctx *gin.Context) {
	posts, err := s.deps.Posts.ListAll()
	if err != nil {
		utils.ReportFailure(s.deps.Logger, utils.FailureStorage, "stats listing failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50060, "failed to compute stats")
		return
	}

	var views, attachments, images int
	for _, p := range posts {
		views += p.Views
		attachments += len(p.Attachments)
		images += len(p.UploadedImages)
	}

	utils.Success(ctx, gin.H{
		"post_count":       len(posts),
		"total_views":      views,
		"attachment_count": attachments,
		"image_count":      images,
		"search_available": s.deps.Search.Available(),
	})
}

package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lipolab/postboard/export"
	"github.com/lipolab/postboard/utils"
)

// ExportController serves full post exports as JSON or ZIP.
type ExportController struct {
	deps Deps
}

// NewExportController creates a new ExportController instance.
func NewExportController(deps Deps) *ExportController {
	deps.init()
	return &ExportController{deps: deps}
}

// Export handles GET /api/export?format=&includeFiles=&baseUrl=.
// The JSON document is written as is, without the response envelope.
func (e *ExportController) Export(ctx *gin.Context) {
	format, err := export.ParseFormat(ctx.Query("format"))
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40050, err.Error())
		return
	}
	include, err := export.ParseInclusion(ctx.Query("includeFiles"))
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40051, err.Error())
		return
	}
	opts := export.Options{Format: format, Include: include, BaseURL: ctx.Query("baseUrl")}

	if format == export.FormatZIP {
		arch, err := e.deps.Exporter.BuildArchive(ctx.Request.Context(), opts)
		if err != nil {
			utils.ReportFailure(e.deps.Logger, utils.FailureStorage, "zip export failed", zap.Error(err))
			utils.Error(ctx, http.StatusInternalServerError, 50050, "export failed")
			return
		}
		defer func() {
			if err := arch.Cleanup(); err != nil {
				utils.ReportFailure(e.deps.Logger, utils.FailureStorage, "export cleanup failed", zap.Error(err))
			}
		}()
		ctx.FileAttachment(arch.Path, arch.Name)
		return
	}

	doc, err := e.deps.Exporter.Build(ctx.Request.Context(), opts)
	if err != nil {
		utils.ReportFailure(e.deps.Logger, utils.FailureStorage, "json export failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50051, "export failed")
		return
	}
	ctx.Header("Content-Type", "application/json; charset=utf-8")
	ctx.Status(http.StatusOK)
	if err := export.WriteDocument(ctx.Writer, doc); err != nil {
		utils.ReportFailure(e.deps.Logger, utils.FailureDegraded, "write export response failed", zap.Error(err))
	}
}

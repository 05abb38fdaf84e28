package handler

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-reschedule-api/pkg/response"
)

type exportDownloader interface {
	Open(token string) (*os.File, string, error)
}

// ExportHandler serves stored timetables through signed links.
type ExportHandler struct {
	exports exportDownloader
}

// NewExportHandler constructs the handler.
func NewExportHandler(exports exportDownloader) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Download godoc
// @Summary Download a published timetable
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	file, filename, err := h.exports.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, err)
		return
	}
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}

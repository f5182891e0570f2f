package routes

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"pdf-query-assistant/internal/config"
	"pdf-query-assistant/internal/logger"
	"pdf-query-assistant/middleware"
	"pdf-query-assistant/services"
	"pdf-query-assistant/utils"
)

// SetupDocumentRoutes registers PDF upload and document status endpoints.
func SetupDocumentRoutes(router *gin.Engine, cfg *config.Config, assistant *services.Assistant) {
	docs := router.Group("/documents")

	docs.POST("", func(c *gin.Context) {
		file, err := c.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "No file provided", gin.H{"error": err.Error()})
			return
		}

		if file.Size > cfg.MaxFileSize {
			utils.RespondWithTooLarge(c, fmt.Sprintf("File exceeds the %d byte limit", cfg.MaxFileSize))
			return
		}

		if !strings.EqualFold(filepath.Ext(file.Filename), ".pdf") {
			utils.RespondWithBadRequest(c, "Only PDF files are supported", gin.H{"filename": file.Filename})
			return
		}
		if contentType := file.Header.Get("Content-Type"); contentType != "" && !typeAllowed(cfg.AllowedTypes, contentType) {
			utils.RespondWithBadRequest(c, "Unsupported content type", gin.H{"content_type": contentType})
			return
		}

		tmp, err := os.CreateTemp("", "upload-*.pdf")
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to stage upload", nil)
			return
		}
		tmpPath := tmp.Name()
		tmp.Close()
		defer os.Remove(tmpPath)

		if err := c.SaveUploadedFile(file, tmpPath); err != nil {
			utils.RespondWithInternalError(c, "Failed to save upload", gin.H{"error": err.Error()})
			return
		}

		resp, err := assistant.Ingest(c.Request.Context(), tmpPath, file.Filename, file.Size)
		if err != nil {
			logger.Error("Document ingestion failed",
				"filename", file.Filename,
				"request_id", middleware.GetRequestID(c),
				"error", err)
			if errors.Is(err, services.ErrNoExtractableText) {
				utils.RespondWithUnprocessable(c, "no_extractable_text", "No text could be extracted from this PDF")
				return
			}
			utils.RespondWithInternalError(c, "Failed to process document", gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, resp)
	})

	docs.GET("/current", func(c *gin.Context) {
		doc := assistant.Document()
		if doc == nil {
			utils.RespondWithNotFound(c, "No document has been ingested")
			return
		}
		c.JSON(http.StatusOK, doc)
	})
}

func typeAllowed(allowed []string, contentType string) bool {
	for _, t := range allowed {
		if strings.EqualFold(strings.TrimSpace(t), contentType) {
			return true
		}
	}
	return false
}

package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdf-query-assistant/internal/logger"
	"pdf-query-assistant/internal/rag"
	"pdf-query-assistant/middleware"
	"pdf-query-assistant/models"
	"pdf-query-assistant/services"
	"pdf-query-assistant/utils"
)

// SetupProviderRoutes registers runtime LLM provider management.
func SetupProviderRoutes(router *gin.Engine, assistant *services.Assistant) {
	cfg := router.Group("/config")

	cfg.PUT("/provider", func(c *gin.Context) {
		var req models.ProviderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		if err := assistant.SwitchProvider(req.Provider, req.Temperature); err != nil {
			logger.Warn("Provider switch rejected",
				"provider", req.Provider,
				"request_id", middleware.GetRequestID(c),
				"error", err)
			switch {
			case errors.Is(err, rag.ErrUnsupportedProvider):
				utils.RespondWithBadRequest(c, "Unsupported provider", gin.H{"provider": req.Provider})
			case errors.Is(err, rag.ErrMissingCredential):
				utils.RespondWithError(c, http.StatusConflict, "missing_credential", err.Error(), gin.H{"provider": req.Provider})
			default:
				utils.RespondWithInternalError(c, "Failed to switch provider", gin.H{"error": err.Error()})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":  "Provider switched",
			"provider": req.Provider,
		})
	})

	cfg.GET("/providers", func(c *gin.Context) {
		resp := gin.H{"providers": assistant.ProviderStatuses()}
		if err := assistant.GeneratorError(); err != nil {
			resp["generator_error"] = err.Error()
		}
		c.JSON(http.StatusOK, resp)
	})
}

package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pdf-query-assistant/internal/config"
	"pdf-query-assistant/internal/logger"
	"pdf-query-assistant/middleware"
	"pdf-query-assistant/models"
	"pdf-query-assistant/services"
	"pdf-query-assistant/utils"
)

// SetupChatRoutes registers question answering and history endpoints.
func SetupChatRoutes(router *gin.Engine, cfg *config.Config, assistant *services.Assistant) {
	chat := router.Group("/chat")

	chat.POST("/ask", func(c *gin.Context) {
		var req models.AskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		resp, err := assistant.Ask(c.Request.Context(), req.Question, req.TopK)
		if err != nil {
			logger.Error("Question answering failed",
				"request_id", middleware.GetRequestID(c),
				"error", err)
			utils.RespondWithBadGateway(c, "Failed to answer question", gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, resp)
	})

	chat.GET("/history", func(c *gin.Context) {
		messages := assistant.History()
		c.JSON(http.StatusOK, gin.H{
			"messages": messages,
			"count":    len(messages),
		})
	})

	chat.DELETE("/history", func(c *gin.Context) {
		if err := assistant.ClearHistory(); err != nil {
			utils.RespondWithInternalError(c, "Failed to clear chat history", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Chat history cleared"})
	})
}

package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/DannyyLC/uaa-indexing/internal/handler"
	"github.com/DannyyLC/uaa-indexing/internal/middleware"
)

func RegisterRoutes(router *gin.RouterGroup, documentHandler *handler.DocumentHandler, authMiddleware *middleware.AuthMiddleware) {
	documents := router.Group("/documents")
	documents.Use(authMiddleware.RequireAuth())
	{
		documents.POST("/upload", documentHandler.Upload)
		documents.GET("/jobs", documentHandler.ListJobs)
		documents.GET("/jobs/:id", documentHandler.GetJob)
		documents.DELETE("/jobs/:id", documentHandler.CancelJob)
		documents.GET("/topics", documentHandler.ListTopics)
		documents.DELETE("/topics/:topic", documentHandler.DeleteTopic)
		documents.GET("/stats", documentHandler.Stats)
	}
}

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DannyyLC/uaa-indexing/internal/handler"
	"github.com/DannyyLC/uaa-indexing/internal/middleware"
	"github.com/DannyyLC/uaa-indexing/internal/routes"
)

func NewServer(documentHandler *handler.DocumentHandler, authMiddleware *middleware.AuthMiddleware) *gin.Engine {
	g := gin.Default()

	g.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := g.Group("/api/v1")
	routes.RegisterRoutes(api, documentHandler, authMiddleware)
	return g
}

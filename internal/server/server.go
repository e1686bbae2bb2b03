package server

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/tendant/simple-ocr-gateway/internal/apperr"
	"github.com/tendant/simple-ocr-gateway/internal/handler"
	"github.com/tendant/simple-ocr-gateway/internal/middleware"
	"github.com/tendant/simple-ocr-gateway/internal/respond"
	"github.com/tendant/simple-ocr-gateway/internal/routes"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func NewServer(ocr *handler.OCRHandler, health *handler.HealthHandler, apiKey string, logger *slog.Logger) *gin.Engine {
	g := gin.New()
	g.Use(middleware.RequestID(), middleware.Recovery(logger), middleware.Logger(logger))

	g.GET("/health", health.Health)

	api := g.Group("/api/v1")
	routes.RegisterRoutes(api, ocr, middleware.APIKeyAuth(apiKey))

	g.NoRoute(func(c *gin.Context) {
		respond.Fail(c, apperr.New(apperr.CodeNotFound, "route not found", nil))
	})
	return g
}

package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/tendant/simple-ocr-gateway/internal/handler"
)

func RegisterRoutes(router *gin.RouterGroup, ocr *handler.OCRHandler, auth gin.HandlerFunc) {
	group := router.Group("/ocr")
	group.Use(auth)
	{
		group.POST("/process", ocr.Process)
		group.GET("/status/:jobId", ocr.Status)
		group.GET("/result/:jobId", ocr.Result)

		// An empty id still gets an INVALID_JOB_ID answer.
		group.GET("/status", ocr.Status)
		group.GET("/result", ocr.Result)
	}
}

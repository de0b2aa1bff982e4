// Package router registers the RAG service routes.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/scholar-x/internal/rag/handler"
	"github.com/kart-io/scholar-x/internal/rag/metrics"
)

// Register attaches the RAG routes to the engine.
func Register(engine *gin.Engine, ragHandler *handler.RAGHandler) {
	v1 := engine.Group("/v1")
	{
		rag := v1.Group("/rag")
		{
			// Query endpoints
			rag.POST("/query", ragHandler.Query)
			rag.POST("/query/validate", ragHandler.ValidateQuery)
			rag.POST("/answer/validate", ragHandler.ValidateAnswer)

			// Chunking endpoints
			rag.POST("/chunks", ragHandler.Chunk)
			rag.POST("/chunks/rechunk", ragHandler.Rechunk)

			// Pipeline endpoints
			rag.POST("/pipeline/execute", ragHandler.ExecutePipeline)
			rag.GET("/pipeline/test", ragHandler.TestPipeline)

			// Operational endpoints
			rag.GET("/stats", ragHandler.Stats)
			rag.GET("/health/vector", ragHandler.VectorHealth)
			rag.DELETE("/cache", ragHandler.ClearCache)
		}
	}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	engine.GET("/metrics", func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		c.String(http.StatusOK, metrics.GetRAGMetrics().Export("scholar", "rag"))
	})

	logger.Info("RAG routes registered")
}

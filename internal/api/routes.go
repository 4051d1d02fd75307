package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/driveline/market-research-go/internal/api/handlers"
	"github.com/driveline/market-research-go/internal/database"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Services  Services  `json:"services"`
}

type Services struct {
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

func SetupRoutes(router *gin.Engine, db *database.PostgresDB, redis *database.RedisClient, researchHandler *handlers.ResearchHandler) {
	// Health check endpoint
	router.GET("/health", healthCheck(db, redis))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		research := v1.Group("/research")
		{
			research.POST("/analyze", researchHandler.AnalyzeVehicle)
			research.GET("/sources", researchHandler.GetAvailableSources)
			research.GET("/jobs/:jobID", researchHandler.GetJobStatus)
			research.GET("/:subjectID", researchHandler.GetMarketResearch)
			research.POST("/:subjectID/refresh", researchHandler.RefreshMarketResearch)
		}
	}
}

func healthCheck(db *database.PostgresDB, redis *database.RedisClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Services: Services{
				Database: "healthy",
				Redis:    "healthy",
			},
		}

		if err := db.HealthCheck(c.Request.Context()); err != nil {
			response.Status = "degraded"
			response.Services.Database = "unhealthy"
		}
		if err := redis.HealthCheck(c.Request.Context()); err != nil {
			response.Status = "degraded"
			response.Services.Redis = "unhealthy"
		}

		status := http.StatusOK
		if response.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, response)
	}
}

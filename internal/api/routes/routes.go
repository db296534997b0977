package routes

import (
	"dashshot/internal/api/handlers"
	"dashshot/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

type Deps struct {
	Capture *handlers.CaptureHandler
	Hub     *handlers.Hub
}

func SetupRoutes(deps Deps) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(middleware.Logger())
	router.Use(middleware.CORSMiddleware())
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck)

		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			dashboards := protected.Group("/dashboards")
			{
				dashboards.POST("/:id/screenshot", deps.Capture.Capture)
				dashboards.GET("/:id/throttle", deps.Capture.GetThrottle)
			}

			protected.GET("/queue", deps.Capture.GetQueue)
			protected.GET("/ws/captures", deps.Hub.Subscribe)
		}
	}

	return router
}

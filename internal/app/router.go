package app

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/platewise/platewise-backend/internal/handlers"
)

func wireRouter(handlerset Handlers) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/meals", handlerset.Meal.Create)
		api.GET("/meals/:id", handlerset.Meal.Get)
		api.PUT("/meals/:id/weight", handlerset.Meal.UpdateWeight)
		api.DELETE("/meals/:id", handlerset.Meal.Delete)
		api.POST("/meals/:id/resubmit", handlerset.Meal.Resubmit)
		api.GET("/meals/:id/events", handlerset.Events.Stream)
		api.POST("/meals/:id/ingredients", handlerset.Ingredient.Apply)
		api.GET("/meals/:id/ingredients", handlerset.Ingredient.List)
		api.GET("/meals/:id/job", handlerset.Jobs.GetLatestForMeal)
		api.GET("/jobs/:id", handlerset.Jobs.GetByID)
	}

	return router
}

package v1

import (
	"go_sitegen/api/v1/auth"
	"go_sitegen/api/v1/deployments"
	"go_sitegen/api/v1/middleware"
	"go_sitegen/internal/config"
	"go_sitegen/internal/deploy"
	"go_sitegen/internal/httpx"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRouter sets up the API v1 routes
func SetupRouter(r *gin.Engine, db *gorm.DB, cfg *config.Config, deploySvc *deploy.Service) {
	v1 := r.Group("/api/v1")
	{
		// Public routes (no authentication required)
		v1.GET("/ping", pingHandler)

		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", auth.LoginHandler(db, cfg))
		}

		// Protected routes (authentication required)
		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/me", meHandler)

			// Deployment routes
			depGroup := protected.Group("/deployments")
			{
				depGroup.GET("", deployments.ListHandler(deploySvc))
				depGroup.POST("/trigger", deployments.TriggerHandler(deploySvc))
				depGroup.POST("/cancel", deployments.CancelHandler(deploySvc))
				depGroup.GET("/:id", deployments.GetHandler(deploySvc))
				depGroup.GET("/:id/logs", deployments.LogsHandler(deploySvc))
			}
		}
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}

// meHandler returns current user information
func meHandler(c *gin.Context) {
	uid, _ := c.Get("uid")
	username, _ := c.Get("username")
	role, _ := c.Get("role")

	httpx.OK(c, gin.H{
		"uid":      uid,
		"username": username,
		"role":     role,
	})
}

package http

import (
	"github.com/gin-gonic/gin"

	"github.com/blackhole-dns/warden/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService) *gin.Engine {
	router := gin.Default()

	handlers := NewAuthHandlers(authService)

	// The auth endpoint is method-driven: GET checks status and hands out
	// a challenge, POST logs in, DELETE logs out.
	router.GET("/api/auth", handlers.Auth)
	router.POST("/api/auth", handlers.Auth)
	router.DELETE("/api/auth", handlers.Auth)

	// Protected API routes
	api := router.Group("/api")
	api.Use(RequireAuth(authService))
	{
		api.GET("/auth/sessions", handlers.Sessions)
	}

	return router
}

package http

import (
	"github.com/gin-gonic/gin"
	"github.com/openclave/walletauth/service"
	"go.uber.org/zap"
)

// SetupRouter sets up the Gin router.
func SetupRouter(auth *service.AuthService, tokens *service.TokenService, log *zap.Logger) *gin.Engine {
	router := gin.Default()

	handlers := NewAuthHandlers(auth, tokens, log)

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/challenge", handlers.Challenge)
		authGroup.POST("/authenticate", handlers.Authenticate)
		authGroup.POST("/recover", handlers.Recover)
		authGroup.POST("/refresh", handlers.Refresh)
		authGroup.POST("/logout", handlers.Logout)
	}

	api := router.Group("/api")
	api.Use(AuthMiddleware(tokens))
	{
		api.GET("/me", handlers.Me)
	}

	return router
}

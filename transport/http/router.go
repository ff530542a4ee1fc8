package http

import (
	"github.com/gin-gonic/gin"

	"github.com/learnchain/gatehouse/ports"
)

// SetupRouter wires the gin router.
func SetupRouter(handlers *Handlers, tokens ports.Tokenizer) *gin.Engine {
	router := gin.Default()

	router.GET("/healthz", handlers.Healthz)

	auth := router.Group("/auth")
	{
		auth.GET("/nonce", handlers.Nonce)
		auth.POST("/nonce/verify", handlers.VerifyNonce)
	}

	wallet := router.Group("/wallet")
	{
		wallet.POST("/verify", handlers.VerifyWallet)
		wallet.POST("/connect", handlers.Connect)
	}

	session := router.Group("/session")
	{
		session.POST("", AuthMiddleware(tokens), handlers.StartSession)
		session.PATCH("", handlers.EndSession)
		session.PUT("/heartbeat", handlers.Heartbeat)
	}

	router.POST("/track", handlers.Track)

	return router
}

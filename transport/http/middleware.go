package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnchain/gatehouse/core"
	"github.com/learnchain/gatehouse/ports"
)

// AuthMiddleware validates the bearer token minted on wallet connect and puts
// the wallet address on the request context.
func AuthMiddleware(tokens ports.Tokenizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if len(auth) < 8 || auth[:7] != "Bearer " {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		address, err := tokens.Parse(auth[7:])
		if err != nil {
			if err == core.ErrTokenExpired {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			return
		}

		c.Set("walletAddress", address)
		c.Next()
	}
}

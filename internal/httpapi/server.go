// Package httpapi exposes the bot's operational HTTP surface. It is not part
// of the bot protocol; it serves deploy tooling and uptime checks.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gptgate/internal/features/account/repository"
	"gptgate/internal/features/chat"
)

// New builds the gin engine with health and status endpoints.
func New(store repository.Store, sessions *chat.Store, startedAt time.Time) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"sessions": sessions.Len(),
			"uptime":   time.Since(startedAt).String(),
		})
	})

	return router
}

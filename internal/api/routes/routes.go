package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/gradlink/proctor/internal/api/handlers"
	"github.com/gradlink/proctor/internal/api/middleware"
)

type Deps struct {
	Status   *handlers.StatusHandler
	Attempts *handlers.AttemptsHandler
	WS       *handlers.WSHandler

	// JWTSecret enables bearer auth on everything except /ping.
	// Empty means the monitor is open (local development).
	JWTSecret string
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	grp := r.Group("/")
	if d.JWTSecret != "" {
		grp.Use(middleware.JWTAuth(d.JWTSecret))
	}

	grp.GET("/session", d.Status.Session)

	grp.GET("/attempts", d.Attempts.List)
	grp.GET("/attempts/:id", d.Attempts.Get)

	// WebSocket event feed
	grp.GET("/ws/events", d.WS.Events)

	// Force-end is destructive; admins only when auth is on.
	end := grp.Group("/")
	if d.JWTSecret != "" {
		end.Use(middleware.RequireAdmin())
	}
	end.POST("/session/end", d.Status.End)
}

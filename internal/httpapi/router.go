package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pulsecoach/backend/internal/httpapi/handlers"
	"github.com/pulsecoach/backend/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pong": true})
	})

	r.POST("/chat/:humanId", h.PostChat)

	r.POST("/programs", h.CreateProgram)
	r.GET("/programs/:id", h.GetProgram)
	r.GET("/programs/:id/today", h.GetToday)
	r.GET("/programs/:id/week", h.GetWeek)
	r.GET("/programs/:id/window", h.GetWindow)
	r.POST("/programs/:id/change", h.ChangeProgram)
	r.PATCH("/programs/:id/periods/:index", h.PatchPeriod)

	return r
}

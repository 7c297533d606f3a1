package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/comet/internal/common"
	"github.com/suPer8Hu/comet/internal/httpapi/handlers"
	"github.com/suPer8Hu/comet/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler, jwtSecret string, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery(logger))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	r.GET("/ping", h.Ping)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(jwtSecret))
	authGroup.GET("/moderation", h.ListModeration)
	authGroup.GET("/access/:type", h.ListAccess)
	authGroup.GET("/access/users/:user_id/history", h.AccessHistory)
	authGroup.GET("/sessions/:thread_id", h.GetSession)
	return r
}

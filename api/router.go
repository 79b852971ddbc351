// Package api assembles the HTTP routes of the console server.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zetxtech/websole/api/handlers"
	"github.com/zetxtech/websole/internal/auth"
	"github.com/zetxtech/websole/internal/logger"
	"github.com/zetxtech/websole/internal/session"
	"github.com/zetxtech/websole/internal/ws"
)

// Deps are the components the routes are served from.
type Deps struct {
	Hub  *session.Hub
	Gate *auth.Gate

	// Runs is nil when run history is disabled.
	Runs handlers.RunLister

	// Gatherer backs /metrics. Nil leaves the route out.
	Gatherer prometheus.Gatherer

	WS ws.Options
}

// NewRouter builds the gin engine. Call logger.Setup first so the request log
// uses the configured output.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.Gin())

	sessionHandler := handlers.NewSessionHandler(d.Hub, d.Gate, d.Runs)
	authHandler := handlers.NewAuthHandler(d.Gate)
	wsHandler := handlers.NewWebSocketHandler(d.Hub, ws.NewHandler(d.Hub, d.WS))

	sessionHandler.RegisterPublicRoutes(r)
	authHandler.RegisterRoutes(r)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	gated := r.Group("/", d.Gate.Middleware())
	{
		wsHandler.RegisterRoutes(gated)
	}

	apiGroup := r.Group("/api", d.Gate.Middleware())
	{
		sessionHandler.RegisterRoutes(apiGroup)
	}

	return r
}

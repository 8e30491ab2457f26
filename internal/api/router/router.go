package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuongbtq/ganeti-eventd/internal/api/handler"
)

// SetupRouter configures and returns the Gin router for the status server
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))

	statusHandler := handler.NewStatusHandler(deps)

	r.GET("/health", statusHandler.Health)
	r.GET("/status", statusHandler.Status)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

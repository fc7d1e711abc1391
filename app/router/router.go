package router

import (
	"procgrid/app/handler"
	"procgrid/app/middleware"

	"github.com/gin-gonic/gin"
)

// Router Router
type Router struct {
	processHandler *handler.ProcessHandler
	serverHandler  *handler.ServerHandler
	eventsHandler  *handler.EventsHandler
}

// NewRouter creates a new Router
func NewRouter(processHandler *handler.ProcessHandler, serverHandler *handler.ServerHandler, eventsHandler *handler.EventsHandler) *Router {
	return &Router{
		processHandler: processHandler,
		serverHandler:  serverHandler,
		eventsHandler:  eventsHandler,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// V1 API - scheduling and registry interface
	v1 := engine.Group("/v1")
	v1.Use(middleware.AuthMiddleware())
	{
		// Process lifecycle
		v1.POST("/processes", r.processHandler.Admit)
		v1.GET("/processes", r.processHandler.List)
		v1.GET("/status/:process_id", r.processHandler.Status)
		v1.POST("/cancel/:process_id", r.processHandler.Cancel)

		// Server registry
		v1.POST("/servers", r.serverHandler.Register)
		v1.GET("/servers", r.serverHandler.List)
		v1.GET("/servers/:server_id", r.serverHandler.Get)
		v1.GET("/servers/:server_id/events", r.serverHandler.Events)

		// Live event stream
		if r.eventsHandler != nil {
			v1.GET("/events/ws", r.eventsHandler.Stream)
		}
	}
}

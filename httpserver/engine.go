// Package httpserver is the synchronous HTTP front door: one route per
// deployed function, request body in, serialized result out.
package httpserver

import (
	"github.com/gin-gonic/gin"

	"github.com/fnhost/fnhost/invoke"
)

type Engine struct {
	*Options
	*gin.Engine

	app *invoke.Engine
}

func NewEngine(app *invoke.Engine, opts ...Option) *Engine {
	options := NewOptions(opts...)
	if options.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	e := &Engine{
		Options: options,
		Engine:  gin.New(),
		app:     app,
	}

	e.Use(gin.Recovery())
	if e.CorsMode {
		e.Use(Cors())
	}

	e.InstallHandlers()
	return e
}

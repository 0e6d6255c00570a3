package sqsserver

import (
	"context"

	"github.com/fnhost/fnhost/invoke"
)

var engine *Engine

// Serve polls the configured queue until Close is called. It blocks.
func Serve(app *invoke.Engine, opts ...Option) {
	engine = NewEngine(app, opts...)
	engine.Run(context.Background())
}

func Close() {
	if engine != nil {
		engine.Stop()
	}
}

package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/fnhost/fnhost/invoke"
)

var srv *http.Server

// Serve runs the HTTP front door on addr until Close is called. It blocks.
func Serve(addr string, app *invoke.Engine, opts ...Option) error {
	srv = &http.Server{
		Addr:    addr,
		Handler: NewEngine(app, opts...),
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close drains in-flight requests and stops the server.
func Close() error {
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/fnhost/fnhost/httpserver"
	"github.com/fnhost/fnhost/invoke"
	"github.com/fnhost/fnhost/lambdaserver"
	"github.com/fnhost/fnhost/manifest"
	"github.com/fnhost/fnhost/runtime"
	jsruntime "github.com/fnhost/fnhost/runtime/js"
	nativert "github.com/fnhost/fnhost/runtime/native"
	"github.com/fnhost/fnhost/sqsserver"
)

// Environment:
//
//	FNHOST_SERVER    http (default), lambda, or sqs
//	FNHOST_ADDR      http listen address, default :8080
//	FNHOST_MANIFEST  manifest path; default searches functions.yaml
func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().
		Str("svc", "fnhost").Logger()

	manifestPath := os.Getenv("FNHOST_MANIFEST")
	if manifestPath == "" {
		p, err := manifest.FindDefaultFile()
		if err != nil {
			log.Fatal().Err(err).Msg("no function manifest")
		}
		manifestPath = p
	}
	store, err := manifest.LoadFile(manifestPath)
	if err != nil {
		log.Fatal().Err(err).Msg("manifest load failed")
	}
	log.Info().Str("manifest", manifestPath).Strs("functions", store.Names()).
		Msg("manifest loaded")

	reg := runtime.NewRegistry()
	reg.Register(jsruntime.New(jsruntime.WithLogger(log)))
	reg.Register(nativert.New())

	invokeOpts := []invoke.Option{invoke.WithLogger(log)}
	if p, err := invoke.FindDefaultConfigFile(); err == nil {
		invokeOpts = append(invokeOpts, invoke.WithConfigFile(p))
	}

	app := invoke.NewEngine(store, reg, invokeOpts, nil)

	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch serverType := os.Getenv("FNHOST_SERVER"); serverType {
	case "lambda":
		lambdaserver.Serve(app)

	case "sqs":
		go func() {
			<-ctx.Done()
			log.Info().Msg("shutting down")
			sqsserver.Close()
		}()
		sqsserver.Serve(app,
			sqsserver.WithLogger(log),
			sqsserver.WithQueueURL(os.Getenv("FNHOST_QUEUE_URL")),
		)

	case "http", "":
		addr := os.Getenv("FNHOST_ADDR")
		if addr == "" {
			addr = ":8080"
		}
		go func() {
			<-ctx.Done()
			log.Info().Msg("shutting down")
			if err := httpserver.Close(); err != nil {
				log.Error().Err(err).Msg("shutdown failed")
			}
		}()
		log.Info().Str("listen", addr).Msg("http server starting")
		if err := httpserver.Serve(addr, app,
			httpserver.WithReleaseMode(true),
			httpserver.WithLogger(log),
		); err != nil {
			log.Fatal().Err(err).Msg("http server failed")
		}

	default:
		log.Fatal().Str("server", serverType).Msg("unknown server type")
	}

	app.Stop()
	log.Info().Msg("shutdown complete")
}

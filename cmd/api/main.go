package main

import (
	"context"
	"log"

	"pixelpharm-backend/internal/bootstrap"
	"pixelpharm-backend/internal/shared/config"
	"pixelpharm-backend/internal/shared/server"
	"pixelpharm-backend/internal/shared/telemetry"
	"pixelpharm-backend/internal/shared/tracing"
)

func main() {
	cfg := config.Load()
	telemetry.Init(cfg.Env)
	defer telemetry.Sync()

	shutdown := tracing.Init(context.Background(), tracing.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: cfg.OTelServiceName,
		Environment: cfg.Env,
	})
	defer func() { _ = shutdown(context.Background()) }()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	addr := server.Addr(cfg.Port)
	telemetry.Info("api.started", map[string]any{"addr": addr, "env": cfg.Env})

	if err := app.Router.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

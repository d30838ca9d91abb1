package main

import (
	"context"

	"github.com/briefcall/marketplace/internal/config"
	"github.com/briefcall/marketplace/internal/logging"
	"github.com/briefcall/marketplace/internal/marketplace"
	"github.com/briefcall/marketplace/internal/prometheus"
	"go.uber.org/zap"
)

func main() {
	err := config.Validate()
	if err != nil {
		logging.Logger.Fatal("invalid config", zap.String("error", err.Error()))
	}

	go prometheus.Run()

	for {
		ctx, cancel := context.WithCancel(context.Background())

		app, err := marketplace.NewApp(cancel)
		if err != nil {
			logging.Logger.Fatal("failed to create marketplace app", zap.String("error", err.Error()))
		}

		err = app.Run(ctx)
		if err != nil {
			panic(err)
		}

		<-ctx.Done()

		app.HealthCheckerService.Check()

		cancel()
	}
}

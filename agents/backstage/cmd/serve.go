package main

import (
	"context"
	"errors"

	"backstage/agents/backstage"
	"backstage/agents/backstage/server"
	"backstage/shared/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCommand(deps *cliDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		Long: `Sweep expired cache entries, then serve the control API, the chat
websocket and the health and metrics endpoints. With cache.sweep_schedule set
the sweep repeats on that schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), deps)
		},
	}
}

func runServe(ctx context.Context, deps *cliDeps) error {
	a, err := newApp(ctx, deps.cfg, deps.log)
	if err != nil {
		return err
	}
	defer a.Close()

	a.connectYouTube(ctx)

	sweeps := scheduler.New(deps.cfg.Cache.SweepSchedule, backstage.NewCacheSweeper(a.cache, a.monitor), a.monitor, deps.log)
	if err := sweeps.RunOnce(ctx); err != nil {
		deps.log.WithError(err).Warn("Startup cache sweep failed")
	}

	if deps.log.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.NewRouter(server.Deps{
		Agent:          a.newAgent(),
		Settings:       a.settings,
		Monitor:        a.monitor,
		Gatherer:       a.registry,
		Log:            deps.log,
		RequestTimeout: deps.cfg.Server.RequestTimeout,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	schedDone := make(chan error, 1)
	go func() { schedDone <- sweeps.Start(ctx) }()

	serveErr := server.Run(ctx, deps.cfg.Server.Addr, router, deps.log)
	cancel()
	if err := <-schedDone; err != nil && !errors.Is(err, context.Canceled) {
		deps.log.WithError(err).Error("Scheduler failed")
	}
	return serveErr
}

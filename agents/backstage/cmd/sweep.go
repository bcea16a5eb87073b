package main

import (
	"context"
	"fmt"
	"io"

	"backstage/agents/backstage"

	"github.com/spf13/cobra"
)

func newSweepCommand(deps *cliDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired video cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), deps.cfg, deps.log)
			if err != nil {
				return err
			}
			defer a.Close()
			return runSweep(cmd.Context(), a, cmd.OutOrStdout())
		},
	}
}

func runSweep(ctx context.Context, a *app, out io.Writer) error {
	summary, err := backstage.NewCacheSweeper(a.cache, a.monitor).RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Cache sweep: %s\n", summary)
	return nil
}

// sweepAtStartup runs one sweep before a long-lived command starts. Failures
// are logged only.
func sweepAtStartup(ctx context.Context, a *app) {
	summary, err := backstage.NewCacheSweeper(a.cache, a.monitor).RunOnce(ctx)
	if err != nil {
		a.log.WithError(err).Warn("Startup cache sweep failed")
		return
	}
	a.log.WithField("summary", summary).Debug("Startup cache sweep")
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"backstage/shared/config"
	"backstage/shared/logger"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type cliDeps struct {
	cfg *config.Config
	log *logrus.Logger
}

func newRootCommand() *cobra.Command {
	deps := &cliDeps{}

	var logLevel string
	root := &cobra.Command{
		Use:   "backstage",
		Short: "Chat with the people in a YouTube video",
		Long: `backstage reads a video's transcript, works out who is speaking and lets
you talk to any of them in character, backed by OpenAI, Anthropic, Google or
DeepSeek models.

Configuration comes from config.yaml (or CONFIG_FILE), .env and the
environment.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			deps.cfg = cfg
			deps.log = logger.New(cfg.Logging.Level)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(newServeCommand(deps))
	root.AddCommand(newChatCommand(deps))
	root.AddCommand(newSweepCommand(deps))
	root.AddCommand(newModelsCommand(deps))
	root.AddCommand(newSettingsCommand(deps))
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

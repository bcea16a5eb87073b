package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"backstage/internal/models"
	"backstage/shared/settings"

	"github.com/spf13/cobra"
)

type settingsRun func(ctx context.Context, s *settings.Store, args []string, out io.Writer) error

func newSettingsCommand(deps *cliDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the saved settings",
		Long: `Saved settings override the configured seed values and are shared with
the server through the storage backend.

Examples:
  backstage settings show
  backstage settings set-key anthropic sk-ant-...
  backstage settings set-model gemini-1.5-pro
  backstage settings set-history false`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the saved settings with keys masked",
			Args:  cobra.NoArgs,
			RunE:  withSettings(deps, runSettingsShow),
		},
		&cobra.Command{
			Use:   "set-key <provider> <key>",
			Short: "Save the API key of a provider (openai, anthropic, google, deepseek, tavily)",
			Args:  cobra.ExactArgs(2),
			RunE:  withSettings(deps, runSetKey),
		},
		&cobra.Command{
			Use:   "set-model <model>",
			Short: "Select the default chat model",
			Args:  cobra.ExactArgs(1),
			RunE:  withSettings(deps, runSetModel),
		},
		&cobra.Command{
			Use:   "set-history <true|false>",
			Short: "Turn saving of chat history on or off",
			Args:  cobra.ExactArgs(1),
			RunE:  withSettings(deps, runSetHistory),
		},
		&cobra.Command{
			Use:   "set-auto-transcript <true|false>",
			Short: "Turn automatic transcript fetching on or off",
			Args:  cobra.ExactArgs(1),
			RunE:  withSettings(deps, runSetAutoTranscript),
		},
	)
	return cmd
}

func withSettings(deps *cliDeps, run settingsRun) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), deps.cfg, deps.log)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd.Context(), a.settings, args, cmd.OutOrStdout())
	}
}

func runSettingsShow(_ context.Context, s *settings.Store, _ []string, out io.Writer) error {
	snap := s.Snapshot()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SETTING\tVALUE")
	fmt.Fprintln(w, "-------\t-----")
	for _, p := range []string{
		models.ProviderOpenAI, models.ProviderAnthropic, models.ProviderGoogle,
		models.ProviderDeepSeek, models.ProviderTavily,
	} {
		fmt.Fprintf(w, "%s key\t%s\n", p, maskKey(snap.APIKeys.Get(p)))
	}
	fmt.Fprintf(w, "selected model\t%s\n", snap.SelectedModel)
	fmt.Fprintf(w, "save chat history\t%t\n", snap.SaveChatHistory)
	fmt.Fprintf(w, "auto fetch transcript\t%t\n", snap.AutoFetchTranscript)
	return w.Flush()
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 8:
		return "****"
	default:
		return "****" + key[len(key)-4:]
	}
}

func runSetKey(ctx context.Context, s *settings.Store, args []string, out io.Writer) error {
	if err := s.SetAPIKey(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved %s key\n", args[0])
	return nil
}

func runSetModel(ctx context.Context, s *settings.Store, args []string, out io.Writer) error {
	if err := s.SetSelectedModel(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(out, "Selected model: %s\n", args[0])
	return nil
}

func runSetHistory(ctx context.Context, s *settings.Store, args []string, out io.Writer) error {
	v, err := strconv.ParseBool(args[0])
	if err != nil {
		return fmt.Errorf("invalid value %q: want true or false", args[0])
	}
	if err := s.SetSaveChatHistory(ctx, v); err != nil {
		return err
	}
	fmt.Fprintf(out, "Save chat history: %t\n", v)
	return nil
}

func runSetAutoTranscript(ctx context.Context, s *settings.Store, args []string, out io.Writer) error {
	v, err := strconv.ParseBool(args[0])
	if err != nil {
		return fmt.Errorf("invalid value %q: want true or false", args[0])
	}
	if err := s.SetAutoFetchTranscript(ctx, v); err != nil {
		return err
	}
	fmt.Fprintf(out, "Auto fetch transcript: %t\n", v)
	return nil
}

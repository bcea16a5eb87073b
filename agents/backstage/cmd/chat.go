package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"backstage/internal/models"
	"backstage/shared/apperror"

	"github.com/spf13/cobra"
)

type chatOptions struct {
	model   string
	persona string
}

func newChatCommand(deps *cliDeps) *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat <videoId>",
		Short: "Chat with a speaker of a video in the terminal",
		Long: `Fetch the transcript of a video, detect its speakers and start an
interactive conversation with one of them. Type /quit to leave.

Examples:
  backstage chat dQw4w9WgXcQ
  backstage chat dQw4w9WgXcQ --persona "Jane Doe" --model claude-3-opus-20240229`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), deps.cfg, deps.log)
			if err != nil {
				return err
			}
			defer a.Close()
			a.connectYouTube(cmd.Context())
			return runChat(cmd.Context(), a, args[0], opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.model, "model", "", "model id (defaults to the selected model)")
	cmd.Flags().StringVar(&opts.persona, "persona", "", "speaker to talk to (asked interactively when empty)")
	return cmd
}

func runChat(ctx context.Context, a *app, videoID string, opts chatOptions, in io.Reader, out io.Writer) error {
	sweepAtStartup(ctx, a)

	agent := a.newAgent()
	scanner := bufio.NewScanner(in)

	err := agent.SetVideo(ctx, models.VideoMetadata{
		VideoID:     videoID,
		Title:       models.UnknownVideoTitle,
		ChannelName: models.UnknownChannelName,
	})
	if err != nil {
		return err
	}
	video, _ := agent.CurrentVideo()
	fmt.Fprintf(out, "%s (%s)\n", video.Title, video.ChannelName)

	result, err := agent.StartChat(ctx, nil, opts.model)
	if err != nil {
		return err
	}

	name := opts.persona
	if name == "" {
		name, err = choosePersona(result.Personas, scanner, out)
		if err != nil {
			return err
		}
	}

	greeting, err := agent.SelectPersona(ctx, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%s: %s\n", name, greeting)

	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" || line == "/exit" {
			return nil
		}
		if line == "" {
			continue
		}

		fmt.Fprintf(out, "%s: ", name)
		_, err := agent.Send(ctx, line, func(delta string) {
			fmt.Fprint(out, delta)
		})
		fmt.Fprintln(out)
		if err != nil {
			if apperror.Is(err, apperror.CodeInvalidArgument) {
				continue
			}
			fmt.Fprintf(out, "Sorry, I encountered an error: %s\n", err.Error())
		}
	}
}

func choosePersona(personas []models.Persona, scanner *bufio.Scanner, out io.Writer) (string, error) {
	if len(personas) == 1 {
		return personas[0].Name, nil
	}

	fmt.Fprintln(out, "Speakers:")
	for i, p := range personas {
		fmt.Fprintf(out, "  %d. %s (%s)\n", i+1, p.Name, p.Role)
	}

	for {
		fmt.Fprint(out, "Choose a speaker: ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", fmt.Errorf("no speaker chosen")
		}
		n, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err == nil && n >= 1 && n <= len(personas) {
			return personas[n-1].Name, nil
		}
		fmt.Fprintf(out, "Enter a number between 1 and %d.\n", len(personas))
	}
}

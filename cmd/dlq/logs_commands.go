package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dlq/internal/events"
	"dlq/internal/ipc"
	"dlq/internal/logs"
)

const logFollowWait = 5 * time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				resp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: lines})
				if err != nil {
					return err
				}
				printLines(out, resp.Lines)
				if !follow {
					return nil
				}
				offset := resp.Offset
				for {
					if err := cmd.Context().Err(); err != nil {
						return nil
					}
					resp, err := client.LogTail(ipc.LogTailRequest{
						Offset:     offset,
						Follow:     true,
						WaitMillis: int(logFollowWait / time.Millisecond),
					})
					if err != nil {
						return err
					}
					printLines(out, resp.Lines)
					offset = resp.Offset
				}
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	return cmd
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream scheduler events from the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := logs.NewEventClient(cfg.Paths.APIBind, cfg.Paths.APIToken)
			if logs.IsAPIUnavailable(err) {
				return errors.New("watch requires paths.api_bind to be set in the configuration")
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			err = client.Follow(cmd.Context(), func(evt events.Event) error {
				if jsonOutput {
					return writeJSON(cmd, evt)
				}
				if line := formatEvent(evt); line != "" {
					fmt.Fprintln(out, line)
				}
				return nil
			})
			switch {
			case errors.Is(err, context.Canceled):
				return nil
			case logs.IsAPIUnavailable(err):
				return fmt.Errorf("connect to event API at %s: %w", cfg.Paths.APIBind, err)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output events as JSON lines")
	return cmd
}

func printLines(out io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
}

func formatEvent(evt events.Event) string {
	stamp := evt.Time.Local().Format("15:04:05")
	var detail string
	switch evt.Type {
	case events.TypeTreeChanged:
		if evt.Change == nil {
			return ""
		}
		detail = fmt.Sprintf("%s %s", evt.Change.Type, evt.Change.NodeID)
		if evt.Change.Aspect != "" {
			detail += " (" + evt.Change.Aspect + ")"
		}
	case events.TypeStatusChanged:
		detail = fmt.Sprintf("%s %s", evt.Name, statusLabel(evt.Status))
	case events.TypeInteraction:
		kind := "input"
		if evt.Interaction != nil {
			kind = string(evt.Interaction.Kind)
		}
		detail = fmt.Sprintf("%s waiting for %s", evt.Name, kind)
	case events.TypeActiveCount:
		detail = fmt.Sprintf("%d active", evt.Count)
	case events.TypeTotalSpeed:
		detail = formatSpeed(evt.Speed)
	case events.TypeTransferCompleted:
		detail = fmt.Sprintf("%s -> %s", evt.Name, evt.Path)
	case events.TypeTransferFailed:
		detail = fmt.Sprintf("%s: %s", evt.Name, evt.Error)
	case events.TypeQueueDrained:
		detail = fmt.Sprintf("%d completed, %d failed in %s", evt.Completed, evt.Failed, evt.Duration.Round(time.Second))
	default:
		detail = strings.TrimSpace(evt.Name)
	}
	return fmt.Sprintf("%s %-20s %s", stamp, evt.Type, detail)
}

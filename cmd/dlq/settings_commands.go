package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dlq/internal/ipc"
)

func newLimitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "limit [n]",
		Short: "Show or change how many transfers run at once",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					status, err := client.Status()
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Concurrency limit: %d\n", status.Workflow.ConcurrencyLimit)
					return nil
				}
				limit, err := strconv.Atoi(strings.TrimSpace(args[0]))
				if err != nil {
					return fmt.Errorf("invalid limit %q", args[0])
				}
				resp, err := client.SetConcurrency(limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Concurrency limit set to %d\n", resp.Limit)
				return nil
			})
		},
	}
}

func newNextActionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "next-action [continue|pause|quit]",
		Short:     "Show or change what happens after each transfer finishes",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"continue", "pause", "quit"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					status, err := client.Status()
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Next action: %s\n", status.Workflow.NextAction)
					return nil
				}
				action := strings.ToLower(strings.TrimSpace(args[0]))
				if _, err := client.SetNextAction(action); err != nil {
					return err
				}
				fmt.Fprintf(out, "Next action set to %s\n", action)
				return nil
			})
		},
	}
}

package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"dlq/internal/ipc"
	"dlq/internal/queue"
)

func newInteractionsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "interactions",
		Short: "List transfers waiting for a captcha or settings response",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Interactions()
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Interactions)
				}
				out := cmd.OutOrStdout()
				if len(resp.Interactions) == 0 {
					fmt.Fprintln(out, "Nothing is waiting for input")
					return nil
				}
				rows := make([][]string, 0, len(resp.Interactions))
				for _, pending := range resp.Interactions {
					rows = append(rows, []string{
						pending.TransferID,
						pending.Name,
						string(pending.Interaction.Kind),
						pending.Interaction.PluginID,
						formatDeadline(pending.Interaction.Deadline),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]column{left("ID"), wide("Name", 40), left("Kind"), left("Plugin"), left("Expires")},
					rows,
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newCaptchaCommand(ctx *commandContext) *cobra.Command {
	var savePath string
	cmd := &cobra.Command{
		Use:   "captcha <id> [response]",
		Short: "Show or answer a pending captcha",
		Long: "Without a response, print the captcha details (and save the image with --save).\n" +
			"With a response, submit it and resume the transfer.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				if len(args) == 2 {
					if _, err := client.SubmitCaptcha(id, args[1]); err != nil {
						return err
					}
					fmt.Fprintf(out, "Captcha response submitted for %s\n", id)
					return nil
				}
				interaction, err := pendingInteraction(client, id, queue.InteractionCaptcha)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Plugin:   %s\n", interaction.PluginID)
				fmt.Fprintf(out, "Type:     %s\n", interaction.CaptchaType)
				fmt.Fprintf(out, "Expires:  %s\n", formatDeadline(interaction.Deadline))
				if strings.TrimSpace(savePath) == "" {
					return nil
				}
				data, err := base64.StdEncoding.DecodeString(interaction.Data)
				if err != nil {
					return fmt.Errorf("decode captcha data: %w", err)
				}
				if err := os.WriteFile(savePath, data, 0o644); err != nil {
					return fmt.Errorf("write captcha: %w", err)
				}
				fmt.Fprintf(out, "Saved captcha to %s\n", savePath)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&savePath, "save", "", "Write the decoded captcha data to this file")
	return cmd
}

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "settings <id> [key=value]...",
		Short: "Show or answer a pending settings request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				if len(args) > 1 {
					values := make(map[string]any, len(args)-1)
					for _, pair := range args[1:] {
						key, value, ok := strings.Cut(pair, "=")
						if !ok || strings.TrimSpace(key) == "" {
							return fmt.Errorf("invalid setting %q (expected key=value)", pair)
						}
						values[strings.TrimSpace(key)] = value
					}
					if _, err := client.SubmitSettings(id, values); err != nil {
						return err
					}
					fmt.Fprintf(out, "Settings submitted for %s\n", id)
					return nil
				}
				interaction, err := pendingInteraction(client, id, queue.InteractionSettings)
				if err != nil {
					return err
				}
				if interaction.Title != "" {
					fmt.Fprintln(out, interaction.Title)
				}
				rows := make([][]string, 0, len(interaction.Fields))
				for _, field := range interaction.Fields {
					value := ""
					if field.Value != nil {
						value = fmt.Sprint(field.Value)
					}
					rows = append(rows, []string{field.Key, field.Label, field.Type, value, strings.Join(field.Options, ", ")})
				}
				fmt.Fprintln(out, renderTable(
					[]column{left("Key"), wide("Label", 30), left("Type"), left("Value"), wide("Options", 40)},
					rows,
				))
				return nil
			})
		},
	}
}

func pendingInteraction(client *ipc.Client, id string, kind queue.InteractionKind) (*queue.Interaction, error) {
	resp, err := client.Describe(id, false)
	if err != nil {
		return nil, err
	}
	interaction := resp.Transfer.Interaction
	if interaction == nil || interaction.Kind != kind {
		return nil, fmt.Errorf("%s is not waiting for a %s response", id, kind)
	}
	return interaction, nil
}

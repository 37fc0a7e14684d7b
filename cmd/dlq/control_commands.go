package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dlq/internal/ipc"
	"dlq/internal/queue"
)

func newControlCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newBatchCommand(ctx, "queue", "Queue packages or transfers for download", "Queued",
			func(c *ipc.Client) error { _, err := c.QueueAll(); return err },
			func(c *ipc.Client, ids []string) (*ipc.BatchResponse, error) { return c.Queue(ids) }),
		newBatchCommand(ctx, "pause", "Pause packages or transfers", "Paused",
			func(c *ipc.Client) error { _, err := c.PauseAll(); return err },
			func(c *ipc.Client, ids []string) (*ipc.BatchResponse, error) { return c.Pause(ids) }),
		newBatchCommand(ctx, "reload", "Restart packages or transfers from scratch", "Reloaded",
			nil,
			func(c *ipc.Client, ids []string) (*ipc.BatchResponse, error) { return c.Reload(ids) }),
		newCancelCommand(ctx),
	}
}

func newBatchCommand(
	ctx *commandContext,
	use, short, verb string,
	all func(*ipc.Client) error,
	some func(*ipc.Client, []string) (*ipc.BatchResponse, error),
) *cobra.Command {
	var allFlag bool
	cmd := &cobra.Command{
		Use:   use + " <id>...",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if allFlag && len(args) > 0 {
				return errors.New("pass IDs or --all, not both")
			}
			if !allFlag && len(args) == 0 {
				return errors.New("at least one ID is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				if allFlag {
					if err := all(client); err != nil {
						return err
					}
					fmt.Fprintf(out, "%s all transfers\n", verb)
					return nil
				}
				resp, err := some(client, args)
				if err != nil {
					return err
				}
				return reportBatch(out, verb, resp)
			})
		},
	}
	if all != nil {
		cmd.Flags().BoolVar(&allFlag, "all", false, "Apply to every transfer")
	}
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	var deleteFiles bool
	cmd := &cobra.Command{
		Use:     "cancel <id>...",
		Aliases: []string{"rm"},
		Short:   "Cancel and remove packages or transfers",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Cancel(args, deleteFiles)
				if err != nil {
					return err
				}
				return reportBatch(cmd.OutOrStdout(), "Canceled", resp)
			})
		},
	}
	cmd.Flags().BoolVar(&deleteFiles, "delete-files", false, "Also delete downloaded files")
	return cmd
}

func reportBatch(out io.Writer, verb string, resp *ipc.BatchResponse) error {
	fmt.Fprintf(out, "%s %d of %d\n", verb, resp.Updated, resp.Updated+len(resp.Failed))
	if len(resp.Failed) == 0 {
		return nil
	}
	ids := make([]string, 0, len(resp.Failed))
	for id := range resp.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(out, "  %s: %s\n", id, resp.Failed[id])
	}
	if resp.Updated == 0 {
		return fmt.Errorf("%s nothing", strings.ToLower(verb))
	}
	return nil
}

func newMoveCommand(ctx *commandContext) *cobra.Command {
	var parent string
	cmd := &cobra.Command{
		Use:   "move <id> <index>",
		Short: "Move a package or transfer to a new position",
		Long: "Move a package or transfer to index within its parent. Pass --parent to move a\n" +
			"transfer into another package. Use index -1 to append.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				target := strings.TrimSpace(parent)
				if target == "" {
					resp, err := client.Describe(args[0], false)
					if err != nil {
						return err
					}
					target = resp.Transfer.ParentID
				}
				resp, err := client.Move(ipc.MoveRequest{ID: args[0], Parent: target, Index: index})
				if err != nil {
					return err
				}
				if !resp.OK {
					return fmt.Errorf("cannot move %s there", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Moved %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "Destination package ID")
	return cmd
}

func newSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <id> <key=value>...",
		Short: "Change properties of a package or transfer",
		Long: "Change writable properties. Packages accept name, category, create_subfolder,\n" +
			"and priority. Transfers also accept file_name, url, request_method,\n" +
			"request_headers, post_data, custom_command, custom_command_override, and use_plugins.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.SetProperties(args[0], values); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", args[0])
				return nil
			})
		},
	}
}

// parseAssignments turns key=value pairs into typed property values.
func parseAssignments(pairs []string) (map[string]any, error) {
	values := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q (expected key=value)", pair)
		}
		switch key {
		case queue.PropCreateSubfolder, queue.PropCustomCommandOverride, queue.PropUsePlugins:
			b, err := strconv.ParseBool(strings.TrimSpace(raw))
			if err != nil {
				return nil, fmt.Errorf("%s must be true or false", key)
			}
			values[key] = b
		case queue.PropRequestHeaders:
			values[key] = strings.ReplaceAll(raw, `\n`, "\n")
		default:
			values[key] = raw
		}
	}
	return values, nil
}

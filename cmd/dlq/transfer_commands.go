package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dlq/internal/ipc"
	"dlq/internal/queue"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var (
		packageName   string
		category      string
		priorityFlag  string
		paused        bool
		subfolder     bool
		noSubfolder   bool
		customCommand string
		override      bool
		method        string
		headers       []string
		postData      string
	)

	cmd := &cobra.Command{
		Use:   "add <url>...",
		Short: "Add URLs to the download queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			priority, ok := queue.ParsePriority(priorityFlag)
			if !ok {
				return fmt.Errorf("invalid priority %q (use highest, high, normal, low, lowest or 0-4)", priorityFlag)
			}
			req := ipc.AppendRequest{
				URLs:            args,
				PackageName:     strings.TrimSpace(packageName),
				Priority:        priority,
				CustomCommand:   strings.TrimSpace(customCommand),
				OverrideCommand: override,
				Method:          strings.ToUpper(strings.TrimSpace(method)),
				PostData:        postData,
			}
			if cmd.Flags().Changed("category") {
				value := strings.TrimSpace(category)
				req.Category = &value
			}
			if subfolder && noSubfolder {
				return errors.New("--subfolder and --no-subfolder are mutually exclusive")
			}
			if subfolder || noSubfolder {
				value := subfolder
				req.CreateSubfolder = &value
			}
			if cmd.Flags().Changed("paused") {
				start := !paused
				req.StartAutomatically = &start
			}
			if len(headers) > 0 {
				parsed, ok := queue.ParseHeaderLines(strings.Join(headers, "\n"))
				if !ok {
					return errors.New("headers must use the form \"Name: value\"")
				}
				req.Headers = parsed
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Append(req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(resp.IDs) == 1 {
					fmt.Fprintf(out, "Added transfer %s\n", resp.IDs[0])
					return nil
				}
				fmt.Fprintf(out, "Added %d transfers\n", len(resp.IDs))
				for _, id := range resp.IDs {
					fmt.Fprintf(out, "  %s\n", id)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&packageName, "package", "", "Put every URL into one package with this name")
	cmd.Flags().StringVar(&category, "category", "", "Category for the new transfers")
	cmd.Flags().StringVar(&priorityFlag, "priority", "normal", "Priority (highest, high, normal, low, lowest)")
	cmd.Flags().BoolVar(&paused, "paused", false, "Add transfers paused instead of queued")
	cmd.Flags().BoolVar(&subfolder, "subfolder", false, "Download into a per-package subfolder")
	cmd.Flags().BoolVar(&noSubfolder, "no-subfolder", false, "Download directly into the category folder")
	cmd.Flags().StringVar(&customCommand, "custom-command", "", "Command to run when each transfer completes")
	cmd.Flags().BoolVar(&override, "override-command", false, "Run the custom command instead of the configured one")
	cmd.Flags().StringVar(&method, "method", "", "HTTP request method (GET or POST)")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Request header as \"Name: value\" (repeatable)")
	cmd.Flags().StringVar(&postData, "data", "", "POST body")
	return cmd
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "check <url>...",
		Short: "Resolve URLs through the plugins without adding them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CheckURLs(args)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Results)
				}
				rows := make([][]string, 0, len(resp.Results))
				for _, result := range resp.Results {
					pluginID := result.PluginID
					if pluginID == "" {
						pluginID = "-"
					}
					rows = append(rows, []string{result.FileName, formatBytes(result.Size), pluginID, result.URL})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]column{wide("File", 40), right("Size"), left("Plugin"), wide("URL", 60)},
					rows,
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var (
		offset     int
		limit      int
		flat       bool
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List packages and their transfers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.List(ipc.ListRequest{Offset: offset, Limit: limit, Children: !flat})
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Transfers)
				}
				out := cmd.OutOrStdout()
				if len(resp.Transfers) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprintln(out, renderRecordTable(resp.Transfers))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many packages")
	cmd.Flags().IntVar(&limit, "limit", -1, "Show at most this many packages (-1 for all)")
	cmd.Flags().BoolVar(&flat, "packages-only", false, "Hide the transfers inside each package")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one package or transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Describe(strings.TrimSpace(args[0]), true)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Transfer)
				}
				printRecordDetails(cmd.OutOrStdout(), resp.Transfer)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var (
		match      string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "search <property> <value>",
		Short: "Find packages and transfers by property",
		Long: "Find packages and transfers whose property matches value.\n\n" +
			"Properties: id, name, status, priority, category, url, file_name, download_path,\n" +
			"plugin_id, error_string, request_method, suffix.\n" +
			"Match modes: exact (default), contains, startswith, endswith, wildcard, regexp.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Search(ipc.SearchRequest{Property: args[0], Value: args[1], Match: match})
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Transfers)
				}
				out := cmd.OutOrStdout()
				if len(resp.Transfers) == 0 {
					fmt.Fprintln(out, "No matches")
					return nil
				}
				fmt.Fprintln(out, renderRecordTable(resp.Transfers))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&match, "match", "m", "", "Match mode")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func renderRecordTable(records []queue.Record) string {
	rows := make([][]string, 0, len(records))
	var add func(rec queue.Record, indent string)
	add = func(rec queue.Record, indent string) {
		rows = append(rows, []string{
			indent + rec.ID,
			indent + displayName(rec),
			statusLabel(rec.Status),
			rec.Priority.String(),
			formatProgress(rec),
			formatBytes(rec.Size),
			formatSpeed(rec.Speed),
		})
		for _, child := range rec.Children {
			add(child, indent+"  ")
		}
	}
	for _, rec := range records {
		add(rec, "")
	}
	return renderTable(
		[]column{left("ID"), wide("Name", 48), left("Status"), left("Priority"), right("Progress"), right("Size"), right("Speed")},
		rows,
	)
}

func printRecordDetails(out io.Writer, rec queue.Record) {
	field := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		fmt.Fprintf(out, "%-16s %s\n", label+":", value)
	}
	field("ID", rec.ID)
	field("Kind", kindLabel(rec))
	field("Name", rec.Name)
	field("Status", statusLabel(rec.Status))
	field("Priority", rec.Priority.String())
	field("Category", rec.Category)
	field("Subfolder", yesNo(rec.CreateSubfolder))
	field("Progress", formatProgress(rec))
	if rec.IsPackage() {
		field("Suffix", rec.Suffix)
	} else {
		field("URL", rec.URL)
		field("Method", rec.RequestMethod)
		field("File", rec.FileName)
		field("Path", rec.DownloadPath)
		field("Plugin", rec.PluginID)
		field("Size", formatBytes(rec.Size))
		field("Transferred", formatBytes(rec.BytesTransferred))
		field("Speed", formatSpeed(rec.Speed))
		field("Command", rec.CustomCommand)
	}
	if rec.WaitUntil != nil {
		field("Retry", formatDeadline(*rec.WaitUntil))
	}
	field("Error", rec.ErrorString)
	if rec.Interaction != nil {
		field("Awaiting", fmt.Sprintf("%s from %s (expires %s)",
			rec.Interaction.Kind, rec.Interaction.PluginID, formatDeadline(rec.Interaction.Deadline)))
	}
	if len(rec.Children) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderRecordTable(rec.Children))
	}
}

func parseIndex(value string) (int, error) {
	index, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", value)
	}
	return index, nil
}

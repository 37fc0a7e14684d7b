package engine

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"dlq/internal/services"
)

const commandTimeout = 10 * time.Minute

// ExpandCommand substitutes the shell-quoted final path for %f.
func ExpandCommand(command, finalPath string) string {
	return strings.ReplaceAll(command, "%f", shellQuote(finalPath))
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// runCommand runs command through sh. It outlives cancellation of ctx; only
// the timeout bounds it.
func runCommand(ctx context.Context, command, finalPath string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commandTimeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", ExpandCommand(command, finalPath))
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return services.Wrap(services.ErrExternalTool, "engine", "custom command", msg, err)
	}
	return nil
}

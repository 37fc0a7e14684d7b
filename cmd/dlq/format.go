package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"dlq/internal/queue"
)

var titleCaser = cases.Title(language.Und)

// statusLabel renders "awaiting_captcha_response" as "Awaiting Captcha Response".
func statusLabel(status queue.Status) string {
	raw := strings.TrimSpace(string(status))
	if raw == "" {
		return "Unknown"
	}
	return titleCaser.String(strings.ReplaceAll(raw, "_", " "))
}

func formatBytes(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

func formatSpeed(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n)) + "/s"
}

func formatProgress(rec queue.Record) string {
	if rec.Size <= 0 && rec.Progress == 0 {
		return "-"
	}
	return fmt.Sprintf("%d%%", rec.Progress)
}

func formatDeadline(deadline time.Time) string {
	if deadline.IsZero() {
		return "-"
	}
	return humanize.Time(deadline)
}

func kindLabel(rec queue.Record) string {
	if rec.IsPackage() {
		return "package"
	}
	return "transfer"
}

func displayName(rec queue.Record) string {
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		name = rec.FileName
	}
	if name == "" {
		name = rec.URL
	}
	return name
}

func statusLabelString(status string) string {
	return statusLabel(queue.Status(status))
}

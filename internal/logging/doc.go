// Package logging assembles structured slog loggers and formatting helpers used
// across the dlq daemon and CLI.
//
// It owns the console and JSON handlers, the level and output plumbing, and the
// context helpers that tag log lines with transfer IDs and correlation IDs. A
// no-op logger is provided for tests and for wiring code that must not fail.
//
// Prefer these constructors over hand-rolled slog setup so every component emits
// records with the same keys.
package logging

// Package main hosts the dlq CLI entrypoint and command graph.
//
// Every queue command is a thin IPC call against dlqd over its unix socket.
// The command context resolves configuration and the socket path once per
// invocation; output is rendered as go-pretty tables or, with --json, as the
// raw records the daemon returns. `dlq daemon run` executes the daemon in the
// foreground and is what `dlq daemon start` launches in the background.
package main

// Package daemon coordinates the long-running dlqd process.
//
// It wires configuration, snapshot storage, the workflow manager, and the
// event hub into a single lifecycle with flock-based locking to prevent
// multiple instances. Start restores the persisted transfer tree before any
// command is accepted; Stop persists it again through the manager.
//
// The HTTP API lives here too: it is a thin JSON mapping of workflow.Manager
// commands plus a server-sent event stream of hub events. Keep scheduling
// logic in the workflow package; the daemon only handles startup, shutdown,
// and transport.
package daemon

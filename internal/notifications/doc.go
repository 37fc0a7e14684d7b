// Package notifications delivers queue events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Per-event toggles in the [notifications] section suppress the
// events the operator does not want pushed.
//
// Forward bridges the events hub to a Service; the daemon runs it as one of
// its supervised loops.
package notifications

// Package logs lets the CLI read what the daemon is doing: Tail pages
// through dlqd.log by byte offset, and EventClient follows the HTTP API's
// server-sent event feed.
//
// Tail accepts a negative offset to mean "the last N lines" and, in follow
// mode, polls until new lines arrive or the wait expires. Callers carry the
// returned offset into the next call.
package logs

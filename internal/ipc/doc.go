// Package ipc exposes the daemon over JSON-RPC on a Unix domain socket and
// ships the matching client used by the dlq CLI.
//
// Every download-session command has an RPC here. Commands that take several
// IDs report per-ID failures in BatchResponse instead of failing the call.
// Errors cross the wire as strings, so clients match on message text only
// when they must.
package ipc

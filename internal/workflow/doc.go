// Package workflow drives the transfer tree: admission, status side effects,
// plugin resolution, engine jobs, and persistence.
//
// The Manager owns the queue.Tree and every piece of scheduler state from a
// single goroutine. Public commands are closures handed to that goroutine and
// awaited; engine reports, plugin results, and timers post closures without
// waiting. Each activation bumps the transfer's Attempt counter and every async
// callback carries the attempt it was issued for, so results that arrive after
// a pause, cancel, or restart are dropped instead of applied.
//
// Admission walks priority bands from Highest to Lowest and, within a band, the
// tree order. Lowering the concurrency limit pauses active transfers from the
// opposite end. Entering Queued arms a coalescing timer; completions and
// failures apply the next-action policy (continue, pause, or quit).
//
// Extend the status machine in setStatus; it is the only place transitions
// trigger side effects.
package workflow

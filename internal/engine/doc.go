// Package engine moves bytes for a resolved transfer.
//
// Engine.Start returns immediately; the job runs on its own goroutine and
// reports back through a Reporter. Every job ends with exactly one of
// Completed, Failed, or Stopped. Canceling the job context stops the job.
//
// HTTP is the shipped implementation: it resumes partial files with Range
// requests, shares one bandwidth limiter across jobs, moves the finished file
// to its final directory, and runs the configured custom command.
package engine

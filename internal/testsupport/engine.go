package testsupport

import (
	"context"
	"sync"
	"testing"
	"time"

	"dlq/internal/engine"
)

// FakeJob is one job handed to a FakeEngine. Its report methods deliver at
// most one terminal report, like the real engine.
type FakeJob struct {
	Job      engine.Job
	Ctx      context.Context
	Reporter engine.Reporter

	once sync.Once
}

// Start reports that bytes are flowing.
func (j *FakeJob) Start() { j.Reporter.Started() }

// Progress reports a progress sample.
func (j *FakeJob) Progress(bytesTransferred, size, speed int64) {
	j.Reporter.Progress(bytesTransferred, size, speed)
}

// Complete reports success with finalPath.
func (j *FakeJob) Complete(finalPath string) {
	j.once.Do(func() { j.Reporter.Completed(finalPath) })
}

// Fail reports err.
func (j *FakeJob) Fail(err error) {
	j.once.Do(func() { j.Reporter.Failed(err) })
}

// Stop reports that the job ended without finishing.
func (j *FakeJob) Stop() {
	j.once.Do(j.Reporter.Stopped)
}

// FakeEngine records jobs instead of transferring anything. With AutoStop
// set, a job reports Stopped as soon as its context is canceled.
type FakeEngine struct {
	AutoStop bool

	mu      sync.Mutex
	jobs    []*FakeJob
	started chan *FakeJob
}

// NewFakeEngine returns an engine that stops jobs on cancellation.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{AutoStop: true, started: make(chan *FakeJob, 128)}
}

// Start implements engine.Engine.
func (e *FakeEngine) Start(ctx context.Context, job engine.Job, reporter engine.Reporter) {
	fj := &FakeJob{Job: job, Ctx: ctx, Reporter: reporter}
	e.mu.Lock()
	e.jobs = append(e.jobs, fj)
	autoStop := e.AutoStop
	e.mu.Unlock()
	if autoStop {
		go func() {
			<-ctx.Done()
			fj.Stop()
		}()
	}
	select {
	case e.started <- fj:
	default:
	}
}

// Jobs returns every job started so far, oldest first.
func (e *FakeEngine) Jobs() []*FakeJob {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*FakeJob, len(e.jobs))
	copy(out, e.jobs)
	return out
}

// Latest returns the newest job for transferID, or nil.
func (e *FakeEngine) Latest(transferID string) *FakeJob {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.jobs) - 1; i >= 0; i-- {
		if e.jobs[i].Job.TransferID == transferID {
			return e.jobs[i]
		}
	}
	return nil
}

// Next waits for the next started job.
func (e *FakeEngine) Next(t testing.TB) *FakeJob {
	t.Helper()
	select {
	case job := <-e.started:
		return job
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for an engine job")
		return nil
	}
}

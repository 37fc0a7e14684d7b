package engine

import "context"

// Job describes one transfer attempt.
type Job struct {
	TransferID string
	URL        string
	Method     string
	Headers    map[string]string
	PostData   string
	// DownloadPath is the partial file. It is kept when the job stops so a
	// later attempt can resume.
	DownloadPath string
	FinalDir     string
	FileName     string
	// CustomCommand runs after the move; %f is replaced with the final path.
	CustomCommand string
}

// Reporter receives job lifecycle reports. Calls arrive from the job's
// goroutine, in order.
type Reporter interface {
	Started()
	Progress(bytesTransferred, size, speed int64)
	Completed(finalPath string)
	Failed(err error)
	Stopped()
}

// Engine starts jobs.
type Engine interface {
	Start(ctx context.Context, job Job, reporter Reporter)
}

package dashboard

import (
	"sync"
	"time"

	apperrors "nse-backtester/internal/errors"
)

// JobState is the lifecycle state of the refresh job.
type JobState string

const (
	JobIdle    JobState = "idle"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobError   JobState = "error"
)

// JobStatus is a snapshot of the refresh job.
type JobStatus struct {
	Status     JobState   `json:"status"`
	Message    string     `json:"message"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

// maxJobMessage bounds error text shown in the UI, in characters.
const maxJobMessage = 300

// Job tracks the single background refresh. Begin admits one run at a time;
// after that only the goroutine that won Begin calls Progress and Finish.
type Job struct {
	mu       sync.Mutex
	status   JobStatus
	onChange func(JobStatus)
	now      func() time.Time
}

// NewJob returns an idle job. onChange, if set, receives every new snapshot.
func NewJob(onChange func(JobStatus)) *Job {
	return &Job{
		status:   JobStatus{Status: JobIdle},
		onChange: onChange,
		now:      time.Now,
	}
}

// Begin marks the job running, or returns ErrRefreshInProgress.
func (j *Job) Begin(message string) error {
	j.mu.Lock()
	if j.status.Status == JobRunning {
		j.mu.Unlock()
		return apperrors.ErrRefreshInProgress
	}
	started := j.now()
	j.status = JobStatus{Status: JobRunning, Message: message, StartedAt: &started}
	snap := j.status
	j.mu.Unlock()

	j.notify(snap)
	return nil
}

// Progress updates the message of a running job.
func (j *Job) Progress(message string) {
	j.mu.Lock()
	if j.status.Status != JobRunning {
		j.mu.Unlock()
		return
	}
	j.status.Message = message
	snap := j.status
	j.mu.Unlock()

	j.notify(snap)
}

// Finish ends a running job, as done when err is nil and as error otherwise.
func (j *Job) Finish(message string, err error) {
	j.mu.Lock()
	if j.status.Status != JobRunning {
		j.mu.Unlock()
		return
	}
	finished := j.now()
	j.status.FinishedAt = &finished
	if err != nil {
		j.status.Status = JobError
		message = err.Error()
		if r := []rune(message); len(r) > maxJobMessage {
			message = string(r[:maxJobMessage])
		}
	} else {
		j.status.Status = JobDone
	}
	j.status.Message = message
	snap := j.status
	j.mu.Unlock()

	j.notify(snap)
}

// Status returns the current snapshot.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) notify(s JobStatus) {
	if j.onChange != nil {
		j.onChange(s)
	}
}

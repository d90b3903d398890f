// Package jobs implements the asynchronous job protocol shared by the tile
// export and geoprocessing endpoints: submit an operation, receive a job id,
// then poll the job's status resource until it reaches a terminal status.
//
// The poll policy mirrors the vendor contract: a fixed interval between
// polls (5 seconds by default), no backoff, and no attempt cap. Callers
// bound the wait through the context.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/geoportal/portal"
)

// Status is a job state as reported by the server.
type Status string

// The vendor-owned job status vocabulary.
const (
	StatusNew        Status = "esriJobNew"
	StatusSubmitted  Status = "esriJobSubmitted"
	StatusWaiting    Status = "esriJobWaiting"
	StatusExecuting  Status = "esriJobExecuting"
	StatusSucceeded  Status = "esriJobSucceeded"
	StatusFailed     Status = "esriJobFailed"
	StatusCancelling Status = "esriJobCancelling"
	StatusCancelled  Status = "esriJobCancelled"
	StatusTimedOut   Status = "esriJobTimedOut"
)

// Failed reports whether the status is in the terminal failure set.
func (s Status) Failed() bool {
	switch s {
	case StatusFailed, StatusCancelling, StatusCancelled, StatusTimedOut:
		return true
	}
	return false
}

// Terminal reports whether no further state transition can occur.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s.Failed()
}

// Message is one server-side status message attached to a job.
type Message struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Info is a job status payload. Results holds the raw results mapping; it is
// returned unchanged on success and decoded further by the operation
// wrappers.
type Info struct {
	JobID    string
	Status   Status
	Messages []Message
	Results  map[string]json.RawMessage
}

// UnmarshalJSON accepts both spellings of the status field: map service jobs
// report "status", geoprocessing jobs report "jobStatus".
func (i *Info) UnmarshalJSON(data []byte) error {
	var aux struct {
		JobID     string                     `json:"jobId"`
		Status    Status                     `json:"status"`
		JobStatus Status                     `json:"jobStatus"`
		Messages  []Message                  `json:"messages"`
		Results   map[string]json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	i.JobID = aux.JobID
	i.Status = aux.Status
	if i.Status == "" {
		i.Status = aux.JobStatus
	}
	i.Messages = aux.Messages
	i.Results = aux.Results
	return nil
}

// ResultValue decodes the "value" of a named entry in the results mapping.
func (i *Info) ResultValue(name string, out any) error {
	raw, ok := i.Results[name]
	if !ok {
		return fmt.Errorf("job %s has no result named %q", i.JobID, name)
	}
	var entry struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return fmt.Errorf("failed to decode result %q of job %s: %w", name, i.JobID, err)
	}
	if entry.Value == nil {
		return fmt.Errorf("result %q of job %s carries no value", name, i.JobID)
	}
	if err := json.Unmarshal(entry.Value, out); err != nil {
		return fmt.Errorf("failed to decode result %q of job %s: %w", name, i.JobID, err)
	}
	return nil
}

// FailedError reports a job that reached a terminal failure status. It
// carries the server's message list as the error detail.
type FailedError struct {
	JobID    string
	Status   Status
	Messages []Message
}

func (e *FailedError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("job %s failed with status %s", e.JobID, e.Status)
	}
	return fmt.Sprintf("job %s failed with status %s: %s", e.JobID, e.Status, e.MessageText())
}

// MessageText concatenates the server message descriptions.
func (e *FailedError) MessageText() string {
	parts := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		parts = append(parts, m.Description)
	}
	return strings.Join(parts, "; ")
}

// ErrNoStatus reports a job response that lacks a status field entirely.
type ErrNoStatus struct {
	JobID string
}

func (e *ErrNoStatus) Error() string {
	return fmt.Sprintf("job %s response carries no status", e.JobID)
}

// poster is the slice of portal.Client the poller needs.
type poster interface {
	Post(ctx context.Context, rawURL string, params portal.Params, out any) error
}

// DefaultInterval is the fixed delay between status polls.
const DefaultInterval = 5 * time.Second

// Job is a handle to a server-side asynchronous task.
type Job struct {
	ID        string
	StatusURL string

	client   poster
	interval time.Duration
	clock    clockwork.Clock
}

// Option configures a Job handle.
type Option func(*Job)

// WithInterval overrides the fixed poll interval.
func WithInterval(d time.Duration) Option {
	return func(j *Job) { j.interval = d }
}

// WithClock injects the clock, used by tests.
func WithClock(clock clockwork.Clock) Option {
	return func(j *Job) { j.clock = clock }
}

// New creates a handle for the job with the given id, polled at statusURL.
func New(client poster, statusURL, id string, opts ...Option) *Job {
	j := &Job{
		ID:        id,
		StatusURL: statusURL,
		client:    client,
		interval:  DefaultInterval,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Refresh fetches the job's current status payload once.
func (j *Job) Refresh(ctx context.Context) (*Info, error) {
	var info Info
	if err := j.client.Post(ctx, j.StatusURL, portal.NewParams(), &info); err != nil {
		return nil, fmt.Errorf("failed to fetch status of job %s: %w", j.ID, err)
	}
	if info.JobID == "" {
		info.JobID = j.ID
	}
	if info.Status == "" {
		return nil, &ErrNoStatus{JobID: j.ID}
	}
	portal.JobPollsTotal.WithLabelValues(string(info.Status)).Inc()
	return &info, nil
}

// Wait polls the status resource on the fixed interval until the job reaches
// a terminal status. On success it returns the final payload with the
// results mapping unchanged; any terminal failure status becomes a
// *FailedError carrying the server's message list. The context bounds the
// wait.
func (j *Job) Wait(ctx context.Context) (*Info, error) {
	for {
		info, err := j.Refresh(ctx)
		if err != nil {
			return nil, err
		}

		switch {
		case info.Status == StatusSucceeded:
			portal.JobsCompletedTotal.WithLabelValues(string(info.Status)).Inc()
			return info, nil
		case info.Status.Failed():
			portal.JobsCompletedTotal.WithLabelValues(string(info.Status)).Inc()
			return nil, &FailedError{JobID: info.JobID, Status: info.Status, Messages: info.Messages}
		}

		select {
		case <-j.clock.After(j.interval):
		case <-ctx.Done():
			return nil, fmt.Errorf("cancelled while waiting for job %s: %w", j.ID, ctx.Err())
		}
	}
}

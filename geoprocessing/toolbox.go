// Package geoprocessing submits jobs to geoprocessing services and fetches
// their results. The offline map area workflow in package mapping runs on
// top of it.
package geoprocessing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/geoportal/jobs"
	"github.com/pscheid92/geoportal/portal"
)

// Toolbox wraps one geoprocessing service, e.g. the portal's packaging
// service advertised in helperServices.
type Toolbox struct {
	client   *portal.Client
	url      string
	interval time.Duration
	clock    clockwork.Clock
}

// Option configures a Toolbox.
type Option func(*Toolbox)

// WithPollInterval overrides the job poll interval for tools run through
// this toolbox.
func WithPollInterval(d time.Duration) Option {
	return func(tb *Toolbox) { tb.interval = d }
}

// WithClock injects the clock, used by tests.
func WithClock(clock clockwork.Clock) Option {
	return func(tb *Toolbox) { tb.clock = clock }
}

// New creates a Toolbox for the geoprocessing service at url.
func New(client *portal.Client, url string, opts ...Option) *Toolbox {
	tb := &Toolbox{
		client:   client,
		url:      strings.TrimRight(url, "/"),
		interval: jobs.DefaultInterval,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(tb)
	}
	return tb
}

// URL returns the geoprocessing service endpoint.
func (tb *Toolbox) URL() string { return tb.url }

type submitResponse struct {
	JobID     string      `json:"jobId"`
	JobStatus jobs.Status `json:"jobStatus"`
}

// SubmitJob starts the named tool and returns the job handle without
// waiting.
func (tb *Toolbox) SubmitJob(ctx context.Context, tool string, params portal.Params) (*jobs.Job, error) {
	toolURL := tb.url + "/" + tool

	var resp submitResponse
	if err := tb.client.Post(ctx, toolURL+"/submitJob", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to submit %s job: %w", tool, err)
	}
	if resp.JobID == "" {
		return nil, fmt.Errorf("%s submit response carries no job id", tool)
	}

	statusURL := fmt.Sprintf("%s/jobs/%s", toolURL, resp.JobID)
	return jobs.New(tb.client, statusURL, resp.JobID,
		jobs.WithInterval(tb.interval), jobs.WithClock(tb.clock)), nil
}

// Run submits the tool and blocks until the job reaches a terminal status,
// returning the final job payload.
func (tb *Toolbox) Run(ctx context.Context, tool string, params portal.Params) (*jobs.Info, *jobs.Job, error) {
	job, err := tb.SubmitJob(ctx, tool, params)
	if err != nil {
		return nil, nil, err
	}
	info, err := job.Wait(ctx)
	if err != nil {
		return nil, job, err
	}
	return info, job, nil
}

// Result decodes the named output parameter of a finished job. Geoprocessing
// results usually arrive as a paramUrl pointing at a separate resource;
// inline values are handled too.
func (tb *Toolbox) Result(ctx context.Context, job *jobs.Job, info *jobs.Info, name string, out any) error {
	raw, ok := info.Results[name]
	if !ok {
		return fmt.Errorf("job %s has no result named %q", info.JobID, name)
	}

	var entry struct {
		ParamURL string          `json:"paramUrl"`
		Value    json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return fmt.Errorf("failed to decode result %q of job %s: %w", name, info.JobID, err)
	}

	if entry.ParamURL == "" {
		if entry.Value == nil {
			return fmt.Errorf("result %q of job %s carries no value", name, info.JobID)
		}
		if err := json.Unmarshal(entry.Value, out); err != nil {
			return fmt.Errorf("failed to decode result %q of job %s: %w", name, info.JobID, err)
		}
		return nil
	}

	var resource struct {
		ParamName string          `json:"paramName"`
		DataType  string          `json:"dataType"`
		Value     json.RawMessage `json:"value"`
	}
	resultURL := job.StatusURL + "/" + strings.TrimLeft(entry.ParamURL, "/")
	if err := tb.client.Get(ctx, resultURL, portal.NewParams(), &resource); err != nil {
		return fmt.Errorf("failed to fetch result %q of job %s: %w", name, info.JobID, err)
	}
	if resource.Value == nil {
		return fmt.Errorf("result %q of job %s carries no value", name, info.JobID)
	}
	if err := json.Unmarshal(resource.Value, out); err != nil {
		return fmt.Errorf("failed to decode result %q of job %s: %w", name, info.JobID, err)
	}
	return nil
}

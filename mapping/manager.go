package mapping

import (
	"context"
	"fmt"
	"strings"

	"github.com/pscheid92/geoportal/portal"
)

// Manager exposes the administrative side of a map service. Admin operations
// live under the server's admin root, with the service addressed as
// <folder>/<name>.MapServer instead of <folder>/<name>/MapServer.
type Manager struct {
	client *portal.Client
	url    string
}

// AdminURL derives the admin endpoint from a service's rest endpoint.
func AdminURL(serviceURL string) string {
	adminURL := strings.Replace(serviceURL, "/rest/", "/admin/", 1)
	return strings.Replace(adminURL, "/MapServer", ".MapServer", 1)
}

// Manager returns the administrative interface of the service. The caller
// needs admin privileges on the server.
func (l *MapImageLayer) Manager() *Manager {
	return &Manager{client: l.client, url: AdminURL(l.url)}
}

// URL returns the admin endpoint.
func (m *Manager) URL() string { return m.url }

// Refresh clears the service's REST cache so metadata edits become visible.
func (m *Manager) Refresh(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := m.client.Post(ctx, m.url+"/refresh", portal.NewParams(), &resp); err != nil {
		return fmt.Errorf("failed to refresh service: %w", err)
	}
	return nil
}

// Edit replaces parts of the service definition. Only the given keys change.
func (m *Manager) Edit(ctx context.Context, definition map[string]any) error {
	params := portal.NewParams()
	if err := params.SetJSON("service", definition); err != nil {
		return err
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := m.client.Post(ctx, m.url+"/edit", params, &resp); err != nil {
		return fmt.Errorf("failed to edit service definition: %w", err)
	}
	return nil
}

// CacheJob identifies a server-side cache maintenance job.
type CacheJob struct {
	JobID string `json:"jobId"`
}

func (m *Manager) cacheJob(ctx context.Context, operation, levels, extent string) (*CacheJob, error) {
	params := portal.NewParams()
	params.Set("levels", levels)
	params.Set("extent", extent)

	var job CacheJob
	if err := m.client.Post(ctx, m.url+"/"+operation, params, &job); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", operation, err)
	}
	return &job, nil
}

// UpdateTiles rebuilds the cache for the given levels, optionally restricted
// to an extent.
func (m *Manager) UpdateTiles(ctx context.Context, levels, extent string) (*CacheJob, error) {
	return m.cacheJob(ctx, "updateTiles", levels, extent)
}

// DeleteTiles drops cached tiles for the given levels, optionally restricted
// to an extent.
func (m *Manager) DeleteTiles(ctx context.Context, levels, extent string) (*CacheJob, error) {
	return m.cacheJob(ctx, "deleteTiles", levels, extent)
}

// JobStatistics returns the server's progress report for a cache job.
func (m *Manager) JobStatistics(ctx context.Context, jobID string) (map[string]any, error) {
	var stats map[string]any
	if err := m.client.Post(ctx, fmt.Sprintf("%s/jobs/%s", m.url, jobID), portal.NewParams(), &stats); err != nil {
		return nil, fmt.Errorf("failed to fetch statistics of job %s: %w", jobID, err)
	}
	return stats, nil
}

// CancelJob stops a running cache job.
func (m *Manager) CancelJob(ctx context.Context, jobID string) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := m.client.Post(ctx, fmt.Sprintf("%s/jobs/%s/cancel", m.url, jobID), portal.NewParams(), &resp); err != nil {
		return fmt.Errorf("failed to cancel job %s: %w", jobID, err)
	}
	return nil
}

// RerunJob restarts a cache job. mode is all (every bundle again) or failed
// (only the bundles that failed).
func (m *Manager) RerunJob(ctx context.Context, jobID, mode string) error {
	if mode == "" {
		mode = "failed"
	}
	params := portal.NewParams()
	params.Set("rerunMode", mode)
	params.Set("jobId", jobID)

	var resp struct {
		Status string `json:"status"`
	}
	if err := m.client.Post(ctx, fmt.Sprintf("%s/jobs/%s/rerun", m.url, jobID), params, &resp); err != nil {
		return fmt.Errorf("failed to rerun job %s: %w", jobID, err)
	}
	return nil
}

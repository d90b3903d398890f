package mapping

import (
	"context"
	"errors"
	"fmt"

	"github.com/pscheid92/geoportal/geometry"
	"github.com/pscheid92/geoportal/jobs"
	"github.com/pscheid92/geoportal/portal"
)

// ErrExportNotAllowed reports a tiled service whose administrator has not
// enabled tile export.
var ErrExportNotAllowed = errors.New("tile export is not allowed on this service")

// ExportTilesOptions control which tiles an export or estimate job covers.
type ExportTilesOptions struct {
	// Levels lists the scale levels to export, either as levels
	// ("1,2,3" or "0-9") or as scales, depending on ExportBy.
	Levels string

	// ExportBy is levelId (default) or resolution.
	ExportBy string

	// TilePackage bundles the tiles into a .tpk instead of a cache folder.
	TilePackage bool

	// ExportExtent bounds the export; DEFAULT (the service's full extent)
	// when empty.
	ExportExtent string

	// AreaOfInterest clips the export to a polygon instead of an extent.
	AreaOfInterest *geometry.AreaOfInterest

	// NoOptimize disables the server-side size optimization.
	NoOptimize bool

	// Compression is the JPEG quality between 0 and 100, default 75.
	Compression int
}

func (o ExportTilesOptions) params() (portal.Params, error) {
	exportBy := o.ExportBy
	if exportBy == "" {
		exportBy = "levelId"
	}
	exportExtent := o.ExportExtent
	if exportExtent == "" {
		exportExtent = "DEFAULT"
	}
	compression := o.Compression
	if compression == 0 {
		compression = 75
	}

	params := portal.NewParams()
	params.Set("levels", o.Levels)
	params.Set("exportBy", exportBy)
	params.Set("exportExtent", exportExtent)
	params.SetBool("tilePackage", o.TilePackage)
	params.SetBool("optimizeTilesForSize", !o.NoOptimize)
	params.SetInt("compressionQuality", compression)
	if o.AreaOfInterest != nil {
		if err := params.SetJSON("areaOfInterest", o.AreaOfInterest); err != nil {
			return nil, err
		}
	}
	return params, nil
}

type tileJobResponse struct {
	JobID string `json:"jobId"`
}

func (l *MapImageLayer) submitTileJob(ctx context.Context, operation string, opts ExportTilesOptions) (*jobs.Job, error) {
	if !l.props.ExportTilesAllowed {
		return nil, ErrExportNotAllowed
	}

	params, err := opts.params()
	if err != nil {
		return nil, err
	}

	var resp tileJobResponse
	if err := l.client.Get(ctx, l.url+"/"+operation, params, &resp); err != nil {
		return nil, fmt.Errorf("failed to submit %s job: %w", operation, err)
	}
	if resp.JobID == "" {
		return nil, fmt.Errorf("%s response carries no job id", operation)
	}

	statusURL := fmt.Sprintf("%s/%s/jobs/%s", l.url, operation, resp.JobID)
	return jobs.New(l.client, statusURL, resp.JobID,
		jobs.WithInterval(l.pollInterval), jobs.WithClock(l.clock)), nil
}

// SubmitExportTiles starts a tile export job and returns the job handle
// without waiting.
func (l *MapImageLayer) SubmitExportTiles(ctx context.Context, opts ExportTilesOptions) (*jobs.Job, error) {
	return l.submitTileJob(ctx, "exportTiles", opts)
}

// ExportTilesResult lists the artifacts of a finished export job after they
// were downloaded.
type ExportTilesResult struct {
	// ServiceURL is the server-side resource listing the exported files.
	ServiceURL string

	// Paths are the local files the export was downloaded to.
	Paths []string

	// Folders are the cache folders reported by the server; they are left
	// on the server.
	Folders []string
}

type exportedFiles struct {
	Files []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"files"`
	Folders []string `json:"folders"`
}

// ExportTiles submits an export job, waits for it, and downloads the
// resulting files into destDir. Levels outside the allowed range or a tile
// count beyond maxExportTilesCount fail the job server-side.
func (l *MapImageLayer) ExportTiles(ctx context.Context, opts ExportTilesOptions, destDir string) (*ExportTilesResult, error) {
	job, err := l.SubmitExportTiles(ctx, opts)
	if err != nil {
		return nil, err
	}
	info, err := job.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return l.CollectExportedTiles(ctx, info, destDir)
}

// CollectExportedTiles downloads the artifacts of a finished export job into
// destDir.
func (l *MapImageLayer) CollectExportedTiles(ctx context.Context, info *jobs.Info, destDir string) (*ExportTilesResult, error) {
	var serviceURL string
	if err := info.ResultValue("out_service_url", &serviceURL); err != nil {
		return nil, err
	}

	var listing exportedFiles
	if err := l.client.Get(ctx, serviceURL, portal.NewParams(), &listing); err != nil {
		return nil, fmt.Errorf("failed to list exported tiles of job %s: %w", info.JobID, err)
	}

	result := &ExportTilesResult{ServiceURL: serviceURL, Folders: listing.Folders}
	for _, file := range listing.Files {
		path, err := l.client.Download(ctx, file.URL, nil, destDir, file.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", file.Name, err)
		}
		result.Paths = append(result.Paths, path)
	}
	return result, nil
}

// TileEstimate is the size forecast of an export with the same options.
type TileEstimate struct {
	TotalSize          int64 `json:"totalSize"`
	TotalTilesToExport int64 `json:"totalTilesToExport"`
}

// SubmitEstimateExportTilesSize starts an estimate job and returns the job
// handle without waiting.
func (l *MapImageLayer) SubmitEstimateExportTilesSize(ctx context.Context, opts ExportTilesOptions) (*jobs.Job, error) {
	return l.submitTileJob(ctx, "estimateExportTilesSize", opts)
}

// EstimateExportTilesSize submits an estimate job, waits for it, and returns
// the forecast tile count and byte size.
func (l *MapImageLayer) EstimateExportTilesSize(ctx context.Context, opts ExportTilesOptions) (*TileEstimate, error) {
	job, err := l.SubmitEstimateExportTilesSize(ctx, opts)
	if err != nil {
		return nil, err
	}
	info, err := job.Wait(ctx)
	if err != nil {
		return nil, err
	}

	var estimate TileEstimate
	if err := info.ResultValue("out_service_url", &estimate); err != nil {
		return nil, err
	}
	return &estimate, nil
}

// Package mapping wraps map services and web maps: dynamic map image layers
// with their identify/find/export operations, tiled export and estimation
// jobs, vector tile resources, web map documents, and offline map areas.
package mapping

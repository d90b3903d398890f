// Package geometry holds the small set of geometry types the portal REST API
// exchanges as JSON: spatial references, extents, and polygon areas of
// interest.
package geometry

import (
	"fmt"
	"strconv"
	"strings"
)

// WGS84 is the default spatial reference (wkid 4326) assumed by the portal
// whenever a geometry carries none.
var WGS84 = SpatialReference{WKID: 4326, LatestWKID: 4326}

// WebMercator is the spatial reference used by most hosted basemaps.
var WebMercator = SpatialReference{WKID: 102100, LatestWKID: 3857}

// SpatialReference identifies a coordinate system by well-known id.
type SpatialReference struct {
	WKID       int `json:"wkid,omitempty"`
	LatestWKID int `json:"latestWkid,omitempty"`
}

// IsZero reports whether no spatial reference is set.
func (sr SpatialReference) IsZero() bool {
	return sr.WKID == 0 && sr.LatestWKID == 0
}

// Extent is a bounding box with an optional spatial reference.
type Extent struct {
	XMin             float64           `json:"xmin"`
	YMin             float64           `json:"ymin"`
	XMax             float64           `json:"xmax"`
	YMax             float64           `json:"ymax"`
	SpatialReference *SpatialReference `json:"spatialReference,omitempty"`
}

// Envelope returns the comma-separated "xmin,ymin,xmax,ymax" form the REST
// API accepts for bbox-style parameters.
func (e Extent) Envelope() string {
	parts := []string{
		formatCoord(e.XMin),
		formatCoord(e.YMin),
		formatCoord(e.XMax),
		formatCoord(e.YMax),
	}
	return strings.Join(parts, ",")
}

// IsZero reports whether the extent is entirely unset.
func (e Extent) IsZero() bool {
	return e.XMin == 0 && e.YMin == 0 && e.XMax == 0 && e.YMax == 0 && e.SpatialReference == nil
}

// ParseEnvelope parses the "xmin,ymin,xmax,ymax" string form into an Extent.
func ParseEnvelope(s string) (Extent, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Extent{}, fmt.Errorf("envelope must have 4 coordinates, got %d", len(parts))
	}
	coords := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Extent{}, fmt.Errorf("invalid envelope coordinate %q: %w", p, err)
		}
		coords[i] = v
	}
	return Extent{XMin: coords[0], YMin: coords[1], XMax: coords[2], YMax: coords[3]}, nil
}

// Polygon is a ring-based polygon geometry.
type Polygon struct {
	Rings            [][][2]float64    `json:"rings"`
	SpatialReference *SpatialReference `json:"spatialReference,omitempty"`
}

// AreaOfInterest wraps a polygon in the single-feature envelope the export
// tile operations expect for their areaOfInterest parameter.
type AreaOfInterest struct {
	Features []AreaFeature `json:"features"`
}

// AreaFeature is one polygon feature inside an AreaOfInterest.
type AreaFeature struct {
	Geometry Polygon `json:"geometry"`
}

// NewAreaOfInterest builds an AreaOfInterest from a polygon, defaulting the
// spatial reference to WGS84 when none is set.
func NewAreaOfInterest(p Polygon) AreaOfInterest {
	if p.SpatialReference == nil {
		sr := WGS84
		p.SpatialReference = &sr
	}
	return AreaOfInterest{Features: []AreaFeature{{Geometry: p}}}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

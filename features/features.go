// Package features wraps feature services: layer queries with the service's
// pagination strategy, and feature edits.
package features

import (
	"encoding/json"

	"github.com/pscheid92/geoportal/geometry"
)

// Field describes one attribute field of a layer.
type Field struct {
	Name     string `json:"name"`
	Alias    string `json:"alias,omitempty"`
	Type     string `json:"type,omitempty"`
	Editable bool   `json:"editable,omitempty"`
}

// Feature is a single record: attributes plus an optional geometry.
type Feature struct {
	Attributes map[string]any  `json:"attributes,omitempty"`
	Geometry   json.RawMessage `json:"geometry,omitempty"`
}

// FeatureSet is the record collection the query operation returns, and the
// shape embedded into web map feature collections.
type FeatureSet struct {
	GeometryType     string                     `json:"geometryType,omitempty"`
	SpatialReference *geometry.SpatialReference `json:"spatialReference,omitempty"`
	ObjectIDField    string                     `json:"objectIdFieldName,omitempty"`
	Fields           []Field                    `json:"fields,omitempty"`
	Features         []Feature                  `json:"features"`
}

// Geometry type names used by the service.
const (
	GeometryPoint      = "esriGeometryPoint"
	GeometryMultipoint = "esriGeometryMultipoint"
	GeometryPolyline   = "esriGeometryPolyline"
	GeometryPolygon    = "esriGeometryPolygon"
	GeometryEnvelope   = "esriGeometryEnvelope"
)

// LayerProperties is the service metadata for a feature layer or table.
type LayerProperties struct {
	ID                        int             `json:"id"`
	Name                      string          `json:"name"`
	Type                      string          `json:"type"`
	GeometryType              string          `json:"geometryType"`
	ObjectIDField             string          `json:"objectIdField"`
	Fields                    []Field         `json:"fields"`
	MaxRecordCount            int             `json:"maxRecordCount"`
	ServiceItemID             string          `json:"serviceItemId"`
	Extent                    geometry.Extent `json:"extent"`
	CurrentVersion            float64         `json:"currentVersion"`
	AdvancedQueryCapabilities struct {
		SupportsPagination bool `json:"supportsPagination"`
	} `json:"advancedQueryCapabilities"`
}

// defaultMaxRecords applies when the service does not advertise a
// maxRecordCount.
const defaultMaxRecords = 1000

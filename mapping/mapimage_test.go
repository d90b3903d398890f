package mapping_test

import (
	"context"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/geoportal/internal/portaltest"
	"github.com/pscheid92/geoportal/mapping"
	"github.com/pscheid92/geoportal/portal"
)

const servicePath = "/server/rest/services/World/MapServer"

func serviceMetadata(exportAllowed bool) map[string]any {
	return map[string]any{
		"mapName":             "World",
		"currentVersion":      11.1,
		"exportTilesAllowed":  exportAllowed,
		"maxExportTilesCount": 100000,
		"fullExtent": map[string]any{
			"xmin": -180, "ymin": -90, "xmax": 180, "ymax": 90,
			"spatialReference": map[string]any{"wkid": 4326},
		},
		"layers": []map[string]any{
			{"id": 0, "name": "Cities", "parentLayerId": -1},
			{"id": 1, "name": "Rivers", "parentLayerId": -1},
		},
	}
}

func newMapService(t *testing.T, srv *portaltest.Server, exportAllowed bool, opts ...mapping.Option) *mapping.MapImageLayer {
	t.Helper()
	srv.JSON(servicePath, serviceMetadata(exportAllowed))

	client := portal.New(srv.RestURL())
	layer, err := mapping.New(context.Background(), client, srv.URL+servicePath, opts...)
	require.NoError(t, err)
	return layer
}

func TestNewLoadsServiceMetadata(t *testing.T) {
	srv := portaltest.New(t)
	layer := newMapService(t, srv, true)

	props := layer.Properties()
	assert.Equal(t, "World", props.MapName)
	assert.True(t, props.ExportTilesAllowed)
	assert.Equal(t, 100000, props.MaxExportTilesCount)
	require.Len(t, props.Layers, 2)
	assert.Equal(t, "Cities", props.Layers[0].Name)
}

func TestFromItemChecksType(t *testing.T) {
	client := portal.New("https://example.com/sharing/rest")

	item := &portal.Item{ID: "x", Type: "Feature Service"}
	_, err := mapping.FromItem(context.Background(), client, item)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Map Service")
}

func TestIdentifyDefaults(t *testing.T) {
	srv := portaltest.New(t)
	layer := newMapService(t, srv, true)

	var gotGeometryType, gotLayers, gotTolerance string
	srv.JSONFunc(servicePath+"/identify", func(c echo.Context) any {
		gotGeometryType = c.FormValue("geometryType")
		gotLayers = c.FormValue("layers")
		gotTolerance = c.FormValue("tolerance")
		return map[string]any{
			"results": []map[string]any{{
				"layerId":    0,
				"layerName":  "Cities",
				"value":      "Hamburg",
				"attributes": map[string]any{"NAME": "Hamburg"},
			}},
		}
	})

	results, err := layer.Identify(context.Background(), mapping.IdentifyOptions{
		Geometry:     "9.99,53.55",
		MapExtent:    "9,53,11,54",
		ImageDisplay: "600,400,96",
		Tolerance:    5,
	})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "Hamburg", results[0].Value)
	assert.Equal(t, "esriGeometryPoint", gotGeometryType)
	assert.Equal(t, "all", gotLayers)
	assert.Equal(t, "5", gotTolerance)
}

func TestFindRequiresSearchText(t *testing.T) {
	srv := portaltest.New(t)
	layer := newMapService(t, srv, true)

	_, err := layer.Find(context.Background(), mapping.FindOptions{})
	require.Error(t, err)
}

func TestFindContainsFlag(t *testing.T) {
	srv := portaltest.New(t)
	layer := newMapService(t, srv, true)

	var gotContains string
	srv.JSONFunc(servicePath+"/find", func(c echo.Context) any {
		gotContains = c.FormValue("contains")
		return map[string]any{
			"results": []map[string]any{{"layerId": 0, "foundFieldName": "NAME", "value": "Hamburg"}},
		}
	})

	results, err := layer.Find(context.Background(), mapping.FindOptions{SearchText: "Hamburg", ExactMatch: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "false", gotContains)
}

func TestExportMapDefaults(t *testing.T) {
	srv := portaltest.New(t)
	layer := newMapService(t, srv, true)

	var gotSize, gotDPI, gotFormat, gotBBox string
	srv.JSONFunc(servicePath+"/export", func(c echo.Context) any {
		gotSize = c.FormValue("size")
		gotDPI = c.FormValue("dpi")
		gotFormat = c.FormValue("format")
		gotBBox = c.FormValue("bbox")
		return map[string]any{"href": "https://example.com/map.png", "width": 600, "height": 550}
	})

	result, err := layer.ExportMap(context.Background(), mapping.ExportMapOptions{
		BBox: layer.Properties().FullExtent,
	})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/map.png", result.Href)
	assert.Equal(t, "600,550", gotSize)
	assert.Equal(t, "200", gotDPI)
	assert.Equal(t, "png", gotFormat)
	assert.Equal(t, "-180,-90,180,90", gotBBox)
}

func TestLegend(t *testing.T) {
	srv := portaltest.New(t)
	layer := newMapService(t, srv, true)

	srv.JSON(servicePath+"/legend", map[string]any{
		"layers": []map[string]any{{
			"layerId":   0,
			"layerName": "Cities",
			"legend":    []map[string]any{{"label": "City", "contentType": "image/png"}},
		}},
	})

	legend, err := layer.Legend(context.Background())
	require.NoError(t, err)
	require.Len(t, legend, 1)
	assert.Equal(t, "Cities", legend[0].LayerName)
	require.Len(t, legend[0].Legend, 1)
	assert.Equal(t, "City", legend[0].Legend[0].Label)
}

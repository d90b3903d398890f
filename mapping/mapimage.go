package mapping

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/geoportal/geometry"
	"github.com/pscheid92/geoportal/jobs"
	"github.com/pscheid92/geoportal/portal"
)

// ServiceLayerInfo is the sublayer summary inside a map service's metadata.
type ServiceLayerInfo struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	ParentLayerID int    `json:"parentLayerId"`
	SubLayerIDs   []int  `json:"subLayerIds"`
}

// LOD is one level of detail of a tiled cache.
type LOD struct {
	Level      int     `json:"level"`
	Resolution float64 `json:"resolution"`
	Scale      float64 `json:"scale"`
}

// TileInfo describes a service's tiling scheme.
type TileInfo struct {
	Rows   int    `json:"rows"`
	Cols   int    `json:"cols"`
	DPI    int    `json:"dpi"`
	Format string `json:"format"`
	LODs   []LOD  `json:"lods"`
}

// MapServiceProperties is the service metadata for a map service.
type MapServiceProperties struct {
	CurrentVersion        float64            `json:"currentVersion"`
	MapName               string             `json:"mapName"`
	Layers                []ServiceLayerInfo `json:"layers"`
	SupportsDynamicLayers bool               `json:"supportsDynamicLayers"`
	ExportTilesAllowed    bool               `json:"exportTilesAllowed"`
	MaxExportTilesCount   int                `json:"maxExportTilesCount"`
	ServiceItemID         string             `json:"serviceItemId"`
	FullExtent            geometry.Extent    `json:"fullExtent"`
	TileInfo              *TileInfo          `json:"tileInfo"`
}

// MapImageLayer is a map service endpoint, e.g.
// https://host/arcgis/rest/services/World/MapServer. Map services render
// images server-side; tiled services additionally allow tile export when the
// administrator enables it.
type MapImageLayer struct {
	client       *portal.Client
	url          string
	props        MapServiceProperties
	pollInterval time.Duration
	clock        clockwork.Clock
}

// Option configures a MapImageLayer.
type Option func(*MapImageLayer)

// WithPollInterval overrides the job poll interval for the export and
// estimate operations.
func WithPollInterval(d time.Duration) Option {
	return func(l *MapImageLayer) { l.pollInterval = d }
}

// WithClock injects the clock, used by tests.
func WithClock(clock clockwork.Clock) Option {
	return func(l *MapImageLayer) { l.clock = clock }
}

// New loads the map service metadata at url.
func New(ctx context.Context, client *portal.Client, url string, opts ...Option) (*MapImageLayer, error) {
	l := &MapImageLayer{
		client:       client,
		url:          strings.TrimRight(url, "/"),
		pollInterval: jobs.DefaultInterval,
		clock:        clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := client.Get(ctx, l.url, portal.NewParams(), &l.props); err != nil {
		return nil, fmt.Errorf("failed to load map service %s: %w", url, err)
	}
	return l, nil
}

// FromItem loads the map service referenced by a portal item. The item type
// must be Map Service.
func FromItem(ctx context.Context, client *portal.Client, item *portal.Item, opts ...Option) (*MapImageLayer, error) {
	if item.Type != "Map Service" {
		return nil, fmt.Errorf("item must be of type Map Service, not %s", item.Type)
	}
	return New(ctx, client, item.URL, opts...)
}

// URL returns the service endpoint.
func (l *MapImageLayer) URL() string { return l.url }

// Properties returns the service metadata.
func (l *MapImageLayer) Properties() MapServiceProperties { return l.props }

// IdentifyOptions locate features at a geographic position.
type IdentifyOptions struct {
	Geometry     string // point or JSON geometry
	GeometryType string // Point, Polyline, ... (esriGeometry prefix applied)
	MapExtent    string
	ImageDisplay string // "<width>,<height>,<dpi>"
	SR           int
	Layers       string // top, visible, or all (default all)
	Tolerance    int
	OmitGeometry bool
}

// IdentifyResult is one feature discovered by identify.
type IdentifyResult struct {
	LayerID          int            `json:"layerId"`
	LayerName        string         `json:"layerName"`
	DisplayFieldName string         `json:"displayFieldName"`
	Value            string         `json:"value"`
	Attributes       map[string]any `json:"attributes"`
	GeometryType     string         `json:"geometryType"`
}

// Identify discovers features at a geographic location across the service's
// layers.
func (l *MapImageLayer) Identify(ctx context.Context, opts IdentifyOptions) ([]IdentifyResult, error) {
	geometryType := opts.GeometryType
	if geometryType == "" {
		geometryType = "Point"
	}
	if !strings.HasPrefix(geometryType, "esriGeometry") {
		geometryType = "esriGeometry" + geometryType
	}

	layers := opts.Layers
	if layers == "" {
		layers = "all"
	}

	params := portal.NewParams()
	params.Set("geometry", opts.Geometry)
	params.Set("geometryType", geometryType)
	params.Set("mapExtent", opts.MapExtent)
	params.Set("imageDisplay", opts.ImageDisplay)
	params.Set("layers", layers)
	params.SetBool("returnGeometry", !opts.OmitGeometry)
	if opts.SR != 0 {
		params.SetInt("sr", opts.SR)
	}
	if opts.Tolerance != 0 {
		params.SetInt("tolerance", opts.Tolerance)
	}

	var resp struct {
		Results []IdentifyResult `json:"results"`
	}
	if err := l.client.Post(ctx, l.url+"/identify", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to identify: %w", err)
	}
	return resp.Results, nil
}

// FindOptions search attribute values across layers.
type FindOptions struct {
	SearchText   string
	Layers       string // comma-separated layer ids
	SearchFields []string
	ExactMatch   bool // case-sensitive equality instead of substring match
	SR           int
	OmitGeometry bool
}

// FindResult is one record matched by find.
type FindResult struct {
	LayerID    int            `json:"layerId"`
	LayerName  string         `json:"layerName"`
	FoundField string         `json:"foundFieldName"`
	Value      string         `json:"value"`
	Attributes map[string]any `json:"attributes"`
}

// Find searches the given layers for the search text.
func (l *MapImageLayer) Find(ctx context.Context, opts FindOptions) ([]FindResult, error) {
	if opts.SearchText == "" {
		return nil, fmt.Errorf("find needs a search text")
	}

	params := portal.NewParams()
	params.Set("searchText", opts.SearchText)
	params.SetBool("contains", !opts.ExactMatch)
	params.Set("layers", opts.Layers)
	params.Set("searchFields", strings.Join(opts.SearchFields, ","))
	params.SetBool("returnGeometry", !opts.OmitGeometry)
	if opts.SR != 0 {
		params.SetInt("sr", opts.SR)
	}

	var resp struct {
		Results []FindResult `json:"results"`
	}
	if err := l.client.Post(ctx, l.url+"/find", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to find: %w", err)
	}
	return resp.Results, nil
}

// ExportMapOptions control the server-side map image render.
type ExportMapOptions struct {
	BBox        geometry.Extent
	BBoxSR      int
	Size        string // "<width>,<height>", default 600,550
	DPI         int    // default 200
	ImageSR     int
	Format      string // png, png8, jpg, pdf, ... default png
	Layers      string // show:/hide:/include:/exclude: syntax
	Transparent bool
	Scale       float64
	Rotation    float64
}

func (o ExportMapOptions) params() portal.Params {
	size := o.Size
	if size == "" {
		size = "600,550"
	}
	dpi := o.DPI
	if dpi == 0 {
		dpi = 200
	}
	format := o.Format
	if format == "" {
		format = "png"
	}

	params := portal.NewParams()
	params.Set("bbox", o.BBox.Envelope())
	params.Set("size", size)
	params.SetInt("dpi", dpi)
	params.Set("format", format)
	params.Set("layers", o.Layers)
	params.SetBool("transparent", o.Transparent)
	if o.BBoxSR != 0 {
		params.SetInt("bboxSR", o.BBoxSR)
	}
	if o.ImageSR != 0 {
		params.SetInt("imageSR", o.ImageSR)
	}
	if o.Scale != 0 {
		params.SetFloat("mapScale", o.Scale)
	}
	if o.Rotation != 0 {
		params.SetFloat("rotation", o.Rotation)
	}
	return params
}

// ExportMapResult describes a rendered map image hosted by the server.
type ExportMapResult struct {
	Href   string          `json:"href"`
	Width  int             `json:"width"`
	Height int             `json:"height"`
	Extent geometry.Extent `json:"extent"`
	Scale  float64         `json:"scale"`
}

// ExportMap renders the requested extent server-side and returns the image
// metadata, including the URL of the rendered image.
func (l *MapImageLayer) ExportMap(ctx context.Context, opts ExportMapOptions) (*ExportMapResult, error) {
	var result ExportMapResult
	if err := l.client.Post(ctx, l.url+"/export", opts.params(), &result); err != nil {
		return nil, fmt.Errorf("failed to export map: %w", err)
	}
	return &result, nil
}

// ExportMapImage renders the requested extent and returns the raw image
// bytes.
func (l *MapImageLayer) ExportMapImage(ctx context.Context, opts ExportMapOptions) ([]byte, error) {
	params := opts.params()
	params.Set("f", "image")
	img, err := l.client.GetBytes(ctx, l.url+"/export", params)
	if err != nil {
		return nil, fmt.Errorf("failed to export map image: %w", err)
	}
	return img, nil
}

// LegendLayer is the legend of one service layer.
type LegendLayer struct {
	LayerID   int    `json:"layerId"`
	LayerName string `json:"layerName"`
	Legend    []struct {
		Label       string `json:"label"`
		URL         string `json:"url"`
		ImageData   string `json:"imageData"`
		ContentType string `json:"contentType"`
	} `json:"legend"`
}

// Legend returns symbol images and labels for every layer in the service.
func (l *MapImageLayer) Legend(ctx context.Context) ([]LegendLayer, error) {
	var resp struct {
		Layers []LegendLayer `json:"layers"`
	}
	if err := l.client.Get(ctx, l.url+"/legend", portal.NewParams(), &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch legend: %w", err)
	}
	return resp.Layers, nil
}

package features

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pscheid92/geoportal/portal"
)

// FeatureLayer is a single layer of a feature service.
type FeatureLayer struct {
	client *portal.Client
	url    string
	props  LayerProperties
}

// New loads the layer metadata at url, e.g.
// https://host/arcgis/rest/services/Streets/FeatureServer/0.
func New(ctx context.Context, client *portal.Client, url string) (*FeatureLayer, error) {
	l := &FeatureLayer{client: client, url: strings.TrimRight(url, "/")}
	if err := client.Get(ctx, l.url, portal.NewParams(), &l.props); err != nil {
		return nil, fmt.Errorf("failed to load feature layer %s: %w", url, err)
	}
	return l, nil
}

// URL returns the layer endpoint.
func (l *FeatureLayer) URL() string { return l.url }

// Properties returns the layer's service metadata.
func (l *FeatureLayer) Properties() LayerProperties { return l.props }

// Table is a geometry-less feature layer.
type Table struct {
	FeatureLayer
}

// NewTable loads a table endpoint of a feature service.
func NewTable(ctx context.Context, client *portal.Client, url string) (*Table, error) {
	l, err := New(ctx, client, url)
	if err != nil {
		return nil, err
	}
	return &Table{FeatureLayer: *l}, nil
}

// QueryOptions select and shape the records a query returns. The zero value
// queries every record ("1=1") with all fields and geometries.
type QueryOptions struct {
	Where        string   // defaults to "1=1"
	OutFields    []string // defaults to "*"
	ObjectIDs    []int64
	OrderBy      string
	OutSR        int
	OmitGeometry bool
	ReturnZ      bool
	ReturnM      bool

	// Offset/RecordCount page manually and disable the fetch-all loop.
	Offset      int
	RecordCount int
}

func (o QueryOptions) params() portal.Params {
	params := portal.NewParams()
	where := o.Where
	if where == "" {
		where = "1=1"
	}
	params.Set("where", where)

	outFields := "*"
	if len(o.OutFields) > 0 {
		outFields = strings.Join(o.OutFields, ",")
	}
	params.Set("outFields", outFields)

	params.SetBool("returnGeometry", !o.OmitGeometry)
	params.SetBool("returnZ", o.ReturnZ)
	params.SetBool("returnM", o.ReturnM)
	params.Set("orderByFields", o.OrderBy)
	if o.OutSR != 0 {
		params.SetInt("outSR", o.OutSR)
	}
	if len(o.ObjectIDs) > 0 {
		params.Set("objectIds", joinIDs(o.ObjectIDs))
	}
	return params
}

// Query returns every record matching the options. When the match count
// exceeds the service's maxRecordCount the layer is drained page by page:
// offset pagination when the service supports it, object-id chunking
// otherwise. Setting Offset or RecordCount switches to a single manual page.
func (l *FeatureLayer) Query(ctx context.Context, opts QueryOptions) (*FeatureSet, error) {
	if opts.Offset > 0 || opts.RecordCount > 0 {
		params := opts.params()
		if opts.Offset > 0 {
			params.SetInt("resultOffset", opts.Offset)
		}
		if opts.RecordCount > 0 {
			params.SetInt("resultRecordCount", opts.RecordCount)
		}
		return l.queryOnce(ctx, params)
	}

	count, err := l.QueryCount(ctx, opts.Where)
	if err != nil {
		return nil, err
	}

	maxRecords := l.props.MaxRecordCount
	if maxRecords <= 0 {
		maxRecords = defaultMaxRecords
	}

	if count <= maxRecords {
		return l.queryOnce(ctx, opts.params())
	}

	if l.props.AdvancedQueryCapabilities.SupportsPagination {
		return l.queryPaged(ctx, opts, maxRecords)
	}
	return l.queryByIDChunks(ctx, opts, maxRecords)
}

// QueryCount returns the number of records matching where.
func (l *FeatureLayer) QueryCount(ctx context.Context, where string) (int, error) {
	if where == "" {
		where = "1=1"
	}
	params := portal.NewParams()
	params.Set("where", where)
	params.SetBool("returnCountOnly", true)

	var resp struct {
		Count int `json:"count"`
	}
	if err := l.client.Get(ctx, l.url+"/query", params, &resp); err != nil {
		return 0, fmt.Errorf("failed to count features: %w", err)
	}
	return resp.Count, nil
}

// QueryIDs returns the object-id field name and the ids of every matching
// record.
func (l *FeatureLayer) QueryIDs(ctx context.Context, where string) (string, []int64, error) {
	if where == "" {
		where = "1=1"
	}
	params := portal.NewParams()
	params.Set("where", where)
	params.SetBool("returnIdsOnly", true)

	var resp struct {
		ObjectIDFieldName string  `json:"objectIdFieldName"`
		ObjectIDs         []int64 `json:"objectIds"`
	}
	if err := l.client.Get(ctx, l.url+"/query", params, &resp); err != nil {
		return "", nil, fmt.Errorf("failed to query feature ids: %w", err)
	}
	return resp.ObjectIDFieldName, resp.ObjectIDs, nil
}

func (l *FeatureLayer) queryOnce(ctx context.Context, params portal.Params) (*FeatureSet, error) {
	var fset FeatureSet
	if err := l.client.Get(ctx, l.url+"/query", params, &fset); err != nil {
		return nil, fmt.Errorf("failed to query features: %w", err)
	}
	return &fset, nil
}

func (l *FeatureLayer) queryPaged(ctx context.Context, opts QueryOptions, pageSize int) (*FeatureSet, error) {
	var result *FeatureSet
	for page := 0; ; page++ {
		params := opts.params()
		params.SetInt("resultOffset", pageSize*page)
		params.SetInt("resultRecordCount", pageSize)

		fset, err := l.queryOnce(ctx, params)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = fset
		} else {
			result.Features = append(result.Features, fset.Features...)
		}
		if len(fset.Features) < pageSize {
			return result, nil
		}
	}
}

func (l *FeatureLayer) queryByIDChunks(ctx context.Context, opts QueryOptions, chunkSize int) (*FeatureSet, error) {
	idField, ids, err := l.QueryIDs(ctx, opts.Where)
	if err != nil {
		return nil, err
	}

	var result *FeatureSet
	for start := 0; start < len(ids); start += chunkSize {
		end := min(start+chunkSize, len(ids))

		chunkOpts := opts
		chunkOpts.Where = fmt.Sprintf("%s in (%s)", idField, joinIDs(ids[start:end]))

		fset, err := l.queryOnce(ctx, chunkOpts.params())
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = fset
		} else {
			result.Features = append(result.Features, fset.Features...)
		}
	}
	if result == nil {
		result = &FeatureSet{Features: []Feature{}}
	}
	return result, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

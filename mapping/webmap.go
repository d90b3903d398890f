package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pscheid92/geoportal/features"
	"github.com/pscheid92/geoportal/geometry"
	"github.com/pscheid92/geoportal/portal"
)

const webMapVersion = "2.10"

// WebMap is a web map document: a basemap, operational layers, and display
// metadata, stored as the JSON data of a Web Map portal item.
type WebMap struct {
	client *portal.Client
	item   *portal.Item
	doc    map[string]any
	extent *geometry.Extent
}

// NewWebMap creates an empty web map with a default topographic basemap.
func NewWebMap(client *portal.Client) *WebMap {
	return &WebMap{
		client: client,
		doc: map[string]any{
			"baseMap": map[string]any{
				"baseMapLayers": []any{
					map[string]any{
						"id":         "defaultBasemap",
						"layerType":  "ArcGISTiledMapServiceLayer",
						"url":        "https://services.arcgisonline.com/ArcGIS/rest/services/World_Topo_Map/MapServer",
						"visibility": true,
						"opacity":    1,
						"title":      "Topographic",
					},
				},
				"title": "Topographic",
			},
			"operationalLayers": []any{},
			"spatialReference":  map[string]any{"wkid": 4326},
			"version":           webMapVersion,
			"authoringApp":      "geoportal",
		},
	}
}

// WebMapFromItem loads the web map stored in a portal item. The item type
// must be Web Map.
func WebMapFromItem(ctx context.Context, client *portal.Client, item *portal.Item) (*WebMap, error) {
	if item.Type != "Web Map" {
		return nil, fmt.Errorf("item must be of type Web Map, not %s", item.Type)
	}

	wm := &WebMap{client: client, item: item}
	if err := client.ItemData(ctx, item.ID, &wm.doc); err != nil {
		return nil, fmt.Errorf("failed to load web map %s: %w", item.ID, err)
	}
	if wm.doc == nil {
		wm.doc = map[string]any{}
	}
	if _, ok := wm.doc["operationalLayers"]; !ok {
		wm.doc["operationalLayers"] = []any{}
	}
	return wm, nil
}

// Item returns the backing portal item, nil for an unsaved map.
func (wm *WebMap) Item() *portal.Item { return wm.item }

// Definition returns the raw web map document.
func (wm *WebMap) Definition() map[string]any { return wm.doc }

// Basemap returns the basemap part of the document.
func (wm *WebMap) Basemap() map[string]any {
	basemap, _ := wm.doc["baseMap"].(map[string]any)
	return basemap
}

// SetExtent overrides the extent the map is saved with. Without it the
// extent of the first layer item applies.
func (wm *WebMap) SetExtent(extent geometry.Extent) {
	wm.extent = &extent
}

func (wm *WebMap) operationalLayers() []any {
	layers, _ := wm.doc["operationalLayers"].([]any)
	return layers
}

// Layers returns the operational layers, topmost first.
func (wm *WebMap) Layers() []map[string]any {
	stored := wm.operationalLayers()
	layers := make([]map[string]any, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		if layer, ok := stored[i].(map[string]any); ok {
			layers = append(layers, layer)
		}
	}
	return layers
}

// LayerOptions shape the layer definition AddLayer writes into the document.
type LayerOptions struct {
	Title                string
	Hidden               bool
	Opacity              float64 // 0 means 1
	DefinitionExpression string
	Renderer             map[string]any
	Symbol               map[string]any
	SpatialReference     *geometry.SpatialReference
}

func (o LayerOptions) opacity() float64 {
	if o.Opacity == 0 {
		return 1
	}
	return o.Opacity
}

// AddLayer appends a layer to the map. Supported layers are
// *features.FeatureLayer, *features.FeatureSet (embedded as a feature
// collection), *MapImageLayer, *VectorTileLayer, and *portal.Item of a
// matching service type.
func (wm *WebMap) AddLayer(layer any, opts LayerOptions) error {
	entry := map[string]any{
		"id":         uuid.NewString(),
		"opacity":    opts.opacity(),
		"visibility": !opts.Hidden,
	}

	switch v := layer.(type) {
	case *features.FeatureLayer:
		props := v.Properties()
		entry["layerType"] = "ArcGISFeatureLayer"
		entry["url"] = v.URL()
		entry["title"] = fallback(opts.Title, props.Name)
		if props.ServiceItemID != "" {
			entry["itemId"] = props.ServiceItemID
		}
		wm.applyLayerDefinition(entry, opts)
		entry["popupInfo"] = popupInfo(entry["title"].(string), props.Fields)

	case *features.FeatureSet:
		title := fallback(opts.Title, "Notes")
		entry["layerType"] = "ArcGISFeatureLayer"
		entry["title"] = title
		collection, err := featureCollection(title, v, opts)
		if err != nil {
			return err
		}
		entry["featureCollection"] = collection

	case *MapImageLayer:
		props := v.Properties()
		entry["layerType"] = "ArcGISMapServiceLayer"
		entry["url"] = v.URL()
		entry["title"] = fallback(opts.Title, props.MapName)
		if props.ServiceItemID != "" {
			entry["itemId"] = props.ServiceItemID
		}

	case *VectorTileLayer:
		props := v.Properties()
		entry["layerType"] = "VectorTileLayer"
		entry["url"] = v.URL()
		entry["title"] = fallback(opts.Title, props.Name)
		styles := props.DefaultStyles
		if styles == "" {
			styles = "resources/styles"
		}
		entry["styleUrl"] = v.URL() + "/" + strings.TrimLeft(styles, "/")

	case *portal.Item:
		if err := wm.addItemLayer(entry, v, opts); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unsupported layer type %T", layer)
	}

	wm.doc["operationalLayers"] = append(wm.operationalLayers(), entry)
	return nil
}

func (wm *WebMap) addItemLayer(entry map[string]any, item *portal.Item, opts LayerOptions) error {
	entry["title"] = fallback(opts.Title, item.Title)
	entry["itemId"] = item.ID
	entry["url"] = item.URL

	switch item.Type {
	case "Feature Service":
		entry["layerType"] = "ArcGISFeatureLayer"
		wm.applyLayerDefinition(entry, opts)
	case "Map Service":
		entry["layerType"] = "ArcGISMapServiceLayer"
	case "Vector Tile Service":
		entry["layerType"] = "VectorTileLayer"
	default:
		return fmt.Errorf("unsupported item type %s", item.Type)
	}

	if wm.extent == nil && len(item.Extent) == 2 {
		wm.extent = &geometry.Extent{
			XMin: item.Extent[0][0], YMin: item.Extent[0][1],
			XMax: item.Extent[1][0], YMax: item.Extent[1][1],
			SpatialReference: &geometry.WGS84,
		}
	}
	return nil
}

func (wm *WebMap) applyLayerDefinition(entry map[string]any, opts LayerOptions) {
	definition := map[string]any{}
	if opts.DefinitionExpression != "" {
		definition["definitionExpression"] = opts.DefinitionExpression
	}
	if opts.Renderer != nil {
		definition["drawingInfo"] = map[string]any{"renderer": opts.Renderer}
	}
	if len(definition) > 0 {
		entry["layerDefinition"] = definition
	}
}

// RemoveLayer deletes the operational layer with the given id.
func (wm *WebMap) RemoveLayer(id string) error {
	stored := wm.operationalLayers()
	for i, raw := range stored {
		layer, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if layer["id"] == id {
			wm.doc["operationalLayers"] = append(stored[:i:i], stored[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("web map has no layer with id %s", id)
}

// Save stores the map as a new Web Map item. Title, snippet, and tags are
// required.
func (wm *WebMap) Save(ctx context.Context, owner, folderID string, props portal.ItemProperties) (*portal.Item, error) {
	if props.Title == "" || props.Snippet == "" || len(props.Tags) == 0 {
		return nil, fmt.Errorf("save needs a title, a snippet, and tags")
	}

	text, err := json.Marshal(wm.doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode web map: %w", err)
	}

	props.Type = "Web Map"
	props.Text = string(text)
	if props.Extent == "" && wm.extent != nil {
		props.Extent = wm.extent.Envelope()
	}

	item, err := wm.client.AddItem(ctx, owner, folderID, props)
	if err != nil {
		return nil, fmt.Errorf("failed to save web map: %w", err)
	}
	wm.item = item
	return item, nil
}

// Update writes the current document back into the backing item. The map
// must have been saved or loaded from an item.
func (wm *WebMap) Update(ctx context.Context) error {
	if wm.item == nil {
		return fmt.Errorf("web map is not backed by an item, save it first")
	}

	text, err := json.Marshal(wm.doc)
	if err != nil {
		return fmt.Errorf("failed to encode web map: %w", err)
	}

	props := portal.ItemProperties{Text: string(text)}
	if wm.extent != nil {
		props.Extent = wm.extent.Envelope()
	}
	if err := wm.client.UpdateItem(ctx, wm.item.Owner, wm.item.ID, props); err != nil {
		return fmt.Errorf("failed to update web map %s: %w", wm.item.ID, err)
	}
	return nil
}

func featureCollection(title string, fset *features.FeatureSet, opts LayerOptions) (map[string]any, error) {
	sr := fset.SpatialReference
	if sr == nil {
		sr = opts.SpatialReference
	}
	if sr == nil {
		sr = &geometry.WGS84
	}

	fixed, err := stampSpatialReference(fset.Features, sr)
	if err != nil {
		return nil, err
	}

	renderer := opts.Renderer
	if renderer == nil {
		symbol := opts.Symbol
		if symbol == nil {
			symbol = defaultSymbol(fset.GeometryType)
		}
		renderer = map[string]any{"type": "simple", "symbol": symbol}
	}

	layer := map[string]any{
		"featureSet": map[string]any{
			"features":     fixed,
			"geometryType": fset.GeometryType,
		},
		"layerDefinition": map[string]any{
			"name":             title,
			"type":             "Feature Layer",
			"geometryType":     fset.GeometryType,
			"objectIdField":    fallback(fset.ObjectIDField, "OBJECTID"),
			"fields":           fset.Fields,
			"spatialReference": sr,
			"drawingInfo":      map[string]any{"renderer": renderer},
		},
		"popupInfo": popupInfo(title, fset.Fields),
	}
	return map[string]any{"layers": []any{layer}}, nil
}

// stampSpatialReference gives every geometry an explicit spatial reference;
// viewers misplace features without one.
func stampSpatialReference(feats []features.Feature, sr *geometry.SpatialReference) ([]map[string]any, error) {
	fixed := make([]map[string]any, 0, len(feats))
	for _, feat := range feats {
		entry := map[string]any{"attributes": feat.Attributes}
		if len(feat.Geometry) > 0 {
			var geom map[string]any
			if err := json.Unmarshal(feat.Geometry, &geom); err != nil {
				return nil, fmt.Errorf("failed to decode feature geometry: %w", err)
			}
			if _, ok := geom["spatialReference"]; !ok {
				geom["spatialReference"] = sr
			}
			entry["geometry"] = geom
		}
		fixed = append(fixed, entry)
	}
	return fixed, nil
}

func defaultSymbol(geometryType string) map[string]any {
	switch geometryType {
	case features.GeometryPolyline:
		return map[string]any{
			"type":  "esriSLS",
			"style": "esriSLSSolid",
			"color": []int{0, 0, 0, 255},
			"width": 1.33,
		}
	case features.GeometryPolygon, features.GeometryEnvelope:
		return map[string]any{
			"type":  "esriSFS",
			"style": "esriSFSSolid",
			"color": []int{0, 0, 0, 64},
			"outline": map[string]any{
				"type":  "esriSLS",
				"style": "esriSLSSolid",
				"color": []int{0, 0, 0, 255},
				"width": 1.33,
			},
		}
	default:
		return map[string]any{
			"type":   "esriPMS",
			"url":    "https://static.arcgis.com/images/Symbols/Shapes/BluePin1LargeB.png",
			"width":  24,
			"height": 24,
			"angle":  0,
		}
	}
}

func popupInfo(title string, fields []features.Field) map[string]any {
	fieldInfos := make([]map[string]any, 0, len(fields))
	for _, field := range fields {
		label := field.Alias
		if label == "" {
			label = field.Name
		}
		fieldInfos = append(fieldInfos, map[string]any{
			"fieldName": field.Name,
			"label":     label,
			"visible":   true,
		})
	}
	return map[string]any{
		"title":           title,
		"fieldInfos":      fieldInfos,
		"showAttachments": true,
		"mediaInfos":      []any{},
	}
}

func fallback(value, alternative string) string {
	if value != "" {
		return value
	}
	return alternative
}

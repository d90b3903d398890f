package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pscheid92/geoportal/geometry"
	"github.com/pscheid92/geoportal/portal"
)

// VectorTileProperties is the service metadata for a vector tile service.
type VectorTileProperties struct {
	Name           string          `json:"name"`
	CurrentVersion float64         `json:"currentVersion"`
	Capabilities   string          `json:"capabilities"`
	DefaultStyles  string          `json:"defaultStyles"`
	FullExtent     geometry.Extent `json:"fullExtent"`
	InitialExtent  geometry.Extent `json:"initialExtent"`
	MinScale       float64         `json:"minScale"`
	MaxScale       float64         `json:"maxScale"`
	TileInfo       *TileInfo       `json:"tileInfo"`
}

// VectorTileLayer is a vector tile service endpoint serving PBF tiles plus
// style, sprite, and font resources.
type VectorTileLayer struct {
	client *portal.Client
	url    string
	props  VectorTileProperties
}

// NewVectorTile loads the vector tile service metadata at url.
func NewVectorTile(ctx context.Context, client *portal.Client, url string) (*VectorTileLayer, error) {
	l := &VectorTileLayer{client: client, url: strings.TrimRight(url, "/")}
	if err := client.Get(ctx, l.url, portal.NewParams(), &l.props); err != nil {
		return nil, fmt.Errorf("failed to load vector tile service %s: %w", url, err)
	}
	return l, nil
}

// VectorTileFromItem loads the vector tile service referenced by a portal
// item. The item type must be Vector Tile Service.
func VectorTileFromItem(ctx context.Context, client *portal.Client, item *portal.Item) (*VectorTileLayer, error) {
	if item.Type != "Vector Tile Service" {
		return nil, fmt.Errorf("item must be of type Vector Tile Service, not %s", item.Type)
	}
	return NewVectorTile(ctx, client, item.URL)
}

// URL returns the service endpoint.
func (l *VectorTileLayer) URL() string { return l.url }

// Properties returns the service metadata.
func (l *VectorTileLayer) Properties() VectorTileProperties { return l.props }

// Styles returns the default Mapbox style document of the service.
func (l *VectorTileLayer) Styles(ctx context.Context) (json.RawMessage, error) {
	styles := l.props.DefaultStyles
	if styles == "" {
		styles = "resources/styles"
	}
	var doc json.RawMessage
	if err := l.client.Get(ctx, l.url+"/"+strings.TrimLeft(styles, "/"), portal.NewParams(), &doc); err != nil {
		return nil, fmt.Errorf("failed to fetch styles: %w", err)
	}
	return doc, nil
}

// Info lists the resource files backing the service.
func (l *VectorTileLayer) Info(ctx context.Context) ([]string, error) {
	var resp struct {
		Resources []string `json:"resourceInfo"`
	}
	if err := l.client.Get(ctx, l.url+"/resources/info", portal.NewParams(), &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch resource info: %w", err)
	}
	return resp.Resources, nil
}

// Tile returns one PBF tile.
func (l *VectorTileLayer) Tile(ctx context.Context, level, row, column int) ([]byte, error) {
	target := fmt.Sprintf("%s/tile/%d/%d/%d.pbf", l.url, level, row, column)
	tile, err := l.client.GetBytes(ctx, target, portal.Params{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tile %d/%d/%d: %w", level, row, column, err)
	}
	return tile, nil
}

// TileFonts returns the glyphs of a font stack for the given range, e.g.
// "0-255".
func (l *VectorTileLayer) TileFonts(ctx context.Context, fontstack, glyphRange string) ([]byte, error) {
	target := fmt.Sprintf("%s/resources/fonts/%s/%s.pbf", l.url, fontstack, glyphRange)
	glyphs, err := l.client.GetBytes(ctx, target, portal.Params{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fonts %s %s: %w", fontstack, glyphRange, err)
	}
	return glyphs, nil
}

// Sprite returns a sprite resource. name is e.g. sprite.json or sprite.png;
// empty defaults to sprite.json.
func (l *VectorTileLayer) Sprite(ctx context.Context, name string) ([]byte, error) {
	if name == "" {
		name = "sprite.json"
	}
	sprite, err := l.client.GetBytes(ctx, l.url+"/resources/sprites/"+name, portal.Params{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sprite %s: %w", name, err)
	}
	return sprite, nil
}

package mapping

import (
	"context"
	"fmt"
	"strings"

	"github.com/pscheid92/geoportal/geometry"
	"github.com/pscheid92/geoportal/geoprocessing"
	"github.com/pscheid92/geoportal/jobs"
	"github.com/pscheid92/geoportal/portal"
)

// OfflineAreas manages the preplanned map areas of a web map through the
// portal's packaging geoprocessing service.
type OfflineAreas struct {
	client  *portal.Client
	item    *portal.Item
	toolbox *geoprocessing.Toolbox
}

// OfflineAreas returns the offline area manager of a saved web map. It fails
// when the portal advertises no packaging service.
func (wm *WebMap) OfflineAreas(ctx context.Context, opts ...geoprocessing.Option) (*OfflineAreas, error) {
	if wm.item == nil {
		return nil, fmt.Errorf("web map is not backed by an item, save it first")
	}

	self, err := wm.client.Self(ctx)
	if err != nil {
		return nil, err
	}
	packagingURL := self.HelperServices.Packaging.URL
	if packagingURL == "" {
		return nil, fmt.Errorf("portal advertises no packaging service")
	}

	return &OfflineAreas{
		client:  wm.client,
		item:    wm.item,
		toolbox: geoprocessing.New(wm.client, packagingURL, opts...),
	}, nil
}

// AreaOptions describe a new map area. Exactly one of Bookmark and Extent
// selects the covered region.
type AreaOptions struct {
	Bookmark string
	Extent   *geometry.Extent

	Title      string
	Snippet    string
	Tags       []string
	FolderName string // folder of the web map's owner; root when empty
}

// Create runs the CreateMapArea and SetupMapArea tools and returns the new
// Map Area item. Setup packages the area's layers server-side, so the call
// can take minutes.
func (oa *OfflineAreas) Create(ctx context.Context, opts AreaOptions) (*portal.Item, error) {
	if (opts.Bookmark == "") == (opts.Extent == nil) {
		return nil, fmt.Errorf("create needs exactly one of a bookmark or an extent")
	}

	params := portal.NewParams()
	params.Set("mapItemId", oa.item.ID)
	params.Set("bookmark", opts.Bookmark)
	if opts.Extent != nil {
		extent := *opts.Extent
		if extent.SpatialReference == nil {
			sr := geometry.WGS84
			extent.SpatialReference = &sr
		}
		if err := params.SetJSON("extent", extent); err != nil {
			return nil, err
		}
	}

	outputName := map[string]any{"title": opts.Title}
	if opts.Snippet != "" {
		outputName["snippet"] = opts.Snippet
	}
	if len(opts.Tags) > 0 {
		outputName["tags"] = strings.Join(opts.Tags, ",")
	}
	if opts.FolderName != "" {
		folderID, err := oa.folderID(ctx, opts.FolderName)
		if err != nil {
			return nil, err
		}
		outputName["folderId"] = folderID
	}
	if err := params.SetJSON("outputName", outputName); err != nil {
		return nil, err
	}

	info, job, err := oa.toolbox.Run(ctx, "CreateMapArea", params)
	if err != nil {
		return nil, fmt.Errorf("failed to create map area: %w", err)
	}

	var areaItemID string
	if err := oa.toolbox.Result(ctx, job, info, "mapAreaItemId", &areaItemID); err != nil {
		return nil, err
	}

	setupParams := portal.NewParams()
	setupParams.Set("mapAreaItemId", areaItemID)
	if _, _, err := oa.toolbox.Run(ctx, "SetupMapArea", setupParams); err != nil {
		return nil, fmt.Errorf("failed to set up map area %s: %w", areaItemID, err)
	}

	return oa.client.Item(ctx, areaItemID)
}

func (oa *OfflineAreas) folderID(ctx context.Context, name string) (string, error) {
	folders, err := oa.client.UserFolders(ctx, oa.item.Owner)
	if err != nil {
		return "", err
	}
	for _, folder := range folders {
		if folder.Title == name {
			return folder.ID, nil
		}
	}
	return "", fmt.Errorf("user %s has no folder named %s", oa.item.Owner, name)
}

// List returns the map area items of this web map.
func (oa *OfflineAreas) List(ctx context.Context) ([]portal.Item, error) {
	areas, err := oa.client.RelatedItems(ctx, oa.item.ID, "Map2Area", "forward")
	if err != nil {
		return nil, fmt.Errorf("failed to list map areas: %w", err)
	}
	return areas, nil
}

// Update re-packages the given map areas so clients download fresh data. With
// no areas given, every area of the web map is refreshed. The final job
// payload of RefreshMapAreaPackage is returned; nil when there was nothing
// to refresh.
func (oa *OfflineAreas) Update(ctx context.Context, areas ...portal.Item) (*jobs.Info, error) {
	if len(areas) == 0 {
		var err error
		areas, err = oa.List(ctx)
		if err != nil {
			return nil, err
		}
	}

	var packages []map[string]string
	for _, area := range areas {
		related, err := oa.client.RelatedItems(ctx, area.ID, "Area2Package", "forward")
		if err != nil {
			return nil, fmt.Errorf("failed to list packages of area %s: %w", area.ID, err)
		}
		for _, pkg := range related {
			packages = append(packages, map[string]string{"itemId": pkg.ID})
		}
	}
	if len(packages) == 0 {
		return nil, nil
	}

	params := portal.NewParams()
	if err := params.SetJSON("packages", packages); err != nil {
		return nil, err
	}

	info, _, err := oa.toolbox.Run(ctx, "RefreshMapAreaPackage", params)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh map area packages: %w", err)
	}
	return info, nil
}

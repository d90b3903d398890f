package portal

import (
	"context"
	"fmt"
	"strings"
)

// Item is a content item catalogued by the portal. Extent arrives as
// [[xmin,ymin],[xmax,ymax]] in WGS84.
type Item struct {
	ID          string      `json:"id"`
	Owner       string      `json:"owner"`
	Title       string      `json:"title"`
	Type        string      `json:"type"`
	Snippet     string      `json:"snippet"`
	Description string      `json:"description"`
	Tags        []string    `json:"tags"`
	URL         string      `json:"url"`
	Extent      [][]float64 `json:"extent"`
}

// ItemProperties describes a new or updated item. Title, Snippet, and Tags
// are mandatory when saving web maps.
type ItemProperties struct {
	Title        string
	Snippet      string
	Description  string
	Tags         []string
	Type         string
	TypeKeywords string
	Extent       string // "xmin,ymin,xmax,ymax"
	Text         string // item data payload, e.g. a web map document
	Access       string
}

func (p ItemProperties) params() Params {
	params := NewParams()
	params.Set("title", p.Title)
	params.Set("snippet", p.Snippet)
	params.Set("description", p.Description)
	params.Set("tags", strings.Join(p.Tags, ","))
	params.Set("type", p.Type)
	params.Set("typeKeywords", p.TypeKeywords)
	params.Set("extent", p.Extent)
	params.Set("text", p.Text)
	params.Set("access", p.Access)
	return params
}

// Folder is a folder in a user's content.
type Folder struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Item fetches an item's metadata by id.
func (c *Client) Item(ctx context.Context, itemID string) (*Item, error) {
	var item Item
	if err := c.Get(ctx, "content/items/"+itemID, NewParams(), &item); err != nil {
		return nil, fmt.Errorf("failed to fetch item %s: %w", itemID, err)
	}
	return &item, nil
}

// ItemData fetches an item's data payload (e.g. the web map JSON document)
// and decodes it into out.
func (c *Client) ItemData(ctx context.Context, itemID string, out any) error {
	if err := c.Get(ctx, "content/items/"+itemID+"/data", NewParams(), out); err != nil {
		return fmt.Errorf("failed to fetch item data for %s: %w", itemID, err)
	}
	return nil
}

type addItemResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// AddItem creates an item in the owner's content, optionally inside a
// folder, and returns the created item.
func (c *Client) AddItem(ctx context.Context, owner, folderID string, props ItemProperties) (*Item, error) {
	target := "content/users/" + owner + "/addItem"
	if folderID != "" {
		target = "content/users/" + owner + "/" + folderID + "/addItem"
	}

	var resp addItemResponse
	if err := c.Post(ctx, target, props.params(), &resp); err != nil {
		return nil, fmt.Errorf("failed to add item: %w", err)
	}
	if !resp.Success || resp.ID == "" {
		return nil, fmt.Errorf("portal did not accept the new item")
	}
	return c.Item(ctx, resp.ID)
}

// UpdateItem updates an existing item owned by owner.
func (c *Client) UpdateItem(ctx context.Context, owner, itemID string, props ItemProperties) error {
	target := "content/users/" + owner + "/items/" + itemID + "/update"

	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.Post(ctx, target, props.params(), &resp); err != nil {
		return fmt.Errorf("failed to update item %s: %w", itemID, err)
	}
	if !resp.Success {
		return fmt.Errorf("portal rejected the update of item %s", itemID)
	}
	return nil
}

// RelatedItems lists items related to itemID through the given relationship
// type (e.g. Map2Area, Area2Package) in the given direction.
func (c *Client) RelatedItems(ctx context.Context, itemID, relationshipType, direction string) ([]Item, error) {
	params := NewParams()
	params.Set("relationshipType", relationshipType)
	params.Set("direction", direction)

	var resp struct {
		RelatedItems []Item `json:"relatedItems"`
	}
	if err := c.Get(ctx, "content/items/"+itemID+"/relatedItems", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch related items for %s: %w", itemID, err)
	}
	return resp.RelatedItems, nil
}

// UserFolders lists the folders in a user's content.
func (c *Client) UserFolders(ctx context.Context, owner string) ([]Folder, error) {
	var resp struct {
		Folders []Folder `json:"folders"`
	}
	if err := c.Get(ctx, "content/users/"+owner, NewParams(), &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch folders for %s: %w", owner, err)
	}
	return resp.Folders, nil
}

// HelperServices are the utility service endpoints the portal advertises.
type HelperServices struct {
	Packaging struct {
		URL string `json:"url"`
	} `json:"packaging"`
}

// PortalSelf is the subset of the portal self resource the client uses.
type PortalSelf struct {
	Name           string         `json:"name"`
	IsPortal       bool           `json:"isPortal"`
	User           struct {
		Username string `json:"username"`
	} `json:"user"`
	HelperServices HelperServices `json:"helperServices"`
}

// Self fetches the portal self resource for the signed-in session.
func (c *Client) Self(ctx context.Context) (*PortalSelf, error) {
	var self PortalSelf
	if err := c.Get(ctx, "portals/self", NewParams(), &self); err != nil {
		return nil, fmt.Errorf("failed to fetch portal self: %w", err)
	}
	return &self, nil
}

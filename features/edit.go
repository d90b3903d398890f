package features

import (
	"context"
	"fmt"

	"github.com/pscheid92/geoportal/portal"
)

// EditResult reports the outcome of one feature edit.
type EditResult struct {
	ObjectID int64      `json:"objectId"`
	GlobalID string     `json:"globalId,omitempty"`
	Success  bool       `json:"success"`
	Error    *EditError `json:"error,omitempty"`
}

// EditError is the per-feature error detail inside an edit result.
type EditError struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
}

func (e *EditError) Error() string {
	return fmt.Sprintf("edit error %d: %s", e.Code, e.Description)
}

// EditResults groups the outcomes of an applyEdits call.
type EditResults struct {
	AddResults    []EditResult `json:"addResults"`
	UpdateResults []EditResult `json:"updateResults"`
	DeleteResults []EditResult `json:"deleteResults"`
}

// EditFeatures applies adds, updates, and deletes in one call. Updates must
// carry the object-id attribute; deletes are object ids.
func (l *FeatureLayer) EditFeatures(ctx context.Context, adds, updates []Feature, deletes []int64) (*EditResults, error) {
	if len(adds) == 0 && len(updates) == 0 && len(deletes) == 0 {
		return nil, fmt.Errorf("no edits given")
	}

	params := portal.NewParams()
	if len(adds) > 0 {
		if err := params.SetJSON("adds", adds); err != nil {
			return nil, err
		}
	}
	if len(updates) > 0 {
		if err := params.SetJSON("updates", updates); err != nil {
			return nil, err
		}
	}
	if len(deletes) > 0 {
		params.Set("deletes", joinIDs(deletes))
	}

	var results EditResults
	if err := l.client.Post(ctx, l.url+"/applyEdits", params, &results); err != nil {
		return nil, fmt.Errorf("failed to apply edits: %w", err)
	}
	return &results, nil
}

// DeleteFeatures deletes features by object id, by where clause, or both.
func (l *FeatureLayer) DeleteFeatures(ctx context.Context, where string, objectIDs []int64) ([]EditResult, error) {
	if where == "" && len(objectIDs) == 0 {
		return nil, fmt.Errorf("deleteFeatures needs a where clause or object ids")
	}

	params := portal.NewParams()
	params.Set("where", where)
	if len(objectIDs) > 0 {
		params.Set("objectIds", joinIDs(objectIDs))
	}

	var resp struct {
		DeleteResults []EditResult `json:"deleteResults"`
	}
	if err := l.client.Post(ctx, l.url+"/deleteFeatures", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to delete features: %w", err)
	}
	return resp.DeleteResults, nil
}

// ValidateSQL checks a SQL-92 expression against the service before it is
// used in another operation. sqlType is where, expression, or statement.
func (l *FeatureLayer) ValidateSQL(ctx context.Context, sql, sqlType string) error {
	if sqlType == "" {
		sqlType = "where"
	}
	params := portal.NewParams()
	params.Set("sql", sql)
	params.Set("sqlType", sqlType)

	var resp struct {
		IsValidSQL       bool `json:"isValidSQL"`
		ValidationErrors []struct {
			ErrorCode   string `json:"errorCode"`
			Description string `json:"description"`
		} `json:"validationErrors"`
	}
	if err := l.client.Post(ctx, l.url+"/validateSQL", params, &resp); err != nil {
		return fmt.Errorf("failed to validate sql: %w", err)
	}
	if !resp.IsValidSQL {
		if len(resp.ValidationErrors) > 0 {
			return fmt.Errorf("invalid sql: %s", resp.ValidationErrors[0].Description)
		}
		return fmt.Errorf("invalid sql")
	}
	return nil
}

package apiclient

import (
	"context"
	"net/http"
	"net/url"
)

// EntityPath is the collection path of an entity, /api/{entity}.
func EntityPath(entity string) string {
	return "/api/" + url.PathEscape(entity)
}

// ItemPath is the path of one record, /api/{entity}/{id}.
func ItemPath(entity, id string) string {
	return EntityPath(entity) + "/" + url.PathEscape(id)
}

// List fetches every record of an entity. query is passed through as the query string and
// may be nil.
func List[T any](ctx context.Context, c *Client, entity string, query url.Values) ([]T, error) {
	path := EntityPath(entity)
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var items []T
	if err := c.GetJSON(ctx, path, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Get fetches one record. A missing record fails with apierrors.ErrEndpointNotFound.
func Get[T any](ctx context.Context, c *Client, entity, id string) (*T, error) {
	var item T
	if err := c.GetJSON(ctx, ItemPath(entity, id), &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Insert creates a record and returns the server's copy of it. A duplicate fails with
// apierrors.ErrConflict.
func Insert[T any](ctx context.Context, c *Client, entity string, item T) (*T, error) {
	created := item
	if err := c.sendJSON(ctx, http.MethodPost, EntityPath(entity), item, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func Update[T any](ctx context.Context, c *Client, entity, id string, item T) error {
	return c.PutJSON(ctx, ItemPath(entity, id), item, nil)
}

func Remove(ctx context.Context, c *Client, entity, id string) error {
	return c.Delete(ctx, ItemPath(entity, id))
}

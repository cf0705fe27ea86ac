package backend

import (
	"context"
	"encoding/json"
	"net/http"
)

// Kind names one backend record collection. The backend lists and creates
// under the plural path and addresses single records under the singular one.
type Kind struct {
	Plural   string
	Singular string
}

var (
	Customers  = Kind{Plural: "customers", Singular: "customer"}
	Vendors    = Kind{Plural: "vendors", Singular: "vendor"}
	People     = Kind{Plural: "people", Singular: "person"}
	Attributes = Kind{Plural: "attributes", Singular: "attribute"}
)

func (k Kind) collectionPath() string {
	return "/" + k.Plural
}

func (k Kind) recordPath(id string) string {
	return "/" + k.Singular + "/" + escape(id)
}

func List[T any](ctx context.Context, c *Client, kind Kind) ([]T, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, kind.collectionPath(), nil, nil, &raw); err != nil {
		return nil, err
	}
	var items []T
	if err := unwrap(raw, &items, kind.Plural, "data", "items"); err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func Get[T any](ctx context.Context, c *Client, kind Kind, id string) (T, error) {
	var zero T
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, kind.recordPath(id), nil, nil, &raw); err != nil {
		return zero, err
	}
	var record T
	if err := unwrap(raw, &record, kind.Singular, "data"); err != nil {
		return zero, err
	}
	return record, nil
}

// Create posts record as flat JSON. When the backend answers with the stored
// record it is returned, otherwise the submitted record is.
func Create[T any](ctx context.Context, c *Client, kind Kind, record T) (T, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, kind.collectionPath(), nil, record, &raw); err != nil {
		var zero T
		return zero, err
	}
	created := record
	if err := unwrap(raw, &created, kind.Singular, "data"); err != nil {
		return record, nil
	}
	return created, nil
}

func Delete(ctx context.Context, c *Client, kind Kind, id string) error {
	return c.do(ctx, http.MethodDelete, kind.recordPath(id), nil, nil, nil)
}

package transport

import (
	"context"
	"encoding/json"
)

// Page is one page of a list endpoint.
type Page struct {
	Items   []json.RawMessage
	HasMore bool
}

// PageFunc fetches one page. Pages are numbered from 1.
type PageFunc func(ctx context.Context, page, perPage int) (Page, error)

// FetchAll merges paginated responses into one flat sequence in request
// order. It stops when the server reports no further pages, returns an
// empty page, or maxPages is reached. Callers never see page cursors.
func FetchAll(ctx context.Context, perPage, maxPages int, fetch PageFunc) ([]json.RawMessage, error) {
	var items []json.RawMessage
	for page := 1; maxPages <= 0 || page <= maxPages; page++ {
		p, err := fetch(ctx, page, perPage)
		if err != nil {
			return nil, err
		}
		if len(p.Items) == 0 {
			break
		}
		items = append(items, p.Items...)
		if !p.HasMore {
			break
		}
	}
	return items, nil
}

package infast

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ItemService wraps the catalog item endpoints.
type ItemService struct {
	client *Client
}

// Create creates an item and returns its id.
func (s *ItemService) Create(ctx context.Context, payload ItemPayload) (string, error) {
	var resp envelope[created]
	if err := s.client.Do(ctx, Request{Method: http.MethodPost, Path: "items", Body: payload}, &resp); err != nil {
		return "", fmt.Errorf("create item: %w", err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("create item: response carries no id: %w", ErrMalformedResponse)
	}
	return string(resp.Data.ID), nil
}

// Update patches an existing item.
func (s *ItemService) Update(ctx context.Context, itemID string, payload ItemPayload) error {
	err := s.client.Do(ctx, Request{
		Method: http.MethodPatch,
		Path:   "items/" + url.PathEscape(itemID),
		Body:   payload,
	}, nil)
	if err != nil {
		return fmt.Errorf("update item %s: %w", itemID, err)
	}
	return nil
}

// Delete removes an item.
func (s *ItemService) Delete(ctx context.Context, itemID string) error {
	err := s.client.Do(ctx, Request{
		Method: http.MethodDelete,
		Path:   "items/" + url.PathEscape(itemID),
	}, nil)
	if err != nil {
		return fmt.Errorf("delete item %s: %w", itemID, err)
	}
	return nil
}

// FindByReference returns the first item with the given reference.
func (s *ItemService) FindByReference(ctx context.Context, reference string) (*Item, bool, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, false, nil
	}

	var resp envelope[[]Item]
	err := s.client.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   "items",
		Query:  map[string]string{"reference": reference, "limit": "1"},
	}, &resp)
	if err != nil {
		if IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("find item by reference: %w", err)
	}

	if len(resp.Data) == 0 || resp.Data[0].ID == "" {
		return nil, false, nil
	}
	return &resp.Data[0], true, nil
}

// Package infast is a client for the INFast invoicing API: OAuth2
// client-credentials authentication with a shared token cache, a request
// helper with a single retry on 401, and typed services per resource.
package infast

import (
	"context"
	"fmt"
	"net/http"
)

// API groups the resource services over one Client.
type API struct {
	client *Client

	Customers *CustomerService
	Documents *DocumentService
	Items     *ItemService
}

// New creates an API for the given credentials.
func New(creds Credentials, opts ...Option) *API {
	return NewFromClient(NewClient(creds, opts...))
}

// NewFromClient builds the services over an existing client.
func NewFromClient(client *Client) *API {
	return &API{
		client:    client,
		Customers: &CustomerService{client: client},
		Documents: &DocumentService{client: client},
		Items:     &ItemService{client: client},
	}
}

// Client returns the underlying transport.
func (a *API) Client() *Client {
	return a.client
}

// Portal returns the account portal information as decoded JSON.
func (a *API) Portal(ctx context.Context) (map[string]any, error) {
	var resp map[string]any
	if err := a.client.Do(ctx, Request{Method: http.MethodGet, Path: "portal"}, &resp); err != nil {
		return nil, fmt.Errorf("portal: %w", err)
	}
	return resp, nil
}

package infast

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
)

// CustomerService wraps the customer endpoints.
type CustomerService struct {
	client *Client
}

// Me returns the account the credentials belong to.
func (s *CustomerService) Me(ctx context.Context) (*Account, error) {
	var resp envelope[Account]
	if err := s.client.Do(ctx, Request{Method: http.MethodGet, Path: "me"}, &resp); err != nil {
		return nil, fmt.Errorf("me: %w", err)
	}
	return &resp.Data, nil
}

// FindByEmail looks up a customer by email. An empty or invalid address and
// a not-found answer both report found=false without error.
func (s *CustomerService) FindByEmail(ctx context.Context, email string) (*Customer, bool, error) {
	email = strings.TrimSpace(email)
	if !ValidEmail(email) {
		return nil, false, nil
	}

	var resp envelope[[]Customer]
	err := s.client.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   "customers",
		Query:  map[string]string{"email": email, "limit": "1"},
	}, &resp)
	if err != nil {
		if IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("find customer by email: %w", err)
	}

	if len(resp.Data) == 0 || resp.Data[0].ID == "" {
		return nil, false, nil
	}
	return &resp.Data[0], true, nil
}

// Create creates a customer and returns its id.
func (s *CustomerService) Create(ctx context.Context, payload CustomerPayload) (string, error) {
	if strings.TrimSpace(payload.Name) == "" {
		return "", NewValidationError("name", payload.Name, "customer name is required")
	}
	if payload.Email != "" && !ValidEmail(payload.Email) {
		return "", NewValidationError("email", payload.Email, "invalid email address")
	}

	var resp envelope[created]
	if err := s.client.Do(ctx, Request{Method: http.MethodPost, Path: "customers", Body: payload}, &resp); err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("create customer: response carries no id: %w", ErrMalformedResponse)
	}
	return string(resp.Data.ID), nil
}

// ValidEmail reports whether s is a bare, well-formed email address.
func ValidEmail(s string) bool {
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

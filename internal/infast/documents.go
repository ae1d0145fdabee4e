package infast

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
)

// DocumentService wraps the document endpoints.
type DocumentService struct {
	client *Client
}

// Create creates a document and returns its id.
func (s *DocumentService) Create(ctx context.Context, payload DocumentPayload) (string, error) {
	if payload.CustomerID == "" {
		return "", NewValidationError("customerId", payload.CustomerID, "customer id is required")
	}
	if len(payload.Lines) == 0 {
		return "", NewValidationError("lines", len(payload.Lines), "document needs at least one line")
	}

	var resp envelope[created]
	if err := s.client.Do(ctx, Request{Method: http.MethodPost, Path: "documents", Body: payload}, &resp); err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("create document: response carries no id: %w", ErrMalformedResponse)
	}
	return string(resp.Data.ID), nil
}

// AddPayment records a payment on a document and returns the payment id.
func (s *DocumentService) AddPayment(ctx context.Context, documentID string, payload PaymentPayload) (string, error) {
	var resp envelope[created]
	err := s.client.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "documents/" + url.PathEscape(documentID) + "/payment",
		Body:   payload,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("add payment on document %s: %w", documentID, err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("add payment on document %s: response carries no id: %w", documentID, ErrMalformedResponse)
	}
	return string(resp.Data.ID), nil
}

// SendEmail asks the service to email the document to its customer.
func (s *DocumentService) SendEmail(ctx context.Context, documentID string, payload EmailPayload) error {
	err := s.client.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "documents/" + url.PathEscape(documentID) + "/messages",
		Body:   payload,
	}, nil)
	if err != nil {
		return fmt.Errorf("send document %s by email: %w", documentID, err)
	}
	return nil
}

type pdfResponse struct {
	PDF  string `json:"pdfB64"`
	Data *struct {
		PDF string `json:"pdfB64"`
	} `json:"data"`
}

// ExportPDF downloads the rendered document.
func (s *DocumentService) ExportPDF(ctx context.Context, documentID string) ([]byte, error) {
	var resp pdfResponse
	err := s.client.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   "documents/" + url.PathEscape(documentID) + "/pdf",
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("export document %s: %w", documentID, err)
	}

	encoded := resp.PDF
	if encoded == "" && resp.Data != nil {
		encoded = resp.Data.PDF
	}
	if encoded == "" {
		return nil, fmt.Errorf("export document %s: response carries no pdfB64: %w", documentID, ErrMalformedResponse)
	}

	pdf, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &MalformedResponseError{Status: http.StatusOK, Err: fmt.Errorf("decode pdfB64: %w", err)}
	}
	return pdf, nil
}

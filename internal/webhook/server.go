// Package webhook receives INFast events. The only event acted upon is
// customer.deleted, which forgets every cached link to the deleted customer
// so the next order recreates or rematches it.
package webhook

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"invoicesync/internal/logger"
)

const (
	// EventCustomerDeleted is the event that clears customer links.
	EventCustomerDeleted = "customer.deleted"

	maxBodyBytes   = 1 << 20
	requestTimeout = 30 * time.Second
)

// CustomerStore forgets user-level customer links.
type CustomerStore interface {
	ClearCustomerRef(ctx context.Context, customerRef string) (int, error)
}

// Handler serves the webhook routes.
type Handler struct {
	store CustomerStore
	token string
	log   zerolog.Logger
}

// NewHandler creates a Handler. An empty token accepts unauthenticated
// deliveries.
func NewHandler(st CustomerStore, token string) *Handler {
	return &Handler{
		store: st,
		token: strings.TrimSpace(token),
		log:   logger.WithComponent("webhook"),
	}
}

// Router returns the chi router with the listener routes mounted.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(requestTimeout))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(req.Context(), w, newError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeError(req.Context(), w, newError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", h.Healthz)
	r.Route("/webhooks", func(wh chi.Router) {
		wh.Use(h.requireToken)
		wh.Post("/customer-deleted", h.CustomerDeleted)
	})
	return r
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token == "" {
			next.ServeHTTP(w, r)
			return
		}

		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			writeError(r.Context(), w, newError("unauthorized", "Authorization header is missing", http.StatusUnauthorized))
			return
		}
		provided, ok := bearerToken(header)
		if !ok {
			writeError(r.Context(), w, newError("invalid_header", "Authorization header carries no Bearer token", http.StatusUnauthorized))
			return
		}
		if subtle.ConstantTimeCompare([]byte(h.token), []byte(provided)) != 1 {
			h.log.Warn().Str("remote_addr", r.RemoteAddr).Msg("Webhook delivery with an invalid token")
			writeError(r.Context(), w, newError("forbidden", "invalid webhook token", http.StatusForbidden))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token of a "Bearer <token>" header. The token
// itself may be blank.
func bearerToken(header string) (string, bool) {
	scheme, rest, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// CustomerDeleted handles a customer.deleted delivery. Other events are
// acknowledged without effect.
func (h *Handler) CustomerDeleted(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.With().Str("request_id", middleware.GetReqID(ctx)).Logger()

	p, err := decodePayload(r.Body)
	if err != nil {
		log.Debug().Err(err).Msg("Invalid webhook payload")
		writeError(ctx, w, newError("invalid_payload", "webhook body is empty or not a JSON object", http.StatusBadRequest))
		return
	}

	event := eventID(p)
	if event == "" {
		writeError(ctx, w, newError("missing_event", "cannot determine the webhook event type", http.StatusBadRequest))
		return
	}
	if event != EventCustomerDeleted {
		log.Info().Str("event", event).Msg("Webhook event ignored")
		writeJSON(w, http.StatusOK, map[string]any{"handled": false, "event": event})
		return
	}

	ref := customerID(p)
	if ref == "" {
		writeError(ctx, w, newError("missing_customer", "customer.deleted event carries no customer id", http.StatusBadRequest))
		return
	}

	cleared, err := h.store.ClearCustomerRef(ctx, ref)
	if err != nil {
		log.Error().Err(err).Str("customer_ref", ref).Msg("Failed to clear customer links")
		writeError(ctx, w, newError("store_error", "failed to clear customer links", http.StatusInternalServerError))
		return
	}

	log.Info().Str("customer_ref", ref).Int("cleared", cleared).Msg("Customer links cleared")
	writeJSON(w, http.StatusOK, map[string]any{
		"handled":    true,
		"event":      event,
		"customerId": ref,
		"cleared":    cleared,
	})
}

type eventPayload map[string]any

func decodePayload(body io.Reader) (eventPayload, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var p eventPayload
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	if len(p) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	return p, nil
}

func eventID(p eventPayload) string {
	event, _ := p["event"].(map[string]any)
	for _, v := range []any{lookup(event, "eventId"), lookup(event, "event"), p["eventId"]} {
		if s := scalar(v); s != "" {
			return s
		}
	}
	if s, ok := p["event"].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func customerID(p eventPayload) string {
	event, _ := p["event"].(map[string]any)
	data, _ := lookup(event, "data").(map[string]any)
	customer, _ := lookup(data, "customer").(map[string]any)
	for _, v := range []any{lookup(data, "customerId"), lookup(customer, "id"), lookup(event, "customerId"), p["customerId"]} {
		if s := scalar(v); s != "" {
			return s
		}
	}
	return ""
}

func lookup(m map[string]any, key string) any {
	if m == nil {
		return nil
	}
	return m[key]
}

// scalar renders strings and numbers; anything else is treated as absent.
func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		if t.String() == "0" {
			return ""
		}
		return t.String()
	}
	return ""
}

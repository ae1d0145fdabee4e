// Package catalog mirrors shop products as INFast catalog items.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"invoicesync/internal/infast"
	"invoicesync/internal/logger"
	"invoicesync/pkg/models"
)

// ItemAPI is the slice of the item service the syncer needs.
type ItemAPI interface {
	Create(ctx context.Context, payload infast.ItemPayload) (string, error)
	Update(ctx context.Context, itemID string, payload infast.ItemPayload) error
	Delete(ctx context.Context, itemID string) error
	FindByReference(ctx context.Context, reference string) (*infast.Item, bool, error)
}

// Store keeps the product to item links.
type Store interface {
	ItemRef(ctx context.Context, productID int64) (string, error)
	SetItemRef(ctx context.Context, productID int64, ref string) error
	DeleteItemRef(ctx context.Context, productID int64) error
	LinkedProducts(ctx context.Context) (map[int64]string, error)
}

// Action is what a sync did to the remote item.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
	ActionNone    Action = "none"
)

// ErrMissingItemID is returned when a create answers without an id.
var ErrMissingItemID = errors.New("catalog: INFast returned no item id")

// Result describes one product operation.
type Result struct {
	ProductID int64
	Action    Action
	ItemRef   string
}

// Summary aggregates a bulk operation.
type Summary struct {
	Synced  int // Created or updated
	Deleted int
	Failed  int
	Errors  []string
}

// Options tune the syncer.
type Options struct {
	SkipDescriptions bool
	Workers          int
}

// Syncer pushes products to the remote catalog.
type Syncer struct {
	items ItemAPI
	store Store
	opts  Options
	log   zerolog.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(items ItemAPI, st Store, opts Options) *Syncer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Syncer{
		items: items,
		store: st,
		opts:  opts,
		log:   logger.WithComponent("catalog"),
	}
}

// SyncProduct creates or updates the item of a published product and
// deletes the item of any other product.
func (s *Syncer) SyncProduct(ctx context.Context, p models.Product) (Result, error) {
	if !p.IsPublished() {
		return s.DeleteProduct(ctx, p.ID)
	}

	const op = "catalog.SyncProduct"
	log := s.log.With().Int64("product_id", p.ID).Logger()
	payload := ItemPayload(p, s.opts.SkipDescriptions)
	res := Result{ProductID: p.ID, Action: ActionNone}

	ref, err := s.store.ItemRef(ctx, p.ID)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	if ref == "" && payload.Reference != "" {
		existing, found, err := s.items.FindByReference(ctx, payload.Reference)
		if err != nil {
			log.Warn().Err(err).Str("reference", payload.Reference).Msg("Item lookup by reference failed")
		} else if found {
			ref = string(existing.ID)
			log.Debug().Str("item_ref", ref).Msg("Matched existing item by reference")
		}
	}

	if ref != "" {
		err := s.items.Update(ctx, ref, payload)
		switch {
		case err == nil:
			if err := s.store.SetItemRef(ctx, p.ID, ref); err != nil {
				return res, fmt.Errorf("%s: %w", op, err)
			}
			log.Info().Str("item_ref", ref).Msg("Item updated")
			res.Action, res.ItemRef = ActionUpdated, ref
			return res, nil
		case infast.IsNotFound(err):
			log.Warn().Str("item_ref", ref).Msg("Stale item reference, creating a new item")
		default:
			log.Error().Err(err).Msg("Product synchronization failed")
			return res, fmt.Errorf("%s: %w", op, err)
		}
	}

	ref, err = s.items.Create(ctx, payload)
	if err != nil {
		log.Error().Err(err).Msg("Product synchronization failed")
		return res, fmt.Errorf("%s: %w", op, err)
	}
	if ref == "" {
		return res, fmt.Errorf("%s: %w", op, ErrMissingItemID)
	}
	if err := s.store.SetItemRef(ctx, p.ID, ref); err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	log.Info().Str("item_ref", ref).Msg("Item created")
	res.Action, res.ItemRef = ActionCreated, ref
	return res, nil
}

// DeleteProduct removes the item linked to productID. Products without a
// link are a no-op and an item already gone remotely counts as deleted.
func (s *Syncer) DeleteProduct(ctx context.Context, productID int64) (Result, error) {
	const op = "catalog.DeleteProduct"
	res := Result{ProductID: productID, Action: ActionNone}

	ref, err := s.store.ItemRef(ctx, productID)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	if ref == "" {
		return res, nil
	}

	if err := s.items.Delete(ctx, ref); err != nil && !infast.IsNotFound(err) {
		s.log.Error().Err(err).Int64("product_id", productID).Str("item_ref", ref).Msg("Item deletion failed")
		return res, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.store.DeleteItemRef(ctx, productID); err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info().Int64("product_id", productID).Str("item_ref", ref).Msg("Item deleted")
	res.Action, res.ItemRef = ActionDeleted, ref
	return res, nil
}

// SyncAll runs SyncProduct for every product. Failures are collected and
// never stop the run.
func (s *Syncer) SyncAll(ctx context.Context, products []models.Product) Summary {
	results := make([]Result, len(products))
	errs := make([]error, len(products))

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for i := range products {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i], errs[i] = Result{ProductID: products[i].ID}, err
				return nil
			}
			results[i], errs[i] = s.SyncProduct(ctx, products[i])
			return nil
		})
	}
	_ = g.Wait()

	var summary Summary
	for i, res := range results {
		switch {
		case errs[i] != nil:
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("#%d: %s", res.ProductID, errs[i]))
		case res.Action == ActionDeleted:
			summary.Deleted++
		case res.Action == ActionCreated || res.Action == ActionUpdated:
			summary.Synced++
		}
	}

	s.log.Info().
		Int("total", len(products)).
		Int("synced", summary.Synced).
		Int("deleted", summary.Deleted).
		Int("failed", summary.Failed).
		Msg("Catalog synchronization completed")
	return summary
}

// UnlinkAll deletes every linked item and forgets the links. A link is
// dropped locally even when the remote deletion fails.
func (s *Syncer) UnlinkAll(ctx context.Context) (Summary, error) {
	linked, err := s.store.LinkedProducts(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("catalog.UnlinkAll: %w", err)
	}

	ids := make([]int64, 0, len(linked))
	for id := range linked {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var (
		mu      sync.Mutex
		summary Summary
		g       errgroup.Group
	)
	g.SetLimit(s.opts.Workers)
	for _, id := range ids {
		ref := linked[id]
		g.Go(func() error {
			err := s.items.Delete(ctx, ref)
			if err != nil && !infast.IsNotFound(err) {
				s.log.Error().Err(err).Int64("product_id", id).Str("item_ref", ref).Msg("Remote item deletion failed")
			} else {
				err = nil
			}
			localErr := s.store.DeleteItemRef(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				summary.Failed++
				summary.Errors = append(summary.Errors, fmt.Sprintf("#%d: %s", id, err))
			case localErr != nil:
				summary.Failed++
				summary.Errors = append(summary.Errors, fmt.Sprintf("#%d: %s", id, localErr))
			default:
				summary.Deleted++
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(summary.Errors)

	s.log.Info().
		Int("linked", len(ids)).
		Int("deleted", summary.Deleted).
		Int("failed", summary.Failed).
		Msg("Catalog unlink completed")
	return summary, nil
}

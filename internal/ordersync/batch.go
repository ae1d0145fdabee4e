package ordersync

import (
	"context"
	"fmt"
	"sync"

	"invoicesync/pkg/models"
)

// Outcome pairs a Result with its error.
type Outcome struct {
	Result
	Err error
}

// Status classifies the outcome: "synced", "skipped", "warning" or "error".
func (o Outcome) Status() string {
	switch {
	case o.Err != nil:
		return "error"
	case o.Skipped:
		return "skipped"
	case len(o.Warnings) > 0:
		return "warning"
	default:
		return "synced"
	}
}

// Summary aggregates a bulk run. Outcomes keep the input order.
type Summary struct {
	Outcomes []Outcome
	Synced   int
	Skipped  int
	Failed   int
	Errors   []string
}

// ProgressFunc is called after each order completes.
type ProgressFunc func(done, total int, outcome Outcome)

type job struct {
	order *models.Order
	index int
}

// SyncAll synchronizes orders with a pool of workers. A failing order never
// stops the batch.
func (s *Synchronizer) SyncAll(ctx context.Context, orders []*models.Order, workers int, progress ProgressFunc) Summary {
	if workers < 1 {
		workers = 1
	}
	if workers > len(orders) {
		workers = len(orders)
	}

	jobs := make(chan job, len(orders))
	outcomes := make([]Outcome, len(orders))

	var mu sync.Mutex
	var done int

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for j := range jobs {
				s.log.Debug().
					Int("worker", workerID).
					Int64("order_id", j.order.ID).
					Int("index", j.index+1).
					Msg("Worker processing order")

				var outcome Outcome
				if err := ctx.Err(); err != nil {
					outcome = Outcome{Result: Result{OrderID: j.order.ID, State: StateNotStarted}, Err: err}
				} else {
					res, err := s.Sync(ctx, j.order)
					outcome = Outcome{Result: res, Err: err}
				}
				outcomes[j.index] = outcome

				mu.Lock()
				done++
				if progress != nil {
					progress(done, len(orders), outcome)
				}
				mu.Unlock()
			}
		}(w)
	}

	for i, order := range orders {
		jobs <- job{order: order, index: i}
	}
	close(jobs)
	wg.Wait()

	summary := Summary{Outcomes: outcomes}
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("#%d: %s", o.OrderID, o.Err))
		case o.Skipped:
			summary.Skipped++
		default:
			summary.Synced++
		}
	}

	s.log.Info().
		Int("total", len(orders)).
		Int("synced", summary.Synced).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("Bulk synchronization completed")

	return summary
}

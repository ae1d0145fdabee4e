package ordersync

import (
	"context"
	"fmt"
	"sync"

	"invoicesync/internal/infast"
)

// Recorder stands in for the INFast customer and document services during a
// dry run. Every call succeeds with a generated reference and nothing leaves
// the process.
type Recorder struct {
	mu        sync.Mutex
	seq       int
	customers []infast.CustomerPayload
	documents []infast.DocumentPayload
	payments  []infast.PaymentPayload
	emails    []string // Document refs
}

// RecorderCounts is how many remote entities a dry run would have created.
type RecorderCounts struct {
	Customers int
	Documents int
	Payments  int
	Emails    int
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// NewDryRun wires a Synchronizer whose INFast calls are recorded by rec.
func NewDryRun(rec *Recorder, st Store, settings Settings, opts ...Option) *Synchronizer {
	return New(rec, documentRecorder{rec}, st, settings, opts...)
}

func (r *Recorder) next(prefix string) string {
	r.seq++
	return fmt.Sprintf("dry-%s-%d", prefix, r.seq)
}

// FindByEmail never finds a customer, so every order shows its create call.
func (r *Recorder) FindByEmail(_ context.Context, _ string) (*infast.Customer, bool, error) {
	return nil, false, nil
}

func (r *Recorder) Create(_ context.Context, payload infast.CustomerPayload) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customers = append(r.customers, payload)
	return r.next("customer"), nil
}

// documentRecorder adapts Recorder to DocumentAPI; Create is taken by the
// customer side.
type documentRecorder struct {
	*Recorder
}

func (d documentRecorder) Create(_ context.Context, payload infast.DocumentPayload) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.documents = append(d.documents, payload)
	return d.next("document"), nil
}

func (d documentRecorder) AddPayment(_ context.Context, _ string, payload infast.PaymentPayload) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payments = append(d.payments, payload)
	return d.next("payment"), nil
}

func (d documentRecorder) SendEmail(_ context.Context, documentID string, _ infast.EmailPayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emails = append(d.emails, documentID)
	return nil
}

// Documents returns the invoice payloads recorded so far.
func (r *Recorder) Documents() []infast.DocumentPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]infast.DocumentPayload(nil), r.documents...)
}

// Counts reports the recorded calls.
func (r *Recorder) Counts() RecorderCounts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RecorderCounts{
		Customers: len(r.customers),
		Documents: len(r.documents),
		Payments:  len(r.payments),
		Emails:    len(r.emails),
	}
}

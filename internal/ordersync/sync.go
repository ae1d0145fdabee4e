// Package ordersync pushes orders to INFast: it resolves the customer,
// creates the invoice, records the payment and optionally emails the
// invoice. Every step persists its result, so a failed run resumes where it
// stopped and a finished order is never pushed twice.
package ordersync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"invoicesync/internal/infast"
	"invoicesync/internal/invoice"
	"invoicesync/internal/logger"
	"invoicesync/internal/store"
	"invoicesync/pkg/models"
)

// State is a workflow step.
type State string

const (
	StateNotStarted       State = "NOT_STARTED"
	StateCustomerResolved State = "CUSTOMER_RESOLVED"
	StateDocumentCreated  State = "DOCUMENT_CREATED"
	StatePaymentRecorded  State = "PAYMENT_RECORDED"
	StateEmailSent        State = "EMAIL_SENT"
	StateEmailSkipped     State = "EMAIL_SKIPPED"
	StateDone             State = "DONE"
)

// CustomerAPI is the slice of the customer service the workflow needs.
type CustomerAPI interface {
	FindByEmail(ctx context.Context, email string) (*infast.Customer, bool, error)
	Create(ctx context.Context, payload infast.CustomerPayload) (string, error)
}

// DocumentAPI is the slice of the document service the workflow needs.
type DocumentAPI interface {
	Create(ctx context.Context, payload infast.DocumentPayload) (string, error)
	AddPayment(ctx context.Context, documentID string, payload infast.PaymentPayload) (string, error)
	SendEmail(ctx context.Context, documentID string, payload infast.EmailPayload) error
}

// Store persists references, the sync marker and order notes.
type Store interface {
	OrderRefs(ctx context.Context, orderID int64) (models.OrderRefs, error)
	AcquireSync(ctx context.Context, orderID int64) (bool, error)
	ReleaseSync(ctx context.Context, orderID int64) error
	SetOrderRef(ctx context.Context, orderID int64, kind, ref string) error
	MarkEmailSent(ctx context.Context, orderID int64) error
	UserCustomerRef(ctx context.Context, userID int64) (string, error)
	SetUserCustomerRef(ctx context.Context, userID int64, ref string) error
	AddOrderNote(ctx context.Context, orderID int64, message string) error
}

// Settings are the sync options.
type Settings struct {
	AutoEmail          bool
	EmailCC            string
	SkipDescriptions   bool
	TriggerStatuses    []string // Order statuses that start a sync, with or without the "wc-" prefix
	LegalNoticeEnabled bool
	LegalNotice        string
	TestPaymentMethods []string // Gateways whose orders are never invoiced
}

// DefaultSettings mirror the shop plugin defaults.
func DefaultSettings() Settings {
	return Settings{
		AutoEmail:          true,
		SkipDescriptions:   true,
		TriggerStatuses:    []string{"wc-completed"},
		TestPaymentMethods: []string{"test"},
	}
}

// Result describes one Sync call.
type Result struct {
	OrderID     int64
	State       State // Last state reached
	Skipped     bool
	SkipReason  string
	CustomerRef string
	DocumentRef string
	PaymentRef  string
	EmailSent   bool
	Warnings    []string
}

// Synchronizer runs the order workflow.
type Synchronizer struct {
	customers  CustomerAPI
	documents  DocumentAPI
	store      Store
	settings   Settings
	validation *invoice.AmountValidation
	now        func() time.Time
	log        zerolog.Logger
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithClock replaces the clock used for emit dates of unpaid orders.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		s.now = now
	}
}

// New creates a Synchronizer.
func New(customers CustomerAPI, documents DocumentAPI, st Store, settings Settings, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		customers:  customers,
		documents:  documents,
		store:      st,
		settings:   settings,
		validation: invoice.NewAmountValidation(),
		now:        time.Now,
		log:        logger.WithComponent("ordersync"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromAPI wires a Synchronizer to an INFast API.
func NewFromAPI(api *infast.API, st Store, settings Settings, opts ...Option) *Synchronizer {
	return New(api.Customers, api.Documents, st, settings, opts...)
}

// Sync runs the workflow for order. Orders that do not qualify, or that
// another run is already processing, come back Skipped with a nil error.
// A failed step leaves a note on the order and returns a *StepError;
// completed steps stay recorded for the next run.
func (s *Synchronizer) Sync(ctx context.Context, order *models.Order) (Result, error) {
	res := Result{OrderID: order.ID, State: StateNotStarted}
	log := logger.WithOrderID(s.log, order.ID)

	if reason := s.skipReason(order); reason != "" {
		log.Debug().Str("reason", reason).Msg("Order skipped")
		res.Skipped = true
		res.SkipReason = reason
		return res, nil
	}

	acquired, err := s.store.AcquireSync(ctx, order.ID)
	if err != nil {
		return res, err
	}
	if !acquired {
		log.Info().Msg("Sync already in progress, skipping")
		res.Skipped = true
		res.SkipReason = "sync already in progress"
		return res, nil
	}
	defer func() {
		if err := s.store.ReleaseSync(context.WithoutCancel(ctx), order.ID); err != nil {
			log.Error().Err(err).Msg("Failed to release sync marker")
		}
	}()

	if err := s.run(ctx, order, &res, log); err != nil {
		log.Error().Err(err).Str("state", string(res.State)).Msg("Order synchronization failed")
		s.note(ctx, order.ID, "INFast error: "+rootMessage(err), log)
		return res, err
	}

	res.State = StateDone
	log.Info().
		Str("customer_ref", res.CustomerRef).
		Str("document_ref", res.DocumentRef).
		Str("payment_ref", res.PaymentRef).
		Bool("email_sent", res.EmailSent).
		Msg("Order synchronized")
	return res, nil
}

func (s *Synchronizer) run(ctx context.Context, order *models.Order, res *Result, log zerolog.Logger) error {
	refs, err := s.store.OrderRefs(ctx, order.ID)
	if err != nil {
		return &StepError{OrderID: order.ID, State: StateNotStarted, Err: err}
	}

	customerRef, err := s.resolveCustomer(ctx, order, refs, log)
	if err != nil {
		return &StepError{OrderID: order.ID, State: StateCustomerResolved, Err: err}
	}
	res.CustomerRef = customerRef
	res.State = StateCustomerResolved

	documentRef, err := s.ensureDocument(ctx, order, refs, customerRef, res, log)
	if err != nil {
		return &StepError{OrderID: order.ID, State: StateDocumentCreated, Err: err}
	}
	res.DocumentRef = documentRef
	res.State = StateDocumentCreated

	paymentRef, err := s.ensurePayment(ctx, order, refs, documentRef, log)
	if err != nil {
		return &StepError{OrderID: order.ID, State: StatePaymentRecorded, Err: err}
	}
	res.PaymentRef = paymentRef
	res.State = StatePaymentRecorded

	s.maybeSendEmail(ctx, order, refs, documentRef, res, log)
	return nil
}

func (s *Synchronizer) resolveCustomer(ctx context.Context, order *models.Order, refs models.OrderRefs, log zerolog.Logger) (string, error) {
	if refs.CustomerRef != "" {
		return refs.CustomerRef, nil
	}

	if order.CustomerID != 0 {
		ref, err := s.store.UserCustomerRef(ctx, order.CustomerID)
		if err != nil {
			return "", err
		}
		if ref != "" {
			if err := s.store.SetOrderRef(ctx, order.ID, store.RefCustomer, ref); err != nil {
				return "", err
			}
			log.Debug().Str("customer_ref", ref).Msg("Reusing customer cached on user")
			return ref, nil
		}
	}

	email := strings.TrimSpace(order.Billing.Email)
	if !infast.ValidEmail(email) {
		return "", fmt.Errorf("%w: %w", ErrMissingBillingEmail,
			infast.NewValidationError("billing.email", email, "invalid email address for this customer"))
	}

	existing, found, err := s.customers.FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if found {
		ref := string(existing.ID)
		if err := s.persistCustomer(ctx, order, ref); err != nil {
			return "", err
		}
		log.Info().Str("customer_ref", ref).Msg("Existing customer found by email")
		s.note(ctx, order.ID, "Existing INFast customer found by email.", log)
		return ref, nil
	}

	ref, err := s.customers.Create(ctx, customerPayload(order))
	if err != nil {
		return "", err
	}
	if err := s.persistCustomer(ctx, order, ref); err != nil {
		return "", err
	}
	log.Info().Str("customer_ref", ref).Msg("Customer created")
	s.note(ctx, order.ID, "Customer created on INFast.", log)
	return ref, nil
}

func (s *Synchronizer) persistCustomer(ctx context.Context, order *models.Order, ref string) error {
	if err := s.store.SetOrderRef(ctx, order.ID, store.RefCustomer, ref); err != nil {
		return err
	}
	if order.CustomerID != 0 {
		return s.store.SetUserCustomerRef(ctx, order.CustomerID, ref)
	}
	return nil
}

func (s *Synchronizer) ensureDocument(ctx context.Context, order *models.Order, refs models.OrderRefs, customerRef string, res *Result, log zerolog.Logger) (string, error) {
	if refs.DocumentRef != "" {
		return refs.DocumentRef, nil
	}

	built, err := invoice.Build(order, invoice.Options{SkipDescriptions: s.settings.SkipDescriptions})
	if err != nil {
		return "", err
	}
	if v := s.validation.Validate(order, built); v.HasDiscrepancy {
		res.Warnings = append(res.Warnings, v.Warnings...)
	}

	ref, err := s.documents.Create(ctx, s.documentPayload(order, customerRef, built))
	if err != nil {
		return "", err
	}
	if err := s.store.SetOrderRef(ctx, order.ID, store.RefDocument, ref); err != nil {
		return "", err
	}
	log.Info().Str("document_ref", ref).Int("lines", len(built.Lines)).Msg("Invoice created")
	s.note(ctx, order.ID, fmt.Sprintf("Invoice %s created on INFast.", ref), log)
	return ref, nil
}

func (s *Synchronizer) ensurePayment(ctx context.Context, order *models.Order, refs models.OrderRefs, documentRef string, log zerolog.Logger) (string, error) {
	if refs.PaymentRef != "" {
		return refs.PaymentRef, nil
	}
	if order.Total <= 0 {
		return "", nil
	}

	ref, err := s.documents.AddPayment(ctx, documentRef, paymentPayload(order))
	if err != nil {
		return "", err
	}
	if err := s.store.SetOrderRef(ctx, order.ID, store.RefPayment, ref); err != nil {
		return "", err
	}
	log.Info().Str("payment_ref", ref).Msg("Payment recorded")
	s.note(ctx, order.ID, "Payment recorded on INFast.", log)
	return ref, nil
}

// maybeSendEmail never fails the workflow: errors become warnings and an
// order note, and the next run tries again.
func (s *Synchronizer) maybeSendEmail(ctx context.Context, order *models.Order, refs models.OrderRefs, documentRef string, res *Result, log zerolog.Logger) {
	if !s.settings.AutoEmail {
		res.State = StateEmailSkipped
		return
	}
	if refs.EmailSent {
		res.EmailSent = true
		res.State = StateEmailSent
		return
	}

	var payload infast.EmailPayload
	if cc := strings.TrimSpace(s.settings.EmailCC); infast.ValidEmail(cc) {
		payload.CC = cc
	}

	if err := s.documents.SendEmail(ctx, documentRef, payload); err != nil {
		log.Warn().Err(err).Str("document_ref", documentRef).Msg("Invoice email failed")
		res.Warnings = append(res.Warnings, "invoice email failed: "+err.Error())
		res.State = StateEmailSkipped
		s.note(ctx, order.ID, "Could not send the INFast email automatically: "+rootMessage(err), log)
		return
	}

	if err := s.store.MarkEmailSent(ctx, order.ID); err != nil {
		log.Error().Err(err).Msg("Failed to persist email flag")
		res.Warnings = append(res.Warnings, "email sent but not recorded: "+err.Error())
	}
	res.EmailSent = true
	res.State = StateEmailSent
	s.note(ctx, order.ID, "Invoice sent through INFast.", log)
}

// skipReason returns why order must not be synchronized, or "".
func (s *Synchronizer) skipReason(order *models.Order) string {
	if !s.isTriggerStatus(order.Status) {
		return fmt.Sprintf("status %q does not trigger a sync", order.Status)
	}
	if order.Total <= 0 {
		return "order total is not positive"
	}
	if order.CustomerIsAdmin {
		return "order placed by an administrator"
	}
	if order.CreatedVia == "admin" {
		return "order created from the back office"
	}
	for _, m := range s.settings.TestPaymentMethods {
		if m != "" && strings.EqualFold(m, order.PaymentMethod) {
			return fmt.Sprintf("test payment method %q", order.PaymentMethod)
		}
	}
	return ""
}

func (s *Synchronizer) isTriggerStatus(status string) bool {
	statuses := s.settings.TriggerStatuses
	if len(statuses) == 0 {
		statuses = DefaultSettings().TriggerStatuses
	}
	status = normalizeStatus(status)
	for _, candidate := range statuses {
		if normalizeStatus(candidate) == status {
			return true
		}
	}
	return false
}

func normalizeStatus(status string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(status)), "wc-")
}

func (s *Synchronizer) note(ctx context.Context, orderID int64, message string, log zerolog.Logger) {
	if err := s.store.AddOrderNote(context.WithoutCancel(ctx), orderID, message); err != nil {
		log.Error().Err(err).Str("note", message).Msg("Failed to add order note")
	}
}

// rootMessage strips the wrapping added by the workflow for order notes.
func rootMessage(err error) string {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Err.Error()
	}
	return err.Error()
}

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"invoicesync/pkg/models"
)

// MemoryStore is an in-process store for dry runs and tests.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[int64]models.OrderRefs
	users  map[int64]string
	items  map[int64]string
	notes  map[int64][]models.OrderNote
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		orders: make(map[int64]models.OrderRefs),
		users:  make(map[int64]string),
		items:  make(map[int64]string),
		notes:  make(map[int64][]models.OrderNote),
	}
}

// Close is a no-op; it lets MemoryStore stand in for SQLiteStore.
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) OrderRefs(_ context.Context, orderID int64) (models.OrderRefs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[orderID], nil
}

func (m *MemoryStore) AcquireSync(_ context.Context, orderID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs := m.orders[orderID]
	if refs.SyncInProgress {
		return false, nil
	}
	refs.SyncInProgress = true
	m.orders[orderID] = refs
	return true, nil
}

func (m *MemoryStore) ReleaseSync(_ context.Context, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs := m.orders[orderID]
	refs.SyncInProgress = false
	m.orders[orderID] = refs
	return nil
}

func (m *MemoryStore) SetOrderRef(_ context.Context, orderID int64, kind, ref string) error {
	if _, err := refColumn(kind); err != nil {
		return err
	}
	if ref == "" {
		return fmt.Errorf("store: empty %s reference for order %d", kind, orderID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	refs := m.orders[orderID]
	field := map[string]*string{
		RefCustomer: &refs.CustomerRef,
		RefDocument: &refs.DocumentRef,
		RefPayment:  &refs.PaymentRef,
	}[kind]
	switch *field {
	case "":
		*field = ref
	case ref:
		return nil
	default:
		return &RefError{Kind: kind, OrderID: orderID, Existing: *field, Err: ErrRefAlreadySet}
	}
	m.orders[orderID] = refs
	return nil
}

func (m *MemoryStore) MarkEmailSent(_ context.Context, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs := m.orders[orderID]
	refs.EmailSent = true
	m.orders[orderID] = refs
	return nil
}

func (m *MemoryStore) UserCustomerRef(_ context.Context, userID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID], nil
}

func (m *MemoryStore) SetUserCustomerRef(_ context.Context, userID int64, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = ref
	return nil
}

func (m *MemoryStore) ClearCustomerRef(_ context.Context, customerRef string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cleared := 0
	for userID, ref := range m.users {
		if ref == customerRef {
			delete(m.users, userID)
			cleared++
		}
	}
	return cleared, nil
}

func (m *MemoryStore) AddOrderNote(_ context.Context, orderID int64, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[orderID] = append(m.notes[orderID], models.OrderNote{
		OrderID:   orderID,
		Message:   message,
		CreatedAt: time.Now(),
	})
	return nil
}

func (m *MemoryStore) OrderNotes(_ context.Context, orderID int64) ([]models.OrderNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OrderNote(nil), m.notes[orderID]...), nil
}

func (m *MemoryStore) ItemRef(_ context.Context, productID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[productID], nil
}

func (m *MemoryStore) SetItemRef(_ context.Context, productID int64, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[productID] = ref
	return nil
}

func (m *MemoryStore) DeleteItemRef(_ context.Context, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, productID)
	return nil
}

func (m *MemoryStore) LinkedProducts(_ context.Context) (map[int64]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	links := make(map[int64]string, len(m.items))
	for id, ref := range m.items {
		links[id] = ref
	}
	return links, nil
}

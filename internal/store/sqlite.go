package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"invoicesync/pkg/models"
)

// SQLiteStore keeps references in a SQLite database file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at dbPath.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if strings.HasPrefix(dbPath, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}
	// A single connection serializes writers; the conditional updates below
	// rely on it for the sync marker.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS order_refs (
			order_id INTEGER PRIMARY KEY,
			customer_ref TEXT NOT NULL DEFAULT '',
			document_ref TEXT NOT NULL DEFAULT '',
			payment_ref TEXT NOT NULL DEFAULT '',
			email_sent INTEGER NOT NULL DEFAULT 0,
			syncing INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME
		);

		CREATE TABLE IF NOT EXISTS user_refs (
			user_id INTEGER PRIMARY KEY,
			customer_ref TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS item_refs (
			product_id INTEGER PRIMARY KEY,
			item_ref TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS order_notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id INTEGER NOT NULL,
			message TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_user_refs_customer ON user_refs(customer_ref);
		CREATE INDEX IF NOT EXISTS idx_order_notes_order ON order_notes(order_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ensureOrder(ctx context.Context, orderID int64) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO order_refs (order_id, updated_at) VALUES (?, ?)`, orderID, s.now())
	return err
}

// OrderRefs returns the references stored for an order; unknown orders
// have none.
func (s *SQLiteStore) OrderRefs(ctx context.Context, orderID int64) (models.OrderRefs, error) {
	var refs models.OrderRefs
	var emailSent, syncing int
	err := s.db.QueryRowContext(ctx, `
		SELECT customer_ref, document_ref, payment_ref, email_sent, syncing
		FROM order_refs WHERE order_id = ?
	`, orderID).Scan(&refs.CustomerRef, &refs.DocumentRef, &refs.PaymentRef, &emailSent, &syncing)
	if err == sql.ErrNoRows {
		return models.OrderRefs{}, nil
	}
	if err != nil {
		return models.OrderRefs{}, fmt.Errorf("store: load order %d: %w", orderID, err)
	}
	refs.EmailSent = emailSent == 1
	refs.SyncInProgress = syncing == 1
	return refs, nil
}

// AcquireSync sets the in-progress marker and reports whether this caller
// won it.
func (s *SQLiteStore) AcquireSync(ctx context.Context, orderID int64) (bool, error) {
	if err := s.ensureOrder(ctx, orderID); err != nil {
		return false, fmt.Errorf("store: acquire order %d: %w", orderID, err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE order_refs SET syncing = 1, updated_at = ?
		WHERE order_id = ? AND syncing = 0
	`, s.now(), orderID)
	if err != nil {
		return false, fmt.Errorf("store: acquire order %d: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseSync clears the in-progress marker.
func (s *SQLiteStore) ReleaseSync(ctx context.Context, orderID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE order_refs SET syncing = 0, updated_at = ? WHERE order_id = ?`, s.now(), orderID)
	if err != nil {
		return fmt.Errorf("store: release order %d: %w", orderID, err)
	}
	return nil
}

// SetOrderRef writes a reference once. Writing the value already stored is
// a no-op; any other value yields ErrRefAlreadySet.
func (s *SQLiteStore) SetOrderRef(ctx context.Context, orderID int64, kind, ref string) error {
	column, err := refColumn(kind)
	if err != nil {
		return err
	}
	if ref == "" {
		return fmt.Errorf("store: empty %s reference for order %d", kind, orderID)
	}
	if err := s.ensureOrder(ctx, orderID); err != nil {
		return fmt.Errorf("store: set %s ref: %w", kind, err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE order_refs SET `+column+` = ?, updated_at = ? WHERE order_id = ? AND `+column+` = ''`,
		ref, s.now(), orderID)
	if err != nil {
		return fmt.Errorf("store: set %s ref: %w", kind, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var existing string
	if err := s.db.QueryRowContext(ctx, `SELECT `+column+` FROM order_refs WHERE order_id = ?`, orderID).Scan(&existing); err != nil {
		return fmt.Errorf("store: set %s ref: %w", kind, err)
	}
	if existing == ref {
		return nil
	}
	return &RefError{Kind: kind, OrderID: orderID, Existing: existing, Err: ErrRefAlreadySet}
}

// MarkEmailSent records that the document email went out.
func (s *SQLiteStore) MarkEmailSent(ctx context.Context, orderID int64) error {
	if err := s.ensureOrder(ctx, orderID); err != nil {
		return fmt.Errorf("store: mark email: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `UPDATE order_refs SET email_sent = 1, updated_at = ? WHERE order_id = ?`, s.now(), orderID)
	if err != nil {
		return fmt.Errorf("store: mark email: %w", err)
	}
	return nil
}

// UserCustomerRef returns the customer reference cached for a user.
func (s *SQLiteStore) UserCustomerRef(ctx context.Context, userID int64) (string, error) {
	var ref string
	err := s.db.QueryRowContext(ctx, `SELECT customer_ref FROM user_refs WHERE user_id = ?`, userID).Scan(&ref)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: load user %d: %w", userID, err)
	}
	return ref, nil
}

// SetUserCustomerRef caches a customer reference for a user.
func (s *SQLiteStore) SetUserCustomerRef(ctx context.Context, userID int64, ref string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_refs (user_id, customer_ref, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET customer_ref = excluded.customer_ref, updated_at = excluded.updated_at
	`, userID, ref, s.now())
	if err != nil {
		return fmt.Errorf("store: set user %d ref: %w", userID, err)
	}
	return nil
}

// ClearCustomerRef forgets every user-level cache of customerRef and
// returns how many users were updated. Order references are history and
// stay untouched.
func (s *SQLiteStore) ClearCustomerRef(ctx context.Context, customerRef string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_refs WHERE customer_ref = ?`, customerRef)
	if err != nil {
		return 0, fmt.Errorf("store: clear customer %s: %w", customerRef, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// AddOrderNote appends a note to the order history.
func (s *SQLiteStore) AddOrderNote(ctx context.Context, orderID int64, message string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO order_notes (order_id, message, created_at) VALUES (?, ?, ?)`,
		orderID, message, s.now())
	if err != nil {
		return fmt.Errorf("store: add note to order %d: %w", orderID, err)
	}
	return nil
}

// OrderNotes returns the notes of an order, oldest first.
func (s *SQLiteStore) OrderNotes(ctx context.Context, orderID int64) ([]models.OrderNote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, message, created_at FROM order_notes
		WHERE order_id = ? ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("store: load notes of order %d: %w", orderID, err)
	}
	defer rows.Close()

	var notes []models.OrderNote
	for rows.Next() {
		var n models.OrderNote
		if err := rows.Scan(&n.OrderID, &n.Message, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// ItemRef returns the remote item linked to a product.
func (s *SQLiteStore) ItemRef(ctx context.Context, productID int64) (string, error) {
	var ref string
	err := s.db.QueryRowContext(ctx, `SELECT item_ref FROM item_refs WHERE product_id = ?`, productID).Scan(&ref)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: load product %d: %w", productID, err)
	}
	return ref, nil
}

// SetItemRef links a product to a remote item.
func (s *SQLiteStore) SetItemRef(ctx context.Context, productID int64, ref string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO item_refs (product_id, item_ref, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET item_ref = excluded.item_ref, updated_at = excluded.updated_at
	`, productID, ref, s.now())
	if err != nil {
		return fmt.Errorf("store: set product %d ref: %w", productID, err)
	}
	return nil
}

// DeleteItemRef unlinks a product.
func (s *SQLiteStore) DeleteItemRef(ctx context.Context, productID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM item_refs WHERE product_id = ?`, productID); err != nil {
		return fmt.Errorf("store: delete product %d ref: %w", productID, err)
	}
	return nil
}

// LinkedProducts returns every product to item link.
func (s *SQLiteStore) LinkedProducts(ctx context.Context) (map[int64]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT product_id, item_ref FROM item_refs ORDER BY product_id`)
	if err != nil {
		return nil, fmt.Errorf("store: list linked products: %w", err)
	}
	defer rows.Close()

	links := make(map[int64]string)
	for rows.Next() {
		var id int64
		var ref string
		if err := rows.Scan(&id, &ref); err != nil {
			return nil, err
		}
		links[id] = ref
	}
	return links, rows.Err()
}

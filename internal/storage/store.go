// Package storage persists the OAuth session and the publish queue in a
// local SQLite database. Token material is encrypted at rest with AES-GCM.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"rewear/internal/market/auth"
	"rewear/internal/queue"
)

// Store is a SQLite-backed store for the single marketplace OAuth session and
// the publish queue. It implements auth.SessionStore and queue.Store.
type Store struct {
	db            *sql.DB
	encryptionKey []byte
	mu            sync.RWMutex
}

// NewStore opens (and if needed creates) the database at dbPath. The
// encryptionKey is used to encrypt token data; see DeriveKey.
func NewStore(dbPath string, encryptionKey []byte) (*Store, error) {
	// WAL mode and a busy timeout keep concurrent readers and the write
	// paths from tripping over each other.
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Tighten permissions; the file may not exist until the first write.
	if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		db.Close()
		return nil, fmt.Errorf("failed to set database permissions: %w", err)
	}

	s := &Store{db: db, encryptionKey: encryptionKey}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS oauth_session (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		encrypted_tokens TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS queue_items (
		id TEXT PRIMARY KEY,
		draft TEXT NOT NULL,
		status TEXT NOT NULL,
		submitted_at INTEGER NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		listing_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_queue_items_submitted ON queue_items(submitted_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- auth.SessionStore ---

// LoadSession returns the stored OAuth session, or (nil, nil) when none is
// stored.
func (s *Store) LoadSession() (*auth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var encrypted string
	err := s.db.QueryRow(`SELECT encrypted_tokens FROM oauth_session WHERE id = 1`).Scan(&encrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	plaintext, err := Decrypt(encrypted, s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session: %w", err)
	}

	var sess auth.Session
	if err := json.Unmarshal(plaintext, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

// SaveSession stores the OAuth session, replacing any previous one.
func (s *Store) SaveSession(sess *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plaintext, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	encrypted, err := Encrypt(plaintext, s.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt session: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO oauth_session (id, encrypted_tokens, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET encrypted_tokens = excluded.encrypted_tokens, updated_at = excluded.updated_at`,
		encrypted, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// ClearSession removes the stored OAuth session.
func (s *Store) ClearSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM oauth_session WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// --- queue.Store ---

// InsertItem persists a new queue item.
func (s *Store) InsertItem(item queue.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, err := json.Marshal(item.Draft)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO queue_items (id, draft, status, submitted_at, last_error, listing_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, string(draft), string(item.Status), item.SubmittedAt.UnixNano(), item.LastError, item.ListingID)
	if err != nil {
		return fmt.Errorf("failed to insert queue item: %w", err)
	}
	return nil
}

// UpdateItem writes an item's current state through to the database.
func (s *Store) UpdateItem(item queue.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, err := json.Marshal(item.Draft)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}
	_, err = s.db.Exec(`
		UPDATE queue_items SET draft = ?, status = ?, last_error = ?, listing_id = ? WHERE id = ?`,
		string(draft), string(item.Status), item.LastError, item.ListingID, item.ID)
	if err != nil {
		return fmt.Errorf("failed to update queue item: %w", err)
	}
	return nil
}

// DeleteItem removes a queue item.
func (s *Store) DeleteItem(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM queue_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete queue item: %w", err)
	}
	return nil
}

// ListItems returns all persisted queue items in submission order.
func (s *Store) ListItems() ([]queue.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, draft, status, submitted_at, last_error, listing_id
		FROM queue_items ORDER BY submitted_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	defer rows.Close()

	var items []queue.Item
	for rows.Next() {
		var (
			item        queue.Item
			draft       string
			status      string
			submittedAt int64
		)
		if err := rows.Scan(&item.ID, &draft, &status, &submittedAt, &item.LastError, &item.ListingID); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		if err := json.Unmarshal([]byte(draft), &item.Draft); err != nil {
			return nil, fmt.Errorf("failed to unmarshal draft for item %s: %w", item.ID, err)
		}
		item.Status = queue.Status(status)
		item.SubmittedAt = time.Unix(0, submittedAt)
		items = append(items, item)
	}
	return items, rows.Err()
}

package mapping

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"parcelmail/internal/carriers"
)

// UserMapping associates a user key with everything known about them:
// the order and package numbers seen so far and the timestamp of the
// newest email already processed.
type UserMapping struct {
	UserKey        string     `json:"user_key"`
	OrderNumbers   []string   `json:"order_numbers"`
	PackageNumbers []string   `json:"package_numbers"`
	LastEmailDate  *time.Time `json:"last_email_date"`
}

// Store persists user mappings in SQLite. Every mutation is written
// through synchronously; there is no batching, which is a deliberate
// simplicity-over-throughput tradeoff at tens of emails per cycle.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (and if needed creates) the mapping database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_mappings (
		user_key TEXT PRIMARY KEY,
		order_numbers TEXT NOT NULL DEFAULT '[]',
		package_numbers TEXT NOT NULL DEFAULT '[]',
		last_email_date TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS processed_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mailbox TEXT NOT NULL,
		uid INTEGER NOT NULL,
		message_id TEXT,
		status TEXT NOT NULL,
		processed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(mailbox, uid)
	);

	CREATE INDEX IF NOT EXISTS idx_processed_mailbox ON processed_messages(mailbox);
	CREATE INDEX IF NOT EXISTS idx_processed_at ON processed_messages(processed_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// GetLastEmailDate returns the newest processed email timestamp for a
// user, or nil when the user is unknown.
func (s *Store) GetLastEmailDate(userKey string) (*time.Time, error) {
	var last sql.NullTime
	err := s.db.QueryRow(
		"SELECT last_email_date FROM user_mappings WHERE user_key = ?", userKey,
	).Scan(&last)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last email date: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	t := last.Time
	return &t, nil
}

// UpdateLastEmailDate overwrites the stored timestamp, creating the
// mapping lazily for first-time users.
func (s *Store) UpdateLastEmailDate(userKey string, date time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO user_mappings (user_key, last_email_date) VALUES (?, ?)
		ON CONFLICT(user_key) DO UPDATE SET
			last_email_date = excluded.last_email_date,
			updated_at = CURRENT_TIMESTAMP
	`, userKey, date)
	if err != nil {
		return fmt.Errorf("failed to update last email date: %w", err)
	}
	return nil
}

// AddOrderMapping appends an order number to the user's set. Idempotent:
// a number already present is not appended again.
func (s *Store) AddOrderMapping(userKey, orderNumber string) error {
	return s.appendNumber(userKey, "order_numbers", orderNumber)
}

// AddPackageMapping appends a package number to the user's set.
// Idempotent like AddOrderMapping.
func (s *Store) AddPackageMapping(userKey, packageNumber string) error {
	return s.appendNumber(userKey, "package_numbers", packageNumber)
}

func (s *Store) appendNumber(userKey, column, number string) error {
	if number == "" {
		return nil
	}

	var raw string
	err := s.db.QueryRow(
		fmt.Sprintf("SELECT %s FROM user_mappings WHERE user_key = ?", column), userKey,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		raw = "[]"
	} else if err != nil {
		return fmt.Errorf("failed to read %s: %w", column, err)
	}

	var numbers []string
	if err := json.Unmarshal([]byte(raw), &numbers); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", column, err)
	}
	for _, n := range numbers {
		if n == number {
			return nil
		}
	}
	numbers = append(numbers, number)

	encoded, err := json.Marshal(numbers)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", column, err)
	}

	_, err = s.db.Exec(fmt.Sprintf(`
		INSERT INTO user_mappings (user_key, %[1]s) VALUES (?, ?)
		ON CONFLICT(user_key) DO UPDATE SET
			%[1]s = excluded.%[1]s,
			updated_at = CURRENT_TIMESTAMP
	`, column), userKey, string(encoded))
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", column, err)
	}
	return nil
}

// Get returns the full mapping for a user, or nil when absent.
func (s *Store) Get(userKey string) (*UserMapping, error) {
	row := s.db.QueryRow(`
		SELECT user_key, order_numbers, package_numbers, last_email_date
		FROM user_mappings WHERE user_key = ?
	`, userKey)
	m, err := scanMapping(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// All returns every stored mapping, ordered by user key.
func (s *Store) All() ([]UserMapping, error) {
	rows, err := s.db.Query(`
		SELECT user_key, order_numbers, package_numbers, last_email_date
		FROM user_mappings ORDER BY user_key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer rows.Close()

	var mappings []UserMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return mappings, nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanMapping(row scannable) (*UserMapping, error) {
	var m UserMapping
	var orders, packages string
	var last sql.NullTime

	if err := row.Scan(&m.UserKey, &orders, &packages, &last); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan mapping: %w", err)
	}
	if err := json.Unmarshal([]byte(orders), &m.OrderNumbers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order numbers: %w", err)
	}
	if err := json.Unmarshal([]byte(packages), &m.PackageNumbers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal package numbers: %w", err)
	}
	if last.Valid {
		t := last.Time
		m.LastEmailDate = &t
	}
	return &m, nil
}

// RemoveMapping deletes a user's mapping. Accepts either a bare user key
// or a full email address.
func (s *Store) RemoveMapping(userKeyOrEmail string) error {
	key := carriers.DeriveUserKey(userKeyOrEmail)
	if _, err := s.db.Exec("DELETE FROM user_mappings WHERE user_key = ?", key); err != nil {
		return fmt.Errorf("failed to remove mapping: %w", err)
	}
	return nil
}

// IsProcessed checks the per-mailbox ledger for a message UID.
func (s *Store) IsProcessed(mailbox string, uid uint32) (bool, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM processed_messages WHERE mailbox = ? AND uid = ?",
		mailbox, uid,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check processed ledger: %w", err)
	}
	return count > 0, nil
}

// MarkProcessed records a message in the ledger so restarts do not
// re-fetch it.
func (s *Store) MarkProcessed(mailbox string, uid uint32, messageID, status string) error {
	_, err := s.db.Exec(`
		INSERT INTO processed_messages (mailbox, uid, message_id, status) VALUES (?, ?, ?, ?)
		ON CONFLICT(mailbox, uid) DO UPDATE SET
			message_id = excluded.message_id,
			status = excluded.status,
			processed_at = CURRENT_TIMESTAMP
	`, mailbox, uid, messageID, status)
	if err != nil {
		return fmt.Errorf("failed to mark message processed: %w", err)
	}
	return nil
}

// CleanupLedger drops ledger entries older than the cutoff.
func (s *Store) CleanupLedger(olderThan time.Time) error {
	if _, err := s.db.Exec("DELETE FROM processed_messages WHERE processed_at < ?", olderThan); err != nil {
		return fmt.Errorf("failed to cleanup ledger: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Package progress keeps the durable per-user progress records. The backing
// database is the only mutable shared state in the process; every
// read-modify-write goes through a single critical section so concurrent
// updates from different users never interleave partial writes. The store is
// not designed for multiple processes writing the same database.
package progress

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/example/anatilbot/pkg/models"
)

// DefaultDatabaseFile is the sqlite file created under the data directory
// when DATABASE_URL is not set.
const DefaultDatabaseFile = "anatil.db"

// Store persists user registrations and progress records.
type Store struct {
	db *sqlx.DB
	mu sync.Mutex
}

// Open connects to the database selected by DATABASE_URL (postgres) or to a
// local sqlite file under dataDir, and initializes the schema.
func Open(dataDir string) (*Store, error) {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		db, err := sqlx.Connect("postgres", url)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %v", err)
		}
		return New(db)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}
	db, err := sqlx.Connect("sqlite3", filepath.Join(dataDir, DefaultDatabaseFile))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	return New(db)
}

// New wraps an existing connection and initializes the schema.
func New(db *sqlx.DB) (*Store, error) {
	if db.DriverName() == "sqlite3" {
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("failed to enable foreign keys: %v", err)
		}
		// SQLite doesn't support multiple writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	s := &Store{db: db}
	if err := s.initializeSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// initializeSchema creates necessary tables if they don't exist.
func (s *Store) initializeSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			telegram_id BIGINT PRIMARY KEY,
			username TEXT,
			first_name TEXT,
			notification_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			notification_hour INTEGER NOT NULL DEFAULT 9,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS progress (
			user_id BIGINT PRIMARY KEY,
			score INTEGER NOT NULL DEFAULT 0,
			xp INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS used_items (
			user_id BIGINT NOT NULL,
			category TEXT NOT NULL,
			item_id TEXT NOT NULL,
			served_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, category, item_id)
		)`,
		`CREATE TABLE IF NOT EXISTS reading_cursor (
			user_id BIGINT NOT NULL,
			passage_id TEXT NOT NULL,
			next_question INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, passage_id)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %v", err)
		}
	}
	return nil
}

// Get returns the user's progress record, creating a persisted zero-valued
// one on first access.
func (s *Store) Get(userID int64) (*models.ProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	rec, err := load(tx, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to persist progress: %v", err)
	}
	return rec, nil
}

// Mutate loads the user's record, applies fn and persists the result before
// returning. The returned record reflects the persisted state; if the commit
// fails the caller must not report the mutation as done.
func (s *Store) Mutate(userID int64, fn func(*models.ProgressRecord)) (*models.ProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	rec, err := load(tx, userID)
	if err != nil {
		return nil, err
	}

	fn(rec)

	if err := save(tx, rec); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to persist progress: %v", err)
	}
	return rec, nil
}

// load reads (and lazily creates) one record inside a transaction.
func load(tx *sqlx.Tx, userID int64) (*models.ProgressRecord, error) {
	if _, err := tx.Exec(tx.Rebind(
		`INSERT INTO progress (user_id) VALUES (?) ON CONFLICT (user_id) DO NOTHING`), userID); err != nil {
		return nil, fmt.Errorf("failed to create progress record: %v", err)
	}

	rec := models.NewProgressRecord(userID)
	if err := tx.QueryRow(tx.Rebind(
		`SELECT score, xp FROM progress WHERE user_id = ?`), userID).Scan(&rec.Score, &rec.XP); err != nil {
		return nil, fmt.Errorf("failed to load progress record: %v", err)
	}

	// The transaction holds a single connection, so each result set must be
	// closed before the next query runs.
	if err := loadUsedItems(tx, rec); err != nil {
		return nil, err
	}
	if err := loadReadingCursors(tx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func loadUsedItems(tx *sqlx.Tx, rec *models.ProgressRecord) error {
	rows, err := tx.Query(tx.Rebind(
		`SELECT category, item_id FROM used_items WHERE user_id = ? ORDER BY served_at, item_id`), rec.UserID)
	if err != nil {
		return fmt.Errorf("failed to load used items: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var category, itemID string
		if err := rows.Scan(&category, &itemID); err != nil {
			return fmt.Errorf("failed to scan used item: %v", err)
		}
		rec.UsedItems[category] = append(rec.UsedItems[category], itemID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load used items: %v", err)
	}
	return nil
}

func loadReadingCursors(tx *sqlx.Tx, rec *models.ProgressRecord) error {
	rows, err := tx.Query(tx.Rebind(
		`SELECT passage_id, next_question FROM reading_cursor WHERE user_id = ?`), rec.UserID)
	if err != nil {
		return fmt.Errorf("failed to load reading cursors: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var passageID string
		var next int
		if err := rows.Scan(&passageID, &next); err != nil {
			return fmt.Errorf("failed to scan reading cursor: %v", err)
		}
		rec.ReadingCursor[passageID] = next
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load reading cursors: %v", err)
	}
	return nil
}

// save writes the whole record back inside a transaction. Used items are
// insert-only, matching the record invariant that used sets never shrink.
func save(tx *sqlx.Tx, rec *models.ProgressRecord) error {
	if _, err := tx.Exec(tx.Rebind(
		`UPDATE progress SET score = ?, xp = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`),
		rec.Score, rec.XP, rec.UserID); err != nil {
		return fmt.Errorf("failed to save progress record: %v", err)
	}

	for category, ids := range rec.UsedItems {
		for _, id := range ids {
			if _, err := tx.Exec(tx.Rebind(
				`INSERT INTO used_items (user_id, category, item_id) VALUES (?, ?, ?)
				 ON CONFLICT (user_id, category, item_id) DO NOTHING`),
				rec.UserID, category, id); err != nil {
				return fmt.Errorf("failed to save used item: %v", err)
			}
		}
	}

	for passageID, next := range rec.ReadingCursor {
		if _, err := tx.Exec(tx.Rebind(
			`INSERT INTO reading_cursor (user_id, passage_id, next_question) VALUES (?, ?, ?)
			 ON CONFLICT (user_id, passage_id) DO UPDATE SET next_question = excluded.next_question`),
			rec.UserID, passageID, next); err != nil {
			return fmt.Errorf("failed to save reading cursor: %v", err)
		}
	}

	return nil
}

// RegisterUser inserts a user on first contact or refreshes the profile
// fields on later contacts. Notification preferences are kept as-is.
func (s *Store) RegisterUser(user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(s.db.Rebind(
		`INSERT INTO users (telegram_id, username, first_name, notification_enabled, notification_hour)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (telegram_id) DO UPDATE SET username = excluded.username, first_name = excluded.first_name`),
		user.TelegramID, user.Username, user.FirstName, user.NotificationEnabled, user.NotificationHour)
	if err != nil {
		return fmt.Errorf("failed to register user: %v", err)
	}
	return nil
}

// SetNotifications toggles the daily phrase broadcast for a user.
func (s *Store) SetNotifications(userID int64, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(s.db.Rebind(
		`UPDATE users SET notification_enabled = ? WHERE telegram_id = ?`), enabled, userID)
	if err != nil {
		return fmt.Errorf("failed to update notifications: %v", err)
	}
	return nil
}

// UsersForNotification returns users whose daily phrase is due at the given
// hour.
func (s *Store) UsersForNotification(hour int) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var users []models.User
	err := s.db.Select(&users, s.db.Rebind(
		`SELECT telegram_id, username, first_name, notification_enabled, notification_hour
		 FROM users WHERE notification_enabled = ? AND notification_hour = ?`), true, hour)
	if err != nil {
		return nil, fmt.Errorf("failed to get users for notification: %v", err)
	}
	return users, nil
}

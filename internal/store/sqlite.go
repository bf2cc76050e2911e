package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteStore keeps subscriptions in a local file. It is the default
// backend for development and single-host deployments; the earliest bot
// releases used nothing else.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the database file.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS user_autostocks (
		user_id INTEGER NOT NULL,
		item_name TEXT NOT NULL,
		PRIMARY KEY (user_id, item_name)
	);
	CREATE INDEX IF NOT EXISTS idx_autostocks_item ON user_autostocks(item_name);

	CREATE TABLE IF NOT EXISTS bot_users (
		user_id INTEGER PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_seen DATETIME NOT NULL
	);
	`
	_, err := db.Exec(query)
	return err
}

// ListItems returns the items a user is subscribed to.
func (s *SQLiteStore) ListItems(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_name FROM user_autostocks WHERE user_id = ? ORDER BY item_name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var item string
		if err := rows.Scan(&item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListSubscribers returns every user subscribed to the item.
func (s *SQLiteStore) ListSubscribers(ctx context.Context, item string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM user_autostocks WHERE item_name = ? ORDER BY user_id`, item)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Add subscribes a user to an item.
func (s *SQLiteStore) Add(ctx context.Context, userID int64, item string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_autostocks (user_id, item_name) VALUES (?, ?)
		 ON CONFLICT(user_id, item_name) DO NOTHING`, userID, item)
	if err != nil {
		return fmt.Errorf("add subscription: %w", err)
	}
	return nil
}

// Remove unsubscribes a user from an item.
func (s *SQLiteStore) Remove(ctx context.Context, userID int64, item string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_autostocks WHERE user_id = ? AND item_name = ?`, userID, item)
	if err != nil {
		return fmt.Errorf("remove subscription: %w", err)
	}
	return nil
}

// PurgeUser drops the user and all their subscriptions.
func (s *SQLiteStore) PurgeUser(ctx context.Context, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("purge user: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_autostocks WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("purge subscriptions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bot_users WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("purge user row: %w", err)
	}
	return tx.Commit()
}

// UpsertUser records a user sighting.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u User) error {
	lastSeen := u.LastSeen
	if lastSeen.IsZero() {
		lastSeen = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_users (user_id, username, first_name, last_seen) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_seen = excluded.last_seen`,
		u.UserID, u.Username, u.FirstName, lastSeen)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// ListUserIDs returns every known user id.
func (s *SQLiteStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM bot_users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Counts returns the number of known users and total subscriptions.
func (s *SQLiteStore) Counts(ctx context.Context) (users, subscriptions int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bot_users`).Scan(&users); err != nil {
		return 0, 0, fmt.Errorf("count users: %w", err)
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_autostocks`).Scan(&subscriptions); err != nil {
		return 0, 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return users, subscriptions, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

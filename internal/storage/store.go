package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
)

const (
	sqliteConstraintCode = 19
	defaultBusyTimeout   = 5000
)

// Store wraps the SQLite handle and exposes helper methods used by the relay.
type Store struct {
	db *sql.DB
}

// Message is a row in the messages table.
type Message struct {
	ID        string
	Username  string
	Body      string
	Type      string
	PhotoURL  string
	Timestamp string
	CreatedAt time.Time
}

// Photo is the metadata kept for an uploaded image; the bytes live on disk.
type Photo struct {
	ID          string
	ContentType string
	SizeBytes   int64
	SHA256      string
	StoragePath string
	UploadedAt  time.Time
}

// ErrMessageExists is returned when a message id is stored twice.
var ErrMessageExists = errors.New("message already exists")

// NewStore initializes the SQLite database at the provided path. Call Close when done.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "chatnest.db"
	}
	dsn := buildDSN(path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=foreign_keys=ON", path, separator, defaultBusyTimeout)
}

// Migrate runs the schema creation statements.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			username TEXT NOT NULL,
			body TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'text',
			photo_url TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS photos (
			id TEXT PRIMARY KEY,
			content_type TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			sha256 TEXT NOT NULL,
			storage_path TEXT NOT NULL,
			uploaded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS photos_sha256 ON photos(sha256);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AppendMessage stores a message at the end of the history.
func (s *Store) AppendMessage(ctx context.Context, msg Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(id, username, body, type, photo_url, timestamp) VALUES(?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Username, msg.Body, msg.Type, msg.PhotoURL, msg.Timestamp)
	if err != nil {
		if isConstraintError(err) {
			return ErrMessageExists
		}
		return err
	}
	return nil
}

// RecentMessages returns up to limit of the newest messages, oldest first.
func (s *Store) RecentMessages(ctx context.Context, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, body, type, photo_url, timestamp, created_at FROM (
			SELECT seq, id, username, body, type, photo_url, timestamp, created_at
			FROM messages ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Username, &m.Body, &m.Type, &m.PhotoURL, &m.Timestamp, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// TrimMessages keeps only the newest keep messages and reports how many were removed.
func (s *Store) TrimMessages(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM messages WHERE seq <= (
			SELECT seq FROM messages ORDER BY seq DESC LIMIT 1 OFFSET ?
		)
	`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountMessages reports the size of the stored history.
func (s *Store) CountMessages(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM messages`).Scan(&count)
	return count, err
}

// SavePhoto records photo metadata.
func (s *Store) SavePhoto(ctx context.Context, p Photo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO photos(id, content_type, size_bytes, sha256, storage_path) VALUES(?, ?, ?, ?, ?)`,
		p.ID, p.ContentType, p.SizeBytes, p.SHA256, p.StoragePath)
	return err
}

// GetPhoto returns nil when no photo has the id.
func (s *Store) GetPhoto(ctx context.Context, id string) (*Photo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content_type, size_bytes, sha256, storage_path, uploaded_at FROM photos WHERE id = ?`, id)
	return scanPhoto(row)
}

// PhotoBySHA256 finds an earlier upload of identical bytes, or nil.
func (s *Store) PhotoBySHA256(ctx context.Context, sum string) (*Photo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content_type, size_bytes, sha256, storage_path, uploaded_at FROM photos WHERE sha256 = ? ORDER BY uploaded_at ASC LIMIT 1`, sum)
	return scanPhoto(row)
}

func scanPhoto(row *sql.Row) (*Photo, error) {
	var p Photo
	if err := row.Scan(&p.ID, &p.ContentType, &p.SizeBytes, &p.SHA256, &p.StoragePath, &p.UploadedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		// extended codes such as SQLITE_CONSTRAINT_UNIQUE keep the primary code in the low byte
		return sqliteErr.Code()&0xff == sqliteConstraintCode
	}
	return false
}
